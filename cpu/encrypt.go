// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// EncryptLWECiphertextVector encrypts every plaintext of pt under key. The
// ciphertexts inherit the encoders of pt.
func (e *Engine) EncryptLWECiphertextVector(key *LWESecretKey, pt *tfhe.PlaintextVector, noise float64) (*LWECiphertextVector, error) {
	if pt == nil || pt.Count() == 0 {
		return nil, tfhe.OpError(tfhe.OpEncrypt, fmt.Errorf("%w: empty plaintext vector", tfhe.ErrPlaintextCountMismatch))
	}
	out := NewLWECiphertextVector(key.LWEDimension(), pt.Count())
	copy(out.encoders, pt.Encoders())
	e.sample(func(s *core.Sampler) {
		for i, m := range pt.Values() {
			core.EncryptLWE(out.slot(i), key.coeffs, m, noise, s)
		}
	})
	return out, nil
}

// DecryptLWECiphertextVector returns the phases of in, tagged with the
// encoders of in.
func (e *Engine) DecryptLWECiphertextVector(key *LWESecretKey, in *LWECiphertextVector) (*tfhe.PlaintextVector, error) {
	if key.LWEDimension() != in.LWEDimension() {
		return nil, tfhe.OpError(tfhe.OpDecrypt, fmt.Errorf("%w: key %d, ciphertexts %d",
			tfhe.ErrLWEDimensionMismatch, key.LWEDimension(), in.LWEDimension()))
	}
	values := make([]uint64, in.Count())
	for i := range values {
		values[i] = core.LWEPhase(in.slot(i), key.coeffs)
	}
	return tfhe.NewEncodedPlaintextVector(values, in.encoders)
}

// EncryptBooleanLWECiphertextVector encrypts bits with tfhe.BooleanEncoder,
// the encoding boolean gates consume and produce.
func (e *Engine) EncryptBooleanLWECiphertextVector(key *LWESecretKey, bits []bool, noise float64) (*LWECiphertextVector, error) {
	enc := tfhe.BooleanEncoder()
	values := make([]float64, len(bits))
	for i, b := range bits {
		if b {
			values[i] = 1
		}
	}
	pt, err := enc.Encode(values)
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpEncrypt, err)
	}
	return e.EncryptLWECiphertextVector(key, pt, noise)
}

// DecryptBooleanLWECiphertextVector decrypts ciphertexts encrypting true as
// Q/4 and false as 0, whatever their encoders.
func (e *Engine) DecryptBooleanLWECiphertextVector(key *LWESecretKey, in *LWECiphertextVector) ([]bool, error) {
	pt, err := e.DecryptLWECiphertextVector(key, in)
	if err != nil {
		return nil, err
	}
	enc := tfhe.BooleanEncoder()
	bits := make([]bool, pt.Count())
	for i, v := range pt.Values() {
		bits[i] = enc.DecodeOne(v) == 1
	}
	return bits, nil
}

// EncryptLWECiphertext encrypts a single residue.
func (e *Engine) EncryptLWECiphertext(key *LWESecretKey, m uint64, encoder *tfhe.Encoder, noise float64) *LWECiphertext {
	out := NewLWECiphertext(key.LWEDimension())
	out.encoder = encoder
	e.sample(func(s *core.Sampler) { core.EncryptLWE(out.data, key.coeffs, m, noise, s) })
	return out
}

// DecryptLWECiphertext returns the phase of ct.
func (e *Engine) DecryptLWECiphertext(key *LWESecretKey, ct *LWECiphertext) (uint64, error) {
	if key.LWEDimension() != ct.LWEDimension() {
		return 0, tfhe.OpError(tfhe.OpDecrypt, fmt.Errorf("%w: key %d, ciphertext %d",
			tfhe.ErrLWEDimensionMismatch, key.LWEDimension(), ct.LWEDimension()))
	}
	return core.LWEPhase(ct.data, key.coeffs), nil
}

// TrivialEncryptLWECiphertextVector returns noiseless encryptions of pt
// with a zero mask, decryptable under any key of dimension dim.
func (e *Engine) TrivialEncryptLWECiphertextVector(dim tfhe.LWEDimension, pt *tfhe.PlaintextVector) *LWECiphertextVector {
	out := NewLWECiphertextVector(dim, pt.Count())
	copy(out.encoders, pt.Encoders())
	for i, m := range pt.Values() {
		core.TrivialLWE(out.slot(i), m)
	}
	return out
}

// EncryptGLWECiphertext encrypts the polynomial whose coefficients are the
// values of pt.
func (e *Engine) EncryptGLWECiphertext(key *GLWESecretKey, pt *tfhe.PlaintextVector, noise float64) (*GLWECiphertext, error) {
	if pt.Count() != int(key.PolynomialSize()) {
		return nil, tfhe.OpError(tfhe.OpEncrypt, fmt.Errorf("%w: %d plaintexts, polynomial size %d",
			tfhe.ErrPlaintextCountMismatch, pt.Count(), key.PolynomialSize()))
	}
	out := NewGLWECiphertext(key.GLWEDimension(), key.PolynomialSize())
	e.sample(func(s *core.Sampler) { core.EncryptGLWE(out.data, key.key, pt.Values(), noise, s) })
	return out, nil
}

// DecryptGLWECiphertext returns the phase polynomial of ct.
func (e *Engine) DecryptGLWECiphertext(key *GLWESecretKey, ct *GLWECiphertext) (*tfhe.PlaintextVector, error) {
	if ct.GLWEDimension() != key.GLWEDimension() || ct.PolynomialSize() != key.PolynomialSize() {
		return nil, tfhe.OpError(tfhe.OpDecrypt, fmt.Errorf("%w: key (%d, %d), ciphertext (%d, %d)", tfhe.ErrKeyMismatch,
			key.GLWEDimension(), key.PolynomialSize(), ct.GLWEDimension(), ct.PolynomialSize()))
	}
	phase := make([]uint64, ct.n)
	core.GLWEPhase(phase, ct.data, key.key)
	return tfhe.NewPlaintextVector(phase), nil
}

// TrivialEncryptGLWECiphertextVector returns pt.Count()/N noiseless GLWE
// ciphertexts, polynomial i holding values [i*N, (i+1)*N) of pt. Bootstrap
// accumulators are built this way.
func (e *Engine) TrivialEncryptGLWECiphertextVector(k tfhe.GLWEDimension, n tfhe.PolynomialSize, pt *tfhe.PlaintextVector) (*GLWECiphertextVector, error) {
	if n <= 0 || pt.Count() == 0 || pt.Count()%int(n) != 0 {
		return nil, tfhe.OpError(tfhe.OpEncrypt, fmt.Errorf("%w: %d plaintexts for polynomial size %d",
			tfhe.ErrPlaintextCountMismatch, pt.Count(), n))
	}
	count := pt.Count() / int(n)
	out := NewGLWECiphertextVector(k, n, count)
	for i := 0; i < count; i++ {
		core.TrivialGLWE(out.slot(i), int(k), int(n), pt.Values()[i*int(n):(i+1)*int(n)])
	}
	return out, nil
}
