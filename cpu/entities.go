// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// Every entity of this package lives in host memory and reports
// tfhe.BackendCPU. Data accessors return the backing slices, laid out mask
// first, body last.

type destroyer interface {
	destroy()
}

// LWESecretKey is a binary LWE secret key.
type LWESecretKey struct {
	coeffs []uint64
}

func (k *LWESecretKey) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (k *LWESecretKey) LWEDimension() tfhe.LWEDimension { return tfhe.LWEDimension(len(k.coeffs)) }

func (k *LWESecretKey) destroy() {
	clear(k.coeffs)
	k.coeffs = nil
}

// GLWESecretKey is a binary GLWE secret key.
type GLWESecretKey struct {
	key *core.GLWEKey
}

func (k *GLWESecretKey) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (k *GLWESecretKey) GLWEDimension() tfhe.GLWEDimension { return tfhe.GLWEDimension(k.key.K) }

func (k *GLWESecretKey) PolynomialSize() tfhe.PolynomialSize { return tfhe.PolynomialSize(k.key.N) }

// ExtractedLWESecretKey returns the LWE key of dimension K*N under which
// bootstrap outputs are encrypted. It shares the coefficients of k.
func (k *GLWESecretKey) ExtractedLWESecretKey() *LWESecretKey {
	return &LWESecretKey{coeffs: k.key.Poly}
}

func (k *GLWESecretKey) destroy() {
	clear(k.key.Poly)
}

// LWECiphertext is a single LWE ciphertext with an optional encoder.
type LWECiphertext struct {
	data    []uint64
	encoder *tfhe.Encoder
}

// NewLWECiphertext returns a zero ciphertext of dimension dim.
func NewLWECiphertext(dim tfhe.LWEDimension) *LWECiphertext {
	return &LWECiphertext{data: make([]uint64, dim.Size())}
}

// LWECiphertextFromData wraps the dim+1 residues of a ciphertext. encoder may
// be nil.
func LWECiphertextFromData(data []uint64, encoder *tfhe.Encoder) (*LWECiphertext, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("%w: %d residues", tfhe.ErrLWEDimensionMismatch, len(data))
	}
	return &LWECiphertext{data: data, encoder: encoder}, nil
}

func (c *LWECiphertext) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (c *LWECiphertext) LWEDimension() tfhe.LWEDimension { return tfhe.LWEDimension(len(c.data) - 1) }

// Data returns the n+1 residues of the ciphertext.
func (c *LWECiphertext) Data() []uint64 { return c.data }

// Encoder returns the encoder of the message, or nil.
func (c *LWECiphertext) Encoder() *tfhe.Encoder { return c.encoder }

// LWECiphertextVector is a batch of LWE ciphertexts of one dimension, stored
// contiguously.
type LWECiphertextVector struct {
	dim      tfhe.LWEDimension
	count    int
	data     []uint64
	encoders []*tfhe.Encoder
}

// NewLWECiphertextVector returns count zero ciphertexts of dimension dim.
func NewLWECiphertextVector(dim tfhe.LWEDimension, count int) *LWECiphertextVector {
	return &LWECiphertextVector{
		dim:      dim,
		count:    count,
		data:     make([]uint64, dim.Size()*count),
		encoders: make([]*tfhe.Encoder, count),
	}
}

// LWECiphertextVectorFromData wraps data, which must hold a whole number of
// ciphertexts of dimension dim. encoders may be nil.
func LWECiphertextVectorFromData(dim tfhe.LWEDimension, data []uint64, encoders []*tfhe.Encoder) (*LWECiphertextVector, error) {
	if dim <= 0 || len(data)%dim.Size() != 0 {
		return nil, fmt.Errorf("%w: %d residues for dimension %d", tfhe.ErrLWEDimensionMismatch, len(data), dim)
	}
	count := len(data) / dim.Size()
	if encoders == nil {
		encoders = make([]*tfhe.Encoder, count)
	}
	if len(encoders) != count {
		return nil, fmt.Errorf("%w: %d encoders for %d ciphertexts", tfhe.ErrCiphertextCountMismatch, len(encoders), count)
	}
	return &LWECiphertextVector{dim: dim, count: count, data: data, encoders: encoders}, nil
}

func (v *LWECiphertextVector) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (v *LWECiphertextVector) LWEDimension() tfhe.LWEDimension { return v.dim }

func (v *LWECiphertextVector) Count() int { return v.count }

// Data returns the residues of every ciphertext.
func (v *LWECiphertextVector) Data() []uint64 { return v.data }

// Encoders returns the per-slot encoders.
func (v *LWECiphertextVector) Encoders() []*tfhe.Encoder { return v.encoders }

func (v *LWECiphertextVector) slot(i int) []uint64 {
	size := v.dim.Size()
	return v.data[i*size : (i+1)*size]
}

func (v *LWECiphertextVector) destroy() { v.data, v.encoders = nil, nil }

// GLWECiphertext is a single GLWE ciphertext.
type GLWECiphertext struct {
	k    tfhe.GLWEDimension
	n    tfhe.PolynomialSize
	data []uint64
}

// NewGLWECiphertext returns a zero ciphertext.
func NewGLWECiphertext(k tfhe.GLWEDimension, n tfhe.PolynomialSize) *GLWECiphertext {
	return &GLWECiphertext{k: k, n: n, data: make([]uint64, k.Size()*int(n))}
}

// GLWECiphertextFromData wraps the (K+1)*N residues of a ciphertext.
func GLWECiphertextFromData(k tfhe.GLWEDimension, n tfhe.PolynomialSize, data []uint64) (*GLWECiphertext, error) {
	if size := k.Size() * int(n); size <= 0 || len(data) != size {
		return nil, fmt.Errorf("%w: %d residues for glwe dimension %d and polynomial size %d",
			tfhe.ErrInvalidParameters, len(data), k, n)
	}
	return &GLWECiphertext{k: k, n: n, data: data}, nil
}

func (c *GLWECiphertext) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (c *GLWECiphertext) GLWEDimension() tfhe.GLWEDimension { return c.k }

func (c *GLWECiphertext) PolynomialSize() tfhe.PolynomialSize { return c.n }

// Data returns the (K+1)*N residues of the ciphertext.
func (c *GLWECiphertext) Data() []uint64 { return c.data }

// GLWECiphertextVector is a batch of GLWE ciphertexts, stored contiguously.
type GLWECiphertextVector struct {
	k     tfhe.GLWEDimension
	n     tfhe.PolynomialSize
	count int
	data  []uint64
}

// NewGLWECiphertextVector returns count zero ciphertexts.
func NewGLWECiphertextVector(k tfhe.GLWEDimension, n tfhe.PolynomialSize, count int) *GLWECiphertextVector {
	return &GLWECiphertextVector{k: k, n: n, count: count, data: make([]uint64, k.Size()*int(n)*count)}
}

// GLWECiphertextVectorFromData wraps data holding whole ciphertexts.
func GLWECiphertextVectorFromData(k tfhe.GLWEDimension, n tfhe.PolynomialSize, data []uint64) (*GLWECiphertextVector, error) {
	size := k.Size() * int(n)
	if size <= 0 || len(data)%size != 0 {
		return nil, fmt.Errorf("%w: %d residues for glwe dimension %d and polynomial size %d",
			tfhe.ErrAccumulatorPolynomialSizeMismatch, len(data), k, n)
	}
	return &GLWECiphertextVector{k: k, n: n, count: len(data) / size, data: data}, nil
}

func (v *GLWECiphertextVector) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (v *GLWECiphertextVector) GLWEDimension() tfhe.GLWEDimension { return v.k }

func (v *GLWECiphertextVector) PolynomialSize() tfhe.PolynomialSize { return v.n }

func (v *GLWECiphertextVector) Count() int { return v.count }

// Data returns the residues of every ciphertext.
func (v *GLWECiphertextVector) Data() []uint64 { return v.data }

func (v *GLWECiphertextVector) slot(i int) []uint64 {
	size := v.k.Size() * int(v.n)
	return v.data[i*size : (i+1)*size]
}

func (v *GLWECiphertextVector) destroy() { v.data = nil }

// bootstrapShape is shared by both bootstrap key domains.
type bootstrapShape struct {
	k       tfhe.GLWEDimension
	n       tfhe.PolynomialSize
	in      tfhe.LWEDimension
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
}

func (s bootstrapShape) Backend() tfhe.Backend                                 { return tfhe.BackendCPU }
func (s bootstrapShape) GLWEDimension() tfhe.GLWEDimension                     { return s.k }
func (s bootstrapShape) PolynomialSize() tfhe.PolynomialSize                   { return s.n }
func (s bootstrapShape) InputLWEDimension() tfhe.LWEDimension                  { return s.in }
func (s bootstrapShape) OutputLWEDimension() tfhe.LWEDimension                 { return s.k.ToLWEDimension(s.n) }
func (s bootstrapShape) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return s.baseLog }
func (s bootstrapShape) DecompositionLevelCount() tfhe.DecompositionLevelCount { return s.level }

func (s bootstrapShape) size() int {
	return int(s.in) * core.GGSWSize(int(s.k), int(s.n), int(s.level))
}

func (s bootstrapShape) decomposer() core.Decomposer {
	return core.MustDecomposer(int(s.baseLog), int(s.level))
}

// LWEBootstrapKey is a bootstrap key in the standard domain: one GGSW
// encryption per input key bit.
type LWEBootstrapKey struct {
	bootstrapShape
	data []uint64
}

// LWEBootstrapKeyFromData wraps a standard-domain key.
func LWEBootstrapKeyFromData(k tfhe.GLWEDimension, n tfhe.PolynomialSize, in tfhe.LWEDimension,
	level tfhe.DecompositionLevelCount, baseLog tfhe.DecompositionBaseLog, data []uint64,
) (*LWEBootstrapKey, error) {
	shape := bootstrapShape{k: k, n: n, in: in, level: level, baseLog: baseLog}
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, err
	}
	if len(data) != shape.size() {
		return nil, fmt.Errorf("%w: %d residues, want %d", tfhe.ErrKeyMismatch, len(data), shape.size())
	}
	return &LWEBootstrapKey{bootstrapShape: shape, data: data}, nil
}

// Data returns the GGSW ciphertexts, key bit by key bit.
func (k *LWEBootstrapKey) Data() []uint64 { return k.data }

func (k *LWEBootstrapKey) destroy() { k.data = nil }

// FourierLWEBootstrapKey is a bootstrap key in the frequency domain, the
// form bootstraps consume.
type FourierLWEBootstrapKey struct {
	bootstrapShape
	data []uint64
}

// Data returns the frequency-domain GGSW ciphertexts.
func (k *FourierLWEBootstrapKey) Data() []uint64 { return k.data }

func (k *FourierLWEBootstrapKey) destroy() { k.data = nil }

// LWEKeyswitchKey switches ciphertexts from an input LWE key to an output
// LWE key. Its data is laid out [input coefficient][level][output size].
type LWEKeyswitchKey struct {
	in, out tfhe.LWEDimension
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
	data    []uint64
}

// LWEKeyswitchKeyFromData wraps key switching key data.
func LWEKeyswitchKeyFromData(in, out tfhe.LWEDimension, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, data []uint64,
) (*LWEKeyswitchKey, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, err
	}
	if want := int(in) * int(level) * out.Size(); len(data) != want {
		return nil, fmt.Errorf("%w: %d residues, want %d", tfhe.ErrKeyMismatch, len(data), want)
	}
	return &LWEKeyswitchKey{in: in, out: out, level: level, baseLog: baseLog, data: data}, nil
}

func (k *LWEKeyswitchKey) Backend() tfhe.Backend                                 { return tfhe.BackendCPU }
func (k *LWEKeyswitchKey) InputLWEDimension() tfhe.LWEDimension                  { return k.in }
func (k *LWEKeyswitchKey) OutputLWEDimension() tfhe.LWEDimension                 { return k.out }
func (k *LWEKeyswitchKey) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return k.baseLog }
func (k *LWEKeyswitchKey) DecompositionLevelCount() tfhe.DecompositionLevelCount { return k.level }

// Data returns the key switching key residues.
func (k *LWEKeyswitchKey) Data() []uint64 { return k.data }

func (k *LWEKeyswitchKey) decomposer() core.Decomposer {
	return core.MustDecomposer(int(k.baseLog), int(k.level))
}

func (k *LWEKeyswitchKey) destroy() { k.data = nil }

// packingShape describes packing key switch keys.
type packingShape struct {
	in      tfhe.LWEDimension
	k       tfhe.GLWEDimension
	n       tfhe.PolynomialSize
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
}

func (s packingShape) Backend() tfhe.Backend                                 { return tfhe.BackendCPU }
func (s packingShape) InputLWEDimension() tfhe.LWEDimension                  { return s.in }
func (s packingShape) OutputGLWEDimension() tfhe.GLWEDimension               { return s.k }
func (s packingShape) OutputPolynomialSize() tfhe.PolynomialSize             { return s.n }
func (s packingShape) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return s.baseLog }
func (s packingShape) DecompositionLevelCount() tfhe.DecompositionLevelCount { return s.level }

func (s packingShape) size() int {
	return core.PFPKSKSize(int(s.in), int(s.k), int(s.n), int(s.level))
}

func (s packingShape) decomposer() core.Decomposer {
	return core.MustDecomposer(int(s.baseLog), int(s.level))
}

// LWEPackingKeyswitchKey is one private functional packing key switch key.
type LWEPackingKeyswitchKey struct {
	packingShape
	data []uint64
}

// Data returns the key residues.
func (k *LWEPackingKeyswitchKey) Data() []uint64 { return k.data }

func (k *LWEPackingKeyswitchKey) destroy() { k.data = nil }

// CircuitBootstrapKeys holds the GLWEDimension+1 packing keys of the circuit
// bootstrap, from the extracted LWE key to the GLWE key: key c multiplies by
// -S_c for c < K, the last one by 1.
type CircuitBootstrapKeys struct {
	packingShape
	keys [][]uint64
}

// CircuitBootstrapKeysFromData wraps K+1 packing keys.
func CircuitBootstrapKeysFromData(k tfhe.GLWEDimension, n tfhe.PolynomialSize, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys [][]uint64,
) (*CircuitBootstrapKeys, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, err
	}
	shape := packingShape{in: k.ToLWEDimension(n), k: k, n: n, level: level, baseLog: baseLog}
	if len(keys) != k.Size() {
		return nil, fmt.Errorf("%w: %d packing keys, want %d", tfhe.ErrKeyMismatch, len(keys), k.Size())
	}
	for i, key := range keys {
		if len(key) != shape.size() {
			return nil, fmt.Errorf("%w: packing key %d has %d residues, want %d", tfhe.ErrKeyMismatch, i, len(key), shape.size())
		}
	}
	return &CircuitBootstrapKeys{packingShape: shape, keys: keys}, nil
}

func (k *CircuitBootstrapKeys) Count() int { return len(k.keys) }

// Keys returns the packing keys.
func (k *CircuitBootstrapKeys) Keys() [][]uint64 { return k.keys }

func (k *CircuitBootstrapKeys) destroy() { k.keys = nil }
