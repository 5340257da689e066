// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// GLWEKey is a binary GLWE secret key of K polynomials of size N. The
// flattened coefficients double as the LWE key of dimension K*N that sample
// extraction produces.
type GLWEKey struct {
	K, N int
	Poly []uint64

	ring    *Ring
	fourier []uint64
}

// NewGLWEKey samples a fresh binary key.
func NewGLWEKey(k, n int, s *Sampler) (*GLWEKey, error) {
	p := make([]uint64, k*n)
	s.BinarySlice(p)
	return GLWEKeyFrom(k, n, p)
}

// GLWEKeyFrom wraps existing binary coefficients.
func GLWEKeyFrom(k, n int, coeffs []uint64) (*GLWEKey, error) {
	r, err := RingFor(n)
	if err != nil {
		return nil, err
	}
	key := &GLWEKey{K: k, N: n, Poly: coeffs, ring: r, fourier: make([]uint64, k*n)}
	for i := 0; i < k; i++ {
		r.ToFourier(key.fourier[i*n:(i+1)*n], coeffs[i*n:(i+1)*n])
	}
	return key, nil
}

// Ring returns the ring of the key's polynomial size.
func (key *GLWEKey) Ring() *Ring { return key.ring }

// Size is the number of residues of one ciphertext under this key.
func (key *GLWEKey) Size() int { return (key.K + 1) * key.N }

func (key *GLWEKey) component(i int) []uint64 {
	return key.fourier[i*key.N : (i+1)*key.N]
}

// EncryptGLWE writes an encryption of the polynomial msg into ct. A nil msg
// encrypts zero.
func EncryptGLWE(ct []uint64, key *GLWEKey, msg []uint64, stddev float64, s *Sampler) {
	k, n := key.K, key.N
	body := ct[k*n : (k+1)*n]
	if msg != nil {
		copy(body, msg)
	} else {
		clear(body)
	}
	s.AddGaussian(body, stddev)
	s.UniformSlice(ct[:k*n])
	scratch := make([]uint64, 2*n)
	for i := 0; i < k; i++ {
		key.ring.MulAdd(body, ct[i*n:(i+1)*n], key.component(i), scratch)
	}
}

// TrivialGLWE writes (0, ..., 0, msg).
func TrivialGLWE(ct []uint64, k, n int, msg []uint64) {
	clear(ct[:k*n])
	copy(ct[k*n:], msg)
}

// GLWEPhase writes B - sum_i A_i*S_i into dst.
func GLWEPhase(dst, ct []uint64, key *GLWEKey) {
	k, n := key.K, key.N
	acc := make([]uint64, n)
	scratch := make([]uint64, 2*n)
	for i := 0; i < k; i++ {
		key.ring.MulAdd(acc, ct[i*n:(i+1)*n], key.component(i), scratch)
	}
	SubSlice(dst, ct[k*n:(k+1)*n], acc)
}

// SampleExtract writes into out (k*n+1 residues) the LWE encryption, under
// the flattened key, of coefficient idx of the GLWE ciphertext ct.
func SampleExtract(out, ct []uint64, k, n, idx int) {
	for i := 0; i < k; i++ {
		a := ct[i*n : (i+1)*n]
		dst := out[i*n : (i+1)*n]
		for t := 0; t <= idx; t++ {
			dst[t] = a[idx-t]
		}
		for t := idx + 1; t < n; t++ {
			dst[t] = NegMod(a[n+idx-t])
		}
	}
	out[k*n] = ct[k*n+idx]
}

// MulMonomialGLWE sets dst = X^e * src on every polynomial of a GLWE
// ciphertext.
func (r *Ring) MulMonomialGLWE(dst, src []uint64, e int) {
	n := r.N
	for off := 0; off < len(src); off += n {
		r.MulMonomial(dst[off:off+n], src[off:off+n], e)
	}
}

// ConstantTestVector returns the test polynomial whose every coefficient is v.
// Blind rotation by a phase in [0, Q/2) yields v in coefficient 0, and -v
// otherwise.
func ConstantTestVector(n int, v uint64) []uint64 {
	tv := make([]uint64, n)
	for i := range tv {
		tv[i] = v
	}
	return tv
}
