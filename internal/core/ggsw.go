// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// A GGSW ciphertext of a scalar m is Level*(K+1) GLWE rows laid out as
// [level j][row i][(K+1)*N]. Row (j, i) encrypts zero with m*g_j added to
// polynomial i, so its phase is -m*g_j*S_i for i < K and m*g_j for i = K.

// GGSWSize returns the number of residues of one GGSW ciphertext.
func GGSWSize(k, n, level int) int {
	return level * (k + 1) * (k + 1) * n
}

// EncryptGGSW writes an encryption of the scalar m into ggsw.
func EncryptGGSW(ggsw []uint64, key *GLWEKey, m uint64, d Decomposer, stddev float64, s *Sampler) {
	k, n := key.K, key.N
	glweSize := (k + 1) * n
	for j := 0; j < d.Level; j++ {
		gm := MulMod(m, d.Gadget(j))
		for i := 0; i <= k; i++ {
			row := ggsw[(j*(k+1)+i)*glweSize : (j*(k+1)+i+1)*glweSize]
			EncryptGLWE(row, key, nil, stddev, s)
			row[i*n] = AddMod(row[i*n], gm)
		}
	}
}

// GGSWToFourier maps every polynomial of a GGSW ciphertext (or of a
// concatenation of them) to the frequency domain.
func (r *Ring) GGSWToFourier(dst, src []uint64) {
	n := r.N
	for off := 0; off < len(src); off += n {
		r.ToFourier(dst[off:off+n], src[off:off+n])
	}
}

// GGSWFromFourier is the inverse of GGSWToFourier.
func (r *Ring) GGSWFromFourier(dst, src []uint64) {
	n := r.N
	for off := 0; off < len(src); off += n {
		r.FromFourier(dst[off:off+n], src[off:off+n])
	}
}

// Workspace holds the scratch buffers of external products for one
// (K, N, Level) shape. It is not safe for concurrent use.
type Workspace struct {
	K, N int
	ring *Ring
	dec  Decomposer

	digits [][]uint64
	acc    []uint64
	diff   []uint64
	rot    []uint64
}

// NewWorkspace allocates the scratch of external products with d.
func NewWorkspace(r *Ring, k int, d Decomposer) *Workspace {
	n := r.N
	w := &Workspace{
		K:      k,
		N:      n,
		ring:   r,
		dec:    d,
		digits: make([][]uint64, d.Level),
		acc:    make([]uint64, (k+1)*n),
		diff:   make([]uint64, (k+1)*n),
		rot:    make([]uint64, (k+1)*n),
	}
	for j := range w.digits {
		w.digits[j] = make([]uint64, n)
	}
	return w
}

// ExternalProduct sets out = ggswF ⊡ in, where ggswF is in the frequency
// domain. out and in may alias.
func (w *Workspace) ExternalProduct(out, ggswF, in []uint64) {
	k, n, r := w.K, w.N, w.ring
	glweSize := (k + 1) * n
	clear(w.acc)
	for i := 0; i <= k; i++ {
		w.dec.DecomposePoly(in[i*n:(i+1)*n], w.digits)
		for j, digit := range w.digits {
			r.NTT(digit)
			row := ggswF[(j*(k+1)+i)*glweSize : (j*(k+1)+i+1)*glweSize]
			for c := 0; c <= k; c++ {
				r.MulAccFourier(w.acc[c*n:(c+1)*n], digit, row[c*n:(c+1)*n])
			}
		}
	}
	for c := 0; c <= k; c++ {
		p := w.acc[c*n : (c+1)*n]
		r.INTT(p)
		ReduceSlice(p)
	}
	copy(out, w.acc)
}

// CMux sets ct0 = ct0 + ggswF ⊡ (ct1 - ct0): ct1 when the GGSW encrypts one,
// ct0 when it encrypts zero.
func (w *Workspace) CMux(ct0, ct1, ggswF []uint64) {
	SubSlice(w.diff, ct1, ct0)
	w.ExternalProduct(w.diff, ggswF, w.diff)
	AddSlice(ct0, ct0, w.diff)
}
