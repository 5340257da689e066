// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// A bootstrap key is n GGSW encryptions of the LWE key bits under the GLWE
// key, concatenated.

// GenerateBootstrapKey fills bsk with GGSW encryptions of every bit of lweKey.
func GenerateBootstrapKey(bsk, lweKey []uint64, glweKey *GLWEKey, d Decomposer, stddev float64, s *Sampler) {
	size := GGSWSize(glweKey.K, glweKey.N, d.Level)
	for i, bit := range lweKey {
		EncryptGGSW(bsk[i*size:(i+1)*size], glweKey, bit, d, stddev, s)
	}
}

// BlindRotate rotates the accumulator acc ((K+1)*N residues, modified in
// place) by X^-(b - <a, s>) after switching the LWE ciphertext in to
// modulus 2N. bskF is the bootstrap key in the frequency domain.
func (w *Workspace) BlindRotate(acc, in, bskF []uint64) {
	k, n, r := w.K, w.N, w.ring
	twoN := uint64(2 * n)
	dim := len(in) - 1
	size := GGSWSize(k, n, w.dec.Level)

	if b := int(ModSwitch(in[dim], twoN)); b != 0 {
		r.MulMonomialGLWE(w.rot, acc, -b)
		copy(acc, w.rot)
	}
	for i := 0; i < dim; i++ {
		a := int(ModSwitch(in[i], twoN))
		if a == 0 {
			continue
		}
		r.MulMonomialGLWE(w.rot, acc, a)
		w.CMux(acc, w.rot, bskF[i*size:(i+1)*size])
	}
}

// Bootstrap blind-rotates a copy of the accumulator and extracts its
// constant coefficient into out (K*N+1 residues).
func (w *Workspace) Bootstrap(out, in, acc, bskF []uint64) {
	buf := make([]uint64, len(acc))
	copy(buf, acc)
	w.BlindRotate(buf, in, bskF)
	SampleExtract(out, buf, w.K, w.N, 0)
}

// BootstrapKeyToFourier converts a whole standard-domain bootstrap key.
func BootstrapKeyToFourier(dst, src []uint64, n int) {
	MustRing(n).GGSWToFourier(dst, src)
}

// BootstrapKeyFromFourier is the inverse of BootstrapKeyToFourier.
func BootstrapKeyFromFourier(dst, src []uint64, n int) {
	MustRing(n).GGSWFromFourier(dst, src)
}
