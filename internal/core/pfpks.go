// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// A private functional packing key switch key for the polynomial P maps an
// LWE ciphertext of phase m under an LWE key of dimension nIn to a GLWE
// ciphertext of phase P*m. It holds (nIn+1)*Level GLWE ciphertexts laid out as
// [input coefficient i][level j][(K+1)*N]: entry i < nIn encrypts
// -P*s_i*g_j and entry nIn encrypts P*g_j.

// PFPKSKSize returns the number of residues of one packing key.
func PFPKSKSize(nIn, k, n, level int) int {
	return (nIn + 1) * level * (k + 1) * n
}

// GeneratePFPKSK fills key for the polynomial p.
func GeneratePFPKSK(key, inKey []uint64, glweKey *GLWEKey, p []uint64, d Decomposer, stddev float64, s *Sampler) {
	n := glweKey.N
	glweSize := glweKey.Size()
	msg := make([]uint64, n)
	for i := 0; i <= len(inKey); i++ {
		for j := 0; j < d.Level; j++ {
			g := d.Gadget(j)
			switch {
			case i == len(inKey):
				ScalarMulSlice(msg, p, g)
			case inKey[i] == 0:
				clear(msg)
			default:
				ScalarMulSlice(msg, p, NegMod(g))
			}
			off := (i*d.Level + j) * glweSize
			EncryptGLWE(key[off:off+glweSize], glweKey, msg, stddev, s)
		}
	}
}

// PrivateFunctionalKeyswitch sets out = sum_i sum_j dec_j(in_i) * key[i][j].
func PrivateFunctionalKeyswitch(out, in, key []uint64, d Decomposer) {
	glweSize := len(out)
	clear(out)
	digits := make([]uint64, d.Level)
	for i, c := range in {
		if c == 0 {
			continue
		}
		d.Decompose(c, digits)
		for j, digit := range digits {
			if digit == 0 {
				continue
			}
			off := (i*d.Level + j) * glweSize
			row := key[off : off+glweSize]
			for t := range out {
				out[t] = AddMod(out[t], MulMod(digit, row[t]))
			}
		}
	}
}

// PackLWE packs the LWE ciphertexts ins into one GLWE ciphertext whose phase
// is sum_t X^t * P * m_t. len(ins) must not exceed N.
func PackLWE(r *Ring, out []uint64, ins [][]uint64, key []uint64, d Decomposer) {
	PackLWEAt(r, out, ins, key, d, 0)
}

// PackLWEAt is PackLWE with ins[t] on coefficient offset+t. Partial packings
// of disjoint ranges add up to the packing of the whole range.
func PackLWEAt(r *Ring, out []uint64, ins [][]uint64, key []uint64, d Decomposer, offset int) {
	tmp := make([]uint64, len(out))
	rot := make([]uint64, len(out))
	clear(out)
	for t, in := range ins {
		PrivateFunctionalKeyswitch(tmp, in, key, d)
		r.MulMonomialGLWE(rot, tmp, offset+t)
		AddSlice(out, out, rot)
	}
}
