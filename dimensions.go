// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// LWEDimension is the number of mask coefficients of an LWE ciphertext.
type LWEDimension int

// Size is the number of residues of one ciphertext, body included.
func (d LWEDimension) Size() int { return int(d) + 1 }

// GLWEDimension is the number of mask polynomials of a GLWE ciphertext.
type GLWEDimension int

// Size is GLWEDimension + 1.
func (d GLWEDimension) Size() int { return int(d) + 1 }

// ToLWEDimension is the dimension of ciphertexts sample-extracted from GLWE
// ciphertexts of this dimension and polynomial size n.
func (d GLWEDimension) ToLWEDimension(n PolynomialSize) LWEDimension {
	return LWEDimension(int(d) * int(n))
}

// PolynomialSize is the degree N of the ring Z_Q[X]/(X^N+1).
type PolynomialSize int

// Log2 returns log2(N) for powers of two.
func (n PolynomialSize) Log2() int {
	l := 0
	for v := int(n); v > 1; v >>= 1 {
		l++
	}
	return l
}

// DecompositionLevelCount is the number of levels of a gadget decomposition.
type DecompositionLevelCount int

// DecompositionBaseLog is log2 of the base of a gadget decomposition.
type DecompositionBaseLog int
