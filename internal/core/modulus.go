// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package core holds the host arithmetic shared by every backend: torus
// arithmetic modulo Q, gadget decomposition, LWE/GLWE/GGSW encryption,
// key switching, blind rotation, private functional packing and the circuit
// bootstrap. Slices are flat and laid out mask first, body last.
package core

import (
	"math"
	"math/bits"
)

const (
	// Q is the ciphertext modulus: the largest prime below 2^50 with
	// Q = 1 mod 2^15, so every polynomial size up to 2^14 has a negacyclic NTT.
	Q uint64 = 0x3ffffffdf0001

	// LogQ is the bit width of Q.
	LogQ = 50

	// MaxLogN is the largest ring degree supported by Q.
	MaxLogN = 14
)

// AddMod returns a + b mod Q for a, b < Q.
func AddMod(a, b uint64) uint64 {
	s := a + b
	if s >= Q {
		s -= Q
	}
	return s
}

// SubMod returns a - b mod Q for a, b < Q.
func SubMod(a, b uint64) uint64 {
	if a >= b {
		return a - b
	}
	return a + Q - b
}

// NegMod returns -a mod Q for a < Q.
func NegMod(a uint64) uint64 {
	if a == 0 {
		return 0
	}
	return Q - a
}

// MulMod returns a * b mod Q for a, b < Q.
func MulMod(a, b uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	_, r := bits.Div64(hi, lo, Q)
	return r
}

// FromSigned maps a signed integer to its residue mod Q.
func FromSigned(x int64) uint64 {
	r := x % int64(Q)
	if r < 0 {
		r += int64(Q)
	}
	return uint64(r)
}

// ToSigned returns the centered representative of x in (-Q/2, Q/2].
func ToSigned(x uint64) int64 {
	if x > Q/2 {
		return int64(x) - int64(Q)
	}
	return int64(x)
}

// FromTorus maps a real number, read modulo 1, to round(t*Q) mod Q.
func FromTorus(t float64) uint64 {
	t -= math.Floor(t)
	v := math.Round(t * float64(Q))
	if v >= float64(Q) {
		return 0
	}
	return uint64(v)
}

// ToTorus maps a residue to [0, 1).
func ToTorus(x uint64) float64 {
	return float64(x) / float64(Q)
}

// Scale returns round(Q / 2^logDen).
func Scale(logDen int) uint64 {
	if logDen <= 0 {
		return 0
	}
	if logDen >= 64 {
		return 0
	}
	return (Q + (uint64(1) << (logDen - 1))) >> logDen
}

// ModSwitch returns round(x * twoN / Q) mod twoN.
func ModSwitch(x uint64, twoN uint64) uint64 {
	hi, lo := bits.Mul64(x, twoN)
	var carry uint64
	lo, carry = bits.Add64(lo, Q/2, 0)
	hi += carry
	quo, _ := bits.Div64(hi, lo, Q)
	return quo % twoN
}

// ReduceSlice maps every coefficient of p into [0, Q).
func ReduceSlice(p []uint64) {
	for i, c := range p {
		if c >= Q {
			p[i] = c % Q
		}
	}
}

// AddSlice sets dst = a + b coefficient-wise.
func AddSlice(dst, a, b []uint64) {
	for i := range dst {
		dst[i] = AddMod(a[i], b[i])
	}
}

// SubSlice sets dst = a - b coefficient-wise.
func SubSlice(dst, a, b []uint64) {
	for i := range dst {
		dst[i] = SubMod(a[i], b[i])
	}
}

// NegSlice sets dst = -a coefficient-wise.
func NegSlice(dst, a []uint64) {
	for i := range dst {
		dst[i] = NegMod(a[i])
	}
}

// ScalarMulSlice sets dst = c * a coefficient-wise.
func ScalarMulSlice(dst, a []uint64, c uint64) {
	for i := range dst {
		dst[i] = MulMod(a[i], c)
	}
}
