// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// An LWE ciphertext of dimension n is n+1 residues (a_0..a_{n-1}, b) with
// b = <a, s> + m + e. Secret keys are binary.

// LWEPhase returns b - <a, s>.
func LWEPhase(ct, key []uint64) uint64 {
	n := len(key)
	var dot uint64
	for i := 0; i < n; i++ {
		if key[i] != 0 {
			dot = AddMod(dot, ct[i])
		}
	}
	return SubMod(ct[n], dot)
}

// EncryptLWE writes an encryption of the residue m into ct.
func EncryptLWE(ct, key []uint64, m uint64, stddev float64, s *Sampler) {
	n := len(key)
	s.UniformSlice(ct[:n])
	var dot uint64
	for i := 0; i < n; i++ {
		if key[i] != 0 {
			dot = AddMod(dot, ct[i])
		}
	}
	ct[n] = AddMod(AddMod(dot, m), s.Gaussian(stddev))
}

// TrivialLWE writes the noiseless, keyless encryption (0, m).
func TrivialLWE(ct []uint64, m uint64) {
	n := len(ct) - 1
	clear(ct[:n])
	ct[n] = m
}

// LinearLWE sets out = c1*in1 + c2*in2 + constant on the body. in2 may be nil
// when c2 is zero. Coefficients are signed.
func LinearLWE(out, in1, in2 []uint64, c1, c2 int64, constant uint64) {
	m1, m2 := FromSigned(c1), FromSigned(c2)
	n := len(out) - 1
	for i := 0; i <= n; i++ {
		v := mulSmall(in1[i], m1, c1)
		if in2 != nil && c2 != 0 {
			v = AddMod(v, mulSmall(in2[i], m2, c2))
		}
		out[i] = v
	}
	out[n] = AddMod(out[n], constant)
}

func mulSmall(x, m uint64, c int64) uint64 {
	switch c {
	case 0:
		return 0
	case 1:
		return x
	case -1:
		return NegMod(x)
	case 2:
		return AddMod(x, x)
	case -2:
		return NegMod(AddMod(x, x))
	}
	return MulMod(x, m)
}

// AddLWE sets out = a + b.
func AddLWE(out, a, b []uint64) {
	AddSlice(out, a, b)
}

// NegLWE sets out = -a.
func NegLWE(out, a []uint64) {
	NegSlice(out, a)
}

// AddPlaintextLWE sets out = in + (0, m).
func AddPlaintextLWE(out, in []uint64, m uint64) {
	copy(out, in)
	n := len(out) - 1
	out[n] = AddMod(out[n], m)
}

// MulCleartextLWE sets out = c * in for a signed integer c.
func MulCleartextLWE(out, in []uint64, c int64) {
	ScalarMulSlice(out, in, FromSigned(c))
}

// KeyswitchLWE rewrites in (under the key of dimension nIn) to out (under the
// key of dimension nOut) with a key switching key laid out as
// [nIn][Level][nOut+1].
//
//	out = (0, b) - sum_i sum_j dec_j(a_i) * ksk[i][j]
func KeyswitchLWE(out, in, ksk []uint64, d Decomposer) {
	nIn := len(in) - 1
	size := len(out)
	clear(out)
	out[size-1] = in[nIn]
	digits := make([]uint64, d.Level)
	for i := 0; i < nIn; i++ {
		if in[i] == 0 {
			continue
		}
		d.Decompose(in[i], digits)
		for j, digit := range digits {
			if digit == 0 {
				continue
			}
			row := ksk[(i*d.Level+j)*size : (i*d.Level+j+1)*size]
			for t := range out {
				out[t] = SubMod(out[t], MulMod(digit, row[t]))
			}
		}
	}
}

// GenerateKeyswitchKey fills ksk ([nIn][Level][nOut+1]) with encryptions of
// inKey_i * g_j under outKey.
func GenerateKeyswitchKey(ksk, inKey, outKey []uint64, d Decomposer, stddev float64, s *Sampler) {
	size := len(outKey) + 1
	for i, bit := range inKey {
		for j := 0; j < d.Level; j++ {
			row := ksk[(i*d.Level+j)*size : (i*d.Level+j+1)*size]
			EncryptLWE(row, outKey, MulMod(bit, d.Gadget(j)), stddev, s)
		}
	}
}
