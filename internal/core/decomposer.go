// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrDecomposition is returned for level/base-log pairs that exceed the
// modulus precision.
var ErrDecomposition = errors.New("invalid decomposition parameters")

// Decomposer performs the balanced gadget decomposition in base 2^BaseLog over
// Level levels. The gadget value of level j (1-based) is round(Q / 2^(BaseLog*j)).
//
// A residue x is first rounded to the closest multiple of Q / 2^(BaseLog*Level),
// then split into signed digits in [-2^(BaseLog-1), 2^(BaseLog-1)].
type Decomposer struct {
	BaseLog int
	Level   int

	gadget []uint64
	mask   uint64
	half   uint64
}

// NewDecomposer validates the parameters and precomputes the gadget.
func NewDecomposer(baseLog, level int) (Decomposer, error) {
	if baseLog < 1 || level < 1 || baseLog*level > LogQ {
		return Decomposer{}, fmt.Errorf("%w: base log %d, level %d", ErrDecomposition, baseLog, level)
	}
	d := Decomposer{
		BaseLog: baseLog,
		Level:   level,
		gadget:  make([]uint64, level),
		mask:    uint64(1)<<baseLog - 1,
		half:    uint64(1) << (baseLog - 1),
	}
	for j := 1; j <= level; j++ {
		d.gadget[j-1] = Scale(baseLog * j)
	}
	return d, nil
}

// MustDecomposer panics on invalid parameters.
func MustDecomposer(baseLog, level int) Decomposer {
	d, err := NewDecomposer(baseLog, level)
	if err != nil {
		panic(err)
	}
	return d
}

// Gadget returns the gadget value of 0-based level j.
func (d Decomposer) Gadget(j int) uint64 {
	return d.gadget[j]
}

// closest returns round(x * 2^(BaseLog*Level) / Q), in [0, 2^(BaseLog*Level)].
func (d Decomposer) closest(x uint64) uint64 {
	hi, lo := bits.Mul64(x, uint64(1)<<(d.BaseLog*d.Level))
	var carry uint64
	lo, carry = bits.Add64(lo, Q/2, 0)
	hi += carry
	quo, _ := bits.Div64(hi, lo, Q)
	return quo
}

// Decompose writes the digits of x into digits[0:Level], most significant
// level first, as residues mod Q.
func (d Decomposer) Decompose(x uint64, digits []uint64) {
	v := d.closest(x)
	for j := d.Level - 1; j >= 0; j-- {
		digit := v & d.mask
		v >>= d.BaseLog
		if digit >= d.half {
			// digit - 2^BaseLog, carried to the next level
			digits[j] = Q - ((uint64(1) << d.BaseLog) - digit)
			v++
		} else {
			digits[j] = digit
		}
	}
}

// DecomposePoly splits every coefficient of p; out[j] receives level j.
func (d Decomposer) DecomposePoly(p []uint64, out [][]uint64) {
	digits := make([]uint64, d.Level)
	for i, c := range p {
		d.Decompose(c, digits)
		for j := range digits {
			out[j][i] = digits[j]
		}
	}
}

// Recompose returns sum_j digits[j] * gadget[j] mod Q.
func (d Decomposer) Recompose(digits []uint64) uint64 {
	var acc uint64
	for j, g := range d.gadget {
		acc = AddMod(acc, MulMod(digits[j], g))
	}
	return acc
}
