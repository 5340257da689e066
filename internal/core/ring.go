// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
)

// ErrRingDegree is returned for polynomial sizes Q cannot transform.
var ErrRingDegree = errors.New("polynomial size is not a supported power of two")

var rings sync.Map // map[int]*Ring

// Ring wraps the negacyclic ring Z_Q[X]/(X^N+1) of one polynomial size.
// Polynomials are plain []uint64 slices of length N.
type Ring struct {
	N int
	r *ring.Ring
}

// RingFor returns the shared ring of degree n.
func RingFor(n int) (*Ring, error) {
	if v, ok := rings.Load(n); ok {
		return v.(*Ring), nil
	}
	logN := bits.Len(uint(n)) - 1
	if n < 16 || 1<<logN != n || logN > MaxLogN {
		return nil, fmt.Errorf("%w: %d", ErrRingDegree, n)
	}
	params, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    logN,
		Q:       []uint64{Q},
		NTTFlag: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ring of degree %d: %w", n, err)
	}
	v, _ := rings.LoadOrStore(n, &Ring{N: n, r: params.RingQ()})
	return v.(*Ring), nil
}

// MustRing is RingFor for sizes already validated by the caller.
func MustRing(n int) *Ring {
	r, err := RingFor(n)
	if err != nil {
		panic(err)
	}
	return r
}

func poly(coeffs []uint64) ring.Poly {
	return ring.Poly{Coeffs: [][]uint64{coeffs}}
}

// NTT transforms p in place into the evaluation domain.
func (r *Ring) NTT(p []uint64) {
	r.r.NTT(poly(p), poly(p))
}

// INTT transforms p in place back to coefficients.
func (r *Ring) INTT(p []uint64) {
	r.r.INTT(poly(p), poly(p))
}

// MForm moves p in place into Montgomery form.
func (r *Ring) MForm(p []uint64) {
	r.r.MForm(poly(p), poly(p))
}

// IMForm moves p in place out of Montgomery form.
func (r *Ring) IMForm(p []uint64) {
	r.r.IMForm(poly(p), poly(p))
}

// ToFourier maps a coefficient polynomial to the frequency domain used by
// bootstrap keys: NTT followed by Montgomery form.
func (r *Ring) ToFourier(dst, src []uint64) {
	copy(dst, src)
	r.NTT(dst)
	r.MForm(dst)
}

// FromFourier is the inverse of ToFourier.
func (r *Ring) FromFourier(dst, src []uint64) {
	copy(dst, src)
	r.IMForm(dst)
	r.INTT(dst)
	ReduceSlice(dst)
}

// MulAccFourier sets acc += a * b, with a and acc in the NTT domain and b in
// the frequency domain.
func (r *Ring) MulAccFourier(acc, a, b []uint64) {
	r.r.MulCoeffsMontgomeryThenAdd(poly(a), poly(b), poly(acc))
}

// MulAdd sets acc += a * b for coefficient polynomials, with bF = ToFourier(b).
// scratch holds at least 2N words.
func (r *Ring) MulAdd(acc, a, bF, scratch []uint64) {
	n := r.N
	aN, prod := scratch[:n], scratch[n:2*n]
	copy(aN, a)
	r.NTT(aN)
	clear(prod)
	r.MulAccFourier(prod, aN, bF)
	r.INTT(prod)
	for i := range acc {
		acc[i] = AddMod(acc[i], prod[i]%Q)
	}
}

// MulMonomial sets dst = src * X^k, k taken modulo 2N. dst and src must not
// overlap.
func (r *Ring) MulMonomial(dst, src []uint64, k int) {
	n := r.N
	k %= 2 * n
	if k < 0 {
		k += 2 * n
	}
	neg := k >= n
	if neg {
		k -= n
	}
	for i := 0; i < n; i++ {
		j := i + k
		c := src[i]
		wrap := j >= n
		if wrap {
			j -= n
		}
		if wrap != neg {
			c = NegMod(c)
		}
		dst[j] = c
	}
}
