// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import "math/bits"

// CircuitBootstrap turns LWE encryptions of bits (b*Q/2) into GGSW
// encryptions of the same bits, then evaluates lookup tables on them by
// vertical packing.
type CircuitBootstrap struct {
	// PBS runs the per-level bootstraps with the bootstrap key decomposer.
	PBS *Workspace
	// CMux runs the vertical packing with the circuit bootstrap decomposer.
	CMux *Workspace
	// PFPKS decomposes the extracted ciphertexts.
	PFPKS Decomposer
	// Keys holds the K+1 packing keys: polynomial -S_c for c < K, 1 for c = K.
	Keys [][]uint64
}

// NewCircuitBootstrap prepares workspaces for one shape.
func NewCircuitBootstrap(r *Ring, k int, pbs, cbs, pfpks Decomposer, keys [][]uint64) *CircuitBootstrap {
	return &CircuitBootstrap{
		PBS:   NewWorkspace(r, k, pbs),
		CMux:  NewWorkspace(r, k, cbs),
		PFPKS: pfpks,
		Keys:  keys,
	}
}

// GenerateCircuitBootstrapKeys returns the K+1 packing keys from the LWE key
// extracted from glweKey to glweKey itself.
func GenerateCircuitBootstrapKeys(glweKey *GLWEKey, d Decomposer, stddev float64, s *Sampler) [][]uint64 {
	k, n := glweKey.K, glweKey.N
	keys := make([][]uint64, k+1)
	p := make([]uint64, n)
	for c := 0; c <= k; c++ {
		if c < k {
			NegSlice(p, glweKey.Poly[c*n:(c+1)*n])
		} else {
			clear(p)
			p[0] = 1
		}
		keys[c] = make([]uint64, PFPKSKSize(k*n, k, n, d.Level))
		GeneratePFPKSK(keys[c], glweKey.Poly, glweKey, p, d, stddev, s)
	}
	return keys
}

// Boolean writes into ggswF the frequency-domain GGSW encryption, with the
// CMux decomposer, of the bit encrypted by in.
func (c *CircuitBootstrap) Boolean(ggswF, in, bskF []uint64) {
	k, n := c.PBS.K, c.PBS.N
	glweSize := (k + 1) * n
	d := c.CMux.dec

	shifted := make([]uint64, len(in))
	AddPlaintextLWE(shifted, in, Scale(2))
	acc := make([]uint64, glweSize)
	lwe := make([]uint64, k*n+1)
	ggsw := make([]uint64, GGSWSize(k, n, d.Level))

	for j := 0; j < d.Level; j++ {
		half := Scale(d.BaseLog*(j+1) + 1)
		TrivialGLWE(acc, k, n, ConstantTestVector(n, NegMod(half)))
		c.PBS.Bootstrap(lwe, shifted, acc, bskF)
		lwe[k*n] = AddMod(lwe[k*n], half)
		for col := 0; col <= k; col++ {
			off := (j*(k+1) + col) * glweSize
			PrivateFunctionalKeyswitch(ggsw[off:off+glweSize], lwe, c.Keys[col], c.PFPKS)
		}
	}
	c.CMux.ring.GGSWToFourier(ggswF, ggsw)
}

// VerticalPacking writes into out (K*N+1 residues) the LWE encryption of
// lut[idx], where idx is the integer whose bits are encrypted by ggsws,
// most significant first. len(lut) is 2^len(ggsws).
func (c *CircuitBootstrap) VerticalPacking(out []uint64, ggsws [][]uint64, lut []uint64) {
	w := c.CMux
	k, n := w.K, w.N
	glweSize := (k + 1) * n
	m := len(ggsws)
	logN := bits.Len(uint(n)) - 1

	var acc []uint64
	low := m
	if m <= logN {
		acc = make([]uint64, glweSize)
		TrivialGLWE(acc, k, n, lut)
	} else {
		high := m - logN
		low = logN
		tree := make([][]uint64, 1<<high)
		for h := range tree {
			tree[h] = make([]uint64, glweSize)
			TrivialGLWE(tree[h], k, n, lut[h*n:(h+1)*n])
		}
		for l := high - 1; l >= 0; l-- {
			half := len(tree) / 2
			for q := 0; q < half; q++ {
				w.CMux(tree[2*q], tree[2*q+1], ggsws[l])
				tree[q] = tree[2*q]
			}
			tree = tree[:half]
		}
		acc = tree[0]
	}
	for p := 0; p < low; p++ {
		w.ring.MulMonomialGLWE(w.rot, acc, -(1 << p))
		w.CMux(acc, w.rot, ggsws[m-1-p])
	}
	SampleExtract(out, acc, k, n, 0)
}

// Run bootstraps every input bit once and evaluates one lookup table per
// output: luts holds len(outs) tables of 2^len(ins) values each.
func (c *CircuitBootstrap) Run(outs, ins [][]uint64, luts, bskF []uint64) {
	k, n := c.PBS.K, c.PBS.N
	size := GGSWSize(k, n, c.CMux.dec.Level)
	ggsws := make([][]uint64, len(ins))
	for i, in := range ins {
		ggsws[i] = make([]uint64, size)
		c.Boolean(ggsws[i], in, bskF)
	}
	span := 1 << len(ins)
	for o, out := range outs {
		c.VerticalPacking(out, ggsws, luts[o*span:(o+1)*span])
	}
}
