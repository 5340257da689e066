// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

// Boolean ciphertexts encrypt false as 0 and true as Q/4. A binary gate is
// the linear combination C1*in1 + C2*in2 + Constant, whose phase falls in
// [0, Q/2) exactly when the gate outputs true, followed by a bootstrap with
// the constant test vector Q/8 and a final +Q/8 on the body.

// Gate is the linear part of a binary boolean gate.
type Gate struct {
	C1, C2   int64
	Constant uint64
}

var (
	eighth  = Scale(3)
	quarter = Scale(2)

	GateAnd  = Gate{C1: 1, C2: 1, Constant: NegMod(3 * eighth)}
	GateOr   = Gate{C1: 1, C2: 1, Constant: NegMod(eighth)}
	GateNand = Gate{C1: -1, C2: -1, Constant: 3 * eighth}
	GateNor  = Gate{C1: -1, C2: -1, Constant: eighth}
	GateXor  = Gate{C1: 2, C2: 2, Constant: NegMod(quarter)}
	GateXnor = Gate{C1: -2, C2: -2, Constant: quarter}
)

// GateTestValue is the constant test vector coefficient of gate bootstraps
// and the offset added to their output.
func GateTestValue() uint64 { return eighth }

// True is the encoding of true.
func True() uint64 { return quarter }

// NotLWE sets out = Q/4 - in.
func NotLWE(out, in []uint64) {
	LinearLWE(out, in, nil, -1, 0, quarter)
}

// GateLWE evaluates g on one pair of ciphertexts of dimension n: the linear
// combination, a bootstrap into dimension K*N with acc, and a key switch
// back to dimension n. tmp holds n+1 words and big K*N+1 words.
func (w *Workspace) GateLWE(g Gate, out, in1, in2, acc, bskF, ksk []uint64, ks Decomposer, tmp, big []uint64) {
	LinearLWE(tmp, in1, in2, g.C1, g.C2, g.Constant)
	w.Bootstrap(big, tmp, acc, bskF)
	big[len(big)-1] = AddMod(big[len(big)-1], eighth)
	KeyswitchLWE(out, big, ksk, ks)
}

// GateAccumulator returns the trivial GLWE accumulator of gate bootstraps.
func GateAccumulator(k, n int) []uint64 {
	acc := make([]uint64, (k+1)*n)
	TrivialGLWE(acc, k, n, ConstantTestVector(n, eighth))
	return acc
}
