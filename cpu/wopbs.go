// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector
// circuit-bootstraps the bits of in, encrypted as b*Q/2 (tfhe.BitEncoder),
// most significant first, and writes into out[o] the entry of table o they
// index. level and baseLog decompose the intermediate GGSW ciphertexts.
func (e *Engine) DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in *LWECiphertextVector,
	bsk *FourierLWEBootstrapKey, luts *tfhe.PlaintextVector, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys *CircuitBootstrapKeys,
) error {
	if err := tfhe.CheckRing(tfhe.OpCircuitBootstrap, bsk.n); err != nil {
		return err
	}
	if err := tfhe.CheckCircuitBootstrapVerticalPacking(tfhe.OpCircuitBootstrap, out, in, bsk, luts, level, baseLog, keys); err != nil {
		return err
	}
	e.DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVectorUnchecked(out, in, bsk, luts, level, baseLog, keys)
	return nil
}

func (e *Engine) DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVectorUnchecked(out, in *LWECiphertextVector,
	bsk *FourierLWEBootstrapKey, luts *tfhe.PlaintextVector, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys *CircuitBootstrapKeys,
) {
	cbs := core.NewCircuitBootstrap(core.MustRing(int(bsk.n)), int(bsk.k),
		bsk.decomposer(),
		core.MustDecomposer(int(baseLog), int(level)),
		keys.decomposer(),
		keys.keys)
	ins := make([][]uint64, in.count)
	for i := range ins {
		ins[i] = in.slot(i)
	}
	outs := make([][]uint64, out.count)
	for o := range outs {
		outs[o] = out.slot(o)
	}
	cbs.Run(outs, ins, luts.Values(), bsk.data)
	clear(out.encoders)
}

// DiscardPackingKeyswitchLWECiphertextVector packs in[t] into coefficient t
// of out, each multiplied by the polynomial of key.
func (e *Engine) DiscardPackingKeyswitchLWECiphertextVector(out *GLWECiphertext, in *LWECiphertextVector, key *LWEPackingKeyswitchKey) error {
	if err := tfhe.CheckRing(tfhe.OpPackingKeyswitch, out.n); err != nil {
		return err
	}
	if err := tfhe.CheckPackingKeyswitch(tfhe.OpPackingKeyswitch, out, in, key); err != nil {
		return err
	}
	e.DiscardPackingKeyswitchLWECiphertextVectorUnchecked(out, in, key)
	return nil
}

func (e *Engine) DiscardPackingKeyswitchLWECiphertextVectorUnchecked(out *GLWECiphertext, in *LWECiphertextVector, key *LWEPackingKeyswitchKey) {
	ins := make([][]uint64, in.count)
	for i := range ins {
		ins[i] = in.slot(i)
	}
	core.PackLWE(core.MustRing(int(out.n)), out.data, ins, key.data, key.decomposer())
}
