// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// Boolean gates take ciphertexts encrypting false as 0 and true as Q/4
// (tfhe.BooleanEncoder), bootstrap them under bsk and key switch back under
// ksk, so outputs have the dimension of the inputs.

func (e *Engine) gate(op tfhe.Operation, g core.Gate, out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	if err := tfhe.CheckGate(op, out, in1, in2, bsk, ksk); err != nil {
		return err
	}
	if err := tfhe.CheckRing(op, bsk.n); err != nil {
		return err
	}
	e.gateUnchecked(g, out, in1, in2, bsk, ksk)
	return nil
}

func (e *Engine) gateUnchecked(g core.Gate, out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	k, n := int(bsk.k), int(bsk.n)
	w := core.NewWorkspace(core.MustRing(n), k, bsk.decomposer())
	acc := core.GateAccumulator(k, n)
	ks := ksk.decomposer()
	tmp := make([]uint64, in1.dim.Size())
	big := make([]uint64, k*n+1)
	enc := tfhe.BooleanEncoder()
	for i := 0; i < in1.count; i++ {
		w.GateLWE(g, out.slot(i), in1.slot(i), in2.slot(i), acc, bsk.data, ksk.data, ks, tmp, big)
		out.encoders[i] = enc
	}
}

// DiscardAndLWECiphertextVector sets out = in1 AND in2.
func (e *Engine) DiscardAndLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpAndLWEVector, core.GateAnd, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardAndLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateAnd, out, in1, in2, bsk, ksk)
}

// DiscardOrLWECiphertextVector sets out = in1 OR in2.
func (e *Engine) DiscardOrLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpOrLWEVector, core.GateOr, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardOrLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateOr, out, in1, in2, bsk, ksk)
}

// DiscardNandLWECiphertextVector sets out = NOT(in1 AND in2).
func (e *Engine) DiscardNandLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpNandLWEVector, core.GateNand, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardNandLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateNand, out, in1, in2, bsk, ksk)
}

// DiscardNorLWECiphertextVector sets out = NOT(in1 OR in2).
func (e *Engine) DiscardNorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpNorLWEVector, core.GateNor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardNorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateNor, out, in1, in2, bsk, ksk)
}

// DiscardXorLWECiphertextVector sets out = in1 XOR in2.
func (e *Engine) DiscardXorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpXorLWEVector, core.GateXor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardXorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateXor, out, in1, in2, bsk, ksk)
}

// DiscardXnorLWECiphertextVector sets out = NOT(in1 XOR in2).
func (e *Engine) DiscardXnorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpXnorLWEVector, core.GateXnor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardXnorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.gateUnchecked(core.GateXnor, out, in1, in2, bsk, ksk)
}
