// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/core"
)

// Boolean gates take ciphertexts encrypting false as 0 and true as Q/4
// (tfhe.BooleanEncoder). Every chunk runs the linear combination, a
// bootstrap with the gate accumulator, the +Q/8 shift and a key switch back
// to the input dimension, all on the stream of its device.

func (e *Engine) gate(op tfhe.Operation, g core.Gate, out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	if err := e.owns(op, out, in1, in2, bsk, ksk); err != nil {
		return err
	}
	if err := tfhe.CheckPolynomialSize(op, bsk.n); err != nil {
		return err
	}
	if err := tfhe.CheckGate(op, out, in1, in2, bsk, ksk); err != nil {
		return err
	}
	big := tfhe.BootstrapOutputDimension(bsk).Size()
	if err := e.checkSharded(in1.dim.Size()+big, in1.count); err != nil {
		return tfhe.OpError(op, err)
	}
	return tfhe.OpError(op, e.gateUnchecked(g, out, in1, in2, bsk, ksk))
}

func (e *Engine) gateUnchecked(g core.Gate, out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	acc := core.GateAccumulator(int(bsk.k), int(bsk.n))
	for i, c := range out.chunks {
		if err := e.gateChunk(g, c, out.shards[i], in1.shards[i], in2.shards[i], acc, bsk, ksk); err != nil {
			return err
		}
	}
	enc := tfhe.BooleanEncoder()
	for i := range out.encoders {
		out.encoders[i] = enc
	}
	return nil
}

func (e *Engine) gateChunk(g core.Gate, c Chunk, out, in1, in2 *Vec[uint64], acc []uint64, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	s := e.stream(c.Device)
	dim := int(ksk.out)
	big := int(bsk.k) * int(bsk.n)

	tmp, err := newVec[uint64](s, &e.stats, (dim+1)*c.Size)
	if err != nil {
		return err
	}
	defer tmp.Free()
	wide, err := newVec[uint64](s, &e.stats, (big+1)*c.Size)
	if err != nil {
		return err
	}
	defer wide.Free()
	accBuf, err := upload(s, &e.stats, acc)
	if err != nil {
		return err
	}
	defer accBuf.Free()

	err = e.launch(c.Device, func(k driver.Kernels, ds driver.Stream) error {
		return k.LinearLWE(ds, driver.LinearArgs{
			Out: tmp.ptr, In1: in1.ptr, In2: in2.ptr,
			C1: g.C1, C2: g.C2, Constant: g.Constant,
			Dim: dim, Count: c.Size,
		})
	})
	if err != nil {
		return err
	}
	if err := e.bootstrapChunk(c, wide, tmp, accBuf, nil, bsk); err != nil {
		return err
	}
	err = e.launch(c.Device, func(k driver.Kernels, ds driver.Stream) error {
		return k.LinearLWE(ds, driver.LinearArgs{
			Out: wide.ptr, In1: wide.ptr,
			C1: 1, Constant: core.GateTestValue(),
			Dim: big, Count: c.Size,
		})
	})
	if err != nil {
		return err
	}
	return e.keyswitchChunk(c, out, wide, ksk)
}

// DiscardAndLWECiphertextVector sets out = in1 AND in2.
func (e *Engine) DiscardAndLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpAndLWEVector, core.GateAnd, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardAndLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpAndLWEVector, e.gateUnchecked(core.GateAnd, out, in1, in2, bsk, ksk))
}

// DiscardOrLWECiphertextVector sets out = in1 OR in2.
func (e *Engine) DiscardOrLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpOrLWEVector, core.GateOr, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardOrLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpOrLWEVector, e.gateUnchecked(core.GateOr, out, in1, in2, bsk, ksk))
}

// DiscardNandLWECiphertextVector sets out = NOT(in1 AND in2).
func (e *Engine) DiscardNandLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpNandLWEVector, core.GateNand, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardNandLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpNandLWEVector, e.gateUnchecked(core.GateNand, out, in1, in2, bsk, ksk))
}

// DiscardNorLWECiphertextVector sets out = NOT(in1 OR in2).
func (e *Engine) DiscardNorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpNorLWEVector, core.GateNor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardNorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpNorLWEVector, e.gateUnchecked(core.GateNor, out, in1, in2, bsk, ksk))
}

// DiscardXorLWECiphertextVector sets out = in1 XOR in2.
func (e *Engine) DiscardXorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpXorLWEVector, core.GateXor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardXorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpXorLWEVector, e.gateUnchecked(core.GateXor, out, in1, in2, bsk, ksk))
}

// DiscardXnorLWECiphertextVector sets out = NOT(in1 XOR in2).
func (e *Engine) DiscardXnorLWECiphertextVector(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error {
	return e.gate(tfhe.OpXnorLWEVector, core.GateXnor, out, in1, in2, bsk, ksk)
}

func (e *Engine) DiscardXnorLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpXnorLWEVector, e.gateUnchecked(core.GateXnor, out, in1, in2, bsk, ksk))
}
