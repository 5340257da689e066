// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// DiscardAddLWECiphertextVector sets out = in1 + in2. Slot encoders are
// combined with Encoder.AddWithPadding and left nil when they cannot be.
func (e *Engine) DiscardAddLWECiphertextVector(out, in1, in2 *LWECiphertextVector) error {
	if err := tfhe.CheckLWEVectorBinary(tfhe.OpAddLWEVector, out, in1, in2); err != nil {
		return err
	}
	e.DiscardAddLWECiphertextVectorUnchecked(out, in1, in2)
	return nil
}

func (e *Engine) DiscardAddLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector) {
	core.AddSlice(out.data, in1.data, in2.data)
	for i := range out.encoders {
		out.encoders[i] = sumEncoder(in1.encoders[i], in2.encoders[i])
	}
}

func sumEncoder(a, b *tfhe.Encoder) *tfhe.Encoder {
	enc, err := a.AddWithPadding(b)
	if err != nil {
		return nil
	}
	return enc
}

// AddLWECiphertextVector returns in1 + in2.
func (e *Engine) AddLWECiphertextVector(in1, in2 *LWECiphertextVector) (*LWECiphertextVector, error) {
	if err := tfhe.CheckLWEVectorBinary(tfhe.OpAddLWEVector, in1, in1, in2); err != nil {
		return nil, err
	}
	return e.AddLWECiphertextVectorUnchecked(in1, in2), nil
}

func (e *Engine) AddLWECiphertextVectorUnchecked(in1, in2 *LWECiphertextVector) *LWECiphertextVector {
	out := NewLWECiphertextVector(in1.dim, in1.count)
	e.DiscardAddLWECiphertextVectorUnchecked(out, in1, in2)
	return out
}

// DiscardOppositeLWECiphertextVector sets out = -in. The encoders of out
// are cleared.
func (e *Engine) DiscardOppositeLWECiphertextVector(out, in *LWECiphertextVector) error {
	if err := tfhe.CheckLWEVectorUnary(tfhe.OpOppositeLWEVector, out, in); err != nil {
		return err
	}
	e.DiscardOppositeLWECiphertextVectorUnchecked(out, in)
	return nil
}

func (e *Engine) DiscardOppositeLWECiphertextVectorUnchecked(out, in *LWECiphertextVector) {
	core.NegSlice(out.data, in.data)
	clear(out.encoders)
}

// DiscardAddLWECiphertextVectorPlaintextVector adds pt[i] to the body of
// in[i]. The encoders of in carry over.
func (e *Engine) DiscardAddLWECiphertextVectorPlaintextVector(out, in *LWECiphertextVector, pt *tfhe.PlaintextVector) error {
	if err := tfhe.CheckLWEVectorPlaintextAddition(tfhe.OpAddPlaintextLWEVector, out, in, pt); err != nil {
		return err
	}
	e.DiscardAddLWECiphertextVectorPlaintextVectorUnchecked(out, in, pt)
	return nil
}

func (e *Engine) DiscardAddLWECiphertextVectorPlaintextVectorUnchecked(out, in *LWECiphertextVector, pt *tfhe.PlaintextVector) {
	for i, m := range pt.Values() {
		core.AddPlaintextLWE(out.slot(i), in.slot(i), m)
	}
	copy(out.encoders, in.encoders)
}

// DiscardMulLWECiphertextVectorCleartextVector multiplies in[i] by cl[i].
// The encoders of out are cleared.
func (e *Engine) DiscardMulLWECiphertextVectorCleartextVector(out, in *LWECiphertextVector, cl *tfhe.CleartextVector) error {
	if err := tfhe.CheckLWEVectorCleartextMultiplication(tfhe.OpMulCleartextLWEVector, out, in, cl); err != nil {
		return err
	}
	e.DiscardMulLWECiphertextVectorCleartextVectorUnchecked(out, in, cl)
	return nil
}

func (e *Engine) DiscardMulLWECiphertextVectorCleartextVectorUnchecked(out, in *LWECiphertextVector, cl *tfhe.CleartextVector) {
	for i, c := range cl.Values() {
		core.MulCleartextLWE(out.slot(i), in.slot(i), c)
	}
	clear(out.encoders)
}

// DiscardNotLWECiphertextVector sets out = NOT in for boolean ciphertexts.
func (e *Engine) DiscardNotLWECiphertextVector(out, in *LWECiphertextVector) error {
	if err := tfhe.CheckLWEVectorUnary(tfhe.OpNotLWEVector, out, in); err != nil {
		return err
	}
	e.DiscardNotLWECiphertextVectorUnchecked(out, in)
	return nil
}

func (e *Engine) DiscardNotLWECiphertextVectorUnchecked(out, in *LWECiphertextVector) {
	enc := tfhe.BooleanEncoder()
	for i := 0; i < in.count; i++ {
		core.NotLWE(out.slot(i), in.slot(i))
		out.encoders[i] = enc
	}
}

// DiscardLoadLWECiphertext copies vec[i] into out.
func (e *Engine) DiscardLoadLWECiphertext(out *LWECiphertext, vec *LWECiphertextVector, i int) error {
	if err := tfhe.CheckLoad(tfhe.OpLoadLWE, out, vec, i); err != nil {
		return err
	}
	e.DiscardLoadLWECiphertextUnchecked(out, vec, i)
	return nil
}

func (e *Engine) DiscardLoadLWECiphertextUnchecked(out *LWECiphertext, vec *LWECiphertextVector, i int) {
	copy(out.data, vec.slot(i))
	out.encoder = vec.encoders[i]
}

// DiscardStoreLWECiphertext copies in into vec[i].
func (e *Engine) DiscardStoreLWECiphertext(vec *LWECiphertextVector, in *LWECiphertext, i int) error {
	if err := tfhe.CheckStore(tfhe.OpStoreLWE, vec, in, i); err != nil {
		return err
	}
	e.DiscardStoreLWECiphertextUnchecked(vec, in, i)
	return nil
}

func (e *Engine) DiscardStoreLWECiphertextUnchecked(vec *LWECiphertextVector, in *LWECiphertext, i int) {
	copy(vec.slot(i), in.data)
	vec.encoders[i] = in.encoder
}
