// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/core"
)

// Vectors of the same count share a partition, so chunk i of every operand
// lives on the same device.

// linear sets out = c1*in1 + c2*in2 + constant on every chunk. in2 may be nil.
func (e *Engine) linear(out, in1, in2 *LWECiphertextVector, c1, c2 int64, constant uint64) error {
	for i, c := range out.chunks {
		args := driver.LinearArgs{
			Out:      out.shards[i].ptr,
			In1:      in1.shards[i].ptr,
			C1:       c1,
			C2:       c2,
			Constant: constant,
			Dim:      int(out.dim),
			Count:    c.Size,
		}
		if in2 != nil {
			args.In2 = in2.shards[i].ptr
		}
		err := e.launch(c.Device, func(k driver.Kernels, s driver.Stream) error { return k.LinearLWE(s, args) })
		if err != nil {
			return err
		}
	}
	return nil
}

// DiscardAddLWECiphertextVector sets out = in1 + in2. Slot encoders are
// combined with Encoder.AddWithPadding and left nil when they cannot be.
func (e *Engine) DiscardAddLWECiphertextVector(out, in1, in2 *LWECiphertextVector) error {
	if err := e.owns(tfhe.OpAddLWEVector, out, in1, in2); err != nil {
		return err
	}
	if err := tfhe.CheckLWEVectorBinary(tfhe.OpAddLWEVector, out, in1, in2); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpAddLWEVector, e.add(out, in1, in2))
}

func (e *Engine) DiscardAddLWECiphertextVectorUnchecked(out, in1, in2 *LWECiphertextVector) {
	e.record(tfhe.OpAddLWEVector, e.add(out, in1, in2))
}

func (e *Engine) add(out, in1, in2 *LWECiphertextVector) error {
	if err := e.linear(out, in1, in2, 1, 1, 0); err != nil {
		return err
	}
	for i := range out.encoders {
		enc, err := in1.encoders[i].AddWithPadding(in2.encoders[i])
		if err != nil {
			enc = nil
		}
		out.encoders[i] = enc
	}
	return nil
}

// AddLWECiphertextVector returns in1 + in2 in a new vector.
func (e *Engine) AddLWECiphertextVector(in1, in2 *LWECiphertextVector) (*LWECiphertextVector, error) {
	if err := e.owns(tfhe.OpAddLWEVector, in1, in2); err != nil {
		return nil, err
	}
	if err := tfhe.CheckLWEVectorBinary(tfhe.OpAddLWEVector, in1, in1, in2); err != nil {
		return nil, err
	}
	out, err := e.NewLWECiphertextVector(in1.dim, in1.count)
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpAddLWEVector, err)
	}
	if err := e.add(out, in1, in2); err != nil {
		_ = out.release()
		return nil, tfhe.OpError(tfhe.OpAddLWEVector, err)
	}
	return out, nil
}

// AddLWECiphertextVectorUnchecked returns nil when the device fails.
func (e *Engine) AddLWECiphertextVectorUnchecked(in1, in2 *LWECiphertextVector) *LWECiphertextVector {
	chunks, shards, err := e.newShards(in1.dim.Size(), in1.count, nil)
	if err != nil {
		e.record(tfhe.OpAddLWEVector, err)
		return nil
	}
	out := &LWECiphertextVector{
		e:        e,
		dim:      in1.dim,
		count:    in1.count,
		chunks:   chunks,
		shards:   shards,
		encoders: make([]*tfhe.Encoder, in1.count),
	}
	if err := e.add(out, in1, in2); err != nil {
		_ = out.release()
		e.record(tfhe.OpAddLWEVector, err)
		return nil
	}
	return out
}

// DiscardOppositeLWECiphertextVector sets out = -in and clears the encoders
// of out.
func (e *Engine) DiscardOppositeLWECiphertextVector(out, in *LWECiphertextVector) error {
	if err := e.owns(tfhe.OpOppositeLWEVector, out, in); err != nil {
		return err
	}
	if err := tfhe.CheckLWEVectorUnary(tfhe.OpOppositeLWEVector, out, in); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpOppositeLWEVector, e.opposite(out, in))
}

func (e *Engine) DiscardOppositeLWECiphertextVectorUnchecked(out, in *LWECiphertextVector) {
	e.record(tfhe.OpOppositeLWEVector, e.opposite(out, in))
}

func (e *Engine) opposite(out, in *LWECiphertextVector) error {
	if err := e.linear(out, in, nil, -1, 0, 0); err != nil {
		return err
	}
	clear(out.encoders)
	return nil
}

// DiscardAddLWECiphertextVectorPlaintextVector adds pt[i] to the body of
// in[i]. The encoders of in carry over.
func (e *Engine) DiscardAddLWECiphertextVectorPlaintextVector(out, in *LWECiphertextVector, pt *PlaintextVector) error {
	if err := e.owns(tfhe.OpAddPlaintextLWEVector, out, in, pt); err != nil {
		return err
	}
	if err := tfhe.CheckLWEVectorPlaintextAddition(tfhe.OpAddPlaintextLWEVector, out, in, pt); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpAddPlaintextLWEVector, e.addPlaintext(out, in, pt))
}

func (e *Engine) DiscardAddLWECiphertextVectorPlaintextVectorUnchecked(out, in *LWECiphertextVector, pt *PlaintextVector) {
	e.record(tfhe.OpAddPlaintextLWEVector, e.addPlaintext(out, in, pt))
}

func (e *Engine) addPlaintext(out, in *LWECiphertextVector, pt *PlaintextVector) error {
	err := e.withValues(out, in, pt.bufs, func(k driver.Kernels, s driver.Stream, args driver.PlaintextArgs) error {
		return k.AddPlaintextLWE(s, args)
	})
	if err != nil {
		return err
	}
	copy(out.encoders, in.encoders)
	return nil
}

// DiscardMulLWECiphertextVectorCleartextVector multiplies in[i] by cl[i] and
// clears the encoders of out.
func (e *Engine) DiscardMulLWECiphertextVectorCleartextVector(out, in *LWECiphertextVector, cl *CleartextVector) error {
	if err := e.owns(tfhe.OpMulCleartextLWEVector, out, in, cl); err != nil {
		return err
	}
	if err := tfhe.CheckLWEVectorCleartextMultiplication(tfhe.OpMulCleartextLWEVector, out, in, cl); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpMulCleartextLWEVector, e.mulCleartext(out, in, cl))
}

func (e *Engine) DiscardMulLWECiphertextVectorCleartextVectorUnchecked(out, in *LWECiphertextVector, cl *CleartextVector) {
	e.record(tfhe.OpMulCleartextLWEVector, e.mulCleartext(out, in, cl))
}

func (e *Engine) mulCleartext(out, in *LWECiphertextVector, cl *CleartextVector) error {
	err := e.withValues(out, in, cl.bufs, func(k driver.Kernels, s driver.Stream, args driver.PlaintextArgs) error {
		return k.MulCleartextLWE(s, args)
	})
	if err != nil {
		return err
	}
	clear(out.encoders)
	return nil
}

// withValues launches f on every chunk with the slice of the replicated
// values that belongs to it.
func (e *Engine) withValues(out, in *LWECiphertextVector, values replicas,
	f func(k driver.Kernels, s driver.Stream, args driver.PlaintextArgs) error,
) error {
	for i, c := range out.chunks {
		args := driver.PlaintextArgs{
			Out:    out.shards[i].ptr,
			In:     in.shards[i].ptr,
			Values: values.on(c.Device).ptr.Add(c.Offset * 8),
			Dim:    int(out.dim),
			Count:  c.Size,
		}
		err := e.launch(c.Device, func(k driver.Kernels, s driver.Stream) error { return f(k, s, args) })
		if err != nil {
			return err
		}
	}
	return nil
}

// DiscardNotLWECiphertextVector sets out = NOT in for boolean ciphertexts.
func (e *Engine) DiscardNotLWECiphertextVector(out, in *LWECiphertextVector) error {
	if err := e.owns(tfhe.OpNotLWEVector, out, in); err != nil {
		return err
	}
	if err := tfhe.CheckLWEVectorUnary(tfhe.OpNotLWEVector, out, in); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpNotLWEVector, e.not(out, in))
}

func (e *Engine) DiscardNotLWECiphertextVectorUnchecked(out, in *LWECiphertextVector) {
	e.record(tfhe.OpNotLWEVector, e.not(out, in))
}

func (e *Engine) not(out, in *LWECiphertextVector) error {
	if err := e.linear(out, in, nil, -1, 0, core.True()); err != nil {
		return err
	}
	enc := tfhe.BooleanEncoder()
	for i := range out.encoders {
		out.encoders[i] = enc
	}
	return nil
}

// DiscardLoadLWECiphertext copies vec[i] into out. The copy crosses devices
// when slot i lives on another device than device 0.
func (e *Engine) DiscardLoadLWECiphertext(out *LWECiphertext, vec *LWECiphertextVector, i int) error {
	if err := e.owns(tfhe.OpLoadLWE, out, vec); err != nil {
		return err
	}
	if err := tfhe.CheckLoad(tfhe.OpLoadLWE, out, vec, i); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpLoadLWE, e.load(out, vec, i))
}

func (e *Engine) DiscardLoadLWECiphertextUnchecked(out *LWECiphertext, vec *LWECiphertextVector, i int) {
	e.record(tfhe.OpLoadLWE, e.load(out, vec, i))
}

func (e *Engine) load(out *LWECiphertext, vec *LWECiphertextVector, i int) error {
	src, err := vec.slot(i)
	if err != nil {
		return err
	}
	if err := e.transfer(out.buf, src); err != nil {
		return err
	}
	out.encoder = vec.encoders[i]
	return nil
}

// DiscardStoreLWECiphertext copies in into vec[i].
func (e *Engine) DiscardStoreLWECiphertext(vec *LWECiphertextVector, in *LWECiphertext, i int) error {
	if err := e.owns(tfhe.OpStoreLWE, vec, in); err != nil {
		return err
	}
	if err := tfhe.CheckStore(tfhe.OpStoreLWE, vec, in, i); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpStoreLWE, e.store(vec, in, i))
}

func (e *Engine) DiscardStoreLWECiphertextUnchecked(vec *LWECiphertextVector, in *LWECiphertext, i int) {
	e.record(tfhe.OpStoreLWE, e.store(vec, in, i))
}

func (e *Engine) store(vec *LWECiphertextVector, in *LWECiphertext, i int) error {
	dst, err := vec.slot(i)
	if err != nil {
		return err
	}
	if err := e.transfer(dst, in.buf); err != nil {
		return err
	}
	vec.encoders[i] = in.encoder
	return nil
}

// slot returns a view of ciphertext i. Chunk d of a partition is the
// chunk of device d.
func (v *LWECiphertextVector) slot(i int) (*Vec[uint64], error) {
	c, j := find(v.chunks, i)
	if j < 0 {
		return nil, fmt.Errorf("%w: slot %d of %d", tfhe.ErrIndexOutOfBounds, i, v.count)
	}
	return v.shards[c.Device].View(j * v.dim.Size()), nil
}

// transfer copies src into dst on the stream of dst. Across devices, the
// stream of src is drained first and the copy is waited for.
func (e *Engine) transfer(dst, src *Vec[uint64]) error {
	n := min(dst.len, src.len)
	if dst.Device() == src.Device() {
		return dst.CopyFromVec(src, n)
	}
	if err := e.syncDevices(src.Device()); err != nil {
		return err
	}
	if err := dst.CopyFromVec(src, n); err != nil {
		return err
	}
	return e.syncDevices(dst.Device())
}
