// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/gpu/driver"
)

// DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector
// circuit-bootstraps the bits of in, encrypted as b*Q/2 (tfhe.BitEncoder),
// most significant first, and writes into out[o] the entry of table o they
// index. The input bits are gathered on device 0, which runs the whole
// evaluation, and the outputs are scattered back to their shards.
func (e *Engine) DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in *LWECiphertextVector,
	bsk *FourierLWEBootstrapKey, luts *PlaintextVector, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys *CircuitBootstrapKeys,
) error {
	op := tfhe.OpCircuitBootstrap
	if err := e.owns(op, out, in, bsk, luts, keys); err != nil {
		return err
	}
	if err := tfhe.CheckPolynomialSize(op, bsk.n); err != nil {
		return err
	}
	if err := tfhe.CheckCircuitBootstrapVerticalPacking(op, out, in, bsk, luts, level, baseLog, keys); err != nil {
		return err
	}
	if err := e.checkMemory(0, int64(in.dim.Size()*in.count+out.dim.Size()*out.count)*8); err != nil {
		return tfhe.OpError(op, err)
	}
	return tfhe.OpError(op, e.circuitBootstrap(out, in, bsk, luts, level, baseLog, keys))
}

func (e *Engine) DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVectorUnchecked(out, in *LWECiphertextVector,
	bsk *FourierLWEBootstrapKey, luts *PlaintextVector, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys *CircuitBootstrapKeys,
) {
	e.record(tfhe.OpCircuitBootstrap, e.circuitBootstrap(out, in, bsk, luts, level, baseLog, keys))
}

func (e *Engine) circuitBootstrap(out, in *LWECiphertextVector,
	bsk *FourierLWEBootstrapKey, luts *PlaintextVector, level tfhe.DecompositionLevelCount,
	baseLog tfhe.DecompositionBaseLog, keys *CircuitBootstrapKeys,
) error {
	s := e.stream(0)
	bits, err := newVec[uint64](s, &e.stats, in.dim.Size()*in.count)
	if err != nil {
		return err
	}
	defer bits.Free()
	results, err := newVec[uint64](s, &e.stats, out.dim.Size()*out.count)
	if err != nil {
		return err
	}
	defer results.Free()

	for i, c := range in.chunks {
		if err := e.transfer(bits.View(c.Offset*in.dim.Size()), in.shards[i]); err != nil {
			return err
		}
	}

	ptrs := make([]driver.Ptr, len(keys.keys))
	for c, key := range keys.keys {
		ptrs[c] = key.on(0).ptr
	}
	args := driver.CircuitBootstrapArgs{
		Out:          results.ptr,
		In:           bits.ptr,
		BSK:          bsk.bufs.on(0).ptr,
		LUTs:         luts.bufs.on(0).ptr,
		Keys:         ptrs,
		K:            int(bsk.k),
		N:            int(bsk.n),
		InDim:        int(bsk.in),
		PBSLevel:     int(bsk.level),
		PBSBaseLog:   int(bsk.baseLog),
		CBSLevel:     int(level),
		CBSBaseLog:   int(baseLog),
		PFPKSLevel:   int(keys.level),
		PFPKSBaseLog: int(keys.baseLog),
		InCount:      in.count,
		OutCount:     out.count,
	}
	err = e.launch(0, func(k driver.Kernels, ds driver.Stream) error {
		return k.CircuitBootstrapVerticalPacking(ds, args)
	})
	if err != nil {
		return err
	}

	for i, c := range out.chunks {
		if err := e.transfer(out.shards[i], results.View(c.Offset*out.dim.Size())); err != nil {
			return err
		}
	}
	clear(out.encoders)
	return nil
}

// DiscardPackingKeyswitchLWECiphertextVector packs in[t] into coefficient t
// of out, each multiplied by the polynomial of key. Every device packs its
// own chunk at the chunk offset and device 0 adds up the partial
// ciphertexts into out.
func (e *Engine) DiscardPackingKeyswitchLWECiphertextVector(out *GLWECiphertext, in *LWECiphertextVector, key *LWEPackingKeyswitchKey) error {
	op := tfhe.OpPackingKeyswitch
	if err := e.owns(op, out, in, key); err != nil {
		return err
	}
	if err := tfhe.CheckPolynomialSize(op, out.n); err != nil {
		return err
	}
	if err := tfhe.CheckPackingKeyswitch(op, out, in, key); err != nil {
		return err
	}
	if err := e.checkPartials(out, in); err != nil {
		return tfhe.OpError(op, err)
	}
	return tfhe.OpError(op, e.packingKeyswitch(out, in, key))
}

func (e *Engine) DiscardPackingKeyswitchLWECiphertextVectorUnchecked(out *GLWECiphertext, in *LWECiphertextVector, key *LWEPackingKeyswitchKey) {
	e.record(tfhe.OpPackingKeyswitch, e.packingKeyswitch(out, in, key))
}

// checkPartials checks room for the partial ciphertext of every device but
// 0, and for the staging buffer that brings them to device 0.
func (e *Engine) checkPartials(out *GLWECiphertext, in *LWECiphertextVector) error {
	if len(in.chunks) < 2 {
		return nil
	}
	bytes := int64(out.k.Size()*int(out.n)) * 8
	for _, c := range in.chunks {
		if err := e.checkMemory(c.Device, bytes); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) packingKeyswitch(out *GLWECiphertext, in *LWECiphertextVector, key *LWEPackingKeyswitchKey) error {
	size := out.k.Size() * int(out.n)
	if len(in.chunks) == 0 {
		return out.buf.CopyFrom(make([]uint64, size))
	}

	partials := make([]*Vec[uint64], len(in.chunks))
	defer func() {
		for _, p := range partials[1:] {
			_ = p.Free()
		}
	}()
	partials[0] = out.buf
	for i, c := range in.chunks {
		if i > 0 {
			p, err := newVec[uint64](e.stream(c.Device), &e.stats, size)
			if err != nil {
				return err
			}
			partials[i] = p
		}
		if err := e.packChunk(c, partials[i], in.shards[i], key); err != nil {
			return err
		}
	}
	if len(in.chunks) == 1 {
		return nil
	}

	staging, err := newVec[uint64](e.stream(0), &e.stats, size)
	if err != nil {
		return err
	}
	defer staging.Free()
	for _, p := range partials[1:] {
		if err := e.transfer(staging, p); err != nil {
			return err
		}
		args := driver.LinearArgs{Out: out.buf.ptr, In1: out.buf.ptr, In2: staging.ptr, C1: 1, C2: 1, Dim: size - 1, Count: 1}
		if err := e.launch(0, func(k driver.Kernels, s driver.Stream) error { return k.LinearLWE(s, args) }); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) packChunk(c Chunk, out, in *Vec[uint64], key *LWEPackingKeyswitchKey) error {
	args := driver.PackingKeyswitchArgs{
		Out:     out.ptr,
		In:      in.ptr,
		Key:     key.bufs.on(c.Device).ptr,
		InDim:   int(key.in),
		K:       int(key.k),
		N:       int(key.n),
		Level:   int(key.level),
		BaseLog: int(key.baseLog),
		Offset:  c.Offset,
		Count:   c.Size,
	}
	return e.launch(c.Device, func(k driver.Kernels, s driver.Stream) error { return k.PackingKeyswitch(s, args) })
}
