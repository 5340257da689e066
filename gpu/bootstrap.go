// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/gpu/driver"
)

// DiscardKeyswitchLWECiphertextVector re-encrypts in under the output key of
// ksk. Encoders carry over.
func (e *Engine) DiscardKeyswitchLWECiphertextVector(out, in *LWECiphertextVector, ksk *LWEKeyswitchKey) error {
	if err := e.owns(tfhe.OpKeyswitchLWEVector, out, in, ksk); err != nil {
		return err
	}
	if err := tfhe.CheckKeyswitch(tfhe.OpKeyswitchLWEVector, out, in, ksk); err != nil {
		return err
	}
	return tfhe.OpError(tfhe.OpKeyswitchLWEVector, e.keyswitch(out, in, ksk))
}

func (e *Engine) DiscardKeyswitchLWECiphertextVectorUnchecked(out, in *LWECiphertextVector, ksk *LWEKeyswitchKey) {
	e.record(tfhe.OpKeyswitchLWEVector, e.keyswitch(out, in, ksk))
}

func (e *Engine) keyswitch(out, in *LWECiphertextVector, ksk *LWEKeyswitchKey) error {
	for i, c := range out.chunks {
		if err := e.keyswitchChunk(c, out.shards[i], in.shards[i], ksk); err != nil {
			return err
		}
	}
	copy(out.encoders, in.encoders)
	return nil
}

func (e *Engine) keyswitchChunk(c Chunk, out, in *Vec[uint64], ksk *LWEKeyswitchKey) error {
	args := driver.KeyswitchArgs{
		Out:     out.ptr,
		In:      in.ptr,
		KSK:     ksk.bufs.on(c.Device).ptr,
		InDim:   int(ksk.in),
		OutDim:  int(ksk.out),
		Level:   int(ksk.level),
		BaseLog: int(ksk.baseLog),
		Count:   c.Size,
	}
	return e.launch(c.Device, func(k driver.Kernels, s driver.Stream) error { return k.Keyswitch(s, args) })
}

// DiscardBootstrapLWECiphertextVector bootstraps in[i] through the
// accumulator acc[i]. The outputs have dimension K*N and no encoder.
//
// The engine sends every chunk the indexes of its own accumulators. The
// amortized engine sends the whole index range to every device first and
// lets each chunk read it at its offset.
func (e *Engine) DiscardBootstrapLWECiphertextVector(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) error {
	if err := e.owns(tfhe.OpBootstrapLWEVector, out, in, acc, bsk); err != nil {
		return err
	}
	if err := tfhe.CheckPolynomialSize(tfhe.OpBootstrapLWEVector, bsk.n); err != nil {
		return err
	}
	if err := tfhe.CheckBootstrap(tfhe.OpBootstrapLWEVector, out, in, acc, bsk); err != nil {
		return err
	}
	if err := e.checkIndexes(in); err != nil {
		return tfhe.OpError(tfhe.OpBootstrapLWEVector, err)
	}
	return tfhe.OpError(tfhe.OpBootstrapLWEVector, e.bootstrap(out, in, acc, bsk))
}

// checkIndexes checks room for the accumulator indexes of in: one chunk of
// them per device, or all of them on every device holding a chunk for the
// amortized engine.
func (e *Engine) checkIndexes(in *LWECiphertextVector) error {
	if !e.amortized() {
		return e.checkSharded(1, in.count)
	}
	for _, c := range in.chunks {
		if err := e.checkMemory(c.Device, int64(in.count)*8); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) DiscardBootstrapLWECiphertextVectorUnchecked(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) {
	e.record(tfhe.OpBootstrapLWEVector, e.bootstrap(out, in, acc, bsk))
}

func (e *Engine) bootstrap(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) error {
	if e.amortized() {
		if err := e.bootstrapAmortized(out, in, acc, bsk); err != nil {
			return err
		}
	} else {
		for i, c := range out.chunks {
			indexes := make([]uint64, c.Size)
			for j := range indexes {
				indexes[j] = uint64(c.Offset + j)
			}
			idx, err := upload(e.stream(c.Device), &e.stats, indexes)
			if err != nil {
				return err
			}
			err = e.bootstrapChunk(c, out.shards[i], in.shards[i], acc.bufs.on(c.Device), idx, bsk)
			if ferr := idx.Free(); err == nil {
				err = ferr
			}
			if err != nil {
				return err
			}
		}
	}
	clear(out.encoders)
	return nil
}

func (e *Engine) bootstrapAmortized(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) error {
	indexes := make([]uint64, in.count)
	for j := range indexes {
		indexes[j] = uint64(j)
	}
	bufs := make(replicas, len(out.chunks))
	defer bufs.free()

	used := make([]*Stream, 0, len(out.chunks))
	for _, c := range out.chunks {
		v, err := newVec[uint64](e.stream(c.Device), &e.stats, len(indexes))
		if err != nil {
			return err
		}
		bufs[c.Device] = v
		s := e.uploadStream(c.Device)
		used = append(used, s)
		if err := v.copyFrom(s, indexes); err != nil {
			return err
		}
	}
	for _, s := range used {
		if err := s.Synchronize(); err != nil {
			return err
		}
	}
	for i, c := range out.chunks {
		idx := bufs.on(c.Device).View(c.Offset)
		if err := e.bootstrapChunk(c, out.shards[i], in.shards[i], acc.bufs.on(c.Device), idx, bsk); err != nil {
			return err
		}
	}
	return nil
}

// bootstrapChunk bootstraps one chunk. A nil idx selects accumulator 0 for
// every ciphertext.
func (e *Engine) bootstrapChunk(c Chunk, out, in, acc, idx *Vec[uint64], bsk *FourierLWEBootstrapKey) error {
	args := driver.BootstrapArgs{
		Out:     out.ptr,
		In:      in.ptr,
		Acc:     acc.ptr,
		BSK:     bsk.bufs.on(c.Device).ptr,
		K:       int(bsk.k),
		N:       int(bsk.n),
		InDim:   int(bsk.in),
		Level:   int(bsk.level),
		BaseLog: int(bsk.baseLog),
		Count:   c.Size,
	}
	if idx != nil {
		args.Indexes = idx.ptr
	}
	return e.launch(c.Device, func(k driver.Kernels, s driver.Stream) error { return k.Bootstrap(s, args) })
}
