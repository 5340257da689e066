// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/cpu"
	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/core"
)

// Conversions from the host check device memory up front, copy on the
// upload streams and wait for the copies, so the new entity is usable on
// every stream. Conversions to the host wait for the work queued on the
// entity.

// replicate copies words to every device. prepare, when set, runs on the
// upload stream after the copy.
func (e *Engine) replicate(words []uint64, prepare func(s *Stream, v *Vec[uint64]) error) (replicas, error) {
	bufs := make(replicas, e.devices)
	if len(words) == 0 {
		return bufs, nil
	}
	used := make([]*Stream, 0, e.devices)
	for d := range bufs {
		v, err := newVec[uint64](e.stream(d), &e.stats, len(words))
		if err != nil {
			_ = bufs.free()
			return nil, fmt.Errorf("device %d: %w", d, err)
		}
		bufs[d] = v
		s := e.uploadStream(d)
		used = append(used, s)
		if err := v.copyFrom(s, words); err != nil {
			_ = bufs.free()
			return nil, fmt.Errorf("device %d: %w", d, err)
		}
		if prepare != nil {
			if err := prepare(s, v); err != nil {
				_ = bufs.free()
				return nil, err
			}
		}
	}
	for _, s := range used {
		if err := s.Synchronize(); err != nil {
			_ = bufs.free()
			e.logError("device fault", "device", s.device, "err", err)
			return nil, fmt.Errorf("device %d: %w", s.device, err)
		}
	}
	return bufs, nil
}

// newShards allocates the shards of count ciphertexts of size words and
// fills them from data when it is not nil.
func (e *Engine) newShards(size, count int, data []uint64) ([]Chunk, []*Vec[uint64], error) {
	chunks := Partition(e.devices, count)
	shards := make([]*Vec[uint64], len(chunks))
	free := func() {
		for _, v := range shards {
			_ = v.Free()
		}
	}
	used := make([]*Stream, 0, len(chunks))
	for i, c := range chunks {
		v, err := newVec[uint64](e.stream(c.Device), &e.stats, size*c.Size)
		if err != nil {
			free()
			return nil, nil, fmt.Errorf("device %d: %w", c.Device, err)
		}
		shards[i] = v
		if data == nil {
			continue
		}
		s := e.uploadStream(c.Device)
		used = append(used, s)
		if err := v.copyFrom(s, data[c.Offset*size:(c.Offset+c.Size)*size]); err != nil {
			free()
			return nil, nil, fmt.Errorf("device %d: %w", c.Device, err)
		}
	}
	for _, s := range used {
		if err := s.Synchronize(); err != nil {
			free()
			return nil, nil, fmt.Errorf("device %d: %w", s.device, err)
		}
	}
	return chunks, shards, nil
}

// NewLWECiphertextVector allocates count zero ciphertexts of dimension dim.
func (e *Engine) NewLWECiphertextVector(dim tfhe.LWEDimension, count int) (*LWECiphertextVector, error) {
	if dim <= 0 || count < 0 {
		return nil, tfhe.OpError(tfhe.OpConvertLWEVector, fmt.Errorf("%w: %d ciphertexts of dimension %d", tfhe.ErrInvalidParameters, count, dim))
	}
	if err := e.checkSharded(dim.Size(), count); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertLWEVector, err)
	}
	chunks, shards, err := e.newShards(dim.Size(), count, nil)
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertLWEVector, err)
	}
	return &LWECiphertextVector{
		e:        e,
		dim:      dim,
		count:    count,
		chunks:   chunks,
		shards:   shards,
		encoders: make([]*tfhe.Encoder, count),
	}, nil
}

// ConvertLWECiphertextVector shards in over the devices.
func (e *Engine) ConvertLWECiphertextVector(in *cpu.LWECiphertextVector) (*LWECiphertextVector, error) {
	if err := e.checkSharded(in.LWEDimension().Size(), in.Count()); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertLWEVector, err)
	}
	out, err := e.convertLWECiphertextVector(in)
	return out, tfhe.OpError(tfhe.OpConvertLWEVector, err)
}

// ConvertLWECiphertextVectorUnchecked returns nil when the device fails;
// the error is reported by Synchronize.
func (e *Engine) ConvertLWECiphertextVectorUnchecked(in *cpu.LWECiphertextVector) *LWECiphertextVector {
	out, err := e.convertLWECiphertextVector(in)
	e.record(tfhe.OpConvertLWEVector, err)
	return out
}

func (e *Engine) convertLWECiphertextVector(in *cpu.LWECiphertextVector) (*LWECiphertextVector, error) {
	chunks, shards, err := e.newShards(in.LWEDimension().Size(), in.Count(), in.Data())
	if err != nil {
		return nil, err
	}
	return &LWECiphertextVector{
		e:        e,
		dim:      in.LWEDimension(),
		count:    in.Count(),
		chunks:   chunks,
		shards:   shards,
		encoders: append([]*tfhe.Encoder(nil), in.Encoders()...),
	}, nil
}

// ConvertLWECiphertextVectorToHost gathers the shards of in.
func (e *Engine) ConvertLWECiphertextVectorToHost(in *LWECiphertextVector) (*cpu.LWECiphertextVector, error) {
	if err := e.owns(tfhe.OpConvertLWEVector, in); err != nil {
		return nil, err
	}
	out, err := e.lweCiphertextVectorToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertLWEVector, err)
}

func (e *Engine) ConvertLWECiphertextVectorToHostUnchecked(in *LWECiphertextVector) *cpu.LWECiphertextVector {
	out, err := e.lweCiphertextVectorToHost(in)
	e.record(tfhe.OpConvertLWEVector, err)
	return out
}

func (e *Engine) lweCiphertextVectorToHost(in *LWECiphertextVector) (*cpu.LWECiphertextVector, error) {
	size := in.dim.Size()
	data := make([]uint64, size*in.count)
	for i, c := range in.chunks {
		if err := in.shards[i].CopyTo(data[c.Offset*size : (c.Offset+c.Size)*size]); err != nil {
			return nil, fmt.Errorf("device %d: %w", c.Device, err)
		}
	}
	return cpu.LWECiphertextVectorFromData(in.dim, data, append([]*tfhe.Encoder(nil), in.encoders...))
}

// NewLWECiphertext allocates a zero ciphertext on device 0.
func (e *Engine) NewLWECiphertext(dim tfhe.LWEDimension) (*LWECiphertext, error) {
	if dim <= 0 {
		return nil, tfhe.OpError(tfhe.OpConvertLWE, fmt.Errorf("%w: dimension %d", tfhe.ErrInvalidParameters, dim))
	}
	if err := e.checkMemory(0, int64(dim.Size())*8); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertLWE, err)
	}
	out, err := e.newLWECiphertext(dim)
	return out, tfhe.OpError(tfhe.OpConvertLWE, err)
}

func (e *Engine) newLWECiphertext(dim tfhe.LWEDimension) (*LWECiphertext, error) {
	buf, err := newVec[uint64](e.stream(0), &e.stats, dim.Size())
	if err != nil {
		return nil, err
	}
	return &LWECiphertext{e: e, dim: dim, buf: buf}, nil
}

// ConvertLWECiphertext copies in to device 0.
func (e *Engine) ConvertLWECiphertext(in *cpu.LWECiphertext) (*LWECiphertext, error) {
	if err := e.checkMemory(0, int64(len(in.Data()))*8); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertLWE, err)
	}
	out, err := e.convertLWECiphertext(in)
	return out, tfhe.OpError(tfhe.OpConvertLWE, err)
}

func (e *Engine) ConvertLWECiphertextUnchecked(in *cpu.LWECiphertext) *LWECiphertext {
	out, err := e.convertLWECiphertext(in)
	e.record(tfhe.OpConvertLWE, err)
	return out
}

func (e *Engine) convertLWECiphertext(in *cpu.LWECiphertext) (*LWECiphertext, error) {
	out, err := e.newLWECiphertext(in.LWEDimension())
	if err != nil {
		return nil, err
	}
	if err := out.buf.CopyFrom(in.Data()); err != nil {
		_ = out.buf.Free()
		return nil, err
	}
	out.encoder = in.Encoder()
	return out, nil
}

// ConvertLWECiphertextToHost copies in back to the host.
func (e *Engine) ConvertLWECiphertextToHost(in *LWECiphertext) (*cpu.LWECiphertext, error) {
	if err := e.owns(tfhe.OpConvertLWE, in); err != nil {
		return nil, err
	}
	out, err := e.lweCiphertextToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertLWE, err)
}

func (e *Engine) ConvertLWECiphertextToHostUnchecked(in *LWECiphertext) *cpu.LWECiphertext {
	out, err := e.lweCiphertextToHost(in)
	e.record(tfhe.OpConvertLWE, err)
	return out
}

func (e *Engine) lweCiphertextToHost(in *LWECiphertext) (*cpu.LWECiphertext, error) {
	data := make([]uint64, in.dim.Size())
	if err := in.buf.CopyTo(data); err != nil {
		return nil, err
	}
	return cpu.LWECiphertextFromData(data, in.encoder)
}

// NewGLWECiphertext allocates a zero ciphertext on device 0.
func (e *Engine) NewGLWECiphertext(k tfhe.GLWEDimension, n tfhe.PolynomialSize) (*GLWECiphertext, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertGLWE, n); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, tfhe.OpError(tfhe.OpConvertGLWE, fmt.Errorf("%w: glwe dimension %d", tfhe.ErrInvalidParameters, k))
	}
	if err := e.checkMemory(0, int64(k.Size()*int(n))*8); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertGLWE, err)
	}
	out, err := e.newGLWECiphertext(k, n)
	return out, tfhe.OpError(tfhe.OpConvertGLWE, err)
}

func (e *Engine) newGLWECiphertext(k tfhe.GLWEDimension, n tfhe.PolynomialSize) (*GLWECiphertext, error) {
	buf, err := newVec[uint64](e.stream(0), &e.stats, k.Size()*int(n))
	if err != nil {
		return nil, err
	}
	return &GLWECiphertext{e: e, k: k, n: n, buf: buf}, nil
}

// ConvertGLWECiphertext copies in to device 0.
func (e *Engine) ConvertGLWECiphertext(in *cpu.GLWECiphertext) (*GLWECiphertext, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertGLWE, in.PolynomialSize()); err != nil {
		return nil, err
	}
	if err := e.checkMemory(0, int64(len(in.Data()))*8); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertGLWE, err)
	}
	out, err := e.convertGLWECiphertext(in)
	return out, tfhe.OpError(tfhe.OpConvertGLWE, err)
}

func (e *Engine) ConvertGLWECiphertextUnchecked(in *cpu.GLWECiphertext) *GLWECiphertext {
	out, err := e.convertGLWECiphertext(in)
	e.record(tfhe.OpConvertGLWE, err)
	return out
}

func (e *Engine) convertGLWECiphertext(in *cpu.GLWECiphertext) (*GLWECiphertext, error) {
	out, err := e.newGLWECiphertext(in.GLWEDimension(), in.PolynomialSize())
	if err != nil {
		return nil, err
	}
	if err := out.buf.CopyFrom(in.Data()); err != nil {
		_ = out.buf.Free()
		return nil, err
	}
	return out, nil
}

// ConvertGLWECiphertextToHost copies in back to the host.
func (e *Engine) ConvertGLWECiphertextToHost(in *GLWECiphertext) (*cpu.GLWECiphertext, error) {
	if err := e.owns(tfhe.OpConvertGLWE, in); err != nil {
		return nil, err
	}
	out, err := e.glweCiphertextToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertGLWE, err)
}

func (e *Engine) ConvertGLWECiphertextToHostUnchecked(in *GLWECiphertext) *cpu.GLWECiphertext {
	out, err := e.glweCiphertextToHost(in)
	e.record(tfhe.OpConvertGLWE, err)
	return out
}

func (e *Engine) glweCiphertextToHost(in *GLWECiphertext) (*cpu.GLWECiphertext, error) {
	data := make([]uint64, in.k.Size()*int(in.n))
	if err := in.buf.CopyTo(data); err != nil {
		return nil, err
	}
	return cpu.GLWECiphertextFromData(in.k, in.n, data)
}

// ConvertGLWECiphertextVector replicates in on every device.
func (e *Engine) ConvertGLWECiphertextVector(in *cpu.GLWECiphertextVector) (*GLWECiphertextVector, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertGLWEVector, in.PolynomialSize()); err != nil {
		return nil, err
	}
	if err := e.checkReplicated(len(in.Data())); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertGLWEVector, err)
	}
	out, err := e.convertGLWECiphertextVector(in)
	return out, tfhe.OpError(tfhe.OpConvertGLWEVector, err)
}

func (e *Engine) ConvertGLWECiphertextVectorUnchecked(in *cpu.GLWECiphertextVector) *GLWECiphertextVector {
	out, err := e.convertGLWECiphertextVector(in)
	e.record(tfhe.OpConvertGLWEVector, err)
	return out
}

func (e *Engine) convertGLWECiphertextVector(in *cpu.GLWECiphertextVector) (*GLWECiphertextVector, error) {
	bufs, err := e.replicate(in.Data(), nil)
	if err != nil {
		return nil, err
	}
	return &GLWECiphertextVector{e: e, k: in.GLWEDimension(), n: in.PolynomialSize(), count: in.Count(), bufs: bufs}, nil
}

// ConvertGLWECiphertextVectorToHost copies the replica of device 0 back.
func (e *Engine) ConvertGLWECiphertextVectorToHost(in *GLWECiphertextVector) (*cpu.GLWECiphertextVector, error) {
	if err := e.owns(tfhe.OpConvertGLWEVector, in); err != nil {
		return nil, err
	}
	out, err := e.glweCiphertextVectorToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertGLWEVector, err)
}

func (e *Engine) ConvertGLWECiphertextVectorToHostUnchecked(in *GLWECiphertextVector) *cpu.GLWECiphertextVector {
	out, err := e.glweCiphertextVectorToHost(in)
	e.record(tfhe.OpConvertGLWEVector, err)
	return out
}

func (e *Engine) glweCiphertextVectorToHost(in *GLWECiphertextVector) (*cpu.GLWECiphertextVector, error) {
	data := make([]uint64, in.k.Size()*int(in.n)*in.count)
	if err := copyReplica(in.bufs, data); err != nil {
		return nil, err
	}
	return cpu.GLWECiphertextVectorFromData(in.k, in.n, data)
}

// copyReplica reads the replica of device 0 into dst.
func copyReplica(bufs replicas, dst []uint64) error {
	if len(dst) == 0 {
		return nil
	}
	return bufs.on(0).CopyTo(dst)
}

// ConvertPlaintextVector replicates pt on every device.
func (e *Engine) ConvertPlaintextVector(in *tfhe.PlaintextVector) (*PlaintextVector, error) {
	if err := e.checkReplicated(in.Count()); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertPlaintext, err)
	}
	out, err := e.convertPlaintextVector(in)
	return out, tfhe.OpError(tfhe.OpConvertPlaintext, err)
}

func (e *Engine) ConvertPlaintextVectorUnchecked(in *tfhe.PlaintextVector) *PlaintextVector {
	out, err := e.convertPlaintextVector(in)
	e.record(tfhe.OpConvertPlaintext, err)
	return out
}

func (e *Engine) convertPlaintextVector(in *tfhe.PlaintextVector) (*PlaintextVector, error) {
	bufs, err := e.replicate(in.Values(), nil)
	if err != nil {
		return nil, err
	}
	return &PlaintextVector{
		e:        e,
		count:    in.Count(),
		bufs:     bufs,
		encoders: append([]*tfhe.Encoder(nil), in.Encoders()...),
	}, nil
}

// ConvertPlaintextVectorToHost copies the replica of device 0 back.
func (e *Engine) ConvertPlaintextVectorToHost(in *PlaintextVector) (*tfhe.PlaintextVector, error) {
	if err := e.owns(tfhe.OpConvertPlaintext, in); err != nil {
		return nil, err
	}
	out, err := e.plaintextVectorToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertPlaintext, err)
}

func (e *Engine) ConvertPlaintextVectorToHostUnchecked(in *PlaintextVector) *tfhe.PlaintextVector {
	out, err := e.plaintextVectorToHost(in)
	e.record(tfhe.OpConvertPlaintext, err)
	return out
}

func (e *Engine) plaintextVectorToHost(in *PlaintextVector) (*tfhe.PlaintextVector, error) {
	values := make([]uint64, in.count)
	if err := copyReplica(in.bufs, values); err != nil {
		return nil, err
	}
	return tfhe.NewEncodedPlaintextVector(values, in.encoders)
}

// ConvertCleartextVector replicates cl on every device.
func (e *Engine) ConvertCleartextVector(in *tfhe.CleartextVector) (*CleartextVector, error) {
	if err := e.checkReplicated(in.Count()); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertCleartext, err)
	}
	out, err := e.convertCleartextVector(in)
	return out, tfhe.OpError(tfhe.OpConvertCleartext, err)
}

func (e *Engine) ConvertCleartextVectorUnchecked(in *tfhe.CleartextVector) *CleartextVector {
	out, err := e.convertCleartextVector(in)
	e.record(tfhe.OpConvertCleartext, err)
	return out
}

func (e *Engine) convertCleartextVector(in *tfhe.CleartextVector) (*CleartextVector, error) {
	words := make([]uint64, in.Count())
	for i, c := range in.Values() {
		words[i] = core.FromSigned(c)
	}
	bufs, err := e.replicate(words, nil)
	if err != nil {
		return nil, err
	}
	return &CleartextVector{e: e, count: in.Count(), bufs: bufs}, nil
}

// ConvertCleartextVectorToHost copies the replica of device 0 back.
func (e *Engine) ConvertCleartextVectorToHost(in *CleartextVector) (*tfhe.CleartextVector, error) {
	if err := e.owns(tfhe.OpConvertCleartext, in); err != nil {
		return nil, err
	}
	out, err := e.cleartextVectorToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertCleartext, err)
}

func (e *Engine) ConvertCleartextVectorToHostUnchecked(in *CleartextVector) *tfhe.CleartextVector {
	out, err := e.cleartextVectorToHost(in)
	e.record(tfhe.OpConvertCleartext, err)
	return out
}

func (e *Engine) cleartextVectorToHost(in *CleartextVector) (*tfhe.CleartextVector, error) {
	words := make([]uint64, in.count)
	if err := copyReplica(in.bufs, words); err != nil {
		return nil, err
	}
	values := make([]int64, len(words))
	for i, w := range words {
		values[i] = core.ToSigned(w)
	}
	return tfhe.NewCleartextVector(values), nil
}

// ConvertLWEBootstrapKey moves a standard-domain key to the frequency
// domain on every device. The polynomial size and the memory of every
// device are checked before anything is allocated.
func (e *Engine) ConvertLWEBootstrapKey(in *cpu.LWEBootstrapKey) (*FourierLWEBootstrapKey, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertBootstrapKey, in.PolynomialSize()); err != nil {
		return nil, err
	}
	if err := e.checkReplicated(len(in.Data())); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertBootstrapKey, err)
	}
	out, err := e.convertLWEBootstrapKey(in)
	return out, tfhe.OpError(tfhe.OpConvertBootstrapKey, err)
}

func (e *Engine) ConvertLWEBootstrapKeyUnchecked(in *cpu.LWEBootstrapKey) *FourierLWEBootstrapKey {
	out, err := e.convertLWEBootstrapKey(in)
	e.record(tfhe.OpConvertBootstrapKey, err)
	return out
}

func (e *Engine) convertLWEBootstrapKey(in *cpu.LWEBootstrapKey) (*FourierLWEBootstrapKey, error) {
	n := int(in.PolynomialSize())
	data := in.Data()
	bufs, err := e.replicate(data, func(s *Stream, v *Vec[uint64]) error {
		return e.launchOn(s, func(k driver.Kernels, ds driver.Stream) error {
			return k.ConvertBootstrapKey(ds, driver.BootstrapKeyArgs{Key: v.ptr, Words: len(data), N: n})
		})
	})
	if err != nil {
		return nil, err
	}
	e.info("bootstrap key converted",
		"glweDimension", int(in.GLWEDimension()),
		"polynomialSize", n,
		"inputDimension", int(in.InputLWEDimension()),
		"bytesPerDevice", len(data)*8,
		"devices", e.devices)
	return &FourierLWEBootstrapKey{
		e:       e,
		k:       in.GLWEDimension(),
		n:       in.PolynomialSize(),
		in:      in.InputLWEDimension(),
		level:   in.DecompositionLevelCount(),
		baseLog: in.DecompositionBaseLog(),
		words:   len(data),
		bufs:    bufs,
	}, nil
}

// ConvertLWEBootstrapKeyToStandard moves the key of device 0 back to the
// standard domain on the host.
func (e *Engine) ConvertLWEBootstrapKeyToStandard(in *FourierLWEBootstrapKey) (*cpu.LWEBootstrapKey, error) {
	if err := e.owns(tfhe.OpConvertBootstrapKey, in); err != nil {
		return nil, err
	}
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertBootstrapKey, in.n); err != nil {
		return nil, err
	}
	if err := e.checkMemory(0, int64(in.words)*8); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertBootstrapKey, err)
	}
	out, err := e.bootstrapKeyToStandard(in)
	return out, tfhe.OpError(tfhe.OpConvertBootstrapKey, err)
}

func (e *Engine) ConvertLWEBootstrapKeyToStandardUnchecked(in *FourierLWEBootstrapKey) *cpu.LWEBootstrapKey {
	out, err := e.bootstrapKeyToStandard(in)
	e.record(tfhe.OpConvertBootstrapKey, err)
	return out
}

func (e *Engine) bootstrapKeyToStandard(in *FourierLWEBootstrapKey) (*cpu.LWEBootstrapKey, error) {
	data := make([]uint64, in.words)
	if in.words > 0 {
		tmp, err := newVec[uint64](e.stream(0), &e.stats, in.words)
		if err != nil {
			return nil, err
		}
		defer tmp.Free()
		if err := tmp.CopyFromVec(in.bufs.on(0), in.words); err != nil {
			return nil, err
		}
		err = e.launch(0, func(k driver.Kernels, s driver.Stream) error {
			return k.ConvertBootstrapKey(s, driver.BootstrapKeyArgs{Key: tmp.ptr, Words: in.words, N: int(in.n), Inverse: true})
		})
		if err != nil {
			return nil, err
		}
		if err := tmp.CopyTo(data); err != nil {
			return nil, err
		}
	}
	return cpu.LWEBootstrapKeyFromData(in.k, in.n, in.in, in.level, in.baseLog, data)
}

// ConvertLWEKeyswitchKey replicates a key switching key on every device.
func (e *Engine) ConvertLWEKeyswitchKey(in *cpu.LWEKeyswitchKey) (*LWEKeyswitchKey, error) {
	if err := e.checkReplicated(len(in.Data())); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertKeyswitchKey, err)
	}
	out, err := e.convertLWEKeyswitchKey(in)
	return out, tfhe.OpError(tfhe.OpConvertKeyswitchKey, err)
}

func (e *Engine) ConvertLWEKeyswitchKeyUnchecked(in *cpu.LWEKeyswitchKey) *LWEKeyswitchKey {
	out, err := e.convertLWEKeyswitchKey(in)
	e.record(tfhe.OpConvertKeyswitchKey, err)
	return out
}

func (e *Engine) convertLWEKeyswitchKey(in *cpu.LWEKeyswitchKey) (*LWEKeyswitchKey, error) {
	bufs, err := e.replicate(in.Data(), nil)
	if err != nil {
		return nil, err
	}
	e.info("keyswitch key converted",
		"inputDimension", int(in.InputLWEDimension()),
		"outputDimension", int(in.OutputLWEDimension()),
		"bytesPerDevice", len(in.Data())*8)
	return &LWEKeyswitchKey{
		e:       e,
		in:      in.InputLWEDimension(),
		out:     in.OutputLWEDimension(),
		level:   in.DecompositionLevelCount(),
		baseLog: in.DecompositionBaseLog(),
		words:   len(in.Data()),
		bufs:    bufs,
	}, nil
}

// ConvertLWEKeyswitchKeyToHost copies the key of device 0 back.
func (e *Engine) ConvertLWEKeyswitchKeyToHost(in *LWEKeyswitchKey) (*cpu.LWEKeyswitchKey, error) {
	if err := e.owns(tfhe.OpConvertKeyswitchKey, in); err != nil {
		return nil, err
	}
	out, err := e.keyswitchKeyToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertKeyswitchKey, err)
}

func (e *Engine) ConvertLWEKeyswitchKeyToHostUnchecked(in *LWEKeyswitchKey) *cpu.LWEKeyswitchKey {
	out, err := e.keyswitchKeyToHost(in)
	e.record(tfhe.OpConvertKeyswitchKey, err)
	return out
}

func (e *Engine) keyswitchKeyToHost(in *LWEKeyswitchKey) (*cpu.LWEKeyswitchKey, error) {
	data := make([]uint64, in.words)
	if err := copyReplica(in.bufs, data); err != nil {
		return nil, err
	}
	return cpu.LWEKeyswitchKeyFromData(in.in, in.out, in.level, in.baseLog, data)
}

// ConvertLWEPackingKeyswitchKey replicates a private functional packing key
// switch key on every device.
func (e *Engine) ConvertLWEPackingKeyswitchKey(in *cpu.LWEPackingKeyswitchKey) (*LWEPackingKeyswitchKey, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertPackingKey, in.OutputPolynomialSize()); err != nil {
		return nil, err
	}
	if err := e.checkReplicated(len(in.Data())); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertPackingKey, err)
	}
	out, err := e.convertLWEPackingKeyswitchKey(in)
	return out, tfhe.OpError(tfhe.OpConvertPackingKey, err)
}

func (e *Engine) ConvertLWEPackingKeyswitchKeyUnchecked(in *cpu.LWEPackingKeyswitchKey) *LWEPackingKeyswitchKey {
	out, err := e.convertLWEPackingKeyswitchKey(in)
	e.record(tfhe.OpConvertPackingKey, err)
	return out
}

func (e *Engine) convertLWEPackingKeyswitchKey(in *cpu.LWEPackingKeyswitchKey) (*LWEPackingKeyswitchKey, error) {
	bufs, err := e.replicate(in.Data(), nil)
	if err != nil {
		return nil, err
	}
	e.info("packing keyswitch key converted",
		"inputDimension", int(in.InputLWEDimension()),
		"glweDimension", int(in.OutputGLWEDimension()),
		"bytesPerDevice", len(in.Data())*8)
	return &LWEPackingKeyswitchKey{
		e:       e,
		in:      in.InputLWEDimension(),
		k:       in.OutputGLWEDimension(),
		n:       in.OutputPolynomialSize(),
		level:   in.DecompositionLevelCount(),
		baseLog: in.DecompositionBaseLog(),
		words:   len(in.Data()),
		bufs:    bufs,
	}, nil
}

// ConvertPFPKSK replicates the packing keys of the circuit bootstrap on
// every device.
func (e *Engine) ConvertPFPKSK(in *cpu.CircuitBootstrapKeys) (*CircuitBootstrapKeys, error) {
	if err := tfhe.CheckPolynomialSize(tfhe.OpConvertPFPKSK, in.OutputPolynomialSize()); err != nil {
		return nil, err
	}
	total := 0
	for _, key := range in.Keys() {
		total += len(key)
	}
	if err := e.checkReplicated(total); err != nil {
		return nil, tfhe.OpError(tfhe.OpConvertPFPKSK, err)
	}
	out, err := e.convertPFPKSK(in)
	return out, tfhe.OpError(tfhe.OpConvertPFPKSK, err)
}

func (e *Engine) ConvertPFPKSKUnchecked(in *cpu.CircuitBootstrapKeys) *CircuitBootstrapKeys {
	out, err := e.convertPFPKSK(in)
	e.record(tfhe.OpConvertPFPKSK, err)
	return out
}

func (e *Engine) convertPFPKSK(in *cpu.CircuitBootstrapKeys) (*CircuitBootstrapKeys, error) {
	out := &CircuitBootstrapKeys{
		e:       e,
		in:      in.InputLWEDimension(),
		k:       in.OutputGLWEDimension(),
		n:       in.OutputPolynomialSize(),
		level:   in.DecompositionLevelCount(),
		baseLog: in.DecompositionBaseLog(),
	}
	for c, key := range in.Keys() {
		bufs, err := e.replicate(key, nil)
		if err != nil {
			_ = out.release()
			return nil, fmt.Errorf("packing key %d: %w", c, err)
		}
		out.keys = append(out.keys, bufs)
		out.words = len(key)
	}
	e.info("packing keys converted", "keys", len(out.keys), "bytesPerDevice", len(out.keys)*out.words*8)
	return out, nil
}

// ConvertPFPKSKToHost copies the packing keys of device 0 back.
func (e *Engine) ConvertPFPKSKToHost(in *CircuitBootstrapKeys) (*cpu.CircuitBootstrapKeys, error) {
	if err := e.owns(tfhe.OpConvertPFPKSK, in); err != nil {
		return nil, err
	}
	out, err := e.pfpkskToHost(in)
	return out, tfhe.OpError(tfhe.OpConvertPFPKSK, err)
}

func (e *Engine) ConvertPFPKSKToHostUnchecked(in *CircuitBootstrapKeys) *cpu.CircuitBootstrapKeys {
	out, err := e.pfpkskToHost(in)
	e.record(tfhe.OpConvertPFPKSK, err)
	return out
}

func (e *Engine) pfpkskToHost(in *CircuitBootstrapKeys) (*cpu.CircuitBootstrapKeys, error) {
	keys := make([][]uint64, len(in.keys))
	for c, bufs := range in.keys {
		keys[c] = make([]uint64, in.words)
		if err := copyReplica(bufs, keys[c]); err != nil {
			return nil, fmt.Errorf("packing key %d: %w", c, err)
		}
	}
	return cpu.CircuitBootstrapKeysFromData(in.k, in.n, in.level, in.baseLog, keys)
}
