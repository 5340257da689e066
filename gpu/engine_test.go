// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/montanaflynn/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/cpu"
	"github.com/luxfi/tfhe/gpu/driver/emulator"
	"github.com/luxfi/tfhe/internal/core"
)

// Small insecure parameters.
const (
	testN         = 512
	testK         = 1
	testLWEDim    = 32
	testLWENoise  = 1.0 / (1 << 25)
	testGLWENoise = 1.0 / (1 << 40)
)

type hostKeys struct {
	engine  *cpu.Engine
	lweKey  *cpu.LWESecretKey
	glweKey *cpu.GLWESecretKey
	bigKey  *cpu.LWESecretKey
	bsk     *cpu.LWEBootstrapKey
	ksk     *cpu.LWEKeyswitchKey
}

var (
	keysOnce sync.Once
	keys     *hostKeys
	keysErr  error

	cbsOnce sync.Once
	cbsKeys *cpu.CircuitBootstrapKeys
	cbsErr  error
)

func testKeys(t testing.TB) *hostKeys {
	t.Helper()
	keysOnce.Do(func() {
		ks := &hostKeys{}
		if ks.engine, keysErr = cpu.New([]byte("gpu engine tests")); keysErr != nil {
			return
		}
		h := ks.engine
		if ks.lweKey, keysErr = h.GenerateLWESecretKey(testLWEDim); keysErr != nil {
			return
		}
		if ks.glweKey, keysErr = h.GenerateGLWESecretKey(testK, testN); keysErr != nil {
			return
		}
		ks.bigKey = ks.glweKey.ExtractedLWESecretKey()
		if ks.bsk, keysErr = h.GenerateLWEBootstrapKey(ks.lweKey, ks.glweKey, 3, 10, testGLWENoise); keysErr != nil {
			return
		}
		ks.ksk, keysErr = h.GenerateLWEKeyswitchKey(ks.bigKey, ks.lweKey, 4, 5, testLWENoise)
		keys = ks
	})
	require.NoError(t, keysErr)
	return keys
}

func testCircuitBootstrapKeys(t *testing.T, ks *hostKeys) *cpu.CircuitBootstrapKeys {
	t.Helper()
	cbsOnce.Do(func() {
		cbsKeys, cbsErr = ks.engine.GenerateCircuitBootstrapKeys(ks.glweKey, 3, 10, testGLWENoise)
	})
	require.NoError(t, cbsErr)
	return cbsKeys
}

func testDriver(devices int, memory int64) *emulator.Driver {
	return emulator.New(emulator.Config{
		Devices:         devices,
		MemoryPerDevice: memory,
		MaxSharedMemory: 48 << 10,
		QueueDepth:      64,
	})
}

func newTestEngine(t testing.TB, devices int) (*Engine, *emulator.Driver) {
	t.Helper()
	drv := testDriver(devices, 512<<20)
	e, err := New(Config{Driver: drv, StreamsPerDevice: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e, drv
}

func newTestAmortizedEngine(t testing.TB, devices int) *AmortizedEngine {
	t.Helper()
	e, err := NewAmortized(Config{Driver: testDriver(devices, 512<<20), StreamsPerDevice: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })
	return e
}

// deviceKeys converts the host keys for e.
func deviceKeys(t testing.TB, e *Engine, ks *hostKeys) (*FourierLWEBootstrapKey, *LWEKeyswitchKey) {
	t.Helper()
	bsk, err := e.ConvertLWEBootstrapKey(ks.bsk)
	require.NoError(t, err)
	ksk, err := e.ConvertLWEKeyswitchKey(ks.ksk)
	require.NoError(t, err)
	return bsk, ksk
}

func (ks *hostKeys) encrypt(t *testing.T, e *Engine, values ...uint64) *LWECiphertextVector {
	t.Helper()
	ct, err := ks.engine.EncryptLWECiphertextVector(ks.lweKey, tfhe.NewPlaintextVector(values), testLWENoise)
	require.NoError(t, err)
	out, err := e.ConvertLWECiphertextVector(ct)
	require.NoError(t, err)
	return out
}

func (ks *hostKeys) encryptBits(t testing.TB, e *Engine, bits ...bool) *LWECiphertextVector {
	t.Helper()
	ct, err := ks.engine.EncryptBooleanLWECiphertextVector(ks.lweKey, bits, testLWENoise)
	require.NoError(t, err)
	out, err := e.ConvertLWECiphertextVector(ct)
	require.NoError(t, err)
	return out
}

func (ks *hostKeys) phases(t *testing.T, e *Engine, key *cpu.LWESecretKey, ct *LWECiphertextVector) []uint64 {
	t.Helper()
	host, err := e.ConvertLWECiphertextVectorToHost(ct)
	require.NoError(t, err)
	pt, err := ks.engine.DecryptLWECiphertextVector(key, host)
	require.NoError(t, err)
	return pt.Values()
}

func (ks *hostKeys) bits(t *testing.T, e *Engine, ct *LWECiphertextVector) []bool {
	t.Helper()
	host, err := e.ConvertLWECiphertextVectorToHost(ct)
	require.NoError(t, err)
	got, err := ks.engine.DecryptBooleanLWECiphertextVector(ks.lweKey, host)
	require.NoError(t, err)
	return got
}

func distance(a, b uint64) float64 {
	return math.Abs(float64(core.ToSigned(core.SubMod(a, b)))) / float64(core.Q)
}

func TestNew(t *testing.T) {
	e, _ := newTestEngine(t, 3)
	require.Equal(t, tfhe.BackendCUDA, e.Backend())
	require.Equal(t, 3, e.Devices())
	require.Equal(t, 48<<10, e.MaxSharedMemory())

	a := newTestAmortizedEngine(t, 2)
	require.Equal(t, tfhe.BackendCUDAAmortized, a.Backend())

	_, err := New(Config{Driver: testDriver(0, 1<<20)})
	require.ErrorIs(t, err, tfhe.ErrDeviceNotFound)
	require.Equal(t, tfhe.KindResource, tfhe.KindOf(err))
	var opErr *tfhe.OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpNewEngine, opErr.Op)

	d, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, 1, d.Devices())
	require.NoError(t, d.Shutdown())
	require.NoError(t, d.Shutdown())
}

func TestConversions(t *testing.T) {
	ks := testKeys(t)
	h := ks.engine
	e, drv := newTestEngine(t, 3)

	t.Run("lwe ciphertext vector", func(t *testing.T) {
		enc, err := tfhe.NewEncoder(0, 8, 3, 1)
		require.NoError(t, err)
		pt, err := enc.Encode([]float64{1, 2, 3, 4, 5})
		require.NoError(t, err)
		in, err := h.EncryptLWECiphertextVector(ks.lweKey, pt, testLWENoise)
		require.NoError(t, err)

		dev, err := e.ConvertLWECiphertextVector(in)
		require.NoError(t, err)
		require.Equal(t, []Chunk{{0, 0, 1}, {1, 1, 1}, {2, 2, 3}}, dev.Chunks())
		require.Equal(t, tfhe.BackendCUDA, dev.Backend())

		back, err := e.ConvertLWECiphertextVectorToHost(dev)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(in.Data(), back.Data()))
		for _, got := range back.Encoders() {
			require.True(t, got.Equal(enc))
		}
	})

	t.Run("single lwe ciphertext", func(t *testing.T) {
		in := h.EncryptLWECiphertext(ks.lweKey, core.Scale(3), tfhe.BooleanEncoder(), testLWENoise)
		dev, err := e.ConvertLWECiphertext(in)
		require.NoError(t, err)
		back, err := e.ConvertLWECiphertextToHost(dev)
		require.NoError(t, err)
		require.Equal(t, in.Data(), back.Data())
		require.Same(t, in.Encoder(), back.Encoder())

		unchecked := e.ConvertLWECiphertextUnchecked(in)
		require.NotNil(t, unchecked)
		backUnchecked := e.ConvertLWECiphertextToHostUnchecked(unchecked)
		require.NoError(t, e.Synchronize())
		require.Equal(t, in.Data(), backUnchecked.Data())

		other, _ := newTestEngine(t, 1)
		_, err = other.ConvertLWECiphertextToHost(dev)
		require.ErrorIs(t, err, tfhe.ErrUnsupportedEntity)
		var opErr *tfhe.OperationError
		require.ErrorAs(t, err, &opErr)
		require.Equal(t, tfhe.OpConvertLWE, opErr.Op)
	})

	t.Run("single glwe ciphertext", func(t *testing.T) {
		msg := make([]uint64, testN)
		for i := range msg {
			msg[i] = uint64(i) * core.Scale(9)
		}
		in, err := h.EncryptGLWECiphertext(ks.glweKey, tfhe.NewPlaintextVector(msg), testGLWENoise)
		require.NoError(t, err)
		dev, err := e.ConvertGLWECiphertext(in)
		require.NoError(t, err)
		require.Equal(t, tfhe.GLWEDimension(testK), dev.GLWEDimension())
		back, err := e.ConvertGLWECiphertextToHost(dev)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(in.Data(), back.Data()))

		backUnchecked := e.ConvertGLWECiphertextToHostUnchecked(e.ConvertGLWECiphertextUnchecked(in))
		require.NoError(t, e.Synchronize())
		require.Empty(t, cmp.Diff(in.Data(), backUnchecked.Data()))

		zero, err := e.NewGLWECiphertext(testK, testN)
		require.NoError(t, err)
		back, err = e.ConvertGLWECiphertextToHost(zero)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(make([]uint64, (testK+1)*testN), back.Data()))
	})

	t.Run("glwe ciphertext vector", func(t *testing.T) {
		tv := make([]uint64, 2*testN)
		for i := range tv {
			tv[i] = uint64(i) * 977
		}
		in, err := h.TrivialEncryptGLWECiphertextVector(testK, testN, tfhe.NewPlaintextVector(tv))
		require.NoError(t, err)
		dev, err := e.ConvertGLWECiphertextVector(in)
		require.NoError(t, err)
		require.Equal(t, 2, dev.Count())
		back, err := e.ConvertGLWECiphertextVectorToHost(dev)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(in.Data(), back.Data()))
	})

	t.Run("plaintext and cleartext vectors", func(t *testing.T) {
		enc, err := tfhe.NewEncoder(-1, 1, 4, 0)
		require.NoError(t, err)
		pt, err := enc.Encode([]float64{-1, 0, 0.5})
		require.NoError(t, err)
		dev, err := e.ConvertPlaintextVector(pt)
		require.NoError(t, err)
		back, err := e.ConvertPlaintextVectorToHost(dev)
		require.NoError(t, err)
		require.Equal(t, pt.Values(), back.Values())
		require.Len(t, back.Encoders(), 3)

		cl := tfhe.NewCleartextVector([]int64{-7, 0, 1 << 40, math.MinInt32})
		devCl, err := e.ConvertCleartextVector(cl)
		require.NoError(t, err)
		backCl, err := e.ConvertCleartextVectorToHost(devCl)
		require.NoError(t, err)
		require.Equal(t, cl.Values(), backCl.Values())
	})

	t.Run("keys", func(t *testing.T) {
		bsk, ksk := deviceKeys(t, e, ks)
		require.Equal(t, ks.bsk.InputLWEDimension(), bsk.InputLWEDimension())
		require.Equal(t, ks.bsk.DecompositionLevelCount(), bsk.DecompositionLevelCount())

		standard, err := e.ConvertLWEBootstrapKeyToStandard(bsk)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(ks.bsk.Data(), standard.Data()))

		backKSK, err := e.ConvertLWEKeyswitchKeyToHost(ksk)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(ks.ksk.Data(), backKSK.Data()))
		require.Equal(t, ks.ksk.OutputLWEDimension(), backKSK.OutputLWEDimension())

		for d := 0; d < 3; d++ {
			s, err := drv.Stats(d)
			require.NoError(t, err)
			require.GreaterOrEqual(t, s.MemoryUsed, int64(len(ks.bsk.Data())+len(ks.ksk.Data()))*8, "device %d", d)
		}
		require.NoError(t, e.Destroy(bsk))
		require.NoError(t, e.Destroy(ksk))
	})
}

func TestPolynomialSizeNotSupported(t *testing.T) {
	e, drv := newTestEngine(t, 2)
	data := make([]uint64, core.GGSWSize(1, 768, 1))
	bsk, err := cpu.LWEBootstrapKeyFromData(1, 768, 1, 1, 10, data)
	require.NoError(t, err)

	_, err = e.ConvertLWEBootstrapKey(bsk)
	require.ErrorIs(t, err, tfhe.ErrPolynomialSizeNotSupported)
	require.Equal(t, tfhe.KindValidation, tfhe.KindOf(err))
	require.Zero(t, e.Stats().Allocations)
	for d := 0; d < 2; d++ {
		s, err := drv.Stats(d)
		require.NoError(t, err)
		require.Zero(t, s.Allocations)
		require.Zero(t, s.BytesToDevice)
	}
}

func TestOutOfDeviceMemory(t *testing.T) {
	ks := testKeys(t)
	e, err := New(Config{Driver: testDriver(2, 1<<20)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Shutdown() })

	_, err = e.ConvertLWEBootstrapKey(ks.bsk)
	require.ErrorIs(t, err, tfhe.ErrOutOfDeviceMemory)
	require.Equal(t, tfhe.KindResource, tfhe.KindOf(err))
	require.Zero(t, e.Stats().Allocations)

	require.Nil(t, e.ConvertLWEBootstrapKeyUnchecked(ks.bsk))
	err = e.Synchronize()
	require.ErrorIs(t, err, tfhe.ErrOutOfDeviceMemory)
	var opErr *tfhe.OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpConvertBootstrapKey, opErr.Op)
	require.NoError(t, e.Synchronize())

	e.headroom = 1 << 20
	_, err = e.NewLWECiphertextVector(testLWEDim, 1)
	require.ErrorIs(t, err, tfhe.ErrOutOfDeviceMemory)

	host := ks.engine.EncryptLWECiphertext(ks.lweKey, core.Scale(2), tfhe.BooleanEncoder(), testLWENoise)
	_, err = e.ConvertLWECiphertext(host)
	require.ErrorIs(t, err, tfhe.ErrOutOfDeviceMemory)
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpConvertLWE, opErr.Op)
}

func TestDimensionMismatch(t *testing.T) {
	e, _ := newTestEngine(t, 2)
	out, err := e.NewLWECiphertextVector(512, 4)
	require.NoError(t, err)
	in, err := e.NewLWECiphertextVector(1024, 4)
	require.NoError(t, err)
	launches := e.Stats().Launches

	err = e.DiscardAddLWECiphertextVector(out, in, in)
	require.ErrorIs(t, err, tfhe.ErrLWEDimensionMismatch)
	var opErr *tfhe.OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpAddLWEVector, opErr.Op)

	short, err := e.NewLWECiphertextVector(512, 3)
	require.NoError(t, err)
	err = e.DiscardOppositeLWECiphertextVector(out, short)
	require.ErrorIs(t, err, tfhe.ErrCiphertextCountMismatch)
	require.Equal(t, launches, e.Stats().Launches)
}

func TestLinearOperations(t *testing.T) {
	ks := testKeys(t)
	h := ks.engine
	e, _ := newTestEngine(t, 3)

	enc, err := tfhe.NewEncoder(0, 8, 3, 1)
	require.NoError(t, err)
	pa, err := enc.Encode([]float64{2, 0, 7, 1})
	require.NoError(t, err)
	pb, err := enc.Encode([]float64{3, 6, 7, 1})
	require.NoError(t, err)
	ha, err := h.EncryptLWECiphertextVector(ks.lweKey, pa, testLWENoise)
	require.NoError(t, err)
	hb, err := h.EncryptLWECiphertextVector(ks.lweKey, pb, testLWENoise)
	require.NoError(t, err)
	a, err := e.ConvertLWECiphertextVector(ha)
	require.NoError(t, err)
	b, err := e.ConvertLWECiphertextVector(hb)
	require.NoError(t, err)

	decode := func(t *testing.T, ct *LWECiphertextVector) []float64 {
		host, err := e.ConvertLWECiphertextVectorToHost(ct)
		require.NoError(t, err)
		pt, err := h.DecryptLWECiphertextVector(ks.lweKey, host)
		require.NoError(t, err)
		decoded, err := pt.Decode()
		require.NoError(t, err)
		return decoded
	}

	t.Run("add", func(t *testing.T) {
		sum, err := e.AddLWECiphertextVector(a, b)
		require.NoError(t, err)
		sumEnc, err := enc.AddWithPadding(enc)
		require.NoError(t, err)
		for _, got := range sum.Encoders() {
			require.True(t, got.Equal(sumEnc))
		}
		decoded := decode(t, sum)
		for i, want := range []float64{5, 6, 14, 2} {
			assert.InDelta(t, want, decoded[i], sumEnc.Granularity()/2)
		}

		hostSum, err := h.AddLWECiphertextVector(ha, hb)
		require.NoError(t, err)
		back, err := e.ConvertLWECiphertextVectorToHost(sum)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(hostSum.Data(), back.Data()))
	})

	t.Run("add mismatched encoders", func(t *testing.T) {
		out, err := e.NewLWECiphertextVector(testLWEDim, 4)
		require.NoError(t, err)
		c := ks.encrypt(t, e, 1, 2, 3, 4)
		require.NoError(t, e.DiscardAddLWECiphertextVector(out, a, c))
		for _, got := range out.Encoders() {
			require.Nil(t, got)
		}
	})

	t.Run("opposite", func(t *testing.T) {
		in := ks.encrypt(t, e, core.Scale(3), 0, core.Scale(2), 1)
		out, err := e.NewLWECiphertextVector(testLWEDim, 4)
		require.NoError(t, err)
		require.NoError(t, e.DiscardOppositeLWECiphertextVector(out, in))
		got := ks.phases(t, e, ks.lweKey, out)
		require.Less(t, distance(got[0], core.NegMod(core.Scale(3))), 1.0/(1<<20))
		require.Less(t, distance(got[1], 0), 1.0/(1<<20))
		require.Less(t, distance(got[2], core.NegMod(core.Scale(2))), 1.0/(1<<20))
		for _, enc := range out.Encoders() {
			require.Nil(t, enc)
		}
	})

	t.Run("plaintext addition", func(t *testing.T) {
		out, err := e.NewLWECiphertextVector(testLWEDim, 4)
		require.NoError(t, err)
		shift, err := e.ConvertPlaintextVector(enc.EncodeShift([]float64{1, 1, -3, 2}))
		require.NoError(t, err)
		require.NoError(t, e.DiscardAddLWECiphertextVectorPlaintextVector(out, a, shift))
		require.Equal(t, []float64{3, 1, 4, 3}, decode(t, out))

		one, err := e.ConvertPlaintextVector(tfhe.NewPlaintextVector([]uint64{1}))
		require.NoError(t, err)
		err = e.DiscardAddLWECiphertextVectorPlaintextVector(out, a, one)
		require.ErrorIs(t, err, tfhe.ErrPlaintextCountMismatch)
	})

	t.Run("cleartext multiplication", func(t *testing.T) {
		in := ks.encrypt(t, e, core.Scale(4), core.Scale(4), core.Scale(4), core.Scale(4))
		out, err := e.NewLWECiphertextVector(testLWEDim, 4)
		require.NoError(t, err)
		cl, err := e.ConvertCleartextVector(tfhe.NewCleartextVector([]int64{3, -2, 0, 1}))
		require.NoError(t, err)
		require.NoError(t, e.DiscardMulLWECiphertextVectorCleartextVector(out, in, cl))
		got := ks.phases(t, e, ks.lweKey, out)
		require.Less(t, distance(got[0], core.MulMod(3, core.Scale(4))), 1.0/(1<<18))
		require.Less(t, distance(got[1], core.NegMod(core.Scale(3))), 1.0/(1<<18))
		require.Less(t, distance(got[2], 0), 1.0/(1<<18))
		require.Less(t, distance(got[3], core.Scale(4)), 1.0/(1<<18))
	})
}

func TestLoadStore(t *testing.T) {
	ks := testKeys(t)
	e, drv := newTestEngine(t, 3)

	vec := ks.encrypt(t, e, 1, 2, 3)
	vec.Encoders()[2] = tfhe.BooleanEncoder()
	host, err := e.ConvertLWECiphertextVectorToHost(vec)
	require.NoError(t, err)
	size := testLWEDim + 1

	ct, err := e.NewLWECiphertext(testLWEDim)
	require.NoError(t, err)
	require.NoError(t, e.DiscardLoadLWECiphertext(ct, vec, 2))
	got, err := e.ConvertLWECiphertextToHost(ct)
	require.NoError(t, err)
	require.Equal(t, host.Data()[2*size:3*size], got.Data())
	require.True(t, got.Encoder().Equal(tfhe.BooleanEncoder()))

	peer, err := drv.Stats(0)
	require.NoError(t, err)
	require.Equal(t, uint64(size*8), peer.BytesPeer)

	dst, err := e.NewLWECiphertextVector(testLWEDim, 3)
	require.NoError(t, err)
	require.NoError(t, e.DiscardStoreLWECiphertext(dst, ct, 1))
	back, err := e.ConvertLWECiphertextVectorToHost(dst)
	require.NoError(t, err)
	require.Equal(t, got.Data(), back.Data()[size:2*size])
	require.Equal(t, make([]uint64, size), back.Data()[:size])
	require.Same(t, ct.Encoder(), back.Encoders()[1])

	tests := []struct {
		name string
		err  error
		run  func() error
	}{
		{"load negative", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardLoadLWECiphertext(ct, vec, -1) }},
		{"load past end", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardLoadLWECiphertext(ct, vec, 3) }},
		{"store past end", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardStoreLWECiphertext(dst, ct, 3) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), tt.err)
		})
	}
}

func TestKeyswitch(t *testing.T) {
	ks := testKeys(t)
	h := ks.engine
	e, _ := newTestEngine(t, 3)
	_, ksk := deviceKeys(t, e, ks)

	msgs := []uint64{0, core.Scale(2), core.Scale(3) * 5, core.Scale(1)}
	hostIn, err := h.EncryptLWECiphertextVector(ks.bigKey, tfhe.NewPlaintextVector(msgs), testLWENoise)
	require.NoError(t, err)
	in, err := e.ConvertLWECiphertextVector(hostIn)
	require.NoError(t, err)
	out, err := e.NewLWECiphertextVector(testLWEDim, len(msgs))
	require.NoError(t, err)
	require.NoError(t, e.DiscardKeyswitchLWECiphertextVector(out, in, ksk))
	for i, got := range ks.phases(t, e, ks.lweKey, out) {
		require.Less(t, distance(got, msgs[i]), 1.0/(1<<10))
	}

	err = e.DiscardKeyswitchLWECiphertextVector(out, out, ksk)
	require.ErrorIs(t, err, tfhe.ErrInputLWEDimensionMismatch)
	require.Equal(t, tfhe.KindCompatibility, tfhe.KindOf(err))
}

// bootstrapInputs returns count ciphertexts of Q/8 and one accumulator per
// ciphertext whose test vector is constant at (i+1)*Q/64, so output i
// reveals which accumulator it used.
func bootstrapInputs(t *testing.T, ks *hostKeys, count int) (*cpu.LWECiphertextVector, *cpu.GLWECiphertextVector, []uint64) {
	t.Helper()
	msgs := make([]uint64, count)
	want := make([]uint64, count)
	tv := make([]uint64, count*testN)
	for i := range msgs {
		msgs[i] = core.Scale(3)
		want[i] = uint64(i+1) * core.Scale(6)
		for j := 0; j < testN; j++ {
			tv[i*testN+j] = want[i]
		}
	}
	in, err := ks.engine.EncryptLWECiphertextVector(ks.lweKey, tfhe.NewPlaintextVector(msgs), testLWENoise)
	require.NoError(t, err)
	acc, err := ks.engine.TrivialEncryptGLWECiphertextVector(testK, testN, tfhe.NewPlaintextVector(tv))
	require.NoError(t, err)
	return in, acc, want
}

func runBootstrap(t *testing.T, e *Engine, ks *hostKeys, in *cpu.LWECiphertextVector, acc *cpu.GLWECiphertextVector) *LWECiphertextVector {
	t.Helper()
	bsk, _ := deviceKeys(t, e, ks)
	devIn, err := e.ConvertLWECiphertextVector(in)
	require.NoError(t, err)
	devAcc, err := e.ConvertGLWECiphertextVector(acc)
	require.NoError(t, err)
	out, err := e.NewLWECiphertextVector(tfhe.BootstrapOutputDimension(bsk), in.Count())
	require.NoError(t, err)
	require.NoError(t, e.DiscardBootstrapLWECiphertextVector(out, devIn, devAcc, bsk))
	return out
}

func TestBootstrap(t *testing.T) {
	ks := testKeys(t)
	in, acc, want := bootstrapInputs(t, ks, 7)

	e, _ := newTestEngine(t, 3)
	out := runBootstrap(t, e, ks, in, acc)
	require.Equal(t, []Chunk{{0, 0, 2}, {1, 2, 2}, {2, 4, 3}}, out.Chunks())

	errs := make([]float64, 0, len(want))
	for i, got := range ks.phases(t, e, ks.bigKey, out) {
		d := distance(got, want[i])
		require.Less(t, d, 1.0/(1<<10), "ciphertext %d", i)
		errs = append(errs, d)
	}
	sd, err := stats.StandardDeviation(errs)
	require.NoError(t, err)
	require.Less(t, sd, 1.0/(1<<10))
	for _, enc := range out.Encoders() {
		require.Nil(t, enc)
	}

	t.Run("amortized matches low latency", func(t *testing.T) {
		a := newTestAmortizedEngine(t, 3)
		amortized := runBootstrap(t, a.Engine, ks, in, acc)

		lowLatency, err := e.ConvertLWECiphertextVectorToHost(out)
		require.NoError(t, err)
		got, err := a.ConvertLWECiphertextVectorToHost(amortized)
		require.NoError(t, err)
		require.Empty(t, cmp.Diff(lowLatency.Data(), got.Data()))
	})

	t.Run("amortized index memory", func(t *testing.T) {
		a := newTestAmortizedEngine(t, 3)
		bsk, _ := deviceKeys(t, a.Engine, ks)
		devIn, err := a.ConvertLWECiphertextVector(in)
		require.NoError(t, err)
		devAcc, err := a.ConvertGLWECiphertextVector(acc)
		require.NoError(t, err)
		out, err := a.NewLWECiphertextVector(tfhe.BootstrapOutputDimension(bsk), in.Count())
		require.NoError(t, err)

		free := int64(math.MaxInt64)
		for d := 0; d < 3; d++ {
			f, err := a.drv.FreeMemory(d)
			require.NoError(t, err)
			free = min(free, f)
		}
		// room for the 3 indexes of the largest chunk, not for all 7
		a.headroom = free - 5*8
		launches := a.Stats().Launches
		err = a.DiscardBootstrapLWECiphertextVector(out, devIn, devAcc, bsk)
		require.ErrorIs(t, err, tfhe.ErrOutOfDeviceMemory)
		require.Equal(t, launches, a.Stats().Launches)

		a.headroom = 0
		require.NoError(t, a.DiscardBootstrapLWECiphertextVector(out, devIn, devAcc, bsk))
	})

	t.Run("accumulator count", func(t *testing.T) {
		bsk, _ := deviceKeys(t, e, ks)
		devIn, err := e.ConvertLWECiphertextVector(in)
		require.NoError(t, err)
		short, err := ks.engine.TrivialEncryptGLWECiphertextVector(testK, testN, tfhe.NewPlaintextVector(make([]uint64, testN)))
		require.NoError(t, err)
		devAcc, err := e.ConvertGLWECiphertextVector(short)
		require.NoError(t, err)
		err = e.DiscardBootstrapLWECiphertextVector(out, devIn, devAcc, bsk)
		require.ErrorIs(t, err, tfhe.ErrAccumulatorCountMismatch)
	})
}

type gateFunc func(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error

func gateTable(e *Engine) []struct {
	name  string
	gate  gateFunc
	truth func(x, y bool) bool
} {
	return []struct {
		name  string
		gate  gateFunc
		truth func(x, y bool) bool
	}{
		{"and", e.DiscardAndLWECiphertextVector, func(x, y bool) bool { return x && y }},
		{"or", e.DiscardOrLWECiphertextVector, func(x, y bool) bool { return x || y }},
		{"nand", e.DiscardNandLWECiphertextVector, func(x, y bool) bool { return !(x && y) }},
		{"nor", e.DiscardNorLWECiphertextVector, func(x, y bool) bool { return !(x || y) }},
		{"xor", e.DiscardXorLWECiphertextVector, func(x, y bool) bool { return x != y }},
		{"xnor", e.DiscardXnorLWECiphertextVector, func(x, y bool) bool { return x == y }},
	}
}

func TestGates(t *testing.T) {
	ks := testKeys(t)
	a := []bool{false, false, true, true}
	b := []bool{false, true, false, true}

	engines := []struct {
		name string
		e    *Engine
	}{
		{"low latency", func() *Engine { e, _ := newTestEngine(t, 3); return e }()},
		{"amortized", newTestAmortizedEngine(t, 3).Engine},
	}
	for _, eng := range engines {
		e := eng.e
		bsk, ksk := deviceKeys(t, e, ks)
		in1 := ks.encryptBits(t, e, a...)
		in2 := ks.encryptBits(t, e, b...)

		for _, tt := range gateTable(e) {
			t.Run(eng.name+" "+tt.name, func(t *testing.T) {
				out, err := e.NewLWECiphertextVector(testLWEDim, len(a))
				require.NoError(t, err)
				require.NoError(t, tt.gate(out, in1, in2, bsk, ksk))
				got := ks.bits(t, e, out)
				for i := range a {
					assert.Equal(t, tt.truth(a[i], b[i]), got[i], "%v %s %v", a[i], tt.name, b[i])
				}
				for _, enc := range out.Encoders() {
					assert.True(t, enc.Equal(tfhe.BooleanEncoder()))
				}
			})
		}

		t.Run(eng.name+" not", func(t *testing.T) {
			out, err := e.NewLWECiphertextVector(testLWEDim, len(a))
			require.NoError(t, err)
			require.NoError(t, e.DiscardNotLWECiphertextVector(out, in1))
			require.Equal(t, []bool{true, true, false, false}, ks.bits(t, e, out))
		})

		t.Run(eng.name+" unchecked chain", func(t *testing.T) {
			x, err := e.NewLWECiphertextVector(testLWEDim, len(a))
			require.NoError(t, err)
			e.DiscardXorLWECiphertextVectorUnchecked(x, in1, in2, bsk, ksk)
			e.DiscardAndLWECiphertextVectorUnchecked(x, x, in1, bsk, ksk)
			e.DiscardNotLWECiphertextVectorUnchecked(x, x)
			require.NoError(t, e.Synchronize())
			require.Equal(t, []bool{true, true, false, true}, ks.bits(t, e, x))
		})
	}

	t.Run("wrong keys", func(t *testing.T) {
		e := engines[0].e
		bsk, ksk := deviceKeys(t, e, ks)
		big, err := e.NewLWECiphertextVector(tfhe.BootstrapOutputDimension(bsk), len(a))
		require.NoError(t, err)
		err = e.DiscardAndLWECiphertextVector(big, big, big, bsk, ksk)
		require.ErrorIs(t, err, tfhe.ErrInputLWEDimensionMismatch)
	})
}

func TestCircuitBootstrapVerticalPacking(t *testing.T) {
	ks := testKeys(t)
	hostCBS := testCircuitBootstrapKeys(t, ks)
	e, _ := newTestEngine(t, 2)
	bsk, _ := deviceKeys(t, e, ks)
	cbs, err := e.ConvertPFPKSK(hostCBS)
	require.NoError(t, err)
	require.Equal(t, 2, cbs.Count())

	back, err := e.ConvertPFPKSKToHost(cbs)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(hostCBS.Keys(), back.Keys()))

	// Two tables over two bits: x -> x/8 and x -> (3-x)/8.
	step := core.Scale(3)
	luts := make([]uint64, 8)
	for x := 0; x < 4; x++ {
		luts[x] = uint64(x) * step
		luts[4+x] = uint64(3-x) * step
	}
	lutVec, err := e.ConvertPlaintextVector(tfhe.NewPlaintextVector(luts))
	require.NoError(t, err)

	for x := 0; x < 4; x++ {
		pt, err := tfhe.BitEncoder().Encode([]float64{float64(x >> 1), float64(x & 1)})
		require.NoError(t, err)
		hostIn, err := ks.engine.EncryptLWECiphertextVector(ks.lweKey, pt, testLWENoise)
		require.NoError(t, err)
		in, err := e.ConvertLWECiphertextVector(hostIn)
		require.NoError(t, err)

		out, err := e.NewLWECiphertextVector(tfhe.BootstrapOutputDimension(bsk), 2)
		require.NoError(t, err)
		require.NoError(t, e.DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in, bsk, lutVec, 2, 8, cbs))
		got := ks.phases(t, e, ks.bigKey, out)
		require.Less(t, distance(got[0], luts[x]), 1.0/64, "table 0 at %d", x)
		require.Less(t, distance(got[1], luts[4+x]), 1.0/64, "table 1 at %d", x)
	}

	short, err := e.ConvertPlaintextVector(tfhe.NewPlaintextVector(luts[:4]))
	require.NoError(t, err)
	out, err := e.NewLWECiphertextVector(tfhe.BootstrapOutputDimension(bsk), 2)
	require.NoError(t, err)
	in := ks.encrypt(t, e, 0, 0)
	err = e.DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in, bsk, short, 2, 8, cbs)
	require.ErrorIs(t, err, tfhe.ErrLUTCountMismatch)
}

func TestPackingKeyswitch(t *testing.T) {
	ks := testKeys(t)
	h := ks.engine

	one := make([]uint64, testN)
	one[0] = 1
	hostKey, err := h.GenerateLWEPackingKeyswitchKey(ks.lweKey, ks.glweKey, one, 3, 10, testGLWENoise)
	require.NoError(t, err)

	msgs := make([]uint64, 7)
	for i := range msgs {
		msgs[i] = uint64(i+1) * core.Scale(4)
	}
	hostIn, err := h.EncryptLWECiphertextVector(ks.lweKey, tfhe.NewPlaintextVector(msgs), testLWENoise)
	require.NoError(t, err)
	want := cpu.NewGLWECiphertext(testK, testN)
	require.NoError(t, h.DiscardPackingKeyswitchLWECiphertextVector(want, hostIn, hostKey))

	for _, devices := range []int{1, 2, 3} {
		t.Run(fmt.Sprintf("devices=%d", devices), func(t *testing.T) {
			e, _ := newTestEngine(t, devices)
			key, err := e.ConvertLWEPackingKeyswitchKey(hostKey)
			require.NoError(t, err)
			in, err := e.ConvertLWECiphertextVector(hostIn)
			require.NoError(t, err)
			out, err := e.NewGLWECiphertext(testK, testN)
			require.NoError(t, err)

			require.NoError(t, e.DiscardPackingKeyswitchLWECiphertextVector(out, in, key))
			got, err := e.ConvertGLWECiphertextToHost(out)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(want.Data(), got.Data()))

			pt, err := h.DecryptGLWECiphertext(ks.glweKey, got)
			require.NoError(t, err)
			for i, v := range pt.Values() {
				m := uint64(0)
				if i < len(msgs) {
					m = msgs[i]
				}
				require.Less(t, distance(v, m), 1.0/(1<<12), "coefficient %d", i)
			}

			e.DiscardPackingKeyswitchLWECiphertextVectorUnchecked(out, in, key)
			require.NoError(t, e.Synchronize())
			again, err := e.ConvertGLWECiphertextToHost(out)
			require.NoError(t, err)
			require.Empty(t, cmp.Diff(want.Data(), again.Data()))
		})
	}

	t.Run("glwe dimension mismatch", func(t *testing.T) {
		e, _ := newTestEngine(t, 2)
		key, err := e.ConvertLWEPackingKeyswitchKey(hostKey)
		require.NoError(t, err)
		in, err := e.ConvertLWECiphertextVector(hostIn)
		require.NoError(t, err)
		out, err := e.NewGLWECiphertext(testK+1, testN)
		require.NoError(t, err)
		launches := e.Stats().Launches
		err = e.DiscardPackingKeyswitchLWECiphertextVector(out, in, key)
		require.ErrorIs(t, err, tfhe.ErrKeyMismatch)
		require.Equal(t, launches, e.Stats().Launches)
	})
}

func TestDeviceFault(t *testing.T) {
	ks := testKeys(t)
	e, drv := newTestEngine(t, 3)
	a := ks.encrypt(t, e, 1, 2, 3)
	out, err := e.NewLWECiphertextVector(testLWEDim, 3)
	require.NoError(t, err)
	require.NoError(t, e.Synchronize())

	require.NoError(t, drv.InjectFault(1))
	e.DiscardAddLWECiphertextVectorUnchecked(out, a, a)
	err = e.Synchronize()
	require.ErrorIs(t, err, tfhe.ErrDeviceFault)
	require.Equal(t, tfhe.KindResource, tfhe.KindOf(err))

	_, err = e.ConvertLWECiphertextVectorToHost(out)
	require.ErrorIs(t, err, tfhe.ErrDeviceFault)
	var opErr *tfhe.OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpConvertLWEVector, opErr.Op)
}

type foreignEntity struct{}

func (foreignEntity) Backend() tfhe.Backend { return tfhe.BackendCPU }

func TestForeignEntities(t *testing.T) {
	ks := testKeys(t)
	e, drv := newTestEngine(t, 1)
	other, _ := newTestEngine(t, 1)

	mine := ks.encrypt(t, e, 1, 2)
	theirs := ks.encrypt(t, other, 1, 2)
	err := e.DiscardAddLWECiphertextVector(mine, mine, theirs)
	require.ErrorIs(t, err, tfhe.ErrUnsupportedEntity)
	require.ErrorIs(t, e.Destroy(theirs), tfhe.ErrUnsupportedEntity)
	require.ErrorIs(t, e.Destroy(foreignEntity{}), tfhe.ErrUnsupportedEntity)
	require.ErrorIs(t, e.Destroy(nil), tfhe.ErrUnsupportedEntity)

	before, err := drv.Stats(0)
	require.NoError(t, err)
	require.NoError(t, e.Destroy(mine))
	require.NoError(t, e.Destroy(mine))
	require.NoError(t, e.Synchronize())
	after, err := drv.Stats(0)
	require.NoError(t, err)
	require.Less(t, after.MemoryUsed, before.MemoryUsed)
	require.Equal(t, before.Frees+1, after.Frees)
}
