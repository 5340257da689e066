// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"math"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/tfhe"
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

type keySet struct {
	engine  *Engine
	lweKey  *LWESecretKey
	glweKey *GLWESecretKey
	bigKey  *LWESecretKey
	bsk     *LWEBootstrapKey
	bskF    *FourierLWEBootstrapKey
	ksk     *LWEKeyswitchKey
	cbsKeys *CircuitBootstrapKeys
}

var (
	keysOnce sync.Once
	keys     *keySet
	keysErr  error
)

func testKeys(t testing.TB) *keySet {
	t.Helper()
	keysOnce.Do(func() {
		ks := &keySet{}
		if ks.engine, keysErr = New([]byte("cpu engine tests")); keysErr != nil {
			return
		}
		e := ks.engine
		if ks.lweKey, keysErr = e.GenerateLWESecretKey(testLWEDim); keysErr != nil {
			return
		}
		if ks.glweKey, keysErr = e.GenerateGLWESecretKey(testK, testN); keysErr != nil {
			return
		}
		ks.bigKey = ks.glweKey.ExtractedLWESecretKey()
		if ks.bsk, keysErr = e.GenerateLWEBootstrapKey(ks.lweKey, ks.glweKey, 3, 10, testGLWENoise); keysErr != nil {
			return
		}
		if ks.bskF, keysErr = e.ConvertLWEBootstrapKey(ks.bsk); keysErr != nil {
			return
		}
		if ks.ksk, keysErr = e.GenerateLWEKeyswitchKey(ks.bigKey, ks.lweKey, 4, 5, testLWENoise); keysErr != nil {
			return
		}
		ks.cbsKeys, keysErr = e.GenerateCircuitBootstrapKeys(ks.glweKey, 3, 10, testGLWENoise)
		keys = ks
	})
	require.NoError(t, keysErr)
	return keys
}

func distance(a, b uint64) float64 {
	return math.Abs(float64(core.ToSigned(core.SubMod(a, b)))) / float64(core.Q)
}

func (ks *keySet) encrypt(t *testing.T, values ...uint64) *LWECiphertextVector {
	t.Helper()
	ct, err := ks.engine.EncryptLWECiphertextVector(ks.lweKey, tfhe.NewPlaintextVector(values), testLWENoise)
	require.NoError(t, err)
	return ct
}

func (ks *keySet) phases(t *testing.T, key *LWESecretKey, ct *LWECiphertextVector) []uint64 {
	t.Helper()
	pt, err := ks.engine.DecryptLWECiphertextVector(key, ct)
	require.NoError(t, err)
	return pt.Values()
}

func TestNew(t *testing.T) {
	e, err := New([]byte("seed"))
	require.NoError(t, err)
	require.Equal(t, tfhe.BackendCPU, e.Backend())
}

func TestKeyGeneration(t *testing.T) {
	e, err := New([]byte("keygen"))
	require.NoError(t, err)

	_, err = e.GenerateLWESecretKey(0)
	require.ErrorIs(t, err, tfhe.ErrInvalidParameters)

	_, err = e.GenerateGLWESecretKey(1, 768)
	require.ErrorIs(t, err, tfhe.ErrPolynomialSizeNotSupported)
	require.Equal(t, tfhe.KindValidation, tfhe.KindOf(err))

	lwe, err := e.GenerateLWESecretKey(8)
	require.NoError(t, err)
	glwe, err := e.GenerateGLWESecretKey(2, 16)
	require.NoError(t, err)

	_, err = e.GenerateLWEBootstrapKey(lwe, glwe, 10, 10, testGLWENoise)
	require.ErrorIs(t, err, tfhe.ErrDecompositionExceedsPrecision)

	bsk, err := e.GenerateLWEBootstrapKey(lwe, glwe, 2, 8, testGLWENoise)
	require.NoError(t, err)
	assert.Equal(t, tfhe.LWEDimension(8), bsk.InputLWEDimension())
	assert.Equal(t, tfhe.LWEDimension(32), bsk.OutputLWEDimension())
	assert.Len(t, bsk.Data(), 8*2*3*3*16)

	_, err = e.GenerateLWEPackingKeyswitchKey(lwe, glwe, make([]uint64, 8), 2, 8, testGLWENoise)
	require.ErrorIs(t, err, tfhe.ErrAccumulatorPolynomialSizeMismatch)

	cbs, err := e.GenerateCircuitBootstrapKeys(glwe, 2, 8, testGLWENoise)
	require.NoError(t, err)
	assert.Equal(t, 3, cbs.Count())
	assert.Equal(t, tfhe.LWEDimension(32), cbs.InputLWEDimension())
}

func TestEncryption(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	enc, err := tfhe.NewEncoder(-4, 4, 4, 1)
	require.NoError(t, err)
	values := []float64{-4, -1.5, 0, 3.5}
	pt, err := enc.Encode(values)
	require.NoError(t, err)

	ct, err := e.EncryptLWECiphertextVector(ks.lweKey, pt, testLWENoise)
	require.NoError(t, err)
	require.Equal(t, len(values), ct.Count())
	for _, got := range ct.Encoders() {
		require.True(t, got.Equal(enc))
	}

	dec, err := e.DecryptLWECiphertextVector(ks.lweKey, ct)
	require.NoError(t, err)
	decoded, err := dec.Decode()
	require.NoError(t, err)
	for i, v := range values {
		assert.InDelta(t, v, decoded[i], enc.Granularity()/2)
	}

	_, err = e.DecryptLWECiphertextVector(ks.bigKey, ct)
	require.ErrorIs(t, err, tfhe.ErrLWEDimensionMismatch)

	single := e.EncryptLWECiphertext(ks.lweKey, core.Scale(3), nil, testLWENoise)
	phase, err := e.DecryptLWECiphertext(ks.lweKey, single)
	require.NoError(t, err)
	require.Less(t, distance(phase, core.Scale(3)), 1.0/(1<<20))

	trivial := e.TrivialEncryptLWECiphertextVector(testLWEDim, tfhe.NewPlaintextVector([]uint64{7, 9}))
	require.Equal(t, []uint64{7, 9}, ks.phases(t, ks.lweKey, trivial))

	t.Run("glwe", func(t *testing.T) {
		msg := make([]uint64, testN)
		for i := range msg {
			msg[i] = core.FromTorus(float64(i%8) / 8)
		}
		ct, err := e.EncryptGLWECiphertext(ks.glweKey, tfhe.NewPlaintextVector(msg), testGLWENoise)
		require.NoError(t, err)
		pt, err := e.DecryptGLWECiphertext(ks.glweKey, ct)
		require.NoError(t, err)
		for i, v := range pt.Values() {
			require.Less(t, distance(v, msg[i]), 1.0/(1<<30))
		}

		_, err = e.EncryptGLWECiphertext(ks.glweKey, tfhe.NewPlaintextVector(msg[:10]), testGLWENoise)
		require.ErrorIs(t, err, tfhe.ErrPlaintextCountMismatch)
	})

	t.Run("boolean", func(t *testing.T) {
		bits := []bool{true, false, false, true}
		ct, err := e.EncryptBooleanLWECiphertextVector(ks.lweKey, bits, testLWENoise)
		require.NoError(t, err)
		got, err := e.DecryptBooleanLWECiphertextVector(ks.lweKey, ct)
		require.NoError(t, err)
		require.Equal(t, bits, got)
	})
}

func TestLinearOperations(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	enc, err := tfhe.NewEncoder(0, 8, 3, 1)
	require.NoError(t, err)
	pa, err := enc.Encode([]float64{2, 0, 7})
	require.NoError(t, err)
	pb, err := enc.Encode([]float64{3, 6, 7})
	require.NoError(t, err)
	a, err := e.EncryptLWECiphertextVector(ks.lweKey, pa, testLWENoise)
	require.NoError(t, err)
	b, err := e.EncryptLWECiphertextVector(ks.lweKey, pb, testLWENoise)
	require.NoError(t, err)

	t.Run("add", func(t *testing.T) {
		sum, err := e.AddLWECiphertextVector(a, b)
		require.NoError(t, err)
		sumEnc, err := enc.AddWithPadding(enc)
		require.NoError(t, err)
		for _, got := range sum.Encoders() {
			require.True(t, got.Equal(sumEnc))
		}
		pt, err := e.DecryptLWECiphertextVector(ks.lweKey, sum)
		require.NoError(t, err)
		decoded, err := pt.Decode()
		require.NoError(t, err)
		for i, want := range []float64{5, 6, 14} {
			assert.InDelta(t, want, decoded[i], sumEnc.Granularity()/2)
		}
	})

	t.Run("add mismatched encoders", func(t *testing.T) {
		out := NewLWECiphertextVector(testLWEDim, 3)
		c := ks.encrypt(t, 1, 2, 3)
		require.NoError(t, e.DiscardAddLWECiphertextVector(out, a, c))
		for _, got := range out.Encoders() {
			require.Nil(t, got)
		}
	})

	t.Run("opposite", func(t *testing.T) {
		in := ks.encrypt(t, core.Scale(3), 0)
		out := NewLWECiphertextVector(testLWEDim, 2)
		require.NoError(t, e.DiscardOppositeLWECiphertextVector(out, in))
		got := ks.phases(t, ks.lweKey, out)
		require.Less(t, distance(got[0], core.NegMod(core.Scale(3))), 1.0/(1<<20))
		require.Less(t, distance(got[1], 0), 1.0/(1<<20))
	})

	t.Run("plaintext addition", func(t *testing.T) {
		out := NewLWECiphertextVector(testLWEDim, 3)
		shift := enc.EncodeShift([]float64{1, 1, -3})
		require.NoError(t, e.DiscardAddLWECiphertextVectorPlaintextVector(out, a, shift))
		pt, err := e.DecryptLWECiphertextVector(ks.lweKey, out)
		require.NoError(t, err)
		decoded, err := pt.Decode()
		require.NoError(t, err)
		require.Equal(t, []float64{3, 1, 4}, decoded)

		err = e.DiscardAddLWECiphertextVectorPlaintextVector(out, a, tfhe.NewPlaintextVector([]uint64{1}))
		require.ErrorIs(t, err, tfhe.ErrPlaintextCountMismatch)
	})

	t.Run("cleartext multiplication", func(t *testing.T) {
		in := ks.encrypt(t, core.Scale(4), core.Scale(4), core.Scale(4))
		out := NewLWECiphertextVector(testLWEDim, 3)
		require.NoError(t, e.DiscardMulLWECiphertextVectorCleartextVector(out, in, tfhe.NewCleartextVector([]int64{3, -2, 0})))
		got := ks.phases(t, ks.lweKey, out)
		require.Less(t, distance(got[0], core.MulMod(3, core.Scale(4))), 1.0/(1<<18))
		require.Less(t, distance(got[1], core.NegMod(core.Scale(3))), 1.0/(1<<18))
		require.Less(t, distance(got[2], 0), 1.0/(1<<18))

		err := e.DiscardMulLWECiphertextVectorCleartextVector(out, in, tfhe.NewCleartextVector([]int64{1, 2}))
		require.ErrorIs(t, err, tfhe.ErrCleartextCountMismatch)
	})
}

func TestDimensionMismatch(t *testing.T) {
	e, err := New([]byte("mismatch"))
	require.NoError(t, err)
	out := NewLWECiphertextVector(512, 4)
	in := NewLWECiphertextVector(1024, 4)
	before := append([]uint64(nil), out.Data()...)

	err = e.DiscardAddLWECiphertextVector(out, in, in)
	require.ErrorIs(t, err, tfhe.ErrLWEDimensionMismatch)
	require.Equal(t, tfhe.KindValidation, tfhe.KindOf(err))
	var opErr *tfhe.OperationError
	require.ErrorAs(t, err, &opErr)
	require.Equal(t, tfhe.OpAddLWEVector, opErr.Op)
	require.Equal(t, before, out.Data())

	err = e.DiscardOppositeLWECiphertextVector(out, NewLWECiphertextVector(512, 3))
	require.ErrorIs(t, err, tfhe.ErrCiphertextCountMismatch)
}

func TestLoadStore(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine
	vec := ks.encrypt(t, 1, 2, 3)
	vec.Encoders()[1] = tfhe.BooleanEncoder()

	ct := NewLWECiphertext(testLWEDim)
	require.NoError(t, e.DiscardLoadLWECiphertext(ct, vec, 1))
	require.Equal(t, vec.slot(1), ct.Data())
	require.True(t, ct.Encoder().Equal(tfhe.BooleanEncoder()))

	dst := NewLWECiphertextVector(testLWEDim, 2)
	require.NoError(t, e.DiscardStoreLWECiphertext(dst, ct, 0))
	require.Equal(t, ct.Data(), dst.slot(0))
	require.Same(t, ct.Encoder(), dst.Encoders()[0])

	tests := []struct {
		name string
		err  error
		run  func() error
	}{
		{"load negative", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardLoadLWECiphertext(ct, vec, -1) }},
		{"load past end", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardLoadLWECiphertext(ct, vec, 3) }},
		{"store past end", tfhe.ErrIndexOutOfBounds, func() error { return e.DiscardStoreLWECiphertext(dst, ct, 2) }},
		{"load dimension", tfhe.ErrLWEDimensionMismatch, func() error {
			return e.DiscardLoadLWECiphertext(NewLWECiphertext(16), vec, 0)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, tt.run(), tt.err)
		})
	}
}

func TestKeyswitch(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	msgs := []uint64{0, core.Scale(2), core.Scale(3) * 5}
	in, err := e.EncryptLWECiphertextVector(ks.bigKey, tfhe.NewPlaintextVector(msgs), testLWENoise)
	require.NoError(t, err)
	out := NewLWECiphertextVector(testLWEDim, len(msgs))
	require.NoError(t, e.DiscardKeyswitchLWECiphertextVector(out, in, ks.ksk))
	for i, got := range ks.phases(t, ks.lweKey, out) {
		require.Less(t, distance(got, msgs[i]), 1.0/(1<<10))
	}

	err = e.DiscardKeyswitchLWECiphertextVector(out, out, ks.ksk)
	require.ErrorIs(t, err, tfhe.ErrInputLWEDimensionMismatch)
	require.Equal(t, tfhe.KindCompatibility, tfhe.KindOf(err))
}

func TestBootstrap(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	eighth := core.Scale(3)
	in := ks.encrypt(t, eighth, 5*eighth, 3*eighth)
	tv := make([]uint64, 3*testN)
	for i := range tv {
		tv[i] = eighth
	}
	acc, err := e.TrivialEncryptGLWECiphertextVector(testK, testN, tfhe.NewPlaintextVector(tv))
	require.NoError(t, err)
	require.Equal(t, 3, acc.Count())

	out := NewLWECiphertextVector(ks.bskF.OutputLWEDimension(), 3)
	require.NoError(t, e.DiscardBootstrapLWECiphertextVector(out, in, acc, ks.bskF))
	want := []uint64{eighth, core.NegMod(eighth), eighth}
	for i, got := range ks.phases(t, ks.bigKey, out) {
		require.Less(t, distance(got, want[i]), 1.0/(1<<10))
	}

	short, err := e.TrivialEncryptGLWECiphertextVector(testK, testN, tfhe.NewPlaintextVector(tv[:testN]))
	require.NoError(t, err)
	err = e.DiscardBootstrapLWECiphertextVector(out, in, short, ks.bskF)
	require.ErrorIs(t, err, tfhe.ErrAccumulatorCountMismatch)
}

func TestBootstrapKeyConversion(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	back, err := e.ConvertLWEBootstrapKeyToStandard(ks.bskF)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(ks.bsk.Data(), back.Data()))
	require.Equal(t, ks.bsk.GLWEDimension(), back.GLWEDimension())
	require.Equal(t, ks.bsk.PolynomialSize(), back.PolynomialSize())
	require.Equal(t, ks.bsk.InputLWEDimension(), back.InputLWEDimension())
	require.Equal(t, ks.bsk.DecompositionLevelCount(), back.DecompositionLevelCount())
	require.Equal(t, ks.bsk.DecompositionBaseLog(), back.DecompositionBaseLog())

	odd := &LWEBootstrapKey{bootstrapShape: bootstrapShape{k: 1, n: 768, in: 1, level: 1, baseLog: 10}}
	_, err = e.ConvertLWEBootstrapKey(odd)
	require.ErrorIs(t, err, tfhe.ErrPolynomialSizeNotSupported)
}

func TestGates(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	a := []bool{false, false, true, true}
	b := []bool{false, true, false, true}
	in1, err := e.EncryptBooleanLWECiphertextVector(ks.lweKey, a, testLWENoise)
	require.NoError(t, err)
	in2, err := e.EncryptBooleanLWECiphertextVector(ks.lweKey, b, testLWENoise)
	require.NoError(t, err)

	type gateFunc func(out, in1, in2 *LWECiphertextVector, bsk *FourierLWEBootstrapKey, ksk *LWEKeyswitchKey) error
	tests := []struct {
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
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := NewLWECiphertextVector(testLWEDim, len(a))
			require.NoError(t, tt.gate(out, in1, in2, ks.bskF, ks.ksk))
			got, err := e.DecryptBooleanLWECiphertextVector(ks.lweKey, out)
			require.NoError(t, err)
			for i := range a {
				assert.Equal(t, tt.truth(a[i], b[i]), got[i], "%v %s %v", a[i], tt.name, b[i])
			}
			for _, enc := range out.Encoders() {
				assert.True(t, enc.Equal(tfhe.BooleanEncoder()))
			}
		})
	}

	t.Run("not", func(t *testing.T) {
		out := NewLWECiphertextVector(testLWEDim, len(a))
		require.NoError(t, e.DiscardNotLWECiphertextVector(out, in1))
		got, err := e.DecryptBooleanLWECiphertextVector(ks.lweKey, out)
		require.NoError(t, err)
		require.Equal(t, []bool{true, true, false, false}, got)
	})

	t.Run("chained", func(t *testing.T) {
		x := NewLWECiphertextVector(testLWEDim, len(a))
		require.NoError(t, e.DiscardXorLWECiphertextVector(x, in1, in2, ks.bskF, ks.ksk))
		require.NoError(t, e.DiscardAndLWECiphertextVector(x, x, in1, ks.bskF, ks.ksk))
		got, err := e.DecryptBooleanLWECiphertextVector(ks.lweKey, x)
		require.NoError(t, err)
		require.Equal(t, []bool{false, false, true, false}, got)
	})

	t.Run("wrong keys", func(t *testing.T) {
		out := NewLWECiphertextVector(testLWEDim, len(a))
		big := NewLWECiphertextVector(ks.bskF.OutputLWEDimension(), len(a))
		err := e.DiscardAndLWECiphertextVector(big, big, big, ks.bskF, ks.ksk)
		require.ErrorIs(t, err, tfhe.ErrInputLWEDimensionMismatch)
		err = e.DiscardOrLWECiphertextVector(out, in1, NewLWECiphertextVector(testLWEDim, 2), ks.bskF, ks.ksk)
		require.ErrorIs(t, err, tfhe.ErrCiphertextCountMismatch)
	})
}

func TestCircuitBootstrapVerticalPacking(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	// Two tables over two bits: x -> x/8 and x -> (3-x)/8.
	step := core.Scale(3)
	luts := make([]uint64, 8)
	for x := 0; x < 4; x++ {
		luts[x] = uint64(x) * step
		luts[4+x] = uint64(3-x) * step
	}
	lutVec := tfhe.NewPlaintextVector(luts)

	for x := 0; x < 4; x++ {
		pt, err := tfhe.BitEncoder().Encode([]float64{float64(x >> 1), float64(x & 1)})
		require.NoError(t, err)
		in, err := e.EncryptLWECiphertextVector(ks.lweKey, pt, testLWENoise)
		require.NoError(t, err)

		out := NewLWECiphertextVector(ks.bskF.OutputLWEDimension(), 2)
		require.NoError(t, e.DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in, ks.bskF, lutVec, 2, 8, ks.cbsKeys))
		got := ks.phases(t, ks.bigKey, out)
		require.Less(t, distance(got[0], luts[x]), 1.0/64, "table 0 at %d", x)
		require.Less(t, distance(got[1], luts[4+x]), 1.0/64, "table 1 at %d", x)
	}

	out := NewLWECiphertextVector(ks.bskF.OutputLWEDimension(), 2)
	in := ks.encrypt(t, 0, 0)
	err := e.DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out, in, ks.bskF, tfhe.NewPlaintextVector(luts[:4]), 2, 8, ks.cbsKeys)
	require.ErrorIs(t, err, tfhe.ErrLUTCountMismatch)
}

func TestPackingKeyswitch(t *testing.T) {
	ks := testKeys(t)
	e := ks.engine

	one := make([]uint64, testN)
	one[0] = 1
	key, err := e.GenerateLWEPackingKeyswitchKey(ks.lweKey, ks.glweKey, one, 3, 10, testGLWENoise)
	require.NoError(t, err)

	msgs := []uint64{core.Scale(3), 2 * core.Scale(3), 3 * core.Scale(3)}
	in := ks.encrypt(t, msgs...)
	out := NewGLWECiphertext(testK, testN)
	require.NoError(t, e.DiscardPackingKeyswitchLWECiphertextVector(out, in, key))

	pt, err := e.DecryptGLWECiphertext(ks.glweKey, out)
	require.NoError(t, err)
	for i, v := range pt.Values() {
		want := uint64(0)
		if i < len(msgs) {
			want = msgs[i]
		}
		require.Less(t, distance(v, want), 1.0/(1<<12), "coefficient %d", i)
	}

	err = e.DiscardPackingKeyswitchLWECiphertextVector(NewGLWECiphertext(testK, 1024), in, key)
	require.ErrorIs(t, err, tfhe.ErrKeyMismatch)
}

type foreignEntity struct{}

func (foreignEntity) Backend() tfhe.Backend { return tfhe.BackendCUDA }

func TestDestroy(t *testing.T) {
	e, err := New([]byte("destroy"))
	require.NoError(t, err)

	key, err := e.GenerateLWESecretKey(16)
	require.NoError(t, err)
	coeffs := key.coeffs
	require.NoError(t, e.Destroy(key))
	require.Equal(t, make([]uint64, 16), coeffs)
	require.Zero(t, key.LWEDimension())

	err = e.Destroy(foreignEntity{})
	require.ErrorIs(t, err, tfhe.ErrUnsupportedEntity)
	require.ErrorIs(t, e.Destroy(nil), tfhe.ErrUnsupportedEntity)
}
