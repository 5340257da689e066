// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lweVec struct {
	dim   LWEDimension
	count int
}

func (v lweVec) Backend() Backend           { return BackendCPU }
func (v lweVec) LWEDimension() LWEDimension { return v.dim }
func (v lweVec) Count() int                 { return v.count }

type lweCt struct{ dim LWEDimension }

func (c lweCt) Backend() Backend           { return BackendCPU }
func (c lweCt) LWEDimension() LWEDimension { return c.dim }

type glweVec struct {
	k     GLWEDimension
	n     PolynomialSize
	count int
}

func (v glweVec) Backend() Backend               { return BackendCPU }
func (v glweVec) GLWEDimension() GLWEDimension   { return v.k }
func (v glweVec) PolynomialSize() PolynomialSize { return v.n }
func (v glweVec) Count() int                     { return v.count }

type counted int

func (c counted) Backend() Backend { return BackendCPU }
func (c counted) Count() int       { return int(c) }

type bskShape struct {
	k     GLWEDimension
	n     PolynomialSize
	in    LWEDimension
	level DecompositionLevelCount
	base  DecompositionBaseLog
}

func (b bskShape) Backend() Backend                                 { return BackendCPU }
func (b bskShape) GLWEDimension() GLWEDimension                     { return b.k }
func (b bskShape) PolynomialSize() PolynomialSize                   { return b.n }
func (b bskShape) InputLWEDimension() LWEDimension                  { return b.in }
func (b bskShape) DecompositionLevelCount() DecompositionLevelCount { return b.level }
func (b bskShape) DecompositionBaseLog() DecompositionBaseLog       { return b.base }

type kskShape struct {
	in, out LWEDimension
}

func (k kskShape) Backend() Backend                                 { return BackendCPU }
func (k kskShape) InputLWEDimension() LWEDimension                  { return k.in }
func (k kskShape) OutputLWEDimension() LWEDimension                 { return k.out }
func (k kskShape) DecompositionLevelCount() DecompositionLevelCount { return 4 }
func (k kskShape) DecompositionBaseLog() DecompositionBaseLog       { return 5 }

type packingShape struct {
	in    LWEDimension
	k     GLWEDimension
	n     PolynomialSize
	count int
}

func (p packingShape) Backend() Backend                                 { return BackendCPU }
func (p packingShape) InputLWEDimension() LWEDimension                  { return p.in }
func (p packingShape) OutputGLWEDimension() GLWEDimension               { return p.k }
func (p packingShape) OutputPolynomialSize() PolynomialSize             { return p.n }
func (p packingShape) DecompositionLevelCount() DecompositionLevelCount { return 3 }
func (p packingShape) DecompositionBaseLog() DecompositionBaseLog       { return 10 }
func (p packingShape) Count() int                                       { return p.count }

func requireOpError(t *testing.T, err error, op Operation, sentinel error) {
	t.Helper()
	require.ErrorIs(t, err, sentinel)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, op, opErr.Op)
}

func TestCheckLWEVectorBinary(t *testing.T) {
	tests := []struct {
		name          string
		out, in1, in2 lweVec
		want          error
	}{
		{"ok", lweVec{512, 4}, lweVec{512, 4}, lweVec{512, 4}, nil},
		{"output dimension", lweVec{512, 4}, lweVec{1024, 4}, lweVec{1024, 4}, ErrLWEDimensionMismatch},
		{"input dimensions", lweVec{512, 4}, lweVec{512, 4}, lweVec{513, 4}, ErrLWEDimensionMismatch},
		{"input counts", lweVec{512, 4}, lweVec{512, 4}, lweVec{512, 3}, ErrCiphertextCountMismatch},
		{"output count", lweVec{512, 5}, lweVec{512, 4}, lweVec{512, 4}, ErrCiphertextCountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckLWEVectorBinary(OpAddLWEVector, tt.out, tt.in1, tt.in2)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			requireOpError(t, err, OpAddLWEVector, tt.want)
			assert.Equal(t, KindValidation, KindOf(err))
		})
	}
}

func TestCheckVectorOperands(t *testing.T) {
	v := lweVec{32, 3}
	require.NoError(t, CheckLWEVectorUnary(OpOppositeLWEVector, v, v))
	require.NoError(t, CheckLWEVectorPlaintextAddition(OpAddPlaintextLWEVector, v, v, counted(3)))
	require.NoError(t, CheckLWEVectorCleartextMultiplication(OpMulCleartextLWEVector, v, v, counted(3)))

	requireOpError(t, CheckLWEVectorPlaintextAddition(OpAddPlaintextLWEVector, v, v, counted(2)),
		OpAddPlaintextLWEVector, ErrPlaintextCountMismatch)
	requireOpError(t, CheckLWEVectorCleartextMultiplication(OpMulCleartextLWEVector, v, v, counted(4)),
		OpMulCleartextLWEVector, ErrCleartextCountMismatch)
	requireOpError(t, CheckLWEVectorUnary(OpNotLWEVector, lweVec{32, 2}, v), OpNotLWEVector, ErrCiphertextCountMismatch)
}

func TestCheckKeyswitch(t *testing.T) {
	ksk := kskShape{in: 1024, out: 32}
	require.NoError(t, CheckKeyswitch(OpKeyswitchLWEVector, lweVec{32, 2}, lweVec{1024, 2}, ksk))
	requireOpError(t, CheckKeyswitch(OpKeyswitchLWEVector, lweVec{32, 2}, lweVec{512, 2}, ksk),
		OpKeyswitchLWEVector, ErrInputLWEDimensionMismatch)
	requireOpError(t, CheckKeyswitch(OpKeyswitchLWEVector, lweVec{64, 2}, lweVec{1024, 2}, ksk),
		OpKeyswitchLWEVector, ErrOutputLWEDimensionMismatch)
	requireOpError(t, CheckKeyswitch(OpKeyswitchLWEVector, lweVec{32, 1}, lweVec{1024, 2}, ksk),
		OpKeyswitchLWEVector, ErrCiphertextCountMismatch)
}

func TestCheckBootstrap(t *testing.T) {
	bsk := bskShape{k: 1, n: 512, in: 32, level: 3, base: 10}
	tests := []struct {
		name    string
		out, in lweVec
		acc     glweVec
		want    error
	}{
		{"ok", lweVec{512, 2}, lweVec{32, 2}, glweVec{1, 512, 2}, nil},
		{"input", lweVec{512, 2}, lweVec{33, 2}, glweVec{1, 512, 2}, ErrInputLWEDimensionMismatch},
		{"output", lweVec{1024, 2}, lweVec{32, 2}, glweVec{1, 512, 2}, ErrOutputLWEDimensionMismatch},
		{"accumulator dimension", lweVec{512, 2}, lweVec{32, 2}, glweVec{2, 512, 2}, ErrAccumulatorGLWEDimensionMismatch},
		{"accumulator size", lweVec{512, 2}, lweVec{32, 2}, glweVec{1, 1024, 2}, ErrAccumulatorPolynomialSizeMismatch},
		{"accumulator count", lweVec{512, 2}, lweVec{32, 2}, glweVec{1, 512, 1}, ErrAccumulatorCountMismatch},
		{"output count", lweVec{512, 3}, lweVec{32, 2}, glweVec{1, 512, 2}, ErrCiphertextCountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckBootstrap(OpBootstrapLWEVector, tt.out, tt.in, tt.acc, bsk)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			requireOpError(t, err, OpBootstrapLWEVector, tt.want)
		})
	}
}

func TestCheckGate(t *testing.T) {
	bsk := bskShape{k: 1, n: 512, in: 32, level: 3, base: 10}
	v := lweVec{32, 4}
	require.NoError(t, CheckGate(OpAndLWEVector, v, v, v, bsk, kskShape{512, 32}))

	requireOpError(t, CheckGate(OpAndLWEVector, v, v, lweVec{32, 3}, bsk, kskShape{512, 32}), OpAndLWEVector, ErrCiphertextCountMismatch)
	requireOpError(t, CheckGate(OpOrLWEVector, v, v, v, bskShape{k: 1, n: 512, in: 64}, kskShape{512, 32}), OpOrLWEVector, ErrInputLWEDimensionMismatch)
	requireOpError(t, CheckGate(OpXorLWEVector, v, v, v, bsk, kskShape{512, 64}), OpXorLWEVector, ErrOutputLWEDimensionMismatch)
	err := CheckGate(OpNandLWEVector, v, v, v, bsk, kskShape{1024, 32})
	requireOpError(t, err, OpNandLWEVector, ErrKeyMismatch)
	assert.Equal(t, KindCompatibility, KindOf(err))
}

func TestCheckLoadStore(t *testing.T) {
	vec := lweVec{32, 3}
	require.NoError(t, CheckLoad(OpLoadLWE, lweCt{32}, vec, 2))
	requireOpError(t, CheckLoad(OpLoadLWE, lweCt{32}, vec, 3), OpLoadLWE, ErrIndexOutOfBounds)
	requireOpError(t, CheckLoad(OpLoadLWE, lweCt{32}, vec, -1), OpLoadLWE, ErrIndexOutOfBounds)
	requireOpError(t, CheckStore(OpStoreLWE, vec, lweCt{33}, 0), OpStoreLWE, ErrLWEDimensionMismatch)
}

func TestCheckCircuitBootstrapVerticalPacking(t *testing.T) {
	bsk := bskShape{k: 1, n: 512, in: 32, level: 3, base: 10}
	keys := packingShape{in: 512, k: 1, n: 512, count: 2}
	in, out := lweVec{32, 3}, lweVec{512, 2}

	require.NoError(t, CheckCircuitBootstrapVerticalPacking(OpCircuitBootstrap, out, in, bsk, counted(16), 2, 8, keys))

	tests := []struct {
		name    string
		out, in lweVec
		luts    counted
		level   DecompositionLevelCount
		baseLog DecompositionBaseLog
		keys    packingShape
		want    error
	}{
		{"input", out, lweVec{64, 3}, 16, 2, 8, keys, ErrInputLWEDimensionMismatch},
		{"output", lweVec{32, 2}, in, 16, 2, 8, keys, ErrOutputLWEDimensionMismatch},
		{"key input", out, in, 16, 2, 8, packingShape{in: 256, k: 1, n: 512, count: 2}, ErrKeyMismatch},
		{"key output", out, in, 16, 2, 8, packingShape{in: 512, k: 1, n: 1024, count: 2}, ErrKeyMismatch},
		{"key count", out, in, 16, 2, 8, packingShape{in: 512, k: 1, n: 512, count: 1}, ErrKeyMismatch},
		{"decomposition", out, in, 16, 10, 8, keys, ErrDecompositionExceedsPrecision},
		{"zero level", out, in, 16, 0, 8, keys, ErrDecompositionExceedsPrecision},
		{"lut count", out, in, 15, 2, 8, keys, ErrLUTCountMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckCircuitBootstrapVerticalPacking(OpCircuitBootstrap, tt.out, tt.in, bsk, tt.luts, tt.level, tt.baseLog, tt.keys)
			requireOpError(t, err, OpCircuitBootstrap, tt.want)
		})
	}
}

func TestCheckPolynomialSize(t *testing.T) {
	for _, n := range SupportedPolynomialSizes {
		require.NoError(t, CheckPolynomialSize(OpConvertBootstrapKey, n))
	}
	for _, n := range []PolynomialSize{0, 128, 768, 16384} {
		requireOpError(t, CheckPolynomialSize(OpConvertBootstrapKey, n), OpConvertBootstrapKey, ErrPolynomialSizeNotSupported)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindUnknown},
		{errors.New("other"), KindUnknown},
		{ErrOutOfInterval, KindValidation},
		{&OutOfIntervalError{Value: 3}, KindValidation},
		{fmt.Errorf("wrapped: %w", ErrOutOfDeviceMemory), KindResource},
		{OpError(OpBootstrapLWEVector, ErrDeviceFault), KindResource},
		{OpError(OpKeyswitchLWEVector, ErrDecompositionMismatch), KindCompatibility},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, KindOf(tt.err), "%v", tt.err)
	}

	err := OpError(OpAddLWEVector, ErrLWEDimensionMismatch)
	var opErr *OperationError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, KindValidation, opErr.Kind())
	assert.Same(t, err, OpError(OpKeyswitchLWEVector, err))
	assert.NoError(t, OpError(OpAddLWEVector, nil))
}
