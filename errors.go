// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"errors"
	"fmt"
)

// Validation errors: the caller passed inconsistent inputs.
var (
	ErrLWEDimensionMismatch       = errors.New("lwe dimension mismatch")
	ErrCiphertextCountMismatch    = errors.New("ciphertext count mismatch")
	ErrPolynomialSizeNotSupported = errors.New("polynomial size not supported")
	ErrOutOfInterval              = errors.New("value outside of the encoder interval")
	ErrIndexOutOfBounds           = errors.New("index out of bounds")
	ErrPlaintextCountMismatch     = errors.New("plaintext count mismatch")
	ErrCleartextCountMismatch     = errors.New("cleartext count mismatch")
	ErrLUTCountMismatch           = errors.New("lookup table count mismatch")
	ErrInvalidEncoder             = errors.New("invalid encoder")
	ErrEncoderMismatch            = errors.New("encoders cannot be combined")
	ErrInvalidParameters          = errors.New("invalid parameters")
	ErrUnsupportedEntity          = errors.New("entity does not belong to this engine")
)

// Resource errors: the device cannot serve the request.
var (
	ErrDeviceNotFound    = errors.New("no device found")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
	ErrDeviceFault       = errors.New("device fault")
)

// Compatibility errors: keys and ciphertexts were built for different parameters.
var (
	ErrInputLWEDimensionMismatch         = errors.New("input lwe dimension mismatch")
	ErrOutputLWEDimensionMismatch        = errors.New("output lwe dimension mismatch")
	ErrAccumulatorGLWEDimensionMismatch  = errors.New("accumulator glwe dimension mismatch")
	ErrAccumulatorPolynomialSizeMismatch = errors.New("accumulator polynomial size mismatch")
	ErrAccumulatorCountMismatch          = errors.New("accumulator count mismatch")
	ErrKeyMismatch                       = errors.New("key mismatch")
	ErrDecompositionMismatch             = errors.New("decomposition mismatch")
	ErrDecompositionExceedsPrecision     = errors.New("decomposition exceeds precision")
)

// Kind classifies an error for callers deciding whether to fix their inputs,
// free device resources or change parameters.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindResource
	KindCompatibility
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindResource:
		return "resource"
	case KindCompatibility:
		return "compatibility"
	default:
		return "unknown"
	}
}

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrLWEDimensionMismatch, KindValidation},
	{ErrCiphertextCountMismatch, KindValidation},
	{ErrPolynomialSizeNotSupported, KindValidation},
	{ErrOutOfInterval, KindValidation},
	{ErrIndexOutOfBounds, KindValidation},
	{ErrPlaintextCountMismatch, KindValidation},
	{ErrCleartextCountMismatch, KindValidation},
	{ErrLUTCountMismatch, KindValidation},
	{ErrInvalidEncoder, KindValidation},
	{ErrEncoderMismatch, KindValidation},
	{ErrInvalidParameters, KindValidation},
	{ErrUnsupportedEntity, KindValidation},
	{ErrDeviceNotFound, KindResource},
	{ErrOutOfDeviceMemory, KindResource},
	{ErrDeviceFault, KindResource},
	{ErrInputLWEDimensionMismatch, KindCompatibility},
	{ErrOutputLWEDimensionMismatch, KindCompatibility},
	{ErrAccumulatorGLWEDimensionMismatch, KindCompatibility},
	{ErrAccumulatorPolynomialSizeMismatch, KindCompatibility},
	{ErrAccumulatorCountMismatch, KindCompatibility},
	{ErrKeyMismatch, KindCompatibility},
	{ErrDecompositionMismatch, KindCompatibility},
	{ErrDecompositionExceedsPrecision, KindCompatibility},
}

// KindOf returns the kind of the first known sentinel err wraps.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// Operation names a homomorphic operation in errors and logs.
type Operation string

const (
	OpAddLWEVector          Operation = "add lwe ciphertext vector"
	OpOppositeLWEVector     Operation = "opposite lwe ciphertext vector"
	OpAddPlaintextLWEVector Operation = "add plaintext vector to lwe ciphertext vector"
	OpMulCleartextLWEVector Operation = "multiply lwe ciphertext vector by cleartext vector"
	OpKeyswitchLWEVector    Operation = "keyswitch lwe ciphertext vector"
	OpBootstrapLWEVector    Operation = "bootstrap lwe ciphertext vector"
	OpAndLWEVector          Operation = "and lwe ciphertext vector"
	OpOrLWEVector           Operation = "or lwe ciphertext vector"
	OpNandLWEVector         Operation = "nand lwe ciphertext vector"
	OpNorLWEVector          Operation = "nor lwe ciphertext vector"
	OpXorLWEVector          Operation = "xor lwe ciphertext vector"
	OpXnorLWEVector         Operation = "xnor lwe ciphertext vector"
	OpNotLWEVector          Operation = "not lwe ciphertext vector"
	OpCircuitBootstrap      Operation = "circuit bootstrap boolean vertical packing"
	OpPackingKeyswitch      Operation = "private functional packing keyswitch"
	OpLoadLWE               Operation = "load lwe ciphertext"
	OpStoreLWE              Operation = "store lwe ciphertext"
	OpConvertBootstrapKey   Operation = "convert lwe bootstrap key"
	OpConvertKeyswitchKey   Operation = "convert lwe keyswitch key"
	OpConvertPFPKSK         Operation = "convert packing keyswitch keys"
	OpConvertPackingKey     Operation = "convert lwe packing keyswitch key"
	OpConvertLWE            Operation = "convert lwe ciphertext"
	OpConvertLWEVector      Operation = "convert lwe ciphertext vector"
	OpConvertGLWE           Operation = "convert glwe ciphertext"
	OpConvertGLWEVector     Operation = "convert glwe ciphertext vector"
	OpConvertPlaintext      Operation = "convert plaintext vector"
	OpConvertCleartext      Operation = "convert cleartext vector"
	OpEncrypt               Operation = "encrypt"
	OpDecrypt               Operation = "decrypt"
	OpGenerateKey           Operation = "generate key"
	OpDestroy               Operation = "destroy"
	OpNewEngine             Operation = "new engine"
)

// OperationError is returned by every checked entry point.
type OperationError struct {
	Op  Operation
	Err error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Kind returns the kind of the wrapped error.
func (e *OperationError) Kind() Kind { return KindOf(e.Err) }

// OpError wraps err for op; nil stays nil.
func OpError(op Operation, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	return &OperationError{Op: op, Err: err}
}

// OutOfIntervalError reports the first value an encoder rejected.
type OutOfIntervalError struct {
	Index    int
	Value    float64
	Min, Max float64
}

func (e *OutOfIntervalError) Error() string {
	return fmt.Sprintf("%v: value %g at index %d outside [%g, %g]", ErrOutOfInterval, e.Value, e.Index, e.Min, e.Max)
}

// Is makes errors.Is(err, ErrOutOfInterval) hold.
func (e *OutOfIntervalError) Is(target error) bool { return target == ErrOutOfInterval }
