// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"

	"github.com/luxfi/tfhe/internal/core"
)

// The checks below are shared by every backend. Each returns nil or an
// *OperationError wrapping the sentinel of the first failed precondition.

// SupportedPolynomialSizes are the sizes accepted by accelerator bootstrap
// kernels.
var SupportedPolynomialSizes = []PolynomialSize{256, 512, 1024, 2048, 4096, 8192}

// CheckPolynomialSize rejects sizes outside SupportedPolynomialSizes.
func CheckPolynomialSize(op Operation, n PolynomialSize) error {
	for _, s := range SupportedPolynomialSizes {
		if s == n {
			return nil
		}
	}
	return OpError(op, fmt.Errorf("%w: %d", ErrPolynomialSizeNotSupported, n))
}

// CheckRing rejects sizes the host arithmetic cannot transform.
func CheckRing(op Operation, n PolynomialSize) error {
	if _, err := core.RingFor(int(n)); err != nil {
		return OpError(op, fmt.Errorf("%w: %w", ErrPolynomialSizeNotSupported, err))
	}
	return nil
}

// CheckDecomposition rejects decompositions finer than the modulus.
func CheckDecomposition(level DecompositionLevelCount, baseLog DecompositionBaseLog) error {
	if level < 1 || baseLog < 1 || int(level)*int(baseLog) > core.LogQ {
		return fmt.Errorf("%w: %d levels of base log %d over %d bits", ErrDecompositionExceedsPrecision, level, baseLog, core.LogQ)
	}
	return nil
}

func checkSameShape(out, in LWECiphertextVectorEntity) error {
	if out.LWEDimension() != in.LWEDimension() {
		return fmt.Errorf("%w: output %d, input %d", ErrLWEDimensionMismatch, out.LWEDimension(), in.LWEDimension())
	}
	if out.Count() != in.Count() {
		return fmt.Errorf("%w: output %d, input %d", ErrCiphertextCountMismatch, out.Count(), in.Count())
	}
	return nil
}

// CheckLWEVectorBinary validates out = f(in1, in2) for same-shape vectors.
func CheckLWEVectorBinary(op Operation, out, in1, in2 LWECiphertextVectorEntity) error {
	if in1.LWEDimension() != in2.LWEDimension() {
		return OpError(op, fmt.Errorf("%w: inputs %d and %d", ErrLWEDimensionMismatch, in1.LWEDimension(), in2.LWEDimension()))
	}
	if in1.Count() != in2.Count() {
		return OpError(op, fmt.Errorf("%w: inputs %d and %d", ErrCiphertextCountMismatch, in1.Count(), in2.Count()))
	}
	return OpError(op, checkSameShape(out, in1))
}

// CheckLWEVectorUnary validates out = f(in).
func CheckLWEVectorUnary(op Operation, out, in LWECiphertextVectorEntity) error {
	return OpError(op, checkSameShape(out, in))
}

// CheckLWEVectorPlaintextAddition validates out = in + pt.
func CheckLWEVectorPlaintextAddition(op Operation, out, in LWECiphertextVectorEntity, pt PlaintextVectorEntity) error {
	if err := checkSameShape(out, in); err != nil {
		return OpError(op, err)
	}
	if pt.Count() != in.Count() {
		return OpError(op, fmt.Errorf("%w: %d plaintexts, %d ciphertexts", ErrPlaintextCountMismatch, pt.Count(), in.Count()))
	}
	return nil
}

// CheckLWEVectorCleartextMultiplication validates out = in * cl.
func CheckLWEVectorCleartextMultiplication(op Operation, out, in LWECiphertextVectorEntity, cl CleartextVectorEntity) error {
	if err := checkSameShape(out, in); err != nil {
		return OpError(op, err)
	}
	if cl.Count() != in.Count() {
		return OpError(op, fmt.Errorf("%w: %d cleartexts, %d ciphertexts", ErrCleartextCountMismatch, cl.Count(), in.Count()))
	}
	return nil
}

// CheckKeyswitch validates a key switch of in into out.
func CheckKeyswitch(op Operation, out, in LWECiphertextVectorEntity, ksk LWEKeyswitchKeyEntity) error {
	if in.LWEDimension() != ksk.InputLWEDimension() {
		return OpError(op, fmt.Errorf("%w: input %d, key %d", ErrInputLWEDimensionMismatch, in.LWEDimension(), ksk.InputLWEDimension()))
	}
	if out.LWEDimension() != ksk.OutputLWEDimension() {
		return OpError(op, fmt.Errorf("%w: output %d, key %d", ErrOutputLWEDimensionMismatch, out.LWEDimension(), ksk.OutputLWEDimension()))
	}
	if out.Count() != in.Count() {
		return OpError(op, fmt.Errorf("%w: output %d, input %d", ErrCiphertextCountMismatch, out.Count(), in.Count()))
	}
	return nil
}

// CheckBootstrap validates a bootstrap of in into out, ciphertext i using
// accumulator i.
func CheckBootstrap(op Operation, out, in LWECiphertextVectorEntity, acc GLWECiphertextVectorEntity, bsk LWEBootstrapKeyEntity) error {
	if in.LWEDimension() != bsk.InputLWEDimension() {
		return OpError(op, fmt.Errorf("%w: input %d, key %d", ErrInputLWEDimensionMismatch, in.LWEDimension(), bsk.InputLWEDimension()))
	}
	if want := BootstrapOutputDimension(bsk); out.LWEDimension() != want {
		return OpError(op, fmt.Errorf("%w: output %d, key %d", ErrOutputLWEDimensionMismatch, out.LWEDimension(), want))
	}
	if acc.GLWEDimension() != bsk.GLWEDimension() {
		return OpError(op, fmt.Errorf("%w: accumulator %d, key %d", ErrAccumulatorGLWEDimensionMismatch, acc.GLWEDimension(), bsk.GLWEDimension()))
	}
	if acc.PolynomialSize() != bsk.PolynomialSize() {
		return OpError(op, fmt.Errorf("%w: accumulator %d, key %d", ErrAccumulatorPolynomialSizeMismatch, acc.PolynomialSize(), bsk.PolynomialSize()))
	}
	if acc.Count() != in.Count() {
		return OpError(op, fmt.Errorf("%w: %d accumulators, %d ciphertexts", ErrAccumulatorCountMismatch, acc.Count(), in.Count()))
	}
	if out.Count() != in.Count() {
		return OpError(op, fmt.Errorf("%w: output %d, input %d", ErrCiphertextCountMismatch, out.Count(), in.Count()))
	}
	return nil
}

// CheckGateKeys validates that bsk and ksk chain back to the dimension of
// gate inputs: bootstrap from n to K*N, key switch from K*N back to n.
func CheckGateKeys(op Operation, dim LWEDimension, bsk LWEBootstrapKeyEntity, ksk LWEKeyswitchKeyEntity) error {
	if bsk.InputLWEDimension() != dim {
		return OpError(op, fmt.Errorf("%w: inputs %d, bootstrap key %d", ErrInputLWEDimensionMismatch, dim, bsk.InputLWEDimension()))
	}
	if ksk.OutputLWEDimension() != dim {
		return OpError(op, fmt.Errorf("%w: inputs %d, keyswitch key output %d", ErrOutputLWEDimensionMismatch, dim, ksk.OutputLWEDimension()))
	}
	if big := BootstrapOutputDimension(bsk); ksk.InputLWEDimension() != big {
		return OpError(op, fmt.Errorf("%w: bootstrap output %d, keyswitch key input %d", ErrKeyMismatch, big, ksk.InputLWEDimension()))
	}
	return nil
}

// CheckGate validates a binary boolean gate.
func CheckGate(op Operation, out, in1, in2 LWECiphertextVectorEntity, bsk LWEBootstrapKeyEntity, ksk LWEKeyswitchKeyEntity) error {
	if err := CheckLWEVectorBinary(op, out, in1, in2); err != nil {
		return err
	}
	return CheckGateKeys(op, in1.LWEDimension(), bsk, ksk)
}

// CheckLoad validates out = vec[i].
func CheckLoad(op Operation, out LWECiphertextEntity, vec LWECiphertextVectorEntity, i int) error {
	if out.LWEDimension() != vec.LWEDimension() {
		return OpError(op, fmt.Errorf("%w: ciphertext %d, vector %d", ErrLWEDimensionMismatch, out.LWEDimension(), vec.LWEDimension()))
	}
	if i < 0 || i >= vec.Count() {
		return OpError(op, fmt.Errorf("%w: index %d, count %d", ErrIndexOutOfBounds, i, vec.Count()))
	}
	return nil
}

// CheckStore validates vec[i] = in.
func CheckStore(op Operation, vec LWECiphertextVectorEntity, in LWECiphertextEntity, i int) error {
	return CheckLoad(op, in, vec, i)
}

// CheckPackingKeyswitch validates packing the ciphertexts of in into the
// GLWE ciphertext out.
func CheckPackingKeyswitch(op Operation, out GLWECiphertextEntity, in LWECiphertextVectorEntity, key LWEPackingKeyswitchKeyEntity) error {
	if in.LWEDimension() != key.InputLWEDimension() {
		return OpError(op, fmt.Errorf("%w: input %d, key %d", ErrInputLWEDimensionMismatch, in.LWEDimension(), key.InputLWEDimension()))
	}
	if out.GLWEDimension() != key.OutputGLWEDimension() || out.PolynomialSize() != key.OutputPolynomialSize() {
		return OpError(op, fmt.Errorf("%w: output (%d, %d), key (%d, %d)", ErrKeyMismatch,
			out.GLWEDimension(), out.PolynomialSize(), key.OutputGLWEDimension(), key.OutputPolynomialSize()))
	}
	if in.Count() > int(out.PolynomialSize()) {
		return OpError(op, fmt.Errorf("%w: %d ciphertexts into %d coefficients", ErrCiphertextCountMismatch, in.Count(), out.PolynomialSize()))
	}
	return nil
}

// CheckCircuitBootstrapVerticalPacking validates a circuit bootstrap of the
// bits in, followed by the evaluation of out.Count() lookup tables of
// 2^in.Count() entries each.
func CheckCircuitBootstrapVerticalPacking(
	op Operation,
	out, in LWECiphertextVectorEntity,
	bsk LWEBootstrapKeyEntity,
	luts PlaintextVectorEntity,
	level DecompositionLevelCount,
	baseLog DecompositionBaseLog,
	keys CircuitBootstrapKeysEntity,
) error {
	big := BootstrapOutputDimension(bsk)
	if in.LWEDimension() != bsk.InputLWEDimension() {
		return OpError(op, fmt.Errorf("%w: input %d, bootstrap key %d", ErrInputLWEDimensionMismatch, in.LWEDimension(), bsk.InputLWEDimension()))
	}
	if out.LWEDimension() != big {
		return OpError(op, fmt.Errorf("%w: output %d, bootstrap key %d", ErrOutputLWEDimensionMismatch, out.LWEDimension(), big))
	}
	if keys.InputLWEDimension() != big {
		return OpError(op, fmt.Errorf("%w: packing keys input %d, bootstrap output %d", ErrKeyMismatch, keys.InputLWEDimension(), big))
	}
	if keys.OutputGLWEDimension() != bsk.GLWEDimension() || keys.OutputPolynomialSize() != bsk.PolynomialSize() {
		return OpError(op, fmt.Errorf("%w: packing keys (%d, %d), bootstrap key (%d, %d)", ErrKeyMismatch,
			keys.OutputGLWEDimension(), keys.OutputPolynomialSize(), bsk.GLWEDimension(), bsk.PolynomialSize()))
	}
	if keys.Count() != bsk.GLWEDimension().Size() {
		return OpError(op, fmt.Errorf("%w: %d packing keys, want %d", ErrKeyMismatch, keys.Count(), bsk.GLWEDimension().Size()))
	}
	if err := CheckDecomposition(level, baseLog); err != nil {
		return OpError(op, err)
	}
	if in.Count() < 1 || in.Count() > 30 {
		return OpError(op, fmt.Errorf("%w: %d input bits", ErrLUTCountMismatch, in.Count()))
	}
	if want := out.Count() << in.Count(); luts.Count() != want {
		return OpError(op, fmt.Errorf("%w: %d entries, want %d", ErrLUTCountMismatch, luts.Count(), want))
	}
	return nil
}
