// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

// Operation interfaces. Each has a checked method returning an
// *OperationError and an Unchecked variant that skips validation; calling an
// Unchecked method with inconsistent entities is a contract violation.
//
// Discarding operations overwrite a caller-provided output.

// LWECiphertextVectorDiscardingAdditionEngine computes out = in1 + in2.
type LWECiphertextVectorDiscardingAdditionEngine[In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardAddLWECiphertextVector(out Out, in1, in2 In) error
	DiscardAddLWECiphertextVectorUnchecked(out Out, in1, in2 In)
}

// LWECiphertextVectorAdditionEngine returns in1 + in2 in a new vector.
type LWECiphertextVectorAdditionEngine[In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	AddLWECiphertextVector(in1, in2 In) (Out, error)
	AddLWECiphertextVectorUnchecked(in1, in2 In) Out
}

// LWECiphertextVectorDiscardingOppositeEngine computes out = -in.
type LWECiphertextVectorDiscardingOppositeEngine[In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardOppositeLWECiphertextVector(out Out, in In) error
	DiscardOppositeLWECiphertextVectorUnchecked(out Out, in In)
}

// LWECiphertextVectorPlaintextVectorDiscardingAdditionEngine computes
// out = in + pt slot by slot.
type LWECiphertextVectorPlaintextVectorDiscardingAdditionEngine[Ct LWECiphertextVectorEntity, Pt PlaintextVectorEntity] interface {
	AbstractEngine
	DiscardAddLWECiphertextVectorPlaintextVector(out, in Ct, pt Pt) error
	DiscardAddLWECiphertextVectorPlaintextVectorUnchecked(out, in Ct, pt Pt)
}

// LWECiphertextVectorCleartextVectorDiscardingMultiplicationEngine computes
// out = in * cl slot by slot.
type LWECiphertextVectorCleartextVectorDiscardingMultiplicationEngine[Ct LWECiphertextVectorEntity, Cl CleartextVectorEntity] interface {
	AbstractEngine
	DiscardMulLWECiphertextVectorCleartextVector(out, in Ct, cl Cl) error
	DiscardMulLWECiphertextVectorCleartextVectorUnchecked(out, in Ct, cl Cl)
}

// LWECiphertextVectorDiscardingKeyswitchEngine re-encrypts in under the
// output key of ksk.
type LWECiphertextVectorDiscardingKeyswitchEngine[Key LWEKeyswitchKeyEntity, In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardKeyswitchLWECiphertextVector(out Out, in In, ksk Key) error
	DiscardKeyswitchLWECiphertextVectorUnchecked(out Out, in In, ksk Key)
}

// LWECiphertextVectorDiscardingBootstrapEngine bootstraps in[i] with the
// accumulator acc[i].
type LWECiphertextVectorDiscardingBootstrapEngine[BSK LWEBootstrapKeyEntity, Acc GLWECiphertextVectorEntity, In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardBootstrapLWECiphertextVector(out Out, in In, acc Acc, bsk BSK) error
	DiscardBootstrapLWECiphertextVectorUnchecked(out Out, in In, acc Acc, bsk BSK)
}

// LWECiphertextVectorDiscardingAndEngine evaluates out = in1 AND in2.
type LWECiphertextVectorDiscardingAndEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardAndLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardAndLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorDiscardingOrEngine evaluates out = in1 OR in2.
type LWECiphertextVectorDiscardingOrEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardOrLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardOrLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorDiscardingNandEngine evaluates out = NOT(in1 AND in2).
type LWECiphertextVectorDiscardingNandEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardNandLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardNandLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorDiscardingNorEngine evaluates out = NOT(in1 OR in2).
type LWECiphertextVectorDiscardingNorEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardNorLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardNorLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorDiscardingXorEngine evaluates out = in1 XOR in2.
type LWECiphertextVectorDiscardingXorEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardXorLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardXorLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorDiscardingXnorEngine evaluates out = NOT(in1 XOR in2).
type LWECiphertextVectorDiscardingXnorEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardXnorLWECiphertextVector(out, in1, in2 Ct, bsk BSK, ksk KSK) error
	DiscardXnorLWECiphertextVectorUnchecked(out, in1, in2 Ct, bsk BSK, ksk KSK)
}

// LWECiphertextVectorBooleanGateEngine groups the six binary gates.
type LWECiphertextVectorBooleanGateEngine[BSK LWEBootstrapKeyEntity, KSK LWEKeyswitchKeyEntity, Ct LWECiphertextVectorEntity] interface {
	LWECiphertextVectorDiscardingAndEngine[BSK, KSK, Ct]
	LWECiphertextVectorDiscardingOrEngine[BSK, KSK, Ct]
	LWECiphertextVectorDiscardingNandEngine[BSK, KSK, Ct]
	LWECiphertextVectorDiscardingNorEngine[BSK, KSK, Ct]
	LWECiphertextVectorDiscardingXorEngine[BSK, KSK, Ct]
	LWECiphertextVectorDiscardingXnorEngine[BSK, KSK, Ct]
}

// LWECiphertextVectorDiscardingNotEngine evaluates out = NOT in without keys.
type LWECiphertextVectorDiscardingNotEngine[Ct LWECiphertextVectorEntity] interface {
	AbstractEngine
	DiscardNotLWECiphertextVector(out, in Ct) error
	DiscardNotLWECiphertextVectorUnchecked(out, in Ct)
}

// LWECiphertextVectorDiscardingCircuitBootstrapBooleanVerticalPackingEngine
// circuit-bootstraps the bits of in (most significant first) and writes into
// out[o] the entry of table o they index. luts holds out.Count() tables of
// 2^in.Count() plaintexts each.
type LWECiphertextVectorDiscardingCircuitBootstrapBooleanVerticalPackingEngine[
	BSK LWEBootstrapKeyEntity,
	LUT PlaintextVectorEntity,
	Keys CircuitBootstrapKeysEntity,
	In, Out LWECiphertextVectorEntity,
] interface {
	AbstractEngine
	DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVector(out Out, in In, bsk BSK, luts LUT, level DecompositionLevelCount, baseLog DecompositionBaseLog, keys Keys) error
	DiscardCircuitBootstrapBooleanVerticalPackingLWECiphertextVectorUnchecked(out Out, in In, bsk BSK, luts LUT, level DecompositionLevelCount, baseLog DecompositionBaseLog, keys Keys)
}

// LWECiphertextVectorGLWECiphertextDiscardingPackingKeyswitchEngine packs
// in[t] into coefficient t of out through a private functional packing key.
type LWECiphertextVectorGLWECiphertextDiscardingPackingKeyswitchEngine[Key LWEPackingKeyswitchKeyEntity, In LWECiphertextVectorEntity, Out GLWECiphertextEntity] interface {
	AbstractEngine
	DiscardPackingKeyswitchLWECiphertextVector(out Out, in In, key Key) error
	DiscardPackingKeyswitchLWECiphertextVectorUnchecked(out Out, in In, key Key)
}

// LWECiphertextDiscardingLoadEngine copies vec[i] into out.
type LWECiphertextDiscardingLoadEngine[Vec LWECiphertextVectorEntity, Ct LWECiphertextEntity] interface {
	AbstractEngine
	DiscardLoadLWECiphertext(out Ct, vec Vec, i int) error
	DiscardLoadLWECiphertextUnchecked(out Ct, vec Vec, i int)
}

// LWECiphertextDiscardingStoreEngine copies in into vec[i].
type LWECiphertextDiscardingStoreEngine[Vec LWECiphertextVectorEntity, Ct LWECiphertextEntity] interface {
	AbstractEngine
	DiscardStoreLWECiphertext(vec Vec, in Ct, i int) error
	DiscardStoreLWECiphertextUnchecked(vec Vec, in Ct, i int)
}

// Conversion engines produce a new entity in another representation. The
// input is never modified.

// LWEBootstrapKeyConversionEngine converts bootstrap keys.
type LWEBootstrapKeyConversionEngine[In, Out LWEBootstrapKeyEntity] interface {
	AbstractEngine
	ConvertLWEBootstrapKey(in In) (Out, error)
	ConvertLWEBootstrapKeyUnchecked(in In) Out
}

// LWEKeyswitchKeyConversionEngine converts key switching keys.
type LWEKeyswitchKeyConversionEngine[In, Out LWEKeyswitchKeyEntity] interface {
	AbstractEngine
	ConvertLWEKeyswitchKey(in In) (Out, error)
	ConvertLWEKeyswitchKeyUnchecked(in In) Out
}

// CircuitBootstrapKeysConversionEngine converts packing key sets.
type CircuitBootstrapKeysConversionEngine[In, Out CircuitBootstrapKeysEntity] interface {
	AbstractEngine
	ConvertPFPKSK(in In) (Out, error)
	ConvertPFPKSKUnchecked(in In) Out
}

// LWEPackingKeyswitchKeyConversionEngine converts private functional packing
// key switch keys.
type LWEPackingKeyswitchKeyConversionEngine[In, Out LWEPackingKeyswitchKeyEntity] interface {
	AbstractEngine
	ConvertLWEPackingKeyswitchKey(in In) (Out, error)
	ConvertLWEPackingKeyswitchKeyUnchecked(in In) Out
}

// LWECiphertextConversionEngine converts single LWE ciphertexts.
type LWECiphertextConversionEngine[In, Out LWECiphertextEntity] interface {
	AbstractEngine
	ConvertLWECiphertext(in In) (Out, error)
	ConvertLWECiphertextUnchecked(in In) Out
}

// GLWECiphertextConversionEngine converts single GLWE ciphertexts.
type GLWECiphertextConversionEngine[In, Out GLWECiphertextEntity] interface {
	AbstractEngine
	ConvertGLWECiphertext(in In) (Out, error)
	ConvertGLWECiphertextUnchecked(in In) Out
}

// LWECiphertextVectorConversionEngine converts LWE ciphertext vectors.
type LWECiphertextVectorConversionEngine[In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	ConvertLWECiphertextVector(in In) (Out, error)
	ConvertLWECiphertextVectorUnchecked(in In) Out
}

// GLWECiphertextVectorConversionEngine converts GLWE ciphertext vectors.
type GLWECiphertextVectorConversionEngine[In, Out GLWECiphertextVectorEntity] interface {
	AbstractEngine
	ConvertGLWECiphertextVector(in In) (Out, error)
	ConvertGLWECiphertextVectorUnchecked(in In) Out
}

// PlaintextVectorConversionEngine converts plaintext vectors.
type PlaintextVectorConversionEngine[In, Out PlaintextVectorEntity] interface {
	AbstractEngine
	ConvertPlaintextVector(in In) (Out, error)
	ConvertPlaintextVectorUnchecked(in In) Out
}

// CleartextVectorConversionEngine converts cleartext vectors.
type CleartextVectorConversionEngine[In, Out CleartextVectorEntity] interface {
	AbstractEngine
	ConvertCleartextVector(in In) (Out, error)
	ConvertCleartextVectorUnchecked(in In) Out
}

// Reverse conversions, from an engine's representation back to the host
// standard domain.

// LWEBootstrapKeyToStandardConversionEngine converts bootstrap keys back.
type LWEBootstrapKeyToStandardConversionEngine[In, Out LWEBootstrapKeyEntity] interface {
	AbstractEngine
	ConvertLWEBootstrapKeyToStandard(in In) (Out, error)
	ConvertLWEBootstrapKeyToStandardUnchecked(in In) Out
}

// LWEKeyswitchKeyToHostConversionEngine converts key switching keys back.
type LWEKeyswitchKeyToHostConversionEngine[In, Out LWEKeyswitchKeyEntity] interface {
	AbstractEngine
	ConvertLWEKeyswitchKeyToHost(in In) (Out, error)
	ConvertLWEKeyswitchKeyToHostUnchecked(in In) Out
}

// CircuitBootstrapKeysToHostConversionEngine converts packing key sets back.
type CircuitBootstrapKeysToHostConversionEngine[In, Out CircuitBootstrapKeysEntity] interface {
	AbstractEngine
	ConvertPFPKSKToHost(in In) (Out, error)
	ConvertPFPKSKToHostUnchecked(in In) Out
}

// LWECiphertextToHostConversionEngine converts single LWE ciphertexts back.
type LWECiphertextToHostConversionEngine[In, Out LWECiphertextEntity] interface {
	AbstractEngine
	ConvertLWECiphertextToHost(in In) (Out, error)
	ConvertLWECiphertextToHostUnchecked(in In) Out
}

// GLWECiphertextToHostConversionEngine converts single GLWE ciphertexts back.
type GLWECiphertextToHostConversionEngine[In, Out GLWECiphertextEntity] interface {
	AbstractEngine
	ConvertGLWECiphertextToHost(in In) (Out, error)
	ConvertGLWECiphertextToHostUnchecked(in In) Out
}

// LWECiphertextVectorToHostConversionEngine converts LWE ciphertext vectors
// back.
type LWECiphertextVectorToHostConversionEngine[In, Out LWECiphertextVectorEntity] interface {
	AbstractEngine
	ConvertLWECiphertextVectorToHost(in In) (Out, error)
	ConvertLWECiphertextVectorToHostUnchecked(in In) Out
}

// GLWECiphertextVectorToHostConversionEngine converts GLWE ciphertext vectors
// back.
type GLWECiphertextVectorToHostConversionEngine[In, Out GLWECiphertextVectorEntity] interface {
	AbstractEngine
	ConvertGLWECiphertextVectorToHost(in In) (Out, error)
	ConvertGLWECiphertextVectorToHostUnchecked(in In) Out
}

// PlaintextVectorToHostConversionEngine converts plaintext vectors back.
type PlaintextVectorToHostConversionEngine[In, Out PlaintextVectorEntity] interface {
	AbstractEngine
	ConvertPlaintextVectorToHost(in In) (Out, error)
	ConvertPlaintextVectorToHostUnchecked(in In) Out
}

// CleartextVectorToHostConversionEngine converts cleartext vectors back.
type CleartextVectorToHostConversionEngine[In, Out CleartextVectorEntity] interface {
	AbstractEngine
	ConvertCleartextVectorToHost(in In) (Out, error)
	ConvertCleartextVectorToHostUnchecked(in In) Out
}
