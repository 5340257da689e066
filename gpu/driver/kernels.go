// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package driver

// Kernel buffers hold 64-bit residues modulo the ciphertext modulus, laid
// out as on the host: LWE ciphertexts of Dim+1 words, mask first, GLWE
// ciphertexts of (K+1)*N words.

// LinearArgs computes Out[i] = C1*In1[i] + C2*In2[i] + Constant, the
// constant added to the body. In2 may be null. Out may alias In1 or In2.
type LinearArgs struct {
	Out, In1, In2 Ptr
	C1, C2        int64
	Constant      uint64
	Dim, Count    int
}

// PlaintextArgs combines ciphertext In[i] with word Values[i]: added to the
// body for plaintexts, multiplied as a signed integer for cleartexts.
type PlaintextArgs struct {
	Out, In, Values Ptr
	Dim, Count      int
}

// BootstrapKeyArgs converts a bootstrap key of Words words in place.
type BootstrapKeyArgs struct {
	Key     Ptr
	Words   int
	N       int
	Inverse bool
}

// BootstrapArgs bootstraps Count ciphertexts of dimension InDim into
// ciphertexts of dimension K*N. Ciphertext i uses the accumulator of index
// Indexes[i]; a null Indexes selects accumulator 0 for every ciphertext.
type BootstrapArgs struct {
	Out, In, Acc, Indexes, BSK Ptr

	K, N, InDim    int
	Level, BaseLog int
	Count          int
}

// KeyswitchArgs key switches Count ciphertexts.
type KeyswitchArgs struct {
	Out, In, KSK   Ptr
	InDim, OutDim  int
	Level, BaseLog int
	Count          int
}

// PackingKeyswitchArgs packs Count ciphertexts of dimension InDim into the
// GLWE ciphertext Out, ciphertext j on coefficient Offset+j. Out is
// overwritten.
type PackingKeyswitchArgs struct {
	Out, In, Key   Ptr
	InDim, K, N    int
	Level, BaseLog int
	Offset, Count  int
}

// CircuitBootstrapArgs circuit-bootstraps InCount bits and evaluates
// OutCount lookup tables of 2^InCount words each.
type CircuitBootstrapArgs struct {
	Out, In, BSK, LUTs Ptr
	// Keys holds the K+1 packing keys.
	Keys []Ptr

	K, N, InDim              int
	PBSLevel, PBSBaseLog     int
	CBSLevel, CBSBaseLog     int
	PFPKSLevel, PFPKSBaseLog int
	InCount, OutCount        int
}

// Kernels launches computations on a stream. A returned error means the
// launch was rejected and nothing was queued.
type Kernels interface {
	LinearLWE(s Stream, args LinearArgs) error
	AddPlaintextLWE(s Stream, args PlaintextArgs) error
	MulCleartextLWE(s Stream, args PlaintextArgs) error
	ConvertBootstrapKey(s Stream, args BootstrapKeyArgs) error
	Bootstrap(s Stream, args BootstrapArgs) error
	Keyswitch(s Stream, args KeyswitchArgs) error
	PackingKeyswitch(s Stream, args PackingKeyswitchArgs) error
	CircuitBootstrapVerticalPacking(s Stream, args CircuitBootstrapArgs) error
}
