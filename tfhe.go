// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package tfhe is a TFHE homomorphic operation engine.
//
// Values are encoded into residues modulo a 50-bit prime with an Encoder,
// encrypted as LWE ciphertexts, and evaluated on by engines: additions,
// constant multiplications, key switching, programmable bootstrapping,
// boolean gates and circuit bootstrapping with vertical packing.
//
// Every operation is an interface parameterized over the entity types of a
// backend. The cpu package implements them in host memory; the gpu package
// implements the same interfaces on one or more accelerator devices and
// splits ciphertext batches across them.
package tfhe

import "github.com/luxfi/tfhe/internal/seal"

// Backend identifies the execution target of an engine.
type Backend int

const (
	BackendCPU Backend = iota
	BackendCUDA
	BackendCUDAAmortized
)

func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendCUDA:
		return "cuda"
	case BackendCUDAAmortized:
		return "cuda-amortized"
	default:
		return "unknown"
	}
}

// AbstractEngine is embedded by every operation interface. It cannot be
// implemented outside this module.
type AbstractEngine interface {
	Backend() Backend
	// Destroy releases the resources held by an entity created by this engine.
	Destroy(e Entity) error
	Sealed(seal.Token)
}

// Entity is any value an engine creates or consumes.
type Entity interface {
	Backend() Backend
}

// LWECiphertextEntity is a single LWE ciphertext.
type LWECiphertextEntity interface {
	Entity
	LWEDimension() LWEDimension
}

// LWECiphertextVectorEntity is a batch of LWE ciphertexts of one dimension.
type LWECiphertextVectorEntity interface {
	Entity
	LWEDimension() LWEDimension
	Count() int
}

// GLWECiphertextEntity is a single GLWE ciphertext.
type GLWECiphertextEntity interface {
	Entity
	GLWEDimension() GLWEDimension
	PolynomialSize() PolynomialSize
}

// GLWECiphertextVectorEntity is a batch of GLWE ciphertexts, used as
// bootstrap accumulators.
type GLWECiphertextVectorEntity interface {
	Entity
	GLWEDimension() GLWEDimension
	PolynomialSize() PolynomialSize
	Count() int
}

// PlaintextVectorEntity is a batch of encoded values.
type PlaintextVectorEntity interface {
	Entity
	Count() int
}

// CleartextVectorEntity is a batch of signed integer constants.
type CleartextVectorEntity interface {
	Entity
	Count() int
}

// LWEBootstrapKeyEntity is a bootstrap key from an LWE key of
// InputLWEDimension to a GLWE key of (GLWEDimension, PolynomialSize).
type LWEBootstrapKeyEntity interface {
	Entity
	GLWEDimension() GLWEDimension
	PolynomialSize() PolynomialSize
	InputLWEDimension() LWEDimension
	DecompositionLevelCount() DecompositionLevelCount
	DecompositionBaseLog() DecompositionBaseLog
}

// LWEKeyswitchKeyEntity switches LWE ciphertexts between two keys.
type LWEKeyswitchKeyEntity interface {
	Entity
	InputLWEDimension() LWEDimension
	OutputLWEDimension() LWEDimension
	DecompositionLevelCount() DecompositionLevelCount
	DecompositionBaseLog() DecompositionBaseLog
}

// LWEPackingKeyswitchKeyEntity is one private functional packing key switch
// key from an LWE key to a GLWE key.
type LWEPackingKeyswitchKeyEntity interface {
	Entity
	InputLWEDimension() LWEDimension
	OutputGLWEDimension() GLWEDimension
	OutputPolynomialSize() PolynomialSize
	DecompositionLevelCount() DecompositionLevelCount
	DecompositionBaseLog() DecompositionBaseLog
}

// CircuitBootstrapKeysEntity is the set of GLWEDimension+1 packing keys used
// by the circuit bootstrap.
type CircuitBootstrapKeysEntity interface {
	LWEPackingKeyswitchKeyEntity
	Count() int
}

// BootstrapOutputDimension is the LWE dimension of bootstrap outputs under
// the key extracted from a bootstrap key's GLWE key.
func BootstrapOutputDimension(bsk LWEBootstrapKeyEntity) LWEDimension {
	return bsk.GLWEDimension().ToLWEDimension(bsk.PolynomialSize())
}
