// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package cpu is the processor backend: every operation interface of package
// tfhe evaluated in host memory with exact modular arithmetic. It also
// generates keys and encrypts, which the accelerator backend relies on.
package cpu

import (
	"fmt"
	"sync"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
	"github.com/luxfi/tfhe/internal/seal"
)

// Engine implements the operation interfaces on the host. It is safe for
// concurrent use; only key generation and encryption share state, the
// sampler, which a mutex guards.
type Engine struct {
	mu      sync.Mutex
	sampler *core.Sampler
}

// New returns an engine whose keys and encryptions are drawn from a PRNG
// keyed with seed. The caller owns the quality of the seed.
func New(seed []byte) (*Engine, error) {
	s, err := core.NewSampler(seed)
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpNewEngine, err)
	}
	return &Engine{sampler: s}, nil
}

func (e *Engine) Backend() tfhe.Backend { return tfhe.BackendCPU }

func (e *Engine) Sealed(seal.Token) {}

// Destroy clears the entity. Secret keys are zeroed.
func (e *Engine) Destroy(entity tfhe.Entity) error {
	if entity == nil || entity.Backend() != tfhe.BackendCPU {
		return tfhe.OpError(tfhe.OpDestroy, fmt.Errorf("%w: %T", tfhe.ErrUnsupportedEntity, entity))
	}
	if d, ok := entity.(destroyer); ok {
		d.destroy()
	}
	return nil
}

// sample runs f with exclusive access to the sampler.
func (e *Engine) sample(f func(s *core.Sampler)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f(e.sampler)
}

var (
	_ tfhe.LWECiphertextVectorDiscardingAdditionEngine[*LWECiphertextVector, *LWECiphertextVector]                       = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorAdditionEngine[*LWECiphertextVector, *LWECiphertextVector]                                 = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingOppositeEngine[*LWECiphertextVector, *LWECiphertextVector]                       = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorPlaintextVectorDiscardingAdditionEngine[*LWECiphertextVector, *tfhe.PlaintextVector]       = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorCleartextVectorDiscardingMultiplicationEngine[*LWECiphertextVector, *tfhe.CleartextVector] = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingKeyswitchEngine[*LWEKeyswitchKey, *LWECiphertextVector, *LWECiphertextVector]    = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorDiscardingBootstrapEngine[*FourierLWEBootstrapKey, *GLWECiphertextVector, *LWECiphertextVector, *LWECiphertextVector] = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorBooleanGateEngine[*FourierLWEBootstrapKey, *LWEKeyswitchKey, *LWECiphertextVector] = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingNotEngine[*LWECiphertextVector]                                          = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorDiscardingCircuitBootstrapBooleanVerticalPackingEngine[*FourierLWEBootstrapKey, *tfhe.PlaintextVector, *CircuitBootstrapKeys, *LWECiphertextVector, *LWECiphertextVector] = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorGLWECiphertextDiscardingPackingKeyswitchEngine[*LWEPackingKeyswitchKey, *LWECiphertextVector, *GLWECiphertext] = (*Engine)(nil)

	_ tfhe.LWECiphertextDiscardingLoadEngine[*LWECiphertextVector, *LWECiphertext]  = (*Engine)(nil)
	_ tfhe.LWECiphertextDiscardingStoreEngine[*LWECiphertextVector, *LWECiphertext] = (*Engine)(nil)

	_ tfhe.LWEBootstrapKeyConversionEngine[*LWEBootstrapKey, *FourierLWEBootstrapKey]           = (*Engine)(nil)
	_ tfhe.LWEBootstrapKeyToStandardConversionEngine[*FourierLWEBootstrapKey, *LWEBootstrapKey] = (*Engine)(nil)
)
