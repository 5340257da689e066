// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"fmt"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// GenerateLWESecretKey samples a binary LWE key.
func (e *Engine) GenerateLWESecretKey(dim tfhe.LWEDimension) (*LWESecretKey, error) {
	if dim <= 0 {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, fmt.Errorf("%w: lwe dimension %d", tfhe.ErrInvalidParameters, dim))
	}
	key := &LWESecretKey{coeffs: make([]uint64, dim)}
	e.sample(func(s *core.Sampler) { s.BinarySlice(key.coeffs) })
	return key, nil
}

// GenerateGLWESecretKey samples a binary GLWE key.
func (e *Engine) GenerateGLWESecretKey(k tfhe.GLWEDimension, n tfhe.PolynomialSize) (*GLWESecretKey, error) {
	if k <= 0 {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, fmt.Errorf("%w: glwe dimension %d", tfhe.ErrInvalidParameters, k))
	}
	if err := tfhe.CheckRing(tfhe.OpGenerateKey, n); err != nil {
		return nil, err
	}
	var (
		key *core.GLWEKey
		err error
	)
	e.sample(func(s *core.Sampler) { key, err = core.NewGLWEKey(int(k), int(n), s) })
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, err)
	}
	return &GLWESecretKey{key: key}, nil
}

// GenerateLWEBootstrapKey encrypts every bit of in under out. noise is the
// GLWE noise level.
func (e *Engine) GenerateLWEBootstrapKey(in *LWESecretKey, out *GLWESecretKey,
	level tfhe.DecompositionLevelCount, baseLog tfhe.DecompositionBaseLog, noise float64,
) (*LWEBootstrapKey, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, err)
	}
	shape := bootstrapShape{k: out.GLWEDimension(), n: out.PolynomialSize(), in: in.LWEDimension(), level: level, baseLog: baseLog}
	bsk := &LWEBootstrapKey{bootstrapShape: shape, data: make([]uint64, shape.size())}
	e.sample(func(s *core.Sampler) {
		core.GenerateBootstrapKey(bsk.data, in.coeffs, out.key, shape.decomposer(), noise, s)
	})
	return bsk, nil
}

// GenerateLWEKeyswitchKey builds a key switching key from in to out. noise
// is the LWE noise level of out.
func (e *Engine) GenerateLWEKeyswitchKey(in, out *LWESecretKey,
	level tfhe.DecompositionLevelCount, baseLog tfhe.DecompositionBaseLog, noise float64,
) (*LWEKeyswitchKey, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, err)
	}
	ksk := &LWEKeyswitchKey{
		in:      in.LWEDimension(),
		out:     out.LWEDimension(),
		level:   level,
		baseLog: baseLog,
		data:    make([]uint64, int(in.LWEDimension())*int(level)*out.LWEDimension().Size()),
	}
	e.sample(func(s *core.Sampler) {
		core.GenerateKeyswitchKey(ksk.data, in.coeffs, out.coeffs, ksk.decomposer(), noise, s)
	})
	return ksk, nil
}

// GenerateLWEPackingKeyswitchKey builds a private functional packing key
// switch key from in to out for the polynomial p (N residues).
func (e *Engine) GenerateLWEPackingKeyswitchKey(in *LWESecretKey, out *GLWESecretKey, p []uint64,
	level tfhe.DecompositionLevelCount, baseLog tfhe.DecompositionBaseLog, noise float64,
) (*LWEPackingKeyswitchKey, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, err)
	}
	if len(p) != int(out.PolynomialSize()) {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, fmt.Errorf("%w: polynomial of %d coefficients, key size %d",
			tfhe.ErrAccumulatorPolynomialSizeMismatch, len(p), out.PolynomialSize()))
	}
	shape := packingShape{in: in.LWEDimension(), k: out.GLWEDimension(), n: out.PolynomialSize(), level: level, baseLog: baseLog}
	key := &LWEPackingKeyswitchKey{packingShape: shape, data: make([]uint64, shape.size())}
	e.sample(func(s *core.Sampler) {
		core.GeneratePFPKSK(key.data, in.coeffs, out.key, p, shape.decomposer(), noise, s)
	})
	return key, nil
}

// GenerateCircuitBootstrapKeys builds the packing keys of the circuit
// bootstrap from the LWE key extracted from key to key itself.
func (e *Engine) GenerateCircuitBootstrapKeys(key *GLWESecretKey,
	level tfhe.DecompositionLevelCount, baseLog tfhe.DecompositionBaseLog, noise float64,
) (*CircuitBootstrapKeys, error) {
	if err := tfhe.CheckDecomposition(level, baseLog); err != nil {
		return nil, tfhe.OpError(tfhe.OpGenerateKey, err)
	}
	shape := packingShape{
		in:      key.GLWEDimension().ToLWEDimension(key.PolynomialSize()),
		k:       key.GLWEDimension(),
		n:       key.PolynomialSize(),
		level:   level,
		baseLog: baseLog,
	}
	var keys [][]uint64
	e.sample(func(s *core.Sampler) {
		keys = core.GenerateCircuitBootstrapKeys(key.key, shape.decomposer(), noise, s)
	})
	return &CircuitBootstrapKeys{packingShape: shape, keys: keys}, nil
}
