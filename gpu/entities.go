// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"

	"github.com/luxfi/tfhe"
)

// Device entities belong to the engine that created them and report its
// backend. Their buffers are freed by Engine.Destroy.

type resource interface {
	owner() *Engine
	release() error
}

// replicas holds one copy of a buffer per device. Entries are nil for empty
// buffers.
type replicas []*Vec[uint64]

func (r replicas) on(d int) *Vec[uint64] { return r[d] }

func (r replicas) free() error {
	var errs []error
	for _, v := range r {
		errs = append(errs, v.Free())
	}
	return errors.Join(errs...)
}

// LWECiphertext is a single LWE ciphertext on device 0.
type LWECiphertext struct {
	e       *Engine
	dim     tfhe.LWEDimension
	buf     *Vec[uint64]
	encoder *tfhe.Encoder
}

func (c *LWECiphertext) Backend() tfhe.Backend           { return c.e.backend }
func (c *LWECiphertext) LWEDimension() tfhe.LWEDimension { return c.dim }
func (c *LWECiphertext) owner() *Engine                  { return c.e }
func (c *LWECiphertext) release() error                  { return c.buf.Free() }

// Encoder returns the encoder of the message, or nil.
func (c *LWECiphertext) Encoder() *tfhe.Encoder { return c.encoder }

// GLWECiphertext is a single GLWE ciphertext on device 0.
type GLWECiphertext struct {
	e   *Engine
	k   tfhe.GLWEDimension
	n   tfhe.PolynomialSize
	buf *Vec[uint64]
}

func (c *GLWECiphertext) Backend() tfhe.Backend               { return c.e.backend }
func (c *GLWECiphertext) GLWEDimension() tfhe.GLWEDimension   { return c.k }
func (c *GLWECiphertext) PolynomialSize() tfhe.PolynomialSize { return c.n }
func (c *GLWECiphertext) owner() *Engine                      { return c.e }
func (c *GLWECiphertext) release() error                      { return c.buf.Free() }

// LWECiphertextVector is a batch of LWE ciphertexts sharded over the
// devices: shard i holds chunk i of Partition(devices, count).
type LWECiphertextVector struct {
	e        *Engine
	dim      tfhe.LWEDimension
	count    int
	chunks   []Chunk
	shards   []*Vec[uint64]
	encoders []*tfhe.Encoder
}

func (v *LWECiphertextVector) Backend() tfhe.Backend           { return v.e.backend }
func (v *LWECiphertextVector) LWEDimension() tfhe.LWEDimension { return v.dim }
func (v *LWECiphertextVector) Count() int                      { return v.count }
func (v *LWECiphertextVector) owner() *Engine                  { return v.e }

// Encoders returns the per-slot encoders.
func (v *LWECiphertextVector) Encoders() []*tfhe.Encoder { return v.encoders }

// Chunks returns the partition of the vector over the devices.
func (v *LWECiphertextVector) Chunks() []Chunk { return v.chunks }

func (v *LWECiphertextVector) release() error {
	var errs []error
	for _, s := range v.shards {
		errs = append(errs, s.Free())
	}
	return errors.Join(errs...)
}

// GLWECiphertextVector is a batch of GLWE ciphertexts replicated on every
// device.
type GLWECiphertextVector struct {
	e     *Engine
	k     tfhe.GLWEDimension
	n     tfhe.PolynomialSize
	count int
	bufs  replicas
}

func (v *GLWECiphertextVector) Backend() tfhe.Backend               { return v.e.backend }
func (v *GLWECiphertextVector) GLWEDimension() tfhe.GLWEDimension   { return v.k }
func (v *GLWECiphertextVector) PolynomialSize() tfhe.PolynomialSize { return v.n }
func (v *GLWECiphertextVector) Count() int                          { return v.count }
func (v *GLWECiphertextVector) owner() *Engine                      { return v.e }
func (v *GLWECiphertextVector) release() error                      { return v.bufs.free() }

// PlaintextVector is a batch of encoded residues replicated on every device.
type PlaintextVector struct {
	e        *Engine
	count    int
	bufs     replicas
	encoders []*tfhe.Encoder
}

func (p *PlaintextVector) Backend() tfhe.Backend { return p.e.backend }
func (p *PlaintextVector) Count() int            { return p.count }
func (p *PlaintextVector) owner() *Engine        { return p.e }
func (p *PlaintextVector) release() error        { return p.bufs.free() }

// CleartextVector is a batch of signed integers replicated on every device,
// stored as residues.
type CleartextVector struct {
	e     *Engine
	count int
	bufs  replicas
}

func (c *CleartextVector) Backend() tfhe.Backend { return c.e.backend }
func (c *CleartextVector) Count() int            { return c.count }
func (c *CleartextVector) owner() *Engine        { return c.e }
func (c *CleartextVector) release() error        { return c.bufs.free() }

// FourierLWEBootstrapKey is a frequency-domain bootstrap key replicated on
// every device.
type FourierLWEBootstrapKey struct {
	e       *Engine
	k       tfhe.GLWEDimension
	n       tfhe.PolynomialSize
	in      tfhe.LWEDimension
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
	words   int
	bufs    replicas
}

func (k *FourierLWEBootstrapKey) Backend() tfhe.Backend                                 { return k.e.backend }
func (k *FourierLWEBootstrapKey) GLWEDimension() tfhe.GLWEDimension                     { return k.k }
func (k *FourierLWEBootstrapKey) PolynomialSize() tfhe.PolynomialSize                   { return k.n }
func (k *FourierLWEBootstrapKey) InputLWEDimension() tfhe.LWEDimension                  { return k.in }
func (k *FourierLWEBootstrapKey) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return k.baseLog }
func (k *FourierLWEBootstrapKey) DecompositionLevelCount() tfhe.DecompositionLevelCount { return k.level }
func (k *FourierLWEBootstrapKey) owner() *Engine                                        { return k.e }
func (k *FourierLWEBootstrapKey) release() error                                        { return k.bufs.free() }

// LWEKeyswitchKey is a key switching key replicated on every device.
type LWEKeyswitchKey struct {
	e       *Engine
	in, out tfhe.LWEDimension
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
	words   int
	bufs    replicas
}

func (k *LWEKeyswitchKey) Backend() tfhe.Backend                                 { return k.e.backend }
func (k *LWEKeyswitchKey) InputLWEDimension() tfhe.LWEDimension                  { return k.in }
func (k *LWEKeyswitchKey) OutputLWEDimension() tfhe.LWEDimension                 { return k.out }
func (k *LWEKeyswitchKey) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return k.baseLog }
func (k *LWEKeyswitchKey) DecompositionLevelCount() tfhe.DecompositionLevelCount { return k.level }
func (k *LWEKeyswitchKey) owner() *Engine                                        { return k.e }
func (k *LWEKeyswitchKey) release() error                                        { return k.bufs.free() }

// LWEPackingKeyswitchKey is a private functional packing key switch key
// replicated on every device.
type LWEPackingKeyswitchKey struct {
	e       *Engine
	in      tfhe.LWEDimension
	k       tfhe.GLWEDimension
	n       tfhe.PolynomialSize
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
	words   int
	bufs    replicas
}

func (k *LWEPackingKeyswitchKey) Backend() tfhe.Backend                                 { return k.e.backend }
func (k *LWEPackingKeyswitchKey) InputLWEDimension() tfhe.LWEDimension                  { return k.in }
func (k *LWEPackingKeyswitchKey) OutputGLWEDimension() tfhe.GLWEDimension               { return k.k }
func (k *LWEPackingKeyswitchKey) OutputPolynomialSize() tfhe.PolynomialSize             { return k.n }
func (k *LWEPackingKeyswitchKey) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return k.baseLog }
func (k *LWEPackingKeyswitchKey) DecompositionLevelCount() tfhe.DecompositionLevelCount { return k.level }
func (k *LWEPackingKeyswitchKey) owner() *Engine                                        { return k.e }
func (k *LWEPackingKeyswitchKey) release() error                                        { return k.bufs.free() }

// CircuitBootstrapKeys holds the GLWEDimension+1 packing keys of the
// circuit bootstrap, each replicated on every device.
type CircuitBootstrapKeys struct {
	e       *Engine
	in      tfhe.LWEDimension
	k       tfhe.GLWEDimension
	n       tfhe.PolynomialSize
	level   tfhe.DecompositionLevelCount
	baseLog tfhe.DecompositionBaseLog
	words   int
	keys    []replicas
}

func (k *CircuitBootstrapKeys) Backend() tfhe.Backend                                 { return k.e.backend }
func (k *CircuitBootstrapKeys) InputLWEDimension() tfhe.LWEDimension                  { return k.in }
func (k *CircuitBootstrapKeys) OutputGLWEDimension() tfhe.GLWEDimension               { return k.k }
func (k *CircuitBootstrapKeys) OutputPolynomialSize() tfhe.PolynomialSize             { return k.n }
func (k *CircuitBootstrapKeys) DecompositionBaseLog() tfhe.DecompositionBaseLog       { return k.baseLog }
func (k *CircuitBootstrapKeys) DecompositionLevelCount() tfhe.DecompositionLevelCount { return k.level }
func (k *CircuitBootstrapKeys) Count() int                                            { return len(k.keys) }
func (k *CircuitBootstrapKeys) owner() *Engine                                        { return k.e }

func (k *CircuitBootstrapKeys) release() error {
	var errs []error
	for _, r := range k.keys {
		errs = append(errs, r.free())
	}
	return errors.Join(errs...)
}
