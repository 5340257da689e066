// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import "fmt"

// PlaintextVector holds encoded residues in host memory, each tagged with
// the encoder that produced it (nil when built from raw residues).
type PlaintextVector struct {
	values   []uint64
	encoders []*Encoder
}

// NewPlaintextVector wraps raw residues modulo Q. The slice is copied.
func NewPlaintextVector(values []uint64) *PlaintextVector {
	return &PlaintextVector{
		values:   append([]uint64(nil), values...),
		encoders: make([]*Encoder, len(values)),
	}
}

// NewEncodedPlaintextVector wraps residues and their encoders.
func NewEncodedPlaintextVector(values []uint64, encoders []*Encoder) (*PlaintextVector, error) {
	if len(encoders) != len(values) {
		return nil, fmt.Errorf("%w: %d values, %d encoders", ErrPlaintextCountMismatch, len(values), len(encoders))
	}
	return &PlaintextVector{
		values:   append([]uint64(nil), values...),
		encoders: append([]*Encoder(nil), encoders...),
	}, nil
}

func (p *PlaintextVector) Backend() Backend { return BackendCPU }

// Count is the number of plaintexts.
func (p *PlaintextVector) Count() int { return len(p.values) }

// Values returns the residues; callers must not modify them.
func (p *PlaintextVector) Values() []uint64 { return p.values }

// Encoders returns the per-slot encoders; callers must not modify them.
func (p *PlaintextVector) Encoders() []*Encoder { return p.encoders }

// Decode decodes every slot with its own encoder.
func (p *PlaintextVector) Decode() ([]float64, error) {
	out := make([]float64, len(p.values))
	for i, v := range p.values {
		e := p.encoders[i]
		if e == nil {
			return nil, fmt.Errorf("%w: slot %d has no encoder", ErrInvalidEncoder, i)
		}
		out[i] = e.DecodeOne(v)
	}
	return out, nil
}

// CleartextVector holds signed integer constants in host memory.
type CleartextVector struct {
	values []int64
}

// NewCleartextVector copies values.
func NewCleartextVector(values []int64) *CleartextVector {
	return &CleartextVector{values: append([]int64(nil), values...)}
}

func (c *CleartextVector) Backend() Backend { return BackendCPU }

// Count is the number of cleartexts.
func (c *CleartextVector) Count() int { return len(c.values) }

// Values returns the integers; callers must not modify them.
func (c *CleartextVector) Values() []int64 { return c.values }
