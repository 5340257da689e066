// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package core

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/luxfi/lattice/v7/utils/sampling"
)

// Sampler draws uniform residues, binary key coefficients and discrete
// Gaussian noise from a keyed PRNG. It is not safe for concurrent use.
type Sampler struct {
	prng io.Reader
	buf  [8]byte
}

// NewSampler seeds a sampler. The same seed yields the same stream.
func NewSampler(seed []byte) (*Sampler, error) {
	prng, err := sampling.NewKeyedPRNG(seed)
	if err != nil {
		return nil, fmt.Errorf("keyed prng: %w", err)
	}
	return &Sampler{prng: prng}, nil
}

func (s *Sampler) next() uint64 {
	if _, err := io.ReadFull(s.prng, s.buf[:]); err != nil {
		panic(fmt.Errorf("prng read: %w", err))
	}
	return binary.LittleEndian.Uint64(s.buf[:])
}

// Uniform returns a uniform residue mod Q.
func (s *Sampler) Uniform() uint64 {
	const mask = uint64(1)<<LogQ - 1
	for {
		if v := s.next() & mask; v < Q {
			return v
		}
	}
}

// UniformSlice fills dst with uniform residues.
func (s *Sampler) UniformSlice(dst []uint64) {
	for i := range dst {
		dst[i] = s.Uniform()
	}
}

// Binary returns 0 or 1.
func (s *Sampler) Binary() uint64 {
	return s.next() & 1
}

// BinarySlice fills dst with binary coefficients.
func (s *Sampler) BinarySlice(dst []uint64) {
	for i := range dst {
		dst[i] = s.Binary()
	}
}

// float returns a uniform float in (0, 1].
func (s *Sampler) float() float64 {
	return (float64(s.next()>>11) + 1) / (1 << 53)
}

// Gaussian returns round(e) mod Q with e ~ N(0, (stddev*Q)^2); stddev is
// expressed on the torus.
func (s *Sampler) Gaussian(stddev float64) uint64 {
	if stddev <= 0 {
		return 0
	}
	u1, u2 := s.float(), s.float()
	z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
	return FromSigned(int64(math.Round(z * stddev * float64(Q))))
}

// AddGaussian adds fresh noise to every coefficient of dst.
func (s *Sampler) AddGaussian(dst []uint64, stddev float64) {
	if stddev <= 0 {
		return
	}
	for i := range dst {
		dst[i] = AddMod(dst[i], s.Gaussian(stddev))
	}
}
