// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"fmt"
	"math"

	"github.com/luxfi/tfhe/internal/core"
)

// Encoder maps real values of [Min, Max] to residues modulo Q. The interval
// is split into steps of (Max-Min)/2^Precision; Padding high-order bits are
// left free so that sums of ciphertexts do not wrap around.
//
// A value x encodes to round((x-Min)/W * Q/2^Padding) mod Q, where W is
// Max-Min. Without padding, W is one step wider so that Max does not wrap
// onto Min.
type Encoder struct {
	Min       float64
	Max       float64
	Precision int
	Padding   int
}

// NewEncoder validates and returns an encoder.
func NewEncoder(min, max float64, precision, padding int) (*Encoder, error) {
	switch {
	case !(max > min), math.IsInf(max-min, 0):
		return nil, fmt.Errorf("%w: interval [%g, %g]", ErrInvalidEncoder, min, max)
	case precision <= 0 || padding < 0:
		return nil, fmt.Errorf("%w: precision %d, padding %d", ErrInvalidEncoder, precision, padding)
	case precision+padding >= core.LogQ:
		return nil, fmt.Errorf("%w: %d precision and %d padding bits exceed %d", ErrInvalidEncoder, precision, padding, core.LogQ)
	}
	return &Encoder{Min: min, Max: max, Precision: precision, Padding: padding}, nil
}

// BooleanEncoder encodes false as 0 and true as Q/4: one bit of precision
// and one bit of padding. Gate inputs and outputs use it.
func BooleanEncoder() *Encoder {
	return &Encoder{Min: 0, Max: 2, Precision: 1, Padding: 1}
}

// BitEncoder encodes a bit b as b*Q/2, the input encoding of the circuit
// bootstrap.
func BitEncoder() *Encoder {
	return &Encoder{Min: 0, Max: 1, Precision: 1, Padding: 1}
}

// Delta is the width of the interval.
func (e *Encoder) Delta() float64 { return e.Max - e.Min }

// Granularity is the smallest distinguishable step of decoded values.
func (e *Encoder) Granularity() float64 {
	return e.Delta() / math.Ldexp(1, e.Precision)
}

// span is the residue width of W, Q/2^Padding.
func (e *Encoder) span() float64 {
	return math.Ldexp(float64(core.Q), -e.Padding)
}

// width is W, the real width mapped onto span.
func (e *Encoder) width() float64 {
	if e.Padding == 0 {
		return e.Delta() + e.Granularity()
	}
	return e.Delta()
}

func (e *Encoder) String() string {
	return fmt.Sprintf("Encoder{[%g, %g], precision %d, padding %d}", e.Min, e.Max, e.Precision, e.Padding)
}

// Equal reports whether two encoders describe the same encoding.
func (e *Encoder) Equal(o *Encoder) bool {
	if e == nil || o == nil {
		return e == o
	}
	return *e == *o
}

func (e *Encoder) toResidue(shift float64) uint64 {
	return core.FromSigned(int64(math.Round(shift / e.width() * e.span())))
}

// EncodeOne encodes a single value.
func (e *Encoder) EncodeOne(x float64) (uint64, error) {
	if !(x >= e.Min && x <= e.Max) {
		return 0, &OutOfIntervalError{Value: x, Min: e.Min, Max: e.Max}
	}
	return e.toResidue(x - e.Min), nil
}

// Encode encodes values into a plaintext vector tagged with e.
func (e *Encoder) Encode(values []float64) (*PlaintextVector, error) {
	return e.EncodeWithMargin(values, 0)
}

// EncodeWithMargin accepts values in [Min-margin, Max+margin], for constants
// added to ciphertexts whose sum may spill outside the interval.
func (e *Encoder) EncodeWithMargin(values []float64, margin float64) (*PlaintextVector, error) {
	out := &PlaintextVector{values: make([]uint64, len(values)), encoders: make([]*Encoder, len(values))}
	for i, x := range values {
		if !(x >= e.Min-margin && x <= e.Max+margin) {
			return nil, &OutOfIntervalError{Index: i, Value: x, Min: e.Min - margin, Max: e.Max + margin}
		}
		out.values[i] = e.toResidue(x - e.Min)
		out.encoders[i] = e
	}
	return out, nil
}

// EncodeShift encodes values as offsets, without the Min shift. Adding the
// result to a ciphertext encoded with e adds the values to its message.
func (e *Encoder) EncodeShift(values []float64) *PlaintextVector {
	out := &PlaintextVector{values: make([]uint64, len(values)), encoders: make([]*Encoder, len(values))}
	for i, x := range values {
		out.values[i] = e.toResidue(x)
		out.encoders[i] = e
	}
	return out
}

// DecodeOne maps a residue, typically a decrypted phase, back to the
// nearest level of the interval.
func (e *Encoder) DecodeOne(v uint64) float64 {
	t := float64(v%core.Q) / e.span()
	levels := math.Ldexp(1, e.Precision)
	var level float64
	if e.Padding > 0 {
		window := math.Ldexp(1, e.Padding)
		if t >= (window+1)/2 {
			t -= window
		}
		level = math.Round(t * levels)
	} else {
		level = math.Mod(math.Round(t*(levels+1)), levels+1)
	}
	return e.Min + level*e.Granularity()
}

// Decode decodes every value of pt with e.
func (e *Encoder) Decode(pt *PlaintextVector) ([]float64, error) {
	if pt == nil {
		return nil, fmt.Errorf("%w: nil plaintext vector", ErrPlaintextCountMismatch)
	}
	out := make([]float64, len(pt.values))
	for i, v := range pt.values {
		out[i] = e.DecodeOne(v)
	}
	return out, nil
}

// AddWithPadding returns the encoder of the sum of two ciphertexts encoded
// with e and o. Both must share the interval width, precision and padding,
// and one padding bit must be left. The sum keeps the precision and spends
// one padding bit. When that bit is the last one, Max is lowered by a step
// of the new encoder: sums above it wrap.
func (e *Encoder) AddWithPadding(o *Encoder) (*Encoder, error) {
	switch {
	case e == nil || o == nil:
		return nil, fmt.Errorf("%w: missing encoder", ErrEncoderMismatch)
	case !sameWidth(e.Delta(), o.Delta()):
		return nil, fmt.Errorf("%w: interval widths %g and %g", ErrEncoderMismatch, e.Delta(), o.Delta())
	case e.Precision != o.Precision || e.Padding != o.Padding:
		return nil, fmt.Errorf("%w: %v and %v", ErrEncoderMismatch, e, o)
	case e.Padding == 0:
		return nil, fmt.Errorf("%w: no padding bit left", ErrEncoderMismatch)
	}
	min := e.Min + o.Min
	delta := 2 * e.Delta()
	if e.Padding == 1 {
		levels := math.Ldexp(1, e.Precision)
		delta = delta * levels / (levels + 1)
	}
	return &Encoder{
		Min:       min,
		Max:       min + delta,
		Precision: e.Precision,
		Padding:   e.Padding - 1,
	}, nil
}

func sameWidth(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(math.Abs(a), math.Abs(b))
}
