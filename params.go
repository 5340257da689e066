// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package tfhe

import (
	"errors"
	"fmt"

	"github.com/luxfi/tfhe/internal/core"
)

// Parameters is a full parameter tuple for keys and operations. No named
// presets are shipped: callers choose values for their security target.
//
// Noise levels are standard deviations on the torus [0, 1).
type Parameters struct {
	LWEDimension   LWEDimension
	GLWEDimension  GLWEDimension
	PolynomialSize PolynomialSize

	LWENoise  float64
	GLWENoise float64

	PBSBaseLog DecompositionBaseLog
	PBSLevel   DecompositionLevelCount

	KSBaseLog DecompositionBaseLog
	KSLevel   DecompositionLevelCount

	// Packing key switch and circuit bootstrap decompositions; zero when the
	// circuit bootstrap is not used.
	PFPKSBaseLog DecompositionBaseLog
	PFPKSLevel   DecompositionLevelCount
	CBSBaseLog   DecompositionBaseLog
	CBSLevel     DecompositionLevelCount
}

// Validate checks every dimension and decomposition.
func (p Parameters) Validate() error {
	var errs []error
	if p.LWEDimension <= 0 {
		errs = append(errs, fmt.Errorf("%w: lwe dimension %d", ErrInvalidParameters, p.LWEDimension))
	}
	if p.GLWEDimension <= 0 {
		errs = append(errs, fmt.Errorf("%w: glwe dimension %d", ErrInvalidParameters, p.GLWEDimension))
	}
	if _, err := core.RingFor(int(p.PolynomialSize)); err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrPolynomialSizeNotSupported, err))
	}
	if p.LWENoise < 0 || p.GLWENoise < 0 {
		errs = append(errs, fmt.Errorf("%w: negative noise", ErrInvalidParameters))
	}
	errs = append(errs,
		CheckDecomposition(p.PBSLevel, p.PBSBaseLog),
		CheckDecomposition(p.KSLevel, p.KSBaseLog),
	)
	if p.CBSLevel != 0 || p.PFPKSLevel != 0 {
		errs = append(errs,
			CheckDecomposition(p.PFPKSLevel, p.PFPKSBaseLog),
			CheckDecomposition(p.CBSLevel, p.CBSBaseLog),
		)
	}
	return errors.Join(errs...)
}

// ExtractedLWEDimension is the dimension of bootstrap outputs, K*N.
func (p Parameters) ExtractedLWEDimension() LWEDimension {
	return p.GLWEDimension.ToLWEDimension(p.PolynomialSize)
}
