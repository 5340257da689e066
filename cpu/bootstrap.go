// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package cpu

import (
	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/internal/core"
)

// DiscardKeyswitchLWECiphertextVector re-encrypts in under the output key of
// ksk. Encoders carry over.
func (e *Engine) DiscardKeyswitchLWECiphertextVector(out, in *LWECiphertextVector, ksk *LWEKeyswitchKey) error {
	if err := tfhe.CheckKeyswitch(tfhe.OpKeyswitchLWEVector, out, in, ksk); err != nil {
		return err
	}
	e.DiscardKeyswitchLWECiphertextVectorUnchecked(out, in, ksk)
	return nil
}

func (e *Engine) DiscardKeyswitchLWECiphertextVectorUnchecked(out, in *LWECiphertextVector, ksk *LWEKeyswitchKey) {
	d := ksk.decomposer()
	for i := 0; i < in.count; i++ {
		core.KeyswitchLWE(out.slot(i), in.slot(i), ksk.data, d)
	}
	copy(out.encoders, in.encoders)
}

// DiscardBootstrapLWECiphertextVector bootstraps in[i] through the
// accumulator acc[i]. The outputs have dimension K*N and no encoder.
func (e *Engine) DiscardBootstrapLWECiphertextVector(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) error {
	if err := tfhe.CheckBootstrap(tfhe.OpBootstrapLWEVector, out, in, acc, bsk); err != nil {
		return err
	}
	if err := tfhe.CheckRing(tfhe.OpBootstrapLWEVector, bsk.n); err != nil {
		return err
	}
	e.DiscardBootstrapLWECiphertextVectorUnchecked(out, in, acc, bsk)
	return nil
}

func (e *Engine) DiscardBootstrapLWECiphertextVectorUnchecked(out, in *LWECiphertextVector, acc *GLWECiphertextVector, bsk *FourierLWEBootstrapKey) {
	w := core.NewWorkspace(core.MustRing(int(bsk.n)), int(bsk.k), bsk.decomposer())
	for i := 0; i < in.count; i++ {
		w.Bootstrap(out.slot(i), in.slot(i), acc.slot(i), bsk.data)
	}
	clear(out.encoders)
}

// ConvertLWEBootstrapKey moves a bootstrap key to the frequency domain.
func (e *Engine) ConvertLWEBootstrapKey(in *LWEBootstrapKey) (*FourierLWEBootstrapKey, error) {
	if err := tfhe.CheckRing(tfhe.OpConvertBootstrapKey, in.n); err != nil {
		return nil, err
	}
	return e.ConvertLWEBootstrapKeyUnchecked(in), nil
}

func (e *Engine) ConvertLWEBootstrapKeyUnchecked(in *LWEBootstrapKey) *FourierLWEBootstrapKey {
	out := &FourierLWEBootstrapKey{bootstrapShape: in.bootstrapShape, data: make([]uint64, len(in.data))}
	core.BootstrapKeyToFourier(out.data, in.data, int(in.n))
	return out
}

// ConvertLWEBootstrapKeyToStandard moves a bootstrap key back to the
// standard domain.
func (e *Engine) ConvertLWEBootstrapKeyToStandard(in *FourierLWEBootstrapKey) (*LWEBootstrapKey, error) {
	if err := tfhe.CheckRing(tfhe.OpConvertBootstrapKey, in.n); err != nil {
		return nil, err
	}
	return e.ConvertLWEBootstrapKeyToStandardUnchecked(in), nil
}

func (e *Engine) ConvertLWEBootstrapKeyToStandardUnchecked(in *FourierLWEBootstrapKey) *LWEBootstrapKey {
	out := &LWEBootstrapKey{bootstrapShape: in.bootstrapShape, data: make([]uint64, len(in.data))}
	core.BootstrapKeyFromFourier(out.data, in.data, int(in.n))
	return out
}
