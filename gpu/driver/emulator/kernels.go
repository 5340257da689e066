// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package emulator

import (
	"fmt"

	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/core"
)

// kernels evaluates launches with the host arithmetic on the stream's
// executor. Shapes are validated when a launch is issued, buffers are
// resolved when it runs.
type kernels struct {
	d *Driver
}

var _ driver.Kernels = kernels{}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{driver.ErrInvalidLaunch}, args...)...)
}

// launch queues run on s and counts it against the stream's device.
func (k kernels) launch(s driver.Stream, run func() error) error {
	_, dev, err := k.d.stream(s)
	if err != nil {
		return err
	}
	if err := k.d.issue(s, false, run); err != nil {
		return err
	}
	dev.launches.Add(1)
	return nil
}

// slots resolves count consecutive blocks of size words at p.
func (k kernels) slots(p driver.Ptr, size, count int) ([][]uint64, error) {
	w, err := k.d.words(p, size*count)
	if err != nil {
		return nil, err
	}
	out := make([][]uint64, count)
	for i := range out {
		out[i] = w[i*size : (i+1)*size]
	}
	return out, nil
}

func (k kernels) LinearLWE(s driver.Stream, args driver.LinearArgs) error {
	if args.Dim <= 0 || args.Count <= 0 {
		return invalid("linear over %d ciphertexts of dimension %d", args.Count, args.Dim)
	}
	size := args.Dim + 1
	return k.launch(s, func() error {
		out, err := k.slots(args.Out, size, args.Count)
		if err != nil {
			return err
		}
		in1, err := k.slots(args.In1, size, args.Count)
		if err != nil {
			return err
		}
		var in2 [][]uint64
		if args.In2 != 0 {
			if in2, err = k.slots(args.In2, size, args.Count); err != nil {
				return err
			}
		}
		for i := range out {
			var b []uint64
			if in2 != nil {
				b = in2[i]
			}
			core.LinearLWE(out[i], in1[i], b, args.C1, args.C2, args.Constant)
		}
		return nil
	})
}

// plaintext resolves the operands of a plaintext or cleartext launch.
func (k kernels) plaintext(args driver.PlaintextArgs) (out, in [][]uint64, values []uint64, err error) {
	size := args.Dim + 1
	if out, err = k.slots(args.Out, size, args.Count); err != nil {
		return
	}
	if in, err = k.slots(args.In, size, args.Count); err != nil {
		return
	}
	values, err = k.d.words(args.Values, args.Count)
	return
}

func (k kernels) AddPlaintextLWE(s driver.Stream, args driver.PlaintextArgs) error {
	if args.Dim <= 0 || args.Count <= 0 {
		return invalid("plaintext addition over %d ciphertexts of dimension %d", args.Count, args.Dim)
	}
	return k.launch(s, func() error {
		out, in, values, err := k.plaintext(args)
		if err != nil {
			return err
		}
		for i := range out {
			core.AddPlaintextLWE(out[i], in[i], values[i])
		}
		return nil
	})
}

func (k kernels) MulCleartextLWE(s driver.Stream, args driver.PlaintextArgs) error {
	if args.Dim <= 0 || args.Count <= 0 {
		return invalid("cleartext multiplication over %d ciphertexts of dimension %d", args.Count, args.Dim)
	}
	return k.launch(s, func() error {
		out, in, values, err := k.plaintext(args)
		if err != nil {
			return err
		}
		for i := range out {
			core.MulCleartextLWE(out[i], in[i], int64(values[i]))
		}
		return nil
	})
}

func (k kernels) ConvertBootstrapKey(s driver.Stream, args driver.BootstrapKeyArgs) error {
	if _, err := core.RingFor(args.N); err != nil {
		return invalid("%v", err)
	}
	if args.Words <= 0 || args.Words%args.N != 0 {
		return invalid("%d words is not a whole number of polynomials of size %d", args.Words, args.N)
	}
	return k.launch(s, func() error {
		key, err := k.d.words(args.Key, args.Words)
		if err != nil {
			return err
		}
		if args.Inverse {
			core.BootstrapKeyFromFourier(key, key, args.N)
		} else {
			core.BootstrapKeyToFourier(key, key, args.N)
		}
		return nil
	})
}

func (k kernels) Bootstrap(s driver.Stream, args driver.BootstrapArgs) error {
	r, err := core.RingFor(args.N)
	if err != nil {
		return invalid("%v", err)
	}
	dec, err := core.NewDecomposer(args.BaseLog, args.Level)
	if err != nil {
		return invalid("%v", err)
	}
	if args.K <= 0 || args.InDim <= 0 || args.Count <= 0 {
		return invalid("bootstrap of %d ciphertexts of dimension %d into glwe dimension %d", args.Count, args.InDim, args.K)
	}
	glweSize := (args.K + 1) * args.N
	bskSize := args.InDim * core.GGSWSize(args.K, args.N, args.Level)

	return k.launch(s, func() error {
		out, err := k.slots(args.Out, args.K*args.N+1, args.Count)
		if err != nil {
			return err
		}
		in, err := k.slots(args.In, args.InDim+1, args.Count)
		if err != nil {
			return err
		}
		bsk, err := k.d.words(args.BSK, bskSize)
		if err != nil {
			return err
		}
		var indexes []uint64
		if args.Indexes != 0 {
			if indexes, err = k.d.words(args.Indexes, args.Count); err != nil {
				return err
			}
		}
		w := core.NewWorkspace(r, args.K, dec)
		for i := range out {
			var idx uint64
			if indexes != nil {
				idx = indexes[i]
			}
			acc, err := k.d.words(args.Acc.Add(int(idx)*glweSize*8), glweSize)
			if err != nil {
				return fmt.Errorf("accumulator %d: %w", idx, err)
			}
			w.Bootstrap(out[i], in[i], acc, bsk)
		}
		return nil
	})
}

func (k kernels) Keyswitch(s driver.Stream, args driver.KeyswitchArgs) error {
	dec, err := core.NewDecomposer(args.BaseLog, args.Level)
	if err != nil {
		return invalid("%v", err)
	}
	if args.InDim <= 0 || args.OutDim <= 0 || args.Count <= 0 {
		return invalid("key switch of %d ciphertexts from dimension %d to %d", args.Count, args.InDim, args.OutDim)
	}
	kskSize := args.InDim * args.Level * (args.OutDim + 1)

	return k.launch(s, func() error {
		out, err := k.slots(args.Out, args.OutDim+1, args.Count)
		if err != nil {
			return err
		}
		in, err := k.slots(args.In, args.InDim+1, args.Count)
		if err != nil {
			return err
		}
		ksk, err := k.d.words(args.KSK, kskSize)
		if err != nil {
			return err
		}
		for i := range out {
			core.KeyswitchLWE(out[i], in[i], ksk, dec)
		}
		return nil
	})
}

func (k kernels) PackingKeyswitch(s driver.Stream, args driver.PackingKeyswitchArgs) error {
	r, err := core.RingFor(args.N)
	if err != nil {
		return invalid("%v", err)
	}
	dec, err := core.NewDecomposer(args.BaseLog, args.Level)
	if err != nil {
		return invalid("%v", err)
	}
	if args.K <= 0 || args.InDim <= 0 || args.Count <= 0 || args.Offset < 0 || args.Offset+args.Count > args.N {
		return invalid("packing of %d ciphertexts at %d into polynomial size %d", args.Count, args.Offset, args.N)
	}
	keySize := core.PFPKSKSize(args.InDim, args.K, args.N, args.Level)

	return k.launch(s, func() error {
		out, err := k.d.words(args.Out, (args.K+1)*args.N)
		if err != nil {
			return err
		}
		in, err := k.slots(args.In, args.InDim+1, args.Count)
		if err != nil {
			return err
		}
		key, err := k.d.words(args.Key, keySize)
		if err != nil {
			return err
		}
		core.PackLWEAt(r, out, in, key, dec, args.Offset)
		return nil
	})
}

func (k kernels) CircuitBootstrapVerticalPacking(s driver.Stream, args driver.CircuitBootstrapArgs) error {
	r, err := core.RingFor(args.N)
	if err != nil {
		return invalid("%v", err)
	}
	pbs, err := core.NewDecomposer(args.PBSBaseLog, args.PBSLevel)
	if err != nil {
		return invalid("bootstrap: %v", err)
	}
	cbs, err := core.NewDecomposer(args.CBSBaseLog, args.CBSLevel)
	if err != nil {
		return invalid("circuit bootstrap: %v", err)
	}
	pfpks, err := core.NewDecomposer(args.PFPKSBaseLog, args.PFPKSLevel)
	if err != nil {
		return invalid("packing key switch: %v", err)
	}
	if args.K <= 0 || args.InDim <= 0 || args.InCount <= 0 || args.OutCount <= 0 {
		return invalid("circuit bootstrap of %d bits into %d outputs", args.InCount, args.OutCount)
	}
	if len(args.Keys) != args.K+1 {
		return invalid("%d packing keys for glwe dimension %d", len(args.Keys), args.K)
	}
	big := args.K * args.N
	bskSize := args.InDim * core.GGSWSize(args.K, args.N, args.PBSLevel)
	keySize := core.PFPKSKSize(big, args.K, args.N, args.PFPKSLevel)
	lutSize := args.OutCount << args.InCount
	keyPtrs := append([]driver.Ptr(nil), args.Keys...)

	return k.launch(s, func() error {
		outs, err := k.slots(args.Out, big+1, args.OutCount)
		if err != nil {
			return err
		}
		ins, err := k.slots(args.In, args.InDim+1, args.InCount)
		if err != nil {
			return err
		}
		bsk, err := k.d.words(args.BSK, bskSize)
		if err != nil {
			return err
		}
		luts, err := k.d.words(args.LUTs, lutSize)
		if err != nil {
			return err
		}
		keys := make([][]uint64, len(keyPtrs))
		for c, p := range keyPtrs {
			if keys[c], err = k.d.words(p, keySize); err != nil {
				return fmt.Errorf("packing key %d: %w", c, err)
			}
		}
		core.NewCircuitBootstrap(r, args.K, pbs, cbs, pfpks, keys).Run(outs, ins, luts, bsk)
		return nil
	})
}
