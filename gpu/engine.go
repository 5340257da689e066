// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu is the accelerator backend: the operation interfaces of
// package tfhe evaluated on one or more devices behind a driver.Driver.
//
// Keys, GLWE ciphertexts, plaintexts and cleartexts are replicated to every
// device. LWE ciphertext vectors are sharded: a batch of C ciphertexts is
// split over min(devices, C) devices by Partition, and every operation runs
// each shard on the stream of its device.
//
// Operations are asynchronous. Engine.Synchronize, and every conversion back
// to the host, wait for the queued work and report device faults.
package gpu

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/luxfi/log"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/cpu"
	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/seal"
)

// Engine implements the operation interfaces on devices. Batches are split
// for the lowest latency: every ciphertext selects its accumulator through
// an index buffer sent with its chunk.
type Engine struct {
	drv      driver.Driver
	kernels  driver.Kernels
	logger   log.Logger
	backend  tfhe.Backend
	headroom int64

	devices      int
	streams      [][]*Stream
	next         []atomic.Uint32
	sharedMemory int

	stats counters

	errMu  sync.Mutex
	err    error
	closed atomic.Bool
}

// AmortizedEngine splits batches for throughput: the index buffer of a
// bootstrap is uploaded whole to every device once, and every launch
// borrows it at its chunk offset.
type AmortizedEngine struct {
	*Engine
}

type counters struct {
	launches      atomic.Uint64
	allocations   atomic.Uint64
	frees         atomic.Uint64
	bytesToDevice atomic.Uint64
	bytesToHost   atomic.Uint64
}

// Stats reports the work an engine issued.
type Stats struct {
	Devices       int
	Launches      uint64
	Allocations   uint64
	Frees         uint64
	BytesToDevice uint64
	BytesToHost   uint64
}

// New returns a low-latency engine over every device of cfg.Driver.
func New(cfg Config) (*Engine, error) {
	return newEngine(cfg, tfhe.BackendCUDA)
}

// NewAmortized returns an amortized engine over every device of cfg.Driver.
func NewAmortized(cfg Config) (*AmortizedEngine, error) {
	e, err := newEngine(cfg, tfhe.BackendCUDAAmortized)
	if err != nil {
		return nil, err
	}
	return &AmortizedEngine{Engine: e}, nil
}

func newEngine(cfg Config, backend tfhe.Backend) (*Engine, error) {
	if cfg.Driver == nil {
		cfg.Driver = DefaultConfig().Driver
	}
	if cfg.StreamsPerDevice <= 0 {
		cfg.StreamsPerDevice = 1
	}

	n, err := cfg.Driver.DeviceCount()
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpNewEngine, deviceError(err))
	}
	if n == 0 {
		return nil, tfhe.OpError(tfhe.OpNewEngine, tfhe.ErrDeviceNotFound)
	}
	shared, err := cfg.Driver.MaxSharedMemory(0)
	if err != nil {
		return nil, tfhe.OpError(tfhe.OpNewEngine, deviceError(err))
	}

	e := &Engine{
		drv:          cfg.Driver,
		kernels:      cfg.Driver.Kernels(),
		logger:       cfg.Logger,
		backend:      backend,
		headroom:     cfg.MemoryHeadroom,
		devices:      n,
		streams:      make([][]*Stream, n),
		next:         make([]atomic.Uint32, n),
		sharedMemory: shared,
	}
	for d := 0; d < n; d++ {
		for i := 0; i < cfg.StreamsPerDevice; i++ {
			s, err := newStream(cfg.Driver, d)
			if err != nil {
				_ = e.Shutdown()
				return nil, tfhe.OpError(tfhe.OpNewEngine, fmt.Errorf("device %d: %w", d, err))
			}
			e.streams[d] = append(e.streams[d], s)
		}
	}

	e.info("gpu engine ready",
		"backend", backend.String(),
		"devices", n,
		"streams", cfg.StreamsPerDevice,
		"sharedMemory", shared)
	return e, nil
}

func (e *Engine) Backend() tfhe.Backend { return e.backend }

func (e *Engine) Sealed(seal.Token) {}

// Devices returns the number of devices.
func (e *Engine) Devices() int { return e.devices }

// MaxSharedMemory returns the shared memory per block of device 0, queried
// once at construction.
func (e *Engine) MaxSharedMemory() int { return e.sharedMemory }

// Stats returns the work issued so far.
func (e *Engine) Stats() Stats {
	return Stats{
		Devices:       e.devices,
		Launches:      e.stats.launches.Load(),
		Allocations:   e.stats.allocations.Load(),
		Frees:         e.stats.frees.Load(),
		BytesToDevice: e.stats.bytesToDevice.Load(),
		BytesToHost:   e.stats.bytesToHost.Load(),
	}
}

func (e *Engine) amortized() bool { return e.backend == tfhe.BackendCUDAAmortized }

// stream returns the stream operations on device d run on.
func (e *Engine) stream(d int) *Stream { return e.streams[d][0] }

// uploadStream rotates over the streams of device d.
func (e *Engine) uploadStream(d int) *Stream {
	i := e.next[d].Add(1)
	return e.streams[d][int(i)%len(e.streams[d])]
}

// launch issues a kernel on the operation stream of device d.
func (e *Engine) launch(d int, f func(k driver.Kernels, s driver.Stream) error) error {
	return e.launchOn(e.stream(d), f)
}

func (e *Engine) launchOn(s *Stream, f func(k driver.Kernels, s driver.Stream) error) error {
	err := s.write(func(ds driver.Stream) error { return f(e.kernels, ds) })
	if err != nil {
		return fmt.Errorf("device %d: %w", s.device, err)
	}
	e.stats.launches.Add(1)
	return nil
}

// checkMemory fails when device d cannot hold bytes more.
func (e *Engine) checkMemory(d int, bytes int64) error {
	free, err := e.drv.FreeMemory(d)
	if err != nil {
		return deviceError(err)
	}
	if free-e.headroom < bytes {
		return fmt.Errorf("%w: device %d has %d bytes free, %d needed", tfhe.ErrOutOfDeviceMemory, d, free-e.headroom, bytes)
	}
	return nil
}

// checkReplicated checks room for words on every device.
func (e *Engine) checkReplicated(words int) error {
	for d := 0; d < e.devices; d++ {
		if err := e.checkMemory(d, int64(words)*8); err != nil {
			return err
		}
	}
	return nil
}

// checkSharded checks room for count ciphertexts of size words split over
// the devices.
func (e *Engine) checkSharded(size, count int) error {
	for _, c := range Partition(e.devices, count) {
		if err := e.checkMemory(c.Device, int64(size*c.Size)*8); err != nil {
			return err
		}
	}
	return nil
}

// Synchronize waits for the work queued on every device. It returns the
// first device fault, or the first error of an unchecked operation since
// the previous call.
func (e *Engine) Synchronize() error {
	var first error
	for d, streams := range e.streams {
		for _, s := range streams {
			if err := s.Synchronize(); err != nil && first == nil {
				first = fmt.Errorf("device %d: %w", d, err)
			}
		}
	}
	if first != nil {
		e.logError("device fault", "err", first)
		return first
	}
	e.errMu.Lock()
	defer e.errMu.Unlock()
	err := e.err
	e.err = nil
	return err
}

// syncDevices waits for the operation streams of the given devices.
func (e *Engine) syncDevices(devices ...int) error {
	for _, d := range devices {
		if err := e.stream(d).Synchronize(); err != nil {
			e.logError("device fault", "device", d, "err", err)
			return fmt.Errorf("device %d: %w", d, err)
		}
	}
	return nil
}

// record keeps the error of an unchecked operation for Synchronize.
func (e *Engine) record(op tfhe.Operation, err error) {
	if err == nil {
		return
	}
	err = tfhe.OpError(op, err)
	e.logError("unchecked operation failed", "op", string(op), "err", err)

	e.errMu.Lock()
	defer e.errMu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

// Destroy frees the device memory of an entity created by this engine.
func (e *Engine) Destroy(entity tfhe.Entity) error {
	r, ok := entity.(resource)
	if !ok || r.owner() != e {
		return tfhe.OpError(tfhe.OpDestroy, fmt.Errorf("%w: %T", tfhe.ErrUnsupportedEntity, entity))
	}
	return tfhe.OpError(tfhe.OpDestroy, r.release())
}

// owns checks that every entity was created by this engine.
func (e *Engine) owns(op tfhe.Operation, entities ...resource) error {
	for _, r := range entities {
		if r.owner() != e {
			return tfhe.OpError(op, fmt.Errorf("%w: %T from another engine", tfhe.ErrUnsupportedEntity, r))
		}
	}
	return nil
}

// Shutdown drains and closes every stream. Entities must not be used
// afterwards.
func (e *Engine) Shutdown() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	var first error
	for _, streams := range e.streams {
		for _, s := range streams {
			if err := s.close(); err != nil && first == nil {
				first = err
			}
		}
	}
	e.info("gpu engine shut down", "launches", e.stats.launches.Load())
	return first
}

func (e *Engine) info(msg string, ctx ...interface{}) {
	if e.logger != nil {
		e.logger.Info(msg, ctx...)
	}
}

func (e *Engine) logError(msg string, ctx ...interface{}) {
	if e.logger != nil {
		e.logger.Error(msg, ctx...)
	}
}

var (
	_ tfhe.LWECiphertextVectorDiscardingAdditionEngine[*LWECiphertextVector, *LWECiphertextVector]                    = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorAdditionEngine[*LWECiphertextVector, *LWECiphertextVector]                              = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingOppositeEngine[*LWECiphertextVector, *LWECiphertextVector]                    = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorPlaintextVectorDiscardingAdditionEngine[*LWECiphertextVector, *PlaintextVector]         = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorCleartextVectorDiscardingMultiplicationEngine[*LWECiphertextVector, *CleartextVector]   = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingKeyswitchEngine[*LWEKeyswitchKey, *LWECiphertextVector, *LWECiphertextVector] = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorDiscardingBootstrapEngine[*FourierLWEBootstrapKey, *GLWECiphertextVector, *LWECiphertextVector, *LWECiphertextVector] = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorBooleanGateEngine[*FourierLWEBootstrapKey, *LWEKeyswitchKey, *LWECiphertextVector] = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingNotEngine[*LWECiphertextVector]                                          = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorDiscardingCircuitBootstrapBooleanVerticalPackingEngine[*FourierLWEBootstrapKey, *PlaintextVector, *CircuitBootstrapKeys, *LWECiphertextVector, *LWECiphertextVector] = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorGLWECiphertextDiscardingPackingKeyswitchEngine[*LWEPackingKeyswitchKey, *LWECiphertextVector, *GLWECiphertext] = (*Engine)(nil)

	_ tfhe.LWECiphertextDiscardingLoadEngine[*LWECiphertextVector, *LWECiphertext]  = (*Engine)(nil)
	_ tfhe.LWECiphertextDiscardingStoreEngine[*LWECiphertextVector, *LWECiphertext] = (*Engine)(nil)

	_ tfhe.LWEBootstrapKeyConversionEngine[*cpu.LWEBootstrapKey, *FourierLWEBootstrapKey]               = (*Engine)(nil)
	_ tfhe.LWEBootstrapKeyToStandardConversionEngine[*FourierLWEBootstrapKey, *cpu.LWEBootstrapKey]     = (*Engine)(nil)
	_ tfhe.LWEKeyswitchKeyConversionEngine[*cpu.LWEKeyswitchKey, *LWEKeyswitchKey]                      = (*Engine)(nil)
	_ tfhe.LWEKeyswitchKeyToHostConversionEngine[*LWEKeyswitchKey, *cpu.LWEKeyswitchKey]                = (*Engine)(nil)
	_ tfhe.CircuitBootstrapKeysConversionEngine[*cpu.CircuitBootstrapKeys, *CircuitBootstrapKeys]       = (*Engine)(nil)
	_ tfhe.CircuitBootstrapKeysToHostConversionEngine[*CircuitBootstrapKeys, *cpu.CircuitBootstrapKeys] = (*Engine)(nil)
	_ tfhe.LWEPackingKeyswitchKeyConversionEngine[*cpu.LWEPackingKeyswitchKey, *LWEPackingKeyswitchKey] = (*Engine)(nil)

	_ tfhe.LWECiphertextConversionEngine[*cpu.LWECiphertext, *LWECiphertext]                            = (*Engine)(nil)
	_ tfhe.LWECiphertextToHostConversionEngine[*LWECiphertext, *cpu.LWECiphertext]                      = (*Engine)(nil)
	_ tfhe.GLWECiphertextConversionEngine[*cpu.GLWECiphertext, *GLWECiphertext]                         = (*Engine)(nil)
	_ tfhe.GLWECiphertextToHostConversionEngine[*GLWECiphertext, *cpu.GLWECiphertext]                   = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorConversionEngine[*cpu.LWECiphertextVector, *LWECiphertextVector]          = (*Engine)(nil)
	_ tfhe.LWECiphertextVectorToHostConversionEngine[*LWECiphertextVector, *cpu.LWECiphertextVector]    = (*Engine)(nil)
	_ tfhe.GLWECiphertextVectorConversionEngine[*cpu.GLWECiphertextVector, *GLWECiphertextVector]       = (*Engine)(nil)
	_ tfhe.GLWECiphertextVectorToHostConversionEngine[*GLWECiphertextVector, *cpu.GLWECiphertextVector] = (*Engine)(nil)
	_ tfhe.PlaintextVectorConversionEngine[*tfhe.PlaintextVector, *PlaintextVector]                     = (*Engine)(nil)
	_ tfhe.PlaintextVectorToHostConversionEngine[*PlaintextVector, *tfhe.PlaintextVector]               = (*Engine)(nil)
	_ tfhe.CleartextVectorConversionEngine[*tfhe.CleartextVector, *CleartextVector]                     = (*Engine)(nil)
	_ tfhe.CleartextVectorToHostConversionEngine[*CleartextVector, *tfhe.CleartextVector]               = (*Engine)(nil)

	_ tfhe.LWECiphertextVectorBooleanGateEngine[*FourierLWEBootstrapKey, *LWEKeyswitchKey, *LWECiphertextVector]                                    = (*AmortizedEngine)(nil)
	_ tfhe.LWECiphertextVectorDiscardingBootstrapEngine[*FourierLWEBootstrapKey, *GLWECiphertextVector, *LWECiphertextVector, *LWECiphertextVector] = (*AmortizedEngine)(nil)
)
