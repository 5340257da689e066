// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package emulator is an in-process implementation of driver.Driver.
// Each device owns a memory region and each stream runs its commands on a
// dedicated goroutine; kernels evaluate with the host arithmetic. It lets
// the accelerator backend run, and be tested, without vendor hardware.
package emulator

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/internal/storage"
)

// Config describes the emulated devices.
type Config struct {
	Devices         int   // number of devices (default: 1)
	MemoryPerDevice int64 // bytes of memory per device (default: 1 GiB)
	MaxSharedMemory int   // shared memory per block (default: 48 KiB)
	QueueDepth      int   // commands buffered per stream (default: 1024)
}

// DefaultConfig returns a single device of 1 GiB.
func DefaultConfig() Config {
	return Config{
		Devices:         1,
		MemoryPerDevice: 1 << 30,
		MaxSharedMemory: 48 << 10,
		QueueDepth:      1024,
	}
}

// Stats counts the work seen by one device.
type Stats struct {
	Launches      uint64
	Allocations   uint64
	Frees         uint64
	BytesToDevice uint64
	BytesToHost   uint64
	BytesPeer     uint64
	MemoryUsed    int64
}

type device struct {
	index  int
	mem    *storage.MemoryStorage
	faulty atomic.Bool

	launches      atomic.Uint64
	allocations   atomic.Uint64
	frees         atomic.Uint64
	bytesToDevice atomic.Uint64
	bytesToHost   atomic.Uint64
	bytesPeer     atomic.Uint64
}

// Driver emulates cfg.Devices devices. Device d addresses its memory from
// (d+1) << addressShift, so a pointer identifies its device.
type Driver struct {
	cfg     Config
	devices []*device
}

const addressShift = 40

var _ driver.Driver = (*Driver)(nil)

// New returns a driver for the devices of cfg. Zero devices is valid and
// reported by DeviceCount.
func New(cfg Config) *Driver {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultConfig().QueueDepth
	}
	d := &Driver{cfg: cfg, devices: make([]*device, cfg.Devices)}
	for i := range d.devices {
		base := storage.Handle(uint64(i+1) << addressShift)
		d.devices[i] = &device{index: i, mem: storage.NewMemoryStorage(base, cfg.MemoryPerDevice)}
	}
	return d
}

func (d *Driver) device(i int) (*device, error) {
	if i < 0 || i >= len(d.devices) {
		return nil, fmt.Errorf("%w: %d of %d", driver.ErrInvalidDevice, i, len(d.devices))
	}
	return d.devices[i], nil
}

func (d *Driver) owner(p driver.Ptr) (*device, error) {
	dev, err := d.device(int(p>>addressShift) - 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %#x", driver.ErrInvalidPointer, uint64(p))
	}
	return dev, nil
}

// words resolves n words at p.
func (d *Driver) words(p driver.Ptr, n int) ([]uint64, error) {
	dev, err := d.owner(p)
	if err != nil {
		return nil, err
	}
	w, err := dev.mem.Words(storage.Handle(p), n)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", driver.ErrInvalidPointer, err)
	}
	return w, nil
}

func (d *Driver) stream(s driver.Stream) (*stream, *device, error) {
	st, ok := s.(*stream)
	if !ok || st == nil {
		return nil, nil, fmt.Errorf("%w: foreign stream %T", driver.ErrInvalidLaunch, s)
	}
	return st, d.devices[st.device], nil
}

// issue queues run on s, failing it when the device has a fault injected.
func (d *Driver) issue(s driver.Stream, wait bool, run func() error) error {
	st, dev, err := d.stream(s)
	if err != nil {
		return err
	}
	return st.issue(func() error {
		if dev.faulty.Load() {
			return fmt.Errorf("injected fault on device %d", dev.index)
		}
		return run()
	}, wait)
}

func (d *Driver) DeviceCount() (int, error) { return len(d.devices), nil }

func (d *Driver) NewStream(i int) (driver.Stream, error) {
	if _, err := d.device(i); err != nil {
		return nil, err
	}
	return newStream(i, d.cfg.QueueDepth), nil
}

func (d *Driver) DestroyStream(s driver.Stream) error {
	st, _, err := d.stream(s)
	if err != nil {
		return err
	}
	return st.close()
}

func (d *Driver) Malloc(s driver.Stream, bytes int) (driver.Ptr, error) {
	_, dev, err := d.stream(s)
	if err != nil {
		return 0, err
	}
	h, err := dev.mem.Alloc(bytes)
	switch {
	case errors.Is(err, storage.ErrStorageFull):
		return 0, fmt.Errorf("%w: %w", driver.ErrOutOfMemory, err)
	case err != nil:
		return 0, fmt.Errorf("%w: %w", driver.ErrInvalidLaunch, err)
	}
	dev.allocations.Add(1)
	return driver.Ptr(h), nil
}

func (d *Driver) Free(s driver.Stream, p driver.Ptr) error {
	dev, err := d.owner(p)
	if err != nil {
		return err
	}
	return d.issue(s, false, func() error {
		if err := dev.mem.Free(storage.Handle(p)); err != nil {
			return err
		}
		dev.frees.Add(1)
		return nil
	})
}

func (d *Driver) CopyToDevice(s driver.Stream, dst driver.Ptr, src []byte) error {
	if len(src)%8 != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of words", driver.ErrInvalidLaunch, len(src))
	}
	snapshot := append([]byte(nil), src...)
	return d.issue(s, false, func() error {
		w, err := d.words(dst, len(snapshot)/8)
		if err != nil {
			return err
		}
		copy(asBytes(w), snapshot)
		d.devices[int(dst>>addressShift)-1].bytesToDevice.Add(uint64(len(snapshot)))
		return nil
	})
}

func (d *Driver) CopyToHost(s driver.Stream, dst []byte, src driver.Ptr) error {
	if len(dst)%8 != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of words", driver.ErrInvalidLaunch, len(dst))
	}
	return d.issue(s, true, func() error {
		w, err := d.words(src, len(dst)/8)
		if err != nil {
			return err
		}
		copy(dst, asBytes(w))
		d.devices[int(src>>addressShift)-1].bytesToHost.Add(uint64(len(dst)))
		return nil
	})
}

func (d *Driver) CopyDeviceToDevice(s driver.Stream, dst, src driver.Ptr, bytes int) error {
	if bytes%8 != 0 {
		return fmt.Errorf("%w: %d bytes is not a whole number of words", driver.ErrInvalidLaunch, bytes)
	}
	return d.issue(s, false, func() error {
		to, err := d.words(dst, bytes/8)
		if err != nil {
			return err
		}
		from, err := d.words(src, bytes/8)
		if err != nil {
			return err
		}
		copy(to, from)
		d.devices[int(dst>>addressShift)-1].bytesPeer.Add(uint64(bytes))
		return nil
	})
}

func (d *Driver) Synchronize(s driver.Stream) error {
	st, _, err := d.stream(s)
	if err != nil {
		return err
	}
	return st.issue(nil, true)
}

func (d *Driver) FreeMemory(i int) (int64, error) {
	dev, err := d.device(i)
	if err != nil {
		return 0, err
	}
	return dev.mem.Capacity() - dev.mem.Used(), nil
}

func (d *Driver) MaxSharedMemory(i int) (int, error) {
	if _, err := d.device(i); err != nil {
		return 0, err
	}
	return d.cfg.MaxSharedMemory, nil
}

func (d *Driver) Kernels() driver.Kernels { return kernels{d} }

// InjectFault makes every later command on device fail, as a lost device
// would.
func (d *Driver) InjectFault(i int) error {
	dev, err := d.device(i)
	if err != nil {
		return err
	}
	dev.faulty.Store(true)
	return nil
}

// Stats returns the counters of device i.
func (d *Driver) Stats(i int) (Stats, error) {
	dev, err := d.device(i)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Launches:      dev.launches.Load(),
		Allocations:   dev.allocations.Load(),
		Frees:         dev.frees.Load(),
		BytesToDevice: dev.bytesToDevice.Load(),
		BytesToHost:   dev.bytesToHost.Load(),
		BytesPeer:     dev.bytesPeer.Load(),
		MemoryUsed:    dev.mem.Used(),
	}, nil
}

func asBytes(w []uint64) []byte {
	if len(w) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(w))), len(w)*8)
}
