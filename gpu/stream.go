// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/tfhe"
	"github.com/luxfi/tfhe/gpu/driver"
)

// Stream is an ordered command queue on one device. Commands that only read
// device buffers share the stream; commands writing a buffer take it
// exclusively.
type Stream struct {
	mu     sync.RWMutex
	drv    driver.Driver
	s      driver.Stream
	device int
	closed bool
}

func newStream(drv driver.Driver, device int) (*Stream, error) {
	s, err := drv.NewStream(device)
	if err != nil {
		return nil, deviceError(err)
	}
	return &Stream{drv: drv, s: s, device: device}, nil
}

// Device returns the index of the device the stream runs on.
func (s *Stream) Device() int { return s.device }

// read issues a command that does not write device memory.
func (s *Stream) read(f func(driver.Stream) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return deviceError(driver.ErrStreamClosed)
	}
	return deviceError(f(s.s))
}

// write issues a command that writes device memory.
func (s *Stream) write(f func(driver.Stream) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return deviceError(driver.ErrStreamClosed)
	}
	return deviceError(f(s.s))
}

// Synchronize blocks until every command issued on s has run.
func (s *Stream) Synchronize() error {
	return s.read(s.drv.Synchronize)
}

func (s *Stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return deviceError(s.drv.DestroyStream(s.s))
}

// deviceError maps driver errors to the resource errors of package tfhe.
func deviceError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, driver.ErrOutOfMemory):
		return fmt.Errorf("%w: %w", tfhe.ErrOutOfDeviceMemory, err)
	case errors.Is(err, driver.ErrInvalidDevice):
		return fmt.Errorf("%w: %w", tfhe.ErrDeviceNotFound, err)
	case errors.Is(err, tfhe.ErrDeviceFault), errors.Is(err, tfhe.ErrOutOfDeviceMemory), errors.Is(err, tfhe.ErrDeviceNotFound):
		return err
	}
	return fmt.Errorf("%w: %w", tfhe.ErrDeviceFault, err)
}
