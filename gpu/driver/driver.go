// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package driver is the boundary between the accelerator backend and a
// vendor device API. Memory is addressed with opaque device pointers and
// every command is issued on a stream: commands of one stream run in issue
// order, commands of different streams have no mutual ordering.
//
// Launches and copies to the device are asynchronous. Errors detected at
// issue time are returned directly; errors raised while a command runs are
// sticky on the stream and reported by the next Synchronize or CopyToHost.
package driver

import "errors"

var (
	ErrInvalidDevice  = errors.New("invalid device")
	ErrInvalidPointer = errors.New("invalid device pointer")
	ErrInvalidLaunch  = errors.New("invalid kernel launch")
	ErrOutOfMemory    = errors.New("device out of memory")
	ErrStreamClosed   = errors.New("stream closed")
	ErrFault          = errors.New("device fault")
)

// Ptr is a device address. The zero Ptr is null.
type Ptr uint64

// Add returns p advanced by bytes.
func (p Ptr) Add(bytes int) Ptr { return p + Ptr(bytes) }

// Stream is an ordered command queue bound to one device.
type Stream interface {
	Device() int
}

// Driver exposes devices, memory and streams.
type Driver interface {
	// DeviceCount returns the number of usable devices.
	DeviceCount() (int, error)
	// NewStream creates a command queue on device.
	NewStream(device int) (Stream, error)
	// DestroyStream drains s and releases it.
	DestroyStream(s Stream) error

	// Malloc reserves bytes of zeroed memory on the device of s. The memory
	// is usable on every stream of that device once Malloc returns.
	Malloc(s Stream, bytes int) (Ptr, error)
	// Free releases p once the commands issued before it on s are done.
	Free(s Stream, p Ptr) error
	// CopyToDevice copies src into dst. src may be reused on return.
	CopyToDevice(s Stream, dst Ptr, src []byte) error
	// CopyToHost waits for the commands issued before it on s, then copies
	// len(dst) bytes from src.
	CopyToHost(s Stream, dst []byte, src Ptr) error
	// CopyDeviceToDevice copies bytes from src to dst; the pointers may
	// belong to different devices.
	CopyDeviceToDevice(s Stream, dst, src Ptr, bytes int) error
	// Synchronize waits for every command issued on s.
	Synchronize(s Stream) error

	// FreeMemory returns the unreserved memory of device in bytes.
	FreeMemory(device int) (int64, error)
	// MaxSharedMemory returns the shared memory per block of device.
	MaxSharedMemory(device int) (int, error)

	// Kernels returns the kernel launch entry points.
	Kernels() Kernels
}
