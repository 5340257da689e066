// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/exp/constraints"

	"github.com/luxfi/tfhe/gpu/driver"
)

// Vec is a buffer of device memory owned by the value holding it. It is
// allocated on a stream, filled by copies and freed once, on the same
// stream. A view borrows a sub-range of a Vec and owns nothing.
type Vec[T constraints.Unsigned] struct {
	ptr    driver.Ptr
	len    int
	stream *Stream
	stats  *counters

	view bool
	once sync.Once
}

func sizeOf[T constraints.Unsigned]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func bytesOf[T constraints.Unsigned](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*sizeOf[T]())
}

// newVec allocates n zeroed elements on s.
func newVec[T constraints.Unsigned](s *Stream, stats *counters, n int) (*Vec[T], error) {
	if n <= 0 {
		return nil, fmt.Errorf("allocating %d elements", n)
	}
	var ptr driver.Ptr
	err := s.write(func(ds driver.Stream) error {
		var err error
		ptr, err = s.drv.Malloc(ds, n*sizeOf[T]())
		return err
	})
	if err != nil {
		return nil, err
	}
	stats.allocations.Add(1)
	return &Vec[T]{ptr: ptr, len: n, stream: s, stats: stats}, nil
}

// upload allocates a Vec on s holding a copy of src.
func upload[T constraints.Unsigned](s *Stream, stats *counters, src []T) (*Vec[T], error) {
	v, err := newVec[T](s, stats, len(src))
	if err != nil {
		return nil, err
	}
	if err := v.CopyFrom(src); err != nil {
		v.Free()
		return nil, err
	}
	return v, nil
}

// Len returns the number of elements.
func (v *Vec[T]) Len() int { return v.len }

// Device returns the device holding the buffer.
func (v *Vec[T]) Device() int { return v.stream.device }

// View borrows the elements from offset on. The view must not outlive v.
func (v *Vec[T]) View(offset int) *Vec[T] {
	if offset < 0 || offset > v.len {
		panic(fmt.Sprintf("gpu: view at %d of a buffer of %d elements", offset, v.len))
	}
	return &Vec[T]{
		ptr:    v.ptr.Add(offset * sizeOf[T]()),
		len:    v.len - offset,
		stream: v.stream,
		stats:  v.stats,
		view:   true,
	}
}

// CopyFrom queues a copy of src to the start of v; src may be reused on
// return.
func (v *Vec[T]) CopyFrom(src []T) error {
	return v.copyFrom(v.stream, src)
}

func (v *Vec[T]) copyFrom(s *Stream, src []T) error {
	if len(src) > v.len {
		return fmt.Errorf("copying %d elements into %d", len(src), v.len)
	}
	b := bytesOf(src)
	err := s.write(func(ds driver.Stream) error { return s.drv.CopyToDevice(ds, v.ptr, b) })
	if err == nil {
		v.stats.bytesToDevice.Add(uint64(len(b)))
	}
	return err
}

// CopyTo waits for the commands issued before it on the stream of v, then
// copies len(dst) elements into dst.
func (v *Vec[T]) CopyTo(dst []T) error {
	return v.copyTo(v.stream, dst)
}

func (v *Vec[T]) copyTo(s *Stream, dst []T) error {
	if len(dst) > v.len {
		return fmt.Errorf("copying %d elements out of %d", len(dst), v.len)
	}
	b := bytesOf(dst)
	err := s.read(func(ds driver.Stream) error { return s.drv.CopyToHost(ds, b, v.ptr) })
	if err == nil {
		v.stats.bytesToHost.Add(uint64(len(b)))
	}
	return err
}

// CopyFromVec queues, on the stream of v, a copy of the first n elements of
// src, which may live on another device.
func (v *Vec[T]) CopyFromVec(src *Vec[T], n int) error {
	if n > v.len || n > src.len {
		return fmt.Errorf("copying %d elements from %d into %d", n, src.len, v.len)
	}
	s := v.stream
	return s.write(func(ds driver.Stream) error {
		return s.drv.CopyDeviceToDevice(ds, v.ptr, src.ptr, n*sizeOf[T]())
	})
}

// Free releases the buffer on its stream. It is safe to call more than once
// and does nothing on views.
func (v *Vec[T]) Free() error {
	if v == nil || v.view {
		return nil
	}
	var err error
	v.once.Do(func() {
		s := v.stream
		err = s.write(func(ds driver.Stream) error { return s.drv.Free(ds, v.ptr) })
		v.stats.frees.Add(1)
	})
	return err
}
