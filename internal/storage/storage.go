// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package storage provides fixed-capacity word-addressed memory regions,
// the backing store of emulated device memory.
package storage

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Common errors.
var (
	ErrNotFound      = errors.New("address not allocated")
	ErrStorageFull   = errors.New("storage capacity exceeded")
	ErrInvalidHandle = errors.New("invalid address range")
)

// Alignment of every allocation, in bytes.
const Alignment = 256

// Handle is a byte address inside a region. Allocations start at aligned
// handles; interior handles address words inside an allocation.
type Handle uint64

// Storage defines the interface for memory regions.
type Storage interface {
	// Alloc reserves bytes of zeroed memory.
	Alloc(bytes int) (Handle, error)
	// Free releases the allocation starting at h.
	Free(h Handle) error
	// Words returns the n words starting at h, which may be interior.
	Words(h Handle, n int) ([]uint64, error)
	// Used returns the reserved bytes.
	Used() int64
	// Capacity returns the size of the region in bytes.
	Capacity() int64
	// Close releases every allocation.
	Close() error
}

type block struct {
	start Handle
	bytes int64
	words []uint64
}

func (b *block) end() Handle { return b.start + Handle(len(b.words)*8) }

// MemoryStorage implements Storage in host memory. Handles are never
// reused, so blocks stay sorted by address.
type MemoryStorage struct {
	mu       sync.RWMutex
	next     Handle
	blocks   []*block
	capacity int64
	size     int64
}

// NewMemoryStorage creates a region of capacity bytes whose first handle is
// base.
func NewMemoryStorage(base Handle, capacity int64) *MemoryStorage {
	return &MemoryStorage{next: align(base), capacity: capacity}
}

func align(h Handle) Handle {
	return (h + Alignment - 1) &^ (Alignment - 1)
}

func (s *MemoryStorage) Alloc(bytes int) (Handle, error) {
	if bytes <= 0 {
		return 0, fmt.Errorf("%w: %d bytes", ErrInvalidHandle, bytes)
	}
	reserved := int64(align(Handle(bytes)))

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.size+reserved > s.capacity {
		return 0, fmt.Errorf("%w: %d bytes requested, %d free", ErrStorageFull, reserved, s.capacity-s.size)
	}
	b := &block{start: s.next, bytes: reserved, words: make([]uint64, (bytes+7)/8)}
	s.blocks = append(s.blocks, b)
	s.next = align(b.start + Handle(reserved))
	s.size += reserved
	return b.start, nil
}

// find returns the index of the block containing h, or -1.
func (s *MemoryStorage) find(h Handle) int {
	i, found := slices.BinarySearchFunc(s.blocks, h, func(b *block, h Handle) int {
		switch {
		case b.end() <= h:
			return -1
		case b.start > h:
			return 1
		}
		return 0
	})
	if !found {
		return -1
	}
	return i
}

func (s *MemoryStorage) Free(h Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.find(h)
	if i < 0 || s.blocks[i].start != h {
		return fmt.Errorf("%w: %#x", ErrNotFound, uint64(h))
	}
	s.size -= s.blocks[i].bytes
	s.blocks = slices.Delete(s.blocks, i, i+1)
	return nil
}

func (s *MemoryStorage) Words(h Handle, n int) ([]uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.find(h)
	if i < 0 {
		return nil, fmt.Errorf("%w: %#x", ErrNotFound, uint64(h))
	}
	b := s.blocks[i]
	off := h - b.start
	if off%8 != 0 || n < 0 || int(off/8)+n > len(b.words) {
		return nil, fmt.Errorf("%w: %d words at %#x", ErrInvalidHandle, n, uint64(h))
	}
	return b.words[off/8 : int(off/8)+n], nil
}

func (s *MemoryStorage) Used() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemoryStorage) Capacity() int64 { return s.capacity }

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.blocks = nil
	s.size = 0
	return nil
}
