// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package emulator

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/luxfi/tfhe/gpu/driver"
)

// future is completed once by the executor when a command has run.
type future struct {
	done chan struct{}
	err  error
}

func newFuture() *future { return &future{done: make(chan struct{})} }

func (f *future) wait() error {
	<-f.done
	return f.err
}

func (f *future) complete(err error) {
	f.err = err
	close(f.done)
}

type command struct {
	run  func() error
	done *future
}

// stream is an in-order command queue executed by one goroutine, which
// stands for the device.
type stream struct {
	device int
	queue  chan command

	// mu orders issues against close.
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	errMu sync.Mutex
	err   error
}

func (s *stream) Device() int { return s.device }

func newStream(device, depth int) *stream {
	s := &stream{device: device, queue: make(chan command, depth)}
	s.wg.Add(1)
	go s.worker()
	return s
}

func (s *stream) worker() {
	defer s.wg.Done()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for cmd := range s.queue {
		if s.failed() == nil && cmd.run != nil {
			if err := cmd.run(); err != nil {
				s.fail(err)
			}
		}
		if cmd.done != nil {
			cmd.done.complete(s.failed())
		}
	}
}

// failed returns the sticky error of the stream.
func (s *stream) failed() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *stream) fail(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = fmt.Errorf("%w: stream on device %d: %w", driver.ErrFault, s.device, err)
	}
}

// issue queues run. With wait set it blocks until run has executed and
// returns the stream error.
func (s *stream) issue(run func() error, wait bool) error {
	var f *future
	if wait {
		f = newFuture()
	}

	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return driver.ErrStreamClosed
	}
	s.queue <- command{run: run, done: f}
	s.mu.RUnlock()

	if f == nil {
		return nil
	}
	return f.wait()
}

// close drains the queue and stops the executor.
func (s *stream) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return driver.ErrStreamClosed
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.wg.Wait()
	return s.failed()
}
