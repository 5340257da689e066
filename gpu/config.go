// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"github.com/luxfi/log"

	"github.com/luxfi/tfhe/gpu/driver"
	"github.com/luxfi/tfhe/gpu/driver/emulator"
)

// Config configures an accelerator engine.
type Config struct {
	// Driver is the device API. Every device it reports is used.
	Driver driver.Driver

	// StreamsPerDevice is the number of streams opened on each device
	// (default: 1). Operations run on the first one; key and ciphertext
	// uploads rotate over all of them.
	StreamsPerDevice int

	// MemoryHeadroom is kept free on every device when checking
	// allocations, in bytes.
	MemoryHeadroom int64

	// Logger receives engine events. Nil disables logging.
	Logger log.Logger
}

// DefaultConfig returns a configuration on one emulated device.
func DefaultConfig() Config {
	return Config{
		Driver:           emulator.New(emulator.DefaultConfig()),
		StreamsPerDevice: 1,
	}
}
