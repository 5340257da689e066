// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package gpu

// Chunk is the slice of a ciphertext batch assigned to one device.
type Chunk struct {
	Device int
	Offset int
	Size   int
}

// ActiveDevices is the number of devices that receive work for a batch of
// count ciphertexts: every active device gets at least one.
func ActiveDevices(devices, count int) int {
	return max(0, min(devices, count))
}

// ChunkSize is the number of ciphertexts of device idx. Every active device
// gets count/A of them and the last one also takes the remainder.
func ChunkSize(devices, count, idx int) int {
	a := ActiveDevices(devices, count)
	if idx < 0 || idx >= a {
		return 0
	}
	size := count / a
	if idx == a-1 {
		size += count % a
	}
	return size
}

// ChunkOffset is the position in the batch of the first ciphertext of
// device idx.
func ChunkOffset(devices, count, idx int) int {
	a := ActiveDevices(devices, count)
	if idx < 0 || idx >= a {
		return 0
	}
	return count / a * idx
}

// Partition returns the chunks of every active device, in device order.
func Partition(devices, count int) []Chunk {
	a := ActiveDevices(devices, count)
	chunks := make([]Chunk, a)
	for i := range chunks {
		chunks[i] = Chunk{
			Device: i,
			Offset: ChunkOffset(devices, count, i),
			Size:   ChunkSize(devices, count, i),
		}
	}
	return chunks
}

// find returns the chunk holding position i and the index of i inside it.
func find(chunks []Chunk, i int) (Chunk, int) {
	for _, c := range chunks {
		if i >= c.Offset && i < c.Offset+c.Size {
			return c, i - c.Offset
		}
	}
	return Chunk{}, -1
}
