package buffer

import "math"

// AveragingBuffer is a fixed-capacity ring of samples that keeps their running average. When
// full, pushing a sample evicts the oldest one.
//
// The sum saturates instead of overflowing, so the average is only exact while the sum of the
// samples fits into uint64.
type AveragingBuffer struct {
	samples []uint64
	head    int
	count   int
	sum     uint64
}

func Averaging(capacity int) *AveragingBuffer {
	if capacity < 1 {
		panic("capacity can't be < 1")
	}
	return &AveragingBuffer{
		samples: make([]uint64, capacity),
	}
}

func (b *AveragingBuffer) Push(v uint64) {
	if b.count == len(b.samples) {
		b.sum = saturatingSub(b.sum, b.samples[b.head])
	} else {
		b.count++
	}
	b.samples[b.head] = v
	b.head = (b.head + 1) % len(b.samples)
	b.sum = saturatingAdd(b.sum, v)
}

// Avg returns the average of the samples in the buffer, or false if it is empty.
func (b *AveragingBuffer) Avg() (float64, bool) {
	if b.count == 0 {
		return 0, false
	}
	return float64(b.sum) / float64(b.count), true
}

func (b *AveragingBuffer) Len() int {
	return b.count
}

func (b *AveragingBuffer) Capacity() int {
	return len(b.samples)
}

func saturatingAdd(a, b uint64) uint64 {
	if a > math.MaxUint64-b {
		return math.MaxUint64
	}
	return a + b
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
