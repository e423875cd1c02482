package metrics

import (
	"sync"

	"go.uber.org/zap"
)

// RingBuffer is a fixed-capacity FIFO that overwrites the oldest item when
// full. It is safe for concurrent use.
type RingBuffer[T any] struct {
	mu     sync.Mutex
	data   []T
	head   int
	size   int
	logger *zap.Logger
}

// NewRingBuffer returns a buffer holding at most capacity items. A capacity
// below 1 is raised to 1.
func NewRingBuffer[T any](capacity int, logger *zap.Logger) *RingBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer[T]{data: make([]T, capacity), logger: logger}
}

// Add appends item, evicting the oldest entry when the buffer is full.
func (b *RingBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == len(b.data) {
		b.logger.Warn("metrics buffer full, overwriting oldest sample",
			zap.Int("capacity", len(b.data)))
	}
	b.data[b.head] = item
	b.head = (b.head + 1) % len(b.data)
	if b.size < len(b.data) {
		b.size++
	}
}

// GetAllAndClear returns every buffered item, oldest first, and empties the buffer.
func (b *RingBuffer[T]) GetAllAndClear() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.size == 0 {
		return nil
	}
	out := make([]T, b.size)
	start := (b.head - b.size + len(b.data)) % len(b.data)
	for i := range out {
		out[i] = b.data[(start+i)%len(b.data)]
	}

	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.head, b.size = 0, 0
	return out
}

// Len returns the number of buffered items.
func (b *RingBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Capacity returns the maximum number of items the buffer holds.
func (b *RingBuffer[T]) Capacity() int {
	return len(b.data)
}
