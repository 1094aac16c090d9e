package transport

import "sync"

// Buffer is an unbounded FIFO of decoded messages shared by the receiving
// transport and the protocol layer. Push never blocks.
type Buffer[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewBuffer creates an empty buffer
func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

// Push appends v in arrival order
func (b *Buffer[T]) Push(v T) {
	b.mu.Lock()
	b.items = append(b.items, v)
	b.mu.Unlock()
}

// DrainAll removes and returns everything queued so far, oldest first.
// The caller owns the returned slice.
func (b *Buffer[T]) DrainAll() []T {
	b.mu.Lock()
	items := b.items
	b.items = nil
	b.mu.Unlock()
	return items
}

// IsEmpty reports whether the buffer was empty at the time of the call.
// It is a hint; a concurrent Push may land right after.
func (b *Buffer[T]) IsEmpty() bool {
	return b.Len() == 0
}

// Len returns the number of queued messages
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
