// Package buffer holds values produced inside a transaction until it ends.
package buffer

import (
	"sync"
)

// Buffer collects entries within a transaction.
type Buffer[T any] struct {
	mu sync.Mutex
	ts []T
}

func NewBuffer[T any]() *Buffer[T] {
	return &Buffer[T]{}
}

func (b *Buffer[T]) Add(es ...T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ts = append(b.ts, es...)
}

// Snapshot returns a copy of the buffered entries without removing them.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.ts))
	copy(out, b.ts)
	return out
}

func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ts)
}

// Drain removes and returns every buffered entry.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	es := b.ts
	b.ts = nil
	b.mu.Unlock()
	return es
}

func (b *Buffer[T]) Reset() {
	b.Drain()
}
