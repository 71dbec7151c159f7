package buffer_test

import (
	"slices"
	"sync"
	"testing"

	"github.com/mickamy/verlog/internal/buffer"
)

func TestBuffer(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[int]()
	b.Add(1, 2)
	b.Add(3)

	if got := b.Len(); got != 3 {
		t.Fatalf("Len() = %d, want 3", got)
	}
	snap := b.Snapshot()
	snap[0] = 99
	if got := b.Drain(); !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("Drain() = %v, want [1 2 3]", got)
	}
	if got := b.Len(); got != 0 {
		t.Fatalf("Len() after Drain = %d, want 0", got)
	}
}

func TestBuffer_Reset(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[string]()
	b.Add("a")
	b.Reset()
	if got := b.Drain(); len(got) != 0 {
		t.Fatalf("Drain() after Reset = %v, want empty", got)
	}
}

func TestBuffer_ConcurrentAdd(t *testing.T) {
	t.Parallel()

	b := buffer.NewBuffer[int]()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Add(i)
		}(i)
	}
	wg.Wait()
	if got := b.Len(); got != 50 {
		t.Fatalf("Len() = %d, want 50", got)
	}
}
