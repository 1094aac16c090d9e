package transport

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_FIFO(t *testing.T) {
	b := NewBuffer[int]()
	assert.True(t, b.IsEmpty())
	assert.Empty(t, b.DrainAll())

	for i := 1; i <= 3; i++ {
		b.Push(i)
	}
	assert.Equal(t, 3, b.Len())
	assert.False(t, b.IsEmpty())

	assert.Equal(t, []int{1, 2, 3}, b.DrainAll())
	assert.True(t, b.IsEmpty())

	b.Push(4)
	assert.Equal(t, []int{4}, b.DrainAll())
}

func TestBuffer_ConcurrentPush(t *testing.T) {
	b := NewBuffer[int]()

	const writers, perWriter = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Push(i)
			}
		}()
	}

	var drained []int
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		drained = append(drained, b.DrainAll()...)
		select {
		case <-done:
			drained = append(drained, b.DrainAll()...)
			require.Len(t, drained, writers*perWriter)
			return
		default:
		}
	}
}
