package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type request struct {
	Seq uint32
}

func TestLockFreeQueue(t *testing.T) {
	t.Run("Empty Queue", func(t *testing.T) {
		q := NewLockFreeQueue[*request]()

		assert.Equal(t, 0, q.Length())

		item, ok := q.Dequeue()
		assert.False(t, ok)
		assert.Nil(t, item)
	})

	t.Run("FIFO order", func(t *testing.T) {
		q := NewLockFreeQueue[*request]()

		for i := uint32(1); i <= 3; i++ {
			q.Enqueue(&request{Seq: i})
		}
		assert.Equal(t, 3, q.Length())

		for i := uint32(1); i <= 3; i++ {
			item, ok := q.Dequeue()
			require.True(t, ok)
			assert.Equal(t, i, item.Seq)
		}
		assert.Zero(t, q.Length())
	})

	t.Run("Concurrency", func(t *testing.T) {
		q := NewLockFreeQueue[int]()

		var wg sync.WaitGroup
		for i := 0; i < 1000; i++ {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				q.Enqueue(v)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1000, q.Length())

		seen := make(map[int]struct{}, 1000)
		var mu sync.Mutex
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					v, ok := q.Dequeue()
					if !ok {
						return
					}
					mu.Lock()
					seen[v] = struct{}{}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Len(t, seen, 1000)
		assert.Zero(t, q.Length())
	})

	t.Run("Sequential producers keep order", func(t *testing.T) {
		q := NewLockFreeQueue[int]()

		for i := 0; i < 100; i++ {
			done := make(chan struct{})
			go func(v int) {
				q.Enqueue(v)
				close(done)
			}(i)
			<-done
		}

		for i := 0; i < 100; i++ {
			v, ok := q.Dequeue()
			require.True(t, ok)
			assert.Equal(t, i, v)
		}
	})
}
