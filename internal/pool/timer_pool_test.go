package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool(t *testing.T) {
	t.Run("Get and Put", func(t *testing.T) {
		timer1 := GetTimer(1 * time.Second)
		assert.NotNil(t, timer1)

		PutTimer(timer1)

		timer2 := GetTimer(20 * time.Millisecond)
		assert.NotNil(t, timer2)

		<-timer2.C
		PutTimer(timer2)
	})

	t.Run("Put Active Timer", func(t *testing.T) {
		timer1 := GetTimer(100 * time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		PutTimer(timer1)

		begin := time.Now()
		timer2 := GetTimer(300 * time.Millisecond)

		select {
		case tt := <-timer2.C:
			assert.GreaterOrEqual(t, tt.Sub(begin), 270*time.Millisecond)
		case <-time.After(400 * time.Millisecond):
			t.Error("timer2 should have fired within 400ms")
		}
	})

	t.Run("Concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 100; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(10 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}

func TestSleep(t *testing.T) {
	t.Run("elapses", func(t *testing.T) {
		begin := time.Now()
		require.NoError(t, Sleep(context.Background(), 30*time.Millisecond))
		assert.GreaterOrEqual(t, time.Since(begin), 30*time.Millisecond)
	})

	t.Run("already cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		begin := time.Now()
		err := Sleep(ctx, time.Hour)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(begin), 10*time.Millisecond)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(20*time.Millisecond, cancel)

		begin := time.Now()
		err := Sleep(ctx, time.Hour)
		require.ErrorIs(t, err, context.Canceled)
		assert.Less(t, time.Since(begin), time.Second)
	})

	t.Run("non-positive duration", func(t *testing.T) {
		require.NoError(t, Sleep(context.Background(), 0))
	})
}
