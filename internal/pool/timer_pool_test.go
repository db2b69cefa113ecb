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
		timer1 := GetTimer(time.Second)
		require.NotNil(t, timer1)
		PutTimer(timer1)

		timer2 := GetTimer(10 * time.Millisecond)
		require.NotNil(t, timer2)
		<-timer2.C
		PutTimer(timer2)
	})

	t.Run("Reused timer does not fire early", func(t *testing.T) {
		timer1 := GetTimer(20 * time.Millisecond)
		time.Sleep(40 * time.Millisecond) // expired but never received
		PutTimer(timer1)

		begin := time.Now()
		timer2 := GetTimer(100 * time.Millisecond)
		defer PutTimer(timer2)

		select {
		case <-timer2.C:
			assert.GreaterOrEqual(t, time.Since(begin), 90*time.Millisecond)
		case <-time.After(time.Second):
			t.Error("timer2 should have fired within 1s")
		}
	})

	t.Run("Concurrency", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				timer := GetTimer(5 * time.Millisecond)
				defer PutTimer(timer)
				<-timer.C
			}()
		}
		wg.Wait()
	})
}

func TestSleep(t *testing.T) {
	begin := time.Now()
	require.NoError(t, Sleep(context.Background(), 10*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
