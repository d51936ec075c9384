package waiter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalSetOnce(t *testing.T) {
	s := NewSignal()
	assert.False(t, s.IsSet())

	assert.True(t, s.Set())
	assert.False(t, s.Set())
	assert.True(t, s.IsSet())

	assert.NoError(t, s.Wait(time.Millisecond))
}

func TestSignalWaitTimeout(t *testing.T) {
	s := NewSignal()

	start := time.Now()
	err := s.Wait(30 * time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSignalWaitReleasedByOtherGoroutine(t *testing.T) {
	s := NewSignal()

	go func() {
		time.Sleep(10 * time.Millisecond)
		s.Set()
	}()

	assert.NoError(t, s.Wait(time.Second))
}

func TestSignalWaitContextCancelled(t *testing.T) {
	s := NewSignal()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.WaitContext(ctx, time.Second), context.Canceled)
}

func TestSignalConcurrentSet(t *testing.T) {
	s := NewSignal()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fired := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Set() {
				mu.Lock()
				fired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fired)
}

func TestRequestResolve(t *testing.T) {
	r := NewRequest[string]()

	go func() {
		time.Sleep(5 * time.Millisecond)
		r.Resolve("first")
		r.Resolve("second")
	}()

	v, err := r.Wait(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, "first", v)
	assert.True(t, r.Resolved())
	assert.False(t, r.Resolve("third"))
}

func TestRequestTimeout(t *testing.T) {
	r := NewRequest[int]()

	v, err := r.Wait(context.Background(), 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Zero(t, v)
	assert.False(t, r.Resolved())
}
