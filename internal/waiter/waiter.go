// Package waiter provides single-shot signals for handing a result from the
// receive loop to a goroutine blocked on a request.
package waiter

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned when a wait window elapses before the signal is set.
var ErrTimeout = errors.New("timed out waiting for response")

// Signal is a one-way latch. The zero value is not usable; use NewSignal.
type Signal struct {
	once sync.Once
	done chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set releases every current and future waiter. It reports whether this call
// performed the transition; later calls are no-ops.
func (s *Signal) Set() bool {
	fired := false
	s.once.Do(func() {
		close(s.done)
		fired = true
	})
	return fired
}

// IsSet reports whether Set has been called.
func (s *Signal) IsSet() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Done returns a channel that is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the signal is set or timeout elapses.
func (s *Signal) Wait(timeout time.Duration) error {
	return s.WaitContext(context.Background(), timeout)
}

// WaitContext is Wait that also gives up when ctx is done.
func (s *Signal) WaitContext(ctx context.Context, timeout time.Duration) error {
	if s.IsSet() {
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-s.done:
		return nil
	case <-timer.C:
		// A set racing the timer still counts.
		if s.IsSet() {
			return nil
		}
		return ErrTimeout
	case <-ctx.Done():
		if s.IsSet() {
			return nil
		}
		return ctx.Err()
	}
}

// Request pairs a signal with the value it announces.
type Request[T any] struct {
	signal *Signal
	mu     sync.Mutex
	value  T
}

// NewRequest returns an unresolved request.
func NewRequest[T any]() *Request[T] {
	return &Request[T]{signal: NewSignal()}
}

// Resolve stores v and then sets the signal, so a released waiter always
// sees the value. Only the first call has any effect.
func (r *Request[T]) Resolve(v T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.signal.IsSet() {
		return false
	}
	r.value = v
	return r.signal.Set()
}

// Resolved reports whether a value has been delivered.
func (r *Request[T]) Resolved() bool {
	return r.signal.IsSet()
}

// Wait blocks until the request is resolved, timeout elapses or ctx is done.
func (r *Request[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	if err := r.signal.WaitContext(ctx, timeout); err != nil {
		var zero T
		return zero, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value, nil
}
