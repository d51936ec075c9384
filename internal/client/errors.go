package client

import (
	"errors"
	"fmt"

	"github.com/parklink-project/parklink/internal/waiter"
)

var (
	// ErrNotConnected is returned by operations that need a live session.
	ErrNotConnected = errors.New("client is not connected")

	// ErrAlreadyConnected is returned when Connect is called on a client
	// that has already been used.
	ErrAlreadyConnected = errors.New("client was already connected")

	// ErrRequestPending is returned when a request of the same kind is
	// still waiting for its response.
	ErrRequestPending = errors.New("a request of this kind is already pending")

	// ErrAlreadyAuthenticated is returned by Authenticate after a successful
	// authentication.
	ErrAlreadyAuthenticated = errors.New("session is already authenticated")

	// ErrDisconnected is returned when the session ends while a request waits.
	ErrDisconnected = errors.New("session disconnected")

	// ErrLivenessTimeout is carried by the disconnected event when the
	// server stops pinging.
	ErrLivenessTimeout = errors.New("no ping received within liveness timeout")

	// ErrTimeout is returned when a response does not arrive in time.
	ErrTimeout = waiter.ErrTimeout
)

// TransportError reports a failure of the underlying connection.
type TransportError struct {
	Op   string
	Addr string
	Err  error
}

func (e *TransportError) Error() string {
	if e.Addr == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Addr, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
