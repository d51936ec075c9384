package client

import "fmt"

// State is the lifecycle of a session. Disconnected and Failed are terminal.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
	StateFailed
)

var stateNames = [...]string{
	StateIdle:         "idle",
	StateConnecting:   "connecting",
	StateConnected:    "connected",
	StateDisconnected: "disconnected",
	StateFailed:       "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// AuthState tracks authentication within a connected session.
type AuthState int32

const (
	AuthUnauthenticated AuthState = iota
	AuthPending
	Authenticated
	AuthFailed
)

var authStateNames = [...]string{
	AuthUnauthenticated: "unauthenticated",
	AuthPending:         "pending",
	Authenticated:       "authenticated",
	AuthFailed:          "failed",
}

func (s AuthState) String() string {
	if s >= 0 && int(s) < len(authStateNames) {
		return authStateNames[s]
	}
	return fmt.Sprintf("auth(%d)", int32(s))
}

// Disconnect causes reported in the disconnected event.
const (
	CauseServer    = "server"
	CauseLiveness  = "liveness"
	CauseTransport = "transport"
	CauseClosed    = "closed"
)
