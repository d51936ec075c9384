// Package connector keeps a session with the configured park server alive and
// relays session events to outside services.
package connector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/util"
)

const minReconnectDelay = time.Second

// ErrAuthRejected is returned by a session whose credentials were refused.
var ErrAuthRejected = errors.New("authentication rejected")

// Supervisor owns the current client. It dials, authenticates, waits for the
// session to end and starts over after a delay.
type Supervisor struct {
	mu sync.RWMutex

	cfg      *config.Config
	eventBus *events.EventBus
	logger   zerolog.Logger

	current     *client.Client
	reconnectCh chan struct{}
}

// NewSupervisor creates a supervisor and subscribes it to reconnect requests.
func NewSupervisor(cfg *config.Config, eventBus *events.EventBus) *Supervisor {
	s := &Supervisor{
		cfg:         cfg,
		eventBus:    eventBus,
		logger:      util.ComponentLogger("supervisor"),
		reconnectCh: make(chan struct{}, 1),
	}

	eventBus.Subscribe(events.EventReconnect, "supervisor.reconnect", func(ctx context.Context, e events.Event) error {
		s.Reconnect()
		return nil
	})

	return s
}

// Run keeps a session up until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info().Msg("starting connection supervisor")

	for {
		if ctx.Err() != nil {
			return nil
		}

		srv := s.cfg.GetServer()
		c := client.New(s.cfg.GetClient(), s.eventBus)
		s.setCurrent(c)

		requested, err := s.session(ctx, c, srv)
		if err != nil {
			s.logger.Error().Err(err).Str("session", c.SessionID()).Msg("session ended with error")
		}
		if ctx.Err() != nil {
			return nil
		}
		if requested {
			continue
		}

		if !srv.AutoReconnect {
			s.logger.Info().Msg("auto reconnect disabled, waiting for a reconnect request")
			select {
			case <-ctx.Done():
				return nil
			case <-s.reconnectCh:
				continue
			}
		}

		delay := time.Duration(srv.ReconnectDelaySec) * time.Second
		if delay < minReconnectDelay {
			delay = minReconnectDelay
		}
		s.logger.Warn().Dur("delay", delay).Msg("reconnecting after delay")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-s.reconnectCh:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// session runs one client to completion. It reports whether the session was
// ended by a reconnect request.
func (s *Supervisor) session(ctx context.Context, c *client.Client, srv config.ServerConfig) (bool, error) {
	defer c.Close()

	if err := c.Connect(ctx, srv.Host, srv.Port); err != nil {
		return false, fmt.Errorf("failed to connect to %s:%d: %w", srv.Host, srv.Port, err)
	}

	res, err := c.Authenticate(ctx, srv.Username, srv.Password)
	if err != nil {
		return false, fmt.Errorf("authentication failed: %w", err)
	}
	if res.Status != protocol.AuthOK {
		return false, fmt.Errorf("%w: %s", ErrAuthRejected, res.Status)
	}

	s.logger.Info().
		Str("session", c.SessionID()).
		Str("remote", c.RemoteAddr()).
		Uint8("player_id", res.PlayerID).
		Msg("joined server")

	select {
	case <-ctx.Done():
		return false, nil
	case <-c.SessionDone():
		if reason := c.DisconnectReason(); reason != "" {
			return false, fmt.Errorf("server closed the session: %s", reason)
		}
		return false, nil
	case <-s.reconnectCh:
		s.logger.Info().Msg("reconnect requested")
		return true, nil
	}
}

// Reconnect drops the current session and starts a new one without waiting
// for the reconnect delay.
func (s *Supervisor) Reconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// Current returns the client of the running session. It may be disconnected.
func (s *Supervisor) Current() *client.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

func (s *Supervisor) setCurrent(c *client.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = c
}
