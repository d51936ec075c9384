// Package scheduler runs parklink's periodic background tasks: history
// pruning, session checks and the heartbeat.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parklink-project/parklink/internal/client"
	"github.com/parklink-project/parklink/internal/config"
	"github.com/parklink-project/parklink/internal/db"
	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/util"
)

// SessionSource hands out the client of the running session.
type SessionSource interface {
	Current() *client.Client
}

// Scheduler manages periodic background tasks.
type Scheduler struct {
	cfg      *config.Config
	eventBus *events.EventBus
	sessions SessionSource
	history  *db.HistoryStore

	now func() time.Time
}

// NewScheduler creates a new task scheduler. history may be nil.
func NewScheduler(cfg *config.Config, eventBus *events.EventBus, sessions SessionSource, history *db.HistoryStore) *Scheduler {
	return &Scheduler{
		cfg:      cfg,
		eventBus: eventBus,
		sessions: sessions,
		history:  history,
		now:      time.Now,
	}
}

// Start runs all scheduled tasks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	app := s.cfg.GetApplicationData()

	checks := []struct {
		name     string
		interval int
		fn       func(context.Context)
	}{
		{"heartbeat", app.Timers.HeartbeatInterval, s.heartbeat},
		{"session", app.Timers.SessionCheckInterval, s.checkSession},
	}

	started := 0
	for _, check := range checks {
		if check.interval <= 0 {
			continue
		}
		started++
		go func() {
			ticker := time.NewTicker(time.Duration(check.interval) * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					check.fn(ctx)
				}
			}
		}()
	}

	if s.history != nil && app.History.RetentionDays > 0 {
		started++
		go s.runPruneLoop(ctx)
	}

	log.Info().Int("tasks", started).Msg("scheduler started")

	<-ctx.Done()
	log.Info().Msg("scheduler stopped")
}

// runPruneLoop deletes old history once a day at the configured time.
func (s *Scheduler) runPruneLoop(ctx context.Context) {
	for {
		nextRun := s.nextPruneTime()
		sleep := nextRun.Sub(s.now())
		if sleep <= 0 {
			sleep = 24 * time.Hour
		}

		log.Info().
			Time("next_run", nextRun).
			Dur("sleep", sleep).
			Msg("history pruning scheduled")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			s.pruneHistory(ctx)
		}
	}
}

func (s *Scheduler) pruneHistory(ctx context.Context) {
	days := s.cfg.GetApplicationData().History.RetentionDays
	cutoff := s.now().AddDate(0, 0, -days)

	res, err := s.history.Prune(ctx, cutoff)
	if err != nil {
		log.Warn().Err(err).Msg("history pruning failed")
		return
	}

	log.Info().
		Int("retention_days", days).
		Int64("chat", res.Chat).
		Int64("sightings", res.Sightings).
		Int64("sessions", res.Sessions).
		Msg("history pruning completed")
}

// nextPruneTime returns the next occurrence of the configured prune time.
func (s *Scheduler) nextPruneTime() time.Time {
	hour, minute, err := config.ParseClock(s.cfg.GetApplicationData().History.PruneTime)
	if err != nil {
		hour, minute = 4, 0
	}

	now := s.now()
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// checkSession warns when the server has gone quiet for more than half the
// liveness timeout, ahead of the client dropping the session.
func (s *Scheduler) checkSession(ctx context.Context) {
	c := s.sessions.Current()
	if c == nil || !c.Connected() {
		log.Debug().Msg("session check: not connected")
		return
	}

	last := c.LastPing()
	if last.IsZero() {
		return
	}

	quiet := s.now().Sub(last)
	if limit := s.cfg.GetClient().LivenessTimeout(); quiet > limit/2 {
		log.Warn().
			Str("session", c.SessionID()).
			Dur("quiet_for", quiet).
			Dur("liveness_timeout", limit).
			Msg("server has not pinged recently")
	}
}

// heartbeat publishes a snapshot of the session and the process.
func (s *Scheduler) heartbeat(ctx context.Context) {
	s.eventBus.Emit(ctx, events.Event{
		Type:    events.EventHeartbeat,
		Source:  "scheduler",
		Payload: s.snapshot(),
	})
}

func (s *Scheduler) snapshot() events.HeartbeatPayload {
	hb := events.HeartbeatPayload{
		State:     client.StateIdle.String(),
		AuthState: client.AuthUnauthenticated.String(),
	}

	if c := s.sessions.Current(); c != nil {
		hb.SessionID = c.SessionID()
		hb.State = c.State().String()
		hb.AuthState = c.AuthState().String()
		hb.Players = len(c.Players())
	}

	if stats, err := util.GetProcessStats(); err == nil {
		hb.RSSMB = stats.RSS
		hb.CPUPercent = stats.CPUPercent
		hb.Goroutines = stats.Goroutines
	} else {
		log.Debug().Err(err).Msg("process stats unavailable")
	}

	return hb
}
