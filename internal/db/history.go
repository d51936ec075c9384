package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/parklink-project/parklink/internal/events"
	"github.com/parklink-project/parklink/internal/protocol"
	"github.com/parklink-project/parklink/internal/text"
	"github.com/parklink-project/parklink/internal/util"
)

// Player sighting kinds.
const (
	SightingJoined = "joined"
	SightingLeft   = "left"
)

const writeTimeout = 2 * time.Second

// SessionRecord is one connection to a server.
type SessionRecord struct {
	ID        string    `json:"id"`
	Remote    string    `json:"remote"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Cause     string    `json:"cause,omitempty"`
	Reason    string    `json:"reason,omitempty"`
}

// ChatRecord is one received chat line.
type ChatRecord struct {
	ID         int64     `json:"id"`
	SessionID  string    `json:"session_id"`
	Message    string    `json:"message"`
	Raw        string    `json:"-"`
	ReceivedAt time.Time `json:"received_at"`
}

// PlayerSighting records a player joining or leaving.
type PlayerSighting struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	PlayerID  uint8     `json:"player_id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	At        time.Time `json:"at"`
}

// HistoryStore persists session history.
type HistoryStore struct {
	db     *Database
	logger zerolog.Logger
}

// NewHistoryStore opens the history database and creates its schema.
func NewHistoryStore(dbPath string) (*HistoryStore, error) {
	database, err := NewDatabase(dbPath)
	if err != nil {
		return nil, err
	}

	hs := &HistoryStore{db: database, logger: util.ComponentLogger("history")}
	if err := hs.migrate(context.Background()); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}

	return hs, nil
}

func (hs *HistoryStore) migrate(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			remote TEXT NOT NULL DEFAULT '',
			started_at INTEGER NOT NULL,
			ended_at INTEGER NOT NULL DEFAULT 0,
			cause TEXT NOT NULL DEFAULT '',
			reason TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			message TEXT NOT NULL,
			raw TEXT NOT NULL,
			received_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS player_sightings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			player_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			kind TEXT NOT NULL,
			at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chat_received ON chat_messages(received_at);
		CREATE INDEX IF NOT EXISTS idx_sightings_name ON player_sightings(name);
	`

	_, err := hs.db.Exec(ctx, schema)
	return err
}

// Close closes the underlying database.
func (hs *HistoryStore) Close() error {
	return hs.db.Close()
}

// Attach subscribes the store to session events on bus.
func (hs *HistoryStore) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventConnected, "history.connected", hs.onConnected)
	bus.Subscribe(events.EventDisconnected, "history.disconnected", hs.onDisconnected)
	bus.Subscribe(events.EventChatMessage, "history.chat", hs.onChat)
	bus.SubscribeMany([]events.EventType{events.EventPlayerJoined, events.EventPlayerLeft},
		"history.players", hs.onPlayer)
}

// StartSession records a new session.
func (hs *HistoryStore) StartSession(ctx context.Context, id, remote string, at time.Time) error {
	_, err := hs.db.Exec(ctx,
		"INSERT OR IGNORE INTO sessions (id, remote, started_at) VALUES (?, ?, ?)",
		id, remote, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", id, err)
	}
	return nil
}

// EndSession stamps a session with its end time and cause.
func (hs *HistoryStore) EndSession(ctx context.Context, id, cause, reason string, at time.Time) error {
	_, err := hs.db.Exec(ctx,
		"UPDATE sessions SET ended_at = ?, cause = ?, reason = ? WHERE id = ?",
		at.UnixMilli(), cause, reason, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	return nil
}

// RecordChat stores one chat line.
func (hs *HistoryStore) RecordChat(ctx context.Context, sessionID string, msg text.String, at time.Time) error {
	_, err := hs.db.Exec(ctx,
		"INSERT INTO chat_messages (session_id, message, raw, received_at) VALUES (?, ?, ?, ?)",
		sessionID, msg.String(), msg.Raw, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record chat message: %w", err)
	}
	return nil
}

// RecordSighting stores a join or leave.
func (hs *HistoryStore) RecordSighting(ctx context.Context, sessionID, kind string, p protocol.Player, at time.Time) error {
	_, err := hs.db.Exec(ctx,
		"INSERT INTO player_sightings (session_id, player_id, name, kind, at) VALUES (?, ?, ?, ?, ?)",
		sessionID, p.ID, p.Name, kind, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record %s of %s: %w", kind, p.Name, err)
	}
	return nil
}

// PruneResult counts the rows removed by Prune.
type PruneResult struct {
	Chat      int64
	Sightings int64
	Sessions  int64
}

// Prune deletes history recorded before cutoff. Sessions that are still open
// are kept.
func (hs *HistoryStore) Prune(ctx context.Context, cutoff time.Time) (PruneResult, error) {
	var res PruneResult
	ms := cutoff.UnixMilli()

	err := hs.db.Transaction(ctx, func(tx *sql.Tx) error {
		r, err := tx.ExecContext(ctx, "DELETE FROM chat_messages WHERE received_at < ?", ms)
		if err != nil {
			return err
		}
		res.Chat, _ = r.RowsAffected()

		r, err = tx.ExecContext(ctx, "DELETE FROM player_sightings WHERE at < ?", ms)
		if err != nil {
			return err
		}
		res.Sightings, _ = r.RowsAffected()

		r, err = tx.ExecContext(ctx, "DELETE FROM sessions WHERE ended_at != 0 AND ended_at < ?", ms)
		if err != nil {
			return err
		}
		res.Sessions, _ = r.RowsAffected()
		return nil
	})
	if err != nil {
		return PruneResult{}, fmt.Errorf("failed to prune history: %w", err)
	}
	return res, nil
}

// RecentChat returns up to limit chat lines, newest first.
func (hs *HistoryStore) RecentChat(ctx context.Context, limit int) ([]ChatRecord, error) {
	rows, err := hs.db.Query(ctx,
		"SELECT id, session_id, message, raw, received_at FROM chat_messages ORDER BY id DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var out []ChatRecord
	for rows.Next() {
		var r ChatRecord
		var ms int64
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Message, &r.Raw, &ms); err != nil {
			return nil, err
		}
		r.ReceivedAt = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecentSightings returns up to limit joins and leaves, newest first. An
// empty name matches every player.
func (hs *HistoryStore) RecentSightings(ctx context.Context, name string, limit int) ([]PlayerSighting, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if name == "" {
		rows, err = hs.db.Query(ctx,
			"SELECT id, session_id, player_id, name, kind, at FROM player_sightings ORDER BY id DESC LIMIT ?",
			limit)
	} else {
		rows, err = hs.db.Query(ctx,
			"SELECT id, session_id, player_id, name, kind, at FROM player_sightings WHERE name = ? ORDER BY id DESC LIMIT ?",
			name, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query player sightings: %w", err)
	}
	defer rows.Close()

	var out []PlayerSighting
	for rows.Next() {
		var s PlayerSighting
		var ms int64
		if err := rows.Scan(&s.ID, &s.SessionID, &s.PlayerID, &s.Name, &s.Kind, &ms); err != nil {
			return nil, err
		}
		s.At = time.UnixMilli(ms)
		out = append(out, s)
	}
	return out, rows.Err()
}

// Sessions returns up to limit sessions, newest first.
func (hs *HistoryStore) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := hs.db.Query(ctx,
		"SELECT id, remote, started_at, ended_at, cause, reason FROM sessions ORDER BY started_at DESC LIMIT ?",
		limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var s SessionRecord
		var started, ended int64
		if err := rows.Scan(&s.ID, &s.Remote, &started, &ended, &s.Cause, &s.Reason); err != nil {
			return nil, err
		}
		s.StartedAt = time.UnixMilli(started)
		if ended != 0 {
			s.EndedAt = time.UnixMilli(ended)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Event handlers run on the client's receive loop, so each write gets a
// short deadline of its own.

func (hs *HistoryStore) onConnected(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ConnectedPayload)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return hs.StartSession(ctx, p.SessionID, p.Remote, time.Now())
}

func (hs *HistoryStore) onDisconnected(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.DisconnectedPayload)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return hs.EndSession(ctx, p.SessionID, p.Cause, p.Reason, time.Now())
}

func (hs *HistoryStore) onChat(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.ChatMessagePayload)
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return hs.RecordChat(ctx, p.SessionID, p.Message, time.Now())
}

func (hs *HistoryStore) onPlayer(ctx context.Context, event events.Event) error {
	p, ok := event.Payload.(events.PlayerPayload)
	if !ok {
		return nil
	}

	kind := SightingJoined
	if event.Type == events.EventPlayerLeft {
		kind = SightingLeft
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return hs.RecordSighting(ctx, p.SessionID, kind, p.Player, time.Now())
}
