// Package journal records session lifecycle events in PostgreSQL for
// operator auditing. It is write-mostly and never read on the request path.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS session_events (
    id          BIGSERIAL PRIMARY KEY,
    session_id  BIGINT NOT NULL,
    event       TEXT NOT NULL,
    address     TEXT NOT NULL DEFAULT '',
    occurred_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const indexSchema = `CREATE INDEX IF NOT EXISTS session_events_session_idx ON session_events (session_id)`

const (
	EventRegistered   = "registered"
	EventDeregistered = "deregistered"
)

// Entry is one journaled event.
type Entry struct {
	SessionID  int64     `json:"session_id"`
	Event      string    `json:"event"`
	Address    string    `json:"address,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Journal struct {
	db     *postgres.Client
	logger *slog.Logger
}

func New(db *postgres.Client) *Journal {
	return &Journal{
		db:     db,
		logger: slog.Default().With("component", "session-journal"),
	}
}

func (j *Journal) EnsureSchema(ctx context.Context) error {
	if err := j.db.Migrate(ctx, schema, indexSchema); err != nil {
		return fmt.Errorf("creating session journal schema: %w", err)
	}
	return nil
}

func (j *Journal) Record(ctx context.Context, e Entry) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := j.db.DB.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event, address, occurred_at) VALUES ($1, $2, $3, $4)`,
		e.SessionID, e.Event, e.Address, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("journaling %s for session %d: %w", e.Event, e.SessionID, err)
	}
	j.logger.Debug("session event journaled", "session_id", e.SessionID, "event", e.Event)
	return nil
}

// Recent returns the newest limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.DB.QueryContext(ctx,
		`SELECT session_id, event, address, occurred_at FROM session_events ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing session events: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.SessionID, &e.Event, &e.Address, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning session event: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
