package journal

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Distributed-File-Retrieval-Engine/pkg/postgres"
)

// Runs only against a real database: FR_POSTGRES_HOST=localhost go test ./...
func TestJournalRoundTrip(t *testing.T) {
	if os.Getenv("FR_POSTGRES_HOST") == "" {
		t.Skip("FR_POSTGRES_HOST not set")
	}
	cfg, err := config.Load("")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := postgres.New(ctx, cfg.Postgres)
	require.NoError(t, err)
	defer db.Close()

	j := New(db)
	require.NoError(t, j.EnsureSchema(ctx))

	sessionID := time.Now().UnixNano()
	require.NoError(t, j.Record(ctx, Entry{SessionID: sessionID, Event: EventRegistered, Address: "127.0.0.1:1"}))
	require.NoError(t, j.Record(ctx, Entry{SessionID: sessionID, Event: EventDeregistered}))

	entries, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, EventDeregistered, entries[0].Event)
	assert.Equal(t, sessionID, entries[1].SessionID)
}
