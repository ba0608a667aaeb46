package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is the idempotent DDL applied at startup. The two named unique
// constraints carry the engine's correctness guarantees: at most one
// candidate date per (event, calendar day) and at most one score per
// (response, date).
var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id            TEXT PRIMARY KEY,
		organizer_id  TEXT NOT NULL,
		name          TEXT NOT NULL,
		details       TEXT,
		location      TEXT,
		suggested_time   TEXT,
		duration_minutes INT,
		secret_token  TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		CONSTRAINT events_secret_token_key UNIQUE (secret_token)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_events_organizer ON events (organizer_id)`,
	`CREATE TABLE IF NOT EXISTS event_dates (
		id        TEXT PRIMARY KEY,
		event_id  TEXT NOT NULL REFERENCES events (id),
		date      TIMESTAMPTZ NOT NULL,
		day_key   TEXT NOT NULL,
		suggested_by_organizer BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		CONSTRAINT event_dates_event_day_key UNIQUE (event_id, day_key)
	)`,
	`CREATE TABLE IF NOT EXISTS attendee_responses (
		id             TEXT PRIMARY KEY,
		event_id       TEXT NOT NULL REFERENCES events (id),
		attendee_name  TEXT NOT NULL,
		attendee_email TEXT,
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS date_availabilities (
		id                   TEXT PRIMARY KEY,
		attendee_response_id TEXT NOT NULL REFERENCES attendee_responses (id),
		event_date_id        TEXT NOT NULL REFERENCES event_dates (id),
		score                INT NOT NULL CHECK (score BETWEEN 1 AND 5),
		created_at           TIMESTAMPTZ NOT NULL,
		CONSTRAINT date_availabilities_response_date_key UNIQUE (attendee_response_id, event_date_id)
	)`,
}

// Bootstrap creates the schema if it does not exist yet. Safe to run on
// every startup.
func Bootstrap(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
	}
	return nil
}
