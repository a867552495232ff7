// Package postgres provides a PostgreSQL-backed implementation of the Griot
// memory store: session metadata, turn history, and the content cache.
//
// All operations share a single [pgxpool.Pool]. [Migrate] is idempotent and
// runs on every application start.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.SaveTurn(ctx, sessionID, turn)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlSessions = `
CREATE TABLE IF NOT EXISTS griot_sessions (
    session_id     TEXT         PRIMARY KEY,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    last_active    TIMESTAMPTZ  NOT NULL DEFAULT now(),
    language       TEXT         NOT NULL DEFAULT 'en',
    age_group      TEXT         NOT NULL DEFAULT '',
    region         TEXT         NOT NULL DEFAULT '',
    turn_count     INTEGER      NOT NULL DEFAULT 0,
    preferences    JSONB        NOT NULL DEFAULT '{}',
    final_summary  TEXT         NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_griot_sessions_last_active
    ON griot_sessions (last_active);
`

const ddlTurns = `
CREATE TABLE IF NOT EXISTS griot_turns (
    id          BIGSERIAL    PRIMARY KEY,
    session_id  TEXT         NOT NULL,
    turn_id     TEXT         NOT NULL,
    role        TEXT         NOT NULL,
    content     TEXT         NOT NULL,
    agent_name  TEXT         NOT NULL DEFAULT '',
    metadata    JSONB        NOT NULL DEFAULT '{}',
    timestamp   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_griot_turns_session_timestamp
    ON griot_turns (session_id, timestamp);
`

const ddlCache = `
CREATE TABLE IF NOT EXISTS griot_cache (
    key         TEXT         PRIMARY KEY,
    content     TEXT         NOT NULL,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now(),
    expires_at  TIMESTAMPTZ
);
`

// Migrate creates or ensures all required tables and indexes exist. It is
// idempotent and safe to call on every application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlSessions, ddlTurns, ddlCache} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
