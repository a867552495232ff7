// Package memory defines the persistence facade for Griot conversation
// sessions: session metadata, turn-by-turn history, and a content cache for
// pre-generated material.
//
// The interface is public so alternative backends (Postgres, Redis,
// in-memory, …) can be supplied without depending on griot internals. Every
// implementation must be safe for concurrent use and must treat missing
// records as absent values, not errors.
package memory

import (
	"context"
	"errors"
	"time"

	"github.com/griotlabs/griot/pkg/types"
)

// ErrNotFound is returned by Store methods when the requested record does not
// exist.
var ErrNotFound = errors.New("memory: not found")

// Store persists session state across reconnects and restarts.
//
// The conversation never blocks on the store: callers run writes in the
// background and degrade to in-memory state when a write fails.
type Store interface {
	// CreateSession persists a new session's metadata. Creating a session
	// that already exists overwrites it.
	CreateSession(ctx context.Context, meta types.SessionMetadata) error

	// GetSession retrieves session metadata by id.
	// Returns ErrNotFound when the session does not exist.
	GetSession(ctx context.Context, sessionID string) (*types.SessionMetadata, error)

	// UpdateSession merges updates into the session's stored fields and
	// refreshes its last-active timestamp. Unknown keys are ignored.
	UpdateSession(ctx context.Context, sessionID string, updates map[string]any) error

	// SaveTurn appends a conversation turn to the session's history and
	// increments the stored turn count.
	SaveTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error

	// RecentTurns returns up to limit of the most recent turns for the
	// session, in chronological order (oldest first).
	// Returns an empty (non-nil) slice when the session has no history.
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.ConversationTurn, error)

	// CachedContent retrieves cached content by key.
	// Returns ErrNotFound when the key is absent or its entry has expired.
	CachedContent(ctx context.Context, key string) (string, error)

	// SetCachedContent stores content under key with a time-to-live.
	// A zero ttl stores the entry without expiry.
	SetCachedContent(ctx context.Context, key, content string, ttl time.Duration) error

	// Close releases any resources held by the store.
	Close()
}
