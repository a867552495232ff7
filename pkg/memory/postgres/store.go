package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/griotlabs/griot/pkg/memory"
	"github.com/griotlabs/griot/pkg/types"
)

var _ memory.Store = (*Store)(nil)

// Store is the PostgreSQL-backed memory store. All operations are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store, establishes a connection pool to the database at
// dsn, and runs [Migrate] to ensure all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// CreateSession implements [memory.Store].
func (s *Store) CreateSession(ctx context.Context, meta types.SessionMetadata) error {
	prefs, err := json.Marshal(orEmpty(meta.Preferences))
	if err != nil {
		return fmt.Errorf("postgres store: marshal preferences: %w", err)
	}

	const q = `
		INSERT INTO griot_sessions (session_id, language, age_group, region, preferences)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (session_id) DO UPDATE SET
		    language    = EXCLUDED.language,
		    age_group   = EXCLUDED.age_group,
		    region      = EXCLUDED.region,
		    preferences = EXCLUDED.preferences,
		    last_active = now()`

	if _, err := s.pool.Exec(ctx, q, meta.SessionID, meta.Language, meta.AgeGroup, meta.Region, prefs); err != nil {
		return fmt.Errorf("postgres store: create session: %w", err)
	}
	return nil
}

// GetSession implements [memory.Store].
func (s *Store) GetSession(ctx context.Context, sessionID string) (*types.SessionMetadata, error) {
	const q = `
		SELECT session_id, created_at, last_active, language, age_group, region, turn_count, preferences
		FROM   griot_sessions
		WHERE  session_id = $1`

	var (
		meta  types.SessionMetadata
		prefs []byte
	)
	err := s.pool.QueryRow(ctx, q, sessionID).Scan(
		&meta.SessionID,
		&meta.CreatedAt,
		&meta.LastActive,
		&meta.Language,
		&meta.AgeGroup,
		&meta.Region,
		&meta.TurnCount,
		&prefs,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres store: get session: %w", err)
	}
	if err := json.Unmarshal(prefs, &meta.Preferences); err != nil {
		return nil, fmt.Errorf("postgres store: unmarshal preferences: %w", err)
	}
	return &meta, nil
}

// UpdateSession implements [memory.Store]. Recognised keys update their
// column; everything else merges into the preferences document.
func (s *Store) UpdateSession(ctx context.Context, sessionID string, updates map[string]any) error {
	sets := []string{"last_active = now()"}
	args := []any{sessionID}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	prefUpdates := make(map[string]string)
	for key, value := range updates {
		switch key {
		case "language":
			sets = append(sets, "language = "+next(value))
		case "age_group":
			sets = append(sets, "age_group = "+next(value))
		case "region":
			sets = append(sets, "region = "+next(value))
		case "turn_count":
			sets = append(sets, "turn_count = "+next(value))
		case "final_summary":
			sets = append(sets, "final_summary = "+next(value))
		case "last_active":
			// Always refreshed above.
		default:
			if v, ok := value.(string); ok {
				prefUpdates[key] = v
			}
		}
	}
	if len(prefUpdates) > 0 {
		merged, err := json.Marshal(prefUpdates)
		if err != nil {
			return fmt.Errorf("postgres store: marshal preferences: %w", err)
		}
		sets = append(sets, "preferences = preferences || "+next(merged))
	}

	q := "UPDATE griot_sessions SET "
	for i, set := range sets {
		if i > 0 {
			q += ", "
		}
		q += set
	}
	q += " WHERE session_id = $1"

	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("postgres store: update session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// SaveTurn implements [memory.Store].
func (s *Store) SaveTurn(ctx context.Context, sessionID string, turn types.ConversationTurn) error {
	meta, err := json.Marshal(orEmptyAny(turn.Metadata))
	if err != nil {
		return fmt.Errorf("postgres store: marshal turn metadata: %w", err)
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	const insert = `
		INSERT INTO griot_turns (session_id, turn_id, role, content, agent_name, metadata, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := s.pool.Exec(ctx, insert,
		sessionID, turn.TurnID, turn.Role, turn.Content, turn.AgentName, meta, turn.Timestamp,
	); err != nil {
		return fmt.Errorf("postgres store: save turn: %w", err)
	}

	const bump = `
		UPDATE griot_sessions
		SET    turn_count = turn_count + 1, last_active = now()
		WHERE  session_id = $1`
	if _, err := s.pool.Exec(ctx, bump, sessionID); err != nil {
		return fmt.Errorf("postgres store: bump turn count: %w", err)
	}
	return nil
}

// RecentTurns implements [memory.Store].
func (s *Store) RecentTurns(ctx context.Context, sessionID string, limit int) ([]types.ConversationTurn, error) {
	const q = `
		SELECT turn_id, role, content, agent_name, metadata, timestamp
		FROM   (
		    SELECT turn_id, role, content, agent_name, metadata, timestamp
		    FROM   griot_turns
		    WHERE  session_id = $1
		    ORDER  BY timestamp DESC
		    LIMIT  $2
		) recent
		ORDER BY timestamp`

	rows, err := s.pool.Query(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres store: recent turns: %w", err)
	}

	turns, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (types.ConversationTurn, error) {
		var (
			t    types.ConversationTurn
			meta []byte
		)
		if err := row.Scan(&t.TurnID, &t.Role, &t.Content, &t.AgentName, &meta, &t.Timestamp); err != nil {
			return types.ConversationTurn{}, err
		}
		if err := json.Unmarshal(meta, &t.Metadata); err != nil {
			return types.ConversationTurn{}, err
		}
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan turns: %w", err)
	}
	if turns == nil {
		turns = []types.ConversationTurn{}
	}
	return turns, nil
}

// CachedContent implements [memory.Store].
func (s *Store) CachedContent(ctx context.Context, key string) (string, error) {
	const q = `
		SELECT content
		FROM   griot_cache
		WHERE  key = $1
		  AND  (expires_at IS NULL OR expires_at > now())`

	var content string
	err := s.pool.QueryRow(ctx, q, key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", memory.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("postgres store: cached content: %w", err)
	}
	return content, nil
}

// SetCachedContent implements [memory.Store].
func (s *Store) SetCachedContent(ctx context.Context, key, content string, ttl time.Duration) error {
	var expires any
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	const q = `
		INSERT INTO griot_cache (key, content, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
		    content    = EXCLUDED.content,
		    created_at = now(),
		    expires_at = EXCLUDED.expires_at`

	if _, err := s.pool.Exec(ctx, q, key, content, expires); err != nil {
		return fmt.Errorf("postgres store: set cached content: %w", err)
	}
	return nil
}

// Close implements [memory.Store].
func (s *Store) Close() {
	s.pool.Close()
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func orEmptyAny(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
