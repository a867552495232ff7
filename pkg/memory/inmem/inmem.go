// Package inmem provides an in-process implementation of the memory store.
// It serves deployments without a database and doubles as the test store.
package inmem

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/griotlabs/griot/pkg/memory"
	"github.com/griotlabs/griot/pkg/types"
)

// Store implements memory.Store with process-local state. Everything is lost
// on restart, which is acceptable for single-node and development use.
type Store struct {
	mu       sync.Mutex
	sessions map[string]types.SessionMetadata
	turns    map[string][]types.ConversationTurn
	cache    map[string]cacheEntry
}

type cacheEntry struct {
	content   string
	expiresAt time.Time
}

var _ memory.Store = (*Store)(nil)

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]types.SessionMetadata),
		turns:    make(map[string][]types.ConversationTurn),
		cache:    make(map[string]cacheEntry),
	}
}

// CreateSession implements memory.Store.
func (s *Store) CreateSession(_ context.Context, meta types.SessionMetadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now()
	}
	meta.LastActive = time.Now()
	s.sessions[meta.SessionID] = meta
	return nil
}

// GetSession implements memory.Store.
func (s *Store) GetSession(_ context.Context, sessionID string) (*types.SessionMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.sessions[sessionID]
	if !ok {
		return nil, memory.ErrNotFound
	}
	out := meta
	out.Preferences = maps.Clone(meta.Preferences)
	return &out, nil
}

// UpdateSession implements memory.Store. Recognised keys map onto the
// metadata fields; anything else lands in Preferences.
func (s *Store) UpdateSession(_ context.Context, sessionID string, updates map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	meta, ok := s.sessions[sessionID]
	if !ok {
		return memory.ErrNotFound
	}

	for key, value := range updates {
		switch key {
		case "language":
			if v, ok := value.(string); ok {
				meta.Language = v
			}
		case "age_group":
			if v, ok := value.(string); ok {
				meta.AgeGroup = v
			}
		case "region":
			if v, ok := value.(string); ok {
				meta.Region = v
			}
		case "turn_count":
			if v, ok := value.(int); ok {
				meta.TurnCount = v
			}
		case "last_active", "final_summary":
			// last_active is refreshed below; the final summary has no
			// in-memory use once the session is gone.
		default:
			if v, ok := value.(string); ok {
				if meta.Preferences == nil {
					meta.Preferences = make(map[string]string)
				}
				meta.Preferences[key] = v
			}
		}
	}

	meta.LastActive = time.Now()
	s.sessions[sessionID] = meta
	return nil
}

// SaveTurn implements memory.Store.
func (s *Store) SaveTurn(_ context.Context, sessionID string, turn types.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	s.turns[sessionID] = append(s.turns[sessionID], turn)
	if meta, ok := s.sessions[sessionID]; ok {
		meta.TurnCount++
		meta.LastActive = time.Now()
		s.sessions[sessionID] = meta
	}
	return nil
}

// RecentTurns implements memory.Store.
func (s *Store) RecentTurns(_ context.Context, sessionID string, limit int) ([]types.ConversationTurn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.turns[sessionID]
	if limit > 0 && len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]types.ConversationTurn, len(all))
	copy(out, all)
	return out, nil
}

// CachedContent implements memory.Store.
func (s *Store) CachedContent(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.cache[key]
	if !ok {
		return "", memory.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		delete(s.cache, key)
		return "", memory.ErrNotFound
	}
	return entry.content, nil
}

// SetCachedContent implements memory.Store.
func (s *Store) SetCachedContent(_ context.Context, key, content string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := cacheEntry{content: content}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	s.cache[key] = entry
	return nil
}

// Close implements memory.Store.
func (s *Store) Close() {}
