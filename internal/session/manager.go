// Package session manages per-session conversation memory: the working set
// of recent turns, learned user preferences, and the rolling summary that
// keeps sub-agent context compact during long conversations.
//
// The [Manager] is the orchestrator's memory. It keeps a bounded in-memory
// window for fast reads and persists everything to a [memory.Store] in the
// background; a failing store degrades the session to in-memory state instead
// of interrupting the conversation.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/griotlabs/griot/pkg/memory"
	"github.com/griotlabs/griot/pkg/types"
)

const (
	// maxMemoryTurns is the number of turns kept in active memory.
	maxMemoryTurns = 20

	// summarizeThreshold is how many accumulated turns trigger summarisation
	// of the oldest part of the window.
	summarizeThreshold = 15

	// persistTimeout bounds each background store write.
	persistTimeout = 5 * time.Second
)

// topicKeywords drive the lightweight topic extraction used in summaries.
var topicKeywords = []string{
	"story", "riddle", "yoruba", "zulu", "swahili", "kikuyu",
	"ashanti", "maasai", "anansi", "trickster", "proverb",
	"wisdom", "creation", "ancestors", "animals",
}

// Manager holds one session's conversation memory.
//
// All methods are safe for concurrent use. Store writes run in the
// background; [Manager.Finalize] waits for them before the final save.
type Manager struct {
	sessionID string
	store     memory.Store
	logger    *slog.Logger

	mu             sync.Mutex
	metadata       types.SessionMetadata
	turns          []types.ConversationTurn
	contextSummary string
	preferences    map[string]string

	pending sync.WaitGroup
}

// NewManager creates a memory manager for sessionID backed by store.
func NewManager(sessionID string, store memory.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		sessionID:   sessionID,
		store:       store,
		logger:      logger.With("session_id", sessionID),
		preferences: make(map[string]string),
	}
}

// Create initialises a fresh session and persists its metadata in the
// background.
func (m *Manager) Create(ctx context.Context) {
	m.mu.Lock()
	m.metadata = types.SessionMetadata{
		SessionID: m.sessionID,
		CreatedAt: time.Now(),
		Language:  "en",
	}
	m.turns = nil
	m.contextSummary = ""
	m.preferences = make(map[string]string)
	meta := m.metadata
	m.mu.Unlock()

	m.background(ctx, "create session", func(ctx context.Context) error {
		return m.store.CreateSession(ctx, meta)
	})
	m.logger.Info("session created")
}

// Load restores an existing session's metadata and recent history from the
// store. Reports whether the session was found.
func (m *Manager) Load(ctx context.Context, sessionID string) bool {
	meta, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		if err != memory.ErrNotFound {
			m.logger.Warn("session load failed", "error", err)
		}
		return false
	}
	turns, err := m.store.RecentTurns(ctx, sessionID, maxMemoryTurns)
	if err != nil {
		m.logger.Warn("history load failed", "error", err)
		turns = nil
	}

	m.mu.Lock()
	m.sessionID = sessionID
	m.metadata = *meta
	m.turns = turns
	m.preferences = make(map[string]string)
	for k, v := range meta.Preferences {
		m.preferences[k] = v
	}
	m.mu.Unlock()

	m.logger.Info("session loaded", "turns", len(turns))
	return true
}

// SaveTurn records a conversation turn in memory and persists it in the
// background. When the window overflows, the oldest turns are folded into the
// rolling summary before being trimmed away.
func (m *Manager) SaveTurn(ctx context.Context, turn types.ConversationTurn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}

	m.mu.Lock()
	m.turns = append(m.turns, turn)
	if len(m.turns) > maxMemoryTurns {
		if len(m.turns) >= summarizeThreshold {
			m.summarizeOldTurnsLocked()
		}
		m.turns = m.turns[len(m.turns)-maxMemoryTurns:]
	}
	m.mu.Unlock()

	m.background(ctx, "save turn", func(ctx context.Context) error {
		return m.store.SaveTurn(ctx, m.sessionID, turn)
	})
}

// ContextSummary renders a compact view of the conversation for sub-agent
// prompts: the rolling summary, the last ten turns, and known preferences.
func (m *Manager) ContextSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var parts []string
	if m.contextSummary != "" {
		parts = append(parts, "Earlier conversation summary: "+m.contextSummary)
	}

	recent := m.turns
	if len(recent) > 10 {
		recent = recent[len(recent)-10:]
	}
	if len(recent) > 0 {
		parts = append(parts, "Recent conversation:")
		for _, turn := range recent {
			label := "Griot"
			if turn.Role == "user" {
				label = "User"
			}
			parts = append(parts, fmt.Sprintf("  %s: %s", label, truncateRunes(turn.Content, 150)))
		}
	}

	if len(m.preferences) > 0 {
		keys := make([]string, 0, len(m.preferences))
		for k := range m.preferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]string, len(keys))
		for i, k := range keys {
			pairs[i] = k + "=" + m.preferences[k]
		}
		parts = append(parts, "User preferences: "+strings.Join(pairs, ", "))
	}

	if len(parts) == 0 {
		return "New conversation, no history yet."
	}
	return strings.Join(parts, "\n")
}

// UpdatePreferences records learned user preferences (language, age group,
// favourite cultures) and persists them in the background.
func (m *Manager) UpdatePreferences(ctx context.Context, updates map[string]string) {
	if len(updates) == 0 {
		return
	}

	m.mu.Lock()
	persisted := make(map[string]any, len(updates))
	for key, value := range updates {
		m.preferences[key] = value
		persisted[key] = value
		switch key {
		case "language":
			m.metadata.Language = value
		case "age_group":
			m.metadata.AgeGroup = value
		case "region":
			m.metadata.Region = value
		}
	}
	m.mu.Unlock()

	m.background(ctx, "update preferences", func(ctx context.Context) error {
		return m.store.UpdateSession(ctx, m.sessionID, persisted)
	})
}

// CachedContent returns pre-generated content stored under key. Reports false
// when the key is absent, expired, or the store read fails.
func (m *Manager) CachedContent(ctx context.Context, key string) (string, bool) {
	content, err := m.store.CachedContent(ctx, key)
	if err != nil {
		if err != memory.ErrNotFound {
			m.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return "", false
	}
	return content, true
}

// CacheContent stores content under key with a time-to-live, in the
// background.
func (m *Manager) CacheContent(ctx context.Context, key, content string, ttl time.Duration) {
	m.background(ctx, "cache content", func(ctx context.Context) error {
		return m.store.SetCachedContent(ctx, key, content, ttl)
	})
}

// TurnCount returns the number of turns currently held in memory.
func (m *Manager) TurnCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.turns)
}

// Finalize waits for pending background writes and saves the session's
// closing state. Called once on disconnect.
func (m *Manager) Finalize(ctx context.Context) {
	m.pending.Wait()

	m.mu.Lock()
	turnCount := len(m.turns)
	summary := m.contextSummary
	m.mu.Unlock()

	if err := m.store.UpdateSession(ctx, m.sessionID, map[string]any{
		"turn_count":    turnCount,
		"final_summary": summary,
	}); err != nil && err != memory.ErrNotFound {
		m.logger.Warn("final session save failed", "error", err)
	}
	m.logger.Info("session finalized", "turns", turnCount)
}

// summarizeOldTurnsLocked folds the oldest turns into the rolling summary.
// Caller holds m.mu. The summary is keyword-based rather than model-based:
// it runs on the hot path of every overflowing turn and must stay free.
func (m *Manager) summarizeOldTurnsLocked() {
	old := m.turns[:summarizeThreshold]
	m.contextSummary = fmt.Sprintf(
		"The conversation covered: %d turns discussing African stories and culture. Key topics: %s",
		len(old), extractTopics(old))
	m.logger.Info("summarized old turns", "count", len(old))
}

// extractTopics pulls known topic keywords out of the turns, at most five.
func extractTopics(turns []types.ConversationTurn) string {
	var sb strings.Builder
	for _, t := range turns {
		sb.WriteString(strings.ToLower(t.Content))
		sb.WriteByte(' ')
	}
	all := sb.String()

	var topics []string
	for _, keyword := range topicKeywords {
		if strings.Contains(all, keyword) {
			topics = append(topics, keyword)
		}
	}
	if len(topics) == 0 {
		return "general African culture"
	}
	if len(topics) > 5 {
		topics = topics[:5]
	}
	return strings.Join(topics, ", ")
}

// background runs a store write off the conversation's critical path.
// Failures are logged and otherwise ignored; the in-memory state stands.
func (m *Manager) background(ctx context.Context, op string, fn func(context.Context) error) {
	m.pending.Add(1)
	go func() {
		defer m.pending.Done()
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		if err := fn(wctx); err != nil && err != memory.ErrNotFound {
			m.logger.Warn("store write failed", "op", op, "error", err)
		}
	}()
}

// truncateRunes shortens s to at most n runes.
func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
