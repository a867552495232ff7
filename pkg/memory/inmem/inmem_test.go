package inmem

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/griotlabs/griot/pkg/memory"
	"github.com/griotlabs/griot/pkg/types"
)

func TestSessionRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	err := store.CreateSession(ctx, types.SessionMetadata{
		SessionID: "abc123def456",
		Language:  "en",
		AgeGroup:  "child",
	})
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	meta, err := store.GetSession(ctx, "abc123def456")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if meta.Language != "en" || meta.AgeGroup != "child" {
		t.Errorf("metadata = %+v", meta)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("GetSession(missing) err = %v, want ErrNotFound", err)
	}
}

func TestUpdateSession(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateSession(ctx, types.SessionMetadata{SessionID: "abc123def456"})

	err := store.UpdateSession(ctx, "abc123def456", map[string]any{
		"language":         "sw",
		"favourite_figure": "tortoise",
		"turn_count":       7,
	})
	if err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	meta, err := store.GetSession(ctx, "abc123def456")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if meta.Language != "sw" {
		t.Errorf("language = %q, want sw", meta.Language)
	}
	if meta.TurnCount != 7 {
		t.Errorf("turn count = %d, want 7", meta.TurnCount)
	}
	if meta.Preferences["favourite_figure"] != "tortoise" {
		t.Errorf("preferences = %v", meta.Preferences)
	}

	if err := store.UpdateSession(ctx, "missing", nil); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("UpdateSession(missing) err = %v, want ErrNotFound", err)
	}
}

func TestTurnsChronologicalWithLimit(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	_ = store.CreateSession(ctx, types.SessionMetadata{SessionID: "abc123def456"})

	for i := 0; i < 5; i++ {
		err := store.SaveTurn(ctx, "abc123def456", types.ConversationTurn{
			TurnID:  fmt.Sprintf("turn_%d", i),
			Role:    "user",
			Content: fmt.Sprintf("message %d", i),
		})
		if err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
	}

	turns, err := store.RecentTurns(ctx, "abc123def456", 3)
	if err != nil {
		t.Fatalf("RecentTurns: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("got %d turns, want 3", len(turns))
	}
	for i, want := range []string{"turn_2", "turn_3", "turn_4"} {
		if turns[i].TurnID != want {
			t.Errorf("turn %d = %q, want %q", i, turns[i].TurnID, want)
		}
	}

	meta, _ := store.GetSession(ctx, "abc123def456")
	if meta.TurnCount != 5 {
		t.Errorf("turn count = %d, want 5", meta.TurnCount)
	}

	empty, err := store.RecentTurns(ctx, "no-such-session", 10)
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("RecentTurns(missing) = %v, %v, want empty non-nil slice", empty, err)
	}
}

func TestCacheTTL(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	if err := store.SetCachedContent(ctx, "story:swahili:patience", "Hadithi...", 0); err != nil {
		t.Fatalf("SetCachedContent: %v", err)
	}
	content, err := store.CachedContent(ctx, "story:swahili:patience")
	if err != nil || content != "Hadithi..." {
		t.Errorf("CachedContent = %q, %v", content, err)
	}

	if err := store.SetCachedContent(ctx, "fleeting", "gone soon", time.Millisecond); err != nil {
		t.Fatalf("SetCachedContent: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := store.CachedContent(ctx, "fleeting"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("expired cache err = %v, want ErrNotFound", err)
	}

	if _, err := store.CachedContent(ctx, "never-set"); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("missing cache err = %v, want ErrNotFound", err)
	}
}
