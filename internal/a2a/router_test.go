package a2a

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/griotlabs/griot/internal/schema"
)

func validStoryInput() map[string]any {
	return map[string]any{"culture": "ashanti", "theme": "cleverness"}
}

func TestNewTask_IDFormat(t *testing.T) {
	task := NewTask("story_agent", "tell_story", validStoryInput())
	if ok, _ := regexp.MatchString(`^task_[0-9a-f]{12}$`, task.ID); !ok {
		t.Errorf("task ID %q does not match task_ + 12 hex chars", task.ID)
	}
	if task.Status != TaskSubmitted {
		t.Errorf("status = %q, want submitted", task.Status)
	}
	if task.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}

func TestCards_AllAgentsPresent(t *testing.T) {
	cards := Cards()
	for _, name := range []string{
		"story_agent", "riddle_agent", "cultural_grounding", "visual_agent", "memory_agent",
	} {
		if _, ok := cards[name]; !ok {
			t.Errorf("missing card %q", name)
		}
	}
	if !cards["story_agent"].Streaming {
		t.Error("story_agent should be streaming")
	}
	if cards["cultural_grounding"].MaxLatencyMs != 50 {
		t.Errorf("cultural_grounding latency = %d, want 50", cards["cultural_grounding"].MaxLatencyMs)
	}
}

func TestDispatch_RejectsInvalidInput(t *testing.T) {
	r := NewRouter(schema.Default())
	called := false
	_ = r.RegisterUnary("cultural_grounding", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		called = true
		return nil, nil
	})

	task := NewTask("cultural_grounding", "get_cultural_context", map[string]any{"culture": "zulu"})
	_, err := r.Dispatch(context.Background(), task)

	var verr *schema.ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *schema.ViolationError", err)
	}
	if called {
		t.Error("agent must not run on invalid input")
	}
	if task.Status != TaskFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
}

func TestDispatch_UnknownAgent(t *testing.T) {
	r := NewRouter(schema.Default())
	_, err := r.Dispatch(context.Background(), NewTask("oracle_agent", "foretell", nil))
	if !errors.Is(err, ErrUnknownAgent) {
		t.Fatalf("err = %v, want ErrUnknownAgent", err)
	}
}

func TestDispatch_CorrectionRetry(t *testing.T) {
	r := NewRouter(schema.Default())

	var inputs []map[string]any
	attempt := 0
	_ = r.RegisterUnary("cultural_grounding", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		snapshot := make(map[string]any, len(input))
		for k, v := range input {
			snapshot[k] = v
		}
		inputs = append(inputs, snapshot)

		attempt++
		if attempt == 1 {
			// Missing required confidence.
			return map[string]any{"text": "almost"}, nil
		}
		return map[string]any{"text": "fixed", "confidence": 0.9}, nil
	})

	task := NewTask("cultural_grounding", "get_cultural_context", map[string]any{
		"text": "Anansi tales", "culture": "ashanti",
	})
	out, err := r.Dispatch(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out["text"] != "fixed" {
		t.Errorf("out = %v, want the corrected document", out)
	}
	if len(inputs) != 2 {
		t.Fatalf("agent called %d times, want 2", len(inputs))
	}
	if _, ok := inputs[0][correctionKey]; ok {
		t.Error("first attempt should not carry a correction")
	}
	correction, _ := inputs[1][correctionKey].(string)
	if !strings.Contains(correction, "schema errors") || !strings.Contains(correction, "valid JSON") {
		t.Errorf("second attempt correction = %q", correction)
	}
	if task.Status != TaskCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
}

func TestDispatch_FallbackAfterExhaustion(t *testing.T) {
	r := NewRouter(schema.Default(), WithMaxRetries(1))

	calls := 0
	_ = r.RegisterUnary("riddle_agent", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		calls++
		return map[string]any{"opening": "no riddle here"}, nil
	})

	task := NewTask("riddle_agent", "pose_riddle", map[string]any{"culture": "yoruba"})
	out, err := r.Dispatch(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("agent called %d times, want 2 (initial + 1 retry)", calls)
	}
	if out["answer"] != "A mountain" {
		t.Errorf("expected the fallback riddle, got %v", out)
	}
	// The fallback itself must satisfy the schema it substitutes for.
	if ok, errs := schema.Default().Validate("RiddlePayload", out); !ok {
		t.Errorf("fallback violates RiddlePayload: %v", errs)
	}
}

func TestDispatch_AgentErrorsCountAsAttempts(t *testing.T) {
	r := NewRouter(schema.Default(), WithMaxRetries(1))

	calls := 0
	_ = r.RegisterUnary("visual_agent", func(ctx context.Context, input map[string]any) (map[string]any, error) {
		calls++
		return nil, errors.New("model unavailable")
	})

	task := NewTask("visual_agent", "generate_scene_image", map[string]any{
		"scene_description": "a lion under a baobab tree",
	})
	out, err := r.Dispatch(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 2 {
		t.Errorf("agent called %d times, want 2", calls)
	}
	if out["status"] != "skipped" {
		t.Errorf("expected skipped fallback, got %v", out)
	}
}

func TestSafeFallbacks_SatisfyTheirSchemas(t *testing.T) {
	for _, name := range []string{"StoryChunk", "ValidatedChunk", "RiddlePayload", "ImageResult"} {
		if ok, errs := schema.Default().Validate(name, SafeFallback(name)); !ok {
			t.Errorf("fallback for %s invalid: %v", name, errs)
		}
	}
}

func TestDispatchStreaming_RepairsAndDrops(t *testing.T) {
	r := NewRouter(schema.Default())
	_ = r.RegisterStream("story_agent", func(ctx context.Context, input map[string]any) (<-chan map[string]any, error) {
		ch := make(chan map[string]any, 4)
		ch <- map[string]any{"text": "The tortoise set out at dawn.", "culture": "yoruba"}
		ch <- map[string]any{"text": "He carried a gourd of wisdom."} // missing culture: repairable
		ch <- map[string]any{"culture": "yoruba"}                     // no text: dropped
		ch <- map[string]any{"text": "And so it ended.", "culture": "yoruba", "is_final": true}
		close(ch)
		return ch, nil
	})

	task := NewTask("story_agent", "tell_story", validStoryInput())
	out, err := r.DispatchStreaming(context.Background(), task)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []map[string]any
	for chunk := range out {
		got = append(got, chunk)
	}
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3 (one dropped)", len(got))
	}
	if got[1]["culture"] != "african" {
		t.Errorf("repaired chunk culture = %v, want the african default", got[1]["culture"])
	}
	for i, chunk := range got {
		if ok, errs := schema.Default().Validate("StoryChunk", chunk); !ok {
			t.Errorf("chunk %d invalid after enforcement: %v", i, errs)
		}
	}
	if task.Status != TaskCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
}

func TestDispatchStreaming_RejectsInvalidInput(t *testing.T) {
	r := NewRouter(schema.Default())
	_ = r.RegisterStream("story_agent", func(ctx context.Context, input map[string]any) (<-chan map[string]any, error) {
		t.Fatal("handler must not run on invalid input")
		return nil, nil
	})

	task := NewTask("story_agent", "tell_story", map[string]any{"culture": "yoruba"})
	if _, err := r.DispatchStreaming(context.Background(), task); err == nil {
		t.Fatal("expected input violation error")
	}
	if task.Status != TaskFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
}

func TestRepairChunk_ValidatedChunkDefaults(t *testing.T) {
	fixed, ok := repairChunk("ValidatedChunk", map[string]any{"text": "keep me", "confidence": 7.0})
	if !ok {
		t.Fatal("chunk with text should be salvageable")
	}
	if fixed["confidence"] != 0.5 {
		t.Errorf("out-of-range confidence should default to 0.5, got %v", fixed["confidence"])
	}
	if _, ok := repairChunk("RiddlePayload", map[string]any{"text": "x"}); ok {
		t.Error("non-streamed schemas should not be repairable")
	}
}
