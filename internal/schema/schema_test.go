package schema

import (
	"errors"
	"strings"
	"testing"
)

func TestDefault_AllCanonicalSchemasRegistered(t *testing.T) {
	want := []string{
		ImageRequest, ImageResult, RiddlePayload, RiddleRequest,
		StoryChunk, StoryRequest, ValidatedChunk,
	}
	got := Default().Names()
	if len(got) != len(want) {
		t.Fatalf("Names() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRegister_InvalidDocument(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("Broken", `{"type": nope}`); err == nil {
		t.Fatal("expected error for malformed schema document")
	}
}

func TestValidate_UnknownSchema(t *testing.T) {
	r := NewRegistry()
	ok, errs := r.Validate("Mystery", map[string]any{})
	if ok {
		t.Fatal("unknown schema should not validate")
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "not registered") {
		t.Fatalf("errs = %v, want single not-registered message", errs)
	}
}

func TestValidate_StoryRequest(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		ok      bool
	}{
		{
			name:    "minimal valid",
			payload: map[string]any{"culture": "yoruba", "theme": "wisdom"},
			ok:      true,
		},
		{
			name: "full valid",
			payload: map[string]any{
				"culture": "zulu", "theme": "courage",
				"age_group": "child", "complexity": "simple",
				"prior_context": "previous story about lions", "language": "en",
			},
			ok: true,
		},
		{
			name:    "missing theme",
			payload: map[string]any{"culture": "yoruba"},
			ok:      false,
		},
		{
			name:    "bad age group",
			payload: map[string]any{"culture": "yoruba", "theme": "wisdom", "age_group": "elder"},
			ok:      false,
		},
		{
			name:    "extra field rejected",
			payload: map[string]any{"culture": "yoruba", "theme": "wisdom", "mood": "dark"},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, errs := Default().Validate(StoryRequest, tt.payload)
			if ok != tt.ok {
				t.Errorf("Validate = %v (errs %v), want %v", ok, errs, tt.ok)
			}
		})
	}
}

func TestValidate_StoryChunk(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		ok      bool
	}{
		{
			name:    "minimal valid",
			payload: map[string]any{"text": "Long ago...", "culture": "ashanti"},
			ok:      true,
		},
		{
			name: "with claims",
			payload: map[string]any{
				"text": "Anansi spun his web.", "culture": "ashanti",
				"chunk_index": 2, "is_final": false,
				"visual_moment": "a spider weaving under moonlight",
				"cultural_claims": []any{
					map[string]any{"claim": "Anansi is an Ashanti trickster", "category": "character"},
				},
			},
			ok: true,
		},
		{
			name:    "empty text",
			payload: map[string]any{"text": "", "culture": "ashanti"},
			ok:      false,
		},
		{
			name:    "missing culture",
			payload: map[string]any{"text": "Long ago..."},
			ok:      false,
		},
		{
			name: "bad claim category",
			payload: map[string]any{
				"text": "x", "culture": "ashanti",
				"cultural_claims": []any{
					map[string]any{"claim": "y", "category": "vibe"},
				},
			},
			ok: false,
		},
		{
			name:    "negative chunk index",
			payload: map[string]any{"text": "x", "culture": "ashanti", "chunk_index": -1},
			ok:      false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, errs := Default().Validate(StoryChunk, tt.payload)
			if ok != tt.ok {
				t.Errorf("Validate = %v (errs %v), want %v", ok, errs, tt.ok)
			}
		})
	}
}

func TestValidate_ValidatedChunk(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		ok      bool
	}{
		{"valid", map[string]any{"text": "ok", "confidence": 0.9}, true},
		{"confidence too high", map[string]any{"text": "ok", "confidence": 1.5}, false},
		{"missing confidence", map[string]any{"text": "ok"}, false},
		{"with corrections", map[string]any{
			"text": "ok", "confidence": 0.5,
			"corrections": []any{"softened an overgeneralization"},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, errs := Default().Validate(ValidatedChunk, tt.payload)
			if ok != tt.ok {
				t.Errorf("Validate = %v (errs %v), want %v", ok, errs, tt.ok)
			}
		})
	}
}

func TestValidate_RiddlePayload_HintCount(t *testing.T) {
	base := func(hints []any) map[string]any {
		return map[string]any{
			"opening": "A riddle for you...",
			"riddle":  "What speaks without a mouth?",
			"answer":  "An echo",
			"hints":   hints,
		}
	}
	if ok, errs := Default().Validate(RiddlePayload, base([]any{"a", "b", "c"})); !ok {
		t.Fatalf("three hints should validate, got %v", errs)
	}
	if ok, _ := Default().Validate(RiddlePayload, base([]any{"a", "b"})); ok {
		t.Error("two hints should not validate")
	}
	if ok, _ := Default().Validate(RiddlePayload, base([]any{"a", "b", "c", "d"})); ok {
		t.Error("four hints should not validate")
	}
}

func TestValidate_RiddleRequest(t *testing.T) {
	ok, errs := Default().Validate(RiddleRequest, map[string]any{
		"culture": "swahili", "difficulty": "easy",
		"prior_context": "the egg riddle is already solved",
	})
	if !ok {
		t.Errorf("expected valid, got %v", errs)
	}
	if ok, _ := Default().Validate(RiddleRequest, map[string]any{"difficulty": "easy"}); ok {
		t.Error("missing culture should not validate")
	}
	if ok, _ := Default().Validate(RiddleRequest, map[string]any{
		"culture": "zulu", "difficulty": "impossible",
	}); ok {
		t.Error("unknown difficulty should not validate")
	}
}

func TestValidate_RiddlePayload_EmptyCore(t *testing.T) {
	payload := map[string]any{
		"opening": "",
		"riddle":  "What has roots nobody sees?",
		"answer":  "A mountain",
		"hints":   []any{"a", "b", "c"},
	}
	if ok, _ := Default().Validate(RiddlePayload, payload); ok {
		t.Error("empty opening should not validate")
	}
}

func TestValidate_ImageRequest_MinLength(t *testing.T) {
	if ok, _ := Default().Validate(ImageRequest, map[string]any{"scene_description": "short"}); ok {
		t.Error("scene description under 10 chars should not validate")
	}
	ok, errs := Default().Validate(ImageRequest, map[string]any{
		"scene_description": "a baobab tree at sunset",
		"aspect_ratio":      "16:9",
	})
	if !ok {
		t.Errorf("expected valid, got %v", errs)
	}
}

func TestValidate_ImageResult_Status(t *testing.T) {
	if ok, _ := Default().Validate(ImageResult, map[string]any{"status": "pending"}); ok {
		t.Error("unknown status should not validate")
	}
	if ok, errs := Default().Validate(ImageResult, map[string]any{
		"status": "skipped", "error": "Image generation unavailable",
	}); !ok {
		t.Errorf("expected valid, got %v", errs)
	}
}

func TestValidateOrReject(t *testing.T) {
	err := Default().ValidateOrReject(StoryRequest, map[string]any{"culture": "yoruba"})
	var verr *ViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *ViolationError", err)
	}
	if verr.Schema != StoryRequest {
		t.Errorf("Schema = %q, want %q", verr.Schema, StoryRequest)
	}
	if len(verr.Errors) == 0 {
		t.Error("expected at least one violation entry")
	}

	if err := Default().ValidateOrReject(StoryRequest, map[string]any{
		"culture": "yoruba", "theme": "wisdom",
	}); err != nil {
		t.Errorf("valid payload returned %v", err)
	}
}
