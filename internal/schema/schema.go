// Package schema holds the JSON Schema contracts exchanged between the
// orchestrator and its sub-agents, and a registry that validates payloads
// against them.
//
// Every inter-agent payload is a schema-typed JSON document. The registry
// precompiles each schema at registration time so per-message validation is
// cheap enough to run on every streamed chunk.
package schema

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Canonical schema names. Agent cards reference these.
const (
	StoryRequest   = "StoryRequest"
	StoryChunk     = "StoryChunk"
	ValidatedChunk = "ValidatedChunk"
	RiddleRequest  = "RiddleRequest"
	RiddlePayload  = "RiddlePayload"
	ImageRequest   = "ImageRequest"
	ImageResult    = "ImageResult"
)

// ViolationError reports that a payload failed validation against a named
// schema. Errors holds one human-readable "<field>: <description>" entry per
// violation.
type ViolationError struct {
	Schema string
	Errors []string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("schema %s violated: %s", e.Schema, strings.Join(e.Errors, "; "))
}

// Registry validates payloads against named, precompiled JSON Schemas.
// It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*gojsonschema.Schema)}
}

// Register compiles doc (a JSON Schema document) and stores it under name,
// replacing any previous schema with the same name.
func (r *Registry) Register(name, doc string) error {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return fmt.Errorf("schema: compile %q: %w", name, err)
	}
	r.mu.Lock()
	r.schemas[name] = compiled
	r.mu.Unlock()
	return nil
}

// Names returns the registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.schemas))
	for name := range r.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks payload against the schema registered under name. It
// returns true when the payload conforms. On failure the second return value
// lists one "<field>: <description>" string per violation. An unknown schema
// name is reported as a single violation rather than an error so callers can
// treat it uniformly.
func (r *Registry) Validate(name string, payload map[string]any) (bool, []string) {
	r.mu.RLock()
	compiled, ok := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return false, []string{fmt.Sprintf("schema %q is not registered", name)}
	}

	result, err := compiled.Validate(gojsonschema.NewGoLoader(payload))
	if err != nil {
		return false, []string{fmt.Sprintf("payload: %v", err)}
	}
	if result.Valid() {
		return true, nil
	}

	errs := make([]string, 0, len(result.Errors()))
	for _, re := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", re.Field(), re.Description()))
	}
	return false, errs
}

// ValidateOrReject is like [Registry.Validate] but returns a *ViolationError
// on failure, for callers that propagate violations as errors.
func (r *Registry) ValidateOrReject(name string, payload map[string]any) error {
	if ok, errs := r.Validate(name, payload); !ok {
		return &ViolationError{Schema: name, Errors: errs}
	}
	return nil
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry preloaded with every canonical
// schema.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for name, doc := range canonical {
			if err := defaultRegistry.Register(name, doc); err != nil {
				// The canonical documents are compile-time constants; a
				// failure here is a programming error.
				panic(err)
			}
		}
	})
	return defaultRegistry
}

// canonical maps each schema name to its draft-07 document.
var canonical = map[string]string{
	StoryRequest: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "StoryRequest",
		"type": "object",
		"properties": {
			"culture": {"type": "string"},
			"theme": {"type": "string"},
			"age_group": {"type": "string", "enum": ["child", "teen", "adult"]},
			"complexity": {"type": "string", "enum": ["simple", "moderate", "rich"]},
			"prior_context": {"type": "string"},
			"language": {"type": "string"}
		},
		"required": ["culture", "theme"],
		"additionalProperties": false
	}`,

	StoryChunk: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "StoryChunk",
		"type": "object",
		"properties": {
			"text": {"type": "string", "minLength": 1},
			"culture": {"type": "string"},
			"chunk_index": {"type": "integer", "minimum": 0},
			"is_final": {"type": "boolean"},
			"visual_moment": {"type": "string"},
			"cultural_claims": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"claim": {"type": "string"},
						"category": {
							"type": "string",
							"enum": ["proverb", "custom", "character", "location", "language", "historical"]
						}
					},
					"required": ["claim", "category"],
					"additionalProperties": false
				}
			}
		},
		"required": ["text", "culture"],
		"additionalProperties": false
	}`,

	ValidatedChunk: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "ValidatedChunk",
		"type": "object",
		"properties": {
			"text": {"type": "string"},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1},
			"corrections": {"type": "array", "items": {"type": "string"}},
			"cultural_notes": {"type": "string"}
		},
		"required": ["text", "confidence"],
		"additionalProperties": false
	}`,

	RiddleRequest: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "RiddleRequest",
		"type": "object",
		"properties": {
			"culture": {"type": "string"},
			"difficulty": {"type": "string", "enum": ["easy", "medium", "hard"]},
			"topic": {"type": "string"},
			"age_group": {"type": "string"},
			"prior_context": {"type": "string"}
		},
		"required": ["culture"],
		"additionalProperties": false
	}`,

	RiddlePayload: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "RiddlePayload",
		"type": "object",
		"properties": {
			"opening": {"type": "string", "minLength": 1},
			"riddle": {"type": "string", "minLength": 1},
			"answer": {"type": "string", "minLength": 1},
			"hints": {
				"type": "array",
				"items": {"type": "string"},
				"minItems": 3,
				"maxItems": 3
			},
			"explanation": {"type": "string"},
			"culture": {"type": "string"},
			"is_traditional": {"type": "boolean"}
		},
		"required": ["opening", "riddle", "answer", "hints"],
		"additionalProperties": false
	}`,

	ImageRequest: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "ImageRequest",
		"type": "object",
		"properties": {
			"scene_description": {"type": "string", "minLength": 10},
			"culture": {"type": "string"},
			"style": {"type": "string"},
			"aspect_ratio": {"type": "string", "enum": ["1:1", "16:9", "9:16"]}
		},
		"required": ["scene_description"],
		"additionalProperties": false
	}`,

	ImageResult: `{
		"$schema": "http://json-schema.org/draft-07/schema#",
		"title": "ImageResult",
		"type": "object",
		"properties": {
			"status": {"type": "string", "enum": ["success", "failed", "skipped"]},
			"url": {"type": "string"},
			"error": {"type": "string"},
			"latency_ms": {"type": "number"}
		},
		"required": ["status"],
		"additionalProperties": false
	}`,
}
