// Package text defines the Provider interface for streaming text generation
// backends.
//
// Sub-agents (story, riddle, cultural grounding) call a plain text model
// rather than the duplex live session: pure text generation is faster there
// and keeps the live session's context clean. A text provider wraps one such
// backend (Gemini over Vertex, OpenAI, ...) behind a uniform streaming
// interface.
//
// Implementations must be safe for concurrent use. Channels returned by
// StreamGenerate must be closed by the implementation when the stream ends or
// when the supplied context is cancelled.
package text

import "context"

// Request carries everything the model needs to produce a response.
type Request struct {
	// Prompt is the user-turn content driving the generation.
	Prompt string

	// SystemInstruction is the agent persona and output-format contract.
	SystemInstruction string

	// Temperature controls randomness. Zero means the provider default
	// (0.8, creative but grounded).
	Temperature float64

	// TopP controls nucleus sampling. Zero means the provider default (0.95).
	TopP float64

	// MaxTokens caps generated tokens. Zero means the provider default (2048).
	MaxTokens int
}

// Chunk is a single fragment emitted by a streaming generation. At most one
// of Text and Err is set; a chunk with Err set is always the last one on the
// channel.
type Chunk struct {
	Text string
	Err  error
}

// Provider is the abstraction over any streaming text generation backend.
type Provider interface {
	// StreamGenerate sends req to the model and returns a read-only channel
	// that emits chunks as they arrive. The channel is closed when generation
	// finishes or ctx is cancelled; callers must drain it. The initial error
	// is non-nil only when the stream cannot be started at all.
	StreamGenerate(ctx context.Context, req Request) (<-chan Chunk, error)

	// Generate sends req and waits for the full response text. Convenience
	// wrapper for callers that do not need incremental output.
	Generate(ctx context.Context, req Request) (string, error)
}

// ApplyDefaults fills zero-valued tuning fields with the shared defaults.
// Implementations call this before building their native request.
func (r *Request) ApplyDefaults() {
	if r.Temperature == 0 {
		r.Temperature = 0.8
	}
	if r.TopP == 0 {
		r.TopP = 0.95
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 2048
	}
}
