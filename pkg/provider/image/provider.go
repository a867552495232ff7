// Package image defines the Provider interface for image generation
// backends. The visual agent turns narrative scene descriptions into
// illustrations through this interface; a nil or unconfigured provider
// degrades to "skipped" results rather than failing the conversation.
package image

import "context"

// Request describes one image to generate.
type Request struct {
	// Prompt is the full rendered prompt, including style directives.
	Prompt string

	// NegativePrompt lists elements to avoid.
	NegativePrompt string

	// AspectRatio is "1:1", "16:9", or "9:16". Empty means "16:9"
	// (scene illustrations are landscape by default).
	AspectRatio string
}

// Provider is the abstraction over any image generation backend.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Generate produces one image and returns its encoded bytes (PNG).
	Generate(ctx context.Context, req Request) ([]byte, error)
}
