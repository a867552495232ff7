package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/griotlabs/griot/internal/media"
	"github.com/griotlabs/griot/pkg/provider/image"
)

// visualPromptTemplate frames every scene in a culturally grounded style.
const visualPromptTemplate = "African oral tradition illustration, %s, " +
	"in the style of contemporary African art, warm earth tones, " +
	"vibrant colors, cultural authenticity, %s visual elements, " +
	"digital painting, storytelling scene, detailed, beautiful"

const visualNegativePrompt = "stereotypical, offensive, caricature, Western-centric, " +
	"colonial imagery, unrealistic skin tones, cartoonish, " +
	"low quality, blurry, text, watermark"

// VisualAgent turns narrative moments into generated illustrations. It runs
// off the conversation's critical path: images are a bonus enhancement, and
// every failure mode degrades to a skipped or failed ImageResult rather than
// an error the orchestrator has to handle.
type VisualAgent struct {
	provider image.Provider
	uploader media.Uploader
	logger   *slog.Logger
}

// NewVisualAgent creates a VisualAgent. provider may be nil when no image
// model is configured; Execute then reports skipped results.
func NewVisualAgent(provider image.Provider, uploader media.Uploader, logger *slog.Logger) *VisualAgent {
	if uploader == nil {
		uploader = media.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VisualAgent{provider: provider, uploader: uploader, logger: logger}
}

// Name identifies the agent.
func (a *VisualAgent) Name() string { return "visual" }

// Execute generates one illustration from an ImageRequest document and
// returns an ImageResult document. Expected to take 5-15 seconds; always run
// it from a background goroutine.
func (a *VisualAgent) Execute(ctx context.Context, input map[string]any) (map[string]any, error) {
	if a.provider == nil {
		return map[string]any{
			"status": "skipped",
			"error":  "Image generation unavailable",
		}, nil
	}

	scene := payloadString(input, "scene_description")
	culture := payloadString(input, "culture")
	if culture == "" {
		culture = "African"
	}

	a.logger.Info("generating image", "scene", truncate(scene, 80))
	start := time.Now()

	data, err := a.provider.Generate(ctx, image.Request{
		Prompt:         fmt.Sprintf(visualPromptTemplate, scene, culture),
		NegativePrompt: visualNegativePrompt,
		AspectRatio:    payloadString(input, "aspect_ratio"),
	})
	if err != nil {
		a.logger.Error("image generation failed", "error", err)
		return map[string]any{
			"status": "failed",
			"error":  err.Error(),
		}, nil
	}

	name := fmt.Sprintf("generated/%s.png", uuid.NewString())
	url, err := a.uploader.Upload(ctx, name, "image/png", data)
	if err != nil {
		a.logger.Warn("image upload failed", "object", name, "error", err)
		return map[string]any{
			"status": "skipped",
			"error":  "Image generation unavailable",
		}, nil
	}

	latency := time.Since(start)
	a.logger.Info("image generated and uploaded", "object", name, "latency_ms", latency.Milliseconds())
	return map[string]any{
		"status":     "success",
		"url":        url,
		"latency_ms": float64(latency.Milliseconds()),
	}, nil
}

// truncate shortens s for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
