// Package imagen provides an image Provider backed by Imagen models via the
// google.golang.org/genai SDK (Vertex AI backend).
package imagen

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/griotlabs/griot/pkg/provider/image"
)

// Provider implements image.Provider using the genai SDK.
type Provider struct {
	client *genai.Client
	model  string
}

var _ image.Provider = (*Provider)(nil)

// Config holds the connection settings for the Vertex AI backend.
type Config struct {
	ProjectID string
	Region    string
	APIKey    string

	// Model is the Imagen model name, e.g. "imagen-3.0-generate-002".
	Model string
}

// New constructs an Imagen Provider.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = "imagen-3.0-generate-002"
	}

	cc := &genai.ClientConfig{}
	if cfg.APIKey != "" {
		cc.APIKey = cfg.APIKey
	} else {
		cc.Backend = genai.BackendVertexAI
		cc.Project = cfg.ProjectID
		cc.Location = cfg.Region
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("imagen: create client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

// Generate implements image.Provider.
func (p *Provider) Generate(ctx context.Context, req image.Request) ([]byte, error) {
	aspect := req.AspectRatio
	if aspect == "" {
		aspect = "16:9"
	}

	resp, err := p.client.Models.GenerateImages(ctx, p.model, req.Prompt, &genai.GenerateImagesConfig{
		NumberOfImages: 1,
		AspectRatio:    aspect,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		return nil, fmt.Errorf("imagen: generate: %w", err)
	}
	if len(resp.GeneratedImages) == 0 || resp.GeneratedImages[0].Image == nil {
		return nil, fmt.Errorf("imagen: empty response")
	}
	return resp.GeneratedImages[0].Image.ImageBytes, nil
}
