// Package gemini provides a text Provider backed by Gemini models via the
// google.golang.org/genai SDK (Vertex AI backend).
package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/griotlabs/griot/pkg/provider/text"
)

// Provider implements text.Provider using the genai SDK.
type Provider struct {
	client *genai.Client
	model  string
}

var _ text.Provider = (*Provider)(nil)

// Config holds the connection settings for the Vertex AI backend. When APIKey
// is set the Gemini API backend is used instead of Vertex.
type Config struct {
	ProjectID string
	Region    string
	APIKey    string

	// Model is the model name, e.g. "gemini-2.0-flash".
	Model string
}

// New constructs a Gemini text Provider. The client is created eagerly so
// credential problems surface at startup rather than on the first turn.
func New(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
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
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &Provider{client: client, model: cfg.Model}, nil
}

// StreamGenerate implements text.Provider.
func (p *Provider) StreamGenerate(ctx context.Context, req text.Request) (<-chan text.Chunk, error) {
	req.ApplyDefaults()

	contents := []*genai.Content{
		{Role: genai.RoleUser, Parts: []*genai.Part{{Text: req.Prompt}}},
	}
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(req.Temperature)),
		TopP:            genai.Ptr(float32(req.TopP)),
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.SystemInstruction != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemInstruction}},
		}
	}

	ch := make(chan text.Chunk, 32)
	go func() {
		defer close(ch)
		for resp, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, config) {
			if err != nil {
				select {
				case ch <- text.Chunk{Err: fmt.Errorf("gemini: stream: %w", err)}:
				case <-ctx.Done():
				}
				return
			}
			t := responseText(resp)
			if t == "" {
				continue
			}
			select {
			case ch <- text.Chunk{Text: t}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// Generate implements text.Provider.
func (p *Provider) Generate(ctx context.Context, req text.Request) (string, error) {
	ch, err := p.StreamGenerate(ctx, req)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			return sb.String(), chunk.Err
		}
		sb.WriteString(chunk.Text)
	}
	return sb.String(), nil
}

// responseText extracts the concatenated text parts of a streamed response.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
