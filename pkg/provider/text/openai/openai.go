// Package openai provides a text Provider backed by the OpenAI API, for
// deployments that run the sub-agents on a non-Gemini backend.
package openai

import (
	"context"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/griotlabs/griot/pkg/provider/text"
)

// Provider implements text.Provider using the OpenAI chat completions API.
type Provider struct {
	client oai.Client
	model  string
}

var _ text.Provider = (*Provider)(nil)

// New constructs an OpenAI text Provider.
func New(apiKey, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	client := oai.NewClient(option.WithAPIKey(apiKey))
	return &Provider{client: client, model: model}, nil
}

// StreamGenerate implements text.Provider.
func (p *Provider) StreamGenerate(ctx context.Context, req text.Request) (<-chan text.Chunk, error) {
	req.ApplyDefaults()

	var messages []oai.ChatCompletionMessageParamUnion
	if req.SystemInstruction != "" {
		messages = append(messages, oai.SystemMessage(req.SystemInstruction))
	}
	messages = append(messages, oai.UserMessage(req.Prompt))

	params := oai.ChatCompletionNewParams{
		Model:               shared.ChatModel(p.model),
		Messages:            messages,
		Temperature:         param.NewOpt(req.Temperature),
		TopP:                param.NewOpt(req.TopP),
		MaxCompletionTokens: param.NewOpt(int64(req.MaxTokens)),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("openai: start stream: %w", err)
	}

	ch := make(chan text.Chunk, 32)
	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- text.Chunk{Text: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case ch <- text.Chunk{Err: fmt.Errorf("openai: stream: %w", err)}:
			case <-ctx.Done():
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
