// Package mock provides a configurable in-memory text Provider for tests.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/griotlabs/griot/pkg/provider/text"
)

// Provider implements text.Provider with scripted responses.
type Provider struct {
	mu sync.Mutex

	// Chunks is the sequence of text fragments StreamGenerate emits.
	Chunks []string

	// Err, when set, is emitted as the final chunk after Chunks.
	Err error

	// StartErr, when set, is returned by StreamGenerate before any chunk.
	StartErr error

	// Requests records every request received, in order.
	Requests []text.Request
}

var _ text.Provider = (*Provider)(nil)

// StreamGenerate implements text.Provider.
func (p *Provider) StreamGenerate(ctx context.Context, req text.Request) (<-chan text.Chunk, error) {
	p.mu.Lock()
	p.Requests = append(p.Requests, req)
	chunks := append([]string(nil), p.Chunks...)
	err := p.Err
	startErr := p.StartErr
	p.mu.Unlock()

	if startErr != nil {
		return nil, startErr
	}

	ch := make(chan text.Chunk, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- text.Chunk{Text: c}:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			select {
			case ch <- text.Chunk{Err: err}:
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

// RequestCount returns how many requests the provider has received.
func (p *Provider) RequestCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Requests)
}
