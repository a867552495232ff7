package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/griotlabs/griot/pkg/provider/image"
	"github.com/griotlabs/griot/pkg/provider/live"
	"github.com/griotlabs/griot/pkg/provider/text"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	live  map[Provider]func(ctx context.Context, cfg ModelConfig) (live.Provider, error)
	text  map[Provider]func(ctx context.Context, cfg ModelConfig) (text.Provider, error)
	image map[Provider]func(ctx context.Context, cfg ModelConfig) (image.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		live:  make(map[Provider]func(context.Context, ModelConfig) (live.Provider, error)),
		text:  make(map[Provider]func(context.Context, ModelConfig) (text.Provider, error)),
		image: make(map[Provider]func(context.Context, ModelConfig) (image.Provider, error)),
	}
}

// RegisterLive registers a live provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterLive(name Provider, factory func(context.Context, ModelConfig) (live.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live[name] = factory
}

// RegisterText registers a text provider factory under name.
func (r *Registry) RegisterText(name Provider, factory func(context.Context, ModelConfig) (text.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.text[name] = factory
}

// RegisterImage registers an image provider factory under name.
func (r *Registry) RegisterImage(name Provider, factory func(context.Context, ModelConfig) (image.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[name] = factory
}

// CreateLive instantiates the live provider registered under cfg.Provider.
// Returns [ErrProviderNotRegistered] when no factory exists for that name.
func (r *Registry) CreateLive(ctx context.Context, cfg ModelConfig) (live.Provider, error) {
	r.mu.RLock()
	factory, ok := r.live[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: live/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(ctx, cfg)
}

// CreateText instantiates the text provider registered under cfg.Provider.
func (r *Registry) CreateText(ctx context.Context, cfg ModelConfig) (text.Provider, error) {
	r.mu.RLock()
	factory, ok := r.text[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: text/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(ctx, cfg)
}

// CreateImage instantiates the image provider registered under cfg.Provider.
func (r *Registry) CreateImage(ctx context.Context, cfg ModelConfig) (image.Provider, error) {
	r.mu.RLock()
	factory, ok := r.image[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: image/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(ctx, cfg)
}
