package a2a

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/griotlabs/griot/internal/schema"
)

// ErrUnknownAgent is returned when a task targets an unregistered agent.
var ErrUnknownAgent = errors.New("a2a: unknown agent")

// correctionKey is injected into the input on retry so the agent sees what
// it got wrong.
const correctionKey = "_correction"

// UnaryHandler executes a task and returns a single output document.
type UnaryHandler func(ctx context.Context, input map[string]any) (map[string]any, error)

// StreamHandler executes a task and returns a channel of output documents.
// The handler closes the channel when the stream ends.
type StreamHandler func(ctx context.Context, input map[string]any) (<-chan map[string]any, error)

// Router validates and dispatches tasks to registered agent handlers.
// It is safe for concurrent use after registration is complete.
type Router struct {
	registry   *schema.Registry
	cards      map[string]AgentCard
	unary      map[string]UnaryHandler
	stream     map[string]StreamHandler
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithMaxRetries overrides the number of correction retries after the first
// attempt (default 2).
func WithMaxRetries(n int) Option {
	return func(r *Router) { r.maxRetries = n }
}

// WithLogger overrides the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a Router over the given schema registry, preloaded with
// the built-in agent cards.
func NewRouter(registry *schema.Registry, opts ...Option) *Router {
	r := &Router{
		registry:   registry,
		cards:      Cards(),
		unary:      make(map[string]UnaryHandler),
		stream:     make(map[string]StreamHandler),
		maxRetries: 2,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Card returns the agent card registered under name.
func (r *Router) Card(name string) (AgentCard, bool) {
	card, ok := r.cards[name]
	return card, ok
}

// RegisterUnary attaches a unary handler to the named card.
func (r *Router) RegisterUnary(name string, h UnaryHandler) error {
	if _, ok := r.cards[name]; !ok {
		return fmt.Errorf("a2a: register %q: %w", name, ErrUnknownAgent)
	}
	r.unary[name] = h
	return nil
}

// RegisterStream attaches a streaming handler to the named card.
func (r *Router) RegisterStream(name string, h StreamHandler) error {
	if _, ok := r.cards[name]; !ok {
		return fmt.Errorf("a2a: register %q: %w", name, ErrUnknownAgent)
	}
	r.stream[name] = h
	return nil
}

// Dispatch runs a unary task with schema enforcement. The input is validated
// before the agent runs; a violating input fails the task without calling the
// agent. The output is validated after each attempt, and on violation the
// agent is retried with a correction note injected into the input. When all
// attempts are exhausted the safe fallback for the output schema is returned
// with a nil error: degradation, not failure.
func (r *Router) Dispatch(ctx context.Context, task *Task) (map[string]any, error) {
	card, ok := r.cards[task.Agent]
	if !ok {
		task.Status = TaskFailed
		return nil, fmt.Errorf("a2a: dispatch %s: %w", task.Agent, ErrUnknownAgent)
	}
	handler, ok := r.unary[task.Agent]
	if !ok {
		task.Status = TaskFailed
		return nil, fmt.Errorf("a2a: dispatch %s: no unary handler registered", task.Agent)
	}

	if card.InputSchema != "" {
		if err := r.registry.ValidateOrReject(card.InputSchema, task.Input); err != nil {
			task.Status = TaskFailed
			return nil, fmt.Errorf("a2a: dispatch %s: input: %w", task.Agent, err)
		}
	}

	task.Status = TaskWorking
	start := time.Now()

	var lastErrs []string
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		out, err := handler(ctx, task.Input)
		if err != nil {
			if ctx.Err() != nil {
				task.Status = TaskFailed
				return nil, ctx.Err()
			}
			lastErrs = []string{err.Error()}
			r.logger.Warn("agent call failed",
				"task_id", task.ID,
				"agent", task.Agent,
				"attempt", attempt,
				"error", err)
			continue
		}

		if card.OutputSchema == "" {
			task.Status = TaskCompleted
			return out, nil
		}
		ok, errs := r.registry.Validate(card.OutputSchema, out)
		if ok {
			task.Status = TaskCompleted
			return out, nil
		}

		lastErrs = errs
		r.logger.Warn("agent output violated schema",
			"task_id", task.ID,
			"agent", task.Agent,
			"schema", card.OutputSchema,
			"attempt", attempt,
			"violations", strings.Join(errs, "; "))
		task.Input[correctionKey] = fmt.Sprintf(
			"Your previous output had schema errors: %s. Fix them and respond again with valid JSON.",
			strings.Join(errs, "; "))
	}

	r.logger.Error("agent exhausted retries, returning safe fallback",
		"task_id", task.ID,
		"agent", task.Agent,
		"schema", card.OutputSchema,
		"latency_ms", time.Since(start).Milliseconds(),
		"violations", strings.Join(lastErrs, "; "))
	task.Status = TaskCompleted
	return SafeFallback(card.OutputSchema), nil
}

// DispatchStreaming runs a streaming task with per-chunk schema enforcement.
// Invalid chunks go through one repair attempt; irreparable chunks are
// dropped and counted. The returned channel is closed when the agent's
// stream ends or ctx is cancelled.
func (r *Router) DispatchStreaming(ctx context.Context, task *Task) (<-chan map[string]any, error) {
	card, ok := r.cards[task.Agent]
	if !ok {
		task.Status = TaskFailed
		return nil, fmt.Errorf("a2a: dispatch %s: %w", task.Agent, ErrUnknownAgent)
	}
	handler, ok := r.stream[task.Agent]
	if !ok {
		task.Status = TaskFailed
		return nil, fmt.Errorf("a2a: dispatch %s: no stream handler registered", task.Agent)
	}

	if card.InputSchema != "" {
		if err := r.registry.ValidateOrReject(card.InputSchema, task.Input); err != nil {
			task.Status = TaskFailed
			return nil, fmt.Errorf("a2a: dispatch %s: input: %w", task.Agent, err)
		}
	}

	src, err := handler(ctx, task.Input)
	if err != nil {
		task.Status = TaskFailed
		return nil, fmt.Errorf("a2a: dispatch %s: %w", task.Agent, err)
	}

	task.Status = TaskWorking
	start := time.Now()
	out := make(chan map[string]any, 8)

	go func() {
		defer close(out)
		var chunkCount, violationCount int

		for chunk := range src {
			valid, errs := r.registry.Validate(card.OutputSchema, chunk)
			if !valid {
				violationCount++
				fixed, salvageable := repairChunk(card.OutputSchema, chunk)
				if !salvageable {
					r.logger.Warn("dropping irreparable chunk",
						"task_id", task.ID,
						"agent", task.Agent,
						"schema", card.OutputSchema,
						"violations", strings.Join(errs, "; "))
					continue
				}
				chunk = fixed
			}

			chunkCount++
			select {
			case out <- chunk:
			case <-ctx.Done():
				task.Status = TaskFailed
				return
			}
		}

		task.Status = TaskCompleted
		r.logger.Info("streaming dispatch complete",
			"task_id", task.ID,
			"agent", task.Agent,
			"chunk_count", chunkCount,
			"violation_count", violationCount,
			"latency_ms", time.Since(start).Milliseconds())
	}()

	return out, nil
}
