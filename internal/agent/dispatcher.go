package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/griotlabs/griot/internal/a2a"
	"github.com/griotlabs/griot/internal/resilience"
	"github.com/griotlabs/griot/internal/schema"
	"github.com/griotlabs/griot/pkg/types"
)

// In-character degradation lines. The conversation never surfaces a raw
// error; the storyteller stays in persona while the log records the cause.
const (
	gatherThoughts    = "I need a moment to gather my thoughts..."
	differentApproach = "Let me try a different approach..."
	paintThatScene    = "Let me paint that scene for you..."
)

// Dispatcher routes intents from the orchestrator to sub-agents, runs story
// output through cultural grounding, and guards every upstream with a
// circuit breaker.
type Dispatcher struct {
	router   *a2a.Router
	story    *StoryAgent
	riddle   *RiddleAgent
	cultural *CulturalValidator
	visual   *VisualAgent

	breakers map[string]*resilience.CircuitBreaker

	agentTimeout    time.Duration
	culturalTimeout time.Duration
	imageTimeout    time.Duration

	logger *slog.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeouts overrides the per-call ceilings: agent is the unary dispatch
// budget, cultural the per-chunk validation ceiling, image the illustration
// budget. Zero values keep the defaults (5s, 2s, 30s).
func WithTimeouts(agent, cultural, image time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if agent > 0 {
			d.agentTimeout = agent
		}
		if cultural > 0 {
			d.culturalTimeout = cultural
		}
		if image > 0 {
			d.imageTimeout = image
		}
	}
}

// WithDispatcherLogger overrides the dispatcher's logger.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.logger = l }
}

// NewDispatcher wires the sub-agents into the A2A router and returns the
// dispatcher the orchestrator talks to.
func NewDispatcher(router *a2a.Router, story *StoryAgent, riddle *RiddleAgent, cultural *CulturalValidator, visual *VisualAgent, opts ...DispatcherOption) (*Dispatcher, error) {
	d := &Dispatcher{
		router:   router,
		story:    story,
		riddle:   riddle,
		cultural: cultural,
		visual:   visual,
		breakers: map[string]*resilience.CircuitBreaker{
			"story":    resilience.NewCircuitBreaker("story", 3, 60*time.Second),
			"riddle":   resilience.NewCircuitBreaker("riddle", 3, 60*time.Second),
			"cultural": resilience.NewCircuitBreaker("cultural", 5, 30*time.Second),
			"visual":   resilience.NewCircuitBreaker("visual", 3, 120*time.Second),
		},
		agentTimeout:    5 * time.Second,
		culturalTimeout: 2 * time.Second,
		imageTimeout:    30 * time.Second,
		logger:          slog.Default(),
	}
	for _, o := range opts {
		o(d)
	}

	if err := errors.Join(
		router.RegisterStream("story_agent", d.storyStreamHandler),
		router.RegisterUnary("riddle_agent", riddle.GeneratePayload),
		router.RegisterUnary("cultural_grounding", d.culturalHandler),
		router.RegisterUnary("visual_agent", visual.Execute),
	); err != nil {
		return nil, err
	}
	return d, nil
}

// BreakerStatus returns a snapshot of every breaker, for the stats endpoint.
func (d *Dispatcher) BreakerStatus() []resilience.Status {
	names := []string{"story", "riddle", "cultural", "visual"}
	out := make([]resilience.Status, 0, len(names))
	for _, name := range names {
		out = append(out, d.breakers[name].Status())
	}
	return out
}

// Dispatch routes a request to the agent for its intent and returns the
// validated response stream. The channel is closed after the final marker.
func (d *Dispatcher) Dispatch(ctx context.Context, req types.AgentRequest) <-chan types.AgentResponse {
	out := make(chan types.AgentResponse, 8)
	go func() {
		defer close(out)
		start := time.Now()

		switch req.Intent {
		case "tell_story":
			d.dispatchStory(ctx, req, out)
		case "pose_riddle":
			d.dispatchRiddle(ctx, req, out)
		case "get_cultural_context":
			for resp := range d.cultural.Generate(ctx, req) {
				if !emit(ctx, out, resp) {
					return
				}
			}
		case "generate_scene_image":
			// Generation itself runs in the background; acknowledge now.
			emit(ctx, out, types.AgentResponse{
				AgentName:    "visual",
				Content:      paintThatScene,
				IsFinal:      true,
				VisualMoment: payloadString(req.Payload, "scene_description"),
			})
		default:
			// Unknown intent: empty response so the live model handles it.
			emit(ctx, out, types.AgentResponse{AgentName: "orchestrator", IsFinal: true})
		}

		d.logger.Info("dispatch complete",
			"intent", req.Intent,
			"turn_id", req.TurnID,
			"latency_ms", time.Since(start).Milliseconds())
	}()
	return out
}

// dispatchStory streams schema-enforced story chunks through cultural
// grounding.
func (d *Dispatcher) dispatchStory(ctx context.Context, req types.AgentRequest, out chan<- types.AgentResponse) {
	breaker := d.breakers["story"]
	if breaker.IsOpen() {
		fb := a2a.SafeFallback(schema.StoryChunk)
		emit(ctx, out, types.AgentResponse{
			AgentName: "story",
			Content:   payloadString(fb, "text"),
			IsFinal:   true,
		})
		return
	}

	task := a2a.NewTask("story_agent", req.Intent, withPriorContext(req.Payload, req.SessionContext))
	chunks, err := d.router.DispatchStreaming(ctx, task)
	if err != nil {
		breaker.RecordFailure()
		d.logger.Error("story dispatch failed", "task_id", task.ID, "error", err)
		emit(ctx, out, types.AgentResponse{
			AgentName: "story",
			Content:   differentApproach,
			IsFinal:   true,
		})
		return
	}

	delivered := 0
	for chunk := range chunks {
		validated := d.ground(ctx, chunk)
		resp := types.AgentResponse{
			AgentName:    "story",
			Content:      payloadString(validated, "text"),
			VisualMoment: payloadString(chunk, "visual_moment"),
			Metadata:     map[string]any{"confidence": validated["confidence"]},
		}
		if corrections, ok := validated["corrections"]; ok {
			resp.Metadata["corrections"] = corrections
		}
		if !emit(ctx, out, resp) {
			return
		}
		delivered++
	}

	if delivered > 0 {
		breaker.RecordSuccess()
	}
	emit(ctx, out, types.AgentResponse{AgentName: "story", IsFinal: true})
}

// ground runs one StoryChunk document through cultural validation with a
// tight ceiling. A tripped breaker or a slow validation passes the chunk
// through at reduced confidence rather than stalling the stream.
func (d *Dispatcher) ground(ctx context.Context, chunk map[string]any) map[string]any {
	passthrough := map[string]any{
		"text":       payloadString(chunk, "text"),
		"confidence": 0.5,
	}

	breaker := d.breakers["cultural"]
	if breaker.IsOpen() {
		return passthrough
	}

	vctx, cancel := context.WithTimeout(ctx, d.culturalTimeout)
	defer cancel()

	done := make(chan map[string]any, 1)
	go func() {
		task := a2a.NewTask("cultural_grounding", "validate_chunk", chunk)
		validated, err := d.router.Dispatch(vctx, task)
		if err != nil {
			done <- nil
			return
		}
		done <- validated
	}()

	select {
	case validated := <-done:
		if validated == nil {
			breaker.RecordFailure()
			return passthrough
		}
		breaker.RecordSuccess()
		return validated
	case <-vctx.Done():
		breaker.RecordFailure()
		d.logger.Warn("cultural validation timed out, passing chunk through")
		return passthrough
	}
}

// dispatchRiddle runs the unary schema-enforced riddle dispatch and streams
// the resulting payload section by section.
func (d *Dispatcher) dispatchRiddle(ctx context.Context, req types.AgentRequest, out chan<- types.AgentResponse) {
	breaker := d.breakers["riddle"]

	payload := a2a.SafeFallback(schema.RiddlePayload)
	if !breaker.IsOpen() {
		rctx, cancel := context.WithTimeout(ctx, d.agentTimeout)
		defer cancel()

		task := a2a.NewTask("riddle_agent", req.Intent, withPriorContext(req.Payload, req.SessionContext))
		result, err := d.router.Dispatch(rctx, task)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			breaker.RecordFailure()
			d.logger.Warn("riddle agent timed out", "task_id", task.ID)
			emit(ctx, out, types.AgentResponse{
				AgentName: "riddle",
				Content:   gatherThoughts,
				IsFinal:   true,
			})
			return
		case err != nil:
			breaker.RecordFailure()
			d.logger.Error("riddle dispatch failed", "task_id", task.ID, "error", err)
			emit(ctx, out, types.AgentResponse{
				AgentName: "riddle",
				Content:   differentApproach,
				IsFinal:   true,
			})
			return
		default:
			breaker.RecordSuccess()
			payload = result
		}
	}

	for _, section := range []string{"opening", "riddle", "hints", "answer", "explanation"} {
		content := riddleSectionText(payload, section)
		if content == "" {
			continue
		}
		if !emit(ctx, out, types.AgentResponse{
			AgentName: "riddle",
			Content:   content,
			Metadata:  map[string]any{"section": section},
		}) {
			return
		}
	}
	emit(ctx, out, types.AgentResponse{AgentName: "riddle", IsFinal: true})
}

// withPriorContext copies payload with the session's conversation summary
// under prior_context, so sub-agents can keep continuity across turns. The
// original payload is never mutated; an empty summary passes it through
// untouched.
func withPriorContext(payload map[string]any, sessionContext string) map[string]any {
	if sessionContext == "" {
		return payload
	}
	enriched := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		enriched[k] = v
	}
	enriched["prior_context"] = sessionContext
	return enriched
}

// riddleSectionText renders one RiddlePayload section as presentable text.
func riddleSectionText(payload map[string]any, section string) string {
	if section == "hints" {
		hints, _ := payload["hints"].([]any)
		var sb []byte
		for i, h := range hints {
			s, _ := h.(string)
			if s == "" {
				continue
			}
			if i > 0 {
				sb = append(sb, '\n')
			}
			sb = append(sb, []byte(s)...)
		}
		return string(sb)
	}
	return payloadString(payload, section)
}

// GenerateImage runs one illustration through the visual agent. Returns the
// public URL, or ok=false when generation was skipped or failed. Never
// blocks longer than the image ceiling; call it from a background goroutine.
func (d *Dispatcher) GenerateImage(ctx context.Context, sceneDescription, culture string) (url string, ok bool) {
	breaker := d.breakers["visual"]
	if breaker.IsOpen() {
		return "", false
	}

	if culture == "" {
		culture = "African"
	}
	input := map[string]any{
		"scene_description": sceneDescription,
		"culture":           culture,
	}

	// Validation is advisory here: a malformed request still gets a
	// generation attempt. Images are a bonus, not a contract.
	if valid, errs := schema.Default().Validate(schema.ImageRequest, input); !valid {
		d.logger.Warn("image request failed validation, generating anyway",
			"violations", strings.Join(errs, "; "))
	}

	ictx, cancel := context.WithTimeout(ctx, d.imageTimeout)
	defer cancel()

	result, err := d.visual.Execute(ictx, input)
	if err != nil {
		breaker.RecordFailure()
		d.logger.Warn("image generation failed", "error", err)
		return "", false
	}
	if payloadString(result, "status") != "success" {
		// Skipped is a configuration state, not an upstream failure.
		if payloadString(result, "status") == "failed" {
			breaker.RecordFailure()
		}
		return "", false
	}
	breaker.RecordSuccess()
	return payloadString(result, "url"), true
}

// storyStreamHandler adapts the story agent's response stream into
// StoryChunk documents for schema-enforced dispatch. The final text chunk
// carries is_final; the empty marker itself is not a document.
func (d *Dispatcher) storyStreamHandler(ctx context.Context, input map[string]any) (<-chan map[string]any, error) {
	req := types.AgentRequest{
		Intent:         "tell_story",
		Payload:        input,
		SessionContext: payloadString(input, "prior_context"),
	}
	culture := payloadString(input, "culture")
	if culture == "" {
		culture = "african"
	}

	out := make(chan map[string]any, 8)
	go func() {
		defer close(out)

		var held map[string]any
		index := 0
		flush := func(isFinal bool) bool {
			if held == nil {
				return true
			}
			held["is_final"] = isFinal
			select {
			case out <- held:
				held = nil
				return true
			case <-ctx.Done():
				return false
			}
		}

		for resp := range d.story.Generate(ctx, req) {
			if resp.IsFinal {
				if !flush(true) {
					return
				}
				continue
			}
			if resp.Content == "" {
				continue
			}
			if !flush(false) {
				return
			}
			held = map[string]any{
				"text":        resp.Content,
				"culture":     culture,
				"chunk_index": index,
			}
			if resp.VisualMoment != "" {
				held["visual_moment"] = resp.VisualMoment
			}
			index++
		}
		flush(true)
	}()
	return out, nil
}

// culturalHandler adapts ValidateChunk for unary dispatch.
func (d *Dispatcher) culturalHandler(ctx context.Context, input map[string]any) (map[string]any, error) {
	return d.cultural.ValidateChunk(ctx, input), nil
}
