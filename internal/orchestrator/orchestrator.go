// Package orchestrator owns the per-session conversation loop: it connects
// client input to the live model, turns model function calls into sub-agent
// dispatches, and streams the merged result back to the client.
package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/griotlabs/griot/internal/agent"
	"github.com/griotlabs/griot/internal/observe"
	"github.com/griotlabs/griot/internal/session"
	"github.com/griotlabs/griot/internal/stream"
	"github.com/griotlabs/griot/pkg/provider/live"
	"github.com/griotlabs/griot/pkg/types"
)

// State is the orchestrator's conversation phase.
type State string

const (
	// StateIdle means no turn is in progress.
	StateIdle State = "idle"

	// StateListening means user audio is arriving.
	StateListening State = "listening"

	// StateProcessing means a user turn or function call is being handled.
	StateProcessing State = "processing"

	// StateStreaming means model output is flowing to the client.
	StateStreaming State = "streaming"

	// StateInterrupted is the transient phase while a barge-in is handled.
	StateInterrupted State = "interrupted"

	// StateError means the live session terminated abnormally.
	StateError State = "error"
)

// Config carries the orchestrator's model settings.
type Config struct {
	// Model names the live model for the duplex session.
	Model string

	// Voice selects the response voice. Empty uses the model default.
	Voice string
}

// Orchestrator runs one session's conversation.
//
// A single listener goroutine consumes live-model events; function calls are
// handled on their own goroutines so a slow sub-agent never stalls audio
// pass-through. Client-facing handlers are safe for concurrent use.
type Orchestrator struct {
	sessionID  string
	provider   live.Provider
	dispatcher *agent.Dispatcher
	memory     *session.Manager
	controller *stream.Controller
	cfg        Config
	logger     *slog.Logger

	mu         sync.Mutex
	state      State
	turnID     string
	turnText   strings.Builder
	sess       live.Session
	baseCtx    context.Context
	taskCtx    context.Context
	taskCancel context.CancelFunc

	// epoch advances on every interrupt; in-flight work from an earlier
	// epoch is stale and must not reach the client.
	epoch atomic.Int64

	tasks sync.WaitGroup
	done  chan struct{}
}

// NewOrchestrator creates the orchestrator for one session. Call
// [Orchestrator.Start] before any handler.
func NewOrchestrator(sessionID string, provider live.Provider, dispatcher *agent.Dispatcher, memory *session.Manager, controller *stream.Controller, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		sessionID:  sessionID,
		provider:   provider,
		dispatcher: dispatcher,
		memory:     memory,
		controller: controller,
		cfg:        cfg,
		logger:     logger.With("session_id", sessionID),
		state:      StateIdle,
		done:       make(chan struct{}),
	}
}

// Start creates the session record, opens the live-model session, and begins
// listening for model events. ctx bounds the whole session.
func (o *Orchestrator) Start(ctx context.Context) error {
	start := time.Now()

	o.memory.Create(ctx)

	sess, err := o.provider.Connect(ctx, live.Config{
		Model:             o.cfg.Model,
		SystemInstruction: systemInstruction,
		Voice:             o.cfg.Voice,
		Tools:             toolDeclarations(),
	})
	if err != nil {
		return fmt.Errorf("orchestrator: connect live session: %w", err)
	}

	o.mu.Lock()
	o.sess = sess
	o.baseCtx = ctx
	o.taskCtx, o.taskCancel = context.WithCancel(ctx)
	o.state = StateIdle
	o.mu.Unlock()

	go o.listen(ctx, sess)

	o.logger.Info("orchestrator initialized", "latency_ms", time.Since(start).Milliseconds())
	return nil
}

// Restore loads a previous session's memory for conversational continuity.
// Reports whether the session was found.
func (o *Orchestrator) Restore(ctx context.Context, previousSessionID string) bool {
	restored := o.memory.Load(ctx, previousSessionID)
	if restored {
		o.logger.Info("session restored", "previous_session_id", previousSessionID)
	}
	return restored
}

// State returns the current conversation phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// HandleAudioChunk forwards one base64-encoded PCM chunk of user audio to the
// live model. A new turn id is assigned lazily when speech starts.
func (o *Orchestrator) HandleAudioChunk(ctx context.Context, audioB64 string) error {
	o.mu.Lock()
	startedListening := false
	if o.state == StateIdle || o.state == StateListening {
		startedListening = o.state == StateIdle
		o.state = StateListening
		if o.turnID == "" {
			o.turnID = newTurnID()
		}
	}
	sess := o.sess
	o.mu.Unlock()

	if startedListening {
		o.controller.SendStatus(ctx, "orchestrator", string(StateListening), "The storyteller is listening")
	}
	if sess == nil {
		return fmt.Errorf("orchestrator: session not started")
	}
	pcm, err := base64.StdEncoding.DecodeString(audioB64)
	if err != nil {
		return fmt.Errorf("orchestrator: decode audio chunk: %w", err)
	}
	return sess.SendAudio(pcm)
}

// HandleVideoFrame forwards a camera frame to the live model so it can see
// what the user is showing: book pages, objects, gestures.
func (o *Orchestrator) HandleVideoFrame(ctx context.Context, frameB64 string, width, height int) error {
	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()

	if sess == nil {
		return fmt.Errorf("orchestrator: session not started")
	}
	frame, err := base64.StdEncoding.DecodeString(frameB64)
	if err != nil {
		return fmt.Errorf("orchestrator: decode video frame: %w", err)
	}
	return sess.SendVideoFrame(frame, width, height)
}

// HandleTextInput records a typed user turn and sends it to the live model.
func (o *Orchestrator) HandleTextInput(ctx context.Context, text string) error {
	turnID := newTurnID()

	o.mu.Lock()
	o.turnID = turnID
	o.state = StateProcessing
	sess := o.sess
	o.mu.Unlock()

	o.logger.Info("text input", "turn_id", turnID)
	o.controller.SendStatus(ctx, "orchestrator", string(StateProcessing), "The storyteller is thinking")
	o.memory.SaveTurn(ctx, types.ConversationTurn{
		TurnID:  turnID,
		Role:    "user",
		Content: text,
	})

	if sess == nil {
		return fmt.Errorf("orchestrator: session not started")
	}
	return sess.SendText(text)
}

// HandleInterrupt processes a barge-in: cancel in-flight agent work, discard
// buffered output, and start a fresh turn. Stale chunks from cancelled work
// are dropped by the epoch check on emit.
func (o *Orchestrator) HandleInterrupt(ctx context.Context) {
	o.mu.Lock()
	interruptedTurn := o.turnID
	o.state = StateInterrupted
	o.epoch.Add(1)
	if o.taskCancel != nil {
		o.taskCancel()
		o.taskCtx, o.taskCancel = context.WithCancel(o.baseCtx)
	}
	o.turnText.Reset()
	sess := o.sess
	o.state = StateListening
	o.turnID = newTurnID()
	o.mu.Unlock()

	o.logger.Info("user interrupted", "turn_id", interruptedTurn)

	if sess != nil {
		if err := sess.SendInterrupt(); err != nil {
			o.logger.Warn("upstream interrupt failed", "error", err)
		}
	}
	o.controller.SendInterrupted(ctx)
}

// HandleControl applies a session preference change.
func (o *Orchestrator) HandleControl(ctx context.Context, action, value string) {
	o.logger.Info("control", "action", action, "value", value)

	switch action {
	case "set_language":
		o.memory.UpdatePreferences(ctx, map[string]string{"language": value})
	case "set_age_group":
		o.memory.UpdatePreferences(ctx, map[string]string{"age_group": value})
	case "set_region":
		o.memory.UpdatePreferences(ctx, map[string]string{"region": value})
	default:
		o.logger.Warn("unknown control action", "action", action)
	}
}

// Shutdown cancels active work, closes the live session, and writes the final
// session state. ctx bounds how long to wait for in-flight work.
func (o *Orchestrator) Shutdown(ctx context.Context) {
	o.logger.Info("orchestrator shutting down")

	o.mu.Lock()
	cancel := o.taskCancel
	sess := o.sess
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if sess != nil {
		if err := sess.Close(); err != nil {
			o.logger.Warn("live session close failed", "error", err)
		}
	}

	finished := make(chan struct{})
	go func() {
		o.tasks.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
	}
	select {
	case <-o.done:
	case <-ctx.Done():
	}

	o.memory.Finalize(ctx)
}

// Done is closed when the live-event listener exits, whether by Shutdown or
// by an upstream failure.
func (o *Orchestrator) Done() <-chan struct{} {
	return o.done
}

// ── Live event loop ──────────────────────────────────────────────────────────

// listen consumes the live session's events until the channel closes.
func (o *Orchestrator) listen(ctx context.Context, sess live.Session) {
	defer close(o.done)

	for ev := range sess.Events() {
		switch ev.Type {
		case live.EventText:
			o.beginStreaming(ctx, "orchestrator")
			o.mu.Lock()
			o.turnText.WriteString(ev.Text)
			o.mu.Unlock()
			o.controller.SendTextChunk(ctx, ev.Text, "orchestrator")

		case live.EventAudio:
			o.beginStreaming(ctx, "orchestrator")
			o.controller.SendAudioChunk(ctx, base64.StdEncoding.EncodeToString(ev.Audio))

		case live.EventFunctionCall:
			o.mu.Lock()
			announce := o.state != StateProcessing
			o.state = StateProcessing
			tctx := o.taskCtx
			o.mu.Unlock()
			if announce {
				o.controller.SendStatus(ctx, "orchestrator", string(StateProcessing), "The storyteller is thinking")
			}
			o.tasks.Add(1)
			go func(ev live.Event) {
				defer o.tasks.Done()
				o.handleFunctionCall(tctx, ev)
			}(ev)

		case live.EventInterrupted:
			o.HandleInterrupt(ctx)

		case live.EventInputTranscription:
			o.logger.Debug("input transcription", "text", ev.Text)

		case live.EventOutputTranscription:
			o.logger.Debug("output transcription", "text", ev.Text)

		case live.EventTurnComplete:
			o.finishTurn(ctx)

		case live.EventError:
			o.logger.Error("live model error", "error", ev.Err)
			o.controller.SendError(ctx, "upstream_error",
				"The storyteller had trouble responding. Please try again.", false)
			o.setState(StateIdle)
		}
	}

	if err := sess.Err(); err != nil && ctx.Err() == nil {
		o.setState(StateError)
		o.logger.Error("live session terminated", "error", err)
		o.controller.SendError(ctx, "upstream_error",
			"The connection to the storyteller was lost.", true)
	}
}

// finishTurn closes out the model's turn: flush remaining text, emit
// turn_end, and record the spoken response in memory.
func (o *Orchestrator) finishTurn(ctx context.Context) {
	o.mu.Lock()
	turnID := o.turnID
	text := strings.TrimSpace(o.turnText.String())
	o.turnText.Reset()
	o.turnID = ""
	o.state = StateIdle
	o.mu.Unlock()

	o.controller.SendTurnEnd(ctx)

	if text != "" {
		o.memory.SaveTurn(ctx, types.ConversationTurn{
			TurnID:    turnID,
			Role:      "agent",
			Content:   text,
			AgentName: "orchestrator",
		})
	}
}

// handleFunctionCall dispatches one model tool invocation to the sub-agents
// and always returns a function response upstream, so the model is never left
// waiting on a failed dispatch.
func (o *Orchestrator) handleFunctionCall(ctx context.Context, ev live.Event) {
	start := time.Now()
	startEpoch := o.epoch.Load()

	o.mu.Lock()
	turnID := o.turnID
	o.mu.Unlock()

	o.logger.Info("function call", "name", ev.FunctionName, "turn_id", turnID)
	o.controller.SendFunctionAck(ctx, ev.FunctionName)

	payload := ev.FunctionArgs
	if payload == nil {
		payload = map[string]any{}
	}
	req := types.AgentRequest{
		Intent:         intentFor(ev.FunctionName),
		Payload:        payload,
		SessionContext: o.memory.ContextSummary(),
		TurnID:         turnID,
	}
	culture, _ := payload["culture"].(string)

	cacheKey := culturalCacheKey(ev.FunctionName, payload)
	if cacheKey != "" {
		if cached, ok := o.memory.CachedContent(ctx, cacheKey); ok {
			o.respondFromCache(ctx, ev, turnID, cached, start)
			return
		}
	}

	var result strings.Builder
	agentName := "orchestrator"
	for resp := range o.dispatcher.Dispatch(ctx, req) {
		if o.epoch.Load() != startEpoch {
			continue // drain stale chunks, never surface them
		}
		if resp.AgentName != "" {
			agentName = resp.AgentName
		}
		if resp.Content != "" {
			o.beginStreaming(ctx, resp.AgentName)
			result.WriteString(resp.Content)
			o.controller.SendTextChunk(ctx, resp.Content, resp.AgentName)
		}
		if resp.VisualMoment != "" {
			moment := resp.VisualMoment
			o.mu.Lock()
			imgCtx := o.baseCtx
			o.mu.Unlock()
			o.tasks.Add(1)
			go func() {
				defer o.tasks.Done()
				o.generateImage(imgCtx, moment, culture)
			}()
		}
	}

	text := result.String()
	if cacheKey != "" && o.epoch.Load() == startEpoch && strings.TrimSpace(text) != "" {
		o.memory.CacheContent(ctx, cacheKey, text, culturalCacheTTL)
	}
	if o.epoch.Load() == startEpoch && strings.TrimSpace(text) != "" {
		o.memory.SaveTurn(ctx, types.ConversationTurn{
			TurnID:    turnID,
			Role:      "agent",
			Content:   text,
			AgentName: agentName,
		})
	}

	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()

	status := "ok"
	if strings.TrimSpace(text) == "" {
		status = "empty"
	}
	if sess != nil {
		err := sess.SendFunctionResponse(ev.FunctionID, ev.FunctionName, map[string]any{"result": text})
		if err != nil {
			status = "error"
			o.logger.Warn("function response failed", "name", ev.FunctionName, "error", err)
		}
	}

	elapsed := time.Since(start)
	observe.DefaultMetrics().RecordFunctionCall(ctx, ev.FunctionName, status)
	observe.DefaultMetrics().DispatchDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("intent", req.Intent)))

	o.logger.Info("function call complete",
		"name", ev.FunctionName,
		"turn_id", turnID,
		"latency_ms", elapsed.Milliseconds())
}

// respondFromCache serves a cultural-context lookup from the content cache,
// streaming the stored text and answering the model without a dispatch.
func (o *Orchestrator) respondFromCache(ctx context.Context, ev live.Event, turnID, cached string, start time.Time) {
	o.beginStreaming(ctx, "cultural")
	o.controller.SendTextChunk(ctx, cached, "cultural")
	o.memory.SaveTurn(ctx, types.ConversationTurn{
		TurnID:    turnID,
		Role:      "agent",
		Content:   cached,
		AgentName: "cultural",
	})

	o.mu.Lock()
	sess := o.sess
	o.mu.Unlock()

	status := "cached"
	if sess != nil {
		if err := sess.SendFunctionResponse(ev.FunctionID, ev.FunctionName, map[string]any{"result": cached}); err != nil {
			status = "error"
			o.logger.Warn("function response failed", "name", ev.FunctionName, "error", err)
		}
	}

	elapsed := time.Since(start)
	observe.DefaultMetrics().RecordFunctionCall(ctx, ev.FunctionName, status)
	observe.DefaultMetrics().DispatchDuration.Record(ctx, elapsed.Seconds(),
		metric.WithAttributes(observe.Attr("intent", intentFor(ev.FunctionName))))

	o.logger.Info("function call served from cache",
		"name", ev.FunctionName,
		"turn_id", turnID,
		"latency_ms", elapsed.Milliseconds())
}

// generateImage runs illustration generation off the conversation's critical
// path. It runs under the session context rather than the turn's, so an
// interrupt does not discard a nearly finished illustration; the image still
// delivers when ready. Failures are silent: an image is a bonus, never a
// blocker.
func (o *Orchestrator) generateImage(ctx context.Context, scene, culture string) {
	url, ok := o.dispatcher.GenerateImage(ctx, scene, culture)
	if !ok {
		return
	}
	o.controller.SendImage(ctx, url, scene)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// beginStreaming flips into the streaming state, announcing turn_start with
// the current speaker whenever streaming begins or resumes after a processing
// gap. Consecutive chunks of an uninterrupted stream are no-ops.
func (o *Orchestrator) beginStreaming(ctx context.Context, agent string) {
	o.mu.Lock()
	starting := o.state != StateStreaming
	o.state = StateStreaming
	if starting && o.turnID == "" {
		o.turnID = newTurnID()
	}
	turnID := o.turnID
	o.mu.Unlock()

	if starting {
		o.controller.SendTurnStart(ctx, turnID, agent)
	}
}

// culturalCacheTTL bounds how long a cultural-context answer is reused.
const culturalCacheTTL = time.Hour

// culturalCacheKey returns the content-cache key for a cultural context
// lookup, or "" when the call is not cacheable.
func culturalCacheKey(functionName string, payload map[string]any) string {
	if functionName != "get_cultural_context" {
		return ""
	}
	topic, _ := payload["topic"].(string)
	if topic == "" {
		return ""
	}
	culture, _ := payload["culture"].(string)
	return fmt.Sprintf("cultural:%s:%s", strings.ToLower(culture), strings.ToLower(topic))
}

// intentFor maps a live-model function name to a dispatcher intent.
func intentFor(functionName string) string {
	switch functionName {
	case "tell_story", "pose_riddle", "generate_scene_image", "get_cultural_context":
		return functionName
	default:
		return "unknown"
	}
}

// newTurnID returns a short unique turn identifier.
func newTurnID() string {
	u := uuid.New()
	return fmt.Sprintf("turn_%x", u[:4])
}
