// Package stream implements the outbound streaming controller: it buffers
// model text into sentence-sized chunks, interleaves audio and control
// messages, and applies backpressure against a bounded output queue.
package stream

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/griotlabs/griot/internal/observe"
	"github.com/griotlabs/griot/pkg/types"
)

// enqueueWait is how long a blocked enqueue waits before dropping a
// droppable message.
const enqueueWait = 5 * time.Second

// forceFlushLength forces a flush when the text buffer grows past this many
// bytes without reaching a sentence boundary.
const forceFlushLength = 200

// sentenceEnders mark natural flush points for smooth spoken delivery.
var sentenceEnders = []string{".", "!", "?", "…", "\n"}

// Controller manages one session's output stream.
//
// Text is buffered until a sentence boundary so the client receives natural
// reading units rather than raw model tokens. Messages carry no Seq; the
// session's write pump stamps sequence numbers at send time. All methods are
// safe for concurrent use.
type Controller struct {
	out    chan types.ServerMessage
	logger *slog.Logger

	mu          sync.Mutex
	textBuffer  strings.Builder
	turnID      string
	chunksSent  int
	streamStart time.Time

	dropped atomic.Int64
}

// NewController creates a controller writing to out, which is serviced by
// the session's write pump. The controller also reads from out on interrupt,
// to discard output queued for the abandoned turn.
func NewController(out chan types.ServerMessage, sessionID string, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		out:    out,
		logger: logger.With("session_id", sessionID),
	}
}

// SendTextChunk buffers text and flushes at sentence boundaries, or when the
// buffer grows too large.
func (c *Controller) SendTextChunk(ctx context.Context, text, agent string) {
	c.mu.Lock()
	c.textBuffer.WriteString(text)
	buffered := c.textBuffer.String()
	c.mu.Unlock()

	trimmed := strings.TrimRight(buffered, " \t\r")
	flush := len(buffered) > forceFlushLength
	if !flush {
		for _, ender := range sentenceEnders {
			if strings.HasSuffix(trimmed, ender) {
				flush = true
				break
			}
		}
	}
	if flush {
		c.flushText(ctx, agent)
	}
}

// flushText drains the buffer into one text_chunk message. Whitespace-only
// buffers are discarded silently.
func (c *Controller) flushText(ctx context.Context, agent string) {
	c.mu.Lock()
	text := c.textBuffer.String()
	c.textBuffer.Reset()
	if strings.TrimSpace(text) == "" {
		c.mu.Unlock()
		return
	}
	if c.chunksSent == 0 {
		c.streamStart = time.Now()
	}
	c.chunksSent++
	turnID := c.turnID
	c.mu.Unlock()

	c.enqueue(ctx, types.ServerMessage{
		Type:   types.ServerTextChunk,
		Text:   text,
		Agent:  agent,
		TurnID: turnID,
	}, true)
}

// SendAudioChunk forwards one base64-encoded audio chunk.
func (c *Controller) SendAudioChunk(ctx context.Context, audioB64 string) {
	c.enqueue(ctx, types.ServerMessage{Type: types.ServerAudioChunk, Data: audioB64}, true)
}

// SendTurnStart announces a new agent turn. Subsequent text chunks are
// tagged with turnID until the turn ends.
func (c *Controller) SendTurnStart(ctx context.Context, turnID, agent string) {
	c.mu.Lock()
	c.turnID = turnID
	c.mu.Unlock()
	c.enqueue(ctx, types.ServerMessage{Type: types.ServerTurnStart, TurnID: turnID, Agent: agent}, true)
}

// SendTurnEnd flushes any buffered text, signals the end of the turn, and
// logs per-turn streaming metrics. Turn ends are never dropped.
func (c *Controller) SendTurnEnd(ctx context.Context) {
	c.flushText(ctx, "orchestrator")

	c.mu.Lock()
	turnID := c.turnID
	chunks := c.chunksSent
	start := c.streamStart
	c.turnID = ""
	c.chunksSent = 0
	c.streamStart = time.Time{}
	c.mu.Unlock()

	c.enqueue(ctx, types.ServerMessage{Type: types.ServerTurnEnd, TurnID: turnID}, false)

	if !start.IsZero() {
		elapsed := time.Since(start)
		observe.DefaultMetrics().TurnDuration.Record(ctx, elapsed.Seconds())
		c.logger.Info("turn complete",
			"turn_id", turnID,
			"chunks_sent", chunks,
			"latency_ms", elapsed.Milliseconds())
	}
}

// SendInterrupted tells the client the model stopped for user speech. The
// text buffer is cleared and queued output is discarded: a half-spoken
// sentence must not surface after the barge-in.
func (c *Controller) SendInterrupted(ctx context.Context) {
	c.mu.Lock()
	c.textBuffer.Reset()
	turnID := c.turnID
	c.mu.Unlock()

	discarded := 0
	for {
		select {
		case <-c.out:
			discarded++
		default:
			if discarded > 0 {
				c.logger.Debug("discarded queued output on interrupt", "count", discarded)
			}
			c.enqueue(ctx, types.ServerMessage{Type: types.ServerInterrupted, TurnID: turnID}, true)
			return
		}
	}
}

// SendStatus notifies the client of an agent state change, for UX feedback
// such as "the storyteller is thinking". detail is an optional display string.
func (c *Controller) SendStatus(ctx context.Context, agent, state, detail string) {
	c.enqueue(ctx, types.ServerMessage{Type: types.ServerStatus, Agent: agent, State: state, Detail: detail}, true)
}

// SendError reports an error to the client. Errors are never dropped.
func (c *Controller) SendError(ctx context.Context, code, message string, fatal bool) {
	c.enqueue(ctx, types.ServerMessage{
		Type:    types.ServerError,
		Code:    code,
		Message: message,
		Fatal:   fatal,
	}, false)
}

// SendImage delivers a generated illustration's URL.
func (c *Controller) SendImage(ctx context.Context, url, scene string) {
	c.enqueue(ctx, types.ServerMessage{
		Type:  types.ServerImage,
		URL:   url,
		Scene: scene,
		Agent: "visual",
	}, true)
	c.logger.Info("image sent to client", "url", url)
}

// SendFunctionAck tells the client a tool invocation was accepted.
func (c *Controller) SendFunctionAck(ctx context.Context, name string) {
	c.enqueue(ctx, types.ServerMessage{Type: types.ServerFunctionAck, Name: name}, true)
}

// Dropped returns how many messages have been dropped under backpressure.
func (c *Controller) Dropped() int64 {
	return c.dropped.Load()
}

// enqueue delivers msg to the output queue with backpressure handling: a full
// queue is waited on briefly, then droppable messages are discarded. Control
// messages (turn_end, error) wait until delivered or the session dies.
func (c *Controller) enqueue(ctx context.Context, msg types.ServerMessage, droppable bool) {
	select {
	case c.out <- msg:
		return
	default:
	}

	c.logger.Warn("output queue full, applying backpressure", "type", msg.Type)

	if !droppable {
		select {
		case c.out <- msg:
		case <-ctx.Done():
		}
		return
	}

	timer := time.NewTimer(enqueueWait)
	defer timer.Stop()
	select {
	case c.out <- msg:
	case <-timer.C:
		c.dropped.Add(1)
		observe.DefaultMetrics().RecordQueueDrop(ctx, string(msg.Type))
		c.logger.Error("output queue timeout, dropping message", "type", msg.Type)
	case <-ctx.Done():
	}
}
