// Package gateway is the WebSocket entry point for client sessions. It
// upgrades connections, runs the per-connection read and write pumps, and
// ties each connection to its own orchestrator.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/griotlabs/griot/internal/observe"
	"github.com/griotlabs/griot/pkg/types"
)

const (
	// defaultQueueSize is the outbound queue capacity per connection, the
	// high watermark the streaming controller pushes against.
	defaultQueueSize = 50

	// defaultMaxSessions caps concurrent connections.
	defaultMaxSessions = 200

	// writeIdleTimeout is how long the write pump waits for output before
	// sending a keepalive pong.
	writeIdleTimeout = 30 * time.Second

	// writeTimeout bounds a single frame write.
	writeTimeout = 10 * time.Second

	// shutdownTimeout bounds per-connection cleanup.
	shutdownTimeout = 10 * time.Second
)

// ConversationHandler is the per-session conversation surface the gateway
// routes client messages into. *orchestrator.Orchestrator implements it.
type ConversationHandler interface {
	HandleAudioChunk(ctx context.Context, audioB64 string) error
	HandleTextInput(ctx context.Context, text string) error
	HandleVideoFrame(ctx context.Context, frameB64 string, width, height int) error
	HandleInterrupt(ctx context.Context)
	HandleControl(ctx context.Context, action, value string)
	Restore(ctx context.Context, previousSessionID string) bool
	Shutdown(ctx context.Context)

	// Done is closed when the handler's upstream session ends; the gateway
	// closes the connection in response.
	Done() <-chan struct{}
}

// Factory builds the conversation handler for a new session. The handler
// owns out for writing; on interrupt it may also drain queued messages.
type Factory func(sessionID string, out chan types.ServerMessage) (ConversationHandler, error)

// Server accepts WebSocket sessions and runs their message pumps.
type Server struct {
	factory     Factory
	queueSize   int
	maxSessions int
	logger      *slog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// Option configures a Server.
type Option func(*Server)

// WithQueueSize sets the outbound queue capacity per connection.
func WithQueueSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithMaxSessions caps the number of concurrent sessions.
func WithMaxSessions(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithLogger overrides the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// NewServer creates a gateway server using factory for per-session setup.
func NewServer(factory Factory, opts ...Option) *Server {
	s := &Server{
		factory:     factory,
		queueSize:   defaultQueueSize,
		maxSessions: defaultMaxSessions,
		logger:      slog.Default(),
		conns:       make(map[string]*conn),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts the WebSocket endpoint on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.handleWS)
}

// SessionCount returns the number of active sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// conn is the state of one WebSocket connection.
type conn struct {
	sessionID string
	ws        *websocket.Conn
	out       chan types.ServerMessage
	seq       atomic.Int64
	logger    *slog.Logger
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := newSessionID()

	if !s.reserve(sessionID) {
		s.logger.Warn("session limit reached, rejecting connection",
			"limit", s.maxSessions, "remote", r.RemoteAddr)
		http.Error(w, "session limit reached", http.StatusServiceUnavailable)
		return
	}
	defer s.release(sessionID)

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Origin validation is delegated to the fronting proxy.
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	logger := s.logger.With("session_id", sessionID)
	logger.Info("websocket connected", "remote", r.RemoteAddr)

	observe.DefaultMetrics().ActiveSessions.Add(r.Context(), 1)
	defer observe.DefaultMetrics().ActiveSessions.Add(context.WithoutCancel(r.Context()), -1)

	c := &conn{
		sessionID: sessionID,
		ws:        ws,
		out:       make(chan types.ServerMessage, s.queueSize),
		logger:    logger,
	}

	handler, err := s.factory(sessionID, c.out)
	if err != nil {
		logger.Error("session setup failed", "error", err)
		ws.Close(websocket.StatusInternalError, "session setup failed")
		return
	}
	s.attach(sessionID, c)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client learns its session id before anything else.
	if err := c.write(ctx, types.ServerMessage{
		Type:      types.ServerSessionInit,
		SessionID: sessionID,
	}); err != nil {
		logger.Warn("session init send failed", "error", err)
		s.cleanup(ctx, c, handler)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.readPump(gctx, handler) })
	g.Go(func() error { return c.writePump(gctx) })
	g.Go(func() error {
		select {
		case <-handler.Done():
			return fmt.Errorf("gateway: upstream session ended")
		case <-gctx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && websocket.CloseStatus(err) == -1 && gctx.Err() == nil {
		logger.Info("connection ended", "reason", err)
	}

	s.cleanup(ctx, c, handler)
}

// readPump decodes client messages and routes them to the handler. A
// malformed or unknown message gets a non-fatal error reply; only transport
// failure ends the loop.
func (c *conn) readPump(ctx context.Context, handler ConversationHandler) error {
	for {
		_, data, err := c.ws.Read(ctx)
		if err != nil {
			return err
		}

		var msg types.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.trySendError("bad_message", "message is not valid JSON")
			continue
		}

		switch msg.Type {
		case types.ClientAudioChunk:
			if err := handler.HandleAudioChunk(ctx, msg.Data); err != nil {
				c.logger.Warn("audio chunk rejected", "error", err)
				c.trySendError("bad_audio", "audio chunk could not be processed")
			}
		case types.ClientTextInput:
			if err := handler.HandleTextInput(ctx, msg.Text); err != nil {
				c.logger.Warn("text input rejected", "error", err)
				c.trySendError("bad_input", "text input could not be processed")
			}
		case types.ClientVideoFrame:
			width, height := msg.Width, msg.Height
			if width == 0 {
				width = 640
			}
			if height == 0 {
				height = 480
			}
			if err := handler.HandleVideoFrame(ctx, msg.Data, width, height); err != nil {
				c.logger.Warn("video frame rejected", "error", err)
				c.trySendError("bad_video", "video frame could not be processed")
			}
		case types.ClientInterrupt:
			handler.HandleInterrupt(ctx)
		case types.ClientControl:
			handler.HandleControl(ctx, msg.Action, msg.Value)
		case types.ClientPing:
			c.trySend(types.ServerMessage{Type: types.ServerPong})
		case types.ClientSessionInit:
			if msg.SessionID != "" {
				handler.Restore(ctx, msg.SessionID)
			}
		default:
			c.logger.Warn("unknown client message type", "type", msg.Type)
			c.trySendError("unknown_type", fmt.Sprintf("unknown message type %q", msg.Type))
		}
	}
}

// writePump drains the outbound queue onto the wire, stamping sequence
// numbers at send time. Idle periods produce keepalive pongs. A fatal error
// message closes the connection after delivery.
func (c *conn) writePump(ctx context.Context) error {
	for {
		idle := time.NewTimer(writeIdleTimeout)
		select {
		case msg, ok := <-c.out:
			idle.Stop()
			if !ok {
				return nil
			}
			if err := c.write(ctx, msg); err != nil {
				return err
			}
			if msg.Type == types.ServerError && msg.Fatal {
				return fmt.Errorf("gateway: fatal error delivered")
			}
		case <-idle.C:
			if err := c.write(ctx, types.ServerMessage{Type: types.ServerPong}); err != nil {
				return err
			}
		case <-ctx.Done():
			idle.Stop()
			return ctx.Err()
		}
	}
}

// write stamps the next sequence number and sends one frame.
func (c *conn) write(ctx context.Context, msg types.ServerMessage) error {
	msg.Seq = c.seq.Add(1)
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("gateway: marshal message: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.ws.Write(wctx, websocket.MessageText, data)
}

// trySend enqueues without blocking; protocol replies lose to real output.
func (c *conn) trySend(msg types.ServerMessage) {
	select {
	case c.out <- msg:
	default:
	}
}

func (c *conn) trySendError(code, message string) {
	c.trySend(types.ServerMessage{
		Type:    types.ServerError,
		Code:    code,
		Message: message,
	})
}

func (s *Server) cleanup(ctx context.Context, c *conn, handler ConversationHandler) {
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	handler.Shutdown(sctx)
	c.ws.Close(websocket.StatusNormalClosure, "")
	c.logger.Info("connection cleaned up")
}

// reserve claims a session slot. Reports false when the server is full.
func (s *Server) reserve(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.conns) >= s.maxSessions {
		return false
	}
	s.conns[sessionID] = nil
	return true
}

func (s *Server) attach(sessionID string, c *conn) {
	s.mu.Lock()
	s.conns[sessionID] = c
	s.mu.Unlock()
}

func (s *Server) release(sessionID string) {
	s.mu.Lock()
	delete(s.conns, sessionID)
	s.mu.Unlock()
}

// newSessionID returns a 12-hex-character session identifier.
func newSessionID() string {
	u := uuid.New()
	return fmt.Sprintf("%x", u[:6])
}
