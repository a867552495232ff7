package gemini_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/griotlabs/griot/pkg/provider/live"
	"github.com/griotlabs/griot/pkg/provider/live/gemini"
)

// ── Helpers ───────────────────────────────────────────────────────────────────

// wsURL converts an httptest server HTTP URL to a WebSocket URL.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// startLiveServer launches a test WebSocket server. The handler function
// receives the accepted *websocket.Conn. The server is automatically closed
// when the test finishes.
func startLiveServer(t *testing.T, handler func(conn *websocket.Conn, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			InsecureSkipVerify: true,
		})
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "done")
		handler(conn, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// readJSON reads one WebSocket text frame and decodes it into v.
func readJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("readJSON: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("readJSON unmarshal: %v", err)
	}
}

// writeJSON marshals v and sends it as a text frame.
func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	data, _ := json.Marshal(v)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Logf("writeJSON: %v (may be expected on close)", err)
	}
}

// sendSetupComplete sends the server-side setupComplete ack.
func sendSetupComplete(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	writeJSON(t, conn, map[string]any{"setupComplete": map[string]any{}})
}

// connect dials the test server with the given session config and fails the
// test when the handshake does not complete.
func connect(t *testing.T, srv *httptest.Server, cfg live.Config) live.Session {
	t.Helper()
	p := gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	sess, err := p.Connect(ctx, cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { sess.Close() })
	return sess
}

// nextEvent waits for the next event of the given type, skipping others.
func nextEvent(t *testing.T, sess live.Session, want live.EventType) live.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				t.Fatalf("events channel closed while waiting for %q", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %q", want)
		}
	}
}

// ── Setup handshake ───────────────────────────────────────────────────────────

func TestConnect_SendsSetupAndWaitsForAck(t *testing.T) {
	t.Parallel()

	setupCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		setupCh <- setup
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	connect(t, srv, live.Config{
		Model:             "gemini-2.0-flash-live",
		SystemInstruction: "You are Griot.",
		Voice:             "Aoede",
		Tools: []live.ToolDeclaration{
			{Name: "tell_story", Parameters: map[string]any{"type": "object"}},
		},
	})

	raw := <-setupCh
	data, _ := json.Marshal(raw)
	var setup struct {
		Setup struct {
			Model            string `json:"model"`
			GenerationConfig struct {
				ResponseModalities []string `json:"responseModalities"`
				SpeechConfig       *struct {
					VoiceConfig struct {
						PrebuiltVoiceConfig struct {
							VoiceName string `json:"voiceName"`
						} `json:"prebuiltVoiceConfig"`
					} `json:"voiceConfig"`
				} `json:"speechConfig"`
			} `json:"generationConfig"`
			SystemInstruction *struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"systemInstruction"`
			Tools []struct {
				FunctionDeclarations []struct {
					Name string `json:"name"`
				} `json:"functionDeclarations"`
			} `json:"tools"`
		} `json:"setup"`
	}
	if err := json.Unmarshal(data, &setup); err != nil {
		t.Fatalf("decode setup: %v", err)
	}

	if setup.Setup.Model != "models/gemini-2.0-flash-live" {
		t.Errorf("model = %q", setup.Setup.Model)
	}
	if setup.Setup.SystemInstruction == nil || len(setup.Setup.SystemInstruction.Parts) == 0 ||
		setup.Setup.SystemInstruction.Parts[0].Text != "You are Griot." {
		t.Error("system instruction missing or wrong")
	}
	if sc := setup.Setup.GenerationConfig.SpeechConfig; sc == nil ||
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName != "Aoede" {
		t.Error("voice not configured")
	}
	if len(setup.Setup.Tools) != 1 || len(setup.Setup.Tools[0].FunctionDeclarations) != 1 ||
		setup.Setup.Tools[0].FunctionDeclarations[0].Name != "tell_story" {
		t.Error("tool declarations missing or wrong")
	}
}

func TestConnect_FailsWhenSetupRejected(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		writeJSON(t, conn, map[string]any{
			"error": map[string]any{"code": 400, "message": "invalid model"},
		})
	})

	p := gemini.New("test-api-key", gemini.WithBaseURL(wsURL(srv)))
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := p.Connect(ctx, live.Config{Model: "bogus"})
	if err == nil || !strings.Contains(err.Error(), "invalid model") {
		t.Fatalf("Connect err = %v, want setup rejection", err)
	}
}

// ── Server events ─────────────────────────────────────────────────────────────

func TestServerContentBecomesEvents(t *testing.T) {
	t.Parallel()

	pcm := []byte{0x01, 0x02, 0x03, 0x04}
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)

		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"modelTurn": map[string]any{
					"parts": []any{
						map[string]any{"text": "Sawubona, "},
						map[string]any{"inlineData": map[string]any{
							"mimeType": "audio/pcm;rate=24000",
							"data":     base64.StdEncoding.EncodeToString(pcm),
						}},
					},
				},
			},
		})
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{"turnComplete": true},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	if ev := nextEvent(t, sess, live.EventText); ev.Text != "Sawubona, " {
		t.Errorf("text = %q", ev.Text)
	}
	if ev := nextEvent(t, sess, live.EventAudio); !bytes.Equal(ev.Audio, pcm) {
		t.Errorf("audio = %v, want %v", ev.Audio, pcm)
	}
	nextEvent(t, sess, live.EventTurnComplete)
}

func TestToolCallBecomesFunctionCallEvent(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"toolCall": map[string]any{
				"functionCalls": []any{
					map[string]any{
						"id":   "fc-1",
						"name": "tell_story",
						"args": map[string]any{"culture": "zulu"},
					},
				},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	ev := nextEvent(t, sess, live.EventFunctionCall)
	if ev.FunctionID != "fc-1" || ev.FunctionName != "tell_story" {
		t.Errorf("function call = %q/%q", ev.FunctionID, ev.FunctionName)
	}
	if ev.FunctionArgs["culture"] != "zulu" {
		t.Errorf("args = %v", ev.FunctionArgs)
	}
}

func TestInterruptedAndTranscriptionEvents(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		writeJSON(t, conn, map[string]any{
			"serverContent": map[string]any{
				"interrupted":        true,
				"inputTranscription": map[string]any{"text": "tell me a story"},
			},
		})
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	nextEvent(t, sess, live.EventInterrupted)
	if ev := nextEvent(t, sess, live.EventInputTranscription); ev.Text != "tell me a story" {
		t.Errorf("transcription = %q", ev.Text)
	}
}

// ── Client sends ──────────────────────────────────────────────────────────────

func TestSendAudioFraming(t *testing.T) {
	t.Parallel()

	frameCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		var frame map[string]any
		readJSON(t, conn, &frame)
		frameCh <- frame
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	pcm := []byte{0x10, 0x20, 0x30}
	if err := sess.SendAudio(pcm); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	raw := <-frameCh
	data, _ := json.Marshal(raw)
	var frame struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(frame.RealtimeInput.MediaChunks) != 1 {
		t.Fatalf("media chunks = %d, want 1", len(frame.RealtimeInput.MediaChunks))
	}
	chunk := frame.RealtimeInput.MediaChunks[0]
	if chunk.MIMEType != "audio/pcm;rate=16000" {
		t.Errorf("mime = %q", chunk.MIMEType)
	}
	if got, _ := base64.StdEncoding.DecodeString(chunk.Data); !bytes.Equal(got, pcm) {
		t.Errorf("audio payload mismatch")
	}
}

func TestSendVideoFrameFraming(t *testing.T) {
	t.Parallel()

	frameCh := make(chan map[string]any, 1)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		var frame map[string]any
		readJSON(t, conn, &frame)
		frameCh <- frame
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	if err := sess.SendVideoFrame(jpeg, 1280, 720); err != nil {
		t.Fatalf("SendVideoFrame: %v", err)
	}

	raw := <-frameCh
	data, _ := json.Marshal(raw)
	var frame struct {
		RealtimeInput struct {
			MediaChunks []struct {
				MIMEType string `json:"mimeType"`
				Data     string `json:"data"`
			} `json:"mediaChunks"`
		} `json:"realtimeInput"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(frame.RealtimeInput.MediaChunks) != 1 {
		t.Fatalf("media chunks = %d, want 1", len(frame.RealtimeInput.MediaChunks))
	}
	chunk := frame.RealtimeInput.MediaChunks[0]
	if chunk.MIMEType != "image/jpeg" {
		t.Errorf("mime = %q", chunk.MIMEType)
	}
	if got, _ := base64.StdEncoding.DecodeString(chunk.Data); !bytes.Equal(got, jpeg) {
		t.Errorf("frame payload mismatch")
	}
}

func TestSendTextAndFunctionResponseFraming(t *testing.T) {
	t.Parallel()

	frames := make(chan map[string]any, 2)
	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		for i := 0; i < 2; i++ {
			var frame map[string]any
			readJSON(t, conn, &frame)
			frames <- frame
		}
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	if err := sess.SendText("tell me about the tortoise"); err != nil {
		t.Fatalf("SendText: %v", err)
	}
	if err := sess.SendFunctionResponse("fc-1", "tell_story", map[string]any{"result": "done"}); err != nil {
		t.Fatalf("SendFunctionResponse: %v", err)
	}

	textFrame := <-frames
	cc, ok := textFrame["clientContent"].(map[string]any)
	if !ok {
		t.Fatalf("first frame = %v, want clientContent", textFrame)
	}
	if cc["turnComplete"] != true {
		t.Error("turnComplete not set on text turn")
	}

	respFrame := <-frames
	tr, ok := respFrame["toolResponse"].(map[string]any)
	if !ok {
		t.Fatalf("second frame = %v, want toolResponse", respFrame)
	}
	responses, _ := tr["functionResponses"].([]any)
	if len(responses) != 1 {
		t.Fatalf("function responses = %d, want 1", len(responses))
	}
	resp := responses[0].(map[string]any)
	if resp["id"] != "fc-1" || resp["name"] != "tell_story" {
		t.Errorf("response identity = %v/%v", resp["id"], resp["name"])
	}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func TestCloseIsIdempotentAndRejectsSends(t *testing.T) {
	t.Parallel()

	srv := startLiveServer(t, func(conn *websocket.Conn, _ *http.Request) {
		var setup map[string]any
		readJSON(t, conn, &setup)
		sendSetupComplete(t, conn)
		<-conn.CloseRead(context.Background()).Done()
	})

	sess := connect(t, srv, live.Config{})

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := sess.SendText("hello"); err == nil {
		t.Error("SendText after Close succeeded, want error")
	}

	// The events channel drains and closes after shutdown.
	deadline := time.After(3 * time.Second)
	for {
		select {
		case _, ok := <-sess.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed after Close")
		}
	}
}
