// Package live defines the duplex live-model interface: a bidirectional
// session that accepts streamed user audio and text, and produces audio,
// text, and tool invocations in real time.
package live

import "context"

// EventType classifies an event arriving from the live model.
type EventType string

const (
	// EventText is a text fragment of the model's spoken response.
	EventText EventType = "text"

	// EventAudio is a chunk of synthesised response audio (PCM, 24 kHz).
	EventAudio EventType = "audio"

	// EventFunctionCall is a tool invocation requested by the model.
	EventFunctionCall EventType = "function_call"

	// EventTurnComplete marks the end of a model turn.
	EventTurnComplete EventType = "turn_complete"

	// EventInterrupted signals the model detected user speech and stopped.
	EventInterrupted EventType = "interrupted"

	// EventInputTranscription carries the model's transcription of user
	// speech, when the service provides one.
	EventInputTranscription EventType = "input_transcription"

	// EventOutputTranscription carries the transcription of the model's own
	// spoken audio.
	EventOutputTranscription EventType = "output_transcription"

	// EventError is a non-fatal error reported by the model service.
	EventError EventType = "error"
)

// Event is a single occurrence on a live session. Exactly the fields implied
// by Type are set.
type Event struct {
	Type EventType

	// Text is set for EventText and the transcription events.
	Text string

	// Audio is set for EventAudio.
	Audio []byte

	// FunctionID, FunctionName and FunctionArgs are set for EventFunctionCall.
	FunctionID   string
	FunctionName string
	FunctionArgs map[string]any

	// Err is set for EventError.
	Err error
}

// ToolDeclaration describes one function the model may call during the
// session.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Config carries the per-session setup parameters.
type Config struct {
	// Model names the live model to connect to.
	Model string

	// SystemInstruction is the session persona and behaviour prompt.
	SystemInstruction string

	// Voice selects a prebuilt voice. Empty uses the model default.
	Voice string

	// Tools are the function declarations exposed to the model.
	Tools []ToolDeclaration
}

// Session is an open duplex conversation with the live model.
//
// Events delivers everything the model produces; the channel is closed when
// the session ends. All Send methods are safe for concurrent use.
type Session interface {
	// Events returns the channel of model events.
	Events() <-chan Event

	// SendAudio delivers a raw PCM chunk (16 kHz, s16le, mono) of user audio.
	SendAudio(chunk []byte) error

	// SendText delivers a complete user text turn.
	SendText(text string) error

	// SendVideoFrame delivers a JPEG-encoded camera frame so the model can
	// see what the user is showing it. Width and height describe the frame
	// in pixels.
	SendVideoFrame(frame []byte, width, height int) error

	// SendFunctionResponse returns a tool result to the model, matched to the
	// invocation by id and name.
	SendFunctionResponse(id, name string, result map[string]any) error

	// SendInterrupt asks the model to stop the current response.
	// Implementations with native voice-activity barge-in may treat this as
	// a no-op.
	SendInterrupt() error

	// Err returns the error that terminated the session, if any.
	Err() error

	// Close ends the session and releases its resources. Idempotent.
	Close() error
}

// Provider opens live sessions.
type Provider interface {
	Connect(ctx context.Context, cfg Config) (Session, error)
}
