// Package types defines the shared types used across all Griot packages.
//
// These types form the lingua franca between the gateway, the orchestrator,
// the agent dispatcher, and the memory layer. They are intentionally minimal:
// each package defines its own domain types, but cross-cutting data structures
// live here to avoid circular imports.
package types

import "time"

// ClientMessageType enumerates the message types a client may send over the
// session WebSocket.
type ClientMessageType string

const (
	// ClientAudioChunk carries a base64-encoded PCM audio chunk from the
	// client's microphone.
	ClientAudioChunk ClientMessageType = "audio_chunk"

	// ClientTextInput carries typed text input.
	ClientTextInput ClientMessageType = "text_input"

	// ClientVideoFrame carries a base64-encoded JPEG camera frame so the
	// model can see what the user is showing.
	ClientVideoFrame ClientMessageType = "video_frame"

	// ClientInterrupt signals a barge-in: the user wants the current
	// response stopped immediately.
	ClientInterrupt ClientMessageType = "interrupt"

	// ClientControl carries a session preference change (language, age
	// group, region).
	ClientControl ClientMessageType = "control"

	// ClientPing requests a pong, for client-side liveness checks.
	ClientPing ClientMessageType = "ping"

	// ClientSessionInit resumes a previous session's memory.
	ClientSessionInit ClientMessageType = "session_init"
)

// ClientMessage is the envelope for all client→server WebSocket messages.
// Which fields are populated depends on Type.
type ClientMessage struct {
	Type ClientMessageType `json:"type"`

	// Data is base64-encoded PCM audio for audio_chunk messages and a
	// base64-encoded JPEG for video_frame messages.
	Data string `json:"data,omitempty"`

	// Text is the typed input for text_input messages.
	Text string `json:"text,omitempty"`

	// Width and Height describe a video_frame in pixels.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`

	// Action is the control verb for control messages: set_language,
	// set_age_group, or set_region.
	Action string `json:"action,omitempty"`

	// Value is the control argument (e.g. "sw" for set_language).
	Value string `json:"value,omitempty"`

	// SessionID names the previous session to resume on session_init.
	SessionID string `json:"session_id,omitempty"`
}

// ServerMessageType enumerates the message types the server may push to a
// client.
type ServerMessageType string

const (
	ServerSessionInit ServerMessageType = "session_init"
	ServerTextChunk   ServerMessageType = "text_chunk"
	ServerAudioChunk  ServerMessageType = "audio_chunk"
	ServerTurnStart   ServerMessageType = "turn_start"
	ServerTurnEnd     ServerMessageType = "turn_end"
	ServerInterrupted ServerMessageType = "interrupted"
	ServerStatus      ServerMessageType = "status"
	ServerError       ServerMessageType = "error"
	ServerPong        ServerMessageType = "pong"
	ServerImage       ServerMessageType = "image"
	ServerFunctionAck ServerMessageType = "function_ack"
)

// ServerMessage is the envelope for all server→client WebSocket messages.
// Seq is assigned by the connection's writer immediately before the message
// goes on the wire, so it is strictly increasing per session. Unset fields
// are omitted from the JSON encoding.
type ServerMessage struct {
	Type ServerMessageType `json:"type"`
	Seq  int64             `json:"seq"`

	// SessionID is set on session_init.
	SessionID string `json:"session_id,omitempty"`

	// Text and Agent are set on text_chunk.
	Text  string `json:"text,omitempty"`
	Agent string `json:"agent,omitempty"`

	// TurnID identifies which conversational turn a text_chunk, turn_end,
	// or interrupted message belongs to.
	TurnID string `json:"turn_id,omitempty"`

	// Data is base64-encoded PCM audio for audio_chunk messages.
	Data string `json:"data,omitempty"`

	// State and Detail are set on status messages.
	State  string `json:"state,omitempty"`
	Detail string `json:"detail,omitempty"`

	// Code, Message, and Fatal are set on error messages.
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Fatal   bool   `json:"fatal,omitempty"`

	// URL and Scene are set on image messages.
	URL   string `json:"url,omitempty"`
	Scene string `json:"scene,omitempty"`

	// Name is the function name on function_ack messages.
	Name string `json:"name,omitempty"`
}

// AgentRequest is the unit of work handed to a sub-agent.
type AgentRequest struct {
	// Intent names what the caller wants: tell_story, pose_riddle,
	// get_cultural_context, generate_scene_image.
	Intent string `json:"intent"`

	// Payload is the schema-typed input for the intent (e.g. a StoryRequest
	// document for tell_story).
	Payload map[string]any `json:"payload"`

	// SessionContext is a compact summary of the conversation so far,
	// produced by the memory manager.
	SessionContext string `json:"session_context,omitempty"`

	// TurnID ties the request to the conversational turn that triggered it.
	TurnID string `json:"turn_id,omitempty"`
}

// AgentResponse is a single streamed chunk produced by a sub-agent.
type AgentResponse struct {
	// AgentName identifies the producing agent.
	AgentName string `json:"agent_name"`

	// Content is the chunk text. May be empty on the final marker chunk.
	Content string `json:"content"`

	// IsFinal marks the last chunk of the response.
	IsFinal bool `json:"is_final"`

	// Metadata carries agent-specific annotations (riddle section names,
	// validation confidence, etc.).
	Metadata map[string]any `json:"metadata,omitempty"`

	// VisualMoment is a scene description extracted from the narrative,
	// suitable for handing to the visual agent. Empty when the chunk has no
	// illustratable moment.
	VisualMoment string `json:"visual_moment,omitempty"`
}

// ConversationTurn is one exchange recorded in session history.
type ConversationTurn struct {
	// TurnID uniquely identifies the turn within the session.
	TurnID string `json:"turn_id"`

	// Role is "user" or "agent".
	Role string `json:"role"`

	// Content is the turn's text.
	Content string `json:"content"`

	// Timestamp is when the turn was recorded.
	Timestamp time.Time `json:"timestamp"`

	// AgentName identifies which agent produced an agent turn.
	AgentName string `json:"agent_name,omitempty"`

	// Metadata carries turn-level annotations.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// SessionMetadata describes a conversational session.
type SessionMetadata struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`

	// LastActive is updated on every persisted mutation.
	LastActive time.Time `json:"last_active"`

	// Language is the preferred response language (BCP 47 or a short code).
	Language string `json:"language,omitempty"`

	// AgeGroup is child, teen, or adult.
	AgeGroup string `json:"age_group,omitempty"`

	// Region biases cultural selection (e.g. "east_africa").
	Region string `json:"region,omitempty"`

	// TurnCount is the number of turns recorded so far.
	TurnCount int `json:"turn_count"`

	// Preferences holds additional learned user preferences.
	Preferences map[string]string `json:"preferences,omitempty"`
}
