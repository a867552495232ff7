// Package a2a implements schema-enforced agent-to-agent dispatch.
//
// Every sub-agent is described by an [AgentCard] naming its input and output
// schemas. Work flows as [Task]s: the router validates the task input against
// the card before the agent runs, validates the agent's output afterwards,
// and retries with a correction note when the output violates its contract.
// When retries are exhausted the caller receives a safe fallback document
// instead of an error, so the conversation never stalls on a malformed
// payload.
package a2a

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// TaskStatus tracks a task through its lifecycle.
type TaskStatus string

const (
	TaskSubmitted TaskStatus = "submitted"
	TaskWorking   TaskStatus = "working"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// Task is one unit of agent-to-agent work.
type Task struct {
	// ID is "task_" followed by 12 hex characters.
	ID string `json:"id"`

	// Agent is the target agent card name.
	Agent string `json:"agent"`

	// Intent is the caller's intent, e.g. "tell_story".
	Intent string `json:"intent"`

	// Input is the schema-typed input document.
	Input map[string]any `json:"input"`

	CreatedAt time.Time  `json:"created_at"`
	Status    TaskStatus `json:"status"`
}

// NewTask creates a submitted task for the named agent.
func NewTask(agent, intent string, input map[string]any) *Task {
	return &Task{
		ID:        "task_" + randomHex(6),
		Agent:     agent,
		Intent:    intent,
		Input:     input,
		CreatedAt: time.Now(),
		Status:    TaskSubmitted,
	}
}

// AgentCard describes a sub-agent's contract.
type AgentCard struct {
	// Name is the card's registry key.
	Name string

	// Description explains what the agent does.
	Description string

	// InputSchema and OutputSchema name registered schemas. An empty
	// InputSchema means the agent accepts unvalidated input.
	InputSchema  string
	OutputSchema string

	// Streaming indicates the agent produces a chunk stream rather than a
	// single document.
	Streaming bool

	// MaxLatencyMs is the agent's declared per-call latency budget.
	MaxLatencyMs int
}

// Cards returns the built-in agent cards, keyed by name.
func Cards() map[string]AgentCard {
	return map[string]AgentCard{
		"story_agent": {
			Name:         "story_agent",
			Description:  "Streams culturally grounded folk stories as schema-typed chunks.",
			InputSchema:  "StoryRequest",
			OutputSchema: "StoryChunk",
			Streaming:    true,
			MaxLatencyMs: 500,
		},
		"riddle_agent": {
			Name:         "riddle_agent",
			Description:  "Produces a traditional riddle with hints, answer, and explanation.",
			InputSchema:  "RiddleRequest",
			OutputSchema: "RiddlePayload",
			Streaming:    false,
			MaxLatencyMs: 500,
		},
		"cultural_grounding": {
			Name:         "cultural_grounding",
			Description:  "Validates narrative chunks against the cultural knowledge base.",
			InputSchema:  "StoryChunk",
			OutputSchema: "ValidatedChunk",
			Streaming:    false,
			MaxLatencyMs: 50,
		},
		"visual_agent": {
			Name:         "visual_agent",
			Description:  "Illustrates narrative moments as generated images.",
			InputSchema:  "ImageRequest",
			OutputSchema: "ImageResult",
			Streaming:    false,
			MaxLatencyMs: 15000,
		},
		"memory_agent": {
			Name:         "memory_agent",
			Description:  "Answers questions about earlier turns in the session.",
			InputSchema:  "",
			OutputSchema: "",
			Streaming:    false,
			MaxLatencyMs: 200,
		},
	}
}

// randomHex returns n random bytes hex-encoded (2n characters).
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
