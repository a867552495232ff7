// Package agent implements the Griot sub-agents: story generation, riddles,
// cultural grounding, and scene illustration, plus the dispatcher that routes
// intents to them.
//
// Sub-agents call the text model directly (not the live session) and stream
// [types.AgentResponse] chunks back. Story output additionally flows through
// the cultural validator before it reaches the client, so every narrative
// chunk carries a confidence score.
package agent

import (
	"context"
	"log/slog"

	"github.com/griotlabs/griot/pkg/provider/text"
	"github.com/griotlabs/griot/pkg/types"
)

// lostTrainOfThought is streamed in place of model output when generation
// fails mid-story. Stays in character; the error itself goes to the log.
const lostTrainOfThought = "I seem to have lost my train of thought... Let me try again."

// Agent is a specialised module that turns an AgentRequest into a stream of
// response chunks. The returned channel is closed by the implementation after
// the final marker chunk (empty content, IsFinal true).
type Agent interface {
	Name() string
	Generate(ctx context.Context, req types.AgentRequest) <-chan types.AgentResponse
}

// streamText runs a prompt against the text provider and forwards fragments
// as non-final responses under the given agent name. Generation errors are
// logged and replaced with an in-character content chunk. The final empty
// marker chunk is always emitted last.
func streamText(ctx context.Context, provider text.Provider, logger *slog.Logger, agentName, prompt, system string) <-chan types.AgentResponse {
	out := make(chan types.AgentResponse, 8)
	go func() {
		defer close(out)
		defer func() {
			select {
			case out <- types.AgentResponse{AgentName: agentName, IsFinal: true}:
			case <-ctx.Done():
			}
		}()

		src, err := provider.StreamGenerate(ctx, text.Request{
			Prompt:            prompt,
			SystemInstruction: system,
		})
		if err != nil {
			logger.Error("text generation failed to start", "agent", agentName, "error", err)
			emit(ctx, out, types.AgentResponse{
				AgentName: agentName,
				Content:   lostTrainOfThought,
			})
			return
		}

		for chunk := range src {
			if chunk.Err != nil {
				logger.Error("text generation failed", "agent", agentName, "error", chunk.Err)
				emit(ctx, out, types.AgentResponse{
					AgentName: agentName,
					Content:   lostTrainOfThought,
				})
				return
			}
			if !emit(ctx, out, types.AgentResponse{AgentName: agentName, Content: chunk.Text}) {
				return
			}
		}
	}()
	return out
}

// emit sends resp unless ctx is done. Reports whether the send happened.
func emit(ctx context.Context, out chan<- types.AgentResponse, resp types.AgentResponse) bool {
	select {
	case out <- resp:
		return true
	case <-ctx.Done():
		return false
	}
}

// payloadString extracts a string field from a schema-typed payload.
func payloadString(payload map[string]any, key string) string {
	s, _ := payload[key].(string)
	return s
}
