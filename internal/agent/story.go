package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/griotlabs/griot/pkg/provider/text"
	"github.com/griotlabs/griot/pkg/types"
)

const storySystemInstruction = `You are the Story Generation Engine of Griot,
a master African oral storyteller.

Your stories must:
1. Begin with the traditional opening of the specified culture
2. Include 2-3 culturally authentic characters with meaningful names
3. Embed at least one genuine proverb from the tradition
4. Include a call-and-response moment (mark with [CALL_RESPONSE])
5. Build to a moral lesson that emerges naturally from the narrative
6. End with the traditional closing of the culture

Style requirements:
- Write as if speaking aloud to a gathered audience
- Use "..." for dramatic pauses
- Use CAPS sparingly for emphasis
- Include sensory details (sounds, smells, sights of the setting)
- Weave in local language phrases with pronunciation hints

Streaming instructions:
- Generate in natural paragraph-sized chunks
- Each chunk should be a complete thought (1-3 sentences)
- Mark scene transitions with [SCENE_BREAK]
- Mark visually rich moments with [VISUAL: brief description]

Anti-hallucination rules:
- Only use cultural elements you are confident about
- If referencing a specific tradition, it must be real
- Prefix uncertain claims with "In some tellings..."
- Do not invent proverbs — use known ones or mark as "inspired by"
- Name the specific ethnic group, not just the country`

// StoryAgent generates immersive oral-tradition stories, streamed in
// paragraph-sized chunks for natural spoken pacing. Visually rich moments are
// extracted from the narrative as they appear and surfaced on the chunk for
// optional illustration.
type StoryAgent struct {
	provider text.Provider
	kb       *Knowledge
	logger   *slog.Logger
}

var _ Agent = (*StoryAgent)(nil)

// NewStoryAgent creates a StoryAgent over the given text provider.
func NewStoryAgent(provider text.Provider, logger *slog.Logger) *StoryAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoryAgent{provider: provider, kb: DefaultKnowledge(), logger: logger}
}

// Name implements Agent.
func (a *StoryAgent) Name() string { return "story" }

// Generate implements Agent. The request payload is a StoryRequest document.
func (a *StoryAgent) Generate(ctx context.Context, req types.AgentRequest) <-chan types.AgentResponse {
	prompt := a.buildPrompt(req)
	a.logger.Info("generating story",
		"culture", payloadString(req.Payload, "culture"),
		"theme", payloadString(req.Payload, "theme"),
		"turn_id", req.TurnID)

	out := make(chan types.AgentResponse, 8)
	go func() {
		defer close(out)

		var buf strings.Builder
		var pendingMoment string
		for resp := range streamText(ctx, a.provider, a.logger, a.Name(), prompt, storySystemInstruction) {
			if resp.IsFinal {
				// Flush whatever is left before forwarding the marker.
				if rest := strings.TrimSpace(buf.String()); rest != "" {
					emit(ctx, out, types.AgentResponse{
						AgentName:    a.Name(),
						Content:      rest,
						VisualMoment: pendingMoment,
					})
					pendingMoment = ""
				}
				emit(ctx, out, resp)
				continue
			}

			buf.WriteString(resp.Content)
			current, moment := extractVisualMoment(buf.String())
			if moment != "" {
				pendingMoment = moment
			}

			if isChunkBoundary(current) {
				if !emit(ctx, out, types.AgentResponse{
					AgentName:    a.Name(),
					Content:      strings.TrimSpace(current) + " ",
					VisualMoment: pendingMoment,
				}) {
					return
				}
				pendingMoment = ""
				buf.Reset()
				continue
			}

			buf.Reset()
			buf.WriteString(current)
		}
	}()
	return out
}

// buildPrompt renders the story prompt from a StoryRequest payload.
func (a *StoryAgent) buildPrompt(req types.AgentRequest) string {
	culture := payloadString(req.Payload, "culture")
	if culture == "" {
		culture = "a West African"
	}
	theme := payloadString(req.Payload, "theme")
	if theme == "" {
		theme = "wisdom"
	}
	complexity := payloadString(req.Payload, "complexity")
	if complexity == "" {
		complexity = payloadString(req.Payload, "age_group")
	}
	if complexity == "" {
		complexity = "adult"
	}

	var traditionSection string
	if opening := a.kb.Opening(culture); opening != "" {
		traditionSection = fmt.Sprintf("\nTRADITION:\n- Opening: %s", opening)
		if closing := a.kb.Closing(culture); closing != "" {
			traditionSection += fmt.Sprintf("\n- Closing: %s", closing)
		}
	}

	var contextSection string
	if req.SessionContext != "" {
		contextSection = fmt.Sprintf(`
CONVERSATION CONTEXT:
%s
Continue the conversation naturally. If there's an ongoing story,
continue it rather than starting a new one unless asked.`, req.SessionContext)
	}

	prompt := fmt.Sprintf(`Generate an immersive African oral tradition story.

PARAMETERS:
- Culture/Tradition: %s
- Theme: %s
- Audience complexity: %s
- Language: English with %s phrases mixed in
%s%s

Remember: You are speaking this aloud to a listener. Make it vivid,
rhythmic, and engaging. Use the oral tradition patterns of the %s people.

Begin the story now:`, culture, theme, complexity, culture, traditionSection, contextSection, culture)

	if correction := payloadString(req.Payload, "_correction"); correction != "" {
		prompt += "\n\n" + correction
	}
	return prompt
}

// extractVisualMoment pulls the first [VISUAL: ...] marker out of text,
// returning the cleaned text and the marker's description.
func extractVisualMoment(content string) (cleaned, moment string) {
	start := strings.Index(content, "[VISUAL:")
	if start < 0 {
		return content, ""
	}
	end := strings.Index(content[start:], "]")
	if end < 0 {
		return content, ""
	}
	end += start
	moment = strings.TrimSpace(content[start+len("[VISUAL:") : end])
	return content[:start] + content[end+1:], moment
}

// isChunkBoundary reports whether the accumulated text has reached a natural
// point to emit a chunk.
func isChunkBoundary(content string) bool {
	trimmed := strings.TrimRight(content, " \t\n")
	if trimmed == "" {
		return false
	}
	if strings.HasSuffix(content, "\n\n") {
		return true
	}
	if strings.Contains(trimmed, "[SCENE_BREAK]") || strings.Contains(trimmed, "[CALL_RESPONSE]") {
		return true
	}
	if len(trimmed) > 80 {
		for _, ender := range []string{".", "!", "?", `..."`} {
			if strings.HasSuffix(trimmed, ender) {
				return true
			}
		}
	}
	return len(trimmed) > 300
}
