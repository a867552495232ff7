package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/griotlabs/griot/pkg/provider/text"
	"github.com/griotlabs/griot/pkg/types"
)

const riddleSystemInstruction = `You are the Riddle Master of Griot,
specializing in African riddle traditions.

In many African cultures, riddles (called "vitendawili" in Swahili,
"àlọ́" in Yoruba, "izaga" in Zulu) are a beloved form of oral tradition
used to teach wisdom, sharpen wit, and entertain.

Your riddles must:
1. Use the traditional riddle-opening of the specified culture
   - Swahili: "Kitendawili!" (audience responds: "Tega!")
   - Yoruba: "Àlọ́ o!" (audience responds: "Àlọ́!")
   - Zulu: "Qagela!" (audience responds: "Qagela!")
2. Be culturally relevant and grounded
3. Include a real or authentically-inspired riddle
4. Have 3 progressive hints (easy, medium, obvious)
5. Include a cultural explanation connecting the riddle to tradition

Format your response EXACTLY as:

[OPENING]
<Traditional riddle opening phrase and call-and-response>

[RIDDLE]
<The riddle text, delivered dramatically>

[HINTS]
Hint 1: <Subtle, thematic hint>
Hint 2: <More direct hint>
Hint 3: <Almost gives it away>

[ANSWER]
<The answer>

[EXPLANATION]
<Cultural context: Why this riddle matters in the tradition,
what it teaches, and how it connects to daily life>

Anti-hallucination rules:
- If using a traditional riddle, name the specific culture
- If creating a new riddle, say "Inspired by {culture} tradition"
- Never attribute a riddle to a culture it doesn't belong to
- Use authentic traditional openings only if you're certain`

// riddleSections are the output markers, in presentation order.
var riddleSections = []string{"[OPENING]", "[RIDDLE]", "[HINTS]", "[ANSWER]", "[EXPLANATION]"}

// RiddleAgent generates interactive cultural riddles: a dramatic opening, the
// riddle itself, three progressive hints, the answer, and a cultural
// explanation.
type RiddleAgent struct {
	provider text.Provider
	logger   *slog.Logger
}

var _ Agent = (*RiddleAgent)(nil)

// NewRiddleAgent creates a RiddleAgent over the given text provider.
func NewRiddleAgent(provider text.Provider, logger *slog.Logger) *RiddleAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &RiddleAgent{provider: provider, logger: logger}
}

// Name implements Agent.
func (a *RiddleAgent) Name() string { return "riddle" }

// Generate implements Agent: sections are streamed as they arrive, each chunk
// tagged with its section name so the client can stage the reveal (hints and
// answer on demand).
func (a *RiddleAgent) Generate(ctx context.Context, req types.AgentRequest) <-chan types.AgentResponse {
	prompt := a.buildPrompt(req)
	a.logger.Info("generating riddle",
		"culture", payloadString(req.Payload, "culture"),
		"turn_id", req.TurnID)

	out := make(chan types.AgentResponse, 8)
	go func() {
		defer close(out)

		var buf strings.Builder
		currentSection := ""
		for resp := range streamText(ctx, a.provider, a.logger, a.Name(), prompt, riddleSystemInstruction) {
			if resp.IsFinal {
				if rest := strings.TrimSpace(buf.String()); rest != "" {
					emit(ctx, out, types.AgentResponse{
						AgentName: a.Name(),
						Content:   rest,
						Metadata:  map[string]any{"section": currentSection},
					})
				}
				emit(ctx, out, resp)
				continue
			}

			buf.WriteString(resp.Content)
			content := buf.String()

			// Split off completed text whenever a section marker appears.
			for _, marker := range riddleSections {
				idx := strings.Index(content, marker)
				if idx < 0 {
					continue
				}
				if before := strings.TrimSpace(content[:idx]); before != "" {
					if !emit(ctx, out, types.AgentResponse{
						AgentName: a.Name(),
						Content:   before + "\n\n",
						Metadata:  map[string]any{"section": currentSection},
					}) {
						return
					}
				}
				currentSection = strings.ToLower(strings.Trim(marker, "[]"))
				content = content[idx+len(marker):]
			}

			// Sentence boundary within a section.
			trimmed := strings.TrimRight(content, " \t\n")
			if len(content) > 100 && (strings.HasSuffix(trimmed, ".") ||
				strings.HasSuffix(trimmed, "!") || strings.HasSuffix(trimmed, "?")) {
				if !emit(ctx, out, types.AgentResponse{
					AgentName: a.Name(),
					Content:   strings.TrimSpace(content) + " ",
					Metadata:  map[string]any{"section": currentSection},
				}) {
					return
				}
				content = ""
			}

			buf.Reset()
			buf.WriteString(content)
		}
	}()
	return out
}

// GeneratePayload produces a complete RiddlePayload document in one shot,
// for schema-enforced unary dispatch. The request payload is a RiddleRequest
// document; a _correction entry from a previous failed attempt is appended to
// the prompt.
func (a *RiddleAgent) GeneratePayload(ctx context.Context, input map[string]any) (map[string]any, error) {
	req := types.AgentRequest{
		Intent:         "pose_riddle",
		Payload:        input,
		SessionContext: payloadString(input, "prior_context"),
	}
	full, err := a.provider.Generate(ctx, text.Request{
		Prompt:            a.buildPrompt(req),
		SystemInstruction: riddleSystemInstruction,
	})
	if err != nil {
		return nil, fmt.Errorf("riddle: generate: %w", err)
	}

	sections := parseRiddleSections(full)
	payload := map[string]any{
		"opening": sections["opening"],
		"riddle":  sections["riddle"],
		"answer":  sections["answer"],
		"hints":   parseHints(sections["hints"]),
	}
	if expl := sections["explanation"]; expl != "" {
		payload["explanation"] = expl
	}
	if culture := payloadString(input, "culture"); culture != "" {
		payload["culture"] = culture
	}
	payload["is_traditional"] = !strings.Contains(full, "Inspired by")
	fixPayload(payload)
	return payload, nil
}

// genericHints pad a short hint list so every delivered riddle carries three
// progressively revealing hints.
var genericHints = []string{
	"Listen again to how the riddle is phrased.",
	"Picture each image the riddle describes.",
	"The answer is something you already know.",
}

// fixPayload repairs a partially parsed payload in place: a missing opening
// gets a generic line and the hints are padded or trimmed to exactly three.
// A payload without both a riddle and an answer is left untouched; it fails
// output validation and goes through the correction retry instead.
func fixPayload(payload map[string]any) {
	if payloadString(payload, "riddle") == "" || payloadString(payload, "answer") == "" {
		return
	}
	if payloadString(payload, "opening") == "" {
		payload["opening"] = "A riddle for you..."
	}
	hints, _ := payload["hints"].([]any)
	for i := len(hints); len(hints) < 3; i++ {
		hints = append(hints, genericHints[min(i, len(genericHints)-1)])
	}
	payload["hints"] = hints[:3]
}

// buildPrompt renders the riddle prompt from a RiddleRequest payload.
func (a *RiddleAgent) buildPrompt(req types.AgentRequest) string {
	culture := payloadString(req.Payload, "culture")
	if culture == "" {
		culture = "East African"
	}
	difficulty := payloadString(req.Payload, "difficulty")
	if difficulty == "" {
		difficulty = "medium"
	}

	var contextSection string
	if req.SessionContext != "" {
		contextSection = fmt.Sprintf(`
CONVERSATION CONTEXT:
%s
If there's an ongoing riddle game, continue it.
Avoid repeating riddles already used in this session.`, req.SessionContext)
	}

	prompt := fmt.Sprintf(`Generate an interactive African riddle experience.

PARAMETERS:
- Culture/Tradition: %s
- Difficulty: %s
- Language: English with %s phrases
%s

Create a riddle now, following the exact format specified in your instructions.
Make it engaging and dramatic, as if presenting to a live audience.`,
		culture, difficulty, culture, contextSection)

	if correction := payloadString(req.Payload, "_correction"); correction != "" {
		prompt += "\n\n" + correction
	}
	return prompt
}

// parseRiddleSections splits a formatted riddle response into its named
// sections.
func parseRiddleSections(full string) map[string]string {
	sections := make(map[string]string, len(riddleSections))
	for i, marker := range riddleSections {
		start := strings.Index(full, marker)
		if start < 0 {
			continue
		}
		start += len(marker)
		end := len(full)
		for _, next := range riddleSections[i+1:] {
			if idx := strings.Index(full[start:], next); idx >= 0 {
				end = start + idx
				break
			}
		}
		name := strings.ToLower(strings.Trim(marker, "[]"))
		sections[name] = strings.TrimSpace(full[start:end])
	}
	return sections
}

// parseHints extracts the "Hint N:" lines from the hints section. The result
// keeps whatever count the model produced; fixPayload pads or trims to the
// required three afterwards.
func parseHints(section string) []any {
	var hints []any
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.HasPrefix(lower, "hint") {
			if idx := strings.Index(line, ":"); idx >= 0 {
				line = strings.TrimSpace(line[idx+1:])
			}
		}
		if line != "" {
			hints = append(hints, line)
		}
	}
	return hints
}
