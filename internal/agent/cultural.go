package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"unicode"

	"github.com/griotlabs/griot/pkg/provider/text"
	"github.com/griotlabs/griot/pkg/types"
)

// Confidence multipliers applied during knowledge-base validation.
const (
	factorContradicted       = 0.3
	factorUnknownClaim       = 0.85
	factorMisattributed      = 0.8
	factorTricksterMismatch  = 0.85
	factorCultureMixing      = 0.7
	factorOvergeneralization = 0.6
)

// absoluteMarkers are phrases that flatten the continent's cultures into one.
// Their presence sharply reduces confidence.
var absoluteMarkers = []string{
	"all africans", "every african", "africans always",
	"in africa they always", "african culture is",
}

// hedgingPhrases soften content that failed validation outright.
var hedgingPhrases = []string{
	"In some traditions, ",
	"It is often said that ",
	"According to some accounts, ",
}

const culturalSystemInstruction = `You are the Cultural Grounding Agent of Griot.
Your role is to validate and enrich content for cultural authenticity.

You have deep knowledge of African oral traditions, proverbs, customs,
and storytelling practices across the continent.

When VALIDATING content:
- Check if cultural references are accurate
- Verify proverb attributions
- Ensure character names fit the stated culture
- Confirm geographical accuracy
- Check that cultural practices are described correctly
- Assess overall tone for respect and authenticity

When GENERATING cultural context:
- Provide rich, specific information
- Always name the specific ethnic group, not just the country
- Include local language terms with pronunciation
- Connect to broader cultural themes
- Be honest about what you're uncertain about

CRITICAL RULES:
- When in doubt, FLAG it — never let uncertain claims through
- Prefer removing a claim over letting a wrong one through
- Never conflate different African cultures
- Always distinguish between specific ethnic traditions`

// CulturalValidator validates narrative chunks for cultural authenticity.
// It sits in the hot path: every story chunk passes through ValidateChunk, so
// the knowledge-base checks are pure string work and the model is consulted
// only when pattern confidence is already low.
type CulturalValidator struct {
	provider            text.Provider
	kb                  *Knowledge
	confidenceThreshold float64
	rejectThreshold     float64
	logger              *slog.Logger
}

var _ Agent = (*CulturalValidator)(nil)

// CulturalOption configures a CulturalValidator.
type CulturalOption func(*CulturalValidator)

// WithThresholds overrides the confidence threshold (below which the model is
// consulted) and the reject threshold (below which text is hedged).
func WithThresholds(confidence, reject float64) CulturalOption {
	return func(v *CulturalValidator) {
		v.confidenceThreshold = confidence
		v.rejectThreshold = reject
	}
}

// WithCulturalLogger overrides the validator's logger.
func WithCulturalLogger(l *slog.Logger) CulturalOption {
	return func(v *CulturalValidator) { v.logger = l }
}

// NewCulturalValidator creates a validator over the built-in knowledge base.
func NewCulturalValidator(provider text.Provider, opts ...CulturalOption) *CulturalValidator {
	v := &CulturalValidator{
		provider:            provider,
		kb:                  DefaultKnowledge(),
		confidenceThreshold: 0.7,
		rejectThreshold:     0.4,
		logger:              slog.Default(),
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Name implements Agent.
func (v *CulturalValidator) Name() string { return "cultural" }

// ValidateChunk validates a StoryChunk document and returns a ValidatedChunk
// document. The caller bounds the model consultation through ctx; when the
// deadline cuts the model off, the pattern-based confidence stands.
func (v *CulturalValidator) ValidateChunk(ctx context.Context, chunk map[string]any) map[string]any {
	content := payloadString(chunk, "text")
	culture := strings.ToLower(payloadString(chunk, "culture"))
	lower := strings.ToLower(content)

	confidence := 1.0
	var corrections []string

	// ── Level 1: knowledge base checks ──

	for provCulture, proverbs := range v.kb.Proverbs {
		for _, proverb := range proverbs {
			quotable := strings.ToLower(proverbText(proverb))
			if quotable != "" && strings.Contains(lower, quotable) && !strings.Contains(lower, provCulture) {
				confidence *= factorMisattributed
				v.logger.Warn("proverb may be misattributed", "proverb", proverbText(proverb))
			}
		}
	}

	for figCulture, figure := range v.kb.TricksterFigures {
		name := tricksterName(figure)
		if name != "" && strings.Contains(lower, name) && !strings.Contains(lower, figCulture) {
			confidence *= factorTricksterMismatch
		}
	}

	for _, claim := range chunkClaims(chunk) {
		switch v.checkClaim(claim, culture) {
		case claimContradicted:
			confidence *= factorContradicted
			corrections = append(corrections, fmt.Sprintf("Contradicted claim: %q", claim.text))
		case claimUnknown:
			confidence *= factorUnknownClaim
		}
	}

	// ── Level 2: pattern checks ──

	mentioned := 0
	for _, c := range knownCultures {
		if strings.Contains(lower, c) {
			mentioned++
		}
	}
	if mentioned > 2 {
		confidence *= factorCultureMixing
		corrections = append(corrections, "Multiple cultures mentioned — verify intentional")
	}

	for _, marker := range absoluteMarkers {
		if strings.Contains(lower, marker) {
			confidence *= factorOvergeneralization
			corrections = append(corrections, fmt.Sprintf("Overly broad cultural claim: '%s'", marker))
		}
	}

	// ── Level 3: model validation, only when pattern confidence is low ──

	if confidence < v.confidenceThreshold {
		if verdict, err := v.modelValidate(ctx, content); err == nil {
			confidence = min(confidence, verdict.Confidence)
			if verdict.CorrectedText != "" {
				content = verdict.CorrectedText
			}
		} else {
			v.logger.Warn("model validation unavailable, keeping pattern confidence", "error", err)
		}
	}

	if confidence < v.rejectThreshold {
		content = hedge(content)
	}

	out := map[string]any{
		"text":       content,
		"confidence": confidence,
	}
	if len(corrections) > 0 {
		cs := make([]any, len(corrections))
		for i, c := range corrections {
			cs[i] = c
		}
		out["corrections"] = cs
	}
	return out
}

// Generate implements Agent: the cold path, a full cultural context response
// when the user explicitly asks about a culture.
func (v *CulturalValidator) Generate(ctx context.Context, req types.AgentRequest) <-chan types.AgentResponse {
	topic := payloadString(req.Payload, "topic")
	culture := payloadString(req.Payload, "culture")
	if culture == "" {
		culture = "African"
	}

	prompt := fmt.Sprintf(`Provide rich cultural context about: %s

Culture/Region: %s

Include:
- Historical background
- Connection to oral traditions
- Local language terms with pronunciation
- How this connects to daily life and values
- Related proverbs or sayings

Be specific to the ethnic group, not just the country or continent.
If you're unsure about details, say so honestly.`, topic, culture)

	return streamText(ctx, v.provider, v.logger, v.Name(), prompt, culturalSystemInstruction)
}

// claimVerdict is the outcome of checking one cultural claim against the
// knowledge base.
type claimVerdict int

const (
	claimSupported claimVerdict = iota
	claimUnknown
	claimContradicted
)

type culturalClaim struct {
	text     string
	category string
}

// chunkClaims extracts the cultural_claims entries of a StoryChunk document.
func chunkClaims(chunk map[string]any) []culturalClaim {
	raw, _ := chunk["cultural_claims"].([]any)
	claims := make([]culturalClaim, 0, len(raw))
	for _, entry := range raw {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		claims = append(claims, culturalClaim{
			text:     strings.ToLower(payloadString(m, "claim")),
			category: payloadString(m, "category"),
		})
	}
	return claims
}

// checkClaim verifies one claim against the knowledge base. A claim is
// contradicted when it attaches another culture's figure or proverb to the
// chunk's culture, unknown when the base has nothing to verify it against,
// and supported when it matches the chunk culture's own entries.
func (v *CulturalValidator) checkClaim(claim culturalClaim, culture string) claimVerdict {
	switch claim.category {
	case "character":
		if figure, ok := v.kb.TricksterFigures[culture]; ok &&
			strings.Contains(claim.text, tricksterName(figure)) {
			return claimSupported
		}
		for figCulture, figure := range v.kb.TricksterFigures {
			if figCulture != culture && strings.Contains(claim.text, tricksterName(figure)) {
				return claimContradicted
			}
		}
		return claimUnknown

	case "proverb":
		for _, proverb := range v.kb.Proverbs[culture] {
			if strings.Contains(claim.text, strings.ToLower(proverbText(proverb))) {
				return claimSupported
			}
		}
		for provCulture, proverbs := range v.kb.Proverbs {
			if provCulture == culture {
				continue
			}
			for _, proverb := range proverbs {
				if strings.Contains(claim.text, strings.ToLower(proverbText(proverb))) {
					return claimContradicted
				}
			}
		}
		return claimUnknown

	default:
		// Customs, locations, language, history: no curated entries yet,
		// the model pass covers these when confidence drops.
		return claimUnknown
	}
}

// modelVerdict is the JSON document the validation model is asked to return.
type modelVerdict struct {
	Confidence    float64  `json:"confidence"`
	Issues        []string `json:"issues"`
	CorrectedText string   `json:"corrected_text"`
}

// modelValidate asks the text model for a quick accuracy verdict.
func (v *CulturalValidator) modelValidate(ctx context.Context, content string) (*modelVerdict, error) {
	prompt := fmt.Sprintf(`Quickly validate the cultural accuracy of this text:

%q

Respond in JSON format:
{"confidence": 0.0-1.0, "issues": ["list of issues"], "corrected_text": null or "corrected version"}

Only flag serious cultural inaccuracies, not style preferences.`, content)

	raw, err := v.provider.Generate(ctx, text.Request{
		Prompt:            prompt,
		SystemInstruction: "You are a cultural accuracy validator. Respond only in JSON.",
	})
	if err != nil {
		return nil, err
	}

	verdict := &modelVerdict{Confidence: 0.7}
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), verdict); err != nil {
		// Unparseable verdict caps confidence at a neutral value.
		return &modelVerdict{Confidence: 0.7}, nil
	}
	return verdict, nil
}

// stripCodeFence removes a surrounding markdown code fence, which models add
// despite being asked for bare JSON.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// hedge softens a claim that failed validation: a qualifying prefix plus the
// original text with its first letter lowercased.
func hedge(content string) string {
	if content == "" {
		return content
	}
	prefix := hedgingPhrases[rand.Intn(len(hedgingPhrases))]
	runes := []rune(content)
	runes[0] = unicode.ToLower(runes[0])
	return prefix + string(runes)
}
