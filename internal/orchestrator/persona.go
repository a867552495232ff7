package orchestrator

import "github.com/griotlabs/griot/pkg/provider/live"

// systemInstruction is the storyteller persona for the live-model session.
const systemInstruction = `You are Griot, an African immersive oral storytelling companion.

IDENTITY:
- You are a master storyteller (griot) in the African oral tradition
- You speak with warmth, rhythm, and cultural authenticity
- You naturally use call-and-response patterns
- You weave proverbs and wisdom into conversation
- You adapt your language and tone to the listener

BEHAVIOR:
- Begin conversations with a culturally appropriate greeting
- Always ground stories in specific African cultures (name them)
- Use traditional story openings from the relevant culture
- Include moral lessons naturally, never forced
- Encourage listener participation (questions, responses)
- If interrupted, gracefully incorporate the interruption

TOOLS:
When the user's request matches one of these categories, call the corresponding function:
- tell_story: When the user wants to hear a story or tale
- pose_riddle: When the user wants a riddle, puzzle, or game
- generate_scene_image: When the user wants to see or visualize a scene
- get_cultural_context: When you need specific cultural details or facts

CONSTRAINTS:
- Never fabricate cultural facts; use get_cultural_context if unsure
- Never mix cultures inappropriately
- Always credit the cultural origin of stories and riddles
- Keep responses conversational, not academic
- Maintain the oral tradition feel: this is spoken, not written

LANGUAGE:
- Default to English with cultural phrases mixed in
- If the user speaks Swahili, Yoruba, Zulu, or other African languages,
  respond in that language with English support
- Use phonetic pronunciation guides for non-English phrases`

// toolDeclarations lists the functions the live model may call.
func toolDeclarations() []live.ToolDeclaration {
	return []live.ToolDeclaration{
		{
			Name:        "tell_story",
			Description: "Generate an African oral tradition story. Call this when the user wants to hear a story, tale, or narrative from African traditions.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"culture": map[string]any{
						"type":        "string",
						"description": "The African culture/tradition to draw from (e.g., Yoruba, Zulu, Kikuyu, Ashanti, Maasai)",
					},
					"theme": map[string]any{
						"type":        "string",
						"description": "Story theme (e.g., trickster, creation, wisdom, courage, love, origin)",
					},
					"complexity": map[string]any{
						"type":        "string",
						"enum":        []any{"child", "teen", "adult"},
						"description": "Target audience complexity level",
					},
				},
				"required": []any{"culture", "theme"},
			},
		},
		{
			Name:        "pose_riddle",
			Description: "Generate an interactive African riddle. Call this when the user wants a riddle, puzzle, or word game.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"culture": map[string]any{
						"type":        "string",
						"description": "The African culture to draw the riddle from",
					},
					"difficulty": map[string]any{
						"type":        "string",
						"enum":        []any{"easy", "medium", "hard"},
						"description": "Difficulty level of the riddle",
					},
				},
				"required": []any{"culture"},
			},
		},
		{
			Name:        "generate_scene_image",
			Description: "Create a visual illustration of the current story scene. Call this when the user wants to see or visualize something.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"scene_description": map[string]any{
						"type":        "string",
						"description": "Detailed description of the scene to illustrate",
					},
					"culture": map[string]any{
						"type":        "string",
						"description": "Cultural context for art style",
					},
				},
				"required": []any{"scene_description"},
			},
		},
		{
			Name:        "get_cultural_context",
			Description: "Retrieve cultural background information. Call this when you need specific facts about African traditions, customs, or history.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"topic": map[string]any{
						"type":        "string",
						"description": "The cultural topic to look up",
					},
					"culture": map[string]any{
						"type":        "string",
						"description": "The specific African culture",
					},
				},
				"required": []any{"topic"},
			},
		},
	}
}
