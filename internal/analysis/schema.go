package analysis

import "github.com/abhisek/mathchat/internal/llm"

var clearConversationProperty = map[string]any{
	"type":        "boolean",
	"description": "True only if the student explicitly asks to drop the current exercise and start a new one",
}

// IntroductionSchema defines the JSON schema for the first analysis of an
// exercise.
var IntroductionSchema = &llm.Schema{
	Name:        "phase-introduction",
	Description: "Topic detection for the first message of a math exercise",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"math_concepts": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Math concepts the exercise relies on, most important first",
			},
			"is_math_question": map[string]any{
				"type":        "string",
				"enum":        []any{"yes", "no"},
				"description": "Whether mathematics is the subject of the discussion",
			},
			"is_geometry": map[string]any{
				"type":        "boolean",
				"description": "Whether the student asks about a geometry problem",
			},
		},
		"required":             []any{"math_concepts", "is_math_question", "is_geometry"},
		"additionalProperties": false,
	},
}

// ConceptSchema defines the JSON schema for the concept check.
var ConceptSchema = &llm.Schema{
	Name:        "phase-concept",
	Description: "Whether the student identified the concept behind the exercise",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"concept_understood": map[string]any{
				"type":        "boolean",
				"description": "Whether the student understood the math concept of the exercise",
			},
			"clear_conversation": clearConversationProperty,
		},
		"required":             []any{"concept_understood", "clear_conversation"},
		"additionalProperties": false,
	},
}

// LessonSchema defines the JSON schema for the lesson check.
var LessonSchema = &llm.Schema{
	Name:        "phase-lesson",
	Description: "Whether the student needs, and has understood, the lesson on the topic",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"need_lesson": map[string]any{
				"type":        "boolean",
				"description": "Whether the student needs to review the lesson on the math topic",
			},
			"lesson_understood": map[string]any{
				"type":        "boolean",
				"description": "Whether the student understood the lesson and can apply it",
			},
			"clear_conversation": clearConversationProperty,
		},
		"required":             []any{"need_lesson", "lesson_understood", "clear_conversation"},
		"additionalProperties": false,
	},
}

// ResolutionSchema defines the JSON schema for the answer check.
var ResolutionSchema = &llm.Schema{
	Name:        "phase-resolution",
	Description: "Whether the student found the result of the exercise",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"good_answer": map[string]any{
				"type":        "boolean",
				"description": "Whether the student's latest message gives the correct final result",
			},
			"clear_conversation": clearConversationProperty,
		},
		"required":             []any{"good_answer", "clear_conversation"},
		"additionalProperties": false,
	},
}
