package solver

import "github.com/abhisek/mathchat/internal/llm"

// StepsSchema defines the JSON schema for decomposing a student's work
// into independent solver queries.
var StepsSchema = &llm.Schema{
	Name:        "solver-steps",
	Description: "Wolfram Alpha queries that check each calculation a student wrote, with a short explanation per query",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"wolfram_queries": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"maxItems":    8,
				"description": "One Wolfram Alpha query per calculation in the student's message, in the order they appear",
			},
			"calculation_explanation": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"maxItems":    8,
				"description": "For each query, what the student was computing",
			},
		},
		"required":             []any{"wolfram_queries", "calculation_explanation"},
		"additionalProperties": false,
	},
}
