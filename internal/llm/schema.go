package llm

// BuildStructuredSchema returns the JSON-Schema (draft 2020-12 subset) that a
// structured extraction must satisfy before any field is trusted.
func BuildStructuredSchema() map[string]any {
	ticket := map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]any{
			"type": map[string]any{"type": "string", "minLength": 1},
			"numbers": map[string]any{
				"type":     "array",
				"minItems": 1,
				"maxItems": 3,
				"items":    map[string]any{"type": "string", "pattern": `^\d{1,2}$`},
			},
			"amount": map[string]any{"type": "integer", "minimum": 0},
			"payout": map[string]any{"type": "integer", "minimum": 0},
		},
		"required": []string{"type", "numbers"},
	}

	props := map[string]any{
		"date":     map[string]any{"type": []string{"string", "null"}, "pattern": `^\d{4}-\d{2}-\d{2}$`},
		"source":   nullableString(),
		"track":    nullableString(),
		"raceName": nullableString(),
		"memo":     nullableString(),
		"payout":   map[string]any{"type": []string{"integer", "null"}, "minimum": 0},
		"bets":     map[string]any{"type": "array", "items": ticket},
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             []string{"bets"},
	}
}

// BuildRaceLookupSchema constrains the race-name lookup answer.
func BuildRaceLookupSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"raceName": nullableString(),
		},
		"required": []string{"raceName"},
	}
}

func nullableString() map[string]any {
	return map[string]any{"type": []string{"string", "null"}}
}
