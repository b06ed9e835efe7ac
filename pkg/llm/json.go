package llm

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrUnparsableJSON is returned when every stage of the parse ladder failed,
// including the final repair completion.
var ErrUnparsableJSON = errors.New("llm: response is not parsable as JSON")

// extractJSON attempts to recover a JSON object from raw model output
// without a further LLM call. Stages:
//
//  1. direct parse (after trimming markdown code fences)
//  2. substring between the first '{' and the last '}'
//
// Returns the recovered object or false when both stages fail.
func extractJSON(text string) (json.RawMessage, bool) {
	candidate := strings.TrimSpace(stripFences(text))
	if json.Valid([]byte(candidate)) && candidate != "" {
		return json.RawMessage(candidate), true
	}

	start := strings.Index(candidate, "{")
	end := strings.LastIndex(candidate, "}")
	if start >= 0 && end > start {
		sub := candidate[start : end+1]
		if json.Valid([]byte(sub)) {
			return json.RawMessage(sub), true
		}
	}
	return nil, false
}

// stripFences removes a surrounding markdown code fence (``` or ```json)
// if present. Models in JSON mode occasionally still wrap their output.
func stripFences(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}
