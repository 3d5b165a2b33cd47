package scanning

import (
	"fmt"
	"strings"
)

// extractJSON trims a model reply down to the JSON object it contains.
// Models wrap replies in markdown fences or add prose despite the prompt.
func extractJSON(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	end := strings.LastIndex(text, "}")
	if end < start {
		return nil, fmt.Errorf("invalid JSON object in response")
	}

	return []byte(text[start : end+1]), nil
}
