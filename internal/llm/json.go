package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseJSON decodes a model response into v with a two-phase policy:
// a strict parse of the whole response first, then a salvage pass over
// the span between the first '{' and the last '}'. Markdown code
// fences are stripped before either attempt.
func ParseJSON(text string, v any) error {
	text = stripFences(strings.TrimSpace(text))
	if text == "" {
		return fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("no JSON object in response")
	}

	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("salvaged span is not valid JSON: %w", err)
	}
	return nil
}

func stripFences(text string) string {
	if !strings.HasPrefix(text, "```") {
		return text
	}
	lines := strings.Split(text, "\n")
	endIdx := len(lines) - 1
	for i := len(lines) - 1; i > 0; i-- {
		if strings.TrimSpace(lines[i]) == "```" {
			endIdx = i
			break
		}
	}
	return strings.Join(lines[1:endIdx], "\n")
}
