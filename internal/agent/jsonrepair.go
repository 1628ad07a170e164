package agent

import (
	"encoding/json"
	"strings"
)

// repairJSON parses model-generated argument JSON, tolerating markdown fences
// and simple truncation. It returns the first candidate that parses: the
// cleaned input itself, then the input with a closing quote, quote+brace,
// brace, quote+bracket, or bracket appended. Empty input is the empty object.
// When nothing parses the original parse error is returned.
func repairJSON(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "{}", nil
	}

	if strings.HasPrefix(s, "```") {
		lines := strings.Split(s, "\n")
		lines = lines[1:]
		if len(lines) > 0 && strings.HasPrefix(lines[len(lines)-1], "```") {
			lines = lines[:len(lines)-1]
		}
		s = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	if json.Valid([]byte(s)) {
		return s, nil
	}

	for _, suffix := range []string{`"`, `"}`, `}`, `"]`, `]`} {
		if candidate := s + suffix; json.Valid([]byte(candidate)) {
			return candidate, nil
		}
	}

	// Surface the original parse error, not one from a repair attempt.
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return "", err
	}
	return s, nil
}
