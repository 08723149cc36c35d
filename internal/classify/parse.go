package classify

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// resultEntry is one account's entry in the model's JSON response.
type resultEntry struct {
	Handle     string  `json:"handle"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// parseResponse extracts the JSON result array from a model response
// and keys it by lowercased handle. Models wrap JSON in code fences or
// prose often enough that we locate the array by bracket matching
// rather than requiring a clean body.
func parseResponse(raw string) (map[string]resultEntry, error) {
	body := extractArray(raw)
	if body == "" {
		return nil, fmt.Errorf("no JSON array in response")
	}

	var entries []resultEntry
	if err := json.Unmarshal([]byte(body), &entries); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	byHandle := make(map[string]resultEntry, len(entries))
	for _, e := range entries {
		handle := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(e.Handle, "@")))
		if handle == "" {
			continue
		}
		byHandle[handle] = e
	}
	return byHandle, nil
}

// extractArray returns the first top-level JSON array in s, or "".
func extractArray(s string) string {
	start := strings.Index(s, "[")
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
