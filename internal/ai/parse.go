package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNoJSONObject = errors.New("no JSON object in response")

var fenceReplacer = strings.NewReplacer("```json", "", "```JSON", "", "```", "")

// stripCodeFences removes Markdown code fence markers.
func stripCodeFences(s string) string {
	return strings.TrimSpace(fenceReplacer.Replace(s))
}

// extractJSONObject returns the first balanced {...} span, ignoring braces inside strings.
func extractJSONObject(s string) (string, error) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", errNoJSONObject
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", errNoJSONObject
}

// decodeJSON strips fences, extracts the first object and unmarshals it into v.
func decodeJSON(raw string, v any) error {
	obj, err := extractJSONObject(stripCodeFences(raw))
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(obj), v)
}
