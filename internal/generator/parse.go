package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ParseFileSet extracts a path-to-content file set from a model completion.
//
// Models reliably produce a JSON object but wrap it unpredictably: bare,
// inside a ```json fence, or with prose around it. The parser finds the
// outermost object and decodes it. Anything that does not contain a
// decodable object with at least one entry is ErrNoOutput.
func ParseFileSet(completion string) (map[string]string, error) {
	raw := extractObject(completion)
	if raw == "" {
		return nil, fmt.Errorf("%w: no JSON object in completion", ErrNoOutput)
	}

	var files map[string]string
	if err := json.Unmarshal([]byte(raw), &files); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoOutput, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: empty file set", ErrNoOutput)
	}

	for path := range files {
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("%w: empty file path", ErrNoOutput)
		}
	}
	return files, nil
}

// extractObject returns the outermost {...} span of s, or "" when none
// exists. Brace matching ignores braces inside JSON strings.
func extractObject(s string) string {
	start := strings.IndexByte(s, '{')
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
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
