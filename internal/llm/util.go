package llm

import "strings"

// CleanJSONBlock extracts the JSON payload from a model response, stripping
// markdown code fences and any conversational preamble or trailing text.
func CleanJSONBlock(text string) string {
	text = strings.TrimSpace(text)

	// Strip a markdown fence, with or without a language tag.
	if strings.HasPrefix(text, "```") {
		if idx := strings.Index(text, "\n"); idx >= 0 {
			text = text[idx+1:]
		} else {
			text = strings.TrimPrefix(text, "```json")
			text = strings.TrimPrefix(text, "```")
		}
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
		text = strings.TrimSpace(text)
	}

	// If the response doesn't start with JSON, scan forward to the first
	// object or array and extract it with balanced delimiters.
	objStart := strings.IndexByte(text, '{')
	arrStart := strings.IndexByte(text, '[')
	start := objStart
	if start < 0 || (arrStart >= 0 && arrStart < start) {
		start = arrStart
	}
	if start < 0 {
		return text
	}

	var extracted string
	if text[start] == '{' {
		extracted = extractJSONObject(text[start:])
	} else {
		extracted = extractJSONArray(text[start:])
	}
	if extracted == "" {
		return text
	}
	return extracted
}

// extractJSONObject returns the first balanced JSON object at the start of s,
// or "" if s does not begin with one. Braces inside strings are ignored.
func extractJSONObject(s string) string {
	return extractBalanced(s, '{', '}')
}

// extractJSONArray returns the first balanced JSON array at the start of s.
func extractJSONArray(s string) string {
	return extractBalanced(s, '[', ']')
}

func extractBalanced(s string, open, closer byte) string {
	if len(s) == 0 || s[0] != open {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == closer:
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return ""
}
