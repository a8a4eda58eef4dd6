package validate

import "strings"

// ExtractJSON returns the first top-level JSON object in s, stripping
// markdown code fences first. Returns "" when no balanced object exists.
func ExtractJSON(s string) string {
	s = stripFences(s)
	candidates := findJSONCandidates(s)
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

// stripFences removes a surrounding markdown code fence if present.
func stripFences(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	// Language tag ("json") may follow the opening fence.
	if i := strings.IndexByte(trimmed, '\n'); i >= 0 {
		trimmed = trimmed[i+1:]
	}
	if i := strings.LastIndex(trimmed, "```"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return strings.TrimSpace(trimmed)
}

// findJSONCandidates scans the input string for top-level JSON object
// candidates. It handles nested braces and string escaping to correctly
// identify boundaries.
//
// Note: It is safe to iterate bytes for ASCII delimiters ({, }, ", \)
// because UTF-8 encoding guarantees that ASCII bytes never appear as part
// of a multi-byte sequence.
func findJSONCandidates(s string) []string {
	var candidates []string
	var depth int
	start := -1
	var inString bool
	var escape bool

	for i := 0; i < len(s); i++ {
		b := s[i]

		if escape {
			escape = false
			continue
		}

		if inString {
			if b == '\\' {
				escape = true
			} else if b == '"' {
				inString = false
			}
			continue
		}

		if b == '"' {
			inString = true
			continue
		}

		if b == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if b == '}' {
			if depth > 0 {
				depth--
				if depth == 0 && start != -1 {
					candidates = append(candidates, s[start:i+1])
					start = -1
				}
			}
		}
	}

	return candidates
}
