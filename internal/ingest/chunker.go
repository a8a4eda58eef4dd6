package ingest

import "strings"

// ChunkText splits text into chunks of at most chunkSize characters,
// preferring paragraph breaks, then sentence breaks, then a hard cut.
// Adjacent chunks overlap by chunkOverlap characters when a hard cut was
// required. Whitespace-only input yields no chunks.
func ChunkText(text string, chunkSize int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if len(text) <= chunkSize {
		return []string{text}
	}

	var chunks []string
	remaining := text
	for len(remaining) > chunkSize {
		cut := findCut(remaining, chunkSize)
		chunk := strings.TrimSpace(remaining[:cut])
		if chunk != "" {
			chunks = append(chunks, chunk)
		}

		next := cut
		// Overlap only on hard cuts; natural boundaries carry their own
		// context.
		if !isBoundary(remaining, cut) && cut > chunkOverlap {
			next = cut - chunkOverlap
		}
		remaining = strings.TrimSpace(remaining[next:])
	}
	if remaining != "" {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// findCut returns the best split position at or before limit: the last
// paragraph break, else the last sentence end, else the last space, else
// the hard limit.
func findCut(s string, limit int) int {
	if limit >= len(s) {
		return len(s)
	}
	window := s[:limit]

	if i := strings.LastIndex(window, "\n\n"); i > limit/2 {
		return i
	}
	for _, sep := range []string{". ", "! ", "? ", ".\n"} {
		if i := strings.LastIndex(window, sep); i > limit/2 {
			return i + len(sep)
		}
	}
	if i := strings.LastIndexByte(window, ' '); i > limit/2 {
		return i
	}
	return limit
}

func isBoundary(s string, cut int) bool {
	if cut >= len(s) || cut == 0 {
		return true
	}
	c := s[cut-1]
	return c == '\n' || c == ' ' || c == '.' || c == '!' || c == '?'
}
