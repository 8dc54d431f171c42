// Package utils holds small text helpers shared across packages.
package utils

import "strings"

// Truncate returns s cut to at most max runes, appending "..." when
// anything was dropped. Safe on multi-byte text.
func Truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// SplitMessage breaks long outbound text into chunks of at most limit
// bytes, preferring to cut at a newline and then at a space so words
// survive intact. Short text comes back as a single chunk.
func SplitMessage(content string, limit int) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []string
	for len(content) > limit {
		cut := lastCut(content[:limit], 200, "\n")
		if cut <= 0 {
			cut = lastCut(content[:limit], 100, " \t")
		}
		if cut <= 0 {
			cut = limit
		}

		if chunk := strings.TrimSpace(content[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		content = strings.TrimSpace(content[cut:])
	}
	if content != "" {
		chunks = append(chunks, content)
	}
	return chunks
}

// lastCut finds the last cutset byte within the trailing window of s,
// or -1 when the window holds none.
func lastCut(s string, window int, cutset string) int {
	start := len(s) - window
	if start < 0 {
		start = 0
	}
	if i := strings.LastIndexAny(s[start:], cutset); i >= 0 {
		return start + i
	}
	return -1
}
