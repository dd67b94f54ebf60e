// Package chunk splits outbound text into platform-sized pieces.
//
// Lengths and offsets count runes, so a hard break never cuts a UTF-8
// sequence in half. Both splitters are pure and safe for concurrent use.
package chunk

import (
	"strings"
	"unicode"
)

// BreakFunc picks the break offset inside a scan window.
// A result <= 0 means the window has no usable boundary.
type BreakFunc func(window []rune) int

// SplitText splits text into chunks of at most limit runes, preferring
// to break at the last newline of each window, then at the last other
// whitespace, then hard at limit. The separator at a break is dropped.
//
// limit <= 0 disables splitting: the whole text comes back as one chunk.
func SplitText(text string, limit int) []string {
	return Split(text, limit, plainBreak)
}

// SplitMarkdown is like SplitText but only considers '\n' and ' ' as
// boundaries and breaks just after them.
//
// It does not track code fences: a fenced block longer than limit is
// cut like any other text.
func SplitMarkdown(text string, limit int) []string {
	return Split(text, limit, markdownBreak)
}

// Split runs the shrink-until-it-fits loop shared by SplitText and
// SplitMarkdown with a custom break strategy.
func Split(text string, limit int, pick BreakFunc) []string {
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	rest := []rune(text)
	if len(rest) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(rest)/limit+1)
	for len(rest) > limit {
		idx := pick(rest[:limit])
		if idx <= 0 || idx > limit {
			idx = limit
		}

		if c := trimRightSpace(rest[:idx]); len(c) > 0 {
			chunks = append(chunks, string(c))
		}

		// skip the one separator sitting on the break, then any run after it
		next := idx
		if idx < len(rest) && isSpace(rest[idx]) {
			next++
		}
		rest = trimLeftSpace(rest[next:])
	}

	if len(rest) > 0 {
		chunks = append(chunks, string(rest))
	}
	return chunks
}

// plainBreak breaks on the last newline, else the last whitespace.
func plainBreak(window []rune) int {
	nl, ws := scanBreakpoints(window)
	if nl > 0 {
		return nl
	}
	return ws
}

// markdownBreak breaks right after the last newline, else right after
// the last space.
func markdownBreak(window []rune) int {
	if nl := lastIndex(window, '\n'); nl > 0 {
		return nl + 1
	}
	if sp := lastIndex(window, ' '); sp > 0 {
		return sp + 1
	}
	return 0
}

// scanBreakpoints returns the index of the last '\n' and of the last
// non-newline whitespace in window, -1 when absent.
func scanBreakpoints(window []rune) (lastNewline, lastWhitespace int) {
	lastNewline, lastWhitespace = -1, -1
	for i, r := range window {
		if r == '\n' {
			lastNewline = i
		} else if isSpace(r) {
			lastWhitespace = i
		}
	}
	return lastNewline, lastWhitespace
}

func lastIndex(rs []rune, target rune) int {
	for i := len(rs) - 1; i >= 0; i-- {
		if rs[i] == target {
			return i
		}
	}
	return -1
}

// isSpace reports Unicode White_Space plus BOM, minus NEL.
func isSpace(r rune) bool {
	if r == '\u0085' {
		return false
	}
	return r == '\ufeff' || unicode.IsSpace(r)
}

func trimRightSpace(rs []rune) []rune {
	end := len(rs)
	for end > 0 && isSpace(rs[end-1]) {
		end--
	}
	return rs[:end]
}

func trimLeftSpace(rs []rune) []rune {
	start := 0
	for start < len(rs) && isSpace(rs[start]) {
		start++
	}
	return rs[start:]
}

// TrimSpace trims text the same way chunk boundaries are trimmed.
func TrimSpace(text string) string {
	return strings.TrimFunc(text, isSpace)
}
