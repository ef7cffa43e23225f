// Package truncate implements the token- or byte-bounded head/tail
// truncation used to keep tool output within the model's context budget. It
// always leaves an explicit marker reporting how much was removed so the
// model is never silently shown a partial result.
package truncate

import (
	"fmt"
	"strings"
)

// Unit selects the measurement the Policy's Limit is expressed in.
type Unit string

const (
	UnitTokens Unit = "tokens"
	UnitBytes  Unit = "bytes"
)

// Policy bounds a truncation: Limit is in Unit's measurement.
type Policy struct {
	Unit  Unit
	Limit int
}

// Tokens returns a token-bounded policy.
func Tokens(limit int) Policy { return Policy{Unit: UnitTokens, Limit: limit} }

// Bytes returns a byte-bounded policy.
func Bytes(limit int) Policy { return Policy{Unit: UnitBytes, Limit: limit} }

// charsPerToken is the approximate tokenizer ratio used throughout: 4 chars
// per token, clamped so every non-empty string counts as at least one token.
const charsPerToken = 4

// size measures the text under the policy's unit.
func size(text string, unit Unit) int {
	switch unit {
	case UnitBytes:
		return len(text)
	default:
		return tokenCount(text)
	}
}

func tokenCount(text string) int {
	if len(text) == 0 {
		return 0
	}
	n := len(text) / charsPerToken
	if n < 1 {
		n = 1
	}
	return n
}

// marker renders the literal truncation notice for n removed units.
func marker(n int, unit Unit) string {
	word := "tokens"
	if unit == UnitBytes {
		word = "chars"
	}
	return fmt.Sprintf("\n…%d %s truncated…\n", n, word)
}

// Truncate applies policy P to text T per spec.md §4.C: if T already fits,
// it is returned unchanged; otherwise a head and tail slice are kept, joined
// by a marker reporting how much of the middle was removed. The split
// between head and tail budgets is as close to 1:1 as the remaining budget
// allows (§9 Open Questions: any split within ±10% is conforming), rounding
// the head up on an odd remainder.
func Truncate(text string, p Policy) string {
	total := size(text, p.Unit)
	if total <= p.Limit {
		return text
	}

	// Reserve room for a marker sized against the worst-case removed count
	// (the full text), then split the remainder between head and tail.
	markerBudget := len(marker(total, p.Unit))
	budget := p.Limit - markerBudget
	if budget < 0 {
		budget = 0
	}
	headBudget := (budget + 1) / 2
	tailBudget := budget - headBudget

	head := takeHead(text, headBudget, p.Unit)
	tail := takeTail(text, tailBudget, p.Unit)

	removed := total - size(head, p.Unit) - size(tail, p.Unit)
	if removed < 1 {
		removed = 1
	}

	return head + marker(removed, p.Unit) + tail
}

// takeHead returns a prefix of text measuring at most budget under unit.
func takeHead(text string, budget int, unit Unit) string {
	if budget <= 0 {
		return ""
	}
	switch unit {
	case UnitBytes:
		if budget >= len(text) {
			return text
		}
		return text[:budget]
	default:
		charBudget := budget * charsPerToken
		if charBudget >= len(text) {
			return text
		}
		cut := lastNewlineAt(text, charBudget)
		return text[:cut]
	}
}

// takeTail returns a suffix of text measuring at most budget under unit.
func takeTail(text string, budget int, unit Unit) string {
	if budget <= 0 {
		return ""
	}
	switch unit {
	case UnitBytes:
		if budget >= len(text) {
			return text
		}
		return text[len(text)-budget:]
	default:
		charBudget := budget * charsPerToken
		if charBudget >= len(text) {
			return text
		}
		start := len(text) - charBudget
		start = firstNewlineAt(text, start)
		return text[start:]
	}
}

// lastNewlineAt finds the newline at or before idx so a head cut lands on a
// line boundary when one is nearby; falls back to the raw cut otherwise.
func lastNewlineAt(text string, idx int) int {
	if idx >= len(text) {
		return len(text)
	}
	window := text[:idx]
	if nl := strings.LastIndexByte(window, '\n'); nl >= 0 && idx-nl < charsPerToken*4 {
		return nl + 1
	}
	return idx
}

// firstNewlineAt finds the newline at or after idx so a tail cut lands on a
// line boundary when one is nearby; falls back to the raw cut otherwise.
func firstNewlineAt(text string, idx int) int {
	if idx <= 0 {
		return 0
	}
	window := text[idx:]
	if nl := strings.IndexByte(window, '\n'); nl >= 0 && nl < charsPerToken*4 {
		return idx + nl + 1
	}
	return idx
}

// ShellOutput renders a shell command result with the fixed prefix spec.md
// §4.C requires for exec tool output, then truncates the whole rendering
// (prefix included) under policy p so the marker accounts for the header.
func ShellOutput(exitCode int, wallTime float64, totalLines int, output string, p Policy) string {
	prefix := fmt.Sprintf("Exit code: %d\nWall time: %.1f seconds\nTotal output lines: %d\nOutput:\n", exitCode, wallTime, totalLines)
	return Truncate(prefix+output, p)
}
