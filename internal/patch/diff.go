package patch

import (
	"fmt"
	"strings"
)

// applyUpdate resolves every chunk of an Update hunk against the original
// file content, in chunk order, and renders both the post-image and a
// standard unified diff between pre- and post-image.
//
// Resolution: each chunk's pre-image (context plus removed lines) must
// appear verbatim in the file. The search starts after the previous chunk
// and falls back to the whole file, taking the earliest match either way;
// no trimmed or fuzzy matching is attempted.
func applyUpdate(original string, chunks []chunk) (unifiedDiff string, newContent string, err error) {
	origLines, hadTrailingNL := splitPreservingTrailingNewline(original)

	var out []string
	var diffBuf strings.Builder
	searchFrom := 0
	lastCopied := 0 // index into origLines already copied to out

	for ci, c := range chunks {
		oldSeq, newSeq := chunkSequences(c)
		matchStart, matchLen, ferr := locateChunk(origLines, oldSeq, searchFrom)
		if ferr != nil {
			return "", "", fmt.Errorf("chunk %d: %w", ci, ErrContextNotFound)
		}

		// Copy unchanged lines before the match.
		out = append(out, origLines[lastCopied:matchStart]...)

		oldStart := matchStart + 1 // 1-based
		newStart := len(out) + 1

		out = append(out, newSeq...)

		writeHunkHeader(&diffBuf, oldStart, matchLen, newStart, len(newSeq))
		writeHunkBody(&diffBuf, c)

		lastCopied = matchStart + matchLen
		searchFrom = lastCopied

		if c.endOfFile {
			lastCopied = len(origLines)
			searchFrom = lastCopied
		}
	}
	out = append(out, origLines[lastCopied:]...)

	newContent = joinLines(out, hadTrailingNL)
	return diffBuf.String(), newContent, nil
}

// chunkSequences splits a chunk's lines into the pre-image sequence
// (context+removed) and post-image sequence (context+added).
func chunkSequences(c chunk) (oldSeq, newSeq []string) {
	for _, l := range c.lines {
		switch l.kind {
		case lineContext:
			oldSeq = append(oldSeq, l.text)
			newSeq = append(newSeq, l.text)
		case lineRemove:
			oldSeq = append(oldSeq, l.text)
		case lineAdd:
			newSeq = append(newSeq, l.text)
		}
	}
	return oldSeq, newSeq
}

// locateChunk finds oldSeq as a contiguous run within lines, starting the
// search at or after searchFrom. If oldSeq is empty (pure insertion chunk)
// it matches a zero-length window at searchFrom.
func locateChunk(lines []string, oldSeq []string, searchFrom int) (start, length int, err error) {
	if len(oldSeq) == 0 {
		return searchFrom, 0, nil
	}
	for start := searchFrom; start+len(oldSeq) <= len(lines); start++ {
		if matchesAt(lines, oldSeq, start) {
			return start, len(oldSeq), nil
		}
	}
	// Fall back to searching the whole file (context may legitimately
	// precede the prior chunk's nominal end in malformed-but-sequential
	// patches); still report the earliest match.
	for start := 0; start+len(oldSeq) <= len(lines); start++ {
		if matchesAt(lines, oldSeq, start) {
			return start, len(oldSeq), nil
		}
	}
	return 0, 0, ErrContextNotFound
}

func matchesAt(lines, seq []string, start int) bool {
	for i, s := range seq {
		if lines[start+i] != s {
			return false
		}
	}
	return true
}

func writeHunkHeader(b *strings.Builder, oldStart, oldCount, newStart, newCount int) {
	b.WriteString("@@ -")
	b.WriteString(rangeSpec(oldStart, oldCount))
	b.WriteString(" +")
	b.WriteString(rangeSpec(newStart, newCount))
	b.WriteString(" @@\n")
}

func rangeSpec(start, count int) string {
	if count == 0 {
		// An empty range is conventionally reported at line start-1.
		if start > 0 {
			start--
		}
		return fmt.Sprintf("%d,0", start)
	}
	if count == 1 {
		return fmt.Sprintf("%d", start)
	}
	return fmt.Sprintf("%d,%d", start, count)
}

func writeHunkBody(b *strings.Builder, c chunk) {
	for _, l := range c.lines {
		b.WriteByte(byte(l.kind))
		b.WriteString(l.text)
		b.WriteByte('\n')
	}
}

func splitPreservingTrailingNewline(s string) (lines []string, hadTrailingNL bool) {
	if s == "" {
		return nil, false
	}
	hadTrailingNL = strings.HasSuffix(s, "\n")
	trimmed := s
	if hadTrailingNL {
		trimmed = s[:len(s)-1]
	}
	return strings.Split(trimmed, "\n"), hadTrailingNL
}

func joinLines(lines []string, trailingNL bool) string {
	s := strings.Join(lines, "\n")
	if trailingNL || len(lines) == 0 {
		s += "\n"
	}
	return s
}
