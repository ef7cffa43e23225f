package patch

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileReader abstracts filesystem access so the engine can be exercised
// against an in-memory fixture in tests and against os.ReadFile in
// production.
type FileReader interface {
	ReadFile(path string) (string, error)
}

// Apply parses envelopeText (the bytes between and including
// "*** Begin Patch"/"*** End Patch") and resolves it into an Action against
// cwd, reading pre-images for Delete/Update hunks through reader.
//
// No partial writes: if any hunk's pre-image cannot be read or its context
// cannot be located, the whole patch is aborted and no Action is returned,
// per spec §7 (PatchParse/PatchIo have no partial-write semantics).
func Apply(envelopeText string, cwd string, reader FileReader) (*Action, error) {
	hunks, err := parseEnvelope(envelopeText)
	if err != nil {
		return nil, err
	}

	action := &Action{
		Cwd:          cwd,
		Changes:      make(map[string]FileChange, len(hunks)),
		OriginalText: envelopeText,
	}

	for _, h := range hunks {
		switch h.kind {
		case hunkAdd:
			content := ""
			if len(h.addLines) > 0 {
				content = strings.Join(h.addLines, "\n") + "\n"
			}
			resolved := resolvePath(cwd, h.path)
			action.Changes[resolved] = FileChange{Kind: KindAdd, Content: content}
			action.Order = append(action.Order, resolved)

		case hunkDelete:
			resolved := resolvePath(cwd, h.path)
			pre, rerr := reader.ReadFile(resolved)
			if rerr != nil {
				return nil, &IoError{Context: fmt.Sprintf("reading %s for delete", resolved), Err: rerr}
			}
			action.Changes[resolved] = FileChange{Kind: KindDelete, Content: pre}
			action.Order = append(action.Order, resolved)

		case hunkUpdate:
			resolved := resolvePath(cwd, h.path)
			pre, rerr := reader.ReadFile(resolved)
			if rerr != nil {
				return nil, &IoError{Context: fmt.Sprintf("reading %s for update", resolved), Err: rerr}
			}
			diffText, newContent, derr := applyUpdate(pre, h.chunks)
			if derr != nil {
				return nil, fmt.Errorf("update %s: %w", resolved, derr)
			}
			change := FileChange{Kind: KindUpdate, UnifiedDiff: diffText, NewContent: newContent}
			target := resolved
			if h.movePath != "" {
				target = resolvePath(cwd, h.movePath)
				change.MovePath = target
			}
			action.Changes[target] = change
			action.Order = append(action.Order, target)
		}
	}

	return action, nil
}

func resolvePath(cwd, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(cwd, path))
}
