package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Writer appends Items to a single session's rollout file. One Writer
// serializes all appends for its conversation, matching spec.md §5's
// "rollout appends are serialized per conversation" ordering guarantee.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
	enc  *json.Encoder
}

// Path returns sessions/<yyyy>/<mm>/<dd>/rollout-<ts>-<thread_id>.jsonl
// under home, per spec.md §4.D's file layout.
func Path(home string, createdAt time.Time, threadID string) string {
	createdAt = createdAt.UTC()
	dir := filepath.Join(home, "sessions",
		fmt.Sprintf("%04d", createdAt.Year()),
		fmt.Sprintf("%02d", createdAt.Month()),
		fmt.Sprintf("%02d", createdAt.Day()))
	name := fmt.Sprintf("rollout-%s-%s.jsonl", createdAt.Format("2006-01-02T15-04-05"), threadID)
	return filepath.Join(dir, name)
}

// Create opens a new rollout file for threadID and writes its SessionMeta as
// the first record, per the invariant that the first line is always
// session_meta.
func Create(home string, meta SessionMeta) (*Writer, error) {
	path := Path(home, meta.CreatedAt, meta.ThreadID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("rollout: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: create %s: %w", path, err)
	}
	w := &Writer{path: path, f: f, enc: json.NewEncoder(f)}
	metaCopy := meta
	if err := w.append(Item{Timestamp: meta.CreatedAt, Type: TypeSessionMeta, SessionMeta: &metaCopy}); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Append writes one RolloutItem as a line, flushing immediately so a crash
// never loses a fully-written record.
func (w *Writer) Append(it Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.append(it)
}

func (w *Writer) append(it Item) error {
	if it.Timestamp.IsZero() {
		it.Timestamp = time.Now().UTC()
	}
	if err := w.enc.Encode(it); err != nil {
		return fmt.Errorf("rollout: append to %s: %w", w.path, err)
	}
	return w.f.Sync()
}

// FilePath returns the file path this writer is appending to.
func (w *Writer) FilePath() string { return w.path }

// Close releases the underlying file handle.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// ReadFile loads every Item from a rollout file in order. Malformed lines
// are logged and skipped rather than failing the whole read (spec.md §7,
// RolloutIo: "failure to read a prior rollout is logged and the file is
// skipped in listings" — here scoped to the line, so a partially-written
// tail doesn't hide the rest of a session).
func ReadFile(path string) ([]Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var items []Item
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var it Item
		if err := json.Unmarshal(line, &it); err != nil {
			slog.Warn("rollout: skipping malformed line", "path", path, "error", err)
			continue
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return items, err
	}
	return items, nil
}
