package rollout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// maxTailMessages is the number of trailing Message-kind ResponseItems kept
// per conversation summary (spec.md §4.D "Tail semantics").
const maxTailMessages = 10

// defaultScanCap bounds how many rollout files a single ListConversations
// call will open before giving up and reporting reached_scan_cap.
const defaultScanCap = 2000

// Summary is one conversation entry returned by ListConversations: the
// session's head (SessionMeta) plus its last few message-kind items.
type Summary struct {
	Path   string
	Head   SessionMeta
	Tail   []ResponseItem
	SortTs string // RFC3339Nano timestamp used as the sort/cursor key
}

// cursorKey renders the "<timestamp>|<thread_id>" string a cursor encodes
// and a Summary sorts by, per spec.md §4.D.
func cursorKey(ts, threadID string) string {
	return ts + "|" + threadID
}

func (s Summary) key() string { return cursorKey(s.SortTs, s.Head.ThreadID) }

// Page is the result of one ListConversations call.
type Page struct {
	Items           []Summary
	NextCursor      string
	NumScannedFiles int
	ReachedScanCap  bool
}

// ListConversations walks home/sessions/<yyyy>/<mm>/<dd> from newest to
// oldest day, opening each rollout file to build a Summary, applying
// sourceFilter (nil or empty = no filter) and paginating with cursor, per
// spec.md §4.D.
func ListConversations(home string, pageSize int, cursor string, sourceFilter map[SessionSource]bool) (Page, error) {
	if pageSize <= 0 {
		pageSize = 20
	}

	var cursorTs, cursorThread string
	if cursor != "" {
		parts := strings.SplitN(cursor, "|", 2)
		cursorTs = parts[0]
		if len(parts) > 1 {
			cursorThread = parts[1]
		}
	}
	startKey := ""
	if cursor != "" {
		startKey = cursorKey(cursorTs, cursorThread)
	}

	days, err := listDaysDescending(home)
	if err != nil {
		return Page{}, err
	}

	var page Page
	scanned := 0
	for _, day := range days {
		files, err := listFilesDescending(day)
		if err != nil {
			continue
		}
		for _, fp := range files {
			if scanned >= defaultScanCap {
				page.ReachedScanCap = true
				page.NumScannedFiles = scanned
				if len(page.Items) > 0 {
					last := page.Items[len(page.Items)-1]
					page.NextCursor = last.key()
				}
				return page, nil
			}
			scanned++
			summary, ok, rerr := loadSummary(fp)
			if rerr != nil || !ok {
				continue
			}
			if startKey != "" && summary.key() >= startKey {
				continue
			}
			if len(sourceFilter) > 0 && !sourceFilter[summary.Head.Source] {
				continue
			}
			page.Items = append(page.Items, summary)
			if len(page.Items) >= pageSize {
				page.NumScannedFiles = scanned
				page.NextCursor = summary.key()
				return page, nil
			}
		}
	}
	page.NumScannedFiles = scanned
	return page, nil
}

func dayPrefix(ts string) string {
	if len(ts) < 10 {
		return ts
	}
	return ts[:10]
}

func listDaysDescending(home string) ([]string, error) {
	root := filepath.Join(home, "sessions")
	var days []string
	years, err := readDirNames(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(years)))
	for _, y := range years {
		months, err := readDirNames(filepath.Join(root, y))
		if err != nil {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(months)))
		for _, m := range months {
			dayDirs, err := readDirNames(filepath.Join(root, y, m))
			if err != nil {
				continue
			}
			sort.Sort(sort.Reverse(sort.StringSlice(dayDirs)))
			for _, d := range dayDirs {
				if _, err := strconv.Atoi(d); err != nil {
					continue
				}
				days = append(days, filepath.Join(root, y, m, d))
			}
		}
	}
	return days, nil
}

func readDirNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

func listFilesDescending(dayDir string) ([]string, error) {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files = append(files, filepath.Join(dayDir, e.Name()))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(files)))
	return files, nil
}

// loadSummary reads a rollout file's SessionMeta and trailing Message items.
func loadSummary(path string) (Summary, bool, error) {
	items, err := ReadFile(path)
	if err != nil || len(items) == 0 {
		return Summary{}, false, err
	}
	first := items[0]
	if first.Type != TypeSessionMeta || first.SessionMeta == nil {
		return Summary{}, false, fmt.Errorf("rollout: %s: first record is not session_meta", path)
	}

	sortTs := first.SessionMeta.CreatedAt.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	tail := trailingMessages(items)
	if len(tail) > 0 {
		sortTs = items[len(items)-1].Timestamp.UTC().Format("2006-01-02T15:04:05.999999999Z07:00")
	}

	return Summary{
		Path: path,
		Head: *first.SessionMeta,
		Tail: tail,
		SortTs: sortTs,
	}, true, nil
}

// trailingMessages returns the last up-to-maxTailMessages ResponseItems of
// kind "message", scanning from the end and stopping as soon as a
// non-message trailing record (Compacted, ShutdownComplete) is reached,
// per spec.md §4.D "Tail semantics".
func trailingMessages(items []Item) []ResponseItem {
	var tail []ResponseItem
	for i := len(items) - 1; i >= 0 && len(tail) < maxTailMessages; i-- {
		it := items[i]
		if it.Type != TypeResponseItem || it.ResponseItem == nil || it.ResponseItem.Kind != ResponseItemMessage {
			break
		}
		tail = append([]ResponseItem{*it.ResponseItem}, tail...)
	}
	return tail
}
