package rollout

import (
	"testing"
	"time"
)

func writeSession(t *testing.T, home, threadID string, src SessionSource, ts time.Time) {
	t.Helper()
	w, err := Create(home, SessionMeta{ThreadID: threadID, Source: src, Cwd: "/tmp", CreatedAt: ts, UpdatedAt: ts})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer w.Close()
	if err := w.Append(Item{Timestamp: ts, Type: TypeResponseItem, ResponseItem: &ResponseItem{Kind: ResponseItemMessage, Role: "user", Content: "hi"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
}

func TestListConversationsSourceFilter(t *testing.T) {
	home := t.TempDir()
	t1 := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	t2 := time.Date(2025, 8, 2, 9, 0, 0, 0, time.UTC)
	writeSession(t, home, "thread-exec", SourceExec, t1)
	writeSession(t, home, "thread-cli", SourceCli, t2)

	page, err := ListConversations(home, 10, "", map[SessionSource]bool{SourceCli: true})
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("got %d items, want 1", len(page.Items))
	}
	if page.Items[0].Head.ThreadID != "thread-cli" {
		t.Fatalf("got thread %q, want thread-cli", page.Items[0].Head.ThreadID)
	}
	if page.NumScannedFiles != 2 {
		t.Fatalf("num scanned files = %d, want 2 (excluded sessions still count)", page.NumScannedFiles)
	}
}

func TestListConversationsPagination(t *testing.T) {
	home := t.TempDir()
	base := time.Date(2025, 8, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		writeSession(t, home, string(rune('a'+i))+"-thread", SourceCli, base.Add(time.Duration(i)*time.Hour))
	}

	page1, err := ListConversations(home, 2, "", nil)
	if err != nil {
		t.Fatalf("page1: %v", err)
	}
	if len(page1.Items) != 2 {
		t.Fatalf("page1 got %d items, want 2", len(page1.Items))
	}
	// descending by timestamp: newest (i=2) then i=1
	if page1.Items[0].Head.ThreadID[0] != 'c' {
		t.Fatalf("page1[0] = %q, want newest first", page1.Items[0].Head.ThreadID)
	}

	page2, err := ListConversations(home, 2, page1.NextCursor, nil)
	if err != nil {
		t.Fatalf("page2: %v", err)
	}
	if len(page2.Items) != 1 {
		t.Fatalf("page2 got %d items, want 1", len(page2.Items))
	}
	if page2.Items[0].Head.ThreadID[0] != 'a' {
		t.Fatalf("page2[0] = %q, want oldest remaining", page2.Items[0].Head.ThreadID)
	}
}
