package unifiedexec

import (
	"context"
	"strings"
	"testing"
	"time"
)

func echoEnv(msg string) Env {
	return Env{Command: "/bin/sh", Args: []string{"-c", "printf '" + msg + "'"}}
}

func TestExecCommand_ShortLivedProcessReleasesID(t *testing.T) {
	m := NewManager(1)
	res, err := m.ExecCommand(context.Background(), echoEnv("hello"), "call-1", 500)
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	if !res.HasExited {
		t.Fatalf("expected short-lived process to have exited within yield window")
	}
	if !strings.Contains(string(res.Output), "hello") {
		t.Fatalf("output = %q, want it to contain %q", res.Output, "hello")
	}
	if m.Len() != 0 {
		t.Fatalf("exited process should not remain in the live map, got Len()=%d", m.Len())
	}
	if _, reserved := m.reserved[res.ProcessID]; reserved {
		t.Fatalf("process id %s should have been released, not left reserved", res.ProcessID)
	}
}

func TestExecCommand_LongLivedProcessStaysInMap(t *testing.T) {
	m := NewManager(2)
	res, err := m.ExecCommand(context.Background(), Env{Command: "/bin/sh", Args: []string{"-c", "sleep 5"}}, "call-2", 20)
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	if res.HasExited {
		t.Fatalf("expected process still running after a short yield window")
	}
	if m.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", m.Len())
	}
	if err := m.Remove(res.ProcessID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("Len() after Remove = %d, want 0", m.Len())
	}
}

func TestWriteStdin_UnknownProcessID(t *testing.T) {
	m := NewManager(3)
	if _, err := m.WriteStdin(context.Background(), "99999", []byte("x"), 0); err != ErrUnknownProcessID {
		t.Fatalf("err = %v, want ErrUnknownProcessID", err)
	}
}

func TestWriteStdin_RejectsNonTTY(t *testing.T) {
	m := NewManager(4)
	res, err := m.ExecCommand(context.Background(), Env{Command: "/bin/sh", Args: []string{"-c", "sleep 5"}}, "call-3", 20)
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	defer m.Remove(res.ProcessID)

	if _, err := m.WriteStdin(context.Background(), res.ProcessID, []byte("x"), 0); err != ErrNotTTY {
		t.Fatalf("err = %v, want ErrNotTTY", err)
	}
}

func TestCollectOutput_UnknownProcessID(t *testing.T) {
	m := NewManager(5)
	if _, _, _, err := m.CollectOutput(context.Background(), "12345", time.Now()); err != ErrUnknownProcessID {
		t.Fatalf("err = %v, want ErrUnknownProcessID", err)
	}
}

func TestPruneLocked_ProtectsRecentAndEvictsExitedFirst(t *testing.T) {
	m := NewManager(6)
	now := time.Now()

	// Fill to MaxProcesses: the 8 most-recently-used are protected, so put
	// an already-exited process among the unprotected (older) entries.
	var exitedID string
	for i := 0; i < MaxProcesses; i++ {
		id := m.allocateID()
		delete(m.reserved, id)
		p := &Process{ID: id, LastUsed: now.Add(-time.Duration(MaxProcesses-i) * time.Minute), done: make(chan struct{})}
		if i == 2 { // deep in the unprotected range
			p.hasExited = true
			close(p.done)
			exitedID = id
		}
		m.processes[id] = p
	}

	evicted := m.pruneLocked()
	if len(evicted) != 1 {
		t.Fatalf("pruneLocked evicted %d processes, want 1", len(evicted))
	}
	if evicted[0].ID != exitedID {
		t.Fatalf("evicted %s, want the already-exited process %s", evicted[0].ID, exitedID)
	}
	if _, ok := m.processes[exitedID]; ok {
		t.Fatalf("evicted process id should be removed from the live map")
	}
}

func TestTerminateAll_ClearsMapAndReservations(t *testing.T) {
	m := NewManager(7)
	res, err := m.ExecCommand(context.Background(), Env{Command: "/bin/sh", Args: []string{"-c", "sleep 5"}}, "call-4", 20)
	if err != nil {
		t.Fatalf("ExecCommand: %v", err)
	}
	_ = res
	m.TerminateAll()
	if m.Len() != 0 {
		t.Fatalf("Len() after TerminateAll = %d, want 0", m.Len())
	}
}

func TestAllocateID_NeverCollidesWithLiveOrReserved(t *testing.T) {
	m := NewManager(8)
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		id := m.allocateID()
		if seen[id] {
			t.Fatalf("allocateID returned duplicate id %s", id)
		}
		seen[id] = true
	}
}
