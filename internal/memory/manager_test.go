package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(10, 5, time.Hour, nil)

	conv, created := m.GetOrCreate("", "/tmp/ws", "")
	if !created {
		t.Fatalf("expected new session")
	}
	if conv.ID() == "" {
		t.Fatalf("expected generated session id")
	}

	again, created := m.GetOrCreate(conv.ID(), "/tmp/ws", "")
	if created {
		t.Fatalf("expected existing session")
	}
	if again != conv {
		t.Fatalf("expected same conversation instance")
	}
}

func TestManagerCreatesUnknownID(t *testing.T) {
	m := NewManager(10, 5, time.Hour, nil)
	conv, created := m.GetOrCreate("client-chosen", "/tmp/ws", "")
	if !created {
		t.Fatalf("expected creation for unknown id")
	}
	if conv.ID() != "client-chosen" {
		t.Fatalf("expected client id preserved, got %s", conv.ID())
	}
}

func TestManagerCleanupStale(t *testing.T) {
	m := NewManager(10, 5, 10*time.Millisecond, nil)
	stale, _ := m.GetOrCreate("", "", "")
	_ = stale

	time.Sleep(20 * time.Millisecond)
	fresh, _ := m.GetOrCreate("", "", "")

	removed := m.CleanupStale()
	if removed != 1 {
		t.Fatalf("expected 1 stale session evicted, got %d", removed)
	}
	if _, ok := m.Get(fresh.ID()); !ok {
		t.Fatalf("fresh session should survive")
	}
	if m.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", m.Len())
	}
}

func TestDetectProject(t *testing.T) {
	dir := t.TempDir()
	if _, ok := DetectProject(dir); ok {
		t.Fatalf("expected no detection in empty dir")
	}

	if err := os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	info, ok := DetectProject(dir)
	if !ok || info.Language != "go" || info.Marker != "go.mod" {
		t.Fatalf("unexpected detection: %+v ok=%v", info, ok)
	}
}
