package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func newTestWorkspace(t *testing.T) *Workspace {
	t.Helper()
	ws, err := NewWorkspace(t.TempDir(), 0, zap.NewNop())
	requireNoError(t, err)
	return ws
}

func TestReadWriteRoundtrip(t *testing.T) {
	ws := newTestWorkspace(t)
	write := &WriteFileTool{WS: ws, AllowWrite: true}
	read := &ReadFileTool{WS: ws}

	res, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    "sub/file.txt",
		"content": "hello\nworld\n",
	})
	requireNoError(t, err)
	if !res.Success {
		t.Fatalf("write failed: %+v", res)
	}

	res, err = read.Execute(context.Background(), map[string]interface{}{"path": "sub/file.txt"})
	requireNoError(t, err)
	if res.Output != "hello\nworld\n" {
		t.Fatalf("unexpected content: %q", res.Output)
	}
}

func TestWriteAttachesDiffPreview(t *testing.T) {
	ws := newTestWorkspace(t)
	write := &WriteFileTool{WS: ws, AllowWrite: true}

	res, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    "a.txt",
		"content": "one\ntwo\n",
	})
	requireNoError(t, err)
	preview, ok := res.Data["diff_preview"].(DiffPreview)
	if !ok {
		t.Fatalf("expected diff preview in data")
	}
	if preview.ChangeType != ChangeCreate {
		t.Fatalf("expected create, got %s", preview.ChangeType)
	}
	added, removed := preview.Stats()
	if added != 2 || removed != 0 {
		t.Fatalf("unexpected stats +%d/-%d", added, removed)
	}

	res, err = write.Execute(context.Background(), map[string]interface{}{
		"path":    "a.txt",
		"content": "one\nthree\n",
	})
	requireNoError(t, err)
	preview = res.Data["diff_preview"].(DiffPreview)
	if preview.ChangeType != ChangeModify {
		t.Fatalf("expected modify, got %s", preview.ChangeType)
	}
	added, removed = preview.Stats()
	if added != 1 || removed != 1 {
		t.Fatalf("unexpected stats +%d/-%d", added, removed)
	}
}

func TestWritePreservesFileMode(t *testing.T) {
	ws := newTestWorkspace(t)
	write := &WriteFileTool{WS: ws, AllowWrite: true}

	path := filepath.Join(ws.Root(), "script.sh")
	requireNoError(t, os.WriteFile(path, []byte("echo old\n"), 0o755))

	res, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    "script.sh",
		"content": "echo new\n",
	})
	requireNoError(t, err)
	if !res.Success {
		t.Fatalf("write failed: %+v", res)
	}

	info, err := os.Stat(path)
	requireNoError(t, err)
	if info.Mode().Perm() != 0o755 {
		t.Fatalf("mode not preserved: %v", info.Mode().Perm())
	}
}

func TestWriteDisabled(t *testing.T) {
	ws := newTestWorkspace(t)
	write := &WriteFileTool{WS: ws, AllowWrite: false}

	if _, err := write.Execute(context.Background(), map[string]interface{}{
		"path":    "a.txt",
		"content": "x",
	}); err == nil {
		t.Fatalf("expected error when writes are disabled")
	}
}

func TestReadEnforcesSizeLimit(t *testing.T) {
	dir := t.TempDir()
	ws, err := NewWorkspace(dir, 8, zap.NewNop())
	requireNoError(t, err)
	requireNoError(t, os.WriteFile(filepath.Join(dir, "big.txt"), []byte("0123456789"), 0o644))

	read := &ReadFileTool{WS: ws}
	if _, err := read.Execute(context.Background(), map[string]interface{}{"path": "big.txt"}); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestListDirectory(t *testing.T) {
	ws := newTestWorkspace(t)
	requireNoError(t, os.MkdirAll(filepath.Join(ws.Root(), "sub"), 0o755))
	requireNoError(t, os.WriteFile(filepath.Join(ws.Root(), "top.txt"), []byte("x"), 0o644))
	requireNoError(t, os.WriteFile(filepath.Join(ws.Root(), "sub", "inner.txt"), []byte("y"), 0o644))

	list := &ListDirTool{WS: ws}
	res, err := list.Execute(context.Background(), map[string]interface{}{})
	requireNoError(t, err)
	if !strings.Contains(res.Output, "sub/") || !strings.Contains(res.Output, "top.txt") {
		t.Fatalf("unexpected listing: %q", res.Output)
	}

	res, err = list.Execute(context.Background(), map[string]interface{}{"recursive": true})
	requireNoError(t, err)
	if !strings.Contains(res.Output, "sub/inner.txt") {
		t.Fatalf("expected recursive listing, got %q", res.Output)
	}
}

func TestListDirectoryIsReadOnly(t *testing.T) {
	ws := newTestWorkspace(t)
	requireNoError(t, os.WriteFile(filepath.Join(ws.Root(), "f.txt"), []byte("x"), 0o644))

	list := &ListDirTool{WS: ws}
	first, err := list.Execute(context.Background(), map[string]interface{}{})
	requireNoError(t, err)
	second, err := list.Execute(context.Background(), map[string]interface{}{})
	requireNoError(t, err)
	if first.Output != second.Output {
		t.Fatalf("listing changed between calls: %q vs %q", first.Output, second.Output)
	}
}

func TestDeleteRequiresConfirmation(t *testing.T) {
	ws := newTestWorkspace(t)
	requireNoError(t, os.WriteFile(filepath.Join(ws.Root(), "gone.txt"), []byte("x"), 0o644))

	del := &DeleteFileTool{WS: ws, AllowDelete: true}
	res, err := del.Execute(context.Background(), map[string]interface{}{"path": "gone.txt"})
	requireNoError(t, err)
	if !res.RequiresConfirmation {
		t.Fatalf("delete must require confirmation")
	}
	if _, err := os.Stat(filepath.Join(ws.Root(), "gone.txt")); !os.IsNotExist(err) {
		t.Fatalf("file should be removed")
	}

	res, _ = del.Execute(context.Background(), map[string]interface{}{"path": "missing.txt"})
	if !res.RequiresConfirmation {
		t.Fatalf("failed delete must still require confirmation")
	}
}

func TestDeleteRefusesDirectories(t *testing.T) {
	ws := newTestWorkspace(t)
	requireNoError(t, os.Mkdir(filepath.Join(ws.Root(), "d"), 0o755))

	del := &DeleteFileTool{WS: ws, AllowDelete: true}
	if _, err := del.Execute(context.Background(), map[string]interface{}{"path": "d"}); err == nil {
		t.Fatalf("expected error deleting a directory")
	}
}

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
