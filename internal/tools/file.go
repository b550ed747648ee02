package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const maxListEntries = 500

// ReadFileTool returns file contents within the workspace, subject to the
// configured size cap.
type ReadFileTool struct {
	WS *Workspace
}

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read a file inside the workspace and return its full content"
}

func (t *ReadFileTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
		},
	}
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	path := stringArg(args, "path")
	content, err := t.WS.ReadFile(path)
	if err != nil {
		t.WS.logger.Warn("file read rejected", zap.String("op", "read"), zap.String("path", path), zap.Error(err))
		return Result{}, err
	}

	resolved, _ := t.WS.Resolve(path)
	rel := t.WS.Rel(resolved)
	t.WS.logger.Info("file read", zap.String("op", "read"), zap.String("path", rel), zap.Int("bytes", len(content)))

	res := ok(content)
	res.Data = map[string]interface{}{"path": rel}
	res.Metadata = map[string]interface{}{"size_bytes": len(content)}
	return res, nil
}

// WriteFileTool writes content to a file within the workspace, attaching a
// diff preview computed before the write. The write itself is not gated on
// confirmation.
type WriteFileTool struct {
	WS         *Workspace
	AllowWrite bool
}

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file inside the workspace; returns a diff preview of the change"
}

func (t *WriteFileTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
			{Name: "content", Type: "string", Description: "Full new file content", Required: true},
			{Name: "create_dirs", Type: "boolean", Description: "Create missing parent directories", Required: false},
		},
	}
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	if !t.AllowWrite {
		return Result{}, fmt.Errorf("write is disabled by configuration")
	}
	path := stringArg(args, "path")
	content := stringArg(args, "content")
	createDirs := true
	if v, exists := args["create_dirs"]; exists {
		createDirs, _ = v.(bool)
	}

	resolved, err := t.WS.Resolve(path)
	if err != nil {
		t.WS.logger.Warn("file write rejected", zap.String("op", "write"), zap.String("path", path), zap.Error(err))
		return Result{}, err
	}
	rel := t.WS.Rel(resolved)

	original := ""
	exists := false
	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(resolved); statErr == nil {
		if info.IsDir() {
			return Result{}, fmt.Errorf("%s is a directory", rel)
		}
		exists = true
		mode = info.Mode().Perm()
		original, err = t.WS.ReadFile(path)
		if err != nil {
			return Result{}, fmt.Errorf("read existing content: %w", err)
		}
	}

	preview := BuildDiffPreview(rel, original, content, exists)

	dir := filepath.Dir(resolved)
	if createDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, fmt.Errorf("create parent directories: %w", err)
		}
	}

	if err := atomicWrite(resolved, []byte(content), mode); err != nil {
		t.WS.logger.Error("file write failed", zap.String("op", "write"), zap.String("path", rel), zap.Error(err))
		return Result{}, err
	}

	added, removed := preview.Stats()
	t.WS.logger.Info("file written",
		zap.String("op", "write"), zap.String("path", rel),
		zap.String("change", preview.ChangeType),
		zap.Int("added", added), zap.Int("removed", removed))

	res := ok(fmt.Sprintf("wrote %d bytes to %s (%s, +%d/-%d lines)",
		len(content), rel, preview.ChangeType, added, removed))
	res.Data = map[string]interface{}{
		"path":         rel,
		"diff_preview": preview,
	}
	return res, nil
}

// atomicWrite writes via a temp file in the same directory plus rename. An
// existing file keeps its permission bits through the rename.
func atomicWrite(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tessera-write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// ListDirTool lists entries of a workspace directory.
type ListDirTool struct {
	WS *Workspace
}

func (t *ListDirTool) Name() string { return "list_directory" }

func (t *ListDirTool) Description() string {
	return "List entries of a workspace directory; set recursive=true to walk subdirectories"
}

func (t *ListDirTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "path", Type: "string", Description: "Workspace-relative directory (default \".\")", Required: false},
			{Name: "recursive", Type: "boolean", Description: "Walk subdirectories, honoring ignore rules", Required: false},
		},
	}
}

func (t *ListDirTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	path := stringArg(args, "path")
	if path == "" {
		path = "."
	}

	resolved, err := t.WS.Resolve(path)
	if err != nil {
		t.WS.logger.Warn("directory list rejected", zap.String("op", "list"), zap.String("path", path), zap.Error(err))
		return Result{}, err
	}
	rel := t.WS.Rel(resolved)

	var names []string
	if boolArg(args, "recursive") {
		err = t.WS.WalkFiles(path, maxListEntries, func(fileRel string, _ os.DirEntry) error {
			names = append(names, filepath.ToSlash(fileRel))
			return nil
		})
		if err != nil {
			return Result{}, err
		}
		sort.Strings(names)
	} else {
		entries, readErr := os.ReadDir(resolved)
		if readErr != nil {
			return Result{}, readErr
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			names = append(names, name)
		}
	}

	t.WS.logger.Info("directory listed", zap.String("op", "list"), zap.String("path", rel), zap.Int("entries", len(names)))

	res := ok(strings.Join(names, "\n"))
	res.Data = map[string]interface{}{"path": rel, "count": len(names)}
	return res, nil
}

// DeleteFileTool removes a file within the workspace. Deletion is
// destructive, so every result carries RequiresConfirmation.
type DeleteFileTool struct {
	WS          *Workspace
	AllowDelete bool
}

func (t *DeleteFileTool) Name() string { return "delete_file" }

func (t *DeleteFileTool) Description() string {
	return "Delete a file inside the workspace (requires confirmation)"
}

func (t *DeleteFileTool) Schema() Schema {
	return Schema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: []SchemaField{
			{Name: "path", Type: "string", Description: "Workspace-relative file path", Required: true},
		},
	}
}

func (t *DeleteFileTool) Execute(ctx context.Context, args map[string]interface{}) (Result, error) {
	confirm := func(res Result, err error) (Result, error) {
		res.RequiresConfirmation = true
		return res, err
	}

	if !t.AllowDelete {
		return confirm(Result{}, fmt.Errorf("delete is disabled by configuration"))
	}
	path := stringArg(args, "path")

	resolved, err := t.WS.Resolve(path)
	if err != nil {
		t.WS.logger.Warn("file delete rejected", zap.String("op", "delete"), zap.String("path", path), zap.Error(err))
		return confirm(Result{}, err)
	}
	rel := t.WS.Rel(resolved)

	info, err := os.Stat(resolved)
	if err != nil {
		return confirm(Result{}, err)
	}
	if info.IsDir() {
		return confirm(Result{}, fmt.Errorf("%s is a directory; only files can be deleted", rel))
	}

	if err := os.Remove(resolved); err != nil {
		t.WS.logger.Error("file delete failed", zap.String("op", "delete"), zap.String("path", rel), zap.Error(err))
		return confirm(Result{}, err)
	}

	t.WS.logger.Info("file deleted", zap.String("op", "delete"), zap.String("path", rel))

	res := ok(fmt.Sprintf("deleted %s", rel))
	res.Data = map[string]interface{}{"path": rel}
	return confirm(res, nil)
}
