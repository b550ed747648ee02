package tools

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"go.uber.org/zap"
)

// DefaultMaxReadBytes caps single-file reads at 10MB.
const DefaultMaxReadBytes = 10 * 1024 * 1024

// Workspace bundles the path guard, ignore rules, and read limits shared by
// all file-backed tools. Instances hold only configuration and are safe for
// concurrent use.
type Workspace struct {
	guard        *PathGuard
	ignore       *ignore.GitIgnore
	maxReadBytes int64
	logger       *zap.Logger
}

// NewWorkspace builds a workspace rooted at root. A .gitignore at the root,
// when present, filters recursive listings and retrieval walks.
func NewWorkspace(root string, maxReadBytes int64, logger *zap.Logger) (*Workspace, error) {
	guard, err := NewPathGuard(root)
	if err != nil {
		return nil, fmt.Errorf("build workspace: %w", err)
	}
	if maxReadBytes <= 0 {
		maxReadBytes = DefaultMaxReadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var ign *ignore.GitIgnore
	if gi, err := ignore.CompileIgnoreFile(filepath.Join(guard.Root, ".gitignore")); err == nil {
		ign = gi
	}

	return &Workspace{guard: guard, ignore: ign, maxReadBytes: maxReadBytes, logger: logger}, nil
}

// Root returns the resolved workspace root.
func (w *Workspace) Root() string {
	return w.guard.Root
}

// Resolve validates a path against the guard.
func (w *Workspace) Resolve(p string) (string, error) {
	return w.guard.Resolve(p)
}

// Rel returns the workspace-relative form of a resolved path.
func (w *Workspace) Rel(resolved string) string {
	return w.guard.Rel(resolved)
}

// MaxReadBytes returns the per-file read cap.
func (w *Workspace) MaxReadBytes() int64 {
	return w.maxReadBytes
}

// Ignored reports whether a workspace-relative path matches ignore rules or
// a well-known skip directory.
func (w *Workspace) Ignored(rel string) bool {
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if skipDir(part) {
			return true
		}
	}
	return w.ignore != nil && w.ignore.MatchesPath(rel)
}

// ReadFile returns file contents, enforcing the size cap.
func (w *Workspace) ReadFile(path string) (string, error) {
	resolved, err := w.guard.Resolve(path)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", w.guard.Rel(resolved))
	}
	if info.Size() > w.maxReadBytes {
		return "", fmt.Errorf("file %s exceeds read limit (%d > %d bytes)",
			w.guard.Rel(resolved), info.Size(), w.maxReadBytes)
	}
	data, err := os.ReadFile(resolved)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Stat returns file info for a path inside the guard.
func (w *Workspace) Stat(path string) (fs.FileInfo, error) {
	resolved, err := w.guard.Resolve(path)
	if err != nil {
		return nil, err
	}
	return os.Stat(resolved)
}

// WalkFiles walks regular files under root, honoring ignore rules, and
// invokes fn with the workspace-relative path.
func (w *Workspace) WalkFiles(root string, maxFiles int, fn func(rel string, d fs.DirEntry) error) error {
	if fn == nil {
		return fmt.Errorf("fn is required")
	}
	resolved, err := w.guard.Resolve(root)
	if err != nil {
		return err
	}
	count := 0
	return filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := w.guard.Rel(path)
		if d.IsDir() {
			if path != resolved && w.Ignored(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if w.Ignored(rel) {
			return nil
		}
		if maxFiles > 0 && count >= maxFiles {
			return filepath.SkipAll
		}
		count++
		return fn(rel, d)
	})
}

func skipDir(name string) bool {
	switch strings.ToLower(name) {
	case ".git", "node_modules", ".idea", ".vscode", "vendor", ".cache", "__pycache__":
		return true
	default:
		return false
	}
}
