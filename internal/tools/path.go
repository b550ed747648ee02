package tools

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is the message used for all containment violations. It is
// intentionally generic: observations must not leak resolved paths outside
// the workspace.
const ErrPathEscape = "path escapes workspace root"

// PathGuard ensures file operations stay within a workspace root. The root
// is resolved through symlinks at construction so comparisons hold even when
// the workspace itself lives behind a symlink.
type PathGuard struct {
	Root string
}

// NewPathGuard constructs a guard rooted at root (defaults to current working directory).
func NewPathGuard(root string) (*PathGuard, error) {
	if root == "" {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return nil, err
		}
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	resolved, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &PathGuard{Root: resolved}, nil
}

// Resolve validates p and returns an absolute, symlink-resolved path inside
// Root. Escapes via "..", absolute paths outside the root, or symlink
// targets outside the root fail closed.
func (g *PathGuard) Resolve(p string) (string, error) {
	if p == "" {
		return "", fmt.Errorf("path is required")
	}
	clean := filepath.Clean(p)
	var abs string
	if filepath.IsAbs(clean) {
		abs = clean
	} else {
		abs = filepath.Join(g.Root, clean)
	}
	abs = filepath.Clean(abs)

	if !g.contains(abs) {
		return "", fmt.Errorf("%s", ErrPathEscape)
	}

	resolved, err := resolveExisting(abs)
	if err != nil {
		return "", err
	}
	if !g.contains(resolved) {
		return "", fmt.Errorf("%s", ErrPathEscape)
	}
	return resolved, nil
}

// Rel returns the workspace-relative form of an already-resolved path.
func (g *PathGuard) Rel(resolved string) string {
	rel, err := filepath.Rel(g.Root, resolved)
	if err != nil {
		return resolved
	}
	return rel
}

func (g *PathGuard) contains(abs string) bool {
	return abs == g.Root || strings.HasPrefix(abs, g.Root+string(os.PathSeparator))
}

// resolveExisting resolves symlinks along the deepest existing prefix of
// path, then re-joins the not-yet-existing remainder. This lets writes to
// new files be validated without the target existing.
func resolveExisting(path string) (string, error) {
	remainder := make([]string, 0, 4)
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			for i := len(remainder) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, remainder[i])
			}
			return resolved, nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("resolve %s: no existing ancestor", path)
		}
		remainder = append(remainder, filepath.Base(cur))
		cur = parent
	}
}
