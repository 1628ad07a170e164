// Package workspace confines every tool-visible path to a single root
// directory. All tools resolve paths through a Resolver before any I/O.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrPathEscape is returned when a resolved path lands outside the root.
var ErrPathEscape = errors.New("path escapes workspace")

// Resolver resolves and validates workspace-relative paths against a
// canonical root.
type Resolver struct {
	root string
}

// NewResolver canonicalises root (absolute, symlinks followed) and returns
// a resolver bound to it. The root must exist.
func NewResolver(root string) (*Resolver, error) {
	clean := strings.TrimSpace(root)
	if clean == "" {
		clean = "."
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	canon, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	return &Resolver{root: canon}, nil
}

// Root returns the canonical workspace root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns the canonical absolute form of path, verifying it stays
// inside the workspace root. Home-directory shorthand expands, relative
// paths resolve against the root, and symlinks in the existing portion of
// the path are followed before the containment check.
func (r *Resolver) Resolve(path string) (string, error) {
	clean := strings.TrimSpace(path)
	if clean == "" {
		return "", errors.New("path is required")
	}
	if clean == "~" || strings.HasPrefix(clean, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		clean = filepath.Join(home, strings.TrimPrefix(clean, "~"))
	}

	var target string
	if filepath.IsAbs(clean) {
		target = filepath.Clean(clean)
	} else {
		target = filepath.Join(r.root, clean)
	}

	canon, err := evalExistingSymlinks(target)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}

	rel, err := filepath.Rel(r.root, canon)
	if err != nil {
		return "", ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrPathEscape
	}
	return canon, nil
}

// evalExistingSymlinks canonicalises the longest existing ancestor of path
// and re-attaches the missing tail. EvalSymlinks alone fails for paths that
// do not exist yet, which write-style tools legitimately produce.
func evalExistingSymlinks(path string) (string, error) {
	remainder := ""
	cur := path
	for {
		resolved, err := filepath.EvalSymlinks(cur)
		if err == nil {
			if remainder == "" {
				return resolved, nil
			}
			return filepath.Join(resolved, remainder), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return path, nil
		}
		if remainder == "" {
			remainder = filepath.Base(cur)
		} else {
			remainder = filepath.Join(filepath.Base(cur), remainder)
		}
		cur = parent
	}
}
