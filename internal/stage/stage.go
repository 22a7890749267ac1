package stage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Errors surfaced by staging operations.
var (
	// ErrSourceNotFound indicates the source directory does not exist or is
	// not a directory.
	ErrSourceNotFound = errors.New("stage: source directory not found")
	// ErrCopyFailed wraps filesystem failures during removal or copy.
	ErrCopyFailed = errors.New("stage: copy failed")
)

// Manager owns per-deployment asset directories under a common root.
type Manager struct {
	root string
}

// New returns a Manager rooted at the served-content directory.
func New(root string) (*Manager, error) {
	if root == "" {
		return nil, fmt.Errorf("stage root cannot be empty")
	}
	return &Manager{root: root}, nil
}

// Dir returns the staging directory for the given identifier.
func (m *Manager) Dir(id string) string {
	return filepath.Join(m.root, id)
}

// Stage copies the source tree into <root>/<id>, replacing any prior tree at
// that identifier wholesale. Overwrite, not merge: staging the same source
// twice leaves the destination identical to a single staging.
func (m *Manager) Stage(sourceDir, id string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("stage identifier cannot be empty")
	}
	info, err := os.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrSourceNotFound, sourceDir)
	}
	dest := m.Dir(id)
	if err := os.RemoveAll(dest); err != nil {
		return "", fmt.Errorf("%w: clear %s: %v", ErrCopyFailed, dest, err)
	}
	if err := copyTree(sourceDir, dest); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCopyFailed, err)
	}
	return dest, nil
}

// Remove deletes a staged directory. It refuses paths outside the configured
// root so a corrupt record cannot direct deletion elsewhere.
func (m *Manager) Remove(path string) error {
	if path == "" {
		return nil
	}
	rel, err := filepath.Rel(m.root, path)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
		return fmt.Errorf("refusing to remove path outside stage root: %s", path)
	}
	return os.RemoveAll(path)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		info, err := entry.Info()
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if entry.IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			return os.Chmod(target, info.Mode().Perm())
		}
		return copyFile(path, target, info.Mode().Perm())
	})
}

func copyFile(src, dst string, perm fs.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	// The create mode is filtered by umask; restore the source bits exactly.
	if err := out.Chmod(perm); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
