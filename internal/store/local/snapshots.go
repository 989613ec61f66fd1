// Package local implements a local filesystem snapshot store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotStore writes page snapshots to the local filesystem.
type SnapshotStore struct {
	baseDir string
}

// New creates a filesystem-backed snapshot store rooted at baseDir.
func New(baseDir string) (*SnapshotStore, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("snapshot base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &SnapshotStore{baseDir: baseDir}, nil
}

// Put writes data to a file under the base directory and returns a file://
// URI. Paths escaping the base directory are rejected.
func (s *SnapshotStore) Put(_ context.Context, path string, _ string, data []byte) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("snapshot path is required")
	}
	fullPath := filepath.Join(s.baseDir, path)

	cleanBase := filepath.Clean(s.baseDir)
	if !strings.HasPrefix(filepath.Clean(fullPath), cleanBase+string(filepath.Separator)) {
		return "", fmt.Errorf("snapshot path escapes base directory")
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return "", fmt.Errorf("create snapshot parent directories: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o600); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	return "file://" + fullPath, nil
}
