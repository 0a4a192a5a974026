// Package store persists retrieved file bytes to a local directory.
package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// Dir is a durable byte sink rooted at a single directory.
type Dir struct {
	root string
}

// NewDir creates the directory if needed and returns the sink.
func NewDir(root string) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create save directory %s: %w", root, err)
	}
	return &Dir{root: root}, nil
}

// Save writes data as "<fileID>-<name>" under the root and returns the path.
// The declared name is reduced to its base to keep writes inside the root.
func (d *Dir) Save(fileID, name string, data []byte) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		base = fileID + ".bin"
	}
	path := filepath.Join(d.root, fileID+"-"+base)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}
