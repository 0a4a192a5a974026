package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSave(t *testing.T) {
	d, err := NewDir(filepath.Join(t.TempDir(), "saved"))
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	path, err := d.Save("F1", "report.pdf", []byte("bytes"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "F1-report.pdf" {
		t.Errorf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil || string(data) != "bytes" {
		t.Errorf("read back: %q, %v", data, err)
	}
}

func TestSave_StripsDirectoryComponents(t *testing.T) {
	root := filepath.Join(t.TempDir(), "saved")
	d, err := NewDir(root)
	if err != nil {
		t.Fatalf("NewDir: %v", err)
	}

	path, err := d.Save("F1", "../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(path, root) {
		t.Errorf("path escaped the root: %s", path)
	}
}
