package util

import (
	"os"
	"path/filepath"
	"testing"
)

func TestPrepareFileTarget(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "mirror.db")

	if err := PrepareFileTarget(path); err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("parent not created: %v", err)
	}
	if !info.IsDir() {
		t.Fatalf("expected parent to be a directory")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("target itself must not be created, stat err=%v", err)
	}
}

func TestPrepareFileTarget_RejectsDirectory(t *testing.T) {
	t.Parallel()

	if err := PrepareFileTarget(t.TempDir()); err == nil {
		t.Fatal("expected error for directory target")
	}
}

func TestPrepareFileTarget_BareFileName(t *testing.T) {
	t.Parallel()

	if err := PrepareFileTarget("mirror.db"); err != nil {
		t.Fatalf("bare file name should need no directories: %v", err)
	}
}
