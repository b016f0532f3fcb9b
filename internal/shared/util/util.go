package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// PrepareFileTarget makes path usable as a database file: it must not name
// an existing directory, and its parent directories are created (0755).
func PrepareFileTarget(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return fmt.Errorf("path %q is a directory, expected file", path)
	}
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}
