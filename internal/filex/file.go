// Package filex contains small filesystem helpers shared by the blob and
// chunk stores.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir (and any missing parents) and returns its path.
// Fails when a non-directory already occupies the path.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	fi, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return "", fmt.Errorf("%s exists and is not a directory", dir)
	}
	return dir, nil
}

// EnsureSubDir creates a subdirectory under root and returns its path.
func EnsureSubDir(root string, parts ...string) (string, error) {
	return EnsureDir(filepath.Join(append([]string{root}, parts...)...))
}
