package migrate

import (
	"os"
	"path/filepath"
	"strings"
)

// cleanupEmptyDirs removes directories left empty by moving the given
// root-relative sources, walking up until a non-empty directory or root.
func cleanupEmptyDirs(root string, sources []string) {
	cleaned := make(map[string]bool)
	for _, p := range sources {
		dir := filepath.Dir(filepath.Join(root, filepath.FromSlash(p)))
		for {
			rel, err := filepath.Rel(root, dir)
			if err != nil {
				break
			}
			rel = filepath.ToSlash(rel)
			if rel == "." || rel == "" || strings.HasPrefix(rel, "..") {
				break
			}
			if cleaned[dir] {
				break
			}
			if err := os.Remove(dir); err != nil {
				break // not empty
			}
			cleaned[dir] = true
			dir = filepath.Dir(dir)
		}
	}
}
