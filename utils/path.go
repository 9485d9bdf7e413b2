package utils

import (
	"path/filepath"
	"strings"
)

// IsPathWithin reports whether path lies inside any of the roots. The check
// is lexical; symlinks are not resolved, so a link inside a root counts as
// inside even when its target is not.
func IsPathWithin(path string, roots []string) bool {
	for _, root := range roots {
		if IsUnder(path, root) {
			return true
		}
	}
	return false
}

// IsUnder reports whether path lies inside dir using lexical comparison only.
// An empty dir never contains anything.
func IsUnder(path, dir string) bool {
	if dir == "" || path == "" {
		return false
	}
	return contains(filepath.Clean(dir), filepath.Clean(path))
}

func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
