//go:build windows
// +build windows

package config

import (
	"os"
	"path/filepath"
)

// DefaultRoots returns the directories audited when none are given.
// Entries whose environment variable is unset are left out.
func DefaultRoots(home string) []string {
	roots := make([]string, 0, 3)
	if home != "" {
		roots = append(roots, home)
	}
	if pd := os.Getenv("ProgramData"); pd != "" {
		roots = append(roots, pd)
	}
	if sr := os.Getenv("SystemRoot"); sr != "" {
		roots = append(roots, filepath.Join(sr, "System32", "drivers", "etc"))
	}
	return roots
}
