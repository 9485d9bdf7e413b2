//go:build !windows
// +build !windows

package config

// DefaultRoots returns the directories audited when none are given.
func DefaultRoots(home string) []string {
	roots := make([]string, 0, 3)
	if home != "" {
		roots = append(roots, home)
	}
	return append(roots, "/etc", "/var")
}
