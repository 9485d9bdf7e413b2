//go:build windows
// +build windows

package metadata

import "os"

// Windows has no numeric owner in the stat result.
func ownerUID(os.FileInfo) int {
	return -1
}
