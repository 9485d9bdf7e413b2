//go:build !windows
// +build !windows

package metadata

import (
	"os"
	"syscall"
)

func ownerUID(info os.FileInfo) int {
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok || stat == nil {
		return -1
	}
	return int(stat.Uid)
}
