// Package metadata captures the permission-relevant attributes of a file.
package metadata

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/djherbis/times"
)

// FileMetadata is a point-in-time snapshot. It is never cached.
type FileMetadata struct {
	Path       string
	Mode       os.FileMode
	Size       int64
	UID        int
	ModTime    time.Time
	ChangeTime time.Time
	Regular    bool
}

const (
	ReasonPermission = "permission denied"
	ReasonVanished   = "vanished"
	ReasonBrokenLink = "broken symlink"
	ReasonIO         = "io error"
)

// AccessError reports a file whose metadata could not be read.
type AccessError struct {
	Path   string
	Reason string
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Capture stats path, following symlinks.
func Capture(path string) (FileMetadata, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	info, err := os.Stat(abs)
	if err != nil {
		return FileMetadata{}, classify(abs, err)
	}
	meta := FileMetadata{
		Path:    abs,
		Mode:    info.Mode(),
		Size:    info.Size(),
		UID:     ownerUID(info),
		ModTime: info.ModTime(),
		Regular: info.Mode().IsRegular(),
	}
	if ts := times.Get(info); ts.HasChangeTime() {
		meta.ChangeTime = ts.ChangeTime()
	}
	return meta, nil
}

func classify(path string, err error) *AccessError {
	reason := ReasonIO
	switch {
	case errors.Is(err, fs.ErrPermission):
		reason = ReasonPermission
	case errors.Is(err, fs.ErrNotExist):
		reason = ReasonVanished
		if li, lerr := os.Lstat(path); lerr == nil && li.Mode()&os.ModeSymlink != 0 {
			reason = ReasonBrokenLink
		}
	}
	return &AccessError{Path: path, Reason: reason, Err: err}
}
