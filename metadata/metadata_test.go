package metadata

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCaptureRegularFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	if err := os.WriteFile(path, []byte("x"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Chmod(path, 0o646); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	meta, err := Capture(path)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !meta.Regular {
		t.Fatal("expected regular file")
	}
	if meta.Mode.Perm() != 0o646 && runtime.GOOS != "windows" {
		t.Fatalf("unexpected mode %o", meta.Mode.Perm())
	}
	if meta.ModTime.IsZero() {
		t.Fatal("expected modification time")
	}
	if runtime.GOOS != "windows" && meta.UID != os.Getuid() {
		t.Fatalf("expected uid %d, got %d", os.Getuid(), meta.UID)
	}
	if !filepath.IsAbs(meta.Path) {
		t.Fatalf("expected absolute path, got %s", meta.Path)
	}
}

func TestCaptureDirectoryIsNotRegular(t *testing.T) {
	meta, err := Capture(t.TempDir())
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if meta.Regular {
		t.Fatal("directory reported as regular")
	}
}

func TestCaptureVanished(t *testing.T) {
	_, err := Capture(filepath.Join(t.TempDir(), "missing"))
	var ae *AccessError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AccessError, got %v", err)
	}
	if ae.Reason != ReasonVanished {
		t.Fatalf("expected vanished, got %s", ae.Reason)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatal("expected wrapped not-exist error")
	}
}

func TestCaptureBrokenSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	if err := os.Symlink(filepath.Join(dir, "nowhere"), link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	_, err := Capture(link)
	var ae *AccessError
	if !errors.As(err, &ae) || ae.Reason != ReasonBrokenLink {
		t.Fatalf("expected broken symlink error, got %v", err)
	}
}

func TestCaptureFollowsSymlink(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.WriteFile(target, nil, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(target, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}
	meta, err := Capture(link)
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if !meta.Regular || meta.Mode.Perm() != 0o600 {
		t.Fatalf("expected target metadata, got %v", meta.Mode)
	}
}
