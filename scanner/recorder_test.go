package scanner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"prmscan/metadata"
)

func TestRecordEmitsAlertForRiskyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "risky")
	writeFile(t, path, 0o662)
	sink := &collectingSink{}
	rec := NewRecorder("", sink)
	finding, err := rec.Record(context.Background(), path)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if finding == nil {
		t.Fatal("expected finding")
	}
	if len(sink.findings) != 1 || sink.findings[0].File != finding.File {
		t.Fatalf("expected alert before return, got %v", sink.findings)
	}
}

func TestRecordInnocuousFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fine")
	writeFile(t, path, 0o644)
	sink := &collectingSink{}
	finding, err := NewRecorder("", sink).Record(context.Background(), path)
	if err != nil || finding != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", finding, err)
	}
	if len(sink.findings) != 0 {
		t.Fatal("no alert expected")
	}
}

func TestRecordDirectoryIsIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.Chmod(dir, 0o777); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	finding, err := NewRecorder("", nil).Record(context.Background(), dir)
	if err != nil || finding != nil {
		t.Fatalf("directories must not produce findings, got (%v, %v)", finding, err)
	}
}

func TestRecordVanishedFile(t *testing.T) {
	_, err := NewRecorder("", nil).Record(context.Background(), filepath.Join(t.TempDir(), "gone"))
	var ae *metadata.AccessError
	if !errors.As(err, &ae) || ae.Reason != metadata.ReasonVanished {
		t.Fatalf("expected vanished AccessError, got %v", err)
	}
}

func TestRecordCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRecorder("", nil).Record(ctx, "/etc/hosts"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestLogSkipMessages(t *testing.T) {
	logs := captureLogs(t, "warn")
	LogSkip("/a", &metadata.AccessError{Path: "/a", Reason: metadata.ReasonPermission, Err: os.ErrPermission})
	LogSkip("/b", &metadata.AccessError{Path: "/b", Reason: metadata.ReasonBrokenLink, Err: os.ErrNotExist})
	LogSkip("/c", errors.New("boom"))
	out := logs.String()
	for _, want := range []string{
		"Permission denied: Skipping file /a",
		"Skipping file /b: broken symlink",
		"Failed to evaluate /c: boom",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestRecordFindingMatchesPrintedAlert(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	writeFile(t, path, 0o620)
	sink := &collectingSink{}
	rec := NewRecorder("", sink)
	f, err := rec.Record(context.Background(), path)
	if err != nil || f == nil {
		t.Fatalf("record: %v %v", f, err)
	}
	if sink.findings[0].RiskScore != f.RiskScore {
		t.Fatal("sink and returned finding disagree")
	}
}
