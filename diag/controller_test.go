package diag

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"prmscan/logger"
)

func init() {
	logger.Init("error")
}

type fakeProfileWriter struct {
	content string
}

func (f fakeProfileWriter) WriteTo(w io.Writer, debug int) error {
	_, err := io.WriteString(w, f.content)
	return err
}

func fakeLookup(name string) profileWriter {
	if name == "goroutine" {
		return fakeProfileWriter{content: "goroutine-profile"}
	}
	return nil
}

func TestRunProbeEmitsSlowScanArtifacts(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	progress := int64(42)
	dir := t.TempDir()

	controller := NewController(Options{
		SlowScanThreshold: 2 * time.Second,
		Dir:               dir,
		ProgressCountFn:   func() int64 { return progress },
		DetailsFn: func() map[string]interface{} {
			return map[string]interface{}{"run_id": "run-7", "root": "/etc"}
		},
		DumpFlightRecorder: func(path string) error {
			return os.WriteFile(path, []byte("flight"), 0600)
		},
		NowFn:           func() time.Time { return now },
		ProfileLookupFn: fakeLookup,
	})
	controller.lastProgress = progress
	controller.lastProgressAt = now

	controller.runProbe(now.Add(3 * time.Second))

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	var slowPath string
	var foundFlight, foundProfile bool
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasPrefix(name, "prmscan-slow-scan-") && strings.HasSuffix(name, ".json"):
			slowPath = filepath.Join(dir, name)
		case strings.HasPrefix(name, "prmscan-flight-") && strings.HasSuffix(name, ".out"):
			foundFlight = true
		case strings.HasPrefix(name, "prmscan-goroutine-") && strings.HasSuffix(name, ".pprof"):
			foundProfile = true
		}
	}
	if slowPath == "" || !foundFlight || !foundProfile {
		t.Fatalf("missing artifacts: slow=%q flight=%v profile=%v", slowPath, foundFlight, foundProfile)
	}
	data, _ := os.ReadFile(slowPath)
	var event map[string]interface{}
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode event: %v", err)
	}
	if event["run_id"] != "run-7" || event["event"] != "slow_scan_threshold_exceeded" {
		t.Fatalf("unexpected event %v", event)
	}
	if controller.Stalls() != 1 {
		t.Fatalf("expected one stall, got %d", controller.Stalls())
	}
}

func TestRunProbeNoDumpWhileProgressing(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	var progress int64
	dir := t.TempDir()
	controller := NewController(Options{
		SlowScanThreshold: time.Second,
		Dir:               dir,
		ProgressCountFn:   func() int64 { progress++; return progress },
		NowFn:             func() time.Time { return now },
		ProfileLookupFn:   fakeLookup,
	})
	for i := 1; i <= 5; i++ {
		controller.runProbe(now.Add(time.Duration(i) * 2 * time.Second))
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 || controller.Stalls() != 0 {
		t.Fatalf("expected no artifacts while progressing, got %d", len(entries))
	}
}

func TestRunProbeRateLimitsDumps(t *testing.T) {
	now := time.Date(2026, 2, 19, 12, 0, 0, 0, time.UTC)
	controller := NewController(Options{
		SlowScanThreshold: 2 * time.Second,
		Dir:               t.TempDir(),
		ProgressCountFn:   func() int64 { return 1 },
		NowFn:             func() time.Time { return now },
		ProfileLookupFn:   fakeLookup,
	})
	controller.lastProgress = 1
	controller.lastProgressAt = now
	controller.runProbe(now.Add(3 * time.Second))
	controller.runProbe(now.Add(4 * time.Second))
	controller.runProbe(now.Add(6 * time.Second))
	if controller.Stalls() != 2 {
		t.Fatalf("expected 2 dumps, got %d", controller.Stalls())
	}
}

func TestWriteProfileUnavailable(t *testing.T) {
	controller := NewController(Options{Dir: t.TempDir(), ProfileLookupFn: fakeLookup})
	if _, err := controller.writeProfile("heap-missing", 0, "ts"); err == nil {
		t.Fatal("expected unavailable profile to return error")
	}
}

func TestStartAndClose(t *testing.T) {
	var calls atomic.Int64
	controller := NewController(Options{
		SlowScanThreshold: 20 * time.Millisecond,
		Dir:               t.TempDir(),
		ProgressCountFn:   func() int64 { return calls.Add(1) },
	})
	controller.Start(context.Background())
	time.Sleep(60 * time.Millisecond)
	controller.Close()
	controller.Close()
	if calls.Load() < 2 {
		t.Fatal("expected sampling loop to run")
	}
}

func TestNilAndDisabledController(t *testing.T) {
	var c *Controller
	c.Start(context.Background())
	c.Close()
	if c.Stalls() != 0 {
		t.Fatal("nil controller has no stalls")
	}
	disabled := NewController(Options{})
	disabled.Start(context.Background())
	disabled.Close()
}
