package systeminfo

import (
	"context"
	"runtime"
	"testing"

	"prmscan/logger"
)

func init() {
	logger.Init("error")
}

func TestCollect(t *testing.T) {
	summary, err := Collect(context.Background())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if summary.OS != runtime.GOOS || summary.Arch != runtime.GOARCH {
		t.Fatalf("unexpected platform %s/%s", summary.OS, summary.Arch)
	}
	if summary.LogicalCPUs < 1 {
		t.Fatalf("expected at least one cpu, got %d", summary.LogicalCPUs)
	}
	if summary.OSVersion == "" {
		t.Fatal("expected an OS version")
	}
	fields := summary.Fields()
	if fields["arch"] != runtime.GOARCH {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestCollectCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Collect(ctx); err == nil {
		t.Fatal("expected error for canceled context")
	}
}

func TestNilSummaryFields(t *testing.T) {
	var s *HostSummary
	if len(s.Fields()) != 0 {
		t.Fatal("nil summary should have no fields")
	}
}
