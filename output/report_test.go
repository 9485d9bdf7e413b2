package output

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"prmscan/risk"
)

func TestWriteReport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prmscan_report.json")
	report := risk.Report{{
		File:         "/tmp/a",
		RiskScore:    5,
		Suggestions:  []string{"Remove world write: chmod o-w"},
		LastModified: "2024-03-01T12:00:00Z",
	}}
	if err := WriteReport(path, report); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "\n    {\n        \"file\": \"/tmp/a\",") {
		t.Fatalf("expected 4-space indentation, got:\n%s", data)
	}
	var decoded []map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["risk_score"].(float64) != 5 {
		t.Fatalf("unexpected decoded report: %v", decoded)
	}
	for _, key := range []string{"file", "risk_score", "suggestions", "last_modified"} {
		if _, ok := decoded[0][key]; !ok {
			t.Fatalf("missing key %s", key)
		}
	}
	if runtime.GOOS != "windows" {
		info, _ := os.Stat(path)
		if info.Mode().Perm() != 0600 {
			t.Fatalf("expected 0600, got %o", info.Mode().Perm())
		}
	}
}

func TestWriteReportOverwritesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prmscan_report.json")
	if err := os.WriteFile(path, []byte("stale stale stale stale stale"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := WriteReport(path, risk.Report{{File: "/b", RiskScore: 3, Suggestions: []string{"x"}}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Fatal("previous artifact was not replaced")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected only the report in %s, found %d entries", dir, len(entries))
	}
}

func TestWriteReportUnwritableLocation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing-dir", "report.json")
	err := WriteReport(path, risk.Report{{File: "/c", RiskScore: 2}})
	if !errors.Is(err, ErrReportWrite) {
		t.Fatalf("expected ErrReportWrite, got %v", err)
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("no artifact should exist")
	}
}
