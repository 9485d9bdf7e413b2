package output

import (
	"sync/atomic"
	"time"
)

// Metrics summarizes one batch scan.
type Metrics struct {
	RunID          string `json:"run_id"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	RootsScanned   int    `json:"roots_scanned"`
	RootsSkipped   int    `json:"roots_skipped"`
	FilesVisited   int64  `json:"files_visited"`
	FilesEvaluated int64  `json:"files_evaluated"`
	FilesSkipped   int64  `json:"files_skipped"`
	Findings       int    `json:"findings"`
	DurationMillis int64  `json:"duration_ms"`
}

// Counters are updated by concurrent workers and folded into Metrics once
// the scan settles.
type Counters struct {
	Visited   atomic.Int64
	Evaluated atomic.Int64
	Skipped   atomic.Int64
}

func (m *Metrics) Finish(c *Counters, findings int, start, end time.Time) {
	m.StartTime = start.Format(time.RFC3339)
	m.EndTime = end.Format(time.RFC3339)
	m.DurationMillis = end.Sub(start).Milliseconds()
	m.Findings = findings
	if c != nil {
		m.FilesVisited = c.Visited.Load()
		m.FilesEvaluated = c.Evaluated.Load()
		m.FilesSkipped = c.Skipped.Load()
	}
}

// Fields flattens the metrics for structured log lines.
func (m *Metrics) Fields() map[string]interface{} {
	return map[string]interface{}{
		"run_id":          m.RunID,
		"roots_scanned":   m.RootsScanned,
		"roots_skipped":   m.RootsSkipped,
		"files_visited":   m.FilesVisited,
		"files_evaluated": m.FilesEvaluated,
		"files_skipped":   m.FilesSkipped,
		"findings":        m.Findings,
		"duration_ms":     m.DurationMillis,
	}
}
