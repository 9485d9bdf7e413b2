package risk

import (
	"time"

	"prmscan/metadata"
)

// Finding is the record of one file whose score exceeded zero.
type Finding struct {
	File         string   `json:"file"`
	RiskScore    int      `json:"risk_score"`
	Suggestions  []string `json:"suggestions"`
	LastModified string   `json:"last_modified"`
}

// Report is the ordered list of findings produced by one batch scan.
type Report []Finding

// NewFinding evaluates meta and returns nil when no rule fires.
func NewFinding(meta metadata.FileMetadata, homeDir string) *Finding {
	score, suggestions := Evaluate(meta, homeDir)
	if score == 0 {
		return nil
	}
	return &Finding{
		File:         meta.Path,
		RiskScore:    score,
		Suggestions:  suggestions,
		LastModified: meta.ModTime.Local().Format(time.RFC3339),
	}
}
