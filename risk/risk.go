// Package risk scores file metadata against the fixed permission rule set.
package risk

import (
	"prmscan/metadata"
	"prmscan/utils"
)

const (
	worldWrite = 0o002
	groupWrite = 0o020
	userExec   = 0o100
)

// Rule is one entry of the scoring table. Match never performs I/O.
type Rule struct {
	Name       string
	Weight     int
	Suggestion string
	Match      func(meta metadata.FileMetadata, homeDir string) bool
}

var rules = []Rule{
	{
		Name:       "world-writable",
		Weight:     5,
		Suggestion: "Remove world write: chmod o-w",
		Match: func(meta metadata.FileMetadata, _ string) bool {
			return meta.Mode.Perm()&worldWrite != 0
		},
	},
	{
		Name:       "group-writable",
		Weight:     3,
		Suggestion: "Remove group write: chmod g-w",
		Match: func(meta metadata.FileMetadata, _ string) bool {
			return meta.Mode.Perm()&groupWrite != 0
		},
	},
	{
		Name:       "root-owned-writable",
		Weight:     4,
		Suggestion: "Restrict root-owned file permissions",
		Match: func(meta metadata.FileMetadata, _ string) bool {
			return meta.UID == 0 && meta.Mode.Perm()&(worldWrite|groupWrite) != 0
		},
	},
	{
		Name:       "home-executable",
		Weight:     2,
		Suggestion: "Check if executable is safe",
		Match: func(meta metadata.FileMetadata, homeDir string) bool {
			return meta.Mode.Perm()&userExec != 0 && utils.IsUnder(meta.Path, homeDir)
		},
	},
}

// Rules returns a copy of the rule table in evaluation order.
func Rules() []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

// MaxScore is the score when every rule fires.
func MaxScore() int {
	total := 0
	for _, r := range rules {
		total += r.Weight
	}
	return total
}

// Evaluate applies every rule in order and returns the summed weight and the
// suggestions of the rules that fired. It returns (0, nil) when none fire.
func Evaluate(meta metadata.FileMetadata, homeDir string) (int, []string) {
	score := 0
	var suggestions []string
	for _, r := range rules {
		if !r.Match(meta, homeDir) {
			continue
		}
		score += r.Weight
		suggestions = append(suggestions, r.Suggestion)
	}
	return score, suggestions
}
