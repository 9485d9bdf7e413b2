package scanner

import (
	"runtime"

	"prmscan/config"

	"github.com/shirou/gopsutil/v4/cpu"
)

var logicalCPUs = func() int {
	if n, err := cpu.Counts(true); err == nil && n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// workerCount honours an explicit concurrency setting and otherwise derives
// one from the nice level.
func workerCount(cfg *config.Config) int {
	if cfg.ConcurrencySet && cfg.ConcurrencyLevel > 0 {
		return cfg.ConcurrencyLevel
	}
	numCPU := logicalCPUs()
	n := cfg.ConcurrencyLevel
	switch cfg.NiceLevel {
	case "high":
		n = numCPU
	case "medium":
		n = numCPU / 2
	case "low":
		n = 1
	}
	if n < 1 {
		n = 1
	}
	return n
}
