// Package systeminfo describes the host a scan runs on.
package systeminfo

import (
	"context"
	"os"
	"runtime"

	"prmscan/logger"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
)

type HostSummary struct {
	Hostname        string `json:"hostname"`
	OS              string `json:"os"`
	OSVersion       string `json:"os_version"`
	Platform        string `json:"platform,omitempty"`
	PlatformVersion string `json:"platform_version,omitempty"`
	KernelVersion   string `json:"kernel_version,omitempty"`
	Arch            string `json:"arch"`
	LogicalCPUs     int    `json:"logical_cpus"`
	PhysicalCPUs    int    `json:"physical_cpus,omitempty"`
	UptimeSeconds   uint64 `json:"uptime_seconds,omitempty"`
	Privileged      bool   `json:"privileged"`
}

// Collect gathers the host summary. Individual probes that fail are logged
// and left empty; Collect itself only fails when ctx is done.
func Collect(ctx context.Context) (*HostSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	summary := &HostSummary{
		OS:          runtime.GOOS,
		Arch:        runtime.GOARCH,
		LogicalCPUs: runtime.NumCPU(),
		Privileged:  isPrivileged(),
	}

	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Debugf("Host info unavailable: %v", err)
	} else if info != nil {
		summary.Hostname = info.Hostname
		summary.Platform = info.Platform
		summary.PlatformVersion = info.PlatformVersion
		summary.KernelVersion = info.KernelVersion
		summary.UptimeSeconds = info.Uptime
	}
	if summary.Hostname == "" {
		if name, err := os.Hostname(); err == nil {
			summary.Hostname = name
		}
	}
	if summary.KernelVersion == "" {
		summary.KernelVersion = kernelRelease()
	}

	if n, err := cpu.CountsWithContext(ctx, true); err == nil && n > 0 {
		summary.LogicalCPUs = n
	}
	if n, err := cpu.CountsWithContext(ctx, false); err == nil && n > 0 {
		summary.PhysicalCPUs = n
	}

	if err := gatherOSVersion(summary); err != nil {
		logger.Debugf("Failed to gather OS version: %v", err)
	}
	if summary.OSVersion == "" {
		summary.OSVersion = summary.Platform + " " + summary.PlatformVersion
		if summary.Platform == "" {
			summary.OSVersion = runtime.GOOS
		}
	}
	return summary, nil
}

// Fields flattens the summary for structured log lines.
func (s *HostSummary) Fields() map[string]interface{} {
	if s == nil {
		return map[string]interface{}{}
	}
	return map[string]interface{}{
		"hostname":   s.Hostname,
		"os":         s.OSVersion,
		"kernel":     s.KernelVersion,
		"arch":       s.Arch,
		"cpus":       s.LogicalCPUs,
		"privileged": s.Privileged,
	}
}
