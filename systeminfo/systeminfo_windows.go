//go:build windows
// +build windows

package systeminfo

import (
	"fmt"

	"golang.org/x/sys/windows"
	"golang.org/x/sys/windows/registry"
)

func gatherOSVersion(summary *HostSummary) error {
	key, err := registry.OpenKey(registry.LOCAL_MACHINE, `SOFTWARE\Microsoft\Windows NT\CurrentVersion`, registry.QUERY_VALUE)
	if err != nil {
		return fmt.Errorf("failed to open version key: %w", err)
	}
	defer key.Close()
	name, _, err := key.GetStringValue("ProductName")
	if err != nil {
		return err
	}
	build, _, err := key.GetStringValue("CurrentBuild")
	if err == nil && build != "" {
		name = fmt.Sprintf("%s (build %s)", name, build)
	}
	summary.OSVersion = name
	return nil
}

func kernelRelease() string {
	v := windows.RtlGetVersion()
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}

func isPrivileged() bool {
	return windows.GetCurrentProcessToken().IsElevated()
}
