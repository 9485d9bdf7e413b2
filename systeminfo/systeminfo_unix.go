//go:build !windows
// +build !windows

package systeminfo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

var osReleasePath = "/etc/os-release"

func gatherOSVersion(summary *HostSummary) error {
	switch runtime.GOOS {
	case "linux":
		f, err := os.Open(osReleasePath)
		if err != nil {
			return err
		}
		defer f.Close()
		name, err := parseOSRelease(f)
		if err != nil {
			return err
		}
		summary.OSVersion = name
		return nil
	case "darwin":
		nameOut, err := runCommandOutput("sw_vers", "-productName")
		if err != nil {
			return err
		}
		verOut, err := runCommandOutput("sw_vers", "-productVersion")
		if err != nil {
			return err
		}
		summary.OSVersion = fmt.Sprintf("%s %s", strings.TrimSpace(string(nameOut)), strings.TrimSpace(string(verOut)))
		return nil
	}
	return nil
}

// parseOSRelease returns the PRETTY_NAME value of an os-release file.
func parseOSRelease(r io.Reader) (string, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "PRETTY_NAME=") {
			return strings.Trim(line[len("PRETTY_NAME="):], "\"'"), nil
		}
	}
	return "", scanner.Err()
}

func kernelRelease() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Release[:])
}

func isPrivileged() bool {
	return os.Geteuid() == 0
}

func safeCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "PATH=/usr/sbin:/usr/bin:/sbin:/bin:/usr/local/bin:/opt/homebrew/bin")
	return cmd
}

func runCommandOutput(name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	cmd := safeCommand(ctx, name, args...)
	return cmd.Output()
}
