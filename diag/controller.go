// Package diag watches a running scan for stalls and dumps artifacts that
// help explain them.
package diag

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"time"

	"prmscan/logger"
)

type profileWriter interface {
	WriteTo(w io.Writer, debug int) error
}

type Options struct {
	SlowScanThreshold  time.Duration
	Dir                string
	ProgressCountFn    func() int64
	DetailsFn          func() map[string]interface{}
	DumpFlightRecorder func(path string) error
	NowFn              func() time.Time
	ProfileLookupFn    func(name string) profileWriter
}

// Controller samples a progress counter and, once it stops moving for the
// threshold, writes a JSON event, a goroutine profile and optionally a flight
// recorder window. Dumps repeat at most once per threshold.
type Controller struct {
	slowScanThreshold  time.Duration
	dir                string
	progressCountFn    func() int64
	detailsFn          func() map[string]interface{}
	dumpFlightRecorder func(path string) error
	nowFn              func() time.Time
	profileLookupFn    func(name string) profileWriter

	mu             sync.Mutex
	lastProgressAt time.Time
	lastProgress   int64
	lastDumpAt     time.Time
	stalls         int

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewController(opts Options) *Controller {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	profileLookup := opts.ProfileLookupFn
	if profileLookup == nil {
		profileLookup = func(name string) profileWriter {
			if p := pprof.Lookup(name); p != nil {
				return p
			}
			return nil
		}
	}
	dir := opts.Dir
	if dir == "" {
		dir = "."
	}

	return &Controller{
		slowScanThreshold:  opts.SlowScanThreshold,
		dir:                dir,
		progressCountFn:    opts.ProgressCountFn,
		detailsFn:          opts.DetailsFn,
		dumpFlightRecorder: opts.DumpFlightRecorder,
		nowFn:              nowFn,
		profileLookupFn:    profileLookup,
	}
}

// Start launches the sampling loop. It does nothing without a threshold or
// a progress source.
func (c *Controller) Start(ctx context.Context) {
	if c == nil || c.slowScanThreshold <= 0 || c.progressCountFn == nil || c.stopCh != nil {
		return
	}

	now := c.nowFn()
	c.mu.Lock()
	c.lastProgress = c.progressCountFn()
	c.lastProgressAt = now
	c.lastDumpAt = time.Time{}
	c.mu.Unlock()

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	interval := c.slowScanThreshold / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if interval > 2*time.Second {
		interval = 2 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(c.doneCh)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.stopCh:
				return
			case <-ticker.C:
				c.runProbe(c.nowFn())
			}
		}
	}()
}

// Close stops the sampling loop and waits for it.
func (c *Controller) Close() {
	if c == nil || c.stopCh == nil {
		return
	}
	close(c.stopCh)
	<-c.doneCh
	c.stopCh = nil
	c.doneCh = nil
}

// Stalls reports how many stall dumps were written.
func (c *Controller) Stalls() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stalls
}

func (c *Controller) runProbe(now time.Time) {
	if c == nil || c.progressCountFn == nil || c.slowScanThreshold <= 0 {
		return
	}

	progress := c.progressCountFn()

	c.mu.Lock()
	if progress != c.lastProgress || c.lastProgressAt.IsZero() {
		c.lastProgress = progress
		c.lastProgressAt = now
		c.mu.Unlock()
		return
	}
	stalledFor := now.Sub(c.lastProgressAt)
	shouldDump := stalledFor >= c.slowScanThreshold &&
		(c.lastDumpAt.IsZero() || now.Sub(c.lastDumpAt) >= c.slowScanThreshold)
	if shouldDump {
		c.lastDumpAt = now
		c.stalls++
	}
	c.mu.Unlock()

	if !shouldDump {
		return
	}
	logger.Warnf("Scan made no progress for %s (files evaluated: %d)", stalledFor.Round(time.Millisecond), progress)
	if err := c.dumpSlowScanArtifacts(now, progress, stalledFor); err != nil {
		logger.Warnf("Diagnostics slow-scan dump failed: %v", err)
	}
}

func (c *Controller) dumpSlowScanArtifacts(now time.Time, progress int64, stalledFor time.Duration) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return err
	}
	ts := now.UTC().Format("20060102-150405.000")
	event := map[string]interface{}{}
	if c.detailsFn != nil {
		for k, v := range c.detailsFn() {
			event[k] = v
		}
	}
	event["event"] = "slow_scan_threshold_exceeded"
	event["timestamp"] = now.UTC().Format(time.RFC3339Nano)
	event["progress_count"] = progress
	event["threshold_ms"] = c.slowScanThreshold.Milliseconds()
	event["observed_stalled_ms"] = stalledFor.Milliseconds()

	b, err := json.MarshalIndent(event, "", "  ")
	if err != nil {
		return err
	}
	eventPath := filepath.Join(c.dir, fmt.Sprintf("prmscan-slow-scan-%s.json", ts))
	if err := os.WriteFile(eventPath, b, 0600); err != nil {
		return err
	}

	if _, err := c.writeProfile("goroutine", 2, ts); err != nil {
		logger.Warnf("Diagnostics goroutine profile dump failed: %v", err)
	}

	if c.dumpFlightRecorder != nil {
		tracePath := filepath.Join(c.dir, fmt.Sprintf("prmscan-flight-%s.out", ts))
		if err := c.dumpFlightRecorder(tracePath); err != nil {
			logger.Warnf("Diagnostics flight recorder dump failed: %v", err)
		}
	}
	return nil
}

func (c *Controller) writeProfile(name string, debug int, ts string) (string, error) {
	if c.profileLookupFn == nil {
		return "", fmt.Errorf("profile lookup function is nil")
	}
	profile := c.profileLookupFn(name)
	if profile == nil {
		return "", fmt.Errorf("pprof profile %q unavailable", name)
	}
	path := filepath.Join(c.dir, fmt.Sprintf("prmscan-%s-%s.pprof", name, ts))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := profile.WriteTo(f, debug); err != nil {
		return "", err
	}
	return path, nil
}
