package scanner

import (
	"context"
	"errors"

	"prmscan/logger"
	"prmscan/metadata"
	"prmscan/output"
	"prmscan/risk"
	"prmscan/tracing"
)

// Recorder turns a path into a finding. It is shared by the batch scanner
// and the live watcher and is safe for concurrent use.
type Recorder struct {
	homeDir string
	sink    output.AlertSink
}

func NewRecorder(homeDir string, sink output.AlertSink) *Recorder {
	return &Recorder{homeDir: homeDir, sink: sink}
}

func (r *Recorder) HomeDir() string {
	return r.homeDir
}

// Record captures fresh metadata for path and evaluates it. Non-regular
// entries and files that score zero yield (nil, nil). Every finding is passed
// to the alert sink before it is returned. Capture failures are returned as
// *metadata.AccessError.
func (r *Recorder) Record(ctx context.Context, path string) (*risk.Finding, error) {
	ctx, endTask := tracing.StartTask(ctx, "record_file")
	tracing.Log(ctx, "file", path)
	defer endTask()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	endRegion := tracing.StartRegion(ctx, "capture_metadata")
	meta, err := metadata.Capture(path)
	endRegion()
	if err != nil {
		return nil, err
	}
	if !meta.Regular {
		return nil, nil
	}

	finding := risk.NewFinding(meta, r.homeDir)
	if finding == nil {
		return nil, nil
	}
	if r.sink != nil {
		r.sink.Alert(*finding)
	}
	return finding, nil
}

// LogSkip reports a file that could not be evaluated.
func LogSkip(path string, err error) {
	var ae *metadata.AccessError
	if !errors.As(err, &ae) {
		logger.Warnf("Failed to evaluate %s: %v", path, err)
		return
	}
	switch ae.Reason {
	case metadata.ReasonPermission:
		logger.Warnf("Permission denied: Skipping file %s", path)
	case metadata.ReasonVanished:
		logger.Warnf("File vanished: Skipping file %s", path)
	default:
		logger.Warnf("Skipping file %s: %s", path, ae.Reason)
	}
}
