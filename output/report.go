package output

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"prmscan/risk"
)

// ErrReportWrite marks a failure to persist the report artifact.
var ErrReportWrite = errors.New("report write failed")

// WriteReport replaces path with the JSON encoding of report. The document is
// written to a temporary file in the same directory and renamed into place,
// so readers see either the previous artifact or the complete new one.
func WriteReport(path string, report risk.Report) error {
	if report == nil {
		report = risk.Report{}
	}
	data, err := jsonMarshalIndent(report, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode: %w", ErrReportWrite, err)
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}
	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := tmp.Chmod(0600); err != nil {
		cleanup()
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", ErrReportWrite, err)
	}
	return nil
}
