package scanner

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"prmscan/config"
	"prmscan/diag"
	"prmscan/logger"
	"prmscan/output"
	"prmscan/risk"
	"prmscan/tracing"
	"prmscan/utils"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/time/rate"
)

type fileScanTask struct {
	seq  int
	path string
}

type sequencedFinding struct {
	seq     int
	finding risk.Finding
}

// Options carries the collaborators of a batch scan.
type Options struct {
	// ReportPath is where a non-empty report is persisted. Empty disables
	// persistence.
	ReportPath string
	Printer    *output.AlertPrinter
	Exporter   *output.Exporter
	RunID      string
}

type Scanner struct {
	cfg    *config.Config
	rec    *Recorder
	opts   Options
	walker walker

	mu      sync.Mutex
	metrics output.Metrics
}

func New(cfg *config.Config, rec *Recorder, opts Options) *Scanner {
	return &Scanner{cfg: cfg, rec: rec, opts: opts, walker: newWalker()}
}

// Metrics returns the summary of the most recent scan.
func (s *Scanner) Metrics() output.Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

// Scan walks every root, records findings and persists a non-empty report.
// Report order is traversal order. A cancelled ctx aborts the scan and
// nothing is written.
func (s *Scanner) Scan(ctx context.Context, roots []string) (risk.Report, error) {
	ctx, endTask := tracing.StartTask(ctx, "batch_scan")
	defer endTask()

	start := time.Now()
	var counters output.Counters
	metrics := output.Metrics{RunID: s.opts.RunID}
	matcher := utils.NewPatternMatcher(s.cfg.IncludePatterns, s.cfg.ExcludePatterns)
	workers := workerCount(s.cfg)
	logger.WithFields(map[string]interface{}{
		"run_id":  s.opts.RunID,
		"roots":   strings.Join(roots, ","),
		"workers": workers,
	}).Info("Starting permission scan")

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Scanning files"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetVisibility(s.cfg.Progress && progressVisible()),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionFullWidth(),
	)
	progressCh := make(chan int, max(workers*4, 64))
	var progressWG sync.WaitGroup
	progressWG.Add(1)
	go func() {
		defer progressWG.Done()
		for delta := range progressCh {
			_ = bar.Add(delta)
		}
	}()

	var ioLimiter *rate.Limiter
	if s.cfg.MaxIOPerSecond > 0 {
		ioLimiter = rate.NewLimiter(rate.Limit(s.cfg.MaxIOPerSecond), s.cfg.MaxIOPerSecond)
	}

	var currentRoot atomic.Value
	currentRoot.Store("")
	watchdog := diag.NewController(diag.Options{
		SlowScanThreshold: s.cfg.DiagSlowScanThreshold,
		Dir:               s.cfg.DiagDir,
		ProgressCountFn: func() int64 {
			return counters.Evaluated.Load() + counters.Skipped.Load()
		},
		DetailsFn: func() map[string]interface{} {
			return map[string]interface{}{
				"run_id":        s.opts.RunID,
				"root":          currentRoot.Load(),
				"files_visited": counters.Visited.Load(),
			}
		},
		DumpFlightRecorder: func(path string) error {
			if !tracing.FlightRecorderActive() {
				return nil
			}
			return tracing.WriteFlightRecorder(path)
		},
	})
	watchdog.Start(ctx)
	defer watchdog.Close()

	tasks := make(chan fileScanTask, workers)

	go func() {
		defer close(tasks)
		seq := 0
		for _, root := range roots {
			if !CheckRoot(root) {
				metrics.RootsSkipped++
				continue
			}
			metrics.RootsScanned++
			currentRoot.Store(root)
			err := s.walker.Walk(ctx, root, func(path string, d fs.DirEntry, err error) error {
				if err != nil {
					logger.Warnf("Failed to access %s: %v", path, err)
					return nil
				}
				if d == nil || d.IsDir() {
					return nil
				}
				counters.Visited.Add(1)
				if !matcher.ShouldInclude(path) {
					return nil
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case tasks <- fileScanTask{seq: seq, path: path}:
					seq++
					if ioLimiter != nil {
						if err := ioLimiter.Wait(ctx); err != nil {
							return err
						}
					}
				}
				return nil
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warnf("Error walking path %s: %v", root, err)
			}
		}
	}()

	var (
		wg      sync.WaitGroup
		foundMu sync.Mutex
		found   []sequencedFinding
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasks {
				select {
				case <-ctx.Done():
					return
				default:
				}
				finding, err := s.rec.Record(ctx, task.path)
				progressCh <- 1
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					counters.Skipped.Add(1)
					LogSkip(task.path, err)
					continue
				}
				counters.Evaluated.Add(1)
				if finding != nil {
					foundMu.Lock()
					found = append(found, sequencedFinding{seq: task.seq, finding: *finding})
					foundMu.Unlock()
				}
			}
		}()
	}

	wg.Wait()
	close(progressCh)
	progressWG.Wait()
	_ = bar.Finish()

	if err := ctx.Err(); err != nil {
		// drain so the walker goroutine can exit
		for range tasks {
		}
		logger.Warn("Scan interrupted; no report written")
		return nil, err
	}

	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	report := make(risk.Report, 0, len(found))
	for _, sf := range found {
		report = append(report, sf.finding)
	}

	metrics.Finish(&counters, len(report), start, time.Now())
	s.mu.Lock()
	s.metrics = metrics
	s.mu.Unlock()
	logger.WithFields(metrics.Fields()).Info("Scan complete")
	s.opts.Exporter.EmitMetrics(metrics)

	if len(report) == 0 || s.opts.ReportPath == "" {
		return report, nil
	}
	if err := output.WriteReport(s.opts.ReportPath, report); err != nil {
		return report, err
	}
	if s.opts.Printer != nil {
		s.opts.Printer.ReportSaved(s.opts.ReportPath)
	}
	return report, nil
}

// CheckRoot warns about and rejects roots that are not readable directories.
func CheckRoot(root string) bool {
	info, err := os.Stat(root)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warnf("Directory %s does not exist. Skipping.", root)
		return false
	case err != nil:
		logger.Warnf("Cannot access directory %s: %v. Skipping.", root, err)
		return false
	case !info.IsDir():
		logger.Warnf("%s is not a directory. Skipping.", root)
		return false
	}
	return true
}

func progressVisible() bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv("PRMSCAN_DISABLE_PROGRESS")))
	return value != "1" && value != "true" && value != "yes" && value != "on"
}
