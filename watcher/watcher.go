package watcher

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"

	"prmscan/logger"
	"prmscan/risk"
	"prmscan/scanner"
	"prmscan/utils"
)

// ErrAlreadyRunning is returned when Watch is called on a running watcher.
var ErrAlreadyRunning = errors.New("watcher already running")

type State int32

const (
	Stopped State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "stopped"
}

// Evaluator records a single path. *scanner.Recorder satisfies it.
type Evaluator interface {
	Record(ctx context.Context, path string) (*risk.Finding, error)
}

type Watcher struct {
	src   NotificationSource
	rec   Evaluator
	state atomic.Int32
}

func New(src NotificationSource, rec Evaluator) *Watcher {
	return &Watcher{src: src, rec: rec}
}

func (w *Watcher) State() State {
	return State(w.state.Load())
}

// Watch registers roots with the source and evaluates every create or modify
// event until ctx is done. The source is closed before Watch returns.
func (w *Watcher) Watch(ctx context.Context, roots []string) error {
	if !w.state.CompareAndSwap(int32(Stopped), int32(Running)) {
		return ErrAlreadyRunning
	}
	defer w.state.Store(int32(Stopped))

	registered := w.register(roots)
	if registered == nil {
		return w.close()
	}

	logger.WithFields(map[string]interface{}{
		"backend": w.src.Name(),
		"roots":   len(registered),
	}).Debug("Watch sources registered")
	logger.Info("Monitoring directories for risky files (Ctrl+C to stop)...")

	events := w.src.Events()
	errs := w.src.Errors()
	for events != nil || errs != nil {
		select {
		case <-ctx.Done():
			return w.close()
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !utils.IsPathWithin(ev.Path, registered) {
				continue
			}
			w.handle(ctx, ev)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			logger.Warnf("Monitoring error: %v", err)
		}
	}
	return w.close()
}

// register returns the roots the source accepted, or nil when none were or
// the backend is unavailable.
func (w *Watcher) register(roots []string) []string {
	var registered []string
	for _, root := range roots {
		if !scanner.CheckRoot(root) {
			continue
		}
		abs, err := filepath.Abs(root)
		if err != nil {
			abs = root
		}
		if err := w.src.Add(abs); err != nil {
			if errors.Is(err, ErrBackendUnavailable) {
				logger.Warnf("Real-time monitoring is disabled: %v", err)
				return nil
			}
			logger.Warnf("Cannot monitor %s: %v. Skipping.", root, err)
			continue
		}
		registered = append(registered, abs)
	}
	return registered
}

func (w *Watcher) handle(ctx context.Context, ev Event) {
	logger.Debugf("%s event for %s", ev.Op, ev.Path)
	if _, err := w.rec.Record(ctx, ev.Path); err != nil {
		if ctx.Err() != nil {
			return
		}
		scanner.LogSkip(ev.Path, err)
	}
}

func (w *Watcher) close() error {
	if err := w.src.Close(); err != nil {
		logger.Debugf("Closing %s source: %v", w.src.Name(), err)
	}
	return nil
}
