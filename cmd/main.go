package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"prmscan/config"
	"prmscan/logger"
	"prmscan/output"
	"prmscan/scanner"
	"prmscan/systeminfo"
	"prmscan/tracing"
	"prmscan/version"
	"prmscan/watcher"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitInterrupted = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	if err := tracing.Start(os.Getenv("PRMSCAN_TRACE_FILE")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start trace: %v\n", err)
	} else {
		defer tracing.Stop()
	}

	cfg, err := config.LoadConfig()
	switch {
	case errors.Is(err, config.ErrNoMode):
		flag.CommandLine.Usage()
		return exitOK
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		return exitFailure
	}
	if cfg.ShowVersion {
		fmt.Println(version.Version)
		return exitOK
	}

	logger.Init(cfg.LogLevel)

	if cfg.TraceFlight {
		if err := tracing.StartFlightRecorder(cfg.TraceFlightMaxBytes, cfg.TraceFlightMinAge); err != nil {
			logger.Warnf("Failed to start flight recorder: %v", err)
		} else {
			defer func() {
				if err := tracing.WriteFlightRecorder(cfg.TraceFlightFile); err != nil {
					logger.Warnf("Failed to write flight recorder: %v", err)
				}
				tracing.StopFlightRecorder()
			}()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return execute(ctx, cfg, os.Stdout)
}

// execute runs the requested modes in order: the report scan first, then the
// watcher.
func execute(ctx context.Context, cfg *config.Config, stdout io.Writer) int {
	runID := uuid.NewString()
	sc := cfg.ScanConfig()

	host, err := systeminfo.Collect(ctx)
	if err != nil {
		logger.Debugf("Host summary unavailable: %v", err)
	}
	fields := map[string]interface{}{
		"run_id":  runID,
		"version": version.Version,
		"roots":   sc.Roots,
	}
	if host != nil {
		for k, v := range host.Fields() {
			fields[k] = v
		}
	}
	logger.WithFields(fields).Info("prmscan starting")

	exporter, err := output.NewExporter(cfg, host, runID)
	if err != nil {
		logger.Warnf("Finding export disabled: %v", err)
	}
	defer exporter.Shutdown()

	printer := output.NewAlertPrinter(stdout)
	rec := scanner.NewRecorder(cfg.HomeDir, output.Sinks(printer, exporter))

	if sc.Report {
		s := scanner.New(cfg, rec, scanner.Options{
			ReportPath: cfg.OutputFileName,
			Printer:    printer,
			Exporter:   exporter,
			RunID:      runID,
		})
		if _, err := s.Scan(ctx, sc.Roots); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Info("Interrupt signal received. Shutting down...")
				return exitInterrupted
			}
			logger.Errorf("Scanning failed: %v", err)
			return exitFailure
		}
	}

	if sc.Watch {
		src := watcher.NewSource(cfg.WatchBackend, watcher.SourceOptions{
			QueueSize:    cfg.WatchQueueSize,
			PollInterval: cfg.PollInterval,
		})
		w := watcher.New(src, rec)
		if err := w.Watch(ctx, sc.Roots); err != nil {
			logger.Errorf("Monitoring failed: %v", err)
			return exitFailure
		}
		if ctx.Err() != nil {
			logger.Info("Interrupt signal received. Shutting down...")
		}
	}
	return exitOK
}
