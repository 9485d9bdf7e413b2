package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrNoMode is returned when neither report nor monitor mode was requested.
var ErrNoMode = errors.New("no mode selected: use -r/-report and/or -m/-monitor")

const DefaultReportName = "prmscan_report.json"

type Config struct {
	Roots                 []string          `json:"roots" yaml:"roots"`
	Report                bool              `json:"report" yaml:"report"`
	Monitor               bool              `json:"monitor" yaml:"monitor"`
	OutputFileName        string            `json:"output_file_name" yaml:"output_file_name"`
	HomeDir               string            `json:"home_dir" yaml:"home_dir"`
	ConfigFile            string            `json:"config_file" yaml:"config_file"`
	LogLevel              string            `json:"log_level" yaml:"log_level"`
	ConcurrencyLevel      int               `json:"concurrency_level" yaml:"concurrency_level"`
	NiceLevel             string            `json:"nice_level" yaml:"nice_level"`
	IncludePatterns       []string          `json:"include_patterns" yaml:"include_patterns"`
	ExcludePatterns       []string          `json:"exclude_patterns" yaml:"exclude_patterns"`
	MaxIOPerSecond        int               `json:"max_io_per_second" yaml:"max_io_per_second"`
	Progress              bool              `json:"progress" yaml:"progress"`
	WatchBackend          string            `json:"watch_backend" yaml:"watch_backend"`
	PollInterval          time.Duration     `json:"poll_interval" yaml:"poll_interval"`
	WatchQueueSize        int               `json:"watch_queue_size" yaml:"watch_queue_size"`
	DiagSlowScanThreshold time.Duration     `json:"diag_slow_scan_threshold" yaml:"diag_slow_scan_threshold"`
	DiagDir               string            `json:"diag_dir" yaml:"diag_dir"`
	OtelEndpoint          string            `json:"otel_endpoint" yaml:"otel_endpoint"`
	OtelFromEnv           bool              `json:"otel_from_env" yaml:"otel_from_env"`
	OtelHeaders           map[string]string `json:"otel_headers" yaml:"otel_headers"`
	OtelServiceName       string            `json:"otel_service_name" yaml:"otel_service_name"`
	OtelTimeout           time.Duration     `json:"otel_timeout" yaml:"otel_timeout"`
	TraceFlight           bool              `json:"trace_flight" yaml:"trace_flight"`
	TraceFlightFile       string            `json:"trace_flight_file" yaml:"trace_flight_file"`
	TraceFlightMaxBytes   uint64            `json:"trace_flight_max_bytes" yaml:"trace_flight_max_bytes"`
	TraceFlightMinAge     time.Duration     `json:"trace_flight_min_age" yaml:"trace_flight_min_age"`
	ConcurrencySet        bool              `json:"-" yaml:"-"`
	ShowVersion           bool              `json:"-" yaml:"-"`
}

// ScanConfig is the subset of settings shared by the batch scanner and the
// live watcher.
type ScanConfig struct {
	Roots  []string
	Report bool
	Watch  bool
}

func (cfg *Config) ScanConfig() ScanConfig {
	return ScanConfig{
		Roots:  append([]string(nil), cfg.Roots...),
		Report: cfg.Report,
		Watch:  cfg.Monitor,
	}
}

// Defaults returns a configuration with every default applied.
func Defaults() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Roots:            DefaultRoots(home),
		OutputFileName:   DefaultReportName,
		HomeDir:          home,
		LogLevel:         "info",
		ConcurrencyLevel: runtime.NumCPU(),
		NiceLevel:        "medium",
		IncludePatterns:  []string{},
		ExcludePatterns:  []string{},
		Progress:         true,
		WatchBackend:     "auto",
		PollInterval:     2 * time.Second,
		WatchQueueSize:   256,
		DiagDir:          ".",
		OtelHeaders:      map[string]string{},
		OtelServiceName:  "prmscan",
		OtelTimeout:      5 * time.Second,
		TraceFlightFile:  "trace-flight.out",
	}
}

// LoadConfig parses the process command line.
func LoadConfig() (*Config, error) {
	flag.CommandLine.Usage = displayHelp
	return Parse(flag.CommandLine, os.Args[1:])
}

// Parse declares flags on fs, parses args and overlays the optional config
// file. Flags given explicitly win over the file. ErrNoMode is returned
// together with the parsed configuration.
func Parse(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := Defaults()

	roots := fs.String("path", strings.Join(cfg.Roots, ","), "Comma-separated list of directories to audit (default: home, /etc, /var).")
	fs.StringVar(roots, "d", strings.Join(cfg.Roots, ","), "Shorthand for -path.")
	report := fs.Bool("report", cfg.Report, "Run a one-shot scan and write the JSON report.")
	fs.BoolVar(report, "r", cfg.Report, "Shorthand for -report.")
	monitor := fs.Bool("monitor", cfg.Monitor, "Watch the directories and alert on risky files.")
	fs.BoolVar(monitor, "m", cfg.Monitor, "Shorthand for -monitor.")
	output := fs.String("output", cfg.OutputFileName, fmt.Sprintf("Report file name (default: %s).", cfg.OutputFileName))
	homeDir := fs.String("home", cfg.HomeDir, "Home directory used by the executable-in-home rule (default: current user's home).")
	configFile := fs.String("config", "", "Path to a JSON or YAML configuration file (default: none).")
	logLevel := fs.String("log-level", cfg.LogLevel, fmt.Sprintf("Log level: debug, info, warn, error, fatal, or panic (default: %s).", cfg.LogLevel))
	concurrency := fs.Int("concurrency", cfg.ConcurrencyLevel, fmt.Sprintf("Number of scan workers (default: %d).", cfg.ConcurrencyLevel))
	nice := fs.String("nice", cfg.NiceLevel, fmt.Sprintf("Nice level: high, medium, or low (default: %s).", cfg.NiceLevel))
	includes := fs.String("include", "", "Comma-separated list of include patterns (default: none).")
	excludes := fs.String("exclude", "", "Comma-separated list of exclude patterns (default: none).")
	maxIO := fs.Int("max-io-per-second", cfg.MaxIOPerSecond, "Maximum files evaluated per second, 0 for unlimited (default: 0).")
	progress := fs.Bool("progress", cfg.Progress, fmt.Sprintf("Show a progress spinner on stderr (default: %t).", cfg.Progress))
	watchBackend := fs.String("watch-backend", cfg.WatchBackend, "Monitor backend: auto, fsnotify, poll, or none (default: auto).")
	pollInterval := fs.Duration("poll-interval", cfg.PollInterval, "Re-walk interval for the poll backend (default: 2s).")
	watchQueue := fs.Int("watch-queue", cfg.WatchQueueSize, fmt.Sprintf("Pending monitor event capacity (default: %d).", cfg.WatchQueueSize))
	diagSlowScanThreshold := fs.Duration(
		"diag-slow-scan-threshold",
		cfg.DiagSlowScanThreshold,
		"If positive, emit diagnostics when scan progress stalls for this duration (default: 0/off).",
	)
	diagDir := fs.String("diag-dir", cfg.DiagDir, "Diagnostics output directory (default: current directory).")
	otelEndpoint := fs.String("otel-endpoint", cfg.OtelEndpoint, "OTLP/HTTP logs endpoint for findings (default: none).")
	otelFromEnv := fs.Bool("otel-from-env", cfg.OtelFromEnv, "Allow OTEL endpoint fallback from OTEL environment variables (default: false).")
	otelHeaders := fs.String("otel-headers", "", "Comma-separated OTEL headers (key=value) for export (default: none).")
	otelServiceName := fs.String("otel-service-name", cfg.OtelServiceName, "OTEL service name for export (default: prmscan).")
	otelTimeout := fs.Duration("otel-timeout", cfg.OtelTimeout, "OTEL export timeout (default: 5s).")
	traceFlight := fs.Bool("trace-flight", cfg.TraceFlight, fmt.Sprintf("Enable flight recorder tracing (default: %t).", cfg.TraceFlight))
	traceFlightFile := fs.String("trace-flight-file", cfg.TraceFlightFile, fmt.Sprintf("Flight recorder output file (default: %s).", cfg.TraceFlightFile))
	traceFlightMaxBytes := fs.Uint64("trace-flight-max-bytes", cfg.TraceFlightMaxBytes, "Max bytes for flight recorder buffer (default: 0 for runtime default).")
	traceFlightMinAge := fs.Duration("trace-flight-min-age", cfg.TraceFlightMinAge, "Minimum age of trace events to retain (default: 0).")
	showVersion := fs.Bool("version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *showVersion {
		cfg.ShowVersion = true
		return cfg, nil
	}

	if *configFile != "" {
		cfg.ConfigFile = *configFile
		if err := cfg.loadFromFile(cfg.ConfigFile); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "path", "d":
			cfg.Roots = parseCommaSeparated(*roots)
		case "report", "r":
			cfg.Report = *report
		case "monitor", "m":
			cfg.Monitor = *monitor
		case "output":
			cfg.OutputFileName = strings.TrimSpace(*output)
		case "home":
			cfg.HomeDir = strings.TrimSpace(*homeDir)
		case "log-level":
			cfg.LogLevel = *logLevel
		case "concurrency":
			cfg.ConcurrencyLevel = *concurrency
			cfg.ConcurrencySet = true
		case "nice":
			cfg.NiceLevel = *nice
		case "include":
			cfg.IncludePatterns = parseCommaSeparated(*includes)
		case "exclude":
			cfg.ExcludePatterns = parseCommaSeparated(*excludes)
		case "max-io-per-second":
			cfg.MaxIOPerSecond = *maxIO
		case "progress":
			cfg.Progress = *progress
		case "watch-backend":
			cfg.WatchBackend = *watchBackend
		case "poll-interval":
			cfg.PollInterval = *pollInterval
		case "watch-queue":
			cfg.WatchQueueSize = *watchQueue
		case "diag-slow-scan-threshold":
			cfg.DiagSlowScanThreshold = *diagSlowScanThreshold
		case "diag-dir":
			cfg.DiagDir = strings.TrimSpace(*diagDir)
		case "otel-endpoint":
			cfg.OtelEndpoint = strings.TrimSpace(*otelEndpoint)
		case "otel-from-env":
			cfg.OtelFromEnv = *otelFromEnv
		case "otel-headers":
			cfg.OtelHeaders = parseHeaders(*otelHeaders)
		case "otel-service-name":
			cfg.OtelServiceName = strings.TrimSpace(*otelServiceName)
		case "otel-timeout":
			cfg.OtelTimeout = *otelTimeout
		case "trace-flight":
			cfg.TraceFlight = *traceFlight
		case "trace-flight-file":
			cfg.TraceFlightFile = *traceFlightFile
		case "trace-flight-max-bytes":
			cfg.TraceFlightMaxBytes = *traceFlightMaxBytes
		case "trace-flight-min-age":
			cfg.TraceFlightMinAge = *traceFlightMinAge
		}
	})
	cfg.normalize()

	if !cfg.Report && !cfg.Monitor {
		return cfg, ErrNoMode
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.NiceLevel = strings.ToLower(strings.TrimSpace(cfg.NiceLevel))
	cfg.WatchBackend = strings.ToLower(strings.TrimSpace(cfg.WatchBackend))
	if cfg.WatchBackend == "" {
		cfg.WatchBackend = "auto"
	}
	if cfg.OutputFileName == "" {
		cfg.OutputFileName = DefaultReportName
	}
	if cfg.DiagDir == "" {
		cfg.DiagDir = "."
	}
	if cfg.TraceFlight && cfg.TraceFlightFile == "" {
		cfg.TraceFlightFile = "trace-flight.out"
	}
	roots := cfg.Roots[:0]
	for _, root := range cfg.Roots {
		if root = strings.TrimSpace(root); root != "" {
			roots = append(roots, root)
		}
	}
	cfg.Roots = roots
	if len(cfg.Roots) == 0 {
		cfg.Roots = DefaultRoots(cfg.HomeDir)
	}
	if cfg.HomeDir != "" {
		cfg.HomeDir = filepath.Clean(cfg.HomeDir)
	}
	if cfg.OtelHeaders == nil {
		cfg.OtelHeaders = map[string]string{}
	}
}

func displayHelp() {
	fmt.Println("prmscan - Filesystem permission auditor")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  prmscan [-r] [-m] [-d dir1,dir2] [options]")
	fmt.Println()
	fmt.Println("Options:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  prmscan -r")
	fmt.Println("  prmscan -r -d \"/srv,/opt\"")
	fmt.Println("  prmscan -r -m -watch-backend poll")
}

func (cfg *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read config file: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var raw map[string]interface{}
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
		if _, ok := raw["concurrency_level"]; ok {
			cfg.ConcurrencySet = true
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	default:
		var raw map[string]json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
		if _, ok := raw["concurrency_level"]; ok {
			cfg.ConcurrencySet = true
		}
		if err := parseJSONDurations(raw); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
		data, err = json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("invalid config file format: %w", err)
		}
	}
	return nil
}

// durationKeys are the config file keys holding a time.Duration.
var durationKeys = []string{
	"poll_interval",
	"diag_slow_scan_threshold",
	"otel_timeout",
	"trace_flight_min_age",
}

// parseJSONDurations rewrites duration strings such as "2s" to nanoseconds so
// JSON files accept the same values as YAML files. Plain numbers are kept.
func parseJSONDurations(raw map[string]json.RawMessage) error {
	for _, key := range durationKeys {
		value, ok := raw[key]
		if !ok {
			continue
		}
		var text string
		if err := json.Unmarshal(value, &text); err != nil {
			continue
		}
		d, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		raw[key] = json.RawMessage(strconv.FormatInt(int64(d), 10))
	}
	return nil
}

func (cfg *Config) validate() error {
	if len(cfg.Roots) == 0 {
		return fmt.Errorf("at least one directory must be specified with -d/-path")
	}
	if cfg.ConcurrencyLevel <= 0 {
		return fmt.Errorf("concurrency level must be positive")
	}
	if cfg.NiceLevel != "high" && cfg.NiceLevel != "medium" && cfg.NiceLevel != "low" {
		return fmt.Errorf("invalid nice level: %s", cfg.NiceLevel)
	}
	if cfg.LogLevel != "debug" && cfg.LogLevel != "info" && cfg.LogLevel != "warn" &&
		cfg.LogLevel != "error" && cfg.LogLevel != "fatal" && cfg.LogLevel != "panic" {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}
	switch cfg.WatchBackend {
	case "auto", "fsnotify", "poll", "none":
	default:
		return fmt.Errorf("invalid watch-backend value: %s", cfg.WatchBackend)
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll-interval must be positive")
	}
	if cfg.WatchQueueSize <= 0 {
		return fmt.Errorf("watch-queue must be positive")
	}
	if cfg.MaxIOPerSecond < 0 {
		return fmt.Errorf("max-io-per-second must be zero or positive")
	}
	if cfg.DiagSlowScanThreshold < 0 {
		return fmt.Errorf("diag-slow-scan-threshold must be zero or positive")
	}
	if cfg.TraceFlightMinAge < 0 {
		return fmt.Errorf("trace-flight-min-age must be zero or positive")
	}
	if cfg.OtelTimeout < 0 {
		return fmt.Errorf("otel-timeout must be zero or positive")
	}
	if cfg.OtelEndpoint != "" {
		if !strings.HasPrefix(cfg.OtelEndpoint, "http://") && !strings.HasPrefix(cfg.OtelEndpoint, "https://") {
			return fmt.Errorf("otel-endpoint must include scheme (http or https)")
		}
	}
	if strings.HasSuffix(cfg.OutputFileName, string(filepath.Separator)) {
		return fmt.Errorf("output must name a file: %s", cfg.OutputFileName)
	}
	return nil
}

func parseCommaSeparated(input string) []string {
	if input == "" {
		return []string{}
	}
	items := strings.Split(input, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func parseHeaders(input string) map[string]string {
	headers := make(map[string]string)
	if input == "" {
		return headers
	}
	items := strings.Split(input, ",")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.SplitN(item, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		headers[key] = value
	}
	return headers
}
