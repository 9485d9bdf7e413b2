package output

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"prmscan/config"
	"prmscan/logger"
	"prmscan/risk"
	"prmscan/systeminfo"
	"prmscan/version"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	otelLog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

// Exporter ships findings and scan metrics as OTLP log records. A nil
// *Exporter is valid and drops everything.
type Exporter struct {
	provider *sdklog.LoggerProvider
	logger   otelLog.Logger
	timeout  time.Duration
	endpoint string
	runID    string
	once     sync.Once
}

// NewExporter returns nil, nil when no endpoint is configured.
func NewExporter(cfg *config.Config, host *systeminfo.HostSummary, runID string) (*Exporter, error) {
	endpoint := resolveOtelEndpoint(cfg)
	if endpoint == "" {
		return nil, nil
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("otel endpoint must include scheme (http or https)")
	}

	opts := []otlploghttp.Option{otlploghttp.WithEndpointURL(endpoint)}
	if len(cfg.OtelHeaders) > 0 {
		opts = append(opts, otlploghttp.WithHeaders(cfg.OtelHeaders))
	}
	if cfg.OtelTimeout > 0 {
		opts = append(opts, otlploghttp.WithTimeout(cfg.OtelTimeout))
	}

	exp, err := otlploghttp.New(context.Background(), opts...)
	if err != nil {
		return nil, err
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exp)),
		sdklog.WithResource(newResource(cfg.OtelServiceName, host)),
	)

	return &Exporter{
		provider: provider,
		logger:   provider.Logger("prmscan"),
		timeout:  cfg.OtelTimeout,
		endpoint: endpoint,
		runID:    runID,
	}, nil
}

func newResource(serviceName string, host *systeminfo.HostSummary) *resource.Resource {
	if serviceName == "" {
		serviceName = "prmscan"
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(version.Version),
	}
	if host != nil {
		if host.Hostname != "" {
			attrs = append(attrs, semconv.HostNameKey.String(host.Hostname))
		}
		attrs = append(attrs, semconv.HostArchKey.String(host.Arch))
		if host.OSVersion != "" {
			attrs = append(attrs, semconv.OSDescriptionKey.String(host.OSVersion))
		}
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func resolveOtelEndpoint(cfg *config.Config) string {
	if cfg == nil {
		return ""
	}
	if endpoint := strings.TrimSpace(cfg.OtelEndpoint); endpoint != "" {
		return endpoint
	}
	if !cfg.OtelFromEnv {
		return ""
	}
	if endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT")); endpoint != "" {
		return endpoint
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

func (e *Exporter) Endpoint() string {
	if e == nil {
		return ""
	}
	return e.endpoint
}

// Alert implements AlertSink.
func (e *Exporter) Alert(f risk.Finding) {
	if e == nil || e.logger == nil {
		return
	}
	record := e.newRecord("finding", otelLog.SeverityWarn)
	record.AddAttributes(findingAttributes(f)...)
	record.SetBody(toLogValue(payloadToMap(f)))
	e.logger.Emit(context.Background(), record)
}

// EmitMetrics exports the end-of-scan summary.
func (e *Exporter) EmitMetrics(m Metrics) {
	if e == nil || e.logger == nil {
		return
	}
	record := e.newRecord("metrics", otelLog.SeverityInfo)
	record.AddAttributes(metricsAttributes(payloadToMap(m))...)
	record.SetBody(toLogValue(payloadToMap(m)))
	e.logger.Emit(context.Background(), record)
}

func (e *Exporter) newRecord(recordType string, severity otelLog.Severity) otelLog.Record {
	var record otelLog.Record
	now := time.Now()
	record.SetTimestamp(now)
	record.SetObservedTimestamp(now)
	record.SetEventName("prmscan." + recordType)
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.AddAttributes(
		otelLog.String("record_type", recordType),
		otelLog.String("prmscan.run_id", e.runID),
	)
	return record
}

// Shutdown flushes pending records. Safe to call more than once.
func (e *Exporter) Shutdown() {
	if e == nil || e.provider == nil {
		return
	}
	e.once.Do(func() {
		timeout := e.timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := e.provider.Shutdown(ctx); err != nil {
			logger.Debugf("OTEL shutdown failed: %v", err)
		}
	})
}

func findingAttributes(f risk.Finding) []otelLog.KeyValue {
	kvs := []otelLog.KeyValue{
		otelLog.String(string(semconv.FilePathKey), f.File),
		otelLog.String(string(semconv.FileDirectoryKey), filepath.Dir(f.File)),
		otelLog.String(string(semconv.FileNameKey), filepath.Base(f.File)),
		otelLog.Int("prmscan.risk.score", f.RiskScore),
	}
	if ext := strings.TrimPrefix(filepath.Ext(f.File), "."); ext != "" {
		kvs = append(kvs, otelLog.String(string(semconv.FileExtensionKey), ext))
	}
	if len(f.Suggestions) > 0 {
		kvs = append(kvs, otelLog.KeyValue{Key: "prmscan.risk.suggestions", Value: toLogValue(f.Suggestions)})
	}
	return appendStringAttr(kvs, "prmscan.file.last_modified", f.LastModified)
}

func metricsAttributes(data map[string]interface{}) []otelLog.KeyValue {
	var kvs []otelLog.KeyValue
	kvs = appendStringAttr(kvs, "prmscan.metrics.start_time", getStringField(data, "start_time"))
	kvs = appendStringAttr(kvs, "prmscan.metrics.end_time", getStringField(data, "end_time"))
	for _, key := range []string{
		"roots_scanned",
		"roots_skipped",
		"files_visited",
		"files_evaluated",
		"files_skipped",
		"findings",
		"duration_ms",
	} {
		if v, ok := getInt64Field(data, key); ok {
			kvs = append(kvs, otelLog.Int64("prmscan.metrics."+key, v))
		}
	}
	return kvs
}

func payloadToMap(payload interface{}) map[string]interface{} {
	switch v := payload.(type) {
	case map[string]interface{}:
		return v
	default:
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		var decoded map[string]interface{}
		if err := json.Unmarshal(data, &decoded); err != nil {
			return nil
		}
		return decoded
	}
}

func toLogValue(value interface{}) otelLog.Value {
	switch v := value.(type) {
	case nil:
		return otelLog.Value{}
	case string:
		return otelLog.StringValue(v)
	case bool:
		return otelLog.BoolValue(v)
	case int:
		return otelLog.IntValue(v)
	case int64:
		return otelLog.Int64Value(v)
	case float64:
		if v == float64(int64(v)) {
			return otelLog.Int64Value(int64(v))
		}
		return otelLog.Float64Value(v)
	case map[string]interface{}:
		kvs := make([]otelLog.KeyValue, 0, len(v))
		for key, item := range v {
			kvs = append(kvs, otelLog.KeyValue{Key: key, Value: toLogValue(item)})
		}
		return otelLog.MapValue(kvs...)
	case []string:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, otelLog.StringValue(item))
		}
		return otelLog.SliceValue(values...)
	case []interface{}:
		values := make([]otelLog.Value, 0, len(v))
		for _, item := range v {
			values = append(values, toLogValue(item))
		}
		return otelLog.SliceValue(values...)
	default:
		return otelLog.StringValue(fmt.Sprint(v))
	}
}

func getStringField(values map[string]interface{}, key string) string {
	value, ok := values[key]
	if !ok || value == nil {
		return ""
	}
	if str, ok := value.(string); ok {
		return str
	}
	return fmt.Sprint(value)
}

func getInt64Field(values map[string]interface{}, key string) (int64, bool) {
	value, ok := values[key]
	if !ok || value == nil {
		return 0, false
	}
	switch v := value.(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		return int64(v), true
	case json.Number:
		if parsed, err := v.Int64(); err == nil {
			return parsed, true
		}
	}
	return 0, false
}

func appendStringAttr(kvs []otelLog.KeyValue, key, value string) []otelLog.KeyValue {
	if value == "" {
		return kvs
	}
	return append(kvs, otelLog.String(key, value))
}
