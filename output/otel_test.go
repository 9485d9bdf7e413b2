package output

import (
	"testing"
	"time"

	"prmscan/config"
	"prmscan/risk"
	"prmscan/systeminfo"

	otelLog "go.opentelemetry.io/otel/log"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
)

func findAttr(kvs []otelLog.KeyValue, key string) (otelLog.Value, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return otelLog.Value{}, false
}

func TestResolveOtelEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "https://logs.example.test/v1/logs")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "https://fallback.example.test")

	cfg := &config.Config{OtelEndpoint: "  https://explicit.example.test  ", OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://explicit.example.test" {
		t.Fatalf("expected explicit endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: true}
	if got := resolveOtelEndpoint(cfg); got != "https://logs.example.test/v1/logs" {
		t.Fatalf("expected logs env endpoint, got %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT", "")
	if got := resolveOtelEndpoint(cfg); got != "https://fallback.example.test" {
		t.Fatalf("expected fallback env endpoint, got %q", got)
	}

	cfg = &config.Config{OtelFromEnv: false}
	if got := resolveOtelEndpoint(cfg); got != "" {
		t.Fatalf("expected empty endpoint when env fallback disabled, got %q", got)
	}
}

func TestNewExporterDisabledWithoutEndpoint(t *testing.T) {
	exp, err := NewExporter(&config.Config{}, nil, "run")
	if err != nil || exp != nil {
		t.Fatalf("expected nil exporter, got %v %v", exp, err)
	}
	// nil exporter must be inert
	exp.Alert(risk.Finding{File: "/x"})
	exp.EmitMetrics(Metrics{})
	exp.Shutdown()
	if exp.Endpoint() != "" {
		t.Fatal("nil exporter has no endpoint")
	}
}

func TestNewExporterRejectsSchemeless(t *testing.T) {
	if _, err := NewExporter(&config.Config{OtelEndpoint: "collector:4318"}, nil, "run"); err == nil {
		t.Fatal("expected scheme error")
	}
}

func TestNewExporterShutdown(t *testing.T) {
	cfg := &config.Config{
		OtelEndpoint:    "http://127.0.0.1:1/v1/logs",
		OtelServiceName: "prmscan-test",
		OtelTimeout:     100 * time.Millisecond,
	}
	exp, err := NewExporter(cfg, &systeminfo.HostSummary{Hostname: "h", Arch: "amd64"}, "run-1")
	if err != nil {
		t.Fatalf("new exporter: %v", err)
	}
	if exp.Endpoint() != cfg.OtelEndpoint {
		t.Fatalf("unexpected endpoint %s", exp.Endpoint())
	}
	exp.Alert(risk.Finding{File: "/tmp/a.sh", RiskScore: 2, Suggestions: []string{"Check if executable is safe"}})
	exp.Shutdown()
	exp.Shutdown()
}

func TestFindingAttributes(t *testing.T) {
	kvs := findingAttributes(risk.Finding{
		File:         "/home/u/bin/tool.sh",
		RiskScore:    7,
		Suggestions:  []string{"a", "b"},
		LastModified: "2024-01-01T00:00:00Z",
	})
	if v, ok := findAttr(kvs, string(semconv.FilePathKey)); !ok || v.AsString() != "/home/u/bin/tool.sh" {
		t.Fatalf("missing file path attribute")
	}
	if v, ok := findAttr(kvs, string(semconv.FileExtensionKey)); !ok || v.AsString() != "sh" {
		t.Fatalf("missing extension attribute")
	}
	if v, ok := findAttr(kvs, "prmscan.risk.score"); !ok || v.AsInt64() != 7 {
		t.Fatalf("missing score attribute")
	}
	if v, ok := findAttr(kvs, "prmscan.risk.suggestions"); !ok || len(v.AsSlice()) != 2 {
		t.Fatalf("missing suggestions attribute")
	}
}

func TestMetricsAttributes(t *testing.T) {
	m := Metrics{RunID: "r", StartTime: "2024-01-01T00:00:00Z", FilesVisited: 10, Findings: 2, DurationMillis: 30}
	kvs := metricsAttributes(payloadToMap(m))
	if v, ok := findAttr(kvs, "prmscan.metrics.files_visited"); !ok || v.AsInt64() != 10 {
		t.Fatalf("missing files_visited")
	}
	if v, ok := findAttr(kvs, "prmscan.metrics.findings"); !ok || v.AsInt64() != 2 {
		t.Fatalf("missing findings")
	}
	if _, ok := findAttr(kvs, "prmscan.metrics.start_time"); !ok {
		t.Fatal("missing start_time")
	}
}

func TestToLogValue(t *testing.T) {
	if toLogValue(nil).Kind() != otelLog.KindEmpty {
		t.Fatal("nil should be empty")
	}
	if toLogValue(float64(3)).Kind() != otelLog.KindInt64 {
		t.Fatal("integral float should become int64")
	}
	if toLogValue(1.5).Kind() != otelLog.KindFloat64 {
		t.Fatal("fractional float should stay float")
	}
	v := toLogValue(map[string]interface{}{"a": []interface{}{"x", true}})
	if v.Kind() != otelLog.KindMap || len(v.AsMap()) != 1 {
		t.Fatalf("unexpected map value %v", v)
	}
}
