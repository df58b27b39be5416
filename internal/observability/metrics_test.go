package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestObserveClientRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGeneratorCollector(reg)
	if err != nil {
		t.Fatalf("NewGeneratorCollector: %v", err)
	}

	collector.ObserveClient(ClientObservation{
		Scenario:     "hiking",
		Broker:       "trail",
		Role:         "roaming",
		Pings:        10,
		Subscribes:   2,
		Publishes:    5,
		PayloadBytes: 500,
		DistanceKm:   1.25,
		GiveUps:      1,
		Elapsed:      20 * time.Millisecond,
	})

	if got := testutil.ToFloat64(collector.Actions.WithLabelValues("hiking", "trail", "ping")); got != 10 {
		t.Fatalf("tracegen_actions_total{kind=ping} = %v, want 10", got)
	}
	if got := testutil.ToFloat64(collector.Actions.WithLabelValues("hiking", "trail", "publish")); got != 5 {
		t.Fatalf("tracegen_actions_total{kind=publish} = %v, want 5", got)
	}
	if got := testutil.ToFloat64(collector.Clients.WithLabelValues("hiking", "trail", "roaming")); got != 1 {
		t.Fatalf("tracegen_clients_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.DistanceKm.WithLabelValues("hiking")); got != 1.25 {
		t.Fatalf("tracegen_distance_km_total = %v, want 1.25", got)
	}
	if got := testutil.ToFloat64(collector.MobilityGiveUps.WithLabelValues("hiking")); got != 1 {
		t.Fatalf("tracegen_mobility_giveups_total = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "tracegen_client_generation_seconds", map[string]string{
		"role": "roaming",
	}); count != 1 {
		t.Fatalf("tracegen_client_generation_seconds sample_count = %d, want 1", count)
	}
}

func TestRunStartedTracksInProgress(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGeneratorCollector(reg)
	if err != nil {
		t.Fatalf("NewGeneratorCollector: %v", err)
	}

	done1 := collector.RunStarted()
	done2 := collector.RunStarted()
	if got := testutil.ToFloat64(collector.RunsInProgress); got != 2 {
		t.Fatalf("tracegen_runs_in_progress = %v, want 2", got)
	}
	done1()
	done2()
	if got := testutil.ToFloat64(collector.RunsInProgress); got != 0 {
		t.Fatalf("tracegen_runs_in_progress = %v, want 0", got)
	}

	var nilCollector *GeneratorCollector
	nilCollector.RunStarted()()
	nilCollector.ObserveClient(ClientObservation{})
}

func TestCollectorsTolerateReRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewGeneratorCollector(reg)
	if err != nil {
		t.Fatalf("first NewGeneratorCollector: %v", err)
	}
	second, err := NewGeneratorCollector(reg)
	if err != nil {
		t.Fatalf("second NewGeneratorCollector: %v", err)
	}
	first.Clients.WithLabelValues("s", "b", "publisher").Inc()
	if got := testutil.ToFloat64(second.Clients.WithLabelValues("s", "b", "publisher")); got != 1 {
		t.Fatalf("re-registered collector sees %v, want 1", got)
	}

	if _, err := NewSinkCollector(reg); err != nil {
		t.Fatalf("first NewSinkCollector: %v", err)
	}
	if _, err := NewSinkCollector(reg); err != nil {
		t.Fatalf("second NewSinkCollector: %v", err)
	}
}

func TestSinkCollectorObserveWrite(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewSinkCollector(reg)
	if err != nil {
		t.Fatalf("NewSinkCollector: %v", err)
	}

	collector.ObserveWrite("csv", 42, 5*time.Millisecond, nil)
	collector.ObserveWrite("kafka", 3, time.Millisecond, errors.New("broker down"))
	collector.ObserveThrottle(10 * time.Millisecond)

	if got := testutil.ToFloat64(collector.ActionsWritten.WithLabelValues("csv")); got != 42 {
		t.Fatalf("tracegen_sink_actions_written_total{sink=csv} = %v, want 42", got)
	}
	if got := testutil.ToFloat64(collector.Errors.WithLabelValues("csv")); got != 0 {
		t.Fatalf("tracegen_sink_errors_total{sink=csv} = %v, want 0", got)
	}
	if got := testutil.ToFloat64(collector.Errors.WithLabelValues("kafka")); got != 1 {
		t.Fatalf("tracegen_sink_errors_total{sink=kafka} = %v, want 1", got)
	}
	if count := histogramSampleCount(t, reg, "tracegen_sink_write_duration_seconds", map[string]string{
		"sink": "csv",
	}); count != 1 {
		t.Fatalf("tracegen_sink_write_duration_seconds sample_count = %d, want 1", count)
	}
}

func TestMetricsHandlerExposesGeneratorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewGeneratorCollector(reg)
	if err != nil {
		t.Fatalf("NewGeneratorCollector: %v", err)
	}
	collector.ObserveClient(ClientObservation{Scenario: "s", Broker: "b", Role: "publisher", Publishes: 3, PayloadBytes: 30})
	collector.RunStarted()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"tracegen_actions_total",
		"tracegen_clients_total",
		"tracegen_payload_bytes_total",
		"tracegen_client_generation_seconds",
		"tracegen_runs_in_progress 1",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output", metric)
		}
	}
}

func TestInitTracingDisabled(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), TracingConfig{Enabled: false}, nil)
	if err != nil {
		t.Fatalf("InitTracing: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	if span.SpanContext().IsValid() {
		t.Fatalf("noop tracer produced a valid span context")
	}
	span.End()
	ShutdownWithTimeout(context.Background(), shutdown, nil)
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("TRACEGEN_TRACING_ENABLED", "TRUE")
	t.Setenv("TRACEGEN_TRACING_EXPORTER", "OTLP")
	t.Setenv("TRACEGEN_TRACING_SAMPLE_RATIO", "0.25")
	t.Setenv("TRACEGEN_OTLP_ENDPOINT", "collector:4317")

	cfg := TracingConfigFromEnv()
	if !cfg.Enabled || cfg.Exporter != "otlp" || cfg.SampleRatio != 0.25 || cfg.Endpoint != "collector:4317" {
		t.Fatalf("TracingConfigFromEnv() = %+v", cfg)
	}
	if cfg.ServiceName != "tracegen" {
		t.Fatalf("ServiceName = %q, want tracegen", cfg.ServiceName)
	}

	t.Setenv("TRACEGEN_TRACING_SAMPLE_RATIO", "7")
	if got := TracingConfigFromEnv().SampleRatio; got != 1 {
		t.Fatalf("out-of-range SampleRatio = %v, want default 1", got)
	}
}

func TestExporterFromConfigRejectsUnknown(t *testing.T) {
	if _, err := exporterFromConfig(context.Background(), TracingConfig{Exporter: "zipkin"}); err == nil {
		t.Fatalf("expected error for unsupported exporter")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
