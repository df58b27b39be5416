package observability

import (
	"context"
	"fmt"
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
)

// TracerName identifies spans emitted by the generator.
const TracerName = "github.com/signalsfoundry/iot-trace-generator"

// Span names of one generator run. A run span parents one span per broker,
// which parents one span per client.
const (
	SpanRun    = "tracegen.run"
	SpanBroker = "tracegen.broker"
	SpanClient = "tracegen.client"
)

// Span attribute keys.
const (
	AttrScenario = attribute.Key("tracegen.scenario")
	AttrRunID    = attribute.Key("tracegen.run_id")
	AttrSeed     = attribute.Key("tracegen.seed")
	AttrBroker   = attribute.Key("tracegen.broker")
	AttrClients  = attribute.Key("tracegen.clients")
	AttrClientID = attribute.Key("tracegen.client_id")
	AttrRole     = attribute.Key("tracegen.role")
	AttrMachine  = attribute.Key("tracegen.machine")
	AttrActions  = attribute.Key("tracegen.actions")
)

// TracingConfig governs how generator tracing is initialised.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	Exporter    string // stdout | otlp
	Endpoint    string // used when Exporter == otlp
	// SampleRatio selects whole runs.
	SampleRatio float64
	// ClientSampleRatio keeps this share of client spans inside a sampled
	// run. Selection hashes the client id, so a rerun with the same seed
	// traces the same clients.
	ClientSampleRatio float64
}

// TracingConfigFromEnv pulls tracing configuration from environment variables,
// using sensible defaults when unset.
func TracingConfigFromEnv() TracingConfig {
	enabled := strings.EqualFold(os.Getenv("TRACEGEN_TRACING_ENABLED"), "true")
	exporter := strings.ToLower(os.Getenv("TRACEGEN_TRACING_EXPORTER"))
	if exporter == "" {
		exporter = "stdout"
	}
	service := os.Getenv("TRACEGEN_TRACING_SERVICE_NAME")
	if service == "" {
		service = "tracegen"
	}

	return TracingConfig{
		Enabled:           enabled,
		ServiceName:       service,
		Exporter:          exporter,
		Endpoint:          os.Getenv("TRACEGEN_OTLP_ENDPOINT"),
		SampleRatio:       ratioFromEnv("TRACEGEN_TRACING_SAMPLE_RATIO", 1),
		ClientSampleRatio: ratioFromEnv("TRACEGEN_TRACING_CLIENT_SAMPLE_RATIO", 1),
	}
}

// ratioFromEnv reads a ratio in [0, 1], falling back to def.
func ratioFromEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(raw, 64)
	if err != nil || parsed < 0 || parsed > 1 {
		return def
	}
	return parsed
}

// InitTracing wires a tracer provider, exporter, propagators, and sampler based
// on the provided configuration. It returns a shutdown function to flush spans.
func InitTracing(ctx context.Context, cfg TracingConfig, log logging.Logger) (func(context.Context) error, error) {
	if log == nil {
		log = logging.Noop()
	}

	if !cfg.Enabled {
		otel.SetTracerProvider(noop.NewTracerProvider())
		otel.SetTextMapPropagator(propagation.TraceContext{})
		log.Info(ctx, "tracing disabled; using noop tracer provider")
		return func(context.Context) error { return nil }, nil
	}

	exp, err := exporterFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(
		ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.namespace", "iot-trace-generator"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(newSampler(cfg)),
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	log.Info(ctx, "tracing enabled",
		logging.String("exporter", cfg.Exporter),
		logging.String("service_name", cfg.ServiceName),
		logging.Float("run_sample_ratio", cfg.SampleRatio),
		logging.Float("client_sample_ratio", cfg.ClientSampleRatio),
	)

	return tp.Shutdown, nil
}

// Tracer returns the generator's tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}

// StartRunSpan opens the root span of a generator run.
func StartRunSpan(ctx context.Context, scenario, runID string, seed uint64) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanRun, trace.WithAttributes(
		AttrScenario.String(scenario),
		AttrRunID.String(runID),
		AttrSeed.Int64(int64(seed)),
	))
}

// StartBrokerSpan opens the span covering one broker's clients.
func StartBrokerSpan(ctx context.Context, broker string, clients int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanBroker, trace.WithAttributes(
		AttrBroker.String(broker),
		AttrClients.Int(clients),
	))
}

// StartClientSpan opens the span of one client trace. The client id is
// passed at start so the sampler can select on it.
func StartClientSpan(ctx context.Context, clientID, role string, machine int) (context.Context, trace.Span) {
	return Tracer().Start(ctx, SpanClient, trace.WithAttributes(
		AttrClientID.String(clientID),
		AttrRole.String(role),
		AttrMachine.Int(machine),
	))
}

// EndSpan marks span failed when err is set and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// newSampler samples runs by trace id and thins client spans by client id.
func newSampler(cfg TracingConfig) sdktrace.Sampler {
	base := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	if cfg.ClientSampleRatio >= 1 {
		return base
	}
	return clientSampler{base: base, ratio: cfg.ClientSampleRatio}
}

type clientSampler struct {
	base  sdktrace.Sampler
	ratio float64
}

func (s clientSampler) ShouldSample(p sdktrace.SamplingParameters) sdktrace.SamplingResult {
	res := s.base.ShouldSample(p)
	if p.Name != SpanClient || res.Decision == sdktrace.Drop {
		return res
	}
	for _, kv := range p.Attributes {
		if kv.Key == AttrClientID && keepClient(kv.Value.AsString(), s.ratio) {
			return res
		}
	}
	return sdktrace.SamplingResult{Decision: sdktrace.Drop, Tracestate: res.Tracestate}
}

func (s clientSampler) Description() string {
	return fmt.Sprintf("ClientRatio{%g}/%s", s.ratio, s.base.Description())
}

// keepClient maps id onto [0, 1) and keeps it below ratio.
func keepClient(id string, ratio float64) bool {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return float64(h.Sum64()>>11)/(1<<53) < ratio
}

func exporterFromConfig(ctx context.Context, cfg TracingConfig) (sdktrace.SpanExporter, error) {
	switch strings.ToLower(cfg.Exporter) {
	case "stdout", "":
		return stdouttrace.New(
			stdouttrace.WithWriter(os.Stdout),
			stdouttrace.WithPrettyPrint(),
			stdouttrace.WithoutTimestamps(),
		)
	case "otlp", "otlpgrpc":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = "localhost:4317"
		}
		client := otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
		return otlptrace.New(ctx, client)
	default:
		return nil, fmt.Errorf("unsupported tracing exporter: %s", cfg.Exporter)
	}
}

// ShutdownWithTimeout invokes the provided shutdown function with a bounded
// timeout, swallowing errors in the shutdown path.
func ShutdownWithTimeout(ctx context.Context, shutdown func(context.Context) error, log logging.Logger) {
	if shutdown == nil {
		return
	}
	if log == nil {
		log = logging.Noop()
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		log.Warn(ctx, "tracing shutdown failed", logging.Err(err))
	}
}
