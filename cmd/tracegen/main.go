package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/signalsfoundry/iot-trace-generator/internal/config"
	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/internal/runner"
	"github.com/signalsfoundry/iot-trace-generator/internal/sink"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, logging.NewFromEnv()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "tracegen: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, generates the selected scenario and prints the summary
// to stdout.
func run(ctx context.Context, args []string, stdout io.Writer, log logging.Logger) error {
	cfg := config.FromEnv()

	fs := flag.NewFlagSet("tracegen", flag.ContinueOnError)
	preset := fs.String("scenario", "", "built-in scenario to generate (see -list)")
	configPath := fs.String("config", "", "path to a YAML scenario file")
	outDir := fs.String("out", cfg.OutputDir, "output directory of the csv sink")
	seed := fs.Uint64("seed", uint64(time.Now().UnixNano()), "random seed; equal seeds give equal traces")
	sinkNames := fs.String("sink", cfg.Sink, "comma-separated sinks: csv, memory, discard, kafka, postgres, mqtt, redis")
	parallel := fs.Int("parallel", cfg.Parallelism, "clients generated concurrently")
	list := fs.Bool("list", false, "list built-in scenarios and exit")
	metricsAddr := fs.String("metrics-addr", "", "optional HTTP address for Prometheus /metrics during the run")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *list {
		for _, name := range config.PresetNames() {
			fmt.Fprintln(stdout, name)
		}
		return nil
	}

	s, err := loadScenario(*preset, *configPath)
	if err != nil {
		return err
	}
	cfg.OutputDir = *outDir

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	genMetrics, err := observability.NewGeneratorCollector(nil)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	sinkMetrics, err := observability.NewSinkCollector(nil)
	if err != nil {
		return fmt.Errorf("init sink metrics: %w", err)
	}
	if *metricsAddr != "" {
		srv := serveMetrics(*metricsAddr, genMetrics, log)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	out, err := sink.Open(ctx, *sinkNames, cfg, log, sinkMetrics)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			log.Warn(ctx, "closing sink failed", logging.Err(cerr))
		}
	}()

	gen, err := runner.New(runner.Options{
		Sink:        out,
		Seed:        *seed,
		Parallelism: *parallel,
		Log:         log,
		Metrics:     genMetrics,
	})
	if err != nil {
		return err
	}
	res, err := gen.Run(ctx, s)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "run %s (seed %d)\n", res.RunID, res.Seed)
	_, err = stdout.Write(res.Summary)
	return err
}

func loadScenario(preset, path string) (model.Scenario, error) {
	switch {
	case preset != "" && path != "":
		return model.Scenario{}, errors.New("use either -scenario or -config, not both")
	case path != "":
		return config.LoadScenarioFile(path)
	case preset != "":
		return config.Preset(preset)
	default:
		return model.Scenario{}, errors.New("one of -scenario or -config is required")
	}
}

func serveMetrics(addr string, collector *observability.GeneratorCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
