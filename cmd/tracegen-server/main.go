package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/signalsfoundry/iot-trace-generator/internal/api"
	"github.com/signalsfoundry/iot-trace-generator/internal/config"
	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/internal/sink"
	"github.com/signalsfoundry/iot-trace-generator/kb"
)

func main() {
	cfg := config.FromEnv()
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "HTTP address the API listens on")
	scenarioDir := flag.String("scenarios", "", "directory of YAML scenarios loaded next to the built-in presets")
	sinkNames := flag.String("sink", "discard", "sinks used by on-demand runs")
	maxParallel := flag.Int("max-parallel", cfg.Parallelism, "upper bound on the parallelism of a run request")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	genMetrics, err := observability.NewGeneratorCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	sinkMetrics, err := observability.NewSinkCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise sink metrics", logging.Err(err))
		os.Exit(1)
	}

	catalogue := kb.NewKnowledgeBase()
	loadCatalogue(ctx, log, catalogue, *scenarioDir)
	unsubscribe := catalogue.Subscribe(func(ev kb.Event) {
		switch ev.Type {
		case kb.EventRunRecorded:
			log.Info(context.Background(), "run recorded",
				logging.String("scenario", ev.Scenario),
				logging.String("run_id", ev.Run.ID),
				logging.Int64("messages", ev.Run.Stats.Messages()),
			)
		case kb.EventScenarioAdded, kb.EventScenarioReplaced:
			log.Info(context.Background(), "scenario catalogue changed", logging.String("scenario", ev.Scenario))
		}
	})
	defer unsubscribe()

	server := api.NewServer(catalogue,
		api.WithLogger(log),
		api.WithMetrics(genMetrics, sinkMetrics),
		api.WithMaxParallelism(*maxParallel),
		api.WithSinkFactory(func(ctx context.Context) (sink.Sink, error) {
			return sink.Open(ctx, *sinkNames, cfg, log, sinkMetrics)
		}),
	)

	srv := &http.Server{
		Addr:              *httpAddr,
		Handler:           server.Handler(os.Stdout),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(context.Background(), "HTTP server exited", logging.Err(err))
			stop()
		}
	}()
	log.Info(ctx, "serving trace generator API", logging.String("addr", *httpAddr))

	<-ctx.Done()
	log.Info(context.Background(), "shutting down trace generator API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn(shutdownCtx, "HTTP shutdown failed", logging.Err(err))
	}
}

// loadCatalogue adds the built-in presets and every *.yaml file in dir.
// Files that fail to load are skipped with a warning.
func loadCatalogue(ctx context.Context, log logging.Logger, catalogue *kb.KnowledgeBase, dir string) {
	for _, s := range config.Presets() {
		if err := catalogue.AddScenario(s); err != nil {
			log.Warn(ctx, "skipping preset", logging.String("scenario", s.Name), logging.Err(err))
		}
	}
	if dir == "" {
		return
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		log.Warn(ctx, "failed to list scenario files", logging.String("dir", dir), logging.Err(err))
		return
	}
	added := 0
	for _, path := range paths {
		s, err := config.LoadScenarioFile(path)
		if err != nil {
			log.Warn(ctx, "skipping scenario file", logging.String("path", path), logging.Err(err))
			continue
		}
		if err := catalogue.PutScenario(s); err != nil {
			log.Warn(ctx, "skipping scenario", logging.String("path", path), logging.Err(err))
			continue
		}
		added++
	}
	log.Info(ctx, "loaded scenario files", logging.String("dir", dir), logging.Int("count", added))
}
