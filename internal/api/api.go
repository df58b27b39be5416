// Package api exposes the scenario catalogue and on-demand generator runs
// over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/internal/config"
	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/internal/runner"
	"github.com/signalsfoundry/iot-trace-generator/internal/sink"
	"github.com/signalsfoundry/iot-trace-generator/kb"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const maxScenarioBytes = 1 << 20

// Server serves the HTTP API.
type Server struct {
	catalogue      *kb.KnowledgeBase
	log            logging.Logger
	metrics        *observability.GeneratorCollector
	sinkMetrics    *observability.SinkCollector
	newSink        func(ctx context.Context) (sink.Sink, error)
	maxParallelism int
}

// Option customises a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics wires the generator and sink collectors; the generator
// collector also serves /metrics.
func WithMetrics(gen *observability.GeneratorCollector, sinks *observability.SinkCollector) Option {
	return func(s *Server) {
		s.metrics = gen
		s.sinkMetrics = sinks
	}
}

// WithSinkFactory sets where on-demand runs write their traces. The
// default counts actions and drops them.
func WithSinkFactory(f func(ctx context.Context) (sink.Sink, error)) Option {
	return func(s *Server) {
		if f != nil {
			s.newSink = f
		}
	}
}

// WithMaxParallelism caps the parallelism a run request may ask for.
func WithMaxParallelism(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxParallelism = n
		}
	}
}

// NewServer builds a server over catalogue.
func NewServer(catalogue *kb.KnowledgeBase, opts ...Option) *Server {
	s := &Server{
		catalogue:      catalogue,
		log:            logging.Noop(),
		maxParallelism: 4,
		newSink: func(context.Context) (sink.Sink, error) {
			return sink.NewDiscardSink(), nil
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/scenarios", s.listScenarios).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{name}", s.getScenario).Methods(http.MethodGet)
	v1.HandleFunc("/scenarios/{name}", s.putScenario).Methods(http.MethodPut)
	v1.HandleFunc("/scenarios/{name}/runs", s.startRun).Methods(http.MethodPost)
	v1.HandleFunc("/runs", s.listRuns).Methods(http.MethodGet)
	return r
}

// Handler wraps the router with panic recovery and an access log.
func (s *Server) Handler(accessLog io.Writer) http.Handler {
	var h http.Handler = s.Router()
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(h)
	if accessLog != nil {
		h = handlers.LoggingHandler(accessLog, h)
	}
	return h
}

type scenarioSummary struct {
	Name        string         `json:"name"`
	TimeUnit    model.TimeUnit `json:"time_unit"`
	Duration    int64          `json:"duration"`
	Brokers     int            `json:"brokers"`
	Topics      int            `json:"topics"`
	Publishers  int            `json:"publishers"`
	Subscribers int            `json:"subscribers"`
	Roamers     int            `json:"roamers"`
}

type runRequest struct {
	Seed        uint64 `json:"seed"`
	Parallelism int    `json:"parallelism"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listScenarios(w http.ResponseWriter, _ *http.Request) {
	all := s.catalogue.ListScenarios()
	out := make([]scenarioSummary, 0, len(all))
	for _, sc := range all {
		out = append(out, scenarioSummary{
			Name:        sc.Name,
			TimeUnit:    sc.TimeUnit,
			Duration:    sc.Duration,
			Brokers:     len(sc.Brokers),
			Topics:      len(sc.Topics),
			Publishers:  sc.Clients(model.RolePublisher),
			Subscribers: sc.Clients(model.RoleSubscriber),
			Roamers:     sc.Clients(model.RoleRoaming),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) getScenario(w http.ResponseWriter, r *http.Request) {
	sc, err := s.catalogue.GetScenario(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// putScenario accepts a YAML scenario document and stores it under name.
func (s *Server) putScenario(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	sc, err := config.LoadScenario(io.LimitReader(r.Body, maxScenarioBytes))
	if err != nil {
		writeError(w, err)
		return
	}
	if sc.Name != name {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "scenario name does not match path"})
		return
	}
	if err := s.catalogue.PutScenario(sc); err != nil {
		writeError(w, err)
		return
	}
	s.log.Info(r.Context(), "scenario stored", logging.String("scenario", name))
	writeJSON(w, http.StatusOK, sc)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	sc, err := s.catalogue.GetScenario(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, err)
		return
	}

	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid run request: " + err.Error()})
			return
		}
	}
	if req.Parallelism < 1 {
		req.Parallelism = 1
	}
	if req.Parallelism > s.maxParallelism {
		req.Parallelism = s.maxParallelism
	}

	ctx := r.Context()
	out, err := s.newSink(ctx)
	if err != nil {
		s.log.Error(ctx, "open sink failed", logging.Err(err))
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
		return
	}
	defer out.Close()

	gen, err := runner.New(runner.Options{
		Sink:        sink.Instrument(out, "api", s.sinkMetrics),
		Seed:        req.Seed,
		Parallelism: req.Parallelism,
		Log:         s.log,
		Metrics:     s.metrics,
		KB:          s.catalogue,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := gen.Run(ctx, sc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalogue.ListRuns(r.URL.Query().Get("scenario")))
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, kb.ErrScenarioNotFound):
		return http.StatusNotFound
	case errors.Is(err, kb.ErrScenarioExists):
		return http.StatusConflict
	case errors.Is(err, core.ErrInvalidScenario),
		errors.Is(err, core.ErrBrokersOverlap),
		errors.Is(err, model.ErrInvalidGeofence),
		errors.Is(err, config.ErrScenarioFile):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
