package api

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/iot-trace-generator/internal/config"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/internal/runner"
	"github.com/signalsfoundry/iot-trace-generator/internal/sink"
	"github.com/signalsfoundry/iot-trace-generator/kb"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

func smallScenario() model.Scenario {
	return model.Scenario{
		Name:     "tiny",
		TimeUnit: model.Milliseconds,
		Duration: 10000,
		Brokers: []model.Broker{
			{Name: "only", Area: model.MustCircle(model.Location{Lat: 10, Lon: 10}, 0.2), Publishers: 1, Subscribers: 1, WorkloadMachines: 1},
		},
		Topics: []model.Topic{{Name: "t", PublicationProbability: 100, Payload: model.Fixed(10)}},
		Publisher: model.RoleTiming{
			Gap: model.IntRange{Min: 1000, Max: 2000},
		},
		Subscriber: model.RoleTiming{
			InitialPause: 100,
			Gap:          model.IntRange{Min: 1000, Max: 2000},
		},
		Renewal: model.Renewal{Interval: model.IntRange{Min: 3000, Max: 4000}},
	}
}

func newTestServer(t *testing.T, opts ...Option) (*Server, *kb.KnowledgeBase) {
	t.Helper()
	catalogue := kb.NewKnowledgeBase()
	require.NoError(t, catalogue.AddScenario(smallScenario()))
	return NewServer(catalogue, opts...), catalogue
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := do(t, srv.Router(), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestListAndGetScenarios(t *testing.T) {
	srv, _ := newTestServer(t)
	h := srv.Router()

	rr := do(t, h, http.MethodGet, "/v1/scenarios", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var list []scenarioSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "tiny", list[0].Name)
	assert.Equal(t, 1, list[0].Publishers)
	assert.Equal(t, 1, list[0].Brokers)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/tiny", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sc model.Scenario
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sc))
	assert.Equal(t, smallScenario().Brokers[0].Area, sc.Brokers[0].Area)

	rr = do(t, h, http.MethodGet, "/v1/scenarios/missing", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

const putYAML = `
name: uploaded
duration: 5000
brokers:
  - name: b
    center: {lat: 1, lon: 1}
    radius_km: 10
    publishers: 1
topics:
  - name: t
    publication_probability: 100
    payload_bytes: {min: 5, max: 5}
publisher:
  gap: {min: 500, max: 1000}
`

func TestPutScenario(t *testing.T) {
	srv, catalogue := newTestServer(t)
	h := srv.Router()

	rr := do(t, h, http.MethodPut, "/v1/scenarios/uploaded", putYAML)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	got, err := catalogue.GetScenario("uploaded")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Clients(model.RolePublisher))

	rr = do(t, h, http.MethodPut, "/v1/scenarios/other", putYAML)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPut, "/v1/scenarios/uploaded", "name: [")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	bad := strings.Replace(putYAML, "gap: {min: 500, max: 1000}", "gap: {min: 1, max: 1000}", 1)
	rr = do(t, h, http.MethodPut, "/v1/scenarios/uploaded", bad)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestStartRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	gen, err := observability.NewGeneratorCollector(reg)
	require.NoError(t, err)
	sinks, err := observability.NewSinkCollector(reg)
	require.NoError(t, err)

	mem := sink.NewMemorySink()
	srv, catalogue := newTestServer(t,
		WithMetrics(gen, sinks),
		WithMaxParallelism(2),
		WithSinkFactory(func(context.Context) (sink.Sink, error) { return mem, nil }),
	)
	h := srv.Router()

	rr := do(t, h, http.MethodPost, "/v1/scenarios/tiny/runs", `{"seed": 5, "parallelism": 16}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var res runner.Result
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.Equal(t, "tiny", res.Scenario)
	assert.Equal(t, uint64(5), res.Seed)
	assert.Equal(t, int64(2), res.Stats.Clients)
	assert.Equal(t, mem.Actions(), res.Actions)
	assert.Len(t, catalogue.ListRuns("tiny"), 1)

	rr = do(t, h, http.MethodGet, "/v1/runs?scenario=tiny", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var runs []kb.RunRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, res.RunID, runs[0].ID)

	rr = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "tracegen_clients_total")
	assert.Contains(t, rr.Body.String(), `tracegen_sink_actions_written_total{sink="api"}`)
}

func TestStartRunWithoutBody(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/scenarios/tiny/runs", nil)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	assert.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
}

func TestStartRunErrors(t *testing.T) {
	srv, _ := newTestServer(t, WithSinkFactory(func(context.Context) (sink.Sink, error) {
		return nil, errors.New("kafka unreachable")
	}))
	h := srv.Router()

	rr := do(t, h, http.MethodPost, "/v1/scenarios/missing/runs", "{}")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/scenarios/tiny/runs", "{not json")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = do(t, h, http.MethodPost, "/v1/scenarios/tiny/runs", "{}")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "kafka unreachable")
}

func TestHandlerRecoversAndLogs(t *testing.T) {
	srv, _ := newTestServer(t)
	var access bytes.Buffer
	h := srv.Handler(&access)

	rr := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, access.String(), "GET /healthz")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusConflict, statusFor(kb.ErrScenarioExists))
	assert.Equal(t, http.StatusBadRequest, statusFor(config.ErrScenarioFile))
	assert.Equal(t, http.StatusBadRequest, statusFor(model.ErrInvalidGeofence))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}
