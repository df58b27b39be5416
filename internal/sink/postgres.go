package sink

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/signalsfoundry/iot-trace-generator/model"
)

const (
	dialectPostgres    = "postgres"
	actionsTable       = "trace_actions"
	runsTable          = "trace_runs"
	colScenario        = "scenario"
	colSummary         = "summary"
	colCreatedAt       = "created_at"
	postgresMaxConns   = 8
	postgresConnectTTL = 5 * time.Second
)

var actionColumns = []string{
	"scenario", "broker", "machine", "role", "client_id",
	"ts", "lat", "lon", "action_type", "topic", "geofence", "payload_size",
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trace_actions (
	scenario     TEXT             NOT NULL,
	broker       TEXT             NOT NULL,
	machine      INTEGER          NOT NULL,
	role         TEXT             NOT NULL,
	client_id    TEXT             NOT NULL,
	ts           BIGINT           NOT NULL,
	lat          DOUBLE PRECISION NOT NULL,
	lon          DOUBLE PRECISION NOT NULL,
	action_type  TEXT             NOT NULL,
	topic        TEXT,
	geofence     TEXT,
	payload_size INTEGER
);
CREATE TABLE IF NOT EXISTS trace_runs (
	id         BIGSERIAL   PRIMARY KEY,
	scenario   TEXT        NOT NULL,
	summary    TEXT        NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

// pgDB is the part of *pgxpool.Pool the sink uses.
type pgDB interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink bulk-loads each client trace into trace_actions with COPY
// and stores run summaries in trace_runs.
type PostgresSink struct {
	db  pgDB
	now func() time.Time
}

// NewPostgresSink connects a pool to dsn and creates the tables if needed.
func NewPostgresSink(ctx context.Context, dsn string) (*PostgresSink, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = postgresMaxConns

	connectCtx, cancel := context.WithTimeout(ctx, postgresConnectTTL)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(connectCtx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := newPostgresSinkWithDB(pool)
	if err := s.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func newPostgresSinkWithDB(db pgDB) *PostgresSink {
	return &PostgresSink{db: db, now: time.Now}
}

// EnsureSchema creates the trace tables when they do not exist.
func (p *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create trace tables: %w", err)
	}
	return nil
}

func (p *PostgresSink) WriteTrace(ctx context.Context, meta ClientMeta, actions iter.Seq[model.Action]) (int, error) {
	var rows [][]any
	for a := range actions {
		rows = append(rows, actionRow(meta, a))
	}
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := p.db.CopyFrom(ctx, pgx.Identifier{actionsTable}, actionColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return int(n), fmt.Errorf("copy trace of client %s: %w", meta.ClientID, err)
	}
	return int(n), nil
}

func (p *PostgresSink) WriteSummary(ctx context.Context, scenario string, summary []byte) error {
	query, args, err := buildSummaryInsert(scenario, summary, p.now())
	if err != nil {
		return err
	}
	if _, err := p.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run summary: %w", err)
	}
	return nil
}

func (p *PostgresSink) Close() error {
	p.db.Close()
	return nil
}

func buildSummaryInsert(scenario string, summary []byte, at time.Time) (string, []any, error) {
	query, args, err := goqu.Dialect(dialectPostgres).
		Insert(runsTable).
		Prepared(true).
		Rows(goqu.Record{
			colScenario:  scenario,
			colSummary:   string(summary),
			colCreatedAt: at.UTC(),
		}).
		ToSQL()
	if err != nil {
		return "", nil, fmt.Errorf("build summary insert: %w", err)
	}
	return query, args, nil
}

func actionRow(meta ClientMeta, a model.Action) []any {
	var topic, geofence, payload any
	if a.Type != model.ActionPing {
		topic = a.Topic
		if a.Geofence != nil {
			geofence = a.Geofence.WKT()
		}
	}
	if a.Type == model.ActionPublish {
		payload = a.PayloadSize
	}
	return []any{
		meta.Scenario, meta.Broker, meta.Machine, string(meta.Role), meta.ClientID,
		a.Timestamp, a.Location.Lat, a.Location.Lon, string(a.Type), topic, geofence, payload,
	}
}
