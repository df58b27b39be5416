// Package runner drives a complete generator run: it validates the
// scenario, walks every broker and client, hands each trace to a sink and
// aggregates the statistics into a summary.
package runner

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/internal/observability"
	"github.com/signalsfoundry/iot-trace-generator/internal/report"
	"github.com/signalsfoundry/iot-trace-generator/internal/sink"
	"github.com/signalsfoundry/iot-trace-generator/kb"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

// ErrNoSink is returned when a runner is built without a sink.
var ErrNoSink = errors.New("runner requires a sink")

// progressSteps is how many progress lines are logged per broker.
const progressSteps = 20

// clientNamespace scopes the name-based client UUIDs.
var clientNamespace = uuid.MustParse("6f1c2a53-8a37-4d59-9c1e-4a3b7d2f0e61")

// Options configures a Runner. Only Sink is required.
type Options struct {
	Sink        sink.Sink
	Seed        uint64
	Parallelism int
	Log         logging.Logger
	Metrics     *observability.GeneratorCollector
	KB          *kb.KnowledgeBase
}

// Result is the outcome of one run.
type Result struct {
	RunID           string                 `json:"run_id"`
	Scenario        string                 `json:"scenario"`
	Seed            uint64                 `json:"seed"`
	StartedAt       time.Time              `json:"started_at"`
	FinishedAt      time.Time              `json:"finished_at"`
	Actions         int                    `json:"actions"`
	Stats           core.StatsSnapshot     `json:"stats"`
	Characteristics report.Characteristics `json:"characteristics"`
	Summary         []byte                 `json:"-"`
}

// Runner generates every client trace of a scenario.
type Runner struct {
	opts Options
}

// New validates opts and returns a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Sink == nil {
		return nil, ErrNoSink
	}
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.Log == nil {
		opts.Log = logging.Noop()
	}
	return &Runner{opts: opts}, nil
}

// job is one client trace to generate.
type job struct {
	broker  model.Broker
	role    model.ClientRole
	index   int
	ordinal uint64
}

// Run generates the scenario. Each client draws from its own PCG stream
// seeded with (seed, client ordinal) and counts into its own Stats shard,
// so the traces and totals do not depend on Parallelism. The first sink
// error aborts the run.
func (r *Runner) Run(ctx context.Context, s model.Scenario) (Result, error) {
	if err := core.ValidateScenario(s); err != nil {
		return Result{}, err
	}

	ctx, log := logging.WithRunLogger(ctx, r.opts.Log)
	log = log.With(logging.String("scenario", s.Name))
	res := Result{
		RunID:     logging.RunIDFromContext(ctx),
		Scenario:  s.Name,
		Seed:      r.opts.Seed,
		StartedAt: time.Now().UTC(),
	}

	ctx, span := observability.StartRunSpan(ctx, s.Name, res.RunID, r.opts.Seed)
	defer r.opts.Metrics.RunStarted()()

	err := r.generate(ctx, log, s, &res)
	observability.EndSpan(span, err)
	return res, err
}

// generate walks the brokers, then writes the summary and records the run.
func (r *Runner) generate(ctx context.Context, log logging.Logger, s model.Scenario, res *Result) error {
	log.Info(ctx, "run started",
		logging.Int("brokers", len(s.Brokers)),
		logging.Int("publishers", s.Clients(model.RolePublisher)),
		logging.Int("subscribers", s.Clients(model.RoleSubscriber)),
		logging.Int("roamers", s.Clients(model.RoleRoaming)),
		logging.Int("parallelism", r.opts.Parallelism),
	)

	var ordinal uint64
	total := core.NewStats()
	for _, b := range s.Brokers {
		if b.WorkloadMachines == 0 {
			log.Info(ctx, "broker has no workload machines, skipping", logging.String("broker", b.Name))
			continue
		}
		var jobs []job
		for _, role := range model.Roles() {
			for c := range b.Clients(role) {
				jobs = append(jobs, job{broker: b, role: role, index: c, ordinal: ordinal})
				ordinal++
			}
		}
		shards, written, err := r.runBroker(ctx, log, s, b, jobs)
		res.Actions += written
		for _, shard := range shards {
			if shard != nil {
				total.Merge(shard)
			}
		}
		if err != nil {
			return err
		}
	}

	res.FinishedAt = time.Now().UTC()
	res.Stats = total.Snapshot()
	res.Characteristics = report.Compute(s, res.Stats)

	summary, err := report.Summary(s, res.Stats)
	if err != nil {
		return err
	}
	res.Summary = summary
	if sw, ok := r.opts.Sink.(sink.SummaryWriter); ok {
		if err := sw.WriteSummary(ctx, s.Name, summary); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if r.opts.KB != nil {
		r.opts.KB.RecordRun(kb.RunRecord{
			ID:         res.RunID,
			Scenario:   s.Name,
			Seed:       res.Seed,
			StartedAt:  res.StartedAt,
			FinishedAt: res.FinishedAt,
			Stats:      res.Stats,
		})
	}

	log.Info(ctx, "run finished",
		logging.Int64("clients", res.Stats.Clients),
		logging.Int64("messages", res.Stats.Messages()),
		logging.Float("distance_km", res.Stats.DistanceKm),
		logging.Int64("mobility_give_ups", res.Stats.MobilityGiveUps),
		logging.String("elapsed", res.FinishedAt.Sub(res.StartedAt).String()),
	)
	return nil
}

// runBroker generates the clients of one broker. Shards are returned in
// job order so merging stays deterministic.
func (r *Runner) runBroker(ctx context.Context, log logging.Logger, s model.Scenario, b model.Broker, jobs []job) ([]*core.Stats, int, error) {
	ctx, span := observability.StartBrokerSpan(ctx, b.Name, len(jobs))

	log = log.With(logging.String("broker", b.Name))
	log.Info(ctx, "generating broker clients", logging.Int("clients", len(jobs)))

	shards := make([]*core.Stats, len(jobs))
	counts := make([]int, len(jobs))
	progress := newProgress(len(jobs), progressSteps)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, j := range jobs {
		if err := gctx.Err(); err != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			shard, n, err := r.runClient(gctx, log, s, j)
			shards[i] = shard
			counts[i] = n
			if err != nil {
				return err
			}
			if pct, ok := progress.done(); ok {
				log.Info(gctx, "broker progress", logging.Int("percent", pct))
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	written := 0
	for _, n := range counts {
		written += n
	}
	observability.EndSpan(span, err)
	return shards, written, err
}

func (r *Runner) runClient(ctx context.Context, log logging.Logger, s model.Scenario, j job) (*core.Stats, int, error) {
	meta := sink.ClientMeta{
		Scenario: s.Name,
		Broker:   j.broker.Name,
		Machine:  j.index % j.broker.WorkloadMachines,
		Role:     j.role,
		ClientID: ClientID(r.opts.Seed, j.broker.Name, j.role, j.index),
	}

	ctx, span := observability.StartClientSpan(ctx, meta.ClientID, string(j.role), meta.Machine)

	start := time.Now()
	rng := rand.New(rand.NewPCG(r.opts.Seed, j.ordinal))
	shard := core.NewStats()
	actions := core.GenerateClientTrace(ctx, j.role, s, j.broker, rng, shard,
		core.WithLogger(log.With(logging.String("client_id", meta.ClientID))))

	n, err := r.opts.Sink.WriteTrace(ctx, meta, actions)
	span.SetAttributes(observability.AttrActions.Int(n))
	observability.EndSpan(span, err)
	if err != nil {
		return shard, n, fmt.Errorf("broker %s client %s: %w", meta.Broker, meta.ClientID, err)
	}

	snap := shard.Snapshot()
	r.opts.Metrics.ObserveClient(observability.ClientObservation{
		Scenario:     s.Name,
		Broker:       meta.Broker,
		Role:         string(j.role),
		Pings:        snap.Pings,
		Subscribes:   snap.Subscribes,
		Publishes:    snap.Publishes,
		PayloadBytes: snap.PayloadBytes,
		DistanceKm:   snap.DistanceKm,
		GiveUps:      snap.MobilityGiveUps,
		Elapsed:      time.Since(start),
	})
	return shard, n, nil
}

// ClientID derives a stable client id from the run seed and the client's
// position, so reruns with the same seed produce the same file names.
func ClientID(seed uint64, broker string, role model.ClientRole, index int) string {
	name := fmt.Sprintf("%d/%s/%s/%d", seed, broker, role, index)
	return uuid.NewSHA1(clientNamespace, []byte(name)).String()
}
