package core

import (
	"context"
	"iter"
	"math/rand/v2"

	"github.com/signalsfoundry/iot-trace-generator/internal/logging"
	"github.com/signalsfoundry/iot-trace-generator/model"
	"github.com/signalsfoundry/iot-trace-generator/timectrl"
)

// TraceOption customises GenerateClientTrace.
type TraceOption func(*traceConfig)

type traceConfig struct {
	log   logging.Logger
	start *model.Location
}

// WithLogger attaches a logger to the trace and its mobility engine.
func WithLogger(l logging.Logger) TraceOption {
	return func(c *traceConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithStartLocation pins the client's first location instead of drawing it
// from the broker area.
func WithStartLocation(loc model.Location) TraceOption {
	return func(c *traceConfig) { c.start = &loc }
}

// GenerateClientTrace returns the action sequence of one client of broker
// acting in role. The sequence is lazy and can be ranged over once; stats
// is updated as actions are produced. Every randomised decision draws from
// rng, so equal seeds give equal traces.
//
// Timestamps are clock*scale plus a per-kind offset: ping +0, subscribe
// for topic i +1+i, publish for topic i +1+len(topics)+i.
func GenerateClientTrace(
	ctx context.Context,
	role model.ClientRole,
	s model.Scenario,
	broker model.Broker,
	rng *rand.Rand,
	stats *Stats,
	opts ...TraceOption,
) iter.Seq[model.Action] {
	cfg := traceConfig{log: logging.Noop()}
	for _, opt := range opts {
		opt(&cfg)
	}
	if stats == nil {
		stats = NewStats()
	}

	consumed := false
	return func(yield func(model.Action) bool) {
		if consumed {
			return
		}
		consumed = true

		var run func(*clientState, func(model.Action) bool)
		switch role {
		case model.RolePublisher:
			run = (*clientState).runPublisher
		case model.RoleSubscriber:
			run = (*clientState).runSubscriber
		case model.RoleRoaming:
			run = (*clientState).runRoaming
		default:
			cfg.log.Warn(ctx, "unknown client role", logging.String("role", string(role)))
			return
		}

		c := newClientState(ctx, s, broker, rng, stats, cfg)
		c.log.Debug(ctx, "client trace started",
			logging.String("role", string(role)),
			logging.String("location", c.location.String()),
		)
		run(c, yield)
		c.log.Debug(ctx, "client trace finished",
			logging.String("role", string(role)),
			logging.Float("travelled_km", c.travelledKm),
		)
	}
}

// clientState is owned by a single trace sequence.
type clientState struct {
	ctx      context.Context
	scenario model.Scenario
	timing   model.RoleTiming
	mobility int
	areas    []model.Geofence
	engine   *Engine
	rng      *rand.Rand
	stats    *Stats
	log      logging.Logger

	clock       *timectrl.VirtualClock
	renewal     *timectrl.Deadline
	location    model.Location
	lastUpdated model.Location
	heading     float64
	travelledKm float64

	// staticFences holds per-topic subscription geofences drawn once at
	// client start; nil entries are drawn per subscribe.
	staticFences []*model.Geofence
}

func newClientState(
	ctx context.Context,
	s model.Scenario,
	broker model.Broker,
	rng *rand.Rand,
	stats *Stats,
	cfg traceConfig,
) *clientState {
	c := &clientState{
		ctx:      ctx,
		scenario: s,
		areas:    s.BrokerAreas(),
		engine:   NewEngine(broker.Area, NewStepModel(s.Mobility, s.TimeUnit), cfg.log),
		rng:      rng,
		stats:    stats,
		log:      cfg.log,
	}

	switch {
	case cfg.start != nil:
		c.location = *cfg.start
	case s.Mobility.StartAtCenter:
		c.location = broker.Area.Center
	default:
		c.location = RandomLocationIn(rng, broker.Area)
	}
	c.lastUpdated = c.location
	c.heading = rng.Float64() * 360

	c.staticFences = make([]*model.Geofence, len(s.Topics))
	for i, t := range s.Topics {
		if t.StaticSubscriptionGeofence && t.SubscriptionGeofence != nil {
			c.staticFences[i] = c.fenceAround(*t.SubscriptionGeofence)
		}
	}

	stats.AddClient()
	return c
}

func (c *clientState) start(role model.ClientRole) {
	c.timing = c.scenario.Timing(role)
	c.mobility = c.scenario.MobilityProbability(role)
	c.clock = timectrl.NewVirtualClock(c.timing.StartOffset.Draw(c.rng), c.scenario.Duration, c.scenario.Scale())
}

func (c *clientState) runPublisher(yield func(model.Action) bool) {
	c.start(model.RolePublisher)
	if !c.clock.Running() {
		return
	}
	if c.timing.PingOnStart && !c.ping(yield) {
		return
	}
	for c.clock.Running() {
		if !c.publishAll(yield) {
			return
		}
		gap := c.timing.Gap.Draw(c.rng)
		c.maybeMove(gap)
		c.clock.Advance(gap)
	}
}

func (c *clientState) runSubscriber(yield func(model.Action) bool) {
	c.start(model.RoleSubscriber)
	if !c.clock.Running() {
		return
	}
	if c.timing.PingOnStart && !c.ping(yield) {
		return
	}
	if !c.subscribeAll(yield) {
		return
	}
	c.clock.Advance(c.timing.InitialPause)
	c.renewal = timectrl.NewDeadline(c.scenario.Renewal.Interval.Draw(c.rng))

	for c.clock.Running() {
		gap := c.timing.Gap.Draw(c.rng)
		if c.maybeMove(gap) && !c.ping(yield) {
			return
		}
		if c.renewalDue() {
			if !c.subscribeAll(yield) {
				return
			}
			c.rescheduleRenewal()
		}
		c.clock.Advance(gap)
	}
}

func (c *clientState) runRoaming(yield func(model.Action) bool) {
	c.start(model.RoleRoaming)
	if !c.clock.Running() {
		return
	}
	if c.timing.PingOnStart && !c.ping(yield) {
		return
	}
	if !c.subscribeAll(yield) {
		return
	}
	c.clock.Advance(c.timing.InitialPause)
	c.renewal = timectrl.NewDeadline(c.scenario.Renewal.Interval.Draw(c.rng))

	for c.clock.Running() {
		if !c.ping(yield) {
			return
		}
		if c.renewalDue() {
			if !c.subscribeAll(yield) {
				return
			}
			c.rescheduleRenewal()
		}
		if !c.publishAll(yield) {
			return
		}
		gap := c.timing.Gap.Draw(c.rng)
		c.maybeMove(gap)
		c.clock.Advance(gap)
	}
}

func (c *clientState) ping(yield func(model.Action) bool) bool {
	c.stats.AddPing()
	return yield(model.Action{
		Type:      model.ActionPing,
		Timestamp: c.clock.Stamp(0),
		Location:  c.location,
	})
}

// subscribeAll emits one subscribe per topic and marks the current
// location as the last renewal point.
func (c *clientState) subscribeAll(yield func(model.Action) bool) bool {
	for i, t := range c.scenario.Topics {
		a := model.Action{
			Type:      model.ActionSubscribe,
			Timestamp: c.clock.Stamp(int64(1 + i)),
			Location:  c.location,
			Topic:     t.Name,
		}
		switch {
		case c.staticFences[i] != nil:
			a.Geofence = c.staticFences[i]
		case t.SubscriptionGeofence != nil:
			a.Geofence = c.fenceAround(*t.SubscriptionGeofence)
		}
		if a.Geofence != nil {
			c.stats.AddSubscriptionOverlaps(OverlapCount(*a.Geofence, c.areas))
		}
		c.stats.AddSubscribe()
		if !yield(a) {
			return false
		}
	}
	c.lastUpdated = c.location
	return true
}

// publishAll runs one publication trial per topic.
func (c *clientState) publishAll(yield func(model.Action) bool) bool {
	n := len(c.scenario.Topics)
	for i, t := range c.scenario.Topics {
		if !TrueWithChance(c.rng, t.PublicationProbability) {
			continue
		}
		payload := int(t.Payload.Draw(c.rng))
		a := model.Action{
			Type:        model.ActionPublish,
			Timestamp:   c.clock.Stamp(int64(1 + n + i)),
			Location:    c.location,
			Topic:       t.Name,
			PayloadSize: payload,
		}
		if t.MessageGeofence != nil {
			a.Geofence = c.fenceAround(*t.MessageGeofence)
			c.stats.AddMessageOverlaps(OverlapCount(*a.Geofence, c.areas))
		}
		c.stats.AddPublish(payload)
		if !yield(a) {
			return false
		}
	}
	return true
}

func (c *clientState) fenceAround(radius model.Range) *model.Geofence {
	return &model.Geofence{Center: c.location, Radius: radius.Draw(c.rng)}
}

// maybeMove runs one mobility trial for a step spanning elapsed clock units
// and reports whether the trial fired. A fired trial that gives up leaves
// the location unchanged.
func (c *clientState) maybeMove(elapsed int64) bool {
	if !TrueWithChance(c.rng, c.mobility) {
		return false
	}
	if !c.scenario.Mobility.FixedHeading {
		c.heading = c.rng.Float64() * 360
	}
	m := c.engine.Next(c.ctx, c.rng, c.location, c.heading, elapsed)
	if m.GaveUp {
		c.stats.AddGiveUp()
		return true
	}
	c.location = m.Location
	c.travelledKm += m.DistanceKm
	c.stats.AddDistance(m.DistanceKm)
	return true
}

func (c *clientState) renewalDue() bool {
	r := c.scenario.Renewal
	if r.TimeBased() && c.renewal.Due(c.clock) {
		return true
	}
	if r.DistanceBased() && c.location.DistanceKmTo(c.lastUpdated)*1000 >= r.DistanceMeters {
		return true
	}
	return false
}

func (c *clientState) rescheduleRenewal() {
	if c.scenario.Renewal.TimeBased() {
		c.renewal.Extend(c.scenario.Renewal.Interval.Draw(c.rng))
	}
}
