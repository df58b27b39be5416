package core

// Stats accumulates counters and sums across every client of a run. It is
// not safe for concurrent use; parallel runs give each client its own
// shard and Merge them afterwards.
type Stats struct {
	pings                int64
	subscribes           int64
	publishes            int64
	payloadBytes         int64
	distanceKm           float64
	subscriptionOverlaps int64
	messageOverlaps      int64
	clients              int64
	mobilityGiveUps      int64
}

// StatsSnapshot is a read-only copy of Stats for reporting.
type StatsSnapshot struct {
	Pings                int64   `json:"pings"`
	Subscribes           int64   `json:"subscribes"`
	Publishes            int64   `json:"publishes"`
	PayloadBytes         int64   `json:"payload_bytes"`
	DistanceKm           float64 `json:"distance_km"`
	SubscriptionOverlaps int64   `json:"subscription_overlaps"`
	MessageOverlaps      int64   `json:"message_overlaps"`
	Clients              int64   `json:"clients"`
	MobilityGiveUps      int64   `json:"mobility_give_ups"`
}

// NewStats returns an empty aggregator.
func NewStats() *Stats { return &Stats{} }

func (s *Stats) AddPing()      { s.pings++ }
func (s *Stats) AddSubscribe() { s.subscribes++ }
func (s *Stats) AddClient()    { s.clients++ }
func (s *Stats) AddGiveUp()    { s.mobilityGiveUps++ }

// AddPublish counts one publish and its payload.
func (s *Stats) AddPublish(payloadBytes int) {
	s.publishes++
	s.payloadBytes += int64(payloadBytes)
}

// AddDistance adds travelled distance in kilometres.
func (s *Stats) AddDistance(km float64) { s.distanceKm += km }

// AddSubscriptionOverlaps adds an OverlapCount result for a subscription
// geofence. The value may be negative.
func (s *Stats) AddSubscriptionOverlaps(n int) { s.subscriptionOverlaps += int64(n) }

// AddMessageOverlaps adds an OverlapCount result for a message geofence.
func (s *Stats) AddMessageOverlaps(n int) { s.messageOverlaps += int64(n) }

func (s *Stats) Pings() int64                { return s.pings }
func (s *Stats) Subscribes() int64           { return s.subscribes }
func (s *Stats) Publishes() int64            { return s.publishes }
func (s *Stats) PayloadBytes() int64         { return s.payloadBytes }
func (s *Stats) DistanceKm() float64         { return s.distanceKm }
func (s *Stats) SubscriptionOverlaps() int64 { return s.subscriptionOverlaps }
func (s *Stats) MessageOverlaps() int64      { return s.messageOverlaps }
func (s *Stats) Clients() int64              { return s.clients }
func (s *Stats) MobilityGiveUps() int64      { return s.mobilityGiveUps }

// Merge adds every counter of other into s.
func (s *Stats) Merge(other *Stats) {
	if other == nil {
		return
	}
	s.pings += other.pings
	s.subscribes += other.subscribes
	s.publishes += other.publishes
	s.payloadBytes += other.payloadBytes
	s.distanceKm += other.distanceKm
	s.subscriptionOverlaps += other.subscriptionOverlaps
	s.messageOverlaps += other.messageOverlaps
	s.clients += other.clients
	s.mobilityGiveUps += other.mobilityGiveUps
}

// Snapshot copies the current values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Pings:                s.pings,
		Subscribes:           s.subscribes,
		Publishes:            s.publishes,
		PayloadBytes:         s.payloadBytes,
		DistanceKm:           s.distanceKm,
		SubscriptionOverlaps: s.subscriptionOverlaps,
		MessageOverlaps:      s.messageOverlaps,
		Clients:              s.clients,
		MobilityGiveUps:      s.mobilityGiveUps,
	}
}

// Messages returns the total number of emitted actions.
func (s StatsSnapshot) Messages() int64 {
	return s.Pings + s.Subscribes + s.Publishes
}
