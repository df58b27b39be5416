package model

import "strconv"

// ActionType identifies the protocol-like operation a client performs.
type ActionType string

const (
	ActionPing      ActionType = "ping"
	ActionSubscribe ActionType = "subscribe"
	ActionPublish   ActionType = "publish"
)

// Header is the title row of a trace file. Field order matches Action.Record.
const Header = "timestamp(ms);latitude;longitude;action_type;topic;geofence;payload_size"

// Action is one emitted trace entry. Topic and Geofence only apply to
// subscribe/publish actions, PayloadSize only to publish actions.
type Action struct {
	Type        ActionType `json:"action_type"`
	Timestamp   int64      `json:"timestamp"`
	Location    Location   `json:"location"`
	Topic       string     `json:"topic,omitempty"`
	Geofence    *Geofence  `json:"geofence,omitempty"`
	PayloadSize int        `json:"payload_size,omitempty"`
}

// Record returns the seven trace fields
// timestamp;lat;lon;action_type;topic;geofence;payload_size
// with empty strings for fields that do not apply to the action type.
func (a Action) Record() []string {
	rec := []string{
		strconv.FormatInt(a.Timestamp, 10),
		strconv.FormatFloat(a.Location.Lat, 'f', -1, 64),
		strconv.FormatFloat(a.Location.Lon, 'f', -1, 64),
		string(a.Type),
		"",
		"",
		"",
	}
	if a.Type == ActionPing {
		return rec
	}
	rec[4] = a.Topic
	if a.Geofence != nil {
		rec[5] = a.Geofence.WKT()
	}
	if a.Type == ActionPublish {
		rec[6] = strconv.Itoa(a.PayloadSize)
	}
	return rec
}
