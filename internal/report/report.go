// Package report renders the run summary: the scenario setup followed by
// the characteristics of the generated data set.
package report

import (
	"bytes"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Characteristics are the derived figures of one run.
type Characteristics struct {
	Scenario        string             `json:"scenario"`
	Totals          core.StatsSnapshot `json:"totals"`
	DurationSeconds float64            `json:"duration_seconds"`

	PingsPerSecond      float64 `json:"pings_per_second"`
	SubscribesPerSecond float64 `json:"subscribes_per_second"`
	PublishesPerSecond  float64 `json:"publishes_per_second"`
	PingsPerClient      float64 `json:"pings_per_client"`
	SubscribesPerClient float64 `json:"subscribes_per_client"`
	PublishesPerClient  float64 `json:"publishes_per_client"`

	PayloadKB           float64 `json:"payload_kb"`
	BytesPerMessage     float64 `json:"bytes_per_message"`
	DistancePerClientKm float64 `json:"distance_per_client_km"`
	AverageSpeedKmh     float64 `json:"average_speed_kmh"`
}

// Compute derives per-second and per-client figures from the totals.
// Per-second rates divide by one client's run time, so they describe the
// aggregate load all clients put on the broker.
func Compute(s model.Scenario, totals core.StatsSnapshot) Characteristics {
	seconds := 0.0
	if perHour := s.TimeUnit.UnitsPerHour(); perHour > 0 {
		seconds = float64(s.Duration) / perHour * 3600
	}
	clients := float64(totals.Clients)

	c := Characteristics{
		Scenario:            s.Name,
		Totals:              totals,
		DurationSeconds:     seconds,
		PingsPerSecond:      ratio(float64(totals.Pings), seconds),
		SubscribesPerSecond: ratio(float64(totals.Subscribes), seconds),
		PublishesPerSecond:  ratio(float64(totals.Publishes), seconds),
		PingsPerClient:      ratio(float64(totals.Pings), clients),
		SubscribesPerClient: ratio(float64(totals.Subscribes), clients),
		PublishesPerClient:  ratio(float64(totals.Publishes), clients),
		PayloadKB:           float64(totals.PayloadBytes) / 1000,
		BytesPerMessage:     ratio(float64(totals.PayloadBytes), float64(totals.Publishes)),
		DistancePerClientKm: ratio(totals.DistanceKm, clients),
	}
	c.AverageSpeedKmh = ratio(c.DistancePerClientKm, seconds) * 3600
	return c
}

// Setup serialises the scenario configuration as indented JSON.
func Setup(s model.Scenario) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode setup of %s: %w", s.Name, err)
	}
	return data, nil
}

// WriteCharacteristics renders c in the plain-text summary layout.
func WriteCharacteristics(w io.Writer, c Characteristics) error {
	t := c.Totals
	_, err := fmt.Fprintf(w, `Data set characteristics:
    Number of clients: %d
    Number of ping messages: %d (%.2f messages/s, %.2f messages/client)
    Number of subscribe messages: %d (%.2f messages/s, %.2f messages/client)
    Number of publish messages: %d (%.2f messages/s, %.2f messages/client)
    Publish payload size: %.3f KB (%.2f byte/message)
    Client distance travelled: %.3fkm (%.3f km/client)
    Client average speed: %.3f km/h
    Number of subscription geofence broker overlaps: %d
    Number of message geofence broker overlaps: %d
    Number of mobility give-ups: %d
`,
		t.Clients,
		t.Pings, c.PingsPerSecond, c.PingsPerClient,
		t.Subscribes, c.SubscribesPerSecond, c.SubscribesPerClient,
		t.Publishes, c.PublishesPerSecond, c.PublishesPerClient,
		c.PayloadKB, c.BytesPerMessage,
		t.DistanceKm, c.DistancePerClientKm,
		c.AverageSpeedKmh,
		t.SubscriptionOverlaps,
		t.MessageOverlaps,
		t.MobilityGiveUps,
	)
	return err
}

// Summary renders the full summary file: setup dump, blank line,
// characteristics.
func Summary(s model.Scenario, totals core.StatsSnapshot) ([]byte, error) {
	setup, err := Setup(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("Setup:\n")
	buf.Write(setup)
	buf.WriteString("\n\n")
	if err := WriteCharacteristics(&buf, Compute(s, totals)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// JSON encodes c for API responses.
func (c Characteristics) JSON() ([]byte, error) {
	return json.Marshal(c)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
