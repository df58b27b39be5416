package report

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/iot-trace-generator/core"
	"github.com/signalsfoundry/iot-trace-generator/model"
)

func testScenario() model.Scenario {
	return model.Scenario{
		Name:           "trail",
		TimeUnit:       model.Seconds,
		TimestampScale: 1000,
		Duration:       1800,
		Brokers: []model.Broker{
			{Name: "hill", Area: model.MustCircle(model.Location{Lat: 10, Lon: 10}, 0.05), Roamers: 4, WorkloadMachines: 1},
		},
		Topics: []model.Topic{{Name: "text", PublicationProbability: 50, Payload: model.IntRange{Min: 10, Max: 100}}},
	}
}

func testTotals() core.StatsSnapshot {
	return core.StatsSnapshot{
		Pings:                3600,
		Subscribes:           180,
		Publishes:            900,
		PayloadBytes:         45000,
		DistanceKm:           20,
		SubscriptionOverlaps: 2,
		MessageOverlaps:      1,
		Clients:              4,
		MobilityGiveUps:      3,
	}
}

func TestComputeRates(t *testing.T) {
	c := Compute(testScenario(), testTotals())

	assert.InDelta(t, 1800, c.DurationSeconds, 1e-9)
	assert.InDelta(t, 2, c.PingsPerSecond, 1e-9)
	assert.InDelta(t, 0.1, c.SubscribesPerSecond, 1e-9)
	assert.InDelta(t, 0.5, c.PublishesPerSecond, 1e-9)
	assert.InDelta(t, 900, c.PingsPerClient, 1e-9)
	assert.InDelta(t, 225, c.PublishesPerClient, 1e-9)
	assert.InDelta(t, 45, c.PayloadKB, 1e-9)
	assert.InDelta(t, 50, c.BytesPerMessage, 1e-9)
	assert.InDelta(t, 5, c.DistancePerClientKm, 1e-9)
	assert.InDelta(t, 10, c.AverageSpeedKmh, 1e-9)
}

func TestComputeMillisecondClock(t *testing.T) {
	s := testScenario()
	s.TimeUnit = model.Milliseconds
	s.Duration = 60000

	c := Compute(s, testTotals())
	assert.InDelta(t, 60, c.DurationSeconds, 1e-9)
	assert.InDelta(t, 60, c.PingsPerSecond, 1e-9)
}

func TestComputeEmptyRunHasNoNaN(t *testing.T) {
	c := Compute(testScenario(), core.StatsSnapshot{})
	assert.Zero(t, c.BytesPerMessage)
	assert.Zero(t, c.DistancePerClientKm)
	assert.Zero(t, c.AverageSpeedKmh)

	s := testScenario()
	s.TimeUnit = "fortnight"
	assert.Zero(t, Compute(s, testTotals()).PingsPerSecond)
}

func TestWriteCharacteristics(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCharacteristics(&buf, Compute(testScenario(), testTotals())))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Data set characteristics:\n"))
	for _, want := range []string{
		"Number of ping messages: 3600 (2.00 messages/s, 900.00 messages/client)",
		"Publish payload size: 45.000 KB (50.00 byte/message)",
		"Client distance travelled: 20.000km (5.000 km/client)",
		"Client average speed: 10.000 km/h",
		"Number of subscription geofence broker overlaps: 2",
		"Number of message geofence broker overlaps: 1",
		"Number of mobility give-ups: 3",
	} {
		assert.Contains(t, out, want)
	}
}

func TestSummaryStartsWithSetup(t *testing.T) {
	out, err := Summary(testScenario(), testTotals())
	require.NoError(t, err)

	text := string(out)
	assert.True(t, strings.HasPrefix(text, "Setup:\n{"))
	assert.Contains(t, text, `"name": "trail"`)
	assert.Contains(t, text, `"time_unit": "s"`)
	assert.Less(t, strings.Index(text, `"brokers"`), strings.Index(text, "Data set characteristics:"))
}

func TestCharacteristicsJSON(t *testing.T) {
	data, err := Compute(testScenario(), testTotals()).JSON()
	require.NoError(t, err)

	var decoded Characteristics
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "trail", decoded.Scenario)
	assert.Equal(t, int64(900), decoded.Totals.Publishes)
}
