package anomaly

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

type staticSettings data.Settings

func (s staticSettings) Settings() data.Settings { return data.Settings(s) }

func newTestDetector(s data.Settings) (*Detector, *time.Time) {
	d := NewDetector(0, staticSettings(s), slog.New(slog.NewTextHandler(io.Discard, nil)))
	now := time.Date(2026, 10, 16, 19, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	return d, &now
}

func hvac(w float64) data.Event {
	return data.Event{Kind: data.EventStateUpdated, State: data.SimulationState{HVACWatts: w}}
}

func TestSpikePercent(t *testing.T) {
	d, _ := newTestDetector(data.DefaultSettings())
	assert.InDelta(t, 77.78, d.SpikePercent(3200), 0.01)
	assert.InDelta(t, 0, d.SpikePercent(1800), 1e-9)
	assert.Less(t, d.SpikePercent(1899), 40.0)
}

func TestEscalatesAfterSustainedOverload(t *testing.T) {
	// 30 simulated minutes is 30 real seconds at 60x.
	d, now := newTestDetector(data.Settings{SpikeThreshold: 40, DurationThreshold: 30})

	assert.Nil(t, d.Check(hvac(3200)))
	*now = now.Add(29 * time.Second)
	assert.Nil(t, d.Check(hvac(3190)))

	*now = now.Add(time.Second)
	esc := d.Check(hvac(3210))
	require.NotNil(t, esc)
	assert.InDelta(t, 30, esc.SustainedMinutes, 1e-9)
	assert.Equal(t, 3210.0, esc.HVACWatts)
	assert.Equal(t, 30, esc.Settings.DurationThreshold)

	*now = now.Add(10 * time.Second)
	assert.Nil(t, d.Check(hvac(3200)), "escalates once per overload")
}

func TestResetsWhenBackUnderThreshold(t *testing.T) {
	d, now := newTestDetector(data.Settings{SpikeThreshold: 40, DurationThreshold: 10})

	d.Check(hvac(3200))
	*now = now.Add(10 * time.Second)
	require.NotNil(t, d.Check(hvac(3200)))

	d.Check(hvac(1800))
	assert.Nil(t, d.Check(hvac(3200)), "new overload starts a fresh window")
	*now = now.Add(10 * time.Second)
	assert.NotNil(t, d.Check(hvac(3200)))
}

func TestThresholdIsStrict(t *testing.T) {
	d, _ := newTestDetector(data.Settings{SpikeThreshold: 50, DurationThreshold: 0})
	assert.Nil(t, d.Check(hvac(2700)))
	assert.NotNil(t, d.Check(hvac(2701)))
}
