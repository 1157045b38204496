// internal/anomaly/detector.go
package anomaly

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/simulation"
)

// DefaultBaselineWatts is the nominal HVAC draw spikes are measured against.
const DefaultBaselineWatts = 1800.0

// SettingsSource supplies the current thresholds. The engine satisfies it.
type SettingsSource interface {
	Settings() data.Settings
}

// Escalation reports an HVAC overload that stayed above the spike threshold
// for at least the duration threshold, in simulated minutes.
type Escalation struct {
	Timestamp        time.Time     `json:"timestamp"`
	Message          string        `json:"message"`
	HVACWatts        float64       `json:"hvacWatts"`
	SpikePercent     float64       `json:"spikePercent"`
	SustainedMinutes float64       `json:"sustainedMinutes"`
	Settings         data.Settings `json:"settings"`
}

type Detector struct {
	baseline float64
	settings SettingsSource
	now      func() time.Time
	log      *slog.Logger

	mu        sync.Mutex
	since     time.Time
	tracking  bool
	escalated bool
}

func NewDetector(baseline float64, settings SettingsSource, log *slog.Logger) *Detector {
	if baseline <= 0 {
		baseline = DefaultBaselineWatts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Detector{baseline: baseline, settings: settings, now: time.Now, log: log}
}

// SpikePercent is how far hvacWatts sits above the baseline, in percent.
func (d *Detector) SpikePercent(hvacWatts float64) float64 {
	return (hvacWatts - d.baseline) / d.baseline * 100
}

// Check feeds one engine event through the detector. It returns an escalation
// at most once per continuous overload; a reading back under the threshold
// resets it.
func (d *Detector) Check(ev data.Event) *Escalation {
	thresholds := d.settings.Settings()
	spike := d.SpikePercent(ev.State.HVACWatts)

	d.mu.Lock()
	defer d.mu.Unlock()

	if spike <= float64(thresholds.SpikeThreshold) {
		d.tracking = false
		d.escalated = false
		return nil
	}

	now := d.now()
	if !d.tracking {
		d.tracking = true
		d.since = now
	}
	if d.escalated {
		return nil
	}

	sustained := now.Sub(d.since).Minutes() * simulation.TimeMultiplier
	if sustained < float64(thresholds.DurationThreshold) {
		return nil
	}

	d.escalated = true
	esc := &Escalation{
		Timestamp:        now.UTC(),
		Message:          fmt.Sprintf("HVAC draw %.0fW is %.0f%% over baseline for %.0f simulated minutes", ev.State.HVACWatts, spike, sustained),
		HVACWatts:        ev.State.HVACWatts,
		SpikePercent:     spike,
		SustainedMinutes: sustained,
		Settings:         thresholds,
	}
	d.log.Warn("sustained overload", "hvac_watts", esc.HVACWatts, "spike_pct", spike, "minutes", sustained)
	return esc
}
