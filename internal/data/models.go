// internal/data/models.go
package data

import "time"

// Appliance identifiers understood by the simulation.
const (
	ApplianceAC     = "ac"
	ApplianceLight  = "light"
	ApplianceWasher = "washer"
	ApplianceTV     = "tv"
)

// HistorySlots is one slot per hour of the day.
const HistorySlots = 24

// MaxAlerts caps the alert log; the oldest entry is evicted first.
const MaxAlerts = 50

// AlertTypeOverload is the only alert type the simulation raises.
const AlertTypeOverload = "overload"

// EventKind tags every broadcast so consumers know what changed.
type EventKind string

const (
	EventStateUpdated    EventKind = "state_updated"
	EventAnomalyDetected EventKind = "anomaly_detected"
	EventAnomalyCleared  EventKind = "anomaly_cleared"
)

// SimulationState is the full dashboard state. JSON names follow the
// dashboard contract.
type SimulationState struct {
	Appliances      map[string]bool       `json:"appliances"`
	HVACWatts       float64               `json:"hvacWatts"`
	LightWatts      float64               `json:"lightWatts"`
	OtherWatts      float64               `json:"otherWatts"`
	GlobalWatts     float64               `json:"globalWatts"`
	Cost            float64               `json:"cost"`
	WastedEnergy    float64               `json:"wastedEnergy"` // kWh
	EfficiencyScore int                   `json:"efficiencyScore"`
	IsAnomaly       bool                  `json:"isAnomaly"`
	AnomalyMessage  string                `json:"anomalyMessage"`
	HistoricalData  [HistorySlots]float64 `json:"historicalData"`
	AlertHistory    []Alert               `json:"alertHistory"`
}

// Clone returns a deep copy that shares no memory with s.
func (s SimulationState) Clone() SimulationState {
	out := s
	out.Appliances = make(map[string]bool, len(s.Appliances))
	for id, on := range s.Appliances {
		out.Appliances[id] = on
	}
	out.AlertHistory = make([]Alert, len(s.AlertHistory))
	copy(out.AlertHistory, s.AlertHistory)
	return out
}

// Alert is one entry in the overload log.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Watts     float64   `json:"watts"` // HVAC draw at onset
	Type      string    `json:"type"`
}

// Settings holds the user-tunable anomaly thresholds.
type Settings struct {
	SpikeThreshold    int `json:"spikeThreshold"`    // percent
	DurationThreshold int `json:"durationThreshold"` // minutes
}

// DefaultSettings is used when nothing (or nothing readable) is persisted.
func DefaultSettings() Settings {
	return Settings{SpikeThreshold: 40, DurationThreshold: 30}
}

// SettingsPatch carries a partial settings update. Nil fields are left alone.
type SettingsPatch struct {
	SpikeThreshold    *int `json:"spikeThreshold,omitempty"`
	DurationThreshold *int `json:"durationThreshold,omitempty"`
}

// Apply merges p over s without validating ranges.
func (p SettingsPatch) Apply(s Settings) Settings {
	if p.SpikeThreshold != nil {
		s.SpikeThreshold = *p.SpikeThreshold
	}
	if p.DurationThreshold != nil {
		s.DurationThreshold = *p.DurationThreshold
	}
	return s
}

// Event is what the engine publishes after every mutation.
type Event struct {
	Kind  EventKind       `json:"type"`
	State SimulationState `json:"state"`
}
