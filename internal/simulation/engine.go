// Package simulation fabricates household power readings, accrues a
// tariff-based cost and drives the anomaly lifecycle shown on the dashboard.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

const (
	DefaultTickInterval          = 2000 * time.Millisecond
	DefaultInterpolationInterval = 100 * time.Millisecond

	DefaultAnomalyMessage = "HVAC system exceeded the spike threshold. Current draw: 3,200W."
)

// Wattage bands. A band of N means a uniform integer offset in [-N/2, N/2).
const (
	hvacBaseline   = 1800
	hvacBand       = 200
	anomalyWatts   = 3200
	anomalyBand    = 50
	recoveryFloor  = 1500
	recoverySpan   = 500
	lightBaseline  = 450
	lightBand      = 50
	washerBaseline = 500
	washerBand     = 40
	tvBaseline     = 200
	tvBand         = 20
)

const (
	initialCost       = 14.70
	initialEfficiency = 92

	efficiencyPenalty     = 15
	efficiencyRecoveryCap = 98
	recoveryRollAbove     = 0.7

	anomalyWasteBump    = 0.5
	anomalyWastePerTick = 0.05

	// interpolationGuard keeps two cost advances from covering the same
	// interval.
	interpolationGuard = 100 * time.Millisecond
)

var ErrUnknownAppliance = errors.New("unknown appliance")

var baseLoad = [data.HistorySlots]float64{
	300, 280, 280, 290, 310, 450,
	800, 1200, 1000, 950, 900, 950,
	1100, 1050, 1000, 1100, 1300, 1500,
	2200, 2500, 2400, 1800, 1200, 600,
}

// SettingsStore persists the user thresholds.
type SettingsStore interface {
	Load(ctx context.Context) (data.Settings, error)
	Save(ctx context.Context, s data.Settings) error
}

type Options struct {
	Logger  *slog.Logger
	Store   SettingsStore
	Entropy Entropy
	Clock   func() time.Time
	AlertID func() string

	TickInterval          time.Duration
	InterpolationInterval time.Duration
}

// Engine owns the simulated state. All methods are safe for concurrent use.
// Every mutation is published to subscribers, in mutation order, as a deep
// copy of the state.
type Engine struct {
	log     *slog.Logger
	store   SettingsStore
	rng     Entropy
	now     func() time.Time
	alertID func() string

	tickEvery        time.Duration
	interpolateEvery time.Duration

	mu       sync.Mutex
	state    data.SimulationState
	settings data.Settings
	lastTick time.Time

	saveMu     sync.Mutex
	dispatchMu sync.Mutex

	subsMu  sync.RWMutex
	subs    map[uint64]func(data.Event)
	nextSub uint64
}

func New(ctx context.Context, opts Options) *Engine {
	e := &Engine{
		log:              opts.Logger,
		store:            opts.Store,
		rng:              opts.Entropy,
		now:              opts.Clock,
		alertID:          opts.AlertID,
		tickEvery:        opts.TickInterval,
		interpolateEvery: opts.InterpolationInterval,
		subs:             make(map[uint64]func(data.Event)),
	}
	if e.log == nil {
		e.log = slog.Default()
	}
	if e.rng == nil {
		e.rng = defaultEntropy()
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.alertID == nil {
		e.alertID = newAlertID
	}
	if e.tickEvery <= 0 {
		e.tickEvery = DefaultTickInterval
	}
	if e.interpolateEvery <= 0 {
		e.interpolateEvery = DefaultInterpolationInterval
	}

	e.state = initialState()
	e.settings = e.loadSettings(ctx)
	e.lastTick = e.now()
	return e
}

func initialState() data.SimulationState {
	return data.SimulationState{
		Appliances: map[string]bool{
			data.ApplianceAC:     true,
			data.ApplianceLight:  true,
			data.ApplianceWasher: false,
			data.ApplianceTV:     true,
		},
		HVACWatts:       hvacBaseline,
		LightWatts:      lightBaseline,
		OtherWatts:      tvBaseline,
		GlobalWatts:     hvacBaseline + lightBaseline + tvBaseline,
		Cost:            initialCost,
		EfficiencyScore: initialEfficiency,
		HistoricalData:  baseLoad,
		AlertHistory:    []data.Alert{},
	}
}

func (e *Engine) loadSettings(ctx context.Context) data.Settings {
	if e.store == nil {
		return data.DefaultSettings()
	}
	s, err := e.store.Load(ctx)
	if err != nil {
		e.log.Warn("settings unavailable, using defaults", "err", err)
		return data.DefaultSettings()
	}
	e.log.Info("settings loaded", "spikeThreshold", s.SpikeThreshold, "durationThreshold", s.DurationThreshold)
	return s
}

// Run drives the tick and interpolation timers until ctx is cancelled. It
// ticks once immediately so subscribers get a first snapshot.
func (e *Engine) Run(ctx context.Context) error {
	tick := time.NewTicker(e.tickEvery)
	interp := time.NewTicker(e.interpolateEvery)
	defer tick.Stop()
	defer interp.Stop()

	e.log.Info("simulation loop started", "tick", e.tickEvery.String(), "interpolation", e.interpolateEvery.String())
	e.Tick()
	for {
		select {
		case <-tick.C:
			e.Tick()
		case <-interp.C:
			e.InterpolateCost()
		case <-ctx.Done():
			e.log.Info("simulation loop stopped")
			return nil
		}
	}
}

// Tick refreshes every wattage figure and the current hour's history slot.
func (e *Engine) Tick() {
	e.mu.Lock()
	e.tickLocked()
	e.release(e.eventLocked(data.EventStateUpdated))
}

func (e *Engine) tickLocked() {
	now := e.now()
	e.accrueLocked(now)

	s := &e.state
	switch {
	case s.IsAnomaly:
		s.HVACWatts = float64(anomalyWatts + e.jitter(anomalyBand))
		s.WastedEnergy += anomalyWastePerTick
	case s.Appliances[data.ApplianceAC]:
		s.HVACWatts = float64(hvacBaseline + e.jitter(hvacBand))
	default:
		s.HVACWatts = 0
	}
	s.LightWatts = e.gated(data.ApplianceLight, lightBaseline, lightBand)
	s.OtherWatts = e.gated(data.ApplianceWasher, washerBaseline, washerBand) +
		e.gated(data.ApplianceTV, tvBaseline, tvBand)
	e.updateGlobalLocked()

	if !s.IsAnomaly && s.EfficiencyScore < efficiencyRecoveryCap && e.rng.Float64() > recoveryRollAbove {
		s.EfficiencyScore = clampScore(s.EfficiencyScore + 1)
	}

	s.HistoricalData[now.Hour()] = s.GlobalWatts
}

// InterpolateCost advances the cost between ticks. It does nothing unless
// more than 100ms passed since the last advance, and it does not broadcast.
func (e *Engine) InterpolateCost() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	if now.Sub(e.lastTick) <= interpolationGuard {
		return
	}
	e.accrueLocked(now)
}

func (e *Engine) accrueLocked(now time.Time) {
	elapsed := now.Sub(e.lastTick)
	e.lastTick = now
	e.state.Cost += CostIncrement(e.state.GlobalWatts, elapsed, now.Hour())
}

// TriggerAnomaly starts an overload. It is a no-op while one is active. An
// empty message uses DefaultAnomalyMessage.
func (e *Engine) TriggerAnomaly(message string) {
	e.mu.Lock()
	s := &e.state
	if s.IsAnomaly {
		e.mu.Unlock()
		return
	}
	if message == "" {
		message = DefaultAnomalyMessage
	}

	s.Appliances[data.ApplianceAC] = true
	s.IsAnomaly = true
	s.HVACWatts = anomalyWatts
	s.AnomalyMessage = message
	s.EfficiencyScore = clampScore(s.EfficiencyScore - efficiencyPenalty)
	s.WastedEnergy += anomalyWasteBump

	alert := data.Alert{
		ID:        e.alertID(),
		Timestamp: e.now().UTC(),
		Message:   message,
		Watts:     anomalyWatts,
		Type:      data.AlertTypeOverload,
	}
	history := make([]data.Alert, 0, min(len(s.AlertHistory)+1, data.MaxAlerts))
	history = append(history, alert)
	for _, a := range s.AlertHistory {
		if len(history) == data.MaxAlerts {
			break
		}
		history = append(history, a)
	}
	s.AlertHistory = history
	e.updateGlobalLocked()

	e.log.Warn("anomaly triggered", "message", message, "globalWatts", s.GlobalWatts, "alerts", len(s.AlertHistory))
	e.release(e.eventLocked(data.EventAnomalyDetected))
}

// TurnOffAnomaly ends an active overload. It is a no-op otherwise.
func (e *Engine) TurnOffAnomaly() {
	e.mu.Lock()
	if !e.turnOffLocked() {
		e.mu.Unlock()
		return
	}
	e.release(e.eventLocked(data.EventAnomalyCleared))
}

func (e *Engine) turnOffLocked() bool {
	s := &e.state
	if !s.IsAnomaly {
		return false
	}
	s.IsAnomaly = false
	s.AnomalyMessage = ""
	if s.Appliances[data.ApplianceAC] {
		s.HVACWatts = float64(recoveryFloor + e.rng.Intn(recoverySpan))
	} else {
		s.HVACWatts = 0
	}
	e.updateGlobalLocked()
	e.log.Info("anomaly cleared", "hvacWatts", s.HVACWatts)
	return true
}

// ToggleAppliance flips the appliance, or sets it when forced is non-nil,
// then forces a tick. Switching the AC off during an overload clears it.
func (e *Engine) ToggleAppliance(id string, forced *bool) error {
	if !knownAppliance(id) {
		return fmt.Errorf("%w: %q", ErrUnknownAppliance, id)
	}

	e.mu.Lock()
	next := !e.state.Appliances[id]
	if forced != nil {
		next = *forced
	}
	e.state.Appliances[id] = next
	e.log.Info("appliance toggled", "appliance", id, "on", next)

	var events []data.Event
	if id == data.ApplianceAC && !next && e.turnOffLocked() {
		events = append(events, e.eventLocked(data.EventAnomalyCleared))
	}
	e.tickLocked()
	events = append(events, e.eventLocked(data.EventStateUpdated))
	e.release(events...)
	return nil
}

func knownAppliance(id string) bool {
	switch id {
	case data.ApplianceAC, data.ApplianceLight, data.ApplianceWasher, data.ApplianceTV:
		return true
	}
	return false
}

// SaveSettings merges patch into the current settings and persists the
// result. Values are not range-checked. The in-memory merge stands even when
// persisting fails.
func (e *Engine) SaveSettings(ctx context.Context, patch data.SettingsPatch) (data.Settings, error) {
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	e.settings = patch.Apply(e.settings)
	saved := e.settings
	e.mu.Unlock()

	if e.store == nil {
		return saved, nil
	}
	if err := e.store.Save(ctx, saved); err != nil {
		e.log.Error("settings save failed", "err", err)
		return saved, fmt.Errorf("persist settings: %w", err)
	}
	e.log.Info("settings saved", "spikeThreshold", saved.SpikeThreshold, "durationThreshold", saved.DurationThreshold)
	return saved, nil
}

// ApplyRemoteSettings adopts settings saved by another instance. Last writer
// wins; nothing is persisted.
func (e *Engine) ApplyRemoteSettings(s data.Settings) {
	e.mu.Lock()
	e.settings = s
	e.mu.Unlock()
	e.log.Info("settings mirrored", "spikeThreshold", s.SpikeThreshold, "durationThreshold", s.DurationThreshold)
}

func (e *Engine) ClearAlertHistory() {
	e.mu.Lock()
	e.state.AlertHistory = []data.Alert{}
	e.release(e.eventLocked(data.EventStateUpdated))
}

// Subscribe registers fn for every future event. fn runs on the mutating
// goroutine and must not call back into the engine; hand work off instead.
func (e *Engine) Subscribe(fn func(data.Event)) (cancel func()) {
	e.subsMu.Lock()
	id := e.nextSub
	e.nextSub++
	e.subs[id] = fn
	e.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, id)
			e.subsMu.Unlock()
		})
	}
}

func (e *Engine) Snapshot() data.SimulationState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Clone()
}

func (e *Engine) Settings() data.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

func (e *Engine) Cost() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.Cost
}

func (e *Engine) eventLocked(kind data.EventKind) data.Event {
	return data.Event{Kind: kind, State: e.state.Clone()}
}

// release must be called with e.mu held. It hands the events to subscribers
// after dropping the state lock; dispatchMu is taken first so deliveries
// keep mutation order.
func (e *Engine) release(events ...data.Event) {
	e.dispatchMu.Lock()
	e.mu.Unlock()
	defer e.dispatchMu.Unlock()

	e.subsMu.RLock()
	subs := make([]func(data.Event), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	e.subsMu.RUnlock()

	for _, ev := range events {
		for _, fn := range subs {
			fn(data.Event{Kind: ev.Kind, State: ev.State.Clone()})
		}
	}
}

func (e *Engine) updateGlobalLocked() {
	s := &e.state
	s.GlobalWatts = s.HVACWatts + s.LightWatts + s.OtherWatts
}

func (e *Engine) jitter(band int) int {
	return e.rng.Intn(band) - band/2
}

func (e *Engine) gated(id string, baseline, band int) float64 {
	if !e.state.Appliances[id] {
		return 0
	}
	return float64(baseline + e.jitter(band))
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
