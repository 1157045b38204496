// internal/alerting/alerter.go
package alerting

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/anomaly"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/breaker"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/metrics"
	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/storage"
)

const (
	DefaultQueueSize    = 64
	DefaultCostInterval = time.Second
	sinkTimeout         = 5 * time.Second

	MessageCost       = "cost"
	MessageEscalation = "escalation"
)

// Sink is an external destination for engine events (Kafka, MQTT, NATS).
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev data.Event) error
	Close() error
}

// Broadcaster pushes an envelope to every connected dashboard.
type Broadcaster interface {
	Broadcast(kind string, payload any) error
}

// CostPayload is the cost feed message body.
type CostPayload struct {
	Cost string `json:"cost"`
}

type Options struct {
	Hub      Broadcaster
	Store    *storage.MemoryStore
	Detector *anomaly.Detector
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Sinks    []Sink
	Breaker  breaker.Config

	QueueSize int
	// SinkQueueSize bounds events waiting for the broker sinks. Defaults to
	// QueueSize.
	SinkQueueSize int
	CostInterval  time.Duration
	// Cost reads the live running cost for the feed. Nil disables the feed.
	Cost func() float64
}

type guardedSink struct {
	sink    Sink
	breaker *breaker.Breaker
}

// Alerter consumes engine events on its own goroutine and fans them out to
// dashboards, the replay buffer, metrics, the overload detector and sinks.
type Alerter struct {
	hub      Broadcaster
	store    *storage.MemoryStore
	detector *anomaly.Detector
	metrics  *metrics.Metrics
	log      *slog.Logger
	sinks    []guardedSink

	queue        chan data.Event
	sinkQueue    chan data.Event
	costInterval time.Duration
	cost         func() float64
}

func NewAlerter(opts Options) *Alerter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.SinkQueueSize <= 0 {
		opts.SinkQueueSize = opts.QueueSize
	}
	if opts.CostInterval <= 0 {
		opts.CostInterval = DefaultCostInterval
	}
	a := &Alerter{
		hub:          opts.Hub,
		store:        opts.Store,
		detector:     opts.Detector,
		metrics:      opts.Metrics,
		log:          opts.Logger,
		queue:        make(chan data.Event, opts.QueueSize),
		sinkQueue:    make(chan data.Event, opts.SinkQueueSize),
		costInterval: opts.CostInterval,
		cost:         opts.Cost,
	}
	for _, s := range opts.Sinks {
		a.sinks = append(a.sinks, guardedSink{
			sink:    s,
			breaker: breaker.New(s.Name(), opts.Breaker, opts.Logger),
		})
	}
	return a
}

// Enqueue is the engine subscriber. It never blocks: when the queue is full
// the event is dropped.
func (a *Alerter) Enqueue(ev data.Event) {
	select {
	case a.queue <- ev:
	default:
		a.metrics.EventDropped()
		a.log.Warn("alerter queue full, dropping event", "kind", ev.Kind)
	}
}

// Run drains the queue and drives the cost feed until ctx is cancelled, then
// closes every sink. Sinks publish on their own goroutine so a slow broker
// never holds up dashboard pushes.
func (a *Alerter) Run(ctx context.Context) error {
	var costC <-chan time.Time
	if a.cost != nil {
		t := time.NewTicker(a.costInterval)
		defer t.Stop()
		costC = t.C
	}

	var wg sync.WaitGroup
	if len(a.sinks) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.runSinks(ctx)
		}()
	}
	defer func() {
		wg.Wait()
		a.closeSinks()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-a.queue:
			a.Process(ctx, ev)
		case <-costC:
			a.pushCost()
		}
	}
}

// Process fans one event out to dashboards, the replay buffer, metrics and
// the detector, then queues it for the sinks without waiting.
func (a *Alerter) Process(ctx context.Context, ev data.Event) {
	a.metrics.ObserveEvent(ev)
	if a.store != nil {
		a.store.Add(ev)
	}
	if ev.Kind == data.EventAnomalyDetected && len(ev.State.AlertHistory) > 0 {
		alert := ev.State.AlertHistory[0]
		a.log.Warn("ALERT", "id", alert.ID, "watts", alert.Watts, "message", alert.Message)
	}
	a.broadcast(string(ev.Kind), ev.State)

	if a.detector != nil {
		if esc := a.detector.Check(ev); esc != nil {
			a.metrics.Escalated()
			a.broadcast(MessageEscalation, esc)
		}
	}

	a.forward(ev)
}

func (a *Alerter) forward(ev data.Event) {
	if len(a.sinks) == 0 {
		return
	}
	select {
	case a.sinkQueue <- ev:
	default:
		a.metrics.SinkEventDropped()
		a.log.Warn("sink queue full, dropping event", "kind", ev.Kind)
	}
}

func (a *Alerter) runSinks(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-a.sinkQueue:
			a.publishAll(ctx, ev)
		}
	}
}

func (a *Alerter) publishAll(ctx context.Context, ev data.Event) {
	for _, g := range a.sinks {
		a.publish(ctx, g, ev)
	}
}

func (a *Alerter) publish(ctx context.Context, g guardedSink, ev data.Event) {
	pctx, cancel := context.WithTimeout(ctx, sinkTimeout)
	defer cancel()

	err := g.breaker.Execute(pctx, func(ctx context.Context) error {
		return g.sink.Publish(ctx, ev)
	})
	a.metrics.SetBreakerState(g.sink.Name(), int(g.breaker.State()))
	if err == nil {
		return
	}
	a.metrics.SinkFailed(g.sink.Name())
	if !errors.Is(err, breaker.ErrOpen) {
		a.log.Warn("sink publish failed", "sink", g.sink.Name(), "kind", ev.Kind, "err", err)
	}
}

func (a *Alerter) pushCost() {
	cost := a.cost()
	a.metrics.SetCost(cost)
	a.broadcast(MessageCost, CostPayload{Cost: FormatCost(cost)})
}

func (a *Alerter) broadcast(kind string, payload any) {
	if a.hub == nil {
		return
	}
	if err := a.hub.Broadcast(kind, payload); err != nil {
		a.log.Warn("broadcast failed", "type", kind, "err", err)
	}
}

func (a *Alerter) closeSinks() {
	for _, g := range a.sinks {
		if err := g.sink.Close(); err != nil {
			a.log.Warn("closing sink", "sink", g.sink.Name(), "err", err)
		}
	}
}

// FormatCost renders a cost with two fixed decimals.
func FormatCost(cost float64) string {
	return decimal.NewFromFloat(cost).StringFixed(2)
}
