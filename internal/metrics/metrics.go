// internal/metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

const namespace = "aetherio"

// Metrics holds the collectors for one process. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	events        *prometheus.CounterVec
	anomalies     prometheus.Counter
	droppedEvents prometheus.Counter
	sinkDropped   prometheus.Counter
	sinkFailures  *prometheus.CounterVec
	escalations   prometheus.Counter
	watts         *prometheus.GaugeVec
	cost          prometheus.Gauge
	efficiency    prometheus.Gauge
	wasted        prometheus.Gauge
	wsClients     prometheus.Gauge
	breakerState  *prometheus.GaugeVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engine events delivered, by kind.",
		}, []string{"kind"}),
		anomalies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "anomalies_total",
			Help:      "Overload anomalies started.",
		}),
		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Engine events dropped because the alerter queue was full.",
		}),
		sinkDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_dropped_events_total",
			Help:      "Engine events dropped because the sink queue was full.",
		}),
		sinkFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Failed broker publishes, by sink.",
		}, []string{"sink"}),
		escalations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_total",
			Help:      "Sustained overloads escalated by the detector.",
		}),
		watts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watts",
			Help:      "Current simulated draw, by circuit.",
		}, []string{"circuit"}),
		cost: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cost",
			Help:      "Running cost in currency units.",
		}),
		efficiency: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "efficiency_score",
			Help:      "Efficiency score between 0 and 100.",
		}),
		wasted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "wasted_energy_kwh",
			Help:      "Energy attributed to anomalies.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_clients",
			Help:      "Connected dashboard clients.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state (0 closed, 1 open, 2 half-open).",
		}, []string{"sink"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request durations by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}

	m.registry.MustRegister(
		m.events,
		m.anomalies,
		m.droppedEvents,
		m.sinkDropped,
		m.sinkFailures,
		m.escalations,
		m.watts,
		m.cost,
		m.efficiency,
		m.wasted,
		m.wsClients,
		m.breakerState,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveEvent records the event kind and mirrors the carried state into gauges.
func (m *Metrics) ObserveEvent(ev data.Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == data.EventAnomalyDetected {
		m.anomalies.Inc()
	}
	s := ev.State
	m.watts.WithLabelValues("hvac").Set(s.HVACWatts)
	m.watts.WithLabelValues("light").Set(s.LightWatts)
	m.watts.WithLabelValues("other").Set(s.OtherWatts)
	m.watts.WithLabelValues("global").Set(s.GlobalWatts)
	m.cost.Set(s.Cost)
	m.efficiency.Set(float64(s.EfficiencyScore))
	m.wasted.Set(s.WastedEnergy)
}

func (m *Metrics) SetCost(cost float64) {
	if m == nil {
		return
	}
	m.cost.Set(cost)
}

func (m *Metrics) EventDropped() {
	if m == nil {
		return
	}
	m.droppedEvents.Inc()
}

func (m *Metrics) SinkEventDropped() {
	if m == nil {
		return
	}
	m.sinkDropped.Inc()
}

func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) Escalated() {
	if m == nil {
		return
	}
	m.escalations.Inc()
}

func (m *Metrics) SetBreakerState(sink string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(sink).Set(float64(state))
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.wsClients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.wsClients.Dec()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

// WrapHandler counts requests and times them under the given route label.
func (m *Metrics) WrapHandler(route string, next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(recorder, r)

		m.httpRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}
