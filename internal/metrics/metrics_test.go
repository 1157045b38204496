package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

func TestObserveEvent(t *testing.T) {
	m := New()
	ev := data.Event{Kind: data.EventAnomalyDetected, State: data.SimulationState{
		HVACWatts:       3200,
		LightWatts:      450,
		OtherWatts:      200,
		GlobalWatts:     3850,
		Cost:            15.2,
		EfficiencyScore: 77,
		WastedEnergy:    0.5,
	}}
	m.ObserveEvent(ev)
	m.ObserveEvent(data.Event{Kind: data.EventStateUpdated, State: ev.State})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("anomaly_detected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("state_updated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.anomalies))
	assert.Equal(t, 3850.0, testutil.ToFloat64(m.watts.WithLabelValues("global")))
	assert.Equal(t, 77.0, testutil.ToFloat64(m.efficiency))
	assert.Equal(t, 15.2, testutil.ToFloat64(m.cost))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveEvent(data.Event{Kind: data.EventStateUpdated})
		m.EventDropped()
		m.SinkEventDropped()
		m.SinkFailed("kafka")
		m.ClientConnected()
		m.SetBreakerState("kafka", 2)
	})
	h := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	m.WrapHandler("x", h).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)
}

func TestSinkEventDropped(t *testing.T) {
	m := New()
	m.SinkEventDropped()
	m.SinkEventDropped()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sinkDropped))
	assert.Zero(t, testutil.ToFloat64(m.droppedEvents))
}

func TestWrapHandlerAndExposition(t *testing.T) {
	m := New()
	h := m.WrapHandler("state", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/state", nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("state", "404")))

	m.ClientConnected()
	m.ClientConnected()
	m.ClientDisconnected()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "aetherio_websocket_clients 1"))
	assert.Contains(t, body, `aetherio_http_requests_total{route="state",status="404"} 1`)
}
