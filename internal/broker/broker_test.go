package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

var fixedNow = time.Date(2026, 10, 16, 19, 30, 0, 0, time.UTC)

func sampleEvent(kind data.EventKind) data.Event {
	return data.Event{Kind: kind, State: data.SimulationState{
		HVACWatts:    3200,
		LightWatts:   450,
		OtherWatts:   200,
		GlobalWatts:  3850,
		IsAnomaly:    kind == data.EventAnomalyDetected,
		AlertHistory: []data.Alert{{ID: "a1", Message: "overload", Watts: 3200, Type: data.AlertTypeOverload}},
	}}
}

func TestKafkaSinkPublish(t *testing.T) {
	w := &fakeWriter{}
	sink := &KafkaSink{w: w, topic: "aetherio.events", now: func() time.Time { return fixedNow }}

	require.NoError(t, sink.Publish(context.Background(), sampleEvent(data.EventAnomalyDetected)))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "anomaly_detected", string(w.msgs[0].Key))
	assert.Equal(t, fixedNow, w.msgs[0].Time)

	var ev data.Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, 3850.0, ev.State.GlobalWatts)
	assert.Equal(t, "kafka:aetherio.events", sink.Name())

	w.err = errors.New("leader not available")
	assert.Error(t, sink.Publish(context.Background(), sampleEvent(data.EventStateUpdated)))
}

func TestNewKafkaSinkFlushesPromptly(t *testing.T) {
	sink := NewKafkaSink([]string{"localhost:9092"}, "aetherio.events")
	defer sink.Close()

	w, ok := sink.w.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, kafkaBatchTimeout, w.BatchTimeout)
	assert.Less(t, w.BatchTimeout, 100*time.Millisecond)
	assert.Equal(t, kafka.RequireOne, w.RequiredAcks)
}

type fakeToken struct {
	done chan struct{}
	err  error
}

func newFakeToken(err error, completed bool) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	if completed {
		close(t.done)
	}
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type fakeMQTT struct {
	published map[string][]byte
	err       error
	completed bool
}

func (f *fakeMQTT) Publish(topic string, _ byte, _ bool, payload interface{}) mqtt.Token {
	if f.published == nil {
		f.published = map[string][]byte{}
	}
	f.published[topic] = payload.([]byte)
	return newFakeToken(f.err, f.completed)
}

func (f *fakeMQTT) Disconnect(uint) {}

func TestMQTTSinkPublish(t *testing.T) {
	t.Run("reading and alert on onset", func(t *testing.T) {
		client := &fakeMQTT{completed: true}
		sink := &MQTTSink{client: client, topicPrefix: "aetherio", now: func() time.Time { return fixedNow }}

		require.NoError(t, sink.Publish(context.Background(), sampleEvent(data.EventAnomalyDetected)))
		require.Contains(t, client.published, "aetherio/readings")
		require.Contains(t, client.published, "aetherio/alerts")

		var r Reading
		require.NoError(t, json.Unmarshal(client.published["aetherio/readings"], &r))
		assert.Equal(t, 3850.0, r.GlobalWatts)
		assert.True(t, r.IsAnomaly)
		assert.Equal(t, data.EventAnomalyDetected, r.Event)
	})

	t.Run("reading only on state updates", func(t *testing.T) {
		client := &fakeMQTT{completed: true}
		sink := &MQTTSink{client: client, topicPrefix: "aetherio", now: time.Now}

		require.NoError(t, sink.Publish(context.Background(), sampleEvent(data.EventStateUpdated)))
		assert.Len(t, client.published, 1)
	})

	t.Run("publish error", func(t *testing.T) {
		client := &fakeMQTT{completed: true, err: errors.New("not connected")}
		sink := &MQTTSink{client: client, topicPrefix: "aetherio", now: time.Now}
		assert.Error(t, sink.Publish(context.Background(), sampleEvent(data.EventStateUpdated)))
	})

	t.Run("context cancelled while waiting", func(t *testing.T) {
		client := &fakeMQTT{completed: false}
		sink := &MQTTSink{client: client, topicPrefix: "aetherio", now: time.Now}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, sink.Publish(ctx, sampleEvent(data.EventStateUpdated)), context.Canceled)
	})
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "aetherio.events.anomaly_cleared", Subject("aetherio.events", data.EventAnomalyCleared))
	assert.Equal(t, "state_updated", Subject("", data.EventStateUpdated))
}
