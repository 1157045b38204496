package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/burntcookiedough/Smart-Energy-Monitoring-System/internal/data"
)

// Reading is the compact wattage summary published on the readings topic.
type Reading struct {
	Timestamp   time.Time      `json:"timestamp"`
	Event       data.EventKind `json:"event"`
	GlobalWatts float64        `json:"globalWatts"`
	HVACWatts   float64        `json:"hvacWatts"`
	LightWatts  float64        `json:"lightWatts"`
	OtherWatts  float64        `json:"otherWatts"`
	IsAnomaly   bool           `json:"isAnomaly"`
}

type mqttPublisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTSink publishes a reading for every event and the new alert whenever an
// overload starts.
type MQTTSink struct {
	client      mqttPublisher
	topicPrefix string
	now         func() time.Time
}

func NewMQTTSink(brokerURL, clientID, topicPrefix string, timeout time.Duration) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)
	c := mqtt.NewClient(opts)
	token := c.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("mqtt connect %s: timed out after %s", brokerURL, timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", brokerURL, err)
	}
	return &MQTTSink{client: c, topicPrefix: topicPrefix, now: time.Now}, nil
}

func (m *MQTTSink) Name() string { return "mqtt:" + m.topicPrefix }

func (m *MQTTSink) Publish(ctx context.Context, ev data.Event) error {
	for topic, payload := range m.messages(ev) {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", topic, err)
		}
		token := m.client.Publish(topic, 0, false, b)
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt publish %s: %w", topic, err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// messages maps topic to payload for one event.
func (m *MQTTSink) messages(ev data.Event) map[string]any {
	s := ev.State
	out := map[string]any{
		m.topicPrefix + "/readings": Reading{
			Timestamp:   m.now().UTC(),
			Event:       ev.Kind,
			GlobalWatts: s.GlobalWatts,
			HVACWatts:   s.HVACWatts,
			LightWatts:  s.LightWatts,
			OtherWatts:  s.OtherWatts,
			IsAnomaly:   s.IsAnomaly,
		},
	}
	if ev.Kind == data.EventAnomalyDetected && len(s.AlertHistory) > 0 {
		out[m.topicPrefix+"/alerts"] = s.AlertHistory[0]
	}
	return out
}

func (m *MQTTSink) Close() error {
	m.client.Disconnect(250)
	return nil
}
