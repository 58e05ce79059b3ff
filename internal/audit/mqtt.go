package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTSink publishes audit events as JSON to an MQTT topic, the same bus
// the rest of the fleet platform uses for telemetry.
type MQTTSink struct {
	client  mqtt.Client
	topic   string
	timeout time.Duration
}

// NewMQTTSink connects to the broker and returns a sink publishing to the
// given topic.
func NewMQTTSink(brokerURL, clientID, topic string) (*MQTTSink, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTSink{client: client, topic: topic, timeout: 5 * time.Second}, nil
}

// Record publishes the event with QoS 1.
func (s *MQTTSink) Record(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	token := s.client.Publish(s.topic, 1, false, payload)
	if !token.WaitTimeout(s.timeout) {
		return errors.New("mqtt publish timed out")
	}
	return token.Error()
}

// Close disconnects from the broker.
func (s *MQTTSink) Close() {
	s.client.Disconnect(250)
}
