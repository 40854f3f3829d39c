package events

import (
	"context"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

// mqttClient is the subset of mqtt.Client the publisher uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// MQTTPublisher publishes events to "<topic>/<kind>" with QoS 1.
type MQTTPublisher struct {
	client  mqttClient
	topic   string
	timeout time.Duration
}

// NewMQTTPublisher connects to the broker and returns a ready publisher.
func NewMQTTPublisher(broker, clientID, topic string) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(10 * time.Second).
		SetAutoReconnect(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.WithError(err).Warn("MQTT connection lost")
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connect to MQTT broker %s: timed out", broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, err)
	}

	log.WithFields(log.Fields{"broker": broker, "topic": topic}).Info("Connected to MQTT broker")
	return newMQTTPublisher(client, topic), nil
}

func newMQTTPublisher(client mqttClient, topic string) *MQTTPublisher {
	return &MQTTPublisher{client: client, topic: topic, timeout: 5 * time.Second}
}

// Publish sends the event and waits for the broker acknowledgement.
func (p *MQTTPublisher) Publish(ctx context.Context, e Event) error {
	body, err := e.Marshal()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	topic := p.topic + "/" + string(e.Kind)
	token := p.client.Publish(topic, 1, false, body)

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("publish to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects, allowing in-flight messages a short grace period.
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(250)
	return nil
}
