package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/velociti/velociti/internal/alerting"
	"github.com/velociti/velociti/internal/conf"
	"github.com/velociti/velociti/internal/errors"
	"github.com/velociti/velociti/internal/logger"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttQuiesceMillis  = 250
)

// publisher is the subset of paho.Client used by the sink.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// MQTTSink publishes every bus event as JSON under a topic prefix:
// <prefix>/alert/created, <prefix>/alert/status_changed and
// <prefix>/agent/status_changed.
type MQTTSink struct {
	client publisher
	prefix string
	qos    byte
	log    logger.Logger
}

// Payload is the JSON body published for an event.
type Payload struct {
	Event          string    `json:"event"`
	AlertID        string    `json:"alertId,omitempty"`
	AgentID        string    `json:"agentId,omitempty"`
	Title          string    `json:"title,omitempty"`
	Priority       string    `json:"priority,omitempty"`
	Category       string    `json:"category,omitempty"`
	Route          string    `json:"route,omitempty"`
	Status         string    `json:"status,omitempty"`
	PreviousStatus string    `json:"previousStatus,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// NewMQTTSink connects to the broker. Paho reconnects on its own after the
// first successful connection.
func NewMQTTSink(ctx context.Context, s conf.MQTTSettings, log logger.Logger) (*MQTTSink, error) {
	log = log.Module(componentName).With(logger.String("sink", "mqtt"))
	opts := paho.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(s.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(mqttConnectTimeout).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn("mqtt connection lost", logger.Error(err))
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.Info("mqtt connected", logger.String("broker", s.Broker))
		})
	if s.Username != "" {
		opts.SetUsername(s.Username)
		opts.SetPassword(s.Password)
	}

	client := paho.NewClient(opts)
	token := client.Connect()
	select {
	case <-ctx.Done():
		client.Disconnect(0)
		return nil, ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return nil, errors.New(fmt.Errorf("failed to connect to mqtt broker: %w", err)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("broker", s.Broker).
			Build()
	}
	return newMQTTSink(client, s.TopicPrefix, s.QoS, log), nil
}

func newMQTTSink(client publisher, prefix string, qos byte, log logger.Logger) *MQTTSink {
	if prefix == "" {
		prefix = "velociti"
	}
	if qos > 2 {
		qos = 1
	}
	return &MQTTSink{client: client, prefix: strings.TrimRight(prefix, "/"), qos: qos, log: log}
}

func (m *MQTTSink) Name() string { return "mqtt" }

// Topic returns the topic an event is published to.
func (m *MQTTSink) Topic(event *alerting.AlertEvent) string {
	// "alert.created" -> "<prefix>/alert/created"
	return m.prefix + "/" + strings.ReplaceAll(event.Name, ".", "/")
}

// Handle implements alerting.Sink.
func (m *MQTTSink) Handle(ctx context.Context, event *alerting.AlertEvent) error {
	if !m.client.IsConnected() {
		return errors.Newf("mqtt client not connected").
			Component(componentName).
			Category(errors.CategoryNetwork).
			Context("event", event.Name).
			Build()
	}
	payload, err := json.Marshal(NewPayload(event))
	if err != nil {
		return fmt.Errorf("failed to encode mqtt payload: %w", err)
	}

	topic := m.Topic(event)
	token := m.client.Publish(topic, m.qos, false, payload)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return errors.New(fmt.Errorf("failed to publish to %s: %w", topic, err)).
			Component(componentName).
			Category(errors.CategoryNetwork).
			Build()
	}
	m.log.Debug("event published", logger.String("topic", topic))
	return nil
}

// Close disconnects from the broker.
func (m *MQTTSink) Close() {
	m.client.Disconnect(mqttQuiesceMillis)
}

// NewPayload flattens an event for publishing.
func NewPayload(event *alerting.AlertEvent) Payload {
	p := Payload{
		Event:          event.Name,
		AgentID:        event.AgentID,
		Status:         event.Status,
		PreviousStatus: event.PreviousStatus,
		Timestamp:      event.Timestamp.UTC(),
	}
	if a := event.Alert; a != nil {
		p.AlertID = a.ID
		p.Title = a.Title
		p.Priority = a.Priority
		p.Category = a.Category
		if a.Route != nil {
			p.Route = *a.Route
		}
		if p.AgentID == "" {
			p.AgentID = a.AgentID
		}
	}
	return p
}
