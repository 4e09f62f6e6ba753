// Package realtime pushes alert changes to browsers over WebSocket and
// provides the matching Go client.
package realtime

import (
	"encoding/json"

	"github.com/velociti/velociti/internal/datastore/entities"
)

// Message types exchanged on /ws.
const (
	TypeInitialData = "initial_data"
	TypeNewAlert    = "new_alert"
	TypeAlertStatus = "alert_status"
	TypeAgentStatus = "agent_status"
	TypePing        = "ping"
	TypePong        = "pong"
	TypeSubscribe   = "subscribe"
	TypeSubscribed  = "subscribed"
	TypeError       = "error"
)

// Message is the decoded form of any frame. Data stays raw so callers can
// decode it according to Type.
type Message struct {
	Type      string           `json:"type"`
	Data      json.RawMessage  `json:"data,omitempty"`
	Alerts    []entities.Alert `json:"alerts,omitempty"`
	Channel   string           `json:"channel,omitempty"`
	Timestamp int64            `json:"timestamp,omitempty"`
	Error     string           `json:"error,omitempty"`
}

// AlertStatusData is the payload of alert_status.
type AlertStatusData struct {
	AlertID string `json:"alertId"`
	Status  string `json:"status"`
}

// AgentStatusData is the payload of agent_status.
type AgentStatusData struct {
	AgentID string `json:"agentId"`
	Status  string `json:"status"`
}

type initialDataMessage struct {
	Type   string           `json:"type"`
	Alerts []entities.Alert `json:"alerts"`
}

type dataMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type pongMessage struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type subscribedMessage struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// inbound is a client to server frame.
type inbound struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
}
