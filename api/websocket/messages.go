package websocket

import (
	"encoding/json"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

// OutgoingMessage is the frame sent for each bus event.
type OutgoingMessage struct {
	Type      models.EventType `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Severity  models.Severity  `json:"severity,omitempty"`
	Source    string           `json:"source,omitempty"`
	Message   string           `json:"message,omitempty"`
	Data      interface{}      `json:"data,omitempty"`
	TraceID   string           `json:"trace_id,omitempty"`
}

func NewMessage(event *models.Event) *OutgoingMessage {
	return &OutgoingMessage{
		Type:      event.Type,
		Timestamp: event.Timestamp,
		Severity:  event.Severity,
		Source:    event.Source,
		Message:   event.Message,
		Data:      event.Data,
		TraceID:   event.TraceID,
	}
}

func (m *OutgoingMessage) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// IncomingMessage changes a client's type filter. An empty Types list on
// subscribe means every event.
type IncomingMessage struct {
	Action string             `json:"action"`
	Types  []models.EventType `json:"types,omitempty"`
}

type subscriptionUpdate struct {
	Type      string             `json:"type"`
	Action    string             `json:"action"`
	Types     []models.EventType `json:"types"`
	Timestamp time.Time          `json:"timestamp"`
}
