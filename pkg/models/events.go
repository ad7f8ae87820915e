package models

import "time"

type EventType string

const (
	EventTypeSampleRecorded     EventType = "sample_recorded"
	EventTypeBottleneck         EventType = "bottleneck"
	EventTypeCircuitStateChange EventType = "circuit_state_change"
	EventTypeCircuitOpen        EventType = "circuit_open"
	EventTypeCircuitSuccess     EventType = "circuit_success"
	EventTypeThrottleLimit      EventType = "throttle_limit_changed"
	EventTypeCacheEviction      EventType = "cache_eviction"
	EventTypeScalingStarted     EventType = "scaling_started"
	EventTypeScalingComplete    EventType = "scaling_complete"
	EventTypeScalingFailed      EventType = "scaling_failed"
	EventTypeScalingRolledBack  EventType = "scaling_rolled_back"
	EventTypeScalingSuppressed  EventType = "scaling_suppressed"
	EventTypeAlert              EventType = "alert"
	EventTypeError              EventType = "error"
)

// AllEventTypes lists every event type the bus can carry.
func AllEventTypes() []EventType {
	return []EventType{
		EventTypeSampleRecorded,
		EventTypeBottleneck,
		EventTypeCircuitStateChange,
		EventTypeCircuitOpen,
		EventTypeCircuitSuccess,
		EventTypeThrottleLimit,
		EventTypeCacheEviction,
		EventTypeScalingStarted,
		EventTypeScalingComplete,
		EventTypeScalingFailed,
		EventTypeScalingRolledBack,
		EventTypeScalingSuppressed,
		EventTypeAlert,
		EventTypeError,
	}
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so callers can filter with a minimum level.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityWarning:
		return 3
	case SeverityHigh:
		return 4
	case SeverityCritical:
		return 5
	default:
		return 0
	}
}

// Event represents an internal control-plane event
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Severity  Severity    `json:"severity"`
	Source    string      `json:"source,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	TraceID   string      `json:"trace_id,omitempty"`
}

func NewEvent(eventType EventType, source, message string) *Event {
	return &Event{
		ID:        NewUUID(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Source:    source,
		Timestamp: time.Now(),
		Message:   message,
	}
}

func (e *Event) WithSeverity(severity Severity) *Event {
	e.Severity = severity
	return e
}

func (e *Event) WithData(data interface{}) *Event {
	e.Data = data
	return e
}

func (e *Event) WithTraceID(traceID string) *Event {
	e.TraceID = traceID
	return e
}
