package events

import (
	"context"
	"time"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Store persists events; queries.EventRepository satisfies it.
type Store interface {
	InsertEvent(ctx context.Context, event *models.Event) error
}

// EventLogger writes every event to the structured log and persists events
// at or above MinSeverity to the optional store.
type EventLogger struct {
	store       Store
	eventChan   <-chan *models.Event
	minSeverity models.Severity
	ctx         context.Context
	cancel      context.CancelFunc
	done        chan struct{}
}

func NewEventLogger(store Store, eventChan <-chan *models.Event, minSeverity models.Severity) *EventLogger {
	if minSeverity == "" {
		minSeverity = models.SeverityWarning
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &EventLogger{
		store:       store,
		eventChan:   eventChan,
		minSeverity: minSeverity,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
	}
}

func (l *EventLogger) Start() {
	go l.run()
}

func (l *EventLogger) Stop() {
	l.cancel()
	<-l.done
}

func (l *EventLogger) run() {
	defer close(l.done)
	for {
		select {
		case <-l.ctx.Done():
			return
		case event, ok := <-l.eventChan:
			if !ok {
				return
			}
			l.processEvent(event)
		}
	}
}

func (l *EventLogger) processEvent(event *models.Event) {
	// sample events are high volume and already exported as gauges
	if event.Type == models.EventTypeSampleRecorded || event.Type == models.EventTypeCircuitSuccess {
		return
	}

	entry := logger.WithFields(map[string]interface{}{
		"event_type": event.Type,
		"source":     event.Source,
		"severity":   event.Severity,
		"trace_id":   event.TraceID,
	})

	switch {
	case event.Severity == models.SeverityCritical:
		entry.Error(event.Message)
	case event.Severity.Rank() >= models.SeverityWarning.Rank():
		entry.Warn(event.Message)
	default:
		entry.Info(event.Message)
	}

	if l.store != nil && event.Severity.Rank() >= l.minSeverity.Rank() {
		l.persist(event)
	}
}

func (l *EventLogger) persist(event *models.Event) {
	ctx, cancel := context.WithTimeout(l.ctx, 5*time.Second)
	defer cancel()

	if err := l.store.InsertEvent(ctx, event); err != nil {
		logger.Errorf("Failed to persist event %s: %v", event.Type, err)
	}
}
