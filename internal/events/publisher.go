package events

import (
	"fmt"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Publisher builds typed control-plane events. A nil *Publisher is valid
// and drops everything, so components can treat it as optional.
type Publisher struct {
	bus     *EventBus
	traceID string
}

func NewPublisher(bus *EventBus) *Publisher {
	return &Publisher{bus: bus}
}

func (p *Publisher) WithTraceID(traceID string) *Publisher {
	if p == nil {
		return nil
	}
	return &Publisher{
		bus:     p.bus,
		traceID: traceID,
	}
}

func (p *Publisher) publish(event *models.Event) {
	if p == nil || p.bus == nil {
		return
	}
	if p.traceID != "" {
		event.TraceID = p.traceID
	}
	p.bus.Publish(event)
}

func (p *Publisher) SampleRecorded(sample models.MetricSample) {
	event := models.NewEvent(models.EventTypeSampleRecorded, "sampler", "Metric sample recorded").
		WithData(sample)
	p.publish(event)
}

func (p *Publisher) Bottleneck(b models.Bottleneck) {
	msg := fmt.Sprintf("%s detected (value %.1f, threshold %.1f)", b.Type, b.Value, b.Threshold)
	event := models.NewEvent(models.EventTypeBottleneck, b.Source, msg).
		WithSeverity(b.Severity).
		WithData(b)
	p.publish(event)
}

func (p *Publisher) CircuitStateChanged(name, from, to string) {
	msg := fmt.Sprintf("Circuit %s: %s -> %s", name, from, to)
	severity := models.SeverityInfo
	if to == "OPEN" {
		severity = models.SeverityWarning
	}
	event := models.NewEvent(models.EventTypeCircuitStateChange, name, msg).
		WithSeverity(severity).
		WithData(map[string]interface{}{
			"circuit": name,
			"from":    from,
			"to":      to,
		})
	p.publish(event)
}

func (p *Publisher) CircuitOpened(name string, failures int) {
	msg := fmt.Sprintf("Circuit %s opened after %d failures", name, failures)
	event := models.NewEvent(models.EventTypeCircuitOpen, name, msg).
		WithSeverity(models.SeverityWarning).
		WithData(map[string]interface{}{
			"circuit":  name,
			"failures": failures,
		})
	p.publish(event)
}

func (p *Publisher) CircuitSucceeded(name string) {
	event := models.NewEvent(models.EventTypeCircuitSuccess, name, "Circuit call succeeded")
	p.publish(event)
}

func (p *Publisher) ThrottleLimitChanged(previous, current int, load float64) {
	msg := fmt.Sprintf("Throttle limit %d -> %d (load %.2f)", previous, current, load)
	event := models.NewEvent(models.EventTypeThrottleLimit, "throttle", msg).
		WithData(map[string]interface{}{
			"previous": previous,
			"current":  current,
			"load":     load,
		})
	p.publish(event)
}

func (p *Publisher) CacheEvicted(count int, freedBytes int64) {
	msg := fmt.Sprintf("Evicted %d cache entries", count)
	event := models.NewEvent(models.EventTypeCacheEviction, "cache", msg).
		WithData(map[string]interface{}{
			"count":       count,
			"freed_bytes": freedBytes,
		})
	p.publish(event)
}

func (p *Publisher) ScalingStarted(decision *models.ScalingDecision) {
	msg := fmt.Sprintf("Scaling %s started: %d -> %d (%s)",
		decision.Direction, decision.PreviousReplicas, decision.TargetReplicas, decision.Reason)
	event := models.NewEvent(models.EventTypeScalingStarted, "autoscaler", msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingComplete(decision *models.ScalingDecision) {
	msg := fmt.Sprintf("Scaling complete: %d replicas", decision.TargetReplicas)
	event := models.NewEvent(models.EventTypeScalingComplete, "autoscaler", msg).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingRolledBack(decision *models.ScalingDecision) {
	msg := fmt.Sprintf("Scaling rolled back to %d replicas", decision.PreviousReplicas)
	event := models.NewEvent(models.EventTypeScalingRolledBack, "autoscaler", msg).
		WithSeverity(models.SeverityWarning).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingFailed(decision *models.ScalingDecision, err error) {
	msg := "Scaling failed: " + err.Error()
	event := models.NewEvent(models.EventTypeScalingFailed, "autoscaler", msg).
		WithSeverity(models.SeverityCritical).
		WithData(decision)
	p.publish(event)
}

func (p *Publisher) ScalingSuppressed(reason models.ScalingReason, remainingMs int64) {
	msg := fmt.Sprintf("Scaling suppressed by cooldown (%s, %dms remaining)", reason, remainingMs)
	event := models.NewEvent(models.EventTypeScalingSuppressed, "autoscaler", msg).
		WithData(map[string]interface{}{
			"reason":       reason,
			"remaining_ms": remainingMs,
		})
	p.publish(event)
}

func (p *Publisher) Alert(severity models.Severity, message string, data interface{}) {
	event := models.NewEvent(models.EventTypeAlert, "alert", message).
		WithSeverity(severity).
		WithData(data)
	p.publish(event)
}

func (p *Publisher) Error(source string, message string, err error) {
	event := models.NewEvent(models.EventTypeError, source, message).
		WithSeverity(models.SeverityCritical).
		WithData(map[string]interface{}{
			"error": err.Error(),
		})
	p.publish(event)
}
