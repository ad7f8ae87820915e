package models

import "time"

type ScalingDirection string

const (
	DirectionUp   ScalingDirection = "up"
	DirectionDown ScalingDirection = "down"
)

type ScalingReason string

const (
	ReasonThreshold  ScalingReason = "THRESHOLD"
	ReasonPredictive ScalingReason = "PREDICTIVE"
	ReasonBottleneck ScalingReason = "BOTTLENECK_EVENT"
	ReasonManual     ScalingReason = "MANUAL"
)

type ScalingOutcome string

const (
	OutcomePending    ScalingOutcome = "pending"
	OutcomeSuccess    ScalingOutcome = "success"
	OutcomeFailed     ScalingOutcome = "failed"
	OutcomeRolledBack ScalingOutcome = "rolled_back"
)

// ScalingDecision represents one capacity change attempted by the autoscaler
type ScalingDecision struct {
	ID               string           `json:"id"`
	Direction        ScalingDirection `json:"direction"`
	Reason           ScalingReason    `json:"reason"`
	Severity         Severity         `json:"severity,omitempty"`
	PreviousReplicas int              `json:"previous_replicas"`
	TargetReplicas   int              `json:"target_replicas"`
	StartedAt        time.Time        `json:"started_at"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	Outcome          ScalingOutcome   `json:"outcome"`
	Error            string           `json:"error,omitempty"`
}

func NewScalingDecision(direction ScalingDirection, reason ScalingReason, previous, target int) *ScalingDecision {
	return &ScalingDecision{
		ID:               NewUUID(),
		Direction:        direction,
		Reason:           reason,
		PreviousReplicas: previous,
		TargetReplicas:   target,
		StartedAt:        time.Now(),
		Outcome:          OutcomePending,
	}
}

// Complete records a terminal outcome at the given time.
func (d *ScalingDecision) Complete(outcome ScalingOutcome, err error, at time.Time) {
	d.CompletedAt = &at
	d.Outcome = outcome
	if err != nil {
		d.Error = err.Error()
	}
}

// Duration is zero until the decision completes.
func (d *ScalingDecision) Duration() time.Duration {
	if d.CompletedAt == nil {
		return 0
	}
	return d.CompletedAt.Sub(d.StartedAt)
}

type ScalingStatus string

const (
	ScalingStatusStable   ScalingStatus = "stable"
	ScalingStatusScaling  ScalingStatus = "scaling"
	ScalingStatusCooldown ScalingStatus = "cooldown"
	ScalingStatusDegraded ScalingStatus = "degraded"
)

// AutoscalerStatus is the externally visible state of the autoscaler
type AutoscalerStatus struct {
	CurrentReplicas     int              `json:"current_replicas"`
	ScalingStatus       ScalingStatus    `json:"scaling_status"`
	LastDecision        *ScalingDecision `json:"last_decision,omitempty"`
	CooldownRemainingMs int64            `json:"cooldown_remaining_ms"`
	MinInstances        int              `json:"min_instances"`
	MaxInstances        int              `json:"max_instances"`
}
