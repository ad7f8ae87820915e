package analyzer

import (
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type DetectorConfig struct {
	CPUThreshold            float64
	CPUCriticalThreshold    float64
	MemoryThreshold         float64
	MemoryCriticalThreshold float64
	LatencyThresholdMs      float64
	LatencyCriticalMs       float64
	SustainedSamples        int
	RepeatInterval          time.Duration
}

// Detector turns individual samples into bottleneck signals. A breach has
// to persist for SustainedSamples consecutive samples (critical breaches
// fire immediately) and is re-emitted only on escalation or once
// RepeatInterval has passed.
type Detector struct {
	config  DetectorConfig
	streaks map[models.BottleneckType]int
	emitted map[models.BottleneckType]emission
	mu      sync.Mutex
}

type emission struct {
	at       time.Time
	severity models.Severity
}

func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.CPUThreshold == 0 {
		cfg.CPUThreshold = 80.0
	}
	if cfg.CPUCriticalThreshold == 0 {
		cfg.CPUCriticalThreshold = 95.0
	}
	if cfg.MemoryThreshold == 0 {
		cfg.MemoryThreshold = 85.0
	}
	if cfg.MemoryCriticalThreshold == 0 {
		cfg.MemoryCriticalThreshold = 95.0
	}
	if cfg.LatencyThresholdMs == 0 {
		cfg.LatencyThresholdMs = 1000.0
	}
	if cfg.LatencyCriticalMs == 0 {
		cfg.LatencyCriticalMs = 2 * cfg.LatencyThresholdMs
	}
	if cfg.SustainedSamples <= 0 {
		cfg.SustainedSamples = 1
	}
	if cfg.RepeatInterval == 0 {
		cfg.RepeatInterval = 5 * time.Minute
	}

	return &Detector{
		config:  cfg,
		streaks: make(map[models.BottleneckType]int),
		emitted: make(map[models.BottleneckType]emission),
	}
}

func (d *Detector) Detect(sample models.MetricSample) []models.Bottleneck {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []models.Bottleneck
	checks := []struct {
		kind           models.BottleneckType
		value          float64
		threshold      float64
		critical       float64
		recommendation string
	}{
		{models.BottleneckCPU, sample.CPUPercent, d.config.CPUThreshold, d.config.CPUCriticalThreshold, "scale out compute capacity"},
		{models.BottleneckMemory, sample.MemoryPercent, d.config.MemoryThreshold, d.config.MemoryCriticalThreshold, "scale out or reduce cache footprint"},
		{models.BottleneckLatency, sample.LatencyP95Ms, d.config.LatencyThresholdMs, d.config.LatencyCriticalMs, "investigate slow dependencies and shed load"},
	}

	for _, c := range checks {
		if c.value <= c.threshold {
			delete(d.streaks, c.kind)
			delete(d.emitted, c.kind)
			continue
		}

		d.streaks[c.kind]++
		severity := models.SeverityHigh
		if c.value >= c.critical {
			severity = models.SeverityCritical
		}

		if severity != models.SeverityCritical && d.streaks[c.kind] < d.config.SustainedSamples {
			continue
		}
		if !d.shouldEmit(c.kind, severity, sample.Timestamp) {
			continue
		}

		d.emitted[c.kind] = emission{at: sample.Timestamp, severity: severity}
		out = append(out, models.Bottleneck{
			Type:           c.kind,
			Severity:       severity,
			Value:          c.value,
			Threshold:      c.threshold,
			Source:         "sampler",
			Recommendation: c.recommendation,
			DetectedAt:     sample.Timestamp,
		})
	}

	return out
}

// shouldEmit must be called with d.mu held.
func (d *Detector) shouldEmit(kind models.BottleneckType, severity models.Severity, now time.Time) bool {
	last, ok := d.emitted[kind]
	if !ok {
		return true
	}
	if severity.Rank() > last.severity.Rank() {
		return true
	}
	return now.Sub(last.at) >= d.config.RepeatInterval
}

func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.streaks = make(map[models.BottleneckType]int)
	d.emitted = make(map[models.BottleneckType]emission)
}
