package analyzer

import (
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type Config struct {
	CPUHighThreshold        float64
	CPUCriticalThreshold    float64
	MemoryHighThreshold     float64
	MemoryCriticalThreshold float64
	TrendWindow             time.Duration
	TrendDelta              float64
	SpikeThreshold          float64
}

// Analyzer derives threshold status, trend and spikes from a window of
// samples. It is stateless; callers pass a history snapshot.
type Analyzer struct {
	config Config
}

func New(cfg Config) *Analyzer {
	if cfg.CPUHighThreshold == 0 {
		cfg.CPUHighThreshold = 75.0
	}
	if cfg.CPUCriticalThreshold == 0 {
		cfg.CPUCriticalThreshold = 95.0
	}
	if cfg.MemoryHighThreshold == 0 {
		cfg.MemoryHighThreshold = 80.0
	}
	if cfg.MemoryCriticalThreshold == 0 {
		cfg.MemoryCriticalThreshold = 95.0
	}
	if cfg.TrendWindow == 0 {
		cfg.TrendWindow = 5 * time.Minute
	}
	if cfg.TrendDelta == 0 {
		cfg.TrendDelta = 3.0
	}
	if cfg.SpikeThreshold == 0 {
		cfg.SpikeThreshold = 50.0
	}
	return &Analyzer{config: cfg}
}

func (a *Analyzer) Analyze(samples []models.MetricSample) *models.Analysis {
	if len(samples) == 0 {
		return &models.Analysis{
			Timestamp:    time.Now(),
			CPUStatus:    models.ThresholdNormal,
			MemoryStatus: models.ThresholdNormal,
			Trend:        models.TrendStable,
		}
	}

	latest := samples[len(samples)-1]
	hasSpike, spikePercent := a.DetectSpike(samples)

	return &models.Analysis{
		Timestamp:    latest.Timestamp,
		Samples:      len(samples),
		Latest:       latest,
		Averages:     models.CalculateAverages(samples),
		CPUStatus:    evaluate(latest.CPUPercent, a.config.CPUHighThreshold, a.config.CPUCriticalThreshold),
		MemoryStatus: evaluate(latest.MemoryPercent, a.config.MemoryHighThreshold, a.config.MemoryCriticalThreshold),
		Trend:        a.Trend(samples),
		HasSpike:     hasSpike,
		SpikePercent: spikePercent,
	}
}

func evaluate(value, high, critical float64) models.ThresholdStatus {
	switch {
	case value >= critical:
		return models.ThresholdCritical
	case value >= high:
		return models.ThresholdWarning
	default:
		return models.ThresholdNormal
	}
}

// Trend compares the mean CPU of the older and newer half of the samples
// inside the trend window.
func (a *Analyzer) Trend(samples []models.MetricSample) models.Trend {
	if len(samples) < 3 {
		return models.TrendStable
	}

	cutoff := samples[len(samples)-1].Timestamp.Add(-a.config.TrendWindow)
	var recent []models.MetricSample
	for _, s := range samples {
		if s.Timestamp.After(cutoff) {
			recent = append(recent, s)
		}
	}

	if len(recent) < 3 {
		return models.TrendStable
	}

	firstAvg := averageCPU(recent[:len(recent)/2])
	secondAvg := averageCPU(recent[len(recent)/2:])
	diff := secondAvg - firstAvg

	switch {
	case diff > a.config.TrendDelta:
		return models.TrendRising
	case diff < -a.config.TrendDelta:
		return models.TrendFalling
	default:
		return models.TrendStable
	}
}

func averageCPU(samples []models.MetricSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		total += s.CPUPercent
	}
	return total / float64(len(samples))
}

// DetectSpike compares the latest CPU against the newest sample that is at
// least a minute older, or the previous sample if none is.
func (a *Analyzer) DetectSpike(samples []models.MetricSample) (bool, float64) {
	if len(samples) < 2 {
		return false, 0
	}

	latest := samples[len(samples)-1]
	oneMinuteAgo := latest.Timestamp.Add(-1 * time.Minute)
	previous := samples[len(samples)-2]

	for i := len(samples) - 2; i >= 0; i-- {
		if samples[i].Timestamp.Before(oneMinuteAgo) {
			previous = samples[i]
			break
		}
	}

	if previous.CPUPercent == 0 {
		return false, 0
	}

	changePercent := ((latest.CPUPercent - previous.CPUPercent) / previous.CPUPercent) * 100
	return changePercent >= a.config.SpikeThreshold, changePercent
}
