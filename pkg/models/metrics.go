package models

import "time"

// MetricSample is one point of system telemetry. Samples are never mutated
// after they are recorded.
type MetricSample struct {
	Timestamp        time.Time `json:"timestamp"`
	CPUPercent       float64   `json:"cpu_percent"`
	MemoryPercent    float64   `json:"memory_percent"`
	ErrorRate        float64   `json:"error_rate"`
	LatencyP95Ms     float64   `json:"latency_p95_ms"`
	ThroughputRps    float64   `json:"throughput_rps"`
	QueueLoadPercent float64   `json:"queue_load_percent,omitempty"`
}

// Load returns the dominant utilisation of the sample as a fraction of 1.
func (s MetricSample) Load() float64 {
	load := s.CPUPercent
	if s.MemoryPercent > load {
		load = s.MemoryPercent
	}
	if s.QueueLoadPercent > load {
		load = s.QueueLoadPercent
	}
	return load / 100
}

// MetricAverages contains averaged values over a window of samples
type MetricAverages struct {
	Count         int     `json:"count"`
	CPU           float64 `json:"cpu"`
	Memory        float64 `json:"memory"`
	ErrorRate     float64 `json:"error_rate"`
	LatencyP95Ms  float64 `json:"latency_p95_ms"`
	ThroughputRps float64 `json:"throughput_rps"`
	QueueLoad     float64 `json:"queue_load"`
}

// Load mirrors MetricSample.Load for averaged values.
func (a MetricAverages) Load() float64 {
	load := a.CPU
	if a.Memory > load {
		load = a.Memory
	}
	if a.QueueLoad > load {
		load = a.QueueLoad
	}
	return load / 100
}

// CalculateAverages computes averages over the given samples.
func CalculateAverages(samples []MetricSample) MetricAverages {
	if len(samples) == 0 {
		return MetricAverages{}
	}

	var avg MetricAverages
	for _, s := range samples {
		avg.CPU += s.CPUPercent
		avg.Memory += s.MemoryPercent
		avg.ErrorRate += s.ErrorRate
		avg.LatencyP95Ms += s.LatencyP95Ms
		avg.ThroughputRps += s.ThroughputRps
		avg.QueueLoad += s.QueueLoadPercent
	}

	n := float64(len(samples))
	avg.Count = len(samples)
	avg.CPU /= n
	avg.Memory /= n
	avg.ErrorRate /= n
	avg.LatencyP95Ms /= n
	avg.ThroughputRps /= n
	avg.QueueLoad /= n
	return avg
}
