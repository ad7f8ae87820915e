package models

import "time"

type Trend string

const (
	TrendRising  Trend = "rising"
	TrendFalling Trend = "falling"
	TrendStable  Trend = "stable"
)

type ThresholdStatus string

const (
	ThresholdNormal   ThresholdStatus = "normal"
	ThresholdWarning  ThresholdStatus = "warning"
	ThresholdCritical ThresholdStatus = "critical"
)

// Analysis summarises a window of the metrics history
type Analysis struct {
	Timestamp    time.Time       `json:"timestamp"`
	Samples      int             `json:"samples"`
	Latest       MetricSample    `json:"latest"`
	Averages     MetricAverages  `json:"averages"`
	CPUStatus    ThresholdStatus `json:"cpu_status"`
	MemoryStatus ThresholdStatus `json:"memory_status"`
	Trend        Trend           `json:"trend"`
	HasSpike     bool            `json:"has_spike"`
	SpikePercent float64         `json:"spike_percent,omitempty"`
}

func (a *Analysis) IsCritical() bool {
	return a.CPUStatus == ThresholdCritical || a.MemoryStatus == ThresholdCritical
}

type BottleneckType string

const (
	BottleneckCPU         BottleneckType = "CPU_BOTTLENECK"
	BottleneckMemory      BottleneckType = "MEMORY_BOTTLENECK"
	BottleneckLatency     BottleneckType = "LATENCY_BOTTLENECK"
	BottleneckCircuitOpen BottleneckType = "CIRCUIT_OPEN"
)

// Bottleneck is an urgent capacity signal raised by the sampler or a circuit.
type Bottleneck struct {
	Type           BottleneckType `json:"type"`
	Severity       Severity       `json:"severity"`
	Value          float64        `json:"value"`
	Threshold      float64        `json:"threshold"`
	Source         string         `json:"source,omitempty"`
	Recommendation string         `json:"recommendation,omitempty"`
	DetectedAt     time.Time      `json:"detected_at"`
}

func (b Bottleneck) IsCritical() bool {
	return b.Severity == SeverityCritical
}

// Forecast is a predicted system state at a future point in time
type Forecast struct {
	CreatedAt       time.Time `json:"created_at"`
	ForecastTime    time.Time `json:"forecast_time"`
	PredictedCPU    float64   `json:"predicted_cpu"`
	PredictedMemory float64   `json:"predicted_memory"`
	PredictedRps    float64   `json:"predicted_rps"`
	Confidence      float64   `json:"confidence"`
	SamplesUsed     int       `json:"samples_used"`
}

func (f *Forecast) IsHighConfidence(threshold float64) bool {
	return f.Confidence >= threshold
}
