package autoscaler

import (
	"math"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Forecaster predicts the system state some time ahead of the newest sample.
type Forecaster interface {
	Forecast(samples []models.MetricSample, horizon time.Duration) (models.Forecast, error)
}

// LinearForecaster fits a least-squares line per metric over sample time.
// Confidence is the R² of the CPU fit.
type LinearForecaster struct {
	MinSamples int
}

type fit struct {
	slope, intercept, r2 float64
}

func (f fit) at(x float64) float64 {
	return f.intercept + f.slope*x
}

func (l LinearForecaster) Forecast(samples []models.MetricSample, horizon time.Duration) (models.Forecast, error) {
	minSamples := l.MinSamples
	if minSamples < 2 {
		minSamples = 2
	}
	if len(samples) < minSamples {
		return models.Forecast{}, ErrInsufficientData
	}

	origin := samples[0].Timestamp
	xs := make([]float64, len(samples))
	cpu := make([]float64, len(samples))
	mem := make([]float64, len(samples))
	rps := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.Timestamp.Sub(origin).Seconds()
		cpu[i] = s.CPUPercent
		mem[i] = s.MemoryPercent
		rps[i] = s.ThroughputRps
	}

	latest := samples[len(samples)-1].Timestamp
	target := latest.Add(horizon).Sub(origin).Seconds()

	cpuFit := regress(xs, cpu)
	return models.Forecast{
		CreatedAt:       latest,
		ForecastTime:    latest.Add(horizon),
		PredictedCPU:    clamp(cpuFit.at(target), 0, 100),
		PredictedMemory: clamp(regress(xs, mem).at(target), 0, 100),
		PredictedRps:    math.Max(regress(xs, rps).at(target), 0),
		Confidence:      cpuFit.r2,
		SamplesUsed:     len(samples),
	}, nil
}

func regress(xs, ys []float64) fit {
	n := float64(len(xs))
	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var sxx, sxy, syy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}

	if sxx == 0 {
		return fit{intercept: meanY}
	}
	slope := sxy / sxx
	r2 := 1.0
	if syy > 0 {
		r2 = (sxy * sxy) / (sxx * syy)
	}
	return fit{slope: slope, intercept: meanY - slope*meanX, r2: r2}
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
