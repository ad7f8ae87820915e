package collector

import (
	"math"
	"math/rand"
	"time"
)

// Pattern shapes a base utilisation value over time.
type Pattern interface {
	Apply(base float64, now time.Time) float64
	Name() string
}

func ParsePattern(name string, start time.Time, rng *rand.Rand) Pattern {
	switch name {
	case "daily":
		return DailyPattern{}
	case "weekly":
		return WeeklyPattern{}
	case "random":
		return &RandomPattern{rng: rng}
	case "gradual_rise":
		return GradualRisePattern{Start: start}
	case "spike":
		return SpikePattern{Start: start, Every: 10 * time.Minute, Duration: time.Minute, Magnitude: 2.0}
	case "sine_wave":
		return SineWavePattern{}
	default:
		return SteadyPattern{}
	}
}

// SteadyPattern - constant load
type SteadyPattern struct{}

func (SteadyPattern) Apply(base float64, _ time.Time) float64 { return base }

func (SteadyPattern) Name() string { return "steady" }

// DailyPattern - business hours peak, night trough
type DailyPattern struct{}

func (DailyPattern) Apply(base float64, now time.Time) float64 {
	return clampPercent(base * hourModifier(now.Hour()))
}

func (DailyPattern) Name() string { return "daily" }

func hourModifier(hour int) float64 {
	switch {
	case hour >= 9 && hour <= 11:
		return 1.4
	case hour >= 14 && hour <= 16:
		return 1.3
	case hour >= 17 && hour <= 20:
		return 1.1
	case hour >= 0 && hour <= 6:
		return 0.6
	default:
		return 1.0
	}
}

// WeeklyPattern - daily cycle on weekdays, halved on weekends
type WeeklyPattern struct{}

func (WeeklyPattern) Apply(base float64, now time.Time) float64 {
	if wd := now.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return clampPercent(base * 0.5)
	}
	return clampPercent(base * hourModifier(now.Hour()))
}

func (WeeklyPattern) Name() string { return "weekly" }

// RandomPattern - unpredictable swings between 0.5x and 1.5x, floor 10
type RandomPattern struct {
	rng *rand.Rand
}

func (p *RandomPattern) Apply(base float64, _ time.Time) float64 {
	f := rand.Float64
	if p.rng != nil {
		f = p.rng.Float64
	}
	return math.Max(clampPercent(base*(0.5+f())), 10)
}

func (p *RandomPattern) Name() string { return "random" }

// GradualRisePattern - +2% per minute since Start, capped at +50%
type GradualRisePattern struct {
	Start time.Time
}

func (p GradualRisePattern) Apply(base float64, now time.Time) float64 {
	increase := math.Min(now.Sub(p.Start).Minutes()*2, 50)
	return clampPercent(base * (1 + increase/100))
}

func (p GradualRisePattern) Name() string { return "gradual_rise" }

// SpikePattern - multiplies the base by Magnitude for Duration every Every
type SpikePattern struct {
	Start     time.Time
	Every     time.Duration
	Duration  time.Duration
	Magnitude float64
}

func (p SpikePattern) Apply(base float64, now time.Time) float64 {
	if p.Every <= 0 {
		return base
	}
	elapsed := now.Sub(p.Start) % p.Every
	if elapsed >= 0 && elapsed < p.Duration {
		return clampPercent(base * p.Magnitude)
	}
	return base
}

func (p SpikePattern) Name() string { return "spike" }

// SineWavePattern - smooth oscillation
type SineWavePattern struct {
	Period    time.Duration
	Amplitude float64
}

func (p SineWavePattern) Apply(base float64, now time.Time) float64 {
	period, amplitude := p.Period, p.Amplitude
	if period == 0 {
		period = 10 * time.Minute
	}
	if amplitude == 0 {
		amplitude = 20
	}

	phase := float64(now.UnixNano()) / float64(period.Nanoseconds()) * 2 * math.Pi
	return math.Max(clampPercent(base+math.Sin(phase)*amplitude), 10)
}

func (p SineWavePattern) Name() string { return "sine_wave" }
