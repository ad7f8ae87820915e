package throttle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

const DefaultRule = "default"

// MetricsReader is the slice of the metrics history the manager reads.
type MetricsReader interface {
	Latest() (models.MetricSample, bool)
	Since(t time.Time) []models.MetricSample
}

// Rule is a base limit for one route or key class.
type Rule struct {
	MaxRequests int
	Window      time.Duration
}

type Config struct {
	Window            time.Duration
	MaxRequests       int
	LoadThreshold     float64
	ScaleDownFactor   float64
	ScaleUpFactor     float64
	Ceiling           int
	DelayAfterRatio   float64
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RecomputeInterval time.Duration
	SustainedWindow   time.Duration
	LatencyBudgetMs   float64
	ErrorBudget       float64
	Rules             map[string]Rule
}

type Options struct {
	Store     CounterStore
	Sink      metrics.Sink
	Publisher *events.Publisher
	Clock     func() time.Time
}

// AdmitResult is the outcome of one admission check.
type AdmitResult struct {
	Allowed   bool      `json:"allowed"`
	DelayMs   int64     `json:"delay_ms,omitempty"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// KeyState is the current window of one key.
type KeyState struct {
	Key                  string    `json:"key"`
	Rule                 string    `json:"rule"`
	WindowStart          time.Time `json:"window_start"`
	RequestCountInWindow int64     `json:"request_count_in_window"`
	EffectiveMaxRequests int       `json:"effective_max_requests"`
}

// Status summarises the limits in force.
type Status struct {
	BaseLimit      int             `json:"base_limit"`
	EffectiveLimit int             `json:"effective_limit"`
	SustainedLimit int             `json:"sustained_limit"`
	CurrentLoad    float64         `json:"current_load"`
	SustainedLoad  float64         `json:"sustained_load"`
	WindowMs       int64           `json:"window_ms"`
	Rules          map[string]Rule `json:"rules,omitempty"`
	RuleLimits     map[string]int  `json:"rule_limits,omitempty"`
}

// Manager is the admission controller. Limits shrink when the latest sample
// shows load over LoadThreshold and when the recomputed sustained load does;
// the effective limit is the lower of the two.
type Manager struct {
	config    Config
	history   MetricsReader
	store     CounterStore
	sink      metrics.Sink
	publisher *events.Publisher
	now       func() time.Time

	mu              sync.RWMutex
	sustainedFactor float64
	sustainedLoad   float64
}

func New(cfg Config, reader MetricsReader, opts Options) *Manager {
	if cfg.Window == 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 100
	}
	if cfg.LoadThreshold == 0 {
		cfg.LoadThreshold = 0.75
	}
	if cfg.ScaleDownFactor == 0 {
		cfg.ScaleDownFactor = 0.5
	}
	if cfg.ScaleUpFactor == 0 {
		cfg.ScaleUpFactor = 1.5
	}
	if cfg.Ceiling == 0 {
		cfg.Ceiling = 200
	}
	if cfg.DelayAfterRatio == 0 {
		cfg.DelayAfterRatio = 0.75
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = 5000 * time.Millisecond
	}
	if cfg.RecomputeInterval == 0 {
		cfg.RecomputeInterval = 10 * time.Second
	}
	if cfg.SustainedWindow == 0 {
		cfg.SustainedWindow = time.Minute
	}
	if cfg.LatencyBudgetMs == 0 {
		cfg.LatencyBudgetMs = 1000
	}
	if cfg.ErrorBudget == 0 {
		cfg.ErrorBudget = 0.05
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Manager{
		config:          cfg,
		history:         reader,
		store:           opts.Store,
		sink:            opts.Sink,
		publisher:       opts.Publisher,
		now:             opts.Clock,
		sustainedFactor: 1.0,
	}
}

func (m *Manager) rule(name string) Rule {
	r, ok := m.config.Rules[name]
	if !ok {
		return Rule{MaxRequests: m.config.MaxRequests, Window: m.config.Window}
	}
	if r.MaxRequests <= 0 {
		r.MaxRequests = m.config.MaxRequests
	}
	if r.Window <= 0 {
		r.Window = m.config.Window
	}
	return r
}

// CurrentLoad is max(cpu, memory, queue)/100 of the latest sample, zero when
// there is no sample yet.
func (m *Manager) CurrentLoad() float64 {
	if m.history == nil {
		return 0
	}
	latest, ok := m.history.Latest()
	if !ok {
		return 0
	}
	return latest.Load()
}

func (m *Manager) factorFor(load float64) float64 {
	switch {
	case load > m.config.LoadThreshold:
		return m.config.ScaleDownFactor
	case load < m.config.LoadThreshold*0.5:
		return m.config.ScaleUpFactor
	default:
		return 1.0
	}
}

func (m *Manager) scale(base int, factor float64) int {
	switch {
	case factor < 1:
		return int(math.Max(1, math.Floor(float64(base)*factor)))
	case factor > 1:
		up := int(math.Ceil(float64(base) * factor))
		if up > m.config.Ceiling {
			up = m.config.Ceiling
		}
		if up < base {
			up = base
		}
		return up
	default:
		return base
	}
}

func (m *Manager) effectiveLimit(base int, load float64) int {
	m.mu.RLock()
	sustained := m.sustainedFactor
	m.mu.RUnlock()

	instant := m.scale(base, m.factorFor(load))
	return min(instant, m.scale(base, sustained))
}

// EffectiveLimit is the limit currently applied to the default rule.
func (m *Manager) EffectiveLimit() int {
	return m.effectiveLimit(m.config.MaxRequests, m.CurrentLoad())
}

// Delay is baseDelay·(load/threshold)² above the threshold, baseDelay
// otherwise, capped at MaxDelay.
func (m *Manager) Delay(load float64) time.Duration {
	delay := float64(m.config.BaseDelay)
	if load > m.config.LoadThreshold {
		factor := load / m.config.LoadThreshold
		delay *= factor * factor
	}
	return time.Duration(math.Min(delay, float64(m.config.MaxDelay)))
}

func (m *Manager) Admit(ctx context.Context, key string) AdmitResult {
	return m.AdmitRule(ctx, DefaultRule, key)
}

// AdmitRule counts one request for key under the named rule. Unknown rules
// use the default limit.
func (m *Manager) AdmitRule(ctx context.Context, ruleName, key string) AdmitResult {
	rule := m.rule(ruleName)
	load := m.CurrentLoad()
	limit := m.effectiveLimit(rule.MaxRequests, load)
	labels := map[string]string{"rule": ruleName}

	now := m.now()
	windowIdx := now.UnixMilli() / rule.Window.Milliseconds()
	resetAt := time.UnixMilli((windowIdx + 1) * rule.Window.Milliseconds()).UTC()

	m.sink.RecordGauge("throttle_effective_limit", float64(limit), labels)

	count, err := m.store.Incr(ctx, windowKey(ruleName, key, windowIdx), rule.Window)
	if err != nil {
		m.sink.RecordCounter("throttle_store_errors", nil)
		logger.WithComponentCtx(ctx, "throttle").WithError(err).Warn("Counter store unavailable, admitting request")
		m.sink.RecordCounter("throttle_admitted", labels)
		return AdmitResult{Allowed: true, Limit: limit, Remaining: limit, ResetAt: resetAt}
	}

	result := AdmitResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: max(0, limit-int(count)),
		ResetAt:   resetAt,
	}

	delayAfter := int64(math.Ceil(float64(limit) * m.config.DelayAfterRatio))
	switch {
	case count > int64(limit):
		result.Allowed = false
		result.DelayMs = m.Delay(load).Milliseconds()
		m.sink.RecordCounter("throttle_rejected", labels)
	case count > delayAfter:
		result.DelayMs = m.Delay(load).Milliseconds()
		m.sink.RecordCounter("throttle_delayed", labels)
		m.sink.RecordCounter("throttle_admitted", labels)
	default:
		m.sink.RecordCounter("throttle_admitted", labels)
	}

	if result.DelayMs > 0 {
		m.sink.RecordHistogram("throttle_delay_ms", float64(result.DelayMs), labels)
	}
	return result
}

// Check is Admit for callers that only care about denial.
func (m *Manager) Check(ctx context.Context, key string) error {
	res := m.Admit(ctx, key)
	if res.Allowed {
		return nil
	}
	return &ThrottledError{
		Key:        key,
		Limit:      res.Limit,
		RetryAfter: res.ResetAt.Sub(m.now()),
		DelayMs:    res.DelayMs,
	}
}

func windowKey(rule, key string, windowIdx int64) string {
	return fmt.Sprintf("throttle:%s:%s:%d", rule, key, windowIdx)
}

// KeyState reports the window counter of key under the named rule.
func (m *Manager) KeyState(ctx context.Context, ruleName, key string) (KeyState, error) {
	rule := m.rule(ruleName)
	now := m.now()
	windowIdx := now.UnixMilli() / rule.Window.Milliseconds()

	count, err := m.store.Get(ctx, windowKey(ruleName, key, windowIdx))
	if err != nil {
		return KeyState{}, err
	}

	return KeyState{
		Key:                  key,
		Rule:                 ruleName,
		WindowStart:          time.UnixMilli(windowIdx * rule.Window.Milliseconds()).UTC(),
		RequestCountInWindow: count,
		EffectiveMaxRequests: m.effectiveLimit(rule.MaxRequests, m.CurrentLoad()),
	}, nil
}

// SustainedLoad folds the averages of the sustained window into one load
// figure. Latency and error rate count as overload once they pass their
// budgets.
func (m *Manager) SustainedLoad(avg models.MetricAverages) float64 {
	load := avg.Load()
	if latency := avg.LatencyP95Ms / m.config.LatencyBudgetMs * m.config.LoadThreshold; latency > load {
		load = latency
	}
	if errLoad := avg.ErrorRate / m.config.ErrorBudget * m.config.LoadThreshold; errLoad > load {
		load = errLoad
	}
	return load
}

// Recompute refreshes the sustained limit from the averages of the last
// SustainedWindow. It keeps the previous limit when there are no samples.
func (m *Manager) Recompute() {
	if m.history == nil {
		return
	}
	samples := m.history.Since(m.now().Add(-m.config.SustainedWindow))
	if len(samples) == 0 {
		return
	}

	load := m.SustainedLoad(models.CalculateAverages(samples))
	factor := m.factorFor(load)

	m.mu.Lock()
	previous := m.sustainedFactor
	m.sustainedFactor = factor
	m.sustainedLoad = load
	m.mu.Unlock()

	base := m.config.MaxRequests
	sustainedLimit := m.scale(base, factor)
	m.sink.RecordGauge("throttle_sustained_limit", float64(sustainedLimit), nil)

	if factor != previous {
		prevLimit := m.scale(base, previous)
		m.publisher.ThrottleLimitChanged(prevLimit, sustainedLimit, load)
		logger.WithComponent("throttle").WithFields(map[string]interface{}{
			"sustained_load": load,
			"limit":          sustainedLimit,
		}).Info("Throttling rules updated")
	}
}

// Run recomputes the sustained limit every RecomputeInterval until ctx ends.
func (m *Manager) Run(ctx context.Context) {
	ticker := time.NewTicker(m.config.RecomputeInterval)
	defer ticker.Stop()

	m.Recompute()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Recompute()
		}
	}
}

func (m *Manager) Status() Status {
	m.mu.RLock()
	sustained, sustainedLoad := m.sustainedFactor, m.sustainedLoad
	m.mu.RUnlock()

	load := m.CurrentLoad()
	status := Status{
		BaseLimit:      m.config.MaxRequests,
		EffectiveLimit: m.effectiveLimit(m.config.MaxRequests, load),
		SustainedLimit: m.scale(m.config.MaxRequests, sustained),
		CurrentLoad:    load,
		SustainedLoad:  sustainedLoad,
		WindowMs:       m.config.Window.Milliseconds(),
	}
	if len(m.config.Rules) > 0 {
		status.Rules = m.config.Rules
		status.RuleLimits = make(map[string]int, len(m.config.Rules))
		for name := range m.config.Rules {
			status.RuleLimits[name] = m.effectiveLimit(m.rule(name).MaxRequests, load)
		}
	}
	return status
}
