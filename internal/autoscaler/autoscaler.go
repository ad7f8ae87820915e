package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/alert"
	"github.com/OldStager01/resilience-plane/internal/analyzer"
	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/internal/scaler"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// HistoryReader is the read side of the metrics history.
type HistoryReader interface {
	Latest() (models.MetricSample, bool)
	Recent(n int) []models.MetricSample
	Len() int
}

// DecisionStore journals decisions; queries.ScalingDecisionRepository
// satisfies it. Save is called once when a decision starts and once when it
// completes.
type DecisionStore interface {
	Save(ctx context.Context, decision *models.ScalingDecision) error
}

type DecisionHandler func(models.ScalingDecision)

type Config struct {
	MinInstances    int
	MaxInstances    int
	Cooldown        time.Duration
	CPUThreshold    float64
	MemoryThreshold float64
	// ScaleUpRatio sizes an upward step as a fraction of the current count.
	ScaleUpRatio     float64
	EvaluateInterval time.Duration
	ExecutionTimeout time.Duration

	PredictiveMinSamples  int
	ForecastSamples       int
	ForecastHorizon       time.Duration
	MinForecastConfidence float64
	// ThroughputPerReplica enables capacity planning from the forecast rps
	// when set.
	ThroughputPerReplica float64

	ScaleDownSamples int
	ScaleDownRatio   float64

	DecisionHistory int
}

type Options struct {
	Sink       metrics.Sink
	Publisher  *events.Publisher
	Alert      alert.Channel
	Store      DecisionStore
	Analyzer   *analyzer.Analyzer
	Forecaster Forecaster
	Clock      func() time.Time
}

type proposal struct {
	reason   models.ScalingReason
	target   int
	severity models.Severity
	bypass   bool
}

// Autoscaler decides the replica count from thresholds and a forecast and
// applies it through a ScalingExecutor. It assumes it is the only instance
// acting on the workload.
type Autoscaler struct {
	config     Config
	executor   scaler.ScalingExecutor
	history    HistoryReader
	analyzer   *analyzer.Analyzer
	forecaster Forecaster
	alert      alert.Channel
	store      DecisionStore
	sink       metrics.Sink
	publisher  *events.Publisher
	now        func() time.Time
	cooldown   *Cooldown

	// held for the whole plan/execute/rollback sequence
	scaleMu sync.Mutex

	mu            sync.RWMutex
	replicas      int
	scaling       bool
	degraded      bool
	readoutFailed bool
	decisions     []*models.ScalingDecision
	lastForecast  *models.Forecast

	handlersMu sync.RWMutex
	handlers   map[uint64]DecisionHandler
	nextID     uint64
}

func New(cfg Config, executor scaler.ScalingExecutor, history HistoryReader, opts Options) *Autoscaler {
	if cfg.MinInstances == 0 {
		cfg.MinInstances = 2
	}
	if cfg.MaxInstances == 0 {
		cfg.MaxInstances = 10
	}
	if cfg.MaxInstances < cfg.MinInstances {
		cfg.MaxInstances = cfg.MinInstances
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 300000 * time.Millisecond
	}
	if cfg.CPUThreshold == 0 {
		cfg.CPUThreshold = 75
	}
	if cfg.MemoryThreshold == 0 {
		cfg.MemoryThreshold = 80
	}
	if cfg.ScaleUpRatio == 0 {
		cfg.ScaleUpRatio = 0.5
	}
	if cfg.EvaluateInterval == 0 {
		cfg.EvaluateInterval = 60 * time.Second
	}
	if cfg.ExecutionTimeout == 0 {
		cfg.ExecutionTimeout = 30 * time.Second
	}
	if cfg.PredictiveMinSamples == 0 {
		cfg.PredictiveMinSamples = 60
	}
	if cfg.ForecastSamples < cfg.PredictiveMinSamples {
		cfg.ForecastSamples = max(360, cfg.PredictiveMinSamples)
	}
	if cfg.ForecastHorizon == 0 {
		cfg.ForecastHorizon = 60 * time.Minute
	}
	if cfg.MinForecastConfidence == 0 {
		cfg.MinForecastConfidence = 0.5
	}
	if cfg.ScaleDownSamples == 0 {
		cfg.ScaleDownSamples = 30
	}
	if cfg.ScaleDownRatio == 0 {
		cfg.ScaleDownRatio = 0.5
	}
	if cfg.DecisionHistory == 0 {
		cfg.DecisionHistory = 100
	}
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}
	if opts.Alert == nil {
		opts.Alert = alert.LogChannel{}
	}
	if opts.Analyzer == nil {
		opts.Analyzer = analyzer.New(analyzer.Config{})
	}
	if opts.Forecaster == nil {
		opts.Forecaster = LinearForecaster{MinSamples: cfg.PredictiveMinSamples}
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Autoscaler{
		config:     cfg,
		executor:   executor,
		history:    history,
		analyzer:   opts.Analyzer,
		forecaster: opts.Forecaster,
		alert:      opts.Alert,
		store:      opts.Store,
		sink:       opts.Sink,
		publisher:  opts.Publisher,
		now:        opts.Clock,
		cooldown:   NewCooldown(cfg.Cooldown, opts.Clock),
		handlers:   make(map[uint64]DecisionHandler),
	}
}

// Evaluate runs one decision cycle. It returns nil when nothing needs to
// change or the change is held back by the cooldown.
func (a *Autoscaler) Evaluate(ctx context.Context) (*models.ScalingDecision, error) {
	a.scaleMu.Lock()
	defer a.scaleMu.Unlock()

	current, err := a.readReplicas(ctx)
	if err != nil {
		return nil, err
	}

	p, ok := a.plan(current)
	if !ok {
		return nil, nil
	}

	decision, err := a.execute(ctx, current, p)
	if errors.Is(err, ErrCooldownActive) {
		return nil, nil
	}
	return decision, err
}

// HandleBottleneck scales up in response to an urgent signal. Only critical
// bottlenecks skip the cooldown.
func (a *Autoscaler) HandleBottleneck(ctx context.Context, b models.Bottleneck) (*models.ScalingDecision, error) {
	a.scaleMu.Lock()
	defer a.scaleMu.Unlock()

	log := logger.WithComponentCtx(ctx, "autoscaler").WithFields(map[string]interface{}{
		"bottleneck": b.Type,
		"severity":   b.Severity,
		"source":     b.Source,
	})

	current, err := a.readReplicas(ctx)
	if err != nil {
		return nil, err
	}

	target := a.clamp(a.stepUp(current))
	if target <= current {
		log.Warnf("Bottleneck received but already at %d replicas (max %d)", current, a.config.MaxInstances)
		return nil, nil
	}

	decision, err := a.execute(ctx, current, proposal{
		reason:   models.ReasonBottleneck,
		target:   target,
		severity: b.Severity,
		bypass:   b.IsCritical(),
	})
	if errors.Is(err, ErrCooldownActive) {
		return nil, nil
	}
	return decision, err
}

// ScaleTo applies an operator-requested replica count. It obeys the
// cooldown and reports ErrCooldownActive when suppressed.
func (a *Autoscaler) ScaleTo(ctx context.Context, replicas int) (*models.ScalingDecision, error) {
	if replicas < a.config.MinInstances || replicas > a.config.MaxInstances {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]",
			ErrTargetOutOfRange, replicas, a.config.MinInstances, a.config.MaxInstances)
	}

	a.scaleMu.Lock()
	defer a.scaleMu.Unlock()

	current, err := a.readReplicas(ctx)
	if err != nil {
		return nil, err
	}
	if replicas == current {
		return nil, nil
	}

	return a.execute(ctx, current, proposal{reason: models.ReasonManual, target: replicas})
}

func (a *Autoscaler) plan(current int) (proposal, bool) {
	latest, ok := a.history.Latest()
	if !ok {
		return proposal{}, false
	}

	forecast, hasForecast := a.forecast()

	var p proposal
	switch {
	case latest.CPUPercent > a.config.CPUThreshold || latest.MemoryPercent > a.config.MemoryThreshold:
		p = proposal{reason: models.ReasonThreshold, target: a.stepUp(current)}
	case hasForecast && forecast.PredictedCPU > a.config.CPUThreshold:
		p = proposal{reason: models.ReasonPredictive, target: a.stepUp(current)}
	}

	required := 0
	if hasForecast && a.config.ThroughputPerReplica > 0 {
		required = int(math.Ceil(forecast.PredictedRps / a.config.ThroughputPerReplica))
		if required > current && required > p.target {
			if p.reason == "" {
				p.reason = models.ReasonPredictive
			}
			p.target = required
		}
	}

	if p.reason != "" {
		p.target = a.clamp(p.target)
		if p.target > current {
			return p, true
		}
		logger.WithComponent("autoscaler").Debugf("Scale-up wanted (%s) but already at max %d", p.reason, a.config.MaxInstances)
		return proposal{}, false
	}

	// a readout above max drops straight into bounds
	if a.shouldScaleDown(current, required, forecast, hasForecast) {
		return proposal{reason: models.ReasonThreshold, target: a.clamp(current - 1)}, true
	}
	return proposal{}, false
}

// stepUp grows by half the current count, at least one replica.
func (a *Autoscaler) stepUp(current int) int {
	step := int(math.Ceil(float64(current) * a.config.ScaleUpRatio))
	return current + max(1, step)
}

func (a *Autoscaler) clamp(target int) int {
	return min(a.config.MaxInstances, max(a.config.MinInstances, target))
}

func (a *Autoscaler) forecast() (models.Forecast, bool) {
	if a.history.Len() < a.config.PredictiveMinSamples {
		return models.Forecast{}, false
	}

	f, err := a.forecaster.Forecast(a.history.Recent(a.config.ForecastSamples), a.config.ForecastHorizon)
	if err != nil {
		return models.Forecast{}, false
	}

	a.mu.Lock()
	a.lastForecast = &f
	a.mu.Unlock()

	a.sink.RecordGauge("forecast_cpu_percent", f.PredictedCPU, nil)
	a.sink.RecordGauge("forecast_confidence", f.Confidence, nil)

	return f, f.IsHighConfidence(a.config.MinForecastConfidence)
}

func (a *Autoscaler) shouldScaleDown(current, required int, forecast models.Forecast, hasForecast bool) bool {
	if current <= a.config.MinInstances || current-1 < required {
		return false
	}

	recent := a.history.Recent(a.config.ScaleDownSamples)
	if len(recent) < a.config.ScaleDownSamples {
		return false
	}

	avg := models.CalculateAverages(recent)
	if avg.CPU >= a.config.CPUThreshold*a.config.ScaleDownRatio ||
		avg.Memory >= a.config.MemoryThreshold*a.config.ScaleDownRatio {
		return false
	}

	// do not shrink into a predicted or ongoing rise
	if a.analyzer.Trend(recent) == models.TrendRising {
		return false
	}
	if hasForecast && forecast.PredictedCPU >= a.config.CPUThreshold {
		return false
	}
	return true
}

func (a *Autoscaler) execute(ctx context.Context, current int, p proposal) (*models.ScalingDecision, error) {
	log := logger.WithComponentCtx(ctx, "autoscaler")

	if !p.bypass {
		if remaining := a.cooldown.Remaining(); remaining > 0 {
			a.sink.RecordCounter("scaling_suppressed", map[string]string{"reason": string(p.reason)})
			a.publisher.ScalingSuppressed(p.reason, remaining.Milliseconds())
			log.Infof("Scaling %d -> %d (%s) suppressed, cooldown %s remaining", current, p.target, p.reason, remaining)
			return nil, ErrCooldownActive
		}
	}

	direction := models.DirectionUp
	if p.target < current {
		direction = models.DirectionDown
	}

	decision := models.NewScalingDecision(direction, p.reason, current, p.target)
	decision.StartedAt = a.now()
	decision.Severity = p.severity

	// every attempt restarts the cooldown, successful or not
	a.cooldown.Record()
	a.begin(ctx, decision)
	defer a.setScaling(false)

	log = log.WithField("decision_id", decision.ID)
	log.Infof("Scaling %s %d -> %d (reason: %s)", direction, current, p.target, p.reason)

	err := a.setReplicas(ctx, p.target)
	if err == nil {
		a.finish(ctx, decision, models.OutcomeSuccess, nil)
		a.setReplicaState(p.target, false)
		a.publisher.ScalingComplete(decision)
		log.Infof("Scaling complete: %d replicas", p.target)
		return decision, nil
	}

	execErr := &ScalingExecutionError{Target: p.target, Err: err}
	log.WithError(execErr).Warnf("Scaling failed, rolling back to %d replicas", current)

	rollbackCtx := context.WithoutCancel(ctx)
	if rbErr := a.setReplicas(rollbackCtx, current); rbErr != nil {
		fatal := &RollbackFailedError{Previous: current, Target: p.target, Cause: execErr, Err: rbErr}
		a.finish(ctx, decision, models.OutcomeFailed, fatal)
		a.setReplicaState(current, true)
		a.publisher.ScalingFailed(decision, fatal)
		log.WithError(fatal).Error("Rollback failed, manual intervention required")
		a.raiseAlert(rollbackCtx, decision, fatal)
		return decision, fatal
	}

	a.finish(ctx, decision, models.OutcomeRolledBack, execErr)
	a.setReplicaState(current, false)
	a.publisher.ScalingRolledBack(decision)
	log.Infof("Rolled back to %d replicas", current)
	return decision, execErr
}

func (a *Autoscaler) setReplicas(ctx context.Context, replicas int) error {
	ctx, cancel := context.WithTimeout(ctx, a.config.ExecutionTimeout)
	defer cancel()
	return a.executor.SetReplicas(ctx, replicas)
}

func (a *Autoscaler) readReplicas(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.config.ExecutionTimeout)
	defer cancel()

	current, err := a.executor.GetCurrentReplicas(ctx)

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.readoutFailed = true
		logger.WithComponentCtx(ctx, "autoscaler").WithError(err).Warn("Failed to read current replicas")
		return 0, fmt.Errorf("%w: %v", ErrNoReplicaReadout, err)
	}
	a.readoutFailed = false
	a.replicas = current
	a.sink.RecordGauge("scaler_replicas", float64(current), nil)
	return current, nil
}

func (a *Autoscaler) raiseAlert(ctx context.Context, decision *models.ScalingDecision, cause error) {
	msg := fmt.Sprintf("Autoscaler rollback failed for decision %s (%d -> %d): %v",
		decision.ID, decision.PreviousReplicas, decision.TargetReplicas, cause)

	a.sink.RecordCounter("scaling_alerts", nil)
	if err := a.alert.SendAlert(ctx, msg); err != nil {
		logger.WithComponent("autoscaler").WithError(err).Error("Failed to deliver alert")
	}
}

func (a *Autoscaler) begin(ctx context.Context, decision *models.ScalingDecision) {
	a.mu.Lock()
	a.scaling = true
	a.decisions = append(a.decisions, decision)
	if len(a.decisions) > a.config.DecisionHistory {
		a.decisions = a.decisions[len(a.decisions)-a.config.DecisionHistory:]
	}
	snapshot := *decision
	a.mu.Unlock()

	a.save(ctx, &snapshot)
	a.publisher.ScalingStarted(&snapshot)
}

func (a *Autoscaler) finish(ctx context.Context, decision *models.ScalingDecision, outcome models.ScalingOutcome, err error) {
	a.mu.Lock()
	decision.Complete(outcome, err, a.now())
	snapshot := *decision
	a.mu.Unlock()

	a.save(ctx, &snapshot)
	a.sink.RecordCounter("scaling_decisions", map[string]string{
		"direction": string(snapshot.Direction),
		"reason":    string(snapshot.Reason),
		"outcome":   string(snapshot.Outcome),
	})
	a.sink.RecordHistogram("scaling_duration_ms", float64(snapshot.Duration().Milliseconds()), nil)

	a.handlersMu.RLock()
	defer a.handlersMu.RUnlock()
	for _, h := range a.handlers {
		go h(snapshot)
	}
}

func (a *Autoscaler) save(ctx context.Context, decision *models.ScalingDecision) {
	if a.store == nil {
		return
	}
	if err := a.store.Save(context.WithoutCancel(ctx), decision); err != nil {
		logger.WithComponent("autoscaler").WithError(err).Warn("Failed to persist scaling decision")
	}
}

func (a *Autoscaler) setScaling(scaling bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scaling = scaling
}

func (a *Autoscaler) setReplicaState(replicas int, degraded bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.replicas = replicas
	a.degraded = degraded
	a.sink.RecordGauge("scaler_replicas", float64(replicas), nil)
}

// OnDecision registers handler for completed decisions. Handlers run on their
// own goroutine. The returned func unregisters it.
func (a *Autoscaler) OnDecision(handler DecisionHandler) func() {
	a.handlersMu.Lock()
	defer a.handlersMu.Unlock()

	id := a.nextID
	a.nextID++
	a.handlers[id] = handler

	return func() {
		a.handlersMu.Lock()
		defer a.handlersMu.Unlock()
		delete(a.handlers, id)
	}
}

func (a *Autoscaler) Status() models.AutoscalerStatus {
	remaining := a.cooldown.Remaining()

	a.mu.RLock()
	defer a.mu.RUnlock()

	status := models.AutoscalerStatus{
		CurrentReplicas:     a.replicas,
		ScalingStatus:       models.ScalingStatusStable,
		CooldownRemainingMs: remaining.Milliseconds(),
		MinInstances:        a.config.MinInstances,
		MaxInstances:        a.config.MaxInstances,
	}
	switch {
	case a.scaling:
		status.ScalingStatus = models.ScalingStatusScaling
	case a.degraded || a.readoutFailed:
		status.ScalingStatus = models.ScalingStatusDegraded
	case remaining > 0:
		status.ScalingStatus = models.ScalingStatusCooldown
	}
	if n := len(a.decisions); n > 0 {
		last := *a.decisions[n-1]
		status.LastDecision = &last
	}
	return status
}

// Decisions returns up to limit recent decisions, newest first. A limit <= 0
// returns all retained decisions.
func (a *Autoscaler) Decisions(limit int) []models.ScalingDecision {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := len(a.decisions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.ScalingDecision, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, *a.decisions[i])
	}
	return out
}

func (a *Autoscaler) LastForecast() (models.Forecast, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.lastForecast == nil {
		return models.Forecast{}, false
	}
	return *a.lastForecast, true
}

// Run evaluates on every interval until ctx is cancelled.
func (a *Autoscaler) Run(ctx context.Context) {
	log := logger.WithComponent("autoscaler")
	log.Infof("Autoscaler started (interval %s, replicas %d-%d, cooldown %s)",
		a.config.EvaluateInterval, a.config.MinInstances, a.config.MaxInstances, a.config.Cooldown)

	if _, err := a.readReplicas(ctx); err != nil {
		log.WithError(err).Warn("Initial replica readout failed")
	}

	ticker := time.NewTicker(a.config.EvaluateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Autoscaler stopped")
			return
		case <-ticker.C:
			if _, err := a.Evaluate(ctx); err != nil {
				log.WithError(err).Error("Evaluation failed")
			}
		}
	}
}
