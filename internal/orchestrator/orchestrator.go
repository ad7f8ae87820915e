package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/alert"
	"github.com/OldStager01/resilience-plane/internal/analyzer"
	"github.com/OldStager01/resilience-plane/internal/autoscaler"
	"github.com/OldStager01/resilience-plane/internal/cache"
	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/internal/sampler"
	"github.com/OldStager01/resilience-plane/internal/scaler"
	"github.com/OldStager01/resilience-plane/internal/throttle"
	"github.com/OldStager01/resilience-plane/pkg/config"
	"github.com/OldStager01/resilience-plane/pkg/database"
	"github.com/OldStager01/resilience-plane/pkg/database/queries"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Archives holds the SQL-backed read paths. All fields are nil when storage
// is disabled.
type Archives struct {
	Decisions *cachedDecisions
	Samples   *cachedSamples
	Events    *queries.EventRepository
}

// Options replaces parts of the default wiring, mainly for tests.
type Options struct {
	Source   collector.Source
	Executor scaler.ScalingExecutor
	Clock    func() time.Time
}

// Orchestrator builds every control-plane component from config and owns
// their background loops.
type Orchestrator struct {
	config *config.Config
	db     *database.DB

	bus         *events.EventBus
	publisher   *events.Publisher
	eventLogger *events.EventLogger
	sink        *metrics.PrometheusSink
	requests    *collector.RequestRecorder
	registry    *resilience.Registry
	history     *sampler.History
	sampler     *sampler.Sampler
	throttle    *throttle.Manager
	cache       *cache.Manager
	preloader   *cache.Preloader
	autoscaler  *autoscaler.Autoscaler
	executor    scaler.ScalingExecutor
	counters    *queries.ThrottleCounterRepository
	samples     *queries.MetricSampleRepository
	archives    Archives

	pipeline *Pipeline

	mu          sync.Mutex
	unsubscribe []func()
}

// New wires the components. db may be nil when storage is disabled.
func New(cfg *config.Config, db *database.DB, opts Options) (*Orchestrator, error) {
	o := &Orchestrator{config: cfg, db: db}

	bufferSize := cfg.Events.BufferSize
	if bufferSize <= 0 {
		bufferSize = 100
	}
	o.bus = events.NewEventBus(bufferSize)
	o.publisher = events.NewPublisher(o.bus)
	o.sink = metrics.NewPrometheusSink(metrics.PrometheusConfig{RuntimeMetrics: true})
	o.requests = collector.NewRequestRecorder(time.Minute)

	o.registry = resilience.NewRegistry(resilience.Config{
		FailureThreshold: cfg.Circuit.FailureThreshold,
		ResetTimeout:     cfg.Circuit.ResetTimeout(),
	}, resilience.Options{
		Sink:      o.sink,
		Publisher: o.publisher,
		Overrides: circuitOverrides(cfg.Circuit.Overrides),
		Clock:     opts.Clock,
	})

	var (
		decisionRepo *queries.ScalingDecisionRepository
		sampleRepo   *queries.MetricSampleRepository
		eventRepo    *queries.EventRepository
	)
	if db != nil {
		decisionRepo = queries.NewScalingDecisionRepository(db.DB)
		sampleRepo = queries.NewMetricSampleRepository(db.DB)
		o.samples = sampleRepo
		eventRepo = queries.NewEventRepository(db.DB)
		if cfg.Storage.SharedThrottle {
			o.counters = queries.NewThrottleCounterRepository(db.DB)
		}
	}

	// sampler
	source := opts.Source
	if source == nil {
		var err error
		if source, err = o.buildSource(); err != nil {
			return nil, err
		}
	}
	o.history = sampler.NewHistory(cfg.Sampler.HistoryCapacity)
	samplerOpts := sampler.Options{
		Sink:      o.sink,
		Publisher: o.publisher,
		Detector: analyzer.NewDetector(analyzer.DetectorConfig{
			CPUThreshold:            cfg.Analyzer.CPUHigh,
			CPUCriticalThreshold:    cfg.Analyzer.CPUCritical,
			MemoryThreshold:         cfg.Analyzer.MemoryHigh,
			MemoryCriticalThreshold: cfg.Analyzer.MemoryCritical,
			LatencyThresholdMs:      cfg.Analyzer.LatencyThresholdMs,
			LatencyCriticalMs:       cfg.Analyzer.LatencyCriticalMs,
			SustainedSamples:        cfg.Analyzer.SustainedSamples,
		}),
	}
	if sampleRepo != nil {
		samplerOpts.Archive = sampleRepo
	}
	o.sampler = sampler.New(sampler.Config{
		Interval:        cfg.Sampler.Interval,
		PersistInterval: cfg.Sampler.PersistInterval,
		CollectTimeout:  cfg.Collector.Timeout,
		SnapshotPath:    cfg.Sampler.SnapshotPath,
	}, source, o.history, samplerOpts)

	// throttle
	throttleOpts := throttle.Options{Sink: o.sink, Publisher: o.publisher, Clock: opts.Clock}
	if o.counters != nil {
		throttleOpts.Store = o.counters
	}
	o.throttle = throttle.New(throttle.Config{
		Window:            cfg.Throttle.Window(),
		MaxRequests:       cfg.Throttle.MaxRequests,
		LoadThreshold:     cfg.Throttle.LoadThreshold,
		RecomputeInterval: cfg.Throttle.RecomputeInterval,
		Rules:             throttleRules(cfg.Throttle.Rules),
	}, o.history, throttleOpts)

	// cache
	o.cache = cache.New(cache.Config{
		DefaultTTL:          time.Duration(cfg.Cache.TTLSeconds) * time.Second,
		MaxSizeBytes:        cfg.Cache.MaxSizeBytes,
		MaintenanceInterval: cfg.Cache.MaintenanceInterval,
		ReportInterval:      cfg.Cache.ReportInterval,
	}, cache.Options{Sink: o.sink, Publisher: o.publisher, Clock: opts.Clock})
	o.preloader = cache.NewPreloader(o.cache, cfg.Cache.PreloadInterval, o.sink)

	if db != nil {
		decisions := &cachedDecisions{repo: decisionRepo, cache: o.cache, ttl: cfg.Cache.TTLSeconds}
		o.archives = Archives{
			Decisions: decisions,
			Samples:   &cachedSamples{repo: sampleRepo, cache: o.cache, ttl: cfg.Cache.TTLSeconds},
			Events:    eventRepo,
		}
		o.preloader.Register(decisions.preloadTask(defaultLimit(cfg.API.DefaultLimit)))
	}

	// autoscaler
	executor := opts.Executor
	if executor == nil {
		var err error
		if executor, err = buildExecutor(cfg.Scaler); err != nil {
			return nil, err
		}
	}
	o.executor = guardedExecutor{next: executor, registry: o.registry}

	scalerOpts := autoscaler.Options{
		Sink:      o.sink,
		Publisher: o.publisher,
		Alert:     o.buildAlert(),
		Analyzer: analyzer.New(analyzer.Config{
			CPUHighThreshold:        cfg.Analyzer.CPUHigh,
			CPUCriticalThreshold:    cfg.Analyzer.CPUCritical,
			MemoryHighThreshold:     cfg.Analyzer.MemoryHigh,
			MemoryCriticalThreshold: cfg.Analyzer.MemoryCritical,
			TrendWindow:             cfg.Analyzer.TrendWindow,
			SpikeThreshold:          cfg.Analyzer.SpikeThreshold,
		}),
		Clock: opts.Clock,
	}
	if decisionRepo != nil {
		scalerOpts.Store = decisionRepo
	}
	o.autoscaler = autoscaler.New(autoscaler.Config{
		MinInstances:          cfg.Scaler.MinInstances,
		MaxInstances:          cfg.Scaler.MaxInstances,
		Cooldown:              cfg.Scaler.Cooldown(),
		CPUThreshold:          cfg.Scaler.CPUThreshold,
		MemoryThreshold:       cfg.Scaler.MemoryThreshold,
		EvaluateInterval:      cfg.Scaler.EvaluateInterval,
		ExecutionTimeout:      cfg.Scaler.ExecutionTimeout,
		ForecastHorizon:       cfg.Scaler.ForecastHorizon,
		MinForecastConfidence: cfg.Scaler.MinConfidence,
		ThroughputPerReplica:  cfg.Scaler.ThroughputPerReplica,
	}, o.executor, o.history, scalerOpts)

	var eventStore events.Store
	if eventRepo != nil {
		eventStore = eventRepo
	}
	o.eventLogger = events.NewEventLogger(eventStore, o.bus.SubscribeAll(), models.Severity(cfg.Events.PersistSeverity))

	o.pipeline = NewPipeline(o.loops()...)
	return o, nil
}

func (o *Orchestrator) buildSource() (collector.Source, error) {
	cfg := o.config.Collector

	var source collector.Source
	switch cfg.Type {
	case "", "host":
		source = collector.NewHostSource(collector.HostSourceConfig{Requests: o.requests})
	case "http":
		source = collector.NewHTTPSource(collector.HTTPSourceConfig{Endpoint: cfg.Endpoint, Timeout: cfg.Timeout})
	case "prometheus":
		prom, err := collector.NewPrometheusSource(collector.PrometheusSourceConfig{
			Address: cfg.Endpoint,
			Timeout: cfg.Timeout,
			Queries: promQueries(cfg.Queries),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create prometheus source: %w", err)
		}
		source = prom
	case "synthetic":
		source = collector.NewSyntheticSource(collector.SyntheticSourceConfig{Pattern: cfg.Pattern})
	default:
		return nil, fmt.Errorf("unknown collector type %q", cfg.Type)
	}

	return collector.NewResilientSource(source, o.registry, collector.ResilientSourceConfig{
		RetryAttempts: cfg.RetryAttempts,
		RetryDelay:    cfg.RetryDelay,
	}), nil
}

func buildExecutor(cfg config.ScalerConfig) (scaler.ScalingExecutor, error) {
	switch cfg.Type {
	case "", "simulator":
		return scaler.NewSimulatorScaler(scaler.SimulatorConfig{
			InitialReplicas: cfg.InitialReplicas,
			ProvisionTime:   cfg.ProvisionTime,
		}), nil
	case "kubernetes":
		clientset, err := scaler.NewClientset(cfg.Kubeconfig)
		if err != nil {
			return nil, err
		}
		return scaler.NewKubernetesScaler(clientset, scaler.KubernetesConfig{
			Namespace:  cfg.Namespace,
			Deployment: cfg.Deployment,
		}), nil
	default:
		return nil, fmt.Errorf("unknown scaler type %q", cfg.Type)
	}
}

func (o *Orchestrator) buildAlert() alert.Channel {
	channels := alert.Multi{alert.LogChannel{}, alert.EventChannel{Publisher: o.publisher}}
	if url := o.config.Alert.WebhookURL; url != "" {
		channels = append(channels, alert.NewWebhookChannel(alert.WebhookConfig{
			URL:     url,
			Timeout: o.config.Alert.WebhookTimeout,
			Headers: o.config.Alert.WebhookHeaders,
		}))
	}
	return channels
}

func (o *Orchestrator) loops() []Loop {
	loops := []Loop{
		{Name: "sampler", Run: o.sampler.Run},
		{Name: "throttle", Run: o.throttle.Run},
		{Name: "cache", Run: o.cache.Run},
		{Name: "autoscaler", Run: o.autoscaler.Run},
	}
	if o.db != nil {
		loops = append(loops, Loop{Name: "cache-preloader", Run: o.preloader.Run})
	}
	if o.counters != nil {
		loops = append(loops, Loop{Name: "throttle-purge", Run: o.purgeCounters})
	}
	if o.samples != nil && o.config.Storage.SampleRetention > 0 {
		loops = append(loops, Loop{Name: "sample-retention", Run: o.pruneSamples})
	}
	return loops
}

func (o *Orchestrator) purgeCounters(ctx context.Context) {
	interval := o.config.Throttle.Window()
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := logger.WithComponent("throttle")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := o.counters.Purge(ctx)
			if err != nil {
				log.WithError(err).Warn("Failed to purge expired throttle counters")
				continue
			}
			if n > 0 {
				log.Debugf("Purged %d expired throttle counters", n)
			}
		}
	}
}

// pruneSamples drops archived samples past the retention window, once at
// startup and then hourly.
func (o *Orchestrator) pruneSamples(ctx context.Context) {
	retention := o.config.Storage.SampleRetention
	log := logger.WithComponent("sampler")

	prune := func() {
		n, err := o.samples.DeleteBefore(ctx, time.Now().Add(-retention))
		if err != nil {
			log.WithError(err).Warn("Failed to prune archived samples")
			return
		}
		if n > 0 {
			log.Infof("Pruned %d archived samples older than %s", n, retention)
		}
	}

	prune()
	ticker := time.NewTicker(min(retention, time.Hour))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prune()
		}
	}
}

// Start restores the history, connects the bottleneck paths and launches
// every loop.
func (o *Orchestrator) Start(ctx context.Context) error {
	log := logger.WithComponent("orchestrator")
	log.Info("Orchestrator starting")

	o.sampler.WarmStart()
	o.eventLogger.Start()

	o.mu.Lock()
	o.unsubscribe = append(o.unsubscribe,
		o.sampler.OnBottleneck(func(b models.Bottleneck) { o.handleBottleneck(ctx, b) }),
		o.registry.OnStateChange(func(sc resilience.StateChange) { o.handleStateChange(ctx, sc) }),
	)
	if o.archives.Decisions != nil {
		decisions := o.archives.Decisions
		o.unsubscribe = append(o.unsubscribe, o.autoscaler.OnDecision(func(models.ScalingDecision) {
			decisions.invalidate(context.Background())
		}))
	}
	o.mu.Unlock()

	o.pipeline.Start(ctx)
	log.WithField("loops", o.pipeline.Names()).Info("Orchestrator started")
	return nil
}

func (o *Orchestrator) handleBottleneck(ctx context.Context, b models.Bottleneck) {
	if ctx.Err() != nil {
		return
	}
	_, err := o.autoscaler.HandleBottleneck(ctx, b)
	if err != nil && !errors.Is(err, autoscaler.ErrCooldownActive) {
		logger.WithComponentCtx(ctx, "orchestrator").WithError(err).
			WithField("bottleneck", b.Type).Error("Bottleneck scale-up failed")
	}
}

// handleStateChange turns a tripped dependency circuit into a high-severity
// bottleneck. High severity still honours the cooldown. The scaler and
// metrics-source circuits are the control plane's own plumbing; adding
// replicas cannot repair them.
func (o *Orchestrator) handleStateChange(ctx context.Context, sc resilience.StateChange) {
	if sc.To != resilience.StateOpen || !scalesOnTrip(sc.Name) {
		return
	}
	o.handleBottleneck(ctx, models.Bottleneck{
		Type:           models.BottleneckCircuitOpen,
		Severity:       models.SeverityHigh,
		Value:          float64(sc.Failures),
		Threshold:      float64(o.config.Circuit.FailureThreshold),
		Source:         sc.Name,
		Recommendation: "add capacity while the dependency recovers",
		DetectedAt:     sc.At,
	})
}

func scalesOnTrip(circuit string) bool {
	return circuit != ScalerCircuit && !strings.HasPrefix(circuit, collector.CircuitPrefix)
}

// Stop cancels the loops, which flush their own state, then drains the
// event logger and closes the bus.
func (o *Orchestrator) Stop() {
	log := logger.WithComponent("orchestrator")
	log.Info("Orchestrator stopping")

	o.pipeline.Stop()

	o.mu.Lock()
	for _, unsubscribe := range o.unsubscribe {
		unsubscribe()
	}
	o.unsubscribe = nil
	o.mu.Unlock()

	o.eventLogger.Stop()
	o.bus.Close()

	log.Info("Orchestrator stopped")
}

func (o *Orchestrator) IsRunning() bool {
	return o.pipeline.IsRunning()
}

func (o *Orchestrator) Bus() *events.EventBus { return o.bus }
func (o *Orchestrator) Sink() *metrics.PrometheusSink { return o.sink }
func (o *Orchestrator) Requests() *collector.RequestRecorder { return o.requests }
func (o *Orchestrator) Registry() *resilience.Registry { return o.registry }
func (o *Orchestrator) History() *sampler.History { return o.history }
func (o *Orchestrator) Sampler() *sampler.Sampler { return o.sampler }
func (o *Orchestrator) Throttle() *throttle.Manager { return o.throttle }
func (o *Orchestrator) Cache() *cache.Manager { return o.cache }
func (o *Orchestrator) Autoscaler() *autoscaler.Autoscaler { return o.autoscaler }
func (o *Orchestrator) Archives() Archives { return o.archives }
func (o *Orchestrator) SampleInterval() time.Duration { return o.config.Sampler.Interval }

func circuitOverrides(in map[string]config.CircuitOverride) map[string]resilience.Config {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]resilience.Config, len(in))
	for name, o := range in {
		out[name] = resilience.Config{
			FailureThreshold: o.FailureThreshold,
			ResetTimeout:     time.Duration(o.ResetTimeoutMs) * time.Millisecond,
		}
	}
	return out
}

func throttleRules(in map[string]config.ThrottleRule) map[string]throttle.Rule {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]throttle.Rule, len(in))
	for name, r := range in {
		out[name] = throttle.Rule{
			MaxRequests: r.MaxRequests,
			Window:      time.Duration(r.WindowMs) * time.Millisecond,
		}
	}
	return out
}

// promQueries overlays configured PromQL on the defaults.
func promQueries(in map[string]string) collector.PromQueries {
	q := collector.DefaultPromQueries()
	for name, query := range in {
		switch name {
		case "cpu":
			q.CPU = query
		case "memory":
			q.Memory = query
		case "error_rate":
			q.ErrorRate = query
		case "latency_p95_ms":
			q.LatencyP95Ms = query
		case "throughput_rps":
			q.ThroughputRps = query
		case "queue_load":
			q.QueueLoad = query
		}
	}
	return q
}

func defaultLimit(n int) int {
	if n <= 0 {
		return 20
	}
	return n
}
