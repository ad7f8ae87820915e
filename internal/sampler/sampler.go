package sampler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/analyzer"
	"github.com/OldStager01/resilience-plane/internal/collector"
	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// Archive receives the samples of each persist cycle;
// queries.MetricSampleRepository satisfies it.
type Archive interface {
	InsertBatch(ctx context.Context, samples []models.MetricSample) error
}

type BottleneckHandler func(models.Bottleneck)

type Config struct {
	Interval        time.Duration
	PersistInterval time.Duration
	CollectTimeout  time.Duration
	// SnapshotPath enables the JSON warm-start snapshot when set.
	SnapshotPath string
}

type Options struct {
	Sink      metrics.Sink
	Publisher *events.Publisher
	Archive   Archive
	Detector  *analyzer.Detector
}

// Sampler is the single writer of the metrics history.
type Sampler struct {
	config    Config
	source    collector.Source
	history   *History
	sink      metrics.Sink
	publisher *events.Publisher
	archive   Archive
	detector  *analyzer.Detector

	persistMu    sync.Mutex
	lastArchived time.Time

	handlersMu sync.RWMutex
	handlers   map[uint64]BottleneckHandler
	nextID     uint64
}

func New(cfg Config, source collector.Source, history *History, opts Options) *Sampler {
	if cfg.Interval == 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.PersistInterval == 0 {
		cfg.PersistInterval = 5 * time.Minute
	}
	if cfg.CollectTimeout == 0 || cfg.CollectTimeout >= cfg.Interval {
		cfg.CollectTimeout = cfg.Interval * 8 / 10
	}
	if history == nil {
		history = NewHistory(DefaultHistoryCapacity)
	}
	if opts.Sink == nil {
		opts.Sink = metrics.NopSink{}
	}

	return &Sampler{
		config:    cfg,
		source:    source,
		history:   history,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		archive:   opts.Archive,
		detector:  opts.Detector,
		handlers:  make(map[uint64]BottleneckHandler),
	}
}

func (s *Sampler) History() *History {
	return s.history
}

// WarmStart restores the history from the snapshot file. A missing or
// corrupt snapshot leaves the history empty.
func (s *Sampler) WarmStart() int {
	if s.config.SnapshotPath == "" {
		return 0
	}

	log := logger.WithComponent("sampler")
	samples, err := LoadSnapshot(s.config.SnapshotPath)
	if err != nil {
		log.WithError(err).Warn("Ignoring unreadable history snapshot")
		return 0
	}

	n := s.history.Restore(samples)
	if latest, ok := s.history.Latest(); ok {
		s.persistMu.Lock()
		s.lastArchived = latest.Timestamp
		s.persistMu.Unlock()
	}
	if n > 0 {
		log.Infof("Restored %d samples from %s", n, s.config.SnapshotPath)
	}
	return n
}

// SampleOnce runs a single collection cycle.
func (s *Sampler) SampleOnce(ctx context.Context) (models.MetricSample, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.CollectTimeout)
	defer cancel()

	log := logger.WithComponentCtx(ctx, "sampler")

	sample, err := s.source.Collect(ctx)
	if err != nil {
		collErr := &MetricsCollectionError{Source: s.source.Name(), Err: err}
		s.sink.RecordCounter("metrics_collection_errors", map[string]string{"source": s.source.Name()})
		log.WithError(err).Warn("Metrics collection failed, skipping cycle")
		return models.MetricSample{}, collErr
	}
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	if err := s.history.Add(sample); err != nil {
		if errors.Is(err, ErrOutOfOrder) {
			s.sink.RecordCounter("metrics_out_of_order", map[string]string{"source": s.source.Name()})
			log.Warnf("Dropping out-of-order sample at %s", sample.Timestamp.Format(time.RFC3339Nano))
		}
		return models.MetricSample{}, err
	}

	s.recordGauges(sample)
	s.publisher.SampleRecorded(sample)

	if s.detector != nil {
		for _, b := range s.detector.Detect(sample) {
			s.emitBottleneck(b)
		}
	}
	return sample, nil
}

func (s *Sampler) recordGauges(sample models.MetricSample) {
	s.sink.RecordGauge("system_cpu_percent", sample.CPUPercent, nil)
	s.sink.RecordGauge("system_memory_percent", sample.MemoryPercent, nil)
	s.sink.RecordGauge("system_error_rate", sample.ErrorRate, nil)
	s.sink.RecordGauge("system_latency_p95_ms", sample.LatencyP95Ms, nil)
	s.sink.RecordGauge("system_throughput_rps", sample.ThroughputRps, nil)
	s.sink.RecordGauge("system_queue_load_percent", sample.QueueLoadPercent, nil)
	s.sink.RecordGauge("metrics_history_size", float64(s.history.Len()), nil)
}

func (s *Sampler) emitBottleneck(b models.Bottleneck) {
	logger.WithComponent("sampler").WithFields(map[string]interface{}{
		"type":     b.Type,
		"severity": b.Severity,
		"value":    b.Value,
	}).Warn("Bottleneck detected")

	s.sink.RecordCounter("bottlenecks_detected", map[string]string{"type": string(b.Type), "severity": string(b.Severity)})
	s.publisher.Bottleneck(b)

	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	for _, h := range s.handlers {
		go h(b)
	}
}

// OnBottleneck registers handler for detected bottlenecks. Handlers run on
// their own goroutine. The returned func unregisters it.
func (s *Sampler) OnBottleneck(handler BottleneckHandler) func() {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	id := s.nextID
	s.nextID++
	s.handlers[id] = handler

	return func() {
		s.handlersMu.Lock()
		defer s.handlersMu.Unlock()
		delete(s.handlers, id)
	}
}

// Persist writes the snapshot and archives samples recorded since the
// previous archive run.
func (s *Sampler) Persist(ctx context.Context) error {
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	var errs []error
	if s.config.SnapshotPath != "" {
		if err := SaveSnapshot(s.config.SnapshotPath, s.history.Snapshot()); err != nil {
			errs = append(errs, err)
		}
	}

	if s.archive != nil {
		pending := dropNotAfter(s.history.Since(s.lastArchived), s.lastArchived)
		if len(pending) > 0 {
			if err := s.archive.InsertBatch(ctx, pending); err != nil {
				errs = append(errs, err)
			} else {
				s.lastArchived = pending[len(pending)-1].Timestamp
			}
		}
	}

	return errors.Join(errs...)
}

func dropNotAfter(samples []models.MetricSample, t time.Time) []models.MetricSample {
	i := 0
	for i < len(samples) && !samples[i].Timestamp.After(t) {
		i++
	}
	return samples[i:]
}

// Run samples on every interval and persists on every persist interval until
// ctx is cancelled, then flushes once more.
func (s *Sampler) Run(ctx context.Context) {
	log := logger.WithComponent("sampler")
	log.Infof("Sampler started (interval %s, source %s)", s.config.Interval, s.source.Name())

	sampleTicker := time.NewTicker(s.config.Interval)
	defer sampleTicker.Stop()
	persistTicker := time.NewTicker(s.config.PersistInterval)
	defer persistTicker.Stop()

	_, _ = s.SampleOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.flush()
			log.Info("Sampler stopped")
			return
		case <-sampleTicker.C:
			_, _ = s.SampleOnce(ctx)
		case <-persistTicker.C:
			if err := s.Persist(ctx); err != nil {
				log.WithError(err).Error("Failed to persist metrics history")
			}
		}
	}
}

func (s *Sampler) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Persist(ctx); err != nil {
		logger.WithComponent("sampler").WithError(err).Error("Final history flush failed")
	}
}
