package metrics

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OldStager01/resilience-plane/internal/logger"
)

// Sink is the observability export used by every control-plane component.
type Sink interface {
	RecordCounter(name string, labels map[string]string)
	RecordGauge(name string, value float64, labels map[string]string)
	RecordHistogram(name string, value float64, labels map[string]string)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) RecordCounter(string, map[string]string)            {}
func (NopSink) RecordGauge(string, float64, map[string]string)     {}
func (NopSink) RecordHistogram(string, float64, map[string]string) {}

// PrometheusSink lazily registers one vector per metric name. The label
// names of a metric are fixed by its first use; later calls fill missing
// labels with "" and ignore unknown ones.
type PrometheusSink struct {
	namespace  string
	registry   *prometheus.Registry
	buckets    []float64
	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
	labelKeys  map[string][]string
}

type PrometheusConfig struct {
	Namespace      string
	Buckets        []float64
	RuntimeMetrics bool
}

func NewPrometheusSink(cfg PrometheusConfig) *PrometheusSink {
	if cfg.Namespace == "" {
		cfg.Namespace = "resilience"
	}
	if len(cfg.Buckets) == 0 {
		// milliseconds, 1ms .. ~16s
		cfg.Buckets = prometheus.ExponentialBuckets(1, 2, 15)
	}

	registry := prometheus.NewRegistry()
	if cfg.RuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &PrometheusSink{
		namespace:  cfg.Namespace,
		registry:   registry,
		buckets:    cfg.Buckets,
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		labelKeys:  make(map[string][]string),
	}
}

func (s *PrometheusSink) RecordCounter(name string, labels map[string]string) {
	s.mu.Lock()
	vec, ok := s.counters[name]
	if !ok {
		keys := sortedKeys(labels)
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: s.namespace,
			Name:      counterName(name),
			Help:      helpText(name),
		}, keys)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.counters[name] = vec
		s.labelKeys[name] = keys
	}
	values := s.labelValues(name, labels)
	s.mu.Unlock()

	vec.WithLabelValues(values...).Inc()
}

func (s *PrometheusSink) RecordGauge(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	vec, ok := s.gauges[name]
	if !ok {
		keys := sortedKeys(labels)
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      helpText(name),
		}, keys)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.gauges[name] = vec
		s.labelKeys[name] = keys
	}
	values := s.labelValues(name, labels)
	s.mu.Unlock()

	vec.WithLabelValues(values...).Set(value)
}

func (s *PrometheusSink) RecordHistogram(name string, value float64, labels map[string]string) {
	s.mu.Lock()
	vec, ok := s.histograms[name]
	if !ok {
		keys := sortedKeys(labels)
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: s.namespace,
			Name:      name,
			Help:      helpText(name),
			Buckets:   s.buckets,
		}, keys)
		if !s.register(name, vec) {
			s.mu.Unlock()
			return
		}
		s.histograms[name] = vec
		s.labelKeys[name] = keys
	}
	values := s.labelValues(name, labels)
	s.mu.Unlock()

	vec.WithLabelValues(values...).Observe(value)
}

// register must be called with s.mu held.
func (s *PrometheusSink) register(name string, c prometheus.Collector) bool {
	if _, taken := s.labelKeys[name]; taken {
		logger.WithComponent("metrics").Warnf("Metric %s already registered with another type, dropping sample", name)
		return false
	}
	if err := s.registry.Register(c); err != nil {
		logger.WithComponent("metrics").Warnf("Failed to register metric %s: %v", name, err)
		return false
	}
	return true
}

func (s *PrometheusSink) labelValues(name string, labels map[string]string) []string {
	keys := s.labelKeys[name]
	values := make([]string, len(keys))
	for i, k := range keys {
		values[i] = labels[k]
	}
	return values
}

// Handler serves the registry in the Prometheus exposition format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

// StartServer exposes the registry on a dedicated port.
func (s *PrometheusSink) StartServer(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.Handler())

	addr := ":" + strconv.Itoa(port)
	server := &http.Server{Addr: addr, Handler: mux}
	logger.Infof("Prometheus metrics server listening on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Prometheus server error: %v", err)
		}
	}()
	return server
}

func sortedKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func counterName(name string) string {
	if strings.HasSuffix(name, "_total") {
		return name
	}
	return name + "_total"
}

func helpText(name string) string {
	return strings.ReplaceAll(name, "_", " ")
}
