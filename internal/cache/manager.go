package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/OldStager01/resilience-plane/internal/events"
	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
)

const (
	invalidateBatchSize = 100
	// unencodable values are charged this many bytes
	defaultEntrySize = 1024
)

type Config struct {
	DefaultTTL          time.Duration
	MaxSizeBytes        int64
	MaintenanceInterval time.Duration
	ReportInterval      time.Duration
	// ComputeTimeout bounds a shared computation once its callers are gone.
	ComputeTimeout      time.Duration
}

type Options struct {
	Store     Store
	Sink      metrics.Sink
	Publisher *events.Publisher
	Clock     func() time.Time
}

// ComputeFunc produces the value for a missing key.
type ComputeFunc func(ctx context.Context) (interface{}, error)

// Sizer lets a value report its own footprint instead of being JSON-encoded.
type Sizer interface {
	SizeBytes() int64
}

type Stats struct {
	Hits             uint64  `json:"hits"`
	Misses           uint64  `json:"misses"`
	Evictions        uint64  `json:"evictions"`
	Errors           uint64  `json:"errors"`
	CurrentSizeBytes int64   `json:"current_size_bytes"`
	KeyCount         int     `json:"key_count"`
	HitRate          float64 `json:"hit_rate"`
	AvgHitTimeMs     float64 `json:"avg_hit_time_ms"`
	AvgMissTimeMs    float64 `json:"avg_miss_time_ms"`
}

// MaintenanceResult reports one maintenance pass.
type MaintenanceResult struct {
	Expired    int   `json:"expired"`
	Evicted    int   `json:"evicted"`
	FreedBytes int64 `json:"freed_bytes"`
}

type flight struct {
	done  chan struct{}
	value interface{}
	err   error
}

// Manager is a size-bounded TTL cache. Concurrent misses for one key share a
// single computation; the result, or its error, goes to every waiter.
type Manager struct {
	config    Config
	store     Store
	sink      metrics.Sink
	publisher *events.Publisher
	now       func() time.Time

	flightMu sync.Mutex
	flights  map[string]*flight

	statsMu     sync.Mutex
	hits        uint64
	misses      uint64
	evictions   uint64
	errors      uint64
	hitTimeMs   float64
	missTimeMs  float64
	missTimings uint64
}

func New(cfg Config, opts Options) *Manager {
	if cfg.DefaultTTL == 0 {
		cfg.DefaultTTL = 300 * time.Second
	}
	if cfg.MaxSizeBytes == 0 {
		cfg.MaxSizeBytes = 50 * 1024 * 1024
	}
	if cfg.MaintenanceInterval == 0 {
		cfg.MaintenanceInterval = 60 * time.Second
	}
	if cfg.ReportInterval == 0 {
		cfg.ReportInterval = 5 * time.Minute
	}
	if cfg.ComputeTimeout == 0 {
		cfg.ComputeTimeout = 30 * time.Second
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
		config:    cfg,
		store:     opts.Store,
		sink:      opts.Sink,
		publisher: opts.Publisher,
		now:       opts.Clock,
		flights:   make(map[string]*flight),
	}
}

// GetOrCompute returns the cached value for key, or runs compute and caches
// its result for ttlSeconds (the default TTL when <= 0). Errors from compute
// are returned and never cached. Concurrent misses share one computation,
// which is detached from every caller's cancellation and bounded by
// ComputeTimeout. Each caller stops waiting when its own ctx ends.
func (m *Manager) GetOrCompute(ctx context.Context, key string, ttlSeconds int, compute ComputeFunc) (interface{}, error) {
	start := m.now()

	value, found, err := m.lookup(ctx, key, start)
	if err != nil {
		return compute(ctx)
	}
	if found {
		m.recordHit(m.now().Sub(start))
		return value, nil
	}

	m.flightMu.Lock()
	f, joined := m.flights[key]
	if !joined {
		// another flight may have filled the key since the first lookup
		if value, found, err := m.lookup(ctx, key, start); err == nil && found {
			m.flightMu.Unlock()
			m.recordHit(m.now().Sub(start))
			return value, nil
		}
		f = &flight{done: make(chan struct{})}
		m.flights[key] = f
		go m.lead(ctx, key, m.ttl(ttlSeconds), f, compute)
	}
	m.flightMu.Unlock()

	if joined {
		m.sink.RecordCounter("cache_singleflight_waits", nil)
	}
	select {
	case <-f.done:
		m.recordMiss(m.now().Sub(start))
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// lookup reads a live entry. Expired entries are deleted and reported as a
// miss. A non-nil error means the backend is unusable.
func (m *Manager) lookup(ctx context.Context, key string, now time.Time) (interface{}, bool, error) {
	entry, found, err := m.store.Get(ctx, key)
	if err != nil {
		m.backendFailure(&CacheBackendError{Op: "get", Key: key, Err: err})
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	if entry.Expired(now) {
		m.deleteQuietly(ctx, key)
		return nil, false, nil
	}
	if err := m.store.Touch(ctx, key, m.now()); err != nil {
		m.backendFailure(&CacheBackendError{Op: "touch", Key: key, Err: err})
	}
	return entry.Value, true, nil
}

func (m *Manager) lead(parent context.Context, key string, ttl time.Duration, f *flight, compute ComputeFunc) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), m.config.ComputeTimeout)
	defer cancel()
	defer func() {
		if v := recover(); v != nil {
			f.value, f.err = nil, fmt.Errorf("%w: %v", ErrComputePanic, v)
		}
		m.flightMu.Lock()
		delete(m.flights, key)
		m.flightMu.Unlock()
		close(f.done)
	}()

	f.value, f.err = compute(ctx)
	if f.err != nil {
		return
	}

	now := m.now()
	entry := Entry{
		Key:            key,
		Value:          f.value,
		InsertedAt:     now,
		LastAccessedAt: now,
		TTL:            ttl,
		SizeBytes:      sizeOf(f.value),
	}
	if err := m.store.Set(ctx, entry); err != nil {
		m.backendFailure(&CacheBackendError{Op: "set", Key: key, Err: err})
	}
}

func (m *Manager) ttl(seconds int) time.Duration {
	if seconds <= 0 {
		return m.config.DefaultTTL
	}
	return time.Duration(seconds) * time.Second
}

func sizeOf(v interface{}) int64 {
	if s, ok := v.(Sizer); ok {
		return s.SizeBytes()
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return defaultEntrySize
	}
	return int64(len(encoded))
}

// Fetch is the typed form of Manager.GetOrCompute.
func Fetch[T any](ctx context.Context, m *Manager, key string, ttlSeconds int, compute func(context.Context) (T, error)) (T, error) {
	out, err := m.GetOrCompute(ctx, key, ttlSeconds, func(ctx context.Context) (interface{}, error) {
		return compute(ctx)
	})

	var zero T
	if err != nil {
		return zero, err
	}
	if v, ok := out.(T); ok {
		return v, nil
	}
	return zero, nil
}

// Invalidate removes key. Absent keys are not an error.
func (m *Manager) Invalidate(ctx context.Context, key string) bool {
	n, err := m.store.Delete(ctx, key)
	if err != nil {
		m.backendFailure(&CacheBackendError{Op: "delete", Key: key, Err: err})
		return false
	}
	m.sink.RecordCounter("cache_invalidations", nil)
	return n > 0
}

// InvalidateByPrefix removes every key starting with prefix and returns how
// many were deleted.
func (m *Manager) InvalidateByPrefix(ctx context.Context, prefix string) int {
	entries, err := m.store.Scan(ctx, prefix)
	if err != nil {
		m.backendFailure(&CacheBackendError{Op: "scan", Key: prefix, Err: err})
		return 0
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}

	deleted := m.deleteBatched(ctx, keys)
	m.sink.RecordCounter("cache_pattern_invalidations", nil)
	logger.WithComponent("cache").WithField("prefix", prefix).Infof("Invalidated %d cache entries", deleted)
	return deleted
}

func (m *Manager) deleteBatched(ctx context.Context, keys []string) int {
	deleted := 0
	for start := 0; start < len(keys); start += invalidateBatchSize {
		end := min(start+invalidateBatchSize, len(keys))
		n, err := m.store.Delete(ctx, keys[start:end]...)
		if err != nil {
			m.backendFailure(&CacheBackendError{Op: "delete", Err: err})
			continue
		}
		deleted += n
	}
	return deleted
}

func (m *Manager) deleteQuietly(ctx context.Context, key string) {
	if _, err := m.store.Delete(ctx, key); err != nil {
		m.backendFailure(&CacheBackendError{Op: "delete", Key: key, Err: err})
	}
}

// Clear removes every entry and resets the statistics.
func (m *Manager) Clear(ctx context.Context) {
	if err := m.store.Flush(ctx); err != nil {
		m.backendFailure(&CacheBackendError{Op: "flush", Err: err})
	}

	m.statsMu.Lock()
	m.hits, m.misses, m.evictions, m.errors = 0, 0, 0, 0
	m.hitTimeMs, m.missTimeMs, m.missTimings = 0, 0, 0
	m.statsMu.Unlock()

	m.sink.RecordCounter("cache_clear_operations", nil)
	logger.WithComponent("cache").Info("Cache cleared")
}

// Maintain drops expired entries and then evicts the least recently
// accessed ones until usage is back within MaxSizeBytes.
func (m *Manager) Maintain(ctx context.Context) MaintenanceResult {
	var result MaintenanceResult

	entries, err := m.store.Scan(ctx, "")
	if err != nil {
		m.backendFailure(&CacheBackendError{Op: "scan", Err: err})
		return result
	}

	now := m.now()
	var expired []string
	live := entries[:0]
	var total int64
	for _, e := range entries {
		if e.Expired(now) {
			expired = append(expired, e.Key)
			continue
		}
		live = append(live, e)
		total += e.SizeBytes
	}
	result.Expired = m.deleteBatched(ctx, expired)

	if total > m.config.MaxSizeBytes {
		sort.Slice(live, func(i, j int) bool {
			return live[i].LastAccessedAt.Before(live[j].LastAccessedAt)
		})

		var victims []string
		for _, e := range live {
			if total <= m.config.MaxSizeBytes {
				break
			}
			victims = append(victims, e.Key)
			total -= e.SizeBytes
			result.FreedBytes += e.SizeBytes
		}
		result.Evicted = m.deleteBatched(ctx, victims)
	}

	if result.Evicted > 0 {
		m.statsMu.Lock()
		m.evictions += uint64(result.Evicted)
		m.statsMu.Unlock()
		for i := 0; i < result.Evicted; i++ {
			m.sink.RecordCounter("cache_evictions", nil)
		}
		m.publisher.CacheEvicted(result.Evicted, result.FreedBytes)
		logger.WithComponent("cache").WithFields(map[string]interface{}{
			"evicted":     result.Evicted,
			"freed_bytes": result.FreedBytes,
		}).Info("Evicted cache entries over size budget")
	}
	return result
}

func (m *Manager) Stats(ctx context.Context) Stats {
	keys, size, err := m.store.Usage(ctx)
	if err != nil {
		m.backendFailure(&CacheBackendError{Op: "usage", Err: err})
	}

	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	stats := Stats{
		Hits:             m.hits,
		Misses:           m.misses,
		Evictions:        m.evictions,
		Errors:           m.errors,
		CurrentSizeBytes: size,
		KeyCount:         keys,
	}
	if total := m.hits + m.misses; total > 0 {
		stats.HitRate = float64(m.hits) / float64(total)
	}
	if m.hits > 0 {
		stats.AvgHitTimeMs = m.hitTimeMs / float64(m.hits)
	}
	if m.missTimings > 0 {
		stats.AvgMissTimeMs = m.missTimeMs / float64(m.missTimings)
	}
	return stats
}

func (m *Manager) report(ctx context.Context) {
	stats := m.Stats(ctx)
	m.sink.RecordGauge("cache_keys_count", float64(stats.KeyCount), nil)
	m.sink.RecordGauge("cache_size_bytes", float64(stats.CurrentSizeBytes), nil)
	m.sink.RecordGauge("cache_hit_rate", stats.HitRate, nil)
}

func (m *Manager) recordHit(elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)
	m.statsMu.Lock()
	m.hits++
	m.hitTimeMs += ms
	m.statsMu.Unlock()

	m.sink.RecordCounter("cache_hits", nil)
	m.sink.RecordHistogram("cache_hit_time", ms, nil)
}

func (m *Manager) recordMiss(elapsed time.Duration) {
	ms := float64(elapsed) / float64(time.Millisecond)
	m.statsMu.Lock()
	m.misses++
	m.missTimeMs += ms
	m.missTimings++
	m.statsMu.Unlock()

	m.sink.RecordCounter("cache_misses", nil)
	m.sink.RecordHistogram("cache_miss_time", ms, nil)
}

func (m *Manager) backendFailure(err *CacheBackendError) {
	m.statsMu.Lock()
	m.errors++
	m.statsMu.Unlock()

	m.sink.RecordCounter("cache_errors", map[string]string{"op": err.Op})
	logger.WithComponent("cache").WithError(err).Warn("Cache backend error, continuing uncached")
}

// Run drives maintenance and statistics reporting until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	log := logger.WithComponent("cache")
	log.Infof("Cache maintenance started (interval %s, budget %d bytes)", m.config.MaintenanceInterval, m.config.MaxSizeBytes)

	maintTicker := time.NewTicker(m.config.MaintenanceInterval)
	defer maintTicker.Stop()
	reportTicker := time.NewTicker(m.config.ReportInterval)
	defer reportTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Cache maintenance stopped")
			return
		case <-maintTicker.C:
			m.Maintain(ctx)
		case <-reportTicker.C:
			m.report(ctx)
		}
	}
}
