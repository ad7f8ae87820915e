package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OldStager01/resilience-plane/internal/logger"
	"github.com/OldStager01/resilience-plane/internal/metrics"
)

// PreloadTask warms one key.
type PreloadTask struct {
	Name       string
	Key        string
	TTLSeconds int
	Load       ComputeFunc
}

// Preloader refreshes registered tasks on a schedule. A run that starts while
// another is still in progress is skipped.
type Preloader struct {
	cache    *Manager
	interval time.Duration
	sink     metrics.Sink

	mu      sync.Mutex
	tasks   []PreloadTask
	running atomic.Bool
}

func NewPreloader(cache *Manager, interval time.Duration, sink metrics.Sink) *Preloader {
	if interval == 0 {
		interval = time.Hour
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Preloader{cache: cache, interval: interval, sink: sink}
}

func (p *Preloader) Register(task PreloadTask) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tasks = append(p.tasks, task)
}

// Preload invalidates and recomputes every task concurrently.
func (p *Preloader) Preload(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPreloadRunning
	}
	defer p.running.Store(false)

	p.mu.Lock()
	tasks := append([]PreloadTask(nil), p.tasks...)
	p.mu.Unlock()

	start := time.Now()
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task PreloadTask) {
			defer wg.Done()
			p.cache.Invalidate(ctx, task.Key)
			if _, err := p.cache.GetOrCompute(ctx, task.Key, task.TTLSeconds, task.Load); err != nil {
				errs[i] = err
			}
		}(i, task)
	}
	wg.Wait()

	log := logger.WithComponent("cache-preloader")
	err := errors.Join(errs...)
	if err != nil {
		p.sink.RecordCounter("cache_preload_failures", nil)
		log.WithError(err).Error("Cache preload failed")
		return err
	}

	duration := time.Since(start)
	p.sink.RecordHistogram("cache_preload_duration", float64(duration.Milliseconds()), nil)
	log.WithField("duration_ms", duration.Milliseconds()).Infof("Cache preload completed (%d tasks)", len(tasks))
	return nil
}

func (p *Preloader) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	logger.WithComponent("cache-preloader").Info("Cache preloader started")
	_ = p.Preload(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = p.Preload(ctx)
		}
	}
}
