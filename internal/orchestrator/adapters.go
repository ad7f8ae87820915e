package orchestrator

import (
	"context"
	"time"

	"github.com/OldStager01/resilience-plane/internal/cache"
	"github.com/OldStager01/resilience-plane/internal/resilience"
	"github.com/OldStager01/resilience-plane/internal/scaler"
	"github.com/OldStager01/resilience-plane/pkg/models"
)

// ScalerCircuit guards every call into the scaling executor. Its own trips
// are not turned into scale-up bottlenecks.
const ScalerCircuit = "scaler"

const decisionsKeyPrefix = "decisions:"

// guardedExecutor runs the executor behind a circuit so a dead cluster API
// fails fast instead of holding the scale lock for every timeout.
type guardedExecutor struct {
	next     scaler.ScalingExecutor
	registry *resilience.Registry
}

func (g guardedExecutor) GetCurrentReplicas(ctx context.Context) (int, error) {
	return resilience.Call(ctx, g.registry, ScalerCircuit, g.next.GetCurrentReplicas, nil)
}

func (g guardedExecutor) SetReplicas(ctx context.Context, replicas int) error {
	_, err := g.registry.Execute(ctx, ScalerCircuit, func(ctx context.Context) (interface{}, error) {
		return nil, g.next.SetReplicas(ctx, replicas)
	}, nil)
	return err
}

type decisionArchive interface {
	Recent(ctx context.Context, limit int) ([]models.ScalingDecision, error)
	GetByID(ctx context.Context, id string) (*models.ScalingDecision, error)
}

type sampleArchive interface {
	Range(ctx context.Context, from, to time.Time, limit int) ([]models.MetricSample, error)
}

// cachedDecisions serves archived decisions through the cache. Entries are
// dropped whenever the autoscaler records a decision.
type cachedDecisions struct {
	repo  decisionArchive
	cache *cache.Manager
	ttl   int
}

func decisionsKey(limit int) string {
	return decisionsKeyPrefix + cache.KeyFor("/api/v1/decisions", map[string]interface{}{"limit": limit})
}

func (c cachedDecisions) Recent(ctx context.Context, limit int) ([]models.ScalingDecision, error) {
	return cache.Fetch(ctx, c.cache, decisionsKey(limit), c.ttl, func(ctx context.Context) ([]models.ScalingDecision, error) {
		return c.repo.Recent(ctx, limit)
	})
}

// GetByID is not cached: a pending decision row is rewritten once its
// outcome is known.
func (c cachedDecisions) GetByID(ctx context.Context, id string) (*models.ScalingDecision, error) {
	return c.repo.GetByID(ctx, id)
}

func (c cachedDecisions) invalidate(ctx context.Context) {
	c.cache.InvalidateByPrefix(ctx, decisionsKeyPrefix)
}

func (c cachedDecisions) preloadTask(limit int) cache.PreloadTask {
	return cache.PreloadTask{
		Name:       "recent-decisions",
		Key:        decisionsKey(limit),
		TTLSeconds: c.ttl,
		Load: func(ctx context.Context) (interface{}, error) {
			return c.repo.Recent(ctx, limit)
		},
	}
}

// cachedSamples caches archive range reads. Ranges that end in the past
// never change, so only the TTL bounds staleness.
type cachedSamples struct {
	repo  sampleArchive
	cache *cache.Manager
	ttl   int
}

func (c cachedSamples) Range(ctx context.Context, from, to time.Time, limit int) ([]models.MetricSample, error) {
	key := cache.KeyFor("/api/v1/samples", map[string]interface{}{
		"from":  from.UTC().Format(time.RFC3339Nano),
		"to":    to.UTC().Format(time.RFC3339Nano),
		"limit": limit,
	})
	return cache.Fetch(ctx, c.cache, key, c.ttl, func(ctx context.Context) ([]models.MetricSample, error) {
		return c.repo.Range(ctx, from, to, limit)
	})
}
