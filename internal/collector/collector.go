package collector

import (
	"context"
	"errors"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

var (
	ErrCollectionFailed = errors.New("metric collection failed")
	ErrTimeout          = errors.New("collection timeout")
	ErrInvalidResponse  = errors.New("invalid response from data source")
)

// Source produces one MetricSample per call. Implementations must be safe
// for use by a single sampling goroutine; most are safe for concurrent use.
type Source interface {
	Collect(ctx context.Context) (models.MetricSample, error)
	Name() string
}

// clampPercent keeps utilisation values inside [0, 100].
func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
