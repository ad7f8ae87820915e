package queries

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type MetricSampleRepository struct {
	db *sql.DB
}

func NewMetricSampleRepository(db *sql.DB) *MetricSampleRepository {
	return &MetricSampleRepository{db: db}
}

// InsertBatch archives samples in one transaction. Samples already archived
// are skipped.
func (r *MetricSampleRepository) InsertBatch(ctx context.Context, samples []models.MetricSample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metric_samples
			(sampled_at, cpu_percent, memory_percent, error_rate,
			 latency_p95_ms, throughput_rps, queue_load_percent)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (sampled_at) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		_, err := stmt.ExecContext(ctx,
			s.Timestamp.UTC(), s.CPUPercent, s.MemoryPercent, s.ErrorRate,
			s.LatencyP95Ms, s.ThroughputRps, s.QueueLoadPercent,
		)
		if err != nil {
			return fmt.Errorf("failed to insert sample at %s: %w", s.Timestamp.Format(time.RFC3339Nano), err)
		}
	}

	return tx.Commit()
}

// Range returns samples in [from, to] oldest first.
func (r *MetricSampleRepository) Range(ctx context.Context, from, to time.Time, limit int) ([]models.MetricSample, error) {
	if limit <= 0 {
		limit = 1000
	}

	query := `
		SELECT sampled_at, cpu_percent, memory_percent, error_rate,
			   latency_p95_ms, throughput_rps, queue_load_percent
		FROM metric_samples
		WHERE sampled_at >= $1 AND sampled_at <= $2
		ORDER BY sampled_at ASC
		LIMIT $3`

	rows, err := r.db.QueryContext(ctx, query, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []models.MetricSample
	for rows.Next() {
		var s models.MetricSample
		err := rows.Scan(
			&s.Timestamp, &s.CPUPercent, &s.MemoryPercent, &s.ErrorRate,
			&s.LatencyP95Ms, &s.ThroughputRps, &s.QueueLoadPercent,
		)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// DeleteBefore prunes the archive and returns the number of rows removed.
func (r *MetricSampleRepository) DeleteBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM metric_samples WHERE sampled_at < $1`, t.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
