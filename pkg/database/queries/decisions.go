package queries

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type ScalingDecisionRepository struct {
	db *sql.DB
}

func NewScalingDecisionRepository(db *sql.DB) *ScalingDecisionRepository {
	return &ScalingDecisionRepository{db: db}
}

// Save inserts the decision or updates it in place when it was journaled
// before, so a pending row is replaced by its terminal state.
func (r *ScalingDecisionRepository) Save(ctx context.Context, d *models.ScalingDecision) error {
	query := `
		INSERT INTO scaling_decisions
			(id, direction, reason, severity, previous_replicas, target_replicas,
			 started_at, completed_at, outcome, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			completed_at = excluded.completed_at,
			outcome      = excluded.outcome,
			error        = excluded.error`

	var completed sql.NullTime
	if d.CompletedAt != nil {
		completed = sql.NullTime{Time: d.CompletedAt.UTC(), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		d.ID, string(d.Direction), string(d.Reason), string(d.Severity),
		d.PreviousReplicas, d.TargetReplicas,
		d.StartedAt.UTC(), completed, string(d.Outcome), d.Error,
	)
	if err != nil {
		return fmt.Errorf("saving scaling decision %s: %w", d.ID, err)
	}
	return nil
}

func (r *ScalingDecisionRepository) GetByID(ctx context.Context, id string) (*models.ScalingDecision, error) {
	query := `
		SELECT id, direction, reason, severity, previous_replicas, target_replicas,
			   started_at, completed_at, outcome, error
		FROM scaling_decisions
		WHERE id = $1`

	d, err := scanDecision(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return d, err
}

// Recent returns the newest decisions first.
func (r *ScalingDecisionRepository) Recent(ctx context.Context, limit int) ([]models.ScalingDecision, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, direction, reason, severity, previous_replicas, target_replicas,
			   started_at, completed_at, outcome, error
		FROM scaling_decisions
		ORDER BY started_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var decisions []models.ScalingDecision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, *d)
	}
	return decisions, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanDecision(row scanner) (*models.ScalingDecision, error) {
	var (
		d                                    models.ScalingDecision
		direction, reason, severity, outcome string
		completed                            sql.NullTime
	)
	err := row.Scan(
		&d.ID, &direction, &reason, &severity,
		&d.PreviousReplicas, &d.TargetReplicas,
		&d.StartedAt, &completed, &outcome, &d.Error,
	)
	if err != nil {
		return nil, err
	}

	d.Direction = models.ScalingDirection(direction)
	d.Reason = models.ScalingReason(reason)
	d.Severity = models.Severity(severity)
	d.Outcome = models.ScalingOutcome(outcome)
	if completed.Valid {
		t := completed.Time
		d.CompletedAt = &t
	}
	return &d, nil
}
