package queries

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ThrottleCounterRepository is a window counter store shared by every
// control-plane instance using the same database.
type ThrottleCounterRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewThrottleCounterRepository(db *sql.DB) *ThrottleCounterRepository {
	return &ThrottleCounterRepository{db: db, now: time.Now}
}

// Incr bumps the counter, restarting it when it has expired, and returns the
// new value.
func (r *ThrottleCounterRepository) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := r.now()
	query := `
		INSERT INTO throttle_counters (counter_key, value, expires_at_ms)
		VALUES ($1, 1, $2)
		ON CONFLICT (counter_key) DO UPDATE SET
			value = CASE WHEN throttle_counters.expires_at_ms <= $3
				THEN 1 ELSE throttle_counters.value + 1 END,
			expires_at_ms = CASE WHEN throttle_counters.expires_at_ms <= $3
				THEN excluded.expires_at_ms ELSE throttle_counters.expires_at_ms END
		RETURNING value`

	var value int64
	err := r.db.QueryRowContext(ctx, query, key, now.Add(ttl).UnixMilli(), now.UnixMilli()).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("incrementing counter %s: %w", key, err)
	}
	return value, nil
}

func (r *ThrottleCounterRepository) Get(ctx context.Context, key string) (int64, error) {
	var value int64
	err := r.db.QueryRowContext(ctx,
		`SELECT value FROM throttle_counters WHERE counter_key = $1 AND expires_at_ms > $2`,
		key, r.now().UnixMilli(),
	).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading counter %s: %w", key, err)
	}
	return value, nil
}

// Purge removes expired counters.
func (r *ThrottleCounterRepository) Purge(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM throttle_counters WHERE expires_at_ms <= $1`, r.now().UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
