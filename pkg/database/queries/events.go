package queries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/OldStager01/resilience-plane/pkg/models"
)

type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

func (r *EventRepository) InsertEvent(ctx context.Context, event *models.Event) error {
	var data sql.NullString
	if event.Data != nil {
		raw, err := json.Marshal(event.Data)
		if err != nil {
			return fmt.Errorf("encoding event data: %w", err)
		}
		data = sql.NullString{String: string(raw), Valid: true}
	}

	query := `
		INSERT INTO control_events
			(id, event_type, severity, source, message, data, trace_id, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	_, err := r.db.ExecContext(ctx, query,
		event.ID, string(event.Type), string(event.Severity), event.Source,
		event.Message, data, event.TraceID, event.Timestamp.UTC(),
	)
	return err
}

// Recent returns the newest events first. Data is returned as raw JSON.
func (r *EventRepository) Recent(ctx context.Context, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, event_type, severity, source, message, data, trace_id, occurred_at
		FROM control_events
		ORDER BY occurred_at DESC
		LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var (
			e                   models.Event
			eventType, severity string
			data                sql.NullString
		)
		if err := rows.Scan(&e.ID, &eventType, &severity, &e.Source, &e.Message, &data, &e.TraceID, &e.Timestamp); err != nil {
			return nil, err
		}
		e.Type = models.EventType(eventType)
		e.Severity = models.Severity(severity)
		if data.Valid {
			e.Data = json.RawMessage(data.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
