package repository

import (
	"context"
	"fmt"

	"raffler/domain/entities"
)

// PhaseEventRepository stores the draw phase stream
type PhaseEventRepository struct {
	q Queryable
}

func NewPhaseEventRepositoryScoped(tx Queryable) *PhaseEventRepository {
	return &PhaseEventRepository{q: tx}
}

// Append inserts a phase event and sets its ID
func (r *PhaseEventRepository) Append(ctx context.Context, event *entities.PhaseEvent) error {
	data := event.Data
	if len(data) == 0 {
		data = []byte("{}")
	}
	err := r.q.QueryRow(ctx, `
		INSERT INTO draw_phase_events (draw_id, phase, data, occurred_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, event.DrawID, event.Phase, data, event.OccurredAt).Scan(&event.ID)
	if err != nil {
		return fmt.Errorf("failed to append phase event: %w", err)
	}
	return nil
}

// ListRecent returns the latest phase events, newest first
func (r *PhaseEventRepository) ListRecent(ctx context.Context, limit int) ([]*entities.PhaseEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT id, draw_id, phase, data, occurred_at
		FROM draw_phase_events
		ORDER BY occurred_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list phase events: %w", err)
	}
	defer rows.Close()

	var stream []*entities.PhaseEvent
	for rows.Next() {
		var e entities.PhaseEvent
		if err := rows.Scan(&e.ID, &e.DrawID, &e.Phase, &e.Data, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan phase event: %w", err)
		}
		stream = append(stream, &e)
	}
	return stream, rows.Err()
}
