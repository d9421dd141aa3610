package repository

import (
	"context"
	"fmt"
	"time"

	"raffler/database"
	"raffler/domain/entities"
)

// ClaimRepository is the ledger of observed funding events
type ClaimRepository struct {
	q Queryable
}

func NewClaimRepository(db *database.DB) *ClaimRepository {
	return &ClaimRepository{q: db.Pool}
}

func NewClaimRepositoryScoped(tx Queryable) *ClaimRepository {
	return &ClaimRepository{q: tx}
}

// Record inserts a claim and reports whether it was new. Redelivered signatures are no-ops.
func (r *ClaimRepository) Record(ctx context.Context, claim *entities.ClaimEvent) (bool, error) {
	result, err := r.q.Exec(ctx, `
		INSERT INTO claims (signature, amount, observed_at, source)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (signature) DO NOTHING
	`, claim.Signature, claim.Amount, claim.ObservedAt, claim.Source)
	if err != nil {
		return false, fmt.Errorf("failed to record claim %s: %w", claim.Signature, err)
	}
	return result.RowsAffected() == 1, nil
}

// ListAfter returns claims observed after the given time, oldest first
func (r *ClaimRepository) ListAfter(ctx context.Context, after time.Time, limit int) ([]*entities.ClaimEvent, error) {
	rows, err := r.q.Query(ctx, `
		SELECT signature, amount, observed_at, source
		FROM claims
		WHERE observed_at > $1
		ORDER BY observed_at, signature
		LIMIT $2
	`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer rows.Close()

	var claims []*entities.ClaimEvent
	for rows.Next() {
		var c entities.ClaimEvent
		if err := rows.Scan(&c.Signature, &c.Amount, &c.ObservedAt, &c.Source); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, &c)
	}
	return claims, rows.Err()
}

// GetSummary aggregates claims observed since the given time; nil means all time
func (r *ClaimRepository) GetSummary(ctx context.Context, window string, since *time.Time) (*entities.ClaimSummary, error) {
	summary := &entities.ClaimSummary{Window: window}
	err := r.q.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(amount), 0), MAX(observed_at)
		FROM claims
		WHERE $1::timestamptz IS NULL OR observed_at >= $1
	`, since).Scan(&summary.Count, &summary.TotalAmount, &summary.LastClaimAt)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize claims: %w", err)
	}
	return summary, nil
}
