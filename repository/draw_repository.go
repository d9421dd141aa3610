package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/database"
	"raffler/domain/entities"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const drawColumns = `
	id, claim_signature, claim_observed_at, started_at, ended_at, total_amount,
	payout_pool, per_winner, secondary_share, secondary_ref, odds_mode,
	max_weight_ratio, status`

// DrawRepository implements draw and winner data access
type DrawRepository struct {
	q Queryable
}

// NewDrawRepository creates a draw repository on the pool
func NewDrawRepository(db *database.DB) *DrawRepository {
	return &DrawRepository{q: db.Pool}
}

// NewDrawRepositoryScoped creates a draw repository bound to a transaction
func NewDrawRepositoryScoped(tx Queryable) *DrawRepository {
	return &DrawRepository{q: tx}
}

// Create inserts a draw and its winners
func (r *DrawRepository) Create(ctx context.Context, draw *entities.Draw) error {
	query := `
		INSERT INTO draws (` + drawColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.q.Exec(ctx, query,
		draw.ID,
		draw.ClaimSignature,
		draw.ClaimObservedAt,
		draw.StartedAt,
		draw.EndedAt,
		draw.TotalAmount,
		draw.PayoutPool,
		draw.PerWinner,
		draw.SecondaryShare,
		draw.SecondaryRef,
		draw.OddsMode,
		draw.MaxWeightRatio,
		draw.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to create draw: %w", err)
	}

	for _, w := range draw.Winners {
		_, err := r.q.Exec(ctx, `
			INSERT INTO draw_winners (draw_id, position, wallet, probability, payout_amount, transfer_reference, paid_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, draw.ID, w.Position, w.Wallet, w.Probability, w.PayoutAmount, w.TransferReference, w.PaidAt)
		if err != nil {
			return fmt.Errorf("failed to create winner %d of draw %s: %w", w.Position, draw.ID, err)
		}
	}

	return nil
}

func scanDraw(row pgx.Row) (*entities.Draw, error) {
	var draw entities.Draw
	err := row.Scan(
		&draw.ID,
		&draw.ClaimSignature,
		&draw.ClaimObservedAt,
		&draw.StartedAt,
		&draw.EndedAt,
		&draw.TotalAmount,
		&draw.PayoutPool,
		&draw.PerWinner,
		&draw.SecondaryShare,
		&draw.SecondaryRef,
		&draw.OddsMode,
		&draw.MaxWeightRatio,
		&draw.Status,
	)
	if err != nil {
		return nil, err
	}
	return &draw, nil
}

func (r *DrawRepository) getOne(ctx context.Context, query string, args ...any) (*entities.Draw, error) {
	draw, err := scanDraw(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	draw.Winners, err = r.getWinners(ctx, draw.ID)
	if err != nil {
		return nil, err
	}
	return draw, nil
}

// GetByID retrieves a draw with its winners
func (r *DrawRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Draw, error) {
	draw, err := r.getOne(ctx, `SELECT `+drawColumns+` FROM draws WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get draw %s: %w", id, err)
	}
	return draw, nil
}

// GetByIDForUpdate retrieves a draw by ID with row lock for update
func (r *DrawRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Draw, error) {
	draw, err := r.getOne(ctx, `SELECT `+drawColumns+` FROM draws WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get draw %s for update: %w", id, err)
	}
	return draw, nil
}

// GetLatest retrieves the most recently started draw
func (r *DrawRepository) GetLatest(ctx context.Context) (*entities.Draw, error) {
	draw, err := r.getOne(ctx, `SELECT `+drawColumns+` FROM draws ORDER BY started_at DESC LIMIT 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest draw: %w", err)
	}
	return draw, nil
}

func (r *DrawRepository) getWinners(ctx context.Context, drawID uuid.UUID) ([]*entities.WinnerRecord, error) {
	rows, err := r.q.Query(ctx, `
		SELECT draw_id, position, wallet, probability, payout_amount, transfer_reference, paid_at
		FROM draw_winners
		WHERE draw_id = $1
		ORDER BY position
	`, drawID)
	if err != nil {
		return nil, fmt.Errorf("failed to query winners: %w", err)
	}
	defer rows.Close()

	var winners []*entities.WinnerRecord
	for rows.Next() {
		var w entities.WinnerRecord
		if err := rows.Scan(&w.DrawID, &w.Position, &w.Wallet, &w.Probability, &w.PayoutAmount, &w.TransferReference, &w.PaidAt); err != nil {
			return nil, fmt.Errorf("failed to scan winner: %w", err)
		}
		winners = append(winners, &w)
	}
	return winners, rows.Err()
}

// Finish moves a pending draw to its final status
func (r *DrawRepository) Finish(ctx context.Context, id uuid.UUID, status entities.DrawStatus, endedAt time.Time) error {
	result, err := r.q.Exec(ctx, `
		UPDATE draws
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, status, endedAt)
	if err != nil {
		return fmt.Errorf("failed to finish draw: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("pending draw %s not found", id)
	}
	return nil
}

// RecordWinnerTransfer stores the transfer reference of a winner. An existing
// reference is never overwritten.
func (r *DrawRepository) RecordWinnerTransfer(ctx context.Context, drawID uuid.UUID, wallet, reference string, paidAt time.Time) error {
	result, err := r.q.Exec(ctx, `
		UPDATE draw_winners
		SET transfer_reference = COALESCE(transfer_reference, $3),
		    paid_at = COALESCE(paid_at, $4)
		WHERE draw_id = $1 AND wallet = $2
	`, drawID, wallet, reference, paidAt)
	if err != nil {
		return fmt.Errorf("failed to record winner transfer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("winner %s not found in draw %s", wallet, drawID)
	}
	return nil
}

// RecordSecondaryTransfer stores the secondary share reference once
func (r *DrawRepository) RecordSecondaryTransfer(ctx context.Context, drawID uuid.UUID, reference string) error {
	result, err := r.q.Exec(ctx, `
		UPDATE draws
		SET secondary_ref = COALESCE(secondary_ref, $2)
		WHERE id = $1
	`, drawID, reference)
	if err != nil {
		return fmt.Errorf("failed to record secondary transfer: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("draw %s not found", drawID)
	}
	return nil
}

// GetRecentWinners returns winners of the latest finalized draws, newest draw first.
// Pending draws stay hidden until they complete or fail.
func (r *DrawRepository) GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error) {
	rows, err := r.q.Query(ctx, `
		SELECT w.draw_id, w.position, w.wallet, w.probability, w.payout_amount,
		       w.transfer_reference, w.paid_at, d.started_at, d.status
		FROM draw_winners w
		JOIN draws d ON d.id = w.draw_id
		WHERE d.status <> 'pending'
		ORDER BY d.started_at DESC, w.position
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent winners: %w", err)
	}
	defer rows.Close()

	var winners []*entities.RecentWinner
	for rows.Next() {
		var w entities.RecentWinner
		err := rows.Scan(
			&w.DrawID,
			&w.Position,
			&w.Wallet,
			&w.Probability,
			&w.PayoutAmount,
			&w.TransferReference,
			&w.PaidAt,
			&w.DrawStartedAt,
			&w.DrawStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recent winner: %w", err)
		}
		winners = append(winners, &w)
	}
	return winners, rows.Err()
}
