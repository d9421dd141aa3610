package repository

import (
	"context"
	"errors"
	"fmt"

	"raffler/database"
	"raffler/domain/interfaces"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"
)

// unitOfWork implements interfaces.UnitOfWork over a pgx transaction
type unitOfWork struct {
	db                     *database.DB
	tx                     pgx.Tx
	ctx                    context.Context
	transactionalPublisher interfaces.TransactionalEventPublisher
	drawRepo               interfaces.DrawRepository
	claimRepo              interfaces.ClaimRepository
	phaseEventRepo         interfaces.PhaseEventRepository
}

type unitOfWorkFactory struct {
	db *database.DB
}

// NewUnitOfWorkFactory creates a factory for pgx-backed units of work
func NewUnitOfWorkFactory(db *database.DB) *unitOfWorkFactory {
	return &unitOfWorkFactory{db: db}
}

// CreateWithPublisher creates a UnitOfWork that flushes the publisher after commit
func (f *unitOfWorkFactory) CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) interfaces.UnitOfWork {
	return &unitOfWork{
		db:                     f.db,
		transactionalPublisher: transactionalPublisher,
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.tx = tx
	u.ctx = ctx
	u.drawRepo = NewDrawRepositoryScoped(tx)
	u.claimRepo = NewClaimRepositoryScoped(tx)
	u.phaseEventRepo = NewPhaseEventRepositoryScoped(tx)

	return nil
}

// Commit commits the transaction, then flushes pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	if err := u.tx.Commit(u.ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	u.tx = nil

	if u.transactionalPublisher != nil {
		if err := u.transactionalPublisher.Flush(u.ctx); err != nil {
			log.WithError(err).Warn("Failed to flush events after commit")
		}
	}
	return nil
}

// Rollback rolls back the transaction and discards pending events
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	u.tx = nil

	if u.transactionalPublisher != nil {
		u.transactionalPublisher.Discard()
	}
	return nil
}

func (u *unitOfWork) DrawRepository() interfaces.DrawRepository {
	if u.drawRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.drawRepo
}

func (u *unitOfWork) ClaimRepository() interfaces.ClaimRepository {
	if u.claimRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.claimRepo
}

func (u *unitOfWork) PhaseEventRepository() interfaces.PhaseEventRepository {
	if u.phaseEventRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.phaseEventRepo
}

// EventBus returns the transactional event publisher for this unit of work
func (u *unitOfWork) EventBus() interfaces.EventPublisher {
	if u.transactionalPublisher == nil {
		panic("unit of work has no event publisher")
	}
	return u.transactionalPublisher
}
