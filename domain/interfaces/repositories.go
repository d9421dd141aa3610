package interfaces

import (
	"context"
	"time"

	"raffler/domain/entities"
	"raffler/events"

	"github.com/google/uuid"
)

// DrawRepository defines the interface for draw and winner persistence
type DrawRepository interface {
	// Create inserts a pending draw together with its winners
	Create(ctx context.Context, draw *entities.Draw) error
	// GetByID returns nil when the draw does not exist
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Draw, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Draw, error)
	GetLatest(ctx context.Context) (*entities.Draw, error)
	// Finish moves a pending draw to a final status
	Finish(ctx context.Context, id uuid.UUID, status entities.DrawStatus, endedAt time.Time) error
	RecordWinnerTransfer(ctx context.Context, drawID uuid.UUID, wallet, reference string, paidAt time.Time) error
	RecordSecondaryTransfer(ctx context.Context, drawID uuid.UUID, reference string) error
	GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error)
}

// ClaimRepository defines the interface for the claim ledger
type ClaimRepository interface {
	// Record stores a claim keyed by signature and reports whether it was new
	Record(ctx context.Context, claim *entities.ClaimEvent) (bool, error)
	// ListAfter returns claims observed strictly after the given time, oldest first
	ListAfter(ctx context.Context, after time.Time, limit int) ([]*entities.ClaimEvent, error)
	GetSummary(ctx context.Context, window string, since *time.Time) (*entities.ClaimSummary, error)
}

// PhaseEventRepository defines the interface for the phase stream
type PhaseEventRepository interface {
	Append(ctx context.Context, event *entities.PhaseEvent) error
	// ListRecent returns phase events newest first
	ListRecent(ctx context.Context, limit int) ([]*entities.PhaseEvent, error)
}

// EventPublisher queues or delivers domain events
type EventPublisher interface {
	Publish(event events.Event) error
}

// TransactionalEventPublisher holds events until the owning transaction commits
type TransactionalEventPublisher interface {
	EventPublisher
	Flush(ctx context.Context) error
	Discard()
}

// UnitOfWork defines the interface for transactional repository operations
type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	DrawRepository() DrawRepository
	ClaimRepository() ClaimRepository
	PhaseEventRepository() PhaseEventRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory creates UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}
