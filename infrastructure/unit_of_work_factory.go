package infrastructure

import (
	"raffler/database"
	"raffler/domain/interfaces"
	"raffler/repository"
)

// UnitOfWorkFactory creates pgx units of work whose events are published after commit
type UnitOfWorkFactory struct {
	repoFactory interface {
		CreateWithPublisher(transactionalPublisher interfaces.TransactionalEventPublisher) interfaces.UnitOfWork
	}
	eventPublisher interfaces.EventPublisher
}

// NewUnitOfWorkFactory wires the repository factory to eventPublisher
func NewUnitOfWorkFactory(db *database.DB, eventPublisher interfaces.EventPublisher) *UnitOfWorkFactory {
	return &UnitOfWorkFactory{
		repoFactory:    repository.NewUnitOfWorkFactory(db),
		eventPublisher: eventPublisher,
	}
}

// Create returns a UnitOfWork with its own transactional publisher
func (f *UnitOfWorkFactory) Create() interfaces.UnitOfWork {
	return f.repoFactory.CreateWithPublisher(NewNATSTransactionalPublisher(f.eventPublisher))
}
