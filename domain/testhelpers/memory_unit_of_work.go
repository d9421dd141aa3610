package testhelpers

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"
	"raffler/events"

	"github.com/google/uuid"
)

// MemoryDatabase is an in-memory table store for service tests. Writes apply
// immediately; events queued on a unit of work are only released on Commit.
type MemoryDatabase struct {
	mu     sync.Mutex
	draws  map[uuid.UUID]*entities.Draw
	claims map[string]*entities.ClaimEvent
	phases []*entities.PhaseEvent

	// Published collects events flushed by committed units of work
	Published []events.Event

	// Failure injection, consumed once when set
	FinishErr         error
	CreateErr         error
	RecordTransferErr error
	BeginErr          error
}

// NewMemoryDatabase creates an empty database
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		draws:  make(map[uuid.UUID]*entities.Draw),
		claims: make(map[string]*entities.ClaimEvent),
	}
}

// Create implements interfaces.UnitOfWorkFactory
func (db *MemoryDatabase) Create() interfaces.UnitOfWork {
	return &memoryUnitOfWork{db: db}
}

// DrawCount returns the number of stored draws
func (db *MemoryDatabase) DrawCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.draws)
}

// Draw returns a copy of a stored draw
func (db *MemoryDatabase) Draw(id uuid.UUID) *entities.Draw {
	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.draws[id]
	if !ok {
		return nil
	}
	return copyDraw(d)
}

// PhaseEvents returns stored phase events oldest first
func (db *MemoryDatabase) PhaseEvents() []*entities.PhaseEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]*entities.PhaseEvent, len(db.phases))
	copy(out, db.phases)
	return out
}

// PublishedEvents returns a snapshot of flushed events
func (db *MemoryDatabase) PublishedEvents() []events.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]events.Event, len(db.Published))
	copy(out, db.Published)
	return out
}

// SeedClaim stores a claim directly in the ledger
func (db *MemoryDatabase) SeedClaim(claim entities.ClaimEvent) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c := claim
	db.claims[claim.Signature] = &c
}

func takeErr(err *error) error {
	e := *err
	*err = nil
	return e
}

func copyDraw(d *entities.Draw) *entities.Draw {
	cp := *d
	cp.Winners = make([]*entities.WinnerRecord, len(d.Winners))
	for i, w := range d.Winners {
		wc := *w
		cp.Winners[i] = &wc
	}
	return &cp
}

type memoryUnitOfWork struct {
	db      *MemoryDatabase
	started bool
	pending []events.Event
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error {
	if u.started {
		return fmt.Errorf("transaction already started")
	}
	u.db.mu.Lock()
	err := takeErr(&u.db.BeginErr)
	u.db.mu.Unlock()
	if err != nil {
		return err
	}
	u.started = true
	return nil
}

func (u *memoryUnitOfWork) Commit() error {
	if !u.started {
		return fmt.Errorf("no transaction to commit")
	}
	u.started = false
	u.db.mu.Lock()
	u.db.Published = append(u.db.Published, u.pending...)
	u.db.mu.Unlock()
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	u.started = false
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) mustBeStarted() {
	if !u.started {
		panic("unit of work not started - call Begin() first")
	}
}

func (u *memoryUnitOfWork) DrawRepository() interfaces.DrawRepository {
	u.mustBeStarted()
	return &memoryDrawRepository{db: u.db}
}

func (u *memoryUnitOfWork) ClaimRepository() interfaces.ClaimRepository {
	u.mustBeStarted()
	return &memoryClaimRepository{db: u.db}
}

func (u *memoryUnitOfWork) PhaseEventRepository() interfaces.PhaseEventRepository {
	u.mustBeStarted()
	return &memoryPhaseEventRepository{db: u.db}
}

func (u *memoryUnitOfWork) EventBus() interfaces.EventPublisher {
	u.mustBeStarted()
	return publisherFunc(func(e events.Event) error {
		u.pending = append(u.pending, e)
		return nil
	})
}

type publisherFunc func(events.Event) error

func (f publisherFunc) Publish(e events.Event) error { return f(e) }

type memoryDrawRepository struct {
	db *MemoryDatabase
}

func (r *memoryDrawRepository) Create(ctx context.Context, draw *entities.Draw) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := takeErr(&r.db.CreateErr); err != nil {
		return err
	}
	if _, exists := r.db.draws[draw.ID]; exists {
		return fmt.Errorf("draw %s already exists", draw.ID)
	}
	r.db.draws[draw.ID] = copyDraw(draw)
	return nil
}

func (r *memoryDrawRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Draw, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	d, ok := r.db.draws[id]
	if !ok {
		return nil, nil
	}
	return copyDraw(d), nil
}

func (r *memoryDrawRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*entities.Draw, error) {
	return r.GetByID(ctx, id)
}

func (r *memoryDrawRepository) GetLatest(ctx context.Context) (*entities.Draw, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var latest *entities.Draw
	for _, d := range r.db.draws {
		if latest == nil || d.StartedAt.After(latest.StartedAt) {
			latest = d
		}
	}
	if latest == nil {
		return nil, nil
	}
	return copyDraw(latest), nil
}

func (r *memoryDrawRepository) Finish(ctx context.Context, id uuid.UUID, status entities.DrawStatus, endedAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := takeErr(&r.db.FinishErr); err != nil {
		return err
	}
	d, ok := r.db.draws[id]
	if !ok || d.Status != entities.DrawStatusPending {
		return fmt.Errorf("pending draw %s not found", id)
	}
	d.Status = status
	d.EndedAt = &endedAt
	return nil
}

func (r *memoryDrawRepository) RecordWinnerTransfer(ctx context.Context, drawID uuid.UUID, wallet, reference string, paidAt time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if err := takeErr(&r.db.RecordTransferErr); err != nil {
		return err
	}
	d, ok := r.db.draws[drawID]
	if !ok {
		return fmt.Errorf("draw %s not found", drawID)
	}
	for _, w := range d.Winners {
		if w.Wallet == wallet {
			if !w.IsPaid() {
				w.MarkPaid(reference, paidAt)
			}
			return nil
		}
	}
	return fmt.Errorf("winner %s not found in draw %s", wallet, drawID)
}

func (r *memoryDrawRepository) RecordSecondaryTransfer(ctx context.Context, drawID uuid.UUID, reference string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	d, ok := r.db.draws[drawID]
	if !ok {
		return fmt.Errorf("draw %s not found", drawID)
	}
	if d.SecondaryRef == nil {
		d.SecondaryRef = &reference
	}
	return nil
}

func (r *memoryDrawRepository) GetRecentWinners(ctx context.Context, limit int) ([]*entities.RecentWinner, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*entities.RecentWinner
	for _, d := range r.db.draws {
		if !d.IsFinal() {
			continue
		}
		for _, w := range d.Winners {
			out = append(out, &entities.RecentWinner{WinnerRecord: *w, DrawStartedAt: d.StartedAt, DrawStatus: d.Status})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DrawStartedAt.Equal(out[j].DrawStartedAt) {
			return out[i].DrawStartedAt.After(out[j].DrawStartedAt)
		}
		return out[i].Position < out[j].Position
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memoryClaimRepository struct {
	db *MemoryDatabase
}

func (r *memoryClaimRepository) Record(ctx context.Context, claim *entities.ClaimEvent) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if _, exists := r.db.claims[claim.Signature]; exists {
		return false, nil
	}
	c := *claim
	r.db.claims[claim.Signature] = &c
	return true, nil
}

func (r *memoryClaimRepository) ListAfter(ctx context.Context, after time.Time, limit int) ([]*entities.ClaimEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*entities.ClaimEvent
	for _, c := range r.db.claims {
		if c.ObservedAt.After(after) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ObservedAt.Before(out[j].ObservedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memoryClaimRepository) GetSummary(ctx context.Context, window string, since *time.Time) (*entities.ClaimSummary, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	summary := &entities.ClaimSummary{Window: window}
	for _, c := range r.db.claims {
		if since != nil && c.ObservedAt.Before(*since) {
			continue
		}
		summary.Count++
		summary.TotalAmount += c.Amount
		if summary.LastClaimAt == nil || c.ObservedAt.After(*summary.LastClaimAt) {
			at := c.ObservedAt
			summary.LastClaimAt = &at
		}
	}
	return summary, nil
}

type memoryPhaseEventRepository struct {
	db *MemoryDatabase
}

func (r *memoryPhaseEventRepository) Append(ctx context.Context, event *entities.PhaseEvent) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	event.ID = int64(len(r.db.phases) + 1)
	cp := *event
	r.db.phases = append(r.db.phases, &cp)
	return nil
}

func (r *memoryPhaseEventRepository) ListRecent(ctx context.Context, limit int) ([]*entities.PhaseEvent, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var out []*entities.PhaseEvent
	for i := len(r.db.phases) - 1; i >= 0 && len(out) < limit; i-- {
		cp := *r.db.phases[i]
		out = append(out, &cp)
	}
	return out, nil
}
