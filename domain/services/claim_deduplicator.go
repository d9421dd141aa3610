package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"raffler/domain/entities"
	"raffler/domain/interfaces"

	log "github.com/sirupsen/logrus"
)

// WatermarkKey holds the last claim that drove a finished draw
const WatermarkKey = "raffle:claim_watermark"

const (
	ledgerSourceName   = "ledger"
	ledgerLookupLimit  = 50
	maxWatermarkWrites = 5
)

// ErrVersionConflict is returned when a check-then-write keeps losing to concurrent writers
var ErrVersionConflict = errors.New("concurrent update conflict")

// claimDeduplicator is the single arbiter deciding whether a funding event may
// trigger a draw, whichever ingestion path observed it first
type claimDeduplicator struct {
	uowFactory interfaces.UnitOfWorkFactory
	store      interfaces.KeyValueStore
	sources    []interfaces.ClaimSource
}

// NewClaimDeduplicator creates a deduplicator over the claim ledger plus any polled sources
func NewClaimDeduplicator(uowFactory interfaces.UnitOfWorkFactory, store interfaces.KeyValueStore, sources ...interfaces.ClaimSource) interfaces.ClaimDeduplicator {
	return &claimDeduplicator{
		uowFactory: uowFactory,
		store:      store,
		sources:    sources,
	}
}

// Watermark returns the current watermark; a missing key is the zero watermark
func (d *claimDeduplicator) Watermark(ctx context.Context) (entities.ClaimWatermark, error) {
	wm, _, err := d.readWatermark(ctx)
	return wm, err
}

func (d *claimDeduplicator) readWatermark(ctx context.Context) (entities.ClaimWatermark, string, error) {
	raw, err := d.store.Get(ctx, WatermarkKey)
	if errors.Is(err, interfaces.ErrKeyNotFound) {
		return entities.ClaimWatermark{}, "", nil
	}
	if err != nil {
		return entities.ClaimWatermark{}, "", fmt.Errorf("failed to read claim watermark: %w", err)
	}

	var wm entities.ClaimWatermark
	if err := json.Unmarshal([]byte(raw), &wm); err != nil {
		return entities.ClaimWatermark{}, "", fmt.Errorf("failed to decode claim watermark: %w", err)
	}
	return wm, raw, nil
}

// DetectNewClaim returns the newest candidate admitted by the watermark, or nil.
// Unreachable sources are skipped; when none can be read the answer is nil.
func (d *claimDeduplicator) DetectNewClaim(ctx context.Context) (*entities.ClaimEvent, error) {
	wm, err := d.Watermark(ctx)
	if err != nil {
		log.WithError(err).Warn("Claim watermark unavailable, treating as no new claim")
		return nil, nil
	}

	var candidates []entities.ClaimEvent
	reachable := 0

	for _, src := range d.sources {
		polled, err := src.PollRecentFundingEvents(ctx)
		if err != nil {
			log.WithFields(log.Fields{
				"source": src.Name(),
				"error":  err,
			}).Warn("Claim source unreachable")
			continue
		}
		reachable++

		for _, c := range polled {
			if c.Source == "" {
				c.Source = src.Name()
			}
			if err := c.Validate(); err != nil {
				log.WithError(err).WithField("source", src.Name()).Warn("Dropping malformed claim")
				continue
			}
			if _, err := d.record(ctx, &c); err != nil {
				log.WithError(err).WithField("signature", c.Signature).Warn("Failed to record polled claim")
			}
			candidates = append(candidates, c)
		}
	}

	ledger, err := d.ledgerCandidates(ctx, wm)
	if err != nil {
		log.WithError(err).Warn("Claim ledger unreachable")
	} else {
		reachable++
		candidates = append(candidates, ledger...)
	}

	if reachable == 0 {
		log.Warn("No claim source reachable, treating as no new claim")
		return nil, nil
	}

	admitted := make([]entities.ClaimEvent, 0, len(candidates))
	for _, c := range candidates {
		if wm.Admits(c) {
			admitted = append(admitted, c)
		}
	}
	if len(admitted) == 0 {
		return nil, nil
	}

	sort.Slice(admitted, func(i, j int) bool {
		if !admitted[i].ObservedAt.Equal(admitted[j].ObservedAt) {
			return admitted[i].ObservedAt.After(admitted[j].ObservedAt)
		}
		return admitted[i].Signature < admitted[j].Signature
	})

	claim := admitted[0]
	log.WithFields(log.Fields{
		"signature":  claim.Signature,
		"amount":     claim.Amount,
		"observedAt": claim.ObservedAt,
		"source":     claim.Source,
		"candidates": len(admitted),
	}).Info("New claim detected")
	return &claim, nil
}

func (d *claimDeduplicator) ledgerCandidates(ctx context.Context, wm entities.ClaimWatermark) ([]entities.ClaimEvent, error) {
	uow := d.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	recorded, err := uow.ClaimRepository().ListAfter(ctx, wm.ObservedAt, ledgerLookupLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recorded claims: %w", err)
	}

	claims := make([]entities.ClaimEvent, 0, len(recorded))
	for _, c := range recorded {
		claims = append(claims, *c)
	}
	return claims, nil
}

func (d *claimDeduplicator) record(ctx context.Context, claim *entities.ClaimEvent) (bool, error) {
	uow := d.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	created, err := uow.ClaimRepository().Record(ctx, claim)
	if err != nil {
		return false, fmt.Errorf("failed to record claim: %w", err)
	}
	if err := uow.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit claim: %w", err)
	}
	return created, nil
}

// Ingest records a claim delivered by push or poll into the ledger and reports
// whether it is newer than the watermark
func (d *claimDeduplicator) Ingest(ctx context.Context, claim entities.ClaimEvent) (bool, error) {
	if err := claim.Validate(); err != nil {
		return false, err
	}

	created, err := d.record(ctx, &claim)
	if err != nil {
		return false, err
	}

	wm, err := d.Watermark(ctx)
	if err != nil {
		return false, err
	}
	admitted := wm.Admits(claim)

	log.WithFields(log.Fields{
		"signature": claim.Signature,
		"source":    claim.Source,
		"duplicate": !created,
		"admitted":  admitted,
	}).Info("Claim ingested")
	return admitted, nil
}

// Commit advances the watermark to claim. It never moves the watermark backwards,
// so committing an already covered claim is a no-op.
func (d *claimDeduplicator) Commit(ctx context.Context, claim entities.ClaimEvent) error {
	next, err := json.Marshal(entities.ClaimWatermark{
		Signature:  claim.Signature,
		ObservedAt: claim.ObservedAt.UTC().Truncate(time.Microsecond),
	})
	if err != nil {
		return fmt.Errorf("failed to encode claim watermark: %w", err)
	}

	for attempt := 0; attempt < maxWatermarkWrites; attempt++ {
		wm, raw, err := d.readWatermark(ctx)
		if err != nil {
			return err
		}
		if !wm.Admits(claim) {
			return nil
		}

		var ok bool
		if raw == "" {
			ok, err = d.store.PutIfAbsent(ctx, WatermarkKey, string(next), 0)
		} else {
			ok, err = d.store.CompareAndSwap(ctx, WatermarkKey, raw, string(next), 0)
		}
		if err != nil {
			return fmt.Errorf("failed to write claim watermark: %w", err)
		}
		if ok {
			log.WithFields(log.Fields{
				"signature":  claim.Signature,
				"observedAt": claim.ObservedAt,
			}).Info("Claim watermark advanced")
			return nil
		}
	}

	return fmt.Errorf("failed to advance claim watermark: %w", ErrVersionConflict)
}
