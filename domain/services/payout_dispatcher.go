package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raffler/domain/interfaces"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// payoutDispatcher sends each payout at most once per idempotency key
type payoutDispatcher struct {
	store    interfaces.KeyValueStore
	executor interfaces.TransferExecutor
	keyTTL   time.Duration
}

// NewPayoutDispatcher creates a dispatcher remembering transfer references for keyTTL
func NewPayoutDispatcher(store interfaces.KeyValueStore, executor interfaces.TransferExecutor, keyTTL time.Duration) interfaces.PayoutDispatcher {
	return &payoutDispatcher{
		store:    store,
		executor: executor,
		keyTTL:   keyTTL,
	}
}

// PayoutKey is the idempotency key of a winner payout within a draw
func PayoutKey(drawID uuid.UUID, wallet string) string {
	return fmt.Sprintf("payout:%s:%s", drawID, wallet)
}

// SecondaryPayoutKey keeps the secondary share distinct from a winner payout to the same wallet
func SecondaryPayoutKey(drawID uuid.UUID, wallet string) string {
	return fmt.Sprintf("payout:%s:secondary:%s", drawID, wallet)
}

// Payout transfers amount to a winner unless a reference is already recorded for this draw
func (d *payoutDispatcher) Payout(ctx context.Context, drawID uuid.UUID, wallet string, amount int64) (string, error) {
	return d.payout(ctx, PayoutKey(drawID, wallet), wallet, amount)
}

// PayoutSecondary transfers the secondary share
func (d *payoutDispatcher) PayoutSecondary(ctx context.Context, drawID uuid.UUID, wallet string, amount int64) (string, error) {
	return d.payout(ctx, SecondaryPayoutKey(drawID, wallet), wallet, amount)
}

func (d *payoutDispatcher) payout(ctx context.Context, key, wallet string, amount int64) (string, error) {
	existing, err := d.store.Get(ctx, key)
	if err == nil && existing != "" {
		log.WithFields(log.Fields{
			"key":       key,
			"reference": existing,
		}).Info("Payout already sent, reusing transfer reference")
		return existing, nil
	}
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		// Without the key we cannot prove the transfer was not sent
		return "", fmt.Errorf("failed to check payout idempotency key: %w", err)
	}

	if amount <= 0 {
		return "", fmt.Errorf("payout amount must be positive, got %d", amount)
	}

	reference, err := d.executor.Transfer(ctx, wallet, amount, key)
	if err != nil {
		return "", fmt.Errorf("failed to transfer %d to %s: %w", amount, wallet, err)
	}

	if err := d.store.Put(ctx, key, reference, d.keyTTL); err != nil {
		log.WithFields(log.Fields{
			"key":       key,
			"reference": reference,
			"error":     err,
		}).Error("Transfer sent but idempotency key not stored")
	}

	log.WithFields(log.Fields{
		"wallet":    wallet,
		"amount":    amount,
		"reference": reference,
	}).Info("Payout sent")
	return reference, nil
}
