package interfaces

import (
	"context"
	"time"
)

// DrawMetrics receives draw and payout measurements
type DrawMetrics interface {
	RecordDrawOutcome(ctx context.Context, result, reason string, duration time.Duration)
	RecordPayout(ctx context.Context, kind string, success bool, amount int64)
	RecordLockContention(ctx context.Context)
}
