package entities

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ref(s string) *string { return &s }

func TestDrawIDForClaim(t *testing.T) {
	t.Parallel()

	a := DrawIDForClaim("sig-1")
	assert.Equal(t, a, DrawIDForClaim("sig-1"))
	assert.NotEqual(t, a, DrawIDForClaim("sig-2"))
}

func TestDraw_Finish(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		initial    DrawStatus
		finishWith DrawStatus
		expected   DrawStatus
	}{
		{name: "pending to completed", initial: DrawStatusPending, finishWith: DrawStatusCompleted, expected: DrawStatusCompleted},
		{name: "pending to failed", initial: DrawStatusPending, finishWith: DrawStatusFailed, expected: DrawStatusFailed},
		{name: "completed is immutable", initial: DrawStatusCompleted, finishWith: DrawStatusFailed, expected: DrawStatusCompleted},
		{name: "failed is immutable", initial: DrawStatusFailed, finishWith: DrawStatusCompleted, expected: DrawStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := &Draw{Status: tt.initial}
			d.Finish(tt.finishWith, time.Now())
			assert.Equal(t, tt.expected, d.Status)
			assert.Equal(t, tt.initial == DrawStatusPending, d.EndedAt != nil)
		})
	}
}

func TestDraw_PaymentAccounting(t *testing.T) {
	t.Parallel()

	d := &Draw{
		SecondaryShare: 50,
		SecondaryRef:   ref("tx-secondary"),
		Winners: []*WinnerRecord{
			{Wallet: "a", PayoutAmount: 300, TransferReference: ref("tx-a")},
			{Wallet: "b", PayoutAmount: 300},
			{Wallet: "c", PayoutAmount: 300, TransferReference: ref("")},
		},
	}

	unpaid := d.UnpaidWinners()
	assert.Len(t, unpaid, 2)
	assert.Equal(t, "b", unpaid[0].Wallet)
	assert.Equal(t, "c", unpaid[1].Wallet)
	assert.Equal(t, 1, d.PaidCount())
	assert.Equal(t, int64(350), d.DistributedAmount())

	unpaid[0].MarkPaid("tx-b", time.Now())
	assert.Equal(t, 2, d.PaidCount())
	assert.Equal(t, int64(650), d.DistributedAmount())
}

func TestClaimWatermark_Admits(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	wm := ClaimWatermark{Signature: "sig-1", ObservedAt: base}

	tests := []struct {
		name     string
		claim    ClaimEvent
		expected bool
	}{
		{name: "newer claim", claim: ClaimEvent{Signature: "sig-2", ObservedAt: base.Add(time.Second)}, expected: true},
		{name: "same signature", claim: ClaimEvent{Signature: "sig-1", ObservedAt: base.Add(time.Hour)}, expected: false},
		{name: "same time", claim: ClaimEvent{Signature: "sig-2", ObservedAt: base}, expected: false},
		{name: "older claim", claim: ClaimEvent{Signature: "sig-0", ObservedAt: base.Add(-time.Minute)}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, wm.Admits(tt.claim))
		})
	}

	assert.True(t, ClaimWatermark{}.Admits(ClaimEvent{Signature: "first", ObservedAt: base}))
}

func TestClaimEvent_Validate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	assert.NoError(t, (&ClaimEvent{Signature: "s", ObservedAt: now, Amount: 1}).Validate())
	assert.Error(t, (&ClaimEvent{ObservedAt: now}).Validate())
	assert.Error(t, (&ClaimEvent{Signature: "s"}).Validate())
	assert.Error(t, (&ClaimEvent{Signature: "s", ObservedAt: now, Amount: -1}).Validate())
}

func TestTotals_Apply(t *testing.T) {
	t.Parallel()

	at := time.Now()
	d := &Draw{
		ID:      DrawIDForClaim("sig"),
		Winners: []*WinnerRecord{{PayoutAmount: 10, TransferReference: ref("tx")}},
	}

	totals := Totals{TotalDistributed: 100, DrawCount: 2}.Apply(d, at)
	assert.Equal(t, int64(110), totals.TotalDistributed)
	assert.Equal(t, int64(3), totals.DrawCount)
	assert.Equal(t, d.ID, *totals.LastDrawID)
	assert.Equal(t, at, *totals.LastDrawAt)
}

func TestDrawLock_Expired(t *testing.T) {
	t.Parallel()

	now := time.Now()
	lock := &DrawLock{Token: "t", ExpiresAt: now.Add(time.Minute)}
	assert.False(t, lock.Expired(now))
	assert.True(t, lock.Expired(now.Add(time.Minute)))
}
