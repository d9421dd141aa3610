package infrastructure

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"raffler/domain/entities"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// LamportsPerSOL converts SOL amounts to integer lamports
var LamportsPerSOL = decimal.NewFromInt(1_000_000_000)

// ClaimNotification is a funding event as reported by trackers and webhooks.
// Amount is in lamports; AmountSOL is used when Amount is absent and is floored
// to whole lamports.
type ClaimNotification struct {
	Signature string           `json:"signature"`
	Timestamp int64            `json:"timestamp"` // unix seconds
	Amount    *int64           `json:"amount,omitempty"`
	AmountSOL *decimal.Decimal `json:"amountSol,omitempty"`
}

// Normalize converts the notification into a claim event
func (n ClaimNotification) Normalize(source string) (entities.ClaimEvent, error) {
	claim := entities.ClaimEvent{
		Signature:  strings.TrimSpace(n.Signature),
		ObservedAt: time.Unix(n.Timestamp, 0).UTC(),
		Source:     source,
	}
	if n.Timestamp <= 0 {
		return claim, fmt.Errorf("claim %q has no timestamp", n.Signature)
	}

	switch {
	case n.Amount != nil:
		claim.Amount = *n.Amount
	case n.AmountSOL != nil:
		lamports := n.AmountSOL.Mul(LamportsPerSOL)
		floored := lamports.Floor()
		if !lamports.Equal(floored) {
			log.WithFields(log.Fields{
				"signature": n.Signature,
				"amountSol": n.AmountSOL.String(),
				"lamports":  floored.IntPart(),
			}).Debug("Claim amount finer than one lamport, rounding down")
		}
		claim.Amount = floored.IntPart()
	default:
		return claim, fmt.Errorf("claim %q has no amount", n.Signature)
	}

	if err := claim.Validate(); err != nil {
		return claim, err
	}
	return claim, nil
}

// ParseClaimNotifications decodes a single notification or an array of them.
// Entries that fail to normalize are logged and skipped.
func ParseClaimNotifications(body []byte, source string) ([]entities.ClaimEvent, error) {
	trimmed := strings.TrimSpace(string(body))
	var notifications []ClaimNotification
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(body, &notifications); err != nil {
			return nil, fmt.Errorf("failed to decode claim notifications: %w", err)
		}
	} else {
		var single ClaimNotification
		if err := json.Unmarshal(body, &single); err != nil {
			return nil, fmt.Errorf("failed to decode claim notification: %w", err)
		}
		notifications = []ClaimNotification{single}
	}

	claims := make([]entities.ClaimEvent, 0, len(notifications))
	for _, n := range notifications {
		claim, err := n.Normalize(source)
		if err != nil {
			log.WithFields(log.Fields{
				"source": source,
				"error":  err,
			}).Warn("Skipping malformed claim notification")
			continue
		}
		claims = append(claims, claim)
	}
	return claims, nil
}

// VerifyWebhookSignature checks an HMAC-SHA256 hex digest of body, optionally
// prefixed with "sha256=", in constant time
func VerifyWebhookSignature(secret string, body []byte, header string) bool {
	if secret == "" || header == "" {
		return false
	}
	given, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(header), "sha256="))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(given, mac.Sum(nil))
}

// SignWebhookBody returns the header value VerifyWebhookSignature accepts
func SignWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
