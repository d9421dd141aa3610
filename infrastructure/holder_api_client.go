package infrastructure

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"raffler/domain/entities"

	log "github.com/sirupsen/logrus"
)

// HolderAPIClient reads token holder balances from the holder indexing service
type HolderAPIClient struct {
	baseURL string
	client  *http.Client
}

type holdersResponse struct {
	Holders []entities.Holder `json:"holders"`
}

// NewHolderAPIClient creates a client for GET {baseURL}?minBalance=N
func NewHolderAPIClient(baseURL string, timeout time.Duration) *HolderAPIClient {
	return &HolderAPIClient{baseURL: baseURL, client: newHTTPClient(timeout)}
}

// ListEligibleHolders returns holders strictly above minBalance, each wallet once
func (c *HolderAPIClient) ListEligibleHolders(ctx context.Context, minBalance int64) ([]entities.Holder, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid holder source url: %w", err)
	}
	q := u.Query()
	q.Set("minBalance", strconv.FormatInt(minBalance, 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var resp holdersResponse
	if err := doJSON(ctx, c.client, "holder source", req, &resp); err != nil {
		return nil, err
	}

	// Entries are token accounts; an owner with several accounts gets their sum
	seen := make(map[string]int, len(resp.Holders))
	holders := make([]entities.Holder, 0, len(resp.Holders))
	for _, h := range resp.Holders {
		if h.Wallet == "" || h.Balance <= minBalance || h.Balance <= 0 {
			continue
		}
		if i, dup := seen[h.Wallet]; dup {
			holders[i].Balance = entities.AddBalance(holders[i].Balance, h.Balance)
			continue
		}
		seen[h.Wallet] = len(holders)
		holders = append(holders, h)
	}

	log.WithFields(log.Fields{
		"received": len(resp.Holders),
		"eligible": len(holders),
	}).Debug("Fetched token holders")
	return holders, nil
}
