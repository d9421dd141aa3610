package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"raffler/domain/entities"
)

// TrackerClaimSource polls the rewards tracker for recent funding events
type TrackerClaimSource struct {
	baseURL string
	limit   int
	client  *http.Client
}

type trackerResponse struct {
	Claims json.RawMessage `json:"claims"`
}

func NewTrackerClaimSource(baseURL string, timeout time.Duration) *TrackerClaimSource {
	return &TrackerClaimSource{baseURL: baseURL, limit: 10, client: newHTTPClient(timeout)}
}

func (s *TrackerClaimSource) Name() string {
	return "tracker"
}

// PollRecentFundingEvents returns the tracker's latest claims
func (s *TrackerClaimSource) PollRecentFundingEvents(ctx context.Context) ([]entities.ClaimEvent, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid claim tracker url: %w", err)
	}
	q := u.Query()
	q.Set("limit", fmt.Sprint(s.limit))
	u.RawQuery = q.Encode()

	req, err := http.NewRequest(http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}

	var resp trackerResponse
	if err := doJSON(ctx, s.client, "claim tracker", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Claims) == 0 {
		return nil, nil
	}
	return ParseClaimNotifications(resp.Claims, s.Name())
}
