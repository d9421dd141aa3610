package infrastructure

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// TransferAPIClient submits transfers to the signing service
type TransferAPIClient struct {
	url    string
	client *http.Client
}

type transferRequest struct {
	Destination string `json:"destination"`
	Amount      int64  `json:"amount"`
}

type transferResponse struct {
	Reference string `json:"reference"`
}

func NewTransferAPIClient(url string, timeout time.Duration) *TransferAPIClient {
	return &TransferAPIClient{url: url, client: newHTTPClient(timeout)}
}

// Transfer posts the transfer with an Idempotency-Key header and returns the
// confirmed reference. The service returns the original reference for a repeated key.
func (c *TransferAPIClient) Transfer(ctx context.Context, destination string, amount int64, idempotencyKey string) (string, error) {
	body, err := json.Marshal(transferRequest{Destination: destination, Amount: amount})
	if err != nil {
		return "", fmt.Errorf("failed to encode transfer: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", idempotencyKey)

	var resp transferResponse
	if err := doJSON(ctx, c.client, "transfer service", req, &resp); err != nil {
		return "", err
	}
	if resp.Reference == "" {
		return "", fmt.Errorf("transfer service returned no reference for %s", destination)
	}
	return resp.Reference, nil
}
