package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"blogpulse/pkg/event"
)

// BatchPath is where batches are posted, relative to the API base URL
const BatchPath = "/api/analytics/track/batch"

// Transport delivers one batch
type Transport interface {
	Send(ctx context.Context, events []Event) error
}

// HTTPTransport posts batches as {"events":[...]}
type HTTPTransport struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// NewHTTPTransport creates a transport. A nil client gets a 10s timeout
// client with no cookie jar.
func NewHTTPTransport(baseURL string, client *http.Client, userAgent string) *HTTPTransport {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPTransport{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		userAgent: userAgent,
	}
}

func (t *HTTPTransport) Send(ctx context.Context, events []Event) error {
	body, err := json.Marshal(event.Batch{Events: events})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+BatchPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("batch rejected with status %d", resp.StatusCode)
	}
	return nil
}
