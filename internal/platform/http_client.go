package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/trungvu/bridge-worker/internal/models"
)

// HTTPSource is a minimal client for the point-of-sale API, reading the
// current spend total or stock quantity for one record.
type HTTPSource struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPSource(baseURL, token string) *HTTPSource {
	return &HTTPSource{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPSource) FetchValue(ctx context.Context, kind models.MappingKind, sourceID string) (float64, error) {
	url := fmt.Sprintf("%s/%ss/%s", c.baseURL, kind, sourceID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call source API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("source API returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload struct {
		TotalSpent *float64 `json:"total_spent"`
		Quantity   *float64 `json:"quantity"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("failed to parse response: %w", err)
	}

	switch kind {
	case models.KindCustomer:
		if payload.TotalSpent == nil {
			return 0, fmt.Errorf("source API response missing total_spent")
		}
		return *payload.TotalSpent, nil
	case models.KindProduct:
		if payload.Quantity == nil {
			return 0, fmt.Errorf("source API response missing quantity")
		}
		return *payload.Quantity, nil
	default:
		return 0, fmt.Errorf("unknown mapping kind %q", kind)
	}
}

// HTTPTarget is a minimal client for the storefront API, pushing a metric
// value to one record. A 429 response is classified as ErrRateLimited.
type HTTPTarget struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPTarget(baseURL, token string) *HTTPTarget {
	return &HTTPTarget{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *HTTPTarget) PushValue(ctx context.Context, kind models.MappingKind, targetID string, value float64) error {
	field := "total_spent"
	if kind == models.KindProduct {
		field = "quantity"
	}

	reqBody, err := json.Marshal(map[string]interface{}{field: value})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/%ss/%s", c.baseURL, kind, targetID)
	req, err := http.NewRequestWithContext(ctx, "PUT", url, bytes.NewBuffer(reqBody))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call target API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("target API returned status 429: %w", ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("target API returned status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
