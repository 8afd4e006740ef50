package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"taquilla/internal/models"
)

// HTTPFetcher читает статус оплаты из API сервиса
type HTTPFetcher struct {
	baseURL  string
	client   *http.Client
	username string
	password string
}

func NewHTTPFetcher(baseURL string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// WithBasicAuth sets credentials for deployments running with Basic Auth.
func (f *HTTPFetcher) WithBasicAuth(username, password string) *HTTPFetcher {
	f.username = username
	f.password = password
	return f
}

func (f *HTTPFetcher) FetchStatus(ctx context.Context, intentID string) (*models.StatusResponse, error) {
	endpoint := f.baseURL + "/api/checkout/status/" + url.PathEscape(intentID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if f.username != "" {
		req.SetBasicAuth(f.username, f.password)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var status models.StatusResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to decode status: %w", err)
	}
	return &status, nil
}
