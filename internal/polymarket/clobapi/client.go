package clobapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/ratelimit"
)

// Client handles communication with the Polymarket CLOB API
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
}

// NewClient creates a new CLOB API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.ClobAPIBaseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		limiter:    ratelimit.New(cfg.ClobAPIPricesRPS),
	}
}

// PricePoint is one sample of a token's price history
type PricePoint struct {
	T int64   `json:"t"`
	P float64 `json:"p"`
}

type historyResponse struct {
	History []PricePoint `json:"history"`
}

// PriceHistory fetches a token's hourly prices over interval ("1d", "1w", ...)
func (c *Client) PriceHistory(ctx context.Context, tokenID, interval string) (history []PricePoint, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest("clob", "/prices-history", time.Since(start), err)
	}()

	// Rate limit
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.baseURL + "/prices-history")
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	q := u.Query()
	q.Set("market", tokenID)
	q.Set("interval", interval)
	q.Set("fidelity", "60")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var out historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.History, nil
}

// Average returns the mean price of the history, false when it is empty
func Average(history []PricePoint) (float64, bool) {
	if len(history) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, p := range history {
		sum += p.P
	}
	return sum / float64(len(history)), true
}
