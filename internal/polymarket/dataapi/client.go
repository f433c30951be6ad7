package dataapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/liamashdown/whaleconsensus/internal/config"
	"github.com/liamashdown/whaleconsensus/internal/metrics"
	"github.com/liamashdown/whaleconsensus/internal/ratelimit"
)

// Client handles communication with the Polymarket Data API
type Client struct {
	baseURL          string
	httpClient       *http.Client
	authMode         config.AuthMode
	bearerToken      string
	apiKey           string
	extraHeaders     map[string]string
	positionsLimiter *ratelimit.Limiter
	activityLimiter  *ratelimit.Limiter
}

// NewClient creates a new Data API client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:          strings.TrimRight(cfg.DataAPIBaseURL, "/"),
		httpClient:       &http.Client{Timeout: 30 * time.Second},
		authMode:         cfg.DataAPIAuthMode,
		bearerToken:      cfg.DataAPIBearerToken,
		apiKey:           cfg.DataAPIAPIKey,
		extraHeaders:     cfg.DataAPIExtraHeaders,
		positionsLimiter: ratelimit.New(cfg.DataAPIPositionsRPS),
		activityLimiter:  ratelimit.New(cfg.DataAPIActivityRPS),
	}
}

// GetPositions fetches a wallet's open positions
func (c *Client) GetPositions(ctx context.Context, wallet string) ([]Position, error) {
	q := url.Values{}
	q.Set("user", strings.ToLower(wallet))

	var positions []Position
	if err := c.get(ctx, c.positionsLimiter, "/positions", q, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// GetActivity fetches up to limit of a wallet's most recent activity events
func (c *Client) GetActivity(ctx context.Context, wallet string, limit int) ([]Activity, error) {
	q := url.Values{}
	q.Set("user", strings.ToLower(wallet))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var activity []Activity
	if err := c.get(ctx, c.activityLimiter, "/activity", q, &activity); err != nil {
		return nil, err
	}
	return activity, nil
}

func (c *Client) get(ctx context.Context, limiter *ratelimit.Limiter, path string, q url.Values, out any) (err error) {
	start := time.Now()
	defer func() {
		metrics.RecordAPIRequest("data", path, time.Since(start), err)
	}()

	// Rate limit
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("parse URL: %w", err)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("401 Unauthorized (auth_mode=%s) - check credentials", c.authMode)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	switch c.authMode {
	case config.AuthModeBearer:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-KEY", c.apiKey)
	case config.AuthModeNone:
		// No auth headers
	}

	// Add extra headers
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
}
