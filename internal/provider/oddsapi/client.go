// Package oddsapi fetches head-to-head bookmaker odds from The Odds API v4.
package oddsapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/circuitbreaker"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/metrics"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/ratelimit"
)

// ProviderName labels this client in metrics
const ProviderName = "oddsapi"

const (
	headerRequestsRemaining = "x-requests-remaining"
	headerRequestsUsed      = "x-requests-used"

	maxResponseBytes = 32 << 20
)

// ErrMissingAPIKey is returned before any request when no key is configured
var ErrMissingAPIKey = errors.New("odds api key is not configured")

// StatusError is a non-200 reply from the API
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("odds api returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Config holds client settings
type Config struct {
	BaseURL           string
	APIKey            string
	Sport             string
	Regions           string
	Timeout           time.Duration
	RequestsPerMinute int
}

// Client is the bookmaker feed client
type Client struct {
	baseURL    string
	apiKey     string
	sport      string
	regions    string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cb         *circuitbreaker.CircuitBreaker[*response]
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type response struct {
	status int
	body   []byte
}

// NewClient creates a new Odds API client
func NewClient(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		sport:      cfg.Sport,
		regions:    cfg.Regions,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    ratelimit.New(cfg.RequestsPerMinute),
		metrics:    m,
		logger:     logger.With().Str("component", "oddsapi_client").Logger(),
	}

	cbCfg := circuitbreaker.DefaultConfig("oddsapi")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	c.cb = circuitbreaker.New[*response](cbCfg)

	return c
}

// FetchOdds returns the current h2h feed for the configured sport
func (c *Client) FetchOdds(ctx context.Context) ([]models.RawEvent, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	var events []models.RawEvent
	resp, err := c.cb.Execute(func() (*response, error) {
		return c.do(ctx)
	})
	if err == nil {
		events, err = decodeOdds(resp)
	}
	c.metrics.ObserveProvider(ProviderName, err)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch odds: %w", err)
	}

	c.logger.Debug().
		Str("sport", c.sport).
		Int("events", len(events)).
		Msg("fetched bookmaker odds")

	return events, nil
}

func (c *Client) oddsURL() string {
	q := url.Values{}
	q.Set("apiKey", c.apiKey)
	q.Set("regions", c.regions)
	q.Set("markets", models.H2HMarket)
	q.Set("oddsFormat", "decimal")
	q.Set("dateFormat", "iso")

	return fmt.Sprintf("%s/v4/sports/%s/odds?%s", c.baseURL, url.PathEscape(c.sport), q.Encode())
}

// do performs the request. Only transport errors and 5xx replies count
// against the breaker; 4xx replies are configuration problems.
func (c *Client) do(ctx context.Context) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.oddsURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.recordQuota(resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return &response{status: resp.StatusCode, body: body}, nil
}

func decodeOdds(resp *response) ([]models.RawEvent, error) {
	if resp.status != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.status, Body: strings.TrimSpace(string(resp.body))}
	}

	var events []models.RawEvent
	if err := json.Unmarshal(resp.body, &events); err != nil {
		return nil, fmt.Errorf("failed to decode odds: %w", err)
	}

	return events, nil
}

func (c *Client) recordQuota(h http.Header) {
	remaining := h.Get(headerRequestsRemaining)
	used := h.Get(headerRequestsUsed)
	if remaining == "" && used == "" {
		return
	}

	if n, err := strconv.ParseFloat(remaining, 64); err == nil {
		c.metrics.OddsAPIRequestsRemaining.Set(n)
	}

	c.logger.Info().
		Str("requests_remaining", remaining).
		Str("requests_used", used).
		Msg("odds api quota")
}
