// Package polymarket reads public market data from the Polymarket CLOB and
// turns it into an immutable per-cycle MarketSnapshot.
package polymarket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/cypherlabdev/odds-arbitrage-service/internal/circuitbreaker"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/metrics"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/models"
	"github.com/cypherlabdev/odds-arbitrage-service/internal/ratelimit"
)

// ProviderName labels this client in metrics
const ProviderName = "polymarket"

const (
	// endCursor marks the last page of the markets listing
	endCursor = "LTE="

	defaultMaxPages  = 500
	quoteConcurrency = 4
	maxResponseBytes = 8 << 20
)

var (
	// ErrNotFound is a 404 from the CLOB
	ErrNotFound = errors.New("polymarket: not found")
	// ErrRateLimited is a 429 from the CLOB
	ErrRateLimited = errors.New("polymarket: rate limited")
)

// Config holds client settings
type Config struct {
	Host              string
	SourceName        string
	SlugPrefix        string
	TeamAbbreviations map[string]string
	Timeout           time.Duration
	RequestsPerMinute int
	MaxPages          int
}

// Client is a read-only CLOB client
type Client struct {
	host       string
	source     string
	maxPages   int
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	cb         *circuitbreaker.CircuitBreaker[*response]
	slugs      *SlugResolver
	metrics    *metrics.Metrics
	logger     zerolog.Logger
}

type response struct {
	status int
	body   []byte
}

// NewClient creates a new CLOB client
func NewClient(cfg Config, m *metrics.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPages := cfg.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	source := cfg.SourceName
	if source == "" {
		source = ProviderName
	}

	c := &Client{
		host:       strings.TrimRight(cfg.Host, "/"),
		source:     source,
		maxPages:   maxPages,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    ratelimit.New(cfg.RequestsPerMinute),
		slugs:      NewSlugResolver(cfg.SlugPrefix, cfg.TeamAbbreviations),
		metrics:    m,
		logger:     logger.With().Str("component", "polymarket_client").Logger(),
	}

	cbCfg := circuitbreaker.DefaultConfig("polymarket-clob")
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
			Msg("circuit breaker state changed")
	}
	c.cb = circuitbreaker.New[*response](cbCfg)

	return c
}

// Source returns the provenance name quotes are attributed to
func (c *Client) Source() string {
	return c.source
}

// Snapshot fetches yes/no best asks for every outcome of records. Outcomes
// whose market or book cannot be found are left out of the snapshot; only a
// failure to list markets is returned as an error.
func (c *Client) Snapshot(ctx context.Context, records []models.EventRecord) (models.MarketSnapshot, error) {
	snapshot := models.MarketSnapshot{
		Source: c.source,
		Quotes: make(map[models.QuoteKey]models.MarketQuote),
	}
	if len(records) == 0 {
		snapshot.FetchedAt = time.Now().UTC()
		return snapshot, nil
	}

	slugs, err := c.ListMarkets(ctx)
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("failed to list markets: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(quoteConcurrency)

	for _, rec := range records {
		for _, outcome := range models.AllOutcomes {
			slug := c.slugs.Slug(rec, outcome)

			conditionID, ok := slugs[slug]
			if !ok {
				c.logger.Debug().Str("event_id", rec.ID).Str("slug", slug).Msg("market not found")
				continue
			}

			g.Go(func() error {
				quote, err := c.Quote(gctx, conditionID)
				if err != nil {
					if gctx.Err() != nil {
						return gctx.Err()
					}
					c.logger.Debug().
						Err(err).
						Str("event_id", rec.ID).
						Str("slug", slug).
						Msg("market quote unavailable")
					return nil
				}

				mu.Lock()
				snapshot.Quotes[models.QuoteKey{EventID: rec.ID, Outcome: outcome}] = quote
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("failed to fetch market quotes: %w", err)
	}

	snapshot.FetchedAt = time.Now().UTC()

	c.logger.Info().
		Int("events", len(records)).
		Int("quotes", len(snapshot.Quotes)).
		Msg("fetched market snapshot")

	return snapshot, nil
}

// ListMarkets walks the paginated markets listing and returns slug to
// condition id.
func (c *Client) ListMarkets(ctx context.Context) (map[string]string, error) {
	slugs := make(map[string]string)
	cursor := ""

	for page := 0; ; page++ {
		if page >= c.maxPages {
			c.logger.Warn().Int("max_pages", c.maxPages).Msg("stopped market listing at page limit")
			break
		}

		q := url.Values{}
		if cursor != "" {
			q.Set("next_cursor", cursor)
		}

		var resp marketsPage
		if err := c.getJSON(ctx, "/markets", q, &resp); err != nil {
			return nil, err
		}

		for _, m := range resp.Data {
			if m.MarketSlug != "" && m.ConditionID != "" {
				slugs[m.MarketSlug] = m.ConditionID
			}
		}

		cursor = resp.NextCursor
		if cursor == "" || cursor == endCursor {
			break
		}
	}

	c.logger.Debug().Int("markets", len(slugs)).Msg("listed markets")
	return slugs, nil
}

// Quote returns the yes and no best asks of a binary market
func (c *Client) Quote(ctx context.Context, conditionID string) (models.MarketQuote, error) {
	var m market
	if err := c.getJSON(ctx, "/markets/"+url.PathEscape(conditionID), nil, &m); err != nil {
		return models.MarketQuote{}, err
	}

	var yesToken, noToken string
	for _, t := range m.Tokens {
		switch {
		case strings.EqualFold(t.Outcome, "yes"):
			yesToken = t.TokenID
		case strings.EqualFold(t.Outcome, "no"):
			noToken = t.TokenID
		}
	}
	if yesToken == "" {
		return models.MarketQuote{}, fmt.Errorf("market %s has no yes token: %w", conditionID, models.ErrSecondSourceUnavailable)
	}

	yesAsk, err := c.BestAsk(ctx, yesToken)
	if err != nil {
		return models.MarketQuote{}, err
	}

	quote := models.MarketQuote{YesAsk: yesAsk}
	if noToken != "" {
		noAsk, err := c.BestAsk(ctx, noToken)
		if err != nil && ctx.Err() != nil {
			return models.MarketQuote{}, err
		}
		// A missing no-side book only drops the converse price
		if err == nil {
			quote.NoAsk = noAsk
		}
	}

	return quote, nil
}

// BestAsk returns the lowest ask in a token's order book. An empty ask
// side yields an invalid NullDecimal.
func (c *Client) BestAsk(ctx context.Context, tokenID string) (decimal.NullDecimal, error) {
	q := url.Values{}
	q.Set("token_id", tokenID)

	var book orderBook
	if err := c.getJSON(ctx, "/book", q, &book); err != nil {
		return decimal.NullDecimal{}, err
	}

	return bestAsk(book.Asks), nil
}

func bestAsk(asks []bookLevel) decimal.NullDecimal {
	var best decimal.NullDecimal
	for _, level := range asks {
		price, err := decimal.NewFromString(strings.TrimSpace(level.Price))
		if err != nil || !price.IsPositive() {
			continue
		}
		if !best.Valid || price.LessThan(best.Decimal) {
			best = decimal.NewNullDecimal(price)
		}
	}
	return best
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("failed to wait for rate limiter: %w", err)
	}

	endpoint := c.host + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	resp, err := c.cb.Execute(func() (*response, error) {
		return c.do(ctx, endpoint)
	})
	if err == nil {
		err = checkHTTPStatus(resp.status, resp.body)
	}
	c.metrics.ObserveProvider(ProviderName, err)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}

	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

// do performs the request. Only transport errors and server-side statuses
// count against the breaker; client errors come back as a response.
func (c *Client) do(ctx context.Context, endpoint string) (*response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	resp := &response{status: httpResp.StatusCode, body: body}
	if httpResp.StatusCode >= http.StatusInternalServerError {
		return nil, checkHTTPStatus(resp.status, resp.body)
	}
	return resp, nil
}

func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := strings.TrimSpace(string(body))
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
