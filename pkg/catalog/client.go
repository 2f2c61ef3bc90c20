package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const providerName = "anilist"

// Client queries the AniList GraphQL API. Requests are rate limited and
// successful responses are cached by query and variables.
type Client struct {
	endpoint   string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *expirable.LRU[string, []byte]
	logger     *observability.Logger
	metrics    *observability.Metrics
}

// NewClient creates an AniList client. A non-positive cache size or TTL
// disables caching; a non-positive rate disables limiting.
func NewClient(providers config.ProvidersConfig, cache config.CacheConfig, logger *observability.Logger, metrics *observability.Metrics) *Client {
	if logger == nil {
		logger = observability.Default()
	}
	timeout := providers.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		endpoint: providers.AniListURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		limiter: rate.NewLimiter(rate.Inf, 0),
		logger:  logger,
		metrics: metrics,
	}
	if providers.RequestsPerSec > 0 {
		burst := providers.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(providers.RequestsPerSec), burst)
	}
	if cache.CatalogSize > 0 && cache.CatalogTTL > 0 {
		c.cache = expirable.NewLRU[string, []byte](cache.CatalogSize, nil, cache.CatalogTTL)
	}
	return c
}

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// query posts a GraphQL query and decodes its data into dest.
func (c *Client) query(ctx context.Context, query string, vars map[string]interface{}, dest interface{}) error {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	key := string(body)

	if c.cache != nil {
		if data, ok := c.cache.Get(key); ok {
			c.metrics.ObserveCache("catalog", true)
			return json.Unmarshal(data, dest)
		}
		c.metrics.ObserveCache("catalog", false)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveProvider(providerName, 0, time.Since(start))
		return apperr.ErrUpstream.WithCause(err)
	}
	defer resp.Body.Close()
	c.metrics.ObserveProvider(providerName, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WithFields(map[string]interface{}{
			"status": resp.StatusCode,
			"body":   strings.TrimSpace(string(msg)),
		}).Warn("anilist request failed")
		return apperr.ErrUpstream.WithCause(fmt.Errorf("anilist returned %d", resp.StatusCode))
	}

	var out graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return apperr.ErrUpstream.WithCause(fmt.Errorf("failed to decode anilist response: %w", err))
	}
	if len(out.Errors) > 0 {
		return apperr.ErrUpstream.WithCause(fmt.Errorf("anilist: %s", out.Errors[0].Message))
	}
	if err := json.Unmarshal(out.Data, dest); err != nil {
		return apperr.ErrUpstream.WithCause(fmt.Errorf("failed to decode anilist data: %w", err))
	}

	if c.cache != nil {
		c.cache.Add(key, out.Data)
	}
	return nil
}

const searchQuery = `
query ($search: String, $page: Int, $perPage: Int) {
  Page(page: $page, perPage: $perPage) {
    media(search: $search, type: ANIME, sort: POPULARITY_DESC) {
      id
      title { romaji english native }
      episodes
      seasonYear
      format
      genres
      coverImage { large }
      description(asHtml: false)
    }
  }
}`

// SearchLimit is the number of results Search returns.
const SearchLimit = 10

// Search returns the most popular anime matching q. An empty query returns
// no results without calling the provider.
func (c *Client) Search(ctx context.Context, q string) ([]Media, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return []Media{}, nil
	}

	var data struct {
		Page struct {
			Media []Media `json:"media"`
		} `json:"Page"`
	}
	if err := c.query(ctx, searchQuery, map[string]interface{}{"search": q, "page": 1, "perPage": SearchLimit}, &data); err != nil {
		return nil, err
	}
	if data.Page.Media == nil {
		return []Media{}, nil
	}
	return data.Page.Media, nil
}
