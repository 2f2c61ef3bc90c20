package news

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/platinummonkey/watchlist/pkg/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"
)

const (
	// Source is reported on every item.
	Source = "Crunchyroll"
	// MaxItems is the number of items returned.
	MaxItems = 8

	defaultImageLookups = 12
	imageLookupWorkers  = 4
	maxPageBytes        = 512 << 10
	cacheKey            = "latest"
)

// Item is a news headline.
type Item struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	URL    string     `json:"url,omitempty"`
	Date   *time.Time `json:"date,omitempty"`
	Source string     `json:"source"`
	Image  string     `json:"image,omitempty"`
}

// Service reads the news feed.
type Service struct {
	feedURL      string
	imageLookups int
	httpClient   *http.Client
	cache        *expirable.LRU[string, []Item]
	logger       *observability.Logger
	metrics      *observability.Metrics
}

// NewService creates a news service. A non-positive newsTTL disables
// caching.
func NewService(providers config.ProvidersConfig, newsTTL time.Duration, logger *observability.Logger, metrics *observability.Metrics) *Service {
	if logger == nil {
		logger = observability.Default()
	}
	timeout := providers.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	lookups := providers.ImageLookupLimit
	if lookups <= 0 {
		lookups = defaultImageLookups
	}

	s := &Service{
		feedURL:      providers.NewsFeedURL,
		imageLookups: lookups,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger:  logger,
		metrics: metrics,
	}
	if newsTTL > 0 {
		s.cache = expirable.NewLRU[string, []Item](1, nil, newsTTL)
	}
	return s
}

func (s *Service) get(ctx context.Context, url string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.metrics.ObserveProvider("news", 0, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()
	s.metrics.ObserveProvider("news", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

// Latest returns the most recent headlines, newest first. Only the first
// entries of the feed are considered; those without an image get the og:image
// of their article page when it has one.
func (s *Service) Latest(ctx context.Context) ([]Item, error) {
	if s.cache != nil {
		if items, ok := s.cache.Get(cacheKey); ok {
			s.metrics.ObserveCache("news", true)
			return items, nil
		}
		s.metrics.ObserveCache("news", false)
	}

	body, err := s.get(ctx, s.feedURL, 8<<20)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	entries, err := parseFeed(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if len(entries) > s.imageLookups {
		entries = entries[:s.imageLookups]
	}

	s.fillImages(ctx, entries)

	items := make([]Item, 0, len(entries))
	for _, e := range entries {
		id := e.Link
		if id == "" {
			id = e.Title
		}
		if e.Date != nil {
			id += e.Date.Format(time.RFC3339)
		}
		items = append(items, Item{ID: id, Title: e.Title, URL: e.Link, Date: e.Date, Source: Source, Image: e.Image})
	}
	sortNewestFirst(items)
	if len(items) > MaxItems {
		items = items[:MaxItems]
	}

	if s.cache != nil {
		s.cache.Add(cacheKey, items)
	}
	return items, nil
}

// fillImages looks up article pages concurrently. Lookup failures leave the
// entry without an image.
func (s *Service) fillImages(ctx context.Context, entries []entry) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageLookupWorkers)
	for i := range entries {
		if entries[i].Image != "" || entries[i].Link == "" {
			continue
		}
		e := &entries[i]
		g.Go(func() error {
			page, err := s.get(gctx, e.Link, maxPageBytes)
			if err != nil {
				s.logger.WithError(err).WithField("url", e.Link).Warn("article image lookup failed")
				return nil
			}
			e.Image = metaImage(page)
			return nil
		})
	}
	g.Wait()
}

// sortNewestFirst orders items by date, undated items last.
func sortNewestFirst(items []Item) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Date, items[j].Date
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
