package catalog

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAniList answers search queries with one result per call and season
// queries with pages seasons[season] entries long.
type fakeAniList struct {
	calls int64

	mu    sync.Mutex
	pages map[string]int
}

func (f *fakeAniList) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&f.calls, 1)
	var req graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	if search, ok := req.Variables["search"].(string); ok {
		if search == "boom" {
			http.Error(w, "upstream down", http.StatusInternalServerError)
			return
		}
		fmt.Fprintf(w, `{"data":{"Page":{"media":[{"id":1,"title":{"romaji":%q,"english":null,"native":null}}]}}}`, search)
		return
	}

	season, _ := req.Variables["season"].(string)
	page := int(req.Variables["page"].(float64))
	f.mu.Lock()
	total := f.pages[season]
	f.mu.Unlock()
	if total == 0 {
		total = 1
	}
	fmt.Fprintf(w, `{"data":{"Page":{"pageInfo":{"hasNextPage":%t,"currentPage":%d},"media":[{"id":%d,"title":{"english":"%s %d"},"season":%q}]}}}`,
		page < total, page, page, season, page, season)
}

func newTestClient(t *testing.T, handler http.Handler, cacheSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(
		config.ProvidersConfig{AniListURL: srv.URL, Timeout: 5 * time.Second},
		config.CacheConfig{CatalogSize: cacheSize, CatalogTTL: time.Minute},
		nil, nil,
	)
}

func TestSearch(t *testing.T) {
	fake := &fakeAniList{}
	c := newTestClient(t, fake, 16)

	items, err := c.Search(t.Context(), "  ")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, int64(0), atomic.LoadInt64(&fake.calls))

	items, err = c.Search(t.Context(), "frieren")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "frieren", items[0].Title.Display())

	_, err = c.Search(t.Context(), "frieren")
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&fake.calls))

	_, err = c.Search(t.Context(), "boom")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestSearchWithoutCache(t *testing.T) {
	fake := &fakeAniList{}
	c := newTestClient(t, fake, 0)

	for i := 0; i < 2; i++ {
		_, err := c.Search(t.Context(), "mob")
		require.NoError(t, err)
	}
	assert.Equal(t, int64(2), atomic.LoadInt64(&fake.calls))
}

func TestGraphQLErrors(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null,"errors":[{"message":"Too Many Requests."}]}`))
	}), 16)

	_, err := c.Search(t.Context(), "x")
	assert.ErrorIs(t, err, apperr.ErrUpstream)
}

func TestSeasonPaging(t *testing.T) {
	fake := &fakeAniList{pages: map[string]int{Spring: 3, Fall: 9}}
	c := newTestClient(t, fake, 0)

	items, err := c.Season(t.Context(), Spring, 2026)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "SPRING 1", items[0].Title)
	assert.Equal(t, int64(3), items[2].ID)

	items, err = c.Season(t.Context(), Fall, 2026)
	require.NoError(t, err)
	assert.Len(t, items, seasonMaxPages)
}

func TestNextSeasons(t *testing.T) {
	tests := []struct {
		month time.Month
		first string
	}{
		{time.January, Winter},
		{time.February, Winter},
		{time.March, Spring},
		{time.May, Spring},
		{time.June, Summer},
		{time.August, Summer},
		{time.September, Fall},
		{time.December, Fall},
	}
	for _, tt := range tests {
		refs := NextSeasons(time.Date(2026, tt.month, 15, 0, 0, 0, 0, time.UTC), 4)
		require.Len(t, refs, 4)
		assert.Equal(t, tt.first, refs[0].Season, tt.month.String())
	}

	refs := NextSeasons(time.Date(2026, time.October, 1, 0, 0, 0, 0, time.UTC), 4)
	assert.Equal(t, []SeasonRef{
		{Season: Fall, Year: 2026, Label: "Fall 2026"},
		{Season: Winter, Year: 2027, Label: "Winter 2027"},
		{Season: Spring, Year: 2027, Label: "Spring 2027"},
		{Season: Summer, Year: 2027, Label: "Summer 2027"},
	}, refs)
}

func TestParseSeason(t *testing.T) {
	s, ok := ParseSeason(" winter ")
	assert.True(t, ok)
	assert.Equal(t, Winter, s)

	_, ok = ParseSeason("monsoon")
	assert.False(t, ok)
}

func TestCalendarHandler(t *testing.T) {
	fake := &fakeAniList{}
	c := newTestClient(t, fake, 0)
	h := NewHandlers(c)
	h.now = func() time.Time { return time.Date(2026, time.January, 10, 0, 0, 0, 0, time.UTC) }

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/calendar", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var grouped struct {
		Groups []SeasonGroup `json:"groups"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &grouped))
	require.Len(t, grouped.Groups, 4)
	assert.Equal(t, "Winter 2026", grouped.Groups[0].Label)
	assert.Equal(t, "Fall 2026", grouped.Groups[3].Label)
	require.Len(t, grouped.Groups[2].Items, 1)
	assert.Equal(t, "SUMMER 1", grouped.Groups[2].Items[0].Title)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/calendar?season=spring&year=2025", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var single struct {
		Season string       `json:"season"`
		Year   int          `json:"year"`
		Items  []SeasonItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &single))
	assert.Equal(t, Spring, single.Season)
	assert.Equal(t, 2025, single.Year)
	assert.Len(t, single.Items, 1)
}

func TestSearchHandler(t *testing.T) {
	c := newTestClient(t, &fakeAniList{}, 0)
	router := mux.NewRouter()
	NewHandlers(c).RegisterRoutes(router)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/search?q=", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"items":[]}`, rr.Body.String())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest("GET", "/search?q=boom", nil))
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}
