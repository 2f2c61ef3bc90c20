package catalog

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Seasons in calendar order.
const (
	Winter = "WINTER"
	Spring = "SPRING"
	Summer = "SUMMER"
	Fall   = "FALL"
)

var seasonOrder = []string{Winter, Spring, Summer, Fall}

const (
	seasonPageSize = 50
	seasonMaxPages = 5
	// CalendarSeasons is the number of seasons Calendar returns.
	CalendarSeasons = 4
)

// SeasonRef names a season of a year.
type SeasonRef struct {
	Season string `json:"season"`
	Year   int    `json:"year"`
	Label  string `json:"label"`
}

// SeasonItem is an anime airing in a season, with its display title.
type SeasonItem struct {
	ID           int64       `json:"id"`
	Title        string      `json:"title"`
	Titles       Title       `json:"titles"`
	Episodes     *int        `json:"episodes"`
	Format       *string     `json:"format"`
	Status       *string     `json:"status"`
	Season       *string     `json:"season"`
	SeasonYear   *int        `json:"seasonYear"`
	StartDate    *FuzzyDate  `json:"startDate"`
	EndDate      *FuzzyDate  `json:"endDate"`
	CoverImage   *CoverImage `json:"coverImage"`
	Genres       []string    `json:"genres"`
	AverageScore *int        `json:"averageScore"`
	Description  *string     `json:"description"`
}

// SeasonGroup is one season of the calendar.
type SeasonGroup struct {
	SeasonRef
	Items []SeasonItem `json:"items"`
}

// ParseSeason validates a season name, case-insensitively.
func ParseSeason(raw string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(raw))
	for _, season := range seasonOrder {
		if s == season {
			return s, true
		}
	}
	return "", false
}

func seasonLabel(season string, year int) string {
	return season[:1] + strings.ToLower(season[1:]) + " " + strconv.Itoa(year)
}

// NextSeasons returns n seasons starting with the one containing now.
// January and February are winter, March to May spring, June to August
// summer and September to December fall.
func NextSeasons(now time.Time, n int) []SeasonRef {
	month := int(now.Month()) - 1
	idx := 3
	switch {
	case month <= 1:
		idx = 0
	case month <= 4:
		idx = 1
	case month <= 7:
		idx = 2
	}
	year := now.Year()

	out := make([]SeasonRef, 0, n)
	for i := 0; i < n; i++ {
		season := seasonOrder[idx]
		out = append(out, SeasonRef{Season: season, Year: year, Label: seasonLabel(season, year)})
		idx = (idx + 1) % len(seasonOrder)
		if idx == 0 {
			year++
		}
	}
	return out
}

const seasonQuery = `
query SeasonPage($season: MediaSeason!, $year: Int!, $page: Int!, $perPage: Int!) {
  Page(page: $page, perPage: $perPage) {
    pageInfo { hasNextPage currentPage }
    media(type: ANIME, season: $season, seasonYear: $year, sort: POPULARITY_DESC) {
      id
      title { romaji english native }
      episodes
      format
      status
      season
      seasonYear
      startDate { year month day }
      endDate { year month day }
      coverImage { large color }
      genres
      averageScore
      description(asHtml: false)
    }
  }
}`

// Season returns the anime of a season, most popular first, reading at most
// five pages.
func (c *Client) Season(ctx context.Context, season string, year int) ([]SeasonItem, error) {
	items := []SeasonItem{}
	for page := 1; page <= seasonMaxPages; page++ {
		var data struct {
			Page struct {
				PageInfo struct {
					HasNextPage bool `json:"hasNextPage"`
				} `json:"pageInfo"`
				Media []Media `json:"media"`
			} `json:"Page"`
		}
		vars := map[string]interface{}{"season": season, "year": year, "page": page, "perPage": seasonPageSize}
		if err := c.query(ctx, seasonQuery, vars, &data); err != nil {
			return nil, err
		}
		for _, m := range data.Page.Media {
			items = append(items, toSeasonItem(m))
		}
		if !data.Page.PageInfo.HasNextPage {
			break
		}
	}
	return items, nil
}

func toSeasonItem(m Media) SeasonItem {
	return SeasonItem{
		ID:           m.ID,
		Title:        m.Title.Display(),
		Titles:       m.Title,
		Episodes:     m.Episodes,
		Format:       m.Format,
		Status:       m.Status,
		Season:       m.Season,
		SeasonYear:   m.SeasonYear,
		StartDate:    m.StartDate,
		EndDate:      m.EndDate,
		CoverImage:   m.CoverImage,
		Genres:       m.Genres,
		AverageScore: m.AverageScore,
		Description:  m.Description,
	}
}

// Calendar returns the current season and the three following ones,
// fetched concurrently.
func (c *Client) Calendar(ctx context.Context, now time.Time) ([]SeasonGroup, error) {
	refs := NextSeasons(now, CalendarSeasons)
	groups := make([]SeasonGroup, len(refs))

	g, gctx := errgroup.WithContext(ctx)
	for i, ref := range refs {
		i, ref := i, ref
		groups[i].SeasonRef = ref
		g.Go(func() error {
			items, err := c.Season(gctx, ref.Season, ref.Year)
			if err != nil {
				return err
			}
			groups[i].Items = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return groups, nil
}
