package catalog

import (
	"encoding/json"
	"strings"
)

// Untitled is shown for media without any title.
const Untitled = "Sans titre"

// Title holds the localized titles of a media.
type Title struct {
	Romaji  *string `json:"romaji"`
	English *string `json:"english"`
	Native  *string `json:"native"`
}

// Display returns the English title, then romaji, then native, then
// Untitled.
func (t Title) Display() string {
	for _, s := range []*string{t.English, t.Romaji, t.Native} {
		if s != nil && strings.TrimSpace(*s) != "" {
			return strings.TrimSpace(*s)
		}
	}
	return Untitled
}

// FuzzyDate is a partial date as the provider reports it.
type FuzzyDate struct {
	Year  *int `json:"year"`
	Month *int `json:"month"`
	Day   *int `json:"day"`
}

// CoverImage is the cover art of a media.
type CoverImage struct {
	Large *string `json:"large"`
	Color *string `json:"color,omitempty"`
}

// Media is an anime as returned by the provider.
type Media struct {
	ID           int64       `json:"id"`
	Title        Title       `json:"title"`
	Episodes     *int        `json:"episodes"`
	Format       *string     `json:"format"`
	Status       *string     `json:"status,omitempty"`
	Season       *string     `json:"season,omitempty"`
	SeasonYear   *int        `json:"seasonYear"`
	StartDate    *FuzzyDate  `json:"startDate,omitempty"`
	EndDate      *FuzzyDate  `json:"endDate,omitempty"`
	CoverImage   *CoverImage `json:"coverImage"`
	Genres       []string    `json:"genres"`
	AverageScore *int        `json:"averageScore,omitempty"`
	Description  *string     `json:"description"`
}

// Ref is the part of a client-supplied anime payload the services rely on.
// The payload itself is stored verbatim.
type Ref struct {
	ID    int64 `json:"id"`
	Title Title `json:"title"`
}

// ParseRef decodes the id and titles of a raw anime payload. ok is false
// when the payload is not an object with a positive id.
func ParseRef(raw json.RawMessage) (ref Ref, ok bool) {
	if len(raw) == 0 {
		return Ref{}, false
	}
	if err := json.Unmarshal(raw, &ref); err != nil {
		return Ref{}, false
	}
	return ref, ref.ID > 0
}
