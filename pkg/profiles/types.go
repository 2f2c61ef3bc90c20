package profiles

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/platinummonkey/watchlist/pkg/apperr"
)

// Username length bounds, counted in characters.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 32
)

// Profile is a member's stored profile.
type Profile struct {
	ID        string    `json:"id"`
	Username  *string   `json:"username"`
	Role      string    `json:"role"`
	IsAdmin   bool      `json:"is_admin"`
	CreatedAt time.Time `json:"created_at"`
}

// Patch is a partial profile update. Nil fields are left untouched.
type Patch struct {
	Role     *string
	IsAdmin  *bool
	Username *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Role == nil && p.IsAdmin == nil && p.Username == nil
}

// NormalizeUsername trims raw and checks its length.
func NormalizeUsername(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", apperr.ErrUsernameInvalid
	}
	if n := utf8.RuneCountInString(name); n < MinUsernameLength || n > MaxUsernameLength {
		return "", apperr.ErrUsernameLength
	}
	return name, nil
}
