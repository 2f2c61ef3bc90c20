package profiles

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/gateway"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Suggestion limits.
const (
	SuggestLimit       = 10
	SearchLimitMax     = 25
	SearchLimitDefault = 10
)

// Suggester completes usernames.
type Suggester interface {
	ProfilesSuggest(ctx context.Context, query string, limit int) ([]gateway.Suggestion, error)
}

// Service implements member self-service.
type Service struct {
	store     *Store
	suggester Suggester
	logger    *observability.Logger
}

// NewService creates a profile service.
func NewService(store *Store, suggester Suggester, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Default()
	}
	return &Service{store: store, suggester: suggester, logger: logger}
}

// Me returns the caller's profile. A member who never saved a profile gets
// a synthesized one with the default role.
func (s *Service) Me(ctx context.Context, userID string) (*Profile, error) {
	p, err := s.store.Get(ctx, userID)
	if errors.Is(err, apperr.ErrNotFound) {
		return &Profile{ID: userID, Role: "user"}, nil
	}
	return p, err
}

// UpdateUsername sets the caller's username.
func (s *Service) UpdateUsername(ctx context.Context, userID, raw string) (string, error) {
	name, err := NormalizeUsername(raw)
	if err != nil {
		return "", err
	}

	taken, err := s.store.UsernameTaken(ctx, name, userID)
	if err != nil {
		return "", err
	}
	if taken {
		return "", apperr.ErrUsernameTaken
	}

	if err := s.store.SetUsername(ctx, userID, name); err != nil {
		return "", err
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"username": name,
	}).Info("username updated")
	return name, nil
}

// UsernameAvailable reports whether raw could be taken by userID. Names
// too short are never available.
func (s *Service) UsernameAvailable(ctx context.Context, userID, raw string) (bool, error) {
	name := strings.TrimSpace(raw)
	if utf8.RuneCountInString(name) < MinUsernameLength {
		return false, nil
	}
	taken, err := s.store.UsernameTaken(ctx, name, userID)
	if err != nil {
		return false, err
	}
	return !taken, nil
}

// Suggest completes a username prefix. An empty query suggests nothing.
func (s *Service) Suggest(ctx context.Context, query string) ([]gateway.Suggestion, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []gateway.Suggestion{}, nil
	}
	return s.suggester.ProfilesSuggest(ctx, q, SuggestLimit)
}

// Search lists members whose username starts with query, or all members
// when query is empty.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]gateway.Suggestion, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > SearchLimitMax {
		limit = SearchLimitMax
	}
	return s.suggester.ProfilesSuggest(ctx, strings.TrimSpace(query), limit)
}
