package notifications

import (
	"context"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/identity"
)

// Service serves a member's own notifications.
type Service struct {
	store *Store
}

// NewService creates a notification service.
func NewService(store *Store) *Service {
	return &Service{store: store}
}

// Page returns the caller's notifications. Anonymous callers get an empty
// page.
func (s *Service) Page(ctx context.Context, limit int, cursor *time.Time) (*Page, error) {
	caller := identity.FromContext(ctx)
	if caller == nil {
		return &Page{Items: []Notification{}}, nil
	}

	unread, err := s.store.UnreadCount(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	items, err := s.store.List(ctx, caller.UserID, limit, cursor)
	if err != nil {
		return nil, err
	}

	page := &Page{Items: items, UnreadCount: unread}
	if len(items) > 0 {
		next := items[len(items)-1].CreatedAt
		page.NextCursor = &next
	}
	return page, nil
}

// UnreadCount returns the caller's unread count, 0 when anonymous.
func (s *Service) UnreadCount(ctx context.Context) (int64, error) {
	caller := identity.FromContext(ctx)
	if caller == nil {
		return 0, nil
	}
	return s.store.UnreadCount(ctx, caller.UserID)
}

// MarkRead marks the caller's notifications as read.
func (s *Service) MarkRead(ctx context.Context, req MarkReadRequest) error {
	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}

	switch {
	case req.All:
		_, err = s.store.MarkAllRead(ctx, caller.UserID)
	case len(req.IDs) > 0:
		_, err = s.store.MarkRead(ctx, caller.UserID, req.IDs)
	default:
		return apperr.ErrBadPayload.WithHint("expected all:true or a non-empty ids list")
	}
	return err
}
