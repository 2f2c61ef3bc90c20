package lists

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/catalog"
	"github.com/platinummonkey/watchlist/pkg/identity"
	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Access answers list and group access questions through the authorization
// gateway.
type Access interface {
	CanAccessList(ctx context.Context, listID, userID string) (bool, error)
	GroupRole(ctx context.Context, groupID, userID string) (string, error)
}

// Service implements lists, list items and watched markers.
type Service struct {
	store  *Store
	access Access
	logger *observability.Logger
}

// NewService creates a list service.
func NewService(store *Store, access Access, logger *observability.Logger) *Service {
	if logger == nil {
		logger = observability.Default()
	}
	return &Service{store: store, access: access, logger: logger}
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len([]rune(name)) > 100 {
		return "", apperr.ErrBadPayload.WithHint("name must be 1 to 100 characters")
	}
	return name, nil
}

// parseAnime decodes an anime payload and its display title.
func parseAnime(raw json.RawMessage) (catalog.Ref, string, error) {
	ref, ok := catalog.ParseRef(raw)
	if !ok {
		return catalog.Ref{}, "", apperr.ErrBadPayload.WithHint("anime with a positive id is required")
	}
	return ref, ref.Title.Display(), nil
}

// Lists returns the caller's lists. Anonymous callers get none.
func (s *Service) Lists(ctx context.Context, includeGlobal bool) ([]List, error) {
	caller := identity.FromContext(ctx)
	if caller == nil {
		return []List{}, nil
	}
	return s.store.ListsFor(ctx, caller.UserID, includeGlobal)
}

// CreateList creates a personal list for the caller.
func (s *Service) CreateList(ctx context.Context, name string, isPublic bool) (*List, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if name, err = cleanName(name); err != nil {
		return nil, err
	}

	taken, err := s.store.PersonalNameTaken(ctx, caller.UserID, name, "")
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.ErrConflict.WithHint("list name already used")
	}

	l, err := s.store.CreateList(ctx, caller.UserID, name, isPublic)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(map[string]interface{}{
		"list_id":  l.ID,
		"owner_id": caller.UserID,
	}).Info("list created")
	return l, nil
}

// UpdateList renames a list or changes its visibility. Only the owner of a
// non-global list may do so.
func (s *Service) UpdateList(ctx context.Context, req UpdateListRequest) (*List, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	if req.Name == nil && req.IsPublic == nil {
		return nil, apperr.ErrNoChanges
	}
	if req.Name != nil {
		name, err := cleanName(*req.Name)
		if err != nil {
			return nil, err
		}
		req.Name = &name

		taken, err := s.store.PersonalNameTaken(ctx, caller.UserID, name, req.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.ErrConflict.WithHint("list name already used")
		}
	}

	if err := s.store.UpdateList(ctx, req.ID, caller.UserID, req.Name, req.IsPublic); err != nil {
		return nil, err
	}
	return s.store.GetList(ctx, req.ID)
}

// DeleteList deletes a non-global list owned by the caller.
func (s *Service) DeleteList(ctx context.Context, id string) error {
	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	if err := s.store.DeleteList(ctx, id, caller.UserID); err != nil {
		return err
	}
	s.logger.WithFields(map[string]interface{}{
		"list_id":  id,
		"owner_id": caller.UserID,
	}).Info("list deleted")
	return nil
}

// isMember reports whether userID takes part in l: group membership for
// group lists, list membership otherwise. The owner always does.
func (s *Service) isMember(ctx context.Context, l *List, userID string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	if l.OwnerID == userID {
		return true, nil
	}
	if l.GroupID != nil {
		role, err := s.access.GroupRole(ctx, *l.GroupID, userID)
		return role != "", err
	}
	return s.store.IsListMember(ctx, l.ID, userID)
}

// Info returns a list and the caller's relation to it. Private lists the
// caller takes no part in are reported as not found.
func (s *Service) Info(ctx context.Context, id string) (*Info, error) {
	l, err := s.store.GetList(ctx, id)
	if err != nil {
		return nil, err
	}

	var userID string
	if caller := identity.FromContext(ctx); caller != nil {
		userID = caller.UserID
	}
	member, err := s.isMember(ctx, l, userID)
	if err != nil {
		return nil, err
	}
	if !member && !l.IsPublic && !l.IsGlobal {
		return nil, apperr.ErrNotFound
	}
	return &Info{List: l, IsOwner: userID != "" && l.OwnerID == userID, IsMember: member}, nil
}

// EnsureDefault returns the caller's working list. With a group it is the
// group's list, created as NameDefault when the group has none; the caller
// must belong to the group. Without one it is the caller's first list,
// created as NameDefault when the caller has none.
func (s *Service) EnsureDefault(ctx context.Context, groupID string) (string, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return "", err
	}

	if groupID != "" {
		role, err := s.access.GroupRole(ctx, groupID, caller.UserID)
		if err != nil {
			return "", err
		}
		if role == "" {
			return "", apperr.ErrForbidden
		}
		id, err := s.store.GroupList(ctx, groupID)
		if err != nil || id != "" {
			return id, err
		}
		owner, err := s.store.GroupOwner(ctx, groupID)
		if err != nil {
			return "", err
		}
		l, err := s.store.CreateOwnedList(ctx, owner, NameDefault, groupID)
		if err != nil {
			return "", err
		}
		s.logger.WithFields(map[string]interface{}{
			"list_id":  l.ID,
			"group_id": groupID,
		}).Info("group list created")
		return l.ID, nil
	}

	id, err := s.store.FirstMembership(ctx, caller.UserID)
	if err != nil || id != "" {
		return id, err
	}
	l, err := s.store.CreateOwnedList(ctx, caller.UserID, NameDefault, "")
	if err != nil {
		return "", err
	}
	return l.ID, nil
}

// EnsureWatched returns the caller's NameWatched list, creating it once.
func (s *Service) EnsureWatched(ctx context.Context) (string, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return "", err
	}
	return s.store.EnsurePersonal(ctx, caller.UserID, NameWatched)
}

// requireAccess returns the caller when it may take part in listID.
func (s *Service) requireAccess(ctx context.Context, listID string) (*identity.Caller, error) {
	caller, err := identity.Require(ctx)
	if err != nil {
		return nil, err
	}
	ok, err := s.access.CanAccessList(ctx, listID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.ErrForbidden
	}
	return caller, nil
}

// Items returns the items of a list. Public lists are readable by anyone,
// other lists require access.
func (s *Service) Items(ctx context.Context, listID string) ([]Item, error) {
	l, err := s.store.GetList(ctx, listID)
	if err != nil {
		return nil, err
	}
	if !l.IsPublic {
		if _, err := s.requireAccess(ctx, listID); err != nil {
			return nil, err
		}
	}
	return s.store.Items(ctx, listID)
}

// AddItem adds an anime to a list. duplicate is true when it was already
// there.
func (s *Service) AddItem(ctx context.Context, listID string, anime json.RawMessage) (duplicate bool, err error) {
	ref, title, err := parseAnime(anime)
	if err != nil {
		return false, err
	}
	caller, err := s.requireAccess(ctx, listID)
	if err != nil {
		return false, err
	}
	return s.store.AddItem(ctx, listID, caller.UserID, ref.ID, title, anime)
}

// RemoveItem removes an item from a list the caller takes part in.
func (s *Service) RemoveItem(ctx context.Context, itemID string) error {
	if _, err := identity.Require(ctx); err != nil {
		return err
	}
	listID, err := s.store.ItemListID(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.requireAccess(ctx, listID); err != nil {
		return err
	}
	return s.store.DeleteItem(ctx, itemID)
}

// Watched returns the caller's markers, newest first; limit 0 returns all.
// Anonymous callers get none.
func (s *Service) Watched(ctx context.Context, listID string, limit int) ([]Watched, error) {
	caller := identity.FromContext(ctx)
	if caller == nil {
		return []Watched{}, nil
	}
	return s.store.Watched(ctx, caller.UserID, listID, limit)
}

// MarkWatched records an anime as watched by the caller.
func (s *Service) MarkWatched(ctx context.Context, anime json.RawMessage, listID string) error {
	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	ref, title, err := parseAnime(anime)
	if err != nil {
		return err
	}
	return s.store.MarkWatched(ctx, caller.UserID, ref.ID, title, anime, listID)
}

// Unwatch removes the caller's marker for animeID.
func (s *Service) Unwatch(ctx context.Context, animeID int64) error {
	caller, err := identity.Require(ctx)
	if err != nil {
		return err
	}
	if animeID <= 0 {
		return apperr.ErrBadPayload.WithHint("anime_id is required")
	}
	return s.store.Unwatch(ctx, caller.UserID, animeID)
}
