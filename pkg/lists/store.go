package lists

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

const listColumns = `id, owner_id, name, is_public, is_global, group_id, created_at`

// Store persists lists, list items and watched markers.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a list store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanList(row rowScanner) (*List, error) {
	l := &List{}
	var groupID sql.NullString
	if err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &l.IsPublic, &l.IsGlobal, &groupID, &l.CreatedAt); err != nil {
		return nil, err
	}
	if groupID.Valid {
		l.GroupID = &groupID.String
	}
	return l, nil
}

// ListsFor returns the lists userID owns, newest first, without the system
// lists. includeGlobal adds every global list.
func (s *Store) ListsFor(ctx context.Context, userID string, includeGlobal bool) ([]List, error) {
	query := `SELECT ` + listColumns + ` FROM lists
		WHERE name <> $1 AND name <> $2 AND `
	if includeGlobal {
		query += `(owner_id = $3 OR user_id = $3 OR is_global = $4)`
	} else {
		query += `(owner_id = $3 OR user_id = $3) AND is_global = $4`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, NameWatched, NameDefault, userID, includeGlobal)
	if err != nil {
		return nil, fmt.Errorf("failed to list lists: %w", err)
	}
	defer rows.Close()

	out := []List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan list: %w", err)
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// GetList returns a list, or apperr.ErrNotFound.
func (s *Store) GetList(ctx context.Context, id string) (*List, error) {
	l, err := scanList(s.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get list: %w", err)
	}
	return l, nil
}

// PersonalNameTaken reports whether ownerID already has a personal list
// called name.
func (s *Store) PersonalNameTaken(ctx context.Context, ownerID, name, exceptID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM lists WHERE owner_id = $1 AND name = $2 AND group_id IS NULL AND id <> $3`,
		ownerID, name, exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check list name: %w", err)
	}
	return n > 0, nil
}

// CreateList inserts a personal, non-global list.
func (s *Store) CreateList(ctx context.Context, ownerID, name string, isPublic bool) (*List, error) {
	l := &List{ID: uuid.NewString(), OwnerID: ownerID, Name: name, IsPublic: isPublic, CreatedAt: s.now().UTC()}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, user_id, name, is_public, is_global, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		l.ID, ownerID, ownerID, name, isPublic, false, l.CreatedAt)
	if postgres.IsUniqueViolation(err) {
		return nil, apperr.ErrConflict.WithHint("list name already used")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}
	return l, nil
}

// CreateOwnedList inserts a list owned by ownerID. A personal list gets the
// owner's list membership in the same transaction; groupID binds the list to
// a group instead, whose members reach it through the group.
func (s *Store) CreateOwnedList(ctx context.Context, ownerID, name, groupID string) (*List, error) {
	l := &List{ID: uuid.NewString(), OwnerID: ownerID, Name: name, CreatedAt: s.now().UTC()}
	var group interface{}
	if groupID != "" {
		l.GroupID = &groupID
		group = groupID
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, user_id, name, is_public, is_global, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		l.ID, ownerID, ownerID, name, false, false, group, l.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to create list: %w", err)
	}
	if groupID == "" {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO list_members (list_id, user_id, role) VALUES ($1, $2, 'owner') ON CONFLICT DO NOTHING`,
			l.ID, ownerID,
		); err != nil {
			return nil, fmt.Errorf("failed to add list owner: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit list: %w", err)
	}
	return l, nil
}

// UpdateList applies the set fields to a personal list owned by ownerID.
// It returns apperr.ErrNotFound when no such list exists.
func (s *Store) UpdateList(ctx context.Context, id, ownerID string, name *string, isPublic *bool) error {
	var sets []string
	var args []interface{}
	if name != nil {
		args = append(args, *name)
		sets = append(sets, fmt.Sprintf("name = $%d", len(args)))
	}
	if isPublic != nil {
		args = append(args, *isPublic)
		sets = append(sets, fmt.Sprintf("is_public = $%d", len(args)))
	}
	if len(sets) == 0 {
		return apperr.ErrNoChanges
	}
	n := len(args)
	args = append(args, id, ownerID, false)
	query := fmt.Sprintf(`UPDATE lists SET %s WHERE id = $%d AND owner_id = $%d AND is_global = $%d`,
		strings.Join(sets, ", "), n+1, n+2, n+3)

	res, err := s.db.ExecContext(ctx, query, args...)
	if postgres.IsUniqueViolation(err) {
		return apperr.ErrConflict.WithHint("list name already used")
	}
	if err != nil {
		return fmt.Errorf("failed to update list: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// DeleteList removes a non-global list owned by ownerID.
func (s *Store) DeleteList(ctx context.Context, id, ownerID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lists WHERE id = $1 AND owner_id = $2 AND is_global = $3`, id, ownerID, false)
	if err != nil {
		return fmt.Errorf("failed to delete list: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// IsListMember reports whether userID has a direct membership in listID.
func (s *Store) IsListMember(ctx context.Context, listID, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM list_members WHERE list_id = $1 AND user_id = $2`, listID, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check list membership: %w", err)
	}
	return n > 0, nil
}

// FirstMembership returns the oldest list userID is a member of, "" when none.
func (s *Store) FirstMembership(ctx context.Context, userID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT m.list_id FROM list_members m
		JOIN lists l ON l.id = m.list_id
		WHERE m.user_id = $1
		ORDER BY l.created_at ASC
		LIMIT 1`, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find list membership: %w", err)
	}
	return id, nil
}

// GroupList returns the oldest list bound to groupID, "" when none.
func (s *Store) GroupList(ctx context.Context, groupID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM lists WHERE group_id = $1 ORDER BY created_at ASC LIMIT 1`, groupID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to find group list: %w", err)
	}
	return id, nil
}

// GroupOwner returns the owner of groupID, or apperr.ErrNotFound.
func (s *Store) GroupOwner(ctx context.Context, groupID string) (string, error) {
	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT owner_id FROM groups WHERE id = $1`, groupID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load group: %w", err)
	}
	return owner, nil
}

// EnsurePersonal returns the id of ownerID's personal list called name,
// creating it when absent. Concurrent calls converge on one row.
func (s *Store) EnsurePersonal(ctx context.Context, ownerID, name string) (string, error) {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO lists (id, owner_id, user_id, name, is_public, is_global, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (owner_id, name) WHERE group_id IS NULL DO NOTHING`,
		uuid.NewString(), ownerID, ownerID, name, false, false, s.now().UTC(),
	); err != nil {
		return "", fmt.Errorf("failed to upsert list: %w", err)
	}

	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM lists WHERE owner_id = $1 AND name = $2 AND group_id IS NULL`, ownerID, name,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to load list: %w", err)
	}
	return id, nil
}

func rawJSON(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// Items returns the items of listID, newest first.
func (s *Store) Items(ctx context.Context, listID string) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, list_id, user_id, added_by, anime_id, anime_title, anime_data, created_at
		FROM list_items WHERE list_id = $1
		ORDER BY created_at DESC`, listID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	out := []Item{}
	for rows.Next() {
		var it Item
		var userID, addedBy, title, data sql.NullString
		if err := rows.Scan(&it.ID, &it.ListID, &userID, &addedBy, &it.AnimeID, &title, &data, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		it.UserID = nullableString(userID)
		it.AddedBy = nullableString(addedBy)
		it.AnimeTitle = nullableString(title)
		it.AnimeData = rawJSON(data)
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddItem inserts an item. duplicate is true when the anime is already in
// the list.
func (s *Store) AddItem(ctx context.Context, listID, userID string, animeID int64, title string, data json.RawMessage) (duplicate bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO list_items (id, list_id, user_id, added_by, anime_id, anime_title, anime_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (list_id, anime_id) DO NOTHING`,
		uuid.NewString(), listID, userID, userID, animeID, title, string(data), s.now().UTC())
	if postgres.IsUniqueViolation(err) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to add item: %w", err)
	}
	affected, _ := res.RowsAffected()
	return affected == 0, nil
}

// ItemListID returns the list of an item, or apperr.ErrNotFound.
func (s *Store) ItemListID(ctx context.Context, itemID string) (string, error) {
	var listID string
	err := s.db.QueryRowContext(ctx, `SELECT list_id FROM list_items WHERE id = $1`, itemID).Scan(&listID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to load item: %w", err)
	}
	return listID, nil
}

// DeleteItem removes an item.
func (s *Store) DeleteItem(ctx context.Context, itemID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list_items WHERE id = $1`, itemID); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

// Watched returns userID's watched markers, newest first. A listID filters
// on the list the marker was recorded from; limit 0 means no limit.
func (s *Store) Watched(ctx context.Context, userID, listID string, limit int) ([]Watched, error) {
	query := `SELECT id, list_id, anime_id, anime_title, anime_data, created_at
		FROM watched WHERE user_id = $1`
	args := []interface{}{userID}
	if listID != "" {
		args = append(args, listID)
		query += fmt.Sprintf(" AND list_id = $%d", len(args))
	}
	query += " ORDER BY created_at DESC"
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list watched: %w", err)
	}
	defer rows.Close()

	out := []Watched{}
	for rows.Next() {
		var w Watched
		var list, title, data sql.NullString
		if err := rows.Scan(&w.ID, &list, &w.AnimeID, &title, &data, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watched: %w", err)
		}
		w.ListID = nullableString(list)
		w.AnimeTitle = nullableString(title)
		w.AnimeData = rawJSON(data)
		out = append(out, w)
	}
	return out, rows.Err()
}

// MarkWatched records that userID watched animeID. Marking twice is a no-op.
func (s *Store) MarkWatched(ctx context.Context, userID string, animeID int64, title string, data json.RawMessage, listID string) error {
	var list interface{}
	if listID != "" {
		list = listID
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watched (id, user_id, anime_id, anime_title, anime_data, list_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, anime_id) DO NOTHING`,
		uuid.NewString(), userID, animeID, title, string(data), list, s.now().UTC())
	if err != nil && !postgres.IsUniqueViolation(err) {
		return fmt.Errorf("failed to mark watched: %w", err)
	}
	return nil
}

// Unwatch removes userID's marker for animeID.
func (s *Store) Unwatch(ctx context.Context, userID string, animeID int64) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM watched WHERE user_id = $1 AND anime_id = $2`, userID, animeID,
	); err != nil {
		return fmt.Errorf("failed to unwatch: %w", err)
	}
	return nil
}

// DistinctAnimeIDs returns the anime ids of markers in order, without
// duplicates.
func DistinctAnimeIDs(items []Watched) []int64 {
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, w := range items {
		if seen[w.AnimeID] {
			continue
		}
		seen[w.AnimeID] = true
		ids = append(ids, w.AnimeID)
	}
	return ids
}
