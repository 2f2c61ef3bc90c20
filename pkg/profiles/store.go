package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/watchlist/pkg/apperr"
	"github.com/platinummonkey/watchlist/pkg/storage/postgres"
)

// Store handles profile persistence.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a profile store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

const profileColumns = `id, username, role, is_admin, created_at`

func scanProfile(row interface{ Scan(...interface{}) error }) (*Profile, error) {
	var p Profile
	var username sql.NullString
	if err := row.Scan(&p.ID, &username, &p.Role, &p.IsAdmin, &p.CreatedAt); err != nil {
		return nil, err
	}
	if username.Valid {
		name := username.String
		p.Username = &name
	}
	return &p, nil
}

// Get returns the profile of id, or apperr.ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// GetByUsername returns the profile with username (case-insensitive), or
// apperr.ErrNotFound.
func (s *Store) GetByUsername(ctx context.Context, username string) (*Profile, error) {
	p, err := scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE LOWER(username) = $1 LIMIT 1`,
		strings.ToLower(strings.TrimSpace(username))))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile by username: %w", err)
	}
	return p, nil
}

// UsernameTaken reports whether another member than exceptID uses username.
func (s *Store) UsernameTaken(ctx context.Context, username, exceptID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE LOWER(username) = $1 AND id <> $2`,
		strings.ToLower(strings.TrimSpace(username)), exceptID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return n > 0, nil
}

// SetUsername stores the username of id, creating the profile when the
// member has none yet.
func (s *Store) SetUsername(ctx context.Context, id, username string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, username, role, is_admin, created_at)
		VALUES ($1, $2, 'user', false, $3)
		ON CONFLICT (id) DO UPDATE SET username = excluded.username`,
		id, username, s.now().UTC())
	if postgres.IsUniqueViolation(err) {
		return apperr.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to set username: %w", err)
	}
	return nil
}

// Apply writes patch to the profile of id.
func (s *Store) Apply(ctx context.Context, id string, patch Patch) error {
	if patch.Empty() {
		return apperr.ErrNoChanges
	}

	var sets []string
	var args []interface{}
	add := func(column string, value interface{}) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if patch.Role != nil {
		add("role", *patch.Role)
	}
	if patch.IsAdmin != nil {
		add("is_admin", *patch.IsAdmin)
	}
	if patch.Username != nil {
		add("username", *patch.Username)
	}
	args = append(args, id)

	query := fmt.Sprintf(`UPDATE profiles SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if postgres.IsUniqueViolation(err) {
		return apperr.ErrUsernameTaken
	}
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// CountOwners returns the number of members holding the owner role.
func (s *Store) CountOwners(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE LOWER(role) = 'owner'`,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return n, nil
}

// Delete removes the profile of id. A missing row is not an error.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}
