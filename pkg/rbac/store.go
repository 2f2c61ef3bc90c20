package rbac

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

// Store handles registry persistence
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore creates a new registry store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// ListRoles returns every role with its permissions, system roles first.
func (s *Store) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, description, is_system, created_at
		FROM roles
		ORDER BY is_system DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		roles = append(roles, *role)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	perms, err := s.allPermissions(ctx)
	if err != nil {
		return nil, err
	}
	for i := range roles {
		roles[i].Perms = perms[roles[i].Name]
		if roles[i].Perms == nil {
			roles[i].Perms = []Permission{}
		}
	}
	return roles, nil
}

func (s *Store) allPermissions(ctx context.Context) (map[string][]Permission, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role_name, perm FROM role_permissions ORDER BY role_name, perm`)
	if err != nil {
		return nil, fmt.Errorf("failed to list role permissions: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]Permission)
	for rows.Next() {
		var name, perm string
		if err := rows.Scan(&name, &perm); err != nil {
			return nil, fmt.Errorf("failed to scan role permission: %w", err)
		}
		out[name] = append(out[name], Permission(perm))
	}
	return out, rows.Err()
}

// GetRole returns the role name, or apperr.ErrNotFound.
func (s *Store) GetRole(ctx context.Context, name string) (*Role, error) {
	role, err := scanRole(s.db.QueryRowContext(ctx,
		`SELECT name, description, is_system, created_at FROM roles WHERE name = $1`, name))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}

	role.Perms, err = s.RolePermissions(ctx, name)
	if err != nil {
		return nil, err
	}
	return role, nil
}

// RolePermissions returns the permission set of a role. Unknown roles have
// none.
func (s *Store) RolePermissions(ctx context.Context, name string) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT perm FROM role_permissions WHERE role_name = $1 ORDER BY perm`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get role permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		var perm string
		if err := rows.Scan(&perm); err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, Permission(perm))
	}
	return perms, rows.Err()
}

// CreateRole inserts a custom role and its permissions in one transaction.
// A duplicate name is reported as conflict.
func (s *Store) CreateRole(ctx context.Context, role *Role) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now().UTC()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO roles (name, description, is_system, created_at) VALUES ($1, $2, $3, $4)`,
		role.Name, role.Description, false, now,
	); err != nil {
		if postgres.IsUniqueViolation(err) {
			return apperr.ErrConflict.WithHint("role already exists")
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	if err := insertPermissions(ctx, tx, role.Name, role.Perms); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role: %w", err)
	}

	role.IsSystem = false
	role.CreatedAt = now
	return nil
}

// UpdateRole sets the description when given and replaces the permission
// set when replacePerms is true, in one transaction.
func (s *Store) UpdateRole(ctx context.Context, name string, description *string, perms []Permission, replacePerms bool) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if description != nil {
		if _, err := tx.ExecContext(ctx,
			`UPDATE roles SET description = $1 WHERE name = $2`, *description, name,
		); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}
	}

	if replacePerms {
		if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_name = $1`, name); err != nil {
			return fmt.Errorf("failed to clear role permissions: %w", err)
		}
		if err := insertPermissions(ctx, tx, name, perms); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role update: %w", err)
	}
	return nil
}

func insertPermissions(ctx context.Context, tx *sql.Tx, name string, perms []Permission) error {
	for _, perm := range perms {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_name, perm) VALUES ($1, $2)`, name, string(perm),
		); err != nil {
			return fmt.Errorf("failed to insert role permission: %w", err)
		}
	}
	return nil
}

// DeleteRole removes a role and its permission rows.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete role permissions: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM roles WHERE name = $1`, name); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	return nil
}

// CountMembers returns the number of members holding the canonical role
// name. Stored values are compared trimmed and lowercased, the way the
// permission checker reads them.
func (s *Store) CountMembers(ctx context.Context, name string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM profiles WHERE LOWER(TRIM(role)) = $1`, strings.ToLower(strings.TrimSpace(name)),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count role members: %w", err)
	}
	return n, nil
}

// MemberRole returns the stored role of userID; found is false when the
// member has no profile.
func (s *Store) MemberRole(ctx context.Context, userID string) (role string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT role FROM profiles WHERE id = $1`, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get member role: %w", err)
	}
	return role, true, nil
}

func scanRole(scanner interface {
	Scan(dest ...interface{}) error
}) (*Role, error) {
	var role Role
	var description sql.NullString
	if err := scanner.Scan(&role.Name, &description, &role.IsSystem, &role.CreatedAt); err != nil {
		return nil, err
	}
	if description.Valid {
		d := description.String
		role.Description = &d
	}
	return &role, nil
}
