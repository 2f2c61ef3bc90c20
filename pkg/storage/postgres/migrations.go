package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/watchlist/pkg/observability"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the schema migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create profiles and role registry",
			SQL: `
				CREATE TABLE IF NOT EXISTS profiles (
					id UUID PRIMARY KEY,
					username TEXT UNIQUE,
					role TEXT NOT NULL DEFAULT 'user',
					is_admin BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				-- at most one owner
				CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_single_owner ON profiles ((role)) WHERE role = 'owner';
				CREATE INDEX IF NOT EXISTS idx_profiles_role ON profiles(role);
				CREATE INDEX IF NOT EXISTS idx_profiles_username_lower ON profiles(LOWER(username));

				CREATE TABLE IF NOT EXISTS roles (
					name TEXT PRIMARY KEY,
					description TEXT,
					is_system BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS role_permissions (
					role_name TEXT NOT NULL REFERENCES roles(name) ON DELETE CASCADE,
					perm TEXT NOT NULL,
					PRIMARY KEY (role_name, perm)
				);
			`,
		},
		{
			Version:     2,
			Description: "Create groups, members and invitations",
			SQL: `
				CREATE TABLE IF NOT EXISTS groups (
					id UUID PRIMARY KEY,
					name TEXT NOT NULL,
					owner_id UUID NOT NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE TABLE IF NOT EXISTS group_members (
					group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					user_id UUID NOT NULL,
					role TEXT NOT NULL DEFAULT 'member',
					joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					PRIMARY KEY (group_id, user_id)
				);

				CREATE INDEX IF NOT EXISTS idx_group_members_user ON group_members(user_id);

				CREATE TABLE IF NOT EXISTS group_invitations (
					id UUID PRIMARY KEY,
					group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
					invited_user_id UUID NOT NULL,
					invited_by UUID NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					responded_at TIMESTAMPTZ
				);

				CREATE INDEX IF NOT EXISTS idx_group_invitations_invitee ON group_invitations(invited_user_id, status);
			`,
		},
		{
			Version:     3,
			Description: "Create lists, list members and list items",
			SQL: `
				CREATE TABLE IF NOT EXISTS lists (
					id UUID PRIMARY KEY,
					owner_id UUID NOT NULL,
					user_id UUID,
					name TEXT NOT NULL,
					is_public BOOLEAN NOT NULL DEFAULT FALSE,
					is_global BOOLEAN NOT NULL DEFAULT FALSE,
					group_id UUID REFERENCES groups(id) ON DELETE SET NULL,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_lists_owner_name ON lists (owner_id, name) WHERE group_id IS NULL;
				CREATE INDEX IF NOT EXISTS idx_lists_group ON lists (group_id) WHERE group_id IS NOT NULL;

				CREATE TABLE IF NOT EXISTS list_members (
					list_id UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
					user_id UUID NOT NULL,
					role TEXT NOT NULL DEFAULT 'member',
					PRIMARY KEY (list_id, user_id)
				);

				CREATE TABLE IF NOT EXISTS list_items (
					id UUID PRIMARY KEY,
					list_id UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
					user_id UUID,
					added_by UUID,
					anime_id BIGINT NOT NULL,
					anime_title TEXT,
					anime_data JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (list_id, anime_id)
				);
			`,
		},
		{
			Version:     4,
			Description: "Create proposals",
			SQL: `
				CREATE TABLE IF NOT EXISTS proposals (
					id UUID PRIMARY KEY,
					list_id UUID NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
					user_id UUID NOT NULL,
					anime_id BIGINT NOT NULL,
					anime_title TEXT,
					anime_data JSONB,
					status TEXT NOT NULL DEFAULT 'pending',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					cancelled_at TIMESTAMPTZ,
					cancelled_by UUID
				);

				CREATE INDEX IF NOT EXISTS idx_proposals_list ON proposals(list_id, created_at DESC);
				CREATE INDEX IF NOT EXISTS idx_proposals_pending ON proposals(list_id, anime_id) WHERE status = 'pending';
			`,
		},
		{
			Version:     5,
			Description: "Create watched markers and notifications",
			SQL: `
				CREATE TABLE IF NOT EXISTS watched (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL,
					anime_id BIGINT NOT NULL,
					anime_title TEXT,
					anime_data JSONB,
					list_id UUID,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE (user_id, anime_id)
				);

				CREATE TABLE IF NOT EXISTS notifications (
					id UUID PRIMARY KEY,
					user_id UUID NOT NULL,
					type TEXT NOT NULL,
					message TEXT NOT NULL DEFAULT '',
					payload JSONB,
					is_read BOOLEAN NOT NULL DEFAULT FALSE,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at DESC);
			`,
		},
		{
			Version:     6,
			Description: "Seed system roles",
			SQL: `
				INSERT INTO roles (name, description, is_system) VALUES
					('owner', 'Site owner', TRUE),
					('admin', 'Administrator', TRUE),
					('moderator', 'Moderator', TRUE),
					('member', 'Member', TRUE),
					('user', 'User', TRUE),
					('guest', 'Guest', TRUE)
				ON CONFLICT (name) DO UPDATE SET is_system = TRUE;

				INSERT INTO role_permissions (role_name, perm) VALUES
					('admin', 'delete_proposals_any'),
					('admin', 'delete_profile'),
					('admin', 'manage_lists'),
					('admin', 'change_username'),
					('admin', 'manage_roles'),
					('moderator', 'delete_proposals_any'),
					('moderator', 'manage_lists')
				ON CONFLICT DO NOTHING;
			`,
		},
		{
			Version:     7,
			Description: "Create audit log",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_logs (
					id BIGSERIAL PRIMARY KEY,
					timestamp TIMESTAMPTZ NOT NULL,
					event_type VARCHAR(100) NOT NULL,
					status VARCHAR(20) NOT NULL,
					actor_id UUID,
					resource_type VARCHAR(50),
					resource_id VARCHAR(255),
					request_id VARCHAR(100),
					message TEXT,
					error_message TEXT,
					metadata JSONB,
					changes JSONB
				);

				CREATE INDEX IF NOT EXISTS idx_audit_logs_timestamp ON audit_logs(timestamp DESC);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_event_type ON audit_logs(event_type);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_actor ON audit_logs(actor_id);
				CREATE INDEX IF NOT EXISTS idx_audit_logs_resource ON audit_logs(resource_type, resource_id);
			`,
		},
		{
			Version:     8,
			Description: "Make usernames unique regardless of case",
			SQL: `
				ALTER TABLE profiles DROP CONSTRAINT IF EXISTS profiles_username_key;
				DROP INDEX IF EXISTS idx_profiles_username_lower;
				CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username_ci ON profiles(LOWER(username));
			`,
		},
	}
}

// RunMigrations executes all pending migrations, each in its own transaction.
func RunMigrations(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if logger == nil {
		logger = observability.Default()
	}

	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if applied[migration.Version] {
			continue
		}

		log := logger.WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		})
		log.Info("running migration")

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
