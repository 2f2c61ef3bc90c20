package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// ProcedureNames lists the privileged procedures the gateway can use.
var ProcedureNames = []string{
	"whoami_flags",
	"admin_list_users",
	"list_my_groups",
	"group_role",
	"get_group_members",
	"can_access_list",
	"update_proposal_status",
	"profiles_suggest",
	"profile_id_by_username",
}

// The procedures run as their owner (SECURITY DEFINER) so they can read rows
// that per-row policies would hide from the calling role.
var procedures = []string{
	`CREATE OR REPLACE FUNCTION whoami_flags(p_uid UUID)
	RETURNS TABLE (role TEXT, is_admin BOOLEAN)
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT p.role, p.is_admin FROM profiles p WHERE p.id = p_uid
	$$`,

	`CREATE OR REPLACE FUNCTION admin_list_users(p_search TEXT, p_limit INT, p_offset INT)
	RETURNS TABLE (id UUID, username TEXT, role TEXT, is_admin BOOLEAN, created_at TIMESTAMPTZ, total_count BIGINT)
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT p.id, p.username, p.role, p.is_admin, p.created_at, COUNT(*) OVER () AS total_count
		FROM profiles p
		WHERE COALESCE(p_search, '') = '' OR p.username ILIKE '%' || p_search || '%'
		ORDER BY p.created_at DESC
		LIMIT p_limit OFFSET p_offset
	$$`,

	`CREATE OR REPLACE FUNCTION list_my_groups(p_uid UUID)
	RETURNS TABLE (id UUID, name TEXT, owner_id UUID, created_at TIMESTAMPTZ, my_role TEXT)
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT g.id, g.name, g.owner_id, g.created_at,
			CASE WHEN g.owner_id = p_uid THEN 'owner' ELSE COALESCE(gm.role, 'member') END AS my_role
		FROM groups g
		LEFT JOIN group_members gm ON gm.group_id = g.id AND gm.user_id = p_uid
		WHERE g.owner_id = p_uid OR gm.user_id IS NOT NULL
		ORDER BY g.created_at DESC
	$$`,

	`CREATE OR REPLACE FUNCTION group_role(p_gid UUID, p_uid UUID)
	RETURNS TEXT
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT CASE
			WHEN EXISTS (SELECT 1 FROM groups g WHERE g.id = p_gid AND g.owner_id = p_uid) THEN 'owner'
			ELSE (SELECT gm.role FROM group_members gm WHERE gm.group_id = p_gid AND gm.user_id = p_uid)
		END
	$$`,

	`CREATE OR REPLACE FUNCTION get_group_members(p_gid UUID)
	RETURNS TABLE (user_id UUID, username TEXT, role TEXT, joined_at TIMESTAMPTZ)
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT gm.user_id, p.username, gm.role, gm.joined_at
		FROM group_members gm
		LEFT JOIN profiles p ON p.id = gm.user_id
		WHERE gm.group_id = p_gid
		ORDER BY gm.joined_at ASC
	$$`,

	`CREATE OR REPLACE FUNCTION can_access_list(p_lid UUID, p_uid UUID)
	RETURNS BOOLEAN
	LANGUAGE plpgsql STABLE SECURITY DEFINER AS $$
	DECLARE
		l lists%ROWTYPE;
	BEGIN
		SELECT * INTO l FROM lists WHERE id = p_lid;
		IF NOT FOUND OR p_uid IS NULL THEN
			RETURN FALSE;
		END IF;
		IF l.is_global OR l.owner_id = p_uid THEN
			RETURN TRUE;
		END IF;
		IF l.group_id IS NOT NULL THEN
			RETURN EXISTS (SELECT 1 FROM groups g WHERE g.id = l.group_id AND g.owner_id = p_uid)
				OR EXISTS (SELECT 1 FROM group_members gm WHERE gm.group_id = l.group_id AND gm.user_id = p_uid);
		END IF;
		RETURN EXISTS (SELECT 1 FROM list_members lm WHERE lm.list_id = p_lid AND lm.user_id = p_uid);
	END
	$$`,

	`CREATE OR REPLACE FUNCTION update_proposal_status(p_pid UUID, p_status TEXT, p_uid UUID)
	RETURNS TABLE (status TEXT, previous TEXT, changed BOOLEAN, proposer_id UUID, list_id UUID, anime_id BIGINT, anime_title TEXT)
	LANGUAGE plpgsql SECURITY DEFINER AS $$
	#variable_conflict use_column
	DECLARE
		p proposals%ROWTYPE;
		target TEXT := LOWER(TRIM(p_status));
		current_status TEXT;
		is_mod_owner BOOLEAN;
	BEGIN
		IF target = 'approved' THEN
			target := 'accepted';
		END IF;
		IF target NOT IN ('pending', 'accepted', 'rejected', 'cancelled') THEN
			RAISE EXCEPTION 'invalid_status';
		END IF;

		SELECT * INTO p FROM proposals pr WHERE pr.id = p_pid;
		IF NOT FOUND THEN
			RAISE EXCEPTION 'not_found';
		END IF;
		current_status := CASE WHEN p.status = 'approved' THEN 'accepted' ELSE p.status END;

		IF NOT can_access_list(p.list_id, p_uid) THEN
			RAISE EXCEPTION 'forbidden';
		END IF;

		SELECT (l.owner_id = p_uid) OR EXISTS (SELECT 1 FROM groups g WHERE g.id = l.group_id AND g.owner_id = p_uid)
			INTO is_mod_owner
			FROM lists l WHERE l.id = p.list_id;

		IF current_status = 'cancelled' AND target <> 'cancelled' THEN
			RAISE EXCEPTION 'invalid_transition';
		END IF;

		IF target IN ('accepted', 'rejected') AND p.user_id = p_uid AND NOT is_mod_owner THEN
			RAISE EXCEPTION 'self_moderation_forbidden';
		ELSIF target = 'pending' AND NOT is_mod_owner THEN
			RAISE EXCEPTION 'only_owner_can_reset_to_pending';
		ELSIF target = 'cancelled' AND p.user_id <> p_uid AND NOT is_mod_owner THEN
			RAISE EXCEPTION 'only_author_or_owner_can_cancel';
		END IF;

		IF current_status = target THEN
			RETURN QUERY SELECT target, current_status, FALSE, p.user_id, p.list_id, p.anime_id, p.anime_title;
			RETURN;
		END IF;

		IF target = 'cancelled' THEN
			UPDATE proposals SET status = target, updated_at = NOW(), cancelled_at = NOW(), cancelled_by = p_uid
				WHERE id = p_pid;
		ELSE
			UPDATE proposals SET status = target, updated_at = NOW(), cancelled_at = NULL, cancelled_by = NULL
				WHERE id = p_pid;
		END IF;

		RETURN QUERY SELECT target, current_status, TRUE, p.user_id, p.list_id, p.anime_id, p.anime_title;
	END
	$$`,

	`CREATE OR REPLACE FUNCTION profiles_suggest(p_q TEXT, p_lim INT)
	RETURNS TABLE (id UUID, username TEXT)
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT p.id, p.username FROM profiles p
		WHERE p.username IS NOT NULL AND p.username ILIKE p_q || '%'
		ORDER BY p.username
		LIMIT p_lim
	$$`,

	`CREATE OR REPLACE FUNCTION profile_id_by_username(p_username TEXT)
	RETURNS UUID
	LANGUAGE sql STABLE SECURITY DEFINER AS $$
		SELECT p.id FROM profiles p WHERE LOWER(p.username) = LOWER(TRIM(p_username)) LIMIT 1
	$$`,
}

// InstallProcedures creates (or replaces) the privileged procedures.
func InstallProcedures(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	for i, stmt := range procedures {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to install procedure %s: %w", ProcedureNames[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit procedures: %w", err)
	}
	return nil
}
