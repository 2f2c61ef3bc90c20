// Package sqltest opens throwaway databases for store tests: an in-memory
// SQLite database carrying the service schema, or the PostgreSQL named by
// TEST_POSTGRES_PRIMARY.
package sqltest

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

// Schema mirrors the PostgreSQL migrations with SQLite types. UUIDs are TEXT,
// JSON is TEXT, booleans are stored as integers.
const Schema = `
CREATE TABLE profiles (
	id TEXT PRIMARY KEY,
	username TEXT,
	role TEXT NOT NULL DEFAULT 'user',
	is_admin BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX idx_profiles_single_owner ON profiles(role) WHERE role = 'owner';
CREATE UNIQUE INDEX idx_profiles_username_ci ON profiles(LOWER(username));

CREATE TABLE roles (
	name TEXT PRIMARY KEY,
	description TEXT,
	is_system BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE role_permissions (
	role_name TEXT NOT NULL REFERENCES roles(name) ON DELETE CASCADE,
	perm TEXT NOT NULL,
	PRIMARY KEY (role_name, perm)
);

CREATE TABLE groups (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE group_members (
	group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	joined_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (group_id, user_id)
);

CREATE TABLE group_invitations (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
	invited_user_id TEXT NOT NULL,
	invited_by TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	responded_at TIMESTAMP
);

CREATE TABLE lists (
	id TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	user_id TEXT,
	name TEXT NOT NULL,
	is_public BOOLEAN NOT NULL DEFAULT 0,
	is_global BOOLEAN NOT NULL DEFAULT 0,
	group_id TEXT REFERENCES groups(id) ON DELETE SET NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX idx_lists_owner_name ON lists(owner_id, name) WHERE group_id IS NULL;

CREATE TABLE list_members (
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	role TEXT NOT NULL DEFAULT 'member',
	PRIMARY KEY (list_id, user_id)
);

CREATE TABLE list_items (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	user_id TEXT,
	added_by TEXT,
	anime_id INTEGER NOT NULL,
	anime_title TEXT,
	anime_data TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (list_id, anime_id)
);

CREATE TABLE proposals (
	id TEXT PRIMARY KEY,
	list_id TEXT NOT NULL REFERENCES lists(id) ON DELETE CASCADE,
	user_id TEXT NOT NULL,
	anime_id INTEGER NOT NULL,
	anime_title TEXT,
	anime_data TEXT,
	status TEXT NOT NULL DEFAULT 'pending',
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	cancelled_at TIMESTAMP,
	cancelled_by TEXT
);

CREATE TABLE watched (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	anime_id INTEGER NOT NULL,
	anime_title TEXT,
	anime_data TEXT,
	list_id TEXT,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (user_id, anime_id)
);

CREATE TABLE notifications (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	type TEXT NOT NULL,
	message TEXT NOT NULL DEFAULT '',
	payload TEXT,
	is_read BOOLEAN NOT NULL DEFAULT 0,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TIMESTAMP NOT NULL,
	event_type TEXT NOT NULL,
	status TEXT NOT NULL,
	actor_id TEXT,
	resource_type TEXT,
	resource_id TEXT,
	request_id TEXT,
	message TEXT,
	error_message TEXT,
	metadata TEXT,
	changes TEXT
);

INSERT INTO roles (name, description, is_system) VALUES
	('owner', 'Site owner', 1),
	('admin', 'Administrator', 1),
	('moderator', 'Moderator', 1),
	('member', 'Member', 1),
	('user', 'User', 1),
	('guest', 'Guest', 1);

INSERT INTO role_permissions (role_name, perm) VALUES
	('admin', 'delete_proposals_any'),
	('admin', 'delete_profile'),
	('admin', 'manage_lists'),
	('admin', 'change_username'),
	('admin', 'manage_roles'),
	('moderator', 'delete_proposals_any'),
	('moderator', 'manage_lists');
`

var dbCounter int64

// Open returns a fresh in-memory SQLite database with Schema applied. The
// pool is pinned to one connection, so callers must close rows before
// issuing the next query.
func Open(t testing.TB) *sql.DB {
	t.Helper()

	name := fmt.Sprintf("file:watchlist_%d?mode=memory&_foreign_keys=on", atomic.AddInt64(&dbCounter, 1))
	db, err := sql.Open("sqlite3", name)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		t.Fatalf("failed to apply test schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

// Fixtures inserts rows directly, bypassing the services under test.
type Fixtures struct {
	t    testing.TB
	db   *sql.DB
	base time.Time

	mu   sync.Mutex
	tick int
}

// NewFixtures returns fixture helpers over db. Each inserted row gets a
// strictly increasing created_at so "newest first" orderings are stable.
func NewFixtures(t testing.TB, db *sql.DB) *Fixtures {
	return &Fixtures{t: t, db: db, base: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the next fixture timestamp.
func (f *Fixtures) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tick++
	return f.base.Add(time.Duration(f.tick) * time.Minute)
}

func (f *Fixtures) exec(query string, args ...interface{}) {
	f.t.Helper()
	if _, err := f.db.ExecContext(context.Background(), query, args...); err != nil {
		f.t.Fatalf("fixture insert failed: %v\n%s", err, query)
	}
}

// Profile inserts a member and returns its id.
func (f *Fixtures) Profile(username, role string, isAdmin bool) string {
	f.t.Helper()
	id := uuid.NewString()
	var name interface{}
	if username != "" {
		name = username
	}
	f.exec(`INSERT INTO profiles (id, username, role, is_admin, created_at) VALUES ($1, $2, $3, $4, $5)`,
		id, name, role, isAdmin, f.Now())
	return id
}

// Group inserts a group with its owner member row and returns its id.
func (f *Fixtures) Group(name, ownerID string) string {
	f.t.Helper()
	id := uuid.NewString()
	now := f.Now()
	f.exec(`INSERT INTO groups (id, name, owner_id, created_at) VALUES ($1, $2, $3, $4)`, id, name, ownerID, now)
	f.exec(`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, 'owner', $3)`, id, ownerID, now)
	return id
}

// GroupMember adds userID to groupID with role.
func (f *Fixtures) GroupMember(groupID, userID, role string) {
	f.t.Helper()
	f.exec(`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, $3, $4)`,
		groupID, userID, role, f.Now())
}

// ListOptions describes a list fixture.
type ListOptions struct {
	Public  bool
	Global  bool
	GroupID string
}

// List inserts a list owned by ownerID (with an owner list membership) and
// returns its id.
func (f *Fixtures) List(ownerID, name string, opts ListOptions) string {
	f.t.Helper()
	id := uuid.NewString()
	var groupID interface{}
	if opts.GroupID != "" {
		groupID = opts.GroupID
	}
	f.exec(`INSERT INTO lists (id, owner_id, user_id, name, is_public, is_global, group_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, ownerID, ownerID, name, opts.Public, opts.Global, groupID, f.Now())
	f.exec(`INSERT INTO list_members (list_id, user_id, role) VALUES ($1, $2, 'owner')`, id, ownerID)
	return id
}

// ListMember adds a direct list membership.
func (f *Fixtures) ListMember(listID, userID string) {
	f.t.Helper()
	f.exec(`INSERT INTO list_members (list_id, user_id, role) VALUES ($1, $2, 'member')`, listID, userID)
}

// Proposal inserts a proposal with status and returns its id.
func (f *Fixtures) Proposal(listID, userID string, animeID int64, title, status string) string {
	f.t.Helper()
	id := uuid.NewString()
	now := f.Now()
	f.exec(`INSERT INTO proposals (id, list_id, user_id, anime_id, anime_title, anime_data, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		id, listID, userID, animeID, title, `{}`, status, now, now)
	return id
}

// Invitation inserts a group invitation and returns its id.
func (f *Fixtures) Invitation(groupID, invitedUserID, invitedBy, status string) string {
	f.t.Helper()
	id := uuid.NewString()
	f.exec(`INSERT INTO group_invitations (id, group_id, invited_user_id, invited_by, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, groupID, invitedUserID, invitedBy, status, f.Now())
	return id
}

// Notification inserts a notification and returns its id.
func (f *Fixtures) Notification(userID, kind string, read bool, at time.Time) string {
	f.t.Helper()
	id := uuid.NewString()
	f.exec(`INSERT INTO notifications (id, user_id, type, message, payload, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, userID, kind, kind, `{}`, read, at)
	return id
}

// RequirePostgres returns a connection to TEST_POSTGRES_PRIMARY, skipping the
// test when it is unset, unreachable, or when running with -short.
func RequirePostgres(t testing.TB) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping database test in short mode")
	}
	dbURL := os.Getenv("TEST_POSTGRES_PRIMARY")
	if dbURL == "" {
		t.Skip("Skipping test: TEST_POSTGRES_PRIMARY environment variable not set (database not available)")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Skipf("Failed to connect to database: %v", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("Database not reachable: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}
