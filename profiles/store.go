// Package profiles keeps the role of each identity-provider user in a
// local SQLite database, mirroring the user_profiles table of the
// identity provider's Postgres schema.
package profiles

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// RoleAdmin is the role allowed to use the Git Gateway.
const RoleAdmin = "admin"

// ErrNotFound is returned when a user has no profile.
var ErrNotFound = errors.New("profiles: user not found")

// Profile is one row of user_profiles.
type Profile struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store wraps the SQLite database holding user_profiles.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path, creating its directory
// and the schema when missing.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the token exchange read while the CLI writes; writers wait
	// on the busy timeout instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS user_profiles (
    id TEXT PRIMARY KEY,
    role TEXT NOT NULL,
    updated_at TEXT NOT NULL
);
`)
	return err
}

// Role returns the role of a user.
func (s *Store) Role(ctx context.Context, id string) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM user_profiles WHERE id = ?`, id).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return "", err
	}
	return role, nil
}

// IsAdmin reports whether the user holds the admin role. Unknown users
// are not admins.
func (s *Store) IsAdmin(ctx context.Context, id string) (bool, error) {
	role, err := s.Role(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == RoleAdmin, nil
}

// SetRole creates or replaces the profile of a user.
func (s *Store) SetRole(ctx context.Context, id, role string) error {
	id, role = strings.TrimSpace(id), strings.TrimSpace(role)
	if id == "" || role == "" {
		return errors.New("profiles: id and role are required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO user_profiles (id, role, updated_at) VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET role = excluded.role, updated_at = excluded.updated_at
`, id, role, s.now().UTC().Format(time.RFC3339))
	return err
}

// DeleteRole removes the profile of a user.
func (s *Store) DeleteRole(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_profiles WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns every profile ordered by id.
func (s *Store) List(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, role, updated_at FROM user_profiles ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	profiles := []Profile{}
	for rows.Next() {
		var p Profile
		var updated string
		if err := rows.Scan(&p.ID, &p.Role, &updated); err != nil {
			return nil, err
		}
		p.UpdatedAt, _ = time.Parse(time.RFC3339, updated)
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}
