package profiles

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "profiles.db"))
	require.NoError(t, err)
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetAndGetRole(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()

	require.NoError(t, s.SetRole(ctx, "user-1", "editor"))
	role, err := s.Role(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "editor", role)

	require.NoError(t, s.SetRole(ctx, "user-1", "admin"))
	role, err = s.Role(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", role)
}

func TestRoleNotFound(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.Role(t.Context(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIsAdmin(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.SetRole(ctx, "boss", RoleAdmin))
	require.NoError(t, s.SetRole(ctx, "writer", "editor"))

	for id, want := range map[string]bool{"boss": true, "writer": false, "stranger": false} {
		got, err := s.IsAdmin(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestDeleteRole(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()
	require.NoError(t, s.SetRole(ctx, "user-1", "admin"))

	require.NoError(t, s.DeleteRole(ctx, "user-1"))
	_, err := s.Role(ctx, "user-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteRole(ctx, "user-1"), ErrNotFound)
}

func TestListProfiles(t *testing.T) {
	s := setupTestStore(t)
	ctx := t.Context()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, s.SetRole(ctx, "b", "editor"))
	require.NoError(t, s.SetRole(ctx, "a", "admin"))

	list, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].ID)
	assert.Equal(t, "admin", list[0].Role)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), list[0].UpdatedAt)
	assert.Equal(t, "b", list[1].ID)
}

func TestSetRoleValidates(t *testing.T) {
	s := setupTestStore(t)
	assert.Error(t, s.SetRole(t.Context(), " ", "admin"))
	assert.Error(t, s.SetRole(t.Context(), "user", ""))
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SetRole(t.Context(), "user-1", "admin"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	ok, err := s.IsAdmin(t.Context(), "user-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
