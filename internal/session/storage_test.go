package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"train-console/internal/domain"
)

func sampleSession() *domain.Session {
	return &domain.Session{
		UserID:      "42",
		Username:    "asha",
		IsAdmin:     true,
		Token:       "token-value",
		TokenExpiry: time.Date(2030, 5, 1, 10, 0, 0, 0, time.UTC),
		AdminAPIKey: "admin-key",
	}
}

// storageContract runs the behaviour every CredentialStorage must share
func storageContract(t *testing.T, storage domain.CredentialStorage) {
	t.Helper()
	ctx := context.Background()

	_, err := storage.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)

	require.NoError(t, storage.Save(ctx, sampleSession()))

	loaded, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, sampleSession(), loaded)

	replacement := sampleSession()
	replacement.IsAdmin = false
	replacement.AdminAPIKey = ""
	require.NoError(t, storage.Save(ctx, replacement))

	loaded, err = storage.Load(ctx)
	require.NoError(t, err)
	assert.False(t, loaded.IsAdmin)
	assert.Empty(t, loaded.AdminAPIKey)

	require.NoError(t, storage.Clear(ctx))
	require.NoError(t, storage.Clear(ctx))

	_, err = storage.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemoryStorage(t *testing.T) {
	storageContract(t, NewMemoryStorage())
}

func TestMemoryStorage_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	storage := NewMemoryStorage()
	original := sampleSession()
	require.NoError(t, storage.Save(ctx, original))

	original.Token = "mutated"
	loaded, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-value", loaded.Token)

	loaded.Token = "mutated again"
	again, err := storage.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "token-value", again.Token)
}

func TestFileStorage(t *testing.T) {
	storageContract(t, NewFileStorage(filepath.Join(t.TempDir(), "nested", "session.json")))
}

func TestFileStorage_WritesPrivateFileWithoutLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.json")
	storage := NewFileStorage(path)

	require.NoError(t, storage.Save(context.Background(), sampleSession()))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileStorage_CorruptFileIsNoSession(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"token":`), 0o600))

	_, err := NewFileStorage(path).Load(context.Background())

	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFileStorage_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, NewFileStorage(path).Save(context.Background(), sampleSession()))

	loaded, err := NewFileStorage(path).Load(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "admin-key", loaded.AdminAPIKey)
}
