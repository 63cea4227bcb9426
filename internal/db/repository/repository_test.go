package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/clearcut-studio/studio-server/internal/db"
	"github.com/clearcut-studio/studio-server/internal/db/drivers"
	"github.com/clearcut-studio/studio-server/internal/db/seal"
	"github.com/clearcut-studio/studio-server/internal/pipeline"
)

var dbSerial int

func testDB(t *testing.T) *bun.DB {
	t.Helper()

	dbSerial++
	dsn := fmt.Sprintf("file:repotest%d?mode=memory&cache=shared", dbSerial)

	driver, err := drivers.NewSQLiteDriver(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { driver.GetDB().Close() })

	require.NoError(t, db.CreateSchema(context.Background(), driver))
	return driver.GetDB()
}

func TestProviderKeySetAndGet(t *testing.T) {
	repo := NewProviderKeyRepository(testDB(t), seal.New("test-passphrase"))
	ctx := context.Background()

	require.NoError(t, repo.SetKey(ctx, "removebg", "rbg-1234567890"))

	key, err := repo.Key(ctx, "removebg")
	require.NoError(t, err)
	assert.Equal(t, "rbg-1234567890", key)
}

func TestProviderKeyMissingIsEmpty(t *testing.T) {
	repo := NewProviderKeyRepository(testDB(t), seal.New("p"))

	key, err := repo.Key(context.Background(), "never-stored")
	require.NoError(t, err)
	assert.Empty(t, key, "a missing key defers to the env fallback")
}

func TestProviderKeyUpsertReplaces(t *testing.T) {
	repo := NewProviderKeyRepository(testDB(t), seal.New("p"))
	ctx := context.Background()

	require.NoError(t, repo.SetKey(ctx, "clipdrop", "old-key-value"))
	require.NoError(t, repo.SetKey(ctx, "clipdrop", "new-key-value"))

	key, err := repo.Key(ctx, "clipdrop")
	require.NoError(t, err)
	assert.Equal(t, "new-key-value", key)

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)
}

func TestProviderKeyStoredSealed(t *testing.T) {
	repo := NewProviderKeyRepository(testDB(t), seal.New("p"))
	ctx := context.Background()

	require.NoError(t, repo.SetKey(ctx, "removebg", "super-secret-key"))

	keys, err := repo.ListKeys(ctx)
	require.NoError(t, err)
	require.Len(t, keys, 1)

	assert.NotContains(t, string(keys[0].Ciphertext), "super-secret-key")
	assert.NotEqual(t, "super-secret-key", keys[0].KeyMask)
	assert.NotEmpty(t, keys[0].KeyMask)
}

func TestProviderKeyDelete(t *testing.T) {
	repo := NewProviderKeyRepository(testDB(t), seal.New("p"))
	ctx := context.Background()

	require.NoError(t, repo.SetKey(ctx, "removebg", "key"))
	require.NoError(t, repo.DeleteKey(ctx, "removebg"))

	key, err := repo.Key(ctx, "removebg")
	require.NoError(t, err)
	assert.Empty(t, key)
}

func TestTokenStoreRoundTrip(t *testing.T) {
	repo := NewTokenRepository(testDB(t), seal.New("p"))
	ctx := context.Background()

	token, err := repo.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token, "no token stored yet")

	require.NoError(t, repo.SetToken(ctx, "oauth-token-1"))
	token, err = repo.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "oauth-token-1", token)

	require.NoError(t, repo.SetToken(ctx, "oauth-token-2"))
	token, err = repo.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "oauth-token-2", token, "setting again replaces the token")

	require.NoError(t, repo.ClearToken(ctx))
	token, err = repo.Token(ctx)
	require.NoError(t, err)
	assert.Empty(t, token)
}

func TestRecentFoldersDeduplicate(t *testing.T) {
	repo := NewRecentFolderRepository(testDB(t))
	ctx := context.Background()

	first := pipeline.RecentFolder{
		Name: "shoes", Path: "/Товары/shoes",
		FilesProcessed: 3, Timestamp: time.Now().Add(-time.Hour),
	}
	second := pipeline.RecentFolder{
		Name: "shoes", Path: "/Товары/shoes",
		FilesProcessed: 5, DesignCreated: true,
		Errors:    []string{"b.jpg: timeout"},
		Timestamp: time.Now(),
	}

	require.NoError(t, repo.AddRecentFolder(ctx, first))
	require.NoError(t, repo.AddRecentFolder(ctx, second))

	folders, err := repo.ListRecentFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, 1, "re-processing a folder replaces its entry")

	assert.Equal(t, 5, folders[0].FilesProcessed)
	assert.True(t, folders[0].DesignCreated)
	assert.Contains(t, folders[0].Errors, "b.jpg: timeout")
}

func TestRecentFoldersTrimToCap(t *testing.T) {
	repo := NewRecentFolderRepository(testDB(t))
	ctx := context.Background()

	base := time.Now().Add(-time.Duration(MaxRecentFolders+10) * time.Minute)
	for i := 0; i < MaxRecentFolders+5; i++ {
		rec := pipeline.RecentFolder{
			Name:      fmt.Sprintf("folder-%02d", i),
			Path:      fmt.Sprintf("/Товары/folder-%02d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.AddRecentFolder(ctx, rec))
	}

	folders, err := repo.ListRecentFolders(ctx)
	require.NoError(t, err)
	require.Len(t, folders, MaxRecentFolders)

	// Newest first, oldest five dropped.
	assert.Equal(t, fmt.Sprintf("folder-%02d", MaxRecentFolders+4), folders[0].Name)
	for _, f := range folders {
		assert.GreaterOrEqual(t, f.Name, "folder-05")
	}
}
