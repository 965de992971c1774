package history

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, "srv1", "INFO", "first"))
	require.NoError(t, store.Append(ctx, "srv1", "ERROR", "second"))
	require.NoError(t, store.Append(ctx, "srv2", "WARN", "other server"))

	entries, err := store.Recent(ctx, "srv1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Most recent first.
	assert.Equal(t, "second", entries[0].Message)
	assert.Equal(t, "ERROR", entries[0].Level)
	assert.Equal(t, "first", entries[1].Message)
	assert.Equal(t, "INFO", entries[1].Level)
	assert.False(t, entries[0].Timestamp.IsZero())

	// Servers are isolated.
	entries, err = store.Recent(ctx, "srv2", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "other server", entries[0].Message)

	// Unknown server yields no rows, not an error.
	entries, err = store.Recent(ctx, "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestSQLiteStoreLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		require.NoError(t, store.Append(ctx, "srv1", "INFO", fmt.Sprintf("line %02d", i)))
	}

	entries, err := store.Recent(ctx, "srv1", 5)
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "line 19", entries[0].Message)
	assert.Equal(t, "line 15", entries[4].Message)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.Append(ctx, "srv1", "INFO", "survives restart"))
	require.NoError(t, store.Close())

	store, err = OpenSQLite(path)
	require.NoError(t, err)
	defer store.Close()

	entries, err := store.Recent(ctx, "srv1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "survives restart", entries[0].Message)
}

func TestMemoryStoreRingBound(t *testing.T) {
	store := NewMemoryStore(3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Append(ctx, "srv1", "INFO", fmt.Sprintf("line %d", i)))
	}

	entries, err := store.Recent(ctx, "srv1", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3, "ring should cap retained lines")
	assert.Equal(t, "line 4", entries[0].Message)
	assert.Equal(t, "line 2", entries[2].Message)
}
