package checkpoint_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteStore_Persistence(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")

	store1, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	require.NoError(t, store1.Save(ctx, "session-1", []byte("persistent")))
	require.NoError(t, store1.Close())

	// Reopen the database
	store2, err := checkpoint.NewSQLiteStore(dbPath)
	require.NoError(t, err)
	defer store2.Close()

	data, err := store2.Load(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("persistent"), data)
}

func TestSQLiteStore_InvalidPath(t *testing.T) {
	_, err := checkpoint.NewSQLiteStore("/nonexistent/path/db.sqlite")
	assert.Error(t, err)
}

func TestSQLiteStore_CloseIdempotent(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close())
}

func TestSQLiteStore_Saves(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	n, err := store.Saves(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, store.Save(ctx, "session-1", []byte("x")))
	}

	n, err = store.Saves(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSQLiteStore_Concurrent(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	const numGoroutines = 20
	const numOps = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			sessionID := fmt.Sprintf("session-%d", id)
			for j := 0; j < numOps; j++ {
				assert.NoError(t, store.Save(ctx, sessionID, []byte(fmt.Sprintf("%d", j))))
			}
		}(i)
	}
	wg.Wait()

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, infos, numGoroutines)
}
