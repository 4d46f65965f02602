package checkpoint_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/randalmurphal/agentflow/pkg/flowgraph/checkpoint"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *backend.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return mr, client
}

func TestRedisStore_KeyLayout(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := checkpoint.NewRedisStoreFromClient(client, checkpoint.WithPrefix("test:"))
	defer store.Close()

	require.NoError(t, store.Save(ctx, "abc", []byte(`{"a":1}`)))

	assert.True(t, mr.Exists("test:abc"))
	members, err := mr.ZMembers("test:index")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, members)

	require.NoError(t, store.Delete(ctx, "abc"))
	assert.False(t, mr.Exists("test:abc"))
	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRedisStore_TTLExpiresSessions(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := checkpoint.NewRedisStoreFromClient(client, checkpoint.WithTTL(time.Minute))
	defer store.Close()

	require.NoError(t, store.Save(ctx, "short-lived", []byte("data")))
	assert.Equal(t, time.Minute, mr.TTL("agentflow:session:short-lived"))

	mr.FastForward(2 * time.Minute)

	_, err := store.Load(ctx, "short-lived")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	infos, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestRedisStore_NoTTLByDefault(t *testing.T) {
	ctx := context.Background()
	mr, client := newRedis(t)
	store := checkpoint.NewRedisStoreFromClient(client)
	defer store.Close()

	require.NoError(t, store.Save(ctx, "durable", []byte("data")))
	assert.Equal(t, time.Duration(0), mr.TTL("agentflow:session:durable"))
}
