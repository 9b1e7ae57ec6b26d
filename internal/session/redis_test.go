package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/technosurge/leadflow/config"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T, ttl time.Duration) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(
		config.RedisConfig{Addr: mr.Addr()},
		config.SessionConfig{TTL: ttl, KeyPrefix: "test:session:"},
		zap.NewNop(),
	)
	require.NoError(t, err)
	return mr, st
}

func TestRedisStore_Contract(t *testing.T) {
	_, st := setupRedisStore(t, time.Hour)
	storeContract(t, st)
}

func TestRedisStore_KeyPrefixAndTTL(t *testing.T) {
	mr, st := setupRedisStore(t, time.Hour)
	defer st.Close()
	ctx := context.Background()

	require.NoError(t, st.Save(ctx, New("abc")))
	assert.True(t, mr.Exists("test:session:abc"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:abc"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := st.Get(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisStore_NoTTL(t *testing.T) {
	mr, st := setupRedisStore(t, 0)
	defer st.Close()

	require.NoError(t, st.Save(context.Background(), New("abc")))
	assert.Zero(t, mr.TTL("test:session:abc"))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr, st := setupRedisStore(t, 0)
	defer st.Close()

	require.NoError(t, mr.Set("test:session:bad", "{not json"))
	_, _, err := st.Get(context.Background(), "bad")
	assert.Error(t, err)
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(config.RedisConfig{Addr: "127.0.0.1:1"}, config.SessionConfig{}, zap.NewNop())
	assert.Error(t, err)
}

func TestRedisStore_SharedClientNotClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	st := NewRedisStoreWithClient(client, config.SessionConfig{}, nil)
	assert.Equal(t, "leadflow:session:", st.prefix)
	require.NoError(t, st.Close())

	assert.NoError(t, client.Ping(context.Background()).Err())
}

func TestRedisStore_ServerDown(t *testing.T) {
	mr, st := setupRedisStore(t, 0)
	defer st.Close()
	mr.Close()

	_, _, err := st.Get(context.Background(), "abc")
	assert.Error(t, err)
	assert.Error(t, st.Ping(context.Background()))
}
