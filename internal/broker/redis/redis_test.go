package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/printlink/tunnel/internal/broker"
	"github.com/printlink/tunnel/pkg/tunnel"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := Open(context.Background(), broker.Config{URL: "redis://" + mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestOpen_InvalidURL(t *testing.T) {
	_, err := Open(context.Background(), broker.Config{URL: "://nope"}, nil)
	assert.Error(t, err)

	_, err = Open(context.Background(), broker.Config{}, nil)
	assert.Error(t, err)
}

func TestOpen_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Open(context.Background(), broker.Config{URL: "redis://" + addr, DialTimeout: 200 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrBrokerUnavailable)
}

func TestClient_StringGetSet(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	_, ok, err := client.GetString(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, client.SetString(ctx, "k", "v", time.Minute))
	val, ok, err := client.GetString(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", val)

	mr.FastForward(61 * time.Second)
	_, ok, err = client.GetString(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_BinarySafe(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	payload := []byte{0x00, 0xff, 0x10, 0x80, 0x00}
	require.NoError(t, client.Set(ctx, "bin", payload, 0))

	got, ok, err := client.Get(ctx, "bin")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, payload, got)

	ttl, err := client.TTL(ctx, "bin")
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), ttl)
}

func TestClient_HSetWithExpiry(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	err := client.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}, 10*time.Second)
	require.NoError(t, err)

	all, err := client.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	val, ok, err := client.HGet(ctx, "h", "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", val)

	_, ok, err = client.HGet(ctx, "h", "zzz")
	require.NoError(t, err)
	assert.False(t, ok)

	ttl, err := client.TTL(ctx, "h")
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	mr.FastForward(11 * time.Second)
	all, err = client.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestClient_TTLMissingKey(t *testing.T) {
	client, _ := setupTestClient(t)

	_, err := client.TTL(context.Background(), "nope")
	assert.ErrorIs(t, err, broker.ErrKeyMissing)
}

func TestClient_Incr(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := client.Incr(ctx, "counter")
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}
}

func TestClient_PushPop(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.LPush(ctx, "list", []byte("one")))

	val, ok, err := client.BLPop(ctx, "list", time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("one"), val)
}

func TestClient_BLPopTimeout(t *testing.T) {
	client, _ := setupTestClient(t)

	start := time.Now()
	_, ok, err := client.BLPop(context.Background(), "empty", 500*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, ok)
	// Rounded up to one whole second.
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestClient_Pipeline(t *testing.T) {
	client, mr := setupTestClient(t)
	ctx := context.Background()

	err := client.Pipeline(ctx, func(b broker.Batch) {
		b.HIncrBy("stats", "x", 5)
		b.HIncrBy("stats", "x", 2)
		b.Incr("n")
		b.ZAdd("z", 0.5, "m1")
		b.ZAdd("z", 0.9, "m2")
		b.Expire("stats", time.Hour)
	})
	require.NoError(t, err)

	assert.Equal(t, "7", mr.HGet("stats", "x"))
	n, err := mr.Get("n")
	require.NoError(t, err)
	assert.Equal(t, "1", n)

	members, err := client.ZRevRangeWithScores(ctx, "z")
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, "m2", members[0].Member)
	assert.Equal(t, 0.9, members[0].Score)
}

func TestClient_WrongTypeIsCommandError(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetString(ctx, "str", "x", 0))

	err := client.LPush(ctx, "str", []byte("y"))
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrBrokerCommand)
	assert.NotErrorIs(t, err, tunnel.ErrBrokerUnavailable)
}

func TestClient_DelExists(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.SetString(ctx, "a", "1", 0))

	ok, err := client.Exists(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)

	n, err := client.Del(ctx, "a", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ok, err = client.Exists(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClient_UnavailableAfterServerStops(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewFromClient(goredis.NewClient(&goredis.Options{
		Addr:        mr.Addr(),
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	}), nil)
	defer client.Close()

	mr.Close()

	_, _, err := client.GetString(context.Background(), "k")
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrBrokerUnavailable)
}
