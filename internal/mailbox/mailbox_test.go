package mailbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/printlink/tunnel/internal/broker"
	brokerredis "github.com/printlink/tunnel/internal/broker/redis"
	"github.com/printlink/tunnel/pkg/tunnel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupTestChannel(t *testing.T, timeout time.Duration) (*Channel, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := brokerredis.Open(context.Background(), broker.Config{URL: "redis://" + mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	ch, err := New(Config{
		Broker:  client,
		Timeout: timeout,
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	return ch, mr
}

func TestNew_RequiresBroker(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestChannel_Key(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)
	assert.Equal(t, "octoprinttunnel.abc", ch.Key("abc"))
}

func TestChannel_PushThenAwait(t *testing.T) {
	ch, mr := setupTestChannel(t, 2*time.Second)
	ctx := context.Background()

	ref := tunnel.NewReference()
	payload := []byte{0x01, 0x00, 0xfe, 0xff}
	require.NoError(t, ch.PushRaw(ctx, ref, payload))

	got, ok, err := ch.AwaitRaw(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, payload, got)

	assert.False(t, mr.Exists(ch.Key(ref)), "mailbox must be deleted after consumption")
}

func TestChannel_DistinctReferences(t *testing.T) {
	ch, mr := setupTestChannel(t, 2*time.Second)
	ctx := context.Background()

	refs := make([]tunnel.Reference, 5)
	for i := range refs {
		refs[i] = tunnel.NewReference()
		require.NoError(t, ch.PushRaw(ctx, refs[i], []byte(refs[i])))
	}

	for i := len(refs) - 1; i >= 0; i-- {
		got, ok, err := ch.AwaitRaw(ctx, refs[i])
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, []byte(refs[i]), got)
		assert.False(t, mr.Exists(ch.Key(refs[i])))
	}
}

func TestChannel_AwaitBlocksUntilPush(t *testing.T) {
	ch, _ := setupTestChannel(t, 5*time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	env := &tunnel.Envelope{Ref: ref, Status: 200, Body: []byte("late")}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		time.Sleep(200 * time.Millisecond)
		assert.NoError(t, ch.Push(ctx, ref, env))
	}()

	got, ok, err := ch.Await(ctx, ref)
	wg.Wait()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env, got)
}

func TestChannel_AwaitTimesOut(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)

	start := time.Now()
	env, ok, err := ch.Await(context.Background(), tunnel.NewReference())
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, env)
	assert.GreaterOrEqual(t, elapsed, 900*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestChannel_UnconsumedMailboxExpires(t *testing.T) {
	ch, mr := setupTestChannel(t, time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	require.NoError(t, ch.PushRaw(ctx, ref, []byte("orphan")))
	assert.True(t, mr.Exists(ch.Key(ref)))
	assert.Equal(t, DefaultRetention, mr.TTL(ch.Key(ref)))

	mr.FastForward(DefaultRetention + time.Second)
	assert.False(t, mr.Exists(ch.Key(ref)))
}

func TestChannel_DecodeFailureIsDistinct(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	require.NoError(t, ch.PushRaw(ctx, ref, []byte{0xff, 0xff}))

	env, ok, err := ch.Await(ctx, ref)
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrDecode)
	assert.False(t, ok)
	assert.Nil(t, env)
}

func TestChannel_SecondConsumerGetsNothing(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	require.NoError(t, ch.PushRaw(ctx, ref, []byte("once")))

	_, ok, err := ch.AwaitRaw(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = ch.AwaitRaw(ctx, ref)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestChannel_RoundTripEnvelope(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	env := &tunnel.Envelope{
		Ref:     ref,
		Status:  404,
		Headers: map[string][]string{"Content-Type": {"text/html"}},
		Body:    []byte("<h1>not found</h1>"),
	}
	require.NoError(t, ch.Push(ctx, ref, env))

	got, ok, err := ch.Await(ctx, ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, env, got)
}

func TestChannel_InvalidReference(t *testing.T) {
	ch, _ := setupTestChannel(t, time.Second)
	ctx := context.Background()

	assert.ErrorIs(t, ch.PushRaw(ctx, "", []byte("x")), tunnel.ErrInvalidReference)
	_, _, err := ch.AwaitRaw(ctx, "")
	assert.ErrorIs(t, err, tunnel.ErrInvalidReference)
}

func TestChannel_Discard(t *testing.T) {
	ch, mr := setupTestChannel(t, time.Second)
	ctx := context.Background()
	ref := tunnel.NewReference()

	require.NoError(t, ch.PushRaw(ctx, ref, []byte("x")))
	require.NoError(t, ch.Discard(ctx, ref))
	assert.False(t, mr.Exists(ch.Key(ref)))
}

func TestChannel_BrokerUnavailable(t *testing.T) {
	ch, mr := setupTestChannel(t, time.Second)
	mr.Close()

	_, _, err := ch.AwaitRaw(context.Background(), tunnel.NewReference())
	require.Error(t, err)
	assert.ErrorIs(t, err, tunnel.ErrBrokerUnavailable)
}
