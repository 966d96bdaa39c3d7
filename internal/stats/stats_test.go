package stats

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

func setupTestAggregator(t *testing.T) (*Aggregator, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client, err := brokerredis.Open(context.Background(), broker.Config{URL: "redis://" + mr.Addr()}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	agg, err := New(Config{Broker: client, Namespace: "octoprinttunnel", Logger: zap.NewNop()})
	require.NoError(t, err)
	return agg, mr
}

var march = time.Date(2026, time.March, 14, 10, 0, 0, 0, time.UTC)

func TestAggregator_Key(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	assert.Equal(t, "octoprinttunnel.stats.202603", agg.Key(march))
}

func TestFields(t *testing.T) {
	fields := Fields(Sent, 7, 42, tunnel.TransportWebSocket)
	assert.Equal(t, []string{
		"7.42.sent.ws", "7.42.sent", "7.42.total",
		"7.sent.ws", "7.sent", "7.total",
		"sent.ws", "sent",
		"total.ws", "total",
	}, fields)
}

func TestAggregator_RecordSent_FanOut(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.RecordSent(ctx, march, 7, 42, "ws", 10))
	require.NoError(t, agg.RecordSent(ctx, march, 7, 42, "ws", 5))

	bucket, err := agg.Get(ctx, march)
	require.NoError(t, err)

	for _, field := range []string{
		"7.42.sent.ws", "7.42.sent", "7.42.total",
		"7.sent.ws", "7.sent", "7.total",
		"sent.ws", "sent", "total.ws", "total",
	} {
		assert.Equal(t, int64(15), bucket.Value(field), field)
	}
	assert.Len(t, bucket, 10)
}

func TestAggregator_SentAndReceivedShareTotals(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.RecordSent(ctx, march, 1, 2, "ws", 100))
	require.NoError(t, agg.RecordReceived(ctx, march, 1, 2, "http", 40))
	require.NoError(t, agg.RecordReceived(ctx, march, 1, 3, "ws", 2))
	require.NoError(t, agg.RecordSent(ctx, march, 9, 4, "ws", 1))

	bucket, err := agg.Get(ctx, march)
	require.NoError(t, err)

	assert.Equal(t, int64(100), bucket.Value("1.2.sent"))
	assert.Equal(t, int64(40), bucket.Value("1.2.received"))
	assert.Equal(t, int64(140), bucket.Value("1.2.total"))
	assert.Equal(t, int64(2), bucket.Value("1.3.total"))
	assert.Equal(t, int64(142), bucket.Value("1.total"))
	assert.Equal(t, int64(42), bucket.Value("1.received"))
	assert.Equal(t, int64(101), bucket.Value("sent"))
	assert.Equal(t, int64(42), bucket.Value("received"))
	assert.Equal(t, int64(103), bucket.Value("total.ws"))
	assert.Equal(t, int64(40), bucket.Value("total.http"))
	assert.Equal(t, int64(143), bucket.Value("total"))

	printer := bucket.Printer(1, 2)
	assert.Equal(t, int64(140), printer.Value("total"))
	assert.Equal(t, int64(100), printer.Value("sent.ws"))

	user := bucket.User(9)
	assert.Equal(t, int64(1), user.Value("total"))
	assert.Equal(t, int64(1), user.Value("4.sent"))
}

func TestAggregator_NegativeDelta(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.RecordSent(ctx, march, 1, 1, "ws", 10))
	require.NoError(t, agg.RecordSent(ctx, march, 1, 1, "ws", -3))

	bucket, err := agg.Get(ctx, march)
	require.NoError(t, err)
	assert.Equal(t, int64(7), bucket.Value("total"))
}

func TestAggregator_MonthBuckets(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	ctx := context.Background()

	april := march.AddDate(0, 1, 0)
	require.NoError(t, agg.RecordSent(ctx, march, 1, 1, "ws", 1))
	require.NoError(t, agg.RecordSent(ctx, april, 1, 1, "ws", 2))

	months, err := agg.Months(ctx, march, april.AddDate(0, 1, 0))
	require.NoError(t, err)
	require.Len(t, months, 3)
	assert.Equal(t, int64(1), months["202603"].Value("total"))
	assert.Equal(t, int64(2), months["202604"].Value("total"))
	assert.Empty(t, months["202605"])

	_, err = agg.Months(ctx, april, march)
	assert.Error(t, err)
}

func TestAggregator_BucketExpiry(t *testing.T) {
	agg, mr := setupTestAggregator(t)
	ctx := context.Background()

	require.NoError(t, agg.RecordReceived(ctx, march, 1, 1, "ws", 1))
	assert.Equal(t, DefaultRetention, mr.TTL(agg.Key(march)))

	mr.FastForward(DefaultRetention + time.Second)
	bucket, err := agg.Get(ctx, march)
	require.NoError(t, err)
	assert.Empty(t, bucket)
}

func TestAggregator_ConcurrentUpdates(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, agg.RecordSent(ctx, march, 5, 6, "ws", 3))
		}()
	}
	wg.Wait()

	bucket, err := agg.Get(ctx, march)
	require.NoError(t, err)
	for _, f := range Fields(Sent, 5, 6, "ws") {
		assert.Equal(t, int64(3*workers), bucket.Value(f), f)
	}
}

func TestAggregator_RejectsDottedTransport(t *testing.T) {
	agg, _ := setupTestAggregator(t)
	err := agg.RecordSent(context.Background(), march, 1, 1, "a.b", 1)
	assert.Error(t, err)
}

func TestAggregator_SkipsGarbageFields(t *testing.T) {
	agg, mr := setupTestAggregator(t)

	mr.HSet(agg.Key(march), "total", "5")
	mr.HSet(agg.Key(march), "junk", "abc")

	bucket, err := agg.Get(context.Background(), march)
	require.NoError(t, err)
	assert.Equal(t, Bucket{"total": 5}, bucket)
}

func TestParseMonth(t *testing.T) {
	m, err := ParseMonth("202603")
	require.NoError(t, err)
	assert.Equal(t, "202603", MonthOf(m))

	_, err = ParseMonth("2026-03")
	assert.Error(t, err)
}
