// Package redis provides a go-redis implementation of the broker contract.
package redis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/printlink/tunnel/internal/broker"
	"github.com/printlink/tunnel/pkg/tunnel"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultPoolSize    = 64
)

// Client implements broker.Broker on a single go-redis connection pool. The
// text and binary views share the pool; go-redis never decodes values, so
// byte payloads survive unchanged.
type Client struct {
	rdb    goredis.UniversalClient
	logger *zap.Logger
}

var _ broker.Broker = (*Client)(nil)

// Open connects to the broker described by cfg and verifies it with a ping.
func Open(ctx context.Context, cfg broker.Config, logger *zap.Logger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("broker url is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker url: %w", err)
	}

	opts.DialTimeout = cfg.DialTimeout
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = defaultDialTimeout
	}
	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	// Let caller deadlines interrupt blocking pops.
	opts.ContextTimeoutEnabled = true

	c := NewFromClient(goredis.NewClient(opts), logger)
	if err := c.Ping(ctx); err != nil {
		_ = c.rdb.Close()
		return nil, err
	}

	c.logger.Info("Connected to broker",
		zap.String("addr", opts.Addr),
		zap.Int("db", opts.DB),
		zap.Int("poolSize", opts.PoolSize),
	)
	return c, nil
}

// NewFromClient wraps an existing go-redis client.
func NewFromClient(rdb goredis.UniversalClient, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{rdb: rdb, logger: logger}
}

// classify maps go-redis errors onto the tunnel error kinds.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var rerr goredis.Error
	if errors.As(err, &rerr) {
		return fmt.Errorf("%w: %s: %v", tunnel.ErrBrokerCommand, op, err)
	}
	return fmt.Errorf("%w: %s: %v", tunnel.ErrBrokerUnavailable, op, err)
}

// GetString implements broker.Text.
func (c *Client) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("get", err)
	}
	return val, true, nil
}

// SetString implements broker.Text.
func (c *Client) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return classify("set", c.rdb.Set(ctx, key, value, positive(ttl)).Err())
}

// HSet implements broker.Text. With a ttl the write and the expiry run in
// one MULTI/EXEC so a reader never sees the new fields without the expiry.
func (c *Client) HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		values[k] = v
	}

	if ttl <= 0 {
		return classify("hset", c.rdb.HSet(ctx, key, values).Err())
	}

	_, err := c.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key, values)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	return classify("hset", err)
}

// HGet implements broker.Text.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	val, err := c.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, goredis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, classify("hget", err)
	}
	return val, true, nil
}

// HGetAll implements broker.Text.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	val, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, classify("hgetall", err)
	}
	return val, nil
}

// Incr implements broker.Text.
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	val, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, classify("incr", err)
	}
	return val, nil
}

// ZRevRangeWithScores implements broker.Text.
func (c *Client) ZRevRangeWithScores(ctx context.Context, key string) ([]broker.ScoredMember, error) {
	zs, err := c.rdb.ZRevRangeWithScores(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, classify("zrevrange", err)
	}
	members := make([]broker.ScoredMember, 0, len(zs))
	for _, z := range zs {
		members = append(members, broker.ScoredMember{
			Member: fmt.Sprint(z.Member),
			Score:  z.Score,
		})
	}
	return members, nil
}

// Get implements broker.Binary.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("get", err)
	}
	return val, true, nil
}

// Set implements broker.Binary.
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return classify("set", c.rdb.Set(ctx, key, value, positive(ttl)).Err())
}

// LPush implements broker.Binary.
func (c *Client) LPush(ctx context.Context, key string, value []byte) error {
	return classify("lpush", c.rdb.LPush(ctx, key, value).Err())
}

// BLPop implements broker.Binary. The broker counts its timeout in whole
// seconds and treats 0 as "forever", so the timeout is rounded up to at
// least one second.
func (c *Client) BLPop(ctx context.Context, key string, timeout time.Duration) ([]byte, bool, error) {
	res, err := c.rdb.BLPop(ctx, blockTimeout(timeout), key).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, classify("blpop", err)
	}
	// res is [key, value].
	if len(res) != 2 {
		return nil, false, fmt.Errorf("%w: blpop: unexpected reply of %d elements", tunnel.ErrBrokerCommand, len(res))
	}
	return []byte(res[1]), true, nil
}

// Del implements broker.Broker.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := c.rdb.Del(ctx, keys...).Result()
	if err != nil {
		return 0, classify("del", err)
	}
	return n, nil
}

// Exists implements broker.Broker.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	n, err := c.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, classify("exists", err)
	}
	return n > 0, nil
}

// TTL implements broker.Broker.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return 0, classify("pttl", err)
	}
	// go-redis reports the -1/-2 sentinels as raw durations.
	switch ttl {
	case -2, -2 * time.Millisecond:
		return 0, broker.ErrKeyMissing
	case -1, -1 * time.Millisecond:
		return 0, nil
	}
	return ttl, nil
}

// Expire implements broker.Broker.
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return classify("expire", c.rdb.Expire(ctx, key, ttl).Err())
}

// Pipeline implements broker.Broker.
func (c *Client) Pipeline(ctx context.Context, fn func(b broker.Batch)) error {
	_, err := c.rdb.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		fn(&batch{ctx: ctx, pipe: pipe})
		return nil
	})
	return classify("pipeline", err)
}

// Ping implements broker.Broker.
func (c *Client) Ping(ctx context.Context) error {
	return classify("ping", c.rdb.Ping(ctx).Err())
}

// Close implements broker.Broker.
func (c *Client) Close() error {
	return c.rdb.Close()
}

type batch struct {
	ctx  context.Context
	pipe goredis.Pipeliner
}

func (b *batch) LPush(key string, value []byte) {
	b.pipe.LPush(b.ctx, key, value)
}

func (b *batch) Expire(key string, ttl time.Duration) {
	b.pipe.Expire(b.ctx, key, ttl)
}

func (b *batch) Incr(key string) {
	b.pipe.Incr(b.ctx, key)
}

func (b *batch) HIncrBy(key, field string, delta int64) {
	b.pipe.HIncrBy(b.ctx, key, field, delta)
}

func (b *batch) ZAdd(key string, score float64, member string) {
	b.pipe.ZAdd(b.ctx, key, goredis.Z{Score: score, Member: member})
}

func (b *batch) ZRemRangeByRank(key string, start, stop int64) {
	b.pipe.ZRemRangeByRank(b.ctx, key, start, stop)
}

func (b *batch) Set(key string, value []byte, ttl time.Duration) {
	b.pipe.Set(b.ctx, key, value, positive(ttl))
}

func (b *batch) Del(keys ...string) {
	if len(keys) > 0 {
		b.pipe.Del(b.ctx, keys...)
	}
}

func positive(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func blockTimeout(timeout time.Duration) time.Duration {
	secs := math.Ceil(timeout.Seconds())
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}
