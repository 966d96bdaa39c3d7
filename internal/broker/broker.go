// Package broker defines the key-value broker contract the tunnel is built on.
//
// The broker is the only channel between the gateway and printer agents and
// it owns all durable tunnel state. Two views target the same store: Text
// returns decoded strings for scalar and hash snapshots, Binary returns the
// exact bytes written, which envelopes require.
//
// Pipelines are best-effort groups that save round trips. They are NOT
// transactions: other clients may interleave between the commands of a
// batch, and callers must tolerate observing a partially applied batch.
package broker

import (
	"context"
	"time"
)

// Text is the decoded-string view of the broker.
type Text interface {
	// GetString returns the value at key. ok is false when the key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)

	// SetString sets key to value. A positive ttl is applied with the write.
	SetString(ctx context.Context, key, value string, ttl time.Duration) error

	// HSet sets multiple hash fields. A positive ttl is applied atomically
	// with the write.
	HSet(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error

	// HGet returns one hash field. ok is false when the key or field is absent.
	HGet(ctx context.Context, key, field string) (value string, ok bool, err error)

	// HGetAll returns every field of a hash; an absent key yields an empty map.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// Incr atomically increments an integer key and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// ZRevRangeWithScores returns all members of a sorted set, highest score first.
	ZRevRangeWithScores(ctx context.Context, key string) ([]ScoredMember, error)
}

// Binary is the byte-exact view of the broker.
type Binary interface {
	// Get returns the raw value at key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set sets key to value. A positive ttl is applied with the write.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// LPush prepends value to the list at key, creating it if needed.
	LPush(ctx context.Context, key string, value []byte) error

	// BLPop blocks up to timeout for an element of the list at key.
	// ok is false when the timeout elapsed with nothing to pop.
	BLPop(ctx context.Context, key string, timeout time.Duration) (value []byte, ok bool, err error)
}

// Broker is the full client contract. Implementations must be safe for
// concurrent use and hold no per-key state.
type Broker interface {
	Text
	Binary

	// Del removes keys and returns how many existed.
	Del(ctx context.Context, keys ...string) (int64, error)

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// TTL returns the remaining time to live of key. It returns 0 for keys
	// without an expiry and ErrKeyMissing when the key does not exist.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Expire sets a time to live on key.
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// Pipeline queues the commands issued on the Batch and sends them in one
	// round trip. Not atomic across commands.
	Pipeline(ctx context.Context, fn func(b Batch)) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection pool.
	Close() error
}

// Batch collects commands for Pipeline. Results are not exposed; the
// pipeline reports the first failure.
type Batch interface {
	LPush(key string, value []byte)
	Expire(key string, ttl time.Duration)
	Incr(key string)
	HIncrBy(key, field string, delta int64)
	ZAdd(key string, score float64, member string)
	ZRemRangeByRank(key string, start, stop int64)
	Set(key string, value []byte, ttl time.Duration)
	Del(keys ...string)
}

// ScoredMember is one sorted-set entry.
type ScoredMember struct {
	Member string
	Score  float64
}

// Config holds broker connection settings.
type Config struct {
	// URL is the broker endpoint, e.g. redis://localhost:6379/0.
	URL         string
	DialTimeout time.Duration
	// PoolSize bounds concurrent connections. Every waiting tunnel caller
	// holds one connection for the duration of its blocking pop.
	PoolSize int
}
