// Package stats maintains month-bucketed tunnel traffic counters.
//
// Each update fans out into ten counters of the month's hash so readers get
// per-printer, per-user and global rollups without computing anything:
//
//	{user}.{printer}.{dir}.{transport}  {user}.{printer}.{dir}  {user}.{printer}.total
//	{user}.{dir}.{transport}            {user}.{dir}            {user}.total
//	{dir}.{transport}                   {dir}
//	total.{transport}                   total
//
// The ten increments and the bucket expiry are sent as one pipeline. Every
// increment is atomic on its own but the fan-out as a whole is not, so a
// concurrent reader may briefly see tiers that do not sum up yet.
package stats

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/printlink/tunnel/internal/broker"
	"github.com/printlink/tunnel/pkg/tunnel"
	"go.uber.org/zap"
)

// DefaultRetention keeps roughly six months of buckets.
const DefaultRetention = 6 * 30 * 24 * time.Hour

// Direction is the traffic direction of an update.
type Direction string

const (
	Sent     Direction = "sent"
	Received Direction = "received"
	Total    Direction = "total"
)

// Config holds aggregator configuration.
type Config struct {
	Broker    broker.Broker
	Namespace string
	Retention time.Duration
	Logger    *zap.Logger
}

// Aggregator records and reads traffic buckets. It is safe for concurrent use.
type Aggregator struct {
	broker    broker.Broker
	namespace string
	retention time.Duration
	logger    *zap.Logger
}

// New creates an aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Broker == nil {
		return nil, errors.New("stats: broker is required")
	}
	if cfg.Namespace == "" {
		return nil, errors.New("stats: namespace is required")
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Aggregator{
		broker:    cfg.Broker,
		namespace: cfg.Namespace,
		retention: cfg.Retention,
		logger:    cfg.Logger,
	}, nil
}

// Key returns the bucket key for the month containing date.
func (a *Aggregator) Key(date time.Time) string {
	return a.namespace + ".stats." + MonthOf(date)
}

// MonthOf formats the UTC calendar month of date as YYYYMM.
func MonthOf(date time.Time) string {
	return date.UTC().Format("200601")
}

// ParseMonth parses a YYYYMM bucket label.
func ParseMonth(month string) (time.Time, error) {
	t, err := time.ParseInLocation("200601", month, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q, want YYYYMM: %w", month, err)
	}
	return t, nil
}

// Fields returns the ten counter names touched by one update, most specific first.
func Fields(dir Direction, userID, printerID int64, transport tunnel.Transport) []string {
	u := strconv.FormatInt(userID, 10)
	p := strconv.FormatInt(printerID, 10)
	d := string(dir)
	tr := string(transport)

	return []string{
		u + "." + p + "." + d + "." + tr,
		u + "." + p + "." + d,
		u + "." + p + ".total",
		u + "." + d + "." + tr,
		u + "." + d,
		u + ".total",
		d + "." + tr,
		d,
		"total." + tr,
		"total",
	}
}

// RecordSent adds delta to every sent-side counter of the month of date.
func (a *Aggregator) RecordSent(ctx context.Context, date time.Time, userID, printerID int64, transport tunnel.Transport, delta int64) error {
	return a.record(ctx, Sent, date, userID, printerID, transport, delta)
}

// RecordReceived adds delta to every received-side counter of the month of date.
func (a *Aggregator) RecordReceived(ctx context.Context, date time.Time, userID, printerID int64, transport tunnel.Transport, delta int64) error {
	return a.record(ctx, Received, date, userID, printerID, transport, delta)
}

func (a *Aggregator) record(ctx context.Context, dir Direction, date time.Time, userID, printerID int64, transport tunnel.Transport, delta int64) error {
	if err := transport.Validate(); err != nil {
		return err
	}

	key := a.Key(date)
	fields := Fields(dir, userID, printerID, transport)

	err := a.broker.Pipeline(ctx, func(b broker.Batch) {
		for _, f := range fields {
			b.HIncrBy(key, f, delta)
		}
		b.Expire(key, a.retention)
	})
	if err != nil {
		return fmt.Errorf("failed to record %s stats: %w", dir, err)
	}
	return nil
}

// Bucket is the raw counter map of one month.
type Bucket map[string]int64

// Value returns the counter for field, zero when absent.
func (b Bucket) Value(field string) int64 {
	return b[field]
}

// User returns the counters scoped to userID with the user prefix removed.
func (b Bucket) User(userID int64) Bucket {
	return b.withPrefix(strconv.FormatInt(userID, 10) + ".")
}

// Printer returns the counters scoped to one printer of userID with the
// user and printer prefix removed.
func (b Bucket) Printer(userID, printerID int64) Bucket {
	return b.withPrefix(strconv.FormatInt(userID, 10) + "." + strconv.FormatInt(printerID, 10) + ".")
}

func (b Bucket) withPrefix(prefix string) Bucket {
	out := make(Bucket)
	for k, v := range b {
		if rest, ok := strings.CutPrefix(k, prefix); ok {
			out[rest] = v
		}
	}
	return out
}

// Get returns the bucket of the month containing date. An absent or expired
// bucket is empty.
func (a *Aggregator) Get(ctx context.Context, date time.Time) (Bucket, error) {
	key := a.Key(date)
	raw, err := a.broker.HGetAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read stats %s: %w", key, err)
	}

	bucket := make(Bucket, len(raw))
	for field, val := range raw {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			a.logger.Warn("Skipping non-integer stats field",
				zap.String("key", key),
				zap.String("field", field),
				zap.String("value", val),
			)
			continue
		}
		bucket[field] = n
	}
	return bucket, nil
}

// Months returns the buckets of every month from from through to, keyed by
// YYYYMM. Both ends are inclusive.
func (a *Aggregator) Months(ctx context.Context, from, to time.Time) (map[string]Bucket, error) {
	start := monthStart(from)
	end := monthStart(to)
	if end.Before(start) {
		return nil, fmt.Errorf("range end %s is before start %s", MonthOf(to), MonthOf(from))
	}

	out := make(map[string]Bucket)
	for m := start; !m.After(end); m = m.AddDate(0, 1, 0) {
		bucket, err := a.Get(ctx, m)
		if err != nil {
			return nil, err
		}
		out[MonthOf(m)] = bucket
	}
	return out, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
