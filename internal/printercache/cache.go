// Package printercache stores the latest printer status, picture and
// settings snapshots reported through the tunnel.
package printercache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/printlink/tunnel/internal/broker"
)

// Snapshot kinds kept per printer.
const (
	KindStatus   = "status"
	KindPic      = "pic"
	KindSettings = "settings"
)

// Cache reads and writes printer snapshots through the text view of the broker.
type Cache struct {
	broker broker.Broker
}

// New creates a cache.
func New(b broker.Broker) (*Cache, error) {
	if b == nil {
		return nil, errors.New("printercache: broker is required")
	}
	return &Cache{broker: b}, nil
}

// Key returns the snapshot key of a printer.
func Key(printerID int64, kind string) string {
	return "printer:" + strconv.FormatInt(printerID, 10) + ":" + kind
}

// Set writes the non-nil entries of fields. A positive ttl is applied
// atomically with the write.
func (c *Cache) Set(ctx context.Context, printerID int64, kind string, fields map[string]*string, ttl time.Duration) error {
	cleaned := make(map[string]string, len(fields))
	for k, v := range fields {
		if v != nil {
			cleaned[k] = *v
		}
	}
	if err := c.broker.HSet(ctx, Key(printerID, kind), cleaned, ttl); err != nil {
		return fmt.Errorf("failed to set printer %d %s: %w", printerID, kind, err)
	}
	return nil
}

// Get returns every field of a snapshot.
func (c *Cache) Get(ctx context.Context, printerID int64, kind string) (map[string]string, error) {
	fields, err := c.broker.HGetAll(ctx, Key(printerID, kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get printer %d %s: %w", printerID, kind, err)
	}
	return fields, nil
}

// GetField returns one field of a snapshot.
func (c *Cache) GetField(ctx context.Context, printerID int64, kind, field string) (string, bool, error) {
	val, ok, err := c.broker.HGet(ctx, Key(printerID, kind), field)
	if err != nil {
		return "", false, fmt.Errorf("failed to get printer %d %s.%s: %w", printerID, kind, field, err)
	}
	return val, ok, nil
}

// Delete drops a snapshot.
func (c *Cache) Delete(ctx context.Context, printerID int64, kind string) error {
	if _, err := c.broker.Del(ctx, Key(printerID, kind)); err != nil {
		return fmt.Errorf("failed to delete printer %d %s: %w", printerID, kind, err)
	}
	return nil
}

// SetStatus writes the status snapshot.
func (c *Cache) SetStatus(ctx context.Context, printerID int64, fields map[string]*string, ttl time.Duration) error {
	return c.Set(ctx, printerID, KindStatus, fields, ttl)
}

// GetStatus reads the status snapshot.
func (c *Cache) GetStatus(ctx context.Context, printerID int64) (map[string]string, error) {
	return c.Get(ctx, printerID, KindStatus)
}

// DeleteStatus drops the status snapshot.
func (c *Cache) DeleteStatus(ctx context.Context, printerID int64) error {
	return c.Delete(ctx, printerID, KindStatus)
}

// SetPic writes the picture snapshot.
func (c *Cache) SetPic(ctx context.Context, printerID int64, fields map[string]*string, ttl time.Duration) error {
	return c.Set(ctx, printerID, KindPic, fields, ttl)
}

// GetPic reads the picture snapshot.
func (c *Cache) GetPic(ctx context.Context, printerID int64) (map[string]string, error) {
	return c.Get(ctx, printerID, KindPic)
}

// SetSettings writes the settings snapshot.
func (c *Cache) SetSettings(ctx context.Context, printerID int64, fields map[string]*string, ttl time.Duration) error {
	return c.Set(ctx, printerID, KindSettings, fields, ttl)
}

// GetSettings reads the settings snapshot.
func (c *Cache) GetSettings(ctx context.Context, printerID int64) (map[string]string, error) {
	return c.Get(ctx, printerID, KindSettings)
}
