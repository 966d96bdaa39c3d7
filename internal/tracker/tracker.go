// Package tracker keeps per-print prediction and progress counters.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/printlink/tunnel/internal/broker"
	"go.uber.org/zap"
)

const (
	DefaultPredictionTTL     = 30 * 24 * time.Hour
	DefaultHighPredictionTTL = 3 * 24 * time.Hour
	DefaultHighPredictionMax = 180
	DefaultProgressTTL       = 2 * 24 * time.Hour
)

// Config holds tracker configuration.
type Config struct {
	Broker            broker.Broker
	PredictionTTL     time.Duration
	HighPredictionTTL time.Duration
	HighPredictionMax int
	ProgressTTL       time.Duration
	Logger            *zap.Logger
}

// Tracker reads and writes per-print counters.
type Tracker struct {
	broker            broker.Broker
	predictionTTL     time.Duration
	highPredictionTTL time.Duration
	highPredictionMax int
	progressTTL       time.Duration
	logger            *zap.Logger
}

// Prediction is one retained high-confidence prediction.
type Prediction struct {
	Timestamp  string  `json:"timestamp"`
	Confidence float64 `json:"confidence"`
}

// New creates a tracker.
func New(cfg Config) (*Tracker, error) {
	if cfg.Broker == nil {
		return nil, errors.New("tracker: broker is required")
	}
	if cfg.PredictionTTL <= 0 {
		cfg.PredictionTTL = DefaultPredictionTTL
	}
	if cfg.HighPredictionTTL <= 0 {
		cfg.HighPredictionTTL = DefaultHighPredictionTTL
	}
	if cfg.HighPredictionMax <= 0 {
		cfg.HighPredictionMax = DefaultHighPredictionMax
	}
	if cfg.ProgressTTL <= 0 {
		cfg.ProgressTTL = DefaultProgressTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Tracker{
		broker:            cfg.Broker,
		predictionTTL:     cfg.PredictionTTL,
		highPredictionTTL: cfg.HighPredictionTTL,
		highPredictionMax: cfg.HighPredictionMax,
		progressTTL:       cfg.ProgressTTL,
		logger:            cfg.Logger,
	}, nil
}

// printKey builds every per-print key so all trackers share one scheme.
func printKey(printID int64, suffix string) string {
	return "print:" + strconv.FormatInt(printID, 10) + "::" + suffix
}

// PredictionKey returns the prediction counter key of printID.
func PredictionKey(printID int64) string { return printKey(printID, "pred") }

// HighPredictionKey returns the high-prediction set key of printID.
func HighPredictionKey(printID int64) string { return printKey(printID, "hp") }

// ProgressKey returns the progress key of printID.
func ProgressKey(printID int64) string { return printKey(printID, "pct") }

// IncrementPredictionCount bumps the prediction count of printID and
// refreshes its expiry in the same pipeline.
func (t *Tracker) IncrementPredictionCount(ctx context.Context, printID int64) error {
	key := PredictionKey(printID)
	err := t.broker.Pipeline(ctx, func(b broker.Batch) {
		b.Incr(key)
		b.Expire(key, t.predictionTTL)
	})
	if err != nil {
		return fmt.Errorf("failed to increment prediction count of print %d: %w", printID, err)
	}
	return nil
}

// GetPredictionCount returns the prediction count of printID; absent reads as zero.
func (t *Tracker) GetPredictionCount(ctx context.Context, printID int64) (int64, error) {
	return t.readInt(ctx, PredictionKey(printID))
}

// DeletePredictionCount resets the prediction count of printID.
func (t *Tracker) DeletePredictionCount(ctx context.Context, printID int64) error {
	if _, err := t.broker.Del(ctx, PredictionKey(printID)); err != nil {
		return fmt.Errorf("failed to delete prediction count of print %d: %w", printID, err)
	}
	return nil
}

// AddHighPrediction records a prediction and keeps only the highest-scored
// entries up to the configured maximum.
func (t *Tracker) AddHighPrediction(ctx context.Context, printID int64, confidence float64, timestamp string) error {
	if timestamp == "" {
		return errors.New("timestamp is required")
	}
	key := HighPredictionKey(printID)
	// Ranks ascend by score, so dropping 0..-(max+1) keeps the top max.
	stop := -int64(t.highPredictionMax) - 1

	err := t.broker.Pipeline(ctx, func(b broker.Batch) {
		b.ZAdd(key, confidence, timestamp)
		b.ZRemRangeByRank(key, 0, stop)
		b.Expire(key, t.highPredictionTTL)
	})
	if err != nil {
		return fmt.Errorf("failed to add high prediction of print %d: %w", printID, err)
	}
	return nil
}

// HighestPredictions returns the retained predictions, highest confidence first.
func (t *Tracker) HighestPredictions(ctx context.Context, printID int64) ([]Prediction, error) {
	members, err := t.broker.ZRevRangeWithScores(ctx, HighPredictionKey(printID))
	if err != nil {
		return nil, fmt.Errorf("failed to read high predictions of print %d: %w", printID, err)
	}
	out := make([]Prediction, 0, len(members))
	for _, m := range members {
		out = append(out, Prediction{Timestamp: m.Member, Confidence: m.Score})
	}
	return out, nil
}

// SetProgress stores the completion percentage of printID.
func (t *Tracker) SetProgress(ctx context.Context, printID int64, percent int) error {
	if percent < 0 || percent > 100 {
		return fmt.Errorf("progress %d out of range 0-100", percent)
	}
	if err := t.broker.SetString(ctx, ProgressKey(printID), strconv.Itoa(percent), t.progressTTL); err != nil {
		return fmt.Errorf("failed to set progress of print %d: %w", printID, err)
	}
	return nil
}

// GetProgress returns the completion percentage of printID; absent reads as zero.
func (t *Tracker) GetProgress(ctx context.Context, printID int64) (int, error) {
	n, err := t.readInt(ctx, ProgressKey(printID))
	return int(n), err
}

func (t *Tracker) readInt(ctx context.Context, key string) (int64, error) {
	val, ok, err := t.broker.GetString(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if !ok {
		return 0, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("value of %s is not an integer: %w", key, err)
	}
	return n, nil
}
