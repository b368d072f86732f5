package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/arbengine/internal/domain"
)

// CalibrationCache implements domain.CalibrationCache by storing the latest
// calibration state as JSON under a single key.
type CalibrationCache struct {
	rdb *redis.Client
	key string
}

// NewCalibrationCache creates a cache on key.
func NewCalibrationCache(c *Client, key string) *CalibrationCache {
	if key == "" {
		key = "calibration:latest"
	}
	return &CalibrationCache{rdb: c.Underlying(), key: key}
}

// SaveCalibration overwrites the stored state.
func (cc *CalibrationCache) SaveCalibration(ctx context.Context, st *domain.CalibrationState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("redis: marshal calibration: %w", err)
	}
	if err := cc.rdb.Set(ctx, cc.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis: save calibration: %w", err)
	}
	return nil
}

// LoadCalibration returns the stored state or domain.ErrNotFound.
func (cc *CalibrationCache) LoadCalibration(ctx context.Context) (*domain.CalibrationState, error) {
	data, err := cc.rdb.Get(ctx, cc.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: load calibration: %w", err)
	}
	return DecodeCalibration(data)
}

// DecodeCalibration parses a stored state and fills maps a producer omitted.
func DecodeCalibration(data []byte) (*domain.CalibrationState, error) {
	st := domain.NewCalibrationState(0)
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("redis: decode calibration: %w", err)
	}
	return st.Clone(), nil
}

var _ domain.CalibrationCache = (*CalibrationCache)(nil)
