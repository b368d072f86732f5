package redis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alanyoungcy/arbengine/internal/config"
)

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Defaults().Redis
	cfg.Addr = "cache:6380"
	cfg.PoolSize = 32
	cfg.ReadBlock.Duration = 2 * time.Second
	cfg.TLSEnabled = true

	opts := options(cfg)
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, clientName, opts.ClientName)
	assert.True(t, opts.ContextTimeoutEnabled)
	assert.Equal(t, 32, opts.PoolSize)
	assert.Equal(t, 3*time.Second, opts.PoolTimeout)
	if assert.NotNil(t, opts.TLSConfig) {
		assert.NotZero(t, opts.TLSConfig.MinVersion)
	}
}

func TestOptionsReserveConnectionsForBlockedReaders(t *testing.T) {
	cfg := config.Defaults().Redis
	cfg.PoolSize = 1
	cfg.TLSEnabled = false

	opts := options(cfg)
	assert.Equal(t, blockingReaders+minFreeConns, opts.PoolSize)
	assert.Nil(t, opts.TLSConfig)
}
