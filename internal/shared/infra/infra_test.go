package infra

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-drift/internal/config"
	"golden-drift/internal/shared/eventbus"
	eventbusredis "golden-drift/internal/shared/eventbus/redis"
	"golden-drift/internal/shared/lock"
	lockredis "golden-drift/internal/shared/lock/redis"
	"golden-drift/internal/shared/storage/repository"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	path := filepath.Join(t.TempDir(), "golden.db")
	return &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    "file:" + path + "?mode=rwc",
		Lock:           config.LockConfig{Backend: "memory", TTL: time.Minute},
		Alerts:         config.AlertsConfig{Backend: "memory"},
	}
}

func TestNewPersistentStore_SQLite(t *testing.T) {
	store, err := NewPersistentStore("sqlite", ":memory:", "")
	require.NoError(t, err)
	defer store.Close()

	_, ok := store.(*repository.Store)
	assert.True(t, ok)

	g, err := store.GetGoldenTest(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, g)
}

func TestNewPersistentStore_Unsupported(t *testing.T) {
	_, err := NewPersistentStore("mysql", "whatever", "")
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestNew_MemoryBackends(t *testing.T) {
	infra, err := New(context.Background(), sqliteConfig(t))
	require.NoError(t, err)

	assert.NotNil(t, infra.Storage)
	assert.IsType(t, &lock.MemoryLocker{}, infra.Locker)
	assert.IsType(t, &eventbus.MemoryAlertBus{}, infra.Alerts)
	assert.Nil(t, infra.Archive)
	assert.Nil(t, infra.Replayer)
	assert.Nil(t, infra.TestCases)

	require.NoError(t, infra.Close())
	// 重复关闭无副作用
	assert.NoError(t, infra.Close())
}

func TestNew_NoAlertsAndReplay(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.Alerts.Backend = "none"
	cfg.Replay.URL = "http://replay.internal:8090"

	infra, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &eventbus.NoOpAlertBus{}, infra.Alerts)
	assert.NotNil(t, infra.Replayer)
	assert.NotNil(t, infra.TestCases)
}

func TestNew_StorageFailure(t *testing.T) {
	cfg := sqliteConfig(t)
	cfg.DatabaseDriver = "oracle"

	_, err := New(context.Background(), cfg)
	assert.Error(t, err)
}

func TestNew_Redis(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	cfg := sqliteConfig(t)
	cfg.RedisURL = "redis://" + addr
	cfg.Lock.Backend = "redis"
	cfg.Alerts.Backend = "redis"

	infra, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer infra.Close()

	assert.IsType(t, &lockredis.Locker{}, infra.Locker)
	assert.IsType(t, &eventbusredis.Store{}, infra.Alerts)
}
