// Package infra 基础设施聚合层
//
// 根据配置统一初始化并注入基础设施，包括：
//   - Storage：持久化存储（sqlite / postgres / mongodb）
//   - Locker：按黄金测试 id 加锁（memory / redis / etcd）
//   - Alerts：告警事件总线（memory / redis Streams / none）
//   - Archive：回放对话归档（MinIO，可选）
//   - Replayer：外部回放服务客户端
package infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"golden-drift/internal/config"
	"golden-drift/internal/shared/eventbus"
	eventbusredis "golden-drift/internal/shared/eventbus/redis"
	"golden-drift/internal/shared/lock"
	locketcd "golden-drift/internal/shared/lock/etcd"
	lockredis "golden-drift/internal/shared/lock/redis"
	"golden-drift/internal/shared/objstore"
	"golden-drift/internal/shared/replay"
	"golden-drift/internal/shared/storage"
)

// Infrastructure 基础设施聚合结构
type Infrastructure struct {
	// Storage 持久化存储
	Storage storage.PersistentStore

	// Locker 单个黄金测试的互斥锁
	Locker lock.Locker

	// Alerts 告警事件总线
	Alerts eventbus.AlertBus

	// Archive 对话归档，未配置 MinIO 时为 nil
	Archive objstore.TranscriptArchive

	// Replayer / TestCases 回放服务客户端，未配置 replay.url 时为 nil
	Replayer  replay.Replayer
	TestCases replay.TestCaseSource

	redis   *redis.Client
	closers []io.Closer
}

// New 按配置初始化全部基础设施
//
// 任一组件初始化失败时关闭已创建的连接并返回错误。
func New(ctx context.Context, cfg *config.Config) (*Infrastructure, error) {
	i := &Infrastructure{}
	if err := i.init(ctx, cfg); err != nil {
		i.Close()
		return nil, err
	}
	return i, nil
}

func (i *Infrastructure) init(ctx context.Context, cfg *config.Config) error {
	store, err := NewPersistentStore(cfg.DatabaseDriver, cfg.DatabaseURL, cfg.DatabaseDBName)
	if err != nil {
		return fmt.Errorf("storage (%s): %w", cfg.DatabaseDriver, err)
	}
	i.Storage = store
	i.closers = append(i.closers, store)
	log.Printf("[Infra] Storage ready: driver=%s", cfg.DatabaseDriver)

	if cfg.Lock.Backend == "redis" || cfg.Alerts.Backend == "redis" {
		client, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return err
		}
		i.redis = client
		i.closers = append(i.closers, client)
	}

	switch cfg.Lock.Backend {
	case "redis":
		i.Locker = lockredis.New(i.redis, cfg.Lock.TTL)
	case "etcd":
		l, err := locketcd.New(locketcd.Config{
			Endpoints:  cfg.Etcd.Endpoints,
			Prefix:     cfg.Etcd.Prefix,
			SessionTTL: int(cfg.Lock.TTL / time.Second),
		})
		if err != nil {
			return err
		}
		i.Locker = l
		i.closers = append(i.closers, l)
	default:
		i.Locker = lock.NewMemoryLocker()
	}
	log.Printf("[Infra] Locker ready: backend=%s", cfg.Lock.Backend)

	switch cfg.Alerts.Backend {
	case "redis":
		i.Alerts = eventbusredis.NewStoreFromClient(i.redis)
	case "none":
		i.Alerts = eventbus.NewNoOpAlertBus()
	default:
		i.Alerts = eventbus.NewMemoryAlertBus()
	}
	log.Printf("[Infra] Alert bus ready: backend=%s", cfg.Alerts.Backend)

	if cfg.MinIO.Enabled() {
		client, err := objstore.NewClient(cfg.MinIO)
		if err != nil {
			return err
		}
		if err := client.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("minio: %w", err)
		}
		i.Archive = client
		log.Printf("[Infra] Transcript archive ready: bucket=%s", cfg.MinIO.Bucket)
	}

	if cfg.Replay.URL != "" {
		client := replay.NewClient(cfg.Replay.URL, cfg.Replay.Token)
		i.Replayer = client
		i.TestCases = client
	}
	return nil
}

// Close 按创建的逆序关闭所有连接
func (i *Infrastructure) Close() error {
	var errs []error
	for n := len(i.closers) - 1; n >= 0; n-- {
		if err := i.closers[n].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	i.closers = nil
	return errors.Join(errs...)
}
