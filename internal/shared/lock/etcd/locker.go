// Package etcd 基于 etcd 的分布式锁
package etcd

import (
	"context"
	"fmt"
	"log"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.etcd.io/etcd/client/v3/concurrency"

	"golden-drift/internal/shared/lock"
)

// Config etcd 配置
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	Prefix      string
	// SessionTTL 会话租约秒数，进程崩溃后锁在该时间内自动释放
	SessionTTL int
}

// Locker etcd 锁
//
// 每次 Acquire 使用独立会话：同一会话下的多个 Mutex 共享同一个 key，无法互斥。
type Locker struct {
	client *clientv3.Client
	prefix string
	ttl    int
}

// New 连接 etcd 并创建锁
func New(cfg Config) (*Locker, error) {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "/golden-drift"
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30
	}
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("etcd endpoints are required")
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := client.Status(ctx, cfg.Endpoints[0]); err != nil {
		client.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	log.Printf("[etcd] Connected to %v", cfg.Endpoints)
	return &Locker{client: client, prefix: cfg.Prefix, ttl: cfg.SessionTTL}, nil
}

func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	sess, err := concurrency.NewSession(l.client, concurrency.WithTTL(l.ttl))
	if err != nil {
		return nil, fmt.Errorf("etcd session: %w", err)
	}
	m := concurrency.NewMutex(sess, fmt.Sprintf("%s/locks/%s", l.prefix, key))
	if err := m.Lock(ctx); err != nil {
		sess.Close()
		return nil, fmt.Errorf("etcd lock %s: %w", key, err)
	}
	return &lease{session: sess, mutex: m}, nil
}

// Close 关闭连接
func (l *Locker) Close() error {
	return l.client.Close()
}

type lease struct {
	session *concurrency.Session
	mutex   *concurrency.Mutex
}

func (l *lease) Release(ctx context.Context) error {
	defer l.session.Close()
	if err := l.mutex.Unlock(ctx); err != nil {
		return fmt.Errorf("etcd unlock %s: %w", l.mutex.Key(), err)
	}
	return nil
}

var _ lock.Locker = (*Locker)(nil)
