// Package lock 按 key 互斥的锁抽象
//
// 用于串行化同一黄金测试的比对与写入：同一 id 同一时刻只有一个持有者。
// 实现：
//   - memory：进程内（单副本部署与测试）
//   - redis：SET NX PX + token 校验释放（多副本）
//   - etcd：concurrency.Mutex（多副本，强一致）
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrNotHeld 释放时发现锁已不属于当前持有者（过期或被抢占）
var ErrNotHeld = errors.New("lock: not held")

// Lease 已获得的锁
type Lease interface {
	Release(ctx context.Context) error
}

// Locker 按 key 获取互斥锁
//
// Acquire 阻塞直到获得锁或 ctx 结束。
type Locker interface {
	Acquire(ctx context.Context, key string) (Lease, error)
}

// ============================================================================
// MemoryLocker
// ============================================================================

// MemoryLocker 进程内按 key 互斥锁
//
// 每个 key 一个容量为 1 的 channel，无持有者和等待者时回收。
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker 创建进程内锁
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
		return &memoryLease{locker: l, key: key, slot: s}, nil
	case <-ctx.Done():
		l.unref(key, s)
		return nil, ctx.Err()
	}
}

func (l *MemoryLocker) unref(key string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}

// size 当前登记的 key 数量
func (l *MemoryLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	slot   *slot
	once   sync.Once
}

func (m *memoryLease) Release(ctx context.Context) error {
	released := false
	m.once.Do(func() {
		<-m.slot.ch
		m.locker.unref(m.key, m.slot)
		released = true
	})
	if !released {
		return ErrNotHeld
	}
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
