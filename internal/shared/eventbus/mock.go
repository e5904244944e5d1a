// Package eventbus 事件总线 mock 实现
package eventbus

import (
	"context"
	"sync"

	"golden-drift/internal/shared/model"
)

// ============================================================================
// NoOpAlertBus - 空操作实现（未配置 Redis 时使用）
// ============================================================================

// NoOpAlertBus 丢弃所有事件
type NoOpAlertBus struct{}

// NewNoOpAlertBus 创建 NoOpAlertBus 实例
func NewNoOpAlertBus() *NoOpAlertBus {
	return &NoOpAlertBus{}
}

func (b *NoOpAlertBus) PublishAlerts(ctx context.Context, event *model.AlertEvent) error {
	return nil
}

func (b *NoOpAlertBus) RecentAlerts(ctx context.Context, count int64) ([]*model.AlertEvent, error) {
	return []*model.AlertEvent{}, nil
}

func (b *NoOpAlertBus) Close() error {
	return nil
}

// ============================================================================
// MemoryAlertBus - 内存实现（测试与单机部署）
// ============================================================================

// MemoryAlertBus 在内存中保留最近 MaxStreamLength 条事件
type MemoryAlertBus struct {
	mu     sync.Mutex
	events []*model.AlertEvent
}

// NewMemoryAlertBus 创建 MemoryAlertBus 实例
func NewMemoryAlertBus() *MemoryAlertBus {
	return &MemoryAlertBus{}
}

func (b *MemoryAlertBus) PublishAlerts(ctx context.Context, event *model.AlertEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	if len(b.events) > MaxStreamLength {
		b.events = b.events[len(b.events)-MaxStreamLength:]
	}
	return nil
}

func (b *MemoryAlertBus) RecentAlerts(ctx context.Context, count int64) ([]*model.AlertEvent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := []*model.AlertEvent{}
	for i := len(b.events) - 1; i >= 0; i-- {
		if count > 0 && int64(len(out)) >= count {
			break
		}
		out = append(out, b.events[i])
	}
	return out, nil
}

// Events 返回全部已发布事件的副本（按发布顺序）
func (b *MemoryAlertBus) Events() []*model.AlertEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*model.AlertEvent(nil), b.events...)
}

func (b *MemoryAlertBus) Close() error {
	return nil
}

var (
	_ AlertBus = (*NoOpAlertBus)(nil)
	_ AlertBus = (*MemoryAlertBus)(nil)
)
