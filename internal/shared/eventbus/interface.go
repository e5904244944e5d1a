// Package eventbus 告警事件总线抽象接口
//
// 引擎只负责发布告警事件，投递（邮件、Slack 等）由订阅方完成。
// 当前由 Redis Streams 实现，测试使用内存实现。
package eventbus

import (
	"context"

	"golden-drift/internal/shared/model"
)

// AlertPublisher 告警发布接口
type AlertPublisher interface {
	PublishAlerts(ctx context.Context, event *model.AlertEvent) error
}

// AlertBus 告警事件总线
type AlertBus interface {
	AlertPublisher

	// RecentAlerts 返回最近 count 条告警事件（新的在前）
	RecentAlerts(ctx context.Context, count int64) ([]*model.AlertEvent, error)

	Close() error
}
