// Package redis 告警事件总线的 Redis Streams 实现
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"golden-drift/internal/shared/eventbus"
	"golden-drift/internal/shared/model"
)

// Store Redis Streams 告警总线
type Store struct {
	client *redis.Client
	stream string
}

var _ eventbus.AlertBus = (*Store)(nil)

// NewStoreFromClient 使用已有客户端创建（连接由调用方管理）
func NewStoreFromClient(client *redis.Client) *Store {
	return &Store{client: client, stream: eventbus.KeyGoldenAlerts}
}

// PublishAlerts 发布一次比对的告警事件
//
// 没有告警的事件同样发布，订阅方可据此感知恢复。
func (s *Store) PublishAlerts(ctx context.Context, event *model.AlertEvent) error {
	dataJSON, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal alert event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: eventbus.MaxStreamLength,
		Approx: true,
		Values: map[string]interface{}{
			"golden_test_id": event.GoldenTestID,
			"run_id":         event.RunID,
			"passed":         fmt.Sprintf("%t", event.Passed),
			"timestamp":      event.CreatedAt.Format(time.RFC3339Nano),
			"data":           string(dataJSON),
		},
	}

	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("failed to publish alert event: %w", err)
	}

	log.Printf("[Redis/EventBus] Published alerts: golden_test=%s run=%s seq=%s alerts=%d",
		event.GoldenTestID, event.RunID, id, len(event.Alerts))
	return nil
}

// RecentAlerts 读取最近的告警事件
func (s *Store) RecentAlerts(ctx context.Context, count int64) ([]*model.AlertEvent, error) {
	if count <= 0 {
		count = 20
	}
	msgs, err := s.client.XRevRangeN(ctx, s.stream, "+", "-", count).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read alert events: %w", err)
	}

	events := make([]*model.AlertEvent, 0, len(msgs))
	for _, msg := range msgs {
		dataStr, ok := msg.Values["data"].(string)
		if !ok {
			continue
		}
		var event model.AlertEvent
		if err := json.Unmarshal([]byte(dataStr), &event); err != nil {
			log.Printf("[Redis/EventBus] Skip malformed alert event %s: %v", msg.ID, err)
			continue
		}
		events = append(events, &event)
	}
	return events, nil
}

// Close 客户端由基础设施层统一关闭
func (s *Store) Close() error {
	return nil
}
