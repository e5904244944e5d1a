package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-drift/internal/shared/model"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	s := NewStoreFromClient(client)
	s.stream = "golden_alerts_test"
	client.Del(context.Background(), s.stream)
	t.Cleanup(func() {
		client.Del(context.Background(), s.stream)
		client.Close()
	})
	return s
}

func TestPublishAndReadAlerts(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"run-1", "run-2"} {
		require.NoError(t, s.PublishAlerts(ctx, &model.AlertEvent{
			GoldenTestID: "golden-1",
			RunID:        id,
			Alerts:       []model.Alert{model.NewDriftAlert(model.SeverityCritical, 1, 0.1, 0.9)},
			CreatedAt:    time.Now(),
		}))
	}

	events, err := s.RecentAlerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "run-2", events[0].RunID)
	require.Len(t, events[0].Alerts, 1)
	assert.Equal(t, model.AlertTypeDrift, events[0].Alerts[0].Type)
}
