// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - 具体实现在子包中：repository/（SQL，经 dbutil.Dialect 适配 sqlite/postgres）、mongostore/
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"
	"time"

	"golden-drift/internal/shared/model"
)

// GoldenTestStore 黄金测试存储接口
//
// 约定：
//   - Get 类方法在实体不存在时返回 (nil, nil)
//   - Update / Delete 类方法在实体不存在时返回 ErrNotFound
//   - RecordGoldenTestRun 的条件更新失败时返回 ErrConflict
type GoldenTestStore interface {
	CreateGoldenTest(ctx context.Context, g *model.GoldenTest) error
	GetGoldenTest(ctx context.Context, id string) (*model.GoldenTest, error)
	ListGoldenTestsByAgent(ctx context.Context, agentID string) ([]*model.GoldenTest, error)
	ListGoldenTestsByUser(ctx context.Context, userID string) ([]*model.GoldenTest, error)
	UpdateGoldenTestSettings(ctx context.Context, id string, settings *model.GoldenTestSettings) error
	UpdateGoldenTestBaseline(ctx context.Context, id string, baseline *model.GoldenTestBaseline) error
	DeleteGoldenTest(ctx context.Context, id string) error

	// ListDueGoldenTests 返回 status=active 且 next_scheduled_run <= now 的测试，按 next_scheduled_run 升序
	ListDueGoldenTests(ctx context.Context, now time.Time) ([]*model.GoldenTest, error)

	// RecordGoldenTestRun 在同一事务中插入运行记录并更新测试的调度状态
	//
	// 仅当当前 version 等于 update.ExpectedVersion 时更新，并将 version 加一。
	RecordGoldenTestRun(ctx context.Context, run *model.GoldenTestRun, update *model.GoldenTestRunUpdate) error

	// ListGoldenTestRuns 按 run_at 倒序返回最近 limit 条运行记录
	ListGoldenTestRuns(ctx context.Context, goldenTestID string, limit int) ([]*model.GoldenTestRun, error)

	CountGoldenTestsByStatus(ctx context.Context, userID string) (model.StatusCounts, error)

	// ListRecentFailedRuns 返回该用户最近的未通过运行，按 run_at 倒序
	ListRecentFailedRuns(ctx context.Context, userID string, limit int) ([]*model.FailedRunSample, error)
}

// PersistentStore 持久化存储组合接口
type PersistentStore interface {
	GoldenTestStore
	Close() error
}
