// Package repository GoldenTest 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/storage"
)

const goldenTestColumns = `id, test_case_id, agent_id, user_id, name,
	baseline_result_id, baseline_responses, baseline_metrics, baseline_captured_at,
	min_semantic_similarity, max_latency_increase, max_cost_increase,
	schedule_frequency, last_run_at, next_scheduled_run, status, version,
	created_at, updated_at`

// CreateGoldenTest 创建 GoldenTest
func (s *Store) CreateGoldenTest(ctx context.Context, g *model.GoldenTest) error {
	responses, err := marshalJSON(nonNilStrings(g.BaselineResponses))
	if err != nil {
		return fmt.Errorf("marshal baseline responses: %w", err)
	}
	metrics, err := marshalMetrics(g.BaselineMetrics)
	if err != nil {
		return err
	}

	query := s.rebind(`
		INSERT INTO golden_tests (` + goldenTestColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`)
	_, err = s.db.ExecContext(ctx, query,
		g.ID, g.TestCaseID, g.AgentID, g.UserID, g.Name,
		g.BaselineResultID, responses, metrics, utc(g.BaselineCapturedAt),
		g.Thresholds.MinSemanticSimilarity, g.Thresholds.MaxLatencyIncrease, g.Thresholds.MaxCostIncrease,
		g.ScheduleFrequency, utcPtr(g.LastRunAt), utcPtr(g.NextScheduledRun), g.Status, g.Version,
		utc(g.CreatedAt), utc(g.UpdatedAt))
	return s.wrapError(err)
}

// GetGoldenTest 获取 GoldenTest
func (s *Store) GetGoldenTest(ctx context.Context, id string) (*model.GoldenTest, error) {
	query := s.rebind(`SELECT ` + goldenTestColumns + ` FROM golden_tests WHERE id = $1`)
	g, err := scanGoldenTest(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

// ListGoldenTestsByAgent 列出 Agent 的所有 GoldenTest
func (s *Store) ListGoldenTestsByAgent(ctx context.Context, agentID string) ([]*model.GoldenTest, error) {
	query := s.rebind(`SELECT ` + goldenTestColumns + ` FROM golden_tests
		WHERE agent_id = $1 ORDER BY created_at DESC, id DESC`)
	return s.queryGoldenTests(ctx, query, agentID)
}

// ListGoldenTestsByUser 列出用户的所有 GoldenTest
func (s *Store) ListGoldenTestsByUser(ctx context.Context, userID string) ([]*model.GoldenTest, error) {
	query := s.rebind(`SELECT ` + goldenTestColumns + ` FROM golden_tests
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`)
	return s.queryGoldenTests(ctx, query, userID)
}

// ListDueGoldenTests 列出到期的 GoldenTest
func (s *Store) ListDueGoldenTests(ctx context.Context, now time.Time) ([]*model.GoldenTest, error) {
	query := s.rebind(`SELECT ` + goldenTestColumns + ` FROM golden_tests
		WHERE status = $1 AND next_scheduled_run IS NOT NULL AND next_scheduled_run <= $2
		ORDER BY next_scheduled_run ASC, id ASC`)
	return s.queryGoldenTests(ctx, query, model.GoldenTestStatusActive, utc(now))
}

// UpdateGoldenTestSettings 更新用户可修改的设置
//
// 同时递增 version，使并发中的 RecordGoldenTestRun 冲突后重新读取。
func (s *Store) UpdateGoldenTestSettings(ctx context.Context, id string, st *model.GoldenTestSettings) error {
	query := s.rebind(`
		UPDATE golden_tests SET name = $1, min_semantic_similarity = $2, max_latency_increase = $3,
			max_cost_increase = $4, schedule_frequency = $5, status = $6, next_scheduled_run = $7,
			version = version + 1, updated_at = $8
		WHERE id = $9
	`)
	res, err := s.db.ExecContext(ctx, query,
		st.Name, st.Thresholds.MinSemanticSimilarity, st.Thresholds.MaxLatencyIncrease,
		st.Thresholds.MaxCostIncrease, st.ScheduleFrequency, st.Status, utcPtr(st.NextScheduledRun),
		utc(time.Now()), id)
	if err != nil {
		return err
	}
	return checkAffected(res, storage.ErrNotFound)
}

// UpdateGoldenTestBaseline 替换基线，不改动调度与状态
//
// 同样递增 version，按旧基线完成的比对不会覆盖新基线之后的状态。
func (s *Store) UpdateGoldenTestBaseline(ctx context.Context, id string, b *model.GoldenTestBaseline) error {
	responses, err := marshalJSON(nonNilStrings(b.Responses))
	if err != nil {
		return fmt.Errorf("marshal baseline responses: %w", err)
	}
	metrics, err := marshalMetrics(b.Metrics)
	if err != nil {
		return err
	}

	query := s.rebind(`
		UPDATE golden_tests SET baseline_result_id = $1, baseline_responses = $2::jsonb,
			baseline_metrics = $3::jsonb, baseline_captured_at = $4,
			version = version + 1, updated_at = $5
		WHERE id = $6
	`)
	res, err := s.db.ExecContext(ctx, query,
		b.ResultID, responses, metrics, utc(b.CapturedAt), utc(time.Now()), id)
	if err != nil {
		return err
	}
	return checkAffected(res, storage.ErrNotFound)
}

// DeleteGoldenTest 删除 GoldenTest，运行历史通过外键级联删除
func (s *Store) DeleteGoldenTest(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// 显式删除运行记录，不依赖连接级的 foreign_keys 设置
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM golden_test_runs WHERE golden_test_id = $1`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM golden_tests WHERE id = $1`), id)
		if err != nil {
			return err
		}
		return checkAffected(res, storage.ErrNotFound)
	})
}

// CountGoldenTestsByStatus 按状态统计用户的 GoldenTest 数量
func (s *Store) CountGoldenTestsByStatus(ctx context.Context, userID string) (model.StatusCounts, error) {
	query := s.rebind(`SELECT status, COUNT(*) FROM golden_tests WHERE user_id = $1 GROUP BY status`)
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := model.StatusCounts{}
	for rows.Next() {
		var status model.GoldenTestStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (s *Store) queryGoldenTests(ctx context.Context, query string, args ...any) ([]*model.GoldenTest, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanGoldenTests(rows)
}

// scanGoldenTest 辅助函数
func scanGoldenTest(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.GoldenTest, error) {
	g := &model.GoldenTest{}
	var responses, metrics NullableJSON
	err := scanner.Scan(
		&g.ID, &g.TestCaseID, &g.AgentID, &g.UserID, &g.Name,
		&g.BaselineResultID, &responses.Data, &metrics.Data, &g.BaselineCapturedAt,
		&g.Thresholds.MinSemanticSimilarity, &g.Thresholds.MaxLatencyIncrease, &g.Thresholds.MaxCostIncrease,
		&g.ScheduleFrequency, &g.LastRunAt, &g.NextScheduledRun, &g.Status, &g.Version,
		&g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := responses.Unmarshal(&g.BaselineResponses); err != nil {
		return nil, fmt.Errorf("decode baseline responses of %s: %w", g.ID, err)
	}
	if g.BaselineResponses == nil {
		g.BaselineResponses = []string{}
	}
	if err := metrics.Unmarshal(&g.BaselineMetrics); err != nil {
		return nil, fmt.Errorf("decode baseline metrics of %s: %w", g.ID, err)
	}
	return g, nil
}

// scanGoldenTests 批量扫描
func scanGoldenTests(rows *sql.Rows) ([]*model.GoldenTest, error) {
	tests := []*model.GoldenTest{}
	for rows.Next() {
		g, err := scanGoldenTest(rows)
		if err != nil {
			return nil, err
		}
		tests = append(tests, g)
	}
	return tests, rows.Err()
}

func marshalMetrics(m *model.RunMetrics) (*string, error) {
	if m == nil {
		return nil, nil
	}
	s, err := marshalJSON(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metrics: %w", err)
	}
	return &s, nil
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
