// Package repository GoldenTestRun 相关的存储操作
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/storage"
)

const goldenTestRunColumns = `id, golden_test_id, current_result_id, passed, semantic_similarity,
	latency_change, cost_change, drift_details, alerts, transcript_key, run_at`

// RecordGoldenTestRun 插入运行记录并条件更新 GoldenTest
//
// 两步在同一事务内完成；version 不匹配时整体回滚并返回 storage.ErrConflict，
// 测试不存在时返回 storage.ErrNotFound。
func (s *Store) RecordGoldenTestRun(ctx context.Context, run *model.GoldenTestRun, u *model.GoldenTestRunUpdate) error {
	details, err := marshalJSON(nonNilDetails(run.DriftDetails))
	if err != nil {
		return fmt.Errorf("marshal drift details: %w", err)
	}
	alerts, err := marshalJSON(nonNilAlerts(run.Alerts))
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		update := s.rebind(`
			UPDATE golden_tests SET last_run_at = $1, next_scheduled_run = $2, status = $3,
				version = version + 1, updated_at = $4
			WHERE id = $5 AND version = $6
		`)
		res, err := tx.ExecContext(ctx, update,
			utc(u.LastRunAt), utc(u.NextScheduledRun), u.Status, utc(time.Now()),
			run.GoldenTestID, u.ExpectedVersion)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx,
				s.rebind(`SELECT 1 FROM golden_tests WHERE id = $1`), run.GoldenTestID).Scan(&exists)
			if err == sql.ErrNoRows {
				return storage.ErrNotFound
			}
			if err != nil {
				return err
			}
			return storage.ErrConflict
		}

		insert := s.rebind(`
			INSERT INTO golden_test_runs (` + goldenTestRunColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9::jsonb, $10, $11)
		`)
		_, err = tx.ExecContext(ctx, insert,
			run.ID, run.GoldenTestID, run.CurrentResultID, run.Passed, run.SemanticSimilarity,
			run.LatencyChange, run.CostChange, details, alerts, run.TranscriptKey, utc(run.RunAt))
		return s.wrapError(err)
	})
}

// ListGoldenTestRuns 列出 GoldenTest 最近的运行记录（新的在前）
func (s *Store) ListGoldenTestRuns(ctx context.Context, goldenTestID string, limit int) ([]*model.GoldenTestRun, error) {
	if limit <= 0 {
		limit = 20
	}
	query := s.rebind(`SELECT ` + goldenTestRunColumns + ` FROM golden_test_runs
		WHERE golden_test_id = $1 ORDER BY run_at DESC, id DESC LIMIT $2`)
	rows, err := s.db.QueryContext(ctx, query, goldenTestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*model.GoldenTestRun{}
	for rows.Next() {
		run, err := scanGoldenTestRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ListRecentFailedRuns 列出用户最近未通过的运行记录
func (s *Store) ListRecentFailedRuns(ctx context.Context, userID string, limit int) ([]*model.FailedRunSample, error) {
	if limit <= 0 {
		limit = 10
	}
	query := s.rebind(`
		SELECT g.name, r.id, r.golden_test_id, r.current_result_id, r.passed, r.semantic_similarity,
			r.latency_change, r.cost_change, r.drift_details, r.alerts, r.transcript_key, r.run_at
		FROM golden_test_runs r
		JOIN golden_tests g ON g.id = r.golden_test_id
		WHERE g.user_id = $1 AND r.passed = $2
		ORDER BY r.run_at DESC, r.id DESC
		LIMIT $3
	`)
	rows, err := s.db.QueryContext(ctx, query, userID, false, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []*model.FailedRunSample{}
	for rows.Next() {
		var name string
		run, err := scanGoldenTestRun(rowScanner(func(dest ...interface{}) error {
			return rows.Scan(append([]interface{}{&name}, dest...)...)
		}))
		if err != nil {
			return nil, err
		}
		samples = append(samples, &model.FailedRunSample{
			GoldenTestID:   run.GoldenTestID,
			GoldenTestName: name,
			Run:            run,
		})
	}
	return samples, rows.Err()
}

// rowScanner 适配带前缀列的扫描
type rowScanner func(dest ...interface{}) error

func (f rowScanner) Scan(dest ...interface{}) error { return f(dest...) }

// scanGoldenTestRun 辅助函数
func scanGoldenTestRun(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.GoldenTestRun, error) {
	run := &model.GoldenTestRun{}
	var details, alerts NullableJSON
	err := scanner.Scan(
		&run.ID, &run.GoldenTestID, &run.CurrentResultID, &run.Passed, &run.SemanticSimilarity,
		&run.LatencyChange, &run.CostChange, &details.Data, &alerts.Data, &run.TranscriptKey, &run.RunAt)
	if err != nil {
		return nil, err
	}
	if err := details.Unmarshal(&run.DriftDetails); err != nil {
		return nil, fmt.Errorf("decode drift details of %s: %w", run.ID, err)
	}
	if err := alerts.Unmarshal(&run.Alerts); err != nil {
		return nil, fmt.Errorf("decode alerts of %s: %w", run.ID, err)
	}
	run.DriftDetails = nonNilDetails(run.DriftDetails)
	run.Alerts = nonNilAlerts(run.Alerts)
	return run, nil
}

func nonNilDetails(d []model.DriftDetail) []model.DriftDetail {
	if d == nil {
		return []model.DriftDetail{}
	}
	return d
}

func nonNilAlerts(a []model.Alert) []model.Alert {
	if a == nil {
		return []model.Alert{}
	}
	return a
}
