package goldentest

import (
	"context"
	"errors"
	"time"

	"golden-drift/internal/drift"
	"golden-drift/internal/shared/metrics"
	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/objstore"
	"golden-drift/pkg/logging"
)

// errEmptyReplay 回放既未返回结果也未返回错误
var errEmptyReplay = errors.New("replay returned no result")

// Evaluate 对调度器扫描到的黄金测试执行一次比对
//
// 在 id 锁内重新加载测试。测试已被删除，或 version 与 g 不一致
// （其他 worker 已记录运行，或设置、基线已被修改）时跳过，返回 nil, nil。
func (s *Service) Evaluate(ctx context.Context, g *model.GoldenTest) (*model.GoldenTestRun, error) {
	return s.evaluate(ctx, g.ID, g)
}

// RunNow 手动触发一次比对，不检查调度与版本
func (s *Service) RunNow(ctx context.Context, id string) (*model.GoldenTestRun, error) {
	return s.evaluate(ctx, id, nil)
}

// evaluate 持有 id 锁完成一次比对
//
// 流程：
//  1. 加锁并重新加载测试，snapshot 非空时校验版本
//  2. 带超时回放测试场景
//  3. 以锁内加载的基线与阈值逐轮比对，计算延迟/成本变化
//  4. 归档回放对话（可选，失败只记录日志）
//  5. 记录运行
//  6. 发布告警（失败只记录日志，运行记录已持久化）
//
// 回放失败或超时不作为错误返回，而是记录为 currentResultID 为空的失败运行。
func (s *Service) evaluate(ctx context.Context, id string, snapshot *model.GoldenTest) (*model.GoldenTestRun, error) {
	if s.replayer == nil {
		return nil, ErrReplayUnavailable
	}
	ctx = logging.ContextWithGoldenTestID(ctx, id)
	log := s.logger.WithContext(ctx)

	lease, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, &PersistenceFailure{Op: "acquire lock", Err: err}
	}
	defer s.release(ctx, id, lease)

	g, err := s.GetGoldenTest(ctx, id)
	switch {
	case snapshot != nil && errors.Is(err, ErrNotFound):
		log.Info("golden.evaluate.skipped", "reason", "deleted")
		return nil, nil
	case err != nil:
		return nil, err
	case snapshot != nil && g.Version != snapshot.Version:
		log.Info("golden.evaluate.skipped", "reason", "stale",
			"loaded_version", snapshot.Version, "current_version", g.Version)
		return nil, nil
	}
	start := time.Now()

	rctx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.replayer.Replay(rctx, g.TestCaseID, g.AgentID)
	cancel()
	if err == nil && result == nil {
		err = errEmptyReplay
	}

	var (
		outcome         *drift.Outcome
		currentResultID *string
		opts            []RecordOption
		resultLabel     string
	)
	if err != nil {
		log.WithError(err).WithDuration(time.Since(start)).Warn("golden.replay.failed")
		outcome = drift.ReplayFailedOutcome(err)
		resultLabel = metrics.ResultReplayFailed
	} else {
		outcome = s.engine.Compare(g.BaselineResponses, result.Responses, g.Thresholds)
		opts = append(opts, WithMetricsDelta(drift.CompareMetrics(g.BaselineMetrics, result.Metrics, g.Thresholds)))
		rid := result.ResultID
		currentResultID = &rid
		if key := s.archiveTranscript(ctx, g, result.ResultID, result.Responses, result.Metrics); key != "" {
			opts = append(opts, WithTranscriptKey(key))
		}
		resultLabel = metrics.ResultFailed
		if outcome.Passed {
			resultLabel = metrics.ResultPassed
		}
	}

	run, err := s.recordRun(ctx, g.ID, currentResultID, outcome, opts...)
	if err != nil {
		s.metrics.RecordRun(metrics.ResultError, 0)
		return nil, err
	}
	s.metrics.RecordRun(resultLabel, run.SemanticSimilarity)

	s.publish(ctx, g, run)
	log.WithRunID(run.ID).WithDuration(time.Since(start)).Info("golden.evaluate.done",
		"passed", run.Passed, "similarity", run.SemanticSimilarity)
	return run, nil
}

func (s *Service) archiveTranscript(ctx context.Context, g *model.GoldenTest, resultID string, responses []string, m *model.RunMetrics) string {
	if s.archive == nil {
		return ""
	}
	key, err := s.archive.ArchiveTranscript(ctx, &objstore.Transcript{
		GoldenTestID: g.ID,
		ResultID:     resultID,
		Responses:    responses,
		Metrics:      m,
		CapturedAt:   s.now(),
	})
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("golden.archive.failed", "result_id", resultID)
		return ""
	}
	return key
}

func (s *Service) publish(ctx context.Context, g *model.GoldenTest, run *model.GoldenTestRun) {
	if len(run.Alerts) == 0 {
		return
	}
	event := &model.AlertEvent{
		GoldenTestID:   g.ID,
		GoldenTestName: g.Name,
		UserID:         g.UserID,
		AgentID:        g.AgentID,
		RunID:          run.ID,
		Passed:         run.Passed,
		Similarity:     run.SemanticSimilarity,
		Alerts:         run.Alerts,
		CreatedAt:      run.RunAt,
	}
	if err := s.alerts.PublishAlerts(ctx, event); err != nil {
		s.logger.WithContext(ctx).WithRunID(run.ID).WithError(err).Warn("golden.alerts.publish_failed",
			"alerts", len(run.Alerts))
	}
}
