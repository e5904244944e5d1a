// Package goldentest 黄金测试领域 - 编排服务
//
// Service 是唯一写入 GoldenTest / GoldenTestRun 的路径：
//   - CreateGoldenTest：校验输入、合并默认阈值、计算首次执行时间
//   - RecordRun：按 id 加锁，在同一事务中写入运行记录并推进调度与状态
//   - Evaluate / RunNow：持有 id 锁完成 回放 → 比对 → 归档 → 记录 → 发布告警
//
// 状态机只在 active 与 failed 之间自动切换，paused 仅由用户显式设置。
package goldentest

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"golden-drift/internal/drift"
	"golden-drift/internal/shared/eventbus"
	"golden-drift/internal/shared/lock"
	"golden-drift/internal/shared/metrics"
	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/objstore"
	"golden-drift/internal/shared/replay"
	"golden-drift/internal/shared/storage"
	"golden-drift/pkg/logging"
)

const (
	// DefaultHistoryLimit GetHistory 默认条数
	DefaultHistoryLimit = 20
	// MaxHistoryLimit GetHistory 最大条数
	MaxHistoryLimit = 100

	// 仪表盘告警采样上限
	summaryAlertsPerRun = 3
	summaryAlertsTotal  = 10

	defaultMaxRetries    = 3
	defaultReplayTimeout = 2 * time.Minute
)

// Options 服务依赖，除 store 外均可选
type Options struct {
	Engine     *drift.Engine
	Calculator *drift.Calculator
	Locker     lock.Locker

	// DefaultThresholds 创建时未指定的阈值字段使用该值，nil 时使用系统默认值
	DefaultThresholds *model.Thresholds

	Replayer      replay.Replayer
	TestCases     replay.TestCaseSource
	Archive       objstore.TranscriptArchive
	Alerts        eventbus.AlertPublisher
	ReplayTimeout time.Duration

	// MaxRetries RecordRun 遇到版本冲突时的最大重试次数
	MaxRetries int

	Metrics *metrics.Metrics
	Logger  *logging.Logger
	Now     func() time.Time
}

// Service 黄金测试编排服务
type Service struct {
	store      storage.GoldenTestStore
	engine     *drift.Engine
	calc       drift.Calculator
	locker     lock.Locker
	defaults   model.Thresholds
	replayer   replay.Replayer
	testCases  replay.TestCaseSource
	archive    objstore.TranscriptArchive
	alerts     eventbus.AlertPublisher
	timeout    time.Duration
	maxRetries int
	metrics    *metrics.Metrics
	logger     *logging.Logger
	now        func() time.Time
}

// NewService 创建编排服务
func NewService(store storage.GoldenTestStore, opts Options) *Service {
	s := &Service{
		store:      store,
		engine:     opts.Engine,
		calc:       drift.NewCalculator(drift.DefaultRunHour),
		locker:     opts.Locker,
		defaults:   model.DefaultThresholds(),
		replayer:   opts.Replayer,
		testCases:  opts.TestCases,
		archive:    opts.Archive,
		alerts:     opts.Alerts,
		timeout:    opts.ReplayTimeout,
		maxRetries: opts.MaxRetries,
		metrics:    opts.Metrics,
		logger:     opts.Logger,
		now:        opts.Now,
	}
	if s.engine == nil {
		s.engine = drift.NewEngine(nil)
	}
	if opts.Calculator != nil {
		s.calc = *opts.Calculator
	}
	if s.locker == nil {
		s.locker = lock.NewMemoryLocker()
	}
	if opts.DefaultThresholds != nil {
		s.defaults = *opts.DefaultThresholds
	}
	if s.alerts == nil {
		s.alerts = eventbus.NewNoOpAlertBus()
	}
	if s.timeout <= 0 {
		s.timeout = defaultReplayTimeout
	}
	if s.maxRetries <= 0 {
		s.maxRetries = defaultMaxRetries
	}
	if s.logger == nil {
		s.logger = logging.Default("goldentest")
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// ============================================================================
// 创建
// ============================================================================

// CreateInput 创建黄金测试的输入
type CreateInput struct {
	TestCaseID        string                  `json:"test_case_id" validate:"required"`
	AgentID           string                  `json:"agent_id" validate:"required"`
	UserID            string                  `json:"user_id" validate:"required"`
	Name              string                  `json:"name" validate:"max=200"`
	BaselineResultID  string                  `json:"baseline_result_id" validate:"required"`
	BaselineResponses []string                `json:"baseline_responses" validate:"max=500"`
	BaselineMetrics   *model.RunMetrics       `json:"baseline_metrics,omitempty"`
	Thresholds        *model.ThresholdsPatch  `json:"thresholds,omitempty"`
	ScheduleFrequency model.ScheduleFrequency `json:"schedule_frequency" validate:"omitempty,oneof=daily weekly monthly"`
}

// CreateGoldenTest 将一次通过的结果提升为黄金测试
//
// 名称优先取输入，其次取测试场景名称；都没有时返回 ValidationError。
// 未指定频率时按 daily 调度。
func (s *Service) CreateGoldenTest(ctx context.Context, in *CreateInput) (*model.GoldenTest, error) {
	if in == nil {
		return nil, &ValidationError{Field: "input", Reason: "required"}
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	thresholds, err := s.mergeThresholds(in.Thresholds, s.defaults)
	if err != nil {
		return nil, err
	}

	name, err := s.resolveName(ctx, in.Name, in.TestCaseID)
	if err != nil {
		return nil, err
	}

	freq := in.ScheduleFrequency
	if freq == "" {
		freq = model.FrequencyDaily
	}

	now := s.now()
	next := s.calc.NextRun(freq, now)
	responses := in.BaselineResponses
	if responses == nil {
		responses = []string{}
	}

	g := &model.GoldenTest{
		ID:                 uuid.NewString(),
		TestCaseID:         in.TestCaseID,
		AgentID:            in.AgentID,
		UserID:             in.UserID,
		Name:               name,
		BaselineResultID:   in.BaselineResultID,
		BaselineResponses:  responses,
		BaselineMetrics:    in.BaselineMetrics,
		BaselineCapturedAt: now,
		Thresholds:         thresholds,
		ScheduleFrequency:  freq,
		NextScheduledRun:   &next,
		Status:             model.GoldenTestStatusActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.store.CreateGoldenTest(ctx, g); err != nil {
		return nil, &PersistenceFailure{Op: "create golden test", Err: err}
	}

	s.logger.WithContext(ctx).WithGoldenTestID(g.ID).Info("golden.created",
		"agent_id", g.AgentID, "frequency", string(freq), "next_run", next.Format(time.RFC3339))
	return g, nil
}

// mergeThresholds 合并并校验阈值
func (s *Service) mergeThresholds(patch *model.ThresholdsPatch, base model.Thresholds) (model.Thresholds, error) {
	th := patch.Merge(base)
	if err := validateStruct(th); err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Field = "thresholds." + ve.Field
		}
		return th, err
	}
	return th, nil
}

func (s *Service) resolveName(ctx context.Context, name, testCaseID string) (string, error) {
	if name != "" {
		return name, nil
	}
	if s.testCases != nil {
		tc, err := s.testCases.GetTestCase(ctx, testCaseID)
		if err != nil && !errors.Is(err, replay.ErrTestCaseNotFound) {
			s.logger.WithContext(ctx).WithError(err).Warn("golden.create.test_case_lookup_failed",
				"test_case_id", testCaseID)
		}
		if err == nil && tc != nil && tc.Name != "" {
			return tc.Name, nil
		}
	}
	return "", &ValidationError{Field: "name", Reason: "required when the test case has no name"}
}

// ============================================================================
// 查询
// ============================================================================

// GetGoldenTest 获取黄金测试，不存在时返回 ErrNotFound
func (s *Service) GetGoldenTest(ctx context.Context, id string) (*model.GoldenTest, error) {
	g, err := s.store.GetGoldenTest(ctx, id)
	if err != nil {
		return nil, &PersistenceFailure{Op: "get golden test", Err: err}
	}
	if g == nil {
		return nil, notFound(id)
	}
	return g, nil
}

// ListByAgent 列出 Agent 的黄金测试
func (s *Service) ListByAgent(ctx context.Context, agentID string) ([]*model.GoldenTest, error) {
	tests, err := s.store.ListGoldenTestsByAgent(ctx, agentID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "list golden tests by agent", Err: err}
	}
	return tests, nil
}

// ListByUser 列出用户的黄金测试
func (s *Service) ListByUser(ctx context.Context, userID string) ([]*model.GoldenTest, error) {
	tests, err := s.store.ListGoldenTestsByUser(ctx, userID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "list golden tests by user", Err: err}
	}
	return tests, nil
}

// FindDueGoldenTests 返回已到期的 active 测试，最早到期的在前
func (s *Service) FindDueGoldenTests(ctx context.Context) ([]*model.GoldenTest, error) {
	tests, err := s.store.ListDueGoldenTests(ctx, s.now())
	if err != nil {
		return nil, &PersistenceFailure{Op: "list due golden tests", Err: err}
	}
	return tests, nil
}

// GetHistory 返回最近的运行记录（新的在前）
//
// limit <= 0 时取 DefaultHistoryLimit，超过 MaxHistoryLimit 时截断。
func (s *Service) GetHistory(ctx context.Context, id string, limit int) ([]*model.GoldenTestRun, error) {
	if _, err := s.GetGoldenTest(ctx, id); err != nil {
		return nil, err
	}
	switch {
	case limit <= 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}
	runs, err := s.store.ListGoldenTestRuns(ctx, id, limit)
	if err != nil {
		return nil, &PersistenceFailure{Op: "list golden test runs", Err: err}
	}
	return runs, nil
}

// ============================================================================
// 更新
// ============================================================================

// UpdateInput 用户可修改的字段，nil 表示不修改
type UpdateInput struct {
	Name              *string                  `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Thresholds        *model.ThresholdsPatch   `json:"thresholds,omitempty"`
	ScheduleFrequency *model.ScheduleFrequency `json:"schedule_frequency,omitempty" validate:"omitempty,oneof=daily weekly monthly"`
	Status            *model.GoldenTestStatus  `json:"status,omitempty" validate:"omitempty,oneof=active paused"`
}

// UpdateGoldenTest 修改名称、阈值、频率或状态
//
// 频率变化时重新计算下次执行时间；用户只能设置 active 或 paused。
// 与 RecordRun 共用同一把 id 锁。
func (s *Service) UpdateGoldenTest(ctx context.Context, id string, in *UpdateInput) (*model.GoldenTest, error) {
	if in == nil {
		return nil, &ValidationError{Field: "input", Reason: "required"}
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	lease, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, &PersistenceFailure{Op: "acquire lock", Err: err}
	}
	defer s.release(ctx, id, lease)

	g, err := s.GetGoldenTest(ctx, id)
	if err != nil {
		return nil, err
	}

	settings := &model.GoldenTestSettings{
		Name:              g.Name,
		Thresholds:        g.Thresholds,
		ScheduleFrequency: g.ScheduleFrequency,
		Status:            g.Status,
		NextScheduledRun:  g.NextScheduledRun,
	}
	if in.Name != nil {
		settings.Name = *in.Name
	}
	if in.Thresholds != nil {
		th, err := s.mergeThresholds(in.Thresholds, g.Thresholds)
		if err != nil {
			return nil, err
		}
		settings.Thresholds = th
	}
	if in.ScheduleFrequency != nil && *in.ScheduleFrequency != g.ScheduleFrequency {
		settings.ScheduleFrequency = *in.ScheduleFrequency
		next := s.calc.NextRun(settings.ScheduleFrequency, s.now())
		settings.NextScheduledRun = &next
	}
	if in.Status != nil {
		settings.Status = *in.Status
	}

	if err := s.store.UpdateGoldenTestSettings(ctx, id, settings); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, &PersistenceFailure{Op: "update golden test", Err: err}
	}
	if settings.Status != g.Status {
		s.logger.WithContext(ctx).WithGoldenTestID(id).Info("golden.status.changed",
			"from", string(g.Status), "to", string(settings.Status))
	}
	return s.GetGoldenTest(ctx, id)
}

// UpdateBaseline 替换冻结的基线
//
// 不改动调度与状态：重新基线表示之前的漂移是有意为之。
// 与 Evaluate 共用同一把 id 锁，进行中的比对结束后才会替换；version 加一。
func (s *Service) UpdateBaseline(ctx context.Context, id, newResultID string, newResponses []string, newMetrics *model.RunMetrics) (*model.GoldenTest, error) {
	if newResultID == "" {
		return nil, &ValidationError{Field: "baseline_result_id", Reason: "required"}
	}
	if newResponses == nil {
		newResponses = []string{}
	}

	lease, err := s.locker.Acquire(ctx, id)
	if err != nil {
		return nil, &PersistenceFailure{Op: "acquire lock", Err: err}
	}
	defer s.release(ctx, id, lease)

	baseline := &model.GoldenTestBaseline{
		ResultID:   newResultID,
		Responses:  newResponses,
		Metrics:    newMetrics,
		CapturedAt: s.now(),
	}
	if err := s.store.UpdateGoldenTestBaseline(ctx, id, baseline); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, notFound(id)
		}
		return nil, &PersistenceFailure{Op: "update baseline", Err: err}
	}
	s.logger.WithContext(ctx).WithGoldenTestID(id).Info("golden.baseline.updated",
		"result_id", newResultID, "turns", len(newResponses))
	return s.GetGoldenTest(ctx, id)
}

// DeleteGoldenTest 删除黄金测试及其运行历史
func (s *Service) DeleteGoldenTest(ctx context.Context, id string) error {
	if err := s.store.DeleteGoldenTest(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return notFound(id)
		}
		return &PersistenceFailure{Op: "delete golden test", Err: err}
	}
	s.logger.WithContext(ctx).WithGoldenTestID(id).Info("golden.deleted")
	return nil
}

// ============================================================================
// 记录运行
// ============================================================================

// RecordOption RecordRun 的附加信息
type RecordOption func(*recordOptions)

type recordOptions struct {
	metrics       *drift.MetricsDelta
	transcriptKey string
}

// WithMetricsDelta 附带延迟/成本变化及其告警
func WithMetricsDelta(d *drift.MetricsDelta) RecordOption {
	return func(o *recordOptions) { o.metrics = d }
}

// WithTranscriptKey 附带归档对话的对象 key
func WithTranscriptKey(key string) RecordOption {
	return func(o *recordOptions) { o.transcriptKey = key }
}

// RecordRun 写入一次比对结果并推进调度与状态
//
// 在 id 锁内重新加载测试，运行插入与测试更新在同一事务中完成，
// 测试更新以 version 为条件；版本冲突时重新加载并重试。
// active 因本次结果转为 failed 时追加 regression/status_changed 告警。
func (s *Service) RecordRun(ctx context.Context, goldenTestID string, currentResultID *string, outcome *drift.Outcome, opts ...RecordOption) (*model.GoldenTestRun, error) {
	if outcome == nil {
		return nil, &ValidationError{Field: "outcome", Reason: "required"}
	}

	lease, err := s.locker.Acquire(ctx, goldenTestID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "acquire lock", Err: err}
	}
	defer s.release(ctx, goldenTestID, lease)

	return s.recordRun(ctx, goldenTestID, currentResultID, outcome, opts...)
}

// recordRun RecordRun 的无锁版本，调用方必须已持有 goldenTestID 的锁
func (s *Service) recordRun(ctx context.Context, goldenTestID string, currentResultID *string, outcome *drift.Outcome, opts ...RecordOption) (*model.GoldenTestRun, error) {
	var o recordOptions
	for _, opt := range opts {
		opt(&o)
	}

	for attempt := 0; ; attempt++ {
		g, err := s.GetGoldenTest(ctx, goldenTestID)
		if err != nil {
			return nil, err
		}

		run, update := s.buildRun(g, currentResultID, outcome, &o)
		err = s.store.RecordGoldenTestRun(ctx, run, update)
		switch {
		case err == nil:
			s.logger.WithContext(ctx).RunLog(g.ID, run.ID, run.Passed, run.SemanticSimilarity, len(run.Alerts))
			return run, nil
		case errors.Is(err, storage.ErrNotFound):
			return nil, notFound(goldenTestID)
		case errors.Is(err, storage.ErrConflict) && attempt < s.maxRetries:
			s.metrics.RecordConflict()
			s.logger.WithContext(ctx).WithGoldenTestID(goldenTestID).Warn("golden.record.conflict",
				"attempt", attempt+1, "expected_version", update.ExpectedVersion)
			continue
		default:
			return nil, &PersistenceFailure{Op: "record run", Err: err}
		}
	}
}

// buildRun 根据当前测试状态构造运行记录与条件更新
func (s *Service) buildRun(g *model.GoldenTest, currentResultID *string, outcome *drift.Outcome, o *recordOptions) (*model.GoldenTestRun, *model.GoldenTestRunUpdate) {
	now := s.now()
	status := model.StatusForVerdict(g.Status, outcome.Passed)

	alerts := make([]model.Alert, 0, len(outcome.Alerts)+2)
	alerts = append(alerts, outcome.Alerts...)

	run := &model.GoldenTestRun{
		ID:                 uuid.NewString(),
		GoldenTestID:       g.ID,
		CurrentResultID:    currentResultID,
		Passed:             outcome.Passed,
		SemanticSimilarity: outcome.RoundedSimilarity(),
		DriftDetails:       outcome.DriftDetails,
		RunAt:              now,
	}
	if o.metrics != nil {
		run.LatencyChange = o.metrics.LatencyChange
		run.CostChange = o.metrics.CostChange
		alerts = append(alerts, o.metrics.Alerts...)
	}
	if o.transcriptKey != "" {
		key := o.transcriptKey
		run.TranscriptKey = &key
	}
	if g.Status == model.GoldenTestStatusActive && status == model.GoldenTestStatusFailed {
		alerts = append(alerts, model.NewStatusChangedAlert(g.Status))
	}
	run.Alerts = alerts

	return run, &model.GoldenTestRunUpdate{
		LastRunAt:        now,
		NextScheduledRun: s.calc.NextRun(g.ScheduleFrequency, now),
		Status:           status,
		ExpectedVersion:  g.Version,
	}
}

func (s *Service) release(ctx context.Context, id string, lease lock.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		s.logger.WithContext(ctx).WithGoldenTestID(id).WithError(err).Warn("golden.lock.release_failed")
	}
}

// ============================================================================
// 汇总
// ============================================================================

// AlertSample 仪表盘告警样本
type AlertSample struct {
	GoldenTestID   string      `json:"golden_test_id"`
	GoldenTestName string      `json:"golden_test_name"`
	RunID          string      `json:"run_id"`
	RunAt          time.Time   `json:"run_at"`
	Alert          model.Alert `json:"alert"`
}

// Summary 用户黄金测试概览
type Summary struct {
	Total        int                `json:"total"`
	Counts       model.StatusCounts `json:"counts"`
	RecentAlerts []AlertSample      `json:"recent_alerts"`
}

// Summarize 统计各状态数量并采样最近失败运行的告警
//
// 每次运行最多取 3 条，总计最多 10 条。只读。
func (s *Service) Summarize(ctx context.Context, userID string) (*Summary, error) {
	counts, err := s.store.CountGoldenTestsByStatus(ctx, userID)
	if err != nil {
		return nil, &PersistenceFailure{Op: "count golden tests", Err: err}
	}
	samples, err := s.store.ListRecentFailedRuns(ctx, userID, summaryAlertsTotal)
	if err != nil {
		return nil, &PersistenceFailure{Op: "list failed runs", Err: err}
	}

	sum := &Summary{
		Counts:       model.StatusCounts{},
		RecentAlerts: []AlertSample{},
	}
	for _, st := range []model.GoldenTestStatus{model.GoldenTestStatusActive, model.GoldenTestStatusPaused, model.GoldenTestStatusFailed} {
		sum.Counts[st] = counts[st]
		sum.Total += counts[st]
	}

	for _, sample := range samples {
		for i, a := range sample.Run.Alerts {
			if i == summaryAlertsPerRun || len(sum.RecentAlerts) == summaryAlertsTotal {
				break
			}
			sum.RecentAlerts = append(sum.RecentAlerts, AlertSample{
				GoldenTestID:   sample.GoldenTestID,
				GoldenTestName: sample.GoldenTestName,
				RunID:          sample.Run.ID,
				RunAt:          sample.Run.RunAt,
				Alert:          a,
			})
		}
		if len(sum.RecentAlerts) == summaryAlertsTotal {
			break
		}
	}
	return sum, nil
}

