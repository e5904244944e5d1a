package goldentest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golden-drift/internal/drift"
	"golden-drift/internal/shared/lock"
	"golden-drift/internal/shared/metrics"
	"golden-drift/internal/shared/model"
	"golden-drift/internal/shared/replay"
	"golden-drift/internal/shared/storage"
	sqlitedriver "golden-drift/internal/shared/storage/driver/sqlite"
	"golden-drift/internal/shared/storage/repository"
	"golden-drift/pkg/logging"
)

// ============================================================================
// 测试辅助
// ============================================================================

var t0 = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// fakeClock 可手动推进的时钟，每次读取后前进 1 秒以保证 run_at 有序
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })
	return store
}

// newTestService 创建基于 SQLite 内存库的服务；opts.Now 未设置时使用 fakeClock
func newTestService(t *testing.T, store storage.GoldenTestStore, opts Options) (*Service, *fakeClock) {
	t.Helper()
	if store == nil {
		store = newTestStore(t)
	}
	clock := newFakeClock()
	if opts.Now == nil {
		opts.Now = clock.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return NewService(store, opts), clock
}

func validInput() *CreateInput {
	return &CreateInput{
		TestCaseID:        "tc-1",
		AgentID:           "agent-1",
		UserID:            "user-1",
		Name:              "refund flow",
		BaselineResultID:  "result-1",
		BaselineResponses: []string{"hello there", "your refund was approved"},
	}
}

func mustCreate(t *testing.T, svc *Service, in *CreateInput) *model.GoldenTest {
	t.Helper()
	g, err := svc.CreateGoldenTest(context.Background(), in)
	require.NoError(t, err)
	return g
}

func f64(v float64) *float64 { return &v }

func failingOutcome(n int) *drift.Outcome {
	out := &drift.Outcome{Similarity: 0.5, Passed: false}
	for i := 0; i < n; i++ {
		out.Alerts = append(out.Alerts, model.NewDriftAlert(model.SeverityCritical, i+1, 0.5, 0.9))
	}
	return out
}

func passingOutcome() *drift.Outcome {
	return &drift.Outcome{Similarity: 1, Passed: true, Alerts: []model.Alert{}}
}

type fakeTestCases map[string]*replay.TestCase

func (f fakeTestCases) GetTestCase(_ context.Context, id string) (*replay.TestCase, error) {
	tc, ok := f[id]
	if !ok {
		return nil, replay.ErrTestCaseNotFound
	}
	return tc, nil
}

// noopLocker 不做任何互斥，用于触发存储层的版本冲突
type noopLocker struct{}

func (noopLocker) Acquire(context.Context, string) (lock.Lease, error) { return noopLease{}, nil }

type noopLease struct{}

func (noopLease) Release(context.Context) error { return nil }

// conflictStore 前 n 次 RecordGoldenTestRun 返回 ErrConflict
type conflictStore struct {
	storage.GoldenTestStore
	remaining atomic.Int32
	calls     atomic.Int32
}

func (c *conflictStore) RecordGoldenTestRun(ctx context.Context, run *model.GoldenTestRun, u *model.GoldenTestRunUpdate) error {
	c.calls.Add(1)
	if c.remaining.Add(-1) >= 0 {
		return storage.ErrConflict
	}
	return c.GoldenTestStore.RecordGoldenTestRun(ctx, run, u)
}

// ============================================================================
// CreateGoldenTest
// ============================================================================

func TestCreateGoldenTest_Defaults(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	in := validInput()
	in.Thresholds = &model.ThresholdsPatch{MinSemanticSimilarity: f64(0.8)}

	g := mustCreate(t, svc, in)

	assert.NotEmpty(t, g.ID)
	assert.Equal(t, model.GoldenTestStatusActive, g.Status)
	assert.Equal(t, model.FrequencyDaily, g.ScheduleFrequency)
	assert.Equal(t, 0.8, g.Thresholds.MinSemanticSimilarity)
	assert.Equal(t, model.DefaultMaxLatencyIncrease, g.Thresholds.MaxLatencyIncrease)
	assert.Equal(t, model.DefaultMaxCostIncrease, g.Thresholds.MaxCostIncrease)
	require.NotNil(t, g.NextScheduledRun)
	assert.True(t, g.NextScheduledRun.After(g.CreatedAt))
	assert.Nil(t, g.LastRunAt)

	got, err := svc.GetGoldenTest(context.Background(), g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Name, got.Name)
	assert.Equal(t, in.BaselineResponses, got.BaselineResponses)
	assert.Equal(t, g.Thresholds, got.Thresholds)
}

func TestCreateGoldenTest_ConfiguredDefaultThresholds(t *testing.T) {
	defaults := model.Thresholds{MinSemanticSimilarity: 0.75, MaxLatencyIncrease: 1, MaxCostIncrease: 1}
	svc, _ := newTestService(t, nil, Options{DefaultThresholds: &defaults})

	g := mustCreate(t, svc, validInput())
	assert.Equal(t, defaults, g.Thresholds)
}

func TestCreateGoldenTest_Validation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*CreateInput)
		field string
	}{
		{"missing test case", func(in *CreateInput) { in.TestCaseID = "" }, "test_case_id"},
		{"missing agent", func(in *CreateInput) { in.AgentID = "" }, "agent_id"},
		{"missing user", func(in *CreateInput) { in.UserID = "" }, "user_id"},
		{"missing baseline result", func(in *CreateInput) { in.BaselineResultID = "" }, "baseline_result_id"},
		{"bad frequency", func(in *CreateInput) { in.ScheduleFrequency = "hourly" }, "schedule_frequency"},
		{"similarity above 1", func(in *CreateInput) {
			in.Thresholds = &model.ThresholdsPatch{MinSemanticSimilarity: f64(1.5)}
		}, "thresholds.min_semantic_similarity"},
		{"negative cost", func(in *CreateInput) {
			in.Thresholds = &model.ThresholdsPatch{MaxCostIncrease: f64(-0.1)}
		}, "thresholds.max_cost_increase"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t, nil, Options{})
			in := validInput()
			tt.mut(in)

			_, err := svc.CreateGoldenTest(context.Background(), in)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.field, ve.Field)

			// 校验失败不写入
			tests, err := svc.ListByUser(context.Background(), "user-1")
			require.NoError(t, err)
			assert.Empty(t, tests)
		})
	}
}

func TestCreateGoldenTest_NameFromTestCase(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{TestCases: fakeTestCases{
		"tc-1": {ID: "tc-1", Name: "Refund scenario"},
		"tc-2": {ID: "tc-2"},
	}})

	in := validInput()
	in.Name = ""
	g := mustCreate(t, svc, in)
	assert.Equal(t, "Refund scenario", g.Name)

	// 场景没有名称
	in.TestCaseID = "tc-2"
	_, err := svc.CreateGoldenTest(context.Background(), in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	// 场景不存在
	in.TestCaseID = "tc-404"
	_, err = svc.CreateGoldenTest(context.Background(), in)
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
}

func TestCreateGoldenTest_NoNameWithoutSource(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	in := validInput()
	in.Name = ""

	_, err := svc.CreateGoldenTest(context.Background(), in)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)
}

// ============================================================================
// 查询
// ============================================================================

func TestGetGoldenTest_NotFound(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	_, err := svc.GetGoldenTest(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestListByAgentAndUser(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()

	mustCreate(t, svc, validInput())
	in := validInput()
	in.AgentID = "agent-2"
	mustCreate(t, svc, in)
	in = validInput()
	in.UserID = "user-2"
	mustCreate(t, svc, in)

	byAgent, err := svc.ListByAgent(ctx, "agent-1")
	require.NoError(t, err)
	assert.Len(t, byAgent, 2)

	byUser, err := svc.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, byUser, 2)
}

func TestFindDueGoldenTests(t *testing.T) {
	svc, clock := newTestService(t, nil, Options{})
	ctx := context.Background()

	g := mustCreate(t, svc, validInput())
	paused := mustCreate(t, svc, validInput())
	status := model.GoldenTestStatusPaused
	_, err := svc.UpdateGoldenTest(ctx, paused.ID, &UpdateInput{Status: &status})
	require.NoError(t, err)
	// failed 不参与调度
	failed := mustCreate(t, svc, validInput())
	_, err = svc.RecordRun(ctx, failed.ID, nil, failingOutcome(1))
	require.NoError(t, err)

	due, err := svc.FindDueGoldenTests(ctx)
	require.NoError(t, err)
	assert.Empty(t, due)

	clock.Advance(48 * time.Hour)
	due, err = svc.FindDueGoldenTests(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, g.ID, due[0].ID)
}

func TestGetHistory(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	var ids []string
	for i := 0; i < 3; i++ {
		run, err := svc.RecordRun(ctx, g.ID, nil, passingOutcome())
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := svc.GetHistory(ctx, g.ID, 0)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID, "newest first")

	runs, err = svc.GetHistory(ctx, g.ID, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)

	runs, err = svc.GetHistory(ctx, g.ID, MaxHistoryLimit+50)
	require.NoError(t, err)
	assert.Len(t, runs, 3)

	_, err = svc.GetHistory(ctx, "missing", 10)
	assert.ErrorIs(t, err, ErrNotFound)
}

// ============================================================================
// 更新 / 删除
// ============================================================================

func TestUpdateGoldenTest(t *testing.T) {
	svc, clock := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	name := "renamed"
	weekly := model.FrequencyWeekly
	paused := model.GoldenTestStatusPaused
	clock.Advance(time.Hour)

	updated, err := svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{
		Name:              &name,
		Thresholds:        &model.ThresholdsPatch{MaxLatencyIncrease: f64(0.5)},
		ScheduleFrequency: &weekly,
		Status:            &paused,
	})
	require.NoError(t, err)
	assert.Equal(t, "renamed", updated.Name)
	assert.Equal(t, 0.5, updated.Thresholds.MaxLatencyIncrease)
	assert.Equal(t, g.Thresholds.MinSemanticSimilarity, updated.Thresholds.MinSemanticSimilarity)
	assert.Equal(t, model.FrequencyWeekly, updated.ScheduleFrequency)
	assert.Equal(t, model.GoldenTestStatusPaused, updated.Status)
	require.NotNil(t, updated.NextScheduledRun)
	assert.True(t, updated.NextScheduledRun.After(*g.NextScheduledRun))

	// 频率不变时保留原有下次执行时间
	name = "renamed again"
	again, err := svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{Name: &name})
	require.NoError(t, err)
	assert.True(t, again.NextScheduledRun.Equal(*updated.NextScheduledRun))
}

func TestUpdateGoldenTest_Rejects(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	failed := model.GoldenTestStatusFailed
	_, err := svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{Status: &failed})
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "status", ve.Field)

	empty := ""
	_, err = svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{Name: &empty})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "name", ve.Field)

	_, err = svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{
		Thresholds: &model.ThresholdsPatch{MinSemanticSimilarity: f64(-1)},
	})
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "thresholds.min_semantic_similarity", ve.Field)

	name := "x"
	_, err = svc.UpdateGoldenTest(ctx, "missing", &UpdateInput{Name: &name})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateBaseline(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())
	_, err := svc.RecordRun(ctx, g.ID, nil, failingOutcome(1))
	require.NoError(t, err)
	before, err := svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)

	latency := 120.0
	updated, err := svc.UpdateBaseline(ctx, g.ID, "result-2", []string{"new answer"},
		&model.RunMetrics{LatencyMs: &latency})
	require.NoError(t, err)

	assert.Equal(t, "result-2", updated.BaselineResultID)
	assert.Equal(t, []string{"new answer"}, updated.BaselineResponses)
	require.NotNil(t, updated.BaselineMetrics)
	assert.Equal(t, 120.0, *updated.BaselineMetrics.LatencyMs)
	assert.True(t, updated.BaselineCapturedAt.After(before.BaselineCapturedAt))
	// 调度与状态不变，version 递增
	assert.Equal(t, before.Status, updated.Status)
	assert.Equal(t, before.Version+1, updated.Version)
	assert.True(t, updated.NextScheduledRun.Equal(*before.NextScheduledRun))

	_, err = svc.UpdateBaseline(ctx, g.ID, "", nil, nil)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)

	_, err = svc.UpdateBaseline(ctx, "missing", "result-3", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteGoldenTest(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())
	_, err := svc.RecordRun(ctx, g.ID, nil, passingOutcome())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteGoldenTest(ctx, g.ID))

	_, err = svc.GetGoldenTest(ctx, g.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.GetHistory(ctx, g.ID, 10)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteGoldenTest(ctx, g.ID), ErrNotFound)
}

// ============================================================================
// RecordRun
// ============================================================================

func TestRecordRun_StatusTransitions(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())
	resultID := "result-9"

	// active → failed：追加 status_changed 告警
	run, err := svc.RecordRun(ctx, g.ID, &resultID, failingOutcome(2))
	require.NoError(t, err)
	assert.False(t, run.Passed)
	require.Len(t, run.Alerts, 3)
	last := run.Alerts[2]
	assert.Equal(t, model.AlertTypeRegression, last.Type)
	assert.Equal(t, model.RegressionStatusChanged, last.Regression.Reason)
	assert.Equal(t, model.GoldenTestStatusActive, last.Regression.PreviousStatus)

	cur, err := svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoldenTestStatusFailed, cur.Status)
	assert.Equal(t, g.Version+1, cur.Version)
	require.NotNil(t, cur.LastRunAt)
	assert.True(t, cur.LastRunAt.Equal(run.RunAt))
	expectedNext := drift.NextRun(model.FrequencyDaily, run.RunAt)
	assert.True(t, cur.NextScheduledRun.Equal(expectedNext))

	// failed → failed：不再追加
	run, err = svc.RecordRun(ctx, g.ID, nil, failingOutcome(1))
	require.NoError(t, err)
	assert.Len(t, run.Alerts, 1)
	assert.Nil(t, run.CurrentResultID)

	// failed → active
	run, err = svc.RecordRun(ctx, g.ID, &resultID, passingOutcome())
	require.NoError(t, err)
	assert.True(t, run.Passed)
	assert.Empty(t, run.Alerts)
	cur, err = svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoldenTestStatusActive, cur.Status)
	assert.Equal(t, g.Version+3, cur.Version)
}

func TestRecordRun_PausedStaysPaused(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())
	paused := model.GoldenTestStatusPaused
	_, err := svc.UpdateGoldenTest(ctx, g.ID, &UpdateInput{Status: &paused})
	require.NoError(t, err)

	run, err := svc.RecordRun(ctx, g.ID, nil, failingOutcome(1))
	require.NoError(t, err)
	assert.Len(t, run.Alerts, 1)

	cur, err := svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, model.GoldenTestStatusPaused, cur.Status)
}

func TestRecordRun_MetricsAlertsFollowOutcome(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	delta := &drift.MetricsDelta{
		LatencyChange: f64(0.5),
		Alerts: []model.Alert{
			model.NewChangeAlert(model.AlertTypeLatencyIncrease, 100, 150, 0.5, 0.2),
		},
	}
	run, err := svc.RecordRun(ctx, g.ID, nil, failingOutcome(1), WithMetricsDelta(delta), WithTranscriptKey("transcripts/x.json"))
	require.NoError(t, err)

	require.Len(t, run.Alerts, 3)
	assert.Equal(t, model.AlertTypeDrift, run.Alerts[0].Type)
	assert.Equal(t, model.AlertTypeLatencyIncrease, run.Alerts[1].Type)
	assert.Equal(t, model.AlertTypeRegression, run.Alerts[2].Type)
	require.NotNil(t, run.LatencyChange)
	assert.Equal(t, 0.5, *run.LatencyChange)
	require.NotNil(t, run.TranscriptKey)
	assert.Equal(t, "transcripts/x.json", *run.TranscriptKey)
}

func TestRecordRun_Errors(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()

	_, err := svc.RecordRun(ctx, "missing", nil, passingOutcome())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.RecordRun(ctx, "missing", nil, nil)
	var ve *ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestRecordRun_ConcurrentCallsSerialize(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordRun(ctx, g.ID, nil, passingOutcome())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	runs, err := svc.GetHistory(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	cur, err := svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Version+2, cur.Version)
}

func TestRecordRun_ConflictRetryWithoutLock(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{Locker: noopLocker{}, MaxRetries: 10})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	const n = 5
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordRun(ctx, g.ID, nil, passingOutcome())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	runs, err := svc.GetHistory(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Len(t, runs, n)
	cur, err := svc.GetGoldenTest(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, g.Version+n, cur.Version)
}

func TestRecordRun_RetriesConflicts(t *testing.T) {
	store := &conflictStore{GoldenTestStore: newTestStore(t)}
	m := metrics.New(prometheus.NewRegistry())
	svc, _ := newTestService(t, store, Options{MaxRetries: 2, Metrics: m})
	ctx := context.Background()
	g := mustCreate(t, svc, validInput())

	store.remaining.Store(2)
	run, err := svc.RecordRun(ctx, g.ID, nil, passingOutcome())
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, int32(3), store.calls.Load())
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RecordConflicts))

	// 重试耗尽
	store.calls.Store(0)
	store.remaining.Store(3)
	_, err = svc.RecordRun(ctx, g.ID, nil, passingOutcome())
	assert.ErrorIs(t, err, storage.ErrConflict)
	var pf *PersistenceFailure
	assert.True(t, errors.As(err, &pf))
	assert.Equal(t, int32(3), store.calls.Load())

	runs, err := svc.GetHistory(ctx, g.ID, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// ============================================================================
// Summarize
// ============================================================================

func TestSummarize(t *testing.T) {
	svc, _ := newTestService(t, nil, Options{})
	ctx := context.Background()

	sum, err := svc.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 0, sum.Total)
	assert.Len(t, sum.Counts, 3)
	assert.NotNil(t, sum.RecentAlerts)

	a := mustCreate(t, svc, validInput())
	b := mustCreate(t, svc, validInput())
	c := mustCreate(t, svc, validInput())
	paused := model.GoldenTestStatusPaused
	_, err = svc.UpdateGoldenTest(ctx, c.ID, &UpdateInput{Status: &paused})
	require.NoError(t, err)

	// 4 次失败运行，每次 5 条告警
	for i := 0; i < 4; i++ {
		_, err := svc.RecordRun(ctx, a.ID, nil, failingOutcome(5))
		require.NoError(t, err)
	}
	_, err = svc.RecordRun(ctx, b.ID, nil, passingOutcome())
	require.NoError(t, err)

	sum, err = svc.Summarize(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 1, sum.Counts[model.GoldenTestStatusActive])
	assert.Equal(t, 1, sum.Counts[model.GoldenTestStatusPaused])
	assert.Equal(t, 1, sum.Counts[model.GoldenTestStatusFailed])

	require.Len(t, sum.RecentAlerts, summaryAlertsTotal)
	perRun := map[string]int{}
	for _, s := range sum.RecentAlerts {
		assert.Equal(t, a.ID, s.GoldenTestID)
		perRun[s.RunID]++
	}
	for _, n := range perRun {
		assert.LessOrEqual(t, n, summaryAlertsPerRun)
	}

	other, err := svc.Summarize(ctx, "user-2")
	require.NoError(t, err)
	assert.Equal(t, 0, other.Total)
	assert.Empty(t, other.RecentAlerts)
}
