// Package model 定义核心数据模型
//
// goldentest.go 包含黄金测试相关的数据模型定义：
//   - GoldenTest：冻结的基线对话，绑定到一个测试场景
//   - GoldenTestRun：一次比对执行记录（只追加）
//   - Thresholds：漂移判定阈值
//   - ScheduleFrequency / GoldenTestStatus：调度频率与状态枚举
package model

import (
	"time"
)

// ============================================================================
// GoldenTestStatus - 黄金测试状态
// ============================================================================

// GoldenTestStatus 表示黄金测试的状态
//
// 状态机：
//
//	active → active | failed   （由最近一次比对结果驱动）
//	failed → active            （手动比对通过）
//	active | failed → paused   （仅用户显式操作）
//	paused → active            （仅用户显式恢复）
//
// 引擎自身只在 active 与 failed 之间切换，从不设置或清除 paused。
type GoldenTestStatus string

const (
	// GoldenTestStatusActive 活跃：按计划执行比对
	GoldenTestStatusActive GoldenTestStatus = "active"

	// GoldenTestStatusPaused 暂停：不参与调度
	GoldenTestStatusPaused GoldenTestStatus = "paused"

	// GoldenTestStatusFailed 失败：最近一次比对未通过（不参与调度，手动比对通过或用户改回 active 后恢复）
	GoldenTestStatusFailed GoldenTestStatus = "failed"
)

// IsValid 判断状态值是否合法
func (s GoldenTestStatus) IsValid() bool {
	switch s {
	case GoldenTestStatusActive, GoldenTestStatusPaused, GoldenTestStatusFailed:
		return true
	}
	return false
}

// StatusForVerdict 根据比对结论返回引擎自动切换的目标状态
//
// paused 状态不受比对结论影响。
func StatusForVerdict(current GoldenTestStatus, passed bool) GoldenTestStatus {
	if current == GoldenTestStatusPaused {
		return GoldenTestStatusPaused
	}
	if passed {
		return GoldenTestStatusActive
	}
	return GoldenTestStatusFailed
}

// ============================================================================
// ScheduleFrequency - 调度频率
// ============================================================================

// ScheduleFrequency 比对执行频率
type ScheduleFrequency string

const (
	FrequencyDaily   ScheduleFrequency = "daily"
	FrequencyWeekly  ScheduleFrequency = "weekly"
	FrequencyMonthly ScheduleFrequency = "monthly"
)

// IsValid 判断频率是否合法
func (f ScheduleFrequency) IsValid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly:
		return true
	}
	return false
}

// ============================================================================
// Thresholds - 漂移阈值
// ============================================================================

// 阈值默认值
const (
	DefaultMinSemanticSimilarity = 0.90
	DefaultMaxLatencyIncrease    = 0.20
	DefaultMaxCostIncrease       = 0.15
)

// Thresholds 漂移判定阈值
//
// 持久化的阈值总是完整的：未指定的字段在创建时由默认值填充。
type Thresholds struct {
	MinSemanticSimilarity float64 `json:"min_semantic_similarity" bson:"min_semantic_similarity" db:"min_semantic_similarity" validate:"gte=0,lte=1"`
	MaxLatencyIncrease    float64 `json:"max_latency_increase" bson:"max_latency_increase" db:"max_latency_increase" validate:"gte=0"`
	MaxCostIncrease       float64 `json:"max_cost_increase" bson:"max_cost_increase" db:"max_cost_increase" validate:"gte=0"`
}

// DefaultThresholds 返回系统默认阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinSemanticSimilarity: DefaultMinSemanticSimilarity,
		MaxLatencyIncrease:    DefaultMaxLatencyIncrease,
		MaxCostIncrease:       DefaultMaxCostIncrease,
	}
}

// ThresholdsPatch 部分阈值（请求输入），nil 字段表示未指定
type ThresholdsPatch struct {
	MinSemanticSimilarity *float64 `json:"min_semantic_similarity,omitempty"`
	MaxLatencyIncrease    *float64 `json:"max_latency_increase,omitempty"`
	MaxCostIncrease       *float64 `json:"max_cost_increase,omitempty"`
}

// Merge 将 patch 合并到 base 上，返回新的完整阈值
func (p *ThresholdsPatch) Merge(base Thresholds) Thresholds {
	if p == nil {
		return base
	}
	if p.MinSemanticSimilarity != nil {
		base.MinSemanticSimilarity = *p.MinSemanticSimilarity
	}
	if p.MaxLatencyIncrease != nil {
		base.MaxLatencyIncrease = *p.MaxLatencyIncrease
	}
	if p.MaxCostIncrease != nil {
		base.MaxCostIncrease = *p.MaxCostIncrease
	}
	return base
}

// ============================================================================
// RunMetrics - 标量指标快照
// ============================================================================

// RunMetrics 一次执行的标量指标
//
// 与基线一同捕获，仅用于漂移上下文报告（延迟/成本变化），不参与逐轮比对。
type RunMetrics struct {
	Score      *float64 `json:"score,omitempty" bson:"score,omitempty"`
	LatencyMs  *float64 `json:"latency_ms,omitempty" bson:"latency_ms,omitempty"`
	TokenCount *int64   `json:"token_count,omitempty" bson:"token_count,omitempty"`
	Cost       *float64 `json:"cost,omitempty" bson:"cost,omitempty"`
}

// ============================================================================
// GoldenTest - 黄金测试
// ============================================================================

// GoldenTest 冻结的可信基线，绑定到一个测试场景
//
// 生命周期：
//   - 用户将一次通过的测试结果提升为 golden 时创建
//   - 每次定时或手动比对后更新 LastRunAt / NextScheduledRun / Status
//   - 基线只能通过 update-baseline 显式替换
//   - 引擎从不硬删除；外部删除操作会级联删除运行历史
//
// Version 是乐观锁计数器，每次 RecordRun 更新时递增。
type GoldenTest struct {
	ID                 string            `json:"id" bson:"_id" db:"id"`
	TestCaseID         string            `json:"test_case_id" bson:"test_case_id" db:"test_case_id"`
	AgentID            string            `json:"agent_id" bson:"agent_id" db:"agent_id"`
	UserID             string            `json:"user_id" bson:"user_id" db:"user_id"`
	Name               string            `json:"name" bson:"name" db:"name"`
	BaselineResultID   string            `json:"baseline_result_id" bson:"baseline_result_id" db:"baseline_result_id"`
	BaselineResponses  []string          `json:"baseline_responses" bson:"baseline_responses" db:"baseline_responses"`
	BaselineMetrics    *RunMetrics       `json:"baseline_metrics,omitempty" bson:"baseline_metrics,omitempty" db:"baseline_metrics"`
	BaselineCapturedAt time.Time         `json:"baseline_captured_at" bson:"baseline_captured_at" db:"baseline_captured_at"`
	Thresholds         Thresholds        `json:"thresholds" bson:"thresholds" db:"-"`
	ScheduleFrequency  ScheduleFrequency `json:"schedule_frequency" bson:"schedule_frequency" db:"schedule_frequency"`
	LastRunAt          *time.Time        `json:"last_run_at,omitempty" bson:"last_run_at,omitempty" db:"last_run_at"`
	NextScheduledRun   *time.Time        `json:"next_scheduled_run,omitempty" bson:"next_scheduled_run,omitempty" db:"next_scheduled_run"`
	Status             GoldenTestStatus  `json:"status" bson:"status" db:"status"`
	Version            int64             `json:"version" bson:"version" db:"version"`
	CreatedAt          time.Time         `json:"created_at" bson:"created_at" db:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at" bson:"updated_at" db:"updated_at"`
}

// IsDue 判断在 now 时刻是否到期
func (g *GoldenTest) IsDue(now time.Time) bool {
	return g.Status == GoldenTestStatusActive &&
		g.NextScheduledRun != nil &&
		!g.NextScheduledRun.After(now)
}

// ============================================================================
// GoldenTestRun - 比对执行记录
// ============================================================================

// DriftDetail 单轮比对详情
type DriftDetail struct {
	TurnNumber int     `json:"turn_number" bson:"turn_number"` // 从 1 开始
	Baseline   string  `json:"baseline" bson:"baseline"`
	Current    string  `json:"current" bson:"current"`
	Similarity float64 `json:"similarity" bson:"similarity"`
	IsDrifted  bool    `json:"is_drifted" bson:"is_drifted"`
}

// GoldenTestRun 一次比对执行
//
// 只追加：引擎从不更新或删除 Run。
// CurrentResultID 为 nil 表示回放在产生输出前失败。
type GoldenTestRun struct {
	ID                 string        `json:"id" bson:"_id" db:"id"`
	GoldenTestID       string        `json:"golden_test_id" bson:"golden_test_id" db:"golden_test_id"`
	CurrentResultID    *string       `json:"current_result_id,omitempty" bson:"current_result_id,omitempty" db:"current_result_id"`
	Passed             bool          `json:"passed" bson:"passed" db:"passed"`
	SemanticSimilarity float64       `json:"semantic_similarity" bson:"semantic_similarity" db:"semantic_similarity"`
	LatencyChange      *float64      `json:"latency_change,omitempty" bson:"latency_change,omitempty" db:"latency_change"`
	CostChange         *float64      `json:"cost_change,omitempty" bson:"cost_change,omitempty" db:"cost_change"`
	DriftDetails       []DriftDetail `json:"drift_details" bson:"drift_details" db:"drift_details"`
	Alerts             []Alert       `json:"alerts" bson:"alerts" db:"alerts"`
	TranscriptKey      *string       `json:"transcript_key,omitempty" bson:"transcript_key,omitempty" db:"transcript_key"`
	RunAt              time.Time     `json:"run_at" bson:"run_at" db:"run_at"`
}

// HasCritical 是否包含 critical 级别告警
func (r *GoldenTestRun) HasCritical() bool {
	for _, a := range r.Alerts {
		if a.Severity == SeverityCritical {
			return true
		}
	}
	return false
}

// ============================================================================
// 存储层辅助类型
// ============================================================================

// GoldenTestRunUpdate RecordRun 时对 GoldenTest 的条件更新
//
// ExpectedVersion 必须与当前版本一致，否则存储层返回 ErrConflict。
type GoldenTestRunUpdate struct {
	LastRunAt        time.Time
	NextScheduledRun time.Time
	Status           GoldenTestStatus
	ExpectedVersion  int64
}

// GoldenTestSettings 用户可修改的设置（名称、阈值、频率、状态）
type GoldenTestSettings struct {
	Name              string
	Thresholds        Thresholds
	ScheduleFrequency ScheduleFrequency
	Status            GoldenTestStatus
	NextScheduledRun  *time.Time
}

// GoldenTestBaseline 替换基线的内容
type GoldenTestBaseline struct {
	ResultID   string
	Responses  []string
	Metrics    *RunMetrics
	CapturedAt time.Time
}

// FailedRunSample 仪表盘用的失败运行样本
type FailedRunSample struct {
	GoldenTestID   string
	GoldenTestName string
	Run            *GoldenTestRun
}

// StatusCounts 各状态数量
type StatusCounts map[GoldenTestStatus]int
