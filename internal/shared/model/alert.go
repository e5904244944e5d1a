// Package model 告警数据模型
//
// Alert 是封闭的标签联合：Type 决定唯一合法的载荷字段。
//   - drift            → Drift
//   - regression       → Regression
//   - cost_increase    → Change
//   - latency_increase → Change
//
// 消费方应对 Type 做穷举 switch。
package model

import (
	"fmt"
	"math"
	"time"
)

// AlertType 告警类型
type AlertType string

const (
	AlertTypeDrift           AlertType = "drift"
	AlertTypeRegression      AlertType = "regression"
	AlertTypeCostIncrease    AlertType = "cost_increase"
	AlertTypeLatencyIncrease AlertType = "latency_increase"
)

// AlertTypes 所有告警类型
var AlertTypes = []AlertType{
	AlertTypeDrift,
	AlertTypeRegression,
	AlertTypeCostIncrease,
	AlertTypeLatencyIncrease,
}

// Severity 告警级别
type Severity string

const (
	// SeverityCritical 任一轮相似度低于 0.70，或回放失败；整次比对判定失败
	SeverityCritical Severity = "critical"
	// SeverityWarning 低于阈值但不低于 0.70
	SeverityWarning Severity = "warning"
)

// RegressionReason 回归告警原因
type RegressionReason string

const (
	// RegressionReplayFailed 回放失败或超时，未得到新的对话
	RegressionReplayFailed RegressionReason = "replay_failed"
	// RegressionStatusChanged 测试从 active 转为 failed
	RegressionStatusChanged RegressionReason = "status_changed"
)

// DriftPayload drift 告警载荷
type DriftPayload struct {
	TurnNumber int     `json:"turn_number" bson:"turn_number"`
	Similarity float64 `json:"similarity" bson:"similarity"`
	Threshold  float64 `json:"threshold" bson:"threshold"`
}

// RegressionPayload regression 告警载荷
type RegressionPayload struct {
	Reason         RegressionReason `json:"reason" bson:"reason"`
	PreviousStatus GoldenTestStatus `json:"previous_status,omitempty" bson:"previous_status,omitempty"`
	Error          string           `json:"error,omitempty" bson:"error,omitempty"`
}

// ChangePayload cost_increase / latency_increase 告警载荷
type ChangePayload struct {
	Baseline  float64 `json:"baseline" bson:"baseline"`
	Current   float64 `json:"current" bson:"current"`
	Change    float64 `json:"change" bson:"change"`
	Threshold float64 `json:"threshold" bson:"threshold"`
}

// Alert 告警
type Alert struct {
	Type       AlertType          `json:"type" bson:"type"`
	Severity   Severity           `json:"severity" bson:"severity"`
	Message    string             `json:"message" bson:"message"`
	Drift      *DriftPayload      `json:"drift,omitempty" bson:"drift,omitempty"`
	Regression *RegressionPayload `json:"regression,omitempty" bson:"regression,omitempty"`
	Change     *ChangePayload     `json:"change,omitempty" bson:"change,omitempty"`
}

// NewDriftAlert 创建轮次漂移告警
func NewDriftAlert(severity Severity, turnNumber int, similarity, threshold float64) Alert {
	return Alert{
		Type:     AlertTypeDrift,
		Severity: severity,
		Message: fmt.Sprintf("Turn %d drifted: %d%% similarity (threshold %d%%)",
			turnNumber, Percent(similarity), Percent(threshold)),
		Drift: &DriftPayload{TurnNumber: turnNumber, Similarity: similarity, Threshold: threshold},
	}
}

// NewReplayFailedAlert 创建回放失败告警
func NewReplayFailedAlert(err error) Alert {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Alert{
		Type:       AlertTypeRegression,
		Severity:   SeverityCritical,
		Message:    "Replay failed: " + msg,
		Regression: &RegressionPayload{Reason: RegressionReplayFailed, Error: msg},
	}
}

// NewStatusChangedAlert 创建状态回归告警（active → failed）
func NewStatusChangedAlert(previous GoldenTestStatus) Alert {
	return Alert{
		Type:       AlertTypeRegression,
		Severity:   SeverityCritical,
		Message:    fmt.Sprintf("Golden test regressed: %s -> %s", previous, GoldenTestStatusFailed),
		Regression: &RegressionPayload{Reason: RegressionStatusChanged, PreviousStatus: previous},
	}
}

// NewChangeAlert 创建成本/延迟上升告警
func NewChangeAlert(alertType AlertType, baseline, current, change, threshold float64) Alert {
	label := "Cost"
	if alertType == AlertTypeLatencyIncrease {
		label = "Latency"
	}
	return Alert{
		Type:     alertType,
		Severity: SeverityWarning,
		Message: fmt.Sprintf("%s increased by %d%% (threshold %d%%)",
			label, Percent(change), Percent(threshold)),
		Change: &ChangePayload{Baseline: baseline, Current: current, Change: change, Threshold: threshold},
	}
}

// Percent 将比例转换为四舍五入后的整数百分比
func Percent(ratio float64) int {
	return int(math.Round(ratio * 100))
}

// Validate 检查类型与载荷是否匹配
func (a Alert) Validate() error {
	switch a.Severity {
	case SeverityCritical, SeverityWarning:
	default:
		return fmt.Errorf("alert: unknown severity %q", a.Severity)
	}

	switch a.Type {
	case AlertTypeDrift:
		if a.Drift == nil || a.Regression != nil || a.Change != nil {
			return fmt.Errorf("alert %s: expects drift payload only", a.Type)
		}
	case AlertTypeRegression:
		if a.Regression == nil || a.Drift != nil || a.Change != nil {
			return fmt.Errorf("alert %s: expects regression payload only", a.Type)
		}
	case AlertTypeCostIncrease, AlertTypeLatencyIncrease:
		if a.Change == nil || a.Drift != nil || a.Regression != nil {
			return fmt.Errorf("alert %s: expects change payload only", a.Type)
		}
	default:
		return fmt.Errorf("alert: unknown type %q", a.Type)
	}
	return nil
}

// ============================================================================
// AlertEvent - 通知事件
// ============================================================================

// AlertEvent 一次比对产生的告警集合，发送给外部通知订阅方
//
// 引擎只负责发出事件，投递策略（邮件、Slack）由订阅方决定。
type AlertEvent struct {
	GoldenTestID   string    `json:"golden_test_id"`
	GoldenTestName string    `json:"golden_test_name"`
	UserID         string    `json:"user_id"`
	AgentID        string    `json:"agent_id"`
	RunID          string    `json:"run_id"`
	Passed         bool      `json:"passed"`
	Similarity     float64   `json:"similarity"`
	Alerts         []Alert   `json:"alerts"`
	CreatedAt      time.Time `json:"created_at"`
}
