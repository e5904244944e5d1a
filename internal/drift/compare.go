package drift

import (
	"math"

	"golden-drift/internal/shared/model"
)

// CriticalSimilarity 低于该相似度的漂移轮次为 critical
const CriticalSimilarity = 0.70

// Outcome 一次比对的结论
type Outcome struct {
	// Similarity 参与比对轮次的平均相似度，未取整
	Similarity   float64
	Passed       bool
	DriftDetails []model.DriftDetail
	Alerts       []model.Alert
}

// RoundedSimilarity 保留 4 位小数，用于写入运行记录
func (o *Outcome) RoundedSimilarity() float64 {
	return Round4(o.Similarity)
}

// Round4 四舍五入到 4 位小数
func Round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// Engine 逐轮比对引擎
type Engine struct {
	scorer Scorer
}

// NewEngine 创建比对引擎，scorer 为 nil 时使用 JaccardScorer
func NewEngine(scorer Scorer) *Engine {
	if scorer == nil {
		scorer = JaccardScorer{}
	}
	return &Engine{scorer: scorer}
}

// Compare 按位置逐轮比对基线与当前对话
//
// 轮数不一致时缺失一侧按空字符串处理；两侧都为空的轮次跳过。
// 没有任何可比轮次时平均相似度为 1.0。
// passed 仅由平均相似度与 critical 漂移告警决定。
func (e *Engine) Compare(baseline, current []string, th model.Thresholds) *Outcome {
	n := max(len(baseline), len(current))

	out := &Outcome{
		DriftDetails: make([]model.DriftDetail, 0, n),
		Alerts:       []model.Alert{},
	}

	var sum float64
	compared := 0
	for i := 0; i < n; i++ {
		b := turnAt(baseline, i)
		c := turnAt(current, i)
		if b == "" && c == "" {
			continue
		}

		sim := e.scorer.Similarity(b, c)
		drifted := sim < th.MinSemanticSimilarity
		out.DriftDetails = append(out.DriftDetails, model.DriftDetail{
			TurnNumber: i + 1,
			Baseline:   b,
			Current:    c,
			Similarity: sim,
			IsDrifted:  drifted,
		})
		sum += sim
		compared++

		if drifted {
			severity := model.SeverityWarning
			if sim < CriticalSimilarity {
				severity = model.SeverityCritical
			}
			out.Alerts = append(out.Alerts,
				model.NewDriftAlert(severity, i+1, sim, th.MinSemanticSimilarity))
		}
	}

	out.Similarity = 1.0
	if compared > 0 {
		out.Similarity = sum / float64(compared)
	}

	out.Passed = out.Similarity >= th.MinSemanticSimilarity && !hasCritical(out.Alerts)
	return out
}

func turnAt(turns []string, i int) string {
	if i < len(turns) {
		return turns[i]
	}
	return ""
}

func hasCritical(alerts []model.Alert) bool {
	for _, a := range alerts {
		if a.Severity == model.SeverityCritical {
			return true
		}
	}
	return false
}

// ReplayFailedOutcome 回放失败时的结论：判定失败并附带 regression 告警
func ReplayFailedOutcome(err error) *Outcome {
	return &Outcome{
		Similarity:   0,
		Passed:       false,
		DriftDetails: []model.DriftDetail{},
		Alerts:       []model.Alert{model.NewReplayFailedAlert(err)},
	}
}
