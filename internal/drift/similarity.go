// Package drift 黄金测试漂移检测核心算法
//
// 包含三部分：
//   - Scorer：单轮文本相似度评分
//   - Engine：逐轮比对基线与当前对话，产出判定与告警
//   - Calculator：下一次调度时间计算
//
// 本包不做任何 I/O，所有函数均为确定性纯计算。
package drift

import "strings"

// Scorer 文本相似度评分器
//
// 返回值必须落在 [0,1]，且对相同输入始终返回相同结果。
type Scorer interface {
	Similarity(baseline, current string) float64
}

// JaccardScorer 基于词集合的 Jaccard 相似度
//
// 文本转小写后按空白切分为词集合，返回 |交集| / |并集|。
// 两侧均为空时视为完全一致（1.0）。
type JaccardScorer struct{}

// Similarity 实现 Scorer
func (JaccardScorer) Similarity(baseline, current string) float64 {
	a := tokenSet(baseline)
	b := tokenSet(current)

	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}

	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

// ScorerFunc 函数适配器
type ScorerFunc func(baseline, current string) float64

// Similarity 实现 Scorer
func (f ScorerFunc) Similarity(baseline, current string) float64 {
	return f(baseline, current)
}
