package drift

import "golden-drift/internal/shared/model"

// MetricsDelta 标量指标变化
//
// 变化量为带符号的比例 (current-baseline)/baseline，数据缺失时为 nil。
type MetricsDelta struct {
	LatencyChange *float64
	CostChange    *float64
	Alerts        []model.Alert
}

// CompareMetrics 比较基线与当前执行的延迟和成本
//
// 成本优先使用 Cost；任一侧缺失 Cost 时退回到 TokenCount。
// 超出阈值只产生 warning 告警，不影响判定结果。
func CompareMetrics(baseline, current *model.RunMetrics, th model.Thresholds) *MetricsDelta {
	d := &MetricsDelta{}
	if baseline == nil || current == nil {
		return d
	}

	if baseline.LatencyMs != nil && current.LatencyMs != nil {
		if change, ok := ratioChange(*baseline.LatencyMs, *current.LatencyMs); ok {
			d.LatencyChange = &change
			if change > th.MaxLatencyIncrease {
				d.Alerts = append(d.Alerts, model.NewChangeAlert(model.AlertTypeLatencyIncrease,
					*baseline.LatencyMs, *current.LatencyMs, change, th.MaxLatencyIncrease))
			}
		}
	}

	base, cur, ok := costPair(baseline, current)
	if ok {
		if change, ok := ratioChange(base, cur); ok {
			d.CostChange = &change
			if change > th.MaxCostIncrease {
				d.Alerts = append(d.Alerts, model.NewChangeAlert(model.AlertTypeCostIncrease,
					base, cur, change, th.MaxCostIncrease))
			}
		}
	}
	return d
}

func costPair(baseline, current *model.RunMetrics) (float64, float64, bool) {
	if baseline.Cost != nil && current.Cost != nil {
		return *baseline.Cost, *current.Cost, true
	}
	if baseline.TokenCount != nil && current.TokenCount != nil {
		return float64(*baseline.TokenCount), float64(*current.TokenCount), true
	}
	return 0, 0, false
}

func ratioChange(base, cur float64) (float64, bool) {
	if base == 0 {
		return 0, false
	}
	return Round4((cur - base) / base), true
}
