package drift

import (
	"time"

	"golden-drift/internal/shared/model"
)

// DefaultRunHour 默认执行时刻（当地时间 03:00）
const DefaultRunHour = 3

// Calculator 调度时间计算器
type Calculator struct {
	RunHour int
}

// NewCalculator 创建计算器，hour 越界时使用 DefaultRunHour
func NewCalculator(hour int) Calculator {
	if hour < 0 || hour > 23 {
		hour = DefaultRunHour
	}
	return Calculator{RunHour: hour}
}

// NextRun 计算 ref 之后的下一次执行时间，时区取 ref.Location()
//
//   - daily：ref 次日 RunHour:00
//   - weekly：ref 七天后 RunHour:00
//   - monthly：下个月 1 日 RunHour:00
//
// 未知频率按 daily 处理。结果总是严格晚于 ref。
func (c Calculator) NextRun(freq model.ScheduleFrequency, ref time.Time) time.Time {
	loc := ref.Location()
	y, m, d := ref.Date()

	switch freq {
	case model.FrequencyWeekly:
		return time.Date(y, m, d+7, c.RunHour, 0, 0, 0, loc)
	case model.FrequencyMonthly:
		return time.Date(y, m+1, 1, c.RunHour, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d+1, c.RunHour, 0, 0, 0, loc)
	}
}

// NextRun 使用默认执行时刻计算下一次执行时间
func NextRun(freq model.ScheduleFrequency, ref time.Time) time.Time {
	return Calculator{RunHour: DefaultRunHour}.NextRun(freq, ref)
}
