// Package eventbus 事件总线类型定义
package eventbus

// ============================================================================
// Key 和常量
// ============================================================================

const (
	// KeyGoldenAlerts 告警 Stream 名称
	KeyGoldenAlerts = "golden_alerts"

	// MaxStreamLength Stream 近似最大长度
	MaxStreamLength = 1000
)
