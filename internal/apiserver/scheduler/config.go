// Package scheduler 调度器配置
package scheduler

import (
	"fmt"
	"time"

	"golden-drift/internal/config"
)

// Config 调度器配置
type Config struct {
	// Interval 轮询间隔
	Interval time.Duration `yaml:"interval"`

	// Workers 单轮并发比对数
	Workers int `yaml:"workers"`

	// ReplayRate 每秒最多发起的回放数，突发上限为 Workers
	ReplayRate float64 `yaml:"replay_rate"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Interval:   5 * time.Minute,
		Workers:    4,
		ReplayRate: 2,
	}
}

// FromAppConfig 从应用配置构建调度器配置
func FromAppConfig(c config.SchedulerConfig) *Config {
	return &Config{
		Interval:   c.Interval,
		Workers:    c.Workers,
		ReplayRate: c.ReplayRate,
	}
}

// Validate 填充零值并校验配置
func (c *Config) Validate() error {
	if c.Interval == 0 {
		c.Interval = 5 * time.Minute
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.ReplayRate == 0 {
		c.ReplayRate = 2
	}
	if c.Interval < 0 {
		return fmt.Errorf("scheduler interval must be positive, got %s", c.Interval)
	}
	if c.Workers < 0 {
		return fmt.Errorf("scheduler workers must be positive, got %d", c.Workers)
	}
	if c.ReplayRate < 0 {
		return fmt.Errorf("scheduler replay_rate must be positive, got %v", c.ReplayRate)
	}
	return nil
}
