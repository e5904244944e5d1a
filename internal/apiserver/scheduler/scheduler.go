// Package scheduler 黄金测试调度器
//
// 调度器定期扫描到期的 active 黄金测试，并发执行比对：
//   - 启动时立即扫描一次，之后按 Interval 轮询
//   - 每轮通过 errgroup 限制并发数，通过令牌桶限制回放速率
//   - 单个测试失败只记录日志与计数，不影响同一轮中的其他测试
//
// 同一测试的并发比对由 goldentest.Service 内的 id 锁与版本号保证。
package scheduler

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"golden-drift/internal/shared/metrics"
	"golden-drift/internal/shared/model"
	"golden-drift/pkg/logging"
)

// Evaluator 调度器依赖的比对能力，由 goldentest.Service 实现
type Evaluator interface {
	FindDueGoldenTests(ctx context.Context) ([]*model.GoldenTest, error)
	// Evaluate 测试在扫描之后已被其他 worker 执行、修改或删除时返回 nil, nil
	Evaluate(ctx context.Context, g *model.GoldenTest) (*model.GoldenTestRun, error)
}

// SweepResult 一轮扫描的统计
type SweepResult struct {
	Due       int
	Succeeded int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

// Scheduler 黄金测试调度器
type Scheduler struct {
	config    *Config
	evaluator Evaluator
	limiter   *rate.Limiter
	metrics   *metrics.Metrics
	logger    *logging.Logger

	mu      sync.Mutex    // 保护 running 状态
	running bool          // 调度器运行状态
	stopCh  chan struct{} // 停止信号通道
}

// NewScheduler 创建调度器实例
//
// config 为 nil 时使用 DefaultConfig；m 可为 nil。
func NewScheduler(evaluator Evaluator, config *Config, m *metrics.Metrics, logger *logging.Logger) (*Scheduler, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Default("scheduler")
	}

	return &Scheduler{
		config:    config,
		evaluator: evaluator,
		limiter:   rate.NewLimiter(rate.Limit(config.ReplayRate), config.Workers),
		metrics:   m,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}, nil
}

// GetConfig 获取当前配置
func (s *Scheduler) GetConfig() *Config {
	return s.config
}

// Start 启动调度器，阻塞直到 ctx 取消或调用 Stop
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[scheduler.start] interval=%s workers=%d replay_rate=%v",
		s.config.Interval, s.config.Workers, s.config.ReplayRate)

	// 启动时立即执行一次
	s.Sweep(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[scheduler.stop] reason=context_cancelled")
			return
		case <-s.stopCh:
			log.Printf("[scheduler.stop] reason=stop_signal")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		close(s.stopCh)
		s.running = false
	}
}

// Sweep 执行一轮扫描，等待本轮所有比对结束后返回
//
// ctx 取消后不再派发新的比对，已派发的比对随 ctx 一起取消。
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	start := time.Now()

	due, err := s.evaluator.FindDueGoldenTests(ctx)
	if err != nil {
		log.Printf("[scheduler.sweep.failed] error=%v", err)
		return SweepResult{Duration: time.Since(start)}
	}

	var (
		succeeded atomic.Int32
		skipped   atomic.Int32
		failed    atomic.Int32
		g         errgroup.Group
	)
	g.SetLimit(s.config.Workers)

	for i, test := range due {
		if err := s.limiter.Wait(ctx); err != nil {
			log.Printf("[scheduler.sweep.interrupted] dispatched=%d due=%d error=%v", i, len(due), err)
			break
		}
		g.Go(func() error {
			run, err := s.evaluator.Evaluate(ctx, test)
			switch {
			case err != nil:
				failed.Add(1)
				log.Printf("[scheduler.evaluate.failed] golden_test_id=%s error=%v", test.ID, err)
			case run == nil:
				skipped.Add(1)
				log.Printf("[scheduler.evaluate.skipped] golden_test_id=%s", test.ID)
			default:
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()

	res := SweepResult{
		Due:       len(due),
		Succeeded: int(succeeded.Load()),
		Skipped:   int(skipped.Load()),
		Failed:    int(failed.Load()),
		Duration:  time.Since(start),
	}
	s.metrics.RecordSweep(res.Duration, res.Due)
	if res.Due > 0 {
		s.logger.SweepLog(res.Due, res.Succeeded, res.Skipped, res.Failed, res.Duration)
	}
	return res
}
