// Package metrics Prometheus 指标导出
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 运行结果标签
const (
	ResultPassed       = "passed"
	ResultFailed       = "failed"
	ResultReplayFailed = "replay_failed"
	ResultError        = "error"
)

// Metrics 包含所有服务指标
//
// 所有方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 比对指标
	RunsTotal           *prometheus.CounterVec
	ReplayFailuresTotal prometheus.Counter
	Similarity          prometheus.Histogram
	RecordConflicts     prometheus.Counter

	// 调度器指标
	SweepDuration prometheus.Histogram
	SweepDueTests prometheus.Gauge
}

// New 在 reg 上注册并创建指标；reg 为 nil 时使用默认 Registerer
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RunsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "golden_runs_total",
				Help: "Total golden test runs by result",
			},
			[]string{"result"},
		),
		ReplayFailuresTotal: f.NewCounter(
			prometheus.CounterOpts{
				Name: "golden_replay_failures_total",
				Help: "Total replay failures and timeouts",
			},
		),
		Similarity: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "golden_similarity",
				Help:    "Aggregate semantic similarity of golden test runs",
				Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
			},
		),
		RecordConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Name: "golden_record_conflicts_total",
				Help: "Optimistic version conflicts while recording runs",
			},
		),
		SweepDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "golden_sweep_duration_seconds",
				Help:    "Scheduler sweep duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300, 600},
			},
		),
		SweepDueTests: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "golden_sweep_due_tests",
				Help: "Number of due golden tests found by the last sweep",
			},
		),
	}
}

// Handler 返回指定 Gatherer 的 Prometheus HTTP Handler
func Handler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// RecordRun 记录一次运行结果
func (m *Metrics) RecordRun(result string, similarity float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(result).Inc()
	if result == ResultReplayFailed {
		m.ReplayFailuresTotal.Inc()
		return
	}
	m.Similarity.Observe(similarity)
}

// RecordConflict 记录一次版本冲突
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.RecordConflicts.Inc()
}

// RecordSweep 记录调度器一轮扫描
func (m *Metrics) RecordSweep(duration time.Duration, due int) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(duration.Seconds())
	m.SweepDueTests.Set(float64(due))
}

// Middleware 创建 HTTP 指标中间件
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		path := normalizePath(r.URL.Path)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.statusCode)).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// responseWriter 包装 http.ResponseWriter 以捕获状态码
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

const goldenTestsPrefix = "/api/v1/golden-tests/"

// normalizePath 将 ID 替换为占位符，避免高基数
//
//	/api/v1/golden-tests/gt-123/history -> /api/v1/golden-tests/{id}/history
func normalizePath(path string) string {
	rest, ok := strings.CutPrefix(path, goldenTestsPrefix)
	if !ok || rest == "" {
		return path
	}
	switch rest {
	case "due", "summary", "alerts":
		return path
	}
	if _, sub, found := strings.Cut(rest, "/"); found {
		return goldenTestsPrefix + "{id}/" + sub
	}
	return goldenTestsPrefix + "{id}"
}
