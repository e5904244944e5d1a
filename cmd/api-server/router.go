package main

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"golden-drift/internal/apiserver/goldentest"
	"golden-drift/internal/shared/metrics"
	"golden-drift/pkg/logging"
)

// newRouter 组装 HTTP 路由
//
//	/api/v1/golden-tests/* → goldentest.Handler（经过指标、访问日志、CORS 中间件）
//	/health                → 存活检查
//	/metrics               → Prometheus 指标
func newRouter(svc *goldentest.Service, feed goldentest.AlertFeed, m *metrics.Metrics, g prometheus.Gatherer, logger *logging.Logger) http.Handler {
	mux := http.NewServeMux()
	goldentest.NewHandler(svc).WithAlertFeed(feed).RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	apiHandler := m.Middleware(accessLogMiddleware(logger, mux))

	topMux := http.NewServeMux()
	topMux.Handle("GET /metrics", metrics.Handler(g))
	topMux.Handle("/", corsMiddleware(apiHandler))
	return topMux
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, "+goldentest.UserIDHeader)

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// accessLogMiddleware 记录每个请求的方法、路径、状态码与耗时
func accessLogMiddleware(logger *logging.Logger, next http.Handler) http.Handler {
	if logger == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		if r.URL.Path == "/health" {
			return
		}
		logger.HTTPRequestLog(r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
