package goldentest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"golden-drift/internal/shared/model"
)

// UserIDHeader 调用方用户 ID（认证由上游网关完成）
const UserIDHeader = "X-User-ID"

// 告警事件流默认/最大条数
const (
	defaultAlertFeedCount = 20
	maxAlertFeedCount     = 100
)

// AlertFeed 最近告警事件来源，由 eventbus.AlertBus 实现
type AlertFeed interface {
	RecentAlerts(ctx context.Context, count int64) ([]*model.AlertEvent, error)
}

// Handler 黄金测试 HTTP 处理器
type Handler struct {
	svc    *Service
	alerts AlertFeed
}

// NewHandler 创建处理器
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// WithAlertFeed 启用告警事件流接口
func (h *Handler) WithAlertFeed(feed AlertFeed) *Handler {
	h.alerts = feed
	return h
}

// RegisterRoutes 注册黄金测试路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/golden-tests", h.Create)
	mux.HandleFunc("GET /api/v1/golden-tests", h.List)
	mux.HandleFunc("GET /api/v1/golden-tests/summary", h.Summary)
	mux.HandleFunc("GET /api/v1/golden-tests/alerts", h.RecentAlerts)
	mux.HandleFunc("GET /api/v1/golden-tests/{id}", h.Get)
	mux.HandleFunc("PATCH /api/v1/golden-tests/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/golden-tests/{id}", h.Delete)
	mux.HandleFunc("PUT /api/v1/golden-tests/{id}/baseline", h.UpdateBaseline)
	mux.HandleFunc("GET /api/v1/golden-tests/{id}/history", h.History)
	mux.HandleFunc("POST /api/v1/golden-tests/{id}/run", h.Run)
}

// Create 创建黄金测试
// POST /api/v1/golden-tests
//
// X-User-ID 存在时覆盖请求体中的 user_id。
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if userID := r.Header.Get(UserIDHeader); userID != "" {
		in.UserID = userID
	}

	g, err := h.svc.CreateGoldenTest(r.Context(), &in)
	if err != nil {
		writeServiceError(w, "golden.create", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

// List 列出黄金测试
// GET /api/v1/golden-tests?agent_id=xxx
//
// 未指定 agent_id 时列出 X-User-ID 的全部测试。
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	agentID := r.URL.Query().Get("agent_id")

	var (
		tests []*model.GoldenTest
		err   error
	)
	switch {
	case agentID != "":
		tests, err = h.svc.ListByAgent(r.Context(), agentID)
		if err == nil && userID != "" {
			tests = ownedBy(tests, userID)
		}
	case userID != "":
		tests, err = h.svc.ListByUser(r.Context(), userID)
	default:
		writeError(w, http.StatusBadRequest, "agent_id or "+UserIDHeader+" is required")
		return
	}
	if err != nil {
		writeServiceError(w, "golden.list", err)
		return
	}
	if tests == nil {
		tests = []*model.GoldenTest{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"golden_tests": tests, "count": len(tests)})
}

// Summary 仪表盘概览
// GET /api/v1/golden-tests/summary
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, UserIDHeader+" is required")
		return
	}
	sum, err := h.svc.Summarize(r.Context(), userID)
	if err != nil {
		writeServiceError(w, "golden.summary", err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// RecentAlerts 调用方最近的告警事件（新的在前）
// GET /api/v1/golden-tests/alerts?count=20
func (h *Handler) RecentAlerts(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get(UserIDHeader)
	if userID == "" {
		writeError(w, http.StatusBadRequest, UserIDHeader+" is required")
		return
	}
	if h.alerts == nil {
		writeError(w, http.StatusServiceUnavailable, "alert feed is not configured")
		return
	}
	count := defaultAlertFeedCount
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid count")
			return
		}
		count = min(n, maxAlertFeedCount)
	}

	// 事件流为全局共享，先多取再按用户过滤
	events, err := h.alerts.RecentAlerts(r.Context(), int64(maxAlertFeedCount))
	if err != nil {
		log.Printf("[golden.alerts.failed] error=%v", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]*model.AlertEvent, 0, count)
	for _, e := range events {
		if e.UserID != userID {
			continue
		}
		out = append(out, e)
		if len(out) == count {
			break
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"events": out, "count": len(out)})
}

// Get 获取黄金测试
// GET /api/v1/golden-tests/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// Update 修改名称、阈值、频率或状态
// PATCH /api/v1/golden-tests/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	var in UpdateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.svc.UpdateGoldenTest(r.Context(), g.ID, &in)
	if err != nil {
		writeServiceError(w, "golden.update", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Delete 删除黄金测试及运行历史
// DELETE /api/v1/golden-tests/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteGoldenTest(r.Context(), g.ID); err != nil {
		writeServiceError(w, "golden.delete", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// BaselineRequest 替换基线的请求体
type BaselineRequest struct {
	ResultID  string            `json:"result_id"`
	Responses []string          `json:"responses"`
	Metrics   *model.RunMetrics `json:"metrics,omitempty"`
}

// UpdateBaseline 替换基线
// PUT /api/v1/golden-tests/{id}/baseline
func (h *Handler) UpdateBaseline(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	var req BaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	updated, err := h.svc.UpdateBaseline(r.Context(), g.ID, req.ResultID, req.Responses, req.Metrics)
	if err != nil {
		writeServiceError(w, "golden.baseline", err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// History 运行历史
// GET /api/v1/golden-tests/{id}/history?limit=20
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := h.svc.GetHistory(r.Context(), g.ID, limit)
	if err != nil {
		writeServiceError(w, "golden.history", err)
		return
	}
	if runs == nil {
		runs = []*model.GoldenTestRun{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs, "count": len(runs)})
}

// Run 手动触发一次比对
// POST /api/v1/golden-tests/{id}/run
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	g, ok := h.load(w, r)
	if !ok {
		return
	}
	run, err := h.svc.RunNow(r.Context(), g.ID)
	if err != nil {
		writeServiceError(w, "golden.run", err)
		return
	}
	writeJSON(w, http.StatusCreated, run)
}

// load 加载路径中的黄金测试，并校验 X-User-ID 归属
//
// 不属于调用方的测试按不存在处理。
func (h *Handler) load(w http.ResponseWriter, r *http.Request) (*model.GoldenTest, bool) {
	g, err := h.svc.GetGoldenTest(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, "golden.get", err)
		return nil, false
	}
	if userID := r.Header.Get(UserIDHeader); userID != "" && g.UserID != userID {
		writeError(w, http.StatusNotFound, "golden test not found")
		return nil, false
	}
	return g, true
}

func ownedBy(tests []*model.GoldenTest, userID string) []*model.GoldenTest {
	out := tests[:0]
	for _, g := range tests {
		if g.UserID == userID {
			out = append(out, g)
		}
	}
	return out
}

// ============================================================================
// 工具函数
// ============================================================================

func writeServiceError(w http.ResponseWriter, op string, err error) {
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": ve.Error(), "field": ve.Field})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "golden test not found")
	case errors.Is(err, ErrReplayUnavailable):
		writeError(w, http.StatusServiceUnavailable, "replay is not configured")
	default:
		log.Printf("[%s.failed] error=%v", op, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
