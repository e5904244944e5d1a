// Package replay 外部回放服务客户端
//
// 回放服务按测试场景重新驱动 Agent 并返回每轮响应文本，
// 本服务只消费结果，不负责产生 Agent 输出。
package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golden-drift/internal/shared/model"
)

// ErrTestCaseNotFound 测试场景不存在
var ErrTestCaseNotFound = errors.New("replay: test case not found")

// Result 一次回放的结果
type Result struct {
	ResultID  string            `json:"result_id"`
	Responses []string          `json:"responses"`
	Metrics   *model.RunMetrics `json:"metrics,omitempty"`
}

// TestCase 测试场景（仅用于解析名称）
type TestCase struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Replayer 回放能力
type Replayer interface {
	Replay(ctx context.Context, testCaseID, agentID string) (*Result, error)
}

// TestCaseSource 测试场景查询
type TestCaseSource interface {
	GetTestCase(ctx context.Context, id string) (*TestCase, error)
}

// Client 回放服务 HTTP 客户端
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient 创建客户端；token 为空时不发送 Authorization 头
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

type replayRequest struct {
	TestCaseID string `json:"test_case_id"`
	AgentID    string `json:"agent_id"`
}

// Replay POST {baseURL}/replay
//
// 调用方通过 ctx 控制超时。
func (c *Client) Replay(ctx context.Context, testCaseID, agentID string) (*Result, error) {
	body, err := json.Marshal(replayRequest{TestCaseID: testCaseID, AgentID: agentID})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/replay", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build replay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	var result Result
	if err := c.do(req, &result); err != nil {
		return nil, fmt.Errorf("replay %s: %w", testCaseID, err)
	}
	if result.ResultID == "" {
		return nil, fmt.Errorf("replay %s: empty result_id", testCaseID)
	}
	return &result, nil
}

// GetTestCase GET {baseURL}/test-cases/{id}
func (c *Client) GetTestCase(ctx context.Context, id string) (*TestCase, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/test-cases/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("build test case request: %w", err)
	}
	c.authorize(req)

	var tc TestCase
	if err := c.do(req, &tc); err != nil {
		return nil, fmt.Errorf("get test case %s: %w", id, err)
	}
	return &tc, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrTestCaseNotFound
	}
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var (
	_ Replayer       = (*Client)(nil)
	_ TestCaseSource = (*Client)(nil)
)
