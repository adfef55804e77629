// Package client dataflow-engine HTTP API客户端
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/core/timeline"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// APIError 服务端返回的错误
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Message)
}

// Client HTTP API客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		// 同步运行可能持续较久，由调用方的context控制超时
		httpClient: &http.Client{},
	}
}

// ExecutionQuery 执行列表过滤条件
type ExecutionQuery struct {
	WorkflowID string
	Status     string
	DateFrom   string
	DateTo     string
	Limit      int
}

func (q ExecutionQuery) values() url.Values {
	v := url.Values{}
	set := func(k, val string) {
		if val != "" {
			v.Set(k, val)
		}
	}
	set("workflow_id", q.WorkflowID)
	set("status", q.Status)
	set("date_from", q.DateFrom)
	set("date_to", q.DateTo)
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

// Health 健康检查
func (c *Client) Health(ctx context.Context) (*dto.HealthResponse, error) {
	return call[dto.HealthResponse](ctx, c, http.MethodGet, "/health", nil)
}

// RunWorkflow 运行工作流；wait为true时服务端等待执行结束
func (c *Client) RunWorkflow(ctx context.Context, workflowID string, wait bool) (*dto.ExecutionDetail, error) {
	path := "/api/v1/workflows/" + url.PathEscape(workflowID) + "/run"
	if wait {
		path += "?sync=true"
	}
	return call[dto.ExecutionDetail](ctx, c, http.MethodPost, path, nil)
}

// RunOrchestration 同步运行编排
func (c *Client) RunOrchestration(ctx context.Context, orchestrationID string) (*engine.OrchestrationResult, error) {
	return call[engine.OrchestrationResult](ctx, c, http.MethodPost,
		"/api/v1/orchestrations/"+url.PathEscape(orchestrationID)+"/run?sync=true", nil)
}

// ListExecutions 列出执行记录
func (c *Client) ListExecutions(ctx context.Context, q ExecutionQuery) (*dto.ListResponse[storage.ExecutionSummary], error) {
	path := "/api/v1/executions"
	if qs := q.values().Encode(); qs != "" {
		path += "?" + qs
	}
	return call[dto.ListResponse[storage.ExecutionSummary]](ctx, c, http.MethodGet, path, nil)
}

// GetExecution 获取执行详情
func (c *Client) GetExecution(ctx context.Context, executionID string) (*dto.ExecutionDetail, error) {
	return call[dto.ExecutionDetail](ctx, c, http.MethodGet, "/api/v1/executions/"+url.PathEscape(executionID), nil)
}

// Logs 获取ID大于afterID的执行日志
func (c *Client) Logs(ctx context.Context, executionID string, afterID int64) ([]storage.ExecutionLog, error) {
	path := "/api/v1/executions/" + url.PathEscape(executionID) + "/logs"
	if afterID > 0 {
		path += "?after_id=" + strconv.FormatInt(afterID, 10)
	}
	res, err := call[dto.ListResponse[storage.ExecutionLog]](ctx, c, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// Timeline 获取执行时间线
func (c *Client) Timeline(ctx context.Context, executionID string) (*timeline.ExecutionTimeline, error) {
	return call[timeline.ExecutionTimeline](ctx, c, http.MethodGet,
		"/api/v1/executions/"+url.PathEscape(executionID)+"/timeline", nil)
}

// CancelExecution 取消执行
func (c *Client) CancelExecution(ctx context.Context, executionID string) (*dto.ExecutionDetail, error) {
	return call[dto.ExecutionDetail](ctx, c, http.MethodPost,
		"/api/v1/executions/"+url.PathEscape(executionID)+"/cancel", nil)
}

// Follow 轮询日志直到执行结束，每条新日志调用onLog，返回最终执行记录
func (c *Client) Follow(ctx context.Context, executionID string, interval time.Duration, onLog func(storage.ExecutionLog)) (*dto.ExecutionDetail, error) {
	var lastID int64
	for {
		// 先取状态再取日志，结束前写入的日志都能被取到
		exec, err := c.GetExecution(ctx, executionID)
		if err != nil {
			return nil, err
		}
		logs, err := c.Logs(ctx, executionID, lastID)
		if err != nil {
			return nil, err
		}
		for _, l := range logs {
			onLog(l)
			lastID = l.ID
		}
		if exec.Status.IsTerminal() {
			return exec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}
	}
}

func call[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("序列化请求失败: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}
	var envelope dto.APIResponse[T]
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest || envelope.Code != 0 {
		return nil, &APIError{Status: resp.StatusCode, Message: envelope.Message}
	}
	return &envelope.Data, nil
}
