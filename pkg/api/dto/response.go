package dto

import (
	"time"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total int `json:"total"`
	Items []T `json:"items"`
}

// ValidationResponse 工作流校验结果，附带执行顺序
type ValidationResponse struct {
	Valid          bool     `json:"valid"`
	Errors         []string `json:"errors"`
	Warnings       []string `json:"warnings"`
	ExecutionOrder []string `json:"execution_order,omitempty"`
}

// ExecutionDetail 执行详情
type ExecutionDetail struct {
	*storage.Execution
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
	// Running 执行是否由本进程持有
	Running bool `json:"running"`
}

// NewExecutionDetail 计算耗时
func NewExecutionDetail(e *storage.Execution, running bool) ExecutionDetail {
	d := ExecutionDetail{Execution: e, Running: running}
	if e.StartedAt != nil && e.FinishedAt != nil {
		secs := e.FinishedAt.Sub(*e.StartedAt).Seconds()
		d.DurationSeconds = &secs
	}
	return d
}

// 实时日志帧类型
const (
	FrameLog  = "log"
	FrameDone = "done"
)

// LogFrame 实时日志流中的一条日志
type LogFrame struct {
	Type      string           `json:"type"`
	ID        int64            `json:"id"`
	NodeID    string           `json:"node_id,omitempty"`
	Level     storage.LogLevel `json:"level"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// NewLogFrame 由执行日志构造日志帧
func NewLogFrame(l *storage.ExecutionLog) LogFrame {
	return LogFrame{
		Type:      FrameLog,
		ID:        l.ID,
		NodeID:    l.NodeID,
		Level:     l.Level,
		Message:   l.Message,
		CreatedAt: l.CreatedAt,
	}
}

// DoneFrame 实时日志流的结束帧
type DoneFrame struct {
	Type          string                  `json:"type"`
	Status        storage.ExecutionStatus `json:"status"`
	RowsProcessed int64                   `json:"rows_processed"`
	RowsFailed    int64                   `json:"rows_failed"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
}

// NewDoneFrame 由执行记录构造结束帧
func NewDoneFrame(e *storage.Execution) DoneFrame {
	return DoneFrame{
		Type:          FrameDone,
		Status:        e.Status,
		RowsProcessed: e.RowsProcessed,
		RowsFailed:    e.RowsFailed,
		ErrorMessage:  e.ErrorMessage,
	}
}

// ErrorFrame 实时日志流的错误帧
type ErrorFrame struct {
	Error string `json:"error"`
}

// NextRunsResponse cron表达式的后续触发时间
type NextRunsResponse struct {
	Expression string      `json:"expression"`
	Timezone   string      `json:"timezone"`
	NextRuns   []time.Time `json:"next_runs"`
}
