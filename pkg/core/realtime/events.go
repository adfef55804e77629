// Package realtime 执行日志与执行结果的实时事件分发
package realtime

import (
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// EventType 事件类型
type EventType string

const (
	// EventLogAppended 执行日志追加
	EventLogAppended EventType = "execution.log"
	// EventExecutionFinished 执行进入终态
	EventExecutionFinished EventType = "execution.finished"
)

// ExecutionEvent 执行事件（对外导出）
type ExecutionEvent struct {
	ID          string                `json:"id"`           // 事件ID（UUID）
	Type        EventType             `json:"type"`         // 事件类型
	ExecutionID string                `json:"execution_id"` // 关联执行ID
	Timestamp   time.Time             `json:"timestamp"`
	Log         *storage.ExecutionLog `json:"log,omitempty"`
	// 以下字段仅EventExecutionFinished携带
	Status        storage.ExecutionStatus `json:"status,omitempty"`
	RowsProcessed int64                   `json:"rows_processed,omitempty"`
	RowsFailed    int64                   `json:"rows_failed,omitempty"`
	ErrorMessage  string                  `json:"error_message,omitempty"`
	Metadata      map[string]string       `json:"metadata,omitempty"`
}

// NewLogEvent 由执行日志创建事件
func NewLogEvent(l *storage.ExecutionLog) *ExecutionEvent {
	return &ExecutionEvent{
		ID:          uuid.NewString(),
		Type:        EventLogAppended,
		ExecutionID: l.ExecutionID,
		Timestamp:   time.Now(),
		Log:         l,
	}
}

// NewFinishedEvent 由终态执行记录创建事件
func NewFinishedEvent(e *storage.Execution) *ExecutionEvent {
	return &ExecutionEvent{
		ID:            uuid.NewString(),
		Type:          EventExecutionFinished,
		ExecutionID:   e.ID,
		Timestamp:     time.Now(),
		Status:        e.Status,
		RowsProcessed: e.RowsProcessed,
		RowsFailed:    e.RowsFailed,
		ErrorMessage:  e.ErrorMessage,
	}
}

// WithMetadata 添加元数据
func (e *ExecutionEvent) WithMetadata(key, value string) *ExecutionEvent {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}
