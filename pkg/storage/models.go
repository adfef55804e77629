package storage

import (
	"time"
)

// Workflow 工作流（对外导出）
type Workflow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	// Definition 节点/边图的JSON原文
	Definition string `json:"definition"`
	Version    int    `json:"version"`
	IsActive   bool   `json:"is_active"`
	// 执行结束后的Webhook通知
	NotificationWebhookURL string    `json:"notification_webhook_url,omitempty"`
	NotificationOnFailure  bool      `json:"notification_on_failure"`
	NotificationOnSuccess  bool      `json:"notification_on_success"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// Connection 数据连接（对外导出）
type Connection struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
	// Config 连接配置JSON，存储层不解析
	Config    string    `json:"-"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionSuccess   ExecutionStatus = "success"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// IsTerminal 离开pending/running即为终态
func (s ExecutionStatus) IsTerminal() bool {
	return s != ExecutionPending && s != ExecutionRunning
}

// CanCancel 仅pending/running可取消
func (s ExecutionStatus) CanCancel() bool {
	return !s.IsTerminal()
}

// TriggerType 触发方式
type TriggerType string

const (
	TriggerManual    TriggerType = "manual"
	TriggerScheduled TriggerType = "scheduled"
	TriggerChained   TriggerType = "chained"
)

// Execution 一次工作流执行（对外导出）
type Execution struct {
	ID            string          `json:"id"`
	WorkflowID    string          `json:"workflow_id"`
	Status        ExecutionStatus `json:"status"`
	TriggerType   TriggerType     `json:"trigger_type"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	RowsProcessed int64           `json:"rows_processed"`
	RowsFailed    int64           `json:"rows_failed"`
	StartedAt     *time.Time      `json:"started_at"`
	FinishedAt    *time.Time      `json:"finished_at"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExecutionSummary 列表项，附带工作流名称
type ExecutionSummary struct {
	Execution
	WorkflowName string `json:"workflow_name,omitempty"`
}

// LogLevel 执行日志级别
type LogLevel string

const (
	LevelDebug   LogLevel = "debug"
	LevelInfo    LogLevel = "info"
	LevelWarning LogLevel = "warning"
	LevelError   LogLevel = "error"
)

// ExecutionLog 执行日志，只追加（对外导出）
type ExecutionLog struct {
	ID          int64     `json:"id"`
	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id,omitempty"`
	Level       LogLevel  `json:"level"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
}

// Schedule 工作流定时计划（对外导出）
type Schedule struct {
	ID             string     `json:"id"`
	WorkflowID     string     `json:"workflow_id"`
	Name           string     `json:"name"`
	CronExpression string     `json:"cron_expression"`
	IsActive       bool       `json:"is_active"`
	LastRunAt      *time.Time `json:"last_run_at"`
	NextRunAt      *time.Time `json:"next_run_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// 编排步骤失败策略
const (
	OnFailureStop     = "stop"
	OnFailureContinue = "continue"
)

// Orchestration 多工作流编排（对外导出）
type Orchestration struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	Description    string              `json:"description,omitempty"`
	CronExpression string              `json:"cron_expression"`
	IsActive       bool                `json:"is_active"`
	OnError        string              `json:"on_error"`
	LastRunAt      *time.Time          `json:"last_run_at"`
	NextRunAt      *time.Time          `json:"next_run_at"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	Steps          []OrchestrationStep `json:"steps"`
}

// OrchestrationStep 编排步骤
type OrchestrationStep struct {
	ID                string `json:"id"`
	OrchestrationID   string `json:"orchestration_id"`
	WorkflowID        string `json:"workflow_id"`
	OrderIndex        int    `json:"order_index"`
	RetryCount        int    `json:"retry_count"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`
	TimeoutSeconds    int    `json:"timeout_seconds"`
	OnFailure         string `json:"on_failure"`
}
