package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("记录不存在")

// DefaultExecutionListLimit 执行列表默认条数
const DefaultExecutionListLimit = 200

// WorkflowRepository 工作流存储接口（对外导出）
type WorkflowRepository interface {
	SaveWorkflow(ctx context.Context, wf *Workflow) error
	// GetWorkflow 不存在时返回ErrNotFound
	GetWorkflow(ctx context.Context, id string) (*Workflow, error)
	ListWorkflows(ctx context.Context) ([]*Workflow, error)
	DeleteWorkflow(ctx context.Context, id string) error
}

// ConnectionRepository 连接存储接口（对外导出）
type ConnectionRepository interface {
	SaveConnection(ctx context.Context, conn *Connection) error
	GetConnection(ctx context.Context, id string) (*Connection, error)
	ListConnections(ctx context.Context) ([]*Connection, error)
	DeleteConnection(ctx context.Context, id string) error
}

// ExecutionFilter 执行列表过滤条件
type ExecutionFilter struct {
	WorkflowID string
	Status     string
	// DateFrom 含
	DateFrom *time.Time
	// DateTo 含
	DateTo *time.Time
	Limit  int
}

// ExecutionRepository 执行与执行日志存储接口（对外导出）
// 状态变更均为条件更新：仅对pending/running的记录生效，返回是否发生了变更
type ExecutionRepository interface {
	CreateExecution(ctx context.Context, exec *Execution) error
	GetExecution(ctx context.Context, id string) (*Execution, error)
	// StartExecution pending -> running
	StartExecution(ctx context.Context, id string, at time.Time) (bool, error)
	// FinishExecution pending/running -> 终态
	FinishExecution(ctx context.Context, exec *Execution) (bool, error)
	// CancelExecution pending/running -> cancelled
	CancelExecution(ctx context.Context, id string, at time.Time) (bool, error)
	// ListExecutions 按创建时间倒序
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*ExecutionSummary, error)
	// AppendLog 追加日志并回填ID
	AppendLog(ctx context.Context, log *ExecutionLog) error
	// ListLogs 返回ID大于afterID的日志，按写入顺序
	ListLogs(ctx context.Context, executionID string, afterID int64) ([]*ExecutionLog, error)
}

// ScheduleRepository 定时计划存储接口（对外导出）
type ScheduleRepository interface {
	SaveSchedule(ctx context.Context, s *Schedule) error
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	// ListSchedules workflowID为空时返回全部
	ListSchedules(ctx context.Context, workflowID string) ([]*Schedule, error)
	ListActiveSchedules(ctx context.Context) ([]*Schedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	MarkScheduleRun(ctx context.Context, id string, at time.Time) error
	// SetScheduleNextRun next为nil时清空
	SetScheduleNextRun(ctx context.Context, id string, next *time.Time) error
}

// OrchestrationRepository 编排存储接口（对外导出）
type OrchestrationRepository interface {
	// SaveOrchestration 连同步骤一起保存，步骤整体替换
	SaveOrchestration(ctx context.Context, o *Orchestration) error
	// GetOrchestration 步骤按order_index升序
	GetOrchestration(ctx context.Context, id string) (*Orchestration, error)
	ListOrchestrations(ctx context.Context) ([]*Orchestration, error)
	ListActiveOrchestrations(ctx context.Context) ([]*Orchestration, error)
	DeleteOrchestration(ctx context.Context, id string) error
	MarkOrchestrationRun(ctx context.Context, id string, at time.Time) error
	SetOrchestrationNextRun(ctx context.Context, id string, next *time.Time) error
}

// Store 全部存储接口的聚合（对外导出）
type Store interface {
	WorkflowRepository
	ConnectionRepository
	ExecutionRepository
	ScheduleRepository
	OrchestrationRepository
	Close() error
}

// ParseExecutionFilter 解析查询参数中的日期，无法解析的日期被忽略
// dateTo包含当天，截止到23:59:59
func ParseExecutionFilter(workflowID, status, dateFrom, dateTo string, limit int, loc *time.Location) ExecutionFilter {
	if loc == nil {
		loc = time.Local
	}
	f := ExecutionFilter{WorkflowID: workflowID, Status: status, Limit: limit}
	if f.Limit <= 0 {
		f.Limit = DefaultExecutionListLimit
	}
	if t, ok := parseDay(dateFrom, loc); ok {
		f.DateFrom = &t
	}
	if t, ok := parseDay(dateTo, loc); ok {
		end := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 0, loc)
		f.DateTo = &end
	}
	return f
}

func parseDay(s string, loc *time.Location) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05", time.RFC3339} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
