package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ExecutionDAO executions表的数据访问对象（内部使用）
type ExecutionDAO struct {
	ID            string         `db:"id"`
	WorkflowID    string         `db:"workflow_id"`
	Status        string         `db:"status"`
	TriggerType   string         `db:"trigger_type"`
	ErrorMessage  sql.NullString `db:"error_message"`
	RowsProcessed int64          `db:"rows_processed"`
	RowsFailed    int64          `db:"rows_failed"`
	StartedAt     sql.NullTime   `db:"started_at"`
	FinishedAt    sql.NullTime   `db:"finished_at"`
	CreatedAt     time.Time      `db:"created_at"`
}

// ExecutionColumns executions表的列
var ExecutionColumns = []string{
	"id", "workflow_id", "status", "trigger_type", "error_message",
	"rows_processed", "rows_failed", "started_at", "finished_at", "created_at",
}

// FromExecution 模型转DAO
func FromExecution(e *storage.Execution) *ExecutionDAO {
	return &ExecutionDAO{
		ID:            e.ID,
		WorkflowID:    e.WorkflowID,
		Status:        string(e.Status),
		TriggerType:   string(e.TriggerType),
		ErrorMessage:  nullString(e.ErrorMessage),
		RowsProcessed: e.RowsProcessed,
		RowsFailed:    e.RowsFailed,
		StartedAt:     nullTime(e.StartedAt),
		FinishedAt:    nullTime(e.FinishedAt),
		CreatedAt:     e.CreatedAt.UTC(),
	}
}

// ToExecution DAO转模型
func (d *ExecutionDAO) ToExecution() *storage.Execution {
	return &storage.Execution{
		ID:            d.ID,
		WorkflowID:    d.WorkflowID,
		Status:        storage.ExecutionStatus(d.Status),
		TriggerType:   storage.TriggerType(d.TriggerType),
		ErrorMessage:  d.ErrorMessage.String,
		RowsProcessed: d.RowsProcessed,
		RowsFailed:    d.RowsFailed,
		StartedAt:     timePtr(d.StartedAt),
		FinishedAt:    timePtr(d.FinishedAt),
		CreatedAt:     d.CreatedAt,
	}
}

// ExecutionSummaryDAO 执行列表行，LEFT JOIN workflows取名称
type ExecutionSummaryDAO struct {
	ExecutionDAO
	WorkflowName sql.NullString `db:"workflow_name"`
}

// ToSummary DAO转模型
func (d *ExecutionSummaryDAO) ToSummary() *storage.ExecutionSummary {
	return &storage.ExecutionSummary{
		Execution:    *d.ExecutionDAO.ToExecution(),
		WorkflowName: d.WorkflowName.String,
	}
}

// ExecutionLogDAO execution_logs表的数据访问对象（内部使用）
type ExecutionLogDAO struct {
	ID          int64          `db:"id"`
	ExecutionID string         `db:"execution_id"`
	NodeID      sql.NullString `db:"node_id"`
	Level       string         `db:"level"`
	Message     string         `db:"message"`
	CreatedAt   time.Time      `db:"created_at"`
}

// FromExecutionLog 模型转DAO
func FromExecutionLog(l *storage.ExecutionLog) *ExecutionLogDAO {
	return &ExecutionLogDAO{
		ID:          l.ID,
		ExecutionID: l.ExecutionID,
		NodeID:      nullString(l.NodeID),
		Level:       string(l.Level),
		Message:     l.Message,
		CreatedAt:   l.CreatedAt.UTC(),
	}
}

// ToExecutionLog DAO转模型
func (d *ExecutionLogDAO) ToExecutionLog() *storage.ExecutionLog {
	return &storage.ExecutionLog{
		ID:          d.ID,
		ExecutionID: d.ExecutionID,
		NodeID:      d.NodeID.String,
		Level:       storage.LogLevel(d.Level),
		Message:     d.Message,
		CreatedAt:   d.CreatedAt,
	}
}
