package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ScheduleDAO schedules表的数据访问对象（内部使用）
type ScheduleDAO struct {
	ID             string       `db:"id"`
	WorkflowID     string       `db:"workflow_id"`
	Name           string       `db:"name"`
	CronExpression string       `db:"cron_expression"`
	IsActive       bool         `db:"is_active"`
	LastRunAt      sql.NullTime `db:"last_run_at"`
	NextRunAt      sql.NullTime `db:"next_run_at"`
	CreatedAt      time.Time    `db:"created_at"`
	UpdatedAt      time.Time    `db:"updated_at"`
}

// ScheduleColumns schedules表的列
var ScheduleColumns = []string{
	"id", "workflow_id", "name", "cron_expression", "is_active",
	"last_run_at", "next_run_at", "created_at", "updated_at",
}

// FromSchedule 模型转DAO
func FromSchedule(s *storage.Schedule) *ScheduleDAO {
	return &ScheduleDAO{
		ID:             s.ID,
		WorkflowID:     s.WorkflowID,
		Name:           s.Name,
		CronExpression: s.CronExpression,
		IsActive:       s.IsActive,
		LastRunAt:      nullTime(s.LastRunAt),
		NextRunAt:      nullTime(s.NextRunAt),
		CreatedAt:      s.CreatedAt.UTC(),
		UpdatedAt:      s.UpdatedAt.UTC(),
	}
}

// ToSchedule DAO转模型
func (d *ScheduleDAO) ToSchedule() *storage.Schedule {
	return &storage.Schedule{
		ID:             d.ID,
		WorkflowID:     d.WorkflowID,
		Name:           d.Name,
		CronExpression: d.CronExpression,
		IsActive:       d.IsActive,
		LastRunAt:      timePtr(d.LastRunAt),
		NextRunAt:      timePtr(d.NextRunAt),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// OrchestrationDAO orchestrations表的数据访问对象（内部使用）
type OrchestrationDAO struct {
	ID             string         `db:"id"`
	Name           string         `db:"name"`
	Description    sql.NullString `db:"description"`
	CronExpression string         `db:"cron_expression"`
	IsActive       bool           `db:"is_active"`
	OnError        string         `db:"on_error"`
	LastRunAt      sql.NullTime   `db:"last_run_at"`
	NextRunAt      sql.NullTime   `db:"next_run_at"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
}

// OrchestrationColumns orchestrations表的列
var OrchestrationColumns = []string{
	"id", "name", "description", "cron_expression", "is_active", "on_error",
	"last_run_at", "next_run_at", "created_at", "updated_at",
}

// FromOrchestration 模型转DAO，不含步骤
func FromOrchestration(o *storage.Orchestration) *OrchestrationDAO {
	return &OrchestrationDAO{
		ID:             o.ID,
		Name:           o.Name,
		Description:    nullString(o.Description),
		CronExpression: o.CronExpression,
		IsActive:       o.IsActive,
		OnError:        o.OnError,
		LastRunAt:      nullTime(o.LastRunAt),
		NextRunAt:      nullTime(o.NextRunAt),
		CreatedAt:      o.CreatedAt.UTC(),
		UpdatedAt:      o.UpdatedAt.UTC(),
	}
}

// ToOrchestration DAO转模型，步骤由调用方填充
func (d *OrchestrationDAO) ToOrchestration() *storage.Orchestration {
	return &storage.Orchestration{
		ID:             d.ID,
		Name:           d.Name,
		Description:    d.Description.String,
		CronExpression: d.CronExpression,
		IsActive:       d.IsActive,
		OnError:        d.OnError,
		LastRunAt:      timePtr(d.LastRunAt),
		NextRunAt:      timePtr(d.NextRunAt),
		CreatedAt:      d.CreatedAt,
		UpdatedAt:      d.UpdatedAt,
	}
}

// OrchestrationStepDAO orchestration_steps表的数据访问对象（内部使用）
type OrchestrationStepDAO struct {
	ID                string `db:"id"`
	OrchestrationID   string `db:"orchestration_id"`
	WorkflowID        string `db:"workflow_id"`
	OrderIndex        int    `db:"order_index"`
	RetryCount        int    `db:"retry_count"`
	RetryDelaySeconds int    `db:"retry_delay_seconds"`
	TimeoutSeconds    int    `db:"timeout_seconds"`
	OnFailure         string `db:"on_failure"`
}

// FromOrchestrationStep 模型转DAO
func FromOrchestrationStep(s storage.OrchestrationStep) *OrchestrationStepDAO {
	return &OrchestrationStepDAO{
		ID:                s.ID,
		OrchestrationID:   s.OrchestrationID,
		WorkflowID:        s.WorkflowID,
		OrderIndex:        s.OrderIndex,
		RetryCount:        s.RetryCount,
		RetryDelaySeconds: s.RetryDelaySeconds,
		TimeoutSeconds:    s.TimeoutSeconds,
		OnFailure:         s.OnFailure,
	}
}

// ToStep DAO转模型
func (d *OrchestrationStepDAO) ToStep() storage.OrchestrationStep {
	return storage.OrchestrationStep{
		ID:                d.ID,
		OrchestrationID:   d.OrchestrationID,
		WorkflowID:        d.WorkflowID,
		OrderIndex:        d.OrderIndex,
		RetryCount:        d.RetryCount,
		RetryDelaySeconds: d.RetryDelaySeconds,
		TimeoutSeconds:    d.TimeoutSeconds,
		OnFailure:         d.OnFailure,
	}
}
