package dao

import (
	"database/sql"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// WorkflowDAO workflows表的数据访问对象（内部使用）
type WorkflowDAO struct {
	ID                     string         `db:"id"`
	Name                   string         `db:"name"`
	Description            sql.NullString `db:"description"`
	Definition             string         `db:"definition"` // JSON格式存储
	Version                int            `db:"version"`
	IsActive               bool           `db:"is_active"`
	NotificationWebhookURL sql.NullString `db:"notification_webhook_url"`
	NotificationOnFailure  bool           `db:"notification_on_failure"`
	NotificationOnSuccess  bool           `db:"notification_on_success"`
	CreatedAt              time.Time      `db:"created_at"`
	UpdatedAt              time.Time      `db:"updated_at"`
}

// WorkflowColumns workflows表的列
var WorkflowColumns = []string{
	"id", "name", "description", "definition", "version", "is_active",
	"notification_webhook_url", "notification_on_failure", "notification_on_success",
	"created_at", "updated_at",
}

// FromWorkflow 模型转DAO
func FromWorkflow(wf *storage.Workflow) *WorkflowDAO {
	return &WorkflowDAO{
		ID:                     wf.ID,
		Name:                   wf.Name,
		Description:            nullString(wf.Description),
		Definition:             wf.Definition,
		Version:                wf.Version,
		IsActive:               wf.IsActive,
		NotificationWebhookURL: nullString(wf.NotificationWebhookURL),
		NotificationOnFailure:  wf.NotificationOnFailure,
		NotificationOnSuccess:  wf.NotificationOnSuccess,
		CreatedAt:              wf.CreatedAt.UTC(),
		UpdatedAt:              wf.UpdatedAt.UTC(),
	}
}

// ToWorkflow DAO转模型
func (d *WorkflowDAO) ToWorkflow() *storage.Workflow {
	return &storage.Workflow{
		ID:                     d.ID,
		Name:                   d.Name,
		Description:            d.Description.String,
		Definition:             d.Definition,
		Version:                d.Version,
		IsActive:               d.IsActive,
		NotificationWebhookURL: d.NotificationWebhookURL.String,
		NotificationOnFailure:  d.NotificationOnFailure,
		NotificationOnSuccess:  d.NotificationOnSuccess,
		CreatedAt:              d.CreatedAt,
		UpdatedAt:              d.UpdatedAt,
	}
}

// ConnectionDAO connections表的数据访问对象（内部使用）
type ConnectionDAO struct {
	ID        string    `db:"id"`
	Name      string    `db:"name"`
	Type      string    `db:"type"`
	Config    string    `db:"config"` // JSON格式存储
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// ConnectionColumns connections表的列
var ConnectionColumns = []string{"id", "name", "type", "config", "is_active", "created_at", "updated_at"}

// FromConnection 模型转DAO
func FromConnection(c *storage.Connection) *ConnectionDAO {
	return &ConnectionDAO{
		ID:        c.ID,
		Name:      c.Name,
		Type:      c.Type,
		Config:    c.Config,
		IsActive:  c.IsActive,
		CreatedAt: c.CreatedAt.UTC(),
		UpdatedAt: c.UpdatedAt.UTC(),
	}
}

// ToConnection DAO转模型
func (d *ConnectionDAO) ToConnection() *storage.Connection {
	return &storage.Connection{
		ID:        d.ID,
		Name:      d.Name,
		Type:      d.Type,
		Config:    d.Config,
		IsActive:  d.IsActive,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
