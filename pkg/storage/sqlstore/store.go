// Package sqlstore 基于sqlx的持久化实现，sqlite/mysql/postgres共用，差异由storage.Dialect承担
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/dao"
)

// Options 连接池配置
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Store storage.Store的SQL实现（对外导出）
type Store struct {
	db      *sqlx.DB
	dialect storage.Dialect
	now     func() time.Time
}

// New 在已打开的连接上创建Store并初始化表结构（对外导出）
func New(db *sqlx.DB, dialect storage.Dialect) (*Store, error) {
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			return nil, fmt.Errorf("配置%s失败: %w", dialect.Name(), err)
		}
	}
	s := &Store{db: db, dialect: dialect, now: time.Now}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return s, nil
}

// Open 打开数据库、配置连接池并创建Store（对外导出）
func Open(dialect storage.Dialect, dsn string, opts Options) (*Store, error) {
	db, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	if opts.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(opts.ConnMaxIdleTime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	s, err := New(db, dialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// DB 获取底层数据库连接（对外导出）
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Close 关闭数据库连接（对外导出）
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, ext sqlx.ExtContext, table string, columns []string, arg any) error {
	update := make([]string, 0, len(columns))
	for _, c := range columns {
		if c != "id" && c != "created_at" {
			update = append(update, c)
		}
	}
	_, err := sqlx.NamedExecContext(ctx, ext, s.dialect.UpsertSQL(table, columns, "id", update), arg)
	return err
}

func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, table string, columns []string, arg any) error {
	named := make([]string, len(columns))
	for i, c := range columns {
		named[i] = ":" + c
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(columns, ", "), strings.Join(named, ", "))
	_, err := sqlx.NamedExecContext(ctx, ext, query, arg)
	return err
}

func (s *Store) get(ctx context.Context, dest any, query string, args ...any) error {
	err := s.db.GetContext(ctx, dest, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) deleteByID(ctx context.Context, table, id string) error {
	n, err := s.exec(ctx, "DELETE FROM "+table+" WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("删除%s失败: %w", table, err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

func (s *Store) stamp(created *time.Time, updated *time.Time) {
	now := s.now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

func columnList(prefix string, cols []string) string {
	if prefix == "" {
		return strings.Join(cols, ", ")
	}
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = prefix + "." + c
	}
	return strings.Join(out, ", ")
}

// ---------------- Workflow ----------------

// SaveWorkflow 按ID插入或更新
func (s *Store) SaveWorkflow(ctx context.Context, wf *storage.Workflow) error {
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Version <= 0 {
		wf.Version = 1
	}
	s.stamp(&wf.CreatedAt, &wf.UpdatedAt)
	if err := s.upsert(ctx, s.db, "workflows", dao.WorkflowColumns, dao.FromWorkflow(wf)); err != nil {
		return fmt.Errorf("保存工作流失败: %w", err)
	}
	return nil
}

// GetWorkflow 不存在时返回storage.ErrNotFound
func (s *Store) GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error) {
	var d dao.WorkflowDAO
	if err := s.get(ctx, &d, "SELECT "+columnList("", dao.WorkflowColumns)+" FROM workflows WHERE id = ?", id); err != nil {
		return nil, err
	}
	return d.ToWorkflow(), nil
}

func (s *Store) ListWorkflows(ctx context.Context) ([]*storage.Workflow, error) {
	var rows []dao.WorkflowDAO
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+columnList("", dao.WorkflowColumns)+" FROM workflows ORDER BY updated_at DESC"); err != nil {
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	out := make([]*storage.Workflow, len(rows))
	for i := range rows {
		out[i] = rows[i].ToWorkflow()
	}
	return out, nil
}

// DeleteWorkflow 级联删除执行、日志、计划和编排步骤
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmts := []string{
			"DELETE FROM execution_logs WHERE execution_id IN (SELECT id FROM executions WHERE workflow_id = ?)",
			"DELETE FROM executions WHERE workflow_id = ?",
			"DELETE FROM schedules WHERE workflow_id = ?",
			"DELETE FROM orchestration_steps WHERE workflow_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, tx.Rebind(stmt), id); err != nil {
				return fmt.Errorf("级联删除失败: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM workflows WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("删除工作流失败: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

// ---------------- Connection ----------------

func (s *Store) SaveConnection(ctx context.Context, c *storage.Connection) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.stamp(&c.CreatedAt, &c.UpdatedAt)
	if err := s.upsert(ctx, s.db, "connections", dao.ConnectionColumns, dao.FromConnection(c)); err != nil {
		return fmt.Errorf("保存连接失败: %w", err)
	}
	return nil
}

func (s *Store) GetConnection(ctx context.Context, id string) (*storage.Connection, error) {
	var d dao.ConnectionDAO
	if err := s.get(ctx, &d, "SELECT "+columnList("", dao.ConnectionColumns)+" FROM connections WHERE id = ?", id); err != nil {
		return nil, err
	}
	return d.ToConnection(), nil
}

func (s *Store) ListConnections(ctx context.Context) ([]*storage.Connection, error) {
	var rows []dao.ConnectionDAO
	if err := s.db.SelectContext(ctx, &rows, "SELECT "+columnList("", dao.ConnectionColumns)+" FROM connections ORDER BY name"); err != nil {
		return nil, fmt.Errorf("查询连接失败: %w", err)
	}
	out := make([]*storage.Connection, len(rows))
	for i := range rows {
		out[i] = rows[i].ToConnection()
	}
	return out, nil
}

func (s *Store) DeleteConnection(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "connections", id)
}

// ---------------- Execution ----------------

func (s *Store) CreateExecution(ctx context.Context, e *storage.Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Status == "" {
		e.Status = storage.ExecutionPending
	}
	s.stamp(&e.CreatedAt, nil)
	if err := s.insert(ctx, s.db, "executions", dao.ExecutionColumns, dao.FromExecution(e)); err != nil {
		return fmt.Errorf("创建执行记录失败: %w", err)
	}
	return nil
}

func (s *Store) GetExecution(ctx context.Context, id string) (*storage.Execution, error) {
	var d dao.ExecutionDAO
	if err := s.get(ctx, &d, "SELECT "+columnList("", dao.ExecutionColumns)+" FROM executions WHERE id = ?", id); err != nil {
		return nil, err
	}
	return d.ToExecution(), nil
}

// StartExecution pending -> running，保留已有的started_at
func (s *Store) StartExecution(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx,
		"UPDATE executions SET status = ?, started_at = COALESCE(started_at, ?) WHERE id = ? AND status = ?",
		string(storage.ExecutionRunning), at.UTC(), id, string(storage.ExecutionPending))
	if err != nil {
		return false, fmt.Errorf("更新执行状态失败: %w", err)
	}
	return n > 0, nil
}

// FinishExecution 仅当记录仍为pending/running时写入终态
func (s *Store) FinishExecution(ctx context.Context, e *storage.Execution) (bool, error) {
	d := dao.FromExecution(e)
	n, err := s.exec(ctx,
		`UPDATE executions SET status = ?, error_message = ?, rows_processed = ?, rows_failed = ?,
		 started_at = COALESCE(started_at, ?), finished_at = ?
		 WHERE id = ? AND status IN (?, ?)`,
		d.Status, d.ErrorMessage, d.RowsProcessed, d.RowsFailed, d.StartedAt, d.FinishedAt,
		d.ID, string(storage.ExecutionPending), string(storage.ExecutionRunning))
	if err != nil {
		return false, fmt.Errorf("更新执行结果失败: %w", err)
	}
	return n > 0, nil
}

func (s *Store) CancelExecution(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := s.exec(ctx,
		"UPDATE executions SET status = ?, finished_at = ? WHERE id = ? AND status IN (?, ?)",
		string(storage.ExecutionCancelled), at.UTC(), id,
		string(storage.ExecutionPending), string(storage.ExecutionRunning))
	if err != nil {
		return false, fmt.Errorf("取消执行失败: %w", err)
	}
	return n > 0, nil
}

// ListExecutions 按创建时间倒序，附带工作流名称
func (s *Store) ListExecutions(ctx context.Context, f storage.ExecutionFilter) ([]*storage.ExecutionSummary, error) {
	var (
		where []string
		args  []any
	)
	if f.WorkflowID != "" {
		where = append(where, "e.workflow_id = ?")
		args = append(args, f.WorkflowID)
	}
	if f.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, f.Status)
	}
	if f.DateFrom != nil {
		where = append(where, "e.created_at >= ?")
		args = append(args, f.DateFrom.UTC())
	}
	if f.DateTo != nil {
		where = append(where, "e.created_at <= ?")
		args = append(args, f.DateTo.UTC())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultExecutionListLimit
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(columnList("e", dao.ExecutionColumns))
	b.WriteString(", w.name AS workflow_name FROM executions e LEFT JOIN workflows w ON w.id = e.workflow_id")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY e.created_at DESC LIMIT ?")
	args = append(args, limit)

	var rows []dao.ExecutionSummaryDAO
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("查询执行列表失败: %w", err)
	}
	out := make([]*storage.ExecutionSummary, len(rows))
	for i := range rows {
		out[i] = rows[i].ToSummary()
	}
	return out, nil
}

// AppendLog 追加执行日志并回填自增ID
func (s *Store) AppendLog(ctx context.Context, l *storage.ExecutionLog) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	d := dao.FromExecutionLog(l)
	query := "INSERT INTO execution_logs (execution_id, node_id, level, message, created_at) VALUES (?, ?, ?, ?, ?)"
	args := []any{d.ExecutionID, d.NodeID, d.Level, d.Message, d.CreatedAt}

	if s.dialect.ReturningID() {
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query+" RETURNING id"), args...).Scan(&l.ID); err != nil {
			return fmt.Errorf("写入执行日志失败: %w", err)
		}
		return nil
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("写入执行日志失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取日志ID失败: %w", err)
	}
	l.ID = id
	return nil
}

func (s *Store) ListLogs(ctx context.Context, executionID string, afterID int64) ([]*storage.ExecutionLog, error) {
	var rows []dao.ExecutionLogDAO
	query := s.db.Rebind("SELECT id, execution_id, node_id, level, message, created_at FROM execution_logs WHERE execution_id = ? AND id > ? ORDER BY id")
	if err := s.db.SelectContext(ctx, &rows, query, executionID, afterID); err != nil {
		return nil, fmt.Errorf("查询执行日志失败: %w", err)
	}
	out := make([]*storage.ExecutionLog, len(rows))
	for i := range rows {
		out[i] = rows[i].ToExecutionLog()
	}
	return out, nil
}

// ---------------- Schedule ----------------

func (s *Store) SaveSchedule(ctx context.Context, sc *storage.Schedule) error {
	if sc.ID == "" {
		sc.ID = uuid.NewString()
	}
	s.stamp(&sc.CreatedAt, &sc.UpdatedAt)
	if err := s.upsert(ctx, s.db, "schedules", dao.ScheduleColumns, dao.FromSchedule(sc)); err != nil {
		return fmt.Errorf("保存定时计划失败: %w", err)
	}
	return nil
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*storage.Schedule, error) {
	var d dao.ScheduleDAO
	if err := s.get(ctx, &d, "SELECT "+columnList("", dao.ScheduleColumns)+" FROM schedules WHERE id = ?", id); err != nil {
		return nil, err
	}
	return d.ToSchedule(), nil
}

func (s *Store) ListSchedules(ctx context.Context, workflowID string) ([]*storage.Schedule, error) {
	query := "SELECT " + columnList("", dao.ScheduleColumns) + " FROM schedules"
	var args []any
	if workflowID != "" {
		query += " WHERE workflow_id = ?"
		args = append(args, workflowID)
	}
	return s.selectSchedules(ctx, query+" ORDER BY created_at", args...)
}

func (s *Store) ListActiveSchedules(ctx context.Context) ([]*storage.Schedule, error) {
	return s.selectSchedules(ctx, "SELECT "+columnList("", dao.ScheduleColumns)+" FROM schedules WHERE is_active = ? ORDER BY created_at", true)
}

func (s *Store) selectSchedules(ctx context.Context, query string, args ...any) ([]*storage.Schedule, error) {
	var rows []dao.ScheduleDAO
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询定时计划失败: %w", err)
	}
	out := make([]*storage.Schedule, len(rows))
	for i := range rows {
		out[i] = rows[i].ToSchedule()
	}
	return out, nil
}

func (s *Store) DeleteSchedule(ctx context.Context, id string) error {
	return s.deleteByID(ctx, "schedules", id)
}

func (s *Store) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, "UPDATE schedules SET last_run_at = ? WHERE id = ?", at.UTC(), id)
	return err
}

func (s *Store) SetScheduleNextRun(ctx context.Context, id string, next *time.Time) error {
	_, err := s.exec(ctx, "UPDATE schedules SET next_run_at = ? WHERE id = ?", nullable(next), id)
	return err
}

// ---------------- Orchestration ----------------

// SaveOrchestration 在一个事务内保存编排并整体替换其步骤
func (s *Store) SaveOrchestration(ctx context.Context, o *storage.Orchestration) error {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OnError == "" {
		o.OnError = storage.OnFailureStop
	}
	s.stamp(&o.CreatedAt, &o.UpdatedAt)
	for i := range o.Steps {
		st := &o.Steps[i]
		st.OrchestrationID = o.ID
		if st.ID == "" {
			st.ID = uuid.NewString()
		}
		if st.OrderIndex == 0 {
			st.OrderIndex = i
		}
		if st.OnFailure == "" {
			st.OnFailure = o.OnError
		}
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.upsert(ctx, tx, "orchestrations", dao.OrchestrationColumns, dao.FromOrchestration(o)); err != nil {
			return fmt.Errorf("保存编排失败: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM orchestration_steps WHERE orchestration_id = ?"), o.ID); err != nil {
			return fmt.Errorf("清理编排步骤失败: %w", err)
		}
		for _, st := range o.Steps {
			d := dao.FromOrchestrationStep(st)
			if err := s.insert(ctx, tx, "orchestration_steps", stepColumns, d); err != nil {
				return fmt.Errorf("保存编排步骤失败: %w", err)
			}
		}
		return nil
	})
}

var stepColumns = []string{
	"id", "orchestration_id", "workflow_id", "order_index",
	"retry_count", "retry_delay_seconds", "timeout_seconds", "on_failure",
}

func (s *Store) GetOrchestration(ctx context.Context, id string) (*storage.Orchestration, error) {
	var d dao.OrchestrationDAO
	if err := s.get(ctx, &d, "SELECT "+columnList("", dao.OrchestrationColumns)+" FROM orchestrations WHERE id = ?", id); err != nil {
		return nil, err
	}
	o := d.ToOrchestration()
	if err := s.loadSteps(ctx, []*storage.Orchestration{o}); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *Store) ListOrchestrations(ctx context.Context) ([]*storage.Orchestration, error) {
	return s.selectOrchestrations(ctx, "SELECT "+columnList("", dao.OrchestrationColumns)+" FROM orchestrations ORDER BY name")
}

func (s *Store) ListActiveOrchestrations(ctx context.Context) ([]*storage.Orchestration, error) {
	return s.selectOrchestrations(ctx, "SELECT "+columnList("", dao.OrchestrationColumns)+" FROM orchestrations WHERE is_active = ? ORDER BY name", true)
}

func (s *Store) selectOrchestrations(ctx context.Context, query string, args ...any) ([]*storage.Orchestration, error) {
	var rows []dao.OrchestrationDAO
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("查询编排失败: %w", err)
	}
	out := make([]*storage.Orchestration, len(rows))
	for i := range rows {
		out[i] = rows[i].ToOrchestration()
	}
	if err := s.loadSteps(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) loadSteps(ctx context.Context, list []*storage.Orchestration) error {
	for _, o := range list {
		var rows []dao.OrchestrationStepDAO
		query := s.db.Rebind("SELECT " + columnList("", stepColumns) + " FROM orchestration_steps WHERE orchestration_id = ? ORDER BY order_index")
		if err := s.db.SelectContext(ctx, &rows, query, o.ID); err != nil {
			return fmt.Errorf("查询编排步骤失败: %w", err)
		}
		o.Steps = make([]storage.OrchestrationStep, len(rows))
		for i := range rows {
			o.Steps[i] = rows[i].ToStep()
		}
		sort.SliceStable(o.Steps, func(i, j int) bool { return o.Steps[i].OrderIndex < o.Steps[j].OrderIndex })
	}
	return nil
}

func (s *Store) DeleteOrchestration(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM orchestration_steps WHERE orchestration_id = ?"), id); err != nil {
			return fmt.Errorf("删除编排步骤失败: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM orchestrations WHERE id = ?"), id)
		if err != nil {
			return fmt.Errorf("删除编排失败: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return storage.ErrNotFound
		}
		return nil
	})
}

func (s *Store) MarkOrchestrationRun(ctx context.Context, id string, at time.Time) error {
	_, err := s.exec(ctx, "UPDATE orchestrations SET last_run_at = ? WHERE id = ?", at.UTC(), id)
	return err
}

func (s *Store) SetOrchestrationNextRun(ctx context.Context, id string, next *time.Time) error {
	_, err := s.exec(ctx, "UPDATE orchestrations SET next_run_at = ? WHERE id = ?", nullable(next), id)
	return err
}

func nullable(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

var _ storage.Store = (*Store)(nil)
