// Package memstore 内存存储，用于测试与dry-run，不落盘
package memstore

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// Store storage.Store的内存实现（对外导出）
// 所有读写返回副本，调用方修改返回值不影响存储
type Store struct {
	mu             sync.RWMutex
	workflows      map[string]storage.Workflow
	connections    map[string]storage.Connection
	executions     map[string]storage.Execution
	logs           []storage.ExecutionLog
	schedules      map[string]storage.Schedule
	orchestrations map[string]storage.Orchestration
	nextLogID      int64
	failAppendLog  bool
}

// New 创建内存存储
func New() *Store {
	return &Store{
		workflows:      make(map[string]storage.Workflow),
		connections:    make(map[string]storage.Connection),
		executions:     make(map[string]storage.Execution),
		schedules:      make(map[string]storage.Schedule),
		orchestrations: make(map[string]storage.Orchestration),
	}
}

// SetFailAppendLog 模拟日志写入故障
func (m *Store) SetFailAppendLog(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAppendLog = fail
}

func (m *Store) Close() error { return nil }

func stamp(created, updated *time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

// ---------------- Workflow ----------------

func (m *Store) SaveWorkflow(ctx context.Context, wf *storage.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if wf.ID == "" {
		wf.ID = uuid.NewString()
	}
	if wf.Version <= 0 {
		wf.Version = 1
	}
	stamp(&wf.CreatedAt, &wf.UpdatedAt)
	m.workflows[wf.ID] = *wf
	return nil
}

func (m *Store) GetWorkflow(ctx context.Context, id string) (*storage.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &wf, nil
}

func (m *Store) ListWorkflows(ctx context.Context) ([]*storage.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*storage.Workflow, 0, len(m.workflows))
	for _, wf := range m.workflows {
		wf := wf
		out = append(out, &wf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (m *Store) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.workflows, id)
	removed := make(map[string]bool)
	for eid, e := range m.executions {
		if e.WorkflowID == id {
			removed[eid] = true
			delete(m.executions, eid)
		}
	}
	kept := m.logs[:0]
	for _, l := range m.logs {
		if !removed[l.ExecutionID] {
			kept = append(kept, l)
		}
	}
	m.logs = kept
	for sid, s := range m.schedules {
		if s.WorkflowID == id {
			delete(m.schedules, sid)
		}
	}
	for oid, o := range m.orchestrations {
		steps := o.Steps[:0:0]
		for _, st := range o.Steps {
			if st.WorkflowID != id {
				steps = append(steps, st)
			}
		}
		o.Steps = steps
		m.orchestrations[oid] = o
	}
	return nil
}

// ---------------- Connection ----------------

func (m *Store) SaveConnection(ctx context.Context, c *storage.Connection) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	stamp(&c.CreatedAt, &c.UpdatedAt)
	m.connections[c.ID] = *c
	return nil
}

func (m *Store) GetConnection(ctx context.Context, id string) (*storage.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.connections[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &c, nil
}

func (m *Store) ListConnections(ctx context.Context) ([]*storage.Connection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*storage.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		c := c
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Store) DeleteConnection(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.connections[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.connections, id)
	return nil
}

// ---------------- Execution ----------------

func (m *Store) CreateExecution(ctx context.Context, e *storage.Execution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if _, exists := m.executions[e.ID]; exists {
		return errors.New("执行记录已存在: " + e.ID)
	}
	if e.Status == "" {
		e.Status = storage.ExecutionPending
	}
	stamp(&e.CreatedAt, nil)
	m.executions[e.ID] = *e
	return nil
}

func (m *Store) GetExecution(ctx context.Context, id string) (*storage.Execution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.executions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &e, nil
}

func (m *Store) StartExecution(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok || e.Status != storage.ExecutionPending {
		return false, nil
	}
	e.Status = storage.ExecutionRunning
	if e.StartedAt == nil {
		t := at.UTC()
		e.StartedAt = &t
	}
	m.executions[id] = e
	return true, nil
}

func (m *Store) FinishExecution(ctx context.Context, exec *storage.Execution) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[exec.ID]
	if !ok || e.Status.IsTerminal() {
		return false, nil
	}
	e.Status = exec.Status
	e.ErrorMessage = exec.ErrorMessage
	e.RowsProcessed = exec.RowsProcessed
	e.RowsFailed = exec.RowsFailed
	if e.StartedAt == nil {
		e.StartedAt = exec.StartedAt
	}
	e.FinishedAt = exec.FinishedAt
	m.executions[exec.ID] = e
	return true, nil
}

func (m *Store) CancelExecution(ctx context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.executions[id]
	if !ok || !e.Status.CanCancel() {
		return false, nil
	}
	t := at.UTC()
	e.Status = storage.ExecutionCancelled
	e.FinishedAt = &t
	m.executions[id] = e
	return true, nil
}

func (m *Store) ListExecutions(ctx context.Context, f storage.ExecutionFilter) ([]*storage.ExecutionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*storage.ExecutionSummary
	for _, e := range m.executions {
		if f.WorkflowID != "" && e.WorkflowID != f.WorkflowID {
			continue
		}
		if f.Status != "" && string(e.Status) != f.Status {
			continue
		}
		if f.DateFrom != nil && e.CreatedAt.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && e.CreatedAt.After(*f.DateTo) {
			continue
		}
		out = append(out, &storage.ExecutionSummary{Execution: e, WorkflowName: m.workflows[e.WorkflowID].Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	limit := f.Limit
	if limit <= 0 {
		limit = storage.DefaultExecutionListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Store) AppendLog(ctx context.Context, l *storage.ExecutionLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAppendLog {
		return errors.New("模拟存储故障：日志写入失败")
	}
	m.nextLogID++
	l.ID = m.nextLogID
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	m.logs = append(m.logs, *l)
	return nil
}

func (m *Store) ListLogs(ctx context.Context, executionID string, afterID int64) ([]*storage.ExecutionLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*storage.ExecutionLog
	for _, l := range m.logs {
		if l.ExecutionID == executionID && l.ID > afterID {
			l := l
			out = append(out, &l)
		}
	}
	return out, nil
}

// ---------------- Schedule ----------------

func (m *Store) SaveSchedule(ctx context.Context, s *storage.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	stamp(&s.CreatedAt, &s.UpdatedAt)
	m.schedules[s.ID] = *s
	return nil
}

func (m *Store) GetSchedule(ctx context.Context, id string) (*storage.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.schedules[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &s, nil
}

func (m *Store) ListSchedules(ctx context.Context, workflowID string) ([]*storage.Schedule, error) {
	return m.filterSchedules(func(s storage.Schedule) bool {
		return workflowID == "" || s.WorkflowID == workflowID
	}), nil
}

func (m *Store) ListActiveSchedules(ctx context.Context) ([]*storage.Schedule, error) {
	return m.filterSchedules(func(s storage.Schedule) bool { return s.IsActive }), nil
}

func (m *Store) filterSchedules(keep func(storage.Schedule) bool) []*storage.Schedule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*storage.Schedule
	for _, s := range m.schedules {
		if keep(s) {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Store) DeleteSchedule(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schedules[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.schedules, id)
	return nil
}

func (m *Store) MarkScheduleRun(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedules[id]; ok {
		t := at.UTC()
		s.LastRunAt = &t
		m.schedules[id] = s
	}
	return nil
}

func (m *Store) SetScheduleNextRun(ctx context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.schedules[id]; ok {
		s.NextRunAt = copyTime(next)
		m.schedules[id] = s
	}
	return nil
}

// ---------------- Orchestration ----------------

func (m *Store) SaveOrchestration(ctx context.Context, o *storage.Orchestration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.OnError == "" {
		o.OnError = storage.OnFailureStop
	}
	stamp(&o.CreatedAt, &o.UpdatedAt)
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
	saved := *o
	saved.Steps = append([]storage.OrchestrationStep(nil), o.Steps...)
	m.orchestrations[o.ID] = saved
	return nil
}

func (m *Store) GetOrchestration(ctx context.Context, id string) (*storage.Orchestration, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orchestrations[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneOrchestration(o), nil
}

func (m *Store) ListOrchestrations(ctx context.Context) ([]*storage.Orchestration, error) {
	return m.filterOrchestrations(func(storage.Orchestration) bool { return true }), nil
}

func (m *Store) ListActiveOrchestrations(ctx context.Context) ([]*storage.Orchestration, error) {
	return m.filterOrchestrations(func(o storage.Orchestration) bool { return o.IsActive }), nil
}

func (m *Store) filterOrchestrations(keep func(storage.Orchestration) bool) []*storage.Orchestration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*storage.Orchestration
	for _, o := range m.orchestrations {
		if keep(o) {
			out = append(out, cloneOrchestration(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (m *Store) DeleteOrchestration(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orchestrations[id]; !ok {
		return storage.ErrNotFound
	}
	delete(m.orchestrations, id)
	return nil
}

func (m *Store) MarkOrchestrationRun(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orchestrations[id]; ok {
		t := at.UTC()
		o.LastRunAt = &t
		m.orchestrations[id] = o
	}
	return nil
}

func (m *Store) SetOrchestrationNextRun(ctx context.Context, id string, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orchestrations[id]; ok {
		o.NextRunAt = copyTime(next)
		m.orchestrations[id] = o
	}
	return nil
}

func cloneOrchestration(o storage.Orchestration) *storage.Orchestration {
	o.Steps = append([]storage.OrchestrationStep(nil), o.Steps...)
	sort.SliceStable(o.Steps, func(i, j int) bool { return o.Steps[i].OrderIndex < o.Steps[j].OrderIndex })
	return &o
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

var _ storage.Store = (*Store)(nil)
