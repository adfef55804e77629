// Package storetest storage.Store实现共用的契约测试
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// Run 对newStore创建的每个新存储执行全部契约用例
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("Workflow", func(t *testing.T) { testWorkflow(t, newStore(t)) })
	t.Run("ExecutionLifecycle", func(t *testing.T) { testExecutionLifecycle(t, newStore(t)) })
	t.Run("ListExecutions", func(t *testing.T) { testListExecutions(t, newStore(t)) })
	t.Run("Logs", func(t *testing.T) { testLogs(t, newStore(t)) })
	t.Run("Schedule", func(t *testing.T) { testSchedule(t, newStore(t)) })
	t.Run("Orchestration", func(t *testing.T) { testOrchestration(t, newStore(t)) })
	t.Run("DeleteWorkflowCascade", func(t *testing.T) { testDeleteCascade(t, newStore(t)) })
}

func testWorkflow(t *testing.T, s storage.Store) {
	ctx := context.Background()
	wf := &storage.Workflow{Name: "每日同步", Definition: `{"nodes":[],"edges":[]}`, IsActive: true, NotificationOnFailure: true}
	require.NoError(t, s.SaveWorkflow(ctx, wf))
	require.NotEmpty(t, wf.ID, "保存后应生成ID")
	assert.Equal(t, 1, wf.Version)

	got, err := s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "每日同步", got.Name)
	assert.True(t, got.NotificationOnFailure)
	assert.False(t, got.NotificationOnSuccess)
	assert.Empty(t, got.Description)

	wf.Description = "更新描述"
	wf.Version = 2
	require.NoError(t, s.SaveWorkflow(ctx, wf), "重复保存应更新")
	got, err = s.GetWorkflow(ctx, wf.ID)
	require.NoError(t, err)
	assert.Equal(t, "更新描述", got.Description)
	assert.Equal(t, 2, got.Version)

	list, err := s.ListWorkflows(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = s.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorkflow(ctx, "missing"), storage.ErrNotFound)
}

func testExecutionLifecycle(t *testing.T, s storage.Store) {
	ctx := context.Background()
	now := time.Now().UTC()
	exec := &storage.Execution{WorkflowID: "wf-1", TriggerType: storage.TriggerManual}
	require.NoError(t, s.CreateExecution(ctx, exec))
	assert.Equal(t, storage.ExecutionPending, exec.Status)

	ok, err := s.StartExecution(ctx, exec.ID, now)
	require.NoError(t, err)
	assert.True(t, ok, "pending应能进入running")
	ok, err = s.StartExecution(ctx, exec.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "running不能再次启动")

	finished := now.Add(time.Second)
	exec.Status = storage.ExecutionSuccess
	exec.RowsProcessed = 42
	exec.RowsFailed = 3
	exec.FinishedAt = &finished
	ok, err = s.FinishExecution(ctx, exec)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := s.GetExecution(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, got.Status)
	assert.Equal(t, int64(42), got.RowsProcessed)
	assert.Equal(t, int64(3), got.RowsFailed)
	require.NotNil(t, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	assert.WithinDuration(t, finished, *got.FinishedAt, time.Millisecond)

	ok, err = s.CancelExecution(ctx, exec.ID, now)
	require.NoError(t, err)
	assert.False(t, ok, "终态不可取消")

	exec.Status = storage.ExecutionFailed
	ok, err = s.FinishExecution(ctx, exec)
	require.NoError(t, err)
	assert.False(t, ok, "终态不可被覆盖")

	pending := &storage.Execution{WorkflowID: "wf-1", TriggerType: storage.TriggerScheduled}
	require.NoError(t, s.CreateExecution(ctx, pending))
	ok, err = s.CancelExecution(ctx, pending.ID, now)
	require.NoError(t, err)
	assert.True(t, ok, "pending可取消")

	pending.Status = storage.ExecutionSuccess
	ok, err = s.FinishExecution(ctx, pending)
	require.NoError(t, err)
	assert.False(t, ok, "已取消的执行不会被完成覆盖")
	got, err = s.GetExecution(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCancelled, got.Status)

	_, err = s.GetExecution(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testListExecutions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	wf := &storage.Workflow{Name: "订单同步", Definition: "{}"}
	require.NoError(t, s.SaveWorkflow(ctx, wf))

	base := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	for i, status := range []storage.ExecutionStatus{storage.ExecutionSuccess, storage.ExecutionFailed, storage.ExecutionSuccess} {
		e := &storage.Execution{
			WorkflowID:  wf.ID,
			Status:      status,
			TriggerType: storage.TriggerManual,
			CreatedAt:   base.Add(time.Duration(i) * 24 * time.Hour),
		}
		require.NoError(t, s.CreateExecution(ctx, e))
	}
	orphan := &storage.Execution{WorkflowID: "deleted", Status: storage.ExecutionSuccess, TriggerType: storage.TriggerManual, CreatedAt: base.Add(-time.Hour)}
	require.NoError(t, s.CreateExecution(ctx, orphan))

	all, err := s.ListExecutions(ctx, storage.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.True(t, all[0].CreatedAt.After(all[1].CreatedAt), "按创建时间倒序")
	assert.Equal(t, "订单同步", all[0].WorkflowName)
	assert.Empty(t, all[3].WorkflowName, "工作流不存在时名称为空")

	byStatus, err := s.ListExecutions(ctx, storage.ExecutionFilter{WorkflowID: wf.ID, Status: "success"})
	require.NoError(t, err)
	assert.Len(t, byStatus, 2)

	f := storage.ParseExecutionFilter(wf.ID, "", "2024-01-16", "2024-01-16", 0, time.UTC)
	oneDay, err := s.ListExecutions(ctx, f)
	require.NoError(t, err)
	require.Len(t, oneDay, 1, "date_to包含当天")
	assert.Equal(t, storage.ExecutionFailed, oneDay[0].Status)

	limited, err := s.ListExecutions(ctx, storage.ExecutionFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func testLogs(t *testing.T, s storage.Store) {
	ctx := context.Background()
	var ids []int64
	for i, msg := range []string{"Workflow started: x", "Node running: [读取] (source)", "Chunk 1: 10 rows read"} {
		l := &storage.ExecutionLog{ExecutionID: "e-1", Level: storage.LevelInfo, Message: msg}
		if i > 0 {
			l.NodeID = "src"
		}
		require.NoError(t, s.AppendLog(ctx, l))
		ids = append(ids, l.ID)
	}
	require.NoError(t, s.AppendLog(ctx, &storage.ExecutionLog{ExecutionID: "e-2", Level: storage.LevelError, Message: "other"}))
	assert.Less(t, ids[0], ids[1], "日志ID递增")
	assert.Less(t, ids[1], ids[2])

	logs, err := s.ListLogs(ctx, "e-1", 0)
	require.NoError(t, err)
	require.Len(t, logs, 3)
	assert.Equal(t, "Workflow started: x", logs[0].Message)
	assert.Empty(t, logs[0].NodeID)
	assert.Equal(t, "src", logs[2].NodeID)

	tail, err := s.ListLogs(ctx, "e-1", ids[1])
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, ids[2], tail[0].ID)
}

func testSchedule(t *testing.T, s storage.Store) {
	ctx := context.Background()
	active := &storage.Schedule{WorkflowID: "wf-1", Name: "每小时", CronExpression: "0 * * * *", IsActive: true}
	inactive := &storage.Schedule{WorkflowID: "wf-2", Name: "停用", CronExpression: "0 0 * * *"}
	require.NoError(t, s.SaveSchedule(ctx, active))
	require.NoError(t, s.SaveSchedule(ctx, inactive))

	list, err := s.ListActiveSchedules(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	byWorkflow, err := s.ListSchedules(ctx, "wf-2")
	require.NoError(t, err)
	require.Len(t, byWorkflow, 1)
	assert.Equal(t, "停用", byWorkflow[0].Name)

	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	next := at.Add(time.Hour)
	require.NoError(t, s.MarkScheduleRun(ctx, active.ID, at))
	require.NoError(t, s.SetScheduleNextRun(ctx, active.ID, &next))
	got, err := s.GetSchedule(ctx, active.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.LastRunAt.Equal(at))
	assert.True(t, got.NextRunAt.Equal(next))

	require.NoError(t, s.SetScheduleNextRun(ctx, active.ID, nil))
	got, err = s.GetSchedule(ctx, active.ID)
	require.NoError(t, err)
	assert.Nil(t, got.NextRunAt, "nil应清空next_run_at")

	require.NoError(t, s.DeleteSchedule(ctx, inactive.ID))
	assert.ErrorIs(t, s.DeleteSchedule(ctx, inactive.ID), storage.ErrNotFound)
}

func testOrchestration(t *testing.T, s storage.Store) {
	ctx := context.Background()
	o := &storage.Orchestration{
		Name:           "夜间批处理",
		CronExpression: "0 2 * * *",
		IsActive:       true,
		Steps: []storage.OrchestrationStep{
			{WorkflowID: "wf-b", OrderIndex: 2, RetryCount: 1, OnFailure: storage.OnFailureContinue},
			{WorkflowID: "wf-a", OrderIndex: 1, TimeoutSeconds: 60},
		},
	}
	require.NoError(t, s.SaveOrchestration(ctx, o))
	assert.Equal(t, storage.OnFailureStop, o.OnError, "on_error默认stop")

	got, err := s.GetOrchestration(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, "wf-a", got.Steps[0].WorkflowID, "步骤按order_index升序")
	assert.Equal(t, storage.OnFailureStop, got.Steps[0].OnFailure, "步骤缺省继承on_error")
	assert.Equal(t, 60, got.Steps[0].TimeoutSeconds)
	assert.Equal(t, storage.OnFailureContinue, got.Steps[1].OnFailure)
	assert.Equal(t, o.ID, got.Steps[1].OrchestrationID)

	o.Steps = []storage.OrchestrationStep{{WorkflowID: "wf-c", OrderIndex: 1}}
	require.NoError(t, s.SaveOrchestration(ctx, o))
	got, err = s.GetOrchestration(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Steps, 1, "保存时步骤整体替换")
	assert.Equal(t, "wf-c", got.Steps[0].WorkflowID)

	idle := &storage.Orchestration{Name: "手动", CronExpression: "0 0 1 * *"}
	require.NoError(t, s.SaveOrchestration(ctx, idle))
	active, err := s.ListActiveOrchestrations(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, o.ID, active[0].ID)
	assert.Len(t, active[0].Steps, 1)

	at := time.Date(2024, 3, 1, 2, 0, 0, 0, time.UTC)
	require.NoError(t, s.MarkOrchestrationRun(ctx, o.ID, at))
	require.NoError(t, s.SetOrchestrationNextRun(ctx, o.ID, &at))
	got, err = s.GetOrchestration(ctx, o.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	assert.True(t, got.LastRunAt.Equal(at))

	require.NoError(t, s.DeleteOrchestration(ctx, o.ID))
	_, err = s.GetOrchestration(ctx, o.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testDeleteCascade(t *testing.T, s storage.Store) {
	ctx := context.Background()
	wf := &storage.Workflow{Name: "待删除", Definition: "{}"}
	require.NoError(t, s.SaveWorkflow(ctx, wf))
	e := &storage.Execution{WorkflowID: wf.ID, TriggerType: storage.TriggerManual}
	require.NoError(t, s.CreateExecution(ctx, e))
	require.NoError(t, s.AppendLog(ctx, &storage.ExecutionLog{ExecutionID: e.ID, Level: storage.LevelInfo, Message: "x"}))
	require.NoError(t, s.SaveSchedule(ctx, &storage.Schedule{WorkflowID: wf.ID, Name: "s", CronExpression: "* * * * *", IsActive: true}))

	require.NoError(t, s.DeleteWorkflow(ctx, wf.ID))

	_, err := s.GetExecution(ctx, e.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound, "执行记录应级联删除")
	logs, err := s.ListLogs(ctx, e.ID, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)
	schedules, err := s.ListSchedules(ctx, wf.ID)
	require.NoError(t, err)
	assert.Empty(t, schedules)
}
