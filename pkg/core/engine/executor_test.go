package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/realtime"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

func TestExecutor_FilterPipeline(t *testing.T) {
	h := newHarness(t)
	def := definition(t, []map[string]any{
		gn("d", "destination", map[string]any{"connection_id": "dst", "table": "adults"}),
		gn("f", "filter", map[string]any{"condition": "age >= 30"}),
		gn("s", "source", map[string]any{"connection_id": "src", "table": "people", "chunk_size": 2}),
	}, [2]string{"s", "f"}, [2]string{"f", "d"})
	wf := h.workflow(t, def)

	exec, err := h.exec.Run(context.Background(), wf.ID, "")
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, storage.TriggerManual, exec.TriggerType)
	assert.EqualValues(t, 3, exec.RowsProcessed)
	assert.Zero(t, exec.RowsFailed)
	assert.NotNil(t, exec.StartedAt)
	assert.NotNil(t, exec.FinishedAt)

	rows := h.dst.table("main.adults")
	require.Len(t, rows, 3, "默认模式为main")
	assert.Equal(t, "p3", rows[0].Value("name").String())
	assert.Equal(t, []connector.WriteMode{connector.WriteAppend, connector.WriteAppend}, h.dst.modes, "过滤后为空的块不写入")

	msgs := h.messages(t, exec.ID)
	assert.Equal(t, "Workflow started: 测试工作流", msgs[0])
	assert.Equal(t, "Execution order: 3 nodes", msgs[1])
	assert.Contains(t, msgs, "Node running: [source] (source)")
	assert.Contains(t, msgs, "Read complete (3 chunks)")
	assert.Contains(t, msgs, "Writing destination: main.adults (mode: append, on_error: rollback, batch: 500)")
	assert.Equal(t, "Workflow completed. 3 rows transferred.", msgs[len(msgs)-1])

	stored, err := h.store.GetExecution(context.Background(), exec.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, stored.Status)
	assert.EqualValues(t, 3, stored.RowsProcessed)
}

func TestExecutor_OverwriteThenAppend(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, copyPipeline(t, nil, map[string]any{"write_mode": "overwrite", "batch_size": "2"}))

	for i := 0; i < 2; i++ {
		exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
		require.NoError(t, err)
		require.Equal(t, storage.ExecutionSuccess, exec.Status, exec.ErrorMessage)
		assert.EqualValues(t, 5, exec.RowsProcessed)
	}
	assert.Len(t, h.dst.table("main.people_copy"), 5, "每次运行的首块清空目标表")
	assert.Equal(t, []connector.WriteMode{
		connector.WriteOverwrite, connector.WriteAppend, connector.WriteAppend,
		connector.WriteOverwrite, connector.WriteAppend, connector.WriteAppend,
	}, h.dst.modes)
}

func TestExecutor_RollbackStopsOnChunkFailure(t *testing.T) {
	h := newHarness(t)
	h.dst.failWrites[2] = true
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err, "执行失败不作为error返回")
	assert.Equal(t, storage.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "写入第2块失败")
	assert.Zero(t, exec.RowsProcessed, "失败的执行不记录行数")
	assert.Len(t, h.dst.table("main.people_copy"), 2, "已提交的块不回滚")
	assert.Equal(t, 2, h.dst.writeCalls, "第2块失败后不再写入")

	msgs := h.messages(t, exec.ID)
	assert.Contains(t, msgs, "Chunk 2 write error (2 rows): 写入第2块失败")
	assert.Equal(t, "Error: 写入第2块失败", msgs[len(msgs)-1])
}

func TestExecutor_ContinueSkipsFailedChunk(t *testing.T) {
	h := newHarness(t)
	h.dst.failWrites[2] = true
	wf := h.workflow(t, copyPipeline(t, nil, map[string]any{"on_error": "continue"}))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status)
	assert.EqualValues(t, 3, exec.RowsProcessed)
	assert.EqualValues(t, 2, exec.RowsFailed)
	assert.Contains(t, h.messages(t, exec.ID), "Chunk 3: 1 rows written (total: 3)")
}

func TestExecutor_OverwriteFirstChunkFailureAborts(t *testing.T) {
	h := newHarness(t)
	h.dst.failWrites[1] = true
	wf := h.workflow(t, copyPipeline(t, nil, map[string]any{"write_mode": "overwrite", "on_error": "continue"}))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status, "overwrite首块失败无视continue策略")
	assert.Equal(t, 1, h.dst.writeCalls)
}

func TestExecutor_AllChunksFailedWithContinue(t *testing.T) {
	h := newHarness(t)
	h.dst.failWrites = map[int]bool{1: true, 2: true, 3: true}
	wf := h.workflow(t, copyPipeline(t, nil, map[string]any{"on_error": "continue"}))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status, "一行都没写入时报告最后一个错误")
	assert.Contains(t, exec.ErrorMessage, "写入第3块失败")
}

func TestExecutor_DisabledAndUnknownNodes(t *testing.T) {
	h := newHarness(t)
	def := definition(t, []map[string]any{
		gn("s", "source", map[string]any{"connection_id": "src", "table": "people"}),
		disabled(gn("t", "transform", nil)),
		gn("w", "webhook", nil),
		gn("d", "destination", map[string]any{"connection_id": "dst", "table": "people_copy"}),
	}, [2]string{"s", "t"}, [2]string{"t", "d"}, [2]string{"d", "w"})
	wf := h.workflow(t, def)

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status, exec.ErrorMessage)
	assert.Zero(t, exec.RowsProcessed, "禁用节点切断了数据流")
	assert.Zero(t, h.dst.writeCalls)

	msgs := h.messages(t, exec.ID)
	assert.Contains(t, msgs, "Node skipped (disabled): transform (t)")
	assert.Contains(t, msgs, "Unknown node type skipped: webhook")
}

func TestExecutor_MalformedFilterPassesAll(t *testing.T) {
	h := newHarness(t)
	def := definition(t, []map[string]any{
		gn("s", "source", map[string]any{"connection_id": "src", "table": "people"}),
		gn("f", "filter", map[string]any{"condition": "age>=30"}),
		gn("d", "destination", map[string]any{"connection_id": "dst", "table": "people_copy"}),
	}, [2]string{"s", "f"}, [2]string{"f", "d"})
	wf := h.workflow(t, def)

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.EqualValues(t, 5, exec.RowsProcessed)

	var warned bool
	for _, m := range h.messages(t, exec.ID) {
		warned = warned || strings.HasPrefix(m, "Filter condition ignored: ")
	}
	assert.True(t, warned, "无效条件应记录警告")
}

func TestExecutor_SQLExecute(t *testing.T) {
	h := newHarness(t)
	h.dst.affected = 7
	def := definition(t, []map[string]any{
		gn("q", "sqlExecute", map[string]any{"connection_id": "dst", "sql": "DELETE FROM staging\nWHERE 1=1"}),
	})
	wf := h.workflow(t, def)

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status, exec.ErrorMessage)
	assert.Equal(t, []string{"DELETE FROM staging\nWHERE 1=1"}, h.dst.executed)

	msgs := h.messages(t, exec.ID)
	assert.Contains(t, msgs, "Executing SQL: DELETE FROM staging WHERE 1=1")
	assert.Contains(t, msgs, "SQL completed. Affected rows: 7")
}

func TestExecutor_SQLGuardBlocksDangerousStatement(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, definition(t, []map[string]any{
		gn("q", "sqlExecute", map[string]any{"connection_id": "dst", "sql": "EXEC xp_cmdshell 'dir'"}),
	}))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "xp_cmdshell")
	assert.Empty(t, h.dst.executed)
}

func TestExecutor_ReadErrorFailsExecution(t *testing.T) {
	h := newHarness(t)
	h.src.readErr = errBoom
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status)
	assert.Equal(t, "boom", exec.ErrorMessage)
	assert.Contains(t, h.messages(t, exec.ID), "Write stream error: boom")
}

func TestExecutor_InvalidDefinitionRejectedBeforeExecution(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	wf := h.workflow(t, `{"nodes": [{"id": "a", "type": "source"}], "edges": []}`)

	exec, err := h.exec.Run(ctx, wf.ID, storage.TriggerManual)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition)
	assert.ErrorContains(t, err, "position")
	assert.Nil(t, exec)

	_, err = h.exec.Submit(ctx, wf.ID, storage.TriggerManual)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition, "异步执行同样先校验")

	empty := h.workflow(t, `{"nodes": [], "edges": []}`)
	_, err = h.exec.Run(ctx, empty.ID, storage.TriggerManual)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition, "没有节点的工作流不能执行")

	cyclic := h.workflow(t, definition(t, []map[string]any{
		gn("a", "transform", nil),
		gn("b", "transform", nil),
	}, [2]string{"a", "b"}, [2]string{"b", "a"}))
	_, err = h.exec.Run(ctx, cyclic.ID, storage.TriggerManual)
	assert.ErrorIs(t, err, workflow.ErrInvalidDefinition, "成环")

	execs, err := h.store.ListExecutions(ctx, storage.ExecutionFilter{})
	require.NoError(t, err)
	assert.Empty(t, execs, "校验失败不创建执行记录")
}

func TestExecutor_UnknownConnection(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, copyPipeline(t, map[string]any{"connection_id": "missing"}, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "missing")
}

func TestExecutor_WorkflowNotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.exec.Run(context.Background(), "nope", storage.TriggerManual)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)

	_, err = h.exec.Submit(context.Background(), "nope", storage.TriggerManual)
	assert.ErrorIs(t, err, ErrWorkflowNotFound)
}

func TestExecutor_PanicIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.src.panicRead = true
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionFailed, exec.Status)
	assert.Contains(t, exec.ErrorMessage, "panic")
	assert.False(t, h.exec.IsRunning(exec.ID))
}

func TestExecutor_LogWriteFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.store.SetFailAppendLog(true)
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status)
	assert.EqualValues(t, 5, exec.RowsProcessed)
}

func TestExecutor_CancelPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.store.CreateExecution(ctx, &storage.Execution{
		ID: "p1", WorkflowID: "wf", Status: storage.ExecutionPending, TriggerType: storage.TriggerManual, CreatedAt: time.Now(),
	}))

	require.NoError(t, h.exec.Cancel(ctx, "p1"))
	stored, err := h.store.GetExecution(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCancelled, stored.Status)
	assert.NotNil(t, stored.FinishedAt)

	err = h.exec.Cancel(ctx, "p1")
	assert.ErrorIs(t, err, ErrNotCancellable, "终态不可再次取消")

	assert.ErrorIs(t, h.exec.Cancel(ctx, "ghost"), storage.ErrNotFound)
}

func TestExecutor_CancelRunningStopsAtChunkBoundary(t *testing.T) {
	h := newHarness(t, WithIDGenerator(func() string { return "exec-1" }))
	h.dst.onWrite = func(call int) {
		if call == 1 {
			assert.NoError(t, h.exec.Cancel(context.Background(), "exec-1"))
		}
	}
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCancelled, exec.Status)
	assert.Equal(t, 1, h.dst.writeCalls, "取消在下一个块之前生效")
	assert.Len(t, h.dst.table("main.people_copy"), 2)

	msgs := h.messages(t, exec.ID)
	assert.Equal(t, "Execution cancelled", msgs[len(msgs)-1])

	stored, err := h.store.GetExecution(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionCancelled, stored.Status, "取消状态不被覆盖")
}

func TestExecutor_SubmitRunsInBackground(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	snap, err := h.exec.Submit(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionPending, snap.Status)
	assert.NotNil(t, snap.StartedAt, "异步提交时即记录开始时间")

	h.exec.Wait()
	stored, err := h.store.GetExecution(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, stored.Status)
	assert.EqualValues(t, 5, stored.RowsProcessed)
}

func TestExecutor_SubmitSurvivesCallerCancel(t *testing.T) {
	h := newHarness(t)
	wf := h.workflow(t, copyPipeline(t, nil, nil))
	ctx, cancel := context.WithCancel(context.Background())

	snap, err := h.exec.Submit(ctx, wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	cancel()
	h.exec.Wait()

	stored, err := h.store.GetExecution(context.Background(), snap.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, stored.Status, "请求结束不影响后台执行")
}

func TestExecutor_PublishesToBus(t *testing.T) {
	bus := realtime.NewLogBus()
	defer bus.Close()
	h := newHarness(t, WithLogBus(bus), WithIDGenerator(func() string { return "exec-bus" }))
	wf := h.workflow(t, copyPipeline(t, nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := bus.Subscribe(ctx, "exec-bus")
	require.NoError(t, err)

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)

	var logs int
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			require.NotNil(t, ev)
			if ev.Type == realtime.EventLogAppended {
				logs++
				continue
			}
			assert.Equal(t, realtime.EventExecutionFinished, ev.Type)
			assert.Equal(t, storage.ExecutionSuccess, ev.Status)
			assert.EqualValues(t, 5, ev.RowsProcessed)
			assert.Len(t, h.messages(t, exec.ID), logs, "每条日志都发布一次")
			return
		case <-timeout:
			t.Fatal("等待结束事件超时")
		}
	}
}
