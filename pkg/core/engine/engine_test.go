package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/plugin"
	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/memstore"
)

// capturePlugin 记录收到的插件数据
type capturePlugin struct {
	mu   sync.Mutex
	seen []plugin.PluginData
}

func (p *capturePlugin) Name() string                 { return "capture" }
func (p *capturePlugin) Init(map[string]string) error { return nil }

func (p *capturePlugin) Execute(data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seen = append(p.seen, data.(plugin.PluginData))
	return nil
}

func (p *capturePlugin) events() []plugin.TriggerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]plugin.TriggerEvent, len(p.seen))
	for i, d := range p.seen {
		out[i] = d.Event
	}
	return out
}

func newCapture(t *testing.T, events ...plugin.TriggerEvent) (plugin.PluginManager, *capturePlugin) {
	t.Helper()
	pm := plugin.NewPluginManager()
	p := &capturePlugin{}
	require.NoError(t, pm.Register(p))
	for _, ev := range events {
		require.NoError(t, pm.Bind(plugin.PluginBinding{PluginName: p.Name(), Event: ev}))
	}
	return pm, p
}

type engineFixture struct {
	store *memstore.Store
	src   *fakeConnector
	dst   *fakeConnector
	eng   *Engine
	wf    *storage.Workflow
}

func newEngineFixture(t *testing.T, opts Options) *engineFixture {
	t.Helper()
	f := &engineFixture{store: memstore.New(), src: newFakeConnector(peopleRows(3)...), dst: newFakeConnector()}
	opts.Resolver = fakeResolver{"src": f.src, "dst": f.dst}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	f.eng = New(f.store, opts)
	t.Cleanup(f.eng.Stop)

	f.wf = &storage.Workflow{ID: "wf1", Name: "复制", Definition: copyPipeline(t, nil, nil), IsActive: true}
	require.NoError(t, f.store.SaveWorkflow(context.Background(), f.wf))
	return f
}

func TestEngine_StartLoadsActiveJobs(t *testing.T) {
	f := newEngineFixture(t, Options{SchedulerEnabled: true})
	ctx := context.Background()
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s1", WorkflowID: "wf1", CronExpression: "0 9 * * *", IsActive: true}))
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s2", WorkflowID: "wf1", CronExpression: "0 10 * * *"}))
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s3", WorkflowID: "wf1", CronExpression: "bad", IsActive: true}))
	require.NoError(t, f.store.SaveOrchestration(ctx, &storage.Orchestration{ID: "o1", CronExpression: "0 2 * * *", IsActive: true}))
	require.NoError(t, f.store.SaveOrchestration(ctx, &storage.Orchestration{ID: "o2", IsActive: true}))

	require.NoError(t, f.eng.Start(ctx))
	require.NoError(t, f.eng.Start(ctx), "重复启动无副作用")

	jobs := f.eng.ListJobs()
	require.Len(t, jobs, 2, "停用、无效与无表达式的条目不注册")
	assert.Equal(t, "orch_o1", jobs[0].ID)
	assert.Equal(t, "s1", jobs[1].ID)

	s1, err := f.store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, s1.NextRunAt)
	assert.Equal(t, 9, s1.NextRunAt.UTC().Hour())

	o1, err := f.store.GetOrchestration(ctx, "o1")
	require.NoError(t, err)
	assert.NotNil(t, o1.NextRunAt)
}

func TestEngine_StartWithoutScheduler(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s1", WorkflowID: "wf1", CronExpression: "0 9 * * *", IsActive: true}))
	require.NoError(t, f.eng.Start(ctx))
	assert.Empty(t, f.eng.ListJobs())
}

func TestEngine_ScheduleActivation(t *testing.T) {
	f := newEngineFixture(t, Options{SchedulerEnabled: true})
	ctx := context.Background()
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s1", WorkflowID: "wf1", CronExpression: "*/5 * * * *"}))

	s, err := f.eng.SetScheduleActive(ctx, "s1", true)
	require.NoError(t, err)
	assert.True(t, s.IsActive)
	assert.NotNil(t, s.NextRunAt)
	assert.True(t, f.eng.Scheduler().Has("s1"))

	s, err = f.eng.SetScheduleActive(ctx, "s1", false)
	require.NoError(t, err)
	assert.Nil(t, s.NextRunAt, "停用后清空下次运行时间")
	assert.False(t, f.eng.Scheduler().Has("s1"))

	_, err = f.eng.SetScheduleActive(ctx, "missing", true)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	require.NoError(t, f.eng.RefreshSchedule(ctx, "missing"), "已删除的计划只需移除任务")
}

func TestEngine_FireScheduleStampsRunTimes(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s1", WorkflowID: "wf1", CronExpression: "0 9 * * *", IsActive: true}))
	require.NoError(t, f.eng.RefreshSchedule(ctx, "s1"))

	f.eng.fireSchedule("s1")

	s, err := f.store.GetSchedule(ctx, "s1")
	require.NoError(t, err)
	assert.NotNil(t, s.LastRunAt)
	assert.NotNil(t, s.NextRunAt)

	execs, err := f.store.ListExecutions(ctx, storage.ExecutionFilter{WorkflowID: "wf1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, storage.TriggerScheduled, execs[0].TriggerType)
	assert.Equal(t, storage.ExecutionSuccess, execs[0].Status)
	assert.Len(t, f.dst.table("main.people_copy"), 3)
}

func TestEngine_FireInactiveIsNoop(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()
	require.NoError(t, f.store.SaveSchedule(ctx, &storage.Schedule{ID: "s1", WorkflowID: "wf1", CronExpression: "0 9 * * *"}))
	require.NoError(t, f.store.SaveOrchestration(ctx, &storage.Orchestration{
		ID: "o1", CronExpression: "0 2 * * *",
		Steps: []storage.OrchestrationStep{{WorkflowID: "wf1"}},
	}))

	f.eng.fireSchedule("s1")
	f.eng.fireOrchestration("o1")
	f.eng.fireSchedule("missing")

	execs, err := f.store.ListExecutions(ctx, storage.ExecutionFilter{Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, execs, "停用的计划与编排触发时跳过")
	o, err := f.store.GetOrchestration(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, o.LastRunAt)
}

func TestEngine_OrchestrationActivationAndFire(t *testing.T) {
	pm, capture := newCapture(t, plugin.EventOrchestrationCompleted)
	f := newEngineFixture(t, Options{Plugins: pm})
	ctx := context.Background()
	require.NoError(t, f.store.SaveOrchestration(ctx, &storage.Orchestration{
		ID: "o1", Name: "夜间", CronExpression: "0 2 * * *",
		Steps: []storage.OrchestrationStep{{WorkflowID: "wf1", OrderIndex: 1}},
	}))

	o, err := f.eng.SetOrchestrationActive(ctx, "o1", true)
	require.NoError(t, err)
	assert.NotNil(t, o.NextRunAt)
	assert.True(t, f.eng.Scheduler().Has("orch_o1"))

	f.eng.fireOrchestration("o1")
	o, err = f.store.GetOrchestration(ctx, "o1")
	require.NoError(t, err)
	assert.NotNil(t, o.LastRunAt)

	execs, err := f.store.ListExecutions(ctx, storage.ExecutionFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, storage.TriggerChained, execs[0].TriggerType)
	assert.Equal(t, []plugin.TriggerEvent{plugin.EventOrchestrationCompleted}, capture.events())

	o, err = f.eng.SetOrchestrationActive(ctx, "o1", false)
	require.NoError(t, err)
	assert.Nil(t, o.NextRunAt)
	assert.False(t, f.eng.Scheduler().Has("orch_o1"))

	_, err = f.eng.SetOrchestrationActive(ctx, "missing", true)
	assert.ErrorIs(t, err, ErrOrchestrationNotFound)
}

func TestEngine_RunOrchestrationNotifies(t *testing.T) {
	pm, capture := newCapture(t, plugin.EventOrchestrationCompleted)
	f := newEngineFixture(t, Options{Plugins: pm})
	ctx := context.Background()
	require.NoError(t, f.store.SaveOrchestration(ctx, &storage.Orchestration{
		ID: "o1", Name: "手动", Steps: []storage.OrchestrationStep{{WorkflowID: "wf1"}, {WorkflowID: "ghost"}},
	}))

	res, err := f.eng.RunOrchestration(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, OrchestrationPartial, res.Status)
	assert.Equal(t, 1, res.CompletedSteps)
	assert.Equal(t, 1, res.FailedSteps)

	capture.mu.Lock()
	require.Len(t, capture.seen, 1)
	data := capture.seen[0]
	capture.mu.Unlock()
	assert.Equal(t, "手动", data.WorkflowName)
	assert.EqualValues(t, OrchestrationPartial, data.Status)
	assert.Equal(t, "o1", data.Data["orchestration_id"])

	_, err = f.eng.RunOrchestration(ctx, "missing")
	assert.ErrorIs(t, err, ErrOrchestrationNotFound)
}

func TestEngine_RunWorkflowAndTimeline(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()

	exec, err := f.eng.RunWorkflow(ctx, "wf1")
	require.NoError(t, err)
	assert.Equal(t, storage.ExecutionSuccess, exec.Status)

	tl, err := f.eng.Timeline(ctx, exec.ID)
	require.NoError(t, err)
	assert.Equal(t, exec.ID, tl.ExecutionID)
	require.Len(t, tl.Nodes, 2)
	assert.Equal(t, "s", tl.Nodes[0].NodeID)
	assert.EqualValues(t, 3, tl.Nodes[0].RowCount)
	assert.Equal(t, "d", tl.Nodes[1].NodeID)
	assert.EqualValues(t, 3, tl.Nodes[1].RowCount)

	_, err = f.eng.Timeline(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestEngine_SubmitAndCancel(t *testing.T) {
	f := newEngineFixture(t, Options{})
	ctx := context.Background()

	snap, err := f.eng.SubmitWorkflow(ctx, "wf1")
	require.NoError(t, err)
	f.eng.Executor().Wait()

	err = f.eng.CancelExecution(ctx, snap.ID)
	assert.ErrorIs(t, err, ErrNotCancellable, "已结束的执行不可取消")
}

func TestNotifier_PluginsAndBlockedWebhook(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	pm, capture := newCapture(t, plugin.EventExecutionStarted, plugin.EventExecutionSucceeded, plugin.EventExecutionFailed)
	h := newHarness(t, WithNotifier(NewNotifier(pm, plugin.NewWebhookNotifier(time.Second, 1))))
	wf := h.workflow(t, copyPipeline(t, nil, nil))
	wf.NotificationWebhookURL = srv.URL
	wf.NotificationOnSuccess = true
	require.NoError(t, h.store.SaveWorkflow(context.Background(), wf))

	exec, err := h.exec.Run(context.Background(), wf.ID, storage.TriggerManual)
	require.NoError(t, err)
	h.exec.Wait()

	assert.Equal(t, storage.ExecutionSuccess, exec.Status)
	assert.ElementsMatch(t, []plugin.TriggerEvent{plugin.EventExecutionStarted, plugin.EventExecutionSucceeded}, capture.events())
	assert.Zero(t, hits.Load(), "回环地址的Webhook被拒绝")
}

func TestEventFor(t *testing.T) {
	assert.Equal(t, plugin.EventExecutionSucceeded, eventFor(storage.ExecutionSuccess))
	assert.Equal(t, plugin.EventExecutionFailed, eventFor(storage.ExecutionFailed))
	assert.Equal(t, plugin.EventExecutionCancelled, eventFor(storage.ExecutionCancelled))
}
