// Package engine 执行引擎：工作流执行器、编排控制器与定时调度
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/core/realtime"
	"github.com/LENAX/dataflow-engine/pkg/core/timeline"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/plugin"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// Options 引擎参数（对外导出）
type Options struct {
	Executor ExecutorOptions
	// Location 调度时区，nil为本地时区
	Location *time.Location
	// SchedulerEnabled 为false时Start不加载定时任务
	SchedulerEnabled bool
	Resolver         ConnectorResolver
	Plugins          plugin.PluginManager
	Webhook          *plugin.WebhookNotifier
	// Bus 为nil时引擎自建并在Stop时关闭
	Bus *realtime.LogBus
}

// Engine 调度引擎核心结构体（对外导出）
type Engine struct {
	store        storage.Store
	executor     *Executor
	orchestrator *Orchestrator
	scheduler    *CronScheduler
	bus          *realtime.LogBus
	ownsBus      bool
	plugins      plugin.PluginManager
	opts         Options
	now          func() time.Time

	mu      sync.Mutex
	running bool
}

// New 创建引擎
func New(store storage.Store, opts Options) *Engine {
	bus, ownsBus := opts.Bus, false
	if bus == nil {
		bus, ownsBus = realtime.NewLogBus(), true
	}
	notifier := NewNotifier(opts.Plugins, opts.Webhook)
	exec := NewExecutor(store, opts.Resolver, opts.Executor, WithLogBus(bus), WithNotifier(notifier))
	return &Engine{
		store:        store,
		executor:     exec,
		orchestrator: NewOrchestrator(store, exec),
		scheduler:    NewCronScheduler(opts.Location),
		bus:          bus,
		ownsBus:      ownsBus,
		plugins:      opts.Plugins,
		opts:         opts,
		now:          time.Now,
	}
}

// Store 持久化存储
func (e *Engine) Store() storage.Store { return e.store }

// Executor 工作流执行器
func (e *Engine) Executor() *Executor { return e.executor }

// Orchestrator 编排控制器
func (e *Engine) Orchestrator() *Orchestrator { return e.orchestrator }

// Scheduler 定时调度器
func (e *Engine) Scheduler() *CronScheduler { return e.scheduler }

// Bus 实时事件总线
func (e *Engine) Bus() *realtime.LogBus { return e.bus }

// Start 从持久化状态加载所有启用的计划与编排并启动调度器
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}
	if e.opts.SchedulerEnabled {
		if err := e.loadJobs(ctx); err != nil {
			return err
		}
		e.scheduler.Start()
	}
	e.running = true
	logger.L().Infof("✅ [引擎] 已启动: Scheduler=%v", e.opts.SchedulerEnabled)
	return nil
}

func (e *Engine) loadJobs(ctx context.Context) error {
	schedules, err := e.store.ListActiveSchedules(ctx)
	if err != nil {
		return fmt.Errorf("加载定时计划失败: %w", err)
	}
	for _, s := range schedules {
		if err := e.registerSchedule(ctx, s); err != nil {
			logger.L().Warnf("⚠️ [引擎] 注册定时计划失败(已跳过): ID=%s, Error=%v", s.ID, err)
		}
	}
	orchs, err := e.store.ListActiveOrchestrations(ctx)
	if err != nil {
		return fmt.Errorf("加载编排失败: %w", err)
	}
	for _, o := range orchs {
		if o.CronExpression == "" {
			continue
		}
		if err := e.registerOrchestration(ctx, o); err != nil {
			logger.L().Warnf("⚠️ [引擎] 注册编排失败(已跳过): ID=%s, Error=%v", o.ID, err)
		}
	}
	logger.L().Infof("✅ [引擎] 已加载定时任务: Jobs=%d", len(e.scheduler.ListJobs()))
	return nil
}

// Stop 停止调度器，等待后台执行结束
func (e *Engine) Stop() {
	e.mu.Lock()
	wasRunning := e.running
	e.running = false
	e.mu.Unlock()

	if wasRunning {
		e.scheduler.Stop()
	}
	e.executor.Wait()
	if e.ownsBus {
		_ = e.bus.Close()
	}
	logger.L().Info("✅ [引擎] 已停止")
}

// RunWorkflow 手动同步执行
func (e *Engine) RunWorkflow(ctx context.Context, workflowID string) (*storage.Execution, error) {
	return e.executor.Run(ctx, workflowID, storage.TriggerManual)
}

// SubmitWorkflow 手动异步执行
func (e *Engine) SubmitWorkflow(ctx context.Context, workflowID string) (*storage.Execution, error) {
	return e.executor.Submit(ctx, workflowID, storage.TriggerManual)
}

// CancelExecution 取消执行
func (e *Engine) CancelExecution(ctx context.Context, executionID string) error {
	return e.executor.Cancel(ctx, executionID)
}

// RunOrchestration 手动运行编排
func (e *Engine) RunOrchestration(ctx context.Context, orchestrationID string) (*OrchestrationResult, error) {
	res, err := e.orchestrator.Run(ctx, orchestrationID)
	if err != nil {
		return nil, err
	}
	e.notifyOrchestration(ctx, res)
	return res, nil
}

// Timeline 重建执行时间线
func (e *Engine) Timeline(ctx context.Context, executionID string) (*timeline.ExecutionTimeline, error) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	logs, err := e.store.ListLogs(ctx, executionID, 0)
	if err != nil {
		return nil, fmt.Errorf("读取执行日志失败: %w", err)
	}
	return timeline.Build(exec, logs), nil
}

// ListJobs 列出定时任务
func (e *Engine) ListJobs() []JobInfo {
	return e.scheduler.ListJobs()
}

// SetScheduleActive 启用或停用定时计划，并同步调度器
func (e *Engine) SetScheduleActive(ctx context.Context, scheduleID string, active bool) (*storage.Schedule, error) {
	s, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		return nil, err
	}
	s.IsActive = active
	if err := e.store.SaveSchedule(ctx, s); err != nil {
		return nil, fmt.Errorf("保存定时计划失败: %w", err)
	}
	if err := e.RefreshSchedule(ctx, scheduleID); err != nil {
		return nil, err
	}
	return e.store.GetSchedule(ctx, scheduleID)
}

// RefreshSchedule 按持久化状态重新注册或移除计划任务
// 计划被删除时移除任务
func (e *Engine) RefreshSchedule(ctx context.Context, scheduleID string) error {
	s, err := e.store.GetSchedule(ctx, scheduleID)
	if errors.Is(err, storage.ErrNotFound) {
		e.scheduler.Deregister(scheduleID)
		return nil
	}
	if err != nil {
		return err
	}
	if !s.IsActive {
		e.scheduler.Deregister(s.ID)
		return e.store.SetScheduleNextRun(ctx, s.ID, nil)
	}
	return e.registerSchedule(ctx, s)
}

func (e *Engine) registerSchedule(ctx context.Context, s *storage.Schedule) error {
	id := s.ID
	if err := e.scheduler.Register(JobSchedule, id, s.WorkflowID, s.Name, s.CronExpression, func() {
		e.fireSchedule(id)
	}); err != nil {
		return err
	}
	return e.store.SetScheduleNextRun(ctx, id, e.scheduler.NextRun(id))
}

// fireSchedule 计划触发：记录last_run_at，执行，再更新next_run_at
func (e *Engine) fireSchedule(scheduleID string) {
	ctx := context.Background()
	s, err := e.store.GetSchedule(ctx, scheduleID)
	if err != nil {
		logger.L().Errorf("❌ [Cron调度器] 读取定时计划失败: ID=%s, Error=%v", scheduleID, err)
		return
	}
	if !s.IsActive {
		return
	}
	logger.L().Infof("🕐 [Cron调度器] 触发工作流: Schedule=%s, Workflow=%s", s.ID, s.WorkflowID)
	if err := e.store.MarkScheduleRun(ctx, s.ID, e.now()); err != nil {
		logger.L().Warnf("⚠️ [Cron调度器] 记录运行时间失败: ID=%s, Error=%v", s.ID, err)
	}
	if _, err := e.executor.Run(ctx, s.WorkflowID, storage.TriggerScheduled); err != nil {
		logger.L().Errorf("❌ [Cron调度器] 执行工作流失败: Schedule=%s, Error=%v", s.ID, err)
	}
	if err := e.store.SetScheduleNextRun(ctx, s.ID, e.scheduler.NextRun(s.ID)); err != nil {
		logger.L().Warnf("⚠️ [Cron调度器] 更新下次运行时间失败: ID=%s, Error=%v", s.ID, err)
	}
}

// SetOrchestrationActive 启用或停用编排，并同步调度器
func (e *Engine) SetOrchestrationActive(ctx context.Context, orchestrationID string, active bool) (*storage.Orchestration, error) {
	o, err := e.store.GetOrchestration(ctx, orchestrationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrchestrationNotFound, orchestrationID)
	}
	if err != nil {
		return nil, err
	}
	o.IsActive = active
	if err := e.store.SaveOrchestration(ctx, o); err != nil {
		return nil, fmt.Errorf("保存编排失败: %w", err)
	}
	if err := e.RefreshOrchestration(ctx, orchestrationID); err != nil {
		return nil, err
	}
	return e.store.GetOrchestration(ctx, orchestrationID)
}

// RefreshOrchestration 按持久化状态重新注册或移除编排任务
func (e *Engine) RefreshOrchestration(ctx context.Context, orchestrationID string) error {
	jobID := OrchestrationJobID(orchestrationID)
	o, err := e.store.GetOrchestration(ctx, orchestrationID)
	if errors.Is(err, storage.ErrNotFound) {
		e.scheduler.Deregister(jobID)
		return nil
	}
	if err != nil {
		return err
	}
	if !o.IsActive || o.CronExpression == "" {
		e.scheduler.Deregister(jobID)
		return e.store.SetOrchestrationNextRun(ctx, o.ID, nil)
	}
	return e.registerOrchestration(ctx, o)
}

func (e *Engine) registerOrchestration(ctx context.Context, o *storage.Orchestration) error {
	id, jobID := o.ID, OrchestrationJobID(o.ID)
	if err := e.scheduler.Register(JobOrchestration, jobID, id, o.Name, o.CronExpression, func() {
		e.fireOrchestration(id)
	}); err != nil {
		return err
	}
	return e.store.SetOrchestrationNextRun(ctx, id, e.scheduler.NextRun(jobID))
}

// fireOrchestration 编排触发：启用状态在运行前再次确认
func (e *Engine) fireOrchestration(orchestrationID string) {
	ctx := context.Background()
	jobID := OrchestrationJobID(orchestrationID)
	o, err := e.store.GetOrchestration(ctx, orchestrationID)
	if err != nil {
		logger.L().Errorf("❌ [Cron调度器] 读取编排失败: ID=%s, Error=%v", orchestrationID, err)
		return
	}
	if !o.IsActive {
		logger.L().Infof("⏭️ [Cron调度器] 编排已停用，跳过: ID=%s", o.ID)
		return
	}
	logger.L().Infof("🕐 [Cron调度器] 触发编排: ID=%s, Name=%s", o.ID, o.Name)
	if err := e.store.MarkOrchestrationRun(ctx, o.ID, e.now()); err != nil {
		logger.L().Warnf("⚠️ [Cron调度器] 记录运行时间失败: ID=%s, Error=%v", o.ID, err)
	}
	res := e.orchestrator.RunOrchestration(ctx, o)
	e.notifyOrchestration(ctx, res)
	if err := e.store.SetOrchestrationNextRun(ctx, o.ID, e.scheduler.NextRun(jobID)); err != nil {
		logger.L().Warnf("⚠️ [Cron调度器] 更新下次运行时间失败: ID=%s, Error=%v", o.ID, err)
	}
}

func (e *Engine) notifyOrchestration(ctx context.Context, res *OrchestrationResult) {
	if e.plugins == nil {
		return
	}
	data := plugin.PluginData{
		Event:        plugin.EventOrchestrationCompleted,
		WorkflowName: res.OrchestrationName,
		Status:       res.Status,
		Data: map[string]interface{}{
			"orchestration_id": res.OrchestrationID,
			"total_steps":      res.TotalSteps,
			"completed_steps":  res.CompletedSteps,
			"failed_steps":     res.FailedSteps,
			"skipped_steps":    res.SkippedSteps,
			"execution_ids":    res.ExecutionIDs,
		},
	}
	if err := e.plugins.Trigger(ctx, plugin.EventOrchestrationCompleted, data); err != nil {
		logger.L().Warnf("⚠️ [引擎] 触发编排插件失败: ID=%s, Error=%v", res.OrchestrationID, err)
	}
}
