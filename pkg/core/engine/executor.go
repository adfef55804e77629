package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/realtime"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ExecutorOptions 执行器参数（对外导出）
type ExecutorOptions struct {
	// DefaultChunkSize 源节点未配置chunk_size时的读取块大小
	DefaultChunkSize int
	// DefaultBatchSize 目标节点未配置batch_size时的写入批大小
	DefaultBatchSize int
	// SQLGuard 对sqlExecute语句、自定义源查询与目标表名做安全检查
	SQLGuard bool
}

// ExecutorOption 执行器可选依赖
type ExecutorOption func(*Executor)

// WithLogBus 执行日志同时发布到实时总线
func WithLogBus(bus *realtime.LogBus) ExecutorOption {
	return func(e *Executor) { e.bus = bus }
}

// WithNotifier 执行结束后发送通知
func WithNotifier(n *Notifier) ExecutorOption {
	return func(e *Executor) { e.notifier = n }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) { e.now = now }
}

// WithIDGenerator 替换执行ID生成器
func WithIDGenerator(f func() string) ExecutorOption {
	return func(e *Executor) { e.newID = f }
}

// Executor 工作流执行器（对外导出）
// Run在调用方协程上同步执行；并发只来自相互独立的调用
type Executor struct {
	store    storage.Store
	resolver ConnectorResolver
	bus      *realtime.LogBus
	notifier *Notifier
	opts     ExecutorOptions
	now      func() time.Time
	newID    func() string

	mu     sync.Mutex
	active map[string]*atomic.Bool // executionID -> 取消标记
	wg     sync.WaitGroup
}

// NewExecutor 创建执行器，resolver为nil时从store读取连接配置
func NewExecutor(store storage.Store, resolver ConnectorResolver, opts ExecutorOptions, options ...ExecutorOption) *Executor {
	if opts.DefaultChunkSize <= 0 {
		opts.DefaultChunkSize = connector.DefaultChunkSize
	}
	if opts.DefaultBatchSize <= 0 {
		opts.DefaultBatchSize = connector.DefaultBatchSize
	}
	if resolver == nil {
		resolver = NewStoreResolver(store)
	}
	e := &Executor{
		store:    store,
		resolver: resolver,
		opts:     opts,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		active:   make(map[string]*atomic.Bool),
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

// Run 创建执行记录并同步执行工作流
// 只有工作流不存在或存储失败时返回error；执行本身的失败体现在返回记录的状态中
func (e *Executor) Run(ctx context.Context, workflowID string, trigger storage.TriggerType) (*storage.Execution, error) {
	wf, exec, err := e.prepare(ctx, workflowID, trigger, false)
	if err != nil {
		return nil, err
	}
	flag := e.track(exec.ID)
	return e.execute(ctx, exec, wf, flag), nil
}

// Submit 创建pending执行记录后立即返回，在后台执行
func (e *Executor) Submit(ctx context.Context, workflowID string, trigger storage.TriggerType) (*storage.Execution, error) {
	wf, exec, err := e.prepare(ctx, workflowID, trigger, true)
	if err != nil {
		return nil, err
	}
	flag := e.track(exec.ID)
	snapshot := *exec
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.execute(context.WithoutCancel(ctx), exec, wf, flag)
	}()
	return &snapshot, nil
}

// Cancel 取消pending/running的执行，在下一个块边界生效
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	changed, err := e.store.CancelExecution(ctx, executionID, e.now())
	if err != nil {
		return fmt.Errorf("取消执行失败: %w", err)
	}
	if !changed {
		exec, err := e.store.GetExecution(ctx, executionID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: %s (%s)", ErrNotCancellable, executionID, exec.Status)
	}

	e.mu.Lock()
	flag, local := e.active[executionID]
	e.mu.Unlock()
	if local {
		flag.Store(true)
		logger.L().Infof("🛑 [执行器] 已请求取消: ExecutionID=%s", executionID)
		return nil
	}
	// 不在本进程中运行，由这里通知订阅者
	if exec, err := e.store.GetExecution(ctx, executionID); err == nil {
		e.publishFinished(exec)
	}
	return nil
}

// IsRunning 执行是否由本进程持有
func (e *Executor) IsRunning(executionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.active[executionID]
	return ok
}

// Wait 等待所有后台执行与通知结束
func (e *Executor) Wait() {
	e.wg.Wait()
}

func (e *Executor) prepare(ctx context.Context, workflowID string, trigger storage.TriggerType, stampStart bool) (*storage.Workflow, *storage.Execution, error) {
	wf, err := e.store.GetWorkflow(ctx, workflowID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, workflowID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("读取工作流失败: %w", err)
	}
	if err := checkDefinition(wf.Definition); err != nil {
		return nil, nil, err
	}
	if trigger == "" {
		trigger = storage.TriggerManual
	}
	now := e.now()
	exec := &storage.Execution{
		ID:          e.newID(),
		WorkflowID:  wf.ID,
		Status:      storage.ExecutionPending,
		TriggerType: trigger,
		CreatedAt:   now,
	}
	if stampStart {
		exec.StartedAt = &now
	}
	if err := e.store.CreateExecution(ctx, exec); err != nil {
		return nil, nil, fmt.Errorf("创建执行记录失败: %w", err)
	}
	return wf, exec, nil
}

// checkDefinition 结构校验，不通过时不创建执行记录
func checkDefinition(definition string) error {
	raw := []byte(definition)
	if err := workflow.Validate(raw).Err(); err != nil {
		return err
	}
	def, err := workflow.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidDefinition, err)
	}
	if len(def.Nodes) == 0 {
		return fmt.Errorf("%w: 工作流没有任何节点", workflow.ErrInvalidDefinition)
	}
	return nil
}

func (e *Executor) track(id string) *atomic.Bool {
	flag := new(atomic.Bool)
	e.mu.Lock()
	e.active[id] = flag
	e.mu.Unlock()
	return flag
}

func (e *Executor) untrack(id string) {
	e.mu.Lock()
	delete(e.active, id)
	e.mu.Unlock()
}

// execute 执行边界：捕获panic，落库终态，发布结束事件并发送通知
func (e *Executor) execute(ctx context.Context, exec *storage.Execution, wf *storage.Workflow, cancelled *atomic.Bool) *storage.Execution {
	defer e.untrack(exec.ID)
	r := &run{
		e:         e,
		ctx:       ctx,
		storeCtx:  context.WithoutCancel(ctx),
		exec:      exec,
		wf:        wf,
		cancelled: cancelled,
	}
	err := r.safeRun()
	final := e.finish(r, err)
	e.publishFinished(final)
	e.notifyFinished(final, wf)
	logger.L().Infof("🏁 [执行器] 执行结束: ExecutionID=%s, Status=%s, Rows=%d, Failed=%d",
		final.ID, final.Status, final.RowsProcessed, final.RowsFailed)
	return final
}

func (r *run) safeRun() (err error) {
	defer func() {
		if p := recover(); p != nil {
			logger.Z().Error("执行过程中发生panic",
				zap.String("execution_id", r.exec.ID),
				zap.Any("panic", p),
				zap.Stack("stack"))
			err = fmt.Errorf("执行过程中发生panic: %v", p)
		}
	}()
	return r.execute()
}

func (e *Executor) finish(r *run, runErr error) *storage.Execution {
	ctx := r.storeCtx
	exec := *r.exec
	now := e.now()
	exec.FinishedAt = &now

	switch {
	case runErr == nil:
		exec.Status = storage.ExecutionSuccess
		exec.RowsProcessed = r.rowsWritten
		exec.RowsFailed = r.rowsFailed
	case errors.Is(runErr, ErrCancelled):
		r.log(storage.LevelWarning, "", "Execution cancelled")
		return e.reload(ctx, &exec)
	default:
		exec.Status = storage.ExecutionFailed
		exec.ErrorMessage = runErr.Error()
		logger.L().Errorf("❌ [执行器] 执行失败: ExecutionID=%s, Error=%v", exec.ID, runErr)
	}

	changed, err := e.store.FinishExecution(ctx, &exec)
	if err != nil {
		logger.L().Errorf("❌ [执行器] 保存执行结果失败: ExecutionID=%s, Error=%v", exec.ID, err)
	} else if !changed {
		// 运行期间已被取消，保留cancelled
		r.log(storage.LevelWarning, "", "Execution cancelled")
		return e.reload(ctx, &exec)
	}

	if runErr == nil {
		r.log(storage.LevelInfo, "", "Workflow completed. %d rows transferred.", exec.RowsProcessed)
	} else {
		r.log(storage.LevelError, "", "Error: %v", runErr)
	}
	return &exec
}

func (e *Executor) reload(ctx context.Context, fallback *storage.Execution) *storage.Execution {
	exec, err := e.store.GetExecution(ctx, fallback.ID)
	if err != nil {
		fallback.Status = storage.ExecutionCancelled
		return fallback
	}
	return exec
}

func (e *Executor) publishFinished(exec *storage.Execution) {
	if e.bus == nil {
		return
	}
	if err := e.bus.PublishFinished(exec); err != nil {
		logger.L().Warnf("⚠️ [执行器] 发布结束事件失败: ExecutionID=%s, Error=%v", exec.ID, err)
	}
}
