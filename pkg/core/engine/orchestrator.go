package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// 编排结果状态
const (
	OrchestrationSuccess = "success"
	OrchestrationPartial = "partial"
	OrchestrationFailed  = "failed"
)

// WorkflowRunner 同步执行一个工作流
type WorkflowRunner interface {
	Run(ctx context.Context, workflowID string, trigger storage.TriggerType) (*storage.Execution, error)
}

// OrchestrationResult 编排运行结果（对外导出）
type OrchestrationResult struct {
	OrchestrationID   string   `json:"orchestration_id"`
	OrchestrationName string   `json:"orchestration_name"`
	TotalSteps        int      `json:"total_steps"`
	CompletedSteps    int      `json:"completed_steps"`
	FailedSteps       int      `json:"failed_steps"`
	SkippedSteps      int      `json:"skipped_steps"`
	ExecutionIDs      []string `json:"execution_ids"`
	Status            string   `json:"status"`
}

// Orchestrator 编排控制器：按order_index依次运行步骤，支持重试、超时与失败策略（对外导出）
type Orchestrator struct {
	store  storage.OrchestrationRepository
	runner WorkflowRunner
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewOrchestrator 创建编排控制器
func NewOrchestrator(store storage.OrchestrationRepository, runner WorkflowRunner) *Orchestrator {
	return &Orchestrator{
		store:  store,
		runner: runner,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Run 运行编排，步骤失败不返回error，体现在结果的计数与状态中
func (o *Orchestrator) Run(ctx context.Context, orchestrationID string) (*OrchestrationResult, error) {
	orch, err := o.store.GetOrchestration(ctx, orchestrationID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrOrchestrationNotFound, orchestrationID)
	}
	if err != nil {
		return nil, fmt.Errorf("读取编排失败: %w", err)
	}
	return o.RunOrchestration(ctx, orch), nil
}

// RunOrchestration 运行已加载的编排
func (o *Orchestrator) RunOrchestration(ctx context.Context, orch *storage.Orchestration) *OrchestrationResult {
	steps := append([]storage.OrchestrationStep(nil), orch.Steps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].OrderIndex < steps[j].OrderIndex })

	res := &OrchestrationResult{
		OrchestrationID:   orch.ID,
		OrchestrationName: orch.Name,
		TotalSteps:        len(steps),
		ExecutionIDs:      []string{},
	}
	logger.L().Infof("🚀 [编排] 开始: ID=%s, Name=%s, Steps=%d", orch.ID, orch.Name, len(steps))

	for i, step := range steps {
		if err := o.runStep(ctx, i+1, step, res); err == nil {
			res.CompletedSteps++
			continue
		}
		res.FailedSteps++
		policy := step.OnFailure
		if policy == "" {
			policy = orch.OnError
		}
		if policy != storage.OnFailureContinue {
			res.SkippedSteps = res.TotalSteps - res.CompletedSteps - res.FailedSteps
			logger.L().Warnf("⚠️ [编排] 步骤 %d 失败，停止后续 %d 个步骤: ID=%s", i+1, res.SkippedSteps, orch.ID)
			break
		}
	}

	switch {
	case res.FailedSteps == 0:
		res.Status = OrchestrationSuccess
	case res.CompletedSteps > 0:
		res.Status = OrchestrationPartial
	default:
		res.Status = OrchestrationFailed
	}
	logger.L().Infof("🏁 [编排] 结束: ID=%s, Status=%s, Completed=%d, Failed=%d, Skipped=%d",
		orch.ID, res.Status, res.CompletedSteps, res.FailedSteps, res.SkippedSteps)
	return res
}

// runStep 最多尝试retry_count+1次，返回最后一次的失败原因
func (o *Orchestrator) runStep(ctx context.Context, n int, step storage.OrchestrationStep, res *OrchestrationResult) error {
	attempts := step.RetryCount + 1
	if attempts < 1 {
		attempts = 1
	}
	timeout := time.Duration(step.TimeoutSeconds) * time.Second
	delay := time.Duration(step.RetryDelaySeconds) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := o.now()
		exec, err := o.runner.Run(ctx, step.WorkflowID, storage.TriggerChained)
		if exec != nil {
			res.ExecutionIDs = append(res.ExecutionIDs, exec.ID)
		}
		if err == nil {
			elapsed := o.now().Sub(start)
			switch {
			case timeout > 0 && elapsed > timeout:
				err = fmt.Errorf("步骤超时: 耗时%.1fs，限制%ds", elapsed.Seconds(), step.TimeoutSeconds)
			case exec.Status == storage.ExecutionFailed:
				err = fmt.Errorf("workflow failed: %s", exec.ErrorMessage)
			case exec.Status == storage.ExecutionCancelled:
				err = errors.New("workflow cancelled")
			}
		}
		if err == nil {
			logger.L().Infof("✅ [编排] 步骤 %d 成功: Workflow=%s, Attempt=%d/%d", n, step.WorkflowID, attempt, attempts)
			return nil
		}
		lastErr = err
		logger.L().Warnf("⚠️ [编排] 步骤 %d 失败: Workflow=%s, Attempt=%d/%d, Error=%v", n, step.WorkflowID, attempt, attempts, err)
		if attempt < attempts && delay > 0 {
			if err := o.sleep(ctx, delay); err != nil {
				return err
			}
		}
	}
	return lastErr
}
