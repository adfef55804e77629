package engine

import (
	"context"

	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/plugin"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// Notifier 执行事件通知：全局插件 + 工作流级Webhook（对外导出）
type Notifier struct {
	Plugins plugin.PluginManager
	Webhook *plugin.WebhookNotifier
}

// NewNotifier 创建通知器，任一参数可为nil
func NewNotifier(plugins plugin.PluginManager, webhook *plugin.WebhookNotifier) *Notifier {
	return &Notifier{Plugins: plugins, Webhook: webhook}
}

func eventFor(status storage.ExecutionStatus) plugin.TriggerEvent {
	switch status {
	case storage.ExecutionSuccess:
		return plugin.EventExecutionSucceeded
	case storage.ExecutionCancelled:
		return plugin.EventExecutionCancelled
	default:
		return plugin.EventExecutionFailed
	}
}

func pluginData(event plugin.TriggerEvent, exec *storage.Execution, wf *storage.Workflow) plugin.PluginData {
	return plugin.PluginData{
		Event:         event,
		ExecutionID:   exec.ID,
		WorkflowID:    exec.WorkflowID,
		WorkflowName:  wf.Name,
		Status:        string(exec.Status),
		RowsProcessed: exec.RowsProcessed,
		RowsFailed:    exec.RowsFailed,
		Error:         exec.ErrorMessage,
		StartedAt:     exec.StartedAt,
		FinishedAt:    exec.FinishedAt,
		Data:          map[string]interface{}{"trigger_type": string(exec.TriggerType)},
	}
}

// ExecutionStarted 触发插件的开始事件
func (n *Notifier) ExecutionStarted(ctx context.Context, exec *storage.Execution, wf *storage.Workflow) {
	if n.Plugins == nil {
		return
	}
	if err := n.Plugins.Trigger(ctx, plugin.EventExecutionStarted, pluginData(plugin.EventExecutionStarted, exec, wf)); err != nil {
		logger.L().Warnf("⚠️ [通知] 触发开始事件插件失败: ExecutionID=%s, Error=%v", exec.ID, err)
	}
}

// ExecutionFinished 触发插件，并按工作流设置发送Webhook
// 失败默认通知，成功需显式开启；取消不发送Webhook
func (n *Notifier) ExecutionFinished(ctx context.Context, exec *storage.Execution, wf *storage.Workflow) {
	event := eventFor(exec.Status)
	data := pluginData(event, exec, wf)
	if n.Plugins != nil {
		if err := n.Plugins.Trigger(ctx, event, data); err != nil {
			logger.L().Warnf("⚠️ [通知] 触发插件失败: ExecutionID=%s, Event=%s, Error=%v", exec.ID, event, err)
		}
	}
	if n.Webhook == nil || wf.NotificationWebhookURL == "" {
		return
	}
	want := (exec.Status == storage.ExecutionFailed && wf.NotificationOnFailure) ||
		(exec.Status == storage.ExecutionSuccess && wf.NotificationOnSuccess)
	if !want {
		return
	}
	if err := n.Webhook.Send(ctx, wf.NotificationWebhookURL, plugin.PayloadFrom(data)); err != nil {
		logger.L().Warnf("⚠️ [通知] Webhook发送失败: ExecutionID=%s, Error=%v", exec.ID, err)
	}
}

func (e *Executor) notifyStarted(exec *storage.Execution, wf *storage.Workflow) {
	if e.notifier == nil {
		return
	}
	snapshot := *exec
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.notifier.ExecutionStarted(context.Background(), &snapshot, wf)
	}()
}

// notifyFinished 通知在独立协程中发送，不阻塞执行返回
func (e *Executor) notifyFinished(exec *storage.Execution, wf *storage.Workflow) {
	if e.notifier == nil {
		return
	}
	snapshot := *exec
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.notifier.ExecutionFinished(context.Background(), &snapshot, wf)
	}()
}
