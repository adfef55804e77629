// Package plugin 执行结果通知：全局插件（邮件等）与工作流级Webhook
package plugin

import (
	"time"
)

// Plugin 插件基础接口（对外导出）
type Plugin interface {
	// Name 插件名称
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Execute 执行插件逻辑，data为PluginData
	Execute(data interface{}) error
}

// TriggerEvent 插件触发事件类型（对外导出）
type TriggerEvent string

const (
	EventExecutionStarted   TriggerEvent = "execution.started"   // 执行开始
	EventExecutionSucceeded TriggerEvent = "execution.success"   // 执行成功
	EventExecutionFailed    TriggerEvent = "execution.failed"    // 执行失败
	EventExecutionCancelled TriggerEvent = "execution.cancelled" // 执行取消

	EventOrchestrationCompleted TriggerEvent = "orchestration.completed" // 编排结束（任意状态）
)

// ParseTriggerEvent 解析事件名，未知事件返回false
func ParseTriggerEvent(s string) (TriggerEvent, bool) {
	switch ev := TriggerEvent(s); ev {
	case EventExecutionStarted, EventExecutionSucceeded, EventExecutionFailed,
		EventExecutionCancelled, EventOrchestrationCompleted:
		return ev, true
	}
	return "", false
}

// PluginData 传递给插件的数据（对外导出）
type PluginData struct {
	Event         TriggerEvent           // 触发事件
	ExecutionID   string                 // 执行ID（如果有）
	WorkflowID    string                 // 工作流ID（如果有）
	WorkflowName  string                 // 工作流名称（如果有）
	Status        string                 // 状态
	RowsProcessed int64                  // 成功行数
	RowsFailed    int64                  // 失败行数
	Error         string                 // 错误信息（如果有）
	StartedAt     *time.Time             // 开始时间
	FinishedAt    *time.Time             // 结束时间
	Data          map[string]interface{} // 自定义数据
}
