package engine

import "errors"

var (
	// ErrWorkflowNotFound 工作流不存在
	ErrWorkflowNotFound = errors.New("工作流不存在")
	// ErrOrchestrationNotFound 编排不存在
	ErrOrchestrationNotFound = errors.New("编排不存在")
	// ErrConnectionNotFound 连接不存在
	ErrConnectionNotFound = errors.New("连接不存在")
	// ErrNotCancellable 执行已进入终态，不能取消
	ErrNotCancellable = errors.New("执行已结束，无法取消")
	// ErrCancelled 执行在块边界处检测到取消
	ErrCancelled = errors.New("执行已取消")
)
