package dto

import (
	"encoding/json"

	"github.com/LENAX/dataflow-engine/pkg/core/mapping"
)

// ValidateWorkflowRequest 校验未保存的工作流定义
type ValidateWorkflowRequest struct {
	Definition json.RawMessage `json:"definition" binding:"required"`
}

// ExecutionQueryRequest 执行列表查询参数
type ExecutionQueryRequest struct {
	WorkflowID string `form:"workflow_id"`
	Status     string `form:"status" binding:"omitempty,oneof=pending running success failed cancelled"`
	DateFrom   string `form:"date_from"`
	DateTo     string `form:"date_to"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=1000"`
}

// LogQueryRequest 日志查询参数
type LogQueryRequest struct {
	AfterID int64 `form:"after_id" binding:"omitempty,min=0"`
}

// TestConnectionRequest 测试未保存的连接配置
type TestConnectionRequest struct {
	Type   string          `json:"type" binding:"required"`
	Config json.RawMessage `json:"config" binding:"required"`
}

// PreviewRequest 预览表或自定义查询，query优先
type PreviewRequest struct {
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Query  string `json:"query"`
	Limit  int    `json:"limit" binding:"omitempty,min=0"`
}

// PreviewMappingRequest 带列映射的预览
type PreviewMappingRequest struct {
	PreviewRequest
	ColumnMappings []mapping.ColumnMapping `json:"column_mappings"`
}

// ActivateRequest 启用或停用
type ActivateRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}
