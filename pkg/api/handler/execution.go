package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ExecutionHandler 执行记录API处理器
type ExecutionHandler struct {
	engine *engine.Engine
	loc    *time.Location
	// pollInterval 实时日志流在总线之外轮询存储的间隔
	pollInterval time.Duration
}

// NewExecutionHandler 创建ExecutionHandler，loc用于解析日期过滤条件
func NewExecutionHandler(eng *engine.Engine, loc *time.Location) *ExecutionHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ExecutionHandler{engine: eng, loc: loc, pollInterval: 2 * time.Second}
}

// List 列出执行记录，按创建时间倒序
// GET /api/v1/executions
func (h *ExecutionHandler) List(c *gin.Context) {
	var query dto.ExecutionQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "查询参数错误: "+err.Error())
		return
	}
	filter := storage.ParseExecutionFilter(query.WorkflowID, query.Status, query.DateFrom, query.DateTo, query.Limit, h.loc)
	items, err := h.engine.Store().ListExecutions(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []*storage.ExecutionSummary{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[*storage.ExecutionSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Get 获取执行详情
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	exec, err := h.engine.Store().GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(exec, h.engine.Executor().IsRunning(exec.ID))))
}

// Logs 获取执行日志，after_id用于增量拉取
// GET /api/v1/executions/:id/logs
func (h *ExecutionHandler) Logs(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	var query dto.LogQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, "查询参数错误: "+err.Error())
		return
	}
	if _, err := h.engine.Store().GetExecution(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	logs, err := h.engine.Store().ListLogs(ctx, id, query.AfterID)
	if err != nil {
		respondError(c, err)
		return
	}
	if logs == nil {
		logs = []*storage.ExecutionLog{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[*storage.ExecutionLog]{
		Total: len(logs),
		Items: logs,
	}))
}

// Timeline 按节点汇总的执行时间线
// GET /api/v1/executions/:id/timeline
func (h *ExecutionHandler) Timeline(c *gin.Context) {
	tl, err := h.engine.Timeline(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(tl))
}

// Cancel 取消pending/running的执行
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if err := h.engine.CancelExecution(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	exec, err := h.engine.Store().GetExecution(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(exec, h.engine.Executor().IsRunning(id))))
}
