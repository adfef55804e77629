package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
)

// WorkflowHandler 工作流API处理器
type WorkflowHandler struct {
	engine *engine.Engine
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(eng *engine.Engine) *WorkflowHandler {
	return &WorkflowHandler{engine: eng}
}

// Run 手动运行工作流，默认异步；sync=true时等待执行结束
// POST /api/v1/workflows/:id/run
func (h *WorkflowHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if c.Query("sync") == "true" {
		exec, err := h.engine.RunWorkflow(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewExecutionDetail(exec, false)))
		return
	}

	exec, err := h.engine.SubmitWorkflow(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.NewExecutionDetail(exec, true)))
}

// Validate 校验已保存的工作流
// POST /api/v1/workflows/:id/validate
func (h *WorkflowHandler) Validate(c *gin.Context) {
	wf, err := h.engine.Store().GetWorkflow(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(validate([]byte(wf.Definition))))
}

// ValidateDefinition 校验未保存的定义
// POST /api/v1/workflows/validate
func (h *WorkflowHandler) ValidateDefinition(c *gin.Context) {
	var req dto.ValidateWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(validate(req.Definition)))
}

func validate(raw []byte) dto.ValidationResponse {
	res := workflow.Validate(raw)
	out := dto.ValidationResponse{Valid: res.Valid, Errors: res.Errors, Warnings: res.Warnings}
	if !res.Valid {
		return out
	}
	def, err := workflow.Parse(raw)
	if err != nil {
		return out
	}
	order, err := def.ExecutionOrder()
	if err != nil {
		return out
	}
	for _, n := range order {
		out.ExecutionOrder = append(out.ExecutionOrder, n.ID)
	}
	return out
}
