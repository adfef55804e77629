package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// OrchestrationHandler 编排API处理器
type OrchestrationHandler struct {
	engine *engine.Engine
}

// NewOrchestrationHandler 创建OrchestrationHandler
func NewOrchestrationHandler(eng *engine.Engine) *OrchestrationHandler {
	return &OrchestrationHandler{engine: eng}
}

// Run 手动运行编排；sync=true时返回运行结果，否则后台运行并返回202
// POST /api/v1/orchestrations/:id/run
func (h *OrchestrationHandler) Run(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	if _, err := h.engine.Store().GetOrchestration(ctx, id); err != nil {
		respondError(c, err)
		return
	}

	if c.Query("sync") == "true" {
		res, err := h.engine.RunOrchestration(ctx, id)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(res))
		return
	}

	// 后台运行不受请求结束影响
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := h.engine.RunOrchestration(bg, id); err != nil {
			logger.L().Errorf("❌ [API] 编排运行失败: ID=%s, Error=%v", id, err)
		}
	}()
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(gin.H{"orchestration_id": id, "status": "started"}))
}

// Activate 启用或停用编排，同步更新定时任务
// PUT /api/v1/orchestrations/:id/active
func (h *OrchestrationHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}
	o, err := h.engine.SetOrchestrationActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(o))
}
