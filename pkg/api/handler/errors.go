package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/cronexpr"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/core/preview"
	"github.com/LENAX/dataflow-engine/pkg/core/workflow"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/sqlguard"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// statusFor 将领域错误映射为HTTP状态码
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, engine.ErrWorkflowNotFound),
		errors.Is(err, engine.ErrOrchestrationNotFound),
		errors.Is(err, engine.ErrConnectionNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrNotCancellable):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrInvalidDefinition),
		errors.Is(err, sqlguard.ErrDangerousSQL),
		errors.Is(err, preview.ErrInvalidIdentifier),
		errors.Is(err, connector.ErrUnknownKind),
		errors.Is(err, cronexpr.ErrInvalidExpression):
		return http.StatusBadRequest
	case errors.Is(err, connector.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

// respondError 写错误响应，5xx同时记录日志
func respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.L().Errorf("❌ [API] %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, dto.NewErrorResponse(status, err.Error()))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, msg))
}
