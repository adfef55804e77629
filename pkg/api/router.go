package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/handler"
	"github.com/LENAX/dataflow-engine/pkg/api/middleware"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
	"github.com/LENAX/dataflow-engine/pkg/core/preview"
)

// Deps 路由依赖
type Deps struct {
	Engine  *engine.Engine
	Preview *preview.Service
	// Location 解析日期过滤条件与计算cron触发时间的时区
	Location *time.Location
}

// SetupRouter 设置路由
func SetupRouter(deps Deps, version string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	healthHandler := handler.NewHealthHandler(version)
	workflowHandler := handler.NewWorkflowHandler(deps.Engine)
	executionHandler := handler.NewExecutionHandler(deps.Engine, deps.Location)
	connectionHandler := handler.NewConnectionHandler(deps.Engine.Store(), deps.Preview)
	orchestrationHandler := handler.NewOrchestrationHandler(deps.Engine)
	scheduleHandler := handler.NewScheduleHandler(deps.Engine, deps.Location)

	router.GET("/health", healthHandler.Health)

	v1 := router.Group("/api/v1")
	{
		workflows := v1.Group("/workflows")
		{
			workflows.POST("/validate", workflowHandler.ValidateDefinition)
			workflows.POST("/:id/validate", workflowHandler.Validate)
			workflows.POST("/:id/run", workflowHandler.Run)
		}

		executions := v1.Group("/executions")
		{
			executions.GET("", executionHandler.List)
			executions.GET("/:id", executionHandler.Get)
			executions.GET("/:id/logs", executionHandler.Logs)
			executions.GET("/:id/logs/ws", executionHandler.Stream)
			executions.GET("/:id/timeline", executionHandler.Timeline)
			executions.POST("/:id/cancel", executionHandler.Cancel)
		}

		connections := v1.Group("/connections")
		{
			connections.POST("/test", connectionHandler.TestRaw)
			connections.POST("/:id/test", connectionHandler.Test)
			connections.GET("/:id/schemas", connectionHandler.Schemas)
			connections.GET("/:id/tables", connectionHandler.Tables)
			connections.GET("/:id/columns", connectionHandler.Columns)
			connections.POST("/:id/preview", connectionHandler.Preview)
			connections.POST("/:id/preview/mapping", connectionHandler.PreviewMapping)
			connections.DELETE("/:id/cache", connectionHandler.InvalidateCache)
		}

		orchestrations := v1.Group("/orchestrations")
		{
			orchestrations.POST("/:id/run", orchestrationHandler.Run)
			orchestrations.PUT("/:id/active", orchestrationHandler.Activate)
		}

		v1.PUT("/schedules/:id/active", scheduleHandler.Activate)

		scheduler := v1.Group("/scheduler")
		{
			scheduler.GET("/jobs", scheduleHandler.Jobs)
			scheduler.GET("/next", scheduleHandler.NextRuns)
		}
	}

	return router
}
