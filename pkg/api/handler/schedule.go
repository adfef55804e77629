package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/cronexpr"
	"github.com/LENAX/dataflow-engine/pkg/core/engine"
)

// maxPreviewRuns cron预览最多返回的触发次数
const maxPreviewRuns = 20

// ScheduleHandler 定时计划与调度器API处理器
type ScheduleHandler struct {
	engine *engine.Engine
	loc    *time.Location
}

// NewScheduleHandler 创建ScheduleHandler
func NewScheduleHandler(eng *engine.Engine, loc *time.Location) *ScheduleHandler {
	if loc == nil {
		loc = time.Local
	}
	return &ScheduleHandler{engine: eng, loc: loc}
}

// Activate 启用或停用定时计划
// PUT /api/v1/schedules/:id/active
func (h *ScheduleHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}
	s, err := h.engine.SetScheduleActive(c.Request.Context(), c.Param("id"), *req.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(s))
}

// Jobs 列出调度器中已注册的任务
// GET /api/v1/scheduler/jobs
func (h *ScheduleHandler) Jobs(c *gin.Context) {
	jobs := h.engine.ListJobs()
	if jobs == nil {
		jobs = []engine.JobInfo{}
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[engine.JobInfo]{Total: len(jobs), Items: jobs}))
}

// NextRuns 校验cron表达式并给出接下来的触发时间
// GET /api/v1/scheduler/next?expression=&count=
func (h *ScheduleHandler) NextRuns(c *gin.Context) {
	expr := c.Query("expression")
	if expr == "" {
		badRequest(c, "缺少expression参数")
		return
	}
	count := 5
	if raw := c.Query("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "count必须为正整数")
			return
		}
		count = min(n, maxPreviewRuns)
	}
	runs, err := cronexpr.Next(expr, time.Now(), h.loc, count)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NextRunsResponse{
		Expression: expr,
		Timezone:   h.loc.String(),
		NextRuns:   runs,
	}))
}
