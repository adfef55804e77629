package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/dataflow-engine/pkg/api/dto"
	"github.com/LENAX/dataflow-engine/pkg/core/preview"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ConnectionHandler 连接测试、元数据浏览与数据预览
type ConnectionHandler struct {
	store   storage.ConnectionRepository
	preview *preview.Service
}

// NewConnectionHandler 创建ConnectionHandler
func NewConnectionHandler(store storage.ConnectionRepository, svc *preview.Service) *ConnectionHandler {
	return &ConnectionHandler{store: store, preview: svc}
}

// TestRaw 测试未保存的连接配置，连接失败也返回200
// POST /api/v1/connections/test
func (h *ConnectionHandler) TestRaw(c *gin.Context) {
	var req dto.TestConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(preview.TestRaw(c.Request.Context(), req.Type, string(req.Config))))
}

// Test 测试已保存的连接
// POST /api/v1/connections/:id/test
func (h *ConnectionHandler) Test(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.preview.TestConnection(c.Request.Context(), id)))
}

// Schemas GET /api/v1/connections/:id/schemas
func (h *ConnectionHandler) Schemas(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	schemas, err := h.preview.ListSchemas(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(schemas))
}

// Tables GET /api/v1/connections/:id/tables?schema=
func (h *ConnectionHandler) Tables(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	tables, err := h.preview.ListTables(c.Request.Context(), id, c.Query("schema"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(tables))
}

// Columns GET /api/v1/connections/:id/columns?schema=&table=
func (h *ConnectionHandler) Columns(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	table := c.Query("table")
	if table == "" {
		badRequest(c, "缺少table参数")
		return
	}
	cols, err := h.preview.ListColumns(c.Request.Context(), id, c.Query("schema"), table)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(cols))
}

// Preview 预览表数据或查询结果，query优先于table
// POST /api/v1/connections/:id/preview
func (h *ConnectionHandler) Preview(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	var req dto.PreviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	switch {
	case req.Query != "":
		res, err := h.preview.PreviewQuery(ctx, id, req.Query, req.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(res))
	case req.Table != "":
		res, err := h.preview.PreviewTable(ctx, id, req.Schema, req.Table, req.Limit)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.NewSuccessResponse(res))
	default:
		badRequest(c, "query与table至少提供一个")
	}
}

// PreviewMapping 应用列映射后的预览
// POST /api/v1/connections/:id/preview/mapping
func (h *ConnectionHandler) PreviewMapping(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	var req dto.PreviewMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "请求体错误: "+err.Error())
		return
	}
	if req.Query == "" && req.Table == "" {
		badRequest(c, "query与table至少提供一个")
		return
	}
	res, err := h.preview.PreviewWithMapping(c.Request.Context(), preview.MappingRequest{
		ConnectionID:   id,
		Schema:         req.Schema,
		Table:          req.Table,
		Query:          req.Query,
		ColumnMappings: req.ColumnMappings,
		Limit:          req.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(res))
}

// InvalidateCache 丢弃该连接的元数据缓存
// DELETE /api/v1/connections/:id/cache
func (h *ConnectionHandler) InvalidateCache(c *gin.Context) {
	id, ok := h.exists(c)
	if !ok {
		return
	}
	h.preview.InvalidateConnection(id)
	c.Status(http.StatusNoContent)
}

func (h *ConnectionHandler) exists(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := h.store.GetConnection(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return "", false
	}
	return id, true
}
