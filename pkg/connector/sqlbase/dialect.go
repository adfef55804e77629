// Package sqlbase 基于database/sql与sqlx的通用SQL连接器实现，各数据库通过Dialect定制
package sqlbase

import (
	"context"
	"database/sql"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// Dialect SQL方言（对外导出）
type Dialect interface {
	// Kind 连接器类型名
	Kind() string
	// DriverName database/sql驱动名
	DriverName() string
	// DSN 由连接配置生成驱动DSN
	DSN(cfg connector.Config) (string, error)
	// DefaultSchema 未指定模式时使用的模式
	DefaultSchema() string
	// QuoteIdent 引用标识符
	QuoteIdent(name string) string
	// TableRef 生成完整表引用
	TableRef(schema, table string) string
	// PreviewTableSQL 限行读取表
	PreviewTableSQL(tableRef string, limit int) string
	// PreviewQuerySQL 以子查询包装并限行
	PreviewQuerySQL(query string, limit int) string
	// TruncateSQL 清空表
	TruncateSQL(tableRef string) string
	// SchemasQuery 列出模式，结果单列
	SchemasQuery() string
	// TablesQuery 列出表，结果列为 name, schema, row_count
	TablesQuery(schema string) (string, []any)
	// ColumnsQuery 列出列，结果列为 name, data_type, nullable, max_length, is_primary_key
	ColumnsQuery(schema, table string) (string, []any)
	// MaxParams 单条语句允许的最大绑定参数数
	MaxParams() int
	// Types 原生类型表
	Types() *connector.TypeTable
}

// BulkWriter 方言提供的批量写入路径（如COPY、BulkCopy），自行管理事务
type BulkWriter interface {
	WriteRows(ctx context.Context, conn *sql.Conn, req BulkRequest) (int64, error)
}

// BulkRequest 批量写入请求
type BulkRequest struct {
	Schema   string
	Table    string
	TableRef string
	Truncate bool
	Columns  []string
	// Values 已按目标类型转换的值
	Values [][]types.Value
	// Rows Values对应的驱动原生值
	Rows [][]any
}
