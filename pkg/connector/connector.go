// Package connector 定义对异构数据存储的统一访问契约
// 每种存储一个适配器，通过Register在init中注册，按连接类型用New实例化
package connector

import (
	"context"
	"errors"
	"iter"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// DefaultChunkSize 默认读取块大小
const DefaultChunkSize = 5000

// DefaultBatchSize 默认写入批大小
const DefaultBatchSize = 500

var (
	// ErrUnsupported 连接器不支持该操作
	ErrUnsupported = errors.New("连接器不支持该操作")
	// ErrUnknownKind 未注册的连接器类型
	ErrUnknownKind = errors.New("未知的连接器类型")
)

// WriteMode 写入模式（对外导出）
type WriteMode string

const (
	// WriteAppend 追加
	WriteAppend WriteMode = "append"
	// WriteOverwrite 写入前清空目标表，仅在一次运行的首个块生效
	WriteOverwrite WriteMode = "overwrite"
)

// ParseWriteMode 解析写入模式，空值视为append
func ParseWriteMode(s string) (WriteMode, error) {
	switch WriteMode(s) {
	case "", WriteAppend:
		return WriteAppend, nil
	case WriteOverwrite:
		return WriteOverwrite, nil
	}
	return "", errors.New("不支持的写入模式: " + s)
}

// TestResult 连接测试结果
type TestResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// TableInfo 表信息
type TableInfo struct {
	Name     string `json:"name"`
	Schema   string `json:"schema_name"`
	RowCount *int64 `json:"row_count"`
}

// ColumnInfo 列信息
type ColumnInfo struct {
	Name         string `json:"name"`
	DataType     string `json:"data_type"`
	Nullable     bool   `json:"nullable"`
	MaxLength    *int64 `json:"max_length"`
	IsPrimaryKey bool   `json:"is_primary_key"`
}

// PreviewResult 预览结果
type PreviewResult struct {
	Columns   []ColumnInfo `json:"columns"`
	Rows      types.Chunk  `json:"rows"`
	TotalRows int          `json:"total_rows"`
	Truncated bool         `json:"truncated"`
}

// WriteOptions 写入选项
type WriteOptions struct {
	// BatchSize 单条INSERT语句包含的最大行数
	BatchSize int
	// ColumnTypes 目标列名到原生类型名的映射，用于写前类型转换；为空时不转换
	ColumnTypes map[string]string
}

// ChunkSeq 惰性、有限、不可重放的块序列
type ChunkSeq = iter.Seq2[types.Chunk, error]

// Connector 数据存储连接器（对外导出）
// 每个操作自行打开并关闭底层连接，原生错误包装后返回
type Connector interface {
	// Kind 连接器类型名
	Kind() string
	// TestConnection 测试连通性，不返回错误，失败信息放在Message中
	TestConnection(ctx context.Context) TestResult
	ListSchemas(ctx context.Context) ([]string, error)
	ListTables(ctx context.Context, schema string) ([]TableInfo, error)
	ListColumns(ctx context.Context, schema, table string) ([]ColumnInfo, error)
	PreviewTable(ctx context.Context, schema, table string, limit int) (*PreviewResult, error)
	PreviewQuery(ctx context.Context, query string, limit int) (*PreviewResult, error)
	// ReadChunks 返回惰性块序列，首次迭代时才打开连接；提前结束迭代会释放连接
	ReadChunks(ctx context.Context, query string, chunkSize int) ChunkSeq
	// WriteChunk 在一个事务内写入一个块，返回写入行数
	WriteChunk(ctx context.Context, schema, table string, rows types.Chunk, mode WriteMode, opts WriteOptions) (int, error)
	// ExecuteNonQuery 执行非查询语句，返回受影响行数；不支持时返回ErrUnsupported
	ExecuteNonQuery(ctx context.Context, sql string) (int64, error)
	// DefaultSchema 未指定模式时使用的默认模式
	DefaultSchema() string
	Close() error
}
