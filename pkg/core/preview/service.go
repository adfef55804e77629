// Package preview 数据预览与连接元数据浏览，元数据带TTL缓存
package preview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/cache"
	"github.com/LENAX/dataflow-engine/pkg/core/mapping"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
	"github.com/LENAX/dataflow-engine/pkg/logger"
	"github.com/LENAX/dataflow-engine/pkg/sqlguard"
)

// DefaultRowLimit 未指定limit时的预览行数
const DefaultRowLimit = 100

// MaxRowLimit 单次预览的行数上限
const MaxRowLimit = 10000

// ErrInvalidIdentifier 模式名或表名不合法
var ErrInvalidIdentifier = errors.New("无效的模式名或表名")

// Resolver 按连接ID打开连接器
type Resolver interface {
	Resolve(ctx context.Context, connectionID string) (connector.Connector, error)
}

// Options 预览服务参数
type Options struct {
	// RowLimit 默认预览行数
	RowLimit int
	// SQLGuard 对预览查询与标识符做安全检查
	SQLGuard bool
	// MetadataTTL 元数据缓存有效期，<=0使用缓存的默认值
	MetadataTTL time.Duration
}

// Service 预览服务（对外导出）
type Service struct {
	resolver Resolver
	cache    cache.Cache
	opts     Options
}

// NewService 创建预览服务，c为nil时不缓存元数据
func NewService(resolver Resolver, c cache.Cache, opts Options) *Service {
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	return &Service{resolver: resolver, cache: c, opts: opts}
}

func (s *Service) limit(n int) int {
	switch {
	case n <= 0:
		return s.opts.RowLimit
	case n > MaxRowLimit:
		return MaxRowLimit
	}
	return n
}

func connPrefix(connectionID string) string {
	return "conn:" + connectionID + ":"
}

// cached 读缓存，未命中时调用load并写回
func cached[T any](s *Service, key string, load func() (T, error)) (T, error) {
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}
	v, err := load()
	if err != nil {
		return v, err
	}
	if s.cache != nil {
		s.cache.Set(key, v, s.opts.MetadataTTL)
	}
	return v, nil
}

// ListSchemas 列出连接的模式
func (s *Service) ListSchemas(ctx context.Context, connectionID string) ([]string, error) {
	return cached(s, connPrefix(connectionID)+"schemas", func() ([]string, error) {
		conn, err := s.resolver.Resolve(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return conn.ListSchemas(ctx)
	})
}

// ListTables 列出模式下的表，schema为空时使用连接器的默认模式
func (s *Service) ListTables(ctx context.Context, connectionID, schema string) ([]connector.TableInfo, error) {
	return cached(s, connPrefix(connectionID)+"tables:"+schema, func() ([]connector.TableInfo, error) {
		conn, err := s.resolver.Resolve(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return conn.ListTables(ctx, schema)
	})
}

// ListColumns 列出表的列
func (s *Service) ListColumns(ctx context.Context, connectionID, schema, table string) ([]connector.ColumnInfo, error) {
	if err := s.checkIdentifiers(schema, table); err != nil {
		return nil, err
	}
	return cached(s, connPrefix(connectionID)+"columns:"+schema+"."+table, func() ([]connector.ColumnInfo, error) {
		conn, err := s.resolver.Resolve(ctx, connectionID)
		if err != nil {
			return nil, err
		}
		defer conn.Close()
		return conn.ListColumns(ctx, schema, table)
	})
}

// InvalidateConnection 连接配置变更或删除后清除其元数据缓存
func (s *Service) InvalidateConnection(connectionID string) {
	if s.cache == nil {
		return
	}
	if n := s.cache.DeletePrefix(connPrefix(connectionID)); n > 0 {
		logger.L().Debugf("[预览] 已清除连接元数据缓存: ConnectionID=%s, Keys=%d", connectionID, n)
	}
}

func (s *Service) checkIdentifiers(schema, table string) error {
	if !s.opts.SQLGuard {
		return nil
	}
	if !sqlguard.ValidateIdentifier(table) || (schema != "" && !sqlguard.ValidateIdentifier(schema)) {
		return fmt.Errorf("%w: %s.%s", ErrInvalidIdentifier, schema, table)
	}
	return nil
}

// PreviewTable 预览表的前limit行
func (s *Service) PreviewTable(ctx context.Context, connectionID, schema, table string, limit int) (*connector.PreviewResult, error) {
	if err := s.checkIdentifiers(schema, table); err != nil {
		return nil, err
	}
	limit = s.limit(limit)
	conn, err := s.resolver.Resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res, err := conn.PreviewTable(ctx, schema, table, limit)
	if err != nil {
		return nil, err
	}
	return finish(res, limit), nil
}

// PreviewQuery 预览自定义查询的前limit行
func (s *Service) PreviewQuery(ctx context.Context, connectionID, query string, limit int) (*connector.PreviewResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New("查询语句不能为空")
	}
	if s.opts.SQLGuard {
		if err := sqlguard.ValidateSQL(query); err != nil {
			return nil, err
		}
	}
	limit = s.limit(limit)
	conn, err := s.resolver.Resolve(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res, err := conn.PreviewQuery(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	return finish(res, limit), nil
}

// MappingRequest 带列映射的预览请求
type MappingRequest struct {
	ConnectionID   string                  `json:"connection_id"`
	Schema         string                  `json:"schema"`
	Table          string                  `json:"table"`
	Query          string                  `json:"query"`
	ColumnMappings []mapping.ColumnMapping `json:"column_mappings"`
	Limit          int                     `json:"limit"`
}

// PreviewWithMapping 读取源数据并应用列映射，展示写入目标前的样子
func (s *Service) PreviewWithMapping(ctx context.Context, req MappingRequest) (*connector.PreviewResult, error) {
	query, ok := mapping.SourceQuery(req.Query, req.Schema, req.Table)
	if !ok {
		return nil, errors.New("需指定table或query")
	}
	if strings.TrimSpace(req.Query) == "" {
		if err := s.checkIdentifiers(req.Schema, req.Table); err != nil {
			return nil, err
		}
	}
	res, err := s.PreviewQuery(ctx, req.ConnectionID, query, req.Limit)
	if err != nil {
		return nil, err
	}
	if len(req.ColumnMappings) == 0 {
		return res, nil
	}

	rows := mapping.ApplyColumnMappings(res.Rows, req.ColumnMappings)
	byName := make(map[string]connector.ColumnInfo, len(res.Columns))
	for _, c := range res.Columns {
		byName[c.Name] = c
	}
	var cols []connector.ColumnInfo
	for _, m := range req.ColumnMappings {
		if m.Skip {
			continue
		}
		info := connector.ColumnInfo{Name: m.Target(), Nullable: true}
		if src, ok := byName[m.SourceColumn]; ok && len(m.Transforms) == 0 {
			info.DataType = src.DataType
			info.Nullable = src.Nullable
		}
		cols = append(cols, info)
	}
	return &connector.PreviewResult{Columns: cols, Rows: rows, TotalRows: len(rows), Truncated: res.Truncated}, nil
}

// finish 行数达到limit即视为被截断
func finish(res *connector.PreviewResult, limit int) *connector.PreviewResult {
	if res.Rows == nil {
		res.Rows = types.Chunk{}
	}
	res.TotalRows = len(res.Rows)
	res.Truncated = res.TotalRows >= limit
	return res
}

// TestConnection 测试已保存的连接
func (s *Service) TestConnection(ctx context.Context, connectionID string) connector.TestResult {
	conn, err := s.resolver.Resolve(ctx, connectionID)
	if err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}
	}
	defer conn.Close()
	return conn.TestConnection(ctx)
}

// TestRaw 测试尚未保存的连接配置
func TestRaw(ctx context.Context, kind, rawConfig string) connector.TestResult {
	conn, err := connector.Open(kind, rawConfig)
	if err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}
	}
	defer conn.Close()
	return conn.TestConnection(ctx)
}
