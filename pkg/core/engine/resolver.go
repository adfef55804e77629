package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/storage"
)

// ConnectorResolver 按连接ID实例化连接器（对外导出）
// 每次调用返回新实例，调用方负责Close
type ConnectorResolver interface {
	Resolve(ctx context.Context, connectionID string) (connector.Connector, error)
}

// StoreResolver 从持久化的连接配置实例化连接器
type StoreResolver struct {
	Connections storage.ConnectionRepository
}

// NewStoreResolver 创建基于存储的解析器
func NewStoreResolver(repo storage.ConnectionRepository) *StoreResolver {
	return &StoreResolver{Connections: repo}
}

// Resolve 实现ConnectorResolver
func (r *StoreResolver) Resolve(ctx context.Context, connectionID string) (connector.Connector, error) {
	conn, err := r.Connections.GetConnection(ctx, connectionID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("读取连接失败: %w", err)
	}
	return connector.Open(conn.Type, conn.Config)
}
