package storage

import (
	"fmt"

	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/memstore"
	"github.com/LENAX/dataflow-engine/pkg/storage/mysql"
	"github.com/LENAX/dataflow-engine/pkg/storage/postgres"
	"github.com/LENAX/dataflow-engine/pkg/storage/sqlite"
	"github.com/LENAX/dataflow-engine/pkg/storage/sqlstore"
)

// NewDatabaseFactory 按数据库类型打开存储（内部方法）
// dbType: 数据库类型（sqlite/mysql/postgres/memory）
// dsn: 数据库连接字符串，memory类型忽略
func NewDatabaseFactory(dbType, dsn string, opts sqlstore.Options) (storage.Store, error) {
	switch dbType {
	case "sqlite", "sqlite3", "":
		s, err := sqlite.Open(dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("create sqlite store failed: %w", err)
		}
		return s, nil
	case "mysql":
		s, err := mysql.Open(dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("create mysql store failed: %w", err)
		}
		return s, nil
	case "postgres", "postgresql":
		s, err := postgres.Open(dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("create postgres store failed: %w", err)
		}
		return s, nil
	case "memory":
		return memstore.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}
