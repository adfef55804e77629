// Package sqlite SQLite持久化方言，默认的单机存储
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/sqlstore"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Open 打开SQLite存储（对外导出）
// SQLite单写者，连接池固定为1，避免database is locked
func Open(dsn string, opts sqlstore.Options) (*sqlstore.Store, error) {
	opts.MaxOpenConns = 1
	opts.MaxIdleConns = 1
	return sqlstore.Open(NewSQLiteDialect(), dsn, opts)
}

func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

func (d *SQLiteDialect) DriverName() string {
	return "sqlite3"
}

// UpsertSQL SQLite 3.24+ 的ON CONFLICT语法
func (d *SQLiteDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	named := make([]string, len(columns))
	for i, col := range columns {
		named[i] = ":" + col
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = excluded.%s", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(named, ", "),
		conflictColumn,
		strings.Join(updates, ", "),
	)
}

// CreateTableSQL SQLite原样返回
func (d *SQLiteDialect) CreateTableSQL(ddl string) string {
	return ddl
}

func (d *SQLiteDialect) CreateIndexSQL(indexName, tableName, columns string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s(%s)", indexName, tableName, columns)
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

func (d *SQLiteDialect) AutoIncrementKeyword() string {
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// BooleanType 声明为BOOLEAN时go-sqlite3直接扫描为bool
func (d *SQLiteDialect) BooleanType() string {
	return "BOOLEAN"
}

func (d *SQLiteDialect) TextType() string {
	return "TEXT"
}

func (d *SQLiteDialect) TimestampType() string {
	return "DATETIME"
}

func (d *SQLiteDialect) ReturningID() bool {
	return false
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
