// Package mysql MySQL持久化方言
package mysql

import (
	"fmt"
	"strings"
	"time"

	driver "github.com/go-sql-driver/mysql"

	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/sqlstore"
)

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Open 打开MySQL存储（对外导出）
// 强制parseTime=true、loc=UTC，DATETIME列才能扫描为time.Time
func Open(dsn string, opts sqlstore.Options) (*sqlstore.Store, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("解析MySQL DSN失败: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return sqlstore.Open(NewMySQLDialect(), cfg.FormatDSN(), opts)
}

func (d *MySQLDialect) Name() string {
	return "mysql"
}

func (d *MySQLDialect) DriverName() string {
	return "mysql"
}

// UpsertSQL 返回MySQL的UPSERT语句（使用ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	named := make([]string, len(columns))
	for i, col := range columns {
		named[i] = ":" + col
	}
	updates := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updates[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(named, ", "),
		strings.Join(updates, ", "),
	)
}

// CreateTableSQL 追加引擎与字符集声明
func (d *MySQLDialect) CreateTableSQL(ddl string) string {
	if strings.Contains(ddl, "ENGINE=") {
		return ddl
	}
	return strings.TrimRight(strings.TrimSpace(ddl), ";") + " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
}

// CreateIndexSQL MySQL不支持IF NOT EXISTS，重复创建的错误由调用方忽略
func (d *MySQLDialect) CreateIndexSQL(indexName, tableName, columns string) string {
	return fmt.Sprintf("CREATE INDEX %s ON %s (%s)", indexName, tableName, columns)
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{
		"SET SESSION sql_mode='STRICT_TRANS_TABLES,NO_ZERO_IN_DATE,NO_ZERO_DATE,ERROR_FOR_DIVISION_BY_ZERO,NO_ENGINE_SUBSTITUTION';",
	}
}

func (d *MySQLDialect) AutoIncrementKeyword() string {
	return "BIGINT PRIMARY KEY AUTO_INCREMENT"
}

func (d *MySQLDialect) BooleanType() string {
	return "TINYINT(1)"
}

func (d *MySQLDialect) TextType() string {
	return "LONGTEXT"
}

func (d *MySQLDialect) TimestampType() string {
	return "DATETIME(6)"
}

func (d *MySQLDialect) ReturningID() bool {
	return false
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
