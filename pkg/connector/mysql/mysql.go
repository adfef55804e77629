// Package mysql MySQL连接器，基于go-sql-driver/mysql
package mysql

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/connector/sqlbase"
)

// Kind 连接器类型名
const Kind = "mysql"

func init() {
	connector.Register(Kind, func(cfg connector.Config) (connector.Connector, error) {
		return sqlbase.New(Dialect{}, cfg)
	})
}

var typeTable = connector.NewTypeTable(map[string]connector.TypeEntry{
	"tinyint":    connector.IntegerType(),
	"smallint":   connector.IntegerType(),
	"mediumint":  connector.IntegerType(),
	"int":        connector.IntegerType(),
	"integer":    connector.IntegerType(),
	"bigint":     connector.IntegerType(),
	"bit":        connector.BooleanType(),
	"bool":       connector.BooleanType(),
	"boolean":    connector.BooleanType(),
	"float":      connector.FloatType(),
	"double":     connector.FloatType(),
	"decimal":    connector.DecimalType(),
	"numeric":    connector.DecimalType(),
	"char":       connector.TextType(true),
	"varchar":    connector.TextType(true),
	"text":       connector.TextType(true),
	"tinytext":   connector.TextType(true),
	"mediumtext": connector.TextType(true),
	"longtext":   connector.TextType(true),
	"json":       connector.TextType(true),
	"enum":       connector.TextType(true),
	"date":       connector.DateType(),
	"datetime":   connector.DateTimeType(),
	"timestamp":  connector.DateTimeType(),
	"binary":     connector.BinaryType(),
	"varbinary":  connector.BinaryType(),
	"blob":       connector.BinaryType(),
	"tinyblob":   connector.BinaryType(),
	"mediumblob": connector.BinaryType(),
	"longblob":   connector.BinaryType(),
})

// Dialect MySQL方言（对外导出）
type Dialect struct{}

func (Dialect) Kind() string { return Kind }
func (Dialect) DriverName() string { return "mysql" }
func (Dialect) DefaultSchema() string { return "" }
func (Dialect) MaxParams() int { return 65535 }
func (Dialect) Types() *connector.TypeTable { return typeTable }

// DSN 由 host/port/database/username/password 生成，或直接使用 dsn；总是开启parseTime
func (Dialect) DSN(cfg connector.Config) (string, error) {
	if dsn := cfg.String("dsn", ""); dsn != "" {
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("无效的MySQL DSN: %w", err)
		}
		mc.ParseTime = true
		return mc.FormatDSN(), nil
	}
	host, err := cfg.Require("host")
	if err != nil {
		return "", err
	}
	database, err := cfg.Require("database")
	if err != nil {
		return "", err
	}
	mc := mysql.NewConfig()
	mc.User = cfg.String("username", "")
	mc.Passwd = cfg.String("password", "")
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(host, strconv.Itoa(cfg.Int("port", 3306)))
	mc.DBName = database
	mc.ParseTime = true
	mc.Timeout = time.Duration(cfg.Int("connect_timeout", 10)) * time.Second
	return mc.FormatDSN(), nil
}

// QuoteIdent 反引号引用
func (Dialect) QuoteIdent(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// TableRef MySQL中模式即数据库
func (d Dialect) TableRef(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (Dialect) PreviewTableSQL(tableRef string, limit int) string {
	return fmt.Sprintf("SELECT * FROM %s LIMIT %d", tableRef, limit)
}

func (Dialect) PreviewQuerySQL(query string, limit int) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS preview_subquery LIMIT %d", query, limit)
}

func (Dialect) TruncateSQL(tableRef string) string {
	return "TRUNCATE TABLE " + tableRef
}

func (Dialect) SchemasQuery() string {
	return `SELECT SCHEMA_NAME FROM information_schema.SCHEMATA
		WHERE SCHEMA_NAME NOT IN ('information_schema', 'mysql', 'performance_schema', 'sys')
		ORDER BY SCHEMA_NAME`
}

// TablesQuery 模式为空时使用当前数据库
func (Dialect) TablesQuery(schema string) (string, []any) {
	if schema == "" {
		return `SELECT TABLE_NAME, TABLE_SCHEMA, TABLE_ROWS FROM information_schema.TABLES
			WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
			ORDER BY TABLE_NAME`, nil
	}
	return `SELECT TABLE_NAME, TABLE_SCHEMA, TABLE_ROWS FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`, []any{schema}
}

func (Dialect) ColumnsQuery(schema, table string) (string, []any) {
	cond := "TABLE_SCHEMA = ?"
	args := []any{schema, table}
	if schema == "" {
		cond = "TABLE_SCHEMA = DATABASE()"
		args = []any{table}
	}
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE = 'YES', CHARACTER_MAXIMUM_LENGTH, COLUMN_KEY = 'PRI'
		FROM information_schema.COLUMNS
		WHERE ` + cond + ` AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, args
}
