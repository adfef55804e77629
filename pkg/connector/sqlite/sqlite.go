// Package sqlite SQLite连接器，基于mattn/go-sqlite3
package sqlite

import (
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/connector/sqlbase"
)

// Kind 连接器类型名
const Kind = "sqlite"

func init() {
	connector.Register(Kind, func(cfg connector.Config) (connector.Connector, error) {
		return sqlbase.New(Dialect{}, cfg)
	})
}

var typeTable = connector.NewTypeTable(map[string]connector.TypeEntry{
	"integer":   connector.IntegerType(),
	"int":       connector.IntegerType(),
	"bigint":    connector.IntegerType(),
	"smallint":  connector.IntegerType(),
	"tinyint":   connector.IntegerType(),
	"real":      connector.FloatType(),
	"float":     connector.FloatType(),
	"double":    connector.FloatType(),
	"numeric":   connector.DecimalType(),
	"decimal":   connector.DecimalType(),
	"boolean":   connector.BooleanType(),
	"bool":      connector.BooleanType(),
	"text":      connector.TextType(false),
	"varchar":   connector.TextType(false),
	"char":      connector.TextType(false),
	"nvarchar":  connector.TextType(false),
	"date":      connector.DateType(),
	"datetime":  connector.DateTimeType(),
	"timestamp": connector.DateTimeType(),
	"blob":      connector.BinaryType(),
})

// Dialect SQLite方言（对外导出）
type Dialect struct{}

func (Dialect) Kind() string { return Kind }
func (Dialect) DriverName() string { return "sqlite3" }
func (Dialect) DefaultSchema() string { return "main" }
func (Dialect) MaxParams() int { return 32766 }
func (Dialect) Types() *connector.TypeTable { return typeTable }

// DSN 配置项 path（数据库文件路径）或 dsn（完整DSN）
func (Dialect) DSN(cfg connector.Config) (string, error) {
	if dsn := cfg.String("dsn", ""); dsn != "" {
		return dsn, nil
	}
	path, err := cfg.Require("path")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("file:%s?_busy_timeout=30000&_foreign_keys=on", path), nil
}

// QuoteIdent 双引号引用
func (Dialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// TableRef main模式下省略模式名
func (d Dialect) TableRef(schema, table string) string {
	if schema == "" || schema == "main" {
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

// TruncateSQL SQLite没有TRUNCATE，使用DELETE
func (Dialect) TruncateSQL(tableRef string) string {
	return "DELETE FROM " + tableRef
}

func (Dialect) SchemasQuery() string {
	return "SELECT name FROM pragma_database_list ORDER BY seq"
}

func (d Dialect) TablesQuery(schema string) (string, []any) {
	master := "sqlite_master"
	if schema != "" && schema != "main" {
		master = d.QuoteIdent(schema) + ".sqlite_master"
	}
	if schema == "" {
		schema = "main"
	}
	return fmt.Sprintf(`SELECT name, ? AS schema_name, NULL AS row_count
		FROM %s WHERE type = 'table' AND name NOT LIKE 'sqlite_%%' ORDER BY name`, master), []any{schema}
}

func (Dialect) ColumnsQuery(schema, table string) (string, []any) {
	if schema == "" {
		schema = "main"
	}
	return `SELECT name, type, CASE WHEN "notnull" = 0 THEN 1 ELSE 0 END AS nullable,
		NULL AS max_length, CASE WHEN pk > 0 THEN 1 ELSE 0 END AS is_pk
		FROM pragma_table_info(?, ?) ORDER BY cid`, []any{table, schema}
}
