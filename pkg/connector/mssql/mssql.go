// Package mssql SQL Server连接器，基于microsoft/go-mssqldb，写入走BulkCopy
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	mssqldb "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/connector/sqlbase"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// Kind 连接器类型名
const Kind = "mssql"

func init() {
	connector.Register(Kind, func(cfg connector.Config) (connector.Connector, error) {
		return sqlbase.New(Dialect{}, cfg)
	})
}

var typeTable = connector.NewTypeTable(map[string]connector.TypeEntry{
	"int":              connector.IntegerType(),
	"bigint":           connector.IntegerType(),
	"smallint":         connector.IntegerType(),
	"tinyint":          connector.IntegerType(),
	"bit":              connector.BooleanType(),
	"decimal":          connector.DecimalType(),
	"numeric":          connector.DecimalType(),
	"money":            connector.DecimalType(),
	"smallmoney":       connector.DecimalType(),
	"float":            connector.FloatType(),
	"real":             connector.FloatType(),
	"char":             connector.TextType(true),
	"varchar":          connector.TextType(true),
	"nchar":            connector.TextType(true),
	"nvarchar":         connector.TextType(true),
	"text":             connector.TextType(true),
	"ntext":            connector.TextType(true),
	"xml":              connector.TextType(true),
	"date":             connector.DateType(),
	"datetime":         connector.DateTimeType(),
	"datetime2":        connector.DateTimeType(),
	"smalldatetime":    connector.DateTimeType(),
	"datetimeoffset":   connector.DateTimeType(),
	"binary":           connector.BinaryType(),
	"varbinary":        connector.BinaryType(),
	"image":            connector.BinaryType(),
	"uniqueidentifier": {Coerce: connector.ToText(true), Read: readUniqueIdentifier},
})

// readUniqueIdentifier 驱动返回SQL Server字节序的16字节，转换为标准UUID文本
func readUniqueIdentifier(raw any) types.Value {
	b, ok := raw.([]byte)
	if !ok {
		return connector.ReadAny(raw)
	}
	var u mssqldb.UniqueIdentifier
	if err := u.Scan(b); err != nil {
		return types.String(string(b))
	}
	return types.String(u.String())
}

// Dialect SQL Server方言（对外导出）
type Dialect struct{}

var _ sqlbase.BulkWriter = Dialect{}

func (Dialect) Kind() string { return Kind }
func (Dialect) DriverName() string { return "sqlserver" }
func (Dialect) DefaultSchema() string { return "dbo" }
func (Dialect) MaxParams() int { return 2100 }
func (Dialect) Types() *connector.TypeTable { return typeTable }

// DSN 由 host/port/database/username/password 生成 sqlserver:// URL，或直接使用 dsn
func (Dialect) DSN(cfg connector.Config) (string, error) {
	dsn := cfg.String("dsn", "")
	if dsn == "" {
		host, err := cfg.Require("host")
		if err != nil {
			return "", err
		}
		database, err := cfg.Require("database")
		if err != nil {
			return "", err
		}
		q := url.Values{}
		q.Set("database", database)
		if cfg.Bool("encrypt", false) {
			q.Set("encrypt", "true")
		} else {
			q.Set("encrypt", "disable")
		}
		if cfg.Bool("trust_server_certificate", true) {
			q.Set("TrustServerCertificate", "true")
		}
		q.Set("dial timeout", strconv.Itoa(cfg.Int("connect_timeout", 10)))
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(cfg.String("username", ""), cfg.String("password", "")),
			Host:     net.JoinHostPort(host, strconv.Itoa(cfg.Int("port", 1433))),
			RawQuery: q.Encode(),
		}
		dsn = u.String()
	}
	if _, err := msdsn.Parse(dsn); err != nil {
		return "", fmt.Errorf("无效的SQL Server DSN: %w", err)
	}
	return dsn, nil
}

// QuoteIdent 方括号引用，] 转义为 ]]
func (Dialect) QuoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

func (d Dialect) TableRef(schema, table string) string {
	if schema == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(schema) + "." + d.QuoteIdent(table)
}

func (Dialect) PreviewTableSQL(tableRef string, limit int) string {
	return fmt.Sprintf("SELECT TOP %d * FROM %s", limit, tableRef)
}

func (Dialect) PreviewQuerySQL(query string, limit int) string {
	return fmt.Sprintf("SELECT TOP %d * FROM (%s) AS preview_subquery", limit, query)
}

func (Dialect) TruncateSQL(tableRef string) string {
	return "TRUNCATE TABLE " + tableRef
}

func (Dialect) SchemasQuery() string {
	return "SELECT SCHEMA_NAME FROM INFORMATION_SCHEMA.SCHEMATA ORDER BY SCHEMA_NAME"
}

func (Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT t.TABLE_NAME, t.TABLE_SCHEMA, CAST(SUM(p.rows) AS BIGINT) AS row_count
		FROM INFORMATION_SCHEMA.TABLES t
		LEFT JOIN sys.tables st ON st.name = t.TABLE_NAME AND SCHEMA_NAME(st.schema_id) = t.TABLE_SCHEMA
		LEFT JOIN sys.partitions p ON st.object_id = p.object_id AND p.index_id IN (0, 1)
		WHERE t.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		GROUP BY t.TABLE_NAME, t.TABLE_SCHEMA
		ORDER BY t.TABLE_NAME`, []any{schema}
}

func (Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			CASE WHEN c.IS_NULLABLE = 'YES' THEN 1 ELSE 0 END,
			CAST(c.CHARACTER_MAXIMUM_LENGTH AS BIGINT),
			CASE WHEN kcu.COLUMN_NAME IS NOT NULL THEN 1 ELSE 0 END AS is_pk
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
			ON kcu.TABLE_SCHEMA = c.TABLE_SCHEMA
			AND kcu.TABLE_NAME = c.TABLE_NAME
			AND kcu.COLUMN_NAME = c.COLUMN_NAME
			AND kcu.CONSTRAINT_NAME IN (
				SELECT CONSTRAINT_NAME FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS
				WHERE CONSTRAINT_TYPE = 'PRIMARY KEY'
				AND TABLE_SCHEMA = c.TABLE_SCHEMA
				AND TABLE_NAME = c.TABLE_NAME
			)
		WHERE c.TABLE_SCHEMA = ? AND c.TABLE_NAME = ?
		ORDER BY c.ORDINAL_POSITION`, []any{schema, table}
}

// WriteRows 在一个事务内可选清空目标表，再以BulkCopy写入
func (d Dialect) WriteRows(ctx context.Context, conn *sql.Conn, req sqlbase.BulkRequest) (int64, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if req.Truncate {
		if _, err := tx.ExecContext(ctx, d.TruncateSQL(req.TableRef)); err != nil {
			return 0, fmt.Errorf("清空目标表失败: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, mssqldb.CopyIn(req.TableRef, mssqldb.BulkOptions{}, req.Columns...))
	if err != nil {
		return 0, fmt.Errorf("准备BulkCopy失败: %w", err)
	}
	for i := range req.Rows {
		if _, err := stmt.ExecContext(ctx, req.Rows[i]...); err != nil {
			_ = stmt.Close()
			return 0, fmt.Errorf("BulkCopy第%d行失败: %w", i+1, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("BulkCopy提交失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("读取写入行数失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("提交事务失败: %w", err)
	}
	return n, nil
}
