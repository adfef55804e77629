// Package postgres PostgreSQL连接器，读取走pgx的database/sql驱动，写入走COPY
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/connector/sqlbase"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// Kind 连接器类型名
const Kind = "postgres"

func init() {
	connector.Register(Kind, func(cfg connector.Config) (connector.Connector, error) {
		return sqlbase.New(Dialect{}, cfg)
	})
}

var typeTable = connector.NewTypeTable(map[string]connector.TypeEntry{
	"int2":        connector.IntegerType(),
	"int4":        connector.IntegerType(),
	"int8":        connector.IntegerType(),
	"smallint":    connector.IntegerType(),
	"integer":     connector.IntegerType(),
	"bigint":      connector.IntegerType(),
	"float4":      connector.FloatType(),
	"float8":      connector.FloatType(),
	"real":        connector.FloatType(),
	"double":      connector.FloatType(),
	"numeric":     connector.DecimalType(),
	"decimal":     connector.DecimalType(),
	"bool":        connector.BooleanType(),
	"boolean":     connector.BooleanType(),
	"text":        connector.TextType(false),
	"varchar":     connector.TextType(false),
	"character":   connector.TextType(false),
	"bpchar":      connector.TextType(false),
	"uuid":        connector.TextType(false),
	"json":        connector.TextType(false),
	"jsonb":       connector.TextType(false),
	"date":        connector.DateType(),
	"timestamp":   connector.DateTimeType(),
	"timestamptz": connector.DateTimeType(),
	"bytea":       connector.BinaryType(),
})

// Dialect PostgreSQL方言（对外导出）
type Dialect struct{}

var _ sqlbase.BulkWriter = Dialect{}

func (Dialect) Kind() string { return Kind }
func (Dialect) DriverName() string { return "pgx" }
func (Dialect) DefaultSchema() string { return "public" }
func (Dialect) MaxParams() int { return 65535 }
func (Dialect) Types() *connector.TypeTable { return typeTable }

// DSN 由 host/port/database/username/password/sslmode 生成 postgres:// URL，或直接使用 dsn
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
		q.Set("sslmode", cfg.String("sslmode", "disable"))
		q.Set("connect_timeout", strconv.Itoa(cfg.Int("connect_timeout", 10)))
		u := &url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.String("username", ""), cfg.String("password", "")),
			Host:     net.JoinHostPort(host, strconv.Itoa(cfg.Int("port", 5432))),
			Path:     "/" + database,
			RawQuery: q.Encode(),
		}
		dsn = u.String()
	}
	if _, err := pgx.ParseConfig(dsn); err != nil {
		return "", fmt.Errorf("无效的PostgreSQL DSN: %w", err)
	}
	return dsn, nil
}

// QuoteIdent 双引号引用
func (Dialect) QuoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func (Dialect) TableRef(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
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
	return `SELECT schema_name FROM information_schema.schemata
		WHERE schema_name NOT IN ('pg_catalog', 'information_schema')
		AND schema_name NOT LIKE 'pg_toast%' AND schema_name NOT LIKE 'pg_temp%'
		ORDER BY schema_name`
}

func (Dialect) TablesQuery(schema string) (string, []any) {
	return `SELECT t.table_name, t.table_schema, c.reltuples::bigint AS row_count
		FROM information_schema.tables t
		LEFT JOIN pg_catalog.pg_namespace n ON n.nspname = t.table_schema
		LEFT JOIN pg_catalog.pg_class c ON c.relname = t.table_name AND c.relnamespace = n.oid
		WHERE t.table_schema = ? AND t.table_type = 'BASE TABLE'
		ORDER BY t.table_name`, []any{schema}
}

func (Dialect) ColumnsQuery(schema, table string) (string, []any) {
	return `SELECT
			c.column_name,
			c.data_type,
			c.is_nullable = 'YES',
			c.character_maximum_length::bigint,
			EXISTS (
				SELECT 1 FROM information_schema.table_constraints tc
				JOIN information_schema.key_column_usage kcu
					ON kcu.constraint_name = tc.constraint_name
					AND kcu.table_schema = tc.table_schema
					AND kcu.table_name = tc.table_name
				WHERE tc.constraint_type = 'PRIMARY KEY'
					AND tc.table_schema = c.table_schema
					AND tc.table_name = c.table_name
					AND kcu.column_name = c.column_name
			) AS is_pk
		FROM information_schema.columns c
		WHERE c.table_schema = ? AND c.table_name = ?
		ORDER BY c.ordinal_position`, []any{schema, table}
}

// WriteRows 在pgx事务内可选清空目标表，再以COPY写入
func (d Dialect) WriteRows(ctx context.Context, conn *sql.Conn, req sqlbase.BulkRequest) (int64, error) {
	rows := make([][]any, len(req.Values))
	for i, vals := range req.Values {
		row := make([]any, len(vals))
		for j, v := range vals {
			row[j] = copyValue(v)
		}
		rows[i] = row
	}

	var written int64
	err := conn.Raw(func(driverConn any) error {
		pc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("意外的驱动连接类型 %T", driverConn)
		}
		tx, err := pc.Conn().Begin(ctx)
		if err != nil {
			return fmt.Errorf("开启事务失败: %w", err)
		}
		defer tx.Rollback(ctx)

		if req.Truncate {
			if _, err := tx.Exec(ctx, d.TruncateSQL(req.TableRef)); err != nil {
				return fmt.Errorf("清空目标表失败: %w", err)
			}
		}
		ident := pgx.Identifier{req.Table}
		if req.Schema != "" {
			ident = pgx.Identifier{req.Schema, req.Table}
		}
		written, err = tx.CopyFrom(ctx, ident, req.Columns, pgx.CopyFromRows(rows))
		if err != nil {
			return fmt.Errorf("COPY写入失败: %w", err)
		}
		return tx.Commit(ctx)
	})
	return written, err
}

// copyValue 定点数以pgtype.Numeric传递，避免二进制COPY无法编码文本
func copyValue(v types.Value) any {
	if v.Kind() == types.KindDecimal {
		var n pgtype.Numeric
		if err := n.Scan(strings.TrimSpace(v.Text())); err == nil {
			return n
		}
	}
	return v.Interface()
}
