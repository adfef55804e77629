package sqlbase

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// Connector 通用SQL连接器，每个操作独立打开并关闭数据库连接（对外导出）
type Connector struct {
	dialect Dialect
	dsn     string
}

var _ connector.Connector = (*Connector)(nil)

// New 创建连接器；DSN在此时生成，配置缺失会立即报错
func New(d Dialect, cfg connector.Config) (*Connector, error) {
	dsn, err := d.DSN(cfg)
	if err != nil {
		return nil, err
	}
	return &Connector{dialect: d, dsn: dsn}, nil
}

// Dialect 返回方言
func (c *Connector) Dialect() Dialect { return c.dialect }

// Kind 连接器类型名
func (c *Connector) Kind() string { return c.dialect.Kind() }

// DefaultSchema 默认模式
func (c *Connector) DefaultSchema() string { return c.dialect.DefaultSchema() }

// Close 连接按操作打开关闭，这里无需释放
func (c *Connector) Close() error { return nil }

func (c *Connector) open(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.Open(c.dialect.DriverName(), c.dsn)
	if err != nil {
		return nil, fmt.Errorf("[%s] 打开连接失败: %w", c.Kind(), err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[%s] 连接数据库失败: %w", c.Kind(), err)
	}
	return db, nil
}

func (c *Connector) rebind(query string) string {
	return sqlx.Rebind(sqlx.BindType(c.dialect.DriverName()), query)
}

// TestConnection 执行 SELECT 1
func (c *Connector) TestConnection(ctx context.Context) connector.TestResult {
	db, err := c.open(ctx)
	if err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}
	}
	defer db.Close()
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return connector.TestResult{Success: false, Message: err.Error()}
	}
	return connector.TestResult{Success: true, Message: "连接成功"}
}

// ListSchemas 列出模式
func (c *Connector) ListSchemas(ctx context.Context) ([]string, error) {
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	var schemas []string
	if err := db.SelectContext(ctx, &schemas, c.dialect.SchemasQuery()); err != nil {
		return nil, fmt.Errorf("[%s] 查询模式列表失败: %w", c.Kind(), err)
	}
	return schemas, nil
}

// ListTables 列出模式下的表
func (c *Connector) ListTables(ctx context.Context, schema string) ([]connector.TableInfo, error) {
	if schema == "" {
		schema = c.dialect.DefaultSchema()
	}
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	query, args := c.dialect.TablesQuery(schema)
	rows, err := db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] 查询表列表失败: %w", c.Kind(), err)
	}
	defer rows.Close()

	var tables []connector.TableInfo
	for rows.Next() {
		var (
			info  connector.TableInfo
			count sql.NullInt64
		)
		if err := rows.Scan(&info.Name, &info.Schema, &count); err != nil {
			return nil, fmt.Errorf("[%s] 读取表信息失败: %w", c.Kind(), err)
		}
		if count.Valid {
			n := count.Int64
			info.RowCount = &n
		}
		tables = append(tables, info)
	}
	return tables, rows.Err()
}

// ListColumns 列出表的列
func (c *Connector) ListColumns(ctx context.Context, schema, table string) ([]connector.ColumnInfo, error) {
	if schema == "" {
		schema = c.dialect.DefaultSchema()
	}
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return c.listColumns(ctx, db, schema, table)
}

func (c *Connector) listColumns(ctx context.Context, db *sqlx.DB, schema, table string) ([]connector.ColumnInfo, error) {
	query, args := c.dialect.ColumnsQuery(schema, table)
	rows, err := db.QueryContext(ctx, c.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("[%s] 查询列信息失败: %w", c.Kind(), err)
	}
	defer rows.Close()

	var cols []connector.ColumnInfo
	for rows.Next() {
		var (
			col    connector.ColumnInfo
			maxLen sql.NullInt64
		)
		if err := rows.Scan(&col.Name, &col.DataType, &col.Nullable, &maxLen, &col.IsPrimaryKey); err != nil {
			return nil, fmt.Errorf("[%s] 读取列信息失败: %w", c.Kind(), err)
		}
		if maxLen.Valid {
			n := maxLen.Int64
			col.MaxLength = &n
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// PreviewTable 读取表的前limit行
func (c *Connector) PreviewTable(ctx context.Context, schema, table string, limit int) (*connector.PreviewResult, error) {
	if schema == "" {
		schema = c.dialect.DefaultSchema()
	}
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	cols, err := c.listColumns(ctx, db, schema, table)
	if err != nil {
		return nil, err
	}
	query := c.dialect.PreviewTableSQL(c.dialect.TableRef(schema, table), limit)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("[%s] 预览表失败: %w", c.Kind(), err)
	}
	defer rows.Close()

	data, _, err := c.scanRows(rows, limit)
	if err != nil {
		return nil, err
	}
	return &connector.PreviewResult{Columns: cols, Rows: data, TotalRows: len(data)}, nil
}

// PreviewQuery 以子查询包装执行，包装失败时退回原始语句并只取前limit行
func (c *Connector) PreviewQuery(ctx context.Context, query string, limit int) (*connector.PreviewResult, error) {
	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, c.dialect.PreviewQuerySQL(strings.TrimRight(strings.TrimSpace(query), ";"), limit))
	if err != nil {
		rows, err = db.QueryContext(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("[%s] 预览查询失败: %w", c.Kind(), err)
		}
	}
	defer rows.Close()

	data, colTypes, err := c.scanRows(rows, limit)
	if err != nil {
		return nil, err
	}
	cols := make([]connector.ColumnInfo, 0, len(colTypes))
	for _, ct := range colTypes {
		info := connector.ColumnInfo{Name: ct.Name(), DataType: ct.DatabaseTypeName(), Nullable: true}
		if nullable, ok := ct.Nullable(); ok {
			info.Nullable = nullable
		}
		if n, ok := ct.Length(); ok && n > 0 {
			info.MaxLength = &n
		}
		cols = append(cols, info)
	}
	return &connector.PreviewResult{Columns: cols, Rows: data, TotalRows: len(data)}, nil
}

// ReadChunks 流式读取，每块不超过chunkSize行
func (c *Connector) ReadChunks(ctx context.Context, query string, chunkSize int) connector.ChunkSeq {
	if chunkSize <= 0 {
		chunkSize = connector.DefaultChunkSize
	}
	return func(yield func(types.Chunk, error) bool) {
		db, err := c.open(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx, query)
		if err != nil {
			yield(nil, fmt.Errorf("[%s] 执行读取语句失败: %w", c.Kind(), err))
			return
		}
		defer rows.Close()

		colTypes, err := rows.ColumnTypes()
		if err != nil {
			yield(nil, fmt.Errorf("[%s] 读取列类型失败: %w", c.Kind(), err))
			return
		}
		chunk := make(types.Chunk, 0, chunkSize)
		for rows.Next() {
			row, err := c.scanRow(rows, colTypes)
			if err != nil {
				yield(nil, err)
				return
			}
			chunk = append(chunk, row)
			if len(chunk) == chunkSize {
				if !yield(chunk, nil) {
					return
				}
				chunk = make(types.Chunk, 0, chunkSize)
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("[%s] 读取数据失败: %w", c.Kind(), err))
			return
		}
		if len(chunk) > 0 {
			yield(chunk, nil)
		}
	}
}

func (c *Connector) scanRows(rows *sql.Rows, limit int) (types.Chunk, []*sql.ColumnType, error) {
	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, nil, fmt.Errorf("[%s] 读取列类型失败: %w", c.Kind(), err)
	}
	var out types.Chunk
	for rows.Next() {
		if limit > 0 && len(out) >= limit {
			break
		}
		row, err := c.scanRow(rows, colTypes)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("[%s] 读取数据失败: %w", c.Kind(), err)
	}
	return out, colTypes, nil
}

func (c *Connector) scanRow(rows *sql.Rows, colTypes []*sql.ColumnType) (*types.Row, error) {
	raw := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range raw {
		ptrs[i] = &raw[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("[%s] 扫描行失败: %w", c.Kind(), err)
	}
	table := c.dialect.Types()
	row := types.NewRow()
	for i, ct := range colTypes {
		row.Set(ct.Name(), table.Read(ct.DatabaseTypeName(), raw[i]))
	}
	return row, nil
}

// WriteChunk 单事务写入一个块；overwrite先清空目标表
func (c *Connector) WriteChunk(ctx context.Context, schema, table string, rows types.Chunk, mode connector.WriteMode, opts connector.WriteOptions) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if schema == "" {
		schema = c.dialect.DefaultSchema()
	}
	db, err := c.open(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("[%s] 获取连接失败: %w", c.Kind(), err)
	}
	defer conn.Close()

	columns := rows.Columns()
	values := c.rowValues(rows, columns, opts.ColumnTypes)
	req := BulkRequest{
		Schema:   schema,
		Table:    table,
		TableRef: c.dialect.TableRef(schema, table),
		Truncate: mode == connector.WriteOverwrite,
		Columns:  columns,
		Values:   values,
		Rows:     driverValues(values),
	}
	if bw, ok := c.dialect.(BulkWriter); ok {
		if _, err := bw.WriteRows(ctx, conn, req); err != nil {
			return 0, fmt.Errorf("[%s] 写入%s失败: %w", c.Kind(), req.TableRef, err)
		}
		return len(rows), nil
	}
	if err := c.insertRows(ctx, conn, req, opts.BatchSize); err != nil {
		return 0, fmt.Errorf("[%s] 写入%s失败: %w", c.Kind(), req.TableRef, err)
	}
	return len(rows), nil
}

// rowValues 按列顺序展开行并做目标类型转换，缺失列为NULL
func (c *Connector) rowValues(rows types.Chunk, columns []string, columnTypes map[string]string) [][]types.Value {
	table := c.dialect.Types()
	out := make([][]types.Value, 0, len(rows))
	for _, r := range rows {
		vals := make([]types.Value, len(columns))
		for i, col := range columns {
			v := r.Value(col)
			if nt, ok := columnTypes[col]; ok {
				v = table.Coerce(nt, v)
			}
			vals[i] = v
		}
		out = append(out, vals)
	}
	return out
}

func driverValues(values [][]types.Value) [][]any {
	out := make([][]any, len(values))
	for i, vals := range values {
		row := make([]any, len(vals))
		for j, v := range vals {
			row[j] = v.Interface()
		}
		out[i] = row
	}
	return out
}

func (c *Connector) insertRows(ctx context.Context, conn *sql.Conn, req BulkRequest, batchSize int) error {
	if batchSize <= 0 {
		batchSize = connector.DefaultBatchSize
	}
	if maxParams := c.dialect.MaxParams(); maxParams > 0 && len(req.Columns) > 0 {
		if limit := maxParams / len(req.Columns); limit < batchSize {
			batchSize = max(limit, 1)
		}
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	if req.Truncate {
		if _, err := tx.ExecContext(ctx, c.dialect.TruncateSQL(req.TableRef)); err != nil {
			return fmt.Errorf("清空目标表失败: %w", err)
		}
	}

	quoted := make([]string, len(req.Columns))
	for i, col := range req.Columns {
		quoted[i] = c.dialect.QuoteIdent(col)
	}
	rowPlaceholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(req.Columns)), ", ") + ")"
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES ", req.TableRef, strings.Join(quoted, ", "))

	for start := 0; start < len(req.Rows); start += batchSize {
		end := min(start+batchSize, len(req.Rows))
		batch := req.Rows[start:end]
		placeholders := make([]string, len(batch))
		args := make([]any, 0, len(batch)*len(req.Columns))
		for i, vals := range batch {
			placeholders[i] = rowPlaceholder
			args = append(args, vals...)
		}
		query := c.rebind(prefix + strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("插入第%d-%d行失败: %w", start+1, end, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}

// ExecuteNonQuery 执行非查询语句，驱动无法提供受影响行数时返回-1
func (c *Connector) ExecuteNonQuery(ctx context.Context, query string) (int64, error) {
	db, err := c.open(ctx)
	if err != nil {
		return 0, err
	}
	defer db.Close()
	res, err := db.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("[%s] 执行SQL失败: %w", c.Kind(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return n, nil
}
