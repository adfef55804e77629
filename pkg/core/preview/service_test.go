package preview

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/cache"
	"github.com/LENAX/dataflow-engine/pkg/core/mapping"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
	"github.com/LENAX/dataflow-engine/pkg/sqlguard"
)

// countingConnector 记录元数据调用次数
type countingConnector struct {
	schemaCalls int
	columnCalls int
	rows        types.Chunk
	lastQuery   string
	lastLimit   int
}

func (c *countingConnector) Kind() string { return "counting" }
func (c *countingConnector) TestConnection(context.Context) connector.TestResult {
	return connector.TestResult{Success: true, Message: "连接成功"}
}
func (c *countingConnector) ListSchemas(context.Context) ([]string, error) {
	c.schemaCalls++
	return []string{"dbo", "sales"}, nil
}
func (c *countingConnector) ListTables(context.Context, string) ([]connector.TableInfo, error) {
	return []connector.TableInfo{{Name: "orders", Schema: "sales"}}, nil
}
func (c *countingConnector) ListColumns(context.Context, string, string) ([]connector.ColumnInfo, error) {
	c.columnCalls++
	return []connector.ColumnInfo{{Name: "id", DataType: "int"}, {Name: "amount", DataType: "decimal"}}, nil
}
func (c *countingConnector) PreviewTable(_ context.Context, _, _ string, limit int) (*connector.PreviewResult, error) {
	return c.take(limit), nil
}
func (c *countingConnector) PreviewQuery(_ context.Context, query string, limit int) (*connector.PreviewResult, error) {
	c.lastQuery = query
	return c.take(limit), nil
}
func (c *countingConnector) take(limit int) *connector.PreviewResult {
	c.lastLimit = limit
	rows := c.rows
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return &connector.PreviewResult{
		Columns:   []connector.ColumnInfo{{Name: "id", DataType: "int"}, {Name: "amount", DataType: "decimal"}},
		Rows:      rows,
		TotalRows: len(rows),
	}
}
func (c *countingConnector) ReadChunks(context.Context, string, int) connector.ChunkSeq {
	return func(func(types.Chunk, error) bool) {}
}
func (c *countingConnector) WriteChunk(context.Context, string, string, types.Chunk, connector.WriteMode, connector.WriteOptions) (int, error) {
	return 0, connector.ErrUnsupported
}
func (c *countingConnector) ExecuteNonQuery(context.Context, string) (int64, error) {
	return 0, connector.ErrUnsupported
}
func (c *countingConnector) DefaultSchema() string { return "dbo" }
func (c *countingConnector) Close() error          { return nil }

type mapResolver map[string]connector.Connector

func (r mapResolver) Resolve(_ context.Context, id string) (connector.Connector, error) {
	if c, ok := r[id]; ok {
		return c, nil
	}
	return nil, errors.New("连接不存在: " + id)
}

func orders(n int) types.Chunk {
	rows := make(types.Chunk, n)
	for i := range rows {
		rows[i] = types.RowOf("id", i+1, "amount", float64(i)*1.5)
	}
	return rows
}

func newService(t *testing.T, conn *countingConnector) *Service {
	t.Helper()
	c := cache.NewMemoryCache(time.Minute, 0)
	t.Cleanup(c.Close)
	return NewService(mapResolver{"c1": conn}, c, Options{RowLimit: 3, SQLGuard: true})
}

func TestService_MetadataIsCached(t *testing.T) {
	conn := &countingConnector{}
	s := newService(t, conn)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		schemas, err := s.ListSchemas(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, []string{"dbo", "sales"}, schemas)
		_, err = s.ListColumns(ctx, "c1", "sales", "orders")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, conn.schemaCalls, "模式列表应命中缓存")
	assert.Equal(t, 1, conn.columnCalls)

	s.InvalidateConnection("c1")
	_, err := s.ListSchemas(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, conn.schemaCalls, "清除后重新加载")

	tables, err := s.ListTables(ctx, "c1", "sales")
	require.NoError(t, err)
	assert.Equal(t, "orders", tables[0].Name)
}

func TestService_ErrorsAreNotCached(t *testing.T) {
	s := newService(t, &countingConnector{})
	_, err := s.ListSchemas(context.Background(), "missing")
	assert.ErrorContains(t, err, "missing")
}

func TestService_PreviewTruncation(t *testing.T) {
	conn := &countingConnector{rows: orders(5)}
	s := newService(t, conn)
	ctx := context.Background()

	res, err := s.PreviewTable(ctx, "c1", "sales", "orders", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, conn.lastLimit, "未指定limit时使用默认值")
	assert.Equal(t, 3, res.TotalRows)
	assert.True(t, res.Truncated, "行数达到limit即视为截断")

	res, err = s.PreviewTable(ctx, "c1", "sales", "orders", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalRows)
	assert.False(t, res.Truncated)

	_, err = s.PreviewTable(ctx, "c1", "sales", "orders", MaxRowLimit+1)
	require.NoError(t, err)
	assert.Equal(t, MaxRowLimit, conn.lastLimit)
}

func TestService_PreviewEmpty(t *testing.T) {
	s := newService(t, &countingConnector{})
	res, err := s.PreviewQuery(context.Background(), "c1", "SELECT 1 WHERE 1=0", 10)
	require.NoError(t, err)
	assert.NotNil(t, res.Rows)
	assert.Zero(t, res.TotalRows)
	assert.False(t, res.Truncated)
}

func TestService_Guard(t *testing.T) {
	s := newService(t, &countingConnector{})
	ctx := context.Background()

	_, err := s.PreviewQuery(ctx, "c1", "SELECT * FROM OPENROWSET('x')", 10)
	assert.ErrorIs(t, err, sqlguard.ErrDangerousSQL)

	_, err = s.PreviewTable(ctx, "c1", "sales", "orders; DROP TABLE x", 10)
	assert.ErrorIs(t, err, ErrInvalidIdentifier)

	_, err = s.PreviewQuery(ctx, "c1", "   ", 10)
	assert.Error(t, err, "空查询")
}

func TestService_PreviewWithMapping(t *testing.T) {
	conn := &countingConnector{rows: orders(2)}
	s := newService(t, conn)

	res, err := s.PreviewWithMapping(context.Background(), MappingRequest{
		ConnectionID: "c1",
		Schema:       "sales",
		Table:        "orders",
		ColumnMappings: []mapping.ColumnMapping{
			{SourceColumn: "id", TargetColumn: "order_id"},
			{SourceColumn: "amount", Transforms: []mapping.Transform{{Type: mapping.TransformCast, CastTo: "string"}}},
		},
		Limit: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM sales.orders", conn.lastQuery)
	require.Len(t, res.Columns, 2)
	assert.Equal(t, "order_id", res.Columns[0].Name)
	assert.Equal(t, "int", res.Columns[0].DataType, "无转换的列沿用源类型")
	assert.Empty(t, res.Columns[1].DataType)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, []string{"order_id", "amount"}, res.Rows[0].Keys())
	assert.EqualValues(t, 2, res.Rows[1].Value("order_id").IntValue())

	_, err = s.PreviewWithMapping(context.Background(), MappingRequest{ConnectionID: "c1"})
	assert.Error(t, err, "缺少table与query")
}

func TestService_TestConnection(t *testing.T) {
	s := newService(t, &countingConnector{})
	ctx := context.Background()

	res := s.TestConnection(ctx, "c1")
	assert.True(t, res.Success)

	res = s.TestConnection(ctx, "missing")
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "missing")

	res = TestRaw(ctx, "no-such-kind", `{}`)
	assert.False(t, res.Success)
}
