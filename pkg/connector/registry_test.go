package connector

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

type stubConnector struct{ cfg Config }

func (s *stubConnector) Kind() string { return "stub" }
func (s *stubConnector) TestConnection(context.Context) TestResult {
	return TestResult{Success: true, Message: "ok"}
}
func (s *stubConnector) ListSchemas(context.Context) ([]string, error) { return nil, nil }
func (s *stubConnector) ListTables(context.Context, string) ([]TableInfo, error) {
	return nil, nil
}
func (s *stubConnector) ListColumns(context.Context, string, string) ([]ColumnInfo, error) {
	return nil, nil
}
func (s *stubConnector) PreviewTable(context.Context, string, string, int) (*PreviewResult, error) {
	return nil, ErrUnsupported
}
func (s *stubConnector) PreviewQuery(context.Context, string, int) (*PreviewResult, error) {
	return nil, ErrUnsupported
}
func (s *stubConnector) ReadChunks(context.Context, string, int) ChunkSeq {
	return func(func(types.Chunk, error) bool) {}
}
func (s *stubConnector) WriteChunk(context.Context, string, string, types.Chunk, WriteMode, WriteOptions) (int, error) {
	return 0, ErrUnsupported
}
func (s *stubConnector) ExecuteNonQuery(context.Context, string) (int64, error) {
	return 0, ErrUnsupported
}
func (s *stubConnector) DefaultSchema() string { return "" }
func (s *stubConnector) Close() error          { return nil }

func TestRegistry(t *testing.T) {
	Register("Stub", func(cfg Config) (Connector, error) { return &stubConnector{cfg: cfg}, nil })
	defer Unregister("stub")

	c, err := New("STUB", Config{"a": 1})
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Kind())
	assert.Contains(t, Kinds(), "stub")

	assert.Panics(t, func() {
		Register("stub", func(Config) (Connector, error) { return nil, nil })
	}, "重复注册应panic")

	_, err = New("nope", nil)
	assert.True(t, errors.Is(err, ErrUnknownKind))
}

func TestRegistry_FactoryError(t *testing.T) {
	Register("broken", func(Config) (Connector, error) { return nil, errors.New("bad config") })
	defer Unregister("broken")

	_, err := New("broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad config")
}

func TestOpen_ExpandsEnv(t *testing.T) {
	t.Setenv("DATAFLOW_TEST_PASSWORD", "s3cret")
	Register("envstub", func(cfg Config) (Connector, error) { return &stubConnector{cfg: cfg}, nil })
	defer Unregister("envstub")

	c, err := Open("envstub", `{"host": "db", "password": "${DATAFLOW_TEST_PASSWORD}", "raw": "a$b", "port": 1433}`)
	require.NoError(t, err)
	cfg := c.(*stubConnector).cfg
	assert.Equal(t, "s3cret", cfg.String("password", ""))
	assert.Equal(t, "a$b", cfg.String("raw", ""), "裸$应保持原样")
	assert.Equal(t, 1433, cfg.Int("port", 0))

	_, err = Open("envstub", `{bad json`)
	assert.Error(t, err)
}
