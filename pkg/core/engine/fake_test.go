package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/connector"
	"github.com/LENAX/dataflow-engine/pkg/core/types"
	"github.com/LENAX/dataflow-engine/pkg/storage"
	"github.com/LENAX/dataflow-engine/pkg/storage/memstore"
)

// fakeConnector 内存连接器：按块读出source，写入按表累积
type fakeConnector struct {
	mu         sync.Mutex
	source     types.Chunk
	readErr    error
	tables     map[string]types.Chunk
	modes      []connector.WriteMode
	failWrites map[int]bool
	writeCalls int
	onWrite    func(call int)
	executed   []string
	affected   int64
	execErr    error
	columns    []connector.ColumnInfo
	columnsErr error
	panicRead  bool
}

func newFakeConnector(rows ...*types.Row) *fakeConnector {
	return &fakeConnector{source: rows, tables: map[string]types.Chunk{}, failWrites: map[int]bool{}}
}

func (f *fakeConnector) Kind() string { return "fake" }
func (f *fakeConnector) TestConnection(context.Context) connector.TestResult {
	return connector.TestResult{Success: true, Message: "ok"}
}
func (f *fakeConnector) ListSchemas(context.Context) ([]string, error) { return []string{"main"}, nil }
func (f *fakeConnector) ListTables(context.Context, string) ([]connector.TableInfo, error) {
	return nil, nil
}
func (f *fakeConnector) ListColumns(context.Context, string, string) ([]connector.ColumnInfo, error) {
	return f.columns, f.columnsErr
}
func (f *fakeConnector) PreviewTable(context.Context, string, string, int) (*connector.PreviewResult, error) {
	return nil, connector.ErrUnsupported
}
func (f *fakeConnector) PreviewQuery(context.Context, string, int) (*connector.PreviewResult, error) {
	return nil, connector.ErrUnsupported
}

func (f *fakeConnector) ReadChunks(_ context.Context, _ string, chunkSize int) connector.ChunkSeq {
	return func(yield func(types.Chunk, error) bool) {
		if f.panicRead {
			panic("读取崩溃")
		}
		if f.readErr != nil {
			yield(nil, f.readErr)
			return
		}
		for i := 0; i < len(f.source); i += chunkSize {
			end := min(i+chunkSize, len(f.source))
			if !yield(f.source[i:end], nil) {
				return
			}
		}
	}
}

func (f *fakeConnector) WriteChunk(_ context.Context, schema, table string, rows types.Chunk, mode connector.WriteMode, _ connector.WriteOptions) (int, error) {
	f.mu.Lock()
	f.writeCalls++
	call := f.writeCalls
	hook := f.onWrite
	f.mu.Unlock()
	if hook != nil {
		hook(call)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	if f.failWrites[call] {
		return 0, fmt.Errorf("写入第%d块失败", call)
	}
	key := schema + "." + table
	if mode == connector.WriteOverwrite {
		f.tables[key] = nil
	}
	f.tables[key] = append(f.tables[key], rows...)
	return len(rows), nil
}

func (f *fakeConnector) ExecuteNonQuery(_ context.Context, sql string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.execErr != nil {
		return 0, f.execErr
	}
	f.executed = append(f.executed, sql)
	return f.affected, nil
}

func (f *fakeConnector) DefaultSchema() string { return "main" }
func (f *fakeConnector) Close() error          { return nil }

func (f *fakeConnector) table(key string) types.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tables[key]
}

type fakeResolver map[string]*fakeConnector

func (r fakeResolver) Resolve(_ context.Context, id string) (connector.Connector, error) {
	c, ok := r[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	return c, nil
}

// gn 构造一个带position与config的节点
func gn(id, typ string, cfg map[string]any) map[string]any {
	return map[string]any{
		"id":       id,
		"type":     typ,
		"position": map[string]any{"x": 0, "y": 0},
		"data":     map[string]any{"config": cfg},
	}
}

func disabled(n map[string]any) map[string]any {
	n["data"].(map[string]any)["disabled"] = true
	return n
}

func definition(t *testing.T, nodes []map[string]any, edges ...[2]string) string {
	t.Helper()
	es := make([]map[string]any, len(edges))
	for i, e := range edges {
		es[i] = map[string]any{"id": fmt.Sprintf("e%d", i), "source": e[0], "target": e[1]}
	}
	raw, err := json.Marshal(map[string]any{"nodes": nodes, "edges": es})
	require.NoError(t, err)
	return string(raw)
}

func peopleRows(n int) []*types.Row {
	rows := make([]*types.Row, n)
	for i := range rows {
		rows[i] = types.RowOf("id", i+1, "name", fmt.Sprintf("p%d", i+1), "age", 20+i*5)
	}
	return rows
}

type harness struct {
	store *memstore.Store
	src   *fakeConnector
	dst   *fakeConnector
	exec  *Executor
}

func newHarness(t *testing.T, opts ...ExecutorOption) *harness {
	t.Helper()
	h := &harness{store: memstore.New(), src: newFakeConnector(peopleRows(5)...), dst: newFakeConnector()}
	h.exec = NewExecutor(h.store, fakeResolver{"src": h.src, "dst": h.dst}, ExecutorOptions{SQLGuard: true}, opts...)
	return h
}

func (h *harness) workflow(t *testing.T, def string) *storage.Workflow {
	t.Helper()
	wf := &storage.Workflow{Name: "测试工作流", Definition: def, IsActive: true}
	require.NoError(t, h.store.SaveWorkflow(context.Background(), wf))
	return wf
}

func (h *harness) messages(t *testing.T, execID string) []string {
	t.Helper()
	logs, err := h.store.ListLogs(context.Background(), execID, 0)
	require.NoError(t, err)
	out := make([]string, len(logs))
	for i, l := range logs {
		out[i] = l.Message
	}
	return out
}

// copyPipeline src -> dst 的最小管道
func copyPipeline(t *testing.T, srcCfg, dstCfg map[string]any) string {
	src := map[string]any{"connection_id": "src", "table": "people", "chunk_size": 2}
	for k, v := range srcCfg {
		src[k] = v
	}
	dst := map[string]any{"connection_id": "dst", "table": "people_copy"}
	for k, v := range dstCfg {
		dst[k] = v
	}
	return definition(t,
		[]map[string]any{gn("d", "destination", dst), gn("s", "source", src)},
		[2]string{"s", "d"})
}

var errBoom = errors.New("boom")
