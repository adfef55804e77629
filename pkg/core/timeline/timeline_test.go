package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/storage"
)

func TestBuild(t *testing.T) {
	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	at := func(sec int) time.Time { return base.Add(time.Duration(sec) * time.Second) }
	started, finished := at(0), at(20)
	exec := &storage.Execution{ID: "exec-1", StartedAt: &started, FinishedAt: &finished}

	logs := []*storage.ExecutionLog{
		{ID: 1, Message: "Workflow started: 同步", CreatedAt: at(0)},
		{ID: 2, NodeID: "src", Message: "Node running: [读取订单] (source)", CreatedAt: at(1)},
		{ID: 3, NodeID: "sql", Message: "Node running: [清理] (sqlExecute)", CreatedAt: at(2)},
		{ID: 4, NodeID: "sql", Message: "SQL completed. Affected rows: 12", CreatedAt: at(3)},
		{ID: 5, NodeID: "dst", Message: "Node running: [写入] (destination)", CreatedAt: at(4)},
		{ID: 6, NodeID: "src", Message: "Reading source: SELECT * FROM orders", CreatedAt: at(5)},
		{ID: 7, NodeID: "src", Message: "Chunk 1: 100 rows read", CreatedAt: at(6)},
		{ID: 8, NodeID: "dst", Message: "Chunk 1: 100 rows written (total: 100)", CreatedAt: at(7)},
		{ID: 9, NodeID: "src", Message: "Chunk 2: 30 rows read", CreatedAt: at(8)},
		{ID: 10, NodeID: "dst", Level: storage.LevelError, Message: "Chunk 2 write error (30 rows): duplicate key", CreatedAt: at(9)},
		{ID: 11, NodeID: "src", Message: "Read complete (2 chunks)", CreatedAt: at(10)},
		{ID: 12, Message: "Workflow completed. 100 rows transferred.", CreatedAt: at(11)},
	}

	tl := Build(exec, logs)
	assert.Equal(t, "exec-1", tl.ExecutionID)
	assert.Equal(t, 20.0, tl.TotalDurationSeconds)
	require.Len(t, tl.Nodes, 3, "无node_id的日志不计入节点")

	src, sql, dst := tl.Nodes[0], tl.Nodes[1], tl.Nodes[2]
	assert.Equal(t, "src", src.NodeID)
	assert.Equal(t, "读取订单", src.NodeLabel)
	assert.Equal(t, int64(130), src.RowCount, "源节点行数为各块读取行数之和")
	assert.Equal(t, 9.0, src.DurationSeconds)
	assert.Equal(t, StatusSuccess, src.Status)

	assert.Equal(t, "清理", sql.NodeLabel)
	assert.Equal(t, int64(12), sql.RowCount)

	assert.Equal(t, "写入", dst.NodeLabel)
	assert.Equal(t, int64(100), dst.RowCount, "目标节点行数为累计写入的最大值")
	assert.Equal(t, StatusFailed, dst.Status, "存在error日志即为failed")
	assert.Equal(t, at(4), dst.StartTime)
	assert.Equal(t, at(9), dst.EndTime)
}

func TestBuild_Empty(t *testing.T) {
	tl := Build(&storage.Execution{ID: "exec-2"}, nil)
	assert.NotNil(t, tl.Nodes)
	assert.Empty(t, tl.Nodes)
	assert.Zero(t, tl.TotalDurationSeconds)
	assert.Nil(t, tl.StartedAt)
}

func TestBuild_UnlabelledNodeUsesID(t *testing.T) {
	now := time.Now()
	tl := Build(&storage.Execution{ID: "e"}, []*storage.ExecutionLog{
		{NodeID: "n1", Level: storage.LevelWarning, Message: "Node skipped (disabled): n1 (n1)", CreatedAt: now},
	})
	require.Len(t, tl.Nodes, 1)
	assert.Equal(t, "n1", tl.Nodes[0].NodeLabel)
	assert.Equal(t, StatusSuccess, tl.Nodes[0].Status)
	assert.Zero(t, tl.Nodes[0].RowCount)
}
