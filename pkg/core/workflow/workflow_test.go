package workflow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pipelineJSON = `{
	"nodes": [
		{"id": "dst", "type": "destination", "position": {"x": 400, "y": 0},
		 "data": {"label": "写入", "config": {"connection_id": "c2", "table": "people", "write_mode": "overwrite", "batch_size": "200"}}},
		{"id": "flt", "type": "filter", "position": {"x": 200, "y": 0},
		 "data": {"config": {"condition": "age >= 30"}}},
		{"id": "src", "type": "source", "position": {"x": 0, "y": 0},
		 "data": {"label": "读取", "config": {"connection_id": "c1", "schema": "dbo", "table": "people", "chunk_size": 2}}}
	],
	"edges": [
		{"id": "e1", "source": "src", "target": "flt"},
		{"id": "e2", "source": "flt", "target": "dst"}
	],
	"viewport": {"x": 0, "y": 0, "zoom": 1}
}`

func TestParse_ExecutionOrder(t *testing.T) {
	def, err := Parse([]byte(pipelineJSON))
	require.NoError(t, err, "解析定义失败")

	order, err := def.ExecutionOrder()
	require.NoError(t, err)
	ids := make([]string, len(order))
	for i, n := range order {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"src", "flt", "dst"}, ids)
	assert.Equal(t, []string{"flt"}, def.Upstream("dst"))
	assert.Equal(t, "filter", order[1].Label(), "无label时使用节点类型")
}

func TestNode_Spec(t *testing.T) {
	def, err := Parse([]byte(pipelineJSON))
	require.NoError(t, err)

	src, _ := def.Node("src")
	spec, err := src.Spec()
	require.NoError(t, err)
	s, ok := spec.(SourceSpec)
	require.True(t, ok, "source节点应解码为SourceSpec")
	assert.Equal(t, 2, s.ChunkSize.Or(5000))
	query, ok := s.SourceQuery()
	require.True(t, ok)
	assert.Equal(t, "SELECT * FROM dbo.people", query)

	dst, _ := def.Node("dst")
	spec, err = dst.Spec()
	require.NoError(t, err)
	d := spec.(DestinationSpec)
	assert.Equal(t, 200, d.BatchSize.Or(500), "字符串形式的batch_size也应被接受")
	assert.Equal(t, OnErrorRollback, d.ErrorPolicy())
	assert.Equal(t, "overwrite", d.WriteMode)
}

func TestNode_SpecFallsBackToTopLevelConfig(t *testing.T) {
	n := Node{ID: "x", Type: TypeSQLExecute, Config: []byte(`{"connection_id": "c1", "sql": "DELETE FROM t"}`)}
	spec, err := n.Spec()
	require.NoError(t, err)
	assert.Equal(t, SQLExecuteSpec{ConnectionID: "c1", SQL: "DELETE FROM t"}, spec)

	spec, err = Node{ID: "y", Type: "webhook"}.Spec()
	require.NoError(t, err)
	assert.Equal(t, UnknownSpec{Type: "webhook"}, spec)
}

func TestValidate_Valid(t *testing.T) {
	res := Validate([]byte(pipelineJSON))
	assert.True(t, res.Valid, "合法定义应通过校验: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
	assert.NoError(t, res.Err())
}

func TestValidate_StructuralErrors(t *testing.T) {
	res := Validate([]byte(`{"nodes": [{"type": "source"}, {"id": "b", "position": {"x": 1}}], "edges": [{"source": "a", "target": "b"}]}`))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Errors, "节点 0: 缺少id")
	assert.Contains(t, res.Errors, "节点 0: position缺失或无效")
	assert.Contains(t, res.Errors, "节点 1: 缺少type")
	assert.Contains(t, res.Errors, "节点 1: position缺失或无效")
	assert.Contains(t, res.Errors, "边 0: source缺失或无效")
	assert.Contains(t, res.Warnings, "节点 0: 没有data字段")
	assert.Contains(t, res.Warnings, "没有destination节点")
	assert.ErrorIs(t, res.Err(), ErrInvalidDefinition)
}

func TestValidate_MissingArrays(t *testing.T) {
	res := Validate([]byte(`{"nodes": {}}`))
	assert.False(t, res.Valid)
	assert.NotEmpty(t, res.Errors)

	res = Validate([]byte(`not json`))
	assert.Equal(t, []string{"无效的JSON定义"}, res.Errors)
}

func TestValidate_Cycle(t *testing.T) {
	res := Validate([]byte(`{
		"nodes": [
			{"id": "a", "type": "source", "position": {"x": 0, "y": 0}, "data": {}},
			{"id": "b", "type": "destination", "position": {"x": 0, "y": 0}, "data": {}}
		],
		"edges": [{"source": "a", "target": "b"}, {"source": "b", "target": "a"}]
	}`))
	assert.False(t, res.Valid, "环应导致校验失败")
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "循环依赖")
}

func TestFlexInt(t *testing.T) {
	var s SourceSpec
	require.NoError(t, json.Unmarshal([]byte(`{"chunk_size": null}`), &s))
	assert.Equal(t, 5000, s.ChunkSize.Or(5000))
	require.NoError(t, json.Unmarshal([]byte(`{"chunk_size": "1000"}`), &s))
	assert.Equal(t, 1000, s.ChunkSize.Or(5000))
	require.NoError(t, json.Unmarshal([]byte(`{"chunk_size": 250.0}`), &s))
	assert.Equal(t, 250, s.ChunkSize.Or(5000))
	assert.Error(t, json.Unmarshal([]byte(`{"chunk_size": "many"}`), &s))
}
