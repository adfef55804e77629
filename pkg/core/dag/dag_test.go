package dag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_TopologicalOrderRespectsEdges(t *testing.T) {
	ids := []string{"dst", "tf", "src"}
	edges := []Edge{{Source: "src", Target: "tf"}, {Source: "tf", Target: "dst"}}

	d, err := Build(ids, edges)
	require.NoError(t, err, "构建DAG失败")
	order, err := d.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"src", "tf", "dst"}, order)
}

func TestBuild_TiesFollowInputOrder(t *testing.T) {
	ids := []string{"a", "b", "c", "d"}
	edges := []Edge{{Source: "a", Target: "d"}, {Source: "b", Target: "d"}}

	d, err := Build(ids, edges)
	require.NoError(t, err)
	order, err := d.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order, "同时就绪的节点应按输入顺序")
	assert.Equal(t, []string{"a", "b"}, d.Parents("d"))
	assert.Equal(t, []string{"a", "b", "c"}, d.Roots())
}

func TestBuild_RejectsCycle(t *testing.T) {
	ids := []string{"a", "b", "c"}
	edges := []Edge{{Source: "a", Target: "b"}, {Source: "b", Target: "c"}, {Source: "c", Target: "a"}}

	_, err := Build(ids, edges)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)

	_, err = Build([]string{"a"}, []Edge{{Source: "a", Target: "a"}})
	assert.ErrorIs(t, err, ErrCycle, "自环同样是环")
}

func TestBuild_RejectsUnknownEndpoint(t *testing.T) {
	_, err := Build([]string{"a"}, []Edge{{Source: "a", Target: "ghost"}})
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = Build([]string{"a", "a"}, nil)
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestBuild_DuplicateEdgesCountOnce(t *testing.T) {
	d, err := Build([]string{"a", "b"}, []Edge{{Source: "a", Target: "b"}, {Source: "a", Target: "b"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, d.Children("a"))
	order, err := d.TopologicalSort()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestLevels(t *testing.T) {
	ids := []string{"s1", "s2", "f", "dst"}
	edges := []Edge{{Source: "s1", Target: "f"}, {Source: "f", Target: "dst"}, {Source: "s2", Target: "dst"}}

	d, err := Build(ids, edges)
	require.NoError(t, err)
	levels, err := d.Levels()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"s1", "s2"}, {"f"}, {"dst"}}, levels)
}
