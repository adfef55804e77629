// Package dag 基于go-dag构建工作流节点图，提供环检测与确定性的拓扑排序
package dag

import (
	"errors"
	"fmt"

	godag "github.com/begmaroman/go-dag"
)

var (
	// ErrCycle 图中存在环
	ErrCycle = errors.New("检测到循环依赖")
	// ErrUnknownNode 边引用了不存在的节点
	ErrUnknownNode = errors.New("边引用了不存在的节点")
	// ErrDuplicateNode 节点ID重复
	ErrDuplicateNode = errors.New("节点ID重复")
)

// Edge 有向边 Source -> Target（对外导出）
type Edge struct {
	Source string
	Target string
}

// vertex go-dag的顶点，仅携带ID
type vertex struct {
	id string
}

func (v *vertex) ID() string { return v.id }

// DAG 有向无环图（对外导出）
// 顶点与边保留输入顺序，拓扑排序中同时就绪的节点按输入顺序出队
type DAG struct {
	graph    *godag.DAG[*vertex]
	order    []string
	index    map[string]int
	children map[string][]string
	parents  map[string][]string
}

// Build 由节点ID列表与边列表构建DAG（对外导出）
// 重复边只计一次；边端点不存在返回ErrUnknownNode；成环返回ErrCycle
func Build(ids []string, edges []Edge) (*DAG, error) {
	d := &DAG{
		graph:    godag.NewDAG[*vertex](),
		order:    make([]string, 0, len(ids)),
		index:    make(map[string]int, len(ids)),
		children: make(map[string][]string, len(ids)),
		parents:  make(map[string][]string, len(ids)),
	}
	for _, id := range ids {
		if _, exists := d.index[id]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateNode, id)
		}
		if _, err := d.graph.AddVertex(&vertex{id: id}); err != nil {
			return nil, fmt.Errorf("添加节点失败: %s, Error=%w", id, err)
		}
		d.index[id] = len(d.order)
		d.order = append(d.order, id)
	}

	for _, e := range edges {
		if _, ok := d.index[e.Source]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s (源节点 %q)", ErrUnknownNode, e.Source, e.Target, e.Source)
		}
		if _, ok := d.index[e.Target]; !ok {
			return nil, fmt.Errorf("%w: %s -> %s (目标节点 %q)", ErrUnknownNode, e.Source, e.Target, e.Target)
		}
		if e.Source == e.Target {
			return nil, fmt.Errorf("%w: %s -> %s", ErrCycle, e.Source, e.Target)
		}
		if isEdge, _ := d.graph.IsEdge(e.Source, e.Target); isEdge {
			continue
		}
		// 端点、自环与重复边已在上面排除，go-dag此处只会因成环拒绝
		if err := d.graph.AddEdge(e.Source, e.Target); err != nil {
			return nil, fmt.Errorf("%w: %s -> %s (%v)", ErrCycle, e.Source, e.Target, err)
		}
		d.children[e.Source] = append(d.children[e.Source], e.Target)
		d.parents[e.Target] = append(d.parents[e.Target], e.Source)
	}
	return d, nil
}

// Len 节点数
func (d *DAG) Len() int { return len(d.order) }

// Parents 节点的直接上游，按边的输入顺序
func (d *DAG) Parents(id string) []string { return d.parents[id] }

// Children 节点的直接下游，按边的输入顺序
func (d *DAG) Children(id string) []string { return d.children[id] }

// Roots 入度为0的节点，按输入顺序
func (d *DAG) Roots() []string {
	roots := make([]string, 0)
	for _, id := range d.order {
		if len(d.parents[id]) == 0 {
			roots = append(roots, id)
		}
	}
	return roots
}

// TopologicalSort Kahn算法排序（对外导出）
// 初始就绪节点按输入顺序入队，出队节点的下游按边顺序检查
func (d *DAG) TopologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(d.order))
	for _, id := range d.order {
		inDegree[id] = len(d.parents[id])
	}

	queue := d.Roots()
	order := make([]string, 0, len(d.order))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, child := range d.children[id] {
			inDegree[child]--
			if inDegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}

	if len(order) != len(d.order) {
		return nil, fmt.Errorf("%w: %d 个节点无法排序", ErrCycle, len(d.order)-len(order))
	}
	return order, nil
}

// Levels 按层分组的拓扑序，同层节点互不依赖
func (d *DAG) Levels() ([][]string, error) {
	order, err := d.TopologicalSort()
	if err != nil {
		return nil, err
	}
	depth := make(map[string]int, len(order))
	var levels [][]string
	for _, id := range order {
		lvl := 0
		for _, p := range d.parents[id] {
			lvl = max(lvl, depth[p]+1)
		}
		depth[id] = lvl
		if lvl == len(levels) {
			levels = append(levels, nil)
		}
		levels[lvl] = append(levels[lvl], id)
	}
	return levels, nil
}
