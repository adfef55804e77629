// Package workflow 工作流定义：节点/边图的解析、节点配置的类型化与结构校验
package workflow

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/LENAX/dataflow-engine/pkg/core/dag"
)

// ErrInvalidDefinition 工作流定义无效
var ErrInvalidDefinition = errors.New("工作流定义无效")

// Position 节点在画布上的位置
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Viewport 画布视口
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// NodeData 节点数据
type NodeData struct {
	Label    string          `json:"label,omitempty"`
	Disabled bool            `json:"disabled,omitempty"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// Node 工作流节点（对外导出）
type Node struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Position *Position `json:"position,omitempty"`
	Data     *NodeData `json:"data,omitempty"`
	// Config 兼容把配置放在节点顶层的旧定义，仅在data.config缺失时使用
	Config json.RawMessage `json:"config,omitempty"`
}

// Label 显示名，缺省为节点类型
func (n Node) Label() string {
	if n.Data != nil && n.Data.Label != "" {
		return n.Data.Label
	}
	return n.Type
}

// Disabled 节点是否被禁用
func (n Node) Disabled() bool {
	return n.Data != nil && n.Data.Disabled
}

// RawConfig 节点配置原文
func (n Node) RawConfig() json.RawMessage {
	if n.Data != nil && len(n.Data.Config) > 0 && string(n.Data.Config) != "null" {
		return n.Data.Config
	}
	return n.Config
}

// Edge 有向边（对外导出）
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// Definition 工作流定义 {nodes, edges, viewport}（对外导出）
type Definition struct {
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

// Parse 解析定义JSON
func Parse(raw []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(raw, &def); err != nil {
		return nil, fmt.Errorf("%w: JSON解析失败: %v", ErrInvalidDefinition, err)
	}
	return &def, nil
}

// Node 按ID查找节点
func (d *Definition) Node(id string) (Node, bool) {
	for _, n := range d.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Upstream 以该节点为目标的边的源节点，按边列表顺序
func (d *Definition) Upstream(id string) []string {
	var out []string
	for _, e := range d.Edges {
		if e.Target == id {
			out = append(out, e.Source)
		}
	}
	return out
}

// Graph 构建节点图；边端点缺失或成环时返回错误
func (d *Definition) Graph() (*dag.DAG, error) {
	ids := make([]string, len(d.Nodes))
	for i, n := range d.Nodes {
		ids[i] = n.ID
	}
	edges := make([]dag.Edge, len(d.Edges))
	for i, e := range d.Edges {
		edges[i] = dag.Edge{Source: e.Source, Target: e.Target}
	}
	return dag.Build(ids, edges)
}

// ExecutionOrder 按拓扑序返回节点（对外导出）
func (d *Definition) ExecutionOrder() ([]Node, error) {
	g, err := d.Graph()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	ids, err := g.TopologicalSort()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	byID := make(map[string]Node, len(d.Nodes))
	for _, n := range d.Nodes {
		byID[n.ID] = n
	}
	order := make([]Node, len(ids))
	for i, id := range ids {
		order[i] = byID[id]
	}
	return order, nil
}
