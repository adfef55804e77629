package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/LENAX/dataflow-engine/pkg/core/dag"
)

// definitionSchema 定义的外层结构：nodes与edges必须是对象数组
const definitionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["nodes", "edges"],
	"properties": {
		"nodes": {"type": "array", "items": {"type": "object"}},
		"edges": {"type": "array", "items": {"type": "object"}},
		"viewport": {"type": ["object", "null"]}
	}
}`

var compiledSchema = jsonschema.MustCompileString("definition.json", definitionSchema)

// ValidationResult 校验结果（对外导出）
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// Err 无效时返回包装了ErrInvalidDefinition的错误
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(r.Errors, "; "))
}

// Validate 校验定义JSON（对外导出）
// 结构错误、节点缺少id/type/position、边端点不存在、成环均为错误；
// 缺少data、没有source或destination节点为警告
func Validate(raw []byte) ValidationResult {
	res := ValidationResult{Errors: []string{}, Warnings: []string{}}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		res.Errors = append(res.Errors, "无效的JSON定义")
		return res
	}
	if err := compiledSchema.Validate(doc); err != nil {
		res.Errors = append(res.Errors, schemaErrors(err)...)
		return res
	}

	obj := doc.(map[string]any)
	nodes, _ := obj["nodes"].([]any)
	edges, _ := obj["edges"].([]any)

	ids := make(map[string]bool, len(nodes))
	hasSource, hasDestination := false, false
	for i, item := range nodes {
		node := item.(map[string]any)
		id, ok := node["id"].(string)
		if !ok || id == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("节点 %d: 缺少id", i))
		} else if ids[id] {
			res.Errors = append(res.Errors, fmt.Sprintf("节点 %d: id重复 %q", i, id))
		} else {
			ids[id] = true
		}
		typ, ok := node["type"].(string)
		if !ok || typ == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("节点 %d: 缺少type", i))
		}
		if !validPosition(node["position"]) {
			res.Errors = append(res.Errors, fmt.Sprintf("节点 %d: position缺失或无效", i))
		}
		if _, ok := node["data"]; !ok {
			res.Warnings = append(res.Warnings, fmt.Sprintf("节点 %d: 没有data字段", i))
		}
		switch typ {
		case TypeSource:
			hasSource = true
		case TypeDestination:
			hasDestination = true
		}
	}

	edgesOK := true
	for i, item := range edges {
		edge := item.(map[string]any)
		if src, ok := edge["source"].(string); !ok || !ids[src] {
			res.Errors = append(res.Errors, fmt.Sprintf("边 %d: source缺失或无效", i))
			edgesOK = false
		}
		if tgt, ok := edge["target"].(string); !ok || !ids[tgt] {
			res.Errors = append(res.Errors, fmt.Sprintf("边 %d: target缺失或无效", i))
			edgesOK = false
		}
	}

	if !hasSource {
		res.Warnings = append(res.Warnings, "没有source节点")
	}
	if !hasDestination {
		res.Warnings = append(res.Warnings, "没有destination节点")
	}

	if len(res.Errors) == 0 && edgesOK {
		def, err := Parse(raw)
		if err != nil {
			res.Errors = append(res.Errors, err.Error())
		} else if _, err := def.Graph(); err != nil {
			if errors.Is(err, dag.ErrCycle) {
				res.Errors = append(res.Errors, "工作流存在循环依赖: "+err.Error())
			} else {
				res.Errors = append(res.Errors, err.Error())
			}
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}

func validPosition(v any) bool {
	pos, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, xok := pos["x"].(float64)
	_, yok := pos["y"].(float64)
	return xok && yok
}

// schemaErrors 展开jsonschema的嵌套错误
func schemaErrors(err error) []string {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []string{"定义结构无效: " + err.Error()}
	}
	var out []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			out = append(out, fmt.Sprintf("定义结构无效: %s %s", loc, e.Message))
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(verr)
	return out
}
