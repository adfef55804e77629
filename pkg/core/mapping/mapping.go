// Package mapping 提供无状态的行批次改写：列映射、类型转换、默认值、常量表达式与过滤
package mapping

import (
	"strconv"
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// 转换步骤类型
const (
	TransformCast       = "cast"
	TransformDefault    = "default"
	TransformExpression = "expression"
)

// Transform 单个转换步骤（对外导出）
type Transform struct {
	Type         string `json:"type"`
	CastTo       string `json:"cast_to,omitempty"`
	DefaultValue any    `json:"default_value,omitempty"`
	Expression   string `json:"expression,omitempty"`
}

// ColumnMapping 列映射规则（对外导出）
// TargetColumn为空时沿用SourceColumn
type ColumnMapping struct {
	SourceColumn string      `json:"source_column"`
	TargetColumn string      `json:"target_column,omitempty"`
	Transforms   []Transform `json:"transforms,omitempty"`
	Skip         bool        `json:"skip,omitempty"`
}

// Target 返回目标列名
func (m ColumnMapping) Target() string {
	if m.TargetColumn == "" {
		return m.SourceColumn
	}
	return m.TargetColumn
}

// ApplyTransforms 按顺序对单个值应用转换步骤
func ApplyTransforms(v types.Value, transforms []Transform) types.Value {
	for _, t := range transforms {
		switch t.Type {
		case TransformCast:
			castTo := t.CastTo
			if castTo == "" {
				castTo = CastString
			}
			v = CastValue(v, castTo)
		case TransformDefault:
			if v.IsNull() || (v.Kind() == types.KindString && strings.TrimSpace(v.Text()) == "") {
				v = types.FromAny(t.DefaultValue)
			}
		case TransformExpression:
			v = applyExpression(v, t.Expression)
		}
	}
	return v
}

// applyExpression 仅支持常量替换：'文本' 或纯数字，其余表达式保持原值
func applyExpression(v types.Value, expr string) types.Value {
	if strings.HasPrefix(expr, "'") && strings.HasSuffix(expr, "'") {
		if len(expr) < 2 {
			return types.String("")
		}
		return types.String(expr[1 : len(expr)-1])
	}
	if isAllDigits(expr) {
		if i, err := strconv.ParseInt(expr, 10, 64); err == nil {
			return types.Int(i)
		}
		return types.Decimal(expr)
	}
	return v
}

// ApplyColumnMappings 按映射规则改写一个块
// 映射为空时原样返回；跳过的列不出现在结果中；源列缺失时取Null
func ApplyColumnMappings(rows types.Chunk, mappings []ColumnMapping) types.Chunk {
	if len(mappings) == 0 {
		return rows
	}
	out := make(types.Chunk, 0, len(rows))
	for _, row := range rows {
		next := types.NewRow()
		for _, m := range mappings {
			if m.Skip {
				continue
			}
			v := row.Value(m.SourceColumn)
			if len(m.Transforms) > 0 {
				v = ApplyTransforms(v, m.Transforms)
			}
			next.Set(m.Target(), v)
		}
		out = append(out, next)
	}
	return out
}

// SourceQuery 生成源节点的读取语句：优先使用显式query，否则按schema.table拼接
// 两者都没有时返回false
func SourceQuery(query, schema, table string) (string, bool) {
	if strings.TrimSpace(query) != "" {
		return query, true
	}
	if table == "" {
		return "", false
	}
	full := table
	if schema != "" {
		full = schema + "." + table
	}
	return "SELECT * FROM " + full, true
}
