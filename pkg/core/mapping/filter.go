package mapping

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
	"github.com/LENAX/dataflow-engine/pkg/logger"
)

// ErrMalformedCondition 过滤条件不是 "列 操作符 值" 三段式
var ErrMalformedCondition = errors.New("过滤条件格式无效")

var whitespace = regexp.MustCompile(`\s+`)

// Filter 已解析的过滤条件（对外导出）
// 零值（空条件）放行所有行
type Filter struct {
	column   string
	operator string
	value    string
	empty    bool
}

// ParseFilter 解析 "列 操作符 值" 形式的条件
// 空条件返回放行过滤器；段数不为3时返回ErrMalformedCondition
func ParseFilter(condition string) (*Filter, error) {
	trimmed := strings.TrimSpace(condition)
	if trimmed == "" {
		return &Filter{empty: true}, nil
	}
	parts := whitespace.Split(trimmed, 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedCondition, condition)
	}
	return &Filter{
		column:   parts[0],
		operator: parts[1],
		value:    strings.Trim(parts[2], `'"`),
	}, nil
}

// Apply 返回满足条件的行
func (f *Filter) Apply(rows types.Chunk) types.Chunk {
	if f == nil || f.empty {
		return rows
	}
	out := make(types.Chunk, 0, len(rows))
	for _, r := range rows {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	return out
}

// Match 判断单行是否满足条件，空单元格永不匹配
func (f *Filter) Match(row *types.Row) bool {
	if f == nil || f.empty {
		return true
	}
	cell := row.Value(f.column)
	if cell.IsNull() {
		return false
	}
	cellStr := cell.String()
	switch f.operator {
	case "=":
		return cellStr == f.value
	case "!=":
		return cellStr != f.value
	case "LIKE":
		pattern := strings.ReplaceAll(f.value, "*", "")
		prefix := strings.HasPrefix(f.value, "*")
		suffix := strings.HasSuffix(f.value, "*")
		switch {
		case prefix && suffix:
			return strings.Contains(cellStr, pattern)
		case prefix:
			return strings.HasSuffix(cellStr, pattern)
		case suffix:
			return strings.HasPrefix(cellStr, pattern)
		default:
			return cellStr == f.value
		}
	}
	cellNum, err := strconv.ParseFloat(strings.TrimSpace(cellStr), 64)
	if err != nil {
		return false
	}
	valNum, err := strconv.ParseFloat(strings.TrimSpace(f.value), 64)
	if err != nil {
		return false
	}
	switch f.operator {
	case ">":
		return cellNum > valNum
	case "<":
		return cellNum < valNum
	case ">=":
		return cellNum >= valNum
	case "<=":
		return cellNum <= valNum
	}
	return false
}

// ApplyFilter 解析并应用条件；条件无效时记录警告并原样放行
func ApplyFilter(rows types.Chunk, condition string) types.Chunk {
	f, err := ParseFilter(condition)
	if err != nil {
		logger.L().Warnf("⚠️ [Filter] 无效的过滤条件，已跳过: %v", err)
		return rows
	}
	return f.Apply(rows)
}
