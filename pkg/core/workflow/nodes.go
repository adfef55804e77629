package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/core/mapping"
)

// 节点类型
const (
	TypeSource      = "source"
	TypeTransform   = "transform"
	TypeFilter      = "filter"
	TypeDestination = "destination"
	TypeSQLExecute  = "sqlExecute"
)

// 写入失败策略
const (
	OnErrorRollback = "rollback"
	OnErrorContinue = "continue"
)

// FlexInt 兼容数字与数字字符串的整数字段；null、空串为0
type FlexInt int

// UnmarshalJSON 实现json.Unmarshaler
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*f = 0
			return nil
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		*f = FlexInt(n)
		return nil
	}
	fv, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("无效的整数值: %s", string(b))
	}
	*f = FlexInt(int(fv))
	return nil
}

// Or 为0时返回def
func (f FlexInt) Or(def int) int {
	if f <= 0 {
		return def
	}
	return int(f)
}

// Spec 类型化的节点配置，封闭联合：每种节点类型一个实现，外加UnknownSpec
type Spec interface {
	NodeType() string
}

// SourceSpec 源节点配置
type SourceSpec struct {
	ConnectionID string  `json:"connection_id"`
	Schema       string  `json:"schema,omitempty"`
	Table        string  `json:"table,omitempty"`
	Query        string  `json:"query,omitempty"`
	ChunkSize    FlexInt `json:"chunk_size,omitempty"`
}

func (SourceSpec) NodeType() string { return TypeSource }

// SourceQuery 显式查询，否则由模式与表名生成
func (s SourceSpec) SourceQuery() (string, bool) {
	return mapping.SourceQuery(s.Query, s.Schema, s.Table)
}

// TransformSpec 转换节点配置
type TransformSpec struct {
	ColumnMappings []mapping.ColumnMapping `json:"column_mappings,omitempty"`
}

func (TransformSpec) NodeType() string { return TypeTransform }

// FilterSpec 过滤节点配置
type FilterSpec struct {
	Condition string `json:"condition,omitempty"`
}

func (FilterSpec) NodeType() string { return TypeFilter }

// DestinationSpec 目标节点配置
type DestinationSpec struct {
	ConnectionID   string                  `json:"connection_id"`
	Schema         string                  `json:"schema,omitempty"`
	Table          string                  `json:"table"`
	WriteMode      string                  `json:"write_mode,omitempty"`
	OnError        string                  `json:"on_error,omitempty"`
	BatchSize      FlexInt                 `json:"batch_size,omitempty"`
	ColumnMappings []mapping.ColumnMapping `json:"column_mappings,omitempty"`
}

func (DestinationSpec) NodeType() string { return TypeDestination }

// ErrorPolicy 缺省为rollback
func (s DestinationSpec) ErrorPolicy() string {
	if s.OnError == "" {
		return OnErrorRollback
	}
	return s.OnError
}

// SQLExecuteSpec SQL执行节点配置
type SQLExecuteSpec struct {
	ConnectionID string `json:"connection_id"`
	SQL          string `json:"sql"`
}

func (SQLExecuteSpec) NodeType() string { return TypeSQLExecute }

// UnknownSpec 未识别的节点类型
type UnknownSpec struct {
	Type string
}

func (u UnknownSpec) NodeType() string { return u.Type }

// Spec 按节点类型解码配置
func (n Node) Spec() (Spec, error) {
	raw := n.RawConfig()
	decode := func(v any) error {
		if len(raw) == 0 || string(raw) == "null" {
			return nil
		}
		if err := json.Unmarshal(raw, v); err != nil {
			return fmt.Errorf("节点 %s 配置解析失败: %w", n.ID, err)
		}
		return nil
	}

	switch n.Type {
	case TypeSource:
		var s SourceSpec
		err := decode(&s)
		return s, err
	case TypeTransform:
		var s TransformSpec
		err := decode(&s)
		return s, err
	case TypeFilter:
		var s FilterSpec
		err := decode(&s)
		return s, err
	case TypeDestination:
		var s DestinationSpec
		err := decode(&s)
		return s, err
	case TypeSQLExecute:
		var s SQLExecuteSpec
		err := decode(&s)
		return s, err
	default:
		return UnknownSpec{Type: n.Type}, nil
	}
}
