package types

import (
	"bytes"
	"encoding/json"
)

// Row 一行数据：列名到值的映射，保持列的插入顺序（对外导出）
// 列名区分大小写且唯一
type Row struct {
	keys []string
	vals map[string]Value
}

// NewRow 创建空行
func NewRow() *Row {
	return &Row{vals: make(map[string]Value)}
}

// RowOf 按给定列名与值顺序构造一行
func RowOf(kv ...any) *Row {
	r := NewRow()
	for i := 0; i+1 < len(kv); i += 2 {
		key, _ := kv[i].(string)
		r.Set(key, FromAny(kv[i+1]))
	}
	return r
}

// Set 设置列值，新列追加到末尾
func (r *Row) Set(key string, v Value) {
	if _, ok := r.vals[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.vals[key] = v
}

// Get 读取列值
func (r *Row) Get(key string) (Value, bool) {
	v, ok := r.vals[key]
	return v, ok
}

// Value 读取列值，不存在时返回Null
func (r *Row) Value(key string) Value {
	return r.vals[key]
}

// Delete 删除列
func (r *Row) Delete(key string) {
	if _, ok := r.vals[key]; !ok {
		return
	}
	delete(r.vals, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys 按顺序返回列名（副本）
func (r *Row) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len 列数
func (r *Row) Len() int { return len(r.keys) }

// Clone 深拷贝一行
func (r *Row) Clone() *Row {
	c := &Row{keys: make([]string, len(r.keys)), vals: make(map[string]Value, len(r.vals))}
	copy(c.keys, r.keys)
	for k, v := range r.vals {
		c.vals[k] = v
	}
	return c
}

// MarshalJSON 按列顺序序列化为JSON对象
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := r.vals[k].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Chunk 有序且有限的行序列，大小受chunk_size约束（对外导出）
type Chunk []*Row

// Columns 返回块内所有列名，按首次出现顺序
func (c Chunk) Columns() []string {
	seen := make(map[string]struct{})
	var cols []string
	for _, r := range c {
		for _, k := range r.keys {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			cols = append(cols, k)
		}
	}
	return cols
}
