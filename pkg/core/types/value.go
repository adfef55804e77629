package types

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind 行内单元格的值类型（对外导出）
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindDate
	KindDateTime
	KindBytes
)

// String 返回类型名
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindDate:
		return "date"
	case KindDateTime:
		return "datetime"
	case KindBytes:
		return "bytes"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

const (
	// DateLayout 日期的ISO格式
	DateLayout = "2006-01-02"
	// DateTimeLayout 日期时间的ISO格式（T分隔）
	DateTimeLayout = "2006-01-02T15:04:05"
)

// Value 单元格值，带标签的联合体（对外导出）
// 零值即为Null
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	t    time.Time
	raw  []byte
}

// Null 返回空值
func Null() Value { return Value{} }

// Bool 构造布尔值
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Int 构造整数值
func Int(i int64) Value { return Value{kind: KindInt, i: i} }

// Float 构造浮点值
func Float(f float64) Value { return Value{kind: KindFloat, f: f} }

// Decimal 构造定点数值，保留原始文本以免精度丢失
func Decimal(text string) Value { return Value{kind: KindDecimal, s: strings.TrimSpace(text)} }

// String 构造字符串值
func String(s string) Value { return Value{kind: KindString, s: s} }

// Date 构造日期值，时间部分被截断
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{kind: KindDate, t: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// DateTime 构造日期时间值
func DateTime(t time.Time) Value { return Value{kind: KindDateTime, t: t} }

// Bytes 构造二进制值
func Bytes(b []byte) Value { return Value{kind: KindBytes, raw: b} }

// Kind 返回值类型
func (v Value) Kind() Kind { return v.kind }

// IsNull 是否为空值
func (v Value) IsNull() bool { return v.kind == KindNull }

// BoolValue 返回布尔内容，仅在KindBool时有意义
func (v Value) BoolValue() bool { return v.b }

// IntValue 返回整数内容，仅在KindInt时有意义
func (v Value) IntValue() int64 { return v.i }

// FloatValue 返回浮点内容，仅在KindFloat时有意义
func (v Value) FloatValue() float64 { return v.f }

// Time 返回时间内容，仅在KindDate/KindDateTime时有意义
func (v Value) Time() time.Time { return v.t }

// BytesValue 返回二进制内容，仅在KindBytes时有意义
func (v Value) BytesValue() []byte { return v.raw }

// Text 返回字符串或定点数的原始文本
func (v Value) Text() string { return v.s }

// IsNumeric 是否为数值类型（整数/浮点/定点）
func (v Value) IsNumeric() bool {
	return v.kind == KindInt || v.kind == KindFloat || v.kind == KindDecimal
}

// AsFloat 以float64返回数值，非数值或无法解析时ok为false
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindInt:
		return float64(v.i), true
	case KindFloat:
		return v.f, true
	case KindDecimal:
		f, err := strconv.ParseFloat(v.s, 64)
		return f, err == nil
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// String 返回值的展示形式，过滤条件比较时使用
// 浮点数总带小数位，布尔为True/False，日期时间以空格分隔
func (v Value) String() string {
	switch v.kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "True"
		}
		return "False"
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindFloat:
		return formatFloat(v.f)
	case KindDecimal, KindString:
		return v.s
	case KindDate:
		return v.t.Format(DateLayout)
	case KindDateTime:
		return strings.Replace(v.ISO(), "T", " ", 1)
	case KindBytes:
		return string(v.raw)
	default:
		return ""
	}
}

// ISO 返回日期/日期时间的ISO-8601形式，其他类型等同String()
func (v Value) ISO() string {
	switch v.kind {
	case KindDate:
		return v.t.Format(DateLayout)
	case KindDateTime:
		s := v.t.Format(DateTimeLayout)
		if us := v.t.Nanosecond() / 1000; us != 0 {
			s += fmt.Sprintf(".%06d", us)
		}
		return s
	default:
		return v.String()
	}
}

// Interface 返回驱动可接受的Go原生值
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindDecimal, KindString:
		return v.s
	case KindDate, KindDateTime:
		return v.t
	case KindBytes:
		return v.raw
	default:
		return nil
	}
}

// Equal 判断两个值的类型与内容是否一致
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindDecimal, KindString:
		return v.s == o.s
	case KindDate, KindDateTime:
		return v.t.Equal(o.t)
	case KindBytes:
		return string(v.raw) == string(o.raw)
	}
	return false
}

// MarshalJSON 序列化为JSON标量
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindInt:
		return json.Marshal(v.i)
	case KindFloat:
		if math.IsNaN(v.f) || math.IsInf(v.f, 0) {
			return []byte("null"), nil
		}
		return json.Marshal(v.f)
	case KindDecimal:
		if isJSONNumber(v.s) {
			return []byte(v.s), nil
		}
		return json.Marshal(v.s)
	case KindString:
		return json.Marshal(v.s)
	case KindDate, KindDateTime:
		return json.Marshal(v.ISO())
	case KindBytes:
		return json.Marshal(base64.StdEncoding.EncodeToString(v.raw))
	}
	return []byte("null"), nil
}

// isJSONNumber 文本可原样作为JSON数字输出（排除NaN、+5、空串等）
func isJSONNumber(s string) bool {
	if _, err := strconv.ParseFloat(s, 64); err != nil {
		return false
	}
	return json.Valid([]byte(s))
}

// FromAny 将驱动或JSON解码得到的Go值转换为Value（对外导出）
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return Int(int64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		if t > math.MaxInt64 {
			return Decimal(strconv.FormatUint(t, 10))
		}
		return Int(int64(t))
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return Int(i)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return String(t.String())
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case time.Time:
		return DateTime(t)
	case fmt.Stringer:
		return String(t.String())
	default:
		return String(fmt.Sprint(t))
	}
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}
