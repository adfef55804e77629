package connector

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// CoerceFunc 将内存中的值转换为目标原生类型可接受的值
// 无法转换时返回Null，单元格降级而不是整行失败
type CoerceFunc func(types.Value) types.Value

// ReadFunc 将驱动扫描出的原始值转换为内存中的值
type ReadFunc func(raw any) types.Value

// TypeEntry 一个原生类型的读写转换规则
type TypeEntry struct {
	Coerce CoerceFunc
	Read   ReadFunc
}

// TypeTable 连接器的原生类型表（对外导出）
// 类型名大小写不敏感，带参数的类型（varchar(50)）按基础名查找
type TypeTable struct {
	entries map[string]TypeEntry
}

// NewTypeTable 创建类型表
func NewTypeTable(entries map[string]TypeEntry) *TypeTable {
	t := &TypeTable{entries: make(map[string]TypeEntry, len(entries))}
	for k, v := range entries {
		t.entries[strings.ToLower(k)] = v
	}
	return t
}

// Lookup 查找原生类型的规则
func (t *TypeTable) Lookup(nativeType string) (TypeEntry, bool) {
	if t == nil {
		return TypeEntry{}, false
	}
	name := strings.ToLower(strings.TrimSpace(nativeType))
	if e, ok := t.entries[name]; ok {
		return e, true
	}
	if i := strings.IndexByte(name, '('); i > 0 {
		name = strings.TrimSpace(name[:i])
		if e, ok := t.entries[name]; ok {
			return e, true
		}
	}
	if i := strings.IndexByte(name, ' '); i > 0 {
		if e, ok := t.entries[name[:i]]; ok {
			return e, true
		}
	}
	return TypeEntry{}, false
}

// Coerce 按目标原生类型转换值，未知类型原样返回
func (t *TypeTable) Coerce(nativeType string, v types.Value) types.Value {
	e, ok := t.Lookup(nativeType)
	if !ok || e.Coerce == nil {
		return v
	}
	return e.Coerce(v)
}

// Read 按源列原生类型转换扫描值，未知类型使用通用转换
func (t *TypeTable) Read(nativeType string, raw any) types.Value {
	e, ok := t.Lookup(nativeType)
	if !ok || e.Read == nil {
		return ReadAny(raw)
	}
	return e.Read(raw)
}

// CoerceRow 按列类型映射转换一行中的值，返回新行；columnTypes为空时返回原行
func (t *TypeTable) CoerceRow(row *types.Row, columnTypes map[string]string) *types.Row {
	if len(columnTypes) == 0 {
		return row
	}
	out := types.NewRow()
	for _, k := range row.Keys() {
		v := row.Value(k)
		if nt, ok := columnTypes[k]; ok {
			v = t.Coerce(nt, v)
		}
		out.Set(k, v)
	}
	return out
}

// ========== 预置类型规则 ==========

// IntegerType 整数类型
func IntegerType() TypeEntry { return TypeEntry{Coerce: ToInteger, Read: ReadInteger} }

// FloatType 浮点类型
func FloatType() TypeEntry { return TypeEntry{Coerce: ToFloat, Read: ReadFloat} }

// DecimalType 定点数类型
func DecimalType() TypeEntry { return TypeEntry{Coerce: ToDecimal, Read: ReadDecimal} }

// BooleanType 布尔类型
func BooleanType() TypeEntry { return TypeEntry{Coerce: ToBoolean, Read: ReadBoolean} }

// TextType 文本类型；spaceSeparated为true时日期时间以空格代替T
func TextType(spaceSeparated bool) TypeEntry {
	return TypeEntry{Coerce: ToText(spaceSeparated), Read: ReadText}
}

// DateType 日期类型
func DateType() TypeEntry { return TypeEntry{Coerce: ToDate, Read: ReadDate} }

// DateTimeType 日期时间类型
func DateTimeType() TypeEntry { return TypeEntry{Coerce: ToDateTime, Read: ReadDateTime} }

// BinaryType 二进制类型
func BinaryType() TypeEntry { return TypeEntry{Coerce: ToBytes, Read: ReadBinary} }

// ========== 写入方向：内存值 -> 原生类型 ==========

// ToInteger 转整数；布尔为0/1，非数值字符串为Null
func ToInteger(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindInt:
		return v
	case types.KindBool:
		if v.BoolValue() {
			return types.Int(1)
		}
		return types.Int(0)
	case types.KindFloat, types.KindDecimal:
		f, _ := v.AsFloat()
		return truncToInt(f)
	case types.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
		if err != nil {
			return types.Null()
		}
		return truncToInt(f)
	}
	return types.Null()
}

func truncToInt(f float64) types.Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return types.Null()
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return types.Null()
	}
	return types.Int(int64(t))
}

// ToFloat 转浮点；非数值字符串为Null
func ToFloat(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindFloat:
		return v
	case types.KindBool, types.KindInt, types.KindDecimal:
		f, ok := v.AsFloat()
		if !ok {
			return types.Null()
		}
		return types.Float(f)
	case types.KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Text()), 64)
		if err != nil {
			return types.Null()
		}
		return types.Float(f)
	}
	return types.Null()
}

// ToDecimal 转定点数，保留十进制文本
func ToDecimal(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindDecimal:
		return v
	case types.KindBool:
		if v.BoolValue() {
			return types.Decimal("1")
		}
		return types.Decimal("0")
	case types.KindInt:
		return types.Decimal(strconv.FormatInt(v.IntValue(), 10))
	case types.KindFloat:
		f := v.FloatValue()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return types.Null()
		}
		return types.Decimal(strconv.FormatFloat(f, 'f', -1, 64))
	case types.KindString:
		s := strings.TrimSpace(v.Text())
		if _, err := strconv.ParseFloat(s, 64); err != nil {
			return types.Null()
		}
		return types.Decimal(s)
	}
	return types.Null()
}

// ToBoolean 转布尔；字符串按真值集合判断，数值非0为真
func ToBoolean(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindBool:
		return v
	case types.KindInt, types.KindFloat, types.KindDecimal:
		f, ok := v.AsFloat()
		if !ok {
			return types.Null()
		}
		return types.Bool(f != 0)
	case types.KindString:
		return types.Bool(isTruthy(v.Text()))
	}
	return types.Null()
}

func isTruthy(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "t", "on":
		return true
	}
	return false
}

// ToText 转文本；日期时间序列化为ISO-8601
func ToText(spaceSeparated bool) CoerceFunc {
	return func(v types.Value) types.Value {
		switch v.Kind() {
		case types.KindNull, types.KindString:
			return v
		case types.KindDate:
			return types.String(v.ISO())
		case types.KindDateTime:
			s := v.ISO()
			if spaceSeparated {
				s = strings.Replace(s, "T", " ", 1)
			}
			return types.String(s)
		case types.KindBytes:
			return types.String(string(v.BytesValue()))
		}
		return types.String(v.String())
	}
}

// ToDate 转日期；8位YYYYMMDD整数或字符串解析为日期，无法解析为Null
func ToDate(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindDate:
		return v
	case types.KindDateTime:
		return types.Date(v.Time())
	case types.KindInt:
		return dateFromDigits(strconv.FormatInt(v.IntValue(), 10))
	case types.KindFloat, types.KindDecimal:
		f, _ := v.AsFloat()
		if f != math.Trunc(f) {
			return types.Null()
		}
		return dateFromDigits(strconv.FormatInt(int64(f), 10))
	case types.KindString:
		s := strings.TrimSpace(v.Text())
		if len(s) == 8 {
			return dateFromDigits(s)
		}
		if t, ok := ParseTimestamp(s); ok {
			return types.Date(t)
		}
	}
	return types.Null()
}

func dateFromDigits(s string) types.Value {
	if len(s) != 8 {
		return types.Null()
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return types.Null()
	}
	return types.Date(t)
}

// ToDateTime 转日期时间；日期补零点
func ToDateTime(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindDateTime:
		return v
	case types.KindDate:
		return types.DateTime(v.Time())
	case types.KindInt:
		d := dateFromDigits(strconv.FormatInt(v.IntValue(), 10))
		if d.IsNull() {
			return d
		}
		return types.DateTime(d.Time())
	case types.KindString:
		s := strings.TrimSpace(v.Text())
		if len(s) == 8 {
			if d := dateFromDigits(s); !d.IsNull() {
				return types.DateTime(d.Time())
			}
		}
		if t, ok := ParseTimestamp(s); ok {
			return types.DateTime(t)
		}
	}
	return types.Null()
}

// ToBytes 转二进制
func ToBytes(v types.Value) types.Value {
	switch v.Kind() {
	case types.KindNull, types.KindBytes:
		return v
	case types.KindString:
		return types.Bytes([]byte(v.Text()))
	}
	return types.Bytes([]byte(v.String()))
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	types.DateLayout,
}

// ParseTimestamp 按常见ISO形式解析时间
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ========== 读取方向：驱动值 -> 内存值 ==========

// ReadAny 通用转换，[]byte视为文本
func ReadAny(raw any) types.Value {
	return types.FromAny(raw)
}

// ReadInteger 读取整数
func ReadInteger(raw any) types.Value {
	switch t := raw.(type) {
	case []byte:
		return parseIntText(string(t))
	case string:
		return parseIntText(t)
	}
	return types.FromAny(raw)
}

func parseIntText(s string) types.Value {
	if i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
		return types.Int(i)
	}
	return types.String(s)
}

// ReadFloat 读取浮点
func ReadFloat(raw any) types.Value {
	switch t := raw.(type) {
	case []byte:
		return parseFloatText(string(t))
	case string:
		return parseFloatText(t)
	}
	return types.FromAny(raw)
}

func parseFloatText(s string) types.Value {
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return types.Float(f)
	}
	return types.String(s)
}

// ReadDecimal 读取定点数，保留文本精度
func ReadDecimal(raw any) types.Value {
	switch t := raw.(type) {
	case nil:
		return types.Null()
	case []byte:
		return parseDecimalText(string(t))
	case string:
		return parseDecimalText(t)
	case float64:
		return types.Decimal(strconv.FormatFloat(t, 'f', -1, 64))
	case float32:
		return types.Decimal(strconv.FormatFloat(float64(t), 'f', -1, 32))
	case int64:
		return types.Decimal(strconv.FormatInt(t, 10))
	}
	return types.FromAny(raw)
}

func parseDecimalText(s string) types.Value {
	if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return types.Decimal(s)
	}
	return types.String(s)
}

// ReadBoolean 读取布尔
func ReadBoolean(raw any) types.Value {
	switch t := raw.(type) {
	case int64:
		return types.Bool(t != 0)
	case []byte:
		return types.Bool(isTruthy(string(t)))
	case string:
		return types.Bool(isTruthy(t))
	}
	return types.FromAny(raw)
}

// ReadText 读取文本
func ReadText(raw any) types.Value {
	switch t := raw.(type) {
	case []byte:
		return types.String(string(t))
	case time.Time:
		return types.String(types.DateTime(t).ISO())
	}
	return types.FromAny(raw)
}

// ReadDate 读取日期
func ReadDate(raw any) types.Value {
	switch t := raw.(type) {
	case time.Time:
		return types.Date(t)
	case []byte:
		return readDateText(string(t))
	case string:
		return readDateText(t)
	}
	return types.FromAny(raw)
}

func readDateText(s string) types.Value {
	if t, ok := ParseTimestamp(strings.TrimSpace(s)); ok {
		return types.Date(t)
	}
	return types.String(s)
}

// ReadDateTime 读取日期时间
func ReadDateTime(raw any) types.Value {
	switch t := raw.(type) {
	case time.Time:
		return types.DateTime(t)
	case []byte:
		return readDateTimeText(string(t))
	case string:
		return readDateTimeText(t)
	}
	return types.FromAny(raw)
}

func readDateTimeText(s string) types.Value {
	if t, ok := ParseTimestamp(strings.TrimSpace(s)); ok {
		return types.DateTime(t)
	}
	return types.String(s)
}

// ReadBinary 读取二进制
func ReadBinary(raw any) types.Value {
	if b, ok := raw.([]byte); ok {
		c := make([]byte, len(b))
		copy(c, b)
		return types.Bytes(c)
	}
	return types.FromAny(raw)
}
