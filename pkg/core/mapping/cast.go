package mapping

import (
	"math"
	"strconv"
	"strings"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

// 映射转换支持的目标类型
const (
	CastString    = "string"
	CastInteger   = "integer"
	CastFloat     = "float"
	CastBoolean   = "boolean"
	CastDate      = "date"
	CastDateTime  = "datetime"
	CastTimestamp = "timestamp"
)

// TruthyTokens 视为true的字符串集合（小写比较）
var TruthyTokens = map[string]struct{}{
	"1": {}, "true": {}, "yes": {}, "t": {}, "on": {},
}

// IsTruthy 判断字符串是否属于true集合，大小写不敏感
func IsTruthy(s string) bool {
	_, ok := TruthyTokens[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// CastValue 将值转换为目标类型，转换失败时返回原值
// 空值保持为空；date/datetime转换的结果是ISO字符串
func CastValue(v types.Value, castTo string) types.Value {
	if v.IsNull() {
		return v
	}
	switch castTo {
	case CastString:
		switch v.Kind() {
		case types.KindDate, types.KindDateTime:
			return types.String(v.ISO())
		}
		return types.String(v.String())

	case CastInteger:
		switch v.Kind() {
		case types.KindBool:
			if v.BoolValue() {
				return types.Int(1)
			}
			return types.Int(0)
		case types.KindInt:
			return v
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return v
		}
		i, ok := truncInt(f)
		if !ok {
			return v
		}
		return types.Int(i)

	case CastFloat:
		if v.Kind() == types.KindBool {
			if v.BoolValue() {
				return types.Float(1)
			}
			return types.Float(0)
		}
		if v.IsNumeric() {
			f, ok := v.AsFloat()
			if !ok {
				return v
			}
			return types.Float(f)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v.String()), 64)
		if err != nil {
			return v
		}
		return types.Float(f)

	case CastBoolean:
		switch v.Kind() {
		case types.KindBool:
			return v
		case types.KindInt:
			return types.Bool(v.IntValue() != 0)
		case types.KindFloat, types.KindDecimal:
			f, ok := v.AsFloat()
			if !ok {
				return v
			}
			i, ok := truncInt(f)
			if !ok {
				return v
			}
			return types.Bool(i != 0)
		}
		return types.Bool(IsTruthy(v.String()))

	case CastDate:
		switch v.Kind() {
		case types.KindDate, types.KindDateTime:
			return types.String(v.Time().Format(types.DateLayout))
		}
		s := strings.TrimSpace(v.String())
		if isEightDigits(s) {
			return types.String(s[:4] + "-" + s[4:6] + "-" + s[6:8])
		}
		return types.String(s)

	case CastDateTime, CastTimestamp:
		switch v.Kind() {
		case types.KindDate, types.KindDateTime:
			return types.String(v.ISO())
		}
		return types.String(v.String())
	}
	return v
}

func truncInt(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t > math.MaxInt64 || t < math.MinInt64 {
		return 0, false
	}
	return int64(t), true
}

func isEightDigits(s string) bool {
	if len(s) != 8 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
