// Package cronexpr 处理5段式cron表达式：校验、星期字段换算与下次触发时间计算
package cronexpr

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Convention 定时器对星期字段的编号约定（对外导出）
type Convention string

const (
	// SundayFirst 0=周日，标准cron与robfig/cron的约定
	SundayFirst Convention = "sunday"
	// MondayFirst 0=周一，需要对星期字段做 (n-1) mod 7 换算
	MondayFirst Convention = "monday"
)

// TimerConvention robfig/cron使用的星期约定，与标准cron相同，调度时无需换算
const TimerConvention = SundayFirst

// ErrInvalidExpression cron表达式不合法
var ErrInvalidExpression = errors.New("无效的cron表达式")

// FieldCount 标准cron表达式的字段数
const FieldCount = 5

// parser 5段式解析器，不接受秒字段与@描述符
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Fields 拆分表达式，字段数不为5时返回错误
func Fields(expr string) ([]string, error) {
	parts := strings.Fields(expr)
	if len(parts) != FieldCount {
		return nil, fmt.Errorf("%w: 必须包含%d个字段，实际为%d: %q", ErrInvalidExpression, FieldCount, len(parts), expr)
	}
	return parts, nil
}

// ConvertDayOfWeek 将0=周日编号的星期字段换算为0=周一编号
// '*' 与 '*/n' 原样返回；列表与区间逐元素换算；名称（mon、fri）原样保留
func ConvertDayOfWeek(field string) string {
	field = strings.TrimSpace(field)
	if field == "*" {
		return field
	}
	if base, step, ok := strings.Cut(field, "/"); ok {
		if base == "*" {
			return field
		}
		return ConvertDayOfWeek(base) + "/" + step
	}
	if strings.Contains(field, ",") {
		parts := strings.Split(field, ",")
		for i, p := range parts {
			parts[i] = ConvertDayOfWeek(p)
		}
		return strings.Join(parts, ",")
	}
	if start, end, ok := strings.Cut(field, "-"); ok && start != "" {
		return convertSingle(start) + "-" + convertSingle(end)
	}
	return convertSingle(field)
}

func convertSingle(val string) string {
	val = strings.TrimSpace(val)
	n, err := strconv.Atoi(val)
	if err != nil {
		return val
	}
	return strconv.Itoa(((n-1)%7 + 7) % 7)
}

// ToTimerSpec 校验表达式并按定时器约定换算星期字段，返回可交给定时器的表达式
func ToTimerSpec(expr string, conv Convention) (string, error) {
	parts, err := Fields(expr)
	if err != nil {
		return "", err
	}
	if conv == MondayFirst {
		parts[4] = ConvertDayOfWeek(parts[4])
	}
	return strings.Join(parts, " "), nil
}

// Parse 解析标准（0=周日）表达式为robfig调度对象
func Parse(expr string) (cron.Schedule, error) {
	if _, err := Fields(expr); err != nil {
		return nil, err
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	return sched, nil
}

// Validate 校验表达式是否合法
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// Next 计算from之后的n次触发时间，时间按loc解释
func Next(expr string, from time.Time, loc *time.Location, n int) ([]time.Time, error) {
	sched, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.Local
	}
	out := make([]time.Time, 0, n)
	t := from.In(loc)
	for i := 0; i < n; i++ {
		t = sched.Next(t)
		if t.IsZero() {
			break
		}
		out = append(out, t)
	}
	return out, nil
}
