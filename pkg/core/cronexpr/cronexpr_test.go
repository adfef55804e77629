package cronexpr

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertDayOfWeek(t *testing.T) {
	cases := map[string]string{
		"*":     "*",
		"5":     "4",
		"0":     "6",
		"1-5":   "0-4",
		"0,6":   "6,5",
		"1,3,5": "0,2,4",
		"*/2":   "*/2",
		"1-5/2": "0-4/2",
		"mon":   "mon",
		" 6 ":   "5",
		"1-3,6": "0-2,5",
	}
	for in, want := range cases {
		assert.Equal(t, want, ConvertDayOfWeek(in), "输入: %q", in)
	}
}

func TestToTimerSpec(t *testing.T) {
	spec, err := ToTimerSpec("0 9 * * 1-5", MondayFirst)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 0-4", spec)

	spec, err = ToTimerSpec("0  9 * * 1-5", SundayFirst)
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1-5", spec, "周日约定下不换算")

	_, err = ToTimerSpec("0 9 * *", SundayFirst)
	assert.Error(t, err, "4段表达式应被拒绝")

	_, err = ToTimerSpec("0 0 9 * * 1", SundayFirst)
	assert.Error(t, err, "6段表达式应被拒绝")
}

func TestValidate(t *testing.T) {
	assert.NoError(t, Validate("*/15 * * * *"))
	assert.ErrorIs(t, Validate("61 * * * *"), ErrInvalidExpression)
	assert.Error(t, Validate("@daily"), "不接受描述符")
}

func TestNext(t *testing.T) {
	from := time.Date(2024, 1, 5, 8, 0, 0, 0, time.UTC) // 周五
	times, err := Next("30 9 * * 1", from, time.UTC, 2)
	require.NoError(t, err)
	require.Len(t, times, 2)
	assert.Equal(t, time.Date(2024, 1, 8, 9, 30, 0, 0, time.UTC), times[0])
	assert.Equal(t, time.Monday, times[1].Weekday())
}
