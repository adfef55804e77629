package types

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValue_String(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 0, time.UTC)
	cases := []struct {
		name string
		v    Value
		want string
	}{
		{"null", Null(), ""},
		{"true", Bool(true), "True"},
		{"int", Int(42), "42"},
		{"整数浮点", Float(30), "30.0"},
		{"小数浮点", Float(30.5), "30.5"},
		{"decimal", Decimal(" 12.50 "), "12.50"},
		{"date", Date(ts), "2024-03-05"},
		{"datetime", DateTime(ts), "2024-03-05 10:30:00"},
		{"nan", Float(math.NaN()), "nan"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.v.String())
		})
	}
}

func TestValue_ISO(t *testing.T) {
	ts := time.Date(2024, 3, 5, 10, 30, 0, 123456000, time.UTC)
	assert.Equal(t, "2024-03-05T10:30:00.123456", DateTime(ts).ISO())
	assert.Equal(t, "2024-03-05", Date(ts).ISO())
	assert.Equal(t, "7", Int(7).ISO())
}

func TestValue_FromAny(t *testing.T) {
	assert.Equal(t, KindNull, FromAny(nil).Kind())
	assert.Equal(t, KindInt, FromAny(int32(3)).Kind())
	assert.Equal(t, KindFloat, FromAny(1.5).Kind())
	assert.Equal(t, KindString, FromAny([]byte("abc")).Kind())
	assert.Equal(t, KindDateTime, FromAny(time.Now()).Kind())
	assert.Equal(t, KindInt, FromAny(json.Number("12")).Kind())
	assert.Equal(t, KindFloat, FromAny(json.Number("1.2")).Kind())
}

func TestValue_AsFloat(t *testing.T) {
	f, ok := Decimal("3.25").AsFloat()
	require.True(t, ok)
	assert.Equal(t, 3.25, f)

	_, ok = String("3").AsFloat()
	assert.False(t, ok, "字符串不应视为数值")
}

func TestRow_OrderAndJSON(t *testing.T) {
	r := NewRow()
	r.Set("b", Int(1))
	r.Set("a", String("x"))
	r.Set("b", Int(2))
	assert.Equal(t, []string{"b", "a"}, r.Keys())

	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.Equal(t, `{"b":2,"a":"x"}`, string(data))

	r.Delete("b")
	assert.Equal(t, []string{"a"}, r.Keys())
	_, ok := r.Get("b")
	assert.False(t, ok)
}

func TestRow_Clone(t *testing.T) {
	r := RowOf("id", 1, "name", "n")
	c := r.Clone()
	c.Set("name", String("changed"))
	assert.Equal(t, "n", r.Value("name").String())
	assert.Equal(t, "changed", c.Value("name").String())
}

func TestChunk_Columns(t *testing.T) {
	c := Chunk{RowOf("a", 1), RowOf("a", 2, "b", 3)}
	assert.Equal(t, []string{"a", "b"}, c.Columns())
}

func TestValue_MarshalJSONDecimal(t *testing.T) {
	cases := map[string]string{
		"12.50": `12.50`,
		"-3e2":  `-3e2`,
		"":      `""`,
		"NaN":   `"NaN"`,
		"+5":    `"+5"`,
		"n/a":   `"n/a"`,
	}
	for text, want := range cases {
		raw, err := json.Marshal(Decimal(text))
		require.NoError(t, err, text)
		assert.Equal(t, want, string(raw), "Decimal(%q)", text)
	}
}
