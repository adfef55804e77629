package connector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

func testTable() *TypeTable {
	return NewTypeTable(map[string]TypeEntry{
		"int":      IntegerType(),
		"float":    FloatType(),
		"decimal":  DecimalType(),
		"bit":      BooleanType(),
		"varchar":  TextType(true),
		"date":     DateType(),
		"datetime": DateTimeType(),
	})
}

func TestTypeTable_Lookup(t *testing.T) {
	tt := testTable()
	_, ok := tt.Lookup("VARCHAR(50)")
	assert.True(t, ok, "带参数的类型应按基础名查找")
	_, ok = tt.Lookup("datetime with time zone")
	assert.True(t, ok)
	_, ok = tt.Lookup("geometry")
	assert.False(t, ok)
}

func TestCoerce_NumericFailureBecomesNull(t *testing.T) {
	tt := testTable()
	assert.True(t, tt.Coerce("int", types.String("abc")).IsNull())
	assert.True(t, tt.Coerce("float", types.String("x1")).IsNull())
	assert.True(t, tt.Coerce("decimal", types.String("1,5")).IsNull())
	assert.Equal(t, types.Int(12), tt.Coerce("int", types.String(" 12.7 ")))
	assert.Equal(t, types.Int(1), tt.Coerce("int", types.Bool(true)))
	assert.Equal(t, types.Decimal("3.5"), tt.Coerce("decimal", types.Float(3.5)))
}

func TestCoerce_Truthy(t *testing.T) {
	tt := testTable()
	for _, s := range []string{"1", "TRUE", "Yes", "t", "on"} {
		assert.Equal(t, types.Bool(true), tt.Coerce("bit", types.String(s)), s)
	}
	assert.Equal(t, types.Bool(false), tt.Coerce("bit", types.String("nope")))
	assert.Equal(t, types.Bool(true), tt.Coerce("bit", types.Int(2)))
}

func TestCoerce_DateTimeToText(t *testing.T) {
	ts := time.Date(2024, 2, 1, 9, 15, 0, 0, time.UTC)
	assert.Equal(t, "2024-02-01 09:15:00", ToText(true)(types.DateTime(ts)).String())
	assert.Equal(t, "2024-02-01T09:15:00", ToText(false)(types.DateTime(ts)).Text())
	assert.Equal(t, "2024-02-01", ToText(true)(types.Date(ts)).Text())
}

func TestCoerce_EightDigitDate(t *testing.T) {
	v := ToDate(types.Int(20231205))
	assert.Equal(t, types.KindDate, v.Kind())
	assert.Equal(t, "2023-12-05", v.ISO())

	v = ToDate(types.String("2023-12-05T10:00:00"))
	assert.Equal(t, "2023-12-05", v.ISO())

	assert.True(t, ToDate(types.Int(2023)).IsNull())
	assert.True(t, ToDate(types.String("20231399")).IsNull(), "无效日期应为Null")

	dt := ToDateTime(types.String("20240101"))
	assert.Equal(t, types.KindDateTime, dt.Kind())
}

func TestCoerceRow(t *testing.T) {
	tt := testTable()
	row := types.RowOf("id", "7", "name", 5, "extra", "x")
	out := tt.CoerceRow(row, map[string]string{"id": "int", "name": "varchar"})
	assert.Equal(t, types.Int(7), out.Value("id"))
	assert.Equal(t, types.String("5"), out.Value("name"))
	assert.Equal(t, types.String("x"), out.Value("extra"))
	assert.Equal(t, []string{"id", "name", "extra"}, out.Keys())

	assert.Same(t, row, tt.CoerceRow(row, nil))
}

func TestRead(t *testing.T) {
	tt := testTable()
	assert.Equal(t, types.Decimal("10.50"), tt.Read("decimal", []byte("10.50")))
	assert.Equal(t, types.String("abc"), tt.Read("varchar", []byte("abc")))
	assert.Equal(t, types.Int(3), tt.Read("int", []byte("3")))
	assert.Equal(t, types.KindDate, tt.Read("date", time.Now()).Kind())
	assert.Equal(t, types.Bool(true), tt.Read("bit", int64(1)))
	assert.Equal(t, types.Int(5), tt.Read("unknown", int64(5)))
}

func TestConfig_Helpers(t *testing.T) {
	cfg, err := ParseConfig(`{"host":"db","port":"1433","encrypt":"yes","batch":250.0}`)
	assert.NoError(t, err)
	assert.Equal(t, "db", cfg.String("host", ""))
	assert.Equal(t, 1433, cfg.Int("port", 0))
	assert.Equal(t, 250, cfg.Int("batch", 0))
	assert.True(t, cfg.Bool("encrypt", false))
	assert.Equal(t, "x", cfg.String("missing", "x"))
	_, err = cfg.Require("database")
	assert.Error(t, err)
}

func TestParseWriteMode(t *testing.T) {
	m, err := ParseWriteMode("")
	assert.NoError(t, err)
	assert.Equal(t, WriteAppend, m)
	m, err = ParseWriteMode("overwrite")
	assert.NoError(t, err)
	assert.Equal(t, WriteOverwrite, m)
	_, err = ParseWriteMode("upsert")
	assert.Error(t, err)
}
