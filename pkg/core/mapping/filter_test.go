package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/dataflow-engine/pkg/core/types"
)

func names(rows types.Chunk) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Value("name").String())
	}
	return out
}

func TestApplyFilter_Numeric(t *testing.T) {
	out := ApplyFilter(sampleRows(), "age >= 30")
	assert.Equal(t, []string{"Ada", "Alan"}, names(out), "空值年龄不应匹配")

	out = ApplyFilter(sampleRows(), "age < 30")
	assert.Equal(t, []string{"Linus"}, names(out))
}

func TestApplyFilter_Equality(t *testing.T) {
	out := ApplyFilter(sampleRows(), "city = 'New York'")
	assert.Equal(t, []string{"Grace"}, names(out), "值中可以包含空格")

	out = ApplyFilter(sampleRows(), `name != "Ada"`)
	assert.Equal(t, []string{"Linus", "Grace", "Alan"}, names(out))

	out = ApplyFilter(sampleRows(), "age = 41.5")
	assert.Equal(t, []string{"Alan"}, names(out))
}

func TestApplyFilter_Like(t *testing.T) {
	assert.Equal(t, []string{"Ada", "Alan"}, names(ApplyFilter(sampleRows(), "name LIKE A*")))
	assert.Equal(t, []string{"Linus"}, names(ApplyFilter(sampleRows(), "name LIKE *us")))
	assert.Equal(t, []string{"Linus"}, names(ApplyFilter(sampleRows(), "city LIKE *lsin*")))
	assert.Equal(t, []string{"Grace"}, names(ApplyFilter(sampleRows(), "name LIKE Grace")))
}

func TestApplyFilter_MalformedPassesAll(t *testing.T) {
	rows := sampleRows()
	out := ApplyFilter(rows, "age >=")
	assert.Len(t, out, len(rows))

	_, err := ParseFilter("age >=")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedCondition)
}

func TestApplyFilter_EmptyCondition(t *testing.T) {
	rows := sampleRows()
	assert.Len(t, ApplyFilter(rows, "   "), len(rows))
}

func TestApplyFilter_NonNumericNeverMatches(t *testing.T) {
	assert.Empty(t, ApplyFilter(sampleRows(), "name > 3"))
	assert.Empty(t, ApplyFilter(sampleRows(), "age > abc"))
	assert.Empty(t, ApplyFilter(sampleRows(), "age ~ 3"), "未知操作符不匹配")
}
