package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/keiba-tracker/constants"
)

func TestParseFormation(t *testing.T) {
	groups := parseFormation("馬1:1,3 馬2:2、4 馬3：(5,6) 各100円")
	require.NotNil(t, groups)
	assert.Equal(t, []string{"1", "3"}, groups[1])
	assert.Equal(t, []string{"2", "4"}, groups[2])
	assert.Equal(t, []string{"5", "6"}, groups[3])

	assert.Nil(t, parseFormation("馬1:1,3 100円"), "single segment is not a formation")
	assert.Nil(t, parseFormation("馬1:1 馬1:2"), "one position is not a formation")
}

func TestExpandFormation(t *testing.T) {
	groups := FormationGroup{1: {"1", "2"}, 2: {"2", "3"}}
	combos := expandFormation(groups, constants.Quinella)
	assert.Equal(t, [][]string{{"1", "2"}, {"1", "3"}, {"2", "3"}}, combos)

	assert.Nil(t, expandFormation(groups, constants.Trifecta), "three-position type needs a third group")
	assert.Nil(t, expandFormation(groups, constants.Win))

	groups = FormationGroup{1: {"1"}, 2: {"1", "2"}, 3: {"2", "3"}}
	assert.Equal(t, [][]string{{"1", "2", "3"}}, expandFormation(groups, constants.Trio))
}

func TestFormationRow(t *testing.T) {
	text := "1 2025年10月20日 中山 9R 三連単 フォーメーション 馬1:1,3 馬2:2,4 馬3:5,6 各100円"
	tickets, reports := ParseRows(text)

	require.Len(t, reports, 1)
	assert.True(t, reports[0].Formation)
	assert.Equal(t, 8, reports[0].Tickets)

	want := []string{
		"1→2→5", "1→2→6", "1→4→5", "1→4→6",
		"3→2→5", "3→2→6", "3→4→5", "3→4→6",
	}
	require.Len(t, tickets, len(want))
	for i, tk := range tickets {
		assert.Equal(t, constants.Trifecta, tk.Type)
		assert.Equal(t, want[i], tk.Numbers)
		assert.Equal(t, int64(100), tk.Amount)
		assert.True(t, tk.HasValidArity())
	}
}

func TestFormationRowDropsRepeats(t *testing.T) {
	text := "1 2025年10月20日 中山 9R 馬連 馬1:1,2 馬2:2,3 300円"
	tickets, _ := ParseRows(text)

	got := make([]string, 0, len(tickets))
	for _, tk := range tickets {
		got = append(got, tk.Numbers)
		assert.Equal(t, int64(300), tk.Amount)
	}
	assert.Equal(t, []string{"1-2", "1-3", "2-3"}, got)
}

func TestExpandFormationUnorderedDedupe(t *testing.T) {
	groups := FormationGroup{1: {"1", "2"}, 2: {"1", "2"}, 3: {"3"}}
	assert.Equal(t, [][]string{{"1", "2", "3"}}, expandFormation(groups, constants.Trio))
	assert.Equal(t, [][]string{{"1", "2", "3"}, {"2", "1", "3"}}, expandFormation(groups, constants.Trifecta))

	pair := FormationGroup{1: {"1", "2"}, 2: {"1", "2"}}
	assert.Equal(t, [][]string{{"1", "2"}}, expandFormation(pair, constants.Quinella))
	assert.Equal(t, [][]string{{"1", "2"}, {"2", "1"}}, expandFormation(pair, constants.Exacta))

	wide := FormationGroup{1: {"10", "9"}, 2: {"2"}}
	assert.Equal(t, [][]string{{"2", "10"}, {"2", "9"}}, expandFormation(wide, constants.Wide))
}

func TestFormationRowUnorderedStakeCountedOnce(t *testing.T) {
	text := "1 2025年10月20日 中山 9R 三連複 馬1:1,2 馬2:1,2 馬3:3 各100円"
	tickets, _ := ParseRows(text)

	require.Len(t, tickets, 1)
	assert.Equal(t, constants.Trio, tickets[0].Type)
	assert.Equal(t, "1→2→3", tickets[0].Numbers)
	assert.Equal(t, int64(100), tickets[0].Amount)
}
