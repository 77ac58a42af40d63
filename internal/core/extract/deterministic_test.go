package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

const sokuPatSlip = `即PAT 投票内容照会 払戻合計 1,230円
1 2025年10月20日 東京 11R 馬連 通常 3-5 500円 的中 1,230円
2 2025年10月20日 東京 11R 単勝 通常 7 200円
3 2025年10月20日 東京 11R 三連単 通常 2→5→7 100円
`

func TestDetectDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"購入日 2025年10月20日", "2025-10-20", true},
		{"2025/10/20 東京", "2025-10-20", true},
		{"date 2025-10-20", "2025-10-20", true},
		{"2025年1月5日", "2025-01-05", true},
		{"2025/1/5", "2025-01-05", true},
		{"2025/10/20 and 2024年1月2日", "2024-01-02", true},
		{"no date here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := DetectDate(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectTrackRace(t *testing.T) {
	track, race, ok := DetectTrackRace("2025年10月20日 東京 11R 馬連")
	require.True(t, ok)
	assert.Equal(t, "東京", track)
	assert.Equal(t, "東京 11R", race)

	track, race, ok = DetectTrackRace("名古屋3R")
	require.True(t, ok)
	assert.Equal(t, "名古屋", track)
	assert.Equal(t, "名古屋 3R", race)

	_, _, ok = DetectTrackRace("ロンシャン 4R")
	assert.False(t, ok)
}

func TestDetectSource(t *testing.T) {
	assert.Equal(t, constants.SourcePaper, DetectSource("SPAT4 紙馬券"))
	assert.Equal(t, constants.SourceSpat4, DetectSource("即PAT Spat4"))
	assert.Equal(t, constants.SourceSokuPAT, DetectSource("iPAT 照会"))
	assert.Equal(t, constants.SourceSokuPAT, DetectSource("即pat"))
	assert.Equal(t, constants.SourceUnknown, DetectSource("窓口"))
}

func TestDetectDocumentBetType(t *testing.T) {
	got, ok := DetectDocumentBetType("単勝 馬連 三連単")
	require.True(t, ok)
	assert.Equal(t, "三連単", got)

	got, ok = DetectDocumentBetType("ワイド 単勝")
	require.True(t, ok)
	assert.Equal(t, "ワイド", got)

	got, ok = DetectDocumentBetType("3連複 1-2-3")
	require.True(t, ok)
	assert.Equal(t, "三連複", got)

	_, ok = DetectDocumentBetType("no keywords")
	assert.False(t, ok)
}

func TestDeterministic(t *testing.T) {
	res, rep := DeterministicWithReport(sokuPatSlip)

	require.NotNil(t, res.Date)
	assert.Equal(t, "2025-10-20", *res.Date)
	require.NotNil(t, res.Track)
	assert.Equal(t, "東京", *res.Track)
	require.NotNil(t, res.RaceName)
	assert.Equal(t, "東京 11R", *res.RaceName)
	assert.Equal(t, constants.SourceSokuPAT, res.Source)
	require.NotNil(t, res.Payout)
	assert.Equal(t, int64(1230), *res.Payout)
	assert.Equal(t, "三連単", rep.DocumentType)

	want := []entity.Ticket{
		{Type: constants.Quinella, Numbers: "3-5", Amount: 500, Payout: 1230, Provenance: entity.ProvenanceLocal},
		{Type: constants.Win, Numbers: "7", Amount: 200, Payout: 0, Provenance: entity.ProvenanceLocal},
		{Type: constants.Trifecta, Numbers: "2→5→7", Amount: 100, Payout: 0, Provenance: entity.ProvenanceLocal},
	}
	assert.Equal(t, want, res.Bets)
	assert.Len(t, rep.Rows, 3)
}

func TestDeterministicNoRows(t *testing.T) {
	res := Deterministic("三連単 2っ5っ7 1,000円")
	assert.NotNil(t, res.Bets)
	assert.Empty(t, res.Bets)
	assert.Nil(t, res.Date)
	assert.Equal(t, constants.SourceUnknown, res.Source)
}

func TestParseRowsSkips(t *testing.T) {
	text := "1 2025年10月20日 東京 11R 通常 3-5 500円\n" +
		"2 2025年10月20日 東京 11R 馬連 通常 3-5\n" +
		"3 2025年10月20日 東京 11R 馬連 通常 500円\n" +
		"4 2025年10月20日 東京 11R ワイド 通常 1-4 300円 的中 900円 払戻 900円 100円\n"

	tickets, reports := ParseRows(text)
	require.Len(t, reports, 4)
	assert.Equal(t, skipNoType, reports[0].Skipped)
	assert.Equal(t, skipNoAmount, reports[1].Skipped)
	assert.Equal(t, skipNoNumbers, reports[2].Skipped)
	assert.Empty(t, reports[3].Skipped)
	assert.Equal(t, 2, reports[3].IgnoredAmounts)

	require.Len(t, tickets, 1)
	assert.Equal(t, entity.Ticket{
		Type: constants.Wide, Numbers: "1-4", Amount: 300, Payout: 900, Provenance: entity.ProvenanceLocal,
	}, tickets[0])
}

func TestParseRowsPipeSeparated(t *testing.T) {
	text := "1 2025年10月20日 | 中山 9R | 馬単 | 通常 | 4→1 | 1,000円"
	tickets, _ := ParseRows(text)
	require.Len(t, tickets, 1)
	assert.Equal(t, constants.Exacta, tickets[0].Type)
	assert.Equal(t, "4-1", tickets[0].Numbers)
	assert.Equal(t, int64(1000), tickets[0].Amount)
}

func TestParseRowsStakePrecededByPayoutWord(t *testing.T) {
	tokens := []string{"的中", "1,000円", "200円"}
	got := collectAmounts(tokens)
	assert.Equal(t, int64(200), got.amount)
	assert.Equal(t, int64(1000), got.payout)
}

func TestTicketArityInvariant(t *testing.T) {
	text := sokuPatSlip +
		"4 2025年10月20日 東京 11R 三連複 通常 1-2 100円\n" +
		"5 2025年10月20日 東京 11R 複勝 通常 3-4 100円\n" +
		"6 2025年10月20日 東京 11R 3連複 通常 1-2-3 100円\n"
	res := Deterministic(text)
	require.NotEmpty(t, res.Bets)
	for _, b := range res.Bets {
		assert.True(t, b.HasValidArity(), "ticket %+v", b)
	}
	assert.Equal(t, "1→2→3", res.Bets[len(res.Bets)-1].Numbers)
}
