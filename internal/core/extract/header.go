package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/constants"
)

var datePatterns = []*regexp.Regexp{reDateKanji, reDateSlash, reDateDash}

// DetectDate returns the first date found as YYYY-MM-DD. Formats are tried in
// order: 年月日, slash, dash.
func DetectDate(text string) (string, bool) {
	for _, re := range datePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return formatDate(m[1], m[2], m[3]), true
		}
	}
	return "", false
}

func formatDate(year, month, day string) string {
	mm, _ := strconv.Atoi(month)
	dd, _ := strconv.Atoi(day)
	return fmt.Sprintf("%s-%02d-%02d", year, mm, dd)
}

// DetectTrackRace finds "<track> <n>R" and returns the track and "<track> <n>R".
func DetectTrackRace(text string) (track, raceName string, ok bool) {
	m := reTrackRace.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}
	return m[1], fmt.Sprintf("%s %sR", m[1], m[2]), true
}

// DetectSource applies the fixed priority 紙馬券 > Spat4 > 即pat, regardless of position.
func DetectSource(text string) constants.Source {
	switch {
	case strings.Contains(text, "紙馬券"):
		return constants.SourcePaper
	case strings.Contains(text, "SPAT4"), strings.Contains(text, "Spat4"):
		return constants.SourceSpat4
	case strings.Contains(text, "即pat"), strings.Contains(text, "即PAT"), strings.Contains(text, "iPAT"):
		return constants.SourceSokuPAT
	}
	return constants.SourceUnknown
}

var documentTypePriority = [][]string{
	{"三連単", "3連単"},
	{"三連複", "3連複"},
	{"馬連"},
	{"馬単"},
	{"ワイド"},
	{"単勝"},
	{"複勝"},
	{"枠連"},
	{"枠単"},
}

// DetectDocumentBetType returns the first keyword present in priority order.
// It is only a default for the fallback extractor.
func DetectDocumentBetType(text string) (string, bool) {
	for _, group := range documentTypePriority {
		for _, kw := range group {
			if strings.Contains(text, kw) {
				return group[0], true
			}
		}
	}
	return "", false
}

// AggregatePayout finds the document-level 払戻…円 figure.
func AggregatePayout(text string) (int64, bool) {
	m := reAggregate.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	return parseYen(m[1]), true
}
