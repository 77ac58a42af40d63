package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/ocr"
)

// ws widens \s with the NBSP, ideographic space and BOM found in OCR output.
const ws = `[\s\x{00A0}\x{3000}\x{FEFF}]`

// amount is digits with optional thousands commas. A comma-less run is taken whole.
const amount = `(\d{1,3}(?:,\d{3})+|\d+)`

var (
	reDateKanji = regexp.MustCompile(`(\d{4})年(\d{1,2})月(\d{1,2})日`)
	reDateSlash = regexp.MustCompile(`(\d{4})/(\d{1,2})/(\d{1,2})`)
	reDateDash  = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)

	reTrackRace = regexp.MustCompile(`(` + strings.Join(constants.Tracks, "|") + `)` + ws + `*(\d{1,2})R`)

	reRowStart = regexp.MustCompile(`\d+` + ws + `+\d{4}年\d{1,2}月\d{1,2}日`)
	reRowIndex = regexp.MustCompile(`^` + ws + `*\d+` + ws + `*`)
	reRowDate  = regexp.MustCompile(`^\d{4}年\d{1,2}月\d{1,2}日`)
	reRowType  = regexp.MustCompile(`(枠連|枠複|枠単|三連単|三連複|3連単|3連複|馬連|馬単|ワイド|単勝|複勝)`)
	rePipes    = regexp.MustCompile(`\|+`)

	reFormation      = regexp.MustCompile(`馬([1-3])[:：]([^馬]+)`)
	reFormationNoise = regexp.MustCompile(`[()（）各計\[\]［］]`)
	reFormationSplit = regexp.MustCompile(`[、,` + `\s\x{00A0}\x{3000}\x{FEFF}` + `]+`)
	reNonDigit       = regexp.MustCompile(`[^0-9]`)

	reNumbersToken = regexp.MustCompile(`\d+(?:[→\-]\d+){1,2}`)
	reBareNumber   = regexp.MustCompile(`^\d+$`)

	reMoneyNoise = regexp.MustCompile(`[^0-9,円]`)
	reMoneyToken = regexp.MustCompile(`^` + amount + `円$`)
	reMoneyAny   = regexp.MustCompile(amount + `円`)
	reAggregate  = regexp.MustCompile(`払戻.*?` + amount + `円`)

	reSplitSelections = regexp.MustCompile(`[→\-]`)
)

// Fallback separator class: arrows, long-vowel bar, hyphen/minus/dash variants,
// and the small-tsu glyphs OCR substitutes for them.
const sepClass = `[→ー\-\x{30FC}\x{FF0D}\x{2212}\x{2014}\x{2013}っつづッﾂ]`

var (
	sep        = ws + `*` + sepClass + ws + `*`
	reTriple   = regexp.MustCompile(`(\d{1,2})(?:` + sep + `)(\d{1,2})(?:` + sep + `)(\d{1,2})`)
	rePair     = regexp.MustCompile(`(\d{1,2})(?:` + sep + `)(\d{1,2})`)
	reIsolated = regexp.MustCompile(`(?:^|` + ws + `)(\d{1,2})(?:` + ws + `|$)`)
)

// parseYen parses "1,230" style captures. Invalid input yields 0.
func parseYen(s string) int64 {
	v, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func splitTokens(s string) []string {
	return strings.FieldsFunc(s, ocr.IsSpace)
}
