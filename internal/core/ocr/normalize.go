package ocr

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/width"
)

// Known OCR misreads of 三連 plus currency and particle fixes.
var misreadReplacer = strings.NewReplacer(
	"三較", "三連",
	"三練", "三連",
	"三鎌", "三連",
	"三絵", "三連",
	"馬ノ", "馬の",
	"￥", "円",
)

var slashReplacer = strings.NewReplacer("／", "/", "⁄", "/")

var spatReplacer = strings.NewReplacer("ＳＰＡＴ", "SPAT", "ｓｐａｔ", "spat")

// Only full-width digits and Latin letters are folded; full-width punctuation,
// spaces and kana keep their width.
var foldAlnum = runes.If(runes.Predicate(isFullWidthAlnum), width.Narrow, nil)

func isFullWidthAlnum(r rune) bool {
	return (r >= '０' && r <= '９') || (r >= 'Ａ' && r <= 'Ｚ') || (r >= 'ａ' && r <= 'ｚ')
}

// Glyphs OCR produces in place of the small っ separator on ticket rows.
func isSeparatorGlyph(r rune) bool {
	switch r {
	case 'っ', 'つ', 'づ', 'ッ', 'ﾂ':
		return true
	}
	return false
}

// Normalize canonicalises raw OCR text from a betting slip into the working
// string the extractors match against. It never fails; empty input yields "".
func Normalize(s string) string {
	if s == "" {
		return s
	}
	s = misreadReplacer.Replace(s)
	s = foldWidth(s)
	s = slashReplacer.Replace(s)
	s = repairSeparators(s)
	s = cleanPipes(s)
	s = spatReplacer.Replace(s)
	return s
}

func foldWidth(s string) string {
	out, _, err := transform.String(foldAlnum, s)
	if err != nil {
		return s
	}
	return out
}

// repairSeparators rewrites d·d when another digit follows (2っ56 -> 2っ5っ6),
// so three-digit runs that lost a separator stay splittable. Passes repeat
// until nothing changes so longer runs (12っ345) reach a fixed point.
func repairSeparators(s string) string {
	for {
		next := repairSeparatorsOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func repairSeparatorsOnce(s string) string {
	rs := []rune(s)
	n := len(rs)
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < n; {
		if i+3 < n && isASCIIDigit(rs[i]) && isSeparatorGlyph(rs[i+1]) && isASCIIDigit(rs[i+2]) && isASCIIDigit(rs[i+3]) {
			b.WriteRune(rs[i])
			b.WriteRune('っ')
			b.WriteRune(rs[i+2])
			b.WriteRune('っ')
			i += 3
			continue
		}
		b.WriteRune(rs[i])
		i++
	}
	return b.String()
}

// cleanPipes drops a pipe glued to a digit and pads any other pipe not
// already followed by whitespace.
func cleanPipes(s string) string {
	if !strings.Contains(s, "|") {
		return s
	}
	rs := []rune(s)
	var b strings.Builder
	for i, r := range rs {
		if r == '|' && i+1 < len(rs) && isASCIIDigit(rs[i+1]) {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(r)
	}

	rs = []rune(b.String())
	b.Reset()
	for i, r := range rs {
		if r == '|' && (i+1 >= len(rs) || !IsSpace(rs[i+1])) {
			b.WriteString(" | ")
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isASCIIDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// IsSpace matches the whitespace OCR emits on Japanese tickets, including
// the ideographic space and BOM.
func IsSpace(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
