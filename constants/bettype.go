package constants

import (
	"strings"
)

// BetType is the canonical ticket type label stored with each bet.
type BetType string

const (
	Win          BetType = "単勝"
	Place        BetType = "複勝"
	BracketQuin  BetType = "枠連"
	BracketExact BetType = "枠単"
	BracketFuku  BetType = "枠複"
	Quinella     BetType = "馬連"
	Exacta       BetType = "馬単"
	Wide         BetType = "ワイド"
	Trio         BetType = "3連複"
	Trifecta     BetType = "3連単"
	UnknownType  BetType = "不明"
)

var allBetTypes = []BetType{
	Win,
	Place,
	BracketQuin,
	BracketExact,
	BracketFuku,
	Quinella,
	Exacta,
	Wide,
	Trio,
	Trifecta,
}

// BetTypes returns the canonical vocabulary in display order.
func BetTypes() []BetType {
	out := make([]BetType, len(allBetTypes))
	copy(out, allBetTypes)
	return out
}

// BetTypeStrings is used for prompt and schema enums.
func BetTypeStrings() []string {
	result := make([]string, len(allBetTypes))
	for i, t := range allBetTypes {
		result[i] = string(t)
	}
	return result
}

// containment order matters: 枠単 before 単勝, 3連単 before 単勝 etc.
var betTypeKeywords = []struct {
	keywords []string
	canon    BetType
}{
	{[]string{"枠単"}, BracketExact},
	{[]string{"枠複"}, BracketFuku},
	{[]string{"枠連"}, BracketQuin},
	{[]string{"三連単", "3連単"}, Trifecta},
	{[]string{"三連複", "3連複"}, Trio},
	{[]string{"馬連"}, Quinella},
	{[]string{"馬単"}, Exacta},
	{[]string{"ワイド"}, Wide},
	{[]string{"単勝"}, Win},
	{[]string{"複勝"}, Place},
}

// Canonicalize maps a free-form type label (AI output, row keyword) onto the
// canonical vocabulary by keyword containment. Unrecognised labels return
// UnknownType and false.
func Canonicalize(input string) (BetType, bool) {
	normalized := strings.Join(strings.Fields(input), "")
	normalized = strings.ReplaceAll(normalized, "３", "3")
	if normalized == "" {
		return UnknownType, false
	}
	for _, entry := range betTypeKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(normalized, kw) {
				return entry.canon, true
			}
		}
	}
	return UnknownType, false
}

// Arity is the number of selections a ticket of this type carries.
// UnknownType has no fixed arity and returns 0.
func (t BetType) Arity() int {
	switch t {
	case Win, Place:
		return 1
	case BracketQuin, BracketExact, BracketFuku, Quinella, Exacta, Wide:
		return 2
	case Trio, Trifecta:
		return 3
	default:
		return 0
	}
}

// IsSingle reports whether the type selects one horse (単勝/複勝).
func (t BetType) IsSingle() bool {
	return t == Win || t == Place
}

// IsThreeConnected reports whether the type is 3連複 or 3連単.
func (t BetType) IsThreeConnected() bool {
	return t == Trio || t == Trifecta
}

// IsOrdered reports whether finishing order matters (単勝, 複勝, 枠単, 馬単, 3連単).
func (t BetType) IsOrdered() bool {
	switch t {
	case Win, Place, BracketExact, Exacta, Trifecta:
		return true
	}
	return false
}

// Delimiter joins selections in a ticket's numbers string.
func (t BetType) Delimiter() string {
	if t.IsThreeConnected() {
		return "→"
	}
	return "-"
}

// JoinNumbers formats selections the way tickets are keyed and stored.
// Numeric selections lose leading zeros so "05" and "5" join identically.
func (t BetType) JoinNumbers(parts []string) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = CanonicalSelection(p)
	}
	if len(out) == 1 {
		return out[0]
	}
	return strings.Join(out, t.Delimiter())
}

// CanonicalSelection trims spaces and strips leading zeros from an all-digit
// selection. Non-numeric selections are only trimmed.
func CanonicalSelection(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	return s
}

// SplitNumbers is the inverse of JoinNumbers and accepts either delimiter.
func SplitNumbers(numbers string) []string {
	fields := strings.FieldsFunc(numbers, func(r rune) bool {
		return r == '→' || r == '-'
	})
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// IsValid reports whether t is one of the ten canonical types.
func (t BetType) IsValid() bool {
	return t.Arity() > 0
}
