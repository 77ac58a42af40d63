package extract

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

const (
	minPlausibleStake = 100
	maxPlausibleStake = 100000
	maxHorseNumber    = 18
	payoutContextRune = 5
)

// Fallback recovers tickets from loosely separated number runs when no ticket
// row matched. priorTypeGuess is the document-level type keyword, if any.
// Combinations pair with stake amounts by position; only min(len) tickets are
// emitted.
func Fallback(text, priorTypeGuess string) []entity.Ticket {
	betType, _ := constants.Canonicalize(priorTypeGuess)

	scan := maskDates(text)
	combos := fallbackCombos(scan, betType)
	amounts := FallbackAmounts(scan)

	n := len(combos)
	if len(amounts) < n {
		n = len(amounts)
	}
	tickets := make([]entity.Ticket, 0, n)
	for i := 0; i < n; i++ {
		tickets = append(tickets, entity.Ticket{
			Type:       betType,
			Numbers:    combos[i],
			Amount:     amounts[i],
			Provenance: entity.ProvenanceLocal,
		})
	}
	return tickets
}

// fallbackCombos tries triples, then pairs, then isolated horse numbers for
// 単勝/複勝. A known bet type restricts the search to runs of its arity.
func fallbackCombos(text string, betType constants.BetType) []string {
	arity := betType.Arity()
	join := func(parts []string, unknownDelim string) string {
		if arity > 0 {
			return betType.JoinNumbers(parts)
		}
		return strings.Join(parts, unknownDelim)
	}

	var combos []string
	if arity == 0 || arity == 3 {
		for _, m := range reTriple.FindAllStringSubmatch(text, -1) {
			combos = append(combos, join(m[1:4], "→"))
		}
	}
	if len(combos) == 0 && (arity == 0 || arity == 2) {
		for _, m := range rePair.FindAllStringSubmatch(text, -1) {
			combos = append(combos, join(m[1:3], "-"))
		}
	}
	if len(combos) == 0 && betType.IsSingle() {
		for _, m := range reIsolated.FindAllStringSubmatch(text, -1) {
			n, err := strconv.Atoi(m[1])
			if err == nil && n >= 1 && n <= maxHorseNumber {
				combos = append(combos, m[1])
			}
		}
	}
	return combos
}

// FallbackAmounts returns stake-like amounts in [100, 100000] whose
// surrounding ±5 characters do not mention 的中 or 払戻.
func FallbackAmounts(text string) []int64 {
	var out []int64
	for _, loc := range reMoneyAny.FindAllStringSubmatchIndex(text, -1) {
		if nearPayoutWord(text, loc[0], loc[1]) {
			continue
		}
		v := parseYen(text[loc[2]:loc[3]])
		if v >= minPlausibleStake && v <= maxPlausibleStake {
			out = append(out, v)
		}
	}
	return out
}

func nearPayoutWord(text string, start, end int) bool {
	from := start
	for i := 0; i < payoutContextRune && from > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:from])
		from -= size
	}
	to := end
	for i := 0; i < payoutContextRune && to < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[to:])
		to += size
	}
	window := text[from:to]
	return strings.Contains(window, "的中") || strings.Contains(window, "払戻")
}

// maskDates blanks dates so their digits are not read as selections.
func maskDates(text string) string {
	for _, re := range datePatterns {
		text = re.ReplaceAllString(text, " ")
	}
	return text
}
