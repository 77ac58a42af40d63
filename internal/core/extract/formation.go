package extract

import (
	"cmp"
	"slices"
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/constants"
)

// FormationGroup maps a finishing position (1..3) to its candidate horse numbers.
type FormationGroup map[int][]string

// parseFormation reads every 馬<pos>:<values> segment of a row. Later
// segments for the same position replace earlier ones. Money tokens inside a
// segment (各100円) are not candidates.
func parseFormation(rowText string) FormationGroup {
	matches := reFormation.FindAllStringSubmatch(rowText, -1)
	if len(matches) < 2 {
		return nil
	}
	groups := FormationGroup{}
	for _, m := range matches {
		pos := int(m[1][0] - '0')
		raw := reMoneyAny.ReplaceAllString(m[2], " ")
		raw = reFormationNoise.ReplaceAllString(raw, " ")
		var values []string
		for _, v := range reFormationSplit.Split(raw, -1) {
			v = reNonDigit.ReplaceAllString(strings.TrimSpace(v), "")
			if v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			groups[pos] = values
		}
	}
	if len(groups) < 2 {
		return nil
	}
	return groups
}

// expandFormation takes the product across positions. Three positions are used
// for 3連単/3連複 and two otherwise. Combinations repeating a horse are dropped
// and duplicates collapse on their key. Unordered types (馬連, ワイド, 3連複,
// 枠連, 枠複) sort each combination first so 1-2 and 2-1 are one bet.
func expandFormation(groups FormationGroup, betType constants.BetType) [][]string {
	first, second, third := groups[1], groups[2], groups[3]
	if len(first) == 0 || len(second) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	var out [][]string
	emit := func(combo []string) {
		if hasRepeat(combo) {
			return
		}
		if !betType.IsOrdered() {
			slices.SortFunc(combo, compareSelections)
		}
		key := strings.Join(combo, "-")
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, combo)
	}

	switch betType.Arity() {
	case 3:
		if len(third) == 0 {
			return nil
		}
		for _, a := range first {
			for _, b := range second {
				for _, c := range third {
					emit([]string{a, b, c})
				}
			}
		}
	case 2:
		for _, a := range first {
			for _, b := range second {
				emit([]string{a, b})
			}
		}
	}
	return out
}

func hasRepeat(combo []string) bool {
	for i := range combo {
		for j := i + 1; j < len(combo); j++ {
			if combo[i] == combo[j] {
				return true
			}
		}
	}
	return false
}

// compareSelections orders horse numbers numerically.
func compareSelections(a, b string) int {
	a, b = constants.CanonicalSelection(a), constants.CanonicalSelection(b)
	if c := cmp.Compare(len(a), len(b)); c != 0 {
		return c
	}
	return strings.Compare(a, b)
}
