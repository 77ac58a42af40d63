package llm

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

var (
	reNonDigits   = regexp.MustCompile(`[^0-9]+`)
	reLooseDate   = regexp.MustCompile(`^(\d{4})\s*[-/年.]\s*(\d{1,2})\s*[-/月.]\s*(\d{1,2})\s*日?$`)
	topLevelKeys  = []string{"date", "source", "track", "raceName", "payout", "bets", "memo"}
	nullableTexts = []string{"date", "source", "track", "raceName", "memo"}
)

// NormalizeAndSanitizeJSON
// - Wraps a bare ticket array as {"bets": [...]}
// - Renames known synonyms (tickets -> bets, race_name -> raceName)
// - Coerces yen strings ("1,000円") and numeric selections into the schema types
// - Removes unknown keys (strict additionalProperties = false friendliness)
func NormalizeAndSanitizeJSON(raw []byte, logger *zap.Logger) ([]byte, []string, error) {
	logger = common.LoggerOrGlobal(logger)

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var m map[string]any
	switch t := doc.(type) {
	case []any:
		m = map[string]any{"bets": t}
	case map[string]any:
		m = t
	default:
		return nil, nil, fmt.Errorf("sanitize: unexpected top-level %T", doc)
	}

	dropped := make([]string, 0, 8)
	renamed := func(from, to string) {
		if v, ok := m[from]; ok {
			if _, exists := m[to]; !exists {
				m[to] = v
			}
			delete(m, from)
			dropped = append(dropped, from+"->"+to)
		}
	}

	// 1) rename synonyms
	renamed("tickets", "bets")
	renamed("race_name", "raceName")
	renamed("total_payout", "payout")

	// 2) nullable strings: trim, empty -> null, non-string -> null
	for _, k := range nullableTexts {
		v, ok := m[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case nil:
		case string:
			s := strings.TrimSpace(t)
			if s == "" || strings.EqualFold(s, "null") {
				m[k] = nil
			} else {
				m[k] = s
			}
		default:
			m[k] = nil
			dropped = append(dropped, k+"(type)")
		}
	}
	if s, ok := m["date"].(string); ok {
		if mm := reLooseDate.FindStringSubmatch(s); mm != nil {
			month, _ := strconv.Atoi(mm[2])
			day, _ := strconv.Atoi(mm[3])
			m["date"] = fmt.Sprintf("%s-%02d-%02d", mm[1], month, day)
		}
	}

	// 3) aggregate payout
	if v, ok := m["payout"]; ok {
		if n, ok := coerceYen(v); ok {
			m["payout"] = n
		} else {
			m["payout"] = nil
		}
	}

	// 4) tickets
	rawBets, _ := m["bets"].([]any)
	bets := make([]any, 0, len(rawBets))
	for i, item := range rawBets {
		t, ok := item.(map[string]any)
		if !ok {
			dropped = append(dropped, fmt.Sprintf("bets[%d](type)", i))
			continue
		}
		ticket, reason := sanitizeTicket(t)
		if reason != "" {
			dropped = append(dropped, fmt.Sprintf("bets[%d](%s)", i, reason))
			continue
		}
		bets = append(bets, ticket)
	}
	m["bets"] = bets

	// 5) remove unknown keys
	for k := range maps.Clone(m) {
		if !contains(topLevelKeys, k) {
			delete(m, k)
			dropped = append(dropped, k+"(unknown)")
		}
	}

	out, err := json.Marshal(m)
	if err != nil {
		return nil, dropped, fmt.Errorf("sanitize: encode: %w", err)
	}
	if len(dropped) > 0 {
		logger.Debug("llm.extract.normalize_sanitize", zap.Strings("dropped", dropped))
	}
	return out, dropped, nil
}

func sanitizeTicket(t map[string]any) (map[string]any, string) {
	typ, ok := t["type"].(string)
	if !ok || strings.TrimSpace(typ) == "" {
		return nil, "no_type"
	}
	numbers := coerceNumbers(t["numbers"])
	if len(numbers) == 0 {
		return nil, "no_numbers"
	}
	out := map[string]any{
		"type":    strings.TrimSpace(typ),
		"numbers": numbers,
	}
	for _, k := range []string{"amount", "payout"} {
		if n, ok := coerceYen(t[k]); ok {
			out[k] = n
		} else {
			out[k] = int64(0)
		}
	}
	return out, ""
}

// maxYen bounds any amount or payout the model may report.
const maxYen = 10_000_000_000

// coerceYen accepts numbers and yen strings like "1,000円". Negative,
// digit-free or out-of-range values are rejected.
func coerceYen(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t < 0 || math.IsNaN(t) || math.IsInf(t, 0) || t > maxYen {
			return 0, false
		}
		return int64(math.Round(t)), true
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "-") {
			return 0, false
		}
		digits := reNonDigits.ReplaceAllString(s, "")
		if digits == "" {
			return 0, false
		}
		n, err := strconv.ParseInt(digits, 10, 64)
		if err != nil || n > maxYen {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// coerceNumbers accepts ["1","2"], [1,2], "1-2" and "1→2→3" forms and
// returns canonical decimal strings.
func coerceNumbers(v any) []string {
	var out []string
	add := func(s string) {
		for _, p := range reNonDigits.Split(s, -1) {
			if p == "" {
				continue
			}
			if n, err := strconv.Atoi(p); err == nil {
				out = append(out, strconv.Itoa(n))
			}
		}
	}
	switch t := v.(type) {
	case string:
		add(t)
	case float64:
		if t >= 0 {
			out = append(out, strconv.Itoa(int(t)))
		}
	case []any:
		for _, item := range t {
			switch x := item.(type) {
			case string:
				add(x)
			case float64:
				if x >= 0 {
					out = append(out, strconv.Itoa(int(x)))
				}
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
