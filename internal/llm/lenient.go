package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
)

var (
	reISODate   = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	reSelection = regexp.MustCompile(`^\d{1,2}$`)
)

// SanitizeOptionalFields removes or nulls the offenders that don't meet the
// stricter schema, so the overall document can still validate. Header fields
// become null; tickets that cannot be trusted are dropped.
func SanitizeOptionalFields(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, err
	}

	var dropped []string

	// date: if present but not YYYY-MM-DD, null it
	if v, ok := m["date"].(string); ok && !reISODate.MatchString(v) {
		m["date"] = nil
		dropped = append(dropped, "date")
	}

	if v, ok := m["payout"].(float64); ok && (v < 0 || v != float64(int64(v))) {
		m["payout"] = nil
		dropped = append(dropped, "payout")
	}

	bets, _ := m["bets"].([]any)
	kept := make([]any, 0, len(bets))
	for i, item := range bets {
		t, ok := item.(map[string]any)
		if !ok || !trustedTicket(t) {
			dropped = append(dropped, fmt.Sprintf("bets[%d]", i))
			continue
		}
		kept = append(kept, t)
	}
	m["bets"] = kept

	b, err := json.Marshal(m)
	if err != nil {
		return nil, nil, err
	}
	return b, dropped, nil
}

func trustedTicket(t map[string]any) bool {
	if s, ok := t["type"].(string); !ok || s == "" {
		return false
	}
	numbers, ok := t["numbers"].([]any)
	if !ok || len(numbers) == 0 || len(numbers) > 3 {
		return false
	}
	for _, n := range numbers {
		s, ok := n.(string)
		if !ok || !reSelection.MatchString(s) {
			return false
		}
	}
	for _, k := range []string{"amount", "payout"} {
		if v, ok := t[k].(float64); ok && v < 0 {
			return false
		}
	}
	return true
}
