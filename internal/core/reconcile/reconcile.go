// Package reconcile merges locally extracted tickets with AI extracted ones.
package reconcile

import (
	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// Conflict records an AI value that disagreed with a nonzero local value and
// was discarded.
type Conflict struct {
	Key      string `json:"key"`
	Field    string `json:"field"`
	Local    int64  `json:"local"`
	Proposed int64  `json:"proposed"`
}

// Result is the merged ticket list plus what the merge did.
type Result struct {
	Tickets   []entity.Ticket `json:"tickets"`
	Matched   int             `json:"matched"`
	Added     int             `json:"added"`
	Conflicts []Conflict      `json:"conflicts,omitempty"`
}

// Reconcile unions local and AI tickets keyed by type|numbers. Local values
// win; AI only fills zero amount or payout fields on a matching ticket.
func Reconcile(local, ai []entity.Ticket) []entity.Ticket {
	return ReconcileWithReport(local, ai).Tickets
}

// ReconcileWithReport is Reconcile plus merge counters and discarded AI values.
func ReconcileWithReport(local, ai []entity.Ticket) Result {
	index := make(map[string]int, len(local)+len(ai))
	merged := make([]entity.Ticket, 0, len(local)+len(ai))
	var res Result

	for _, t := range local {
		key := t.Key()
		if i, ok := index[key]; ok {
			// duplicate local rows keep the first entry
			fillZero(&merged[i], t, nil)
			continue
		}
		if t.Provenance == "" {
			t.Provenance = entity.ProvenanceLocal
		}
		index[key] = len(merged)
		merged = append(merged, t)
	}

	for _, t := range ai {
		betType, _ := constants.Canonicalize(string(t.Type))
		t.Type = betType
		key := t.Key()

		if i, ok := index[key]; ok {
			existing := &merged[i]
			res.Conflicts = fillZero(existing, t, res.Conflicts)
			if existing.Provenance != entity.ProvenanceAI {
				existing.Provenance = entity.ProvenanceLocalAI
			}
			res.Matched++
			continue
		}
		t.Provenance = entity.ProvenanceAI
		index[key] = len(merged)
		merged = append(merged, t)
		res.Added++
	}

	res.Tickets = merged
	return res
}

// fillZero copies amount and payout from src into dst only where dst is zero.
func fillZero(dst *entity.Ticket, src entity.Ticket, conflicts []Conflict) []Conflict {
	if dst.Amount == 0 {
		dst.Amount = src.Amount
	} else if src.Amount != 0 && src.Amount != dst.Amount {
		conflicts = append(conflicts, Conflict{Key: dst.Key(), Field: "amount", Local: dst.Amount, Proposed: src.Amount})
	}
	if dst.Payout == 0 {
		dst.Payout = src.Payout
	} else if src.Payout != 0 && src.Payout != dst.Payout {
		conflicts = append(conflicts, Conflict{Key: dst.Key(), Field: "payout", Local: dst.Payout, Proposed: src.Payout})
	}
	return conflicts
}
