package entity

import (
	"github.com/joseph-ayodele/keiba-tracker/constants"
)

// Provenance tags where a ticket's data came from.
type Provenance string

const (
	ProvenanceLocal   Provenance = "local"
	ProvenanceAI      Provenance = "ai"
	ProvenanceLocalAI Provenance = "local+ai"
)

// Ticket is one concrete bet combination.
type Ticket struct {
	Type       constants.BetType `json:"type"`
	Numbers    string            `json:"numbers"`
	Amount     int64             `json:"amount"`
	Payout     int64             `json:"payout"`
	Provenance Provenance        `json:"provenance"`
}

// Key identifies a ticket across extraction sources: type|numbers without whitespace.
func (t Ticket) Key() string {
	return TicketKey(t.Type, t.Numbers)
}

// TicketKey builds the reconciliation key. Numeric selections are compared
// without leading zeros.
func TicketKey(betType constants.BetType, numbers string) string {
	numbers = stripSpaces(numbers)
	if parts := constants.SplitNumbers(numbers); len(parts) > 0 {
		numbers = betType.JoinNumbers(parts)
	}
	return string(betType) + "|" + numbers
}

// Selections splits Numbers on its delimiter.
func (t Ticket) Selections() []string {
	return constants.SplitNumbers(t.Numbers)
}

// HasValidArity reports whether the selection count matches the bet type.
// Unknown types have no arity constraint.
func (t Ticket) HasValidArity() bool {
	want := t.Type.Arity()
	if want == 0 {
		return true
	}
	return len(t.Selections()) == want
}

// StoredTicket is the persisted shape inside bets.bets.
type StoredTicket struct {
	Type    string `json:"type"`
	Numbers string `json:"numbers"`
	Amount  int64  `json:"amount"`
}

// ToStored drops core-only fields (payout, provenance).
func (t Ticket) ToStored() StoredTicket {
	return StoredTicket{Type: string(t.Type), Numbers: t.Numbers, Amount: t.Amount}
}

// ExtractionResult is produced by each extractor and by the pipeline.
type ExtractionResult struct {
	Date     *string          `json:"date"`
	Source   constants.Source `json:"source"`
	Track    *string          `json:"track"`
	RaceName *string          `json:"raceName"`
	Payout   *int64           `json:"payout"`
	Memo     *string          `json:"memo"`
	Bets     []Ticket         `json:"bets"`
}

// NewExtractionResult returns an empty result with unknown source and a non-nil bets slice.
func NewExtractionResult() ExtractionResult {
	return ExtractionResult{Source: constants.SourceUnknown, Bets: []Ticket{}}
}

// TotalStake sums ticket amounts.
func (r ExtractionResult) TotalStake() int64 {
	var sum int64
	for _, b := range r.Bets {
		sum += b.Amount
	}
	return sum
}

// TotalTicketPayout sums per-ticket payouts.
func (r ExtractionResult) TotalTicketPayout() int64 {
	var sum int64
	for _, b := range r.Bets {
		sum += b.Payout
	}
	return sum
}

func stripSpaces(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '\f', '\v', '\u00a0', '\u3000', '\ufeff':
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// StrPtr returns nil for empty strings.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Int64Ptr returns a pointer to v.
func Int64Ptr(v int64) *int64 {
	return &v
}

// Deref returns the pointed-to string or "".
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
