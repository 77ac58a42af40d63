package extract

import (
	"strings"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/ocr"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// RowReport describes how one ticket row was handled.
type RowReport struct {
	Index          int               `json:"index"`
	Text           string            `json:"text"`
	Type           constants.BetType `json:"type,omitempty"`
	Tickets        int               `json:"tickets"`
	Formation      bool              `json:"formation"`
	IgnoredAmounts int               `json:"ignoredAmounts,omitempty"`
	Skipped        string            `json:"skipped,omitempty"`
}

const (
	skipNoDate    = "no_date"
	skipNoType    = "no_type"
	skipNoAmount  = "no_amount"
	skipNoNumbers = "no_numbers"
)

// SplitRows cuts text at every "<row no> <YYYY>年<M>月<D>日" marker. Each row
// runs to the next marker or the end of text.
func SplitRows(text string) []string {
	locs := reRowStart.FindAllStringIndex(text, -1)
	rows := make([]string, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		row := strings.TrimFunc(text[loc[0]:end], ocr.IsSpace)
		if row != "" {
			rows = append(rows, row)
		}
	}
	return rows
}

// ParseRows runs per-row parsing over every segmented row. Rows that lack a
// date, type, stake or selection are skipped and reported, never errors.
func ParseRows(text string) ([]entity.Ticket, []RowReport) {
	tickets := make([]entity.Ticket, 0)
	var reports []RowReport
	for i, row := range SplitRows(text) {
		rowTickets, report := parseRow(row)
		report.Index = i
		tickets = append(tickets, rowTickets...)
		reports = append(reports, report)
	}
	return tickets, reports
}

func parseRow(raw string) ([]entity.Ticket, RowReport) {
	report := RowReport{Text: raw}

	rowText := reRowIndex.ReplaceAllString(raw, "")
	dateLoc := reRowDate.FindStringIndex(rowText)
	if dateLoc == nil {
		report.Skipped = skipNoDate
		return nil, report
	}
	rowText = strings.TrimFunc(rowText[dateLoc[1]:], ocr.IsSpace)

	if loc := reTrackRace.FindStringIndex(rowText); loc != nil {
		rowText = strings.TrimFunc(rowText[:loc[0]]+rowText[loc[1]:], ocr.IsSpace)
	}

	typeLoc := reRowType.FindStringIndex(rowText)
	if typeLoc == nil {
		report.Skipped = skipNoType
		return nil, report
	}
	betType, _ := constants.Canonicalize(rowText[typeLoc[0]:typeLoc[1]])
	report.Type = betType

	rowText = rowText[:typeLoc[0]] + rowText[typeLoc[1]:]
	rowText = strings.ReplaceAll(rowText, "通常", " ")
	rowText = rePipes.ReplaceAllString(rowText, " ")
	rowText = strings.TrimFunc(rowText, ocr.IsSpace)

	tokens := splitTokens(rowText)
	money := collectAmounts(tokens)
	report.IgnoredAmounts = money.ignored
	if money.amount == 0 {
		report.Skipped = skipNoAmount
		return nil, report
	}

	var tickets []entity.Ticket
	add := func(parts []string) {
		if t, ok := newLocalTicket(betType, parts, money.amount, money.payout); ok {
			tickets = append(tickets, t)
		}
	}

	if groups := parseFormation(rowText); len(groups) >= 2 {
		for _, combo := range expandFormation(groups, betType) {
			add(combo)
		}
		if len(tickets) > 0 {
			report.Formation = true
			report.Tickets = len(tickets)
			return tickets, report
		}
	}

	if parts := explicitSelections(tokens, betType); len(parts) > 0 {
		add(parts)
	}
	if len(tickets) == 0 {
		report.Skipped = skipNoNumbers
	}
	report.Tickets = len(tickets)
	return tickets, report
}

type rowMoney struct {
	amount  int64
	payout  int64
	ignored int
}

// collectAmounts takes the first money token not preceded by 的中/払戻 as the
// stake and the next money token as the payout. Further tokens are counted
// as ignored.
func collectAmounts(tokens []string) rowMoney {
	var (
		out       rowMoney
		amountSet bool
		payoutSet bool
	)
	for i, tok := range tokens {
		sanitized := reMoneyNoise.ReplaceAllString(tok, "")
		if sanitized == "" {
			continue
		}
		m := reMoneyToken.FindStringSubmatch(sanitized)
		if m == nil {
			continue
		}
		value := parseYen(m[1])
		prev := ""
		if i > 0 {
			prev = tokens[i-1]
		}
		switch {
		case !amountSet && !strings.Contains(prev, "的中") && !strings.Contains(prev, "払戻"):
			out.amount = value
			amountSet = true
		case !payoutSet:
			out.payout = value
			payoutSet = true
		default:
			out.ignored++
		}
	}
	return out
}

// explicitSelections finds the first "a-b" / "a→b→c" token, or a bare number
// for 単勝/複勝.
func explicitSelections(tokens []string, betType constants.BetType) []string {
	for _, tok := range tokens {
		if m := reNumbersToken.FindString(tok); m != "" {
			return splitSelections(m)
		}
	}
	if betType.IsSingle() {
		for _, tok := range tokens {
			if reBareNumber.MatchString(tok) {
				return []string{tok}
			}
		}
	}
	return nil
}

func splitSelections(s string) []string {
	var out []string
	for _, p := range reSplitSelections.Split(s, -1) {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// newLocalTicket enforces the arity of betType before building a ticket.
func newLocalTicket(betType constants.BetType, parts []string, amount, payout int64) (entity.Ticket, bool) {
	if len(parts) == 0 || len(parts) != betType.Arity() {
		return entity.Ticket{}, false
	}
	return entity.Ticket{
		Type:       betType,
		Numbers:    betType.JoinNumbers(parts),
		Amount:     amount,
		Payout:     payout,
		Provenance: entity.ProvenanceLocal,
	}, true
}
