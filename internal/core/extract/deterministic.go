// Package extract turns normalised betting-slip text into tickets using fixed
// rules. Every function here is pure and safe for concurrent use.
package extract

import (
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// Report carries diagnostics from a deterministic pass.
type Report struct {
	DocumentType string      `json:"documentType,omitempty"`
	Rows         []RowReport `json:"rows,omitempty"`
}

// Deterministic extracts header fields and per-row tickets from normalised
// text. An empty Bets slice means the caller should try Fallback.
func Deterministic(text string) entity.ExtractionResult {
	res, _ := DeterministicWithReport(text)
	return res
}

// DeterministicWithReport is Deterministic plus row diagnostics and the
// document-level bet type used as the fallback default.
func DeterministicWithReport(text string) (entity.ExtractionResult, Report) {
	res := entity.NewExtractionResult()
	var rep Report

	if date, ok := DetectDate(text); ok {
		res.Date = &date
	}
	if track, race, ok := DetectTrackRace(text); ok {
		res.Track = &track
		res.RaceName = &race
	}
	res.Source = DetectSource(text)
	if docType, ok := DetectDocumentBetType(text); ok {
		rep.DocumentType = docType
	}

	tickets, rows := ParseRows(text)
	res.Bets = tickets
	rep.Rows = rows

	if payout, ok := AggregatePayout(text); ok {
		res.Payout = &payout
	}
	return res, rep
}
