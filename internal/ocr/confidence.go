package ocr

import (
	"regexp"
	"strings"
)

var (
	reTicketDate  = regexp.MustCompile(`20\d{2}\s*[年/\-]\s*\d{1,2}\s*[月/\-]\s*\d{1,2}`)
	reTicketYen   = regexp.MustCompile(`[\d０-９][\d０-９,，]*\s*円`)
	reTicketRace  = regexp.MustCompile(`\d{1,2}\s*[RＲ]`)
	ticketMarkers = []string{"単勝", "複勝", "馬連", "馬単", "ワイド", "枠連", "連複", "連単"}
)

// heuristicConfidence scores how much text looks like a betting slip.
func heuristicConfidence(txt string) float32 {
	score := float32(0.2)
	if reTicketDate.MatchString(txt) {
		score += 0.2
	}
	if reTicketYen.MatchString(txt) {
		score += 0.15
	}
	if reTicketRace.MatchString(txt) {
		score += 0.1
	}
	for _, m := range ticketMarkers {
		if strings.Contains(txt, m) {
			score += 0.2
			break
		}
	}
	if len([]rune(txt)) > 60 {
		score += 0.1
	}
	if score > 1 {
		score = 1
	}
	return score
}
