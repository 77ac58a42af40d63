package entity

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Bet represents a stored betting-slip record for data transfer between layers.
type Bet struct {
	ID             uuid.UUID      `json:"id"`
	UserID         uuid.UUID      `json:"user_id"`
	RaceDate       time.Time      `json:"race_date"`
	RaceName       *string        `json:"race_name,omitempty"`
	Track          *string        `json:"track,omitempty"`
	Source         *string        `json:"source,omitempty"`
	TicketType     string         `json:"ticket_type"`
	AmountBet      int64          `json:"amount_bet"`
	AmountReturned *int64         `json:"amount_returned,omitempty"`
	RecoveryRate   *float64       `json:"recovery_rate,omitempty"`
	Memo           *string        `json:"memo,omitempty"`
	ImagePath      *string        `json:"image_path,omitempty"`
	Tickets        []StoredTicket `json:"bets"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// RecoveryRate is returned/bet*100 rounded to one decimal. Nil when nothing was staked.
func RecoveryRate(bet, returned int64) *float64 {
	if bet <= 0 {
		return nil
	}
	r := math.Round(float64(returned)/float64(bet)*1000) / 10
	return &r
}

// BetSummary aggregates a user's bets.
type BetSummary struct {
	Count          int      `json:"count"`
	TotalBet       int64    `json:"total_bet"`
	TotalReturned  int64    `json:"total_returned"`
	RecoveryRate   *float64 `json:"recovery_rate"`
	HitCount       int      `json:"hit_count"`
	HitRatePercent *float64 `json:"hit_rate"`
}

// Summarize folds bets into a BetSummary.
func Summarize(bets []Bet) BetSummary {
	var s BetSummary
	for _, b := range bets {
		s.Count++
		s.TotalBet += b.AmountBet
		if b.AmountReturned != nil {
			s.TotalReturned += *b.AmountReturned
			if *b.AmountReturned > 0 {
				s.HitCount++
			}
		}
	}
	s.RecoveryRate = RecoveryRate(s.TotalBet, s.TotalReturned)
	if s.Count > 0 {
		hr := math.Round(float64(s.HitCount)/float64(s.Count)*1000) / 10
		s.HitRatePercent = &hr
	}
	return s
}
