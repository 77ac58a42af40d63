package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
)

// BetFilter bounds a listing by race date, inclusive. Zero values are open.
type BetFilter struct {
	From time.Time
	To   time.Time
}

type BetRepository interface {
	Create(ctx context.Context, bet *entity.Bet, maxBets *int) (*entity.Bet, error)
	List(ctx context.Context, userID uuid.UUID, filter BetFilter) ([]entity.Bet, error)
	Count(ctx context.Context, userID uuid.UUID) (int64, error)
}

type betRepository struct {
	pool   Pool
	logger *zap.Logger
}

func NewBetRepository(pool Pool, logger *zap.Logger) BetRepository {
	return &betRepository{pool: pool, logger: common.LoggerOrGlobal(logger)}
}

const betColumns = `id, user_id, race_date, race_name, track, source, ticket_type,
	amount_bet, amount_returned, recovery_rate, memo, image_path, bets, created_at, updated_at`

// The insert is skipped when the user already holds maxBets rows; a NULL cap
// means unlimited.
const insertBetSQL = `INSERT INTO bets (id, user_id, race_date, race_name, track, source, ticket_type,
	amount_bet, amount_returned, recovery_rate, memo, image_path, bets)
SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13
WHERE $14::int IS NULL OR (SELECT count(*) FROM bets WHERE user_id = $2) < $14::int
RETURNING created_at, updated_at`

// Create inserts a bet. Amount totals and recovery rate are derived from the
// tickets when AmountBet is zero.
func (r *betRepository) Create(ctx context.Context, bet *entity.Bet, maxBets *int) (*entity.Bet, error) {
	if bet == nil {
		return nil, common.NewAppError("INVALID_BET", "bet is required", common.ErrInvalidInput)
	}
	if bet.ID == uuid.Nil {
		bet.ID = uuid.New()
	}
	if bet.AmountBet == 0 {
		for _, t := range bet.Tickets {
			bet.AmountBet += t.Amount
		}
	}
	if bet.RecoveryRate == nil && bet.AmountReturned != nil {
		bet.RecoveryRate = entity.RecoveryRate(bet.AmountBet, *bet.AmountReturned)
	}
	if bet.Tickets == nil {
		bet.Tickets = []entity.StoredTicket{}
	}
	payload, err := json.Marshal(bet.Tickets)
	if err != nil {
		return nil, eris.Wrap(err, "repository: marshal tickets")
	}

	var limit *int32
	if maxBets != nil {
		l := int32(*maxBets)
		limit = &l
	}

	err = r.pool.QueryRow(ctx, insertBetSQL,
		bet.ID, bet.UserID, bet.RaceDate, bet.RaceName, bet.Track, bet.Source, bet.TicketType,
		bet.AmountBet, bet.AmountReturned, bet.RecoveryRate, bet.Memo, bet.ImagePath, payload, limit,
	).Scan(&bet.CreatedAt, &bet.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		r.logger.Info("bets.create.capped", zap.String("user_id", bet.UserID.String()), zap.Int32p("max_bets", limit))
		return nil, common.NewAppError("MAX_BETS", fmt.Sprintf(constants.MsgMaxBetsFormat, *maxBets), common.ErrForbidden)
	}
	if err != nil {
		r.logger.Error("bets.create.failed", zap.String("user_id", bet.UserID.String()), zap.Error(err))
		return nil, wrapDB(err, "repository: insert bet")
	}
	r.logger.Debug("bets.create.ok", zap.String("bet_id", bet.ID.String()), zap.Int("tickets", len(bet.Tickets)))
	return bet, nil
}

// List returns the user's bets newest race first.
func (r *betRepository) List(ctx context.Context, userID uuid.UUID, filter BetFilter) ([]entity.Bet, error) {
	var from, to *time.Time
	if !filter.From.IsZero() {
		from = &filter.From
	}
	if !filter.To.IsZero() {
		to = &filter.To
	}

	rows, err := r.pool.Query(ctx, `SELECT `+betColumns+`
FROM bets
WHERE user_id = $1
  AND ($2::date IS NULL OR race_date >= $2::date)
  AND ($3::date IS NULL OR race_date <= $3::date)
ORDER BY race_date DESC, created_at DESC`, userID, from, to)
	if err != nil {
		return nil, wrapDB(err, "repository: list bets")
	}
	defer rows.Close()

	bets := make([]entity.Bet, 0)
	for rows.Next() {
		var (
			b       entity.Bet
			payload []byte
		)
		if err := rows.Scan(&b.ID, &b.UserID, &b.RaceDate, &b.RaceName, &b.Track, &b.Source, &b.TicketType,
			&b.AmountBet, &b.AmountReturned, &b.RecoveryRate, &b.Memo, &b.ImagePath, &payload,
			&b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, wrapDB(err, "repository: scan bet")
		}
		b.Tickets = []entity.StoredTicket{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &b.Tickets); err != nil {
				r.logger.Warn("bets.tickets.decode_failed", zap.String("bet_id", b.ID.String()), zap.Error(err))
			}
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDB(err, "repository: iterate bets")
	}
	return bets, nil
}

func (r *betRepository) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT count(*) FROM bets WHERE user_id = $1`, userID).Scan(&n); err != nil {
		return 0, wrapDB(err, "repository: count bets")
	}
	return n, nil
}

// BetFromResult turns a pipeline result into a storable bet. The ticket type
// is the single type shared by every ticket, or 複数 when they differ.
func BetFromResult(userID uuid.UUID, res entity.ExtractionResult, raceDate time.Time) *entity.Bet {
	bet := &entity.Bet{
		UserID:         userID,
		RaceDate:       raceDate,
		RaceName:       res.RaceName,
		Track:          res.Track,
		Memo:           res.Memo,
		AmountReturned: res.Payout,
		Tickets:        make([]entity.StoredTicket, 0, len(res.Bets)),
	}
	if res.Source != "" && res.Source != constants.SourceUnknown {
		bet.Source = entity.StrPtr(string(res.Source))
	}
	for _, t := range res.Bets {
		bet.Tickets = append(bet.Tickets, t.ToStored())
		bet.AmountBet += t.Amount
		switch {
		case bet.TicketType == "":
			bet.TicketType = string(t.Type)
		case bet.TicketType != string(t.Type):
			bet.TicketType = ticketTypeMixed
		}
	}
	if bet.TicketType == "" {
		bet.TicketType = string(constants.UnknownType)
	}
	if bet.AmountReturned != nil {
		bet.RecoveryRate = entity.RecoveryRate(bet.AmountBet, *bet.AmountReturned)
	}
	return bet
}

const ticketTypeMixed = "複数"
