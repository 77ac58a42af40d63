package export

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

const sheet = "馬券"

// BetLister is the read side of the bets repository.
type BetLister interface {
	List(ctx context.Context, userID uuid.UUID, filter repository.BetFilter) ([]entity.Bet, error)
}

// Service produces XLSX bytes for bet exports.
type Service struct {
	bets   BetLister
	logger *zap.Logger
	now    func() time.Time
}

func NewService(bets BetLister, logger *zap.Logger) *Service {
	return &Service{bets: bets, logger: common.LoggerOrGlobal(logger), now: time.Now}
}

// ExportBetsXLSX returns a workbook for the user's bets in the window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> every bet.
func (s *Service) ExportBetsXLSX(ctx context.Context, userID uuid.UUID, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	var filter repository.BetFilter
	if from != nil {
		filter.From = dateOnly(*from)
	}
	if to != nil {
		filter.To = dateOnly(*to)
	}
	if from != nil && to == nil {
		filter.To = dateOnly(s.now())
	}

	bets, err := s.bets.List(ctx, userID, filter)
	if err != nil {
		return nil, eris.Wrap(err, "export: list bets")
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, eris.Wrap(err, "export: rename sheet")
	}

	headers := []string{"日付", "レース", "競馬場", "購入元", "券種", "買い目", "購入金額", "払戻金額", "回収率(%)", "メモ"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", "J1", style)
	}

	row := 2
	for _, b := range bets {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, b.RaceDate.Format("2006-01-02"))
		write(2, entity.Deref(b.RaceName))
		write(3, entity.Deref(b.Track))
		write(4, entity.Deref(b.Source))
		write(5, b.TicketType)
		write(6, ticketsCell(b.Tickets))
		write(7, b.AmountBet)
		if b.AmountReturned != nil {
			write(8, *b.AmountReturned)
		}
		if b.RecoveryRate != nil {
			write(9, *b.RecoveryRate)
		}
		write(10, truncate(entity.Deref(b.Memo), 140))
		row++
	}

	summary := entity.Summarize(bets)
	total := func(col int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
	total(1, "合計")
	total(7, summary.TotalBet)
	total(8, summary.TotalReturned)
	if summary.RecoveryRate != nil {
		total(9, *summary.RecoveryRate)
	}

	_ = f.SetColWidth(sheet, "A", "A", 12)
	_ = f.SetColWidth(sheet, "B", "B", 28)
	_ = f.SetColWidth(sheet, "C", "E", 10)
	_ = f.SetColWidth(sheet, "F", "F", 40)
	_ = f.SetColWidth(sheet, "G", "I", 12)
	_ = f.SetColWidth(sheet, "J", "J", 40)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, eris.Wrap(err, "export: write xlsx")
	}

	s.logger.Info("export.xlsx.ok",
		zap.String("user_id", userID.String()),
		zap.Int("rows", len(bets)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return buf.Bytes(), nil
}

// ticketsCell renders tickets one per line as "馬連 3-5 500円".
func ticketsCell(tickets []entity.StoredTicket) string {
	lines := make([]string, 0, len(tickets))
	for _, t := range tickets {
		lines = append(lines, t.Type+" "+t.Numbers+" "+formatYen(t.Amount))
	}
	return strings.Join(lines, "\n")
}

func formatYen(n int64) string {
	s := strings.Builder{}
	digits := []byte(strconv.FormatInt(n, 10))
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			s.WriteByte(',')
		}
		s.WriteByte(d)
	}
	s.WriteString("円")
	return s.String()
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
