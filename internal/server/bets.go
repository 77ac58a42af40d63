package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/entity"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

// createBetRequest is an extraction result as the form submits it.
type createBetRequest struct {
	entity.ExtractionResult
	ImagePath *string `json:"imagePath"`
}

func (a *API) createBet(w http.ResponseWriter, r *http.Request) {
	if a.Bets == nil {
		a.fail(w, r, unavailable("bets"))
		return
	}
	var req createBetRequest
	if err := decodeJSON(w, r, maxTextBytes, &req, msgInvalidInput); err != nil {
		a.fail(w, r, err)
		return
	}
	raceDate, err := validateBet(&req)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ctx := r.Context()
	uid := userUUID(ctx)
	if a.Profiles != nil {
		if err := a.Profiles.Ensure(ctx, uid); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	plan, err := a.resolvePlan(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	bet := repository.BetFromResult(uid, req.ExtractionResult, raceDate)
	bet.ImagePath = req.ImagePath
	saved, err := a.Bets.Create(ctx, bet, plan.MaxBets)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// validateBet canonicalises ticket types and parses the race date.
func validateBet(req *createBetRequest) (time.Time, error) {
	v := common.NewValidator().
		Field("date", req.Date, common.Required).
		Field("memo", req.Memo, common.MaxLength(1000)).
		Field("raceName", req.RaceName, common.MaxLength(200))
	if req.Date != nil {
		v.Field("date", *req.Date, common.DateYMD)
	}
	if len(req.Bets) == 0 {
		v.Field("bets", "", common.Required)
	}
	for i := range req.Bets {
		t := &req.Bets[i]
		bt, ok := constants.Canonicalize(string(t.Type))
		if !ok {
			v.Field(fmt.Sprintf("bets[%d].type", i), "", common.Required)
			continue
		}
		t.Type = bt
		v.Field(fmt.Sprintf("bets[%d].numbers", i), t.Numbers, common.Required, common.MaxLength(200))
		v.Field(fmt.Sprintf("bets[%d].amount", i), t.Amount, common.IntRange(0, 100_000_000))
	}
	if req.Payout != nil {
		v.Field("payout", *req.Payout, common.IntRange(0, 10_000_000_000))
	}
	if err := v.Error(); err != nil {
		return time.Time{}, common.NewAppError("INVALID_BET", msgInvalidInput+": "+v.ErrorMessage(), err)
	}
	req.Source = constants.ParseSource(string(req.Source))
	d, _ := time.Parse("2006-01-02", *req.Date)
	return d, nil
}

// dateRange parses optional from/to query parameters (YYYY-MM-DD).
func dateRange(r *http.Request) (from, to *time.Time, err error) {
	parse := func(name string) (*time.Time, error) {
		s := strings.TrimSpace(r.URL.Query().Get(name))
		if s == "" {
			return nil, nil
		}
		if e := common.DateYMD(name, s); e != nil {
			return nil, common.NewAppError("INVALID_RANGE", msgInvalidInput, common.ErrInvalidInput)
		}
		t, _ := time.Parse("2006-01-02", s)
		return &t, nil
	}
	if from, err = parse("from"); err != nil {
		return nil, nil, err
	}
	if to, err = parse("to"); err != nil {
		return nil, nil, err
	}
	if from != nil && to != nil && to.Before(*from) {
		return nil, nil, common.NewAppError("INVALID_RANGE", msgInvalidInput, common.ErrInvalidInput)
	}
	return from, to, nil
}

func filterFor(from, to *time.Time) repository.BetFilter {
	var f repository.BetFilter
	if from != nil {
		f.From = *from
	}
	if to != nil {
		f.To = *to
	}
	return f
}

func (a *API) listBets(w http.ResponseWriter, r *http.Request) {
	bets, ok := a.loadBets(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

func (a *API) betSummary(w http.ResponseWriter, r *http.Request) {
	bets, ok := a.loadBets(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, entity.Summarize(bets))
}

func (a *API) loadBets(w http.ResponseWriter, r *http.Request) ([]entity.Bet, bool) {
	if a.Bets == nil {
		a.fail(w, r, unavailable("bets"))
		return nil, false
	}
	from, to, err := dateRange(r)
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	bets, err := a.Bets.List(r.Context(), userUUID(r.Context()), filterFor(from, to))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if bets == nil {
		bets = []entity.Bet{}
	}
	return bets, true
}

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (a *API) exportBets(w http.ResponseWriter, r *http.Request) {
	if a.Exporter == nil {
		a.fail(w, r, unavailable("export"))
		return
	}
	from, to, err := dateRange(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	data, err := a.Exporter.ExportBetsXLSX(r.Context(), userUUID(r.Context()), from, to)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="bets.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
