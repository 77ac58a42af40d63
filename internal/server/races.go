package server

import (
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

type raceLookupRequest struct {
	Date       any `json:"date"`
	Track      any `json:"track"`
	RaceNumber any `json:"raceNumber"`
}

type raceLookupResponse struct {
	RaceName *string `json:"raceName"`
}

var reRaceNumber = regexp.MustCompile(`^\d{1,2}$`)

// parseRaceNumber accepts an integer or a one- or two-digit string in 1..12.
func parseRaceNumber(v any) (int, bool) {
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), i >= 1 && i <= 12
	case string:
		if !reRaceNumber.MatchString(n) {
			return 0, false
		}
		i, _ := strconv.Atoi(n)
		return i, i >= 1 && i <= 12
	}
	return 0, false
}

// validateRaceLookup returns the typed request or an invalid-input error.
func validateRaceLookup(body raceLookupRequest) (llm.RaceLookupRequest, error) {
	invalid := common.NewAppError("INVALID_LOOKUP", msgInvalidInput, common.ErrInvalidInput)
	date, ok := body.Date.(string)
	if !ok {
		return llm.RaceLookupRequest{}, invalid
	}
	track, ok := body.Track.(string)
	if !ok {
		return llm.RaceLookupRequest{}, invalid
	}
	n, ok := parseRaceNumber(body.RaceNumber)
	if !ok {
		return llm.RaceLookupRequest{}, invalid
	}
	v := common.NewValidator().
		Field("date", date, common.DateYMD).
		Field("track", track, common.Required, common.MaxLength(32))
	if v.HasErrors() {
		return llm.RaceLookupRequest{}, common.NewAppError("INVALID_LOOKUP", msgInvalidInput, v.Error())
	}
	return llm.RaceLookupRequest{Date: date, Track: strings.TrimSpace(track), RaceNumber: n}, nil
}

// raceLookup validates before checking the caller, so malformed requests are
// 400 even when anonymous.
func (a *API) raceLookup(w http.ResponseWriter, r *http.Request) {
	var body raceLookupRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		a.fail(w, r, common.NewAppError("INVALID_LOOKUP", msgInvalidInput, common.ErrInvalidInput))
		return
	}
	req, err := validateRaceLookup(body)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	ctx := r.Context()
	if common.UserIDFromContext(ctx) == "" {
		a.fail(w, r, common.NewAppError("LOGIN_REQUIRED", msgRaceLoginNeeded, common.ErrUnauthorized))
		return
	}
	plan, err := a.resolvePlan(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !plan.OCREnabled {
		a.fail(w, r, common.NewAppError("OCR_DISABLED", constants.MsgOCRDisabled, common.ErrForbidden))
		return
	}
	if a.Races == nil {
		a.fail(w, r, unavailable("race lookup"))
		return
	}

	name, err := a.Races.LookupRaceName(ctx, req)
	if err != nil {
		a.fail(w, r, common.NewAppError("RACE_LOOKUP_FAILED", "レース名の取得に失敗しました", err))
		return
	}
	common.LoggerFromContext(ctx, a.logger).Debug("http.race_lookup.ok",
		zap.String("track", req.Track),
		zap.Int("race_number", req.RaceNumber),
		zap.Bool("found", name != nil),
	)
	writeJSON(w, http.StatusOK, raceLookupResponse{RaceName: name})
}
