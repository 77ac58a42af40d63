package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

const (
	msgLoginRequired   = "ログインが必要です。"
	msgRaceLoginNeeded = "レース名の取得にはログインが必要です。"
	msgInvalidImage    = "画像データが無効です"
	msgInvalidText     = "テキストが無効です"
	msgInvalidInput    = "入力が不正です"
	msgTooLarge        = "リクエストが大きすぎます"
	msgUnavailable     = "この機能は現在利用できません"
	msgInternal        = "サーバーエラーが発生しました"
)

var errUnavailable = errors.New("feature not configured")

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// fail writes {"error": msg}. Server-side failures are logged with the
// request id; client errors are not.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := common.HTTPStatus(err)
	if errors.Is(err, errUnavailable) {
		status = http.StatusServiceUnavailable
	}
	fallback := http.StatusText(status)
	if status >= http.StatusInternalServerError {
		fallback = msgInternal
		common.LoggerFromContext(r.Context(), a.logger).Error("http.request.failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: common.UserMessage(err, fallback)})
}

func unavailable(feature string) error {
	return common.NewAppError("UNAVAILABLE", msgUnavailable, eris.Wrap(errUnavailable, feature))
}

// decodeJSON reads a single JSON object of at most limit bytes. Any decode
// failure is reported with msg as an invalid-input error.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst any, msg string) error {
	body := http.MaxBytesReader(w, r.Body, limit)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return common.NewAppError("TOO_LARGE", msgTooLarge, errors.Join(common.ErrInvalidInput, err))
		}
		if errors.Is(err, io.EOF) {
			return common.NewAppError("EMPTY_BODY", msg, common.ErrInvalidInput)
		}
		return common.NewAppError("BAD_JSON", msg, errors.Join(common.ErrInvalidInput, err))
	}
	return nil
}
