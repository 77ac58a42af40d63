package server

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
)

const maxTextBytes = 256 << 10

type imageRequest struct {
	ImageData  string `json:"imageData"`
	UseAI      bool   `json:"useAI"`
	StoreImage bool   `json:"storeImage"`
}

type textRequest struct {
	Text  string `json:"text"`
	UseAI bool   `json:"useAI"`
}

// vision returns the raw OCR text of an image.
func (a *API) vision(w http.ResponseWriter, r *http.Request) {
	if a.OCR == nil {
		a.fail(w, r, unavailable("ocr"))
		return
	}
	var req imageRequest
	if err := decodeJSON(w, r, a.MaxImageBytes, &req, msgInvalidImage); err != nil {
		a.fail(w, r, err)
		return
	}
	img, err := ocr.DecodeImageData(req.ImageData)
	if err != nil {
		a.fail(w, r, common.NewAppError("INVALID_IMAGE", msgInvalidImage, err))
		return
	}
	res, err := a.OCR.ExtractText(r.Context(), img)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": res.Text})
}

// structure exposes the AI stage directly: malformed output is an upstream error.
func (a *API) structure(w http.ResponseWriter, r *http.Request) {
	if a.AI == nil {
		a.fail(w, r, unavailable("llm"))
		return
	}
	var req textRequest
	if err := decodeJSON(w, r, maxTextBytes, &req, msgInvalidText); err != nil {
		a.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		a.fail(w, r, common.NewAppError("INVALID_TEXT", msgInvalidText, common.ErrInvalidInput))
		return
	}
	plan, err := a.resolvePlan(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !plan.AIAssistEnabled {
		a.fail(w, r, common.NewAppError("AI_DISABLED", constants.MsgAIAssistDisabled, common.ErrForbidden))
		return
	}

	res, _, err := a.AI.ExtractTickets(r.Context(), llm.ExtractRequest{Text: req.Text})
	if err != nil {
		common.LoggerFromContext(r.Context(), a.logger).Warn("http.structure.failed", zap.Error(err))
		if errors.Is(err, llm.ErrMalformedResponse) {
			a.fail(w, r, common.NewAppError("AI_PARSE_FAILED", "解析結果の読み取りに失敗しました", errors.Join(common.ErrUpstream, err)))
			return
		}
		if !errors.Is(err, common.ErrUpstream) {
			err = errors.Join(common.ErrUpstream, err)
		}
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// parse runs the full pipeline over text. AI assist needs a plan that allows it.
func (a *API) parse(w http.ResponseWriter, r *http.Request) {
	if a.Processor == nil {
		a.fail(w, r, unavailable("pipeline"))
		return
	}
	var req textRequest
	if err := decodeJSON(w, r, maxTextBytes, &req, msgInvalidText); err != nil {
		a.fail(w, r, err)
		return
	}
	useAI := req.UseAI
	if useAI {
		plan, err := a.resolvePlan(r.Context())
		if err != nil {
			a.fail(w, r, err)
			return
		}
		useAI = plan.AIAssistEnabled
	}
	writeJSON(w, http.StatusOK, a.Processor.ProcessText(r.Context(), req.Text, useAI))
}

// image checks plan and quota, runs OCR and the pipeline, and optionally
// stores the photo.
func (a *API) image(w http.ResponseWriter, r *http.Request) {
	if a.Processor == nil {
		a.fail(w, r, unavailable("pipeline"))
		return
	}
	var req imageRequest
	if err := decodeJSON(w, r, a.MaxImageBytes, &req, msgInvalidImage); err != nil {
		a.fail(w, r, err)
		return
	}
	img, err := ocr.DecodeImageData(req.ImageData)
	if err != nil {
		a.fail(w, r, common.NewAppError("INVALID_IMAGE", msgInvalidImage, err))
		return
	}
	plan, err := a.resolvePlan(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Processor.ProcessImage(r.Context(), core.Request{
		UserID:     common.UserIDFromContext(r.Context()),
		Plan:       &plan,
		Image:      img,
		UseAI:      req.UseAI,
		StoreImage: req.StoreImage,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) usageSnapshot(w http.ResponseWriter, r *http.Request) {
	plan, err := a.resolvePlan(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.Usage.Snapshot(r.Context(), common.UserIDFromContext(r.Context()), plan)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// usageConsume takes one credit and answers with the updated snapshot.
func (a *API) usageConsume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	plan, err := a.resolvePlan(ctx)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	uid := common.UserIDFromContext(ctx)
	if err := a.Usage.Consume(ctx, uid, plan); err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.Usage.Snapshot(ctx, uid, plan)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type planResponse struct {
	Role            constants.UserRole `json:"role"`
	Label           string             `json:"label"`
	MaxBets         *int               `json:"maxBets"`
	OCREnabled      bool               `json:"ocrEnabled"`
	AIAssistEnabled bool               `json:"aiAssistEnabled"`
	OCRMonthlyLimit *int               `json:"ocrMonthlyLimit"`
}

func (a *API) plan(w http.ResponseWriter, r *http.Request) {
	p, err := a.resolvePlan(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, planResponse(p))
}
