package core

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core/pipeline"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
)

// QuotaConsumer takes one OCR credit for a user on a plan and hands it back
// when the OCR call fails.
type QuotaConsumer interface {
	Consume(ctx context.Context, userID string, plan constants.Plan) error
	Release(ctx context.Context, userID string, plan constants.Plan) error
}

// ImageStore keeps the uploaded photo and returns its object path.
type ImageStore interface {
	Put(ctx context.Context, userID string, data []byte, mime string) (string, error)
}

// Processor coordinates OCR (image to text) then the extraction pipeline.
type Processor struct {
	logger   *zap.Logger
	source   ocr.TextSource
	pipeline *pipeline.Pipeline
	quota    QuotaConsumer
	images   ImageStore
}

// NewProcessor wires the stages. quota and images may be nil.
func NewProcessor(logger *zap.Logger, source ocr.TextSource, pl *pipeline.Pipeline, quota QuotaConsumer, images ImageStore) *Processor {
	return &Processor{
		logger:   common.LoggerOrGlobal(logger),
		source:   source,
		pipeline: pl,
		quota:    quota,
		images:   images,
	}
}

// Request is one image to process. A nil Plan is a trusted local caller
// (CLI batch/watch): no quota is taken and AI is allowed.
type Request struct {
	UserID     string
	Plan       *constants.Plan
	Image      ocr.Image
	UseAI      bool
	StoreImage bool
}

// Result is the OCR output, the pipeline outcome and the stored image path.
type Result struct {
	OCR       ocr.Result       `json:"ocr"`
	Outcome   pipeline.Outcome `json:"outcome"`
	ImagePath *string          `json:"imagePath,omitempty"`
}

// ProcessImage checks the plan, takes a credit, runs OCR and the pipeline.
// OCR failure is fatal and returns the credit; AI failure is not. Storage failure is logged and the
// result is returned without an image path.
func (p *Processor) ProcessImage(ctx context.Context, req Request) (Result, error) {
	log := common.LoggerFromContext(ctx, p.logger)
	start := time.Now()

	if len(req.Image.Data) == 0 {
		return Result{}, common.NewAppError("EMPTY_IMAGE", "画像データがありません。", common.ErrInvalidInput)
	}
	if p.source == nil {
		return Result{}, common.NewAppError("OCR_UNCONFIGURED", "OCR engine is not configured", common.ErrInternal)
	}

	useAI := req.UseAI
	charged := false
	if req.Plan != nil {
		if !req.Plan.OCREnabled {
			return Result{}, common.NewAppError("OCR_DISABLED", constants.MsgOCRDisabled, common.ErrForbidden)
		}
		if useAI && !req.Plan.AIAssistEnabled {
			log.Info("processor.ai.plan_disabled", zap.String("role", string(req.Plan.Role)))
			useAI = false
		}
		if p.quota != nil {
			if err := p.quota.Consume(ctx, req.UserID, *req.Plan); err != nil {
				log.Info("processor.quota.rejected", zap.Error(err))
				return Result{}, err
			}
			charged = true
		}
	}

	ocrRes, err := p.source.ExtractText(ctx, req.Image)
	if err != nil {
		log.Error("processor.ocr.failed", zap.String("engine", p.source.Name()), zap.Error(err))
		if charged {
			if rerr := p.quota.Release(context.WithoutCancel(ctx), req.UserID, *req.Plan); rerr != nil {
				log.Warn("processor.quota.release_failed", zap.Error(rerr))
			}
		}
		return Result{OCR: ocrRes}, eris.Wrap(err, "processor: ocr")
	}
	log.Debug("processor.ocr.ok",
		zap.String("engine", ocrRes.Engine),
		zap.Bool("cached", ocrRes.Cached),
		zap.Float32("confidence", ocrRes.Confidence),
		zap.Int("text_len", len(ocrRes.Text)),
	)
	if strings.TrimSpace(ocrRes.Text) == "" {
		log.Warn("processor.ocr.empty_text", zap.String("engine", ocrRes.Engine))
	}

	out := Result{
		OCR:     ocrRes,
		Outcome: p.pipeline.Run(ctx, ocrRes.Text, pipeline.RunOptions{UseAI: useAI}),
	}

	if req.StoreImage && p.images != nil {
		path, err := p.images.Put(ctx, req.UserID, req.Image.Data, req.Image.MIME)
		if err != nil {
			log.Warn("processor.image.store_failed", zap.Error(err))
		} else {
			out.ImagePath = &path
		}
	}

	log.Info("processor.done",
		zap.Int("tickets", len(out.Outcome.Result.Bets)),
		zap.Bool("ai_used", out.Outcome.AIUsed),
		zap.Bool("fallback_used", out.Outcome.FallbackUsed),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// ProcessText runs the pipeline on text the caller already has.
func (p *Processor) ProcessText(ctx context.Context, text string, useAI bool) pipeline.Outcome {
	return p.pipeline.Run(ctx, text, pipeline.RunOptions{UseAI: useAI})
}
