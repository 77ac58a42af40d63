// Package ocr turns ticket photos into raw text. Engines are Google Cloud
// Vision and a local tesseract binary; either can sit behind a SQLite cache.
package ocr

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

const (
	EngineVision    = "vision"
	EngineTesseract = "tesseract"

	msgOCRFailed = "画像の解析に失敗しました。時間をおいて再度お試しください。"
)

// Image is one photo to read.
type Image struct {
	Data []byte
	MIME string
}

// Result is the raw text an engine produced.
type Result struct {
	Text       string        `json:"text"`
	Engine     string        `json:"engine"`
	Confidence float32       `json:"confidence,omitempty"`
	Duration   time.Duration `json:"-"`
	Cached     bool          `json:"cached"`
	Warnings   []string      `json:"warnings,omitempty"`
}

// TextSource is implemented by every OCR engine. Transport failures come back
// as errors matching common.ErrUpstream.
type TextSource interface {
	ExtractText(ctx context.Context, img Image) (Result, error)
	Name() string
}

// LatencyObserver receives per-call engine latency. *metrics.Metrics satisfies it.
type LatencyObserver interface {
	ObserveOCR(engine string, d time.Duration, err error)
}

// New builds the configured engine, wrapped in the cache when cfg.CachePath is set.
// The returned close func releases the cache.
func New(ctx context.Context, cfg common.OCRConfig, logger *zap.Logger, obs LatencyObserver) (TextSource, func() error, error) {
	logger = common.LoggerOrGlobal(logger)
	noop := func() error { return nil }

	var src TextSource
	switch cfg.Engine {
	case EngineVision, "":
		v, err := NewVision(ctx, VisionConfig{
			APIKey:   cfg.VisionAPIKey,
			Endpoint: cfg.VisionEndpoint,
			Timeout:  cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		src = v
	case EngineTesseract:
		src = NewTesseract(TesseractConfig{
			Lang:        cfg.TesseractLang,
			TessdataDir: cfg.TessdataDir,
			PSM:         cfg.TesseractPSM,
		}, logger)
	default:
		return nil, noop, eris.Errorf("ocr: unknown engine %q", cfg.Engine)
	}

	if obs != nil {
		src = &observed{next: src, obs: obs}
	}
	if cfg.CachePath == "" {
		return src, noop, nil
	}
	cache, err := OpenCache(ctx, cfg.CachePath)
	if err != nil {
		return nil, noop, err
	}
	return NewCached(src, cache, logger), cache.Close, nil
}

type observed struct {
	next TextSource
	obs  LatencyObserver
}

func (o *observed) Name() string { return o.next.Name() }

func (o *observed) ExtractText(ctx context.Context, img Image) (Result, error) {
	start := time.Now()
	res, err := o.next.ExtractText(ctx, img)
	o.obs.ObserveOCR(o.next.Name(), time.Since(start), err)
	return res, err
}

// upstream tags an engine failure as an upstream error with a user message.
func upstream(err error, op string) error {
	return common.NewAppError("OCR_UPSTREAM", msgOCRFailed, errors.Join(common.ErrUpstream, eris.Wrap(err, op)))
}
