package ocr

import (
	"context"
	"regexp"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// TesseractConfig configures the local engine.
type TesseractConfig struct {
	Lang        string // default "jpn"
	TessdataDir string
	PSM         int // 6 suits a uniform block of text
}

// tessClient is the part of *gosseract.Client the engine drives.
type tessClient interface {
	SetLanguage(langs ...string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetTessdataPrefix(prefix string) error
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	GetBoundingBoxes(level gosseract.PageIteratorLevel) ([]gosseract.BoundingBox, error)
	Close() error
}

// Tesseract runs libtesseract in-process through gosseract. A client is
// created per call since gosseract clients are not safe for concurrent use.
type Tesseract struct {
	cfg       TesseractConfig
	newClient func() tessClient
	logger    *zap.Logger
}

func NewTesseract(cfg TesseractConfig, logger *zap.Logger) *Tesseract {
	logger = common.LoggerOrGlobal(logger)
	if cfg.Lang == "" {
		cfg.Lang = "jpn"
	}
	return &Tesseract{
		cfg:       cfg,
		newClient: func() tessClient { return gosseract.NewClient() },
		logger:    logger,
	}
}

func (t *Tesseract) Name() string { return EngineTesseract }

var reBoxNoise = regexp.MustCompile(`[│┃┆┊]+`)

type tessOutput struct {
	text     string
	words    []gosseract.BoundingBox
	warnings []string
	err      error
}

// ExtractText recognises img. The cgo call cannot be interrupted, so a
// cancelled ctx returns early and the call finishes in the background.
func (t *Tesseract) ExtractText(ctx context.Context, img Image) (Result, error) {
	if len(img.Data) == 0 {
		return Result{}, common.NewAppError("INVALID_IMAGE", "画像データが空です", common.ErrInvalidInput)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, eris.Wrap(err, "ocr: tesseract")
	}
	start := time.Now()

	done := make(chan tessOutput, 1)
	go func() { done <- t.recognise(img.Data) }()

	var out tessOutput
	select {
	case <-ctx.Done():
		return Result{}, upstream(ctx.Err(), "ocr: tesseract")
	case out = <-done:
	}
	if out.err != nil {
		return Result{Warnings: out.warnings}, upstream(out.err, "ocr: tesseract")
	}

	text := reBoxNoise.ReplaceAllString(out.text, "")
	conf := heuristicConfidence(text)
	if c := meanWordConfidence(out.words); c > 0 {
		conf = 0.7*c + 0.3*conf
	}
	if conf > 1 {
		conf = 1
	}

	t.logger.Info("ocr.tesseract.ok",
		zap.Int("text_len", len(text)),
		zap.Int("words", len(out.words)),
		zap.Float32("confidence", conf),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
	)
	return Result{
		Text:       text,
		Engine:     EngineTesseract,
		Confidence: conf,
		Duration:   time.Since(start),
		Warnings:   out.warnings,
	}, nil
}

func (t *Tesseract) recognise(data []byte) tessOutput {
	client := t.newClient()
	defer func() {
		if err := client.Close(); err != nil {
			t.logger.Warn("ocr.tesseract.close_failed", zap.Error(err))
		}
	}()

	if t.cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(t.cfg.TessdataDir); err != nil {
			return tessOutput{err: eris.Wrap(err, "set tessdata prefix")}
		}
	}
	if err := client.SetLanguage(t.cfg.Lang); err != nil {
		return tessOutput{err: eris.Wrap(err, "set language")}
	}
	if t.cfg.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(t.cfg.PSM)); err != nil {
			return tessOutput{err: eris.Wrap(err, "set page seg mode")}
		}
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return tessOutput{err: eris.Wrap(err, "set image")}
	}
	text, err := client.Text()
	if err != nil {
		return tessOutput{err: eris.Wrap(err, "recognise"), warnings: []string{err.Error()}}
	}

	out := tessOutput{text: text}
	words, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		out.warnings = append(out.warnings, err.Error())
	} else {
		out.words = words
	}
	return out
}

// meanWordConfidence returns the mean word confidence in 0..1, skipping
// boxes tesseract reports as unscored.
func meanWordConfidence(words []gosseract.BoundingBox) float32 {
	var sum, n float64
	for _, w := range words {
		if w.Confidence < 0 {
			continue
		}
		sum += w.Confidence
		n++
	}
	if n == 0 {
		return 0
	}
	return float32(sum / n / 100)
}
