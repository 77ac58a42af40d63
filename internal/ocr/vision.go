package ocr

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	vision "google.golang.org/api/vision/v1"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// VisionConfig configures the Cloud Vision engine.
type VisionConfig struct {
	APIKey   string
	Endpoint string // override for tests, e.g. an httptest URL
	Timeout  time.Duration
}

// Vision reads tickets with DOCUMENT_TEXT_DETECTION and a Japanese language hint.
type Vision struct {
	svc     *vision.Service
	timeout time.Duration
	logger  *zap.Logger
}

func NewVision(ctx context.Context, cfg VisionConfig, logger *zap.Logger) (*Vision, error) {
	if cfg.APIKey == "" {
		return nil, common.NewAppError("CONFIG_ERROR", "Vision API key is not configured", eris.New("ocr: vision api key is empty"))
	}
	opts := []option.ClientOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}
	svc, err := vision.NewService(ctx, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "ocr: vision service")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Vision{svc: svc, timeout: cfg.Timeout, logger: common.LoggerOrGlobal(logger)}, nil
}

func (v *Vision) Name() string { return EngineVision }

// ExtractText returns fullTextAnnotation.text, falling back to the first
// textAnnotations description. A response-level error is an upstream failure.
func (v *Vision) ExtractText(ctx context.Context, img Image) (Result, error) {
	log := common.LoggerFromContext(ctx, v.logger)
	if len(img.Data) == 0 {
		return Result{}, common.NewAppError("INVALID_IMAGE", "画像データが空です", common.ErrInvalidInput)
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	start := time.Now()
	req := &vision.BatchAnnotateImagesRequest{
		Requests: []*vision.AnnotateImageRequest{{
			Image:        &vision.Image{Content: base64.StdEncoding.EncodeToString(img.Data)},
			Features:     []*vision.Feature{{Type: "DOCUMENT_TEXT_DETECTION"}},
			ImageContext: &vision.ImageContext{LanguageHints: []string{"ja"}},
		}},
	}
	resp, err := v.svc.Images.Annotate(req).Context(ctx).Do()
	if err != nil {
		log.Error("ocr.vision.error", zap.Error(err), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
		return Result{}, upstream(err, "ocr: vision annotate")
	}
	if len(resp.Responses) == 0 {
		return Result{Engine: EngineVision, Duration: time.Since(start)}, nil
	}

	first := resp.Responses[0]
	if first.Error != nil && first.Error.Message != "" {
		log.Error("ocr.vision.response_error", zap.String("message", first.Error.Message), zap.Int64("code", first.Error.Code))
		return Result{}, upstream(eris.New(first.Error.Message), "ocr: vision response")
	}

	text := ""
	switch {
	case first.FullTextAnnotation != nil && first.FullTextAnnotation.Text != "":
		text = first.FullTextAnnotation.Text
	case len(first.TextAnnotations) > 0:
		text = first.TextAnnotations[0].Description
	}
	log.Info("ocr.vision.ok", zap.Int("text_len", len(text)), zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return Result{Text: text, Engine: EngineVision, Duration: time.Since(start)}, nil
}
