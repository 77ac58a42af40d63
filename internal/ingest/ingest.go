// Package ingest runs ticket photos found on disk through the processor and
// writes each result next to its image.
package ingest

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/async"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
)

// ResultSuffix is appended to an image path to name its result file.
const ResultSuffix = ".json"

// ImageProcessor is the behavior the ingestor depends on. *core.Processor satisfies it.
type ImageProcessor interface {
	ProcessImage(ctx context.Context, req core.Request) (core.Result, error)
}

// FileResult is the per-file outcome.
type FileResult struct {
	Path       string
	ResultPath string
	Tickets    int
	Skipped    bool
	Err        string
}

// DirStats summarizes a directory run.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Skipped   uint32
	Failed    uint32
}

type Ingestor struct {
	proc    ImageProcessor
	logger  *zap.Logger
	useAI   bool
	maxSize int64
}

func NewIngestor(proc ImageProcessor, logger *zap.Logger, useAI bool) *Ingestor {
	return &Ingestor{proc: proc, logger: common.LoggerOrGlobal(logger), useAI: useAI, maxSize: 20 << 20}
}

// ResultPath is where the result for an image is written.
func ResultPath(imagePath string) string {
	return imagePath + ResultSuffix
}

// IngestPath processes one image. Images that already have a result file are
// skipped unless force is set.
func (i *Ingestor) IngestPath(ctx context.Context, path string, force bool) (FileResult, error) {
	out := FileResult{Path: path, ResultPath: ResultPath(path)}

	if !constants.IsImageExt(filepath.Ext(path)) {
		return out, common.NewAppError("UNSUPPORTED_EXT", "unsupported image extension: "+filepath.Ext(path), common.ErrInvalidInput)
	}
	if !force {
		if _, err := os.Stat(out.ResultPath); err == nil {
			out.Skipped = true
			i.logger.Debug("ingest.skip.existing", zap.String("path", path))
			return out, nil
		}
	}

	img, err := readImage(path, i.maxSize)
	if err != nil {
		return out, err
	}

	start := time.Now()
	res, err := i.proc.ProcessImage(ctx, core.Request{Image: img, UseAI: i.useAI})
	if err != nil {
		i.logger.Error("ingest.process.failed", zap.String("path", path), zap.Error(err))
		return out, eris.Wrapf(err, "ingest: process %s", path)
	}
	out.Tickets = len(res.Outcome.Result.Bets)

	if err := writeJSON(out.ResultPath, res); err != nil {
		return out, err
	}
	i.logger.Info("ingest.file.ok",
		zap.String("path", path),
		zap.Int("tickets", out.Tickets),
		zap.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// Handle lets the ingestor serve as a queue handler.
func (i *Ingestor) Handle(ctx context.Context, job async.Job) error {
	_, err := i.IngestPath(ctx, job.Path, job.Force)
	return err
}

func readImage(path string, maxSize int64) (ocr.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ocr.Image{}, eris.Wrapf(err, "ingest: stat %s", path)
	}
	if info.Size() == 0 {
		return ocr.Image{}, common.NewAppError("EMPTY_IMAGE", "image file is empty", common.ErrInvalidInput)
	}
	if maxSize > 0 && info.Size() > maxSize {
		return ocr.Image{}, common.NewAppError("IMAGE_TOO_LARGE", "image file is too large", common.ErrInvalidInput)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ocr.Image{}, eris.Wrapf(err, "ingest: read %s", path)
	}
	return ocr.Image{Data: data, MIME: constants.MIMEForExt(filepath.Ext(path))}, nil
}

// writeJSON writes through a temp file so watchers never see a partial result.
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrap(err, "ingest: marshal result")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "ingest: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return eris.Wrapf(err, "ingest: rename %s", path)
	}
	return nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
