package ingest

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

// DirOptions controls a directory run.
type DirOptions struct {
	Workers    int
	SkipHidden bool
	Force      bool
}

// Scan walks root and returns the image files under it in walk order.
func Scan(root string, skipHidden bool) ([]string, DirStats, error) {
	var stats DirStats
	if strings.TrimSpace(root) == "" {
		return nil, stats, common.NewAppError("ROOT_REQUIRED", "root path is required", common.ErrInvalidInput)
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			stats.Failed++
			return nil
		}
		if path != root && skipHidden && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		stats.Scanned++
		if !constants.IsImageExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, stats, eris.Wrapf(err, "ingest: walk %s", root)
	}
	return paths, stats, nil
}

// IngestDirectory processes every image under root with a bounded number of
// workers. Per-file failures are reported in the results, not returned.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, opts DirOptions) ([]FileResult, DirStats, error) {
	paths, stats, err := Scan(root, opts.SkipHidden)
	if err != nil {
		return nil, stats, err
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}

	results := make([]FileResult, len(paths))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for idx, path := range paths {
		g.Go(func() error {
			res, err := i.IngestPath(gctx, path, opts.Force)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				res.Err = err.Error()
				stats.Failed++
			case res.Skipped:
				stats.Skipped++
			default:
				stats.Succeeded++
			}
			results[idx] = res
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return results, stats, eris.Wrap(err, "ingest: directory run interrupted")
	}

	i.logger.Info("ingest.directory.done",
		zap.String("root", root),
		zap.Uint32("matched", stats.Matched),
		zap.Uint32("succeeded", stats.Succeeded),
		zap.Uint32("skipped", stats.Skipped),
		zap.Uint32("failed", stats.Failed),
	)
	return results, stats, nil
}
