package ingest

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

type WatchConfig struct {
	Roots       []string      // directories to watch (recursive)
	InitialScan bool          // if true, walk roots and emit existing images
	Debounce    time.Duration // coalesce rapid create/write bursts
	SkipHidden  bool
}

// StartWatcher emits image paths created or rewritten under the roots. Both
// channels close when ctx is done.
func StartWatcher(ctx context.Context, cfg WatchConfig, logger *zap.Logger) (<-chan string, <-chan error, error) {
	log := common.LoggerOrGlobal(logger)
	if len(cfg.Roots) == 0 {
		return nil, nil, common.NewAppError("ROOT_REQUIRED", "no roots provided", common.ErrInvalidInput)
	}
	evCh := make(chan string, 256)
	errCh := make(chan error, 1)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, nil, eris.Wrap(err, "ingest: new watcher")
	}

	var initial []string
	addDir := func(root string) error {
		return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if path != root && cfg.SkipHidden && IsHidden(path) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				return w.Add(path)
			}
			if cfg.InitialScan && wanted(path) {
				initial = append(initial, path)
			}
			return nil
		})
	}
	for _, r := range cfg.Roots {
		if err := addDir(r); err != nil {
			_ = w.Close()
			return nil, nil, eris.Wrapf(err, "ingest: watch %s", r)
		}
	}
	log.Info("ingest.watch.started", zap.Strings("roots", cfg.Roots), zap.Int("initial", len(initial)))

	go func() {
		defer close(evCh)
		defer close(errCh)
		defer func() {
			if err := w.Close(); err != nil {
				log.Warn("ingest.watch.close_failed", zap.Error(err))
			}
		}()

		emit := func(p string) bool {
			select {
			case evCh <- p:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, p := range initial {
			if !emit(p) {
				return
			}
		}

		var timer <-chan time.Time
		pending := map[string]struct{}{}

		flush := func() bool {
			for p := range pending {
				delete(pending, p)
				if !emit(p) {
					return false
				}
			}
			return true
		}

		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-w.Events:
				if !ok {
					return
				}
				if e.Has(fsnotify.Create) {
					if info, err := os.Stat(e.Name); err == nil && info.IsDir() {
						if err := w.Add(e.Name); err != nil {
							log.Warn("ingest.watch.add_dir_failed", zap.String("path", e.Name), zap.Error(err))
						}
						continue
					}
				}
				if !wanted(e.Name) || !(e.Has(fsnotify.Create) || e.Has(fsnotify.Write)) {
					continue
				}
				if cfg.SkipHidden && IsHidden(e.Name) {
					continue
				}
				pending[e.Name] = struct{}{}
				if cfg.Debounce > 0 {
					timer = time.After(cfg.Debounce)
				} else if !flush() {
					return
				}
			case <-timer:
				timer = nil
				if !flush() {
					return
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Error("ingest.watch.error", zap.Error(err))
				select {
				case errCh <- err:
				default:
				}
			}
		}
	}()

	return evCh, errCh, nil
}

func wanted(path string) bool {
	return constants.IsImageExt(filepath.Ext(path))
}
