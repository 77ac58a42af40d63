package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/async"
	coreasync "github.com/joseph-ayodele/keiba-tracker/internal/core/async"
	"github.com/joseph-ayodele/keiba-tracker/internal/ingest"
)

var (
	watchInitial bool
	watchUseAI   bool
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Process ticket images as they appear in directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, envOptions{ocr: true})
		if err != nil {
			return err
		}
		defer e.Close()
		log := e.Logger

		ing := ingest.NewIngestor(e.Processor, log, watchUseAI || cfg.Ingest.UseAI)
		queue := coreasync.NewProcessorQueue(ing, log,
			coreasync.WithWorkers(cfg.Ingest.Workers),
			coreasync.WithQueueSize(cfg.Ingest.QueueSize),
			coreasync.WithProcessTimeout(3*time.Minute),
		)

		paths, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
			Roots:       args,
			InitialScan: watchInitial,
			Debounce:    cfg.Ingest.Debounce,
			SkipHidden:  true,
		}, log)
		if err != nil {
			queue.Shutdown(context.Background())
			return err
		}

		for paths != nil || errs != nil {
			select {
			case p, ok := <-paths:
				if !ok {
					paths = nil
					continue
				}
				job := async.Job{Path: p, SubmittedAt: time.Now(), TraceID: uuid.NewString()}
				if err := queue.Enqueue(ctx, job); err != nil {
					log.Warn("watch.enqueue.failed", zap.String("path", p), zap.Error(err))
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				log.Warn("watch.error", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		queue.Shutdown(shutdownCtx)
		log.Info("watch.stopped")
		return nil
	},
}

func init() {
	watchCmd.Flags().BoolVar(&watchInitial, "initial-scan", true, "process images already present at start")
	watchCmd.Flags().BoolVar(&watchUseAI, "ai", false, "run the AI extraction stage")
	rootCmd.AddCommand(watchCmd)
}
