package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/ingest"
)

var (
	batchWorkers    int
	batchForce      bool
	batchSkipHidden bool
	batchUseAI      bool
)

type batchReport struct {
	Root    string              `json:"root"`
	Stats   ingest.DirStats     `json:"stats"`
	Results []ingest.FileResult `json:"results"`
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Process every ticket image under a directory",
	Long:  "Runs OCR and extraction for each image and writes <image>.json next to it. Images with a result are skipped unless --force is set.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx, envOptions{ocr: true})
		if err != nil {
			return err
		}
		defer e.Close()

		workers := batchWorkers
		if workers <= 0 {
			workers = cfg.Ingest.Workers
		}
		ing := ingest.NewIngestor(e.Processor, e.Logger, batchUseAI || cfg.Ingest.UseAI)
		results, stats, runErr := ing.IngestDirectory(ctx, args[0], ingest.DirOptions{
			Workers:    workers,
			SkipHidden: batchSkipHidden,
			Force:      batchForce,
		})
		if results == nil && runErr != nil {
			return runErr
		}
		if runErr != nil {
			e.Logger.Warn("batch.interrupted", zap.Error(runErr))
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, batchReport{Root: args[0], Stats: stats, Results: results})
	},
}

func init() {
	batchCmd.Flags().IntVar(&batchWorkers, "workers", 0, "concurrent images (default ingest.workers)")
	batchCmd.Flags().BoolVar(&batchForce, "force", false, "reprocess images that already have a result")
	batchCmd.Flags().BoolVar(&batchSkipHidden, "skip-hidden", true, "skip dot files and directories")
	batchCmd.Flags().BoolVar(&batchUseAI, "ai", false, "run the AI extraction stage")
	rootCmd.AddCommand(batchCmd)
}
