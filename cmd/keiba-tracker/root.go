package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/keiba-tracker/internal/common"
)

var (
	cfg          *common.Config
	configPath   string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:           "keiba-tracker",
	Short:         "Betting-slip OCR and bet tracking",
	Long:          "Extracts structured bets from photographed horse-racing tickets, serves the tracking API and runs batch ingestion.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := common.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := c.Validate(); err != nil {
			return err
		}
		cfg = c

		if err := common.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "o", "json", "output format: json or yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", common.UserMessage(err, err.Error()))
		os.Exit(1)
	}
}
