package main

import (
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var parseNoAI bool

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Extract bets from OCR text in a file or stdin",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text, err := readText(cmd.InOrStdin(), args)
		if err != nil {
			return err
		}
		e, err := initEnv(cmd.Context(), envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()

		out := e.Processor.ProcessText(cmd.Context(), text, !parseNoAI && e.AI != nil)
		return writeOutput(cmd.OutOrStdout(), outputFormat, out)
	},
}

func readText(stdin io.Reader, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) == 0 || args[0] == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(args[0])
	}
	if err != nil {
		return "", eris.Wrap(err, "read text")
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", eris.New("no text to parse")
	}
	return string(data), nil
}

func init() {
	parseCmd.Flags().BoolVar(&parseNoAI, "no-ai", false, "skip the AI extraction stage")
	rootCmd.AddCommand(parseCmd)
}
