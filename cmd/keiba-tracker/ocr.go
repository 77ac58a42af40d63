package main

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/core"
	"github.com/joseph-ayodele/keiba-tracker/internal/ocr"
)

var (
	ocrTextOnly bool
	ocrUseAI    bool
)

var ocrCmd = &cobra.Command{
	Use:   "ocr <image>",
	Short: "Run OCR and the extraction pipeline on one image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := args[0]
		if !constants.IsImageExt(filepath.Ext(path)) {
			return eris.Errorf("unsupported image extension %q", filepath.Ext(path))
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return eris.Wrap(err, "read image")
		}
		img := ocr.Image{Data: data, MIME: constants.MIMEForExt(filepath.Ext(path))}

		e, err := initEnv(cmd.Context(), envOptions{ocr: true})
		if err != nil {
			return err
		}
		defer e.Close()

		if ocrTextOnly {
			res, err := e.OCR.ExtractText(cmd.Context(), img)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), outputFormat, res)
		}
		res, err := e.Processor.ProcessImage(cmd.Context(), core.Request{Image: img, UseAI: ocrUseAI})
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, res)
	},
}

func init() {
	ocrCmd.Flags().BoolVar(&ocrTextOnly, "text-only", false, "print the OCR result without extraction")
	ocrCmd.Flags().BoolVar(&ocrUseAI, "ai", false, "run the AI extraction stage")
	rootCmd.AddCommand(ocrCmd)
}
