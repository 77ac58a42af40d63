package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/keiba-tracker/internal/llm"
)

var raceReq llm.RaceLookupRequest

var raceCmd = &cobra.Command{
	Use:   "race-name",
	Short: "Look up the official name of a race",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := parseDateFlag("date", raceReq.Date); err != nil || raceReq.Date == "" {
			return eris.New("--date must be YYYY-MM-DD")
		}
		if raceReq.RaceNumber < 1 || raceReq.RaceNumber > 12 {
			return eris.New("--race must be between 1 and 12")
		}
		e, err := initEnv(cmd.Context(), envOptions{})
		if err != nil {
			return err
		}
		defer e.Close()
		if e.AI == nil {
			return eris.New("race lookup needs an llm provider")
		}
		name, err := e.AI.LookupRaceName(cmd.Context(), raceReq)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]*string{"raceName": name})
	},
}

func init() {
	raceCmd.Flags().StringVar(&raceReq.Date, "date", "", "race date, YYYY-MM-DD")
	raceCmd.Flags().StringVar(&raceReq.Track, "track", "", "racecourse, e.g. 東京")
	raceCmd.Flags().IntVar(&raceReq.RaceNumber, "race", 0, "race number 1-12")
	_ = raceCmd.MarkFlagRequired("track")
	rootCmd.AddCommand(raceCmd)
}
