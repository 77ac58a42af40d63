package main

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/keiba-tracker/constants"
	"github.com/joseph-ayodele/keiba-tracker/internal/export"
	"github.com/joseph-ayodele/keiba-tracker/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), envOptions{database: true})
		if err != nil {
			return err
		}
		defer e.Close()
		return repository.Migrate(cmd.Context(), e.Pool, e.Logger)
	},
}

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check database connectivity",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := initEnv(cmd.Context(), envOptions{database: true})
		if err != nil {
			return err
		}
		defer e.Close()
		if err := repository.HealthCheck(cmd.Context(), e.Pool, 5*time.Second); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "DB OK")
		return nil
	},
}

var (
	exportUser string
	exportFrom string
	exportTo   string
	exportOut  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a user's bets to an XLSX file",
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := uuid.Parse(exportUser)
		if err != nil {
			return eris.Wrap(err, "--user must be a UUID")
		}
		from, err := parseDateFlag("from", exportFrom)
		if err != nil {
			return err
		}
		to, err := parseDateFlag("to", exportTo)
		if err != nil {
			return err
		}

		e, err := initEnv(cmd.Context(), envOptions{database: true})
		if err != nil {
			return err
		}
		defer e.Close()

		svc := export.NewService(repository.NewBetRepository(e.Pool, e.Logger), e.Logger)
		data, err := svc.ExportBetsXLSX(cmd.Context(), uid, from, to)
		if err != nil {
			return err
		}
		if err := os.WriteFile(exportOut, data, 0o644); err != nil {
			return eris.Wrapf(err, "write %s", exportOut)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(data))
		return nil
	},
}

func parseDateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, eris.Wrapf(err, "--%s must be YYYY-MM-DD", name)
	}
	return &t, nil
}

var roleCmd = &cobra.Command{
	Use:   "set-role <user-id> <free|premium|admin>",
	Short: "Set a user's plan role",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		uid, err := uuid.Parse(args[0])
		if err != nil {
			return eris.Wrap(err, "user id must be a UUID")
		}
		e, err := initEnv(cmd.Context(), envOptions{database: true})
		if err != nil {
			return err
		}
		defer e.Close()

		role := constants.UserRole(args[1])
		if err := repository.NewProfileRepository(e.Pool, e.Logger).SetRole(cmd.Context(), uid, role); err != nil {
			return err
		}
		plan := constants.ResolvePlan(string(role), cfg.Quota.FreeMonthlyLimit)
		return writeOutput(cmd.OutOrStdout(), outputFormat, map[string]any{"userId": uid, "role": plan.Role, "plan": plan.Label})
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportUser, "user", "", "user id (UUID)")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "first race date, YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "last race date, YYYY-MM-DD")
	exportCmd.Flags().StringVar(&exportOut, "out", "bets.xlsx", "output file")
	_ = exportCmd.MarkFlagRequired("user")

	rootCmd.AddCommand(migrateCmd, dbhealthCmd, exportCmd, roleCmd)
}
