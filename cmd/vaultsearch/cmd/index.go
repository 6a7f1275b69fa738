package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/scheduler"
)

var (
	indexSince string
	indexDays  int
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect and extend the search index coverage",
	Long: `Mail search only sees mail received inside the indexed range. These
commands show the range and move its start further back.`,
}

var indexStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the index coverage",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, engine, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		cov := engine.IndexCoverage()
		oldest, err := s.OldestMail()
		if err != nil {
			return fmt.Errorf("oldest mail: %w", err)
		}

		fmt.Printf("Coverage:    %s\n", describeCoverage(cov))
		if oldest.IsZero() {
			fmt.Printf("Oldest mail: none\n")
		} else {
			fmt.Printf("Oldest mail: %s\n", oldest.Local().Format(restriction.DateLayout))
		}
		return nil
	},
}

var indexExtendCmd = &cobra.Command{
	Use:   "extend",
	Short: "Index mail back to a day",
	Long: `Extend the index coverage so mail received on or after the given day
becomes searchable. Use --since for a day or --days to go back a number of
days from today. Without either, one backfill step is taken, as the
scheduled backfill in serve would.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if indexSince != "" && indexDays > 0 {
			return errors.New("--since and --days are mutually exclusive")
		}

		s, engine, err := openEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		var since time.Time
		switch {
		case indexSince != "":
			day, err := restriction.ParseDay(indexSince)
			if err != nil {
				return err
			}
			since = *day
		case indexDays > 0:
			since = query.StartOfDay(time.Now()).AddDate(0, 0, -indexDays)
		default:
			backfill := scheduler.NewBackfill(engine, cfg.Index.BackfillStepDays, logger, nil)
			cov, err := backfill.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Coverage: %s\n", describeCoverage(cov))
			return nil
		}

		if err := engine.ExtendCoverage(cmd.Context(), since); err != nil {
			return err
		}
		fmt.Printf("Coverage: %s\n", describeCoverage(engine.IndexCoverage()))
		return nil
	},
}

func describeCoverage(cov query.Coverage) string {
	switch cov.Kind {
	case query.CoverageFull:
		return "all mail"
	case query.CoverageNone:
		return "nothing indexed"
	default:
		return "mail since " + cov.Since.Local().Format(restriction.DateLayout)
	}
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexStatusCmd)
	indexCmd.AddCommand(indexExtendCmd)
	indexExtendCmd.Flags().StringVar(&indexSince, "since", "", "Index mail received on or after this day (YYYY-MM-DD)")
	indexExtendCmd.Flags().IntVar(&indexDays, "days", 0, "Index mail received in the last N days")
}
