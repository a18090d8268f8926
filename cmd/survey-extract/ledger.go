package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/survey-extractor/constants"
	"github.com/joseph-ayodele/survey-extractor/internal/bootstrap"
)

var (
	flagRunsStatus string
	flagRunsLimit  int
)

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Connect to the run ledger, ping it and apply the schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if strings.TrimSpace(cfg.Database.DSN) == "" {
			return errors.New("database.dsn is empty (set DB_URL)")
		}
		start := time.Now()
		ledger, err := bootstrap.OpenLedger(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %s ledger reachable and migrated in %s\n",
			ledger.DB.Dialect(), time.Since(start).Round(time.Millisecond))
		return nil
	},
}

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent runs recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ledger, err := bootstrap.OpenLedger(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer ledger.Close()
		if ledger.Runs == nil {
			return errors.New("run ledger is disabled (set DB_URL)")
		}

		runs, err := ledger.Runs.ListRuns(cmd.Context(), constants.RunStatus(strings.ToUpper(flagRunsStatus)), flagRunsLimit)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Run", "File", "Status", "Pages", "Review", "Started"})
		for _, r := range runs {
			review := ""
			if r.NeedsReview {
				review = "yes"
			}
			table.Append([]string{
				r.ID, r.Filename, string(r.Status),
				strconv.Itoa(r.PagesOK) + "/" + strconv.Itoa(r.PagesTotal),
				review, r.StartedAt.Local().Format(time.DateTime),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbhealthCmd, runsCmd)

	runsCmd.Flags().StringVar(&flagRunsStatus, "status", "", "Only runs with this status (e.g. PARTIAL)")
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "Maximum number of runs")
}
