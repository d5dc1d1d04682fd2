package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/talgya/nephron-sim/internal/persistence"
	"github.com/talgya/nephron-sim/internal/report"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the trajectory of a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write PNG and CSV reports for a stored run into the output directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

var runsDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored run",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsDelete,
}

func init() {
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 20, "Number of runs to list")
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsDeleteCmd)
}

func openDB() (*persistence.DB, error) {
	if err := os.MkdirAll(filepath.Dir(appCfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	db, err := persistence.Open(appCfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", appCfg.DBPath, err)
	}
	return db, nil
}

func runRunsList(cmd *cobra.Command, args []string) error {
	if runsLimit < 1 {
		return fmt.Errorf("--limit must be positive, got %d", runsLimit)
	}
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := db.ListRuns(runsLimit)
	if err != nil {
		return err
	}
	total, err := db.CountRuns()
	if err != nil {
		return err
	}
	printRuns(cmd.OutOrStdout(), runs, total)
	return nil
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.LoadRun(args[0])
	if err != nil {
		return err
	}
	hist, err := db.LoadHistory(run.ID)
	if err != nil {
		return err
	}
	cfg, err := run.Config()
	if err != nil {
		return err
	}
	printHistory(cmd.OutOrStdout(), fmt.Sprintf("%s (%s)", run.Label, run.ID), hist, cfg.Setpoint)
	return nil
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	run, err := db.LoadRun(args[0])
	if err != nil {
		return err
	}
	hist, err := db.LoadHistory(run.ID)
	if err != nil {
		return err
	}

	opts := report.DefaultPlotOptions()
	opts.Title = run.Label
	if cfg, err := run.Config(); err == nil {
		opts.Setpoint = cfg.Setpoint
	}

	stem := filepath.Join(appCfg.OutputDir, run.ID)
	if err := report.SavePlot(stem+".png", hist, opts); err != nil {
		return err
	}
	if err := report.SaveCSV(stem+".csv", hist); err != nil {
		return err
	}
	slog.Info("run exported", "id", run.ID, "dir", appCfg.OutputDir)
	fmt.Fprintln(cmd.OutOrStdout(), stem+".png")
	fmt.Fprintln(cmd.OutOrStdout(), stem+".csv")
	return nil
}

func runRunsDelete(cmd *cobra.Command, args []string) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.DeleteRun(args[0]); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
	return nil
}
