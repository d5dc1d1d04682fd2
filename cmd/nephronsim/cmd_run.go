package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/nephron-sim/internal/engine"
	"github.com/talgya/nephron-sim/internal/persistence"
	"github.com/talgya/nephron-sim/internal/report"
	"github.com/talgya/nephron-sim/internal/scenario"
)

var (
	runDays        int
	runFile        string
	runPlot        string
	runCSV         string
	runReport      bool
	runNoSave      bool
	runAll         bool
	runQuiet       bool
	runVariability float64
	runSeed        int64
)

var runCmd = &cobra.Command{
	Use:   "run [scenario]",
	Short: "Run a scenario and print its trajectory",
	Long: `Run one built-in scenario (default "healthy"), a YAML scenario file given
with --file, or every built-in scenario in parallel with --all.

Runs are stored in the database unless --no-save is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntVarP(&runDays, "days", "d", 0, "Days to simulate (0 = scenario or config default)")
	runCmd.Flags().StringVarP(&runFile, "file", "f", "", "YAML scenario file")
	runCmd.Flags().StringVar(&runPlot, "plot", "", "Write a PNG chart to this path")
	runCmd.Flags().StringVar(&runCSV, "csv", "", "Write the history as CSV to this path")
	runCmd.Flags().BoolVar(&runReport, "report", false, "Write PNG and CSV reports into the output directory")
	runCmd.Flags().BoolVar(&runNoSave, "no-save", false, "Do not store the run")
	runCmd.Flags().BoolVar(&runAll, "all", false, "Run every built-in scenario")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Print only the summary line")
	runCmd.Flags().Float64Var(&runVariability, "variability", 0, "Relative daily intake noise amplitude (e.g. 0.05)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 1, "Noise seed for --variability")
}

// selectScenarios resolves the command arguments into the scenarios to run.
func selectScenarios(args []string) ([]scenario.Scenario, error) {
	switch {
	case runAll && (runFile != "" || len(args) > 0):
		return nil, errors.New("--all cannot be combined with a scenario name or --file")
	case runAll:
		builtin := scenario.Builtin()
		out := make([]scenario.Scenario, 0, len(builtin))
		for _, name := range scenario.Names() {
			out = append(out, builtin[name])
		}
		return out, nil
	case runFile != "" && len(args) > 0:
		return nil, errors.New("give either a scenario name or --file, not both")
	case runFile != "":
		s, err := scenario.Load(runFile)
		if err != nil {
			return nil, err
		}
		return []scenario.Scenario{s}, nil
	}

	name := "healthy"
	if len(args) == 1 {
		name = args[0]
	}
	s, err := scenario.Lookup(name)
	if err != nil {
		return nil, fmt.Errorf("%w (available: %v)", err, scenario.Names())
	}
	return []scenario.Scenario{s}, nil
}

// runScenarios runs every scenario concurrently and returns results in input order.
func runScenarios(ctx context.Context, list []scenario.Scenario, base engine.Config) ([]*scenario.Result, error) {
	results := make([]*scenario.Result, len(list))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range list {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := scenario.Run(s, base)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	list, err := selectScenarios(args)
	if err != nil {
		return err
	}
	if len(list) > 1 && (runPlot != "" || runCSV != "") {
		return errors.New("--plot and --csv need a single scenario; use --report with --all")
	}
	if runVariability < 0 || runVariability > 0.5 {
		return fmt.Errorf("--variability must be 0-0.5, got %v", runVariability)
	}

	base, err := appCfg.ControllerConfig()
	if err != nil {
		return err
	}
	for i := range list {
		if runDays > 0 {
			list[i].Days = runDays
		}
		if runVariability > 0 {
			list[i].Variability = scenario.Variability{Amplitude: runVariability, Seed: runSeed}
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	results, err := runScenarios(ctx, list, base)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !runQuiet && len(results) == 1 {
		res := results[0]
		printHistory(out, res.Scenario.Label, res.History, res.Config.Setpoint)
	}
	printSummaries(out, results)

	if runPlot != "" {
		if err := savePlot(runPlot, results[0]); err != nil {
			return err
		}
	}
	if runCSV != "" {
		if err := report.SaveCSV(runCSV, results[0].History); err != nil {
			return err
		}
		slog.Info("csv written", "path", runCSV)
	}
	if runReport {
		for _, res := range results {
			stem := filepath.Join(appCfg.OutputDir, res.Scenario.Name)
			if err := savePlot(stem+".png", res); err != nil {
				return err
			}
			if err := report.SaveCSV(stem+".csv", res.History); err != nil {
				return err
			}
		}
		slog.Info("reports written", "dir", appCfg.OutputDir, "count", len(results))
	}

	if runNoSave {
		return nil
	}
	return saveResults(cmd, results)
}

func savePlot(path string, res *scenario.Result) error {
	opts := report.DefaultPlotOptions()
	opts.Title = res.Scenario.Label
	opts.Setpoint = res.Config.Setpoint
	if err := report.SavePlot(path, res.History, opts); err != nil {
		return err
	}
	slog.Info("plot written", "path", path)
	return nil
}

func saveResults(cmd *cobra.Command, results []*scenario.Result) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	for _, res := range results {
		run, err := persistence.NewRun(res.Scenario.Name, res.Scenario.Label, res.Config, res.History)
		if err != nil {
			return err
		}
		if err := db.SaveRun(run, res.History); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), dimStyle.Render("saved run "+run.ID))
	}
	return nil
}
