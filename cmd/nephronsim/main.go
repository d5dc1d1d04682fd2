// Command nephronsim runs the nephron homeostasis simulator: single scenarios
// from the terminal, or an HTTP API that runs and stores them.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/talgya/nephron-sim/internal/config"
)

var (
	configPath string
	logLevel   string

	appCfg = config.Default()
)

var rootCmd = &cobra.Command{
	Use:   "nephronsim",
	Short: "Simulate renal electrolyte homeostasis",
	Long: `nephronsim folds filtered plasma through the six nephron segments and
adjusts reabsorption day by day to pull Na+, K+ and HCO3- back to their
setpoints, with tubuloglomerular feedback setting GFR.

Settings come from defaults, then the YAML file named by --config or
NEPHRON_CONFIG, then NEPHRON_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func loadConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		if _, err := config.ParseLevel(logLevel); err != nil {
			return err
		}
		cfg.LogLevel = logLevel
	}
	slog.SetDefault(newLogger(os.Stderr, cfg.Level()))
	appCfg = cfg
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file (or set NEPHRON_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(runsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
