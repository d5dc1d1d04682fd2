package main

import (
	"github.com/spf13/cobra"

	"github.com/talgya/nephron-sim/internal/scenario"
)

var scenariosCmd = &cobra.Command{
	Use:   "scenarios",
	Short: "List the built-in scenarios",
	Args:  cobra.NoArgs,
	RunE:  runScenariosList,
}

func runScenariosList(cmd *cobra.Command, args []string) error {
	builtin := scenario.Builtin()
	list := make([]scenario.Scenario, 0, len(builtin))
	for _, name := range scenario.Names() {
		list = append(list, builtin[name])
	}
	printScenarios(cmd.OutOrStdout(), list)
	return nil
}
