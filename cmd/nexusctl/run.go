// ABOUTME: nexusctl run command executing a workflow
// ABOUTME: --input key=value pairs or --inputs-json become the inputs map

package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	runInputs     []string
	runInputsJSON string
	runAsync      bool
)

var runCmd = &cobra.Command{
	Use:   "run <workflow>",
	Short: "Execute a workflow",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		inputs, err := parseInputs(runInputs, runInputsJSON)
		if err != nil {
			return err
		}

		run, err := gatewayClient.Execute(cmd.Context(), args[0], inputs, runAsync)
		if err != nil {
			return err
		}
		return printRun(run)
	},
}

// parseInputs merges --inputs-json with --input key=value pairs; pairs
// win on conflict. Values parse as JSON when they look like it, else
// they stay strings.
func parseInputs(pairs []string, raw string) (map[string]any, error) {
	inputs := make(map[string]any)
	if raw != "" {
		if err := json.Unmarshal([]byte(raw), &inputs); err != nil {
			return nil, fmt.Errorf("parsing --inputs-json: %w", err)
		}
	}
	for _, pair := range pairs {
		key, value, found := strings.Cut(pair, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid --input %q (want key=value)", pair)
		}
		var parsed any
		if err := json.Unmarshal([]byte(value), &parsed); err != nil {
			parsed = value
		}
		inputs[key] = parsed
	}
	return inputs, nil
}

func init() {
	runCmd.Flags().StringArrayVar(&runInputs, "input", nil, "workflow input as key=value (repeatable)")
	runCmd.Flags().StringVar(&runInputsJSON, "inputs-json", "", "workflow inputs as a JSON object")
	runCmd.Flags().BoolVar(&runAsync, "async", false, "return the run ID immediately instead of waiting")
	rootCmd.AddCommand(runCmd)
}
