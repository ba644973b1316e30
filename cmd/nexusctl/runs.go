// ABOUTME: nexusctl runs subcommands for inspecting execution runs
// ABOUTME: get, cancel and watch by run ID

package main

import (
	"time"

	"github.com/spf13/cobra"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect execution runs",
}

var runsGetCmd = &cobra.Command{
	Use:   "get <run-id>",
	Short: "Show a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := gatewayClient.GetRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRun(run)
	},
}

var runsCancelCmd = &cobra.Command{
	Use:   "cancel <run-id>",
	Short: "Request cancellation of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := gatewayClient.CancelRun(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printRun(run)
	},
}

var watchInterval time.Duration

var runsWatchCmd = &cobra.Command{
	Use:   "watch <run-id>",
	Short: "Poll a run until it reaches a terminal state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := gatewayClient.WatchRun(cmd.Context(), args[0], watchInterval)
		if err != nil {
			return err
		}
		return printRun(run)
	},
}

func init() {
	runsWatchCmd.Flags().DurationVar(&watchInterval, "interval", time.Second, "poll interval")
	runsCmd.AddCommand(runsGetCmd, runsCancelCmd, runsWatchCmd)
	rootCmd.AddCommand(runsCmd)
}
