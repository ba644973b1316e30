// ABOUTME: nexusctl status command reporting gateway reachability
// ABOUTME: Probes health and lists registered workflow count

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check gateway health",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := gatewayClient.Health(cmd.Context()); err != nil {
			failColor.Printf("gateway unreachable: %v\n", err)
			return err
		}

		if jsonOutput {
			return printJSON(map[string]any{"server": serverURL, "healthy": true})
		}

		labelColor.Printf("%-12s ", "server")
		fmt.Println(serverURL)
		labelColor.Printf("%-12s ", "health")
		okColor.Println("ok")

		// Workflow listing needs a token; skip quietly without one.
		if workflows, err := gatewayClient.Workflows(cmd.Context()); err == nil {
			printField("workflows", len(workflows))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
