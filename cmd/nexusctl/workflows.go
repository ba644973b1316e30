// ABOUTME: nexusctl workflows command
// ABOUTME: Lists registered workflows with descriptions

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var workflowsCmd = &cobra.Command{
	Use:   "workflows",
	Short: "List available workflows",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		workflows, err := gatewayClient.Workflows(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(workflows)
		}

		if len(workflows) == 0 {
			fmt.Println("no workflows registered")
			return nil
		}
		labelColor.Printf("%-24s %s\n", "WORKFLOW", "DESCRIPTION")
		for _, w := range workflows {
			fmt.Printf("%-24s %s\n", w.Name, w.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(workflowsCmd)
}
