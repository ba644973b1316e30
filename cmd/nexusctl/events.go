// ABOUTME: nexusctl events command for tailing the gateway event stream
// ABOUTME: Supports replay from a cursor and type pattern filtering

package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/nexus-gateway/internal/client"
)

var (
	eventsSince   string
	eventsPattern string
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Tail gateway events",
	Long: `Tail the gateway's event stream. Use --since to replay persisted
events after a known event ID, and --pattern to filter by type
(e.g. "workflow.*"). Runs until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return gatewayClient.StreamEvents(cmd.Context(), eventsSince, eventsPattern, func(evt *client.Event) error {
			if jsonOutput {
				return printJSON(evt)
			}
			labelColor.Printf("%s", evt.Type)
			mutedColor.Printf("  %s  %s\n", evt.ID, evt.Timestamp.Format("15:04:05"))
			if len(evt.Payload) > 0 {
				payload, err := json.Marshal(evt.Payload)
				if err != nil {
					return err
				}
				fmt.Printf("  %s\n", payload)
			}
			return nil
		})
	},
}

func init() {
	eventsCmd.Flags().StringVar(&eventsSince, "since", "", "replay persisted events after this event ID")
	eventsCmd.Flags().StringVar(&eventsPattern, "pattern", "", "event type pattern filter")
	rootCmd.AddCommand(eventsCmd)
}
