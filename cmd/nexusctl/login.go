// ABOUTME: nexusctl login command
// ABOUTME: Creates a session and stores its token in the config dir

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginTenant string

var loginCmd = &cobra.Command{
	Use:   "login <user>",
	Short: "Create a session and store its token",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := gatewayClient.Login(cmd.Context(), args[0], loginTenant)
		if err != nil {
			return err
		}
		if err := saveToken(result.Token); err != nil {
			return fmt.Errorf("storing token: %w", err)
		}

		if jsonOutput {
			return printJSON(result)
		}
		okColor.Print("logged in ")
		fmt.Printf("as %s (session %s)\n", args[0], result.SessionID)
		mutedColor.Printf("token stored at %s, expires %s\n",
			credentialPath(), result.ExpiresAt.Format("2006-01-02 15:04"))
		return nil
	},
}

func init() {
	loginCmd.Flags().StringVar(&loginTenant, "tenant", "", "tenant scope for the session")
	rootCmd.AddCommand(loginCmd)
}
