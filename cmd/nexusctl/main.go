// ABOUTME: nexusctl CLI entry point over the command and request/response channels
// ABOUTME: Root command, server/token flags and stored credential handling

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/nexus-gateway/internal/client"
)

var (
	serverURL  string
	tokenFlag  string
	jsonOutput bool

	gatewayClient *client.Client
)

func defaultServer() string {
	if s := os.Getenv("NEXUS_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// credentialPath is where nexusctl login stores its token.
func credentialPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "nexus", "token")
}

// resolveToken prefers the flag, then NEXUS_TOKEN, then the stored file.
func resolveToken() string {
	if tokenFlag != "" {
		return tokenFlag
	}
	if t := os.Getenv("NEXUS_TOKEN"); t != "" {
		return t
	}
	path := credentialPath()
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func saveToken(token string) error {
	path := credentialPath()
	if path == "" {
		return fmt.Errorf("cannot determine config directory")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(token+"\n"), 0o600)
}

var rootCmd = &cobra.Command{
	Use:   "nexusctl <command>",
	Short: "CLI client for nexus-gateway",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		gatewayClient = client.New(serverURL, resolveToken())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer(), "gateway base URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", "", "session token (overrides stored credential)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
