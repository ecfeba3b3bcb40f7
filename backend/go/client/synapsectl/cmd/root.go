package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	authURL   string
	tokenFlag string
)

var rootCmd = &cobra.Command{
	Use:           "synapsectl",
	Short:         "A CLI client for SynapseCode workspaces",
	Long:          `A command-line interface for logging in, browsing workspace trees, running files and watching live changes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SYNAPSE_SERVER", "http://localhost:8081"), "workspace service URL")
	rootCmd.PersistentFlags().StringVar(&authURL, "auth", envOr("SYNAPSE_AUTH", "http://localhost:8080"), "user service URL")
	rootCmd.PersistentFlags().StringVar(&tokenFlag, "token", os.Getenv("SYNAPSE_TOKEN"), "access token (defaults to the one saved by login)")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
