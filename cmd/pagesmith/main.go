// Package main provides the entry point for the Pagesmith landing page
// service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pagesmith",
	Short: "Pagesmith landing page generator",
	Long:  "Pagesmith generates and iteratively edits marketing landing pages by driving a fixed multi-step AI pipeline, then serves the resulting documents.",
}

var (
	configPath string
	ephemeral  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.json (values can be overridden by environment variables)")
	rootCmd.PersistentFlags().BoolVar(&ephemeral, "ephemeral", false, "Use an in-memory store instead of Postgres or the file store (nothing survives the process)")
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
