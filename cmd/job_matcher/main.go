// Package main provides the entry point for the job matcher service.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "job_matcher",
	Short: "Background job matching service",
	Long:  "job_matcher periodically searches external job listings for users with complete preferences, scores each listing against the user's resume, and records the results as matches.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
