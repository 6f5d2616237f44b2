// Package main provides the entry point for the Interview Engine HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "interview_engine",
	Short: "Adaptive Interview Engine HTTP API Server",
	Long:  "Interview Engine conducts adaptive mock interviews: it selects questions calibrated to the candidate, evaluates answers against a rubric, and maintains a longitudinal skill-gap ledger via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
