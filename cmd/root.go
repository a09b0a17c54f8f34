// Package cmd implements the tutorcore CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "tutorcore",
	Short: "tutorcore - RAG tutoring backend",
	Long: `tutorcore is the retrieval-augmented tutoring core: document ingestion
into a vector store, tool-calling bot conversations with per-thread
checkpoints, answer post-processing, and automated grading.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
