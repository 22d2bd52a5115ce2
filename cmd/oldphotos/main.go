package main

import (
	"log"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "oldphotos",
	Short: "Local photo-restoration job server",
	Long: "Serves the photo-restoration API: photo uploads, the job queue and\n" +
		"its scheduler, and the Python worker pipeline. Designed to run next\n" +
		"to the desktop app on the same machine.",
	// Bare invocation serves; the desktop shell spawns the binary as-is.
	RunE: runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
