package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "unsubscribe",
	Short: "Unsubscribes email addresses from newsletter pages with a headless browser",
	Long: `unsubscribe drives an unsubscribe page the way a person would: it solves a
CAPTCHA when one is present, asks a generative model which controls to use,
falls back to fixed heuristics, and reports whether the page confirmed it.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newConsoleCmd())
	rootCmd.AddCommand(newHistoryCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
