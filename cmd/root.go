// Package cmd implements the genlayer CLI using cobra.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"
const logo = "🐬"

var (
	rtwsDir string
	verbose bool
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "genlayer",
	Short: logo + " genlayer: multi-vendor LLM generation layer",
	Long:  logo + " genlayer drives Anthropic, OpenAI, Codex, Gemini, Chat Completions and mock backends through one message model",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command and exits on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = version

	rootCmd.PersistentFlags().StringVar(&rtwsDir, "rtws", ".", "Runtime workspace directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(providersCmd)
	rootCmd.AddCommand(mockCmd)
	rootCmd.AddCommand(onboardCmd)
}
