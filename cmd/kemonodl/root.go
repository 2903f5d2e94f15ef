package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

var (
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kemonodl",
	Short: "A concurrent downloader for kemono and coomer creator feeds",
	Long: `kemonodl downloads posts and their file attachments from kemono.su,
kemono.party, coomer.su and coomer.party creator feeds.

Features:
  - Concurrent post and file downloads with configurable limits
  - Name filters with per-title, per-file and per-comment scopes
  - Sequential "manga" naming styles for ordered reading
  - Multi-part transfers for large files with automatic fallback
  - Session-wide deduplication by filename and content hash
  - A second retry pass for transient file failures`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.kemono-dl.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`kemonodl {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SilenceUsage = true
}
