// Package main provides the chatlink CLI, an interactive terminal client for
// the chat transport.
//
// # Basic Usage
//
// Start an interactive session:
//
//	chatlink chat --url wss://chat.example.com/ws --token $CHAT_TOKEN --join 42
//
// Print the effective configuration:
//
//	chatlink config show --config chatlink.yaml
//
// # Environment Variables
//
//   - CHATLINK_CONFIG: Path to configuration file (default: ~/.chatlink/config.yaml)
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	var configPath string
	rootCmd := &cobra.Command{
		Use:          "chatlink",
		Short:        "chatlink - real-time chat transport client",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (or set CHATLINK_CONFIG)")

	rootCmd.AddCommand(
		buildChatCmd(&configPath),
		buildConfigCmd(&configPath),
	)
	return rootCmd
}
