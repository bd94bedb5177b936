package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/log"
)

var (
	configFile string
	logLevel   string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "wirerelay",
	Short: "Store-and-forward text relay",
	Long: `Wirerelay relays short text messages between named clients over TCP.

Every relayed message is appended to a history log, whether or not the
recipient is connected, and either participant can replay a conversation.

Use 'wirerelay help <command>' for more information on a specific command.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
}

// stderrLogger keeps stdout free for protocol output in the client commands.
func stderrLogger(fallback string) *zerolog.Logger {
	level := logLevel
	if level == "" {
		level = fallback
	}
	return log.NewWithWriter(level, os.Stderr)
}
