package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/client"
)

var (
	serverAddr string
	identity   string
	timeout    time.Duration
)

// addClientFlags registers the connection flags shared by client commands.
func addClientFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&serverAddr, "server", "localhost:9000", "Relay server address")
	cmd.Flags().StringVar(&identity, "as", "", "Identifier to send as")
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "Time to wait for the server")
	_ = cmd.MarkFlagRequired("as")
}

func dial(ctx context.Context) (*client.Session, error) {
	sess, err := client.Dial(ctx, serverAddr, identity,
		client.WithLogger(stderrLogger("warn")),
		client.WithDialTimeout(timeout),
		client.WithHistoryTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", serverAddr, err)
	}
	return sess, nil
}

// sendCmd sends one message and waits for the relay's confirmation.
var sendCmd = &cobra.Command{
	Use:   "send <recipient> <message...>",
	Short: "Send a single message",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		sess, err := dial(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		recipient, body := args[0], strings.Join(args[1:], " ")
		if err := sess.Send(ctx, recipient, body); err != nil {
			return err
		}
		if err := sess.WaitConfirmed(ctx, body); err != nil {
			return fmt.Errorf("wait for confirmation: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "confirmed: %s -> %s: %s\n", identity, recipient, body)
		return nil
	},
}

// historyCmd prints the stored conversation with a counterpart.
var historyCmd = &cobra.Command{
	Use:   "history <counterpart>",
	Short: "Print the conversation history with a counterpart",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		sess, err := dial(ctx)
		if err != nil {
			return err
		}
		defer sess.Close()

		lines, err := sess.RequestHistory(ctx, args[0])
		if err != nil {
			return err
		}
		for _, line := range lines {
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	},
}

func init() {
	addClientFlags(sendCmd)
	addClientFlags(historyCmd)
	rootCmd.AddCommand(sendCmd, historyCmd)
}
