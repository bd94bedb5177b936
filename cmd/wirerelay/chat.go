package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/wirerelay/internal/client"
)

// chatCmd runs an interactive session reading "recipient: text" lines.
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive relay session",
	Long: `Read lines from stdin and relay them.

  <recipient>: <text>    send text to recipient
  /history <peer>        print the conversation with peer
  /quit                  leave

Incoming messages are printed as they arrive.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sess, err := dial(cmd.Context())
		if err != nil {
			return err
		}
		defer sess.Close()

		out := &syncWriter{w: cmd.OutOrStdout()}
		sess.OnReceived(func(m client.Message) {
			out.printf("[%s] %s\n", m.From, m.Body)
		})
		sess.OnConfirmed(func(m client.Message) {
			out.printf("(sent to %s) %s\n", m.To, m.Body)
		})

		return runChat(cmd.Context(), sess, cmd.InOrStdin(), out)
	},
}

func init() {
	addClientFlags(chatCmd)
	rootCmd.AddCommand(chatCmd)
}

func runChat(ctx context.Context, sess *client.Session, in io.Reader, out *syncWriter) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case strings.HasPrefix(line, "/history "):
			peer := strings.TrimSpace(strings.TrimPrefix(line, "/history "))
			lines, err := sess.RequestHistory(ctx, peer)
			if err != nil {
				return err
			}
			for _, l := range lines {
				out.printf("%s\n", l)
			}
			continue
		}

		recipient, body, ok := strings.Cut(line, ":")
		recipient, body = strings.TrimSpace(recipient), strings.TrimSpace(body)
		if !ok || recipient == "" || body == "" {
			out.printf("usage: <recipient>: <text>\n")
			continue
		}
		if err := sess.Send(ctx, recipient, body); err != nil {
			return err
		}
	}
	return scanner.Err()
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format, args...)
}
