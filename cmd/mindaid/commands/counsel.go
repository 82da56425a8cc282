// ABOUTME: CLI commands for counseling conversations
// ABOUTME: Interactive chat or a single message, plus history and reset
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/util"
	"github.com/spf13/cobra"
)

// counselFlow is the part of the counselor the CLI drives
type counselFlow interface {
	Respond(ctx context.Context, userID, message, token string) (*core.CounselReply, error)
}

// Retries of a failed reply reuse the message's idempotency token, so a
// retry never records the user's message twice.
var (
	counselRetries    = 2
	counselRetryDelay = 500 * time.Millisecond
)

// NewCounselCmd creates the counsel command
func NewCounselCmd() *cobra.Command {
	var message, token string

	cmd := &cobra.Command{
		Use:   "counsel <user-id>",
		Short: "Talk with the counselor",
		Long: `Talk with the counselor.

Without --message, starts an interactive conversation; an empty line or
"exit" ends it. The conversation is remembered between sessions until
it is reset.

Examples:
  mindaid counsel user_1234
  mindaid counsel user_1234 --message "I couldn't sleep again"
  mindaid counsel user_1234 --message "hello" --token 7f3c
  mindaid counsel history user_1234 --format json
  mindaid counsel reset user_1234`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if message != "" {
				reply, err := respondWithRetry(ctx, c.Counselor, args[0], message, token)
				if err != nil {
					return err
				}
				if wantJSON() {
					return printJSON(cmd.OutOrStdout(), reply)
				}
				fmt.Fprintln(cmd.OutOrStdout(), reply.Reply)
				return nil
			}
			return chat(ctx, c.Counselor, args[0], newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()))
		},
	}

	cmd.Flags().StringVar(&message, "message", "", "Send one message and print the reply")
	cmd.Flags().StringVar(&token, "token", "", "Idempotency token for --message")

	cmd.AddCommand(newCounselHistoryCmd(), newCounselResetCmd())
	return cmd
}

func newCounselHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <user-id>",
		Short: "Show the remembered conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openBase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			turns, err := c.Memory.Read(ctx, args[0])
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), turns)
		},
	}
}

func newCounselResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <user-id>",
		Short: "Forget the conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openBase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			if err := c.Memory.Reset(ctx, args[0]); err != nil {
				return err
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Conversation for %s has been reset\n", args[0])
			}
			return nil
		},
	}
}

// chat runs the interactive loop until input ends or the user leaves
func chat(ctx context.Context, flow counselFlow, userID string, p *prompter) error {
	for {
		msg, err := p.ask("You:")
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg == "" || strings.EqualFold(msg, "exit") {
			return nil
		}

		reply, err := respondWithRetry(ctx, flow, userID, msg, uuid.New().String())
		if err != nil {
			if models.KindOf(err) == models.KindValidation {
				_, _ = fmt.Fprintf(p.out, "(%v)\n", err)
				continue
			}
			return err
		}
		_, _ = fmt.Fprintf(p.out, "Counselor: %s\n\n", reply.Reply)
	}
}

// respondWithRetry retries retryable failures under the same token
func respondWithRetry(ctx context.Context, flow counselFlow, userID, message, token string) (*core.CounselReply, error) {
	if token == "" {
		token = uuid.New().String()
	}
	var lastErr error
	for attempt := 0; attempt <= counselRetries; attempt++ {
		if attempt > 0 {
			if err := util.SleepContext(ctx, util.CalculateBackoff(counselRetryDelay, attempt)); err != nil {
				return nil, err
			}
		}
		reply, err := flow.Respond(ctx, userID, message, token)
		if err == nil {
			return reply, nil
		}
		if !models.IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("counselor unavailable after %d attempts: %w", counselRetries+1, lastErr)
}

func printHistory(out io.Writer, turns []models.Turn) error {
	if wantJSON() {
		return printJSON(out, turns)
	}
	if len(turns) == 0 {
		if !quiet {
			_, _ = fmt.Fprintln(out, "No conversation yet")
		}
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "WHEN\tROLE\tTEXT\n")
	fmt.Fprintf(w, "----\t----\t----\n")
	for _, t := range turns {
		fmt.Fprintf(w, "%s\t%s\t%s\n", formatTime(t.Timestamp), t.Role, truncate(t.Text, 70))
	}
	return w.Flush()
}
