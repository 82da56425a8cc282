// ABOUTME: CLI commands for MindAid accounts
// ABOUTME: Register, verify credentials, show, and archive users
package commands

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/models"
	"github.com/spf13/cobra"
)

// NewUserCmd creates the user command group
func NewUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage MindAid accounts",
		Long: `Manage MindAid accounts.

Examples:
  mindaid user register --email sam@example.com --password 'a long secret' --first-name Sam
  mindaid user show user_1234
  mindaid user show user_1234 --format json
  mindaid user login --email sam@example.com --password 'a long secret'
  mindaid user archive user_1234`,
	}

	cmd.AddCommand(newUserRegisterCmd(), newUserShowCmd(), newUserLoginCmd(), newUserArchiveCmd())
	return cmd
}

func newUserRegisterCmd() *cobra.Command {
	var req core.RegisterRequest

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBase(cmd, func(ctx context.Context, users *core.UserService) error {
				user, err := users.Register(ctx, req)
				if err != nil {
					return fmt.Errorf("registering user: %w", err)
				}
				if wantJSON() {
					return printJSON(cmd.OutOrStdout(), user)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", user.UserID, user.Email)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&req.UserID, "id", "", "User id (generated when omitted)")
	cmd.Flags().StringVar(&req.Email, "email", "", "Email address")
	cmd.Flags().StringVar(&req.Password, "password", "", "Password (8-72 characters)")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	_ = cmd.MarkFlagRequired("first-name")
	return cmd
}

func newUserShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-id>",
		Short: "Show a profile and its diagnosis history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBase(cmd, func(ctx context.Context, users *core.UserService) error {
				user, err := users.Profile(ctx, args[0])
				if err != nil {
					return err
				}
				if wantJSON() {
					return printJSON(cmd.OutOrStdout(), user)
				}
				printProfile(cmd, user)
				return nil
			})
		},
	}
}

func newUserLoginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Check an email and password",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBase(cmd, func(ctx context.Context, users *core.UserService) error {
				user, err := users.Authenticate(ctx, email, password)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Credentials valid for %s\n", user.UserID)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&password, "password", "", "Password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newUserArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive <user-id>",
		Short: "Archive an account (records are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBase(cmd, func(ctx context.Context, users *core.UserService) error {
				if err := users.Archive(ctx, args[0]); err != nil {
					return err
				}
				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "Archived %s\n", args[0])
				}
				return nil
			})
		},
	}
}

// withBase runs fn against the account service and closes the store afterwards
func withBase(cmd *cobra.Command, fn func(ctx context.Context, users *core.UserService) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := openBase(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()
	return fn(ctx, c.Users)
}

func printProfile(cmd *cobra.Command, user *models.User) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "User:      %s\n", user.UserID)
	fmt.Fprintf(out, "Name:      %s\n", user.FullName())
	fmt.Fprintf(out, "Email:     %s\n", user.Email)
	if user.Disorder != "" {
		fmt.Fprintf(out, "Latest:    %s (%s)\n", user.Disorder, user.Severity)
	}
	if user.LastCounseledAt != nil {
		fmt.Fprintf(out, "Counseled: %s\n", formatTime(*user.LastCounseledAt))
	}
	if user.Archived {
		fmt.Fprintln(out, "Status:    archived")
	}

	if len(user.DiagnosisHistory) == 0 {
		return
	}
	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "COMPLETED\tDISORDER\tSCORE\tSEVERITY\n")
	fmt.Fprintf(w, "---------\t--------\t-----\t--------\n")
	for _, rec := range user.DiagnosisHistory {
		fmt.Fprintf(w, "%s\t%s\t%.0f\t%s\n", formatTime(rec.CompletedAt), rec.Disorder, rec.SeverityScore, rec.SeverityBand)
	}
	_ = w.Flush()
}
