// ABOUTME: CLI command that runs an assessment interactively
// ABOUTME: Asks the intake prompts, walks the questionnaire, then finalizes the result
package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/models"
	"github.com/spf13/cobra"
)

// diagnosisFlow is the part of the diagnosis service the CLI drives
type diagnosisFlow interface {
	StartIntake(ctx context.Context, userID, narrative string) (*core.DiagnosisView, error)
	SubmitAnswer(ctx context.Context, userID, questionID, rawValue string) (*core.DiagnosisView, error)
	Finalize(ctx context.Context, userID string) (*core.DiagnosisView, error)
	Status(ctx context.Context, userID string) (*core.DiagnosisView, error)
}

// NewDiagnoseCmd creates the diagnose command
func NewDiagnoseCmd() *cobra.Command {
	var (
		narrative string
		restart   bool
	)

	cmd := &cobra.Command{
		Use:   "diagnose <user-id>",
		Short: "Run an assessment interactively",
		Long: `Run an assessment interactively.

Asks the intake prompts, classifies the answers, then walks through the
matching questionnaire one question at a time. An assessment already in
progress is resumed unless --restart is given.

Examples:
  mindaid diagnose user_1234
  mindaid diagnose user_1234 --narrative "I can't stop worrying about work"
  mindaid diagnose user_1234 --restart
  mindaid diagnose status user_1234 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			p := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout())
			view, err := runDiagnosis(ctx, c.Diagnosis, args[0], p, narrative, restart)
			if err != nil {
				return err
			}
			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), view)
			}
			printResult(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().StringVar(&narrative, "narrative", "", "Skip the intake prompts and classify this text")
	cmd.Flags().BoolVar(&restart, "restart", false, "Discard an assessment in progress and start over")

	cmd.AddCommand(newDiagnoseStatusCmd())
	return cmd
}

func newDiagnoseStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id>",
		Short: "Show where a user is in the assessment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := openServices(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			view, err := c.Diagnosis.Status(ctx, args[0])
			if err != nil {
				return err
			}
			if wantJSON() {
				return printJSON(cmd.OutOrStdout(), view)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Stage: %s\n", view.Stage)
			if view.Disorder != "" {
				fmt.Fprintf(out, "Questionnaire: %s (%d/%d answered)\n", view.Disorder, view.Answered, view.Total)
			}
			if view.SeverityBand != "" {
				fmt.Fprintf(out, "Severity: %s\n", view.SeverityBand)
			}
			return nil
		},
	}
}

// runDiagnosis drives one assessment to COMPLETE. Invalid answers are
// reported and the question is asked again.
func runDiagnosis(ctx context.Context, flow diagnosisFlow, userID string, p *prompter, narrative string, restart bool) (*core.DiagnosisView, error) {
	view, err := flow.Status(ctx, userID)
	if err != nil {
		return nil, err
	}

	if restart || view.Stage == models.StageIntake {
		if narrative == "" {
			if narrative, err = askIntake(p); err != nil {
				return nil, err
			}
		}
		if view, err = flow.StartIntake(ctx, userID, narrative); err != nil {
			return nil, err
		}
		if view.InputTruncated {
			_, _ = fmt.Fprintln(p.out, "(Your description was long; only the beginning was used.)")
		}
	} else {
		_, _ = fmt.Fprintf(p.out, "Resuming your %s questionnaire.\n", strings.ToLower(string(view.Disorder)))
	}

	for view.Stage == models.StageQuestionnaireInProgress && view.NextQuestion != nil {
		q := view.NextQuestion
		answer, err := p.ask(fmt.Sprintf("[%d/%d] %s %s", q.Position, q.Total, q.Text, answerHint(q)))
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("input ended; the assessment is saved and can be resumed")
			}
			return nil, err
		}

		next, err := flow.SubmitAnswer(ctx, userID, q.ID, answer)
		if errors.Is(err, models.ErrInvalidAnswer) && !errors.Is(err, models.ErrInvalidStateTransition) {
			_, _ = fmt.Fprintf(p.out, "Sorry, %q is not a valid answer.\n", answer)
			continue
		}
		if err != nil {
			return nil, err
		}
		view = next
	}

	return flow.Finalize(ctx, userID)
}

func askIntake(p *prompter) (string, error) {
	answers := make([]string, 0, len(core.IntakePrompts))
	for _, prompt := range core.IntakePrompts {
		answer, err := p.ask(prompt)
		if err != nil {
			return "", err
		}
		if answer != "" {
			answers = append(answers, answer)
		}
	}
	if len(answers) == 0 {
		return "", fmt.Errorf("%w: please answer at least one intake question", models.ErrInputValidation)
	}
	return strings.Join(answers, "\n"), nil
}

func answerHint(q *core.QuestionView) string {
	if len(q.Labels) > 0 {
		return "(" + strings.Join(q.Labels, "/") + ")"
	}
	return fmt.Sprintf("(%d-%d)", q.Min, q.Max)
}

func printResult(out io.Writer, view *core.DiagnosisView) {
	_, _ = fmt.Fprintln(out)
	_, _ = fmt.Fprintf(out, "Assessment: %s\n", view.Disorder)
	if view.SeverityScore != nil {
		_, _ = fmt.Fprintf(out, "Score:      %.0f (%s)\n", *view.SeverityScore, view.SeverityBand)
	}
	if view.Advice != "" {
		_, _ = fmt.Fprintln(out)
		_, _ = fmt.Fprintln(out, view.Advice)
	}
}
