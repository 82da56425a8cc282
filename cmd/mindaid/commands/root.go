// ABOUTME: Root command, global flags, and service wiring shared by subcommands
// ABOUTME: Every subcommand loads .env and config the same way
package commands

import (
	"context"
	"fmt"
	"log"

	"github.com/harper/mindaid/internal/bootstrap"
	"github.com/harper/mindaid/internal/config"
	"github.com/harper/mindaid/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose      bool
	quiet        bool
	outputFormat string
)

const banner = `
███╗   ███╗██╗███╗   ██╗██████╗  █████╗ ██╗██████╗
████╗ ████║██║████╗  ██║██╔══██╗██╔══██╗██║██╔══██╗
██╔████╔██║██║██╔██╗ ██║██║  ██║███████║██║██║  ██║
██║╚██╔╝██║██║██║╚██╗██║██║  ██║██╔══██║██║██║  ██║
██║ ╚═╝ ██║██║██║ ╚████║██████╔╝██║  ██║██║██████╔╝
╚═╝     ╚═╝╚═╝╚═╝  ╚═══╝╚═════╝ ╚═╝  ╚═╝╚═╝╚═════╝`

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mindaid",
		Short: "Mental health assessment and counseling assistant",
		Long: banner + `

MindAid guides a user through a short assessment (a free-text intake,
a disorder-specific questionnaire, and a severity score) and offers
counseling conversations grounded in reference material, remembering
each user's conversation across sessions.

MindAid is not a clinical tool. Results are for self-reflection only.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validateFormat(outputFormat)
		},
	}

	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Only print results and errors")
	cmd.PersistentFlags().StringVar(&outputFormat, "format", "auto", "Output format: auto, table, json")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(
		NewVersionCmd(),
		NewMCPCmd(),
		NewUserCmd(),
		NewDiagnoseCmd(),
		NewCounselCmd(),
		NewCorpusCmd(),
		NewExportCmd(),
	)

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads .env (if present) and the environment configuration
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && verbose {
		log.Printf("No .env file found (this is okay for production): %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *zap.Logger {
	return logging.New(logging.Options{
		FilePath:   cfg.LogFile,
		Production: cfg.LogProduction,
		Quiet:      quiet || !verbose,
	})
}

// openBase wires storage and accounts only
func openBase(ctx context.Context) (*bootstrap.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.NewBase(ctx, cfg, newLogger(cfg))
}

// openServices wires everything, including model clients and the corpus index
func openServices(ctx context.Context) (*bootstrap.Container, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg, newLogger(cfg))
}
