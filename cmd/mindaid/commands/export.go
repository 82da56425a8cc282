// ABOUTME: CLI command to export one user's MindAid record
// ABOUTME: Writes YAML or Markdown; credentials are never exported
package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/harper/mindaid/internal/models"
	"github.com/spf13/cobra"
)

// NewExportCmd creates the export command
func NewExportCmd() *cobra.Command {
	var (
		outputPath string
		exportType string
	)

	cmd := &cobra.Command{
		Use:   "export <user-id>",
		Short: "Export a user's profile, diagnoses, and conversation",
		Long: `Export a user's profile, diagnoses, and conversation.

The file type follows --type, or the output extension when --type is
not given (.md for Markdown, anything else for YAML).

Examples:
  mindaid export user_1234
  mindaid export user_1234 --output ~/mindaid-export.md
  mindaid export user_1234 --output record.txt --type yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := args[0]
			if outputPath == "" {
				outputPath = fmt.Sprintf("mindaid-%s.yaml", userID)
			}
			kind, err := exportKind(exportType, outputPath)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			c, err := openBase(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()

			switch kind {
			case "markdown":
				err = c.Store.ExportToMarkdown(ctx, userID, outputPath)
			default:
				err = c.Store.ExportToYAML(ctx, userID, outputPath)
			}
			if err != nil {
				return fmt.Errorf("exporting %s: %w", userID, err)
			}
			if !quiet {
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %s to %s\n", userID, outputPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Output file (default mindaid-<user-id>.yaml)")
	cmd.Flags().StringVar(&exportType, "type", "", "File type: yaml or markdown")
	return cmd
}

// exportKind resolves the file type from the flag or the file extension
func exportKind(flag, path string) (string, error) {
	switch strings.ToLower(flag) {
	case "yaml", "yml":
		return "yaml", nil
	case "markdown", "md":
		return "markdown", nil
	case "":
	default:
		return "", fmt.Errorf("%w: unknown export type %q", models.ErrInputValidation, flag)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return "markdown", nil
	default:
		return "yaml", nil
	}
}
