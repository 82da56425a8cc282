// ABOUTME: Export of one user's MindAid record
// ABOUTME: Supports YAML and Markdown export formats
package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/harper/mindaid/internal/models"
	"gopkg.in/yaml.v3"
)

// ExportData represents the complete exportable data for a user
type ExportData struct {
	Version    string            `yaml:"version" json:"version"`
	ExportedAt string            `yaml:"exported_at" json:"exported_at"`
	Tool       string            `yaml:"tool" json:"tool"`
	Profile    ExportProfile     `yaml:"profile" json:"profile"`
	Diagnoses  []ExportDiagnosis `yaml:"diagnoses" json:"diagnoses"`
	Active     *ExportSession    `yaml:"active_session,omitempty" json:"active_session,omitempty"`
	Turns      []ExportTurn      `yaml:"conversation" json:"conversation"`
}

// ExportProfile represents user profile for export. Credentials are never exported.
type ExportProfile struct {
	UserID          string `yaml:"user_id" json:"user_id"`
	Name            string `yaml:"name" json:"name"`
	Email           string `yaml:"email" json:"email"`
	Disorder        string `yaml:"disorder,omitempty" json:"disorder,omitempty"`
	Severity        string `yaml:"severity,omitempty" json:"severity,omitempty"`
	LastCounseledAt string `yaml:"last_counseled_at,omitempty" json:"last_counseled_at,omitempty"`
	Archived        bool   `yaml:"archived" json:"archived"`
}

// ExportDiagnosis represents an archived diagnosis for export
type ExportDiagnosis struct {
	SessionID     string  `yaml:"session_id" json:"session_id"`
	Disorder      string  `yaml:"disorder" json:"disorder"`
	Confidence    float64 `yaml:"confidence" json:"confidence"`
	SeverityScore float64 `yaml:"severity_score" json:"severity_score"`
	SeverityBand  string  `yaml:"severity_band" json:"severity_band"`
	Answers       int     `yaml:"answers" json:"answers"`
	CompletedAt   string  `yaml:"completed_at" json:"completed_at"`
}

// ExportSession represents an in-flight diagnosis for export
type ExportSession struct {
	SessionID string `yaml:"session_id" json:"session_id"`
	Stage     string `yaml:"stage" json:"stage"`
	Disorder  string `yaml:"disorder,omitempty" json:"disorder,omitempty"`
	Answered  int    `yaml:"answered" json:"answered"`
}

// ExportTurn represents a counseling turn for export
type ExportTurn struct {
	Role      string `yaml:"role" json:"role"`
	Text      string `yaml:"text" json:"text"`
	Timestamp string `yaml:"timestamp" json:"timestamp"`
}

// ExportUser gathers everything stored for one user
func (s *Storage) ExportUser(ctx context.Context, userID string) (*ExportData, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user %s", models.ErrNotFound, userID)
	}

	data := &ExportData{
		Version:    "1.0",
		ExportedAt: time.Now().Format(time.RFC3339),
		Tool:       "mindaid",
		Profile: ExportProfile{
			UserID:   user.UserID,
			Name:     user.FullName(),
			Email:    user.Email,
			Disorder: string(user.Disorder),
			Severity: string(user.Severity),
			Archived: user.Archived,
		},
		Diagnoses: make([]ExportDiagnosis, 0, len(user.DiagnosisHistory)),
		Turns:     []ExportTurn{},
	}
	if user.LastCounseledAt != nil {
		data.Profile.LastCounseledAt = user.LastCounseledAt.Format(time.RFC3339)
	}

	for _, rec := range user.DiagnosisHistory {
		data.Diagnoses = append(data.Diagnoses, ExportDiagnosis{
			SessionID:     rec.SessionID,
			Disorder:      string(rec.Disorder),
			Confidence:    rec.Confidence,
			SeverityScore: rec.SeverityScore,
			SeverityBand:  string(rec.SeverityBand),
			Answers:       len(rec.Answers),
			CompletedAt:   rec.CompletedAt.Format(time.RFC3339),
		})
	}

	sess, err := s.GetSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if sess != nil {
		data.Active = &ExportSession{
			SessionID: sess.SessionID,
			Stage:     string(sess.Stage),
			Disorder:  string(sess.PredictedDisorder),
			Answered:  len(sess.Answers),
		}
	}

	mem, err := s.GetMemory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get memory: %w", err)
	}
	for _, turn := range mem.Turns {
		data.Turns = append(data.Turns, ExportTurn{
			Role:      string(turn.Role),
			Text:      turn.Text,
			Timestamp: turn.Timestamp.Format(time.RFC3339),
		})
	}

	return data, nil
}

// ExportToYAML exports a user's data to a YAML file
func (s *Storage) ExportToYAML(ctx context.Context, userID, outputPath string) error {
	data, err := s.ExportUser(ctx, userID)
	if err != nil {
		return err
	}

	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}

	return nil
}

// ExportToMarkdown exports a user's data to a Markdown file
func (s *Storage) ExportToMarkdown(ctx context.Context, userID, outputPath string) error {
	data, err := s.ExportUser(ctx, userID)
	if err != nil {
		return err
	}

	file, err := createOutput(outputPath)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	writeMarkdown(file, data)
	return nil
}

func createOutput(outputPath string) (*os.File, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(outputPath) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return file, nil
}

func writeMarkdown(w io.Writer, data *ExportData) {
	_, _ = fmt.Fprintf(w, "# MindAid Export - %s\n\n", data.Profile.Name)
	_, _ = fmt.Fprintf(w, "Generated: %s\n\n", data.ExportedAt)

	_, _ = fmt.Fprintln(w, "## Profile")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "- **Email:** %s\n", data.Profile.Email)
	if data.Profile.Disorder != "" {
		_, _ = fmt.Fprintf(w, "- **Latest assessment:** %s (%s)\n", data.Profile.Disorder, data.Profile.Severity)
	}
	_, _ = fmt.Fprintln(w)

	if len(data.Diagnoses) > 0 {
		_, _ = fmt.Fprintln(w, "## Diagnoses")
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "| Completed | Disorder | Score | Severity |")
		_, _ = fmt.Fprintln(w, "|-----------|----------|-------|----------|")
		for _, d := range data.Diagnoses {
			_, _ = fmt.Fprintf(w, "| %s | %s | %.0f | %s |\n", d.CompletedAt, d.Disorder, d.SeverityScore, d.SeverityBand)
		}
		_, _ = fmt.Fprintln(w)
	}

	if len(data.Turns) > 0 {
		_, _ = fmt.Fprintln(w, "## Conversation")
		_, _ = fmt.Fprintln(w)
		for _, turn := range data.Turns {
			speaker := "User"
			if turn.Role == string(models.RoleAssistant) {
				speaker = "Counselor"
			}
			_, _ = fmt.Fprintf(w, "**%s:** %s\n\n", speaker, turn.Text)
		}
	}
}
