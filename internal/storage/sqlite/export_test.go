// ABOUTME: Tests for export functionality
// ABOUTME: Verifies user export content plus YAML and Markdown output
package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/harper/mindaid/internal/models"
	"gopkg.in/yaml.v3"
)

func seedExportUser(t *testing.T, store *Storage) {
	t.Helper()
	ctx := context.Background()
	createTestUser(t, store, "u1")

	score := 12.0
	sess := &models.DiagnosisSession{
		SessionID: "s1", UserID: "u1", Stage: models.StageScored,
		PredictedDisorder: models.DisorderAnxiety, Confidence: 0.8,
		Answers:       []models.Answer{{QuestionID: "gad7_1", Value: 2}},
		SeverityScore: &score, SeverityBand: models.SeverityModerate,
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}
	user, _ := store.GetUser(ctx, "u1")
	rec, _ := models.NewDiagnosisRecord(sess, time.Now().UTC())
	user.ApplyDiagnosis(rec)
	if err := store.ArchiveSession(ctx, user, sess); err != nil {
		t.Fatalf("ArchiveSession() error = %v", err)
	}

	mem, _ := store.GetMemory(ctx, "u1")
	u, _ := models.NewTurn(models.RoleUser, "Work has been stressful", "")
	a, _ := models.NewTurn(models.RoleAssistant, "What part of work weighs on you most?", "")
	mem.Turns = append(mem.Turns, *u, *a)
	if err := store.SaveMemory(ctx, mem); err != nil {
		t.Fatalf("SaveMemory() error = %v", err)
	}
}

func TestExportUser(t *testing.T) {
	store := newTestStorage(t)
	seedExportUser(t, store)

	data, err := store.ExportUser(context.Background(), "u1")
	if err != nil {
		t.Fatalf("ExportUser() error = %v", err)
	}

	if data.Version != "1.0" {
		t.Errorf("Version = %v, want 1.0", data.Version)
	}
	if data.Tool != "mindaid" {
		t.Errorf("Tool = %v, want mindaid", data.Tool)
	}
	if data.Profile.Name != "Test User" {
		t.Errorf("Profile.Name = %v, want Test User", data.Profile.Name)
	}
	if data.Profile.Severity != "MODERATE" {
		t.Errorf("Profile.Severity = %v, want MODERATE", data.Profile.Severity)
	}
	if len(data.Diagnoses) != 1 {
		t.Errorf("Diagnoses count = %v, want 1", len(data.Diagnoses))
	}
	if data.Active != nil {
		t.Error("Active should be nil once the session is archived")
	}
	if len(data.Turns) != 2 {
		t.Errorf("Turns count = %v, want 2", len(data.Turns))
	}
}

func TestExportUser_Unknown(t *testing.T) {
	store := newTestStorage(t)
	_, err := store.ExportUser(context.Background(), "ghost")
	if !errors.Is(err, models.ErrNotFound) {
		t.Errorf("ExportUser() error = %v, want ErrNotFound", err)
	}
}

func TestExportToYAML(t *testing.T) {
	store := newTestStorage(t)
	seedExportUser(t, store)

	outputPath := filepath.Join(t.TempDir(), "out", "export.yaml")
	if err := store.ExportToYAML(context.Background(), "u1", outputPath); err != nil {
		t.Fatalf("ExportToYAML() error = %v", err)
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if strings.Contains(string(raw), "hash") {
		t.Error("export must not contain the credential hash")
	}

	var parsed ExportData
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		t.Fatalf("yaml.Unmarshal() error = %v", err)
	}
	if parsed.Profile.UserID != "u1" {
		t.Errorf("Profile.UserID = %v, want u1", parsed.Profile.UserID)
	}
	if len(parsed.Diagnoses) != 1 || parsed.Diagnoses[0].Disorder != "ANXIETY" {
		t.Errorf("Diagnoses = %+v", parsed.Diagnoses)
	}
}

func TestExportToMarkdown(t *testing.T) {
	store := newTestStorage(t)
	seedExportUser(t, store)

	outputPath := filepath.Join(t.TempDir(), "export.md")
	if err := store.ExportToMarkdown(context.Background(), "u1", outputPath); err != nil {
		t.Fatalf("ExportToMarkdown() error = %v", err)
	}

	raw, err := os.ReadFile(outputPath)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	out := string(raw)
	for _, want := range []string{"# MindAid Export - Test User", "## Diagnoses", "ANXIETY", "**Counselor:**"} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}
