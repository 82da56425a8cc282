// ABOUTME: Tests for the unified Storage wrapper
// ABOUTME: Verifies versioned saves, session replacement, memory, and atomic archival
package sqlite

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harper/mindaid/internal/models"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := NewStorageInMemory()
	if err != nil {
		t.Fatalf("NewStorageInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func createTestUser(t *testing.T, store *Storage, id string) *models.User {
	t.Helper()
	user := &models.User{
		UserID:       id,
		Email:        id + "@example.com",
		PasswordHash: "hash",
		FirstName:    "Test",
		LastName:     "User",
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

func TestUserCRUD(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	missing, err := store.GetUser(ctx, "nobody")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if missing != nil {
		t.Error("GetUser() should return nil for unknown user")
	}

	user := createTestUser(t, store, "u1")
	if user.Version != 1 {
		t.Errorf("Version after create = %d, want 1", user.Version)
	}

	got, err := store.GetUserByEmail(ctx, "u1@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail() error = %v", err)
	}
	if got == nil || got.UserID != "u1" {
		t.Fatalf("GetUserByEmail() = %+v", got)
	}
	if got.PasswordHash != "hash" {
		t.Errorf("PasswordHash = %q, want hash", got.PasswordHash)
	}
	if len(got.DiagnosisHistory) != 0 {
		t.Errorf("history = %d records, want 0", len(got.DiagnosisHistory))
	}

	now := time.Now().UTC()
	got.LastCounseledAt = &now
	got.FirstName = "Renamed"
	if err := store.SaveUser(ctx, got); err != nil {
		t.Fatalf("SaveUser() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version after save = %d, want 2", got.Version)
	}

	reloaded, _ := store.GetUser(ctx, "u1")
	if reloaded.FirstName != "Renamed" {
		t.Errorf("FirstName = %q, want Renamed", reloaded.FirstName)
	}
	if reloaded.LastCounseledAt == nil {
		t.Error("LastCounseledAt should be persisted")
	}
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	store := newTestStorage(t)
	createTestUser(t, store, "u1")

	tests := []struct {
		name string
		user *models.User
		want string
	}{
		{"same email", &models.User{UserID: "u2", Email: "u1@example.com", PasswordHash: "x"}, "already registered"},
		{"same id", &models.User{UserID: "u1", Email: "other@example.com", PasswordHash: "x"}, "is taken"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := store.CreateUser(context.Background(), tt.user)
			if !errors.Is(err, models.ErrInputValidation) || errors.Is(err, models.ErrStorage) {
				t.Fatalf("CreateUser() duplicate error = %v, want ErrInputValidation only", err)
			}
			if models.IsRetryable(err) {
				t.Error("a duplicate registration is not retryable")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q should mention %q", err, tt.want)
			}
		})
	}
}

func TestSaveUser_VersionConflict(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	a, _ := store.GetUser(ctx, "u1")
	b, _ := store.GetUser(ctx, "u1")

	a.FirstName = "A"
	if err := store.SaveUser(ctx, a); err != nil {
		t.Fatalf("first SaveUser() error = %v", err)
	}

	b.FirstName = "B"
	err := store.SaveUser(ctx, b)
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("stale SaveUser() error = %v, want ErrVersionConflict", err)
	}

	final, _ := store.GetUser(ctx, "u1")
	if final.FirstName != "A" {
		t.Errorf("FirstName = %q, the stale write must not win", final.FirstName)
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	none, err := store.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if none != nil {
		t.Fatal("GetSession() should return nil before intake")
	}

	sess := &models.DiagnosisSession{
		SessionID:         "s1",
		UserID:            "u1",
		Stage:             models.StageQuestionnaireInProgress,
		NarrativeText:     "I feel hopeless most days",
		PredictedDisorder: models.DisorderDepression,
		Confidence:        0.87,
		Answers:           []models.Answer{},
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() insert error = %v", err)
	}
	if sess.Version != 1 {
		t.Errorf("Version = %d, want 1", sess.Version)
	}

	sess.Answers = append(sess.Answers, models.Answer{QuestionID: "phq9_1", Value: 2})
	sess.QuestionIndex = 1
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() update error = %v", err)
	}

	got, err := store.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Version != 2 || got.QuestionIndex != 1 || len(got.Answers) != 1 {
		t.Errorf("session = %+v", got)
	}
	if got.SeverityScore != nil {
		t.Error("SeverityScore should stay nil until scored")
	}
	if got.PredictedDisorder != models.DisorderDepression {
		t.Errorf("PredictedDisorder = %s", got.PredictedDisorder)
	}

	// Stale copy loses
	stale := got.Clone()
	stale.Version = 1
	if err := store.SaveSession(ctx, stale); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("stale SaveSession() error = %v, want ErrVersionConflict", err)
	}

	// A second insert for the same user conflicts
	dup := &models.DiagnosisSession{SessionID: "s2", UserID: "u1", Stage: models.StageQuestionnaireInProgress}
	if err := store.SaveSession(ctx, dup); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("duplicate insert error = %v, want ErrVersionConflict", err)
	}

	if err := store.DeleteSession(ctx, got); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if after, _ := store.GetSession(ctx, "u1"); after != nil {
		t.Error("session should be gone after delete")
	}
}

func TestReplaceSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	first := &models.DiagnosisSession{SessionID: "s1", UserID: "u1", Stage: models.StageQuestionnaireInProgress}
	if err := store.SaveSession(ctx, first); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	second := &models.DiagnosisSession{SessionID: "s2", UserID: "u1", Stage: models.StageQuestionnaireInProgress}
	if err := store.ReplaceSession(ctx, first, second); err != nil {
		t.Fatalf("ReplaceSession() error = %v", err)
	}

	got, _ := store.GetSession(ctx, "u1")
	if got == nil || got.SessionID != "s2" {
		t.Fatalf("active session = %+v, want s2", got)
	}

	// Replacing from a stale predecessor fails and keeps s2
	third := &models.DiagnosisSession{SessionID: "s3", UserID: "u1", Stage: models.StageQuestionnaireInProgress}
	if err := store.ReplaceSession(ctx, first, third); !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("stale ReplaceSession() error = %v, want ErrVersionConflict", err)
	}
	got, _ = store.GetSession(ctx, "u1")
	if got.SessionID != "s2" {
		t.Errorf("active session = %s, want s2 after failed replace", got.SessionID)
	}
}

func TestArchiveSession(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	score := 19.0
	sess := &models.DiagnosisSession{
		SessionID:         "s1",
		UserID:            "u1",
		Stage:             models.StageScored,
		PredictedDisorder: models.DisorderDepression,
		Confidence:        0.9,
		Answers:           []models.Answer{{QuestionID: "phq9_1", Value: 2}},
		SeverityScore:     &score,
		SeverityBand:      models.SeveritySevere,
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	user, _ := store.GetUser(ctx, "u1")
	rec, err := models.NewDiagnosisRecord(sess, time.Now().UTC())
	if err != nil {
		t.Fatalf("NewDiagnosisRecord() error = %v", err)
	}
	user.ApplyDiagnosis(rec)

	if err := store.ArchiveSession(ctx, user, sess); err != nil {
		t.Fatalf("ArchiveSession() error = %v", err)
	}

	if got, _ := store.GetSession(ctx, "u1"); got != nil {
		t.Error("session should be removed after archive")
	}
	reloaded, _ := store.GetUser(ctx, "u1")
	if reloaded.Disorder != models.DisorderDepression || reloaded.Severity != models.SeveritySevere {
		t.Errorf("latest = %s/%s", reloaded.Disorder, reloaded.Severity)
	}
	if len(reloaded.DiagnosisHistory) != 1 {
		t.Fatalf("history = %d, want 1", len(reloaded.DiagnosisHistory))
	}
	h := reloaded.DiagnosisHistory[0]
	if h.SeverityScore != 19 || len(h.Answers) != 1 || h.SessionID != "s1" {
		t.Errorf("history record = %+v", h)
	}
}

func TestArchiveSession_RollsBackOnConflict(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	score := 5.0
	sess := &models.DiagnosisSession{
		SessionID: "s1", UserID: "u1", Stage: models.StageScored,
		PredictedDisorder: models.DisorderAnxiety, SeverityScore: &score, SeverityBand: models.SeverityMild,
	}
	if err := store.SaveSession(ctx, sess); err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	user, _ := store.GetUser(ctx, "u1")
	rec, _ := models.NewDiagnosisRecord(sess, time.Now().UTC())
	user.ApplyDiagnosis(rec)

	stale := sess.Clone()
	stale.Version = 99
	err := store.ArchiveSession(ctx, user, stale)
	if !errors.Is(err, models.ErrVersionConflict) {
		t.Fatalf("ArchiveSession() error = %v, want ErrVersionConflict", err)
	}
	if user.Version != 1 {
		t.Errorf("user.Version = %d, want restored to 1", user.Version)
	}

	reloaded, _ := store.GetUser(ctx, "u1")
	if len(reloaded.DiagnosisHistory) != 0 || reloaded.Disorder != "" {
		t.Error("user changes must roll back with the failed archive")
	}
	if got, _ := store.GetSession(ctx, "u1"); got == nil {
		t.Error("session must survive a failed archive")
	}
}

func TestMemoryRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	createTestUser(t, store, "u1")

	mem, err := store.GetMemory(ctx, "u1")
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if mem.Version != 0 || len(mem.Turns) != 0 {
		t.Fatalf("fresh memory = %+v", mem)
	}

	userTurn, _ := models.NewTurn(models.RoleUser, "I can't sleep", "tok-1")
	mem.Turns = append(mem.Turns, *userTurn)
	mem.AddReceipt(models.Receipt{Token: "tok-1", MessageDigest: "d", UserTurnID: userTurn.TurnID})
	if err := store.SaveMemory(ctx, mem); err != nil {
		t.Fatalf("SaveMemory() insert error = %v", err)
	}

	reply, _ := models.NewTurn(models.RoleAssistant, "Tell me more about your nights.", "tok-1")
	mem.Turns = append(mem.Turns, *reply)
	if err := store.SaveMemory(ctx, mem); err != nil {
		t.Fatalf("SaveMemory() update error = %v", err)
	}

	got, err := store.GetMemory(ctx, "u1")
	if err != nil {
		t.Fatalf("GetMemory() error = %v", err)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
	if len(got.Turns) != 2 || got.Turns[0].Role != models.RoleUser || got.Turns[1].Role != models.RoleAssistant {
		t.Errorf("turns = %+v", got.Turns)
	}
	if _, err := got.FindReceipt("tok-1"); err != nil {
		t.Errorf("receipt lost: %v", err)
	}

	stale := *got
	stale.Version = 1
	if err := store.SaveMemory(ctx, &stale); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("stale SaveMemory() error = %v, want ErrVersionConflict", err)
	}
}
