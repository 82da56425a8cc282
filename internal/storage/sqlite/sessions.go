// ABOUTME: Diagnosis session storage operations for SQLite
// ABOUTME: One row per user, saved with optimistic version checks
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/harper/mindaid/internal/models"
)

// SessionStore handles diagnosis session persistence
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a new SessionStore
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Get retrieves the user's active session, returning nil if there is none
func (s *SessionStore) Get(ctx context.Context, userID string) (*models.DiagnosisSession, error) {
	var (
		sess        models.DiagnosisSession
		narrative   sql.NullString
		disorder    sql.NullString
		answersJSON sql.NullString
		score       sql.NullFloat64
		band        sql.NullString
	)

	err := s.db.conn.QueryRowContext(ctx, `
		SELECT session_id, user_id, stage, narrative_text, predicted_disorder, confidence,
			input_truncated, question_index, answers, severity_score, severity_band,
			version, created_at, updated_at
		FROM diagnosis_sessions
		WHERE user_id = ?
	`, userID).Scan(&sess.SessionID, &sess.UserID, &sess.Stage, &narrative, &disorder, &sess.Confidence,
		&sess.InputTruncated, &sess.QuestionIndex, &answersJSON, &score, &band,
		&sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get session", err)
	}

	sess.NarrativeText = narrative.String
	sess.PredictedDisorder = models.DisorderLabel(disorder.String)
	sess.SeverityBand = models.SeverityBand(band.String)
	if score.Valid {
		v := score.Float64
		sess.SeverityScore = &v
	}
	sess.Answers = []models.Answer{}
	if answersJSON.Valid && answersJSON.String != "" {
		if err := json.Unmarshal([]byte(answersJSON.String), &sess.Answers); err != nil {
			return nil, storageErr("decode session answers", err)
		}
	}

	return &sess, nil
}

// Save inserts the session when Version is 0, otherwise updates it if the
// stored version still matches. On success Version is advanced.
func (s *SessionStore) Save(ctx context.Context, sess *models.DiagnosisSession) error {
	if sess.Version == 0 {
		return insertSession(ctx, s.db.conn, sess)
	}
	return updateSession(ctx, s.db.conn, sess)
}

// Replace discards prev (if any) and inserts next in one transaction
func (s *SessionStore) Replace(ctx context.Context, prev, next *models.DiagnosisSession) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if prev != nil {
			if err := deleteSession(ctx, tx, prev); err != nil {
				return err
			}
		}
		return insertSession(ctx, tx, next)
	})
}

func insertSession(ctx context.Context, q querier, sess *models.DiagnosisSession) error {
	answersJSON, err := json.Marshal(sess.Answers)
	if err != nil {
		return storageErr("encode session answers", err)
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO diagnosis_sessions
			(session_id, user_id, stage, narrative_text, predicted_disorder, confidence,
			 input_truncated, question_index, answers, severity_score, severity_band,
			 version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, sess.SessionID, sess.UserID, string(sess.Stage), sess.NarrativeText, string(sess.PredictedDisorder),
		sess.Confidence, sess.InputTruncated, sess.QuestionIndex, string(answersJSON), nullScore(sess.SeverityScore),
		string(sess.SeverityBand), sess.CreatedAt, now)
	if isUniqueViolation(err) {
		return versionConflict("session for user", sess.UserID, 0)
	}
	if err != nil {
		return storageErr("insert session", err)
	}
	sess.Version = 1
	sess.UpdatedAt = now
	return nil
}

func updateSession(ctx context.Context, q querier, sess *models.DiagnosisSession) error {
	answersJSON, err := json.Marshal(sess.Answers)
	if err != nil {
		return storageErr("encode session answers", err)
	}
	now := time.Now().UTC()

	// session_id is part of the match so a replaced session cannot be overwritten
	res, err := q.ExecContext(ctx, `
		UPDATE diagnosis_sessions SET
			stage = ?, narrative_text = ?, predicted_disorder = ?, confidence = ?,
			input_truncated = ?, question_index = ?, answers = ?, severity_score = ?,
			severity_band = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND session_id = ? AND version = ?
	`, string(sess.Stage), sess.NarrativeText, string(sess.PredictedDisorder), sess.Confidence,
		sess.InputTruncated, sess.QuestionIndex, string(answersJSON), nullScore(sess.SeverityScore),
		string(sess.SeverityBand), now, sess.UserID, sess.SessionID, sess.Version)
	if err != nil {
		return storageErr("update session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update session", err)
	}
	if n == 0 {
		return versionConflict("session", sess.SessionID, sess.Version)
	}
	sess.Version++
	sess.UpdatedAt = now
	return nil
}

func nullScore(score *float64) sql.NullFloat64 {
	if score == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *score, Valid: true}
}

// Delete removes the session if it is still at the expected version
func (s *SessionStore) Delete(ctx context.Context, sess *models.DiagnosisSession) error {
	return deleteSession(ctx, s.db.conn, sess)
}

func deleteSession(ctx context.Context, q querier, sess *models.DiagnosisSession) error {
	res, err := q.ExecContext(ctx, `
		DELETE FROM diagnosis_sessions
		WHERE user_id = ? AND session_id = ? AND version = ?
	`, sess.UserID, sess.SessionID, sess.Version)
	if err != nil {
		return storageErr("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("delete session", err)
	}
	if n == 0 {
		return versionConflict("session", sess.SessionID, sess.Version)
	}
	return nil
}
