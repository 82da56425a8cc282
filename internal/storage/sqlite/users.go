// ABOUTME: User storage operations for SQLite
// ABOUTME: Versioned user rows plus the append-only diagnosis history
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/mindaid/internal/models"
)

// UserStore handles user persistence
type UserStore struct {
	db *DB
}

// NewUserStore creates a new UserStore
func NewUserStore(db *DB) *UserStore {
	return &UserStore{db: db}
}

const userColumns = `user_id, email, password_hash, first_name, last_name, disorder, severity,
	last_counseled_at, archived, version, created_at, updated_at`

// Get retrieves a user by id, returning nil if not found
func (s *UserStore) Get(ctx context.Context, userID string) (*models.User, error) {
	return getUser(ctx, s.db.conn, "user_id", userID)
}

// GetByEmail retrieves a user by email, returning nil if not found
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return getUser(ctx, s.db.conn, "email", email)
}

// Create inserts a new user at version 1
func (s *UserStore) Create(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
	`, user.UserID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		string(user.Disorder), string(user.Severity), nullTime(user.LastCounseledAt),
		user.Archived, user.CreatedAt, user.UpdatedAt)
	// a concurrent registration won the race; report it like the pre-insert checks do
	if isUniqueViolation(err) {
		if strings.Contains(err.Error(), "users.email") {
			return fmt.Errorf("%w: email %s is already registered", models.ErrInputValidation, user.Email)
		}
		return fmt.Errorf("%w: user id %s is taken", models.ErrInputValidation, user.UserID)
	}
	if err != nil {
		return storageErr("create user", err)
	}
	user.Version = 1
	return nil
}

// Save updates a user if its version still matches the stored row
func (s *UserStore) Save(ctx context.Context, user *models.User) error {
	return saveUser(ctx, s.db.conn, user)
}

// getUser loads a user row and its diagnosis history
func getUser(ctx context.Context, q querier, column, value string) (*models.User, error) {
	var (
		u               models.User
		firstName       sql.NullString
		lastName        sql.NullString
		disorder        sql.NullString
		severity        sql.NullString
		lastCounseledAt sql.NullTime
	)

	// column is one of two constants supplied by this package
	err := q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = ?`, value).Scan(
		&u.UserID, &u.Email, &u.PasswordHash, &firstName, &lastName, &disorder, &severity,
		&lastCounseledAt, &u.Archived, &u.Version, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get user", err)
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Disorder = models.DisorderLabel(disorder.String)
	u.Severity = models.SeverityBand(severity.String)
	if lastCounseledAt.Valid {
		t := lastCounseledAt.Time
		u.LastCounseledAt = &t
	}

	history, err := getHistory(ctx, q, u.UserID)
	if err != nil {
		return nil, err
	}
	u.DiagnosisHistory = history

	return &u, nil
}

func getHistory(ctx context.Context, q querier, userID string) ([]models.DiagnosisRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT session_id, disorder, confidence, answers, severity_score, severity_band, started_at, completed_at
		FROM diagnosis_history
		WHERE user_id = ?
		ORDER BY seq ASC
	`, userID)
	if err != nil {
		return nil, storageErr("query diagnosis history", err)
	}
	defer func() { _ = rows.Close() }()

	history := []models.DiagnosisRecord{}
	for rows.Next() {
		var (
			rec         models.DiagnosisRecord
			answersJSON string
		)
		if err := rows.Scan(&rec.SessionID, &rec.Disorder, &rec.Confidence, &answersJSON,
			&rec.SeverityScore, &rec.SeverityBand, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, storageErr("scan diagnosis history", err)
		}
		if err := json.Unmarshal([]byte(answersJSON), &rec.Answers); err != nil {
			return nil, storageErr("decode diagnosis answers", err)
		}
		history = append(history, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate diagnosis history", err)
	}
	return history, nil
}

// saveUser writes the user row under a version check and appends any
// history records not yet stored. History is never rewritten.
func saveUser(ctx context.Context, q querier, user *models.User) error {
	user.UpdatedAt = time.Now().UTC()

	res, err := q.ExecContext(ctx, `
		UPDATE users SET
			email = ?, password_hash = ?, first_name = ?, last_name = ?,
			disorder = ?, severity = ?, last_counseled_at = ?, archived = ?,
			version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?
	`, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		string(user.Disorder), string(user.Severity), nullTime(user.LastCounseledAt), user.Archived,
		user.UpdatedAt, user.UserID, user.Version)
	if err != nil {
		return storageErr("update user", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update user", err)
	}
	if n == 0 {
		return versionConflict("user", user.UserID, user.Version)
	}

	var stored int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM diagnosis_history WHERE user_id = ?`, user.UserID).Scan(&stored); err != nil {
		return storageErr("count diagnosis history", err)
	}
	for seq := stored; seq < len(user.DiagnosisHistory); seq++ {
		rec := user.DiagnosisHistory[seq]
		answersJSON, err := json.Marshal(rec.Answers)
		if err != nil {
			return storageErr("encode diagnosis answers", err)
		}
		if _, err := q.ExecContext(ctx, `
			INSERT INTO diagnosis_history
				(user_id, seq, session_id, disorder, confidence, answers, severity_score, severity_band, started_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, user.UserID, seq, rec.SessionID, string(rec.Disorder), rec.Confidence, string(answersJSON),
			rec.SeverityScore, string(rec.SeverityBand), rec.StartedAt, rec.CompletedAt); err != nil {
			return storageErr("insert diagnosis history", err)
		}
	}

	user.Version++
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
