// ABOUTME: User identity, profile, and denormalized latest diagnosis
// ABOUTME: Users are never hard-deleted; Archived marks a soft delete
package models

import (
	"time"
)

// User is a registered MindAid account
type User struct {
	UserID           string            `json:"user_id" yaml:"user_id"`
	PasswordHash     string            `json:"-" yaml:"-"`
	FirstName        string            `json:"first_name" yaml:"first_name"`
	LastName         string            `json:"last_name" yaml:"last_name"`
	Email            string            `json:"email" yaml:"email"`
	Disorder         DisorderLabel     `json:"disorder,omitempty" yaml:"disorder,omitempty"`
	Severity         SeverityBand      `json:"severity,omitempty" yaml:"severity,omitempty"`
	DiagnosisHistory []DiagnosisRecord `json:"diagnosis_history" yaml:"diagnosis_history"`
	LastCounseledAt  *time.Time        `json:"last_counseled_at,omitempty" yaml:"last_counseled_at,omitempty"`
	Archived         bool              `json:"archived" yaml:"archived"`
	Version          int64             `json:"version" yaml:"-"`
	CreatedAt        time.Time         `json:"created_at" yaml:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at" yaml:"updated_at"`
}

// FullName joins first and last name
func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	default:
		return u.FirstName + " " + u.LastName
	}
}

// ApplyDiagnosis appends a completed record and refreshes the latest result
func (u *User) ApplyDiagnosis(rec DiagnosisRecord) {
	u.DiagnosisHistory = append(u.DiagnosisHistory, rec)
	u.Disorder = rec.Disorder
	u.Severity = rec.SeverityBand
	u.UpdatedAt = rec.CompletedAt
}
