// ABOUTME: Diagnosis session state and archived diagnosis records
// ABOUTME: Defines disorder labels, severity bands, and the session stage machine states
package models

import (
	"fmt"
	"strings"
	"time"
)

// DisorderLabel identifies a disorder category produced by classification
type DisorderLabel string

const (
	DisorderAnxiety    DisorderLabel = "ANXIETY"
	DisorderDepression DisorderLabel = "DEPRESSION"
	DisorderPTSD       DisorderLabel = "PTSD"
	DisorderAddiction  DisorderLabel = "ADDICTION"
)

// AllDisorders lists every known label in a stable order
var AllDisorders = []DisorderLabel{DisorderAnxiety, DisorderDepression, DisorderPTSD, DisorderAddiction}

// IsValid checks if the label is one of the known disorders
func (d DisorderLabel) IsValid() bool {
	switch d {
	case DisorderAnxiety, DisorderDepression, DisorderPTSD, DisorderAddiction:
		return true
	default:
		return false
	}
}

// ParseDisorderLabel accepts any casing ("Depression", "ptsd") and surrounding whitespace
func ParseDisorderLabel(s string) (DisorderLabel, error) {
	label := DisorderLabel(strings.ToUpper(strings.TrimSpace(s)))
	if !label.IsValid() {
		return "", fmt.Errorf("unknown disorder label %q", s)
	}
	return label, nil
}

// SeverityBand is the coarse severity result of a questionnaire
type SeverityBand string

const (
	SeverityMild     SeverityBand = "MILD"
	SeverityModerate SeverityBand = "MODERATE"
	SeveritySevere   SeverityBand = "SEVERE"
)

// IsValid checks if the band is one of MILD, MODERATE, SEVERE
func (s SeverityBand) IsValid() bool {
	return s == SeverityMild || s == SeverityModerate || s == SeveritySevere
}

// Stage is a diagnosis session state
type Stage string

const (
	StageIntake                  Stage = "INTAKE"
	StageClassified              Stage = "CLASSIFIED"
	StageQuestionnaireInProgress Stage = "QUESTIONNAIRE_IN_PROGRESS"
	StageScored                  Stage = "SCORED"
	StageComplete                Stage = "COMPLETE"
)

// IsValid checks if the stage is a known state
func (s Stage) IsValid() bool {
	switch s {
	case StageIntake, StageClassified, StageQuestionnaireInProgress, StageScored, StageComplete:
		return true
	default:
		return false
	}
}

// stageOrder gives each stage its position; transitions only move forward.
var stageOrder = map[Stage]int{
	StageIntake:                  0,
	StageClassified:              1,
	StageQuestionnaireInProgress: 2,
	StageScored:                  3,
	StageComplete:                4,
}

// CanTransition reports whether a session may move from s to next.
// The questionnaire stage may loop on itself while answers are recorded.
func (s Stage) CanTransition(next Stage) bool {
	if s == StageQuestionnaireInProgress && next == StageQuestionnaireInProgress {
		return true
	}
	from, ok := stageOrder[s]
	if !ok {
		return false
	}
	to, ok := stageOrder[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Answer is one recorded questionnaire response
type Answer struct {
	QuestionID string `json:"question_id" yaml:"question_id"`
	Value      int    `json:"value" yaml:"value"`
	Skipped    bool   `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// DiagnosisSession tracks one user's progress through an assessment.
// A user has at most one session; it is removed once archived as COMPLETE.
type DiagnosisSession struct {
	SessionID         string        `json:"session_id"`
	UserID            string        `json:"user_id"`
	Stage             Stage         `json:"stage"`
	NarrativeText     string        `json:"narrative_text"`
	PredictedDisorder DisorderLabel `json:"predicted_disorder,omitempty"`
	Confidence        float64       `json:"confidence"`
	InputTruncated    bool          `json:"input_truncated"`
	QuestionIndex     int           `json:"question_index"`
	Answers           []Answer      `json:"answers"`
	SeverityScore     *float64      `json:"severity_score,omitempty"`
	SeverityBand      SeverityBand  `json:"severity_band,omitempty"`
	Version           int64         `json:"version"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// Clone returns a deep copy so callers can derive a new session without
// touching the stored one
func (s *DiagnosisSession) Clone() *DiagnosisSession {
	if s == nil {
		return nil
	}
	c := *s
	c.Answers = append([]Answer(nil), s.Answers...)
	if s.SeverityScore != nil {
		score := *s.SeverityScore
		c.SeverityScore = &score
	}
	return &c
}

// DiagnosisRecord is an archived, completed assessment
type DiagnosisRecord struct {
	SessionID     string        `json:"session_id" yaml:"session_id"`
	Disorder      DisorderLabel `json:"disorder" yaml:"disorder"`
	Confidence    float64       `json:"confidence" yaml:"confidence"`
	Answers       []Answer      `json:"answers" yaml:"answers"`
	SeverityScore float64       `json:"severity_score" yaml:"severity_score"`
	SeverityBand  SeverityBand  `json:"severity_band" yaml:"severity_band"`
	StartedAt     time.Time     `json:"started_at" yaml:"started_at"`
	CompletedAt   time.Time     `json:"completed_at" yaml:"completed_at"`
}

// NewDiagnosisRecord builds the archive entry for a scored session
func NewDiagnosisRecord(s *DiagnosisSession, completedAt time.Time) (DiagnosisRecord, error) {
	if s.Stage != StageScored || s.SeverityScore == nil {
		return DiagnosisRecord{}, fmt.Errorf("%w: session %s is %s, not SCORED", ErrInvalidStateTransition, s.SessionID, s.Stage)
	}
	return DiagnosisRecord{
		SessionID:     s.SessionID,
		Disorder:      s.PredictedDisorder,
		Confidence:    s.Confidence,
		Answers:       append([]Answer(nil), s.Answers...),
		SeverityScore: *s.SeverityScore,
		SeverityBand:  s.SeverityBand,
		StartedAt:     s.CreatedAt,
		CompletedAt:   completedAt,
	}, nil
}
