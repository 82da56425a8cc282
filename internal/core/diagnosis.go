// ABOUTME: DiagnosisService drives a user from narrative intake to an archived severity result
// ABOUTME: Every mutation runs under the user's lock and commits with a version check
package core

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"go.uber.org/zap"
)

// IntakePrompts guide the user toward a narrative detailed enough to classify
var IntakePrompts = []string{
	"How have you been feeling lately? Tell me about anything that has been on your mind.",
	"Can you share any recent events or experiences that might have triggered these feelings or symptoms?",
	"Have you experienced any significant traumas in the past, or do you have any habits or behaviors that you think might be affecting your mental health?",
}

// Classifier is what the diagnosis flow needs from classification
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}

// QuestionView describes the next question for a client
type QuestionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Position int      `json:"position"`
	Total    int      `json:"total"`
	Min      int      `json:"min"`
	Max      int      `json:"max"`
	Labels   []string `json:"labels,omitempty"`
}

// DiagnosisView is the client-facing state of a user's assessment
type DiagnosisView struct {
	SessionID      string                  `json:"session_id,omitempty"`
	Stage          models.Stage            `json:"stage"`
	Disorder       models.DisorderLabel    `json:"disorder,omitempty"`
	Confidence     float64                 `json:"confidence,omitempty"`
	InputTruncated bool                    `json:"input_truncated,omitempty"`
	NextQuestion   *QuestionView           `json:"next_question,omitempty"`
	Answered       int                     `json:"answered"`
	Total          int                     `json:"total,omitempty"`
	SeverityScore  *float64                `json:"severity_score,omitempty"`
	SeverityBand   models.SeverityBand     `json:"severity_band,omitempty"`
	Advice         string                  `json:"advice,omitempty"`
	IntakePrompts  []string                `json:"intake_prompts,omitempty"`
	Record         *models.DiagnosisRecord `json:"record,omitempty"`
}

// DiagnosisService is the diagnosis session state machine
type DiagnosisService struct {
	store      *sqlite.Storage
	engine     *QuestionnaireEngine
	classifier Classifier
	locker     lock.Locker
	logger     *zap.Logger
	now        func() time.Time
}

// NewDiagnosisService wires the state machine to its collaborators
func NewDiagnosisService(store *sqlite.Storage, engine *QuestionnaireEngine, classifier Classifier, locker lock.Locker, logger *zap.Logger) *DiagnosisService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiagnosisService{
		store:      store,
		engine:     engine,
		classifier: classifier,
		locker:     locker,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// StartIntake classifies the narrative and opens the matching questionnaire.
// Any unfinished session is discarded, but only once classification succeeds.
func (s *DiagnosisService) StartIntake(ctx context.Context, userID, narrative string) (*DiagnosisView, error) {
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := requireActiveUser(ctx, s.store, userID); err != nil {
		return nil, err
	}
	prev, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.classifier.Classify(ctx, narrative)
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess := &models.DiagnosisSession{
		SessionID:     "diag_" + uuid.New().String(),
		UserID:        userID,
		Stage:         models.StageIntake,
		NarrativeText: narrative,
		Answers:       []models.Answer{},
		CreatedAt:     now,
	}
	if err := advance(sess, models.StageClassified); err != nil {
		return nil, err
	}
	sess.PredictedDisorder = result.Label
	sess.Confidence = result.Confidence
	sess.InputTruncated = result.Truncated

	if _, err := s.engine.Tree(sess.PredictedDisorder); err != nil {
		return nil, err
	}
	if err := advance(sess, models.StageQuestionnaireInProgress); err != nil {
		return nil, err
	}

	if err := s.store.ReplaceSession(ctx, prev, sess); err != nil {
		return nil, err
	}

	s.logger.Info("diagnosis intake classified",
		logging.UserField(userID),
		zap.String("session_id", sess.SessionID),
		zap.String("disorder", string(sess.PredictedDisorder)),
		zap.Float64("confidence", sess.Confidence),
		zap.Bool("truncated", sess.InputTruncated),
		zap.Bool("replaced", prev != nil))

	return s.view(sess)
}

// SubmitAnswer records one answer. The answer that exhausts the tree also
// scores the session and moves it to SCORED.
func (s *DiagnosisService) SubmitAnswer(ctx context.Context, userID, questionID, rawValue string) (*DiagnosisView, error) {
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	sess, err := s.activeSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess.Stage != models.StageQuestionnaireInProgress {
		return nil, fmt.Errorf("%w: cannot answer questions in stage %s", models.ErrInvalidStateTransition, sess.Stage)
	}

	q, err := s.engine.FindQuestion(sess, questionID)
	if err != nil {
		return nil, err
	}
	value, err := q.ParseAnswer(rawValue)
	if err != nil {
		return nil, err
	}

	next, err := s.engine.RecordAnswer(sess, questionID, value)
	if err != nil {
		return nil, err
	}

	remaining, err := s.engine.NextQuestion(next)
	if err != nil {
		return nil, err
	}
	if remaining == nil {
		score, band, err := s.engine.Score(next)
		if err != nil {
			return nil, err
		}
		if err := advance(next, models.StageScored); err != nil {
			return nil, err
		}
		next.SeverityScore = &score
		next.SeverityBand = band
	}

	if err := s.store.SaveSession(ctx, next); err != nil {
		return nil, err
	}

	if next.Stage == models.StageScored {
		s.logger.Info("diagnosis scored",
			logging.UserField(userID),
			zap.String("session_id", next.SessionID),
			zap.Float64("score", *next.SeverityScore),
			zap.String("band", string(next.SeverityBand)))
	}
	return s.view(next)
}

// Finalize archives a scored session into the user's history and clears it
func (s *DiagnosisService) Finalize(ctx context.Context, userID string) (*DiagnosisView, error) {
	release, err := s.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := requireActiveUser(ctx, s.store, userID)
	if err != nil {
		return nil, err
	}
	sess, err := s.activeSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sess.Stage.CanTransition(models.StageComplete) {
		return nil, fmt.Errorf("%w: cannot finalize a session in stage %s", models.ErrInvalidStateTransition, sess.Stage)
	}

	rec, err := models.NewDiagnosisRecord(sess, s.now())
	if err != nil {
		return nil, err
	}
	user.ApplyDiagnosis(rec)

	if err := s.store.ArchiveSession(ctx, user, sess); err != nil {
		return nil, err
	}

	s.logger.Info("diagnosis archived",
		logging.UserField(userID),
		zap.String("session_id", rec.SessionID),
		zap.Int("history", len(user.DiagnosisHistory)))

	score := rec.SeverityScore
	return &DiagnosisView{
		SessionID:     rec.SessionID,
		Stage:         models.StageComplete,
		Disorder:      rec.Disorder,
		Confidence:    rec.Confidence,
		Answered:      len(rec.Answers),
		Total:         len(rec.Answers),
		SeverityScore: &score,
		SeverityBand:  rec.SeverityBand,
		Advice:        s.engine.Advice(rec.Disorder, rec.SeverityBand),
		Record:        &rec,
	}, nil
}

// Status reports where the user is in the assessment. Without an active
// session the user is at INTAKE.
func (s *DiagnosisService) Status(ctx context.Context, userID string) (*DiagnosisView, error) {
	if _, err := requireUser(ctx, s.store, userID); err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return &DiagnosisView{Stage: models.StageIntake, IntakePrompts: IntakePrompts}, nil
	}
	return s.view(sess)
}

func (s *DiagnosisService) activeSession(ctx context.Context, userID string) (*models.DiagnosisSession, error) {
	sess, err := s.store.GetSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, fmt.Errorf("%w: user %s has no diagnosis in progress", models.ErrInvalidStateTransition, userID)
	}
	return sess, nil
}

func (s *DiagnosisService) view(sess *models.DiagnosisSession) (*DiagnosisView, error) {
	tree, err := s.engine.Tree(sess.PredictedDisorder)
	if err != nil {
		return nil, err
	}
	v := &DiagnosisView{
		SessionID:      sess.SessionID,
		Stage:          sess.Stage,
		Disorder:       sess.PredictedDisorder,
		Confidence:     sess.Confidence,
		InputTruncated: sess.InputTruncated,
		Answered:       len(sess.Answers),
		Total:          tree.Len(),
		SeverityScore:  sess.SeverityScore,
		SeverityBand:   sess.SeverityBand,
	}

	switch sess.Stage {
	case models.StageQuestionnaireInProgress:
		q, err := s.engine.NextQuestion(sess)
		if err != nil {
			return nil, err
		}
		if q != nil {
			v.NextQuestion = &QuestionView{
				ID:       q.ID,
				Text:     q.Text,
				Position: sess.QuestionIndex + 1,
				Total:    tree.Len(),
				Min:      q.Domain.Min,
				Max:      q.Domain.Max,
				Labels:   sortedLabels(q.Domain.Labels),
			}
		}
	case models.StageScored:
		v.Advice = tree.Advice[sess.SeverityBand]
	}
	return v, nil
}

// advance moves sess to next if the stage machine allows it
func advance(sess *models.DiagnosisSession, next models.Stage) error {
	if !sess.Stage.CanTransition(next) {
		return fmt.Errorf("%w: %s to %s", models.ErrInvalidStateTransition, sess.Stage, next)
	}
	sess.Stage = next
	return nil
}
