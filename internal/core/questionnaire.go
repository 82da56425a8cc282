// ABOUTME: QuestionnaireEngine walks a disorder's question tree and scores severity
// ABOUTME: Trees are loaded from YAML, validated once, and read-only afterwards
package core

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/harper/mindaid/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed defaults/questionnaires.yaml
var defaultQuestionnaires []byte

type questionnaireFile struct {
	Questionnaires []*models.QuestionTree `yaml:"questionnaires"`
}

// DefaultQuestionTrees returns the built-in questionnaires
func DefaultQuestionTrees() ([]*models.QuestionTree, error) {
	return LoadQuestionTrees(defaultQuestionnaires)
}

// LoadQuestionTreesFile reads questionnaires from a YAML file
func LoadQuestionTreesFile(path string) ([]*models.QuestionTree, error) {
	data, err := os.ReadFile(path) // #nosec G304
	if err != nil {
		return nil, fmt.Errorf("%w: read questionnaire file: %w", models.ErrConfiguration, err)
	}
	return LoadQuestionTrees(data)
}

// LoadQuestionTrees parses and validates questionnaire YAML
func LoadQuestionTrees(data []byte) ([]*models.QuestionTree, error) {
	var file questionnaireFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: parse questionnaires: %w", models.ErrConfiguration, err)
	}
	if len(file.Questionnaires) == 0 {
		return nil, fmt.Errorf("%w: no questionnaires defined", models.ErrConfiguration)
	}

	validate := validator.New()
	seen := make(map[models.DisorderLabel]bool)
	for _, tree := range file.Questionnaires {
		if err := validateTree(validate, tree); err != nil {
			return nil, err
		}
		if seen[tree.Disorder] {
			return nil, fmt.Errorf("%w: duplicate questionnaire for %s", models.ErrConfiguration, tree.Disorder)
		}
		seen[tree.Disorder] = true
	}
	return file.Questionnaires, nil
}

func validateTree(validate *validator.Validate, tree *models.QuestionTree) error {
	if tree == nil {
		return fmt.Errorf("%w: empty questionnaire entry", models.ErrConfiguration)
	}
	if err := validate.Struct(tree); err != nil {
		return fmt.Errorf("%w: questionnaire %s: %w", models.ErrConfiguration, tree.Disorder, err)
	}
	if !tree.Disorder.IsValid() {
		return fmt.Errorf("%w: unknown disorder %q", models.ErrConfiguration, tree.Disorder)
	}

	ids := make(map[string]bool, len(tree.Questions))
	for _, q := range tree.Questions {
		if ids[q.ID] {
			return fmt.Errorf("%w: questionnaire %s repeats question id %s", models.ErrConfiguration, tree.Disorder, q.ID)
		}
		ids[q.ID] = true
		for label, v := range q.Domain.Labels {
			if !q.Domain.Contains(v) {
				return fmt.Errorf("%w: question %s label %q maps outside its domain", models.ErrConfiguration, q.ID, label)
			}
		}
		// gating on any other value would let a higher answer lower the score
		if q.StopIf != nil && *q.StopIf != q.Domain.Min {
			return fmt.Errorf("%w: question %s stop_if must be its domain minimum %d", models.ErrConfiguration, q.ID, q.Domain.Min)
		}
	}

	for band := range tree.Advice {
		if !band.IsValid() {
			return fmt.Errorf("%w: questionnaire %s has advice for unknown band %q", models.ErrConfiguration, tree.Disorder, band)
		}
	}
	return nil
}

// QuestionnaireEngine dispatches sessions to the tree for their predicted disorder
type QuestionnaireEngine struct {
	trees map[models.DisorderLabel]*models.QuestionTree
}

// NewQuestionnaireEngine indexes trees by disorder
func NewQuestionnaireEngine(trees []*models.QuestionTree) (*QuestionnaireEngine, error) {
	if len(trees) == 0 {
		return nil, fmt.Errorf("%w: at least one questionnaire is required", models.ErrConfiguration)
	}
	e := &QuestionnaireEngine{trees: make(map[models.DisorderLabel]*models.QuestionTree, len(trees))}
	for _, t := range trees {
		e.trees[t.Disorder] = t
	}
	return e, nil
}

// Labels lists the disorders that have a questionnaire, in canonical order
func (e *QuestionnaireEngine) Labels() []models.DisorderLabel {
	labels := make([]models.DisorderLabel, 0, len(e.trees))
	for _, d := range models.AllDisorders {
		if _, ok := e.trees[d]; ok {
			labels = append(labels, d)
		}
	}
	return labels
}

// Tree returns the questionnaire for a disorder
func (e *QuestionnaireEngine) Tree(label models.DisorderLabel) (*models.QuestionTree, error) {
	tree, ok := e.trees[label]
	if !ok {
		return nil, fmt.Errorf("%w: no questionnaire for %s", models.ErrConfiguration, label)
	}
	return tree, nil
}

// NextQuestion returns the question the session expects next, or nil once
// every question has been answered
func (e *QuestionnaireEngine) NextQuestion(sess *models.DiagnosisSession) (*models.Question, error) {
	tree, err := e.Tree(sess.PredictedDisorder)
	if err != nil {
		return nil, err
	}
	if sess.QuestionIndex < 0 || sess.QuestionIndex > tree.Len() {
		return nil, fmt.Errorf("%w: question index %d outside [0, %d]", models.ErrInvalidStateTransition, sess.QuestionIndex, tree.Len())
	}
	if sess.QuestionIndex == tree.Len() {
		return nil, nil
	}
	q := tree.Questions[sess.QuestionIndex]
	return &q, nil
}

// FindQuestion looks a question up by id in the session's tree
func (e *QuestionnaireEngine) FindQuestion(sess *models.DiagnosisSession, questionID string) (*models.Question, error) {
	tree, err := e.Tree(sess.PredictedDisorder)
	if err != nil {
		return nil, err
	}
	for i := range tree.Questions {
		if tree.Questions[i].ID == questionID {
			q := tree.Questions[i]
			return &q, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown question %q for %s", models.ErrInvalidAnswer, questionID, sess.PredictedDisorder)
}

// RecordAnswer returns a copy of sess with value recorded for questionID.
// Answers must arrive in tree order; sess itself is left untouched. When
// the question gates on value, the rest of the tree is recorded as skipped
// at its domain minimum and the questionnaire is complete.
func (e *QuestionnaireEngine) RecordAnswer(sess *models.DiagnosisSession, questionID string, value int) (*models.DiagnosisSession, error) {
	if sess.Stage != models.StageQuestionnaireInProgress {
		return nil, fmt.Errorf("%w: cannot answer questions in stage %s", models.ErrInvalidStateTransition, sess.Stage)
	}
	next, err := e.NextQuestion(sess)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return nil, fmt.Errorf("%w: questionnaire already complete", models.ErrInvalidStateTransition)
	}
	if next.ID != questionID {
		return nil, fmt.Errorf("%w: %w: expected answer to %s, got %s",
			models.ErrInvalidAnswer, models.ErrInvalidStateTransition, next.ID, questionID)
	}
	if !next.Domain.Contains(value) {
		return nil, fmt.Errorf("%w: %d outside [%d, %d] for %s", models.ErrInvalidAnswer, value, next.Domain.Min, next.Domain.Max, next.ID)
	}

	out := sess.Clone()
	out.Answers = append(out.Answers, models.Answer{QuestionID: questionID, Value: value})
	out.QuestionIndex++

	if next.Stops(value) {
		tree, err := e.Tree(sess.PredictedDisorder)
		if err != nil {
			return nil, err
		}
		for _, q := range tree.Questions[out.QuestionIndex:] {
			out.Answers = append(out.Answers, models.Answer{QuestionID: q.ID, Value: q.Domain.Min, Skipped: true})
		}
		out.QuestionIndex = tree.Len()
	}
	return out, nil
}

// Score computes the weighted severity score and its band. It only accepts
// a session whose answers cover the whole tree, in order.
func (e *QuestionnaireEngine) Score(sess *models.DiagnosisSession) (float64, models.SeverityBand, error) {
	tree, err := e.Tree(sess.PredictedDisorder)
	if err != nil {
		return 0, "", err
	}
	if len(sess.Answers) != tree.Len() {
		return 0, "", fmt.Errorf("%w: %d of %d questions answered", models.ErrInvalidStateTransition, len(sess.Answers), tree.Len())
	}

	score := 0.0
	for i, a := range sess.Answers {
		q := tree.Questions[i]
		if a.QuestionID != q.ID {
			return 0, "", fmt.Errorf("%w: answer %d is for %s, expected %s", models.ErrInvalidStateTransition, i, a.QuestionID, q.ID)
		}
		score += q.Weight * float64(a.Value)
	}
	return score, tree.Thresholds.Band(score), nil
}

// Advice returns the message configured for a band, if any
func (e *QuestionnaireEngine) Advice(label models.DisorderLabel, band models.SeverityBand) string {
	tree, err := e.Tree(label)
	if err != nil {
		return ""
	}
	return tree.Advice[band]
}

