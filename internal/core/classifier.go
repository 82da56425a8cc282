// ABOUTME: ClassificationAdapter turns a free-text narrative into a disorder label
// ABOUTME: Bounds input length and maps every model failure to ErrModelUnavailable
package core

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/harper/mindaid/internal/models"
	"go.uber.org/zap"
)

// DisorderClassifier is the classification model service
type DisorderClassifier interface {
	ClassifyDisorder(ctx context.Context, text string, labels []string) (label string, confidence float64, err error)
}

// Classification is the adapter's result
type Classification struct {
	Label      models.DisorderLabel `json:"label"`
	Confidence float64              `json:"confidence"`
	Truncated  bool                 `json:"truncated"`
}

// ClassifierOptions configures a ClassificationAdapter
type ClassifierOptions struct {
	MaxInputChars   int
	AllowTruncation bool
	Timeout         time.Duration
}

// ClassificationAdapter validates narratives and calls the classification model
type ClassificationAdapter struct {
	model  DisorderClassifier
	labels []models.DisorderLabel
	opts   ClassifierOptions
	logger *zap.Logger
}

// NewClassificationAdapter creates an adapter offering labels to the model
func NewClassificationAdapter(model DisorderClassifier, labels []models.DisorderLabel, opts ClassifierOptions, logger *zap.Logger) *ClassificationAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassificationAdapter{model: model, labels: labels, opts: opts, logger: logger}
}

// Classify labels a narrative. Input over MaxInputChars runes is cut to
// that length and flagged, unless truncation is disallowed.
func (a *ClassificationAdapter) Classify(ctx context.Context, text string) (Classification, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Classification{}, fmt.Errorf("%w: narrative text cannot be empty", models.ErrInputValidation)
	}

	truncated := false
	if a.opts.MaxInputChars > 0 && utf8.RuneCountInString(text) > a.opts.MaxInputChars {
		if !a.opts.AllowTruncation {
			return Classification{}, fmt.Errorf("%w: narrative exceeds %d characters", models.ErrInputTooLong, a.opts.MaxInputChars)
		}
		text = string([]rune(text)[:a.opts.MaxInputChars])
		truncated = true
	}

	if a.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
	}

	offered := make([]string, len(a.labels))
	for i, l := range a.labels {
		offered[i] = string(l)
	}

	raw, confidence, err := a.model.ClassifyDisorder(ctx, text, offered)
	if err != nil {
		a.logger.Warn("classification failed", zap.Error(err))
		return Classification{}, fmt.Errorf("%w: classify: %w", models.ErrModelUnavailable, err)
	}

	label, err := models.ParseDisorderLabel(raw)
	if err != nil || !a.offers(label) {
		return Classification{}, fmt.Errorf("%w: classifier returned unsupported label %q", models.ErrModelUnavailable, raw)
	}
	if confidence < 0 || confidence > 1 {
		return Classification{}, fmt.Errorf("%w: classifier confidence %v outside [0, 1]", models.ErrModelUnavailable, confidence)
	}

	return Classification{Label: label, Confidence: confidence, Truncated: truncated}, nil
}

func (a *ClassificationAdapter) offers(label models.DisorderLabel) bool {
	for _, l := range a.labels {
		if l == label {
			return true
		}
	}
	return false
}
