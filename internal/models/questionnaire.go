// ABOUTME: Questionnaire tree definitions for per-disorder severity assessment
// ABOUTME: Trees are static configuration loaded once and never mutated at runtime
package models

import (
	"fmt"
	"strconv"
	"strings"
)

// AnswerDomain is the set of accepted values for a question: integers in
// [Min, Max], optionally addressable by text labels such as "yes" or "no".
type AnswerDomain struct {
	Min    int            `yaml:"min" json:"min" validate:"gte=0"`
	Max    int            `yaml:"max" json:"max" validate:"gtefield=Min"`
	Labels map[string]int `yaml:"labels,omitempty" json:"labels,omitempty"`
}

// Contains reports whether v is inside the domain
func (d AnswerDomain) Contains(v int) bool {
	return v >= d.Min && v <= d.Max
}

// Question is one questionnaire item
type Question struct {
	ID     string       `yaml:"id" json:"id" validate:"required"`
	Text   string       `yaml:"text" json:"text" validate:"required"`
	Domain AnswerDomain `yaml:"domain" json:"domain"`
	Weight float64      `yaml:"weight" json:"weight" validate:"gte=0"`
	// StopIf ends the questionnaire when answered with this value; the
	// remaining questions are recorded at their domain minimum
	StopIf *int `yaml:"stop_if,omitempty" json:"stop_if,omitempty"`
}

// Stops reports whether answering v ends the questionnaire
func (q Question) Stops(v int) bool {
	return q.StopIf != nil && *q.StopIf == v
}

// ParseAnswer converts client input to a domain value. Numbers are taken
// as-is; otherwise the text is matched case-insensitively against labels.
func (q Question) ParseAnswer(raw string) (int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("%w: empty answer for %s", ErrInvalidAnswer, q.ID)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		found := false
		for label, lv := range q.Domain.Labels {
			if strings.EqualFold(label, s) {
				v, found = lv, true
				break
			}
		}
		if !found {
			return 0, fmt.Errorf("%w: %q is not an accepted answer for %s", ErrInvalidAnswer, raw, q.ID)
		}
	}
	if !q.Domain.Contains(v) {
		return 0, fmt.Errorf("%w: %d outside [%d, %d] for %s", ErrInvalidAnswer, v, q.Domain.Min, q.Domain.Max, q.ID)
	}
	return v, nil
}

// Thresholds map a score to a band: score <= MildMax is MILD,
// score <= ModerateMax is MODERATE, anything higher is SEVERE.
type Thresholds struct {
	MildMax     float64 `yaml:"mild_max" json:"mild_max"`
	ModerateMax float64 `yaml:"moderate_max" json:"moderate_max" validate:"gtfield=MildMax"`
}

// Band returns the severity band for a score
func (t Thresholds) Band(score float64) SeverityBand {
	switch {
	case score <= t.MildMax:
		return SeverityMild
	case score <= t.ModerateMax:
		return SeverityModerate
	default:
		return SeveritySevere
	}
}

// QuestionTree is the ordered questionnaire for one disorder
type QuestionTree struct {
	Disorder   DisorderLabel           `yaml:"disorder" json:"disorder" validate:"required"`
	Title      string                  `yaml:"title" json:"title"`
	Questions  []Question              `yaml:"questions" json:"questions" validate:"required,min=1,dive"`
	Thresholds Thresholds              `yaml:"thresholds" json:"thresholds"`
	Advice     map[SeverityBand]string `yaml:"advice,omitempty" json:"advice,omitempty"`
}

// Len is the number of questions in the tree
func (t *QuestionTree) Len() int {
	return len(t.Questions)
}

// MaxScore is the highest score the tree can produce
func (t *QuestionTree) MaxScore() float64 {
	total := 0.0
	for _, q := range t.Questions {
		total += q.Weight * float64(q.Domain.Max)
	}
	return total
}
