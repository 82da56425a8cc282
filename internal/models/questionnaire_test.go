// ABOUTME: Tests for question answer parsing and severity thresholds
// ABOUTME: Verifies domain checks, label lookup, and boundary banding
package models

import (
	"errors"
	"testing"
)

func TestQuestion_ParseAnswer(t *testing.T) {
	ordinal := Question{ID: "phq9_1", Domain: AnswerDomain{Min: 0, Max: 3}, Weight: 1}
	yesNo := Question{ID: "ptsd_1", Domain: AnswerDomain{Min: 0, Max: 1, Labels: map[string]int{"yes": 1, "no": 0}}, Weight: 1}

	tests := []struct {
		name    string
		q       Question
		raw     string
		want    int
		wantErr bool
	}{
		{"ordinal in range", ordinal, "2", 2, false},
		{"ordinal padded", ordinal, " 3 ", 3, false},
		{"ordinal too high", ordinal, "4", 0, true},
		{"ordinal negative", ordinal, "-1", 0, true},
		{"ordinal text", ordinal, "often", 0, true},
		{"empty", ordinal, "", 0, true},
		{"yes label", yesNo, "Yes", 1, false},
		{"no label", yesNo, "NO", 0, false},
		{"numeric yes", yesNo, "1", 1, false},
		{"unknown label", yesNo, "maybe", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.q.ParseAnswer(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAnswer) {
					t.Fatalf("ParseAnswer(%q) error = %v, want ErrInvalidAnswer", tt.raw, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAnswer(%q) error = %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseAnswer(%q) = %d, want %d", tt.raw, got, tt.want)
			}
		})
	}
}

func TestThresholds_Band(t *testing.T) {
	th := Thresholds{MildMax: 9, ModerateMax: 14}

	tests := []struct {
		score float64
		want  SeverityBand
	}{
		{0, SeverityMild},
		{9, SeverityMild},
		{9.5, SeverityModerate},
		{14, SeverityModerate},
		{15, SeveritySevere},
		{27, SeveritySevere},
	}

	for _, tt := range tests {
		if got := th.Band(tt.score); got != tt.want {
			t.Errorf("Band(%v) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestQuestionTree_MaxScore(t *testing.T) {
	tree := QuestionTree{
		Questions: []Question{
			{ID: "a", Domain: AnswerDomain{Max: 3}, Weight: 1},
			{ID: "b", Domain: AnswerDomain{Max: 1}, Weight: 0},
			{ID: "c", Domain: AnswerDomain{Max: 3}, Weight: 2},
		},
	}
	if got := tree.MaxScore(); got != 9 {
		t.Errorf("MaxScore() = %v, want 9", got)
	}
	if tree.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tree.Len())
	}
}
