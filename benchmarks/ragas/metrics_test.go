// ABOUTME: Tests for benchmark scoring
// ABOUTME: Covers faithfulness, context recall, and pass/fail status

package ragas

import "testing"

func TestCalculateFaithfulness(t *testing.T) {
	m := NewMetricsCalculator()

	tests := []struct {
		name      string
		response  string
		expected  []string
		forbidden []string
		want      float64
	}{
		{"perfect", "It sounds like losing your job was hard", []string{"job"}, []string{"stupid"}, 1.0},
		{"case insensitive", "Your JOB matters", []string{"job"}, nil, 1.0},
		{"missing", "That sounds hard", []string{"job"}, nil, 0.5},
		{"forbidden", "That is stupid", nil, []string{"stupid"}, 0.5},
		{"both", "That is stupid", []string{"job"}, []string{"stupid"}, 0.0},
		{"no ground truth", "anything", nil, nil, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, detail := m.CalculateFaithfulness(tt.response, tt.expected, tt.forbidden)
			if got != tt.want {
				t.Errorf("score = %.2f, want %.2f (%s)", got, tt.want, detail)
			}
		})
	}
}

func TestCalculateContextRecall(t *testing.T) {
	m := NewMetricsCalculator()

	got, _ := m.CalculateContextRecall([]string{"Reflect back the feeling", "other"}, []string{"reflect back", "missing item"})
	if got != 0.5 {
		t.Errorf("recall = %.2f, want 0.50", got)
	}

	got, _ = m.CalculateContextRecall(nil, nil)
	if got != 1.0 {
		t.Errorf("recall with no expectations = %.2f, want 1.00", got)
	}
}

func TestEvaluateTest(t *testing.T) {
	m := NewMetricsCalculator()
	scenario := GetTestMemory()

	pass := m.EvaluateTest(scenario, "You said you lost your job.", []string{"I lost my job at the bakery"})
	if pass.Status != "PASS" || pass.OverallScore != 1.0 {
		t.Errorf("expected PASS with overall 1.0, got %s %.2f", pass.Status, pass.OverallScore)
	}

	fail := m.EvaluateTest(scenario, "Tell me more.", nil)
	if fail.Status != "FAIL" {
		t.Errorf("expected FAIL, got %s", fail.Status)
	}
	if fail.TestID != "memory" {
		t.Errorf("TestID = %q", fail.TestID)
	}
}

func TestScenarioByID(t *testing.T) {
	for _, s := range GetAllTests() {
		got, ok := ScenarioByID(s.ID)
		if !ok || got.Name != s.Name {
			t.Errorf("ScenarioByID(%q) failed", s.ID)
		}
		if s.GroundTruth.FinalQueryTurn > len(s.Turns) {
			t.Errorf("%s: final query turn %d beyond %d turns", s.ID, s.GroundTruth.FinalQueryTurn, len(s.Turns))
		}
	}
	if _, ok := ScenarioByID("nope"); ok {
		t.Error("expected unknown id to be reported")
	}
}
