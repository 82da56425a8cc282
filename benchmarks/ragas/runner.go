// ABOUTME: Test runner for RAGAS benchmarks - drives scenarios through the counselor
// ABOUTME: Collects the final reply, retrieved passages, and history for scoring

package ragas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/models"
	"go.uber.org/zap"
)

// Pipeline is the slice of MindAid a benchmark exercises
type Pipeline struct {
	Users interface {
		Register(ctx context.Context, req core.RegisterRequest) (*models.User, error)
	}
	Counselor interface {
		Respond(ctx context.Context, userID, message, token string) (*core.CounselReply, error)
	}
	Memory interface {
		Read(ctx context.Context, userID string) ([]models.Turn, error)
	}
	Retriever core.Retriever
	TopK      int
}

// BenchmarkRunner executes benchmark scenarios
type BenchmarkRunner struct {
	pipeline Pipeline
	metrics  *MetricsCalculator
	logger   *zap.Logger
	out      io.Writer
	verbose  bool
}

// NewBenchmarkRunner creates a runner. Progress is written to out when
// verbose is set.
func NewBenchmarkRunner(pipeline Pipeline, logger *zap.Logger, out io.Writer, verbose bool) *BenchmarkRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &BenchmarkRunner{
		pipeline: pipeline,
		metrics:  NewMetricsCalculator(),
		logger:   logger,
		out:      out,
		verbose:  verbose,
	}
}

// RunTest executes a single scenario under a freshly registered user
func (r *BenchmarkRunner) RunTest(ctx context.Context, scenario TestScenario) (TestResult, error) {
	if r.verbose {
		_, _ = fmt.Fprintf(r.out, "\n========================================\n")
		_, _ = fmt.Fprintf(r.out, "RUNNING: %s\n", scenario.Name)
		_, _ = fmt.Fprintf(r.out, "========================================\n")
		_, _ = fmt.Fprintf(r.out, "Description: %s\n\n", scenario.Description)
	}

	userID, err := r.setupUser(ctx, scenario)
	if err != nil {
		return TestResult{}, fmt.Errorf("setup failed: %w", err)
	}

	var (
		finalResponse    string
		retrievedContext []string
	)
	for _, turn := range scenario.Turns {
		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "[Turn %d] User: %s\n", turn.TurnNumber, turn.UserMessage)
		}

		reply, err := r.pipeline.Counselor.Respond(ctx, userID, turn.UserMessage, uuid.NewString())
		if err != nil {
			return TestResult{}, fmt.Errorf("turn %d failed: %w", turn.TurnNumber, err)
		}

		if r.verbose {
			_, _ = fmt.Fprintf(r.out, "[Turn %d] Counselor: %s\n\n", turn.TurnNumber, preview(reply.Reply, 150))
		}

		if turn.TurnNumber == scenario.GroundTruth.FinalQueryTurn {
			finalResponse = reply.Reply
			retrievedContext, err = r.collectContext(ctx, userID, turn.UserMessage)
			if err != nil {
				return TestResult{}, fmt.Errorf("context retrieval failed: %w", err)
			}
		}
	}

	result := r.metrics.EvaluateTest(scenario, finalResponse, retrievedContext)
	r.logger.Info("benchmark scenario scored",
		zap.String("test_id", result.TestID),
		zap.Float64("faithfulness", result.FaithfulnessScore),
		zap.Float64("context_recall", result.ContextRecallScore),
		zap.String("status", result.Status))

	if r.verbose {
		_, _ = fmt.Fprintf(r.out, "\n========================================\n")
		_, _ = fmt.Fprintf(r.out, "RESULTS: %s\n", scenario.Name)
		_, _ = fmt.Fprintf(r.out, "========================================\n")
		_, _ = fmt.Fprintf(r.out, "Faithfulness: %.2f\n", result.FaithfulnessScore)
		_, _ = fmt.Fprintf(r.out, "Context Recall: %.2f\n", result.ContextRecallScore)
		_, _ = fmt.Fprintf(r.out, "Overall Score: %.2f\n", result.OverallScore)
		_, _ = fmt.Fprintf(r.out, "Status: %s\n", result.Status)
		_, _ = fmt.Fprintf(r.out, "========================================\n\n")
	}

	return result, nil
}

// setupUser registers a throwaway user so scenarios never share memory
func (r *BenchmarkRunner) setupUser(ctx context.Context, scenario TestScenario) (string, error) {
	userID := fmt.Sprintf("bench-%s-%s", scenario.ID, uuid.NewString()[:8])
	user, err := r.pipeline.Users.Register(ctx, core.RegisterRequest{
		UserID:    userID,
		Email:     userID + "@benchmark.example.com",
		Password:  "benchmark-password",
		FirstName: "Benchmark",
	})
	if err != nil {
		return "", fmt.Errorf("failed to register user: %w", err)
	}
	return user.UserID, nil
}

// collectContext gathers what the model saw for message: the top passages
// and the conversation history
func (r *BenchmarkRunner) collectContext(ctx context.Context, userID, message string) ([]string, error) {
	items := []string{}

	if r.pipeline.Retriever != nil && r.pipeline.TopK > 0 {
		results, err := r.pipeline.Retriever.Query(ctx, message, r.pipeline.TopK)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			items = append(items, res.Entry.Text)
		}
	}

	turns, err := r.pipeline.Memory.Read(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, turn := range turns {
		items = append(items, turn.Text)
	}

	if r.verbose {
		_, _ = fmt.Fprintf(r.out, "  [DEBUG] Context items: %d\n", len(items))
	}
	return items, nil
}

// RunAllTests executes every scenario
func (r *BenchmarkRunner) RunAllTests(ctx context.Context) ([]TestResult, error) {
	scenarios := GetAllTests()
	results := make([]TestResult, 0, len(scenarios))

	for _, scenario := range scenarios {
		result, err := r.RunTest(ctx, scenario)
		if err != nil {
			return nil, fmt.Errorf("test %s failed: %w", scenario.ID, err)
		}
		results = append(results, result)
	}

	return results, nil
}

// Summary is the exported results document
type Summary struct {
	Timestamp  string       `json:"timestamp"`
	TotalTests int          `json:"total_tests"`
	Passed     int          `json:"passed"`
	Failed     int          `json:"failed"`
	Results    []TestResult `json:"results"`
}

// Summarize counts passes and failures
func Summarize(results []TestResult) Summary {
	s := Summary{
		Timestamp:  time.Now().Format(time.RFC3339),
		TotalTests: len(results),
		Results:    results,
	}
	for _, result := range results {
		if result.Status == "PASS" {
			s.Passed++
		} else {
			s.Failed++
		}
	}
	return s
}

// ExportResults writes the summary as JSON to outputPath
func ExportResults(results []TestResult, outputPath string) error {
	jsonData, err := json.MarshalIndent(Summarize(results), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	if err := os.WriteFile(outputPath, jsonData, 0644); err != nil {
		return fmt.Errorf("failed to write results file: %w", err)
	}
	return nil
}
