// ABOUTME: Command-line benchmark runner for counseling quality
// ABOUTME: Runs the RAGAS-style scenarios against a scratch database and writes JSON results

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/harper/mindaid/benchmarks/ragas"
	"github.com/harper/mindaid/internal/bootstrap"
	"github.com/harper/mindaid/internal/config"
	"github.com/harper/mindaid/internal/logging"
	"github.com/joho/godotenv"
)

func main() {
	testID := flag.String("test", "", "Run a specific scenario (listen, anxiety, memory, trauma). If empty, runs all.")
	outputPath := flag.String("output", "benchmark_results.json", "Output path for JSON results")
	dbPath := flag.String("db", "", "Database to use (default: a scratch database removed afterwards)")
	verbose := flag.Bool("verbose", false, "Enable verbose output")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found (continuing anyway): %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if cfg.OpenAIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required for benchmarks")
	}

	scratch := ""
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	} else {
		scratch, err = os.MkdirTemp("", "mindaid_bench_*")
		if err != nil {
			log.Fatalf("Failed to create scratch directory: %v", err)
		}
		cfg.DBPath = filepath.Join(scratch, "bench.db")
	}

	fmt.Println("========================================")
	fmt.Println("MindAid Counseling Benchmarks")
	fmt.Println("========================================")
	fmt.Println()

	code := run(cfg, *testID, *outputPath, *verbose)
	if scratch != "" {
		_ = os.RemoveAll(scratch)
	}
	os.Exit(code)
}

// run returns the process exit code so the scratch database can be removed
// before exiting
func run(cfg *config.Config, testID, outputPath string, verbose bool) int {
	ctx := context.Background()
	logger := logging.New(logging.Options{Quiet: !verbose})

	container, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Printf("Failed to initialize services: %v", err)
		return 1
	}
	defer func() { _ = container.Close() }()

	runner := ragas.NewBenchmarkRunner(ragas.Pipeline{
		Users:     container.Users,
		Counselor: container.Counselor,
		Memory:    container.Memory,
		Retriever: container.Index,
		TopK:      cfg.RetrievalTopK,
	}, logger, os.Stdout, verbose)

	var results []ragas.TestResult
	if testID == "" {
		fmt.Println("Running all benchmark scenarios...")
		fmt.Println()
		results, err = runner.RunAllTests(ctx)
		if err != nil {
			log.Printf("Benchmark failed: %v", err)
			return 1
		}
	} else {
		scenario, ok := ragas.ScenarioByID(testID)
		if !ok {
			log.Printf("Unknown test ID: %s (valid options: listen, anxiety, memory, trauma)", testID)
			return 1
		}
		fmt.Printf("Running test: %s\n\n", scenario.Name)
		result, err := runner.RunTest(ctx, scenario)
		if err != nil {
			log.Printf("Test failed: %v", err)
			return 1
		}
		results = []ragas.TestResult{result}
	}

	fmt.Println("\n========================================")
	fmt.Println("BENCHMARK SUMMARY")
	fmt.Println("========================================")
	for _, result := range results {
		fmt.Printf("\n%s: %s\n", result.TestID, result.TestName)
		fmt.Printf("  Faithfulness: %.2f\n", result.FaithfulnessScore)
		fmt.Printf("  Context Recall: %.2f\n", result.ContextRecallScore)
		fmt.Printf("  Overall: %.2f\n", result.OverallScore)
		fmt.Printf("  Status: %s\n", result.Status)
	}

	summary := ragas.Summarize(results)
	fmt.Println("\n========================================")
	fmt.Printf("Total Tests: %d\n", summary.TotalTests)
	fmt.Printf("Passed: %d\n", summary.Passed)
	fmt.Printf("Failed: %d\n", summary.Failed)
	fmt.Println("========================================")

	if err := ragas.ExportResults(results, outputPath); err != nil {
		log.Printf("Failed to export results: %v", err)
		return 1
	}
	fmt.Printf("Results exported to: %s\n", outputPath)

	if summary.Failed > 0 {
		return 1
	}
	return 0
}
