// ABOUTME: Tests for the composition root
// ABOUTME: Model-free wiring, configuration failures, and index building with a stub embedder
package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harper/mindaid/internal/config"
	"github.com/harper/mindaid/internal/core"
	"github.com/harper/mindaid/internal/models"
)

type constEmbedder struct{ calls int }

func (e *constEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	e.calls++
	return []float64{1, float64(len(text) % 7), 0.5}, nil
}

func (e *constEmbedder) EmbeddingModel() string { return "const" }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DBPath:                   filepath.Join(t.TempDir(), "data", "mindaid.db"),
		Timeout:                  time.Second,
		ClassifierMaxInputChars:  2000,
		AllowTruncation:          true,
		ChunkSize:                1000,
		ChunkOverlap:             200,
		RetrievalTopK:            3,
		QueryCacheTTL:            time.Minute,
		MemoryBudgetChars:        8000,
		GenerationMaxInputTokens: 6000,
		LockTTL:                  time.Minute,
	}
}

func TestNewBase(t *testing.T) {
	ctx := context.Background()
	c, err := NewBase(ctx, testConfig(t), nil)
	if err != nil {
		t.Fatalf("NewBase() error = %v", err)
	}
	defer func() { _ = c.Close() }()

	if c.Store == nil || c.Locker == nil || c.Users == nil || c.Memory == nil {
		t.Fatal("base container should wire storage, accounts, and memory")
	}
	if c.Counselor != nil || c.Diagnosis != nil {
		t.Error("base container must not wire model-backed services")
	}

	user, err := c.Users.Register(ctx, core.RegisterRequest{
		Email: "sam@example.com", Password: "long enough", FirstName: "Sam",
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got, _ := c.Store.GetUser(ctx, user.UserID); got == nil {
		t.Error("registered user should be persisted")
	}
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(context.Background(), testConfig(t), nil)
	if !errors.Is(err, models.ErrConfiguration) {
		t.Fatalf("New() error = %v, want ErrConfiguration", err)
	}
}

func TestLoadEngine(t *testing.T) {
	cfg := testConfig(t)
	engine, err := LoadEngine(cfg)
	if err != nil {
		t.Fatalf("LoadEngine() defaults error = %v", err)
	}
	if len(engine.Labels()) != len(models.AllDisorders) {
		t.Errorf("default engine has %d trees, want %d", len(engine.Labels()), len(models.AllDisorders))
	}

	cfg.QuestionnaireFile = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := LoadEngine(cfg); !errors.Is(err, models.ErrConfiguration) {
		t.Errorf("missing file error = %v, want ErrConfiguration", err)
	}
}

func TestBuildIndex(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	base, err := NewBase(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("NewBase() error = %v", err)
	}
	defer func() { _ = base.Close() }()

	emb := &constEmbedder{}
	idx, err := BuildIndex(ctx, cfg, emb, base.Store, nil)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if idx.Len() == 0 {
		t.Fatal("default corpus should produce chunks")
	}
	firstCalls := emb.calls

	// A second build is served from the embedding cache
	if _, err := BuildIndex(ctx, cfg, emb, base.Store, nil); err != nil {
		t.Fatalf("second BuildIndex() error = %v", err)
	}
	if emb.calls != firstCalls {
		t.Errorf("second build embedded %d chunks, want 0", emb.calls-firstCalls)
	}
}

func TestBuildIndex_CorpusDir(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("Listen first. Reflect feelings."), 0600); err != nil {
		t.Fatal(err)
	}
	cfg.CorpusDir = dir

	idx, err := BuildIndex(context.Background(), cfg, &constEmbedder{}, nil, nil)
	if err != nil {
		t.Fatalf("BuildIndex() error = %v", err)
	}
	if idx.Len() != 1 {
		t.Errorf("Len() = %d, want 1", idx.Len())
	}
}
