// ABOUTME: Fake model services and store helpers shared by core tests
// ABOUTME: The hash embedder gives deterministic bag-of-words vectors
package core

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
)

const testDim = 256

type hashEmbedder struct {
	mu    sync.Mutex
	model string
	dim   int
	calls int
	err   error
}

func newHashEmbedder() *hashEmbedder {
	return &hashEmbedder{model: "fake-embed", dim: testDim}
}

func (h *hashEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	if h.err != nil {
		return nil, h.err
	}
	v := make([]float64, h.dim)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,!?\"'")
		if w == "" {
			continue
		}
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		v[int(f.Sum32())%h.dim]++
	}
	return v, nil
}

func (h *hashEmbedder) EmbeddingModel() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.model
}

func (h *hashEmbedder) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type fakeClassifier struct {
	label      string
	confidence float64
	err        error
	delay      time.Duration
	gotText    string
	gotLabels  []string
	calls      int
}

func (f *fakeClassifier) ClassifyDisorder(ctx context.Context, text string, labels []string) (string, float64, error) {
	f.calls++
	f.gotText = text
	f.gotLabels = labels
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.label, f.confidence, f.err
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	block   bool
	prompts []models.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt models.Prompt) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	reply, err, block := f.reply, f.err, f.block
	f.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return reply, err
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func newTestStore(t *testing.T) *sqlite.Storage {
	t.Helper()
	store, err := sqlite.NewStorageInMemory()
	if err != nil {
		t.Fatalf("NewStorageInMemory() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedUser(t *testing.T, store *sqlite.Storage, id string) *models.User {
	t.Helper()
	user := &models.User{
		UserID:       id,
		Email:        id + "@example.com",
		PasswordHash: "x",
		FirstName:    "Sam",
	}
	if err := store.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return user
}

func newTestEngine(t *testing.T) *QuestionnaireEngine {
	t.Helper()
	trees, err := DefaultQuestionTrees()
	if err != nil {
		t.Fatalf("DefaultQuestionTrees() error = %v", err)
	}
	engine, err := NewQuestionnaireEngine(trees)
	if err != nil {
		t.Fatalf("NewQuestionnaireEngine() error = %v", err)
	}
	return engine
}

func newTestLocker() lock.Locker {
	return lock.NewKeyedMutex()
}
