// ABOUTME: Tests for the corpus embedding cache
// ABOUTME: Verifies vector round trips, upserts, and per-model isolation
package sqlite

import (
	"context"
	"math"
	"testing"
)

func TestEmbeddingCache(t *testing.T) {
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	defer func() { _ = db.Close() }()

	store := NewEmbeddingStore(db)
	ctx := context.Background()
	hash := ContentHash("Reflect the client's feelings back to them.")

	missing, err := store.Get(ctx, "small", hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if missing != nil {
		t.Fatal("Get() should return nil for an unknown key")
	}

	vector := make([]float64, 1536)
	for i := range vector {
		vector[i] = float64(i) / 1536.0
	}
	if err := store.Put(ctx, "small", hash, vector); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, "small", hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if len(got) != 1536 {
		t.Fatalf("Vector length = %v, want 1536", len(got))
	}
	for i, v := range got {
		if math.Abs(v-vector[i]) > 1e-12 {
			t.Fatalf("Vector[%d] = %v, want %v", i, v, vector[i])
		}
	}

	// Same hash under another model is a separate entry
	other, err := store.Get(ctx, "large", hash)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if other != nil {
		t.Error("cache must be keyed by model")
	}

	// Upsert replaces
	if err := store.Put(ctx, "small", hash, []float64{1, 2, 3}); err != nil {
		t.Fatalf("Put() replace error = %v", err)
	}
	got, _ = store.Get(ctx, "small", hash)
	if len(got) != 3 {
		t.Errorf("replaced vector length = %d, want 3", len(got))
	}

	n, err := store.Count(ctx, "small")
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

func TestContentHash(t *testing.T) {
	a := ContentHash("same text")
	b := ContentHash("same text")
	c := ContentHash("other text")
	if a != b {
		t.Error("ContentHash should be deterministic")
	}
	if a == c {
		t.Error("different text should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(a))
	}
}

func TestVectorBlobRoundTrip(t *testing.T) {
	in := []float64{0, -1.5, math.Pi, math.MaxFloat64}
	out := blobToVector(vectorToBlob(in))
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}
