// ABOUTME: RetrievalIndex embeds the corpus once and answers top-k cosine similarity queries
// ABOUTME: Corpus vectors are cached in SQLite; query vectors in an in-process TTL cache
package core

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Embedder is the embedding function shared by corpus and queries
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbeddingModel() string
}

// IndexStats reports how a build went
type IndexStats struct {
	Entries   int `json:"entries"`
	Embedded  int `json:"embedded"`
	FromCache int `json:"from_cache"`
	Dimension int `json:"dimension"`
}

// RetrievalIndex is read-only after BuildRetrievalIndex returns
type RetrievalIndex struct {
	embedder   Embedder
	model      string
	dimension  int
	entries    []models.CorpusEntry
	queryCache *cache.Cache
	stats      IndexStats
	logger     *zap.Logger
}

// BuildRetrievalIndex embeds chunks in order. store may be nil to skip the
// persistent vector cache.
func BuildRetrievalIndex(ctx context.Context, embedder Embedder, store *sqlite.Storage, chunks []models.Chunk, queryTTL time.Duration, logger *zap.Logger) (*RetrievalIndex, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: retrieval corpus is empty", models.ErrConfiguration)
	}

	idx := &RetrievalIndex{
		embedder:   embedder,
		model:      embedder.EmbeddingModel(),
		entries:    make([]models.CorpusEntry, 0, len(chunks)),
		queryCache: cache.New(queryTTL, 2*queryTTL),
		logger:     logger,
	}

	for _, chunk := range chunks {
		vector, cached, err := idx.corpusVector(ctx, store, chunk.Content)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", chunk.ChunkID, err)
		}
		entry := models.CorpusEntry{
			ID:     chunk.ChunkID,
			Source: chunk.Source,
			Text:   chunk.Content,
			Vector: vector,
		}
		if idx.dimension == 0 {
			idx.dimension = len(vector)
		}
		if err := entry.ValidateDimension(idx.dimension); err != nil {
			return nil, err
		}
		idx.entries = append(idx.entries, entry)
		if cached {
			idx.stats.FromCache++
		} else {
			idx.stats.Embedded++
		}
	}

	idx.stats.Entries = len(idx.entries)
	idx.stats.Dimension = idx.dimension
	logger.Info("retrieval index built",
		zap.String("model", idx.model),
		zap.Int("entries", idx.stats.Entries),
		zap.Int("embedded", idx.stats.Embedded),
		zap.Int("from_cache", idx.stats.FromCache),
		zap.Int("dimension", idx.dimension))
	return idx, nil
}

func (r *RetrievalIndex) corpusVector(ctx context.Context, store *sqlite.Storage, text string) ([]float64, bool, error) {
	hash := sqlite.ContentHash(text)
	if store != nil {
		vector, err := store.GetEmbedding(ctx, r.model, hash)
		if err != nil {
			return nil, false, err
		}
		if vector != nil {
			return vector, true, nil
		}
	}

	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	if store != nil {
		if err := store.PutEmbedding(ctx, r.model, hash, vector); err != nil {
			return nil, false, err
		}
	}
	return vector, false, nil
}

// Len is the number of corpus entries
func (r *RetrievalIndex) Len() int {
	return len(r.entries)
}

// Model is the embedding model the corpus was embedded with
func (r *RetrievalIndex) Model() string {
	return r.model
}

// Stats reports the build counters
func (r *RetrievalIndex) Stats() IndexStats {
	return r.stats
}

// Query returns up to k entries by descending cosine similarity to text.
// Equal similarities keep corpus order.
func (r *RetrievalIndex) Query(ctx context.Context, text string, k int) ([]models.SearchResult, error) {
	if k < 0 {
		return nil, fmt.Errorf("%w: k must not be negative, got %d", models.ErrInputValidation, k)
	}
	if k == 0 {
		return []models.SearchResult{}, nil
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: query text cannot be empty", models.ErrInputValidation)
	}
	if m := r.embedder.EmbeddingModel(); m != r.model {
		return nil, fmt.Errorf("%w: query embedder %s differs from corpus embedder %s", models.ErrConfiguration, m, r.model)
	}

	query, err := r.queryVector(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(query) != r.dimension {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, corpus has %d", models.ErrConfiguration, len(query), r.dimension)
	}

	results := make([]models.SearchResult, len(r.entries))
	for i, e := range r.entries {
		results[i] = models.SearchResult{Entry: e, Similarity: CosineSimilarity(query, e.Vector)}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

func (r *RetrievalIndex) queryVector(ctx context.Context, text string) ([]float64, error) {
	key := r.model + "\x00" + text
	if v, ok := r.queryCache.Get(key); ok {
		return v.([]float64), nil
	}
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", models.ErrModelUnavailable, err)
	}
	r.queryCache.Set(key, vector, cache.DefaultExpiration)
	return vector, nil
}

// CosineSimilarity calculates cosine similarity between two vectors
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
