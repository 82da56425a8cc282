// ABOUTME: Corpus embedding cache for SQLite
// ABOUTME: Stores vectors as little-endian float64 BLOBs keyed by model and content hash
package sqlite

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math"
	"time"
)

// EmbeddingStore caches corpus embeddings so restarts skip re-embedding
type EmbeddingStore struct {
	db *DB
}

// NewEmbeddingStore creates a new EmbeddingStore
func NewEmbeddingStore(db *DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// ContentHash is the cache key for a piece of text
func ContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached vector for (model, hash), or nil if absent
func (s *EmbeddingStore) Get(ctx context.Context, model, hash string) ([]float64, error) {
	var blob []byte
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT vector FROM corpus_embeddings
		WHERE model = ? AND content_hash = ?
	`, model, hash).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("get embedding", err)
	}
	return blobToVector(blob), nil
}

// Put stores a vector, replacing any previous one for the same key
func (s *EmbeddingStore) Put(ctx context.Context, model, hash string, vector []float64) error {
	_, err := s.db.conn.ExecContext(ctx, `
		INSERT INTO corpus_embeddings (model, content_hash, dimension, vector, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(model, content_hash) DO UPDATE SET
			dimension = excluded.dimension,
			vector = excluded.vector
	`, model, hash, len(vector), vectorToBlob(vector), time.Now().UTC())
	if err != nil {
		return storageErr("put embedding", err)
	}
	return nil
}

// Count returns how many vectors are cached for a model
func (s *EmbeddingStore) Count(ctx context.Context, model string) (int, error) {
	var n int
	if err := s.db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM corpus_embeddings WHERE model = ?`, model).Scan(&n); err != nil {
		return 0, storageErr("count embeddings", err)
	}
	return n, nil
}

// vectorToBlob converts a float64 slice to binary blob
func vectorToBlob(vector []float64) []byte {
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// blobToVector converts a binary blob to float64 slice
func blobToVector(blob []byte) []float64 {
	count := len(blob) / 8
	vector := make([]float64, count)
	for i := 0; i < count; i++ {
		bits := binary.LittleEndian.Uint64(blob[i*8:])
		vector[i] = math.Float64frombits(bits)
	}
	return vector
}
