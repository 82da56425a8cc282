// ABOUTME: Unified Storage layer that wraps all SQLite stores
// ABOUTME: The persistence collaborator used by the diagnosis, counseling, and user services
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/harper/mindaid/internal/models"
)

// Storage manages all persistent MindAid data using SQLite
type Storage struct {
	db         *DB
	users      *UserStore
	sessions   *SessionStore
	memory     *MemoryStore
	embeddings *EmbeddingStore
}

// NewStorageWithPath initializes storage with a database file path
func NewStorageWithPath(dbPath string) (*Storage, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return newStorage(db), nil
}

// NewStorageInMemory creates an in-memory storage (for testing)
func NewStorageInMemory() (*Storage, error) {
	db, err := OpenInMemory()
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	return newStorage(db), nil
}

func newStorage(db *DB) *Storage {
	return &Storage{
		db:         db,
		users:      NewUserStore(db),
		sessions:   NewSessionStore(db),
		memory:     NewMemoryStore(db),
		embeddings: NewEmbeddingStore(db),
	}
}

// Close closes the database connection
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetUser returns the user or nil if unknown
func (s *Storage) GetUser(ctx context.Context, userID string) (*models.User, error) {
	return s.users.Get(ctx, userID)
}

// GetUserByEmail returns the user registered with email or nil
func (s *Storage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.users.GetByEmail(ctx, email)
}

// CreateUser inserts a new user
func (s *Storage) CreateUser(ctx context.Context, user *models.User) error {
	return s.users.Create(ctx, user)
}

// SaveUser updates a user under its version check
func (s *Storage) SaveUser(ctx context.Context, user *models.User) error {
	return s.users.Save(ctx, user)
}

// GetSession returns the user's active diagnosis session or nil
func (s *Storage) GetSession(ctx context.Context, userID string) (*models.DiagnosisSession, error) {
	return s.sessions.Get(ctx, userID)
}

// SaveSession inserts or updates a session under its version check
func (s *Storage) SaveSession(ctx context.Context, sess *models.DiagnosisSession) error {
	return s.sessions.Save(ctx, sess)
}

// ReplaceSession discards prev and inserts next atomically
func (s *Storage) ReplaceSession(ctx context.Context, prev, next *models.DiagnosisSession) error {
	return s.sessions.Replace(ctx, prev, next)
}

// DeleteSession removes a session under its version check
func (s *Storage) DeleteSession(ctx context.Context, sess *models.DiagnosisSession) error {
	return s.sessions.Delete(ctx, sess)
}

// ArchiveSession commits a finalized diagnosis: the user row (with its new
// history record) is saved and the session row is removed in one transaction.
func (s *Storage) ArchiveSession(ctx context.Context, user *models.User, sess *models.DiagnosisSession) error {
	version := user.Version
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if err := saveUser(ctx, tx, user); err != nil {
			return err
		}
		return deleteSession(ctx, tx, sess)
	})
	if err != nil {
		// saveUser advanced the in-memory version before the rollback
		user.Version = version
		return err
	}
	return nil
}

// GetMemory returns the user's conversation memory (empty if none yet)
func (s *Storage) GetMemory(ctx context.Context, userID string) (*models.ConversationMemory, error) {
	return s.memory.Get(ctx, userID)
}

// SaveMemory writes conversation memory under its version check
func (s *Storage) SaveMemory(ctx context.Context, mem *models.ConversationMemory) error {
	return s.memory.Save(ctx, mem)
}

// GetEmbedding returns a cached corpus vector or nil
func (s *Storage) GetEmbedding(ctx context.Context, model, hash string) ([]float64, error) {
	return s.embeddings.Get(ctx, model, hash)
}

// PutEmbedding caches a corpus vector
func (s *Storage) PutEmbedding(ctx context.Context, model, hash string, vector []float64) error {
	return s.embeddings.Put(ctx, model, hash, vector)
}

// CountEmbeddings reports how many corpus vectors are cached for model
func (s *Storage) CountEmbeddings(ctx context.Context, model string) (int, error) {
	return s.embeddings.Count(ctx, model)
}
