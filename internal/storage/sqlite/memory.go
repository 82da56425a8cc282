// ABOUTME: Conversation memory storage operations for SQLite
// ABOUTME: Stores each user's turns and idempotency receipts as JSON under a version check
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/harper/mindaid/internal/models"
)

// MemoryStore handles conversation memory persistence
type MemoryStore struct {
	db *DB
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

// Get loads a user's memory. A user who never counseled gets an empty
// memory at version 0.
func (s *MemoryStore) Get(ctx context.Context, userID string) (*models.ConversationMemory, error) {
	mem := &models.ConversationMemory{
		UserID:   userID,
		Turns:    []models.Turn{},
		Receipts: []models.Receipt{},
	}

	var turnsJSON, receiptsJSON string
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT turns, receipts, version, updated_at
		FROM conversation_memory
		WHERE user_id = ?
	`, userID).Scan(&turnsJSON, &receiptsJSON, &mem.Version, &mem.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return mem, nil
	}
	if err != nil {
		return nil, storageErr("get memory", err)
	}

	if err := json.Unmarshal([]byte(turnsJSON), &mem.Turns); err != nil {
		return nil, storageErr("decode turns", err)
	}
	if err := json.Unmarshal([]byte(receiptsJSON), &mem.Receipts); err != nil {
		return nil, storageErr("decode receipts", err)
	}
	return mem, nil
}

// Save writes the memory, inserting at version 0 and otherwise requiring
// the stored version to match
func (s *MemoryStore) Save(ctx context.Context, mem *models.ConversationMemory) error {
	turns := mem.Turns
	if turns == nil {
		turns = []models.Turn{}
	}
	receipts := mem.Receipts
	if receipts == nil {
		receipts = []models.Receipt{}
	}
	turnsJSON, err := json.Marshal(turns)
	if err != nil {
		return storageErr("encode turns", err)
	}
	receiptsJSON, err := json.Marshal(receipts)
	if err != nil {
		return storageErr("encode receipts", err)
	}
	now := time.Now().UTC()

	if mem.Version == 0 {
		_, err := s.db.conn.ExecContext(ctx, `
			INSERT INTO conversation_memory (user_id, turns, receipts, version, updated_at)
			VALUES (?, ?, ?, 1, ?)
		`, mem.UserID, string(turnsJSON), string(receiptsJSON), now)
		if isUniqueViolation(err) {
			return versionConflict("memory for user", mem.UserID, 0)
		}
		if err != nil {
			return storageErr("insert memory", err)
		}
		mem.Version = 1
		mem.UpdatedAt = now
		return nil
	}

	res, err := s.db.conn.ExecContext(ctx, `
		UPDATE conversation_memory
		SET turns = ?, receipts = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?
	`, string(turnsJSON), string(receiptsJSON), now, mem.UserID, mem.Version)
	if err != nil {
		return storageErr("update memory", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr("update memory", err)
	}
	if n == 0 {
		return versionConflict("memory for user", mem.UserID, mem.Version)
	}
	mem.Version++
	mem.UpdatedAt = now
	return nil
}
