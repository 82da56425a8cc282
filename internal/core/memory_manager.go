// ABOUTME: MemoryManager keeps each user's counseling turns within a character budget
// ABOUTME: Oldest turns are evicted first; Reset is the only way memory is cleared
package core

import (
	"context"
	"fmt"

	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"go.uber.org/zap"
)

// MemoryManager owns per-user ConversationMemory
type MemoryManager struct {
	store  *sqlite.Storage
	locker lock.Locker
	budget int
	logger *zap.Logger
}

// NewMemoryManager creates a manager that bounds memory to budget characters
func NewMemoryManager(store *sqlite.Storage, locker lock.Locker, budget int, logger *zap.Logger) *MemoryManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryManager{store: store, locker: locker, budget: budget, logger: logger}
}

// Budget is the maximum total characters kept per user
func (m *MemoryManager) Budget() int {
	return m.budget
}

// Append adds a turn and evicts the oldest turns until memory fits the budget
func (m *MemoryManager) Append(ctx context.Context, userID string, role models.Role, text string) (*models.Turn, error) {
	turn, err := models.NewTurn(role, text, "")
	if err != nil {
		return nil, err
	}
	if err := m.checkFits(turn.Text); err != nil {
		return nil, err
	}

	release, err := m.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	if _, err := requireActiveUser(ctx, m.store, userID); err != nil {
		return nil, err
	}
	mem, err := m.store.GetMemory(ctx, userID)
	if err != nil {
		return nil, err
	}
	mem.Turns = append(mem.Turns, *turn)
	if err := m.commit(ctx, mem); err != nil {
		return nil, err
	}
	return turn, nil
}

// Read returns the user's turns, oldest first
func (m *MemoryManager) Read(ctx context.Context, userID string) ([]models.Turn, error) {
	if _, err := requireUser(ctx, m.store, userID); err != nil {
		return nil, err
	}
	mem, err := m.store.GetMemory(ctx, userID)
	if err != nil {
		return nil, err
	}
	return mem.Turns, nil
}

// Reset clears every turn and receipt for the user
func (m *MemoryManager) Reset(ctx context.Context, userID string) error {
	release, err := m.locker.Lock(ctx, userID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := requireUser(ctx, m.store, userID); err != nil {
		return err
	}
	mem, err := m.store.GetMemory(ctx, userID)
	if err != nil {
		return err
	}
	if mem.Version == 0 {
		return nil
	}
	cleared := len(mem.Turns)
	mem.Turns = []models.Turn{}
	mem.Receipts = []models.Receipt{}
	if err := m.store.SaveMemory(ctx, mem); err != nil {
		return err
	}
	m.logger.Info("conversation memory reset", logging.UserField(userID), zap.Int("turns", cleared))
	return nil
}

// checkFits rejects a single message that could never fit the budget
func (m *MemoryManager) checkFits(text string) error {
	size := models.Turn{Text: text}.Size()
	if size > m.budget {
		return fmt.Errorf("%w: message is %d characters, memory holds at most %d", models.ErrInputValidation, size, m.budget)
	}
	return nil
}

// fitReply cuts an assistant reply so it fits in memory beside the user
// turn it answers. The bool reports whether anything was cut.
func (m *MemoryManager) fitReply(userTurn models.Turn, reply string) (string, bool) {
	room := m.budget - userTurn.Size()
	if room <= 0 {
		room = m.budget
	}
	r := []rune(reply)
	if len(r) <= room {
		return reply, false
	}
	return string(r[:room]), true
}

// commit enforces the budget on mem and saves it. The caller holds the user's lock.
func (m *MemoryManager) commit(ctx context.Context, mem *models.ConversationMemory) error {
	var evicted int
	mem.Turns, evicted = EnforceBudget(mem.Turns, m.budget)
	if evicted > 0 {
		m.logger.Debug("evicted turns to fit memory budget",
			logging.UserField(mem.UserID),
			zap.Int("evicted", evicted),
			zap.Int("kept", len(mem.Turns)))
	}
	return m.store.SaveMemory(ctx, mem)
}

// EnforceBudget drops turns from the front until the total size fits budget.
// It returns the kept turns and how many were dropped.
func EnforceBudget(turns []models.Turn, budget int) ([]models.Turn, int) {
	total := 0
	for _, t := range turns {
		total += t.Size()
	}
	drop := 0
	for drop < len(turns) && total > budget {
		total -= turns[drop].Size()
		drop++
	}
	if drop == 0 {
		return turns, 0
	}
	return append([]models.Turn(nil), turns[drop:]...), drop
}
