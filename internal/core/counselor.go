// ABOUTME: Counselor runs one retrieval-augmented counseling turn per request
// ABOUTME: Idempotency receipts make retried requests safe; no reply is recorded unless generation succeeds
package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harper/mindaid/internal/lock"
	"github.com/harper/mindaid/internal/logging"
	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
	"go.uber.org/zap"
)

// Generator is the generation model service
type Generator interface {
	Generate(ctx context.Context, prompt models.Prompt) (string, error)
}

// Retriever finds corpus passages relevant to a message
type Retriever interface {
	Query(ctx context.Context, text string, k int) ([]models.SearchResult, error)
}

// CounselorOptions tunes retrieval and generation
type CounselorOptions struct {
	TopK    int
	Timeout time.Duration
}

// CounselReply is the outcome of Respond
type CounselReply struct {
	Reply           string `json:"reply"`
	Replayed        bool   `json:"replayed"`
	UserTurnID      string `json:"user_turn_id"`
	AssistantTurnID string `json:"assistant_turn_id,omitempty"`
	Passages        int    `json:"passages"`
}

// Counselor orchestrates memory, retrieval, prompt assembly, and generation
type Counselor struct {
	store     *sqlite.Storage
	memory    *MemoryManager
	retriever Retriever
	hydrator  *ContextHydrator
	generator Generator
	locker    lock.Locker
	opts      CounselorOptions
	logger    *zap.Logger
	now       func() time.Time
}

// NewCounselor wires the orchestrator. The memory manager's locker is reused
// so memory and counseling serialize on the same per-user lock.
func NewCounselor(store *sqlite.Storage, memory *MemoryManager, retriever Retriever, hydrator *ContextHydrator, generator Generator, opts CounselorOptions, logger *zap.Logger) *Counselor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Counselor{
		store:     store,
		memory:    memory,
		retriever: retriever,
		hydrator:  hydrator,
		generator: generator,
		locker:    memory.locker,
		opts:      opts,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Respond answers message for the user. A non-empty token makes the call
// idempotent: a completed token returns the stored reply, and a token whose
// generation failed earlier reuses the recorded user turn.
func (c *Counselor) Respond(ctx context.Context, userID, message, token string) (*CounselReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, fmt.Errorf("%w: message cannot be empty", models.ErrInputValidation)
	}
	if err := c.memory.checkFits(message); err != nil {
		return nil, err
	}
	if err := c.hydrator.CheckFits(message); err != nil {
		return nil, err
	}

	release, err := c.locker.Lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := requireActiveUser(ctx, c.store, userID)
	if err != nil {
		return nil, err
	}
	mem, err := c.store.GetMemory(ctx, userID)
	if err != nil {
		return nil, err
	}

	digest := sqlite.ContentHash(message)
	var userTurnID string
	if token != "" {
		rec, err := mem.FindReceipt(token)
		switch {
		case errors.Is(err, models.ErrReceiptNotFound):
		case err != nil:
			return nil, err
		case rec.MessageDigest != digest:
			return nil, fmt.Errorf("%w: idempotency token %q was used with a different message", models.ErrInputValidation, token)
		case rec.Completed:
			c.logger.Debug("replaying counseling reply", logging.UserField(userID), zap.String("token", token))
			return &CounselReply{Reply: rec.Response, Replayed: true, UserTurnID: rec.UserTurnID}, nil
		default:
			userTurnID = rec.UserTurnID
		}
	}

	if userTurnID == "" || !mem.HasTurn(userTurnID) {
		turn, err := models.NewTurn(models.RoleUser, message, token)
		if err != nil {
			return nil, err
		}
		mem.Turns = append(mem.Turns, *turn)
		if userTurnID == "" && token != "" {
			mem.AddReceipt(models.Receipt{
				Token:         token,
				MessageDigest: digest,
				UserTurnID:    turn.TurnID,
				CreatedAt:     c.now(),
			})
		} else if token != "" {
			if rec, err := mem.FindReceipt(token); err == nil {
				rec.UserTurnID = turn.TurnID
			}
		}
		userTurnID = turn.TurnID
		if err := c.memory.commit(ctx, mem); err != nil {
			return nil, err
		}
	}

	history := make([]models.Turn, 0, len(mem.Turns))
	for _, t := range mem.Turns {
		if t.TurnID != userTurnID {
			history = append(history, t)
		}
	}

	passages, err := c.retriever.Query(ctx, message, c.opts.TopK)
	if err != nil {
		return nil, err
	}
	prompt, err := c.hydrator.Hydrate(passages, history, message)
	if err != nil {
		return nil, err
	}

	reply, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("counseling generation failed", logging.UserField(userID), zap.Error(err))
		return nil, err
	}

	stored := reply
	if userTurn := mem.FindTurn(userTurnID); userTurn != nil {
		var cut bool
		if stored, cut = c.memory.fitReply(*userTurn, reply); cut {
			c.logger.Warn("reply truncated to fit conversation memory",
				logging.UserField(userID),
				zap.Int("reply_chars", len([]rune(reply))),
				zap.Int("stored_chars", len([]rune(stored))))
		}
	}
	asst, err := models.NewTurn(models.RoleAssistant, stored, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrModelUnavailable, err)
	}
	mem.Turns = append(mem.Turns, *asst)
	if token != "" {
		if rec, err := mem.FindReceipt(token); err == nil {
			rec.Completed = true
			rec.Response = reply
		}
	}
	if err := c.memory.commit(ctx, mem); err != nil {
		return nil, err
	}

	now := c.now()
	user.LastCounseledAt = &now
	if err := c.store.SaveUser(ctx, user); err != nil {
		// The exchange is already committed; only the timestamp is lost.
		c.logger.Warn("failed to stamp last counseled time", logging.UserField(userID), zap.Error(err))
	}

	c.logger.Info("counseling turn completed",
		logging.UserField(userID),
		zap.Int("passages", len(prompt.Passages)),
		zap.Int("history_turns", len(prompt.History)),
		zap.Int("memory_turns", len(mem.Turns)))

	return &CounselReply{
		Reply:           reply,
		UserTurnID:      userTurnID,
		AssistantTurnID: asst.TurnID,
		Passages:        len(prompt.Passages),
	}, nil
}

func (c *Counselor) generate(ctx context.Context, prompt models.Prompt) (string, error) {
	genCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	reply, err := c.generator.Generate(genCtx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", models.ErrGenerationTimeout, err)
		}
		return "", fmt.Errorf("%w: generate: %w", models.ErrModelUnavailable, err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return "", fmt.Errorf("%w: empty reply", models.ErrModelUnavailable)
	}
	return reply, nil
}

// History returns the user's remembered turns, oldest first
func (c *Counselor) History(ctx context.Context, userID string) ([]models.Turn, error) {
	return c.memory.Read(ctx, userID)
}

// Reset clears the user's conversation memory
func (c *Counselor) Reset(ctx context.Context, userID string) error {
	return c.memory.Reset(ctx, userID)
}
