// ABOUTME: Turn represents a single counseling message from the user or the assistant
// ABOUTME: ConversationMemory is the ordered, budgeted turn history kept per user
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Role identifies who authored a turn
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// IsValid checks if the role is USER or ASSISTANT
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn represents a single conversation message
type Turn struct {
	TurnID           string    `json:"turn_id" yaml:"turn_id"`
	Role             Role      `json:"role" yaml:"role"`
	Text             string    `json:"text" yaml:"text"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	IdempotencyToken string    `json:"idempotency_token,omitempty" yaml:"idempotency_token,omitempty"`
}

// NewTurn creates a new Turn with validation
func NewTurn(role Role, text, token string) (*Turn, error) {
	if !role.IsValid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInputValidation, role)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: turn text cannot be empty", ErrInputValidation)
	}
	return &Turn{
		TurnID:           generateTurnID(),
		Role:             role,
		Text:             text,
		Timestamp:        time.Now().UTC(),
		IdempotencyToken: token,
	}, nil
}

// Size is the number of characters the turn counts against the memory budget
func (t Turn) Size() int {
	return utf8.RuneCountInString(t.Text)
}

// generateTurnID generates a unique turn identifier
func generateTurnID() string {
	return fmt.Sprintf("turn_%s_%s", time.Now().Format("20060102_150405"), uuid.New().String()[:8])
}

// Receipt records the outcome of one counseling request so a retried
// request with the same idempotency token is answered without duplication.
type Receipt struct {
	Token         string    `json:"token"`
	MessageDigest string    `json:"message_digest"`
	UserTurnID    string    `json:"user_turn_id"`
	Response      string    `json:"response,omitempty"`
	Completed     bool      `json:"completed"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaxReceipts bounds how many idempotency receipts are remembered per user
const MaxReceipts = 64

// ConversationMemory is a user's ordered counseling history
type ConversationMemory struct {
	UserID    string    `json:"user_id"`
	Turns     []Turn    `json:"turns"`
	Receipts  []Receipt `json:"receipts"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ErrReceiptNotFound is returned by FindReceipt when no receipt has the token
var ErrReceiptNotFound = errors.New("receipt not found")

// TotalSize sums the character size of every turn
func (m *ConversationMemory) TotalSize() int {
	total := 0
	for _, t := range m.Turns {
		total += t.Size()
	}
	return total
}

// FindReceipt looks up a receipt by idempotency token
func (m *ConversationMemory) FindReceipt(token string) (*Receipt, error) {
	for i := range m.Receipts {
		if m.Receipts[i].Token == token {
			return &m.Receipts[i], nil
		}
	}
	return nil, ErrReceiptNotFound
}

// AddReceipt appends a receipt, dropping the oldest beyond MaxReceipts
func (m *ConversationMemory) AddReceipt(r Receipt) {
	m.Receipts = append(m.Receipts, r)
	if over := len(m.Receipts) - MaxReceipts; over > 0 {
		m.Receipts = append([]Receipt(nil), m.Receipts[over:]...)
	}
}

// HasTurn reports whether a turn with the id is still in memory
func (m *ConversationMemory) HasTurn(turnID string) bool {
	return m.FindTurn(turnID) != nil
}

// FindTurn returns the turn with turnID, or nil if it is not remembered
func (m *ConversationMemory) FindTurn(turnID string) *Turn {
	for i := range m.Turns {
		if m.Turns[i].TurnID == turnID {
			return &m.Turns[i]
		}
	}
	return nil
}
