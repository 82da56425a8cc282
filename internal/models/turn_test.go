// ABOUTME: Tests for Turn construction and ConversationMemory receipts
// ABOUTME: Verifies validation, size accounting, and receipt bounding
package models

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewTurn(t *testing.T) {
	tests := []struct {
		name    string
		role    Role
		text    string
		wantErr bool
	}{
		{"user turn", RoleUser, "I have trouble sleeping", false},
		{"assistant turn", RoleAssistant, "That sounds hard.", false},
		{"empty text", RoleUser, "", true},
		{"whitespace text", RoleUser, "   \n", true},
		{"unknown role", Role("SYSTEM"), "hello", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			turn, err := NewTurn(tt.role, tt.text, "tok")
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if !errors.Is(err, ErrInputValidation) {
					t.Errorf("error = %v, want ErrInputValidation", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewTurn() error = %v", err)
			}
			if !strings.HasPrefix(turn.TurnID, "turn_") {
				t.Errorf("TurnID = %q, want turn_ prefix", turn.TurnID)
			}
			if turn.IdempotencyToken != "tok" {
				t.Errorf("IdempotencyToken = %q, want tok", turn.IdempotencyToken)
			}
			if turn.Timestamp.IsZero() {
				t.Error("Timestamp should be set")
			}
		})
	}
}

func TestTurn_SizeCountsRunes(t *testing.T) {
	turn := Turn{Text: "héllo"}
	if turn.Size() != 5 {
		t.Errorf("Size() = %d, want 5", turn.Size())
	}
}

func TestConversationMemory_TotalSize(t *testing.T) {
	mem := ConversationMemory{Turns: []Turn{{Text: "abc"}, {Text: "de"}}}
	if got := mem.TotalSize(); got != 5 {
		t.Errorf("TotalSize() = %d, want 5", got)
	}
}

func TestConversationMemory_Receipts(t *testing.T) {
	mem := ConversationMemory{}

	if _, err := mem.FindReceipt("missing"); !errors.Is(err, ErrReceiptNotFound) {
		t.Fatalf("FindReceipt() error = %v, want ErrReceiptNotFound", err)
	}

	for i := 0; i < MaxReceipts+5; i++ {
		mem.AddReceipt(Receipt{Token: fmt.Sprintf("t%d", i)})
	}

	if len(mem.Receipts) != MaxReceipts {
		t.Fatalf("len(Receipts) = %d, want %d", len(mem.Receipts), MaxReceipts)
	}
	if _, err := mem.FindReceipt("t0"); err == nil {
		t.Error("oldest receipt should have been dropped")
	}
	r, err := mem.FindReceipt(fmt.Sprintf("t%d", MaxReceipts+4))
	if err != nil {
		t.Fatalf("newest receipt missing: %v", err)
	}
	r.Completed = true
	again, _ := mem.FindReceipt(r.Token)
	if !again.Completed {
		t.Error("FindReceipt should return a pointer into the receipts slice")
	}
}

func TestRole_IsValid(t *testing.T) {
	tests := []struct {
		role Role
		want bool
	}{
		{RoleUser, true},
		{RoleAssistant, true},
		{Role("user"), false},
		{Role(""), false},
	}
	for _, tt := range tests {
		if got := tt.role.IsValid(); got != tt.want {
			t.Errorf("Role(%q).IsValid() = %v, want %v", tt.role, got, tt.want)
		}
	}
}
