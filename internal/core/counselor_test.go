// ABOUTME: Tests for the Counselor RAG orchestration
// ABOUTME: Covers the first-turn scenario, idempotent retries, and generation failures
package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/harper/mindaid/internal/models"
	"github.com/harper/mindaid/internal/storage/sqlite"
)

type counselorFixture struct {
	store     *sqlite.Storage
	embedder  *hashEmbedder
	generator *fakeGenerator
	counselor *Counselor
}

func newCounselorFixture(t *testing.T, timeout time.Duration) *counselorFixture {
	t.Helper()
	return newSizedCounselorFixture(t, timeout, 8000, 6000)
}

func newSizedCounselorFixture(t *testing.T, timeout time.Duration, memoryBudget, maxTokens int) *counselorFixture {
	t.Helper()
	store := newTestStore(t)
	seedUser(t, store, "u1")

	emb := newHashEmbedder()
	idx, err := BuildRetrievalIndex(context.Background(), emb, nil, testChunks(
		"reflect the feeling behind what the client says",
		"ask open questions about sleep and worry",
		"grounding helps when trauma memories intrude",
		"motivational interviewing explores ambivalence about drinking",
	), time.Minute, nil)
	if err != nil {
		t.Fatalf("BuildRetrievalIndex() error = %v", err)
	}

	gen := &fakeGenerator{reply: "That sounds exhausting. What keeps you awake?"}
	mm := NewMemoryManager(store, newTestLocker(), memoryBudget, nil)
	c := NewCounselor(store, mm, idx, NewContextHydrator(CounselorSystemPrompt, maxTokens), gen,
		CounselorOptions{TopK: 3, Timeout: timeout}, nil)
	return &counselorFixture{store: store, embedder: emb, generator: gen, counselor: c}
}

func TestRespond_FirstTurn(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	got, err := f.counselor.Respond(ctx, "u1", "I can't sleep because I worry all night", "")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.Reply != f.generator.reply || got.Replayed {
		t.Errorf("reply = %+v", got)
	}
	if f.generator.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", f.generator.callCount())
	}

	prompt := f.generator.prompts[0]
	if len(prompt.Passages) != 3 {
		t.Errorf("prompt has %d passages, want 3", len(prompt.Passages))
	}
	if len(prompt.History) != 0 {
		t.Errorf("first turn prompt has %d history turns, want 0", len(prompt.History))
	}
	if prompt.System != CounselorSystemPrompt {
		t.Error("prompt should carry the counselor instructions")
	}

	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 2 || turns[0].Role != models.RoleUser || turns[1].Role != models.RoleAssistant {
		t.Fatalf("memory = %+v, want user then assistant", turns)
	}

	user, _ := f.store.GetUser(ctx, "u1")
	if user.LastCounseledAt == nil {
		t.Error("LastCounseledAt should be stamped")
	}
}

func TestRespond_SecondTurnSeesHistory(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	_, _ = f.counselor.Respond(ctx, "u1", "I feel on edge", "")
	if _, err := f.counselor.Respond(ctx, "u1", "Mostly at work", ""); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	prompt := f.generator.prompts[1]
	if len(prompt.History) != 2 || prompt.History[0].Text != "I feel on edge" {
		t.Errorf("second prompt history = %+v", prompt.History)
	}
	if prompt.UserMessage != "Mostly at work" {
		t.Errorf("UserMessage = %q", prompt.UserMessage)
	}
}

func TestRespond_IdempotentReplay(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	first, err := f.counselor.Respond(ctx, "u1", "hello", "tok-1")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	f.generator.mu.Lock()
	f.generator.reply = "a different reply"
	f.generator.mu.Unlock()

	again, err := f.counselor.Respond(ctx, "u1", "hello", "tok-1")
	if err != nil {
		t.Fatalf("replayed Respond() error = %v", err)
	}
	if !again.Replayed || again.Reply != first.Reply {
		t.Errorf("replay = %+v, want the stored reply", again)
	}
	if f.generator.callCount() != 1 {
		t.Errorf("generator called %d times, want 1", f.generator.callCount())
	}
	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 2 {
		t.Errorf("memory has %d turns, a replay must not add any", len(turns))
	}

	if _, err := f.counselor.Respond(ctx, "u1", "different text", "tok-1"); !errors.Is(err, models.ErrInputValidation) {
		t.Errorf("token reuse with new message error = %v, want ErrInputValidation", err)
	}
}

func TestRespond_RetryAfterFailureReusesUserTurn(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	f.generator.err = errors.New("upstream 500")
	_, err := f.counselor.Respond(ctx, "u1", "are you there", "tok-2")
	if !errors.Is(err, models.ErrModelUnavailable) || errors.Is(err, models.ErrGenerationTimeout) {
		t.Fatalf("Respond() error = %v, want ErrModelUnavailable only", err)
	}
	if !models.IsRetryable(err) {
		t.Error("model failures should be retryable")
	}

	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 1 || turns[0].Role != models.RoleUser {
		t.Fatalf("after failure memory = %+v, want only the user turn", turns)
	}

	f.generator.mu.Lock()
	f.generator.err = nil
	f.generator.mu.Unlock()
	got, err := f.counselor.Respond(ctx, "u1", "are you there", "tok-2")
	if err != nil {
		t.Fatalf("retried Respond() error = %v", err)
	}
	if got.UserTurnID != turns[0].TurnID {
		t.Errorf("retry created a new user turn %s, want %s", got.UserTurnID, turns[0].TurnID)
	}
	turns, _ = f.counselor.History(ctx, "u1")
	if len(turns) != 2 {
		t.Errorf("memory has %d turns after retry, want 2", len(turns))
	}
}

func TestRespond_GenerationTimeout(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, 20*time.Millisecond)
	f.generator.block = true

	_, err := f.counselor.Respond(ctx, "u1", "hello?", "")
	if !errors.Is(err, models.ErrGenerationTimeout) {
		t.Fatalf("Respond() error = %v, want ErrGenerationTimeout", err)
	}
	if !errors.Is(err, models.ErrModelUnavailable) {
		t.Error("a timeout is also a model unavailability")
	}

	turns, _ := f.counselor.History(ctx, "u1")
	for _, tr := range turns {
		if tr.Role == models.RoleAssistant {
			t.Error("no assistant turn may be stored after a timeout")
		}
	}
}

func TestRespond_Validation(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	if _, err := f.counselor.Respond(ctx, "u1", "   ", ""); !errors.Is(err, models.ErrInputValidation) {
		t.Errorf("empty message error = %v, want ErrInputValidation", err)
	}
	if _, err := f.counselor.Respond(ctx, "ghost", "hi", ""); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("unknown user error = %v, want ErrNotFound", err)
	}
	if f.generator.callCount() != 0 {
		t.Error("rejected requests must not reach the generator")
	}
}

func TestCounselor_Reset(t *testing.T) {
	ctx := context.Background()
	f := newCounselorFixture(t, time.Second)

	_, _ = f.counselor.Respond(ctx, "u1", "hello", "tok")
	if err := f.counselor.Reset(ctx, "u1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 0 {
		t.Errorf("memory after reset = %d turns", len(turns))
	}

	// Receipts are cleared too, so the token starts fresh
	got, err := f.counselor.Respond(ctx, "u1", "hello", "tok")
	if err != nil || got.Replayed {
		t.Errorf("Respond() after reset = %+v, %v", got, err)
	}
}

func TestRespond_MessageTooLongForPromptRecordsNothing(t *testing.T) {
	ctx := context.Background()
	// fits the 4000-character memory but not beside the instructions in a 4000-character prompt
	f := newSizedCounselorFixture(t, time.Second, 4000, 1000)
	message := strings.Repeat("a", 3900)

	for attempt := 1; attempt <= 2; attempt++ {
		_, err := f.counselor.Respond(ctx, "u1", message, "tok-long")
		if !errors.Is(err, models.ErrInputTooLong) {
			t.Fatalf("attempt %d error = %v, want ErrInputTooLong", attempt, err)
		}
		if models.IsRetryable(err) {
			t.Error("an over-long message is not retryable")
		}
	}

	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 0 {
		t.Errorf("memory has %d turns after a rejected message, want 0", len(turns))
	}
	mem, _ := f.store.GetMemory(ctx, "u1")
	if len(mem.Receipts) != 0 {
		t.Errorf("rejected message left %d receipts", len(mem.Receipts))
	}
	if f.generator.callCount() != 0 {
		t.Error("rejected requests must not reach the generator")
	}
}

func TestRespond_LongReplyKeepsExchange(t *testing.T) {
	ctx := context.Background()
	f := newSizedCounselorFixture(t, time.Second, 100, 6000)
	f.generator.reply = strings.Repeat("b", 250)

	if _, err := f.counselor.Respond(ctx, "u1", "first", ""); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	got, err := f.counselor.Respond(ctx, "u1", "tell me more", "tok-big")
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if got.Reply != f.generator.reply {
		t.Error("the caller should receive the full reply")
	}

	turns, _ := f.counselor.History(ctx, "u1")
	if len(turns) != 2 {
		t.Fatalf("memory = %d turns, want the latest exchange", len(turns))
	}
	if turns[0].Text != "tell me more" || turns[1].Role != models.RoleAssistant {
		t.Errorf("memory = %+v, want latest user turn then reply", turns)
	}
	if size := turns[0].Size() + turns[1].Size(); size > 100 {
		t.Errorf("memory holds %d characters, budget is 100", size)
	}

	again, err := f.counselor.Respond(ctx, "u1", "tell me more", "tok-big")
	if err != nil || !again.Replayed || again.Reply != f.generator.reply {
		t.Errorf("replay = %+v, %v; want the full stored reply", again, err)
	}
}
