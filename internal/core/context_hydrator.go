// ABOUTME: ContextHydrator assembles the bounded generation prompt for a counseling turn
// ABOUTME: Combines instructions, retrieved passages, recent memory, and the new message within a token budget
package core

import (
	"fmt"

	"github.com/harper/mindaid/internal/models"
)

// CounselorSystemPrompt instructs the generation model. Retrieved passages follow it.
const CounselorSystemPrompt = "Assume you are a mental health counselor. Learn from the counselling technique " +
	"and sample conversation given to you and ask the patient the right questions about their situation. " +
	"If you don't know the answer, say that you don't know. " +
	"Use two sentences maximum and keep the answer concise. " +
	"When you feel that the patient is satisfied, end the conversation.\n\n" +
	"Counselling technique and sample conversation:"

// charsPerToken approximates tokens (4 chars ≈ 1 token)
const charsPerToken = 4

// passageSeparator is the cost charged per passage for the blank line joining it
const passageSeparator = 2

// ContextHydrator assembles prompts that fit the generation model's input limit
type ContextHydrator struct {
	system    string
	maxTokens int
}

// NewContextHydrator creates a ContextHydrator
func NewContextHydrator(system string, maxTokens int) *ContextHydrator {
	return &ContextHydrator{system: system, maxTokens: maxTokens}
}

// MaxChars is the prompt budget in characters
func (ch *ContextHydrator) MaxChars() int {
	return ch.maxTokens * charsPerToken
}

// CheckFits rejects a message that cannot share the prompt with the system
// instructions even with no passages or history
func (ch *ContextHydrator) CheckFits(message string) error {
	maxChars := ch.MaxChars()
	essential := runeLen(ch.system) + runeLen(message)
	if essential > maxChars {
		return fmt.Errorf("%w: message needs %d characters, prompt allows %d",
			models.ErrInputTooLong, essential, maxChars)
	}
	return nil
}

// SystemChars is the length of the system instructions in characters
func (ch *ContextHydrator) SystemChars() int {
	return runeLen(ch.system)
}

// Hydrate builds the prompt. Passages must be ranked best first and history
// oldest first. When over budget, history is dropped oldest first, and only
// then the lowest ranked passages.
func (ch *ContextHydrator) Hydrate(passages []models.SearchResult, history []models.Turn, message string) (models.Prompt, error) {
	if err := ch.CheckFits(message); err != nil {
		return models.Prompt{}, err
	}
	maxChars := ch.MaxChars()

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Entry.Text
	}
	prompt := models.Prompt{
		System:      ch.system,
		Passages:    texts,
		History:     append([]models.Turn(nil), history...),
		UserMessage: message,
	}

	size := PromptSize(prompt)
	for size > maxChars && len(prompt.History) > 0 {
		size -= prompt.History[0].Size()
		prompt.History = prompt.History[1:]
	}
	for size > maxChars && len(prompt.Passages) > 0 {
		last := len(prompt.Passages) - 1
		size -= runeLen(prompt.Passages[last]) + passageSeparator
		prompt.Passages = prompt.Passages[:last]
	}
	return prompt, nil
}

// PromptSize is the character cost of a prompt against the budget
func PromptSize(p models.Prompt) int {
	size := runeLen(p.System) + runeLen(p.UserMessage)
	for _, text := range p.Passages {
		size += runeLen(text) + passageSeparator
	}
	for _, t := range p.History {
		size += t.Size()
	}
	return size
}
