// ABOUTME: Retrieval corpus entries and similarity search results
// ABOUTME: Entries are immutable once the retrieval index is loaded
package models

import "fmt"

// CorpusDocument is a raw counseling-context document before chunking
type CorpusDocument struct {
	Source string `json:"source"`
	Text   string `json:"text"`
}

// CorpusEntry is an embedded corpus chunk
type CorpusEntry struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Text   string    `json:"text"`
	Vector []float64 `json:"-"`
}

// SearchResult is a corpus entry with its similarity to a query
type SearchResult struct {
	Entry      CorpusEntry `json:"entry"`
	Similarity float64     `json:"similarity"`
}

// Prompt is a bounded generation request
type Prompt struct {
	System      string   `json:"system"`
	Passages    []string `json:"passages"`
	History     []Turn   `json:"history"`
	UserMessage string   `json:"user_message"`
}

// ValidateDimension checks the vector is non-empty and has the expected length
func (e CorpusEntry) ValidateDimension(expected int) error {
	if len(e.Vector) == 0 {
		return fmt.Errorf("%w: embedding for %s cannot be empty", ErrConfiguration, e.ID)
	}
	if len(e.Vector) != expected {
		return fmt.Errorf("%w: embedding for %s has dimension %d, expected %d", ErrConfiguration, e.ID, len(e.Vector), expected)
	}
	return nil
}
