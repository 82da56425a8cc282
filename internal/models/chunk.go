// ABOUTME: Chunk represents a slice of a corpus document prepared for embedding
// ABOUTME: ChunkType records how the chunk boundary was chosen
package models

// ChunkType describes how a chunk was cut from its document
type ChunkType string

const (
	// ChunkTypeParagraph packs whole paragraphs
	ChunkTypeParagraph ChunkType = "PARAGRAPH"
	// ChunkTypeSentence packs sentences of a paragraph too long to keep whole
	ChunkTypeSentence ChunkType = "SENTENCE"
	// ChunkTypeWindow is a fixed character window over a sentence longer than the chunk size
	ChunkTypeWindow ChunkType = "WINDOW"
)

// IsValid checks if the chunk type is known
func (c ChunkType) IsValid() bool {
	switch c {
	case ChunkTypeParagraph, ChunkTypeSentence, ChunkTypeWindow:
		return true
	default:
		return false
	}
}

// Chunk is one piece of a corpus document
type Chunk struct {
	ChunkID   string    `json:"chunk_id"`
	ChunkType ChunkType `json:"chunk_type"`
	Content   string    `json:"content"`
	Source    string    `json:"source"`
	Index     int       `json:"index"`
}
