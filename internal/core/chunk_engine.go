// ABOUTME: ChunkEngine splits corpus documents into overlapping chunks for embedding
// ABOUTME: Packs paragraph → sentence → fixed window, falling back a level only when a piece is too long
package core

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/harper/mindaid/internal/models"
)

// ChunkEngine handles hierarchical text chunking
type ChunkEngine struct {
	size    int
	overlap int
}

// NewChunkEngine creates a ChunkEngine producing chunks of at most size
// characters that repeat up to overlap characters of the previous chunk
func NewChunkEngine(size, overlap int) (*ChunkEngine, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive", models.ErrConfiguration)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d)", models.ErrConfiguration, size)
	}
	return &ChunkEngine{size: size, overlap: overlap}, nil
}

// ChunkDocument splits a document into chunks numbered in reading order
func (ce *ChunkEngine) ChunkDocument(doc models.CorpusDocument) ([]models.Chunk, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, fmt.Errorf("%w: cannot chunk empty document %s", models.ErrInputValidation, doc.Source)
	}

	var chunks []models.Chunk
	emit := func(kind models.ChunkType, texts []string) {
		for _, text := range texts {
			chunks = append(chunks, models.Chunk{
				ChunkID:   fmt.Sprintf("%s#%d", doc.Source, len(chunks)),
				ChunkType: kind,
				Content:   text,
				Source:    doc.Source,
				Index:     len(chunks),
			})
		}
	}

	var fitting []string
	flush := func() {
		if len(fitting) > 0 {
			emit(models.ChunkTypeParagraph, ce.pack(fitting, "\n\n"))
			fitting = nil
		}
	}

	for _, para := range splitParagraphs(doc.Text) {
		if runeLen(para) <= ce.size {
			fitting = append(fitting, para)
			continue
		}
		flush()

		var sentences []string
		for _, sent := range splitSentences(para) {
			if runeLen(sent) <= ce.size {
				sentences = append(sentences, sent)
				continue
			}
			if len(sentences) > 0 {
				emit(models.ChunkTypeSentence, ce.pack(sentences, " "))
				sentences = nil
			}
			emit(models.ChunkTypeWindow, ce.windows(sent))
		}
		if len(sentences) > 0 {
			emit(models.ChunkTypeSentence, ce.pack(sentences, " "))
		}
	}
	flush()

	return chunks, nil
}

// pack joins pieces (each no longer than size) into chunks up to size,
// starting each new chunk with trailing pieces of the last one that fit in
// the overlap
func (ce *ChunkEngine) pack(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var (
		out    []string
		cur    []string
		curLen int
	)
	for _, p := range pieces {
		pl := runeLen(p)
		if len(cur) > 0 && curLen+sepLen+pl > ce.size {
			out = append(out, strings.Join(cur, sep))
			for len(cur) > 0 && (curLen > ce.overlap || curLen+sepLen+pl > ce.size) {
				curLen -= runeLen(cur[0])
				if len(cur) > 1 {
					curLen -= sepLen
				}
				cur = cur[1:]
			}
		}
		if len(cur) > 0 {
			curLen += sepLen
		}
		cur = append(cur, p)
		curLen += pl
	}
	if len(cur) > 0 {
		out = append(out, strings.Join(cur, sep))
	}
	return out
}

// windows cuts text into size-character windows that overlap by overlap characters
func (ce *ChunkEngine) windows(text string) []string {
	runes := []rune(text)
	step := ce.size - ce.overlap
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + ce.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

// splitParagraphs splits text on blank lines, handling \r\n too
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var result []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para != "" {
			result = append(result, para)
		}
	}
	return result
}

// splitSentences splits after '.', '!' or '?' when followed by whitespace
func splitSentences(text string) []string {
	var (
		result []string
		start  int
	)
	runes := []rune(text)
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		if sent := strings.TrimSpace(string(runes[start : i+1])); sent != "" {
			result = append(result, sent)
		}
		start = i + 1
	}
	if sent := strings.TrimSpace(string(runes[start:])); sent != "" {
		result = append(result, sent)
	}
	return result
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
