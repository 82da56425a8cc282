// ABOUTME: Loads the counseling-context corpus from a directory or the embedded default
// ABOUTME: Documents are .md and .txt files read in name order
package core

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/harper/mindaid/internal/models"
)

//go:embed defaults/corpus/*.md
var defaultCorpus embed.FS

// LoadCorpus reads documents from dir, or the built-in corpus when dir is empty
func LoadCorpus(dir string) ([]models.CorpusDocument, error) {
	if dir == "" {
		sub, err := fs.Sub(defaultCorpus, "defaults/corpus")
		if err != nil {
			return nil, fmt.Errorf("%w: embedded corpus: %w", models.ErrConfiguration, err)
		}
		return loadCorpusFS(sub)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: corpus directory: %w", models.ErrConfiguration, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: corpus path %s is not a directory", models.ErrConfiguration, dir)
	}
	return loadCorpusFS(os.DirFS(dir))
}

func loadCorpusFS(fsys fs.FS) ([]models.CorpusDocument, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("%w: read corpus: %w", models.ErrConfiguration, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(path.Ext(e.Name())) {
		case ".md", ".txt":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var docs []models.CorpusDocument
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %w", models.ErrConfiguration, name, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}
		docs = append(docs, models.CorpusDocument{Source: name, Text: string(data)})
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: corpus has no .md or .txt documents", models.ErrConfiguration)
	}
	return docs, nil
}

// ChunkCorpus chunks every document, keeping document then chunk order
func ChunkCorpus(engine *ChunkEngine, docs []models.CorpusDocument) ([]models.Chunk, error) {
	var all []models.Chunk
	for _, doc := range docs {
		chunks, err := engine.ChunkDocument(doc)
		if err != nil {
			return nil, err
		}
		all = append(all, chunks...)
	}
	return all, nil
}
