// Package chunker turns loaded documents into the flat, ordered chunk list that
// is written to a collection.
package chunker

import (
	"github.com/google/uuid"
	"github.com/hyperjump/shiori/internal/fileid"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/splitter"
)

// IDStrategy selects how AssignedID is produced.
type IDStrategy string

const (
	// IDRandom assigns a fresh version 4 UUID to every chunk. Ingesting the same
	// file twice stores its chunks twice.
	IDRandom IDStrategy = "random"
	// IDDeterministic derives the ID from (source, chunk ordinal), so re-ingesting
	// a file overwrites its previous chunks.
	IDDeterministic IDStrategy = "deterministic"
)

// Assembler splits documents and numbers the resulting chunks.
type Assembler struct {
	splitter *splitter.Splitter
	ids      IDStrategy
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithIDStrategy sets the chunk ID strategy. Unknown values fall back to IDRandom.
func WithIDStrategy(s IDStrategy) AssemblerOption {
	return func(a *Assembler) {
		if s == IDDeterministic {
			a.ids = IDDeterministic
			return
		}
		a.ids = IDRandom
	}
}

// NewAssembler returns an assembler that splits with s.
func NewAssembler(s *splitter.Splitter, opts ...AssemblerOption) *Assembler {
	a := &Assembler{splitter: s, ids: IDRandom}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// IDStrategy returns the configured strategy.
func (a *Assembler) IDStrategy() IDStrategy { return a.ids }

// Assemble returns the chunks of all docs in input order. Within a document,
// ChunkID runs 0..n-1 in text order. A document with no content yields no chunks.
func (a *Assembler) Assemble(docs []models.Document) []models.Chunk {
	var chunks []models.Chunk
	for _, doc := range docs {
		pieces := a.splitter.Split(Normalize(doc.Content))
		for i, piece := range pieces {
			chunks = append(chunks, models.Chunk{
				Content:    piece,
				Source:     doc.Source,
				Filename:   doc.Filename,
				ChunkID:    i,
				AssignedID: a.assignID(doc.Source, i),
			})
		}
	}
	return chunks
}

func (a *Assembler) assignID(source string, n int) string {
	if a.ids == IDDeterministic {
		return fileid.ChunkID(source, n)
	}
	return uuid.New().String()
}
