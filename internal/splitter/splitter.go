// Package splitter segments text into bounded, overlapping chunks by trying
// separators from coarsest (paragraph) to finest (character).
package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Defaults match the ingest CLI defaults.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// DefaultSeparators are tried in order: paragraph, line, sentence, word, character.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// ConfigError reports an invalid chunk size / overlap combination.
type ConfigError struct {
	ChunkSize    int
	ChunkOverlap int
	Reason       string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid splitter config (chunk_size=%d, chunk_overlap=%d): %s", e.ChunkSize, e.ChunkOverlap, e.Reason)
}

// Splitter is immutable after New and safe for concurrent use.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSeparators replaces the separator priority list. The empty separator is
// appended when missing so that splitting can always reach single characters.
func WithSeparators(separators ...string) Option {
	return func(s *Splitter) {
		s.separators = append([]string(nil), separators...)
	}
}

// New returns a splitter producing chunks of at most chunkSize characters with
// up to chunkOverlap characters carried between neighbours.
func New(chunkSize, chunkOverlap int, opts ...Option) (*Splitter, error) {
	switch {
	case chunkSize <= 0:
		return nil, &ConfigError{chunkSize, chunkOverlap, "chunk_size must be positive"}
	case chunkOverlap < 0:
		return nil, &ConfigError{chunkSize, chunkOverlap, "chunk_overlap must not be negative"}
	case chunkOverlap >= chunkSize:
		return nil, &ConfigError{chunkSize, chunkOverlap, "chunk_overlap must be smaller than chunk_size"}
	}
	s := &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   DefaultSeparators,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.separators) == 0 || s.separators[len(s.separators)-1] != "" {
		s.separators = append(s.separators, "")
	}
	return s, nil
}

// ChunkSize returns the configured maximum chunk length.
func (s *Splitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured overlap.
func (s *Splitter) ChunkOverlap() int { return s.chunkOverlap }

// Split returns the ordered chunks of text. Chunks are whitespace-trimmed and
// never empty; empty or whitespace-only text yields no chunks.
func (s *Splitter) Split(text string) []string {
	return s.split(text, s.separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	// The list always ends with "", so the loop always selects something.
	var separator string
	var finer []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			separator = candidate
			finer = separators[i+1:]
			break
		}
	}

	var chunks, small []string
	for _, piece := range splitKeep(text, separator) {
		if utf8.RuneCountInString(piece) < s.chunkSize {
			small = append(small, piece)
			continue
		}
		if len(small) > 0 {
			chunks = append(chunks, s.merge(small)...)
			small = nil
		}
		if len(finer) == 0 {
			if trimmed := strings.TrimSpace(piece); trimmed != "" {
				chunks = append(chunks, trimmed)
			}
			continue
		}
		chunks = append(chunks, s.split(piece, finer)...)
	}
	if len(small) > 0 {
		chunks = append(chunks, s.merge(small)...)
	}
	return chunks
}

// merge packs pieces greedily into chunks. After each emitted chunk, pieces are
// dropped from the front until the remaining tail fits within the overlap and
// leaves room for the next piece; that tail starts the following chunk.
func (s *Splitter) merge(pieces []string) []string {
	var out []string
	var current []string
	var lengths []int
	total := 0
	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > s.chunkSize && len(current) > 0 {
			if chunk := join(current); chunk != "" {
				out = append(out, chunk)
			}
			for total > s.chunkOverlap || (total+n > s.chunkSize && total > 0) {
				total -= lengths[0]
				current = current[1:]
				lengths = lengths[1:]
			}
		}
		current = append(current, piece)
		lengths = append(lengths, n)
		total += n
	}
	if chunk := join(current); chunk != "" {
		out = append(out, chunk)
	}
	return out
}

func join(pieces []string) string {
	return strings.TrimSpace(strings.Join(pieces, ""))
}

// splitKeep splits text on separator, keeping the separator at the end of the
// preceding piece. The empty separator splits into single characters.
func splitKeep(text, separator string) []string {
	if separator == "" {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for len(text) > 0 {
			_, size := utf8.DecodeRuneInString(text)
			pieces = append(pieces, text[:size])
			text = text[size:]
		}
		return pieces
	}
	raw := strings.SplitAfter(text, separator)
	pieces := raw[:0]
	for _, p := range raw {
		if p != "" {
			pieces = append(pieces, p)
		}
	}
	return pieces
}
