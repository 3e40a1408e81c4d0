// Package models defines core data structures for documents, chunks, and query results.
package models

import "strconv"

// Document is a loaded source file. It is not modified after loading.
type Document struct {
	Content  string `json:"content"`
	Source   string `json:"source"`
	Filename string `json:"filename"`
}

// Chunk is a contiguous segment of a document ready for storage.
// ChunkID is the 0-based ordinal within its document; AssignedID is the store key.
type Chunk struct {
	Content    string `json:"content"`
	Source     string `json:"source"`
	Filename   string `json:"filename"`
	ChunkID    int    `json:"chunk_id"`
	AssignedID string `json:"assigned_id"`
}

// Metadata is the per-chunk key/value map persisted next to each vector.
type Metadata map[string]string

// Metadata keys written for every chunk.
const (
	MetaSource   = "source"
	MetaFilename = "filename"
	MetaChunkID  = "chunk_id"
)

// Metadata returns the stored metadata for the chunk. chunk_id is kept as a decimal string.
func (c Chunk) Metadata() Metadata {
	return Metadata{
		MetaSource:   c.Source,
		MetaFilename: c.Filename,
		MetaChunkID:  strconv.Itoa(c.ChunkID),
	}
}

// ChunkID parses the chunk_id entry, returning -1 when missing or malformed.
func (m Metadata) ChunkID() int {
	n, err := strconv.Atoi(m[MetaChunkID])
	if err != nil {
		return -1
	}
	return n
}
