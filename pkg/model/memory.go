package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type MemoryID string

// NewMemoryID generates a new unique MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

type ChunkID string

// NewChunkID generates a new unique ChunkID
func NewChunkID() ChunkID {
	return ChunkID(uuid.New().String())
}

// Memory is a unit of stored knowledge. Memories are immutable once created;
// there is no update or delete operation.
type Memory struct {
	ID        MemoryID
	Text      string
	Metadata  Metadata
	CreatedAt time.Time
	Chunks    []*Chunk
}

// Summary returns the leading words of the memory text for list display.
func (m *Memory) Summary(maxRunes int) string {
	text := strings.Join(strings.Fields(m.Text), " ")
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}

// Chunk is a bounded-size segment of a Memory's text with its embedding
// vector. A chunk is never persisted without a vector.
type Chunk struct {
	ID        ChunkID
	MemoryID  MemoryID
	Index     int
	Text      string
	Embedding []float32
}

// SearchResult is one ranked hit of a vector search. Results are ephemeral
// and ordered by descending Score (cosine similarity).
type SearchResult struct {
	Chunk     *Chunk
	Metadata  Metadata
	CreatedAt time.Time
	Score     float64
}
