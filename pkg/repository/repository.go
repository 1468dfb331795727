// Package repository adapts external storage engines to the memory store
// contract: durable insertion of chunked memories and nearest-neighbor search
// over their embedding vectors.
//
// All backends use cosine similarity and report scores as similarity, not
// distance. Results are ordered by descending score; ties keep insertion
// order so that identical queries always produce identical rankings.
package repository

import (
	"context"
	"math"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// Repository is the persistence boundary of the memory system. Memories are
// append-only: there is no update or delete.
type Repository interface {
	// PutMemory persists a memory with all of its chunks and vectors.
	// The write is atomic: either the whole memory is stored or nothing is.
	PutMemory(ctx context.Context, memory *model.Memory) error

	// GetMemory retrieves a memory with its chunks by ID
	GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error)

	// ListMemories retrieves memories ordered by creation time, newest first
	ListMemories(ctx context.Context, offset, limit int) ([]*model.Memory, error)

	// Search performs nearest-neighbor search over chunk vectors and returns
	// at most limit results ordered by descending similarity.
	Search(ctx context.Context, vector []float32, limit int) ([]*model.SearchResult, error)

	// Count returns the total number of stored chunks
	Count(ctx context.Context) (int, error)

	// Close releases backend resources
	Close() error
}

// validateMemory checks the store invariant: every chunk carries exactly one
// vector of the configured dimensionality.
func validateMemory(memory *model.Memory, dimension int) error {
	if len(memory.Chunks) == 0 {
		return goerr.New("memory has no chunks", goerr.T(model.ErrTagStorage),
			goerr.V("memory_id", memory.ID))
	}
	for _, c := range memory.Chunks {
		if len(c.Embedding) != dimension {
			return goerr.New("vector dimensionality mismatch",
				goerr.T(model.ErrTagStorage),
				goerr.V("memory_id", memory.ID),
				goerr.V("chunk_index", c.Index),
				goerr.V("want", dimension),
				goerr.V("got", len(c.Embedding)))
		}
	}
	return nil
}

func validateQueryVector(vector []float32, dimension int) error {
	if len(vector) != dimension {
		return goerr.New("query vector dimensionality mismatch",
			goerr.T(model.ErrTagStorage),
			goerr.V("want", dimension), goerr.V("got", len(vector)))
	}
	return nil
}

// cosineSimilarity returns the cosine of the angle between two vectors.
// Zero vectors yield 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
