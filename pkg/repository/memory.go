package repository

import (
	"context"
	"sort"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// memoryRepo is an in-process Repository used for the ephemeral backend and
// for tests. Not durable.
type memoryRepo struct {
	dimension int
	memories  []*model.Memory
	byID      map[model.MemoryID]*model.Memory
}

// NewMemory creates an in-process repository with the given vector dimension
func NewMemory(dimension int) Repository {
	return &memoryRepo{
		dimension: dimension,
		byID:      make(map[model.MemoryID]*model.Memory),
	}
}

func (r *memoryRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	if err := validateMemory(memory, r.dimension); err != nil {
		return err
	}
	if _, ok := r.byID[memory.ID]; ok {
		return goerr.New("memory already exists", goerr.T(model.ErrTagStorage),
			goerr.V("memory_id", memory.ID))
	}

	r.memories = append(r.memories, memory)
	r.byID[memory.ID] = memory
	return nil
}

func (r *memoryRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	memory, ok := r.byID[id]
	if !ok {
		return nil, goerr.Wrap(model.ErrMemoryNotFound, "get memory", goerr.V("memory_id", id))
	}
	return memory, nil
}

func (r *memoryRepo) ListMemories(ctx context.Context, offset, limit int) ([]*model.Memory, error) {
	sorted := make([]*model.Memory, len(r.memories))
	copy(sorted, r.memories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	if offset >= len(sorted) {
		return nil, nil
	}
	end := offset + limit
	if limit <= 0 || end > len(sorted) {
		end = len(sorted)
	}
	return sorted[offset:end], nil
}

func (r *memoryRepo) Search(ctx context.Context, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateQueryVector(vector, r.dimension); err != nil {
		return nil, err
	}

	var results []*model.SearchResult
	for _, memory := range r.memories {
		for _, c := range memory.Chunks {
			results = append(results, &model.SearchResult{
				Chunk:     c,
				Metadata:  memory.Metadata,
				CreatedAt: memory.CreatedAt,
				Score:     cosineSimilarity(vector, c.Embedding),
			})
		}
	}

	// Stable sort keeps insertion order on equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *memoryRepo) Count(ctx context.Context) (int, error) {
	var count int
	for _, memory := range r.memories {
		count += len(memory.Chunks)
	}
	return count, nil
}

func (r *memoryRepo) Close() error {
	return nil
}
