package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

func newMemory(text string, createdAt time.Time, vectors ...[]float32) *model.Memory {
	m := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      text,
		Metadata:  model.Metadata{"tags": "test"},
		CreatedAt: createdAt,
	}
	for i, v := range vectors {
		m.Chunks = append(m.Chunks, &model.Chunk{
			ID:        model.NewChunkID(),
			MemoryID:  m.ID,
			Index:     i,
			Text:      text,
			Embedding: v,
		})
	}
	return m
}

func TestMemoryRepoPutAndGet(t *testing.T) {
	repo := repository.NewMemory(3)
	ctx := context.Background()

	m := newMemory("hello", time.Now(), []float32{1, 0, 0})
	gt.NoError(t, repo.PutMemory(ctx, m))

	got := gt.R1(repo.GetMemory(ctx, m.ID)).NoError(t)
	gt.Equal(t, got.Text, "hello")
	gt.A(t, got.Chunks).Length(1)
}

func TestMemoryRepoGetNotFound(t *testing.T) {
	repo := repository.NewMemory(3)

	_, err := repo.GetMemory(context.Background(), model.MemoryID("missing"))
	gt.Error(t, err)
	gt.True(t, errors.Is(err, model.ErrMemoryNotFound))
}

func TestMemoryRepoRejectsDimensionMismatch(t *testing.T) {
	repo := repository.NewMemory(3)
	ctx := context.Background()

	m := newMemory("bad", time.Now(), []float32{1, 0})
	err := repo.PutMemory(ctx, m)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagStorage))

	_, err = repo.Search(ctx, []float32{1, 0}, 5)
	gt.Error(t, err)
	gt.True(t, goerr.HasTag(err, model.ErrTagStorage))
}

func TestMemoryRepoRejectsDuplicateID(t *testing.T) {
	repo := repository.NewMemory(3)
	ctx := context.Background()

	m := newMemory("dup", time.Now(), []float32{1, 0, 0})
	gt.NoError(t, repo.PutMemory(ctx, m))
	gt.Error(t, repo.PutMemory(ctx, m))
}

func TestMemoryRepoSearchRanking(t *testing.T) {
	repo := repository.NewMemory(3)
	ctx := context.Background()

	now := time.Now()
	exact := newMemory("exact", now, []float32{1, 0, 0})
	near := newMemory("near", now, []float32{0.9, 0.1, 0})
	far := newMemory("far", now, []float32{0, 0, 1})
	for _, m := range []*model.Memory{far, near, exact} {
		gt.NoError(t, repo.PutMemory(ctx, m))
	}

	results := gt.R1(repo.Search(ctx, []float32{1, 0, 0}, 10)).NoError(t)
	gt.A(t, results).Length(3)
	gt.Equal(t, results[0].Chunk.MemoryID, exact.ID)
	gt.Equal(t, results[1].Chunk.MemoryID, near.ID)
	gt.Equal(t, results[2].Chunk.MemoryID, far.ID)

	for i := 1; i < len(results); i++ {
		gt.True(t, results[i-1].Score >= results[i].Score)
	}
}

func TestMemoryRepoSearchLimit(t *testing.T) {
	repo := repository.NewMemory(2)
	ctx := context.Background()

	for range 5 {
		gt.NoError(t, repo.PutMemory(ctx, newMemory("m", time.Now(), []float32{1, 0})))
	}

	results := gt.R1(repo.Search(ctx, []float32{1, 0}, 3)).NoError(t)
	gt.A(t, results).Length(3)
}

func TestMemoryRepoSearchTiesKeepInsertionOrder(t *testing.T) {
	repo := repository.NewMemory(2)
	ctx := context.Background()

	first := newMemory("first", time.Now(), []float32{1, 0})
	second := newMemory("second", time.Now(), []float32{1, 0})
	gt.NoError(t, repo.PutMemory(ctx, first))
	gt.NoError(t, repo.PutMemory(ctx, second))

	results := gt.R1(repo.Search(ctx, []float32{1, 0}, 10)).NoError(t)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Chunk.MemoryID, first.ID)
	gt.Equal(t, results[1].Chunk.MemoryID, second.ID)
}

func TestMemoryRepoListOrderAndPaging(t *testing.T) {
	repo := repository.NewMemory(2)
	ctx := context.Background()

	base := time.Now()
	oldest := newMemory("oldest", base.Add(-2*time.Hour), []float32{1, 0})
	middle := newMemory("middle", base.Add(-1*time.Hour), []float32{1, 0})
	newest := newMemory("newest", base, []float32{1, 0})
	for _, m := range []*model.Memory{oldest, newest, middle} {
		gt.NoError(t, repo.PutMemory(ctx, m))
	}

	all := gt.R1(repo.ListMemories(ctx, 0, 10)).NoError(t)
	gt.A(t, all).Length(3)
	gt.Equal(t, all[0].ID, newest.ID)
	gt.Equal(t, all[2].ID, oldest.ID)

	page := gt.R1(repo.ListMemories(ctx, 1, 1)).NoError(t)
	gt.A(t, page).Length(1)
	gt.Equal(t, page[0].ID, middle.ID)

	empty := gt.R1(repo.ListMemories(ctx, 10, 5)).NoError(t)
	gt.A(t, empty).Length(0)
}

func TestMemoryRepoCount(t *testing.T) {
	repo := repository.NewMemory(2)
	ctx := context.Background()

	gt.NoError(t, repo.PutMemory(ctx, newMemory("a", time.Now(), []float32{1, 0}, []float32{0, 1})))
	gt.NoError(t, repo.PutMemory(ctx, newMemory("b", time.Now(), []float32{1, 0})))

	count := gt.R1(repo.Count(ctx)).NoError(t)
	gt.Equal(t, count, 3)
}
