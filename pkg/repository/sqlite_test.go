package repository_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/repository"
)

func setupSQLite(t *testing.T, dimension int) (repository.Repository, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kioku.db")
	repo, err := repository.NewSQLite(dbPath, dimension)
	gt.NoError(t, err)
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo, dbPath
}

func TestSQLitePutAndGet(t *testing.T) {
	repo, _ := setupSQLite(t, 3)
	ctx := context.Background()

	m := newMemory("remember this", time.Now(), []float32{0.1, 0.2, 0.3}, []float32{0.4, 0.5, 0.6})
	gt.NoError(t, repo.PutMemory(ctx, m))

	got := gt.R1(repo.GetMemory(ctx, m.ID)).NoError(t)
	gt.Equal(t, got.ID, m.ID)
	gt.Equal(t, got.Text, "remember this")
	gt.Equal(t, got.Metadata["tags"], "test")
	gt.A(t, got.Chunks).Length(2)
	gt.Equal(t, got.Chunks[0].Index, 0)
	gt.Equal(t, got.Chunks[1].Index, 1)
	gt.Equal(t, got.Chunks[0].Embedding, []float32{0.1, 0.2, 0.3})
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	repo, dbPath := setupSQLite(t, 2)
	ctx := context.Background()

	m := newMemory("durable", time.Now(), []float32{1, 0})
	gt.NoError(t, repo.PutMemory(ctx, m))
	gt.NoError(t, repo.Close())

	reopened := gt.R1(repository.NewSQLite(dbPath, 2)).NoError(t)
	defer reopened.Close()

	got := gt.R1(reopened.GetMemory(ctx, m.ID)).NoError(t)
	gt.Equal(t, got.Text, "durable")

	count := gt.R1(reopened.Count(ctx)).NoError(t)
	gt.Equal(t, count, 1)
}

func TestSQLiteRejectsDimensionChangeOnReopen(t *testing.T) {
	repo, dbPath := setupSQLite(t, 2)
	gt.NoError(t, repo.Close())

	_, err := repository.NewSQLite(dbPath, 4)
	gt.Error(t, err)
}

func TestSQLiteRejectsVectorDimensionMismatch(t *testing.T) {
	repo, _ := setupSQLite(t, 3)
	ctx := context.Background()

	err := repo.PutMemory(ctx, newMemory("bad", time.Now(), []float32{1, 0}))
	gt.Error(t, err)

	// The failed insert must leave nothing behind
	count := gt.R1(repo.Count(ctx)).NoError(t)
	gt.Equal(t, count, 0)
}

func TestSQLiteSearchRankingAndLimit(t *testing.T) {
	repo, _ := setupSQLite(t, 3)
	ctx := context.Background()

	now := time.Now()
	exact := newMemory("exact", now, []float32{1, 0, 0})
	near := newMemory("near", now, []float32{0.8, 0.2, 0})
	far := newMemory("far", now, []float32{0, 1, 0})
	for _, m := range []*model.Memory{near, far, exact} {
		gt.NoError(t, repo.PutMemory(ctx, m))
	}

	results := gt.R1(repo.Search(ctx, []float32{1, 0, 0}, 2)).NoError(t)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Chunk.MemoryID, exact.ID)
	gt.Equal(t, results[1].Chunk.MemoryID, near.ID)
	gt.True(t, results[0].Score > results[1].Score)
}

func TestSQLiteSearchTieBreakIsInsertionOrder(t *testing.T) {
	repo, _ := setupSQLite(t, 2)
	ctx := context.Background()

	first := newMemory("first", time.Now(), []float32{0, 1})
	second := newMemory("second", time.Now(), []float32{0, 1})
	gt.NoError(t, repo.PutMemory(ctx, first))
	gt.NoError(t, repo.PutMemory(ctx, second))

	results := gt.R1(repo.Search(ctx, []float32{0, 1}, 10)).NoError(t)
	gt.A(t, results).Length(2)
	gt.Equal(t, results[0].Chunk.MemoryID, first.ID)
	gt.Equal(t, results[1].Chunk.MemoryID, second.ID)
}

func TestSQLiteListMemoriesNewestFirst(t *testing.T) {
	repo, _ := setupSQLite(t, 2)
	ctx := context.Background()

	base := time.Now()
	old := newMemory("old", base.Add(-time.Hour), []float32{1, 0})
	recent := newMemory("recent", base, []float32{1, 0})
	gt.NoError(t, repo.PutMemory(ctx, old))
	gt.NoError(t, repo.PutMemory(ctx, recent))

	memories := gt.R1(repo.ListMemories(ctx, 0, 10)).NoError(t)
	gt.A(t, memories).Length(2)
	gt.Equal(t, memories[0].ID, recent.ID)
	gt.Equal(t, memories[1].ID, old.ID)
}
