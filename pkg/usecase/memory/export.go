package memory

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

const exportPageSize = 100

// snapshotRecord is one JSONL line of an exported snapshot. Vectors are
// included so an import needs no re-embedding.
type snapshotRecord struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Metadata  model.Metadata  `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Chunks    []snapshotChunk `json:"chunks"`
}

type snapshotChunk struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"embedding"`
}

// Export writes all memories as JSONL to w, newest first. Returns the
// number of exported memories.
func (u *UseCase) Export(ctx context.Context, w io.Writer) (int, error) {
	enc := json.NewEncoder(w)
	exported := 0

	for offset := 0; ; offset += exportPageSize {
		memories, err := u.repo.ListMemories(ctx, offset, exportPageSize)
		if err != nil {
			return exported, goerr.Wrap(err, "failed to list memories for export")
		}
		if len(memories) == 0 {
			break
		}

		for _, m := range memories {
			full, err := u.repo.GetMemory(ctx, m.ID)
			if err != nil {
				return exported, goerr.Wrap(err, "failed to load memory for export",
					goerr.V("memory_id", m.ID))
			}

			record := snapshotRecord{
				ID:        string(full.ID),
				Text:      full.Text,
				Metadata:  full.Metadata,
				CreatedAt: full.CreatedAt,
			}
			for _, c := range full.Chunks {
				record.Chunks = append(record.Chunks, snapshotChunk{
					ID:        string(c.ID),
					Index:     c.Index,
					Text:      c.Text,
					Embedding: c.Embedding,
				})
			}

			if err := enc.Encode(record); err != nil {
				return exported, goerr.Wrap(err, "failed to write snapshot record",
					goerr.V("memory_id", m.ID))
			}
			exported++
		}
	}

	logging.From(ctx).Info("exported memories", "count", exported)
	return exported, nil
}

// Import reads a JSONL snapshot from r and persists every record. Existing
// IDs cause the record to be skipped rather than overwritten: the store is
// append-only.
func (u *UseCase) Import(ctx context.Context, r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)

	imported := 0
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		var record snapshotRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return imported, goerr.Wrap(err, "failed to decode snapshot record",
				goerr.T(model.ErrTagInput), goerr.V("line", line))
		}

		if _, err := u.repo.GetMemory(ctx, model.MemoryID(record.ID)); err == nil {
			logging.From(ctx).Debug("skipping existing memory", "memory_id", record.ID)
			continue
		}

		memory := &model.Memory{
			ID:        model.MemoryID(record.ID),
			Text:      record.Text,
			Metadata:  record.Metadata,
			CreatedAt: record.CreatedAt,
		}
		for _, c := range record.Chunks {
			memory.Chunks = append(memory.Chunks, &model.Chunk{
				ID:        model.ChunkID(c.ID),
				MemoryID:  memory.ID,
				Index:     c.Index,
				Text:      c.Text,
				Embedding: c.Embedding,
			})
		}

		if err := u.repo.PutMemory(ctx, memory); err != nil {
			return imported, goerr.Wrap(err, "failed to import memory",
				goerr.V("memory_id", record.ID), goerr.V("line", line))
		}
		imported++
	}
	if err := scanner.Err(); err != nil {
		return imported, goerr.Wrap(err, "failed to read snapshot")
	}

	logging.From(ctx).Info("imported memories", "count", imported)
	return imported, nil
}
