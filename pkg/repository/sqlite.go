package repository

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	_ "modernc.org/sqlite"
)

// sqliteRepo is the default local backend: one SQLite file holding memories,
// chunks and their vectors. Search loads all vectors and scores them in
// process, which is fine for a personal memory store (tens of thousands of
// chunks).
type sqliteRepo struct {
	db        *sql.DB
	dimension int
}

// NewSQLite opens (or creates) a SQLite-backed repository at dbPath. The
// vector dimension is fixed at first use; reopening with a different
// dimension is an error.
func NewSQLite(dbPath string, dimension int) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, goerr.Wrap(err, "failed to create db directory",
			goerr.T(model.ErrTagStorage), goerr.V("path", dbPath))
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database",
			goerr.T(model.ErrTagStorage), goerr.V("path", dbPath))
	}

	repo := &sqliteRepo{db: db, dimension: dimension}
	if err := repo.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return repo, nil
}

func (r *sqliteRepo) initSchema() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			metadata TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			memory_id TEXT NOT NULL REFERENCES memories(id),
			idx INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_memory ON chunks(memory_id, idx)`,
		`CREATE TABLE IF NOT EXISTS store_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}
	for _, q := range queries {
		if _, err := r.db.Exec(q); err != nil {
			return goerr.Wrap(err, "failed to init schema", goerr.T(model.ErrTagStorage))
		}
	}

	return r.checkDimension()
}

// checkDimension pins the vector dimension on first use and rejects a
// mismatching reopen.
func (r *sqliteRepo) checkDimension() error {
	var stored string
	err := r.db.QueryRow(`SELECT value FROM store_config WHERE key = 'dimension'`).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err := r.db.Exec(`INSERT INTO store_config (key, value) VALUES ('dimension', ?)`,
			strconv.Itoa(r.dimension))
		if err != nil {
			return goerr.Wrap(err, "failed to record dimension", goerr.T(model.ErrTagStorage))
		}
		return nil
	case err != nil:
		return goerr.Wrap(err, "failed to read dimension", goerr.T(model.ErrTagStorage))
	}

	dim, err := strconv.Atoi(stored)
	if err != nil || dim != r.dimension {
		return goerr.New("store dimension mismatch", goerr.T(model.ErrTagStorage),
			goerr.V("stored", stored), goerr.V("configured", r.dimension))
	}
	return nil
}

func (r *sqliteRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	if err := validateMemory(memory, r.dimension); err != nil {
		return err
	}

	metaJSON, err := json.Marshal(memory.Metadata)
	if err != nil {
		return goerr.Wrap(err, "failed to marshal metadata", goerr.T(model.ErrTagStorage))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin transaction", goerr.T(model.ErrTagStorage))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, text, metadata, created_at) VALUES (?, ?, ?, ?)`,
		string(memory.ID), memory.Text, string(metaJSON),
		memory.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return goerr.Wrap(err, "failed to insert memory",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", memory.ID))
	}

	for _, c := range memory.Chunks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chunks (id, memory_id, idx, text, embedding) VALUES (?, ?, ?, ?, ?)`,
			string(c.ID), string(memory.ID), c.Index, c.Text, encodeVector(c.Embedding))
		if err != nil {
			return goerr.Wrap(err, "failed to insert chunk",
				goerr.T(model.ErrTagStorage),
				goerr.V("memory_id", memory.ID), goerr.V("chunk_index", c.Index))
		}
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit memory", goerr.T(model.ErrTagStorage))
	}
	return nil
}

func (r *sqliteRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT text, metadata, created_at FROM memories WHERE id = ?`, string(id))

	var text, metaJSON, createdAt string
	if err := row.Scan(&text, &metaJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "get memory", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}

	memory, err := buildMemory(id, text, metaJSON, createdAt)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, idx, text, embedding FROM chunks WHERE memory_id = ? ORDER BY idx`, string(id))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load chunks",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}
	defer rows.Close()

	for rows.Next() {
		var (
			chunkID, chunkText string
			idx                int
			blob               []byte
		)
		if err := rows.Scan(&chunkID, &idx, &chunkText, &blob); err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk", goerr.T(model.ErrTagStorage))
		}
		memory.Chunks = append(memory.Chunks, &model.Chunk{
			ID:        model.ChunkID(chunkID),
			MemoryID:  id,
			Index:     idx,
			Text:      chunkText,
			Embedding: decodeVector(blob),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate chunks", goerr.T(model.ErrTagStorage))
	}

	return memory, nil
}

func (r *sqliteRepo) ListMemories(ctx context.Context, offset, limit int) ([]*model.Memory, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, text, metadata, created_at FROM memories
		 ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.T(model.ErrTagStorage))
	}
	defer rows.Close()

	var memories []*model.Memory
	for rows.Next() {
		var id, text, metaJSON, createdAt string
		if err := rows.Scan(&id, &text, &metaJSON, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan memory", goerr.T(model.ErrTagStorage))
		}
		memory, err := buildMemory(model.MemoryID(id), text, metaJSON, createdAt)
		if err != nil {
			return nil, err
		}
		memories = append(memories, memory)
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate memories", goerr.T(model.ErrTagStorage))
	}

	return memories, nil
}

func (r *sqliteRepo) Search(ctx context.Context, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateQueryVector(vector, r.dimension); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT c.id, c.memory_id, c.idx, c.text, c.embedding, m.metadata, m.created_at
		 FROM chunks c JOIN memories m ON c.memory_id = m.id
		 ORDER BY c.rowid`)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to scan chunks for search", goerr.T(model.ErrTagStorage))
	}
	defer rows.Close()

	var results []*model.SearchResult
	for rows.Next() {
		var (
			chunkID, memoryID, chunkText, metaJSON, createdAt string
			idx                                               int
			blob                                              []byte
		)
		if err := rows.Scan(&chunkID, &memoryID, &idx, &chunkText, &blob, &metaJSON, &createdAt); err != nil {
			return nil, goerr.Wrap(err, "failed to scan chunk row", goerr.T(model.ErrTagStorage))
		}

		var meta model.Metadata
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			return nil, goerr.Wrap(err, "failed to unmarshal metadata", goerr.T(model.ErrTagStorage))
		}
		ts, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to parse created_at", goerr.T(model.ErrTagStorage))
		}

		embedding := decodeVector(blob)
		results = append(results, &model.SearchResult{
			Chunk: &model.Chunk{
				ID:        model.ChunkID(chunkID),
				MemoryID:  model.MemoryID(memoryID),
				Index:     idx,
				Text:      chunkText,
				Embedding: embedding,
			},
			Metadata:  meta,
			CreatedAt: ts,
			Score:     cosineSimilarity(vector, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, goerr.Wrap(err, "failed to iterate search rows", goerr.T(model.ErrTagStorage))
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (r *sqliteRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks", goerr.T(model.ErrTagStorage))
	}
	return count, nil
}

func (r *sqliteRepo) Close() error {
	return r.db.Close()
}

func buildMemory(id model.MemoryID, text, metaJSON, createdAt string) (*model.Memory, error) {
	var meta model.Metadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, goerr.Wrap(err, "failed to unmarshal metadata",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}
	ts, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse created_at",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}
	return &model.Memory{
		ID:        id,
		Text:      text,
		Metadata:  meta,
		CreatedAt: ts,
	}, nil
}

// encodeVector serializes a vector as little-endian float32 for BLOB storage
func encodeVector(vec []float32) []byte {
	buf := new(bytes.Buffer)
	_ = binary.Write(buf, binary.LittleEndian, vec)
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	_ = binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec)
	return vec
}
