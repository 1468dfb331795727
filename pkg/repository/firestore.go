package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	firestorepb "cloud.google.com/go/firestore/apiv1/firestorepb"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	memoryCollection = "memories"
	chunkCollection  = "memory_chunks"

	distanceField = "vector_distance"
)

// firestoreRepo implements Repository using Firestore with native vector
// search (FindNearest, cosine distance). One document per memory plus one
// document per chunk; chunk documents carry denormalized metadata so search
// results need no extra reads.
type firestoreRepo struct {
	client    *firestore.Client
	dimension int
}

type memoryDoc struct {
	ID         string         `firestore:"id"`
	Text       string         `firestore:"text"`
	Metadata   map[string]any `firestore:"metadata"`
	CreatedAt  time.Time      `firestore:"created_at"`
	ChunkCount int            `firestore:"chunk_count"`
}

type chunkDoc struct {
	ID        string             `firestore:"id"`
	MemoryID  string             `firestore:"memory_id"`
	Index     int                `firestore:"index"`
	Text      string             `firestore:"text"`
	Embedding firestore.Vector32 `firestore:"embedding"`
	Metadata  map[string]any     `firestore:"metadata"`
	CreatedAt time.Time          `firestore:"created_at"`
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string, dimension int) (Repository, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.T(model.ErrTagStorage),
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}

	return &firestoreRepo{
		client:    client,
		dimension: dimension,
	}, nil
}

func (r *firestoreRepo) PutMemory(ctx context.Context, memory *model.Memory) error {
	if err := validateMemory(memory, r.dimension); err != nil {
		return err
	}

	// A transaction keeps the memory and all chunk writes atomic. Firestore
	// limits a transaction to 500 writes, which caps a single memory at 499
	// chunks.
	err := r.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		mref := r.client.Collection(memoryCollection).Doc(string(memory.ID))
		if err := tx.Set(mref, &memoryDoc{
			ID:         string(memory.ID),
			Text:       memory.Text,
			Metadata:   memory.Metadata,
			CreatedAt:  memory.CreatedAt,
			ChunkCount: len(memory.Chunks),
		}); err != nil {
			return err
		}

		for _, c := range memory.Chunks {
			cref := r.client.Collection(chunkCollection).Doc(string(c.ID))
			if err := tx.Set(cref, &chunkDoc{
				ID:        string(c.ID),
				MemoryID:  string(memory.ID),
				Index:     c.Index,
				Text:      c.Text,
				Embedding: firestore.Vector32(c.Embedding),
				Metadata:  memory.Metadata,
				CreatedAt: memory.CreatedAt,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return goerr.Wrap(err, "failed to put memory",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", memory.ID))
	}
	return nil
}

func (r *firestoreRepo) GetMemory(ctx context.Context, id model.MemoryID) (*model.Memory, error) {
	snap, err := r.client.Collection(memoryCollection).Doc(string(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, goerr.Wrap(model.ErrMemoryNotFound, "get memory", goerr.V("memory_id", id))
		}
		return nil, goerr.Wrap(err, "failed to get memory",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}

	var doc memoryDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerr.Wrap(err, "failed to decode memory",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}
	memory := docToMemory(&doc)

	iter := r.client.Collection(chunkCollection).
		Where("memory_id", "==", string(id)).
		OrderBy("index", firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	snaps, err := iter.GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load chunks",
			goerr.T(model.ErrTagStorage), goerr.V("memory_id", id))
	}
	for _, s := range snaps {
		var cd chunkDoc
		if err := s.DataTo(&cd); err != nil {
			return nil, goerr.Wrap(err, "failed to decode chunk", goerr.T(model.ErrTagStorage))
		}
		memory.Chunks = append(memory.Chunks, &model.Chunk{
			ID:        model.ChunkID(cd.ID),
			MemoryID:  id,
			Index:     cd.Index,
			Text:      cd.Text,
			Embedding: []float32(cd.Embedding),
		})
	}

	return memory, nil
}

func (r *firestoreRepo) ListMemories(ctx context.Context, offset, limit int) ([]*model.Memory, error) {
	q := r.client.Collection(memoryCollection).
		OrderBy("created_at", firestore.Desc).
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}

	iter := q.Documents(ctx)
	defer iter.Stop()

	snaps, err := iter.GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories", goerr.T(model.ErrTagStorage))
	}

	memories := make([]*model.Memory, 0, len(snaps))
	for _, s := range snaps {
		var doc memoryDoc
		if err := s.DataTo(&doc); err != nil {
			return nil, goerr.Wrap(err, "failed to decode memory", goerr.T(model.ErrTagStorage))
		}
		memories = append(memories, docToMemory(&doc))
	}
	return memories, nil
}

func (r *firestoreRepo) Search(ctx context.Context, vector []float32, limit int) ([]*model.SearchResult, error) {
	if err := validateQueryVector(vector, r.dimension); err != nil {
		return nil, err
	}

	vq := r.client.Collection(chunkCollection).FindNearest(
		"embedding",
		firestore.Vector32(vector),
		limit,
		firestore.DistanceMeasureCosine,
		&firestore.FindNearestOptions{
			DistanceResultField: distanceField,
		})

	iter := vq.Documents(ctx)
	defer iter.Stop()

	snaps, err := iter.GetAll()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to run vector search", goerr.T(model.ErrTagStorage))
	}

	results := make([]*model.SearchResult, 0, len(snaps))
	for _, s := range snaps {
		var cd chunkDoc
		if err := s.DataTo(&cd); err != nil {
			return nil, goerr.Wrap(err, "failed to decode search hit", goerr.T(model.ErrTagStorage))
		}

		// Cosine distance is in [0, 2]; report similarity = 1 - distance
		score := 0.0
		if d, ok := s.Data()[distanceField].(float64); ok {
			score = 1 - d
		}

		results = append(results, &model.SearchResult{
			Chunk: &model.Chunk{
				ID:        model.ChunkID(cd.ID),
				MemoryID:  model.MemoryID(cd.MemoryID),
				Index:     cd.Index,
				Text:      cd.Text,
				Embedding: []float32(cd.Embedding),
			},
			Metadata:  toMetadata(cd.Metadata),
			CreatedAt: cd.CreatedAt,
			Score:     score,
		})
	}
	return results, nil
}

func (r *firestoreRepo) Count(ctx context.Context) (int, error) {
	q := r.client.Collection(chunkCollection).NewAggregationQuery().WithCount("total")
	result, err := q.Get(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count chunks", goerr.T(model.ErrTagStorage))
	}

	value, ok := result["total"]
	if !ok {
		return 0, goerr.New("count aggregation missing result", goerr.T(model.ErrTagStorage))
	}
	pbValue, ok := value.(*firestorepb.Value)
	if !ok {
		return 0, goerr.New("unexpected count aggregation type", goerr.T(model.ErrTagStorage))
	}
	return int(pbValue.GetIntegerValue()), nil
}

func (r *firestoreRepo) Close() error {
	return r.client.Close()
}

func docToMemory(doc *memoryDoc) *model.Memory {
	return &model.Memory{
		ID:        model.MemoryID(doc.ID),
		Text:      doc.Text,
		Metadata:  toMetadata(doc.Metadata),
		CreatedAt: doc.CreatedAt,
	}
}

func toMetadata(m map[string]any) model.Metadata {
	if m == nil {
		return nil
	}
	return model.Metadata(m)
}
