package memory

import (
	"context"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
	"github.com/m-mizutani/kioku/pkg/utils/logging"
)

// StoreInput contains parameters for storing a new memory
type StoreInput struct {
	Text     string
	Tags     []string
	Metadata model.Metadata
}

// ErrStoreDenied is returned when the store policy rejects the memory
var ErrStoreDenied = goerr.New("memory rejected by store policy", goerr.T(model.ErrTagInput))

// Store chunks the text, embeds every chunk and persists the memory
// atomically: if any embedding fails, nothing is stored.
func (u *UseCase) Store(ctx context.Context, input StoreInput) (*model.Memory, error) {
	if strings.TrimSpace(input.Text) == "" {
		return nil, goerr.Wrap(model.ErrEmptyMemory, "store")
	}

	metadata := input.Metadata.Clone()
	if metadata == nil {
		metadata = model.Metadata{}
	}
	if len(input.Tags) > 0 {
		metadata["tags"] = strings.Join(input.Tags, ",")
	}
	if err := metadata.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid metadata")
	}

	decision, err := u.policy.Evaluate(ctx, input.Text, metadata)
	if err != nil {
		return nil, goerr.Wrap(err, "store policy evaluation failed")
	}
	if !decision.Allow {
		return nil, goerr.Wrap(ErrStoreDenied, "store", goerr.V("reason", decision.Reason))
	}
	for k, v := range decision.Tags {
		metadata[k] = v
	}

	texts, err := u.splitter.Split(input.Text)
	if err != nil {
		return nil, err
	}

	memory := &model.Memory{
		ID:        model.NewMemoryID(),
		Text:      input.Text,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}

	// Embed all chunks before touching the store so a mid-sequence
	// embedding failure cannot leave a partial memory behind.
	for i, text := range texts {
		vec, err := u.embedder.Embed(ctx, text)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to embed chunk",
				goerr.V("memory_id", memory.ID), goerr.V("chunk_index", i))
		}
		memory.Chunks = append(memory.Chunks, &model.Chunk{
			ID:        model.NewChunkID(),
			MemoryID:  memory.ID,
			Index:     i,
			Text:      text,
			Embedding: vec,
		})
	}

	if err := u.repo.PutMemory(ctx, memory); err != nil {
		return nil, goerr.Wrap(err, "failed to persist memory", goerr.V("memory_id", memory.ID))
	}

	logging.From(ctx).Debug("stored memory",
		"memory_id", memory.ID, "chunks", len(memory.Chunks))

	return memory, nil
}
