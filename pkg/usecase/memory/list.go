package memory

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/kioku/pkg/model"
)

// ListOptions contains pagination options for listing memories
type ListOptions struct {
	Offset int
	Limit  int
}

// List returns stored memories, newest first
func (u *UseCase) List(ctx context.Context, opts ListOptions) ([]*model.Memory, error) {
	memories, err := u.repo.ListMemories(ctx, opts.Offset, opts.Limit)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list memories")
	}
	return memories, nil
}

// Count returns the total number of stored chunks
func (u *UseCase) Count(ctx context.Context) (int, error) {
	count, err := u.repo.Count(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to count memories")
	}
	return count, nil
}
