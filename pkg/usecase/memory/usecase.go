// Package memory implements the store and query operations of the memory
// system: chunking and embedding at store time, vector retrieval and answer
// synthesis at query time.
package memory

import (
	"github.com/m-mizutani/kioku/pkg/adapter"
	"github.com/m-mizutani/kioku/pkg/chunk"
	"github.com/m-mizutani/kioku/pkg/policy"
	"github.com/m-mizutani/kioku/pkg/repository"
)

const (
	// DefaultTopK is the default number of search hits per query
	DefaultTopK = 5

	// DefaultContextBudget caps the synthesized-answer context, in runes,
	// so the completion request stays within the capability's input limit
	DefaultContextBudget = 8000
)

// UseCase provides memory store/query operations
type UseCase struct {
	repo      repository.Repository
	embedder  adapter.Embedder
	completer adapter.Completer
	splitter  *chunk.Splitter
	policy    *policy.StorePolicy

	topK          int
	contextBudget int
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithCompleter sets the completion capability used for answer synthesis.
// Without one, every query runs in raw mode.
func WithCompleter(c adapter.Completer) Option {
	return func(uc *UseCase) {
		uc.completer = c
	}
}

// WithSplitter overrides the default chunking configuration
func WithSplitter(s *chunk.Splitter) Option {
	return func(uc *UseCase) {
		uc.splitter = s
	}
}

// WithStorePolicy sets an optional Rego policy evaluated before persisting
func WithStorePolicy(p *policy.StorePolicy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithTopK sets the default number of retrieved chunks
func WithTopK(k int) Option {
	return func(uc *UseCase) {
		if k > 0 {
			uc.topK = k
		}
	}
}

// WithContextBudget sets the synthesis context limit in runes
func WithContextBudget(budget int) Option {
	return func(uc *UseCase) {
		if budget > 0 {
			uc.contextBudget = budget
		}
	}
}

// New creates a memory UseCase instance
func New(repo repository.Repository, embedder adapter.Embedder, opts ...Option) *UseCase {
	uc := &UseCase{
		repo:          repo,
		embedder:      embedder,
		topK:          DefaultTopK,
		contextBudget: DefaultContextBudget,
	}
	uc.splitter = &chunk.Splitter{Size: chunk.DefaultSize, Overlap: chunk.DefaultOverlap}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
