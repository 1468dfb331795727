package model

import "github.com/m-mizutani/goerr/v2"

// Error tags classify failures across the store/query pipeline. CLI, HTTP and
// MCP front-ends use them to decide how a failure is reported.
var (
	// ErrTagInput marks invalid user input (empty text, malformed metadata).
	// Surfaced immediately, never retried.
	ErrTagInput = goerr.NewTag("input")

	// ErrTagEmbedding marks failures of the embedding capability (unreachable
	// or wrong dimensionality in the response).
	ErrTagEmbedding = goerr.NewTag("embedding")

	// ErrTagStorage marks backend failures (unavailable, dimension mismatch).
	ErrTagStorage = goerr.NewTag("storage")

	// ErrTagCompletion marks failures of the completion capability during
	// answer synthesis. Recoverable: the query degrades to raw results.
	ErrTagCompletion = goerr.NewTag("completion")
)

var (
	ErrEmptyMemory    = goerr.New("empty memory", goerr.T(ErrTagInput))
	ErrMemoryNotFound = goerr.New("memory not found", goerr.T(ErrTagStorage))
)
