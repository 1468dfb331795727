package adapter

import "context"

// Embedder converts text into a fixed-dimension vector. Implementations must
// return exactly the configured number of dimensions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the vector dimensionality this embedder produces.
	Dimension() int
}

// Completer generates free text from a system instruction and a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}
