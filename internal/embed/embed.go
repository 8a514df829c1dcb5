// Package embed maps text to vectors in a shared embedding space.
// When the embedding backend cannot be reached the engine degrades to
// lexical-only matching instead of aborting the run.
package embed

import (
	"context"
	"errors"
)

// ErrUnavailable signals that the embedding backend cannot be used.
// Callers degrade to lexical matching; they never treat this as fatal.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Embedder generates vector embeddings from text. Embed must be
// deterministic for a fixed model.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	ModelName() string
}
