package domain

import "context"

// Embedder converts free text into a numeric vector representation.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	// Dimension is the expected vector length, or 0 while unknown.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Generator sends a message sequence to a chat-completion model and returns its reply.
type Generator interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// CategoryCatalog answers whether a category exists in the loaded corpus.
type CategoryCatalog interface {
	HasCategory(category string) bool
}
