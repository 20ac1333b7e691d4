package vectorstore

import (
	"context"
	"math"

	"voltassist/internal/domain"
)

// Storage persists FAQ points and answers filtered top-k similarity queries.
// Upsert replaces points by record id. Search returns at most topK matches
// whose payload satisfies every filter constraint; ordering is not guaranteed.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, points []domain.Point) error
	Search(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.Match, error)
	Clear(ctx context.Context) error
}

// CosineSimilarity returns the cosine of the angle between a and b, or 0 when
// the lengths differ or either vector is zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
