package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"voltassist/internal/domain"
	"voltassist/internal/vectorstore"
)

// Storage is a simple in-memory vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	points    map[domain.RecordID]domain.Point
}

func NewStorage() *Storage {
	return &Storage{points: make(map[domain.RecordID]domain.Point)}
}

func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != dimension {
		s.points = make(map[domain.RecordID]domain.Point)
	}
	s.dimension = dimension
	return nil
}

func (s *Storage) Upsert(ctx context.Context, points []domain.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		return errors.New("storage not initialized")
	}
	for _, p := range points {
		if len(p.Vector) != s.dimension {
			return fmt.Errorf("record %s: vector dimension %d, expected %d", p.Record.ID, len(p.Vector), s.dimension)
		}
	}
	for _, p := range points {
		s.points[p.Record.ID] = p
	}
	return nil
}

func (s *Storage) Search(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.Match, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 5
	}
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector dimension %d, expected %d", len(vector), s.dimension)
	}
	results := make([]domain.Match, 0, len(s.points))
	for _, p := range s.points {
		if !filter.Matches(p.Record) {
			continue
		}
		results = append(results, domain.NewMatch(p.Record, vectorstore.CosineSimilarity(vector, p.Vector)))
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (s *Storage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = make(map[domain.RecordID]domain.Point)
	return nil
}

// Count returns the number of stored points.
func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}
