// Package retriever finds the stored FAQ answers most relevant to a question.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"voltassist/internal/domain"
	"voltassist/internal/remote"
	"voltassist/internal/vectorstore"
)

const DefaultTopK = 2

// Options tune a Retriever. Zero values fall back to defaults.
type Options struct {
	TopK int
	// Dimension is the expected embedding length; zero defers to the embedder.
	Dimension int
	Policy    remote.Policy
	// Catalog, when set, rejects unknown categories before any remote call.
	Catalog domain.CategoryCatalog
	Logger  *zap.Logger
}

// Retriever embeds a query and runs a filtered top-k search against the store.
type Retriever struct {
	mu       sync.RWMutex
	embedder domain.Embedder
	store    vectorstore.Storage
	opts     Options
	logger   *zap.Logger
}

func New(embedder domain.Embedder, store vectorstore.Storage, opts Options) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = remote.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{embedder: embedder, store: store, opts: opts, logger: logger}
}

// Swap replaces the embedder and store used by later turns. A turn in flight
// keeps the pair it started with, so query vectors always match the store.
func (r *Retriever) Swap(embedder domain.Embedder, store vectorstore.Storage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedder, r.store = embedder, store
}

// Retrieve returns at most topK matches ordered by descending score. An empty
// category searches the whole corpus. topK <= 0 uses the configured default.
func (r *Retriever) Retrieve(ctx context.Context, query, category string, topK int) ([]domain.Match, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.NewPipelineError("retrieve", domain.ErrEmptyQuery, nil)
	}
	if topK <= 0 {
		topK = r.opts.TopK
	}
	if category != "" && r.opts.Catalog != nil && !r.opts.Catalog.HasCategory(category) {
		return nil, domain.NewPipelineError("retrieve", domain.ErrRetrievalUnavailable,
			fmt.Errorf("unknown category %q", category))
	}

	r.mu.RLock()
	embedder, store := r.embedder, r.store
	r.mu.RUnlock()

	vector, err := remote.Retry(ctx, r.opts.Policy, r.embed(embedder, query))
	if err != nil {
		r.logger.Warn("embedding failed", zap.Error(err))
		return nil, domain.NewPipelineError("embed", domain.ErrEmbeddingUnavailable, err)
	}

	filter := domain.CategoryFilter(category)
	matches, err := remote.Retry(ctx, r.opts.Policy, func(ctx context.Context) ([]domain.Match, error) {
		return store.Search(ctx, vector, filter, topK)
	})
	if err != nil {
		r.logger.Warn("vector search failed", zap.String("category", category), zap.Error(err))
		return nil, domain.NewPipelineError("search", domain.ErrRetrievalUnavailable, err)
	}

	out := make([]domain.Match, 0, len(matches))
	for _, m := range matches {
		// Stores are trusted to filter; a stray record from another category is dropped anyway.
		if category != "" && m.Category != category {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	r.logger.Debug("retrieved matches",
		zap.String("category", category),
		zap.Int("top_k", topK),
		zap.Int("matches", len(out)))
	return out, nil
}

func (r *Retriever) embed(embedder domain.Embedder, query string) func(ctx context.Context) ([]float64, error) {
	return func(ctx context.Context) ([]float64, error) {
		vec, err := embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		if len(vec) == 0 {
			return nil, remote.Permanent(errors.New("empty embedding"))
		}
		want := r.opts.Dimension
		if want == 0 {
			want = embedder.Dimension()
		}
		if want > 0 && len(vec) != want {
			return nil, remote.Permanent(fmt.Errorf("embedding has %d dimensions, expected %d", len(vec), want))
		}
		return vec, nil
	}
}
