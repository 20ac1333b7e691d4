package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"voltassist/internal/domain"
	"voltassist/internal/prompt"
	"voltassist/internal/remote"
	"voltassist/internal/vectorstore"
)

const upsertBatchSize = 64

// Retriever finds the matches for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, category string, topK int) ([]domain.Match, error)
}

// CategorySource lists the categories of the loaded corpus.
type CategorySource interface {
	Categories() []string
}

// Answer is the outcome of one turn.
type Answer struct {
	Text string `json:"answer"`
	// Messages is the assembled system/user pair followed by the assistant reply.
	Messages []domain.Message `json:"messages"`
	Matches  []domain.Match   `json:"matches"`
}

type Deps struct {
	Retriever  Retriever
	Assembler  *prompt.Assembler
	Generator  domain.Generator
	Embedder   domain.Embedder
	Store      vectorstore.Storage
	Categories CategorySource
}

type Options struct {
	// Language is used when a turn does not ask for one.
	Language string
	TopK     int
	Policy   remote.Policy
	Logger   *zap.Logger
}

// Assistant wires retrieval, prompt assembly and generation into the answer flow,
// and ingests corpus records into the vector store.
type Assistant struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func NewAssistant(deps Deps, opts Options) *Assistant {
	if deps.Assembler == nil {
		deps.Assembler = prompt.NewAssembler("")
	}
	if opts.Language == "" {
		opts.Language = prompt.DefaultLanguage
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = remote.DefaultPolicy()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assistant{deps: deps, opts: opts, logger: logger}
}

// AnswerQuery runs one turn. When the vector store is unavailable the answer is
// produced from an empty excerpt block; an embedding failure fails the turn.
func (a *Assistant) AnswerQuery(ctx context.Context, text, category, language string) (*Answer, error) {
	if language == "" {
		language = a.opts.Language
	}
	matches, err := a.deps.Retriever.Retrieve(ctx, text, category, a.opts.TopK)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRetrievalUnavailable):
		a.logger.Warn("retrieval unavailable, answering without excerpts",
			zap.String("category", category), zap.Error(err))
		matches = []domain.Match{}
	default:
		return nil, err
	}

	p := a.deps.Assembler.Assemble(text, matches, category, language)
	messages := p.Messages()
	reply, err := remote.Retry(ctx, a.opts.Policy, func(ctx context.Context) (string, error) {
		return a.deps.Generator.Complete(ctx, messages)
	})
	if err != nil {
		a.logger.Error("generation failed", zap.Error(err))
		return nil, domain.NewPipelineError("generate", domain.ErrGenerationUnavailable, err)
	}

	a.logger.Info("answered query",
		zap.String("category", category),
		zap.String("language", language),
		zap.Int("matches", len(matches)))
	return &Answer{
		Text:     reply,
		Messages: append(messages, domain.AssistantMessage(reply)),
		Matches:  matches,
	}, nil
}

// Categories returns the sorted corpus categories.
func (a *Assistant) Categories() []string {
	if a.deps.Categories == nil {
		return []string{}
	}
	return a.deps.Categories.Categories()
}

type IngestOptions struct {
	// Reset clears the store before writing.
	Reset bool
}

// Ingest embeds each record's question and upserts the points. It returns the
// number of records written.
func (a *Assistant) Ingest(ctx context.Context, records []domain.Record, opts IngestOptions) (int, error) {
	if len(records) == 0 {
		return 0, errors.New("no records to ingest")
	}
	questions := make([]string, len(records))
	for i, r := range records {
		questions[i] = r.Question
	}
	if err := a.deps.Embedder.Prepare(questions); err != nil {
		return 0, domain.NewPipelineError("ingest", domain.ErrEmbeddingUnavailable, err)
	}

	points := make([]domain.Point, 0, len(records))
	for _, r := range records {
		question := r.Question
		vec, err := remote.Retry(ctx, a.opts.Policy, func(ctx context.Context) ([]float64, error) {
			return a.deps.Embedder.Embed(ctx, question)
		})
		if err != nil {
			return 0, domain.NewPipelineError("ingest", domain.ErrEmbeddingUnavailable,
				fmt.Errorf("record %s: %w", r.ID, err))
		}
		points = append(points, domain.Point{Record: r, Vector: vec})
	}

	dimension := len(points[0].Vector)
	if dimension == 0 {
		return 0, domain.NewPipelineError("ingest", domain.ErrEmbeddingUnavailable, errors.New("empty embedding"))
	}
	if err := a.deps.Store.Init(ctx, dimension); err != nil {
		return 0, domain.NewPipelineError("ingest", domain.ErrRetrievalUnavailable, fmt.Errorf("init store: %w", err))
	}
	if opts.Reset {
		if err := a.deps.Store.Clear(ctx); err != nil {
			return 0, domain.NewPipelineError("ingest", domain.ErrRetrievalUnavailable, fmt.Errorf("clear store: %w", err))
		}
		// Some stores drop the collection on Clear.
		if err := a.deps.Store.Init(ctx, dimension); err != nil {
			return 0, domain.NewPipelineError("ingest", domain.ErrRetrievalUnavailable, fmt.Errorf("init store: %w", err))
		}
	}
	for start := 0; start < len(points); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(points))
		batch := points[start:end]
		_, err := remote.Retry(ctx, a.opts.Policy, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, a.deps.Store.Upsert(ctx, batch)
		})
		if err != nil {
			return start, domain.NewPipelineError("ingest", domain.ErrRetrievalUnavailable, fmt.Errorf("upsert: %w", err))
		}
	}
	a.logger.Info("ingested corpus",
		zap.Int("records", len(points)),
		zap.Int("dimension", dimension),
		zap.String("embedder", a.deps.Embedder.Name()))
	return len(points), nil
}
