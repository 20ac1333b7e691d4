// Package app wires configuration into the assistant's components.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"voltassist/internal/config"
	"voltassist/internal/corpus"
	"voltassist/internal/domain"
	embopenai "voltassist/internal/embedding/openai"
	"voltassist/internal/embedding/tfidf"
	llmopenai "voltassist/internal/llm/openai"
	"voltassist/internal/prompt"
	"voltassist/internal/remote"
	"voltassist/internal/retriever"
	"voltassist/internal/service"
	"voltassist/internal/vectorstore"
	"voltassist/internal/vectorstore/memory"
	"voltassist/internal/vectorstore/pgvector"
	"voltassist/internal/vectorstore/qdrant"
	"voltassist/internal/vectorstore/sqlite"
)

// Options select which parts Build wires.
type Options struct {
	// WithGenerator is false for commands that never call the chat model.
	WithGenerator bool
}

// Dependencies holds the wired components of one process.
type Dependencies struct {
	Config    *config.AppConfig
	Logger    *zap.Logger
	Corpus    *corpus.Corpus
	Embedder  domain.Embedder
	Store     vectorstore.Storage
	Generator domain.Generator
	Retriever *retriever.Retriever
	Assistant *service.Assistant

	policy remote.Policy
}

// Build loads the corpus and constructs every component named by cfg.
func Build(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts Options) (*Dependencies, error) {
	deps := &Dependencies{Config: cfg, Logger: logger}

	c, err := corpus.Load(cfg.Corpus.Path)
	if err != nil {
		return nil, err
	}
	deps.Corpus = c

	if deps.Embedder, err = NewEmbedder(cfg.Embedder); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if deps.Store, err = NewStore(ctx, cfg.VectorStore); err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	if opts.WithGenerator {
		if deps.Generator, err = NewGenerator(cfg.Generator); err != nil {
			deps.Close()
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
	}

	policy := remote.DefaultPolicy()
	policy.MaxAttempts = cfg.Retrieval.MaxAttempts
	policy.CallTimeout = time.Duration(cfg.Retrieval.CallTimeoutSecs) * time.Second
	deps.policy = policy

	deps.Retriever = retriever.New(deps.Embedder, deps.Store, retriever.Options{
		TopK:      cfg.Retrieval.TopK,
		Dimension: expectedDimension(cfg.Embedder),
		Policy:    policy,
		Catalog:   c,
		Logger:    logger.Named("retriever"),
	})
	deps.Assistant = service.NewAssistant(service.Deps{
		Retriever:  deps.Retriever,
		Assembler:  prompt.NewAssembler(cfg.Assistant.Name),
		Generator:  deps.Generator,
		Embedder:   deps.Embedder,
		Store:      deps.Store,
		Categories: c,
	}, service.Options{
		Language: cfg.Assistant.Language,
		TopK:     cfg.Retrieval.TopK,
		Policy:   policy,
		Logger:   logger.Named("assistant"),
	})

	logger.Info("dependencies initialized",
		zap.String("embedder", deps.Embedder.Name()),
		zap.String("vector_store", cfg.VectorStore.Type),
		zap.Int("records", len(c.Records())),
		zap.Strings("categories", c.Categories()))
	return deps, nil
}

// Ephemeral reports whether the vector store loses its content with the process.
func (d *Dependencies) Ephemeral() bool {
	_, ok := d.Store.(*memory.Storage)
	return ok
}

// Warmup prepares the embedder over the corpus questions and, for an
// in-process store, ingests the corpus.
func (d *Dependencies) Warmup(ctx context.Context) error {
	if !d.Ephemeral() {
		return d.Embedder.Prepare(d.Corpus.Questions())
	}
	_, err := d.Assistant.Ingest(ctx, d.Corpus.Records(), service.IngestOptions{Reset: true})
	return err
}

// WatchCorpus refreshes the retriever whenever the corpus file changes.
func (d *Dependencies) WatchCorpus(ctx context.Context) error {
	return d.Corpus.Watch(ctx, d.Logger.Named("corpus"), func() {
		if err := d.refresh(ctx); err != nil {
			d.Logger.Error("refresh after corpus reload failed", zap.Error(err))
		}
	})
}

// refresh brings the retriever in line with the reloaded corpus. For the
// memory store a new embedder and store are filled off to the side and then
// swapped in, so turns never see a half-built index. Persistent stores keep
// their vectors until the next ingest; only the embedder is prepared again.
// d.Embedder and d.Store keep naming the instances built at startup.
func (d *Dependencies) refresh(ctx context.Context) error {
	if !d.Ephemeral() {
		return d.Embedder.Prepare(d.Corpus.Questions())
	}
	embedder, err := NewEmbedder(d.Config.Embedder)
	if err != nil {
		return err
	}
	store := memory.NewStorage()
	staging := service.NewAssistant(service.Deps{Embedder: embedder, Store: store}, service.Options{
		Policy: d.policy,
		Logger: d.Logger.Named("assistant"),
	})
	if _, err := staging.Ingest(ctx, d.Corpus.Records(), service.IngestOptions{}); err != nil {
		return err
	}
	d.Retriever.Swap(embedder, store)
	return nil
}

// Close releases store connections.
func (d *Dependencies) Close() error {
	if c, ok := d.Store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, error) {
	switch cfg.Type {
	case "tfidf", "":
		return tfidf.NewEmbedder(), nil
	case "openai":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.OpenAI.BaseURL,
			APIKeyEnv: cfg.OpenAI.APIKeyEnv,
			Model:     cfg.OpenAI.Model,
			Dimension: cfg.OpenAI.Dimension,
			Timeout:   time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func NewStore(ctx context.Context, cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "qdrant":
		if cfg.Qdrant == nil || cfg.Qdrant.URL == "" {
			return nil, errors.New("qdrant url missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     config.SecretFromEnv(cfg.Qdrant.APIKeyEnv, cfg.Qdrant.APIKey),
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "sqlite":
		if cfg.SQLite == nil {
			return nil, errors.New("sqlite config missing")
		}
		st, err := sqlite.NewStorage(cfg.SQLite.Path)
		if err != nil {
			return nil, err
		}
		return st, nil
	case "pgvector":
		if cfg.PgVector == nil {
			return nil, errors.New("pgvector config missing")
		}
		st, err := pgvector.NewStorage(ctx, config.SecretFromEnv(cfg.PgVector.DSNEnv, cfg.PgVector.DSN), cfg.PgVector.Table)
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

func NewGenerator(cfg config.GeneratorConfig) (domain.Generator, error) {
	switch cfg.Type {
	case "openai", "":
		if cfg.OpenAI == nil {
			return nil, errors.New("openai generator config missing")
		}
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     cfg.OpenAI.BaseURL,
			APIKeyEnv:   cfg.OpenAI.APIKeyEnv,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: temperature(cfg.OpenAI),
			Timeout:     time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return nil, fmt.Errorf("unknown generator: %s", cfg.Type)
}

func temperature(cfg *config.OpenAIGeneratorConfig) float64 {
	if cfg.Temperature == nil {
		return 0.2
	}
	return *cfg.Temperature
}

// expectedDimension is fixed for remote embedders; the TF-IDF vocabulary
// decides its own.
func expectedDimension(cfg config.EmbedderConfig) int {
	if cfg.Type == "openai" && cfg.OpenAI != nil {
		return cfg.OpenAI.Dimension
	}
	return 0
}
