package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Equal(t, 2, cfg.Retrieval.TopK)
	assert.Equal(t, "English", cfg.Assistant.Language)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.OpenAI.Model)
	assert.Equal(t, 512, cfg.Generator.OpenAI.MaxTokens)
	require.NotNil(t, cfg.Generator.OpenAI.Temperature)
	assert.InDelta(t, 0.2, *cfg.Generator.OpenAI.Temperature, 1e-9)
}

func TestLoad_GeneratorTemperature(t *testing.T) {
	dir := t.TempDir()
	partial := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(partial, []byte("generator:\n  openai:\n    api_key_env: VOLT_KEY\n"), 0o644))
	cfg, err := Load(partial)
	require.NoError(t, err)
	assert.Equal(t, "VOLT_KEY", cfg.Generator.OpenAI.APIKeyEnv)
	require.NotNil(t, cfg.Generator.OpenAI.Temperature)
	assert.InDelta(t, 0.2, *cfg.Generator.OpenAI.Temperature, 1e-9)

	zero := filepath.Join(dir, "zero.yaml")
	require.NoError(t, os.WriteFile(zero, []byte("generator:\n  openai:\n    temperature: 0\n"), 0o644))
	cfg, err = Load(zero)
	require.NoError(t, err)
	require.NotNil(t, cfg.Generator.OpenAI.Temperature)
	assert.Zero(t, *cfg.Generator.OpenAI.Temperature)
}

func TestLoad_AppliesSectionDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
corpus:
  path: faqs.json
embedder:
  type: openai
vector_store:
  type: qdrant
  qdrant:
    url: http://localhost:6333
retrieval:
  top_k: 3
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "faqs.json", cfg.Corpus.Path)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.MaxAttempts)
	require.NotNil(t, cfg.Embedder.OpenAI)
	assert.Equal(t, "text-embedding-3-small", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, 1536, cfg.Embedder.OpenAI.Dimension)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, "faq_collection", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, "QDRANT_API_KEY", cfg.VectorStore.Qdrant.APIKeyEnv)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("corpus: [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Assistant.Language = "Spanish"

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Spanish", loaded.Assistant.Language)
}

func TestSecretFromEnv(t *testing.T) {
	t.Setenv("VOLTASSIST_TEST_KEY", "from-env")

	assert.Equal(t, "from-env", SecretFromEnv("VOLTASSIST_TEST_KEY", "literal"))
	assert.Equal(t, "literal", SecretFromEnv("VOLTASSIST_UNSET_KEY", "literal"))
	assert.Equal(t, "literal", SecretFromEnv("", "literal"))
}
