package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Source.PageSize)
	assert.Equal(t, 3, cfg.Source.MaxRetries)
	assert.False(t, cfg.Source.AllowEmptyCorpus)
	assert.Equal(t, 1024, cfg.Embedding.Dimension)
	assert.Equal(t, 3, cfg.Embedding.Concurrency)
	assert.Equal(t, 5, cfg.Embedding.MaxRetries)
	assert.Equal(t, "qdrant", cfg.VectorStore.Type)
	require.NotNil(t, cfg.VectorStore.Qdrant)
	assert.Equal(t, "member_messages", cfg.VectorStore.Qdrant.Collection)
	assert.Equal(t, 100, cfg.VectorStore.UpsertBatchSize)
	assert.Equal(t, 15, cfg.Retrieval.TopK)
	assert.Equal(t, 500, cfg.LLM.MaxTokens)
}

func TestLoadAppliesDefaultsToPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
source:
  base_url: https://example.test
  page_size: 50
embedding:
  model: custom/model
  dimension: 384
vector_store:
  type: memory
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example.test", cfg.Source.BaseURL)
	assert.Equal(t, 50, cfg.Source.PageSize)
	assert.Equal(t, 200, cfg.Source.PageDelayMS)
	assert.Equal(t, "custom/model", cfg.Embedding.Model)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.Equal(t, "memory", cfg.VectorStore.Type)
	assert.Nil(t, cfg.VectorStore.Qdrant)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("source: ["), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}
