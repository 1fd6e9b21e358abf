package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
models:
  - id: llama3.2
    provider: ollama
  - id: gpt-4o
    provider: openai
    supports_tools: true
    is_multimodal: true
    pricing: {input_per_k: 0.0025, output_per_k: 0.01}
`

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesModelsWithDottedIDs(t *testing.T) {
	c, err := Load(writeFile(t, sample))
	require.NoError(t, err)

	info, ok := c.GetModelInfo("gpt-4o")
	require.True(t, ok)
	assert.Equal(t, "openai", info.Provider)
	assert.True(t, info.SupportsTools)
	assert.True(t, info.IsMultimodal)
	assert.InDelta(t, 0.01, info.Pricing.OutputPerK, 1e-12)

	_, ok = c.GetModelInfo("llama3.2")
	assert.True(t, ok)

	_, ok = c.GetModelInfo("unknown")
	assert.False(t, ok)

	assert.Len(t, c.Models("openai"), 1)
	all := c.Models("")
	require.Len(t, all, 2)
	assert.Equal(t, "gpt-4o", all[0].ID)
}

func TestLoadRejectsDuplicates(t *testing.T) {
	_, err := Load(writeFile(t, `
models:
  - {id: a, provider: openai}
  - {id: a, provider: groq}
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")
}

func TestReloadKeepsPreviousOnError(t *testing.T) {
	path := writeFile(t, sample)
	c, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("models:\n  - {provider: openai}\n"), 0o600))
	assert.Error(t, c.reload())
	assert.Equal(t, 2, c.Len())
}

func TestNewInMemory(t *testing.T) {
	c := New()
	assert.Zero(t, c.Len())
	c.Watch(context.Background())
}
