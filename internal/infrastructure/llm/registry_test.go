package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
)

type staticCatalog map[string]service.ModelInfo

func (c staticCatalog) GetModelInfo(model string) (service.ModelInfo, bool) {
	info, ok := c[model]
	return info, ok
}

func (c staticCatalog) Models(provider string) []service.ModelInfo {
	var out []service.ModelInfo
	for _, info := range c {
		if provider == "" || info.Provider == provider {
			out = append(out, info)
		}
	}
	return out
}

func newTestRegistry() *Registry {
	cfg := &config.Config{LLM: config.LLMConfig{
		DefaultModel: "gpt-4o-mini",
		Providers: map[string]config.ProviderConfig{
			"openai":    {APIKey: "sk-builtin", Models: []string{"gpt-4o", "gpt-4o-mini"}},
			"anthropic": {Models: []string{"claude-sonnet-4-5"}},
		},
	}}
	catalog := staticCatalog{
		"gpt-4o":            {ID: "gpt-4o", Provider: "openai"},
		"claude-sonnet-4-5": {ID: "claude-sonnet-4-5", Provider: "anthropic", SupportsThinking: true},
	}
	r := NewRegistry(cfg, catalog)
	r.getenv = func(key string) string {
		if key == "ANTHROPIC_API_KEY" {
			return "sk-ant-env"
		}
		return ""
	}
	return r
}

func TestRegistryRegistersNineProviders(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, []string{
		"anthropic", "deepseek", "google", "groq", "mistral", "ollama", "openai", "openrouter", "xai",
	}, r.Providers())
}

func TestGetDefaultModel(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, "gpt-4o", r.GetDefaultModel("openai"))
	assert.Equal(t, "gpt-4o-mini", r.GetDefaultModel("groq"))

	r.config.DefaultModel = ""
	assert.Equal(t, FallbackModel, r.GetDefaultModel("mistral"))
}

func TestGetProviderAPIKey(t *testing.T) {
	r := newTestRegistry()

	key, own := r.GetProviderAPIKey("openai", "  sk-user ")
	assert.Equal(t, "sk-user", key)
	assert.True(t, own)

	key, own = r.GetProviderAPIKey("openai", "")
	assert.Equal(t, "sk-builtin", key)
	assert.False(t, own)

	key, own = r.GetProviderAPIKey("anthropic", "")
	assert.Equal(t, "sk-ant-env", key)
	assert.False(t, own)

	key, own = r.GetProviderAPIKey("mistral", "")
	assert.Empty(t, key)
	assert.False(t, own)
}

func TestValidateModel(t *testing.T) {
	r := newTestRegistry()

	assert.NoError(t, r.ValidateModel("openai", "gpt-4o"))
	assert.NoError(t, r.ValidateModel("openai", "gpt-4o-mini"))
	assert.ErrorIs(t, r.ValidateModel("nope", "gpt-4o"), ErrUnknownProvider)
	assert.ErrorIs(t, r.ValidateModel("anthropic", "gpt-4o"), ErrUnknownModel)
	assert.ErrorIs(t, r.ValidateModel("openai", "made-up"), ErrUnknownModel)
}

func TestBuildModelThinkingFamilies(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	tests := []struct {
		name       string
		spec       service.ModelSpec
		wantNative bool
		wantOpts   map[string]any
	}{
		{
			name:       "reasoning effort defaults to medium",
			spec:       service.ModelSpec{Provider: "openai", Model: "o3-mini", APIKey: "k", SupportsThinking: true},
			wantNative: true,
			wantOpts:   map[string]any{"reasoning_effort": "medium"},
		},
		{
			name:       "reasoning effort maps numeric budget",
			spec:       service.ModelSpec{Provider: "xai", Model: "grok-3-mini", APIKey: "k", ThinkingBudget: entity.ThinkingBudget{Tokens: 30000}},
			wantNative: true,
			wantOpts:   map[string]any{"reasoning_effort": "high"},
		},
		{
			name:       "reasoning effort omitted for non reasoning model",
			spec:       service.ModelSpec{Provider: "openai", Model: "gpt-4o", APIKey: "k"},
			wantNative: true,
		},
		{
			name:       "token budget default",
			spec:       service.ModelSpec{Provider: "anthropic", Model: "claude-sonnet-4-5", APIKey: "k", SupportsThinking: true},
			wantNative: true,
			wantOpts: map[string]any{"thinking": map[string]any{
				"type": "enabled", "budget_tokens": 15000,
			}},
		},
		{
			name:       "thinking config explicit budget",
			spec:       service.ModelSpec{Provider: "google", Model: "gemini-2.5-flash", APIKey: "k", ThinkingBudget: entity.ThinkingBudget{Tokens: 512}},
			wantNative: true,
			wantOpts: map[string]any{"extra_body": map[string]any{"google": map[string]any{
				"thinking_config": map[string]any{"thinking_budget": 512, "include_thoughts": true},
			}}},
		},
		{
			name:       "thinking config default",
			spec:       service.ModelSpec{Provider: "google", Model: "gemini-2.5-pro", APIKey: "k", SupportsThinking: true},
			wantNative: true,
			wantOpts: map[string]any{"extra_body": map[string]any{"google": map[string]any{
				"thinking_config": map[string]any{"thinking_budget": 2048, "include_thoughts": true},
			}}},
		},
		{
			name: "middleware provider",
			spec: service.ModelSpec{Provider: "groq", Model: "deepseek-r1-distill-llama-70b", APIKey: "k", SupportsThinking: true},
		},
		{
			name: "ollama without key",
			spec: service.ModelSpec{Provider: "ollama", Model: "qwen3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := r.BuildModel(ctx, tt.spec)
			require.NoError(t, err)
			require.NotNil(t, h.Chat)

			assert.Equal(t, tt.wantNative, h.HasNativeThinking)
			assert.Equal(t, tt.wantOpts, h.ProviderOptions)

			_, wrapped := h.Chat.(*reasoningExtractor)
			assert.Equal(t, !tt.wantNative, wrapped, "middleware iff no native thinking")
			if tt.wantOpts == nil {
				assert.Len(t, h.CallOptions, 1)
			} else {
				assert.Len(t, h.CallOptions, 2)
			}
		})
	}
}

func TestBuildModelUnknownProvider(t *testing.T) {
	r := newTestRegistry()
	_, err := r.BuildModel(context.Background(), service.ModelSpec{Provider: "acme", Model: "m"})

	var mce *ModelConstructionError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, "acme", mce.Provider)
	assert.Equal(t, "m", mce.Model)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestBuildModelCachesOnlyBuiltinKeys(t *testing.T) {
	r := newTestRegistry()
	ctx := context.Background()

	_, err := r.BuildModel(ctx, service.ModelSpec{Provider: "openai", Model: "gpt-4o", APIKey: "sk-builtin"})
	require.NoError(t, err)
	_, err = r.BuildModel(ctx, service.ModelSpec{Provider: "openai", Model: "gpt-4o", APIKey: "sk-builtin"})
	require.NoError(t, err)
	_, err = r.BuildModel(ctx, service.ModelSpec{Provider: "openai", Model: "gpt-4o", APIKey: "sk-user"})
	require.NoError(t, err)

	assert.Len(t, r.models, 1)
}

func TestBuildModelConstructorFailure(t *testing.T) {
	r := newTestRegistry()
	r.Register(ProviderDefinition{
		ID: "broken", RequiresKey: true,
		New: func(context.Context, ConstructParams) (model.ToolCallingChatModel, error) {
			return nil, errors.New("bad base url")
		},
	})

	_, err := r.BuildModel(context.Background(), service.ModelSpec{Provider: "broken", Model: "x", APIKey: "k"})
	var mce *ModelConstructionError
	require.ErrorAs(t, err, &mce)
	assert.Contains(t, err.Error(), "broken/x")
}

func TestReasoningTag(t *testing.T) {
	assert.Equal(t, "think", ReasoningTag("deepseek", "deepseek-chat"))
	assert.Equal(t, "think", ReasoningTag("groq", "deepseek-r1-distill-llama-70b"))
	assert.Equal(t, "think", ReasoningTag("openrouter", "qwen/qwq-32b"))
	assert.Equal(t, "thinking", ReasoningTag("mistral", "mistral-large-latest"))
}
