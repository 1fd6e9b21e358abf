package llm

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// 已支持的提供商
const (
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGoogle     = "google"
	ProviderXAI        = "xai"
	ProviderDeepSeek   = "deepseek"
	ProviderGroq       = "groq"
	ProviderMistral    = "mistral"
	ProviderOpenRouter = "openrouter"
	ProviderOllama     = "ollama"
)

// ConstructParams 构建单个模型客户端的参数
type ConstructParams struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Constructor 提供商构建函数
type Constructor func(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error)

// ProviderDefinition 注册表中的一个提供商
type ProviderDefinition struct {
	ID             string
	DisplayName    string
	DefaultBaseURL string
	// EnvKey 配置中未提供密钥时读取的环境变量
	EnvKey      string
	RequiresKey bool
	Family      ThinkingFamily
	New         Constructor
}

// builtinProviders 内置的九个提供商，均通过 OpenAI 兼容接口接入
func builtinProviders() []ProviderDefinition {
	return []ProviderDefinition{
		{
			ID: ProviderOpenAI, DisplayName: "OpenAI",
			DefaultBaseURL: "https://api.openai.com/v1",
			EnvKey:         "OPENAI_API_KEY", RequiresKey: true,
			Family: FamilyReasoningEffort, New: newOpenAI,
		},
		{
			ID: ProviderAnthropic, DisplayName: "Anthropic",
			DefaultBaseURL: "https://api.anthropic.com/v1/",
			EnvKey:         "ANTHROPIC_API_KEY", RequiresKey: true,
			Family: FamilyTokenBudget, New: newAnthropic,
		},
		{
			ID: ProviderGoogle, DisplayName: "Google Gemini",
			DefaultBaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
			EnvKey:         "GEMINI_API_KEY", RequiresKey: true,
			Family: FamilyThinkingConfig, New: newGoogle,
		},
		{
			ID: ProviderXAI, DisplayName: "xAI",
			DefaultBaseURL: "https://api.x.ai/v1",
			EnvKey:         "XAI_API_KEY", RequiresKey: true,
			Family: FamilyReasoningEffort, New: newXAI,
		},
		{
			ID: ProviderDeepSeek, DisplayName: "DeepSeek",
			DefaultBaseURL: "https://api.deepseek.com/v1",
			EnvKey:         "DEEPSEEK_API_KEY", RequiresKey: true,
			Family: FamilyNone, New: newDeepSeek,
		},
		{
			ID: ProviderGroq, DisplayName: "Groq",
			DefaultBaseURL: "https://api.groq.com/openai/v1",
			EnvKey:         "GROQ_API_KEY", RequiresKey: true,
			Family: FamilyNone, New: newGroq,
		},
		{
			ID: ProviderMistral, DisplayName: "Mistral",
			DefaultBaseURL: "https://api.mistral.ai/v1",
			EnvKey:         "MISTRAL_API_KEY", RequiresKey: true,
			Family: FamilyNone, New: newMistral,
		},
		{
			ID: ProviderOpenRouter, DisplayName: "OpenRouter",
			DefaultBaseURL: "https://openrouter.ai/api/v1",
			EnvKey:         "OPENROUTER_API_KEY", RequiresKey: true,
			Family: FamilyNone, New: newOpenRouter,
		},
		{
			ID: ProviderOllama, DisplayName: "Ollama",
			DefaultBaseURL: "http://localhost:11434/v1",
			RequiresKey:    false,
			Family:         FamilyNone, New: newOllama,
		},
	}
}

func newOpenAI(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, nil)
}

// Anthropic 的 OpenAI 兼容端点需要版本头
func newAnthropic(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, map[string]string{
		"anthropic-version": "2023-06-01",
	})
}

// Gemini 兼容端点使用 Bearer 形式的 API Key
func newGoogle(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, map[string]string{
		"x-goog-api-client": "z-chat-ai-api",
	})
}

func newXAI(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, nil)
}

func newDeepSeek(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, nil)
}

func newGroq(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, nil)
}

func newMistral(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, nil)
}

// OpenRouter 通过 Referer/Title 标识调用方应用
func newOpenRouter(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	return newCompatible(ctx, p, map[string]string{
		"HTTP-Referer": "https://github.com/z-chat-ai-api",
		"X-Title":      "z-chat-ai-api",
	})
}

// Ollama 本地服务不校验密钥，但兼容端点要求 Authorization 头非空
func newOllama(ctx context.Context, p ConstructParams) (model.ToolCallingChatModel, error) {
	if p.APIKey == "" {
		p.APIKey = "ollama"
	}
	return newCompatible(ctx, p, nil)
}

// newCompatible 使用 Eino 的 OpenAI 适配器构建客户端
func newCompatible(ctx context.Context, p ConstructParams, headers map[string]string) (model.ToolCallingChatModel, error) {
	client := &http.Client{Timeout: p.Timeout}
	if len(headers) > 0 {
		client.Transport = &headerTransport{base: http.DefaultTransport, headers: headers}
	}

	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:     p.APIKey,
		BaseURL:    p.BaseURL,
		Model:      p.Model,
		Timeout:    p.Timeout,
		HTTPClient: client,
	})
	if err != nil {
		return nil, err
	}
	return cm, nil
}

// headerTransport 为每个请求附加固定请求头
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	cp := req.Clone(req.Context())
	for k, v := range t.headers {
		cp.Header.Set(k, v)
	}
	return t.base.RoundTrip(cp)
}
