// Package llm 提供多提供商模型注册表与推理抽取中间件
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/service"
)

// FallbackModel 提供商未配置且全局默认模型为空时的兜底
const FallbackModel = "gpt-4o-mini"

// Registry 提供商注册表，按提供商构建模型句柄
type Registry struct {
	config    *config.LLMConfig
	catalog   service.ModelCatalog
	providers map[string]ProviderDefinition
	getenv    func(string) string

	// 仅缓存使用内置密钥的客户端，用户自带密钥不共享实例
	models map[string]model.ToolCallingChatModel
	mu     sync.RWMutex
}

// NewRegistry 创建注册表并注册内置提供商
func NewRegistry(cfg *config.Config, catalog service.ModelCatalog) *Registry {
	r := &Registry{
		config:    &cfg.LLM,
		catalog:   catalog,
		providers: make(map[string]ProviderDefinition),
		getenv:    os.Getenv,
		models:    make(map[string]model.ToolCallingChatModel),
	}
	for _, def := range builtinProviders() {
		r.Register(def)
	}
	return r
}

// Register 注册或替换提供商
func (r *Registry) Register(def ProviderDefinition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[def.ID] = def
}

// Provider 查找提供商定义
func (r *Registry) Provider(id string) (ProviderDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.providers[id]
	return def, ok
}

// Providers 返回已注册的提供商 ID（有序）
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.providers))
	for id := range r.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// DisplayName 用于面向用户的提示文案
func (r *Registry) DisplayName(provider string) string {
	if def, ok := r.Provider(provider); ok && def.DisplayName != "" {
		return def.DisplayName
	}
	return provider
}

// RequiresKey 提供商是否必须提供密钥
func (r *Registry) RequiresKey(provider string) bool {
	def, ok := r.Provider(provider)
	return ok && def.RequiresKey
}

// ValidateModel 校验提供商与模型是已知组合
func (r *Registry) ValidateModel(provider, modelName string) error {
	if _, ok := r.Provider(provider); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}
	if r.catalog != nil {
		if info, ok := r.catalog.GetModelInfo(modelName); ok {
			if info.Provider == provider {
				return nil
			}
			return fmt.Errorf("%w: %s belongs to %s, not %s", ErrUnknownModel, modelName, info.Provider, provider)
		}
	}
	for _, m := range r.config.Providers[provider].Models {
		if m == modelName {
			return nil
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownModel, provider, modelName)
}

// GetDefaultModel 返回提供商配置的第一个模型，未配置时返回全局兜底模型
func (r *Registry) GetDefaultModel(provider string) string {
	if pc, ok := r.config.Providers[provider]; ok && len(pc.Models) > 0 {
		return pc.Models[0]
	}
	if r.config.DefaultModel != "" {
		return r.config.DefaultModel
	}
	return FallbackModel
}

// GetProviderAPIKey 用户密钥优先于内置/环境变量密钥
// 未找到任何密钥时返回空字符串，由调用方决定是否报错
func (r *Registry) GetProviderAPIKey(provider, userKey string) (string, bool) {
	if k := strings.TrimSpace(userKey); k != "" {
		return k, true
	}
	return r.builtinKey(provider), false
}

func (r *Registry) builtinKey(provider string) string {
	if k := strings.TrimSpace(r.config.Providers[provider].APIKey); k != "" {
		return k
	}
	if def, ok := r.Provider(provider); ok && def.EnvKey != "" {
		return strings.TrimSpace(r.getenv(def.EnvKey))
	}
	return ""
}

// BuildModel 构建模型句柄与提供商专属推理配置
// 原生推理不可用时包裹推理抽取中间件，二者不会同时生效
func (r *Registry) BuildModel(ctx context.Context, spec service.ModelSpec) (*service.ModelHandle, error) {
	def, ok := r.Provider(spec.Provider)
	if !ok {
		return nil, &ModelConstructionError{
			Provider: spec.Provider, Model: spec.Model,
			Err: fmt.Errorf("%w: %s", ErrUnknownProvider, spec.Provider),
		}
	}

	chat, err := r.chatModel(ctx, def, spec)
	if err != nil {
		return nil, &ModelConstructionError{Provider: spec.Provider, Model: spec.Model, Err: err}
	}

	handle := &service.ModelHandle{
		Provider:          spec.Provider,
		Model:             spec.Model,
		Chat:              chat,
		HasNativeThinking: def.Family.HasNativeThinking(),
	}

	temperature := spec.Temperature
	if def.Family.HasNativeThinking() {
		handle.ProviderOptions = thinkingOptions(def.Family, spec.ThinkingBudget, spec.SupportsThinking)
		// Anthropic 开启 thinking 时只接受 temperature=1
		if def.Family == FamilyTokenBudget && handle.ProviderOptions != nil {
			temperature = 1
		}
	} else {
		handle.Chat = WithReasoningExtraction(chat, ReasoningTag(spec.Provider, spec.Model))
	}

	handle.CallOptions = []model.Option{model.WithTemperature(float32(temperature))}
	if len(handle.ProviderOptions) > 0 {
		handle.CallOptions = append(handle.CallOptions, openai.WithExtraFields(handle.ProviderOptions))
	}

	return handle, nil
}

// chatModel 获取或构建底层客户端
func (r *Registry) chatModel(ctx context.Context, def ProviderDefinition, spec service.ModelSpec) (model.ToolCallingChatModel, error) {
	params := ConstructParams{
		Model:   spec.Model,
		APIKey:  spec.APIKey,
		BaseURL: r.baseURL(def, spec.BaseURL),
		Timeout: r.config.Providers[def.ID].Timeout,
	}

	if params.APIKey == "" || params.APIKey != r.builtinKey(def.ID) {
		return def.New(ctx, params)
	}

	key := cacheKey(def.ID, params)

	r.mu.RLock()
	m, ok := r.models[key]
	r.mu.RUnlock()
	if ok {
		return m, nil
	}

	// 惰性加载
	r.mu.Lock()
	defer r.mu.Unlock()

	// 再次检查防止竞态
	if m, ok = r.models[key]; ok {
		return m, nil
	}

	m, err := def.New(ctx, params)
	if err != nil {
		return nil, err
	}
	r.models[key] = m
	return m, nil
}

func (r *Registry) baseURL(def ProviderDefinition, override string) string {
	if override != "" {
		return override
	}
	if u := r.config.Providers[def.ID].BaseURL; u != "" {
		return u
	}
	return def.DefaultBaseURL
}

func cacheKey(provider string, p ConstructParams) string {
	sum := sha256.Sum256([]byte(p.APIKey))
	return provider + "|" + p.Model + "|" + p.BaseURL + "|" + hex.EncodeToString(sum[:8])
}
