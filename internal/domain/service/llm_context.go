// Package service 定义跨层的领域服务契约
package service

import (
	"context"
	"strings"
)

type llmCtxKey string

const (
	llmCtxKeyProvider llmCtxKey = "llm_provider"
	llmCtxKeyModel    llmCtxKey = "llm_model"
	llmCtxKeyMode     llmCtxKey = "llm_mode"
)

// WithProvider 记录当前调用的提供商，供 eino 回调打标签
func WithProvider(ctx context.Context, provider string) context.Context {
	return withValue(ctx, llmCtxKeyProvider, provider)
}

// WithModel 记录当前调用的模型
func WithModel(ctx context.Context, model string) context.Context {
	return withValue(ctx, llmCtxKeyModel, model)
}

// WithMode 记录生成模式（stream/sync）
func WithMode(ctx context.Context, mode string) context.Context {
	return withValue(ctx, llmCtxKeyMode, mode)
}

// WithGeneration 一次性写入提供商、模型与模式
func WithGeneration(ctx context.Context, provider, model, mode string) context.Context {
	return WithMode(WithModel(WithProvider(ctx, provider), model), mode)
}

func withValue(ctx context.Context, key llmCtxKey, value string) context.Context {
	if ctx == nil {
		return nil
	}
	v := strings.TrimSpace(value)
	if v == "" {
		return ctx
	}
	return context.WithValue(ctx, key, v)
}

func ProviderFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyProvider)
}

func ModelFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyModel)
}

func ModeFromContext(ctx context.Context) string {
	return valueOrUnknown(ctx, llmCtxKeyMode)
}

func valueOrUnknown(ctx context.Context, key llmCtxKey) string {
	if ctx == nil {
		return "unknown"
	}
	s, ok := ctx.Value(key).(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
