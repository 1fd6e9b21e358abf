package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Target 错误文案中引用的提供商与模型
type Target struct {
	Provider    string
	DisplayName string
	Model       string
}

func (t Target) name() string {
	if t.DisplayName != "" {
		return t.DisplayName
	}
	if t.Provider != "" {
		return t.Provider
	}
	return "the provider"
}

// 错误分类
const (
	KindTimeout       = "timeout"
	KindCancelled     = "cancelled"
	KindAuth          = "auth"
	KindForbidden     = "forbidden"
	KindRateLimit     = "rate_limit"
	KindQuota         = "quota"
	KindNetwork       = "network"
	KindModelNotFound = "model_not_found"
	KindContentSafety = "content_safety"
	KindGeneric       = "generic"
)

type classifyRule struct {
	kind    string
	match   func(err error, msg string, t Target) bool
	message func(t Target, usingUserKey bool, raw string) string
}

// 规则按顺序匹配，先命中者生效
// 例如 OpenAI 的 429 "exceeded your current quota" 归为限流而非账单
var classifyRules = []classifyRule{
	{
		kind: KindTimeout,
		match: func(err error, msg string, _ Target) bool {
			return errors.Is(err, ErrGenerationTimeout) || errors.Is(err, context.DeadlineExceeded) ||
				containsAny(msg, "timeout", "timed out", "deadline exceeded")
		},
		message: func(t Target, _ bool, _ string) string {
			return fmt.Sprintf("The request to %s (%s) timed out. Please try again, or switch to a faster model.", t.name(), t.Model)
		},
	},
	{
		kind: KindCancelled,
		match: func(err error, msg string, _ Target) bool {
			return errors.Is(err, ErrUserCancelled) || errors.Is(err, context.Canceled) ||
				containsAny(msg, "abort", "cancel")
		},
		message: func(t Target, _ bool, _ string) string {
			return fmt.Sprintf("The request to %s was cancelled before it finished.", t.name())
		},
	},
	{
		kind: KindAuth,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "401", "unauthorized", "invalid api key", "invalid_api_key", "incorrect api key", "authentication")
		},
		message: func(t Target, usingUserKey bool, _ string) string {
			if usingUserKey {
				return fmt.Sprintf("Your %s API key was rejected. Please check that the key is correct and still active.", t.name())
			}
			return fmt.Sprintf("Authentication with %s failed. Please try again later, or add your own API key in settings.", t.name())
		},
	},
	{
		kind: KindForbidden,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "403", "forbidden", "permission denied", "not allowed")
		},
		message: func(t Target, _ bool, _ string) string {
			return fmt.Sprintf("Access to %s on %s was denied. The API key may not have permission to use this model; try a different model.", t.Model, t.name())
		},
	},
	{
		kind: KindRateLimit,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "429", "rate limit", "rate_limit", "ratelimit", "too many requests")
		},
		message: func(t Target, usingUserKey bool, _ string) string {
			if usingUserKey {
				return fmt.Sprintf("%s rate limit reached for your API key. Please wait a moment and try again.", t.name())
			}
			return fmt.Sprintf("%s is receiving too many requests right now. Please wait a moment and try again, or add your own API key to avoid shared limits.", t.name())
		},
	},
	{
		kind: KindQuota,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "quota", "billing", "insufficient_quota", "payment required", "402", "credit balance")
		},
		message: func(t Target, usingUserKey bool, _ string) string {
			if usingUserKey {
				return fmt.Sprintf("Your %s account has run out of quota. Please check your billing details with %s.", t.name(), t.name())
			}
			return fmt.Sprintf("The shared %s quota is exhausted. Please try again later, or add your own API key.", t.name())
		},
	},
	{
		kind: KindNetwork,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "connection refused", "connection reset", "no such host", "network", "dial tcp", "unexpected eof", "tls handshake", "broken pipe")
		},
		message: func(t Target, _ bool, _ string) string {
			return fmt.Sprintf("Could not reach %s. Please check your connection and try again.", t.name())
		},
	},
	{
		kind: KindModelNotFound,
		match: func(_ error, msg string, _ Target) bool {
			return containsAny(msg, "404", "model_not_found", "model not found", "does not exist", "not found")
		},
		message: func(t Target, _ bool, _ string) string {
			return fmt.Sprintf("The model %s is not available on %s. Please switch to a different model.", t.Model, t.name())
		},
	},
	{
		kind: KindContentSafety,
		match: func(_ error, msg string, t Target) bool {
			return safetyProvider(msg, t.Provider) != ""
		},
		message: func(t Target, _ bool, raw string) string {
			switch safetyProvider(strings.ToLower(raw), t.Provider) {
			case "openai":
				return "OpenAI's content policy flagged this request. Please rephrase it and try again."
			case "anthropic":
				return "Anthropic's content filtering blocked this response. Please rephrase your request."
			case "google":
				return "Google Gemini stopped this response for safety reasons. Please rephrase your request or try a different model."
			default:
				return fmt.Sprintf("%s filtered this response. Please rephrase your request.", t.name())
			}
		},
	},
}

// 各提供商的安全拦截措辞
var safetyPatterns = map[string][]string{
	"openai":    {"content_policy", "content policy", "flagged"},
	"anthropic": {"content filtering", "output blocked", "harmful content"},
	"google":    {"safety", "recitation", "prohibited_content", "blocklist"},
}

var genericSafetyPatterns = []string{"content filter", "content_filter", "moderation"}

func safetyProvider(msg, provider string) string {
	if containsAny(msg, safetyPatterns[provider]...) {
		return provider
	}
	if containsAny(msg, genericSafetyPatterns...) {
		return "generic"
	}
	return ""
}

// Classify 将原始错误转成面向用户的提示
func Classify(err error, t Target, usingUserKey bool) string {
	_, msg := classify(err, t, usingUserKey)
	return msg
}

// ClassifyKind 返回命中的规则类别
func ClassifyKind(err error, t Target) string {
	kind, _ := classify(err, t, false)
	return kind
}

func classify(err error, t Target, usingUserKey bool) (string, string) {
	if err == nil {
		return KindGeneric, ""
	}
	raw := err.Error()
	lower := strings.ToLower(raw)
	for _, r := range classifyRules {
		if r.match(err, lower, t) {
			return r.kind, r.message(t, usingUserKey, raw)
		}
	}

	msg := fmt.Sprintf("%s (%s) returned an error: %s.", t.name(), t.Model, strings.TrimRight(raw, ". "))
	if !usingUserKey {
		msg += " If this keeps happening, try adding your own API key."
	}
	return KindGeneric, msg
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
