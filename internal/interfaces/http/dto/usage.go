package dto

import (
	"time"

	"z-chat-ai-api/internal/domain/entity"
)

// UsageResponse 额度使用情况
type UsageResponse struct {
	PlanTier           string    `json:"planTier"`
	CreditsUsed        int64     `json:"creditsUsed"`
	CreditsLimit       int64     `json:"creditsLimit"`
	CreditsRemaining   int64     `json:"creditsRemaining"`
	DollarsSpent       float64   `json:"dollarsSpent"`
	MaxSpendingDollars float64   `json:"maxSpendingDollars"`
	ResetAt            time.Time `json:"resetAt"`
}

// NewUsageResponse 由额度记录构造响应
func NewUsageResponse(r *entity.UsageRecord) *UsageResponse {
	return &UsageResponse{
		PlanTier:           r.PlanTier,
		CreditsUsed:        r.CreditsUsed,
		CreditsLimit:       r.CreditsLimit,
		CreditsRemaining:   r.AvailableCredits(),
		DollarsSpent:       r.DollarsSpent,
		MaxSpendingDollars: r.MaxSpendingDollars,
		ResetAt:            r.ResetAt,
	}
}

// DefaultModelResponse 提供商默认模型
type DefaultModelResponse struct {
	Provider    string `json:"provider"`
	DisplayName string `json:"displayName"`
	Model       string `json:"model"`
}

// ProviderResponse 提供商概览
type ProviderResponse struct {
	ID           string `json:"id"`
	DisplayName  string `json:"displayName"`
	DefaultModel string `json:"defaultModel"`
	RequiresKey  bool   `json:"requiresKey"`
}

// PreferencesRequest 更新生成偏好
type PreferencesRequest struct {
	CustomSystemPrompt    string `json:"customSystemPrompt" binding:"max=8000"`
	UseCustomSystemPrompt bool   `json:"useCustomSystemPrompt"`
	CustomInstructions    string `json:"customInstructions" binding:"max=4000"`
	SaveToolMessages      bool   `json:"saveToolMessages"`
}

// CredentialRequest 保存用户自带密钥，空值表示删除
type CredentialRequest struct {
	APIKey string `json:"apiKey" binding:"max=512"`
}
