package llm

import (
	"strings"

	"z-chat-ai-api/internal/domain/entity"
)

// ThinkingFamily 提供商原生推理配置的形态
type ThinkingFamily int

const (
	// FamilyNone 无原生推理，使用标签抽取中间件
	FamilyNone ThinkingFamily = iota
	// FamilyReasoningEffort 符号等级 reasoning_effort
	FamilyReasoningEffort
	// FamilyTokenBudget thinking.budget_tokens
	FamilyTokenBudget
	// FamilyThinkingConfig thinking_config{thinking_budget, include_thoughts}
	FamilyThinkingConfig
)

// HasNativeThinking 是否由提供商原生返回推理内容
func (f ThinkingFamily) HasNativeThinking() bool {
	return f != FamilyNone
}

const (
	DefaultTokenBudget    = 15000
	DefaultThinkingConfig = 2048
)

var (
	tokenBudgetByLevel = map[entity.ThinkingLevel]int{
		entity.ThinkingLow:    4096,
		entity.ThinkingMedium: DefaultTokenBudget,
		entity.ThinkingHigh:   32000,
	}
	thinkingConfigByLevel = map[entity.ThinkingLevel]int{
		entity.ThinkingLow:    1024,
		entity.ThinkingMedium: DefaultThinkingConfig,
		entity.ThinkingHigh:   8192,
	}
)

// reasoningMarkers 出现在提供商或模型名中即视为 <think> 风格的推理模型
var reasoningMarkers = []string{"deepseek", "r1", "qwq", "qwen3"}

// thinkingOptions 生成提供商专属的推理请求字段
// 未显式指定预算且模型不支持推理时返回 nil
func thinkingOptions(family ThinkingFamily, budget entity.ThinkingBudget, supportsThinking bool) map[string]any {
	if !budget.IsSet() && !supportsThinking {
		return nil
	}

	switch family {
	case FamilyReasoningEffort:
		return map[string]any{
			"reasoning_effort": string(effortLevel(budget)),
		}
	case FamilyTokenBudget:
		return map[string]any{
			"thinking": map[string]any{
				"type":          "enabled",
				"budget_tokens": budgetTokens(budget, tokenBudgetByLevel, DefaultTokenBudget),
			},
		}
	case FamilyThinkingConfig:
		return map[string]any{
			"extra_body": map[string]any{
				"google": map[string]any{
					"thinking_config": map[string]any{
						"thinking_budget":  budgetTokens(budget, thinkingConfigByLevel, DefaultThinkingConfig),
						"include_thoughts": true,
					},
				},
			},
		}
	default:
		return nil
	}
}

// effortLevel 数字预算按区间映射到等级，默认 medium
func effortLevel(budget entity.ThinkingBudget) entity.ThinkingLevel {
	switch {
	case budget.Level != "":
		return budget.Level
	case budget.Tokens <= 0:
		return entity.ThinkingMedium
	case budget.Tokens <= 4096:
		return entity.ThinkingLow
	case budget.Tokens <= 16384:
		return entity.ThinkingMedium
	default:
		return entity.ThinkingHigh
	}
}

func budgetTokens(budget entity.ThinkingBudget, byLevel map[entity.ThinkingLevel]int, def int) int {
	if budget.Tokens > 0 {
		return budget.Tokens
	}
	if n, ok := byLevel[budget.Level]; ok {
		return n
	}
	return def
}

// ReasoningTag 选择抽取中间件使用的标签名
func ReasoningTag(provider, model string) string {
	name := strings.ToLower(provider + " " + model)
	for _, m := range reasoningMarkers {
		if strings.Contains(name, m) {
			return "think"
		}
	}
	return "thinking"
}
