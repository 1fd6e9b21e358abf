package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// GenerationMetrics 一次完成生成的统计信息，创建后不再修改
type GenerationMetrics struct {
	Provider         string  `json:"provider"`
	Model            string  `json:"model"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TokensUsed       int     `json:"tokensUsed"`
	GenerationTimeMs int64   `json:"generationTimeMs"`
	TokensPerSecond  float64 `json:"tokensPerSecond"`
	Temperature      float64 `json:"temperature"`
}

// Value 实现 driver.Valuer
func (m GenerationMetrics) Value() (driver.Value, error) { return jsonValue(m) }

// Scan 实现 sql.Scanner
func (m *GenerationMetrics) Scan(src any) error { return jsonScan(src, m) }

// TokenUsage 提供商上报的 token 用量
type TokenUsage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Add 累加多步调用的用量
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
		TotalTokens:      u.TotalTokens + o.TotalTokens,
	}
}

// Total 优先返回上报的总数，否则按分项求和
func (u TokenUsage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}

// ThinkingLevel 符号化的推理强度
type ThinkingLevel string

const (
	ThinkingLow    ThinkingLevel = "low"
	ThinkingMedium ThinkingLevel = "medium"
	ThinkingHigh   ThinkingLevel = "high"
)

// ThinkingBudget 推理预算：符号等级或 token 数，二者取其一
type ThinkingBudget struct {
	Level  ThinkingLevel
	Tokens int
}

// IsSet 是否显式指定了预算
func (b ThinkingBudget) IsSet() bool {
	return b.Level != "" || b.Tokens > 0
}

// String 便于日志输出
func (b ThinkingBudget) String() string {
	switch {
	case b.Level != "":
		return string(b.Level)
	case b.Tokens > 0:
		return strconv.Itoa(b.Tokens)
	default:
		return ""
	}
}

// MarshalJSON 等级编码为字符串，token 数编码为数字
func (b ThinkingBudget) MarshalJSON() ([]byte, error) {
	switch {
	case b.Level != "":
		return json.Marshal(string(b.Level))
	case b.Tokens > 0:
		return json.Marshal(b.Tokens)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON 接受 "low"/"medium"/"high"、数字字符串或数字
func (b *ThinkingBudget) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*b = ThinkingBudget{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		parsed, err := ParseThinkingBudget(s)
		if err != nil {
			return err
		}
		*b = parsed
		return nil
	}
	var n float64
	if err := json.Unmarshal(trimmed, &n); err != nil {
		return fmt.Errorf("thinking budget must be a level or a number: %w", err)
	}
	if n < 0 {
		return fmt.Errorf("thinking budget must not be negative")
	}
	*b = ThinkingBudget{Tokens: int(n)}
	return nil
}

// ParseThinkingBudget 解析字符串形式的预算
func ParseThinkingBudget(s string) (ThinkingBudget, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch ThinkingLevel(s) {
	case "":
		return ThinkingBudget{}, nil
	case ThinkingLow, ThinkingMedium, ThinkingHigh:
		return ThinkingBudget{Level: ThinkingLevel(s)}, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return ThinkingBudget{}, fmt.Errorf("unknown thinking budget %q", s)
	}
	return ThinkingBudget{Tokens: n}, nil
}

// GenerationState 会话的生成进行中状态
type GenerationState struct {
	ConversationID string    `json:"conversationId"`
	InProgress     bool      `json:"inProgress"`
	MessageID      string    `json:"messageId,omitempty"`
	UpdatedAt      time.Time `json:"updatedAt"`
}
