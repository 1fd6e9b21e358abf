package chat

import (
	"strings"

	"github.com/cloudwego/eino/schema"

	"z-chat-ai-api/internal/domain/entity"
)

// DefaultSystemPrompt 未启用自定义提示词时的默认人设
const DefaultSystemPrompt = "You are a helpful and knowledgeable assistant. Answer clearly and accurately, use Markdown when it improves readability, and say so when you are not sure."

const instructionsLabel = "User's custom instructions:"

// BuildSystemPrompt 组合系统提示词与用户自定义指令
func BuildSystemPrompt(prefs *entity.UserPreferences, instructions string) string {
	prompt := DefaultSystemPrompt
	if prefs != nil && prefs.UseCustomSystemPrompt && strings.TrimSpace(prefs.CustomSystemPrompt) != "" {
		prompt = strings.TrimSpace(prefs.CustomSystemPrompt)
	}
	if s := strings.TrimSpace(instructions); s != "" {
		prompt += "\n\n" + instructionsLabel + "\n" + s
	}
	return prompt
}

// InjectSystemPrompt 不存在 system 消息时在首位插入一条，已存在时原样返回
func InjectSystemPrompt(msgs []*schema.Message, prompt string) []*schema.Message {
	for _, m := range msgs {
		if m.Role == schema.System {
			return msgs
		}
	}
	out := make([]*schema.Message, 0, len(msgs)+1)
	out = append(out, schema.SystemMessage(prompt))
	return append(out, msgs...)
}
