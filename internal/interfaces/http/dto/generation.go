package dto

import (
	"strings"

	"z-chat-ai-api/internal/application/chat"
	"z-chat-ai-api/internal/domain/entity"
)

// MessageInput 请求中的历史消息
type MessageInput struct {
	Role        string                `json:"role" binding:"required,oneof=system user assistant tool"`
	Content     entity.MessageContent `json:"content"`
	Attachments []AttachmentInput     `json:"attachments,omitempty" binding:"omitempty,max=16,dive"`
	ToolCalls   entity.ToolCalls      `json:"toolCalls,omitempty"`
	ToolCallID  string                `json:"toolCallId,omitempty"`
	IsError     bool                  `json:"isError,omitempty"`
}

// AttachmentInput 附件引用
type AttachmentInput struct {
	Type       string `json:"type" binding:"required,oneof=image video audio document text"`
	StorageRef string `json:"storageRef" binding:"required,max=255"`
	Name       string `json:"name,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	Messages       []MessageInput        `json:"messages" binding:"required,min=1,max=500,dive"`
	BranchID       string                `json:"branchId,omitempty" binding:"max=64"`
	Provider       string                `json:"provider,omitempty" binding:"max=32"`
	Model          string                `json:"model,omitempty" binding:"max=128"`
	Temperature    *float64              `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	EnabledTools   []string              `json:"enabledTools,omitempty" binding:"max=16"`
	ThinkingBudget entity.ThinkingBudget `json:"thinkingBudget"`
}

// ToDomain 转换为编排器请求
func (r *GenerateRequest) ToDomain(conversationID, userID string) *chat.GenerateRequest {
	msgs := make([]*entity.Message, 0, len(r.Messages))
	for i := range r.Messages {
		in := r.Messages[i]
		msg := &entity.Message{
			ConversationID: conversationID,
			BranchID:       r.BranchID,
			UserID:         userID,
			Role:           entity.Role(in.Role),
			Content:        in.Content,
			ToolCalls:      in.ToolCalls,
			ToolCallID:     in.ToolCallID,
			IsError:        in.IsError,
		}
		for _, a := range in.Attachments {
			msg.Attachments = append(msg.Attachments, entity.Attachment{
				Type:       entity.AttachmentType(a.Type),
				StorageRef: a.StorageRef,
				Name:       a.Name,
				MimeType:   a.MimeType,
			})
		}
		msgs = append(msgs, msg)
	}

	return &chat.GenerateRequest{
		ConversationID: conversationID,
		BranchID:       r.BranchID,
		UserID:         userID,
		Messages:       msgs,
		Provider:       strings.TrimSpace(r.Provider),
		Model:          strings.TrimSpace(r.Model),
		Temperature:    r.Temperature,
		EnabledTools:   r.EnabledTools,
		ThinkingBudget: r.ThinkingBudget,
	}
}

// StopResponse 停止响应
type StopResponse struct {
	ConversationID string `json:"conversationId"`
	// Aborted 本实例上是否有生成被立即中止
	Aborted bool `json:"aborted"`
}

// StreamTextEvent text / reasoning 事件负载
type StreamTextEvent struct {
	Delta string `json:"delta"`
}

// StreamToolEvent tool_call / tool_result 事件负载
type StreamToolEvent struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Args   string `json:"args,omitempty"`
	Result string `json:"result,omitempty"`
}

// StreamErrorEvent error 事件负载
type StreamErrorEvent struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	MessageID string `json:"messageId,omitempty"`
}
