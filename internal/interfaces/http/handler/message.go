package handler

import (
	"github.com/gin-gonic/gin"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
	"z-chat-ai-api/internal/interfaces/http/dto"
	"z-chat-ai-api/internal/interfaces/http/middleware"
	apperrors "z-chat-ai-api/pkg/errors"
	"z-chat-ai-api/pkg/logger"
)

// MessageHandler 会话消息查询
type MessageHandler struct {
	messages repository.MessageRepository
}

// NewMessageHandler 创建消息处理器
func NewMessageHandler(messages repository.MessageRepository) *MessageHandler {
	return &MessageHandler{messages: messages}
}

// ListMessages 按创建顺序列出分支上的消息，生成中的助手消息包含当前已落库的部分内容
// @Summary 会话消息
// @Tags Messages
// @Produce json
// @Param id path string true "会话 ID"
// @Param branch query string false "分支 ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} dto.Response[[]entity.Message]
// @Router /v1/conversations/{id}/messages [get]
func (h *MessageHandler) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	convID := dto.BindConversationID(c)
	branch := c.DefaultQuery("branch", entity.DefaultBranchID)
	page := dto.BindPage(c)

	result, err := h.messages.ListByConversation(ctx, convID, branch, repository.NewPagination(page.Page, page.PageSize))
	if err != nil {
		logger.Error(ctx, "failed to list messages", err, "conversation_id", convID)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeDatabaseError, "failed to list messages"))
		return
	}

	// 仅返回当前用户自己的消息
	userID := middleware.GetUserIDFromGin(c)
	items := make([]*entity.Message, 0, len(result.Items))
	for _, m := range result.Items {
		if m.UserID == "" || m.UserID == userID {
			items = append(items, m)
		}
	}
	dto.SuccessWithPage(c, items, dto.NewPageMeta(result.Page, result.PageSize, result.Total))
}
