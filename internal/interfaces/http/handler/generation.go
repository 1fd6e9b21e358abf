// Package handler 提供 HTTP 请求处理器
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"z-chat-ai-api/internal/application/chat"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/interfaces/http/dto"
	"z-chat-ai-api/internal/interfaces/http/middleware"
	apperrors "z-chat-ai-api/pkg/errors"
	"z-chat-ai-api/pkg/logger"
)

// SSE 事件名
const (
	sseText       = "text"
	sseReasoning  = "reasoning"
	sseToolCall   = "tool_call"
	sseToolResult = "tool_result"
	sseDone       = "done"
	sseError      = "error"
)

// Generator 生成编排器
type Generator interface {
	Stream(ctx context.Context, req *chat.GenerateRequest, observer chat.Observer) (*chat.GenerateResult, error)
	Complete(ctx context.Context, req *chat.GenerateRequest) (*chat.GenerateResult, error)
	Stop(ctx context.Context, conversationID string) (bool, error)
	GenerationState(ctx context.Context, conversationID string) (*entity.GenerationState, error)
}

// GenerationHandler 生成相关接口
type GenerationHandler struct {
	gen Generator
	// bufferSize 事件缓冲，客户端读得慢时生成会在缓冲满后等待
	bufferSize int
}

// NewGenerationHandler 创建生成处理器
func NewGenerationHandler(gen Generator) *GenerationHandler {
	return &GenerationHandler{gen: gen, bufferSize: 64}
}

type streamOutcome struct {
	res *chat.GenerateResult
	err error
}

// Generate 流式生成
// @Summary 流式生成回复
// @Description 以 SSE 推送 text/reasoning/tool_call/tool_result/done/error 事件；客户端断开不会中止生成
// @Tags Generation
// @Accept json
// @Produce text/event-stream
// @Param id path string true "会话 ID"
// @Param body body dto.GenerateRequest true "生成请求"
// @Success 200 "SSE stream"
// @Failure 400 {object} dto.ErrorResponse
// @Failure 402 {object} dto.ErrorResponse
// @Router /v1/conversations/{id}/generate [post]
func (h *GenerationHandler) Generate(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	clientCtx := c.Request.Context()
	// 生成脱离客户端连接，断连后继续完成并落库
	genCtx := context.WithoutCancel(clientCtx)

	events := make(chan chat.Event, h.bufferSize)
	clientGone := make(chan struct{})
	finished := make(chan streamOutcome, 1)

	go func() {
		res, err := h.gen.Stream(genCtx, req, func(ev chat.Event) {
			select {
			case events <- ev:
			case <-clientGone:
			}
		})
		finished <- streamOutcome{res: res, err: err}
	}()

	started := false
	write := func(ev chat.Event) {
		name, payload, ok := sseEvent(ev)
		if !ok {
			return
		}
		if !started {
			startSSE(c)
			started = true
		}
		c.SSEvent(name, payload)
		c.Writer.Flush()
	}

	for {
		select {
		case ev := <-events:
			write(ev)

		case out := <-finished:
			// Stream 返回前观察者已同步投递完全部事件
			for drained := false; !drained; {
				select {
				case ev := <-events:
					write(ev)
				default:
					drained = true
				}
			}
			h.finish(c, started, out)
			return

		case <-clientCtx.Done():
			close(clientGone)
			logger.Info(clientCtx, "client disconnected, generation continues in background",
				"conversation_id", req.ConversationID)
			return
		}
	}
}

func (h *GenerationHandler) finish(c *gin.Context, started bool, out streamOutcome) {
	if out.err != nil && !started && out.res == nil {
		// 还未输出任何事件，直接返回 JSON 错误
		dto.Fail(c, generationError(out.err, out.res))
		return
	}
	if !started {
		startSSE(c)
	}
	if out.err != nil && (out.res == nil || !out.res.Stopped) {
		appErr := generationError(out.err, out.res)
		payload := dto.StreamErrorEvent{Code: string(appErr.Code), Message: appErr.Detail}
		if payload.Message == "" {
			payload.Message = appErr.Message
		}
		if out.res != nil {
			payload.MessageID = out.res.MessageID
		}
		c.SSEvent(sseError, payload)
	} else {
		c.SSEvent(sseDone, out.res)
	}
	c.Writer.Flush()
}

// GenerateSync 非流式生成
// @Summary 非流式生成回复
// @Tags Generation
// @Accept json
// @Produce json
// @Param id path string true "会话 ID"
// @Param body body dto.GenerateRequest true "生成请求"
// @Success 200 {object} dto.Response[chat.GenerateResult]
// @Failure 400 {object} dto.ErrorResponse
// @Router /v1/conversations/{id}/generate/sync [post]
func (h *GenerationHandler) GenerateSync(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}

	res, err := h.gen.Complete(context.WithoutCancel(c.Request.Context()), req)
	if err != nil && (res == nil || !res.Stopped) {
		dto.Fail(c, generationError(err, res))
		return
	}
	dto.Success(c, res)
}

// Stop 停止会话中的生成
// @Summary 停止生成
// @Tags Generation
// @Produce json
// @Param id path string true "会话 ID"
// @Success 202 {object} dto.Response[dto.StopResponse]
// @Router /v1/conversations/{id}/stop [post]
func (h *GenerationHandler) Stop(c *gin.Context) {
	convID := dto.BindConversationID(c)
	aborted, err := h.gen.Stop(c.Request.Context(), convID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to stop generation", err, "conversation_id", convID)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to stop generation"))
		return
	}
	dto.Accepted(c, dto.StopResponse{ConversationID: convID, Aborted: aborted})
}

// State 查询会话是否有进行中的生成，页面刷新后据此恢复
// @Summary 生成状态
// @Tags Generation
// @Produce json
// @Param id path string true "会话 ID"
// @Success 200 {object} dto.Response[entity.GenerationState]
// @Router /v1/conversations/{id}/generation [get]
func (h *GenerationHandler) State(c *gin.Context) {
	convID := dto.BindConversationID(c)
	state, err := h.gen.GenerationState(c.Request.Context(), convID)
	if err != nil {
		logger.Error(c.Request.Context(), "failed to read generation state", err, "conversation_id", convID)
		dto.Fail(c, apperrors.Wrap(err, apperrors.CodeCacheError, "failed to read generation state"))
		return
	}
	dto.Success(c, state)
}

func (h *GenerationHandler) bind(c *gin.Context) (*chat.GenerateRequest, bool) {
	var body dto.GenerateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		dto.BadRequest(c, err.Error())
		return nil, false
	}
	convID := dto.BindConversationID(c)
	if convID == "" {
		dto.BadRequest(c, "conversation id is required")
		return nil, false
	}
	return body.ToDomain(convID, middleware.GetUserIDFromGin(c)), true
}

func startSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
}

// sseEvent 把编排器事件映射为 SSE 事件；结束与错误事件由 finish 统一输出
func sseEvent(ev chat.Event) (string, any, bool) {
	switch ev.Type {
	case chat.EventTextDelta:
		return sseText, dto.StreamTextEvent{Delta: ev.Text}, ev.Text != ""
	case chat.EventReasoningDelta:
		return sseReasoning, dto.StreamTextEvent{Delta: ev.Text}, ev.Text != ""
	case chat.EventToolCall:
		if ev.ToolCall == nil || ev.ToolCall.Name == chat.ToolThinking {
			return "", nil, false
		}
		return sseToolCall, dto.StreamToolEvent{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Args: ev.ToolCall.Arguments}, true
	case chat.EventToolResult:
		if ev.ToolCall == nil {
			return "", nil, false
		}
		if ev.ToolCall.Name == chat.ToolThinking {
			thought := chat.ThoughtFromResult(ev.ToolCall.Result)
			return sseReasoning, dto.StreamTextEvent{Delta: thought}, thought != ""
		}
		return sseToolResult, dto.StreamToolEvent{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Result: ev.ToolCall.Result}, true
	default:
		return "", nil, false
	}
}
