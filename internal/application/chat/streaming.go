package chat

import (
	"context"
	"errors"
	"io"

	"golang.org/x/time/rate"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
	"z-chat-ai-api/pkg/metrics"
	"z-chat-ai-api/pkg/tracer"
)

// Stream 流式生成：边接收边落库，支持中途停止
// 配置与额度错误返回 nil 结果；其余失败同时返回写入消息的结果与原始错误
func (o *Orchestrator) Stream(ctx context.Context, req *GenerateRequest, observer Observer) (*GenerateResult, error) {
	o.applyDefaults(req)
	ctx = service.WithGeneration(ctx, req.Provider, req.Model, ModeStream)
	ctx = logger.WithContext(ctx, logger.ConversationIDKey, req.ConversationID)
	ctx, span := tracer.Start(ctx, "chat.Orchestrator.Stream")
	defer span.End()

	r := o.newRun(ctx, req, ModeStream)
	defer r.release()

	res, err := o.stream(r, observer)
	if err != nil {
		tracer.RecordError(span, err)
	}
	return res, err
}

func (o *Orchestrator) stream(r *run, observer Observer) (*GenerateResult, error) {
	acc := &accumulator{}
	if err := o.prepare(r); err != nil {
		if r.ctx.Err() != nil {
			return o.interrupted(r, acc)
		}
		return o.fail(r, err)
	}

	// MESSAGE_PLACEHOLDER_CREATED
	placeholder := o.newAssistantMessage(r)
	placeholder.Content = entity.TextContent("")
	if err := o.deps.Messages.Create(r.store, placeholder); err != nil {
		return o.fail(r, &PersistenceError{Op: "create assistant placeholder", Err: err})
	}
	r.messageID = placeholder.ID
	if err := o.deps.State.SetGenerationState(r.store, r.req.ConversationID, true, r.messageID); err != nil {
		logger.Warn(r.store, "failed to mark generation in progress", "error", err)
	}
	if err := r.state.to(StateMessagePlaceholderCreated); err != nil {
		return o.fail(r, err)
	}
	o.publish(r, service.GenerationStarted, 0, "")

	// STREAMING
	r.startedAt = o.now()
	es, err := openEventStream(r.ctx, r.handle.Chat, r.msgs, r.handle.CallOptions, r.tools, o.cfg.MaxToolSteps)
	if err != nil {
		if r.ctx.Err() != nil {
			return o.interrupted(r, acc)
		}
		return o.fail(r, err)
	}
	defer es.Close()
	if err := r.state.to(StateStreaming); err != nil {
		return o.fail(r, err)
	}

	var limiter *rate.Limiter
	if o.cfg.PersistInterval > 0 {
		limiter = rate.NewLimiter(rate.Every(o.cfg.PersistInterval), 1)
	}

	for {
		// 每次迭代先检查持久化的取消标记
		if o.cancellationRequested(r) {
			es.Close()
			return o.stopped(r, acc)
		}
		if r.ctx.Err() != nil {
			es.Close()
			return o.interrupted(r, acc)
		}
		if limiter != nil {
			if err := limiter.Wait(r.ctx); err != nil {
				continue
			}
		}

		ev, err := es.Next(r.ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if r.ctx.Err() != nil {
				continue
			}
			return o.fail(r, err)
		}

		o.apply(r, acc, ev)
		if observer != nil {
			observer(ev)
		}
	}

	return o.completeStream(r, es, acc)
}

// cancellationRequested 读取取消标记，命中时同时中止进程内信号
func (o *Orchestrator) cancellationRequested(r *run) bool {
	flag, err := o.deps.State.GetCancellationFlag(r.store, r.req.ConversationID)
	if err != nil {
		logger.Warn(r.store, "failed to read cancellation flag", "error", err)
		return false
	}
	if flag {
		logger.Debug(r.store, "cancellation flag observed")
	}
	return flag
}

// apply 将事件并入累积状态并写入当前的完整快照
func (o *Orchestrator) apply(r *run, acc *accumulator, ev Event) {
	metrics.StreamEventsTotal.WithLabelValues(r.req.Provider, string(ev.Type)).Inc()

	switch ev.Type {
	case EventTextDelta:
		acc.text.WriteString(ev.Text)
	case EventReasoningDelta:
		acc.reasoning += ev.Text
	case EventReasoningFinish:
		if ev.Text != "" {
			acc.reasoning = ev.Text
		}
	case EventToolCall:
		if ev.ToolCall == nil || ev.ToolCall.Name == ToolThinking {
			return
		}
		acc.toolCalls = append(acc.toolCalls, *ev.ToolCall)
	case EventToolResult:
		if ev.ToolCall == nil {
			return
		}
		if ev.ToolCall.Name == ToolThinking {
			acc.reasoning = appendReasoning(acc.reasoning, ThoughtFromResult(ev.ToolCall.Result))
		} else {
			for i := range acc.toolCalls {
				if acc.toolCalls[i].ID == ev.ToolCall.ID {
					acc.toolCalls[i].Result = ev.ToolCall.Result
					break
				}
			}
			o.saveToolMessage(r, ev.ToolCall)
		}
	case EventError:
		if acc.streamErr == nil {
			acc.streamErr = ev.Err
		}
		logger.Warn(r.store, "provider reported stream error, draining remaining events",
			"error", ev.Err)
		return
	case EventFinish:
		if ev.Usage != nil {
			u := *ev.Usage
			acc.usage = &u
		}
		return
	default:
		return
	}
	o.persistProgress(r, acc)
}

// persistProgress 增量写入失败只记录，不中断生成
func (o *Orchestrator) persistProgress(r *run, acc *accumulator) {
	content := entity.TextContent(acc.text.String())
	thinking := acc.reasoning
	toolCalls := acc.toolCalls.Clone()
	err := o.deps.Messages.Update(r.store, r.messageID, &entity.MessagePatch{
		Content:   &content,
		Thinking:  &thinking,
		ToolCalls: &toolCalls,
	})
	if err != nil {
		metrics.PersistenceFailures.WithLabelValues("incremental").Inc()
		logger.Warn(r.store, "failed to persist partial assistant message",
			"message_id", r.messageID, "error", err)
	}
}

func (o *Orchestrator) saveToolMessage(r *run, call *entity.ToolCall) {
	if r.prefs == nil || !r.prefs.SaveToolMessages {
		return
	}
	msg := &entity.Message{
		ConversationID: r.req.ConversationID,
		BranchID:       r.req.BranchID,
		UserID:         r.req.UserID,
		Role:           entity.RoleTool,
		Content:        entity.TextContent(call.Result),
		ToolCallID:     call.ID,
	}
	if err := o.deps.Messages.Create(r.store, msg); err != nil {
		logger.Warn(r.store, "failed to save tool message", "tool", call.Name, "error", err)
	}
}

// completeStream 优先使用最终结果，失败时回退到累积值
func (o *Orchestrator) completeStream(r *run, es *EventStream, acc *accumulator) (*GenerateResult, error) {
	if acc.streamErr != nil {
		return o.fail(r, acc.streamErr)
	}

	text, reasoning, err := es.Final()
	if err != nil {
		logger.Warn(r.store, "failed to resolve final stream result, using accumulated content",
			"error", err)
		text, reasoning = acc.text.String(), acc.reasoning
	} else if text == "" && reasoning == "" {
		text, reasoning = acc.text.String(), acc.reasoning
	}
	text, reasoning = finalizeContent(text, reasoning)

	elapsed := o.now().Sub(r.startedAt)
	genMetrics := o.buildMetrics(r, acc.usage, text, elapsed)

	record := o.newAssistantMessage(r)
	record.Content = entity.TextContent(text)
	record.Thinking = reasoning
	record.ToolCalls = acc.toolCalls.Clone()
	record.Metrics = genMetrics
	if err := o.saveFinal(r, record, "final"); err != nil {
		return o.fail(r, err)
	}

	o.clearGenerationState(r)
	o.deduct(r, acc.usage, text)
	_ = r.state.to(StateCompleted)
	o.observe(r, "success", elapsed)
	o.publish(r, service.GenerationCompleted, genMetrics.TokensUsed, "")

	return &GenerateResult{
		MessageID:    r.messageID,
		Content:      text,
		Thinking:     reasoning,
		ToolCalls:    record.ToolCalls,
		UsingUserKey: r.usingUserKey,
		Metrics:      genMetrics,
	}, nil
}
