package chat

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
	"z-chat-ai-api/pkg/tracer"
)

// Complete 非流式生成：一次请求得到完整结果，只在结束时写入一条消息
func (o *Orchestrator) Complete(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	o.applyDefaults(req)
	ctx = service.WithGeneration(ctx, req.Provider, req.Model, ModeSync)
	ctx = logger.WithContext(ctx, logger.ConversationIDKey, req.ConversationID)
	ctx, span := tracer.Start(ctx, "chat.Orchestrator.Complete")
	defer span.End()

	r := o.newRun(ctx, req, ModeSync)
	defer r.release()

	res, err := o.complete(r)
	if err != nil {
		tracer.RecordError(span, err)
	}
	return res, err
}

func (o *Orchestrator) complete(r *run) (*GenerateResult, error) {
	acc := &accumulator{}
	if err := o.prepare(r); err != nil {
		if r.ctx.Err() != nil {
			return o.interrupted(r, acc)
		}
		return o.fail(r, err)
	}
	o.publish(r, service.GenerationStarted, 0, "")

	r.startedAt = o.now()
	if err := o.generate(r, acc); err != nil {
		if r.ctx.Err() != nil {
			return o.interrupted(r, acc)
		}
		return o.fail(r, err)
	}
	if o.cancellationRequested(r) {
		return o.stopped(r, acc)
	}

	text, reasoning := finalizeContent(acc.text.String(), acc.reasoning)
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

// generate 执行 Generate 调用，模型请求工具时运行工具并继续，最多 MaxToolSteps 步
func (o *Orchestrator) generate(r *run, acc *accumulator) error {
	var chat model.BaseChatModel = r.handle.Chat
	if !r.tools.empty() {
		bound, err := r.handle.Chat.WithTools(r.tools.infos)
		if err != nil {
			return fmt.Errorf("failed to bind tools: %w", err)
		}
		chat = bound
	}

	maxSteps := o.cfg.MaxToolSteps
	if maxSteps < 1 {
		maxSteps = 1
	}
	history := append([]*schema.Message(nil), r.msgs...)

	for step := 1; ; step++ {
		out, err := chat.Generate(r.ctx, history, r.handle.CallOptions...)
		if err != nil {
			return err
		}

		acc.text.WriteString(out.Content)
		if out.ReasoningContent != "" {
			acc.reasoning = appendReasoning(acc.reasoning, out.ReasoningContent)
		}
		if out.ResponseMeta != nil && out.ResponseMeta.Usage != nil {
			u := entity.TokenUsage{
				PromptTokens:     out.ResponseMeta.Usage.PromptTokens,
				CompletionTokens: out.ResponseMeta.Usage.CompletionTokens,
				TotalTokens:      out.ResponseMeta.Usage.TotalTokens,
			}
			if acc.usage != nil {
				u = acc.usage.Add(u)
			}
			acc.usage = &u
		}

		if len(out.ToolCalls) == 0 || r.tools.empty() || step >= maxSteps {
			return nil
		}

		history = append(history, out)
		for _, tc := range out.ToolCalls {
			args := repairArguments(tc.Function.Arguments)
			result, _ := r.tools.run(r.ctx, tc.Function.Name, args)
			if tc.Function.Name == ToolThinking {
				acc.reasoning = appendReasoning(acc.reasoning, ThoughtFromResult(result))
			} else {
				call := entity.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args, Result: result}
				acc.toolCalls = append(acc.toolCalls, call)
				o.saveToolMessage(r, &call)
			}
			history = append(history, schema.ToolMessage(result, tc.ID))
		}
		if err := r.ctx.Err(); err != nil {
			return err
		}
	}
}
