// Package chat 实现生成编排：消息规范化、错误分类与流式/非流式编排
package chat

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"

	"z-chat-ai-api/internal/application/credit"
	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
	"z-chat-ai-api/pkg/metrics"
)

// 兜底文案
const (
	FallbackContent = "I'm sorry, I wasn't able to generate a response. Please try again."
	StoppedContent  = "Generation stopped by user."
)

// 生成模式
const (
	ModeStream = "stream"
	ModeSync   = "sync"
)

// ModelRegistry 提供商注册表
type ModelRegistry interface {
	ValidateModel(provider, model string) error
	GetDefaultModel(provider string) string
	GetProviderAPIKey(provider, userKey string) (string, bool)
	RequiresKey(provider string) bool
	DisplayName(provider string) string
	BuildModel(ctx context.Context, spec service.ModelSpec) (*service.ModelHandle, error)
}

// CreditGate 内置密钥额度闸门
type CreditGate interface {
	CheckAvailable(ctx context.Context, userID, model string, estInputTokens, estOutputTokens int) (*credit.CheckResult, error)
	Deduct(ctx context.Context, userID, model string, inputTokens, outputTokens int) (*credit.DeductResult, error)
}

// GenerateRequest 生成请求
type GenerateRequest struct {
	ConversationID string
	BranchID       string
	UserID         string
	Messages       []*entity.Message
	Provider       string
	Model          string
	// Temperature 为 nil 时使用配置的默认值
	Temperature    *float64
	EnabledTools   []string
	ThinkingBudget entity.ThinkingBudget
}

// GenerateResult 生成结果，失败时 Error 为分类后的提示
type GenerateResult struct {
	MessageID    string                    `json:"messageId,omitempty"`
	Content      string                    `json:"content,omitempty"`
	Thinking     string                    `json:"thinking,omitempty"`
	ToolCalls    entity.ToolCalls          `json:"toolCalls,omitempty"`
	UsingUserKey bool                      `json:"usingUserKey"`
	Metrics      *entity.GenerationMetrics `json:"generationMetrics,omitempty"`
	Stopped      bool                      `json:"stoppedByUser,omitempty"`
	Error        string                    `json:"error,omitempty"`
}

// Dependencies 编排器依赖
type Dependencies struct {
	Registry    ModelRegistry
	Catalog     service.ModelCatalog
	Gate        CreditGate
	Messages    repository.MessageRepository
	State       repository.GenerationStateRepository
	Preferences repository.PreferencesRepository
	Credentials repository.CredentialRepository
	Normalizer  *Normalizer
	// Events 可为 nil
	Events service.GenerationEventPublisher
}

// Orchestrator 生成编排器
type Orchestrator struct {
	deps Dependencies
	cfg  config.GenerationConfig
	now  func() time.Time

	mu     sync.Mutex
	nextID uint64
	active map[string]map[uint64]context.CancelCauseFunc
}

// NewOrchestrator 创建编排器
func NewOrchestrator(cfg *config.Config, deps Dependencies) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		cfg:    cfg.Generation,
		now:    time.Now,
		active: make(map[string]map[uint64]context.CancelCauseFunc),
	}
}

// run 一次生成的全部状态，随生成结束释放
type run struct {
	req          *GenerateRequest
	mode         string
	state        *stateMachine
	target       Target
	info         service.ModelInfo
	apiKey       string
	usingUserKey bool
	temperature  float64
	estIn        int
	estOut       int
	tools        *toolRunner
	prefs        *entity.UserPreferences
	handle       *service.ModelHandle
	msgs         []*schema.Message
	messageID    string
	startedAt    time.Time

	// ctx 可被超时与停止请求取消；store 用于落库，不受取消影响
	ctx     context.Context
	store   context.Context
	release func()
}

// newRun 分配取消令牌、注册进程内停止入口并启动超时定时器
func (o *Orchestrator) newRun(ctx context.Context, req *GenerateRequest, mode string) *run {
	store := context.WithoutCancel(ctx)
	runCtx, cancel := context.WithCancelCause(ctx)

	timeout := o.cfg.TimeoutFor(req.Provider)
	timer := time.AfterFunc(timeout, func() { cancel(ErrGenerationTimeout) })

	o.mu.Lock()
	o.nextID++
	id := o.nextID
	if o.active[req.ConversationID] == nil {
		o.active[req.ConversationID] = make(map[uint64]context.CancelCauseFunc)
	}
	o.active[req.ConversationID][id] = cancel
	o.mu.Unlock()
	metrics.ActiveGenerations.Inc()

	r := &run{
		req:   req,
		mode:  mode,
		state: newStateMachine(),
		ctx:   runCtx,
		store: store,
	}
	r.release = func() {
		timer.Stop()
		cancel(context.Canceled)
		o.mu.Lock()
		delete(o.active[req.ConversationID], id)
		if len(o.active[req.ConversationID]) == 0 {
			delete(o.active, req.ConversationID)
		}
		o.mu.Unlock()
		metrics.ActiveGenerations.Dec()
	}
	return r
}

// Stop 设置持久化取消标记并立即中止本进程内该会话的生成
// 返回本进程是否有正在进行的生成
func (o *Orchestrator) Stop(ctx context.Context, conversationID string) (bool, error) {
	if err := o.deps.State.SetCancellationFlag(ctx, conversationID); err != nil {
		return false, &PersistenceError{Op: "set cancellation flag", Err: err}
	}

	o.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(o.active[conversationID]))
	for _, c := range o.active[conversationID] {
		cancels = append(cancels, c)
	}
	o.mu.Unlock()

	for _, c := range cancels {
		c(ErrUserCancelled)
	}
	logger.Info(ctx, "generation stop requested", "conversation_id", conversationID, "local_runs", len(cancels))
	return len(cancels) > 0, nil
}

// GenerationState 会话当前的生成状态
func (o *Orchestrator) GenerationState(ctx context.Context, conversationID string) (*entity.GenerationState, error) {
	return o.deps.State.GetGenerationState(ctx, conversationID)
}

// applyDefaults 补全提供商、模型、分支与温度
func (o *Orchestrator) applyDefaults(req *GenerateRequest) {
	req.Provider = strings.ToLower(strings.TrimSpace(req.Provider))
	req.Model = strings.TrimSpace(req.Model)
	if req.BranchID == "" {
		req.BranchID = entity.DefaultBranchID
	}
	if req.Provider == "" {
		req.Provider = o.inferProvider(req.Model)
	}
	if req.Model == "" {
		req.Model = o.deps.Registry.GetDefaultModel(req.Provider)
	}
}

func (o *Orchestrator) inferProvider(model string) string {
	if o.deps.Catalog != nil {
		if model == "" {
			model = o.deps.Registry.GetDefaultModel("")
		}
		if info, ok := o.deps.Catalog.GetModelInfo(model); ok {
			return info.Provider
		}
	}
	return "openai"
}

// prepare 依次完成 INIT、CREDIT_CHECKED、MODEL_READY
func (o *Orchestrator) prepare(r *run) error {
	req := r.req
	ctx := r.ctx

	// INIT
	if err := o.deps.State.ClearCancellationFlag(r.store, req.ConversationID); err != nil {
		logger.Warn(ctx, "failed to clear stale cancellation flag", "error", err)
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	if err := o.deps.Registry.ValidateModel(req.Provider, req.Model); err != nil {
		return &ConfigurationError{Reason: "unknown provider/model pair", Err: err}
	}
	r.target = Target{Provider: req.Provider, DisplayName: o.deps.Registry.DisplayName(req.Provider), Model: req.Model}
	if o.deps.Catalog != nil {
		r.info, _ = o.deps.Catalog.GetModelInfo(req.Model)
	}

	tools, err := ResolveTools(req.EnabledTools, o.now)
	if err != nil {
		return err
	}

	userKey := ""
	if o.deps.Credentials != nil && req.UserID != "" {
		k, err := o.deps.Credentials.GetAPIKeyForProvider(ctx, req.UserID, req.Provider)
		if err != nil {
			logger.Warn(ctx, "failed to load user api key, falling back to built-in key", "provider", req.Provider, "error", err)
		}
		userKey = k
	}
	r.apiKey, r.usingUserKey = o.deps.Registry.GetProviderAPIKey(req.Provider, userKey)
	if r.apiKey == "" && o.deps.Registry.RequiresKey(req.Provider) {
		return &ConfigurationError{Reason: fmt.Sprintf("no API key configured for %s", r.target.name())}
	}

	r.temperature = o.cfg.DefaultTemperature
	if req.Temperature != nil {
		r.temperature = *req.Temperature
	}
	if err := r.state.to(StateCreditChecked); err != nil {
		return err
	}

	// CREDIT_CHECKED
	r.estIn = o.estimateTokens(req.Messages)
	r.estOut = o.cfg.EstimatedOutputTokens
	if !r.usingUserKey {
		if err := o.checkCredits(r); err != nil {
			return err
		}
	}
	if err := r.state.to(StateModelReady); err != nil {
		return err
	}

	// MODEL_READY
	handle, err := o.deps.Registry.BuildModel(ctx, service.ModelSpec{
		Provider:         req.Provider,
		Model:            req.Model,
		APIKey:           r.apiKey,
		Temperature:      r.temperature,
		ThinkingBudget:   req.ThinkingBudget,
		SupportsThinking: r.info.SupportsThinking,
	})
	if err != nil {
		return &ProviderConstructionError{Provider: req.Provider, Model: req.Model, Err: err}
	}
	r.handle = handle

	if len(tools) > 0 {
		if r.info.SupportsTools {
			if r.tools, err = newToolRunner(ctx, tools); err != nil {
				return err
			}
		} else {
			logger.Debug(ctx, "model does not support tools, ignoring enabled tools", "model", req.Model)
		}
	}

	r.prefs, err = o.deps.Preferences.GetUserPreferences(ctx, req.UserID)
	if err != nil || r.prefs == nil {
		logger.Warn(ctx, "failed to load user preferences, using defaults", "user_id", req.UserID, "error", err)
		r.prefs = &entity.UserPreferences{UserID: req.UserID}
	}
	instructions, err := o.deps.Preferences.GetUserInstructions(ctx, req.UserID)
	if err != nil {
		logger.Warn(ctx, "failed to load user instructions", "user_id", req.UserID, "error", err)
	}

	r.msgs, err = o.deps.Normalizer.Normalize(ctx, NormalizeInput{
		Messages:     req.Messages,
		Model:        r.info,
		Preferences:  r.prefs,
		Instructions: instructions,
	})
	return err
}

func validateRequest(req *GenerateRequest) error {
	if strings.TrimSpace(req.ConversationID) == "" {
		return &ConfigurationError{Reason: "conversation id is required"}
	}
	if len(req.Messages) == 0 {
		return &ConfigurationError{Reason: "at least one message is required"}
	}
	return nil
}

func (o *Orchestrator) checkCredits(r *run) error {
	res, err := o.deps.Gate.CheckAvailable(r.ctx, r.req.UserID, r.req.Model, r.estIn, r.estOut)
	if err != nil {
		return &PersistenceError{Op: "check credits", Err: err}
	}
	if !res.HasCredits {
		metrics.CreditRejections.WithLabelValues("credits").Inc()
		return &CreditExhaustedError{UserID: r.req.UserID, Required: res.RequiredCredits, Available: res.AvailableCredits}
	}
	if res.WouldExceedSpending {
		metrics.CreditRejections.WithLabelValues("spending").Inc()
		return &SpendingLimitError{UserID: r.req.UserID, Cost: res.EstimatedDollars}
	}
	return nil
}

// estimateTokens 按固定字符/token 比例估算输入 token
func (o *Orchestrator) estimateTokens(msgs []*entity.Message) int {
	chars := 0
	for _, m := range msgs {
		if m == nil {
			continue
		}
		chars += utf8.RuneCountInString(m.Content.PlainText())
		for _, a := range m.Attachments {
			chars += utf8.RuneCountInString(a.ExtractedText)
		}
	}
	return o.charsToTokens(chars)
}

func (o *Orchestrator) charsToTokens(chars int) int {
	ratio := o.cfg.CharsPerToken
	if ratio <= 0 {
		ratio = 4
	}
	return int(math.Ceil(float64(chars) / float64(ratio)))
}

// accumulator 流式过程中累积的消息状态
type accumulator struct {
	text      strings.Builder
	reasoning string
	toolCalls entity.ToolCalls
	usage     *entity.TokenUsage
	streamErr error
}

func appendReasoning(existing, add string) string {
	if existing == "" {
		return add
	}
	if add == "" {
		return existing
	}
	return existing + "\n\n" + add
}

// finalizeContent 避免持久化空消息；只有推理时提升为正文
func finalizeContent(text, reasoning string) (string, string) {
	if strings.TrimSpace(text) != "" {
		return text, reasoning
	}
	if strings.TrimSpace(reasoning) != "" {
		return reasoning, ""
	}
	return FallbackContent, ""
}

// buildMetrics 无上报用量时按估算值填充
func (o *Orchestrator) buildMetrics(r *run, usage *entity.TokenUsage, text string, elapsed time.Duration) *entity.GenerationMetrics {
	u := o.effectiveUsage(r, usage, text)
	m := &entity.GenerationMetrics{
		Provider:         r.req.Provider,
		Model:            r.req.Model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TokensUsed:       u.Total(),
		GenerationTimeMs: elapsed.Milliseconds(),
		Temperature:      r.temperature,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		m.TokensPerSecond = math.Round(float64(u.CompletionTokens)/secs*100) / 100
	}
	return m
}

func (o *Orchestrator) effectiveUsage(r *run, usage *entity.TokenUsage, text string) entity.TokenUsage {
	if usage != nil {
		u := *usage
		if u.PromptTokens == 0 && u.CompletionTokens == 0 && u.TotalTokens > 0 {
			u.CompletionTokens = u.TotalTokens
		}
		return u
	}
	out := o.charsToTokens(utf8.RuneCountInString(text))
	return entity.TokenUsage{PromptTokens: r.estIn, CompletionTokens: out, TotalTokens: r.estIn + out}
}

// deduct 按实际用量扣减，失败只记录日志
func (o *Orchestrator) deduct(r *run, usage *entity.TokenUsage, text string) {
	if r.usingUserKey {
		return
	}
	if usage == nil {
		logger.Warn(r.store, "provider reported no usage, deducting estimated tokens",
			"model", r.req.Model)
	}
	u := o.effectiveUsage(r, usage, text)
	res, err := o.deps.Gate.Deduct(r.store, r.req.UserID, r.req.Model, u.PromptTokens, u.CompletionTokens)
	if err != nil {
		logger.Error(r.store, "failed to deduct credits", err,
			"user_id", r.req.UserID, "model", r.req.Model)
		return
	}
	logger.Debug(r.store, "credits deducted", "credits", res.CreditsDeducted, "remaining", res.RemainingCredits)
}

// saveFinal 更新占位消息，失败时改为新建
func (o *Orchestrator) saveFinal(r *run, msg *entity.Message, phase string) error {
	if r.messageID != "" {
		patch := &entity.MessagePatch{
			Content:       &msg.Content,
			Thinking:      &msg.Thinking,
			ToolCalls:     &msg.ToolCalls,
			Metrics:       msg.Metrics,
			IsError:       &msg.IsError,
			StoppedByUser: &msg.StoppedByUser,
		}
		err := o.deps.Messages.Update(r.store, r.messageID, patch)
		if err == nil {
			msg.ID = r.messageID
			return nil
		}
		metrics.PersistenceFailures.WithLabelValues(phase).Inc()
		logger.Warn(r.store, "failed to update assistant message, creating a new one",
			"message_id", r.messageID, "error", err)
	}

	msg.ID = ""
	if err := o.deps.Messages.Create(r.store, msg); err != nil {
		metrics.PersistenceFailures.WithLabelValues(phase).Inc()
		return &PersistenceError{Op: "save assistant message", Err: err}
	}
	r.messageID = msg.ID
	return nil
}

func (o *Orchestrator) newAssistantMessage(r *run) *entity.Message {
	return &entity.Message{
		ConversationID: r.req.ConversationID,
		BranchID:       r.req.BranchID,
		UserID:         r.req.UserID,
		Role:           entity.RoleAssistant,
	}
}

// clearGenerationState 清除进行中状态与取消标记
func (o *Orchestrator) clearGenerationState(r *run) {
	if err := o.deps.State.SetGenerationState(r.store, r.req.ConversationID, false, ""); err != nil {
		logger.Warn(r.store, "failed to clear generation state", "error", err)
	}
	if err := o.deps.State.ClearCancellationFlag(r.store, r.req.ConversationID); err != nil {
		logger.Warn(r.store, "failed to clear cancellation flag", "error", err)
	}
}

// fail 分类错误并写入消息；配置与额度错误直接返回
func (o *Orchestrator) fail(r *run, err error) (*GenerateResult, error) {
	_ = r.state.to(StateErrored)
	o.observe(r, "error", 0)

	if IsPreflightError(err) {
		logger.Warn(r.store, "generation rejected", "error", err)
		return nil, err
	}

	msg := Classify(err, r.target, r.usingUserKey)
	logger.Error(r.store, "generation failed", err,
		"provider", r.req.Provider, "model", r.req.Model,
		"kind", ClassifyKind(err, r.target))

	record := o.newAssistantMessage(r)
	record.Content = entity.TextContent(msg)
	record.IsError = true
	if saveErr := o.saveFinal(r, record, "error"); saveErr != nil {
		logger.Error(r.store, "failed to persist generation error", saveErr)
	}
	o.clearGenerationState(r)
	o.publish(r, service.GenerationFailed, 0, msg)

	return &GenerateResult{MessageID: r.messageID, Error: msg, UsingUserKey: r.usingUserKey}, err
}

// stopped 以用户停止结束，持久化已累积内容
func (o *Orchestrator) stopped(r *run, acc *accumulator) (*GenerateResult, error) {
	_ = r.state.to(StateCancelled)
	o.observe(r, "cancelled", 0)

	content := acc.text.String()
	if strings.TrimSpace(content) == "" {
		content = StoppedContent
	}
	record := o.newAssistantMessage(r)
	record.Content = entity.TextContent(content)
	record.Thinking = acc.reasoning
	record.ToolCalls = acc.toolCalls.Clone()
	record.StoppedByUser = true

	var err error
	if saveErr := o.saveFinal(r, record, "final"); saveErr != nil {
		logger.Error(r.store, "failed to persist stopped generation", saveErr)
		err = saveErr
	}
	o.clearGenerationState(r)
	o.publish(r, service.GenerationCancelled, 0, "")
	logger.Info(r.store, "generation stopped by user", "message_id", r.messageID)

	return &GenerateResult{
		MessageID:    r.messageID,
		Content:      content,
		Thinking:     acc.reasoning,
		ToolCalls:    record.ToolCalls,
		UsingUserKey: r.usingUserKey,
		Stopped:      true,
	}, err
}

// interrupted 运行上下文被取消：用户停止走 CANCELLED，其余视为错误
func (o *Orchestrator) interrupted(r *run, acc *accumulator) (*GenerateResult, error) {
	cause := context.Cause(r.ctx)
	if errors.Is(cause, ErrUserCancelled) {
		return o.stopped(r, acc)
	}
	if cause == nil {
		cause = r.ctx.Err()
	}
	return o.fail(r, cause)
}

func (o *Orchestrator) observe(r *run, status string, elapsed time.Duration) {
	metrics.GenerationTotal.WithLabelValues(r.req.Provider, r.req.Model, r.mode, status).Inc()
	if elapsed > 0 {
		metrics.GenerationDuration.WithLabelValues(r.req.Provider, r.req.Model, r.mode).Observe(elapsed.Seconds())
	}
}

func (o *Orchestrator) publish(r *run, typ service.GenerationEventType, tokens int, errMsg string) {
	if o.deps.Events == nil {
		return
	}
	ev := &service.GenerationEvent{
		Type:           typ,
		ConversationID: r.req.ConversationID,
		BranchID:       r.req.BranchID,
		MessageID:      r.messageID,
		UserID:         r.req.UserID,
		Provider:       r.req.Provider,
		Model:          r.req.Model,
		Mode:           r.mode,
		TokensUsed:     tokens,
		Error:          errMsg,
		OccurredAt:     o.now(),
	}
	if err := o.deps.Events.PublishGenerationEvent(r.store, ev); err != nil {
		logger.Warn(r.store, "failed to publish generation event", "type", string(typ), "error", err)
	}
}
