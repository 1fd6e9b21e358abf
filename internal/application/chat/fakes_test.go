package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"z-chat-ai-api/internal/application/credit"
	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/infrastructure/catalog"
	"z-chat-ai-api/internal/infrastructure/persistence/memory"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// fakeModel 每次 Stream/Generate 调用消费一个预设步骤
type fakeModel struct {
	mu        sync.Mutex
	steps     [][]*schema.Message
	stepErrs  map[int]error
	// midErrs 第 i 步在第 j 个分片之前插入一个错误
	midErrs   map[int]map[int]error
	generated []*schema.Message
	histories [][]*schema.Message
	tools     []*schema.ToolInfo
	calls     int

	// onStream 在返回流之前调用
	onStream func()
	// block 为 true 时流一直挂起直到 ctx 结束
	block bool
}

func (m *fakeModel) next(ctx context.Context, msgs []*schema.Message) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, append([]*schema.Message(nil), msgs...))
	i := m.calls
	m.calls++
	return i
}

func (m *fakeModel) Generate(ctx context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	i := m.next(ctx, msgs)
	if err := m.stepErrs[i]; err != nil {
		return nil, err
	}
	if i >= len(m.generated) {
		return nil, errors.New("no scripted response")
	}
	return m.generated[i], nil
}

func (m *fakeModel) Stream(ctx context.Context, msgs []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	i := m.next(ctx, msgs)
	if m.onStream != nil {
		m.onStream()
	}
	if m.block {
		r, w := schema.Pipe[*schema.Message](1)
		go func() {
			defer w.Close()
			<-ctx.Done()
			w.Send(nil, ctx.Err())
		}()
		return r, nil
	}

	var chunks []*schema.Message
	if i < len(m.steps) {
		chunks = m.steps[i]
	}
	mid := m.midErrs[i]
	r, w := schema.Pipe[*schema.Message](len(chunks) + len(mid) + 1)
	for j, c := range chunks {
		if err := mid[j]; err != nil {
			w.Send(nil, err)
		}
		w.Send(c, nil)
	}
	if err := m.stepErrs[i]; err != nil {
		w.Send(nil, err)
	}
	w.Close()
	return r, nil
}

func (m *fakeModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tools = tools
	return m, nil
}

func text(s string) *schema.Message {
	return schema.AssistantMessage(s, nil)
}

func reasoning(s string) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ReasoningContent: s}
}

func usageChunk(prompt, completion, total int) *schema.Message {
	return &schema.Message{Role: schema.Assistant, ResponseMeta: &schema.ResponseMeta{
		FinishReason: "stop",
		Usage:        &schema.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total},
	}}
}

func toolCallChunk(calls ...schema.ToolCall) *schema.Message {
	for i := range calls {
		idx := i
		calls[i].Index = &idx
		calls[i].Type = "function"
	}
	return schema.AssistantMessage("", calls)
}

func call(id, name, args string) schema.ToolCall {
	return schema.ToolCall{ID: id, Function: schema.FunctionCall{Name: name, Arguments: args}}
}

// fakeRegistry 仅认识 openai 的两个模型
type fakeRegistry struct {
	model      model.ToolCallingChatModel
	buildErr   error
	builtinKey string
	specs      []service.ModelSpec
}

func (r *fakeRegistry) ValidateModel(provider, m string) error {
	if provider == "openai" && (m == "gpt-4o" || m == "gpt-4o-mini") {
		return nil
	}
	return fmt.Errorf("unknown model %s/%s", provider, m)
}

func (r *fakeRegistry) GetDefaultModel(string) string { return "gpt-4o-mini" }

func (r *fakeRegistry) GetProviderAPIKey(_ string, userKey string) (string, bool) {
	if userKey != "" {
		return userKey, true
	}
	return r.builtinKey, false
}

func (r *fakeRegistry) RequiresKey(string) bool { return true }

func (r *fakeRegistry) DisplayName(string) string { return "OpenAI" }

func (r *fakeRegistry) BuildModel(_ context.Context, spec service.ModelSpec) (*service.ModelHandle, error) {
	r.specs = append(r.specs, spec)
	if r.buildErr != nil {
		return nil, r.buildErr
	}
	return &service.ModelHandle{Provider: spec.Provider, Model: spec.Model, Chat: r.model, HasNativeThinking: true}, nil
}

// countingGate 统计额度闸门调用次数
type countingGate struct {
	inner     *credit.Gate
	checks    int
	deducts   int
	deductErr error
}

func (g *countingGate) CheckAvailable(ctx context.Context, userID, m string, in, out int) (*credit.CheckResult, error) {
	g.checks++
	return g.inner.CheckAvailable(ctx, userID, m, in, out)
}

func (g *countingGate) Deduct(ctx context.Context, userID, m string, in, out int) (*credit.DeductResult, error) {
	g.deducts++
	if g.deductErr != nil {
		return nil, g.deductErr
	}
	return g.inner.Deduct(ctx, userID, m, in, out)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []service.GenerationEventType
}

func (p *recordingPublisher) PublishGenerationEvent(_ context.Context, ev *service.GenerationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev.Type)
	return nil
}

type testEnv struct {
	orch     *Orchestrator
	model    *fakeModel
	registry *fakeRegistry
	messages *memory.MessageStore
	state    *memory.GenerationStateStore
	usage    *memory.UsageStore
	profiles *memory.ProfileStore
	gate     *countingGate
	events   *recordingPublisher
}

func testConfig() *config.Config {
	return &config.Config{
		Generation: config.GenerationConfig{
			Timeout:               time.Minute,
			SlowTimeout:           time.Minute,
			CharsPerToken:         4,
			EstimatedOutputTokens: 1000,
			MaxToolSteps:          3,
			AttachmentConcurrency: 2,
			DefaultTemperature:    1,
		},
		Billing: config.BillingConfig{
			DefaultPlan: "free",
			Plans: map[string]config.PlanConfig{
				"free": {CreditsLimit: 100, MaxSpendingDollars: 1},
			},
			FallbackPricing: config.PricingConfig{InputPerK: 0.001, OutputPerK: 0.003},
			ResetPeriod:     30 * 24 * time.Hour,
		},
	}
}

func newTestEnv(m *fakeModel, mutate ...func(*config.Config)) *testEnv {
	cfg := testConfig()
	for _, fn := range mutate {
		fn(cfg)
	}

	cat := catalog.New(
		service.ModelInfo{ID: "gpt-4o", Provider: "openai", SupportsTools: true, IsMultimodal: true,
			Pricing: service.Pricing{InputPerK: 0.0025, OutputPerK: 0.01}},
		service.ModelInfo{ID: "gpt-4o-mini", Provider: "openai",
			Pricing: service.Pricing{InputPerK: 0.00015, OutputPerK: 0.0006}},
	)

	env := &testEnv{
		model:    m,
		registry: &fakeRegistry{model: m, builtinKey: "sk-builtin"},
		messages: memory.NewMessageStore(),
		state:    memory.NewGenerationStateStore(),
		usage:    memory.NewUsageStore(),
		profiles: memory.NewProfileStore(),
		events:   &recordingPublisher{},
	}
	env.gate = &countingGate{inner: credit.NewGate(cfg, env.usage, memory.NewTransactor(), cat)}

	env.orch = NewOrchestrator(cfg, Dependencies{
		Registry:    env.registry,
		Catalog:     cat,
		Gate:        env.gate,
		Messages:    env.messages,
		State:       env.state,
		Preferences: env.profiles,
		Credentials: env.profiles,
		Normalizer:  NewNormalizer(cfg, nil),
		Events:      env.events,
	})
	env.orch.now = func() time.Time { return fixedNow }
	return env
}

func userRequest(content string) *GenerateRequest {
	return &GenerateRequest{
		ConversationID: "conv-1",
		UserID:         "user-1",
		Provider:       "openai",
		Model:          "gpt-4o-mini",
		Messages: []*entity.Message{
			{Role: entity.RoleUser, Content: entity.TextContent(content)},
		},
	}
}

func (e *testEnv) assistantMessages() []*entity.Message {
	var out []*entity.Message
	for _, m := range e.messages.All() {
		if m.Role == entity.RoleAssistant {
			out = append(out, m)
		}
	}
	return out
}
