package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/application/chat"
	"z-chat-ai-api/internal/application/credit"
	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/infrastructure/catalog"
	"z-chat-ai-api/internal/infrastructure/persistence/memory"
	"z-chat-ai-api/internal/interfaces/http/middleware"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeGenerator struct {
	events   []chat.Event
	result   *chat.GenerateResult
	err      error
	got      *chat.GenerateRequest
	gotCtx   context.Context
	stopped  string
	stopErr  error
	inFlight bool
}

func (f *fakeGenerator) Stream(ctx context.Context, req *chat.GenerateRequest, observer chat.Observer) (*chat.GenerateResult, error) {
	f.got, f.gotCtx = req, ctx
	for _, ev := range f.events {
		observer(ev)
	}
	return f.result, f.err
}

func (f *fakeGenerator) Complete(ctx context.Context, req *chat.GenerateRequest) (*chat.GenerateResult, error) {
	f.got, f.gotCtx = req, ctx
	return f.result, f.err
}

func (f *fakeGenerator) Stop(_ context.Context, conversationID string) (bool, error) {
	f.stopped = conversationID
	return f.inFlight, f.stopErr
}

func (f *fakeGenerator) GenerationState(_ context.Context, conversationID string) (*entity.GenerationState, error) {
	return &entity.GenerationState{ConversationID: conversationID, InProgress: f.inFlight, MessageID: "m-1"}, nil
}

func generationEngine(gen Generator) *gin.Engine {
	h := NewGenerationHandler(gen)
	e := gin.New()
	e.Use(middleware.Auth(middleware.AuthConfig{}))
	e.POST("/v1/conversations/:id/generate", h.Generate)
	e.POST("/v1/conversations/:id/generate/sync", h.GenerateSync)
	e.POST("/v1/conversations/:id/stop", h.Stop)
	e.GET("/v1/conversations/:id/generation", h.State)
	return e
}

func request(e *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set(middleware.UserIDHeader, "user-1")
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

const helloBody = `{"messages":[{"role":"user","content":"hi"}],"provider":"openai","model":"gpt-4o"}`

type sseFrame struct {
	event string
	data  string
}

func parseSSE(body string) []sseFrame {
	var frames []sseFrame
	for _, block := range strings.Split(body, "\n\n") {
		var f sseFrame
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event:"):
				f.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			case strings.HasPrefix(line, "data:"):
				f.data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			}
		}
		if f.event != "" {
			frames = append(frames, f)
		}
	}
	return frames
}

func frameNames(frames []sseFrame) []string {
	out := make([]string, 0, len(frames))
	for _, f := range frames {
		out = append(out, f.event)
	}
	return out
}

func TestGenerateStreamsEvents(t *testing.T) {
	gen := &fakeGenerator{
		events: []chat.Event{
			{Type: chat.EventReasoningDelta, Text: "hmm"},
			{Type: chat.EventTextDelta, Text: "Hel"},
			{Type: chat.EventToolCall, ToolCall: &entity.ToolCall{ID: "c1", Name: chat.ToolCurrentTime, Arguments: "{}"}},
			{Type: chat.EventToolResult, ToolCall: &entity.ToolCall{ID: "c1", Name: chat.ToolCurrentTime, Result: `{"time":"now"}`}},
			{Type: chat.EventToolCall, ToolCall: &entity.ToolCall{ID: "c2", Name: chat.ToolThinking}},
			{Type: chat.EventToolResult, ToolCall: &entity.ToolCall{ID: "c2", Name: chat.ToolThinking, Result: `{"thought":"plan"}`}},
			{Type: chat.EventTextDelta, Text: "lo"},
			{Type: chat.EventFinish},
		},
		result: &chat.GenerateResult{MessageID: "m-1", Content: "Hello"},
	}
	w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate", helloBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	frames := parseSSE(w.Body.String())
	assert.Equal(t, []string{"reasoning", "text", "tool_call", "tool_result", "reasoning", "text", "done"}, frameNames(frames))
	assert.Contains(t, frames[4].data, "plan")
	assert.Contains(t, frames[6].data, `"messageId":"m-1"`)

	require.NotNil(t, gen.got)
	assert.Equal(t, "conv-1", gen.got.ConversationID)
	assert.Equal(t, "user-1", gen.got.UserID)
	assert.Equal(t, "gpt-4o", gen.got.Model)
	require.Len(t, gen.got.Messages, 1)
	assert.Equal(t, "hi", gen.got.Messages[0].Content.PlainText())
}

func TestGenerateDetachesFromClient(t *testing.T) {
	gen := &fakeGenerator{result: &chat.GenerateResult{MessageID: "m-1"}}
	e := generationEngine(gen)

	ctx, cancel := context.WithCancel(context.Background())
	r := httptest.NewRequest(http.MethodPost, "/v1/conversations/conv-1/generate/sync", bytes.NewBufferString(helloBody)).WithContext(ctx)
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set(middleware.UserIDHeader, "user-1")
	e.ServeHTTP(httptest.NewRecorder(), r)
	cancel()

	require.NotNil(t, gen.gotCtx)
	assert.NoError(t, gen.gotCtx.Err())
}

func TestGeneratePreflightErrorIsJSON(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"configuration", &chat.ConfigurationError{Reason: "unknown model"}, http.StatusBadRequest, "4001"},
		{"credits", &chat.CreditExhaustedError{Required: 5, Available: 1}, http.StatusPaymentRequired, "4007"},
		{"spending", &chat.SpendingLimitError{Spent: 1, Max: 1}, http.StatusPaymentRequired, "4008"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate", helloBody)

			assert.Equal(t, tt.wantStatus, w.Code)
			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.wantCode, body["code"])
		})
	}
}

func TestGenerateFailureAfterEventsIsErrorEvent(t *testing.T) {
	gen := &fakeGenerator{
		events: []chat.Event{{Type: chat.EventTextDelta, Text: "par"}},
		result: &chat.GenerateResult{MessageID: "m-9", Error: "Rate limit exceeded. Please wait a moment and try again."},
		err:    errors.New("429 too many requests"),
	}
	w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate", helloBody)

	require.Equal(t, http.StatusOK, w.Code)
	frames := parseSSE(w.Body.String())
	assert.Equal(t, []string{"text", "error"}, frameNames(frames))
	assert.Contains(t, frames[1].data, "Rate limit exceeded")
	assert.Contains(t, frames[1].data, `"messageId":"m-9"`)
}

func TestGenerateStoppedIsDone(t *testing.T) {
	gen := &fakeGenerator{result: &chat.GenerateResult{MessageID: "m-1", Stopped: true, Content: chat.StoppedContent}}
	w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate", helloBody)

	frames := parseSSE(w.Body.String())
	require.Len(t, frames, 1)
	assert.Equal(t, "done", frames[0].event)
	assert.Contains(t, frames[0].data, `"stoppedByUser":true`)
}

func TestGenerateRejectsInvalidBody(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no messages", `{"messages":[]}`},
		{"bad role", `{"messages":[{"role":"robot","content":"x"}]}`},
		{"temperature out of range", `{"messages":[{"role":"user","content":"x"}],"temperature":3}`},
		{"malformed", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{}
			w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Nil(t, gen.got)
		})
	}
}

func TestGenerateSync(t *testing.T) {
	gen := &fakeGenerator{result: &chat.GenerateResult{MessageID: "m-1", Content: "Hello"}}
	w := request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate/sync", helloBody)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"Hello"`)

	gen = &fakeGenerator{
		result: &chat.GenerateResult{MessageID: "m-2", Error: "failed"},
		err:    &chat.ProviderConstructionError{Provider: "openai", Model: "gpt-4o", Err: errors.New("bad key")},
	}
	w = request(generationEngine(gen), http.MethodPost, "/v1/conversations/conv-1/generate/sync", helloBody)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), `"detail":"failed"`)
}

func TestStopAndState(t *testing.T) {
	gen := &fakeGenerator{inFlight: true}
	e := generationEngine(gen)

	w := request(e, http.MethodPost, "/v1/conversations/conv-1/stop", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "conv-1", gen.stopped)
	assert.Contains(t, w.Body.String(), `"aborted":true`)

	w = request(e, http.MethodGet, "/v1/conversations/conv-1/generation", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"inProgress":true`)

	gen.stopErr = errors.New("redis down")
	w = request(e, http.MethodPost, "/v1/conversations/conv-1/stop", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

type fakeDirectory struct{}

func (fakeDirectory) Providers() []string             { return []string{"ollama", "openai"} }
func (fakeDirectory) DisplayName(p string) string     { return strings.ToUpper(p) }
func (fakeDirectory) GetDefaultModel(p string) string { return p + "-default" }
func (fakeDirectory) RequiresKey(p string) bool       { return p != "ollama" }

func TestModelHandler(t *testing.T) {
	cat := catalog.New(
		service.ModelInfo{ID: "gpt-4o", Provider: "openai"},
		service.ModelInfo{ID: "llama3", Provider: "ollama"},
	)
	h := NewModelHandler(fakeDirectory{}, cat)
	e := gin.New()
	e.GET("/v1/providers", h.ListProviders)
	e.GET("/v1/providers/:provider/default-model", h.DefaultModel)
	e.GET("/v1/providers/:provider/models", h.ListModels)

	w := request(e, http.MethodGet, "/v1/providers/openai/default-model", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"model":"openai-default"`)

	w = request(e, http.MethodGet, "/v1/providers/nope/default-model", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = request(e, http.MethodGet, "/v1/providers/ollama/models", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"llama3"`)
	assert.NotContains(t, w.Body.String(), "gpt-4o")

	w = request(e, http.MethodGet, "/v1/providers", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requiresKey":false`)
}

func TestAccountHandler(t *testing.T) {
	cfg := &config.Config{Billing: config.BillingConfig{
		DefaultPlan: "free",
		Plans:       map[string]config.PlanConfig{"free": {CreditsLimit: 100, MaxSpendingDollars: 1}},
		ResetPeriod: 24 * time.Hour,
	}}
	profiles := memory.NewProfileStore()
	gate := credit.NewGate(cfg, memory.NewUsageStore(), memory.NewTransactor(), catalog.New())
	h := NewAccountHandler(gate, profiles, profiles, fakeDirectory{})

	e := gin.New()
	e.Use(middleware.Auth(middleware.AuthConfig{}))
	e.GET("/v1/usage", h.GetUsage)
	e.GET("/v1/preferences", h.GetPreferences)
	e.PUT("/v1/preferences", h.UpdatePreferences)
	e.PUT("/v1/credentials/:provider", h.PutCredential)

	w := request(e, http.MethodGet, "/v1/usage", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"creditsRemaining":100`)

	w = request(e, http.MethodPut, "/v1/preferences", `{"customInstructions":"be brief","saveToolMessages":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	prefs, err := profiles.GetUserPreferences(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "be brief", prefs.CustomInstructions)
	assert.True(t, prefs.SaveToolMessages)

	w = request(e, http.MethodPut, "/v1/credentials/openai", `{"apiKey":" sk-user "}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	key, err := profiles.GetAPIKeyForProvider(context.Background(), "user-1", "openai")
	require.NoError(t, err)
	assert.Equal(t, "sk-user", key)

	w = request(e, http.MethodPut, "/v1/credentials/openai", `{"apiKey":""}`)
	assert.Equal(t, http.StatusNoContent, w.Code)
	key, _ = profiles.GetAPIKeyForProvider(context.Background(), "user-1", "openai")
	assert.Empty(t, key)

	w = request(e, http.MethodPut, "/v1/credentials/unknown", `{"apiKey":"x"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type fakeChecker struct{ err error }

func (f fakeChecker) HealthCheck(context.Context) error { return f.err }

func TestReady(t *testing.T) {
	ok := NewHealthHandler("1.0.0", map[string]HealthChecker{"postgres": fakeChecker{}, "redis": fakeChecker{}})
	bad := NewHealthHandler("1.0.0", map[string]HealthChecker{"postgres": fakeChecker{}, "redis": fakeChecker{err: errors.New("down")}})

	e := gin.New()
	e.GET("/ok", ok.Ready)
	e.GET("/bad", bad.Ready)

	assert.Equal(t, http.StatusOK, request(e, http.MethodGet, "/ok", "").Code)
	w := request(e, http.MethodGet, "/bad", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "down")
}
