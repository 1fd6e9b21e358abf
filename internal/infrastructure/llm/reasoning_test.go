package llm

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel 按预设分片返回的假模型
type scriptedModel struct {
	chunks    []*schema.Message
	streamErr error
	tools     []*schema.ToolInfo
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	var sb strings.Builder
	for _, c := range m.chunks {
		sb.WriteString(c.Content)
	}
	return schema.AssistantMessage(sb.String(), nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	r, w := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	go func() {
		defer w.Close()
		for _, c := range m.chunks {
			w.Send(c, nil)
		}
		if m.streamErr != nil {
			w.Send(nil, m.streamErr)
		}
	}()
	return r, nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	cp := *m
	cp.tools = tools
	return &cp, nil
}

func textChunks(parts ...string) []*schema.Message {
	out := make([]*schema.Message, 0, len(parts))
	for _, p := range parts {
		out = append(out, schema.AssistantMessage(p, nil))
	}
	return out
}

func drain(t *testing.T, sr *schema.StreamReader[*schema.Message]) (visible, reasoning string, err error) {
	t.Helper()
	defer sr.Close()
	var vis, rsn strings.Builder
	for {
		msg, recvErr := sr.Recv()
		if errors.Is(recvErr, io.EOF) {
			return vis.String(), rsn.String(), nil
		}
		if recvErr != nil {
			return vis.String(), rsn.String(), recvErr
		}
		vis.WriteString(msg.Content)
		rsn.WriteString(msg.ReasoningContent)
	}
}

func TestTagParserSplitAcrossChunks(t *testing.T) {
	tests := []struct {
		name          string
		tag           string
		chunks        []string
		wantVisible   string
		wantReasoning string
	}{
		{"whole tags", "think", []string{"<think>plan</think>answer"}, "answer", "plan"},
		{"open tag split", "think", []string{"<thi", "nk>plan</think>ok"}, "ok", "plan"},
		{"close tag split", "thinking", []string{"<thinking>a", "b</thin", "king>done"}, "done", "ab"},
		{"no tags", "think", []string{"plain ", "text"}, "plain text", ""},
		{"lookalike is visible", "think", []string{"a <thin", "g> b"}, "a <thing> b", ""},
		{"unterminated tag", "think", []string{"<think>still going"}, "", "still going"},
		{"trailing partial tag", "think", []string{"end <thi"}, "end <thi", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTagParser(tt.tag)
			var vis, rsn strings.Builder
			for _, c := range tt.chunks {
				v, r := p.feed(c)
				vis.WriteString(v)
				rsn.WriteString(r)
			}
			v, r := p.flush()
			vis.WriteString(v)
			rsn.WriteString(r)

			assert.Equal(t, tt.wantVisible, vis.String())
			assert.Equal(t, tt.wantReasoning, rsn.String())
		})
	}
}

func TestReasoningExtractorStream(t *testing.T) {
	inner := &scriptedModel{chunks: textChunks("<thi", "nk>step one", "</think>", "Hello")}
	m := WithReasoningExtraction(inner, "think")

	sr, err := m.Stream(context.Background(), nil)
	require.NoError(t, err)

	visible, reasoning, err := drain(t, sr)
	require.NoError(t, err)
	assert.Equal(t, "Hello", visible)
	assert.Equal(t, "step one", reasoning)
}

func TestReasoningExtractorStreamPropagatesError(t *testing.T) {
	inner := &scriptedModel{chunks: textChunks("partial"), streamErr: errors.New("connection reset")}
	m := WithReasoningExtraction(inner, "thinking")

	sr, err := m.Stream(context.Background(), nil)
	require.NoError(t, err)

	visible, _, err := drain(t, sr)
	assert.Equal(t, "partial", visible)
	assert.EqualError(t, err, "connection reset")
}

func TestReasoningExtractorGenerate(t *testing.T) {
	inner := &scriptedModel{chunks: textChunks("<thinking>why</thinking>because")}
	m := WithReasoningExtraction(inner, "thinking")

	out, err := m.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "because", out.Content)
	assert.Equal(t, "why", out.ReasoningContent)
}

func TestReasoningExtractorWithToolsKeepsWrapper(t *testing.T) {
	m := WithReasoningExtraction(&scriptedModel{}, "think")

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "search"}})
	require.NoError(t, err)

	wrapper, ok := bound.(*reasoningExtractor)
	require.True(t, ok)
	assert.Equal(t, "think", wrapper.tag)
	assert.Len(t, wrapper.inner.(*scriptedModel).tools, 1)
}
