package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
)

type fakeAttachments struct {
	mu       sync.Mutex
	urls     map[string]string
	meta     map[string]*entity.AttachmentMetadata
	failRefs map[string]bool
	resolved []string
}

func (f *fakeAttachments) ResolvePublicURL(_ context.Context, ref string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved = append(f.resolved, ref)
	if f.failRefs[ref] {
		return "", errors.New("storage unavailable")
	}
	return f.urls[ref], nil
}

func (f *fakeAttachments) GetAttachmentMetadata(_ context.Context, ref string) (*entity.AttachmentMetadata, error) {
	return f.meta[ref], nil
}

func normalize(t *testing.T, store service.AttachmentStore, multimodal bool, msgs ...*entity.Message) []*schema.Message {
	t.Helper()
	n := NewNormalizer(testConfig(), store)
	out, err := n.Normalize(context.Background(), NormalizeInput{
		Messages: msgs,
		Model:    service.ModelInfo{ID: "m", IsMultimodal: multimodal},
	})
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, schema.System, out[0].Role)
	return out[1:]
}

func TestNormalizeResolvesStorageRefsForMultimodalModels(t *testing.T) {
	store := &fakeAttachments{
		urls:     map[string]string{"uploads/cat.png": "https://cdn.example.com/cat.png?sig=1"},
		failRefs: map[string]bool{"uploads/broken.png": true},
	}
	msg := &entity.Message{Role: entity.RoleUser, Content: entity.PartsContent(
		entity.ContentPart{Type: entity.PartText, Text: "look"},
		entity.ContentPart{Type: entity.PartImage, Image: "uploads/cat.png", MimeType: "image/png"},
		entity.ContentPart{Type: entity.PartImage, Image: "uploads/broken.png"},
		entity.ContentPart{Type: entity.PartImage, Image: "https://example.com/dog.png"},
	)}

	out := normalize(t, store, true, msg)
	require.Len(t, out, 1)
	parts := out[0].MultiContent
	require.Len(t, parts, 4)
	assert.Equal(t, "look", parts[0].Text)
	assert.Equal(t, "https://cdn.example.com/cat.png?sig=1", parts[1].ImageURL.URL)
	assert.Equal(t, "uploads/broken.png", parts[2].ImageURL.URL)
	assert.Equal(t, "https://example.com/dog.png", parts[3].ImageURL.URL)
	assert.ElementsMatch(t, []string{"uploads/cat.png", "uploads/broken.png"}, store.resolved)
}

func TestNormalizeReplacesMediaForTextOnlyModels(t *testing.T) {
	msg := &entity.Message{
		Role:    entity.RoleUser,
		Content: entity.TextContent("what is this?"),
		Attachments: entity.Attachments{
			{Type: entity.AttachmentImage, StorageRef: "uploads/a.png", Name: "a.png"},
		},
	}

	out := normalize(t, &fakeAttachments{}, false, msg)
	require.Len(t, out, 1)
	assert.Empty(t, out[0].MultiContent)
	assert.Contains(t, out[0].Content, "what is this?")
	assert.Contains(t, out[0].Content, `image attachment "a.png"`)
}

func TestNormalizeDocumentText(t *testing.T) {
	store := &fakeAttachments{meta: map[string]*entity.AttachmentMetadata{
		"uploads/page.html": {StorageRef: "uploads/page.html", ExtractedText: "<h1>Title</h1><p>Body text</p>"},
	}}
	msg := &entity.Message{
		Role:    entity.RoleUser,
		Content: entity.TextContent("summarize"),
		Attachments: entity.Attachments{
			{Type: entity.AttachmentDocument, StorageRef: "uploads/page.html", Name: "page.html", MimeType: "text/html"},
			{Type: entity.AttachmentDocument, StorageRef: "uploads/scan.pdf", Name: "scan.pdf"},
			{Type: entity.AttachmentText, StorageRef: "uploads/n.txt", Name: "n.txt", ExtractedText: "plain notes"},
		},
	}

	out := normalize(t, store, false, msg)
	content := out[0].Content
	assert.Contains(t, content, `Content of attached document "page.html"`)
	assert.Contains(t, content, "# Title")
	assert.NotContains(t, content, "<h1>")
	assert.Contains(t, content, `[Document "scan.pdf": the content could not be extracted.]`)
	assert.Contains(t, content, "plain notes")
}

func TestNormalizeReplaysToolCallsAndSkipsErrors(t *testing.T) {
	msgs := []*entity.Message{
		{Role: entity.RoleUser, Content: entity.TextContent("time?")},
		{Role: entity.RoleAssistant, Content: entity.TextContent("It is noon."), ToolCalls: entity.ToolCalls{
			{ID: "c1", Name: ToolCurrentTime, Arguments: `{}`, Result: `{"time":"12:00"}`},
		}},
		{Role: entity.RoleTool, Content: entity.TextContent(`{"time":"12:00"}`), ToolCallID: "c1"},
		{Role: entity.RoleAssistant, Content: entity.TextContent("boom"), IsError: true},
		{Role: entity.RoleUser, Content: entity.TextContent("thanks")},
	}

	out := normalize(t, nil, false, msgs...)
	require.Len(t, out, 5)
	assert.Equal(t, schema.User, out[0].Role)
	assert.Equal(t, schema.Assistant, out[1].Role)
	require.Len(t, out[1].ToolCalls, 1)
	assert.Equal(t, "c1", out[1].ToolCalls[0].ID)
	assert.Equal(t, schema.Tool, out[2].Role)
	assert.Equal(t, "c1", out[2].ToolCallID)
	assert.Equal(t, "It is noon.", out[3].Content)
	assert.Equal(t, "thanks", out[4].Content)
}

func TestNormalizeKeepsExistingSystemMessage(t *testing.T) {
	n := NewNormalizer(testConfig(), nil)
	out, err := n.Normalize(context.Background(), NormalizeInput{
		Messages: []*entity.Message{
			{Role: entity.RoleSystem, Content: entity.TextContent("be brief")},
			{Role: entity.RoleUser, Content: entity.TextContent("hi")},
		},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "be brief", out[0].Content)
}

func TestIsStorageRef(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"uploads/a.png", true},
		{"https://example.com/a.png", false},
		{"HTTP://example.com/a.png", false},
		{"data:image/png;base64,AAAA", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isStorageRef(tt.in), tt.in)
	}
}
