package chat

import (
	"context"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/sync/errgroup"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/logger"
)

// Normalizer 将存储的对话历史转换为提供商可用的消息列表
type Normalizer struct {
	attachments service.AttachmentStore
	concurrency int
}

// NewNormalizer 创建消息规范化器
func NewNormalizer(cfg *config.Config, attachments service.AttachmentStore) *Normalizer {
	c := cfg.Generation.AttachmentConcurrency
	if c < 1 {
		c = 1
	}
	return &Normalizer{attachments: attachments, concurrency: c}
}

// NormalizeInput 规范化输入
type NormalizeInput struct {
	Messages     []*entity.Message
	Model        service.ModelInfo
	Preferences  *entity.UserPreferences
	Instructions string
}

// Normalize 解析附件并注入系统提示词
// 单个附件解析失败时保留原始引用并记录警告，不中断请求
func (n *Normalizer) Normalize(ctx context.Context, in NormalizeInput) ([]*schema.Message, error) {
	r := &resolver{n: n, multimodal: in.Model.IsMultimodal}

	out := make([]*schema.Message, 0, len(in.Messages)+1)
	for _, m := range in.Messages {
		if m == nil || m.IsError {
			continue
		}
		switch m.Role {
		case entity.RoleSystem:
			out = append(out, schema.SystemMessage(m.Content.PlainText()))
		case entity.RoleUser:
			out = append(out, r.userMessage(ctx, m))
		case entity.RoleAssistant:
			out = append(out, assistantMessages(m)...)
		}
	}

	// URL 可能很快过期，每次请求前重新解析
	if err := r.resolve(ctx); err != nil {
		return nil, err
	}
	return InjectSystemPrompt(out, BuildSystemPrompt(in.Preferences, in.Instructions)), nil
}

// assistantMessages 重放工具调用：调用 → 结果 → 最终回答
func assistantMessages(m *entity.Message) []*schema.Message {
	text := m.Content.PlainText()
	var out []*schema.Message
	if len(m.ToolCalls) > 0 {
		calls := make([]schema.ToolCall, 0, len(m.ToolCalls))
		for _, tc := range m.ToolCalls {
			calls = append(calls, schema.ToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: schema.FunctionCall{Name: tc.Name, Arguments: tc.Arguments},
			})
		}
		out = append(out, schema.AssistantMessage("", calls))
		for _, tc := range m.ToolCalls {
			out = append(out, schema.ToolMessage(tc.Result, tc.ID))
		}
	}
	if text != "" {
		out = append(out, schema.AssistantMessage(text, nil))
	}
	return out
}

type resolveJob struct {
	ref    string
	target *string
}

type resolver struct {
	n          *Normalizer
	multimodal bool
	jobs       []resolveJob
}

func (r *resolver) userMessage(ctx context.Context, m *entity.Message) *schema.Message {
	if !m.Content.IsMultipart() && len(m.Attachments) == 0 {
		return schema.UserMessage(m.Content.Text)
	}

	parts := r.contentParts(ctx, m.Content)
	for _, a := range m.Attachments {
		parts = append(parts, r.attachmentPart(ctx, a)...)
	}

	if !r.multimodal {
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			if p.Text != "" {
				texts = append(texts, p.Text)
			}
		}
		return schema.UserMessage(strings.Join(texts, "\n\n"))
	}
	return &schema.Message{Role: schema.User, MultiContent: parts}
}

func (r *resolver) contentParts(ctx context.Context, c entity.MessageContent) []schema.ChatMessagePart {
	if !c.IsMultipart() {
		if c.Text == "" {
			return nil
		}
		return []schema.ChatMessagePart{textPart(c.Text)}
	}

	parts := make([]schema.ChatMessagePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Type {
		case entity.PartText:
			if p.Text != "" {
				parts = append(parts, textPart(p.Text))
			}
		case entity.PartImage:
			if !r.multimodal {
				parts = append(parts, textPart(mediaPlaceholder(entity.AttachmentImage, p.Name)))
				continue
			}
			img := &schema.ChatMessageImageURL{URL: p.Image, MIMEType: p.MimeType}
			r.enqueue(p.Image, &img.URL)
			parts = append(parts, schema.ChatMessagePart{Type: schema.ChatMessagePartTypeImageURL, ImageURL: img})
		case entity.PartFile:
			parts = append(parts, r.filePart(ctx, p))
		}
	}
	return parts
}

func (r *resolver) filePart(ctx context.Context, p entity.ContentPart) schema.ChatMessagePart {
	kind := attachmentTypeForMime(p.MimeType)
	if !r.multimodal {
		if kind.IsMedia() {
			return textPart(mediaPlaceholder(kind, p.Name))
		}
		return textPart(documentText(p.Name, p.MimeType, r.extractedText(ctx, p.Data, "")))
	}
	return r.urlPart(kind, p.Data, p.MimeType, p.Name)
}

func (r *resolver) attachmentPart(ctx context.Context, a entity.Attachment) []schema.ChatMessagePart {
	if a.Type.IsMedia() {
		if !r.multimodal {
			return []schema.ChatMessagePart{textPart(mediaPlaceholder(a.Type, a.Name))}
		}
		return []schema.ChatMessagePart{r.urlPart(a.Type, a.StorageRef, a.MimeType, a.Name)}
	}

	text := r.extractedText(ctx, a.StorageRef, a.ExtractedText)
	if text == "" && r.multimodal {
		return []schema.ChatMessagePart{r.urlPart(a.Type, a.StorageRef, a.MimeType, a.Name)}
	}
	return []schema.ChatMessagePart{textPart(documentText(a.Name, a.MimeType, text))}
}

func (r *resolver) urlPart(kind entity.AttachmentType, ref, mime, name string) schema.ChatMessagePart {
	switch kind {
	case entity.AttachmentImage:
		img := &schema.ChatMessageImageURL{URL: ref, MIMEType: mime}
		r.enqueue(ref, &img.URL)
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeImageURL, ImageURL: img}
	case entity.AttachmentAudio:
		audio := &schema.ChatMessageAudioURL{URL: ref, MIMEType: mime}
		r.enqueue(ref, &audio.URL)
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeAudioURL, AudioURL: audio}
	case entity.AttachmentVideo:
		video := &schema.ChatMessageVideoURL{URL: ref, MIMEType: mime}
		r.enqueue(ref, &video.URL)
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeVideoURL, VideoURL: video}
	default:
		file := &schema.ChatMessageFileURL{URL: ref, MIMEType: mime, Name: name}
		r.enqueue(ref, &file.URL)
		return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeFileURL, FileURL: file}
	}
}

// extractedText 优先使用附件自带的抽取文本，其次查询元数据
func (r *resolver) extractedText(ctx context.Context, ref, text string) string {
	if strings.TrimSpace(text) != "" || ref == "" || !isStorageRef(ref) || r.n.attachments == nil {
		return text
	}
	meta, err := r.n.attachments.GetAttachmentMetadata(ctx, ref)
	if err != nil {
		logger.Warn(ctx, "failed to load attachment metadata", "storage_ref", ref, "error", err)
		return ""
	}
	if meta == nil {
		return ""
	}
	return meta.ExtractedText
}

func (r *resolver) enqueue(ref string, target *string) {
	if isStorageRef(ref) {
		r.jobs = append(r.jobs, resolveJob{ref: ref, target: target})
	}
}

// resolve 并发解析所有存储引用，每个任务只写自己的目标字段
func (r *resolver) resolve(ctx context.Context) error {
	if len(r.jobs) == 0 || r.n.attachments == nil {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.n.concurrency)
	for _, job := range r.jobs {
		g.Go(func() error {
			url, err := r.n.attachments.ResolvePublicURL(gctx, job.ref)
			if err != nil || url == "" {
				logger.Warn(ctx, "failed to resolve attachment url, sending original reference",
					"storage_ref", job.ref, "error", err)
				return nil
			}
			*job.target = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func textPart(s string) schema.ChatMessagePart {
	return schema.ChatMessagePart{Type: schema.ChatMessagePartTypeText, Text: s}
}

func mediaPlaceholder(kind entity.AttachmentType, name string) string {
	if name == "" {
		name = "unnamed"
	}
	return fmt.Sprintf("[%s attachment %q: this model cannot process %s content. Switch to a multimodal model to include it.]", kind, name, kind)
}

func documentText(name, mime, text string) string {
	if name == "" {
		name = "unnamed"
	}
	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("[Document %q: the content could not be extracted.]", name)
	}
	if isHTML(mime, text) {
		if md, err := htmltomarkdown.ConvertString(text); err == nil && strings.TrimSpace(md) != "" {
			text = md
		}
	}
	return fmt.Sprintf("Content of attached document %q:\n\n%s", name, text)
}

func isHTML(mime, text string) bool {
	if strings.Contains(strings.ToLower(mime), "html") {
		return true
	}
	t := strings.ToLower(strings.TrimSpace(text))
	return strings.HasPrefix(t, "<!doctype html") || strings.HasPrefix(t, "<html")
}

func attachmentTypeForMime(mime string) entity.AttachmentType {
	switch m := strings.ToLower(mime); {
	case strings.HasPrefix(m, "image/"):
		return entity.AttachmentImage
	case strings.HasPrefix(m, "audio/"):
		return entity.AttachmentAudio
	case strings.HasPrefix(m, "video/"):
		return entity.AttachmentVideo
	case strings.HasPrefix(m, "text/"):
		return entity.AttachmentText
	default:
		return entity.AttachmentDocument
	}
}

// isStorageRef URL 与 data URI 之外的值视为不透明存储引用
func isStorageRef(s string) bool {
	l := strings.ToLower(strings.TrimSpace(s))
	if l == "" {
		return false
	}
	return !strings.HasPrefix(l, "http://") && !strings.HasPrefix(l, "https://") && !strings.HasPrefix(l, "data:")
}
