package entity

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
	RoleTool      Role = "tool"
)

// DefaultBranchID 未指定分支时使用的主线分支
const DefaultBranchID = "main"

// PartType 内容片段类型
type PartType string

const (
	PartText  PartType = "text"
	PartImage PartType = "image"
	PartFile  PartType = "file"
)

// ContentPart 多模态内容片段
// image 片段使用 Image，file 片段使用 Data + MimeType，二者均可为 URL 或存储引用
type ContentPart struct {
	Type     PartType `json:"type" validate:"required,oneof=text image file"`
	Text     string   `json:"text,omitempty"`
	Image    string   `json:"image,omitempty"`
	Data     string   `json:"data,omitempty"`
	MimeType string   `json:"mimeType,omitempty"`
	Name     string   `json:"name,omitempty"`
}

// MessageContent 消息内容：纯文本或有序片段列表
type MessageContent struct {
	Text  string
	Parts []ContentPart
}

// TextContent 构造纯文本内容
func TextContent(s string) MessageContent {
	return MessageContent{Text: s}
}

// PartsContent 构造多片段内容
func PartsContent(parts ...ContentPart) MessageContent {
	return MessageContent{Parts: parts}
}

// IsMultipart 是否为片段形式
func (c MessageContent) IsMultipart() bool {
	return c.Parts != nil
}

// PlainText 返回所有文本片段拼接后的文本
func (c MessageContent) PlainText() string {
	if !c.IsMultipart() {
		return c.Text
	}
	var sb strings.Builder
	for _, p := range c.Parts {
		if p.Type != PartText || p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(p.Text)
	}
	return sb.String()
}

// MarshalJSON 纯文本编码为字符串，片段编码为数组
func (c MessageContent) MarshalJSON() ([]byte, error) {
	if c.IsMultipart() {
		return json.Marshal(c.Parts)
	}
	return json.Marshal(c.Text)
}

// UnmarshalJSON 接受字符串或片段数组
func (c *MessageContent) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0, bytes.Equal(trimmed, []byte("null")):
		*c = MessageContent{}
		return nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*c = MessageContent{Text: s}
		return nil
	case trimmed[0] == '[':
		parts := []ContentPart{}
		if err := json.Unmarshal(trimmed, &parts); err != nil {
			return err
		}
		*c = MessageContent{Parts: parts}
		return nil
	default:
		return fmt.Errorf("message content must be a string or an array of parts")
	}
}

// Value 实现 driver.Valuer
func (c MessageContent) Value() (driver.Value, error) { return jsonValue(c) }

// Scan 实现 sql.Scanner
func (c *MessageContent) Scan(src any) error { return jsonScan(src, c) }

// AttachmentType 附件类型
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentAudio    AttachmentType = "audio"
	AttachmentVideo    AttachmentType = "video"
	AttachmentDocument AttachmentType = "document"
	AttachmentText     AttachmentType = "text"
)

// IsMedia 图片/音频/视频
func (t AttachmentType) IsMedia() bool {
	return t == AttachmentImage || t == AttachmentAudio || t == AttachmentVideo
}

// Attachment 消息附件引用
type Attachment struct {
	Type          AttachmentType `json:"type"`
	StorageRef    string         `json:"storageRef"`
	Name          string         `json:"name,omitempty"`
	ExtractedText string         `json:"extractedText,omitempty"`
	MimeType      string         `json:"mimeType,omitempty"`
}

// Attachments 附件列表（jsonb）
type Attachments []Attachment

// Value 实现 driver.Valuer
func (a Attachments) Value() (driver.Value, error) { return jsonValue(a) }

// Scan 实现 sql.Scanner
func (a *Attachments) Scan(src any) error { return jsonScan(src, a) }

// ToolCall 工具调用记录
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"args"`
	Result    string `json:"result,omitempty"`
}

// ToolCalls 有序工具调用列表（jsonb）
type ToolCalls []ToolCall

// Value 实现 driver.Valuer
func (t ToolCalls) Value() (driver.Value, error) { return jsonValue(t) }

// Scan 实现 sql.Scanner
func (t *ToolCalls) Scan(src any) error { return jsonScan(src, t) }

// Clone 复制列表，避免持久化快照与后续追加共享底层数组
func (t ToolCalls) Clone() ToolCalls {
	if t == nil {
		return nil
	}
	out := make(ToolCalls, len(t))
	copy(out, t)
	return out
}

// Message 对话消息
type Message struct {
	ID             string             `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID string             `gorm:"type:varchar(64);not null;index:idx_messages_conv_branch,priority:1" json:"conversationId"`
	BranchID       string             `gorm:"type:varchar(64);not null;default:'main';index:idx_messages_conv_branch,priority:2" json:"branchId"`
	UserID         string             `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	Role           Role               `gorm:"type:varchar(16);not null" json:"role"`
	Content        MessageContent     `gorm:"type:jsonb" json:"content"`
	Attachments    Attachments        `gorm:"type:jsonb" json:"attachments,omitempty"`
	Thinking       string             `gorm:"type:text" json:"thinking,omitempty"`
	ToolCalls      ToolCalls          `gorm:"type:jsonb" json:"toolCalls,omitempty"`
	ToolCallID     string             `gorm:"type:varchar(128)" json:"toolCallId,omitempty"`
	Metrics        *GenerationMetrics `gorm:"column:generation_metrics;type:jsonb" json:"generationMetrics,omitempty"`
	IsError        bool               `gorm:"not null;default:false" json:"isError"`
	StoppedByUser  bool               `gorm:"not null;default:false" json:"stoppedByUser,omitempty"`
	CreatedAt      time.Time          `json:"createdAt"`
	UpdatedAt      time.Time          `json:"updatedAt"`
}

// TableName 指定表名
func (Message) TableName() string {
	return "messages"
}

// MessagePatch 消息的局部更新，nil 字段保持不变
type MessagePatch struct {
	Content       *MessageContent
	Thinking      *string
	ToolCalls     *ToolCalls
	Metrics       *GenerationMetrics
	IsError       *bool
	StoppedByUser *bool
}

// Apply 将局部更新应用到消息
func (p *MessagePatch) Apply(m *Message) {
	if p.Content != nil {
		m.Content = *p.Content
	}
	if p.Thinking != nil {
		m.Thinking = *p.Thinking
	}
	if p.ToolCalls != nil {
		m.ToolCalls = p.ToolCalls.Clone()
	}
	if p.Metrics != nil {
		metrics := *p.Metrics
		m.Metrics = &metrics
	}
	if p.IsError != nil {
		m.IsError = *p.IsError
	}
	if p.StoppedByUser != nil {
		m.StoppedByUser = *p.StoppedByUser
	}
}

// Columns 转换为 gorm Updates 使用的列映射
func (p *MessagePatch) Columns() map[string]any {
	cols := make(map[string]any)
	if p.Content != nil {
		cols["content"] = *p.Content
	}
	if p.Thinking != nil {
		cols["thinking"] = *p.Thinking
	}
	if p.ToolCalls != nil {
		cols["tool_calls"] = *p.ToolCalls
	}
	if p.Metrics != nil {
		cols["generation_metrics"] = p.Metrics
	}
	if p.IsError != nil {
		cols["is_error"] = *p.IsError
	}
	if p.StoppedByUser != nil {
		cols["stopped_by_user"] = *p.StoppedByUser
	}
	return cols
}
