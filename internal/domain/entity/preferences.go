package entity

import "time"

// UserPreferences 用户生成偏好
type UserPreferences struct {
	UserID                string    `gorm:"type:varchar(64);primaryKey" json:"userId"`
	CustomSystemPrompt    string    `gorm:"type:text" json:"customSystemPrompt,omitempty"`
	UseCustomSystemPrompt bool      `gorm:"not null;default:false" json:"useCustomSystemPrompt"`
	CustomInstructions    string    `gorm:"type:text" json:"customInstructions,omitempty"`
	SaveToolMessages      bool      `gorm:"not null;default:false" json:"saveToolMessages"`
	UpdatedAt             time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (UserPreferences) TableName() string {
	return "user_preferences"
}

// ProviderCredential 用户自带的提供商密钥
type ProviderCredential struct {
	UserID    string    `gorm:"type:varchar(64);primaryKey" json:"userId"`
	Provider  string    `gorm:"type:varchar(32);primaryKey" json:"provider"`
	APIKey    string    `gorm:"type:text;not null" json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (ProviderCredential) TableName() string {
	return "provider_credentials"
}

// AttachmentMetadata 附件元数据
type AttachmentMetadata struct {
	StorageRef    string         `gorm:"type:varchar(255);primaryKey" json:"storageRef"`
	UserID        string         `gorm:"type:varchar(64);index" json:"userId"`
	Type          AttachmentType `gorm:"type:varchar(16);not null" json:"type"`
	Name          string         `gorm:"type:varchar(255)" json:"name"`
	MimeType      string         `gorm:"type:varchar(128)" json:"mimeType"`
	SizeBytes     int64          `json:"sizeBytes"`
	ExtractedText string         `gorm:"type:text" json:"extractedText,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// TableName 指定表名
func (AttachmentMetadata) TableName() string {
	return "attachments"
}
