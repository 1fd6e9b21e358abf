package entity

import "time"

// UsageRecord 用户额度使用记录
type UsageRecord struct {
	UserID             string    `gorm:"type:varchar(64);primaryKey" json:"userId"`
	PlanTier           string    `gorm:"type:varchar(32);not null" json:"planTier"`
	CreditsUsed        int64     `gorm:"not null;default:0" json:"creditsUsed"`
	CreditsLimit       int64     `gorm:"not null" json:"creditsLimit"`
	DollarsSpent       float64   `gorm:"type:numeric(12,6);not null;default:0" json:"dollarsSpent"`
	MaxSpendingDollars float64   `gorm:"type:numeric(12,6);not null" json:"maxSpendingDollars"`
	SearchesUsed       int       `gorm:"not null;default:0" json:"searchesUsed"`
	ResetAt            time.Time `gorm:"not null" json:"resetAt"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (UsageRecord) TableName() string {
	return "usage_records"
}

// AvailableCredits 剩余额度，不为负
func (r *UsageRecord) AvailableCredits() int64 {
	if r.CreditsUsed >= r.CreditsLimit {
		return 0
	}
	return r.CreditsLimit - r.CreditsUsed
}

// NeedsReset 重置时间已过
func (r *UsageRecord) NeedsReset(now time.Time) bool {
	return !now.Before(r.ResetAt)
}

// Reset 清零用量并设置下一个重置时间
func (r *UsageRecord) Reset(now time.Time, period time.Duration) {
	r.CreditsUsed = 0
	r.DollarsSpent = 0
	r.SearchesUsed = 0
	r.ResetAt = now.Add(period)
}
