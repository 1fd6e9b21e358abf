// Package credit 提供内置密钥调用的额度检查与扣减
package credit

import (
	"context"
	"fmt"
	"math"
	"time"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/repository"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/pkg/metrics"
)

// CentsPerDollar 1 credit = $0.01
const CentsPerDollar = 100

// floatTolerance 抵消浮点乘法误差，避免 0.07*100 向上取整成 8
const floatTolerance = 1e-9

// CreditExhaustedError 剩余额度不足
type CreditExhaustedError struct {
	UserID    string
	Required  int64
	Available int64
}

func (e *CreditExhaustedError) Error() string {
	return fmt.Sprintf("insufficient credits: user=%s required=%d available=%d", e.UserID, e.Required, e.Available)
}

// SpendingLimitError 超出消费上限
type SpendingLimitError struct {
	UserID string
	Spent  float64
	Cost   float64
	Max    float64
}

func (e *SpendingLimitError) Error() string {
	return fmt.Sprintf("spending limit exceeded: user=%s spent=$%.4f cost=$%.4f max=$%.2f", e.UserID, e.Spent, e.Cost, e.Max)
}

// CheckResult 预检查结果
type CheckResult struct {
	HasCredits          bool    `json:"hasCredits"`
	RequiredCredits     int64   `json:"requiredCredits"`
	AvailableCredits    int64   `json:"availableCredits"`
	WouldExceedSpending bool    `json:"wouldExceedSpending"`
	EstimatedDollars    float64 `json:"estimatedDollars"`
}

// DeductResult 扣减结果
type DeductResult struct {
	CreditsDeducted  int64   `json:"creditsDeducted"`
	DollarsSpent     float64 `json:"dollarsSpent"`
	RemainingCredits int64   `json:"remainingCredits"`
}

// Gate 额度闸门
type Gate struct {
	repo    repository.UsageRepository
	tx      repository.Transactor
	catalog service.ModelCatalog
	billing config.BillingConfig
	now     func() time.Time
}

// NewGate 创建额度闸门
func NewGate(cfg *config.Config, repo repository.UsageRepository, tx repository.Transactor, catalog service.ModelCatalog) *Gate {
	return &Gate{
		repo:    repo,
		tx:      tx,
		catalog: catalog,
		billing: cfg.Billing,
		now:     time.Now,
	}
}

// Pricing 查询模型定价，未知模型使用兜底价格
func (g *Gate) Pricing(model string) service.Pricing {
	if g.catalog != nil {
		if info, ok := g.catalog.GetModelInfo(model); ok {
			return info.Pricing
		}
	}
	return service.Pricing{
		InputPerK:  g.billing.FallbackPricing.InputPerK,
		OutputPerK: g.billing.FallbackPricing.OutputPerK,
	}
}

// Cost 计算美元成本
func (g *Gate) Cost(model string, inputTokens, outputTokens int) float64 {
	p := g.Pricing(model)
	return float64(inputTokens)/1000*p.InputPerK + float64(outputTokens)/1000*p.OutputPerK
}

// Credits 美元向上取整到 credit
func Credits(dollars float64) int64 {
	if dollars <= 0 {
		return 0
	}
	return int64(math.Ceil(dollars*CentsPerDollar - floatTolerance))
}

// CheckAvailable 只读预检查，不写入任何状态
// 重置时间已过的记录按重置后的视图计算
func (g *Gate) CheckAvailable(ctx context.Context, userID, model string, estInputTokens, estOutputTokens int) (*CheckResult, error) {
	rec, err := g.view(ctx, userID)
	if err != nil {
		return nil, err
	}

	cost := g.Cost(model, estInputTokens, estOutputTokens)
	required := Credits(cost)
	available := rec.AvailableCredits()

	return &CheckResult{
		HasCredits:          required <= available,
		RequiredCredits:     required,
		AvailableCredits:    available,
		WouldExceedSpending: exceeds(rec.DollarsSpent+cost, rec.MaxSpendingDollars),
		EstimatedDollars:    cost,
	}, nil
}

// Deduct 按实际用量扣减，额度与消费上限在事务内重新校验
// 任一上限被突破时返回错误且不做任何扣减
func (g *Gate) Deduct(ctx context.Context, userID, model string, inputTokens, outputTokens int) (*DeductResult, error) {
	cost := g.Cost(model, inputTokens, outputTokens)
	credits := Credits(cost)

	var result *DeductResult
	err := g.tx.WithTransaction(ctx, func(ctx context.Context) error {
		rec, err := g.repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		now := g.now()
		if rec == nil {
			rec = g.newRecord(userID, now)
		} else if rec.NeedsReset(now) {
			rec.Reset(now, g.billing.ResetPeriod)
		}

		if rec.CreditsUsed+credits > rec.CreditsLimit {
			metrics.CreditRejections.WithLabelValues("credits").Inc()
			return &CreditExhaustedError{UserID: userID, Required: credits, Available: rec.AvailableCredits()}
		}
		if exceeds(rec.DollarsSpent+cost, rec.MaxSpendingDollars) {
			metrics.CreditRejections.WithLabelValues("spending").Inc()
			return &SpendingLimitError{UserID: userID, Spent: rec.DollarsSpent, Cost: cost, Max: rec.MaxSpendingDollars}
		}

		rec.CreditsUsed += credits
		rec.DollarsSpent += cost
		if err := g.repo.Save(ctx, rec); err != nil {
			return err
		}

		result = &DeductResult{
			CreditsDeducted:  credits,
			DollarsSpent:     rec.DollarsSpent,
			RemainingCredits: rec.AvailableCredits(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.CreditsDeducted.WithLabelValues(model).Add(float64(credits))
	return result, nil
}

// Usage 返回当前用量视图（已应用惰性重置）
func (g *Gate) Usage(ctx context.Context, userID string) (*entity.UsageRecord, error) {
	return g.view(ctx, userID)
}

// Reset 立即重置用户用量
func (g *Gate) Reset(ctx context.Context, userID string) error {
	return g.tx.WithTransaction(ctx, func(ctx context.Context) error {
		rec, err := g.repo.GetForUpdate(ctx, userID)
		if err != nil {
			return err
		}
		now := g.now()
		if rec == nil {
			rec = g.newRecord(userID, now)
		} else {
			rec.Reset(now, g.billing.ResetPeriod)
		}
		return g.repo.Save(ctx, rec)
	})
}

func (g *Gate) view(ctx context.Context, userID string) (*entity.UsageRecord, error) {
	rec, err := g.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := g.now()
	if rec == nil {
		return g.newRecord(userID, now), nil
	}
	cp := *rec
	if cp.NeedsReset(now) {
		cp.Reset(now, g.billing.ResetPeriod)
	}
	return &cp, nil
}

func (g *Gate) newRecord(userID string, now time.Time) *entity.UsageRecord {
	tier, plan := g.billing.Plan(g.billing.DefaultPlan)
	return &entity.UsageRecord{
		UserID:             userID,
		PlanTier:           tier,
		CreditsLimit:       plan.CreditsLimit,
		MaxSpendingDollars: plan.MaxSpendingDollars,
		ResetAt:            now.Add(g.billing.ResetPeriod),
	}
}

func exceeds(total, max float64) bool {
	return total > max+floatTolerance
}
