package credit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-chat-ai-api/internal/config"
	"z-chat-ai-api/internal/domain/entity"
	"z-chat-ai-api/internal/domain/service"
	"z-chat-ai-api/internal/infrastructure/catalog"
	"z-chat-ai-api/internal/infrastructure/persistence/memory"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestGate(records ...*entity.UsageRecord) (*Gate, *memory.UsageStore) {
	cfg := &config.Config{Billing: config.BillingConfig{
		DefaultPlan: "free",
		Plans: map[string]config.PlanConfig{
			"free": {CreditsLimit: 100, MaxSpendingDollars: 1},
		},
		FallbackPricing: config.PricingConfig{InputPerK: 0.001, OutputPerK: 0.003},
		ResetPeriod:     30 * 24 * time.Hour,
	}}
	cat := catalog.New(
		service.ModelInfo{ID: "pricey", Provider: "openai", Pricing: service.Pricing{InputPerK: 1, OutputPerK: 3}},
		service.ModelInfo{ID: "cheap", Provider: "openai", Pricing: service.Pricing{InputPerK: 0.01, OutputPerK: 0.02}},
	)
	store := memory.NewUsageStore(records...)
	g := NewGate(cfg, store, memory.NewTransactor(), cat)
	g.now = func() time.Time { return testNow }
	return g, store
}

func record(used, limit int64, spent, max float64) *entity.UsageRecord {
	return &entity.UsageRecord{
		UserID: "u1", PlanTier: "free",
		CreditsUsed: used, CreditsLimit: limit,
		DollarsSpent: spent, MaxSpendingDollars: max,
		ResetAt: testNow.Add(24 * time.Hour),
	}
}

func TestCredits(t *testing.T) {
	tests := []struct {
		dollars float64
		want    int64
	}{
		{0, 0},
		{-1, 0},
		{0.0001, 1},
		{0.07, 7},
		{0.011, 2},
		{7, 700},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Credits(tt.dollars), "dollars=%v", tt.dollars)
	}
}

func TestCheckAvailableInsufficient(t *testing.T) {
	g, _ := newTestGate(record(90, 100, 0, 100))

	res, err := g.CheckAvailable(context.Background(), "u1", "pricey", 1000, 2000)
	require.NoError(t, err)
	assert.Equal(t, int64(700), res.RequiredCredits)
	assert.Equal(t, int64(10), res.AvailableCredits)
	assert.False(t, res.HasCredits)
	assert.False(t, res.WouldExceedSpending)
}

func TestCheckAvailableSpendingCeiling(t *testing.T) {
	g, _ := newTestGate(record(0, 10000, 0.96, 1))

	res, err := g.CheckAvailable(context.Background(), "u1", "cheap", 1000, 2000)
	require.NoError(t, err)
	assert.True(t, res.HasCredits)
	assert.True(t, res.WouldExceedSpending)
}

func TestCheckAvailableNewUserUsesDefaultPlan(t *testing.T) {
	g, store := newTestGate()

	res, err := g.CheckAvailable(context.Background(), "fresh", "cheap", 100, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.AvailableCredits)
	assert.True(t, res.HasCredits)

	// 预检查不落库
	rec, err := store.Get(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestCheckAvailableAppliesResetView(t *testing.T) {
	expired := record(100, 100, 1, 1)
	expired.ResetAt = testNow.Add(-time.Minute)
	g, store := newTestGate(expired)

	res, err := g.CheckAvailable(context.Background(), "u1", "cheap", 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(100), res.AvailableCredits)
	assert.False(t, res.WouldExceedSpending)

	stored, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), stored.CreditsUsed)
}

func TestDeduct(t *testing.T) {
	g, store := newTestGate(record(10, 100, 0.1, 1))

	res, err := g.Deduct(context.Background(), "u1", "cheap", 1000, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.CreditsDeducted)
	assert.InDelta(t, 0.13, res.DollarsSpent, 1e-9)
	assert.Equal(t, int64(87), res.RemainingCredits)

	stored, err := store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(13), stored.CreditsUsed)
}

func TestDeductRejectsAtomically(t *testing.T) {
	tests := []struct {
		name    string
		rec     *entity.UsageRecord
		model   string
		in, out int
		check   func(t *testing.T, err error)
	}{
		{
			name: "credits exhausted", rec: record(90, 100, 0, 100),
			model: "pricey", in: 1000, out: 2000,
			check: func(t *testing.T, err error) {
				var ce *CreditExhaustedError
				require.ErrorAs(t, err, &ce)
				assert.Equal(t, int64(700), ce.Required)
				assert.Equal(t, int64(10), ce.Available)
			},
		},
		{
			name: "spending limit", rec: record(0, 10000, 0.995, 1),
			model: "cheap", in: 1000, out: 0,
			check: func(t *testing.T, err error) {
				var se *SpendingLimitError
				require.ErrorAs(t, err, &se)
				assert.InDelta(t, 0.995, se.Spent, 1e-9)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, store := newTestGate(tt.rec)
			before, _ := store.Get(context.Background(), "u1")

			res, err := g.Deduct(context.Background(), "u1", tt.model, tt.in, tt.out)
			assert.Nil(t, res)
			tt.check(t, err)

			after, _ := store.Get(context.Background(), "u1")
			assert.Equal(t, before, after)
		})
	}
}

func TestDeductPersistsLazyReset(t *testing.T) {
	expired := record(100, 100, 1, 1)
	expired.ResetAt = testNow.Add(-time.Hour)
	g, store := newTestGate(expired)

	res, err := g.Deduct(context.Background(), "u1", "cheap", 1000, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(99), res.RemainingCredits)

	stored, _ := store.Get(context.Background(), "u1")
	assert.Equal(t, int64(1), stored.CreditsUsed)
	assert.Equal(t, testNow.Add(30*24*time.Hour), stored.ResetAt)
}

func TestDeductCreatesRecordForNewUser(t *testing.T) {
	g, store := newTestGate()

	_, err := g.Deduct(context.Background(), "fresh", "unknown-model", 1000, 1000)
	require.NoError(t, err)

	stored, _ := store.Get(context.Background(), "fresh")
	require.NotNil(t, stored)
	assert.Equal(t, "free", stored.PlanTier)
	// 兜底价格 0.001 + 0.003 = $0.004 → 1 credit
	assert.Equal(t, int64(1), stored.CreditsUsed)
}

func TestReset(t *testing.T) {
	g, store := newTestGate(record(50, 100, 0.5, 1))

	require.NoError(t, g.Reset(context.Background(), "u1"))

	stored, _ := store.Get(context.Background(), "u1")
	assert.Zero(t, stored.CreditsUsed)
	assert.Zero(t, stored.DollarsSpent)
}

func TestPricingFallback(t *testing.T) {
	g, _ := newTestGate()
	assert.Equal(t, service.Pricing{InputPerK: 1, OutputPerK: 3}, g.Pricing("pricey"))
	assert.Equal(t, service.Pricing{InputPerK: 0.001, OutputPerK: 0.003}, g.Pricing("nope"))
}
