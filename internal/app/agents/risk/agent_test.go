package risk

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrarejimmyz/zkvanguard/internal/app/bus"
	"github.com/mrarejimmyz/zkvanguard/internal/app/domain/market"
	"github.com/mrarejimmyz/zkvanguard/internal/app/marketdata"
	"github.com/mrarejimmyz/zkvanguard/internal/app/storage/memory"
)

func newAggregator(t *testing.T, store *memory.Store) *marketdata.Aggregator {
	t.Helper()
	return marketdata.New(store, nil, marketdata.Options{MaxAge: time.Minute}, nil)
}

func TestAssessEmptyInputsReturnsPlaceholder(t *testing.T) {
	agent := New(newAggregator(t, memory.New()), nil, nil)

	assessment, err := agent.Assess(context.Background(), "0xabc", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 50.0, assessment.HealthScore)
	assert.Equal(t, 0.5, assessment.LiquidationRisk)
	assert.NotEmpty(t, assessment.Recommendations, "placeholder must include a recommendation")
}

func TestAssessBoundsRespected(t *testing.T) {
	agent := New(nil, nil, nil)

	positions := []market.Position{
		{Symbol: "ETH", Balance: 10, BalanceUSD: 35000, Change24h: -45},
		{Symbol: "BTC", Balance: 1, BalanceUSD: 65000, Change24h: 60},
	}

	assessment, err := agent.Assess(context.Background(), "0xabc", positions, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, assessment.HealthScore, 0.0)
	assert.LessOrEqual(t, assessment.HealthScore, 100.0)
	assert.GreaterOrEqual(t, assessment.LiquidationRisk, 0.0)
	assert.LessOrEqual(t, assessment.LiquidationRisk, 1.0)
	assert.NotEmpty(t, assessment.Recommendations)
}

func TestAssessUsesCachedPortfolioWhenPositionsOmitted(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, store.UpsertPositions(ctx, []market.Position{
		{WalletAddress: "0xabc", Symbol: "ETH", Chain: "ethereum", Balance: 2},
	}))
	require.NoError(t, store.UpsertPrices(ctx, []market.Price{
		{Symbol: "ETH", Price: 3500, Change24h: 1.5, UpdatedAt: now},
	}))

	agent := New(newAggregator(t, store), nil, nil)

	assessment, err := agent.Assess(ctx, "0xabc", nil, nil)
	require.NoError(t, err)

	// A populated portfolio must not fall back to placeholder metrics.
	assert.NotEqual(t, 50.0, assessment.HealthScore)
	assert.NotEmpty(t, assessment.Recommendations)
}

func TestAssessConcentrationRecommendation(t *testing.T) {
	agent := New(nil, nil, nil)

	positions := []market.Position{
		{Symbol: "ETH", Balance: 100, BalanceUSD: 99000, Change24h: 1},
		{Symbol: "BTC", Balance: 0.01, BalanceUSD: 1000, Change24h: 1.2},
	}

	assessment, err := agent.Assess(context.Background(), "0xabc", positions, nil)
	require.NoError(t, err)

	found := false
	for _, rec := range assessment.Recommendations {
		if strings.Contains(strings.ToLower(rec), "concentration") {
			found = true
		}
	}
	assert.True(t, found, "expected a concentration recommendation, got %v", assessment.Recommendations)
}

func TestStartIsIdempotent(t *testing.T) {
	b := bus.New(10, nil)
	agent := New(nil, b, nil)

	require.NoError(t, agent.Start(context.Background()))
	require.NoError(t, agent.Start(context.Background()))

	stats := b.Stats()
	assert.Equal(t, 1, stats.ByType["agent-started"], "second Start must not re-announce or re-subscribe")
}
