package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnibridge/pkg/types"
)

func addSamples(t *testing.T, s *Store, fees []float64, start time.Time, step time.Duration) {
	t.Helper()
	for i, fee := range fees {
		require.NoError(t, s.AddFeeSample(context.Background(), types.FeeSample{
			SourceNetwork:      "arbitrum",
			DestinationNetwork: "base",
			Token:              "USDC",
			FeeUSD:             decimal.NewFromFloat(fee),
			Timestamp:          start.Add(time.Duration(i) * step),
		}))
	}
}

func TestStatisticsAggregates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 20)

	base := time.Now().UTC().Add(-time.Hour)
	done := record("0x01", base)
	done.Status = types.StatusCompleted
	completedAt := base.Add(90 * time.Second)
	done.CompletedAt = &completedAt
	done.FeeUSD = decimal.NewFromFloat(2.5)
	require.NoError(t, s.Add(ctx, done))

	failed := record("0x02", base.Add(time.Minute))
	failed.Status = types.StatusFailed
	failed.Token = "WETH"
	failed.FeeUSD = decimal.NewFromFloat(1.5)
	require.NoError(t, s.Add(ctx, failed))

	pending := record("0x03", base.Add(2*time.Minute))
	require.NoError(t, s.Add(ctx, pending))

	stats := NewAnalytics(s).Statistics()

	assert.Equal(t, 3, stats.TotalTransfers)
	assert.Equal(t, 1, stats.Completed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Pending)
	// pending transfers are excluded from the success rate
	assert.InDelta(t, 0.5, stats.SuccessRate, 0.001)
	assert.InDelta(t, 90.0, stats.AvgCompletionSeconds, 0.001)
	assert.True(t, stats.TotalVolumeUSD.Equal(decimal.NewFromFloat(4.0)))

	usdc := stats.ByToken["usdc"]
	assert.Equal(t, 2, usdc.Total)
	assert.InDelta(t, 1.0, usdc.SuccessRate, 0.001)

	arb := stats.ByNetwork["arbitrum"]
	assert.Equal(t, 3, arb.Total)
}

func TestFeeTrendIncreasing(t *testing.T) {
	s := newTestStore(t, 10)
	addSamples(t, s, []float64{1.0, 1.0, 1.0, 1.0, 1.0, 2.0, 2.0, 2.0, 2.0, 2.0},
		time.Now().UTC().Add(-time.Hour), time.Minute)

	trend, err := NewAnalytics(s).FeeTrendAnalysis(context.Background(), "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Equal(t, TrendIncreasing, trend.Direction)
	assert.InDelta(t, 100.0, trend.PercentChange, 0.001)
	assert.Equal(t, 10, trend.SampleCount)
}

func TestFeeTrendDecreasing(t *testing.T) {
	s := newTestStore(t, 10)
	addSamples(t, s, []float64{2.0, 2.0, 2.0, 1.0, 1.0, 1.0},
		time.Now().UTC().Add(-time.Hour), time.Minute)

	trend, err := NewAnalytics(s).FeeTrendAnalysis(context.Background(), "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Equal(t, TrendDecreasing, trend.Direction)
}

func TestFeeTrendStableBelowThreshold(t *testing.T) {
	s := newTestStore(t, 10)
	// 2% move, under the 5% threshold
	addSamples(t, s, []float64{1.00, 1.00, 1.02, 1.02},
		time.Now().UTC().Add(-time.Hour), time.Minute)

	trend, err := NewAnalytics(s).FeeTrendAnalysis(context.Background(), "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Equal(t, TrendStable, trend.Direction)
}

func TestFeeTrendNeedsEnoughSamples(t *testing.T) {
	s := newTestStore(t, 10)
	addSamples(t, s, []float64{1.0, 2.0, 3.0}, time.Now().UTC(), time.Minute)

	_, err := NewAnalytics(s).FeeTrendAnalysis(context.Background(), "arbitrum", "base", "USDC")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not enough fee samples")
}

func TestFeeTrendUsesRecentWindowOnly(t *testing.T) {
	s := newTestStore(t, 10)
	// old expensive samples followed by a flat recent window
	fees := []float64{9.0, 9.0, 9.0, 9.0, 9.0}
	for i := 0; i < trendWindow; i++ {
		fees = append(fees, 1.0)
	}
	addSamples(t, s, fees, time.Now().UTC().Add(-2*time.Hour), time.Minute)

	trend, err := NewAnalytics(s).FeeTrendAnalysis(context.Background(), "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Equal(t, TrendStable, trend.Direction)
	assert.Equal(t, trendWindow, trend.SampleCount)
}

func TestBestTimeToBridge(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)

	day := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cheapHour := 3
	for hour, fee := range map[int]float64{1: 5.0, cheapHour: 0.5, 14: 2.0} {
		for i := 0; i < 2; i++ {
			require.NoError(t, s.AddFeeSample(ctx, types.FeeSample{
				SourceNetwork:      "arbitrum",
				DestinationNetwork: "base",
				Token:              "USDC",
				FeeUSD:             decimal.NewFromFloat(fee),
				Timestamp:          day.Add(time.Duration(hour)*time.Hour + time.Duration(i)*time.Minute),
			}))
		}
	}

	best, err := NewAnalytics(s).BestTimeToBridge(ctx, "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Equal(t, cheapHour, best.HourUTC)
	assert.True(t, best.AvgFeeUSD.Equal(decimal.NewFromFloat(0.5)), "got %s", best.AvgFeeUSD)
	assert.Equal(t, 2, best.SampleCount)
}

func TestBestTimeNoSamples(t *testing.T) {
	s := newTestStore(t, 10)
	_, err := NewAnalytics(s).BestTimeToBridge(context.Background(), "arbitrum", "base", "USDC")
	require.Error(t, err)
}

func TestAnalyticsDoesNotMutateStore(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 10)
	require.NoError(t, s.Add(ctx, record("0x01", time.Now().UTC())))
	addSamples(t, s, []float64{1, 2, 3, 4}, time.Now().UTC(), time.Minute)

	a := NewAnalytics(s)
	_ = a.Statistics()
	_, _ = a.FeeTrendAnalysis(ctx, "arbitrum", "base", "USDC")

	assert.Equal(t, 1, s.Len())
	samples, err := s.FeeSamples(ctx, "arbitrum", "base", "USDC")
	require.NoError(t, err)
	assert.Len(t, samples, 4)
}
