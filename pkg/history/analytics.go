package history

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"omnibridge/pkg/types"
)

const (
	// trendWindow is how many recent fee samples the trend analysis compares.
	trendWindow = 10
	// trendThresholdPct is the minimum mean change treated as a real move.
	trendThresholdPct = 5.0
)

// TrendDirection classifies a route's recent fee movement.
type TrendDirection string

const (
	TrendIncreasing TrendDirection = "increasing"
	TrendDecreasing TrendDirection = "decreasing"
	TrendStable     TrendDirection = "stable"
)

// GroupStats aggregates outcomes for one network or token.
type GroupStats struct {
	Total       int     `json:"total"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// Statistics is the aggregate report over the full history.
type Statistics struct {
	TotalTransfers       int                   `json:"total_transfers"`
	Completed            int                   `json:"completed"`
	Failed               int                   `json:"failed"`
	Pending              int                   `json:"pending"`
	SuccessRate          float64               `json:"success_rate"`
	AvgCompletionSeconds float64               `json:"avg_completion_seconds"`
	TotalVolumeUSD       decimal.Decimal       `json:"total_volume_usd"`
	ByNetwork            map[string]GroupStats `json:"by_network"`
	ByToken              map[string]GroupStats `json:"by_token"`
}

// FeeTrend is the result of the half-window mean comparison.
type FeeTrend struct {
	SourceNetwork      string          `json:"source_network"`
	DestinationNetwork string          `json:"destination_network"`
	Token              string          `json:"token"`
	Direction          TrendDirection  `json:"direction"`
	PercentChange      float64         `json:"percent_change"`
	SampleCount        int             `json:"sample_count"`
	LatestFeeUSD       decimal.Decimal `json:"latest_fee_usd"`
}

// BestTime is the hour-of-day recommendation with the lowest average fee.
type BestTime struct {
	HourUTC     int             `json:"hour_utc"`
	AvgFeeUSD   decimal.Decimal `json:"avg_fee_usd"`
	SampleCount int             `json:"sample_count"`
}

// Analytics derives read-only projections over a Store. It never mutates the
// underlying history.
type Analytics struct {
	store *Store
}

// NewAnalytics wraps a Store for reporting.
func NewAnalytics(store *Store) *Analytics {
	return &Analytics{store: store}
}

// Statistics computes the overall, per-network and per-token report on
// demand.
func (a *Analytics) Statistics() Statistics {
	records := a.store.List(Filter{})

	stats := Statistics{
		TotalTransfers: len(records),
		TotalVolumeUSD: decimal.Zero,
		ByNetwork:      make(map[string]GroupStats),
		ByToken:        make(map[string]GroupStats),
	}

	var completionTotal float64
	var completionCount int

	for _, r := range records {
		switch {
		case r.Status == types.StatusCompleted:
			stats.Completed++
		case r.Status == types.StatusFailed || r.Status == types.StatusTimeout:
			stats.Failed++
		default:
			stats.Pending++
		}

		stats.TotalVolumeUSD = stats.TotalVolumeUSD.Add(r.FeeUSD)

		if r.CompletedAt != nil {
			completionTotal += r.CompletedAt.Sub(r.Timestamp).Seconds()
			completionCount++
		}

		for _, network := range []string{r.SourceNetwork, r.DestinationNetwork} {
			bumpGroup(stats.ByNetwork, strings.ToLower(network), r.Status)
		}
		bumpGroup(stats.ByToken, strings.ToLower(r.Token), r.Status)
	}

	if decided := stats.Completed + stats.Failed; decided > 0 {
		stats.SuccessRate = float64(stats.Completed) / float64(decided)
	}
	if completionCount > 0 {
		stats.AvgCompletionSeconds = completionTotal / float64(completionCount)
	}

	for key, g := range stats.ByNetwork {
		stats.ByNetwork[key] = finishGroup(g)
	}
	for key, g := range stats.ByToken {
		stats.ByToken[key] = finishGroup(g)
	}

	return stats
}

func bumpGroup(groups map[string]GroupStats, key string, status types.Status) {
	g := groups[key]
	g.Total++
	switch {
	case status == types.StatusCompleted:
		g.Completed++
	case status == types.StatusFailed || status == types.StatusTimeout:
		g.Failed++
	}
	groups[key] = g
}

func finishGroup(g GroupStats) GroupStats {
	if decided := g.Completed + g.Failed; decided > 0 {
		g.SuccessRate = float64(g.Completed) / float64(decided)
	}
	return g
}

// FeeTrendAnalysis classifies the route's recent fees as increasing,
// decreasing or stable by comparing the mean of the earlier half of the
// window to the later half. Small moves below the threshold report stable to
// avoid noise-driven flips.
func (a *Analytics) FeeTrendAnalysis(ctx context.Context, source, destination, token string) (*FeeTrend, error) {
	samples, err := a.store.FeeSamples(ctx, source, destination, token)
	if err != nil {
		return nil, err
	}
	if len(samples) < 4 {
		return nil, fmt.Errorf("not enough fee samples for %s->%s %s: have %d, need 4",
			source, destination, token, len(samples))
	}

	if len(samples) > trendWindow {
		samples = samples[len(samples)-trendWindow:]
	}

	half := len(samples) / 2
	earlier := meanFee(samples[:half])
	later := meanFee(samples[half:])

	trend := &FeeTrend{
		SourceNetwork:      source,
		DestinationNetwork: destination,
		Token:              token,
		Direction:          TrendStable,
		SampleCount:        len(samples),
		LatestFeeUSD:       samples[len(samples)-1].FeeUSD,
	}

	if earlier.IsZero() {
		return trend, nil
	}

	change, _ := later.Sub(earlier).Div(earlier).Mul(decimal.NewFromInt(100)).Float64()
	trend.PercentChange = change

	switch {
	case change > trendThresholdPct:
		trend.Direction = TrendIncreasing
	case change < -trendThresholdPct:
		trend.Direction = TrendDecreasing
	}

	return trend, nil
}

// BestTimeToBridge buckets the route's fee samples by hour of day (UTC) and
// returns the hour with the lowest average fee.
func (a *Analytics) BestTimeToBridge(ctx context.Context, source, destination, token string) (*BestTime, error) {
	samples, err := a.store.FeeSamples(ctx, source, destination, token)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("no fee samples for %s->%s %s", source, destination, token)
	}

	type bucket struct {
		sum   decimal.Decimal
		count int
	}
	buckets := make(map[int]*bucket)
	for _, s := range samples {
		hour := s.Timestamp.UTC().Hour()
		b, ok := buckets[hour]
		if !ok {
			b = &bucket{sum: decimal.Zero}
			buckets[hour] = b
		}
		b.sum = b.sum.Add(s.FeeUSD)
		b.count++
	}

	best := (*BestTime)(nil)
	for hour, b := range buckets {
		avg := b.sum.Div(decimal.NewFromInt(int64(b.count)))
		if best == nil || avg.LessThan(best.AvgFeeUSD) {
			best = &BestTime{HourUTC: hour, AvgFeeUSD: avg, SampleCount: b.count}
		}
	}
	return best, nil
}

func meanFee(samples []types.FeeSample) decimal.Decimal {
	if len(samples) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, s := range samples {
		sum = sum.Add(s.FeeUSD)
	}
	return sum.Div(decimal.NewFromInt(int64(len(samples))))
}
