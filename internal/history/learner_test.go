package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/database"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type fakeSamples struct {
	samples []models.PriceSample
	err     error
	calls   int
}

func (f *fakeSamples) LoadPriceSamples(ctx context.Context, product, partner string, since time.Time) ([]models.PriceSample, error) {
	f.calls++
	return f.samples, f.err
}

func testHistoryConfig() config.HistoryConfig {
	return config.HistoryConfig{
		WindowDays:     60,
		HalfLifeDays:   14,
		StalenessDays:  7,
		MinSampleSize:  5,
		VolatilityKnee: 0.3,
		CacheTTL:       3600,
	}
}

func newTestLearner(source SampleSource, cache Cache) *Learner {
	l := NewLearner(source, cache, testHistoryConfig(), logger.NewNop())
	l.now = func() time.Time { return testNow }
	return l
}

func samplesAt(prices []float64, age time.Duration) []models.PriceSample {
	out := make([]models.PriceSample, len(prices))
	for i, p := range prices {
		out[i] = models.PriceSample{Price: p, Timestamp: testNow.Add(-age)}
	}
	return out
}

func TestDistribution_Statistics(t *testing.T) {
	source := &fakeSamples{samples: samplesAt([]float64{3, 3, 3.5, 10}, 24*time.Hour)}
	l := newTestLearner(source, nil)

	dist, err := l.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)
	require.NotNil(t, dist)

	assert.Equal(t, 3.0, dist.Min)
	assert.Equal(t, 10.0, dist.Max)
	assert.InDelta(t, 4.875, dist.Avg, 1e-9)
	assert.InDelta(t, 3.25, dist.Median, 1e-9)
	assert.Equal(t, 3.0, dist.Mode)
	assert.Equal(t, 4, dist.SampleCount)
	// all samples the same age, so the weighted average equals the plain mean
	assert.InDelta(t, dist.Avg, dist.WeightedAvg, 1e-9)
}

func TestDistribution_WeightedAvgFavorsRecent(t *testing.T) {
	samples := []models.PriceSample{
		{Price: 3, Timestamp: testNow.Add(-24 * time.Hour)},
		{Price: 5, Timestamp: testNow.Add(-56 * 24 * time.Hour)},
	}
	l := newTestLearner(&fakeSamples{samples: samples}, nil)

	dist, err := l.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)

	assert.Equal(t, 4.0, dist.Avg)
	assert.Less(t, dist.WeightedAvg, 4.0, "recent cheap sample should dominate")
	assert.Greater(t, dist.WeightedAvg, 3.0)
}

func TestDistribution_NoSamples(t *testing.T) {
	l := newTestLearner(&fakeSamples{}, nil)

	dist, err := l.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)
	assert.Nil(t, dist)
}

func TestDistribution_SourceError(t *testing.T) {
	l := newTestLearner(&fakeSamples{err: errors.New("db down")}, nil)

	_, err := l.Distribution(context.Background(), "可乐", "")
	assert.Error(t, err)
}

func TestDistribution_CacheHit(t *testing.T) {
	source := &fakeSamples{samples: samplesAt([]float64{3, 3, 3}, 24*time.Hour)}
	l := newTestLearner(source, NewMemoryCache(time.Hour))

	_, err := l.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)
	_, err = l.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)

	assert.Equal(t, 1, source.calls)
}

func TestConfidence_SampleSizePenalty(t *testing.T) {
	small := newTestLearner(&fakeSamples{samples: samplesAt([]float64{3, 3}, 24*time.Hour)}, nil)
	large := newTestLearner(&fakeSamples{samples: samplesAt([]float64{3, 3, 3, 3, 3, 3}, 24*time.Hour)}, nil)

	distSmall, err := small.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)
	distLarge, err := large.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)

	assert.Less(t, distSmall.Confidence, distLarge.Confidence)
	assert.Equal(t, 1.0, distLarge.Confidence)
}

func TestConfidence_VolatilityPenalty(t *testing.T) {
	stable := newTestLearner(&fakeSamples{samples: samplesAt([]float64{3, 3, 3, 3, 3}, 24*time.Hour)}, nil)
	volatile := newTestLearner(&fakeSamples{samples: samplesAt([]float64{1, 2, 5, 9, 12}, 24*time.Hour)}, nil)

	distStable, err := stable.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)
	distVolatile, err := volatile.Distribution(context.Background(), "可乐", "")
	require.NoError(t, err)

	assert.Less(t, distVolatile.Confidence, distStable.Confidence)
}

func TestConfidence_MonotoneInStaleness(t *testing.T) {
	prices := []float64{3, 3, 3, 3, 3}
	var previous float64 = 1.1

	for _, ageDays := range []int{1, 7, 10, 20, 40} {
		l := newTestLearner(&fakeSamples{
			samples: samplesAt(prices, time.Duration(ageDays)*24*time.Hour),
		}, nil)

		dist, err := l.Distribution(context.Background(), "可乐", "")
		require.NoError(t, err)

		assert.LessOrEqual(t, dist.Confidence, previous, "age %d days", ageDays)
		previous = dist.Confidence
	}
}

func TestIsPriceReasonable(t *testing.T) {
	source := &fakeSamples{samples: samplesAt([]float64{3, 3, 3.5, 10}, 24*time.Hour)}
	l := newTestLearner(source, nil)
	ctx := context.Background()

	// avg = 4.875: within 10%
	verdict := l.IsPriceReasonable(ctx, "可乐", 5)
	assert.True(t, verdict.Reasonable)
	assert.Empty(t, verdict.Warning)

	// ~15% above avg: reasonable with warning
	verdict = l.IsPriceReasonable(ctx, "可乐", 5.6)
	assert.True(t, verdict.Reasonable)
	assert.Contains(t, verdict.Warning, "略高")

	// far above avg: flagged, correction toward the mode
	verdict = l.IsPriceReasonable(ctx, "可乐", 10)
	assert.False(t, verdict.Reasonable)
	assert.Contains(t, verdict.Warning, "明显偏高")
	assert.Equal(t, 3.0, verdict.Suggested)

	// far below avg
	verdict = l.IsPriceReasonable(ctx, "可乐", 1)
	assert.False(t, verdict.Reasonable)
	assert.Contains(t, verdict.Warning, "明显偏低")
}

func TestIsPriceReasonable_NoHistory(t *testing.T) {
	l := newTestLearner(&fakeSamples{}, nil)

	verdict := l.IsPriceReasonable(context.Background(), "可乐", 99)
	assert.True(t, verdict.Reasonable)
	assert.Empty(t, verdict.Warning)
}

func TestMemoryCache_Expiry(t *testing.T) {
	cache := NewMemoryCache(10 * time.Millisecond)
	ctx := context.Background()

	cache.Set(ctx, "k", &models.PriceDistribution{Product: "可乐"})

	got, ok := cache.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "可乐", got.Product)

	time.Sleep(20 * time.Millisecond)
	_, ok = cache.Get(ctx, "k")
	assert.False(t, ok)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := database.NewRedis(config.RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	defer client.Close()

	cache := NewRedisCache(client, time.Hour, logger.NewNop())
	ctx := context.Background()

	_, ok := cache.Get(ctx, "dist:可乐")
	assert.False(t, ok)

	cache.Set(ctx, "dist:可乐", &models.PriceDistribution{Product: "可乐", Avg: 3.2, SampleCount: 4})

	got, ok := cache.Get(ctx, "dist:可乐")
	require.True(t, ok)
	assert.Equal(t, 3.2, got.Avg)
	assert.Equal(t, 4, got.SampleCount)
}

func TestRedisCache_CorruptEntry(t *testing.T) {
	server := miniredis.RunT(t)

	client, err := database.NewRedis(config.RedisConfig{Address: server.Addr()})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, server.Set("dist:可乐", "{not json"))

	cache := NewRedisCache(client, time.Hour, logger.NewNop())
	_, ok := cache.Get(context.Background(), "dist:可乐")
	assert.False(t, ok)
}
