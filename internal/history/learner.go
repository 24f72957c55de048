// Package history derives time-decayed price distributions from committed
// transactions and judges whether a spoken price is in line with them.
package history

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// SampleSource loads historical price samples for a product, optionally
// narrowed to one partner.
type SampleSource interface {
	LoadPriceSamples(ctx context.Context, product, partner string, since time.Time) ([]models.PriceSample, error)
}

// Cache stores computed distributions for the cache TTL.
type Cache interface {
	Get(ctx context.Context, key string) (*models.PriceDistribution, bool)
	Set(ctx context.Context, key string, dist *models.PriceDistribution)
}

// Learner computes and caches per-product price distributions.
type Learner struct {
	source SampleSource
	cache  Cache
	config config.HistoryConfig
	logger logger.Logger
	now    func() time.Time
}

// NewLearner wires the history pipeline. cache may be nil to disable caching.
func NewLearner(source SampleSource, cache Cache, cfg config.HistoryConfig, log logger.Logger) *Learner {
	return &Learner{
		source: source,
		cache:  cache,
		config: cfg,
		logger: log,
		now:    time.Now,
	}
}

// Distribution returns the cached or freshly computed distribution for a
// product (and optional partner). A nil distribution means no usable history.
func (l *Learner) Distribution(ctx context.Context, product, partner string) (*models.PriceDistribution, error) {
	key := cacheKey(product, partner)
	if l.cache != nil {
		if dist, ok := l.cache.Get(ctx, key); ok {
			return dist, nil
		}
	}

	since := l.now().AddDate(0, 0, -l.config.WindowDays)
	samples, err := l.source.LoadPriceSamples(ctx, product, partner, since)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, nil
	}

	dist := l.compute(product, partner, samples)
	if l.cache != nil {
		l.cache.Set(ctx, key, dist)
	}
	return dist, nil
}

func cacheKey(product, partner string) string {
	if partner == "" {
		return fmt.Sprintf("dist:%s", product)
	}
	return fmt.Sprintf("dist:%s:%s", product, partner)
}

// compute derives the full statistics set from raw samples.
func (l *Learner) compute(product, partner string, samples []models.PriceSample) *models.PriceDistribution {
	now := l.now()

	prices := make([]float64, len(samples))
	for i, s := range samples {
		prices[i] = s.Price
	}
	sort.Float64s(prices)

	dist := &models.PriceDistribution{
		Product:     product,
		Partner:     partner,
		Min:         prices[0],
		Max:         prices[len(prices)-1],
		Median:      median(prices),
		Mode:        mode(prices),
		SampleCount: len(prices),
	}

	var sum float64
	for _, p := range prices {
		sum += p
	}
	dist.Avg = sum / float64(len(prices))

	var sqSum float64
	for _, p := range prices {
		sqSum += (p - dist.Avg) * (p - dist.Avg)
	}
	dist.StdDev = math.Sqrt(sqSum / float64(len(prices)))

	dist.WeightedAvg = l.weightedAvg(samples, now)
	dist.Confidence = l.confidence(dist, newestAge(samples, now))
	return dist
}

// weightedAvg applies exponential decay so older samples contribute less:
// weight = 0.5^(daysAgo/halfLife).
func (l *Learner) weightedAvg(samples []models.PriceSample, now time.Time) float64 {
	halfLife := l.config.HalfLifeDays
	if halfLife <= 0 {
		halfLife = 14
	}

	var weightedSum, weightSum float64
	for _, s := range samples {
		daysAgo := now.Sub(s.Timestamp).Hours() / 24
		if daysAgo < 0 {
			daysAgo = 0
		}
		w := math.Pow(0.5, daysAgo/halfLife)
		weightedSum += s.Price * w
		weightSum += w
	}
	if weightSum == 0 {
		return 0
	}
	return weightedSum / weightSum
}

// confidence multiplies a sample-size penalty, a volatility penalty, and a
// staleness penalty, clamped to [0,1].
func (l *Learner) confidence(dist *models.PriceDistribution, newestAgeDays float64) float64 {
	minSamples := l.config.MinSampleSize
	if minSamples <= 0 {
		minSamples = 5
	}
	sizePenalty := math.Min(1, float64(dist.SampleCount)/float64(minSamples))

	volatilityPenalty := 1.0
	knee := l.config.VolatilityKnee
	if knee <= 0 {
		knee = 0.3
	}
	if dist.Avg > 0 {
		if ratio := dist.StdDev / dist.Avg; ratio > knee {
			volatilityPenalty = knee / ratio
		}
	}

	stalenessPenalty := 1.0
	staleDays := float64(l.config.StalenessDays)
	if staleDays <= 0 {
		staleDays = 7
	}
	if newestAgeDays > staleDays {
		stalenessPenalty = math.Pow(0.5, (newestAgeDays-staleDays)/staleDays)
	}

	return clamp01(sizePenalty * volatilityPenalty * stalenessPenalty)
}

func newestAge(samples []models.PriceSample, now time.Time) float64 {
	newest := samples[0].Timestamp
	for _, s := range samples[1:] {
		if s.Timestamp.After(newest) {
			newest = s.Timestamp
		}
	}
	age := now.Sub(newest).Hours() / 24
	if age < 0 {
		return 0
	}
	return age
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// mode buckets prices at 0.1-yuan granularity and returns the most frequent
// bucket, preferring the lower price on ties.
func mode(prices []float64) float64 {
	counts := make(map[float64]int)
	for _, p := range prices {
		counts[math.Round(p*10)/10]++
	}

	var best float64
	bestCount := 0
	for value, count := range counts {
		if count > bestCount || (count == bestCount && value < best) {
			best = value
			bestCount = count
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Assessment is the verdict on a proposed price against history.
type Assessment struct {
	Reasonable bool
	Warning    string
	Suggested  float64
}

// IsPriceReasonable compares a price against the product's historical average:
// within 10% is fine, within 20% carries a warning, beyond that it is flagged
// with a correction toward the historical mode.
func (l *Learner) IsPriceReasonable(ctx context.Context, product string, price float64) Assessment {
	dist, err := l.Distribution(ctx, product, "")
	if err != nil {
		l.logger.Warn("history lookup failed", map[string]interface{}{
			"product": product,
			"error":   err.Error(),
		})
		return Assessment{Reasonable: true}
	}
	if dist == nil || dist.Avg <= 0 {
		return Assessment{Reasonable: true}
	}

	deviation := (price - dist.Avg) / dist.Avg
	abs := math.Abs(deviation)

	switch {
	case abs <= 0.10:
		return Assessment{Reasonable: true}
	case abs <= 0.20:
		direction := "略高"
		if deviation < 0 {
			direction = "略低"
		}
		return Assessment{
			Reasonable: true,
			Warning:    fmt.Sprintf("这个价比平时%s一点", direction),
		}
	default:
		direction := "明显偏高"
		if deviation < 0 {
			direction = "明显偏低"
		}
		suggested := dist.Mode
		if suggested <= 0 {
			suggested = math.Round(dist.Avg*10) / 10
		}
		return Assessment{
			Reasonable: false,
			Warning:    fmt.Sprintf("这个价%s，平时卖%s块左右", direction, formatPrice(suggested)),
			Suggested:  suggested,
		}
	}
}

func formatPrice(v float64) string {
	if v == math.Trunc(v) {
		return fmt.Sprintf("%.0f", v)
	}
	return fmt.Sprintf("%.1f", v)
}
