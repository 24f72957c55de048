// Package pricing resolves product costs against scoped rules, blends with
// historical prices, and assembles spoken quotes. It never hard-fails: every
// data gap has a fallback that degrades confidence instead of erroring.
package pricing

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/common/metrics"
	"shop-assistant/internal/models"
)

const missedCatalogPenalty = 0.7

// Catalog resolves a spoken product name to catalog metadata. A miss returns
// (nil, nil); errors are reserved for infrastructure failures.
type Catalog interface {
	Resolve(ctx context.Context, name string) (*models.ProductInfo, error)
}

// HistorySource supplies the time-decayed price distribution used for
// blending. A nil distribution means no usable history.
type HistorySource interface {
	Distribution(ctx context.Context, product, partner string) (*models.PriceDistribution, error)
}

// QuoteContext is one quoting request: the recognized products and the
// partner, if any.
type QuoteContext struct {
	Partner  *models.PartnerEntity
	Products []models.ProductEntity
}

// Engine produces quotes from scoped rules, catalog metadata and history.
type Engine struct {
	catalog Catalog
	history HistorySource
	rules   *ruleCache
	config  config.PricingConfig
	logger  logger.Logger
}

// NewEngine wires the pricing pipeline. catalog and history may be nil in
// degraded setups; ruleSource may be nil to run on the built-in default rules.
func NewEngine(catalog Catalog, history HistorySource, ruleSource RuleSource, cfg config.PricingConfig, log logger.Logger) *Engine {
	ttl := config.GetSeconds(cfg.RuleCacheTTL)
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Engine{
		catalog: catalog,
		history: history,
		rules:   newRuleCache(ruleSource, ttl, log),
		config:  cfg,
		logger:  log,
	}
}

// RefreshRules forces a rule reload, bypassing the cache TTL.
func (e *Engine) RefreshRules(ctx context.Context) {
	e.rules.Refresh(ctx)
}

// Quote prices every requested product and assembles the spoken message.
func (e *Engine) Quote(ctx context.Context, qc QuoteContext) *models.QuoteResponse {
	rules := e.rules.get(ctx)

	resp := &models.QuoteResponse{}
	if qc.Partner != nil {
		resp.PartnerName = qc.Partner.Name
	}

	var confidenceSum float64
	for _, product := range qc.Products {
		item := e.quoteItem(ctx, product, qc.Partner, rules)
		resp.Items = append(resp.Items, item)
		resp.TotalSuggestedPrice += item.Subtotal
		confidenceSum += item.Confidence
	}

	resp.TotalSuggestedPrice = roundCents(resp.TotalSuggestedPrice)
	if len(resp.Items) > 0 {
		resp.Confidence = confidenceSum / float64(len(resp.Items))
	}
	resp.NeedsConfirmation = resp.Confidence < e.config.ConfirmThreshold

	if rounded := math.Round(resp.TotalSuggestedPrice); rounded != resp.TotalSuggestedPrice {
		if diff := math.Abs(resp.TotalSuggestedPrice - rounded); diff <= 0.5 {
			resp.RoundingSuggestion = rounded
		}
	}

	resp.Message = assembleMessage(resp)

	metrics.QuotesProduced.Inc()
	metrics.QuoteConfidence.Observe(resp.Confidence)

	return resp
}

// quoteItem runs the per-product ladder: catalog resolve, rule match, formula
// eval, history blend, rounding.
func (e *Engine) quoteItem(ctx context.Context, product models.ProductEntity, partner *models.PartnerEntity, rules []compiledRule) models.QuoteItem {
	item := models.QuoteItem{
		ProductName: product.Name,
		ProductID:   product.ProductID,
		Quantity:    product.Quantity,
		Unit:        product.Unit,
		Confidence:  product.Confidence,
	}
	if item.Quantity <= 0 {
		item.Quantity = 1
	}

	info := e.resolveInfo(ctx, product.Name)
	if info == nil {
		item.Confidence *= missedCatalogPenalty
		info = &models.ProductInfo{Name: product.Name}
	} else {
		item.ProductID = info.ID
		item.BaseCost = info.BaseCost
	}

	price, ruleID, rounding := e.rulePrice(info, partner, rules)
	price = e.blendHistory(ctx, product.Name, partner, price)
	price = applyRounding(price, rounding)

	item.RuleID = ruleID
	item.SuggestedPrice = roundCents(price)
	item.ActualPrice = item.SuggestedPrice
	item.Subtotal = roundCents(item.SuggestedPrice * item.Quantity)
	return item
}

func (e *Engine) resolveInfo(ctx context.Context, name string) *models.ProductInfo {
	if e.catalog == nil {
		return nil
	}
	info, err := e.catalog.Resolve(ctx, name)
	if err != nil {
		e.logger.Warn("catalog lookup failed", map[string]interface{}{
			"product": name,
			"error":   err.Error(),
		})
		return nil
	}
	return info
}

// rulePrice evaluates the most specific applicable rule. With no applicable
// rule, or a non-positive formula result, it falls back to the default margin.
func (e *Engine) rulePrice(info *models.ProductInfo, partner *models.PartnerEntity, rules []compiledRule) (float64, string, models.RoundingStrategy) {
	fallback := info.BaseCost * (1 + e.config.DefaultMargin)

	for _, rule := range rules {
		if !ruleApplies(rule, info, partner) {
			continue
		}
		price := rule.formula.eval(info.BaseCost)
		if price <= 0 {
			return fallback, rule.ID, models.RoundingNone
		}
		return price, rule.ID, rule.Rounding
	}
	return fallback, "", models.RoundingNone
}

// ruleApplies checks one rule's scope against the product and partner. A
// special rule's scope value is "productId:partnerId".
func ruleApplies(rule compiledRule, info *models.ProductInfo, partner *models.PartnerEntity) bool {
	switch rule.ScopeType {
	case models.ScopeGlobal:
		return true
	case models.ScopeCategory:
		return info.Category != "" && info.Category == rule.ScopeValue
	case models.ScopeLevel:
		return partner != nil && partner.Level != "" && partner.Level == rule.ScopeValue
	case models.ScopeSpecial:
		if partner == nil || info.ID == "" || partner.PartnerID == "" {
			return false
		}
		return rule.ScopeValue == info.ID+":"+partner.PartnerID
	}
	return false
}

// blendHistory mixes the rule price with the historical weighted average when
// a distribution exists.
func (e *Engine) blendHistory(ctx context.Context, product string, partner *models.PartnerEntity, price float64) float64 {
	if e.history == nil || e.config.HistoryWeight <= 0 {
		return price
	}

	partnerID := ""
	if partner != nil {
		partnerID = partner.PartnerID
	}

	dist, err := e.history.Distribution(ctx, product, partnerID)
	if err != nil {
		e.logger.Warn("history lookup failed", map[string]interface{}{
			"product": product,
			"error":   err.Error(),
		})
		return price
	}
	if dist == nil || dist.SampleCount == 0 || dist.WeightedAvg <= 0 {
		return price
	}

	w := e.config.HistoryWeight
	return price*(1-w) + dist.WeightedAvg*w
}

// assembleMessage builds the spoken reply: optional partner prefix, one phrase
// per item, combined total when there is more than one item.
func assembleMessage(resp *models.QuoteResponse) string {
	if len(resp.Items) == 0 {
		return ""
	}

	var b strings.Builder
	if resp.PartnerName != "" {
		b.WriteString(resp.PartnerName)
		b.WriteString("，")
	}

	phrases := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Quantity == 1 {
			phrases = append(phrases, fmt.Sprintf("%s%s块", item.ProductName, formatYuan(item.ActualPrice)))
			continue
		}
		phrases = append(phrases, fmt.Sprintf("%s%s%s%s块",
			formatQty(item.Quantity), item.Unit, item.ProductName, formatYuan(item.Subtotal)))
	}
	b.WriteString(strings.Join(phrases, "，"))

	if len(resp.Items) > 1 {
		b.WriteString(fmt.Sprintf("，一共%s块", formatYuan(resp.TotalSuggestedPrice)))
	}
	return b.String()
}

func formatYuan(v float64) string {
	return strconv.FormatFloat(roundCents(v), 'f', -1, 64)
}

func formatQty(q float64) string {
	if q == math.Trunc(q) {
		return strconv.FormatFloat(q, 'f', 0, 64)
	}
	return strconv.FormatFloat(q, 'f', -1, 64)
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
