// Package nlu runs the hybrid parse pipeline: the deterministic rule layer
// first, with a best-effort AI fallback that is never load-bearing.
package nlu

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"shop-assistant/internal/ai"
	"shop-assistant/internal/common/config"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/common/metrics"
	"shop-assistant/internal/models"
	"shop-assistant/internal/nlu/classifier"
	"shop-assistant/internal/nlu/extractor"
)

// Hints carries session context into a parse so prompts can account for what
// the conversation already knows.
type Hints struct {
	HasPartner bool
	LastIntent models.Intent
}

// AIObserver records AI call timing. Optional.
type AIObserver interface {
	RecordAICallDuration(ctx context.Context, duration time.Duration, outcome string)
}

// Orchestrator merges the rule layer with an optional AI provider.
type Orchestrator struct {
	classifier *classifier.Classifier
	extractor  *extractor.Extractor
	provider   ai.Provider
	config     config.NLUConfig
	aiTimeout  config.AIConfig
	observer   AIObserver
	logger     logger.Logger
}

// NewOrchestrator wires the pipeline. provider may be nil, in which case the
// rule layer runs alone.
func NewOrchestrator(cls *classifier.Classifier, ext *extractor.Extractor, provider ai.Provider, cfg config.NLUConfig, aiCfg config.AIConfig, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		classifier: cls,
		extractor:  ext,
		provider:   provider,
		config:     cfg,
		aiTimeout:  aiCfg,
		logger:     log,
	}
}

// SetObserver attaches an AI call-duration recorder.
func (o *Orchestrator) SetObserver(obs AIObserver) {
	o.observer = obs
}

// Parse classifies and extracts, consults the AI provider when the rule layer
// is unsure, and deterministically merges the two results.
func (o *Orchestrator) Parse(ctx context.Context, text string, hints Hints) *models.NLUResult {
	intentResult := o.classifier.Classify(text)
	entities := o.extractor.ExtractAll(text)

	ruleResult := &models.NLUResult{
		Intent:     intentResult.Intent,
		Confidence: intentResult.Confidence,
		RawText:    text,
		Products:   entities.Products,
		Partner:    entities.Partner,
		Prices:     entities.Prices,
	}

	if o.provider == nil || !o.shouldUseAI(ruleResult) {
		return ruleResult
	}

	aiCtx, cancel := context.WithTimeout(ctx, config.GetDuration(o.aiTimeout.Timeout))
	defer cancel()

	started := time.Now()
	aiResult, err := o.provider.Parse(aiCtx, text)
	if o.observer != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		o.observer.RecordAICallDuration(ctx, time.Since(started), outcome)
	}
	if err != nil {
		metrics.AIFallbacks.WithLabelValues("failed").Inc()
		o.logger.Warn("AI provider failed, keeping rule result", map[string]interface{}{
			"provider": o.provider.Name(),
			"error":    err.Error(),
		})
		return ruleResult
	}
	metrics.AIFallbacks.WithLabelValues("used").Inc()

	return merge(ruleResult, aiResult)
}

// shouldUseAI decides whether the rule result is weak enough to pay for an
// AI call.
func (o *Orchestrator) shouldUseAI(rule *models.NLUResult) bool {
	if rule.Confidence < o.config.AIThreshold {
		return true
	}
	if rule.Intent == models.IntentUnknown {
		return true
	}
	if len(rule.Products) == 0 && utf8.RuneCountInString(rule.RawText) > o.config.LongTextRunes {
		return true
	}
	return false
}

// merge combines the rule and AI results. The rule layer wins intent ties,
// the AI partner is preferred when present, and products/prices are unioned.
func merge(rule, aiRes *models.NLUResult) *models.NLUResult {
	out := &models.NLUResult{
		RawText: rule.RawText,
		UsedAI:  true,
	}

	if aiRes.Confidence > rule.Confidence {
		out.Intent = aiRes.Intent
		out.Confidence = aiRes.Confidence
	} else {
		out.Intent = rule.Intent
		out.Confidence = rule.Confidence
	}

	if aiRes.Partner != nil {
		out.Partner = aiRes.Partner
	} else {
		out.Partner = rule.Partner
	}

	out.Products = unionProducts(rule.Products, aiRes.Products)
	out.Prices = unionPrices(rule.Prices, aiRes.Prices)

	return out
}

func unionProducts(a, b []models.ProductEntity) []models.ProductEntity {
	byName := make(map[string]models.ProductEntity)
	var order []string

	for _, p := range append(append([]models.ProductEntity{}, a...), b...) {
		key := strings.ToLower(p.Name)
		existing, ok := byName[key]
		if !ok {
			byName[key] = p
			order = append(order, key)
			continue
		}
		if p.Confidence > existing.Confidence {
			byName[key] = p
		}
	}

	out := make([]models.ProductEntity, 0, len(order))
	for _, key := range order {
		out = append(out, byName[key])
	}
	return out
}

func unionPrices(a, b []models.PriceEntity) []models.PriceEntity {
	seen := make(map[float64]bool)
	var out []models.PriceEntity

	for _, p := range append(append([]models.PriceEntity{}, a...), b...) {
		if seen[p.Value] {
			continue
		}
		seen[p.Value] = true
		out = append(out, p)
	}
	return out
}

// NeedsClarification reports whether the merged result is too weak to act on.
func (o *Orchestrator) NeedsClarification(result *models.NLUResult) bool {
	if result.Intent == models.IntentUnknown {
		return true
	}
	if result.Confidence < o.config.ClarificationThreshold {
		return true
	}
	if result.Intent == models.IntentRetailQuote && len(result.Products) == 0 {
		return true
	}
	return false
}

// ClarificationPrompt picks a canned question for whatever piece is missing.
func (o *Orchestrator) ClarificationPrompt(result *models.NLUResult, hints Hints) string {
	switch {
	case result.Intent == models.IntentRetailQuote && len(result.Products) == 0:
		return "请问您要买什么商品？"
	case result.Intent == models.IntentPriceCorrection && len(result.Prices) == 0:
		return "请问您想改成多少钱？"
	case result.Intent == models.IntentUnknown && !hints.HasPartner:
		return "抱歉，我没听清。您可以说\"张三两瓶可乐多少钱\"这样的话。"
	default:
		return "抱歉，我没听清，请再说一遍。"
	}
}
