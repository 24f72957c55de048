package pricing

import (
	"context"
	"sort"
	"sync"
	"time"

	commonerrors "shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// RuleSource loads the enabled pricing rules from persistence.
type RuleSource interface {
	LoadRules(ctx context.Context) ([]models.PricingRule, error)
}

// compiledRule pairs a rule with its pre-parsed formula tree.
type compiledRule struct {
	models.PricingRule
	formula expr
}

// scopeRank orders rule scopes from most to least specific.
func scopeRank(s models.ScopeType) int {
	switch s {
	case models.ScopeSpecial:
		return 4
	case models.ScopeLevel:
		return 3
	case models.ScopeCategory:
		return 2
	case models.ScopeGlobal:
		return 1
	}
	return 0
}

// ruleCache holds compiled rules behind a TTL. A load failure keeps serving
// whatever was cached before; with nothing cached it serves the built-in
// default set so pricing never hard-fails.
type ruleCache struct {
	source RuleSource
	ttl    time.Duration
	logger logger.Logger

	mu       sync.RWMutex
	rules    []compiledRule
	loadedAt time.Time
}

func newRuleCache(source RuleSource, ttl time.Duration, log logger.Logger) *ruleCache {
	return &ruleCache{source: source, ttl: ttl, logger: log}
}

// get returns the current rule set, refreshing from the source when the TTL
// has elapsed.
func (c *ruleCache) get(ctx context.Context) []compiledRule {
	c.mu.RLock()
	fresh := c.rules != nil && time.Since(c.loadedAt) < c.ttl
	rules := c.rules
	c.mu.RUnlock()

	if fresh {
		return rules
	}
	return c.refresh(ctx)
}

// Refresh forces a reload from the source, bypassing the TTL.
func (c *ruleCache) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.loadedAt = time.Time{}
	c.mu.Unlock()
	c.refresh(ctx)
}

func (c *ruleCache) refresh(ctx context.Context) []compiledRule {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rules != nil && time.Since(c.loadedAt) < c.ttl {
		return c.rules
	}

	loaded, err := c.load(ctx)
	if err != nil {
		c.logger.Warn("rule load failed", map[string]interface{}{"error": err.Error()})
		if c.rules != nil {
			c.loadedAt = time.Now()
			return c.rules
		}
		loaded = defaultRules()
	}

	c.rules = loaded
	c.loadedAt = time.Now()
	return c.rules
}

func (c *ruleCache) load(ctx context.Context) ([]compiledRule, error) {
	if c.source == nil {
		return defaultRules(), nil
	}

	raw, err := c.source.LoadRules(ctx)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return defaultRules(), nil
	}

	compiled := compileRules(raw, c.logger)
	if !hasGlobal(compiled) {
		compiled = append(compiled, defaultGlobalRule())
	}
	sortRules(compiled)
	return compiled, nil
}

// compileRules parses every enabled rule's formula, skipping rules whose
// formula does not compile.
func compileRules(raw []models.PricingRule, log logger.Logger) []compiledRule {
	compiled := make([]compiledRule, 0, len(raw))
	for _, r := range raw {
		if !r.Enabled {
			continue
		}
		tree, err := compileFormula(r.Formula)
		if err != nil {
			stdErr := commonerrors.NewFormulaInvalidError(r.Formula, err)
			log.Warn("skipping rule with invalid formula", map[string]interface{}{
				"ruleId": r.ID,
				"code":   string(stdErr.Code),
				"error":  stdErr.Details,
			})
			continue
		}
		compiled = append(compiled, compiledRule{PricingRule: r, formula: tree})
	}
	return compiled
}

// sortRules orders by scope specificity first, then rule priority.
func sortRules(rules []compiledRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		ri, rj := scopeRank(rules[i].ScopeType), scopeRank(rules[j].ScopeType)
		if ri != rj {
			return ri > rj
		}
		return rules[i].Priority > rules[j].Priority
	})
}

func hasGlobal(rules []compiledRule) bool {
	for _, r := range rules {
		if r.ScopeType == models.ScopeGlobal {
			return true
		}
	}
	return false
}

func mustCompile(rule models.PricingRule) compiledRule {
	tree, err := compileFormula(rule.Formula)
	if err != nil {
		panic(err)
	}
	return compiledRule{PricingRule: rule, formula: tree}
}

func defaultGlobalRule() compiledRule {
	return mustCompile(models.PricingRule{
		ID:        "default-global",
		ScopeType: models.ScopeGlobal,
		Formula:   "cost*1.2",
		Rounding:  models.RoundingRoundTo1,
		Priority:  0,
		Enabled:   true,
	})
}

// defaultRules is the built-in fallback set used when no rules can be loaded.
func defaultRules() []compiledRule {
	rules := []compiledRule{
		mustCompile(models.PricingRule{
			ID:        "default-beverage",
			ScopeType: models.ScopeCategory,
			ScopeValue: "饮料",
			Formula:   "cost*1.15",
			Rounding:  models.RoundingRoundToHalf,
			Priority:  10,
			Enabled:   true,
		}),
		mustCompile(models.PricingRule{
			ID:        "default-snack",
			ScopeType: models.ScopeCategory,
			ScopeValue: "零食",
			Formula:   "cost*1.18",
			Rounding:  models.RoundingRoundTo1,
			Priority:  10,
			Enabled:   true,
		}),
		defaultGlobalRule(),
	}
	sortRules(rules)
	return rules
}
