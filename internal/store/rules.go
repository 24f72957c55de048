// Package store is the persistence layer: pricing rules, catalog lookups,
// committed transactions, and the extractor name dictionary.
package store

import (
	"context"
	"database/sql"

	"shop-assistant/internal/common/errors"
	"shop-assistant/internal/common/logger"
	"shop-assistant/internal/models"
)

// RuleStore loads pricing rules from Postgres.
type RuleStore struct {
	db     *sql.DB
	logger logger.Logger
}

func NewRuleStore(db *sql.DB, log logger.Logger) *RuleStore {
	return &RuleStore{db: db, logger: log}
}

// LoadRules returns all enabled rules. The pricing engine compiles and orders
// them; the store only fetches.
func (s *RuleStore) LoadRules(ctx context.Context) ([]models.PricingRule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scope_type, scope_value, formula, rounding, priority, enabled
		FROM pricing_rules
		WHERE enabled = true
		ORDER BY priority DESC`)
	if err != nil {
		return nil, errors.NewRuleLoadFailedError(err)
	}
	defer rows.Close()

	var rules []models.PricingRule
	for rows.Next() {
		var r models.PricingRule
		if err := rows.Scan(&r.ID, &r.ScopeType, &r.ScopeValue, &r.Formula, &r.Rounding, &r.Priority, &r.Enabled); err != nil {
			return nil, errors.NewRuleLoadFailedError(err)
		}
		rules = append(rules, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewRuleLoadFailedError(err)
	}

	s.logger.Debug("pricing rules loaded", map[string]interface{}{"count": len(rules)})
	return rules, nil
}
