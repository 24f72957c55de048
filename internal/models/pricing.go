package models

// ScopeType defines the condition under which a pricing rule applies.
type ScopeType string

const (
	ScopeGlobal   ScopeType = "global"
	ScopeCategory ScopeType = "category"
	ScopeLevel    ScopeType = "level"
	ScopeSpecial  ScopeType = "special"
)

// RoundingStrategy is a deterministic price snapping rule.
type RoundingStrategy string

const (
	RoundingNone       RoundingStrategy = "none"
	RoundingFloorTo1   RoundingStrategy = "floor_to_1"
	RoundingCeilTo1    RoundingStrategy = "ceil_to_1"
	RoundingRoundTo1   RoundingStrategy = "round_to_1"
	RoundingRoundToHalf RoundingStrategy = "round_to_0.5"
	RoundingFloorToHalf RoundingStrategy = "floor_to_0.5"
)

// PricingRule is a persisted, scoped pricing rule. Rules are cached at engine
// init and refreshable. A global rule always exists as the mandatory fallback;
// priority order is special > level > category > global.
type PricingRule struct {
	ID         string           `json:"id" db:"id"`
	ScopeType  ScopeType        `json:"scopeType" db:"scope_type"`
	ScopeValue string           `json:"scopeValue" db:"scope_value"`
	Formula    string           `json:"formula" db:"formula"`
	Rounding   RoundingStrategy `json:"rounding" db:"rounding"`
	Priority   int              `json:"priority" db:"priority"`
	Enabled    bool             `json:"enabled" db:"enabled"`
}

// ProductInfo is catalog metadata resolved for a spoken product name.
type ProductInfo struct {
	ID       string  `json:"id" db:"id"`
	Name     string  `json:"name" db:"name"`
	BaseCost float64 `json:"baseCost" db:"base_cost"`
	Category string  `json:"category" db:"category"`
}

// PriceDistribution is the derived per-product (optionally per-partner)
// historical price statistics. It is recomputed from transaction history and
// cached; it is never independently persisted.
type PriceDistribution struct {
	Product     string  `json:"product"`
	Partner     string  `json:"partner,omitempty"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Avg         float64 `json:"avg"`
	Median      float64 `json:"median"`
	Mode        float64 `json:"mode"`
	StdDev      float64 `json:"stdDev"`
	WeightedAvg float64 `json:"weightedAvg"`
	Confidence  float64 `json:"confidence"`
	SampleCount int     `json:"sampleCount"`
}
